// Package deal wraps one Enerflo webhook delivery and provides safe
// dotted-path access into its payload. The payload's shape varies across
// webhook producer versions, so every read goes through gjson and returns
// a caller-supplied default when any path segment is absent.
package deal

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
)

// ShapeError reports a structurally invalid delivery: a required top-level
// entity or id is missing. Shape errors are fatal to the delivery and are
// never retried.
type ShapeError struct {
	Field string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("invalid webhook payload: missing %s", e.Field)
}

// Document is one parsed webhook delivery. It is read-only.
type Document struct {
	raw  []byte
	root gjson.Result
}

// Parse validates that body is a JSON object and wraps it.
func Parse(body []byte) (*Document, error) {
	if !gjson.ValidBytes(body) {
		return nil, eris.New("deal: body is not valid JSON")
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, eris.New("deal: body is not a JSON object")
	}
	return &Document{raw: body, root: root}, nil
}

// Raw returns the original delivery bytes.
func (d *Document) Raw() []byte {
	return d.raw
}

// Get resolves a dotted path. A missing or null intermediate yields a
// non-existent Result; it never panics. Array elements are addressed by
// stringified index ("arrays.0.module.capacity").
func (d *Document) Get(path string) gjson.Result {
	return d.root.Get(path)
}

// Exists reports whether the path resolves to a non-null value.
func (d *Document) Exists(path string) bool {
	v := d.root.Get(path)
	return v.Exists() && v.Type != gjson.Null
}

// String returns the string at path, or def when absent.
func (d *Document) String(path, def string) string {
	if v := d.root.Get(path); v.Exists() && v.Type != gjson.Null {
		return v.String()
	}
	return def
}

// Float returns the number at path, or def when absent.
func (d *Document) Float(path string, def float64) float64 {
	if v := d.root.Get(path); v.Exists() && v.Type != gjson.Null {
		return v.Float()
	}
	return def
}

// Bool returns the boolean at path, or def when absent.
func (d *Document) Bool(path string, def bool) bool {
	if v := d.root.Get(path); v.Exists() && v.Type != gjson.Null {
		return v.Bool()
	}
	return def
}

// First returns the first of paths that resolves, or a non-existent Result.
// The same logical field appears at different paths across producer
// versions, so most mapping rules carry more than one candidate path.
func (d *Document) First(paths ...string) gjson.Result {
	for _, p := range paths {
		if v := d.root.Get(p); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

// Event returns the webhook event tag.
func (d *Document) Event() string {
	return d.String("event", "")
}

// DealID returns the Enerflo deal id, the business key for the upsert.
func (d *Document) DealID() string {
	return d.String("payload.deal.id", "")
}

// CustomerID returns the Enerflo customer id.
func (d *Document) CustomerID() string {
	return d.String("payload.customer.id", "")
}

// ProposalID returns the Enerflo proposal id.
func (d *Document) ProposalID() string {
	return d.String("payload.proposal.id", "")
}

// Accept enforces the minimal acceptance criteria for a delivery: the event
// tag and all three entity ids must be present and non-empty. The returned
// ShapeError names the first missing field.
func (d *Document) Accept() error {
	if d.Event() == "" {
		return &ShapeError{Field: "event"}
	}
	for _, check := range []struct {
		field string
		ok    bool
	}{
		{"payload.deal", d.Get("payload.deal").IsObject()},
		{"payload.deal.id", d.DealID() != ""},
		{"payload.customer", d.Get("payload.customer").IsObject()},
		{"payload.customer.id", d.CustomerID() != ""},
		{"payload.proposal", d.Get("payload.proposal").IsObject()},
		{"payload.proposal.id", d.ProposalID() != ""},
	} {
		if !check.ok {
			return &ShapeError{Field: check.field}
		}
	}
	return nil
}
