package mapping

import (
	"time"

	"github.com/tidwall/gjson"

	"github.com/sells-group/dealsync/internal/deal"
)

// maxJSONFieldLen caps serialized backup blobs at the destination
// text-field limit.
const maxJSONFieldLen = 25000

// Builder walks the mapping table against one webhook document and
// produces a destination record.
type Builder struct {
	table   *Table
	coercer *Coercer
	now     func() time.Time
}

// NewBuilder returns a builder over the given table.
func NewBuilder(table *Table) *Builder {
	return &Builder{table: table, coercer: NewCoercer(), now: time.Now}
}

// Build evaluates every mapping rule against doc. It fails fast with a
// ShapeError when a required top-level entity is missing; a record with a
// business key but no data is worse than a rejected delivery. Warnings
// report values that coerced lossily; they never block the build.
func (b *Builder) Build(doc *deal.Document) (Record, []Warning, error) {
	for _, entity := range []string{"payload.deal", "payload.customer", "payload.proposal"} {
		if !doc.Get(entity).IsObject() {
			return nil, nil, &deal.ShapeError{Field: entity}
		}
	}

	dc := newDeriveContext(doc, b.now)
	rec := make(Record, len(b.table.Rules))
	var warnings []Warning

	for _, rule := range b.table.Rules {
		raw, present := b.resolve(doc, dc, rule)
		if !present {
			continue
		}
		value, warn := b.coercer.Coerce(raw, rule.Type, rule.Field, rule.Label)
		if warn != nil {
			warnings = append(warnings, *warn)
		}
		rec[rule.Field] = FieldValue{Value: value, Comment: rule.Label}
	}
	return rec, warnings, nil
}

// resolve produces the raw value for one rule. The second return is false
// when the destination field should be omitted entirely: file lookups,
// JSON backups, and adder itemization slots are absent when their source
// is, while plain path rules always produce a value so the coercer can
// apply the per-type default.
func (b *Builder) resolve(doc *deal.Document, dc *deriveContext, rule Rule) (any, bool) {
	switch {
	case rule.Derive != "":
		return derivations[rule.Derive](dc)
	case rule.File != "":
		if f, ok := findFile(doc, rule.File); ok {
			return f.Get("url").String(), true
		}
		return nil, false
	case rule.FileName != "":
		if f, ok := findFile(doc, rule.FileName); ok {
			return f.Get("name").String(), true
		}
		return nil, false
	case len(rule.JSON) > 0:
		if v := doc.First(rule.JSON...); v.Exists() {
			return truncateJSON(v.Raw), true
		}
		return nil, false
	case len(rule.Paths) > 0:
		return withDefault(resultToAny(doc.First(rule.Paths...)), rule.Default), true
	default:
		return withDefault(resultToAny(doc.Get(rule.Path)), rule.Default), true
	}
}

// findFile returns the first uploaded file whose source tag matches.
func findFile(doc *deal.Document, tag string) (gjson.Result, bool) {
	files := doc.Get("payload.deal.files")
	if !files.IsArray() {
		return gjson.Result{}, false
	}
	for _, f := range files.Array() {
		if f.Get("source").String() == tag {
			return f, true
		}
	}
	return gjson.Result{}, false
}

func withDefault(raw any, def string) any {
	if def != "" && isMissing(raw) {
		return def
	}
	return raw
}

func truncateJSON(raw string) string {
	if len(raw) > maxJSONFieldLen {
		return raw[:maxJSONFieldLen]
	}
	return raw
}

// resultToAny converts a gjson result to the coercer's input domain.
// Objects and arrays pass through as their raw JSON text.
func resultToAny(v gjson.Result) any {
	if !v.Exists() || v.Type == gjson.Null {
		return nil
	}
	switch v.Type {
	case gjson.Number:
		return v.Float()
	case gjson.String:
		return v.String()
	case gjson.True:
		return true
	case gjson.False:
		return false
	default:
		return v.Raw
	}
}
