package mapping

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	numericStripper = strings.NewReplacer("$", "", ",", "", "%", "", " ", "")
	phoneStripper   = regexp.MustCompile(`[^\d+]`)
)

// Layouts accepted for date/time input, most specific first.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// Coercer converts raw extracted values into the destination semantic types.
// Coercion is lenient: a value that cannot be parsed is replaced by the
// type's default and generates a warning, never an error. Coercion is
// idempotent: feeding a coerced value back through the same type yields
// the identical value.
type Coercer struct {
	// now allows test injection of the clock used for date defaults.
	now func() time.Time
}

// NewCoercer returns a coercer using the wall clock for date defaults.
func NewCoercer() *Coercer {
	return &Coercer{now: time.Now}
}

// Coerce converts raw to the given semantic type. The returned warning is
// nil when the value converted cleanly.
func (c *Coercer) Coerce(raw any, t SemanticType, fieldID int, label string) (any, *Warning) {
	if isMissing(raw) {
		return c.defaultFor(t), nil
	}

	switch t {
	case TypeNumeric, TypeCurrency, TypePercent:
		return c.coerceNumber(raw, fieldID, label)
	case TypeDateTime:
		return c.coerceDateTime(raw, fieldID, label)
	case TypeCheckbox:
		return c.coerceCheckbox(raw, fieldID, label)
	case TypeEmail:
		return c.coerceEmail(raw, fieldID, label)
	case TypePhone:
		return c.coercePhone(raw, fieldID, label)
	case TypeURL:
		return c.coerceURL(raw, fieldID, label)
	default:
		return stringify(raw), nil
	}
}

// defaultFor returns the per-type default used for missing input. Date
// fields deliberately default to the current timestamp rather than blank.
func (c *Coercer) defaultFor(t SemanticType) any {
	switch {
	case t.IsNumeric():
		return float64(0)
	case t == TypeCheckbox:
		return false
	case t == TypeDateTime:
		return c.now().UTC().Format(time.RFC3339)
	default:
		return ""
	}
}

func (c *Coercer) coerceNumber(raw any, fieldID int, label string) (any, *Warning) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case bool:
		if v {
			return float64(1), nil
		}
		return float64(0), nil
	}

	cleaned := numericStripper.Replace(strings.TrimSpace(stringify(raw)))
	n, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return float64(0), &Warning{
			FieldID: fieldID,
			Label:   label,
			Message: fmt.Sprintf("expected number, got %q", stringify(raw)),
		}
	}
	return n, nil
}

func (c *Coercer) coerceDateTime(raw any, fieldID int, label string) (any, *Warning) {
	switch v := raw.(type) {
	case time.Time:
		return v.UTC().Format(time.RFC3339), nil
	case float64:
		return epochToISO(v), nil
	case int:
		return epochToISO(float64(v)), nil
	case int64:
		return epochToISO(float64(v)), nil
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC().Format(time.RFC3339), nil
			}
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return epochToISO(n), nil
		}
	}

	return c.now().UTC().Format(time.RFC3339), &Warning{
		FieldID: fieldID,
		Label:   label,
		Message: fmt.Sprintf("expected date/time, got %q; substituted current timestamp", stringify(raw)),
	}
}

// epochToISO interprets a numeric epoch as milliseconds when it is too
// large to be a plausible seconds value.
func epochToISO(n float64) string {
	const millisThreshold = 1e12
	var t time.Time
	if math.Abs(n) >= millisThreshold {
		t = time.UnixMilli(int64(n))
	} else {
		t = time.Unix(int64(n), 0)
	}
	return t.UTC().Format(time.RFC3339)
}

var (
	checkboxTrue  = map[string]bool{"true": true, "yes": true, "1": true, "on": true, "checked": true}
	checkboxFalse = map[string]bool{"false": true, "no": true, "0": true, "off": true, "unchecked": true}
)

func (c *Coercer) coerceCheckbox(raw any, fieldID int, label string) (any, *Warning) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case float64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case string:
		lower := strings.ToLower(strings.TrimSpace(v))
		if checkboxTrue[lower] {
			return true, nil
		}
		if checkboxFalse[lower] {
			return false, nil
		}
	}
	return false, &Warning{
		FieldID: fieldID,
		Label:   label,
		Message: fmt.Sprintf("expected checkbox value, got %q", stringify(raw)),
	}
}

func (c *Coercer) coerceEmail(raw any, fieldID int, label string) (any, *Warning) {
	email := strings.TrimSpace(stringify(raw))
	if email == "" {
		return "", nil
	}
	if !emailPattern.MatchString(email) {
		return "", &Warning{
			FieldID: fieldID,
			Label:   label,
			Message: fmt.Sprintf("invalid email %q; value dropped", email),
		}
	}
	return email, nil
}

func (c *Coercer) coercePhone(raw any, fieldID int, label string) (any, *Warning) {
	phone := strings.TrimSpace(stringify(raw))
	if phone == "" {
		return "", nil
	}
	cleaned := phoneStripper.ReplaceAllString(phone, "")
	if len(cleaned) < 10 {
		return "", &Warning{
			FieldID: fieldID,
			Label:   label,
			Message: fmt.Sprintf("invalid phone number %q; value dropped", phone),
		}
	}
	return cleaned, nil
}

func (c *Coercer) coerceURL(raw any, fieldID int, label string) (any, *Warning) {
	s := strings.TrimSpace(stringify(raw))
	if s == "" {
		return "", nil
	}
	if !isAbsoluteURL(s) {
		return "", &Warning{
			FieldID: fieldID,
			Label:   label,
			Message: fmt.Sprintf("invalid URL %q; value dropped", s),
		}
	}
	return s, nil
}

func isAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.IsAbs() && u.Host != ""
}

func isMissing(raw any) bool {
	if raw == nil {
		return true
	}
	if s, ok := raw.(string); ok {
		return s == ""
	}
	return false
}

func stringify(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
