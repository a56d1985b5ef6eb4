// Package mapping projects an Enerflo deal document onto the flat QuickBase
// field space. The projection is driven by a declarative table (one entry
// per destination field id), a semantic type coercer, and a validator that
// cross-checks built records against the destination field catalog.
package mapping

import "strings"

// SemanticType is the destination-side data type a mapped value must
// conform to.
type SemanticType string

const (
	TypeNumeric       SemanticType = "numeric"
	TypeCurrency      SemanticType = "currency"
	TypePercent       SemanticType = "percent"
	TypeDateTime      SemanticType = "datetime"
	TypeCheckbox      SemanticType = "checkbox"
	TypeEmail         SemanticType = "email"
	TypePhone         SemanticType = "phone"
	TypeURL           SemanticType = "url"
	TypeText          SemanticType = "text"
	TypeTextMultiline SemanticType = "text_multiline"
	TypeTextChoice    SemanticType = "text_choice"
)

// IsNumeric reports whether the type holds a float64 value.
func (t SemanticType) IsNumeric() bool {
	return t == TypeNumeric || t == TypeCurrency || t == TypePercent
}

// IsTextLike reports whether the type holds a free-form string value.
func (t SemanticType) IsTextLike() bool {
	switch t {
	case TypeEmail, TypePhone, TypeURL, TypeText, TypeTextMultiline, TypeTextChoice:
		return true
	}
	return false
}

// TypeFromCatalog translates a declared type string from the catalog export
// into a SemanticType. Unrecognized declarations fall back to free text.
func TypeFromCatalog(declared string) SemanticType {
	switch strings.TrimSpace(declared) {
	case "Numeric":
		return TypeNumeric
	case "Currency":
		return TypeCurrency
	case "Percent":
		return TypePercent
	case "Date / Time", "Date":
		return TypeDateTime
	case "Checkbox":
		return TypeCheckbox
	case "Email":
		return TypeEmail
	case "Phone Number":
		return TypePhone
	case "URL":
		return TypeURL
	case "Text - Multi-line":
		return TypeTextMultiline
	case "Text - Multiple Choice":
		return TypeTextChoice
	default:
		return TypeText
	}
}

// FieldValue is one slot of a built record. Comment carries the
// human-readable label for traceability.
type FieldValue struct {
	Value   any    `json:"value"`
	Comment string `json:"comment,omitempty"`
}

// Record maps destination field ids to coerced values. Built fresh per
// webhook delivery and discarded after the upsert returns.
type Record map[int]FieldValue

// Warning is an advisory coercion or validation finding. Warnings never
// block a delivery.
type Warning struct {
	FieldID int    `json:"field_id"`
	Label   string `json:"label"`
	Message string `json:"message"`
}
