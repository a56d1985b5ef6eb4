package mapping

import (
	"fmt"
	"math"
	"time"

	"github.com/sells-group/dealsync/internal/catalog"
)

// Validate checks a built record against the destination field catalog
// before it is written. Errors are blocking: an unknown field id or a
// value whose runtime type contradicts the catalog's declared type would
// be rejected by the destination API wholesale, so the caller must not
// proceed. Type drift on checkbox and format problems on email, phone,
// and URL fields are tolerated by the destination and surface as
// warnings only.
func Validate(rec Record, cat *catalog.Catalog) ([]string, []Warning) {
	var errs []string
	var warnings []Warning

	for id, fv := range rec {
		field, ok := cat.Lookup(id)
		if !ok {
			errs = append(errs, fmt.Sprintf("field %d (%s): not in catalog", id, fv.Comment))
			continue
		}

		switch t := TypeFromCatalog(field.Type); t {
		case TypeNumeric, TypeCurrency, TypePercent:
			n, ok := fv.Value.(float64)
			if !ok {
				errs = append(errs, fmt.Sprintf("field %d (%s): expected number, got %T", id, fv.Comment, fv.Value))
			} else if math.IsNaN(n) || math.IsInf(n, 0) {
				errs = append(errs, fmt.Sprintf("field %d (%s): number is not finite", id, fv.Comment))
			}
		case TypeDateTime:
			s, ok := fv.Value.(string)
			if !ok {
				errs = append(errs, fmt.Sprintf("field %d (%s): expected date string, got %T", id, fv.Comment, fv.Value))
				continue
			}
			if _, err := time.Parse(time.RFC3339, s); err != nil {
				errs = append(errs, fmt.Sprintf("field %d (%s): unparseable date %q", id, fv.Comment, s))
			}
		case TypeCheckbox:
			if _, ok := fv.Value.(bool); !ok {
				warnings = append(warnings, Warning{
					FieldID: id,
					Label:   fv.Comment,
					Message: fmt.Sprintf("expected boolean, got %T", fv.Value),
				})
			}
		case TypeEmail:
			warnings = appendFormatWarning(warnings, id, fv, "email", func(s string) bool {
				return emailPattern.MatchString(s)
			})
		case TypePhone:
			warnings = appendFormatWarning(warnings, id, fv, "phone number", func(s string) bool {
				return len(phoneStripper.ReplaceAllString(s, "")) >= 10
			})
		case TypeURL:
			warnings = appendFormatWarning(warnings, id, fv, "URL", isAbsoluteURL)
		}
	}
	return errs, warnings
}

// appendFormatWarning flags a malformed string value. Empty strings pass;
// the coercer already dropped what it could not salvage.
func appendFormatWarning(warnings []Warning, id int, fv FieldValue, kind string, valid func(string) bool) []Warning {
	s, ok := fv.Value.(string)
	if !ok {
		return append(warnings, Warning{
			FieldID: id,
			Label:   fv.Comment,
			Message: fmt.Sprintf("expected %s string, got %T", kind, fv.Value),
		})
	}
	if s != "" && !valid(s) {
		return append(warnings, Warning{
			FieldID: id,
			Label:   fv.Comment,
			Message: fmt.Sprintf("malformed %s %q", kind, s),
		})
	}
	return warnings
}
