package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/dealsync/internal/catalog"
)

func testCatalog() *catalog.Catalog {
	return catalog.New(map[int]catalog.Field{
		6:  {Label: "Enerflo Deal ID", Type: "Text"},
		10: {Label: "Customer Email", Type: "Email"},
		13: {Label: "Submission Date", Type: "Date / Time"},
		14: {Label: "System Size kW", Type: "Numeric"},
		21: {Label: "Gross Cost", Type: "Currency"},
		41: {Label: "Has Signed Contract", Type: "Checkbox"},
	})
}

func TestValidateBlockingErrors(t *testing.T) {
	cat := testCatalog()

	tests := []struct {
		name string
		rec  Record
	}{
		{
			name: "unknown field id",
			rec:  Record{999: {Value: "x", Comment: "Mystery"}},
		},
		{
			name: "string in numeric slot",
			rec:  Record{14: {Value: "9.2", Comment: "System Size kW"}},
		},
		{
			name: "bool in currency slot",
			rec:  Record{21: {Value: true, Comment: "Gross Cost"}},
		},
		{
			name: "unparseable date",
			rec:  Record{13: {Value: "yesterday", Comment: "Submission Date"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs, _ := Validate(tt.rec, cat)
			assert.NotEmpty(t, errs)
		})
	}
}

func TestValidateAdvisoryWarnings(t *testing.T) {
	cat := testCatalog()

	rec := Record{
		41: {Value: "yes", Comment: "Has Signed Contract"},
		10: {Value: "not-an-email", Comment: "Customer Email"},
	}

	errs, warnings := Validate(rec, cat)
	assert.Empty(t, errs, "type drift and format problems must not block")
	assert.Len(t, warnings, 2)
}

func TestValidateCleanRecordPasses(t *testing.T) {
	cat := testCatalog()

	rec := Record{
		6:  {Value: "D1", Comment: "Enerflo Deal ID"},
		10: {Value: "jane@example.com", Comment: "Customer Email"},
		13: {Value: "2025-06-15T12:00:00Z", Comment: "Submission Date"},
		14: {Value: 9.2, Comment: "System Size kW"},
		21: {Value: float64(30000), Comment: "Gross Cost"},
		41: {Value: true, Comment: "Has Signed Contract"},
	}

	errs, warnings := Validate(rec, cat)
	assert.Empty(t, errs)
	assert.Empty(t, warnings)
}

func TestValidateEmptyContactStringsPass(t *testing.T) {
	cat := testCatalog()

	rec := Record{10: {Value: "", Comment: "Customer Email"}}
	errs, warnings := Validate(rec, cat)
	assert.Empty(t, errs)
	assert.Empty(t, warnings)
}
