package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbeddedTable(t *testing.T) {
	table, err := LoadTable()
	require.NoError(t, err)
	require.NotEmpty(t, table.Rules)

	// Spot-check the anchor fields the rest of the pipeline depends on.
	byID := make(map[int]Rule, len(table.Rules))
	for _, r := range table.Rules {
		byID[r.Field] = r
	}
	assert.Equal(t, "payload.deal.id", byID[6].Path)
	assert.Equal(t, "fullName", byID[7].Derive)
	assert.Equal(t, TypeEmail, byID[10].Type)
	assert.Equal(t, "signedContractFiles", byID[22].File)
	assert.Equal(t, "adder5Quantity", byID[216].Derive)
	assert.Len(t, table.FieldIDs(), len(table.Rules))
}

func TestParseTableRejectsBadRules(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "duplicate field id",
			yaml: `rules:
  - {field: 6, label: A, type: text, path: a}
  - {field: 6, label: B, type: text, path: b}`,
		},
		{
			name: "unknown derivation",
			yaml: `rules:
  - {field: 6, label: A, type: text, derive: noSuchThing}`,
		},
		{
			name: "sourceless rule",
			yaml: `rules:
  - {field: 6, label: A, type: text}`,
		},
		{
			name: "missing field id",
			yaml: `rules:
  - {label: A, type: text, path: a}`,
		},
		{
			name: "empty table",
			yaml: `rules: []`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseTable([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}
