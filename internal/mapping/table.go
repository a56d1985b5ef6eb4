package mapping

import (
	_ "embed"
	"fmt"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed mappings.yaml
var embeddedTable []byte

// Rule maps one destination field to its source. Exactly one of Path,
// Paths, Derive, File, FileName, or JSON should be set; Path alone may
// also be absent for derive rules.
type Rule struct {
	// Field is the destination numeric field identifier.
	Field int `yaml:"field"`
	// Label is the human-readable destination field name, used in
	// warnings and diagnostics.
	Label string `yaml:"label"`
	// Type is the semantic type the extracted value is coerced to.
	Type SemanticType `yaml:"type"`

	// Path is a single dotted extraction path into the payload.
	Path string `yaml:"path,omitempty"`
	// Paths lists alternative extraction paths tried in order; the
	// first present value wins.
	Paths []string `yaml:"paths,omitempty"`
	// Derive names a registered derivation function.
	Derive string `yaml:"derive,omitempty"`
	// File selects the URL of the first file whose tag list contains
	// this value.
	File string `yaml:"file,omitempty"`
	// FileName selects the display name of the first file whose tag
	// list contains this value.
	FileName string `yaml:"fileName,omitempty"`
	// JSON serializes the first present path among these as a raw
	// JSON backup blob.
	JSON []string `yaml:"json,omitempty"`

	// Default substitutes for a missing path value before coercion.
	Default string `yaml:"default,omitempty"`
}

// Table is the ordered set of mapping rules applied to every payload.
type Table struct {
	Rules []Rule `yaml:"rules"`
}

// LoadTable parses and validates the embedded mapping table.
func LoadTable() (*Table, error) {
	return parseTable(embeddedTable)
}

func parseTable(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(err, "mapping: parse table")
	}
	if len(t.Rules) == 0 {
		return nil, eris.New("mapping: table has no rules")
	}

	seen := make(map[int]bool, len(t.Rules))
	for i, r := range t.Rules {
		if r.Field <= 0 {
			return nil, eris.New(fmt.Sprintf("mapping: rule %d has no field id", i))
		}
		if seen[r.Field] {
			return nil, eris.New(fmt.Sprintf("mapping: duplicate rule for field %d", r.Field))
		}
		seen[r.Field] = true
		if r.Derive != "" {
			if _, ok := derivations[r.Derive]; !ok {
				return nil, eris.New(fmt.Sprintf("mapping: field %d references unknown derivation %q", r.Field, r.Derive))
			}
		}
		if r.Path == "" && len(r.Paths) == 0 && r.Derive == "" && r.File == "" && r.FileName == "" && len(r.JSON) == 0 {
			return nil, eris.New(fmt.Sprintf("mapping: field %d has no source", r.Field))
		}
	}
	return &t, nil
}

// FieldIDs returns every destination field id in the table, in rule order.
func (t *Table) FieldIDs() []int {
	ids := make([]int, 0, len(t.Rules))
	for _, r := range t.Rules {
		ids = append(ids, r.Field)
	}
	return ids
}
