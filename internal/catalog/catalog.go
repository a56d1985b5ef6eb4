// Package catalog loads the destination field catalog: the schema export
// describing every QuickBase field slot this service may write. The catalog
// is loaded once at startup and is read-only afterwards.
package catalog

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Field describes one destination field slot.
type Field struct {
	Label        string
	Type         string // declared semantic type, e.g. "Numeric", "Date / Time"
	Relationship string // non-empty when the field participates in a lookup relationship
}

// Catalog indexes destination fields by numeric field id.
type Catalog struct {
	fields map[int]Field
}

// New builds a catalog from an explicit field map. Used by tests and by
// callers that already hold parsed rows.
func New(fields map[int]Field) *Catalog {
	return &Catalog{fields: fields}
}

// Lookup returns the field definition for id.
func (c *Catalog) Lookup(id int) (Field, bool) {
	f, ok := c.fields[id]
	return f, ok
}

// Len returns the number of fields in the catalog.
func (c *Catalog) Len() int {
	return len(c.fields)
}

// IDs returns all field ids in ascending order.
func (c *Catalog) IDs() []int {
	ids := make([]int, 0, len(c.fields))
	for id := range c.fields {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Load reads a catalog export, dispatching on the file extension
// (.csv or .xlsx).
func Load(path string) (*Catalog, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return LoadXLSX(path)
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "catalog: open csv")
		}
		defer f.Close()
		return LoadCSV(f)
	default:
		return nil, eris.Errorf("catalog: unsupported export format %q", filepath.Ext(path))
	}
}

// LoadCSV parses a CSV export with columns label,type,relationship,fieldId.
// Rows without a numeric field id (such as a header row) are skipped.
func LoadCSV(r io.Reader) (*Catalog, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	fields := make(map[int]Field)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "catalog: read csv row")
		}
		if f, id, ok := parseRow(row); ok {
			fields[id] = f
		}
	}

	if len(fields) == 0 {
		return nil, eris.New("catalog: export contains no field definitions")
	}
	return &Catalog{fields: fields}, nil
}

// LoadXLSX parses an XLSX export whose first sheet carries the same
// label,type,relationship,fieldId columns as the CSV flavor.
func LoadXLSX(path string) (*Catalog, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("catalog: xlsx export has no sheets")
	}

	fields := make(map[int]Field)
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for i, cell := range row.Cells {
			cells[i] = cell.String()
		}
		if fd, id, ok := parseRow(cells); ok {
			fields[id] = fd
		}
	}

	if len(fields) == 0 {
		return nil, eris.New("catalog: export contains no field definitions")
	}
	return &Catalog{fields: fields}, nil
}

func parseRow(row []string) (Field, int, bool) {
	if len(row) < 4 {
		return Field{}, 0, false
	}
	id, err := strconv.Atoi(strings.TrimSpace(row[3]))
	if err != nil {
		return Field{}, 0, false
	}
	return Field{
		Label:        strings.TrimSpace(row[0]),
		Type:         strings.TrimSpace(row[1]),
		Relationship: strings.TrimSpace(row[2]),
	}, id, true
}
