// Package spreadsheet turns an uploaded valorized-schedule workbook into
// line items plus row-level diagnostics.
package spreadsheet

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Unmapped marks an optional column the template does not provide.
const Unmapped = -1

// ColumnMapping tells the reader which 0-based column holds each field.
// The source template repeats and mislabels header names, so columns are
// read by position, never by header text.
type ColumnMapping struct {
	Name string `yaml:"name" validate:"required"`

	// Sheet is the worksheet to read; empty means the first one.
	Sheet string `yaml:"sheet"`

	HeaderRows       int `yaml:"header_rows" validate:"gte=0,lte=20"`
	InternalCode     int `yaml:"internal_code" validate:"gte=0"`
	HierarchicalCode int `yaml:"hierarchical_code" validate:"gte=0"`
	Description      int `yaml:"description" validate:"gte=0"`
	Unit             int `yaml:"unit" validate:"gte=-1"`
	Quantity         int `yaml:"quantity" validate:"gte=0"`
	UnitPrice        int `yaml:"unit_price" validate:"gte=0"`
	TotalPrice       int `yaml:"total_price" validate:"gte=-1"`
	StartDate        int `yaml:"start_date" validate:"gte=-1"`
	EndDate          int `yaml:"end_date" validate:"gte=-1"`
}

// DefaultColumnMapping is the layout of the known source template:
// B internal code, D hierarchical code, E description, F unit, G quantity,
// H unit price, I total (ignored for computation), K start, L end.
func DefaultColumnMapping() ColumnMapping {
	return ColumnMapping{
		Name:             "cronograma-valorizado",
		HeaderRows:       1,
		InternalCode:     1,
		HierarchicalCode: 3,
		Description:      4,
		Unit:             5,
		Quantity:         6,
		UnitPrice:        7,
		TotalPrice:       8,
		StartDate:        10,
		EndDate:          11,
	}
}

var mappingValidate = validator.New()

// LoadColumnMapping reads a YAML template file. Fields absent from the file
// keep their DefaultColumnMapping value.
func LoadColumnMapping(path string) (ColumnMapping, error) {
	m := DefaultColumnMapping()
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("read column mapping: %w", err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse column mapping %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return m, fmt.Errorf("invalid column mapping %s: %w", path, err)
	}
	return m, nil
}

// Validate checks index ranges and that no two fields share a column.
func (m ColumnMapping) Validate() error {
	if err := mappingValidate.Struct(m); err != nil {
		return err
	}
	seen := make(map[int]string)
	for _, c := range m.columns() {
		if c.index == Unmapped {
			continue
		}
		if other, ok := seen[c.index]; ok {
			return fmt.Errorf("column %d is mapped to both %s and %s", c.index, other, c.field)
		}
		seen[c.index] = c.field
	}
	return nil
}

// RequiredWidth is the minimum number of columns a header row must span for
// the mandatory fields to be addressable.
func (m ColumnMapping) RequiredWidth() int {
	width := 0
	for _, idx := range []int{m.InternalCode, m.HierarchicalCode, m.Description, m.Quantity, m.UnitPrice} {
		if idx+1 > width {
			width = idx + 1
		}
	}
	return width
}

type mappedColumn struct {
	field string
	index int
}

func (m ColumnMapping) columns() []mappedColumn {
	return []mappedColumn{
		{"internal_code", m.InternalCode},
		{"hierarchical_code", m.HierarchicalCode},
		{"description", m.Description},
		{"unit", m.Unit},
		{"quantity", m.Quantity},
		{"unit_price", m.UnitPrice},
		{"total_price", m.TotalPrice},
		{"start_date", m.StartDate},
		{"end_date", m.EndDate},
	}
}
