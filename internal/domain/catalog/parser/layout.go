package parser

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog"
)

// Field names a semantic column of a supplier table.
type Field string

const (
	FieldMake     Field = "make"
	FieldModel    Field = "model"
	FieldYear     Field = "year"
	FieldPartName Field = "part_name"
	FieldOEMCode  Field = "oem_code"
	FieldUnit     Field = "unit"
	FieldPrice    Field = "price"
	FieldSource   Field = "source"
)

// DefaultMinCells is the number of populated cells a table row needs before it
// is considered a catalog line.
const DefaultMinCells = 5

// Layout maps fixed table positions to row fields for one supplier.
type Layout struct {
	Name          string            `json:"name"`
	Columns       map[Field]int     `json:"columns"`
	HeaderMarkers []string          `json:"header_markers"`
	MinCells      int               `json:"min_cells,omitempty"`
	Currency      string            `json:"currency,omitempty"`
	Confusions    map[string]string `json:"confusions,omitempty"`
}

func (l Layout) minCells() int {
	if l.MinCells > 0 {
		return l.MinCells
	}
	return DefaultMinCells
}

func (l Layout) currency() string {
	if l.Currency != "" {
		return l.Currency
	}
	return catalog.DefaultCurrency
}

// column returns the trimmed cell for f, or nil when the layout has no such
// column or the cell is blank.
func (l Layout) column(cells []string, f Field) *string {
	idx, ok := l.Columns[f]
	if !ok || idx < 0 || idx >= len(cells) {
		return nil
	}
	v := strings.TrimSpace(cells[idx])
	if v == "" {
		return nil
	}
	return &v
}

// MPinesLayout is the five-column M. Pines price list:
// Make | Src | Price | CatNumDesc | Pcode.
func MPinesLayout() Layout {
	return Layout{
		Name: "m-pines",
		Columns: map[Field]int{
			FieldMake:     0,
			FieldSource:   1,
			FieldPrice:    2,
			FieldPartName: 3,
			FieldOEMCode:  4,
		},
		HeaderMarkers: []string{"PCODE", "CATNUMDESC"},
	}
}

// GenericLayout is the seven-column make/model/year list most suppliers send.
func GenericLayout() Layout {
	return Layout{
		Name: "generic-7",
		Columns: map[Field]int{
			FieldMake:     0,
			FieldModel:    1,
			FieldYear:     2,
			FieldPartName: 3,
			FieldOEMCode:  4,
			FieldUnit:     5,
			FieldPrice:    6,
		},
		HeaderMarkers: []string{"MAKE", "MODEL", "PRICE", "OEM"},
	}
}

// BuiltinLayouts returns the layouts keyed by supplier slug that ship with the binary.
func BuiltinLayouts() map[string]Layout {
	return map[string]Layout{
		"m-pines": MPinesLayout(),
		"generic": GenericLayout(),
	}
}

//go:embed layouts.schema.json
var layoutSchema []byte

const layoutSchemaURL = "layouts.schema.json"

// LayoutFile is the on-disk form of supplier layouts.
type LayoutFile struct {
	Suppliers map[string]Layout `json:"suppliers"`
}

// LoadLayouts reads and validates a layout file.
func LoadLayouts(path string) (map[string]Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read layouts file: %w", err)
	}
	return ParseLayouts(data)
}

// ParseLayouts validates data against the layout schema and decodes it.
func ParseLayouts(data []byte) (map[string]Layout, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(layoutSchemaURL, bytes.NewReader(layoutSchema)); err != nil {
		return nil, fmt.Errorf("failed to load layout schema: %w", err)
	}
	schema, err := compiler.Compile(layoutSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile layout schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid layouts JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("layouts file does not match schema: %w", err)
	}

	var file LayoutFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode layouts: %w", err)
	}
	for slug, l := range file.Suppliers {
		if l.Name == "" {
			l.Name = slug
			file.Suppliers[slug] = l
		}
	}
	return file.Suppliers, nil
}
