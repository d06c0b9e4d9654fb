package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog/normalizer"
)

func TestParseLayouts_Valid(t *testing.T) {
	data := []byte(`{
		"suppliers": {
			"auto-parts-il": {
				"columns": {"oem_code": 0, "part_name": 1, "price": 2, "make": 3, "model": 4},
				"header_markers": ["Code", "מחיר"],
				"min_cells": 4,
				"confusions": {"X1": "XL"}
			},
			"m-pines": {
				"name": "M. Pines",
				"columns": {"make": 0, "source": 1, "price": 2, "part_name": 3, "oem_code": 4}
			}
		}
	}`)

	layouts, err := ParseLayouts(data)
	require.NoError(t, err)
	require.Len(t, layouts, 2)

	l := layouts["auto-parts-il"]
	assert.Equal(t, "auto-parts-il", l.Name)
	assert.Equal(t, 0, l.Columns[FieldOEMCode])
	assert.Equal(t, 4, l.minCells())
	assert.Equal(t, "ILS", l.currency())
	assert.Equal(t, map[string]string{"X1": "XL"}, l.Confusions)

	assert.Equal(t, "M. Pines", layouts["m-pines"].Name)
	assert.Equal(t, DefaultMinCells, layouts["m-pines"].minCells())
}

func TestParseLayouts_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"no suppliers", `{}`},
		{"empty suppliers", `{"suppliers": {}}`},
		{"unknown field", `{"suppliers": {"a": {"columns": {"colour": 1}}}}`},
		{"negative index", `{"suppliers": {"a": {"columns": {"price": -1}}}}`},
		{"bad currency", `{"suppliers": {"a": {"columns": {"price": 1}, "currency": "shekel"}}}`},
		{"missing columns", `{"suppliers": {"a": {"min_cells": 3}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLayouts([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestLoadLayouts_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layouts.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"suppliers": {"x": {"columns": {"part_name": 0}}}}`), 0o600))

	layouts, err := LoadLayouts(path)
	require.NoError(t, err)
	assert.Contains(t, layouts, "x")

	_, err = LoadLayouts(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLayout_Column(t *testing.T) {
	l := MPinesLayout()
	cells := []string{" Toyota ", "", "150"}

	assert.Equal(t, "Toyota", *l.column(cells, FieldMake))
	assert.Nil(t, l.column(cells, FieldSource), "blank cell")
	assert.Nil(t, l.column(cells, FieldOEMCode), "index past end of row")
	assert.Nil(t, l.column(cells, FieldYear), "not in layout")
}

func TestHeaderMatcher(t *testing.T) {
	h := newHeaderMatcher([]string{"Pcode", " catnumdesc "})

	assert.True(t, h.isHeader([]string{"Make", "Src", "Price", "Desc", "Pcode"}))
	assert.True(t, h.isHeader([]string{"CatNumDesc"}))
	assert.False(t, h.isHeader([]string{"Toyota", "X", "150", "Brake Pad", "P001"}))

	none := newHeaderMatcher(nil)
	assert.False(t, none.isHeader([]string{"Pcode"}))
}

func TestHeaderMatcher_WholeCellOnly(t *testing.T) {
	h := newHeaderMatcher(GenericLayout().HeaderMarkers)

	tests := []struct {
		name  string
		cells []string
		want  bool
	}{
		{"header row", []string{"Make", "Model", "Year", "Description", "OEM", "Unit", "Price"}, true},
		{"label punctuation and spacing", []string{" price: "}, true},
		{"marker inside a data cell", []string{"Tesla", "Model 3", "2020", "Model 3 door trim", "T100", "pc", "250"}, false},
		{"marker as a word prefix", []string{"Makeup mirror", "OEM-55", "Pricey"}, false},
		{"markers split across cells", []string{"MA", "KE"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, h.isHeader(tt.cells))
		})
	}
}

// ============================================================================
// Registry
// ============================================================================

func TestRegistry_Lookup(t *testing.T) {
	r := NewLayoutRegistry(BuiltinLayouts(), normalizer.NewRepairer(nil), testLogger())

	s, err := r.Lookup("m-pines")
	require.NoError(t, err)
	require.IsType(t, &LayoutParser{}, s)
	assert.Equal(t, "m-pines", s.(*LayoutParser).Layout().Name)

	assert.Equal(t, []string{"generic", "m-pines"}, r.Slugs())
}

func TestRegistry_UnknownSupplierSuggests(t *testing.T) {
	r := NewLayoutRegistry(BuiltinLayouts(), normalizer.NewRepairer(nil), testLogger())

	tests := []struct {
		slug       string
		suggestion string
	}{
		{"mpines", `did you mean "m-pines"?`},
		{"M-PINES", `did you mean "m-pines"?`},
		{"generik", `did you mean "generic"?`},
		{"zzzz", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			_, err := r.Lookup(tt.slug)
			require.ErrorIs(t, err, ErrUnknownSupplier)
			if tt.suggestion == "" {
				assert.NotContains(t, err.Error(), "did you mean")
				return
			}
			assert.Contains(t, err.Error(), tt.suggestion)
		})
	}
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	r := NewRegistry()
	first := NewLayoutParser(MPinesLayout(), nil, testLogger())
	second := NewLayoutParser(GenericLayout(), nil, testLogger())

	r.Register("acme", first)
	r.Register("acme", second)

	s, err := r.Lookup("acme")
	require.NoError(t, err)
	assert.Same(t, second, s)
}
