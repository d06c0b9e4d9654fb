// Package catalog holds the row and supplier types shared by the extraction
// pipeline and the store collaborators.
package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// VersionDateLayout is the calendar date format of a catalog edition.
const VersionDateLayout = "2006-01-02"

// DefaultCurrency is what supplier price lists are quoted in unless a layout says otherwise.
const DefaultCurrency = "ILS"

// ErrMissingMetadata is returned when caller-supplied run metadata is incomplete.
var ErrMissingMetadata = errors.New("missing catalog metadata")

// Supplier is the identity every catalog row points at.
type Supplier struct {
	ID   uuid.UUID `json:"id"`
	Slug string    `json:"slug"`
	Name string    `json:"name"`
	Type string    `json:"type"`
}

// RawRow is the diagnostic payload kept next to each row. It is never read back.
type RawRow struct {
	Page  int      `json:"page"`
	Cells []string `json:"cells,omitempty"`
	Line  string   `json:"line,omitempty"`
}

// Row is one normalized part/price record.
type Row struct {
	SupplierID   uuid.UUID `json:"supplier_id"`
	SupplierSlug string    `json:"supplier_slug"`
	VersionDate  string    `json:"version_date"`
	SourceURL    string    `json:"source_url"`

	Make     *string  `json:"make"`
	Model    *string  `json:"model"`
	Year     *int     `json:"year"`
	PartName *string  `json:"part_name"`
	OEMCode  *string  `json:"oem_code"`
	Unit     *string  `json:"unit"`
	Source   *string  `json:"source"`
	Price    *float64 `json:"price"`
	Currency *string  `json:"currency"`

	RawRow  RawRow `json:"raw_row"`
	RowHash string `json:"row_hash"`
}

// Identified reports whether the row carries a part code or a description.
// Rows without either are page furniture.
func (r *Row) Identified() bool {
	return r.OEMCode != nil || r.PartName != nil
}

// Metadata is attached to every row of a run.
type Metadata struct {
	SupplierSlug string
	SupplierName string
	VersionDate  string
	SourceURL    string
}

// Validate checks the required fields are present and the version date is a calendar date.
func (m Metadata) Validate() error {
	var missing []string
	if strings.TrimSpace(m.SupplierSlug) == "" {
		missing = append(missing, "supplier slug")
	}
	if strings.TrimSpace(m.VersionDate) == "" {
		missing = append(missing, "version date")
	}
	if strings.TrimSpace(m.SourceURL) == "" {
		missing = append(missing, "source path")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingMetadata, strings.Join(missing, ", "))
	}
	if _, err := time.Parse(VersionDateLayout, m.VersionDate); err != nil {
		return fmt.Errorf("invalid version date %q: expected YYYY-MM-DD", m.VersionDate)
	}
	return nil
}

// DisplayName falls back to the slug when no supplier name was configured.
func (m Metadata) DisplayName() string {
	if m.SupplierName != "" {
		return m.SupplierName
	}
	return m.SupplierSlug
}
