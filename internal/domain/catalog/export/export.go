// Package export writes parsed catalogue rows as NDJSON, CSV or XLSX.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog"
	"github.com/FACorreiaa/parts-catalog-ingest/pkg/money"
)

type Format string

const (
	FormatNDJSON Format = "ndjson"
	FormatCSV    Format = "csv"
	FormatXLSX   Format = "xlsx"
)

const sheetName = "Catalog"

// ContentType returns the MIME type used when the export is stored.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/x-ndjson"
	}
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch ext {
	case "ndjson", "jsonl":
		return FormatNDJSON, nil
	case "csv":
		return FormatCSV, nil
	case "xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", ext)
	}
}

// Write encodes rows to w in the given format.
func Write(w io.Writer, format Format, rows []catalog.Row) error {
	switch format {
	case FormatNDJSON:
		return WriteNDJSON(w, rows)
	case FormatCSV:
		return WriteCSV(w, rows)
	case FormatXLSX:
		return WriteXLSX(w, rows)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

// WriteNDJSON writes one JSON object per row, newline terminated.
func WriteNDJSON(w io.Writer, rows []catalog.Row) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i := range rows {
		if err := enc.Encode(&rows[i]); err != nil {
			return fmt.Errorf("failed to encode row %d: %w", i, err)
		}
	}
	return nil
}

// flatRow is the tabular shape shared by CSV and XLSX.
type flatRow struct {
	SupplierSlug string `csv:"supplier_slug"`
	VersionDate  string `csv:"version_date"`
	Make         string `csv:"make"`
	Model        string `csv:"model"`
	Year         string `csv:"year"`
	PartName     string `csv:"part_name"`
	OEMCode      string `csv:"oem_code"`
	Unit         string `csv:"unit"`
	Source       string `csv:"source"`
	Price        string `csv:"price"`
	Currency     string `csv:"currency"`
	Page         int    `csv:"page"`
	RowHash      string `csv:"row_hash"`
}

var flatHeaders = []string{
	"supplier_slug", "version_date", "make", "model", "year", "part_name", "oem_code",
	"unit", "source", "price", "currency", "page", "row_hash",
}

func flatten(r catalog.Row) flatRow {
	currency := deref(r.Currency)
	if currency == "" {
		currency = catalog.DefaultCurrency
	}
	year := ""
	if r.Year != nil {
		year = strconv.Itoa(*r.Year)
	}
	return flatRow{
		SupplierSlug: r.SupplierSlug,
		VersionDate:  r.VersionDate,
		Make:         deref(r.Make),
		Model:        deref(r.Model),
		Year:         year,
		PartName:     deref(r.PartName),
		OEMCode:      deref(r.OEMCode),
		Unit:         deref(r.Unit),
		Source:       deref(r.Source),
		Price:        money.Format(r.Price, currency),
		Currency:     currency,
		Page:         r.RawRow.Page,
		RowHash:      r.RowHash,
	}
}

func (f flatRow) values() []any {
	return []any{
		f.SupplierSlug, f.VersionDate, f.Make, f.Model, f.Year, f.PartName, f.OEMCode,
		f.Unit, f.Source, f.Price, f.Currency, f.Page, f.RowHash,
	}
}

func WriteCSV(w io.Writer, rows []catalog.Row) error {
	flat := make([]*flatRow, 0, len(rows))
	for _, r := range rows {
		fr := flatten(r)
		flat = append(flat, &fr)
	}
	if err := gocsv.Marshal(flat, w); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

func WriteXLSX(w io.Writer, rows []catalog.Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]any, len(flatHeaders))
	for i, h := range flatHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := flatten(r).values()
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "B", 14)
	_ = f.SetColWidth(sheetName, "F", "F", 40)
	_ = f.SetColWidth(sheetName, "G", "G", 18)
	_ = f.SetColWidth(sheetName, "M", "M", 66)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write xlsx: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
