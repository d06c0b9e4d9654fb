package parser

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog"
	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog/normalizer"
	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog/pdfdoc"
)

var fieldGap = regexp.MustCompile(`\s{2,}`)

// ExtractText reads every page as plain lines. Callers use it only after
// ExtractTables produced no rows for the document.
func (e *Extractor) ExtractText(ctx context.Context, doc pdfdoc.Document, meta catalog.Metadata, emit Emit) (*Result, error) {
	return e.walk(ctx, doc, ModeText, meta, emit, e.textPage)
}

func (e *Extractor) textPage(doc pdfdoc.Document, n int, meta catalog.Metadata) ([]catalog.Row, int, error) {
	page, err := doc.Page(n)
	if err != nil {
		return nil, 0, err
	}
	lines, err := page.Lines()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read lines: %w", err)
	}

	var (
		rows    []catalog.Row
		skipped int
	)
	for _, line := range lines {
		row, ok := e.textRow(n, line, meta)
		if !ok {
			skipped++
			continue
		}
		rows = append(rows, row)
	}
	return rows, skipped, nil
}

// textRow splits a line on wide gaps. The last field is the price when it
// parses as one; the rest is the description.
func (e *Extractor) textRow(page int, line string, meta catalog.Metadata) (catalog.Row, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return catalog.Row{}, false
	}

	fields := fieldGap.Split(line, -1)
	desc := fields
	price := normalizer.ParsePrice(fields[len(fields)-1])
	if price != nil {
		desc = fields[:len(fields)-1]
	}

	name := e.repairer.Repair(strings.Join(desc, " "))
	if name == "" {
		return catalog.Row{}, false
	}

	row := catalog.Row{
		PartName: &name,
		Price:    price,
		RawRow:   catalog.RawRow{Page: page, Line: line},
	}
	finish(&row, meta, e.layout.currency())
	return row, true
}
