package parser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog"
	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog/normalizer"
	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog/pdfdoc"
)

// Extractor holds both extraction modes for one supplier layout.
type Extractor struct {
	layout   Layout
	repairer *normalizer.Repairer
	header   *headerMatcher
	logger   *slog.Logger
}

// NewExtractor creates an extractor. The layout's own confusions are merged
// into the repairer's table.
func NewExtractor(layout Layout, repairer *normalizer.Repairer, logger *slog.Logger) *Extractor {
	if repairer == nil {
		repairer = normalizer.NewRepairer(nil)
	}
	return &Extractor{
		layout:   layout,
		repairer: repairer.WithConfusions(layout.Confusions),
		header:   newHeaderMatcher(layout.HeaderMarkers),
		logger:   logger,
	}
}

// ExtractTables walks every table of every page and emits rows page by page.
// Page failures are recorded in the result and do not stop the walk.
func (e *Extractor) ExtractTables(ctx context.Context, doc pdfdoc.Document, meta catalog.Metadata, emit Emit) (*Result, error) {
	return e.walk(ctx, doc, ModeTable, meta, emit, e.tablePage)
}

type pageFunc func(doc pdfdoc.Document, n int, meta catalog.Metadata) (rows []catalog.Row, skipped int, err error)

func (e *Extractor) walk(ctx context.Context, doc pdfdoc.Document, mode Mode, meta catalog.Metadata, emit Emit, extract pageFunc) (*Result, error) {
	res := &Result{Mode: mode}
	total := doc.NumPages()

	for n := 1; n <= total; n++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		rows, skipped, err := e.safePage(extract, doc, n, meta)
		res.Pages++
		res.SkippedRows += skipped
		if err != nil {
			res.addPageError(n, err)
			e.logger.Warn("skipping page", "mode", mode, "page", n, "error", err)
			continue
		}

		if len(rows) > 0 {
			res.Rows += len(rows)
			if err := emit(ctx, n, rows); err != nil {
				return res, err
			}
		}

		if n%progressEvery == 0 {
			e.logger.Info("extraction progress",
				slog.String("mode", string(mode)),
				slog.Int("page", n),
				slog.Int("total_pages", total),
				slog.Int("rows", res.Rows),
			)
		}
	}
	return res, nil
}

// safePage turns a panic on a single page into that page's error.
func (e *Extractor) safePage(extract pageFunc, doc pdfdoc.Document, n int, meta catalog.Metadata) (rows []catalog.Row, skipped int, err error) {
	defer func() {
		if r := recover(); r != nil {
			rows, skipped, err = nil, 0, fmt.Errorf("panic: %v", r)
		}
	}()
	return extract(doc, n, meta)
}

func (e *Extractor) tablePage(doc pdfdoc.Document, n int, meta catalog.Metadata) ([]catalog.Row, int, error) {
	page, err := doc.Page(n)
	if err != nil {
		return nil, 0, err
	}
	tables, err := page.Tables()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read tables: %w", err)
	}

	var (
		rows    []catalog.Row
		skipped int
	)
	for _, table := range tables {
		for i, cells := range table {
			if i == 0 && e.header.isHeader(cells) {
				continue
			}
			row, ok := e.tableRow(n, cells, meta)
			if !ok {
				skipped++
				continue
			}
			rows = append(rows, row)
		}
	}
	return rows, skipped, nil
}

// tableRow maps one table row through the layout. ok is false for rows that
// are too sparse or carry neither a code nor a description.
func (e *Extractor) tableRow(page int, cells []string, meta catalog.Metadata) (catalog.Row, bool) {
	if populated(cells) < e.layout.minCells() {
		return catalog.Row{}, false
	}

	l := e.layout
	row := catalog.Row{
		Make:     e.repairer.RepairPtr(l.column(cells, FieldMake)),
		Model:    e.repairer.RepairPtr(l.column(cells, FieldModel)),
		PartName: e.repairer.RepairPtr(l.column(cells, FieldPartName)),
		OEMCode:  e.repairer.RepairPtr(l.column(cells, FieldOEMCode)),
		Unit:     e.repairer.RepairPtr(l.column(cells, FieldUnit)),
		Source:   e.repairer.RepairPtr(l.column(cells, FieldSource)),
		Price:    normalizer.ParsePricePtr(l.column(cells, FieldPrice)),
		RawRow:   catalog.RawRow{Page: page, Cells: append([]string(nil), cells...)},
	}
	if year := l.column(cells, FieldYear); year != nil {
		row.Year = normalizer.ParseYear(*year)
	}
	if !row.Identified() {
		return catalog.Row{}, false
	}

	finish(&row, meta, l.currency())
	return row, true
}

func populated(cells []string) int {
	n := 0
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			n++
		}
	}
	return n
}
