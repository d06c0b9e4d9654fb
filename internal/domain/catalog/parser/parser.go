// Package parser extracts catalog rows from supplier PDFs. Table mode reads
// detected tables through a supplier layout; text mode is the fallback for
// documents where no table rows come out.
package parser

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog"
	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog/normalizer"
	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog/pdfdoc"
)

// progressEvery is how often (in pages) extraction progress is logged.
const progressEvery = 100

// Mode is the extraction strategy that produced a document's rows.
type Mode string

const (
	ModeTable Mode = "table"
	ModeText  Mode = "text"
)

// Emit receives the rows of one page. An error stops extraction and is
// returned to the caller unchanged.
type Emit func(ctx context.Context, page int, rows []catalog.Row) error

// PageError records a page that could not be extracted.
type PageError struct {
	Page int
	Mode Mode
	Err  error
}

func (e PageError) Error() string {
	return fmt.Sprintf("page %d: %v", e.Page, e.Err)
}

func (e PageError) Unwrap() error { return e.Err }

// Result summarises one extraction pass.
type Result struct {
	Mode        Mode
	Pages       int
	Rows        int
	SkippedRows int
	PageErrors  []PageError
	// TableErrors keeps the table pass's page errors when the document fell
	// back to text mode.
	TableErrors []PageError
}

// PagesFailed is the number of pages skipped because of an error.
func (r *Result) PagesFailed() int {
	return len(r.PageErrors)
}

func (r *Result) addPageError(page int, err error) {
	r.PageErrors = append(r.PageErrors, PageError{Page: page, Mode: r.Mode, Err: err})
}

// Opener turns raw bytes into a document.
type Opener func(data []byte) (pdfdoc.Document, error)

// OpenPDF opens data with the default layout analysis.
func OpenPDF(data []byte) (pdfdoc.Document, error) {
	return pdfdoc.Open(data, pdfdoc.DefaultLayoutConfig())
}

// LayoutParser is the extraction strategy for suppliers described by a Layout.
type LayoutParser struct {
	extractor *Extractor
	open      Opener
	logger    *slog.Logger
}

// NewLayoutParser creates a parser for one supplier layout.
func NewLayoutParser(layout Layout, repairer *normalizer.Repairer, logger *slog.Logger) *LayoutParser {
	return &LayoutParser{
		extractor: NewExtractor(layout, repairer, logger),
		open:      OpenPDF,
		logger:    logger,
	}
}

// WithOpener replaces how documents are opened.
func (p *LayoutParser) WithOpener(open Opener) *LayoutParser {
	p.open = open
	return p
}

// Layout returns the supplier layout this parser applies.
func (p *LayoutParser) Layout() Layout {
	return p.extractor.layout
}

// Open opens data as a document. Failure here is a document-level error.
func (p *LayoutParser) Open(data []byte) (pdfdoc.Document, error) {
	doc, err := p.open(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	return doc, nil
}

// Parse opens data and extracts its rows, see ParseDocument.
func (p *LayoutParser) Parse(ctx context.Context, data []byte, meta catalog.Metadata, emit Emit) (*Result, error) {
	doc, err := p.Open(data)
	if err != nil {
		return nil, err
	}
	return p.ParseDocument(ctx, doc, meta, emit)
}

// ParseDocument runs table mode over the whole document and, only if that
// produced no rows at all, text mode. Both modes are never mixed within one
// document.
func (p *LayoutParser) ParseDocument(ctx context.Context, doc pdfdoc.Document, meta catalog.Metadata, emit Emit) (*Result, error) {
	res, err := p.extractor.ExtractTables(ctx, doc, meta, emit)
	if err != nil || res.Rows > 0 {
		return res, err
	}

	p.logger.Info("no table rows found, falling back to text mode",
		"supplier", meta.SupplierSlug,
		"pages", res.Pages,
		"page_errors", res.PagesFailed(),
	)
	text, err := p.extractor.ExtractText(ctx, doc, meta, emit)
	if text != nil {
		text.TableErrors = res.PageErrors
	}
	return text, err
}

// Collect runs s and gathers every emitted row. Only for documents small
// enough to hold in memory.
func Collect(ctx context.Context, s Strategy, data []byte, meta catalog.Metadata) ([]catalog.Row, *Result, error) {
	var rows []catalog.Row
	res, err := s.Parse(ctx, data, meta, func(_ context.Context, _ int, page []catalog.Row) error {
		rows = append(rows, page...)
		return nil
	})
	return rows, res, err
}

// finish attaches run metadata and the content hash. Hashed fields are not
// modified afterwards; SupplierID is outside the hash and is set by the writer.
func finish(row *catalog.Row, meta catalog.Metadata, currency string) {
	row.SupplierSlug = meta.SupplierSlug
	row.VersionDate = meta.VersionDate
	row.SourceURL = meta.SourceURL
	row.Currency = &currency
	row.RowHash = normalizer.RowHash(normalizer.HashFields{
		VersionDate:  row.VersionDate,
		SupplierSlug: row.SupplierSlug,
		Make:         row.Make,
		Model:        row.Model,
		Year:         row.Year,
		PartName:     row.PartName,
		OEMCode:      row.OEMCode,
		Unit:         row.Unit,
		Price:        row.Price,
	})
}
