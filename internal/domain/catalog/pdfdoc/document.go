// Package pdfdoc reads supplier PDFs into pages of positioned text and
// recovers table structure and plain text lines from the glyph layout.
package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// ErrUnreadableDocument is returned when the bytes are not a readable PDF.
var ErrUnreadableDocument = errors.New("unreadable PDF document")

// Table is a detected table: rows of cells, "" where a column is empty.
type Table [][]string

// Document is a paged source of text. Pages are numbered from 1.
type Document interface {
	NumPages() int
	Page(n int) (Page, error)
}

// Page exposes the two views the extractors work from.
type Page interface {
	Number() int
	Tables() ([]Table, error)
	Lines() ([]string, error)
}

// Open parses the PDF in data. Page content is only decoded when a page is requested.
func Open(data []byte, cfg LayoutConfig) (doc Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("%w: %v", ErrUnreadableDocument, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
	}
	if reader.NumPage() == 0 {
		return nil, fmt.Errorf("%w: no pages", ErrUnreadableDocument)
	}
	return &pdfDocument{reader: reader, cfg: cfg}, nil
}

type pdfDocument struct {
	reader *pdf.Reader
	cfg    LayoutConfig
}

func (d *pdfDocument) NumPages() int {
	return d.reader.NumPage()
}

// Page decodes page n. A malformed content stream makes the pdf package
// panic; that is reported as an error for this page only.
func (d *pdfDocument) Page(n int) (p Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("panic decoding page %d: %v", n, r)
		}
	}()

	page := d.reader.Page(n)
	if page.V.IsNull() {
		return nil, fmt.Errorf("page %d: missing page object", n)
	}

	content := page.Content()
	glyphs := make([]Glyph, 0, len(content.Text))
	for _, t := range content.Text {
		glyphs = append(glyphs, Glyph{X: t.X, Y: t.Y, W: t.W, FontSize: t.FontSize, S: t.S})
	}
	return NewLayoutPage(n, glyphs, d.cfg), nil
}

// LayoutPage is a page whose tables and lines come from glyph positions.
type LayoutPage struct {
	number int
	lines  []textLine
	cfg    LayoutConfig
}

// NewLayoutPage runs layout analysis over glyphs.
func NewLayoutPage(number int, glyphs []Glyph, cfg LayoutConfig) *LayoutPage {
	return &LayoutPage{number: number, lines: cfg.analyze(glyphs), cfg: cfg}
}

func (p *LayoutPage) Number() int { return p.number }

func (p *LayoutPage) Tables() ([]Table, error) {
	return p.cfg.tables(p.lines), nil
}

func (p *LayoutPage) Lines() ([]string, error) {
	return renderLines(p.lines), nil
}
