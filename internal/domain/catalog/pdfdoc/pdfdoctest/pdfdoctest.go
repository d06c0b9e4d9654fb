// Package pdfdoctest provides in-memory documents for extractor tests.
package pdfdoctest

import (
	"fmt"

	"github.com/FACorreiaa/parts-catalog-ingest/internal/domain/catalog/pdfdoc"
)

// Page is a canned page. Err, when set, is returned by both views; TableErr
// only by Tables.
type Page struct {
	Num       int
	TableData []pdfdoc.Table
	LineData  []string
	Err       error
	TableErr  error
}

func (p *Page) Number() int { return p.Num }

func (p *Page) Tables() ([]pdfdoc.Table, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	if p.TableErr != nil {
		return nil, p.TableErr
	}
	return p.TableData, nil
}

func (p *Page) Lines() ([]string, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	return p.LineData, nil
}

// Document serves its pages in order. OpenErr maps a page number to an error
// returned by Page, simulating a page that cannot be decoded.
type Document struct {
	Pages   []pdfdoc.Page
	OpenErr map[int]error
}

// New numbers the pages from 1 in the order given.
func New(pages ...*Page) *Document {
	d := &Document{}
	for i, p := range pages {
		if p.Num == 0 {
			p.Num = i + 1
		}
		d.Pages = append(d.Pages, p)
	}
	return d
}

func (d *Document) NumPages() int { return len(d.Pages) }

func (d *Document) Page(n int) (pdfdoc.Page, error) {
	if err, ok := d.OpenErr[n]; ok {
		return nil, err
	}
	if n < 1 || n > len(d.Pages) {
		return nil, fmt.Errorf("page %d out of range", n)
	}
	return d.Pages[n-1], nil
}

// TablePage is a page holding a single table.
func TablePage(rows ...[]string) *Page {
	return &Page{TableData: []pdfdoc.Table{rows}}
}

// TextPage is a page with no tables.
func TextPage(lines ...string) *Page {
	return &Page{LineData: lines}
}
