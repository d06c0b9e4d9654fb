package pdfdoc

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"
)

// Glyph is a positioned run of text as the content stream draws it.
// Y grows upwards, as in PDF user space.
type Glyph struct {
	X, Y     float64
	W        float64
	FontSize float64
	S        string
}

// LayoutConfig tunes how glyphs are grouped into rows, cells and tables.
type LayoutConfig struct {
	RowTolerance  float64 // Y distance still treated as the same baseline
	WordGapFactor float64 // gap above FontSize*factor starts a new word
	CellGap       float64 // gap at or above this starts a new cell
	BandTolerance float64 // slack when merging cell extents into column bands
	MinTableRows  int
	MinTableCells int
}

// DefaultLayoutConfig suits the supplier price lists seen so far.
func DefaultLayoutConfig() LayoutConfig {
	return LayoutConfig{
		RowTolerance:  3.0,
		WordGapFactor: 0.3,
		CellGap:       10.0,
		BandTolerance: 1.0,
		MinTableRows:  2,
		MinTableCells: 2,
	}
}

type cell struct {
	x0, x1 float64
	text   string
}

type textLine struct {
	y     float64
	cells []cell
}

// analyze turns glyphs into lines of cells, top of the page first.
func (c LayoutConfig) analyze(glyphs []Glyph) []textLine {
	var lines []textLine
	for _, row := range c.groupRows(glyphs) {
		cells := c.buildCells(row)
		if len(cells) == 0 {
			continue
		}
		lines = append(lines, textLine{y: row[0].Y, cells: cells})
	}
	return lines
}

func (c LayoutConfig) groupRows(glyphs []Glyph) [][]Glyph {
	type bucket struct {
		yMin, yMax float64
		glyphs     []Glyph
	}

	var buckets []bucket
	for _, g := range glyphs {
		if strings.TrimSpace(g.S) == "" {
			continue
		}
		placed := false
		for i := range buckets {
			b := &buckets[i]
			if g.Y >= b.yMin-c.RowTolerance && g.Y <= b.yMax+c.RowTolerance {
				b.glyphs = append(b.glyphs, g)
				b.yMin = math.Min(b.yMin, g.Y)
				b.yMax = math.Max(b.yMax, g.Y)
				placed = true
				break
			}
		}
		if !placed {
			buckets = append(buckets, bucket{yMin: g.Y, yMax: g.Y, glyphs: []Glyph{g}})
		}
	}

	sort.SliceStable(buckets, func(i, j int) bool {
		return buckets[i].yMax > buckets[j].yMax
	})

	rows := make([][]Glyph, len(buckets))
	for i, b := range buckets {
		rows[i] = b.glyphs
	}
	return rows
}

func (c LayoutConfig) buildCells(row []Glyph) []cell {
	sort.SliceStable(row, func(i, j int) bool { return row[i].X < row[j].X })

	var (
		cells []cell
		cur   *cell
		words strings.Builder
	)
	flush := func() {
		if cur == nil {
			return
		}
		cur.text = strings.Join(strings.Fields(words.String()), " ")
		if cur.text != "" {
			cells = append(cells, *cur)
		}
		cur = nil
		words.Reset()
	}

	for _, g := range row {
		end := g.X + glyphWidth(g)
		if cur == nil {
			cur = &cell{x0: g.X, x1: end}
			words.WriteString(g.S)
			continue
		}

		gap := g.X - cur.x1
		switch {
		case gap >= c.CellGap:
			flush()
			cur = &cell{x0: g.X, x1: end}
			words.WriteString(g.S)
			continue
		case gap > c.WordGapFactor*g.FontSize:
			words.WriteByte(' ')
		}
		words.WriteString(g.S)
		cur.x1 = math.Max(cur.x1, end)
	}
	flush()
	return cells
}

// glyphWidth guesses half an em per character when the font gave no width.
func glyphWidth(g Glyph) float64 {
	if g.W > 0 {
		return g.W
	}
	return 0.5 * g.FontSize * float64(utf8.RuneCountInString(g.S))
}

// tables finds runs of consecutive multi-cell lines and lays their cells out
// on shared column bands.
func (c LayoutConfig) tables(lines []textLine) []Table {
	var (
		out []Table
		run []textLine
	)
	closeRun := func() {
		if len(run) >= c.MinTableRows {
			out = append(out, c.alignRun(run))
		}
		run = nil
	}

	for _, l := range lines {
		if len(l.cells) >= c.MinTableCells {
			run = append(run, l)
			continue
		}
		closeRun()
	}
	closeRun()
	return out
}

type band struct{ x0, x1 float64 }

func (c LayoutConfig) alignRun(run []textLine) Table {
	var extents []band
	for _, l := range run {
		for _, cl := range l.cells {
			extents = append(extents, band{cl.x0, cl.x1})
		}
	}
	sort.Slice(extents, func(i, j int) bool { return extents[i].x0 < extents[j].x0 })

	bands := []band{extents[0]}
	for _, e := range extents[1:] {
		last := &bands[len(bands)-1]
		if e.x0 <= last.x1+c.BandTolerance {
			last.x1 = math.Max(last.x1, e.x1)
			continue
		}
		bands = append(bands, e)
	}

	table := make(Table, 0, len(run))
	for _, l := range run {
		row := make([]string, len(bands))
		for _, cl := range l.cells {
			idx := bandIndex(bands, (cl.x0+cl.x1)/2)
			if row[idx] != "" {
				row[idx] += " " + cl.text
			} else {
				row[idx] = cl.text
			}
		}
		table = append(table, row)
	}
	return table
}

func bandIndex(bands []band, x float64) int {
	for i, b := range bands {
		if x <= b.x1 {
			return i
		}
	}
	return len(bands) - 1
}

// renderLines joins words with one space and cells with two, so a split on
// runs of whitespace recovers the cells.
func renderLines(lines []textLine) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		parts := make([]string, len(l.cells))
		for i, cl := range l.cells {
			parts[i] = cl.text
		}
		out = append(out, strings.Join(parts, "  "))
	}
	return out
}
