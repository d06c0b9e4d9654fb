package parser

import (
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// cellSep delimits cells in the text the matcher scans. Patterns are wrapped
// in it too, so a marker only matches a whole cell.
const cellSep = "\x1f"

// headerMatcher recognises a table's header row: some cell, trimmed and
// case-folded, equals one of the layout's marker tokens. Data cells that
// merely contain a marker ("Model 3 door trim") do not count.
type headerMatcher struct {
	matcher *ahocorasick.Matcher
}

func newHeaderMatcher(markers []string) *headerMatcher {
	patterns := make([][]byte, 0, len(markers))
	for _, m := range markers {
		if m = normalizeHeaderCell(m); m != "" {
			patterns = append(patterns, []byte(cellSep+m+cellSep))
		}
	}
	if len(patterns) == 0 {
		return &headerMatcher{}
	}
	return &headerMatcher{matcher: ahocorasick.NewMatcher(patterns)}
}

func (h *headerMatcher) isHeader(cells []string) bool {
	if h.matcher == nil {
		return false
	}
	var b strings.Builder
	b.WriteString(cellSep)
	for _, c := range cells {
		b.WriteString(normalizeHeaderCell(c))
		b.WriteString(cellSep)
	}
	return len(h.matcher.MatchThreadSafe([]byte(b.String()))) > 0
}

// normalizeHeaderCell upper-cases, collapses inner whitespace and drops
// trailing label punctuation ("Price:" and "PRICE" compare equal).
func normalizeHeaderCell(s string) string {
	s = strings.Join(strings.Fields(strings.ToUpper(s)), " ")
	return strings.TrimRight(s, ".:")
}
