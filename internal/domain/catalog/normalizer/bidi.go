package normalizer

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	// "910-51" as extracted from a right-to-left cell; each group is mirrored.
	mirroredCodePattern = regexp.MustCompile(`\b(\d{3})-(\d{2})\b`)
	// A year/code prefix such as "15- " in front of a Hebrew description.
	yearPrefixPattern = regexp.MustCompile(`^\d{2}-\s`)
	bareYearToken     = regexp.MustCompile(`^\d{2}-$`)
)

const hebrewPunctuation = `.,:;'"-()/!?`

// canonicalAbbreviations are abbreviations that show up in either character
// order depending on how the cell was extracted.
var canonicalAbbreviations = []string{"שמ'", "ים'", "קד'", "אח'"}

// DefaultConfusions maps both character orders of each known abbreviation to
// its canonical spelling.
func DefaultConfusions() map[string]string {
	m := make(map[string]string, len(canonicalAbbreviations)*2)
	for _, canonical := range canonicalAbbreviations {
		m[canonical] = canonical
		m[reverseText(canonical)] = canonical
	}
	return m
}

// Repairer restores logical order to Hebrew text that came out of the PDF in
// visual order.
type Repairer struct {
	confusions map[string]string
}

// NewRepairer builds a repairer with the given confusion table.
// A nil table means DefaultConfusions.
func NewRepairer(confusions map[string]string) *Repairer {
	if confusions == nil {
		confusions = DefaultConfusions()
	}
	return &Repairer{confusions: confusions}
}

// WithConfusions returns a copy of r whose table also contains extra.
// Entries in extra win.
func (r *Repairer) WithConfusions(extra map[string]string) *Repairer {
	if len(extra) == 0 {
		return r
	}
	merged := make(map[string]string, len(r.confusions)+len(extra))
	for k, v := range r.confusions {
		merged[k] = v
	}
	for k, v := range extra {
		merged[norm.NFC.String(k)] = norm.NFC.String(v)
	}
	return &Repairer{confusions: merged}
}

// Repair applies the first matching rule:
//  1. pure Hebrew fragments are reversed whole;
//  2. mirrored NNN-NN codes are un-mirrored in place;
//  3. a leading "NN- " token is kept and only the remainder is reversed;
//  4. otherwise words are repaired one by one and, if any Hebrew was present,
//     the word order is reversed too.
func (r *Repairer) Repair(s string) string {
	s = strings.TrimSpace(norm.NFC.String(s))
	if s == "" {
		return s
	}

	if isPureHebrew(s) {
		return reverseText(s)
	}

	if mirroredCodePattern.MatchString(s) {
		return mirroredCodePattern.ReplaceAllStringFunc(s, func(m string) string {
			g := mirroredCodePattern.FindStringSubmatch(m)
			return reverseText(g[2]) + "-" + reverseText(g[1])
		})
	}

	if loc := yearPrefixPattern.FindStringIndex(s); loc != nil {
		// The prefix ends in one whitespace rune of any kind.
		head, rest := strings.TrimSpace(s[:loc[1]]), strings.TrimSpace(s[loc[1]:])
		if containsHebrew(rest) {
			rest = reverseText(rest)
		}
		return head + " " + rest
	}

	words := strings.Fields(s)
	for i, w := range words {
		switch canonical, known := r.confusions[w]; {
		case bareYearToken.MatchString(w):
		case known:
			words[i] = canonical
		case containsHebrew(w):
			words[i] = reverseText(w)
		}
	}
	if containsHebrew(s) {
		for i, j := 0, len(words)-1; i < j; i, j = i+1, j-1 {
			words[i], words[j] = words[j], words[i]
		}
	}
	return strings.Join(words, " ")
}

// RepairPtr repairs an optional field, keeping nil as nil.
func (r *Repairer) RepairPtr(s *string) *string {
	if s == nil {
		return nil
	}
	out := r.Repair(*s)
	if out == "" {
		return nil
	}
	return &out
}

func isHebrew(r rune) bool {
	return unicode.Is(unicode.Hebrew, r)
}

func containsHebrew(s string) bool {
	return strings.IndexFunc(s, isHebrew) >= 0
}

// isPureHebrew reports whether s holds only Hebrew, spaces and basic
// punctuation, with at least one Hebrew letter.
func isPureHebrew(s string) bool {
	letters := 0
	for _, r := range s {
		switch {
		case isHebrew(r):
			if unicode.IsLetter(r) {
				letters++
			}
		case unicode.IsSpace(r), strings.ContainsRune(hebrewPunctuation, r):
		default:
			return false
		}
	}
	return letters > 0
}

// reverseText reverses s by character, keeping combining marks (niqqud) on
// the letter they follow.
func reverseText(s string) string {
	clusters := make([][]rune, 0, len(s))
	for _, r := range s {
		if n := len(clusters); n > 0 && unicode.Is(unicode.Mn, r) {
			clusters[n-1] = append(clusters[n-1], r)
			continue
		}
		clusters = append(clusters, []rune{r})
	}

	out := make([]rune, 0, len(s))
	for i := len(clusters) - 1; i >= 0; i-- {
		out = append(out, clusters[i]...)
	}
	return string(out)
}
