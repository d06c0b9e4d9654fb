// Package normalizer turns raw cell text into typed catalog values: prices,
// years, repaired Hebrew text and the row hash.
package normalizer

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// numericOnly keeps ASCII digits and, when keepDot is set, the decimal point.
// Everything else (currency signs, thousands separators, spaces) is dropped.
func numericOnly(s string, keepDot bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= '0' && c <= '9') || (keepDot && c == '.') {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// ParsePrice extracts a price from a raw token. It never fails: anything that
// does not leave a single valid number behind yields nil.
//
//	"₪1,234.50"  -> 1234.5
//	"1234.50 ₪"  -> 1234.5
//	"1.2.3"      -> nil
func ParsePrice(raw string) *float64 {
	cleaned := numericOnly(raw, true)
	if cleaned == "" || strings.Count(cleaned, ".") > 1 || strings.Trim(cleaned, ".") == "" {
		return nil
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return nil
	}
	f, _ := d.Float64()
	return &f
}

// ParsePricePtr is ParsePrice for optional cells.
func ParsePricePtr(raw *string) *float64 {
	if raw == nil {
		return nil
	}
	return ParsePrice(*raw)
}

// ParseYear keeps only the digits of a model-year cell, so "2015-" gives 2015.
func ParseYear(raw string) *int {
	digits := numericOnly(raw, false)
	if digits == "" {
		return nil
	}
	year, err := strconv.Atoi(digits)
	if err != nil {
		return nil
	}
	return &year
}
