package normalizer

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

const hashDelimiter = "|"

// HashFields are the identifying fields of a row, in hashing order.
type HashFields struct {
	VersionDate  string
	SupplierSlug string
	Make         *string
	Model        *string
	Year         *int
	PartName     *string
	OEMCode      *string
	Unit         *string
	Price        *float64
}

// RowHash returns the hex SHA-256 of the "|"-joined identifying fields.
// A nil field renders as the empty string. The result is the upsert key, so the
// field order and rendering must never change.
func RowHash(f HashFields) string {
	parts := []string{
		f.VersionDate,
		f.SupplierSlug,
		deref(f.Make),
		deref(f.Model),
		"",
		deref(f.PartName),
		deref(f.OEMCode),
		deref(f.Unit),
		"",
	}
	if f.Year != nil {
		parts[4] = strconv.Itoa(*f.Year)
	}
	if f.Price != nil {
		parts[8] = strconv.FormatFloat(*f.Price, 'f', -1, 64)
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, hashDelimiter)))
	return hex.EncodeToString(sum[:])
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
