// Package money formats catalogue prices in minor units using ISO-4217
// currency rules.
package money

import (
	"errors"
	"math"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Common currency codes (ISO-4217)
const (
	ILS = "ILS" // Israeli New Shekel
	USD = "USD" // US Dollar
	EUR = "EUR" // Euro
	JPY = "JPY" // Japanese Yen (no decimal places)
)

var ErrInvalidAmount = errors.New("amount is not a finite number")

// Money is a price in minor units of a currency.
type Money struct {
	m *money.Money
}

// New creates a value from minor units (agorot, cents).
func New(minor int64, currencyCode string) *Money {
	return &Money{m: money.New(minor, currencyCode)}
}

// NewFromFloat rounds amount half away from zero to the currency's minor unit.
// Unknown currency codes fall back to ILS precision.
func NewFromFloat(amount float64, currencyCode string) (*Money, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, ErrInvalidAmount
	}
	currency := money.GetCurrency(currencyCode)
	if currency == nil {
		currencyCode = ILS
		currency = money.GetCurrency(ILS)
	}
	minor := decimal.NewFromFloat(amount).Shift(int32(currency.Fraction)).Round(0).IntPart()
	return New(minor, currencyCode), nil
}

// Amount returns the amount in minor units
func (m *Money) Amount() int64 {
	if m == nil || m.m == nil {
		return 0
	}
	return m.m.Amount()
}

// Currency returns the ISO-4217 currency code
func (m *Money) Currency() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Currency().Code
}

// Display returns the amount with symbol and grouping (e.g., "$1,234.56")
func (m *Money) Display() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Display()
}

// String returns the amount with exactly the currency's decimal places (e.g., "1234.50")
func (m *Money) String() string {
	if m == nil || m.m == nil {
		return ""
	}
	fraction := int32(m.m.Currency().Fraction)
	return decimal.New(m.m.Amount(), -fraction).StringFixed(fraction)
}

// Format renders an optional price for exports; nil or invalid prices render empty.
func Format(amount *float64, currencyCode string) string {
	if amount == nil {
		return ""
	}
	m, err := NewFromFloat(*amount, currencyCode)
	if err != nil {
		return ""
	}
	return m.String()
}
