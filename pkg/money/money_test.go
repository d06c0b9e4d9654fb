package money

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Construction
// ============================================================================

func TestNewFromFloat(t *testing.T) {
	tests := []struct {
		name     string
		amount   float64
		currency string
		want     int64
		wantCode string
	}{
		{"simple decimal", 12.34, ILS, 1234, ILS},
		{"whole number", 150, ILS, 15000, ILS},
		{"zero", 0, ILS, 0, ILS},
		{"rounding", 12.345, USD, 1235, USD},
		{"yen has no minor unit", 1500.4, JPY, 1500, JPY},
		{"unknown currency uses shekel precision", 9.99, "XXZ", 999, ILS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewFromFloat(tt.amount, tt.currency)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Amount())
			assert.Equal(t, tt.wantCode, m.Currency())
		})
	}
}

func TestNewFromFloat_Invalid(t *testing.T) {
	_, err := NewFromFloat(math.NaN(), ILS)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = NewFromFloat(math.Inf(1), ILS)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

// ============================================================================
// Formatting
// ============================================================================

func TestString(t *testing.T) {
	assert.Equal(t, "1234.50", New(123450, ILS).String())
	assert.Equal(t, "0.05", New(5, USD).String())
	assert.Equal(t, "1500", New(1500, JPY).String())

	var nilMoney *Money
	assert.Equal(t, "", nilMoney.String())
}

func TestDisplay(t *testing.T) {
	assert.Equal(t, "$1,234.50", New(123450, USD).Display())
	assert.Contains(t, New(15000, ILS).Display(), "150.00")
}

func TestFormat(t *testing.T) {
	price := 42.5
	assert.Equal(t, "42.50", Format(&price, ILS))
	assert.Equal(t, "", Format(nil, ILS))

	nan := math.NaN()
	assert.Equal(t, "", Format(&nan, ILS))
}
