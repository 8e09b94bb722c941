// Package money provides the fixed-point decimal value type underlying
// every amount in the ledger. All construction normalizes to two decimal
// places with half-up rounding so fee, commission and balance arithmetic
// agree on a single rounding policy.
package money

import (
	"github.com/shopspring/decimal"

	"github.com/kori-finance/kori/internal/fault"
)

const scale = 2

// Money is an immutable two-decimal amount in the platform currency.
// Operations are total; whether a resulting amount is acceptable is a
// business decision made by guards, not by Money itself.
type Money struct {
	amount decimal.Decimal
}

// New normalizes d to two decimal places, rounding half up.
func New(d decimal.Decimal) Money {
	return Money{amount: d.Round(scale)}
}

// FromString parses a decimal string such as "125.50".
func FromString(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fault.Invalid("amount_malformed", map[string]string{"amount": s})
	}
	return New(d), nil
}

// FromMinorUnits builds an amount from integer minor units (cents).
func FromMinorUnits(cents int64) Money {
	return Money{amount: decimal.New(cents, -scale)}
}

// Zero is the additive identity.
func Zero() Money {
	return Money{amount: decimal.Zero}
}

// Plus returns m + other.
func (m Money) Plus(other Money) Money {
	return Money{amount: m.amount.Add(other.amount)}
}

// Minus returns m - other. The result may be negative; guards decide
// whether that is acceptable.
func (m Money) Minus(other Money) Money {
	return Money{amount: m.amount.Sub(other.amount)}
}

// Neg returns the amount with its sign flipped.
func (m Money) Neg() Money {
	return Money{amount: m.amount.Neg()}
}

func (m Money) IsNegative() bool { return m.amount.IsNegative() }

func (m Money) IsZero() bool { return m.amount.IsZero() }

// IsGreaterThan reports m > other.
func (m Money) IsGreaterThan(other Money) bool {
	return m.amount.GreaterThan(other.amount)
}

// IsLessThan reports m < other.
func (m Money) IsLessThan(other Money) bool {
	return m.amount.LessThan(other.amount)
}

// Equals compares numerically, so 10.5 equals 10.50.
func (m Money) Equals(other Money) bool {
	return m.amount.Equal(other.amount)
}

// Decimal exposes the underlying decimal for persistence adapters.
func (m Money) Decimal() decimal.Decimal {
	return m.amount
}

// String renders the amount with exactly two decimal places.
func (m Money) String() string {
	return m.amount.StringFixed(scale)
}

// MarshalJSON encodes the amount as a quoted fixed-scale string.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON accepts either a quoted or bare decimal literal.
func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	*m = New(d)
	return nil
}
