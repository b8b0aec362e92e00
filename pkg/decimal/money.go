package decimal

import (
	"github.com/shopspring/decimal"
)

func init() {
	// gross -> net inversion divides by (1 + rate); keep enough digits that the
	// final two-place rounding is the only loss of precision.
	if decimal.DivisionPrecision < 20 {
		decimal.DivisionPrecision = 20
	}
}

// Scale constants for public outputs.
const (
	// CentScale is the scale of PLN amounts (grosze).
	CentScale int32 = 2
	// WholeScale is the scale of final income-tax totals (full złoty).
	WholeScale int32 = 0
)

// Money represents a PLN amount with exact decimal precision.
type Money struct {
	decimal.Decimal
}

// NewMoney creates a Money from a float64. Use only for fixtures and display.
func NewMoney(value float64) Money {
	return Money{decimal.NewFromFloat(value)}
}

// NewMoneyFromInt creates a Money from whole złoty.
func NewMoneyFromInt(value int64) Money {
	return Money{decimal.NewFromInt(value)}
}

// NewMoneyFromDecimal creates a Money from a decimal.Decimal
func NewMoneyFromDecimal(d decimal.Decimal) Money {
	return Money{d}
}

// NewMoneyFromString creates a Money from a string such as "1234.56".
func NewMoneyFromString(value string) (Money, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Money{}, err
	}
	return Money{d}, nil
}

// MustMoney parses value and panics on malformed input. Intended for seed data and tests.
func MustMoney(value string) Money {
	return Money{decimal.RequireFromString(value)}
}

// Round rounds to grosze using round-half-up (half away from zero).
func (m Money) Round() Money {
	return Money{m.Decimal.Round(CentScale)}
}

// RoundWhole rounds to full złoty using round-half-up.
func (m Money) RoundWhole() Money {
	return Money{m.Decimal.Round(WholeScale)}
}

// RoundTo rounds to an arbitrary scale using round-half-up.
func (m Money) RoundTo(scale int32) Money {
	return Money{m.Decimal.Round(scale)}
}

// Percent multiplies by a rate stored as a fraction (0.23 for 23%). The result is not rounded.
func (m Money) Percent(rate decimal.Decimal) Money {
	return Money{m.Decimal.Mul(rate)}
}

// Add adds another Money amount
func (m Money) Add(other Money) Money {
	return Money{m.Decimal.Add(other.Decimal)}
}

// Sub subtracts another Money amount
func (m Money) Sub(other Money) Money {
	return Money{m.Decimal.Sub(other.Decimal)}
}

// Mul multiplies by a decimal factor
func (m Money) Mul(factor decimal.Decimal) Money {
	return Money{m.Decimal.Mul(factor)}
}

// Div divides by a decimal factor
func (m Money) Div(factor decimal.Decimal) Money {
	return Money{m.Decimal.Div(factor)}
}

// Neg returns the negated amount.
func (m Money) Neg() Money {
	return Money{m.Decimal.Neg()}
}

// Abs returns the absolute amount.
func (m Money) Abs() Money {
	return Money{m.Decimal.Abs()}
}

// ClampZero floors negative amounts at zero.
func (m Money) ClampZero() Money {
	if m.Decimal.IsNegative() {
		return Zero()
	}
	return m
}

// GreaterThan checks if this amount is greater than another
func (m Money) GreaterThan(other Money) bool {
	return m.Decimal.GreaterThan(other.Decimal)
}

// GreaterThanOrEqual checks if this amount is greater than or equal to another
func (m Money) GreaterThanOrEqual(other Money) bool {
	return m.Decimal.GreaterThanOrEqual(other.Decimal)
}

// LessThan checks if this amount is less than another
func (m Money) LessThan(other Money) bool {
	return m.Decimal.LessThan(other.Decimal)
}

// LessThanOrEqual checks if this amount is less than or equal to another
func (m Money) LessThanOrEqual(other Money) bool {
	return m.Decimal.LessThanOrEqual(other.Decimal)
}

// Equal checks if this amount equals another
func (m Money) Equal(other Money) bool {
	return m.Decimal.Equal(other.Decimal)
}

// IsZero checks if the amount is zero
func (m Money) IsZero() bool {
	return m.Decimal.IsZero()
}

// IsPositive checks if the amount is positive
func (m Money) IsPositive() bool {
	return m.Decimal.IsPositive()
}

// IsNegative checks if the amount is negative
func (m Money) IsNegative() bool {
	return m.Decimal.IsNegative()
}

// Min returns the minimum of two Money amounts
func Min(a, b Money) Money {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Max returns the maximum of two Money amounts
func Max(a, b Money) Money {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Sum adds all amounts without intermediate rounding.
func Sum(amounts ...Money) Money {
	total := Zero()
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// Zero returns a zero Money amount
func Zero() Money {
	return Money{decimal.Zero}
}

// String returns the amount with two decimal places.
func (m Money) String() string {
	return m.Decimal.StringFixed(CentScale)
}

// Format formats the amount with the PLN currency code.
func (m Money) Format() string {
	return m.String() + " PLN"
}

// MarshalYAML writes the amount as a plain decimal string.
func (m Money) MarshalYAML() (interface{}, error) {
	return m.Decimal.String(), nil
}

// UnmarshalYAML accepts both quoted and bare numeric scalars.
func (m *Money) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return err
	}
	m.Decimal = d
	return nil
}
