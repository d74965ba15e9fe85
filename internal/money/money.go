package money

// Package money provides the exact decimal arithmetic used for all cost
// calculations.
//
// Responsibilities:
//   - Fixed-point decimal operations (add, subtract, multiply, divide)
//   - Banker's rounding (round-half-to-even) to a fixed fractional scale
//   - Parsing and serialization of decimal strings (never floats)
//   - Explicit error reporting for division by zero; overflow is not
//     detected by any operation here
//
// Token-cost arithmetic never touches float64: every per-side product of
// (tokens × rate / 1,000,000) is computed exactly and rounded to CostScale
// fractional digits before it is assigned to a cost record field.

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// CostScale is the fractional scale of every monetary cost field.
const CostScale = 10

var (
	// ErrDivisionByZero is returned when a divisor is exactly zero.
	ErrDivisionByZero = errors.New("money: division by zero")

	// ErrOverflow names the exponent-range overflow condition. No function
	// in this package returns it.
	ErrOverflow = errors.New("money: decimal overflow")
)

// Zero is the additive identity.
var Zero = decimal.Zero

// Million is the per-token rate denominator (rates are quoted per 1M tokens).
var Million = decimal.NewFromInt(1_000_000)

// Parse reads a decimal string such as "0.0000012345".
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return d, nil
}

// MustParse is Parse for trusted literals; it panics on malformed input and
// is intended for constants and tests only.
func MustParse(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// FromTokens converts a token count to a decimal operand.
func FromTokens(n uint64) decimal.Decimal {
	return decimal.NewFromUint64(n)
}

// Div divides a by b, reporting ErrDivisionByZero instead of panicking.
func Div(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}
	return a.Div(b), nil
}

// RoundCost applies banker's rounding at the monetary cost scale.
func RoundCost(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(CostScale)
}

// PerMillion computes round10(tokens * ratePerMillion / 1e6), the
// fundamental per-side cost expression. The product is exact and the
// division is a pure exponent shift, so rounding happens exactly once.
func PerMillion(tokens uint64, ratePerMillion decimal.Decimal) decimal.Decimal {
	return RoundCost(FromTokens(tokens).Mul(ratePerMillion).Shift(-6))
}

// ExactPerMillion is PerMillion without the final rounding, for callers
// that need to combine terms before rounding (cache discounts).
func ExactPerMillion(tokens uint64, ratePerMillion decimal.Decimal) decimal.Decimal {
	return FromTokens(tokens).Mul(ratePerMillion).Shift(-6)
}

// ClampNonNegative floors a cost at zero. A cache discount can drive an
// input cost below zero when the discount covers more than the base cost.
func ClampNonNegative(d decimal.Decimal) decimal.Decimal {
	if d.Sign() < 0 {
		return decimal.Zero
	}
	return d
}

// String serializes at full precision with no exponent notation.
func String(d decimal.Decimal) string {
	return d.String()
}
