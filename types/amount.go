// Package types provides the value types shared by every custody engine.
package types

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a whole number of the asset's smallest unit.
// Arithmetic is exact and integer-only; intermediates never overflow because
// the value is backed by an arbitrary-precision decimal.
//
// Examples:
//   - NewAmount(100_000) is 100000 base units
//   - NewAmount(7).MulDiv(NewAmount(1), NewAmount(2)) is 3 (floor)
type Amount struct {
	d decimal.Decimal
}

// NewAmount creates an Amount from an int64 count of base units.
func NewAmount(units int64) Amount { return Amount{d: decimal.NewFromInt(units)} }

// ZeroAmount returns the zero Amount.
func ZeroAmount() Amount { return Amount{} }

// ParseAmount parses a base-10 integer string. Fractions are rejected.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("amount: parse %q: empty string", s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("amount: parse %q: %w", s, err)
	}
	if !d.Equal(d.Truncate(0)) {
		return Amount{}, fmt.Errorf("amount: parse %q: fractional base units", s)
	}
	return Amount{d: d.Truncate(0)}, nil
}

// MustParseAmount is like ParseAmount but panics on error. Use for constants.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// SumAmounts adds all amounts together.
func SumAmounts(amounts ...Amount) Amount {
	total := Amount{}
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// Arithmetic operations

// Add returns a + other.
func (a Amount) Add(other Amount) Amount { return Amount{d: a.d.Add(other.d)} }

// Sub returns a - other. The result may be negative; callers that need a
// non-negative balance check with IsNegative.
func (a Amount) Sub(other Amount) Amount { return Amount{d: a.d.Sub(other.d)} }

// Mul returns a * other.
func (a Amount) Mul(other Amount) Amount { return Amount{d: a.d.Mul(other.d)} }

// MulInt returns a * n.
func (a Amount) MulInt(n int64) Amount { return Amount{d: a.d.Mul(decimal.NewFromInt(n))} }

// MulDiv returns floor(a * num / den) for non-negative operands.
// The product is computed in full before dividing, so no precision is lost
// ahead of the single truncation. Panics on a zero denominator.
func (a Amount) MulDiv(num, den Amount) Amount {
	if den.d.IsZero() {
		panic("amount: division by zero")
	}
	q, _ := a.d.Mul(num.d).QuoRem(den.d, 0)
	return Amount{d: q}
}

// Div returns floor(a / divisor) for non-negative operands.
func (a Amount) Div(divisor Amount) Amount {
	return a.MulDiv(NewAmount(1), divisor)
}

// Comparison methods

// Cmp returns -1, 0 or +1 as a is less than, equal to or greater than other.
func (a Amount) Cmp(other Amount) int { return a.d.Cmp(other.d) }

// Equal reports whether both amounts hold the same value.
func (a Amount) Equal(other Amount) bool { return a.d.Equal(other.d) }

// LessThan reports whether a < other.
func (a Amount) LessThan(other Amount) bool { return a.d.LessThan(other.d) }

// GreaterThan reports whether a > other.
func (a Amount) GreaterThan(other Amount) bool { return a.d.GreaterThan(other.d) }

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool { return a.d.IsZero() }

// IsPositive reports whether the amount is greater than zero.
func (a Amount) IsPositive() bool { return a.d.Sign() > 0 }

// IsNegative reports whether the amount is less than zero.
func (a Amount) IsNegative() bool { return a.d.Sign() < 0 }

// Min returns the smaller of two amounts.
func (a Amount) Min(other Amount) Amount {
	if a.d.LessThan(other.d) {
		return a
	}
	return other
}

// Max returns the larger of two amounts.
func (a Amount) Max(other Amount) Amount {
	if a.d.GreaterThan(other.d) {
		return a
	}
	return other
}

// ClampZero returns the amount, or zero when it is negative.
func (a Amount) ClampZero() Amount {
	if a.IsNegative() {
		return Amount{}
	}
	return a
}

// Conversions

// Int64 returns the amount as an int64. ok is false when it does not fit.
func (a Amount) Int64() (v int64, ok bool) {
	bi := a.d.BigInt()
	if !bi.IsInt64() {
		return 0, false
	}
	return bi.Int64(), true
}

// Decimal returns the underlying decimal value.
func (a Amount) Decimal() decimal.Decimal { return a.d }

// String returns the base-10 integer representation.
func (a Amount) String() string { return a.d.String() }

// MarshalText implements encoding.TextMarshaler.
func (a Amount) MarshalText() ([]byte, error) { return []byte(a.d.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Amount) UnmarshalText(data []byte) error {
	parsed, err := ParseAmount(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalJSON encodes the amount as a JSON string so large values survive
// clients that parse numbers as float64.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.d.String())
}

// UnmarshalJSON accepts either a JSON string or a JSON number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" {
		*a = Amount{}
		return nil
	}
	return a.UnmarshalText([]byte(s))
}
