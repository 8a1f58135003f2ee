package types

import (
	"database/sql/driver"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Amount is a non-fractional quantity of the ledger's single native asset,
// expressed in its smallest unit. Amounts routinely exceed int64 (wei-scale
// deposits), so the value is held with arbitrary precision. All arithmetic
// is integer-only.
type Amount struct {
	d decimal.Decimal
}

// NewAmount creates an Amount from an int64.
func NewAmount(v int64) Amount { return Amount{d: decimal.NewFromInt(v)} }

// AmountFromBig creates an Amount from a big integer.
func AmountFromBig(v *big.Int) Amount { return Amount{d: decimal.NewFromBigInt(v, 0)} }

// ZeroAmount returns the zero Amount.
func ZeroAmount() Amount { return Amount{} }

// ParseAmount parses a base-10 integer string such as "5000000000000000000".
// Fractional values are rejected.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("amount: parse %q: %w", s, err)
	}
	if !d.IsInteger() {
		return Amount{}, fmt.Errorf("amount: parse %q: fractional amounts are not supported", s)
	}
	return Amount{d: d}, nil
}

// MustParseAmount is like ParseAmount but panics on error.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Add returns a + other.
func (a Amount) Add(other Amount) Amount { return Amount{d: a.d.Add(other.d)} }

// Sub returns a - other.
func (a Amount) Sub(other Amount) Amount { return Amount{d: a.d.Sub(other.d)} }

// Cmp compares a and other, returning -1, 0 or +1.
func (a Amount) Cmp(other Amount) int { return a.d.Cmp(other.d) }

// Equal reports whether both amounts are equal.
func (a Amount) Equal(other Amount) bool { return a.d.Equal(other.d) }

// LessThan reports whether a < other.
func (a Amount) LessThan(other Amount) bool { return a.d.LessThan(other.d) }

// GreaterThan reports whether a > other.
func (a Amount) GreaterThan(other Amount) bool { return a.d.GreaterThan(other.d) }

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool { return a.d.IsZero() }

// IsPositive reports whether the amount is greater than zero.
func (a Amount) IsPositive() bool { return a.d.IsPositive() }

// IsNegative reports whether the amount is less than zero.
func (a Amount) IsNegative() bool { return a.d.IsNegative() }

// BigInt returns the amount as a big integer.
func (a Amount) BigInt() *big.Int { return a.d.BigInt() }

// Float64 returns a lossy float representation, for metrics only.
func (a Amount) Float64() float64 {
	f, _ := a.d.Float64()
	return f
}

// String returns the base-10 representation.
func (a Amount) String() string { return a.d.String() }

// SumAmounts adds all values.
func SumAmounts(values ...Amount) Amount {
	total := ZeroAmount()
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// MarshalJSON encodes the amount as a quoted integer string so that values
// beyond 2^53 survive JavaScript consumers.
func (a Amount) MarshalJSON() ([]byte, error) { return a.d.MarshalJSON() }

// UnmarshalJSON accepts quoted or bare integers.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	if !d.IsInteger() {
		return fmt.Errorf("amount: fractional amounts are not supported: %s", d.String())
	}
	a.d = d
	return nil
}

// Value implements driver.Valuer. Amounts are stored as decimal strings.
func (a Amount) Value() (driver.Value, error) { return a.d.String(), nil }

// Scan implements sql.Scanner. Fractional column values are rejected.
func (a *Amount) Scan(src any) error {
	var d decimal.Decimal
	if err := d.Scan(src); err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	if !d.IsInteger() {
		return fmt.Errorf("amount: fractional amounts are not supported: %s", d.String())
	}
	a.d = d
	return nil
}
