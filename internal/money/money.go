// Package money stores prices as integer minor units (cents) and only goes
// through decimals when parsing input or rendering output.
package money

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var (
	ErrNegativeAmount = errors.New("money: amount cannot be negative")
	ErrTooPrecise     = errors.New("money: amount has more than two decimal places")
	ErrOverflow       = errors.New("money: amount overflows")
	ErrEmptyAmount    = errors.New("money: amount is empty")
)

// Cents is an amount in minor currency units.
type Cents int64

// Parse reads a decimal amount such as "3", "3.5" or "3.50".
func Parse(s string) (Cents, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("money: invalid amount %q: %w", s, err)
	}
	return FromDecimal(d)
}

func FromDecimal(d decimal.Decimal) (Cents, error) {
	if d.IsNegative() {
		return 0, ErrNegativeAmount
	}
	scaled := d.Shift(2)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, ErrTooPrecise
	}
	if scaled.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, ErrOverflow
	}
	return Cents(scaled.IntPart()), nil
}

func (c Cents) Decimal() decimal.Decimal {
	return decimal.New(int64(c), -2)
}

// String renders the amount with exactly two decimals, e.g. "11.50".
func (c Cents) String() string {
	return c.Decimal().StringFixed(2)
}

// Display renders the amount for people, e.g. "$11.50".
func (c Cents) Display() string {
	return "$" + c.String()
}

// Mul multiplies a unit price by a quantity.
func (c Cents) Mul(qty int) (Cents, error) {
	if qty < 0 {
		return 0, ErrNegativeAmount
	}
	if qty != 0 && int64(c) > math.MaxInt64/int64(qty) {
		return 0, ErrOverflow
	}
	return c * Cents(qty), nil
}

func (c Cents) Add(o Cents) (Cents, error) {
	if o > 0 && c > math.MaxInt64-o {
		return 0, ErrOverflow
	}
	return c + o, nil
}

// MarshalJSON writes the amount as a JSON number with two decimals.
func (c Cents) MarshalJSON() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string. A bare null
// leaves c unchanged; a quoted "null" or "" is rejected.
func (c *Cents) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
		b = b[1 : len(b)-1]
		if len(b) == 0 {
			return ErrEmptyAmount
		}
	}
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
