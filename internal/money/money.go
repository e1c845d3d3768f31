// Package money provides integer-cents arithmetic and cent-exact
// weight-proportional allocation. All internal amounts are Cents; decimal
// conversion happens only at external boundaries (ledger payloads, CSV).
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Cents is a signed amount in minor currency units.
type Cents int64

// Decimal returns the amount in major units as an exact decimal.
func (c Cents) Decimal() decimal.Decimal {
	return decimal.New(int64(c), -2)
}

// String formats the amount in major units with two decimal places.
func (c Cents) String() string {
	return c.Decimal().StringFixed(2)
}

// Abs returns the magnitude of c.
func (c Cents) Abs() Cents {
	if c < 0 {
		return -c
	}
	return c
}

// FromDecimal converts a major-unit decimal to Cents. Sub-cent precision is
// rejected rather than rounded.
func FromDecimal(d decimal.Decimal) (Cents, error) {
	shifted := d.Shift(2)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("amount %s has sub-cent precision", d.String())
	}
	return Cents(shifted.IntPart()), nil
}

// ParseAmount parses a major-unit amount string ("12.34", "-0.05") to Cents.
func ParseAmount(s string) (Cents, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return FromDecimal(d)
}
