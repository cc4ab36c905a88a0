package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MinorUnitsPerMajor is the number of kobo in one naira.
const MinorUnitsPerMajor = 100

var hundred = decimal.NewFromInt(MinorUnitsPerMajor)

// ParseAmount converts a major-unit decimal string ("1000.50") to minor units.
// More than two fractional digits is rejected rather than rounded.
func ParseAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a decimal amount", ErrInvalidAmount, s)
	}
	minor := d.Mul(hundred)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("%w: %q has more than two decimal places", ErrInvalidAmount, s)
	}
	if minor.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}
	if !minor.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidAmount, s)
	}
	return minor.IntPart(), nil
}

// MinorUnits converts a major-unit decimal to minor units. ok is false when
// the value has sub-kobo precision or does not fit in an int64.
func MinorUnits(d decimal.Decimal) (minor int64, ok bool) {
	m := d.Mul(hundred)
	if !m.Equal(m.Truncate(0)) || !m.BigInt().IsInt64() {
		return 0, false
	}
	return m.IntPart(), true
}

// FormatAmount renders minor units as a two-decimal major-unit string.
func FormatAmount(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}
