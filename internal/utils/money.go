package utils

import (
	"math"

	"github.com/shopspring/decimal"
)

// centTolerance is the amount-match tolerance used when pairing transfer
// legs: two amounts are considered equal when they differ by less than
// 0.01 currency units.
var centTolerance = decimal.New(1, -2)

// Cents converts a float currency amount to integer cents, rounding
// half away from zero. Going through decimal avoids the usual float64
// drift on values like 19.99.
func Cents(amount float64) int64 {
	return decimal.NewFromFloat(amount).Shift(2).Round(0).IntPart()
}

// Round2 rounds a currency amount to two decimal places.
func Round2(amount float64) float64 {
	f, _ := decimal.NewFromFloat(amount).Round(2).Float64()
	return f
}

// FormatAbs2 formats the absolute value of an amount with exactly two
// decimal places, e.g. -42.5 -> "42.50". Used for group keys, which must
// be stable across providers that report differing precision.
func FormatAbs2(amount float64) string {
	return decimal.NewFromFloat(math.Abs(amount)).Abs().StringFixed(2)
}

// AmountsMatch reports whether two positive amounts are equal within
// the cent tolerance.
func AmountsMatch(a, b float64) bool {
	diff := decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Abs()
	return diff.LessThan(centTolerance)
}

// WithinThreshold reports whether |delta| <= threshold, comparing as
// decimals so that a delta of exactly the threshold passes.
func WithinThreshold(delta, threshold float64) bool {
	d := decimal.NewFromFloat(delta).Abs()
	return d.LessThanOrEqual(decimal.NewFromFloat(threshold))
}
