// internal/domain/rounding.go
package domain

import "github.com/shopspring/decimal"

// RoundToUoM rounds value to the nearest multiple of the product's
// unit-of-measure rounding increment. Forecasted quantities must not be
// presented at a finer granularity than the UoM supports. A non-positive
// increment leaves the value untouched.
//
// The operation is idempotent: rounding an already-rounded value is a no-op.
func RoundToUoM(value, rounding float64) float64 {
	if rounding <= 0 {
		return value
	}
	v := decimal.NewFromFloat(value)
	r := decimal.NewFromFloat(rounding)
	out, _ := v.Div(r).Round(0).Mul(r).Float64()
	return out
}

// ClampNonNegative enforces the domain invariant that forecast and adjust
// values are never stored negative.
func ClampNonNegative(value float64) float64 {
	if value < 0 {
		return 0
	}
	return value
}
