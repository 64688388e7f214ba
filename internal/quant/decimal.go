// Package quant isolates the decimal arithmetic used for depths, quantities,
// and prices behind a small set of functions, so the fixed-point library
// backing it can be swapped without touching call sites.
package quant

import "github.com/yanun0323/decimal"

// D is a fixed-point decimal value used for anything that must not drift
// under repeated float64 rounding: target depths, order quantities, prices.
type D = decimal.Decimal

// FromFloat builds a D from a float64 signal/config value.
func FromFloat(f float64) D {
	return decimal.NewFromFloat(f)
}

// Zero is the additive identity.
func Zero() D {
	return decimal.NewFromFloat(0)
}

// Add returns a + b.
func Add(a, b D) D {
	return a.Add(b)
}

// Sub returns a - b.
func Sub(a, b D) D {
	return a.Sub(b)
}

// Mul returns a * b.
func Mul(a, b D) D {
	return a.Mul(b)
}

// Div returns a / b. Callers must ensure b is non-zero.
func Div(a, b D) D {
	return a.Div(b)
}

// Abs returns the absolute value of a.
func Abs(a D) D {
	return a.Abs()
}

// Neg returns -a.
func Neg(a D) D {
	return a.Neg()
}

// Sign returns -1, 0, or 1.
func Sign(a D) int {
	return a.Sign()
}

// IsZero reports whether a is exactly zero.
func IsZero(a D) bool {
	return a.IsZero()
}

// Clamp restricts a to [lo, hi].
func Clamp(a, lo, hi D) D {
	if Float64(a) < Float64(lo) {
		return lo
	}
	if Float64(a) > Float64(hi) {
		return hi
	}
	return a
}

// GreaterThan reports whether a > b.
func GreaterThan(a, b D) bool {
	return a.Cmp(b) > 0
}

// LessThan reports whether a < b.
func LessThan(a, b D) bool {
	return a.Cmp(b) < 0
}

// Float64 converts back to float64 for logging/metrics; never use the
// result for further exact arithmetic.
func Float64(a D) float64 {
	f, _ := a.Float64()
	return f
}
