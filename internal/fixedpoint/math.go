// Package fixedpoint provides the overflow-checked integer arithmetic the
// accounting engine is built on: basis-point fee math, proportional-share
// division, and integer square root. All intermediates that can exceed 64
// bits go through uint128; overflow of a result that must fit in 64 bits is
// always surfaced as ErrOverflow, never wrapped or saturated.
package fixedpoint

import (
	"errors"

	"lukechampine.com/uint128"
)

// BpsDenominator is the basis-point scale: 10_000 bps == 100%.
const BpsDenominator = 10_000

// ErrOverflow reports that a checked computation does not fit in uint64.
var ErrOverflow = errors.New("arithmetic overflow")

// ErrDivideByZero reports a zero denominator in a checked division.
var ErrDivideByZero = errors.New("division by zero")

// Add returns a+b or ErrOverflow.
func Add(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrOverflow
	}
	return sum, nil
}

// Sub returns a-b or ErrOverflow if b > a.
func Sub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrOverflow
	}
	return a - b, nil
}

// Mul returns a*b or ErrOverflow.
func Mul(a, b uint64) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	prod := a * b
	if prod/a != b {
		return 0, ErrOverflow
	}
	return prod, nil
}

// MulDiv computes a*b/den with a 128-bit intermediate, rounding down.
func MulDiv(a, b, den uint64) (uint64, error) {
	if den == 0 {
		return 0, ErrDivideByZero
	}
	q := uint128.From64(a).Mul64(b).Div64(den)
	if q.Hi != 0 {
		return 0, ErrOverflow
	}
	return q.Lo, nil
}

// Bps returns amount*bps/10_000, rounding down. Fee extraction uses this so
// the truncated remainder always stays with the pool, never the trader.
func Bps(amount, bps uint64) (uint64, error) {
	return MulDiv(amount, bps, BpsDenominator)
}

// Sqrt returns the integer square root of v (Babylonian method, the same
// iteration Uniswap v2 uses for bootstrap liquidity).
func Sqrt(v uint64) uint64 {
	if v < 4 {
		if v == 0 {
			return 0
		}
		return 1
	}
	z := v
	x := v/2 + 1
	for x < z {
		z = x
		x = (v/x + x) / 2
	}
	return z
}
