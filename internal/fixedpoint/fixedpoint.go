// Package fixedpoint decodes 256-bit two's-complement token amounts into
// exact decimal strings using a per-token decimal scale.
package fixedpoint

import (
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// maxPow10 is the largest exponent for which 10^n fits in 256 bits.
const maxPow10 = 77

var ten = uint256.NewInt(10)

// IsNegative reports whether bit 255 of raw is set.
func IsNegative(raw *uint256.Int) bool {
	return raw[3]&(1<<63) != 0
}

// Magnitude returns the sign of raw and its absolute value. A negative raw is
// negated as 2^256 - raw; the all-ones pattern yields a magnitude of one.
func Magnitude(raw *uint256.Int) (bool, *uint256.Int) {
	if !IsNegative(raw) {
		return false, new(uint256.Int).Set(raw)
	}
	return true, new(uint256.Int).Neg(raw)
}

// Decode renders raw as "integer.fraction" with exactly decimals fractional
// digits. A zero scale still yields a fraction of "0".
func Decode(raw *uint256.Int, decimals uint8) (bool, string) {
	neg, mag := Magnitude(raw)
	return neg, format(mag, decimals)
}

func format(mag *uint256.Int, decimals uint8) string {
	digits := mag.ToBig().String()
	if decimals == 0 {
		return digits + ".0"
	}
	d := int(decimals)
	if len(digits) < d {
		digits = strings.Repeat("0", d-len(digits)) + digits
	}
	integer, fraction := digits[:len(digits)-d], digits[len(digits)-d:]
	if integer == "" {
		integer = "0"
	}
	return integer + "." + fraction
}

// Split divides the magnitude of raw by 10^decimals and returns the sign, the
// quotient and the remainder.
func Split(raw *uint256.Int, decimals uint8) (bool, *uint256.Int, *uint256.Int) {
	neg, mag := Magnitude(raw)
	if decimals > maxPow10 {
		// 10^decimals exceeds every 256-bit value.
		return neg, new(uint256.Int), mag
	}
	scale := new(uint256.Int).Exp(ten, uint256.NewInt(uint64(decimals)))
	integer := new(uint256.Int).Div(mag, scale)
	fraction := new(uint256.Int).Mod(mag, scale)
	return neg, integer, fraction
}

// Float64 converts raw to a float. The result is lossy once either part
// exceeds 2^53 and must not be used where exact figures matter; Decode is
// the exact form.
func Float64(raw *uint256.Int, decimals uint8) (bool, float64) {
	neg, integer, fraction := Split(raw, decimals)
	i := toFloat(integer.ToBig())
	f := toFloat(fraction.ToBig())
	if decimals > 0 {
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
		f /= toFloat(scale)
	}
	return neg, i + f
}

func toFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
