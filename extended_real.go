// extended_real.go - 80-bit Extended Precision Floating Point

package main

import (
	"math"
)

// Extended precision constants
const (
	extExpBias uint16 = 16383   // Exponent bias for 80-bit
	extExpMax  uint16 = 0x7FFF  // Maximum exponent (infinity/NaN)
	extMantMSB uint64 = 1 << 63 // Explicit integer bit
)

// ExtendedReal represents an 80-bit extended precision floating point number,
// the x87 register format.
//
// Format: 1 sign bit + 15 exponent bits + 64 mantissa bits (with explicit integer bit)
type ExtendedReal struct {
	Sign uint8  // 0 = positive, 1 = negative
	Exp  uint16 // 15-bit biased exponent
	Mant uint64 // 64-bit mantissa with explicit integer bit
}

// NewExtendedReal creates a new ExtendedReal from components
func NewExtendedReal(sign uint8, exp uint16, mant uint64) ExtendedReal {
	return ExtendedReal{Sign: sign, Exp: exp, Mant: mant}
}

// ExtendedRealFromFloat64 converts a float64 to ExtendedReal
func ExtendedRealFromFloat64(f float64) ExtendedReal {
	if math.IsNaN(f) {
		return ExtendedReal{Sign: 0, Exp: extExpMax, Mant: 0xC000000000000000}
	}

	if math.IsInf(f, 1) {
		return ExtendedReal{Sign: 0, Exp: extExpMax, Mant: extMantMSB}
	}

	if math.IsInf(f, -1) {
		return ExtendedReal{Sign: 1, Exp: extExpMax, Mant: extMantMSB}
	}

	if f == 0 {
		sign := uint8(0)
		if math.Signbit(f) {
			sign = 1
		}
		return ExtendedReal{Sign: sign, Exp: 0, Mant: 0}
	}

	bits := math.Float64bits(f)
	sign := uint8((bits >> 63) & 1)
	f64Exp := int((bits >> 52) & 0x7FF)
	f64Mant := bits & 0x000FFFFFFFFFFFFF

	if f64Exp == 0 {
		if f64Mant == 0 {
			return ExtendedReal{Sign: sign, Exp: 0, Mant: 0}
		}

		shift := 0
		for (f64Mant & (1 << 51)) == 0 {
			f64Mant <<= 1
			shift++
		}

		extExp := uint16(15360 - 1022 - shift)
		extMant := (f64Mant << 12) | extMantMSB
		return ExtendedReal{Sign: sign, Exp: extExp, Mant: extMant}
	}

	extExp := uint16(f64Exp + 15360)
	extMant := ((f64Mant | (1 << 52)) << 11)
	return ExtendedReal{Sign: sign, Exp: extExp, Mant: extMant}
}

// ToFloat64 converts an ExtendedReal to float64. Values outside double range
// collapse to infinity or zero, and the low 11 mantissa bits are lost.
func (e ExtendedReal) ToFloat64() float64 {
	if e.IsNaN() {
		return math.NaN()
	}

	if e.IsInf() {
		if e.Sign == 0 {
			return math.Inf(1)
		}
		return math.Inf(-1)
	}

	if e.IsZero() {
		if e.Sign == 0 {
			return 0.0
		}
		return math.Copysign(0.0, -1.0)
	}

	extExpUnbiased := int(e.Exp) - 16383
	f64Exp := extExpUnbiased + 1023

	if f64Exp <= 0 {
		if f64Exp < -52 {
			if e.Sign == 0 {
				return 0.0
			}
			return math.Copysign(0.0, -1.0)
		}

		shift := 1 - f64Exp
		f64Mant := e.Mant >> (11 + uint(shift))
		bits := uint64(e.Sign)<<63 | f64Mant
		return math.Float64frombits(bits)
	}

	if f64Exp >= 0x7FF {
		if e.Sign == 0 {
			return math.Inf(1)
		}
		return math.Inf(-1)
	}

	f64Mant := (e.Mant >> 11) & 0x000FFFFFFFFFFFFF
	bits := uint64(e.Sign)<<63 | uint64(f64Exp)<<52 | f64Mant
	return math.Float64frombits(bits)
}

// IsZero returns true if the value is zero (positive or negative)
func (e ExtendedReal) IsZero() bool {
	return e.Exp == 0 && e.Mant == 0
}

// IsInf returns true if the value is infinity
func (e ExtendedReal) IsInf() bool {
	return e.Exp == extExpMax && e.Mant == extMantMSB
}

// IsNaN returns true if the value is Not a Number
func (e ExtendedReal) IsNaN() bool {
	return e.Exp == extExpMax && e.Mant != extMantMSB && e.Mant != 0
}
