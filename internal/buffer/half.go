package buffer

import (
	"math"

	"github.com/x448/float16"
)

// ToHalf converts a float32 to its binary16 bit pattern. Values beyond the
// half range saturate to +/-Inf and NaN stays NaN, following IEEE rounding
// to nearest even.
func ToHalf(f float32) uint16 {
	return float16.Fromfloat32(f).Bits()
}

// FromHalf converts a binary16 bit pattern back to float32. The conversion
// is exact.
func FromHalf(h uint16) float32 {
	return float16.Frombits(h).Float32()
}

// HalfFromFloat64 rounds v to the nearest binary16, ties to even. Narrowing
// through float32 alone can land on a binary16 midpoint and round twice, so
// the float32 result is checked against its neighbour towards v.
func HalfFromFloat64(v float64) uint16 {
	h := ToHalf(float32(v))
	if math.IsNaN(v) || math.IsInf(v, 0) || float64(float32(v)) == v {
		return h
	}
	f := halfValue(h)
	var n uint16
	switch {
	case math.Abs(f) < math.Abs(v):
		n = h + 1
	case h&0x7fff == 0:
		return h
	default:
		n = h - 1
	}
	dh, dn := math.Abs(v-f), math.Abs(v-halfValue(n))
	if dn < dh || (dn == dh && n&1 == 0) {
		return n
	}
	return h
}

// halfValue widens h, counting +/-Inf as +/-65536 so the overflow threshold
// sits halfway past the largest finite half.
func halfValue(h uint16) float64 {
	f := float64(FromHalf(h))
	if math.IsInf(f, 0) {
		return math.Copysign(65536, f)
	}
	return f
}
