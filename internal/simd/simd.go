// Package simd holds unrolled kernels over dense float32 and float64 slices.
// Reductions always accumulate in float64.
package simd

// Float is the set of element types the kernels accept.
type Float interface {
	~float32 | ~float64
}

// AddConst performs dst[i] += c
func AddConst[T Float](dst []T, c T) {
	i := 0
	for ; i <= len(dst)-4; i += 4 {
		dst[i] += c
		dst[i+1] += c
		dst[i+2] += c
		dst[i+3] += c
	}
	for ; i < len(dst); i++ {
		dst[i] += c
	}
}

// Scale performs dst[i] *= c
func Scale[T Float](dst []T, c T) {
	i := 0
	for ; i <= len(dst)-4; i += 4 {
		dst[i] *= c
		dst[i+1] *= c
		dst[i+2] *= c
		dst[i+3] *= c
	}
	for ; i < len(dst); i++ {
		dst[i] *= c
	}
}

// Add performs dst = a + b. dst may alias a or b.
func Add[T Float](dst, a, b []T) {
	i := 0
	for ; i <= len(dst)-4; i += 4 {
		dst[i] = a[i] + b[i]
		dst[i+1] = a[i+1] + b[i+1]
		dst[i+2] = a[i+2] + b[i+2]
		dst[i+3] = a[i+3] + b[i+3]
	}
	for ; i < len(dst); i++ {
		dst[i] = a[i] + b[i]
	}
}

// Sub performs dst = a - b.
func Sub[T Float](dst, a, b []T) {
	i := 0
	for ; i <= len(dst)-4; i += 4 {
		dst[i] = a[i] - b[i]
		dst[i+1] = a[i+1] - b[i+1]
		dst[i+2] = a[i+2] - b[i+2]
		dst[i+3] = a[i+3] - b[i+3]
	}
	for ; i < len(dst); i++ {
		dst[i] = a[i] - b[i]
	}
}

// Mul performs dst = a * b.
func Mul[T Float](dst, a, b []T) {
	i := 0
	for ; i <= len(dst)-4; i += 4 {
		dst[i] = a[i] * b[i]
		dst[i+1] = a[i+1] * b[i+1]
		dst[i+2] = a[i+2] * b[i+2]
		dst[i+3] = a[i+3] * b[i+3]
	}
	for ; i < len(dst); i++ {
		dst[i] = a[i] * b[i]
	}
}

// Div performs dst = a / b.
func Div[T Float](dst, a, b []T) {
	for i := range dst {
		dst[i] = a[i] / b[i]
	}
}

// Map performs dst[i] = f(src[i]) with f evaluated in float64.
func Map[T Float](dst, src []T, f func(float64) float64) {
	for i, v := range src {
		dst[i] = T(f(float64(v)))
	}
}

// Sum returns the float64 sum of a.
func Sum[T Float](a []T) float64 {
	var s0, s1, s2, s3 float64
	i := 0
	for ; i <= len(a)-4; i += 4 {
		s0 += float64(a[i])
		s1 += float64(a[i+1])
		s2 += float64(a[i+2])
		s3 += float64(a[i+3])
	}
	for ; i < len(a); i++ {
		s0 += float64(a[i])
	}
	return (s0 + s1) + (s2 + s3)
}

// SumSquares returns the float64 sum of a[i]^2.
func SumSquares[T Float](a []T) float64 {
	var s0, s1 float64
	i := 0
	for ; i <= len(a)-2; i += 2 {
		v0, v1 := float64(a[i]), float64(a[i+1])
		s0 += v0 * v0
		s1 += v1 * v1
	}
	for ; i < len(a); i++ {
		v := float64(a[i])
		s0 += v * v
	}
	return s0 + s1
}

// Dot computes the float64 dot product of a and b.
func Dot[T Float](a, b []T) float64 {
	var sum float64
	i := 0
	for ; i <= len(a)-4; i += 4 {
		sum += float64(a[i]) * float64(b[i])
		sum += float64(a[i+1]) * float64(b[i+1])
		sum += float64(a[i+2]) * float64(b[i+2])
		sum += float64(a[i+3]) * float64(b[i+3])
	}
	for ; i < len(a); i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// SquaredDistance returns sum((a[i]-b[i])^2) in float64.
func SquaredDistance[T Float](a, b []T) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// MinMax returns the smallest and largest element of a non-empty slice.
// A NaN anywhere makes both results NaN.
func MinMax[T Float](a []T) (lo, hi float64) {
	lo, hi = float64(a[0]), float64(a[0])
	for _, v := range a[1:] {
		f := float64(v)
		if f != f {
			return f, f
		}
		if f < lo {
			lo = f
		}
		if f > hi {
			hi = f
		}
	}
	if lo != lo {
		return lo, lo
	}
	return lo, hi
}

// MaxAbs returns the largest |a[i]|, or NaN if any element is NaN.
func MaxAbs[T Float](a []T) float64 {
	var hi float64
	for _, v := range a {
		f := float64(v)
		if f != f {
			return f
		}
		if f < 0 {
			f = -f
		}
		if f > hi {
			hi = f
		}
	}
	return hi
}
