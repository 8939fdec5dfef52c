package ndarray

import "slices"

// Order is the logical element ordering of a view.
type Order byte

const (
	// C is row-major ordering: the last axis varies fastest.
	C Order = 'c'
	// F is column-major ordering: the first axis varies fastest.
	F Order = 'f'
)

func (o Order) String() string {
	if o == F {
		return "f"
	}
	return "c"
}

// shapeLength returns the product of the dimensions; 1 for a rank-0 shape.
func shapeLength(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func validShape(shape []int) bool {
	for _, d := range shape {
		if d <= 0 {
			return false
		}
	}
	return true
}

// defaultStrides returns the dense strides of shape in the given order.
func defaultStrides(shape []int, order Order) []int {
	stride := make([]int, len(shape))
	acc := 1
	if order == F {
		for d := 0; d < len(shape); d++ {
			stride[d] = acc
			acc *= shape[d]
		}
		return stride
	}
	for d := len(shape) - 1; d >= 0; d-- {
		stride[d] = acc
		acc *= shape[d]
	}
	return stride
}

// isCompact reports whether walking shape in order visits consecutive buffer
// positions. Dimensions of extent 1 never move and are ignored.
func isCompact(shape, stride []int, order Order) bool {
	expected := 1
	check := func(d int) bool {
		if shape[d] == 1 {
			return true
		}
		if stride[d] != expected {
			return false
		}
		expected *= shape[d]
		return true
	}
	if order == F {
		for d := 0; d < len(shape); d++ {
			if !check(d) {
				return false
			}
		}
		return true
	}
	for d := len(shape) - 1; d >= 0; d-- {
		if !check(d) {
			return false
		}
	}
	return true
}

func without(s []int, i int) []int {
	out := make([]int, 0, len(s)-1)
	out = append(out, s[:i]...)
	return append(out, s[i+1:]...)
}

// SameShape reports whether two shapes are identical.
func SameShape(a, b []int) bool {
	return slices.Equal(a, b)
}
