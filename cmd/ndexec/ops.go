package main

import (
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/23skdu/longbow-ndexec/internal/buffer"
	"github.com/23skdu/longbow-ndexec/internal/ndarray"
	"github.com/23skdu/longbow-ndexec/internal/ops"
)

// parseShape parses "2,3,4". An empty string yields a vector of n elements.
func parseShape(s string, n int) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []int{n}, nil
	}
	parts := strings.Split(s, ",")
	shape := make([]int, len(parts))
	for i, p := range parts {
		d, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || d <= 0 {
			return nil, errors.Wrapf(ndarray.ErrInvalidShape, "shape %q", s)
		}
		shape[i] = d
	}
	return shape, nil
}

// checkBudget rejects inputs whose storage would exceed budget ("1GiB",
// "512MB"). An empty or zero budget disables the check.
func checkBudget(shape []int, dtype buffer.DType, budget string) error {
	if budget == "" || budget == "0" {
		return nil
	}
	limit, err := humanize.ParseBytes(budget)
	if err != nil {
		return errors.Wrapf(err, "input budget %q", budget)
	}
	n := uint64(dtype.Size())
	for _, d := range shape {
		n *= uint64(d)
	}
	if n > limit {
		return errors.Wrapf(ndarray.ErrInvalidShape, "input of %s exceeds budget of %s", humanize.IBytes(n), humanize.IBytes(limit))
	}
	return nil
}

// parseAxis returns ok=false for an empty string, meaning the whole array.
func parseAxis(s string) (axis int, ok bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}
	axis, err = strconv.Atoi(s)
	if err != nil {
		return 0, false, errors.Wrapf(ndarray.ErrIndexOutOfBounds, "axis %q", s)
	}
	return axis, true, nil
}

func parseArgs(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "op argument %q", p)
		}
		out[i] = v
	}
	return out, nil
}

// input fills a new array of the given shape with 1..n in row-major order.
func input(f *ndarray.Factory, shape []int) (*ndarray.NDArray, error) {
	n := 1
	for _, d := range shape {
		n *= d
	}
	v, err := f.Linspace(1, float64(n), n)
	if err != nil {
		return nil, err
	}
	return v.Reshape(shape...)
}

// companion returns the second operand of pairwise ops: x's values in reverse.
func companion(x *ndarray.NDArray) (*ndarray.NDArray, error) {
	y, err := x.NewLike(x.Shape()...)
	if err != nil {
		return nil, err
	}
	n := x.Length()
	for i := 0; i < n; i++ {
		v, err := x.GetDouble(n - 1 - i)
		if err != nil {
			return nil, err
		}
		if err := y.PutDouble(i, v); err != nil {
			return nil, err
		}
	}
	return y, nil
}

type opSpec struct {
	name   string
	scalar float64
	args   []float64
	bias   bool
}

// build creates an op over x. Elementwise ops write to a fresh output so
// that x keeps its values across repeated runs.
func (s opSpec) build(x *ndarray.NDArray) (*ops.Op, error) {
	t, err := ops.ParseType(s.name)
	if err != nil {
		return nil, err
	}
	var y *ndarray.NDArray
	if t.Pairwise() {
		if y, err = companion(x); err != nil {
			return nil, err
		}
	}
	args := s.args
	switch {
	case t == ops.Pow && len(args) == 0:
		args = []float64{2}
	case t == ops.SetRange && len(args) == 0:
		args = []float64{0, 1}
	}
	var op *ops.Op
	switch t {
	case ops.Variance:
		op = ops.NewVariance(x, s.bias)
	case ops.StandardDeviation:
		op = ops.NewStandardDeviation(x, s.bias)
	default:
		op = ops.New(t, x, y, s.scalar, args...)
	}
	if op.Kind() != ops.KindAccumulation {
		z, err := x.NewLike(x.Shape()...)
		if err != nil {
			return nil, err
		}
		op.WithOutput(z)
	}
	return op, nil
}
