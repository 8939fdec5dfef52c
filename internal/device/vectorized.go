package device

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/23skdu/longbow-ndexec/internal/buffer"
	"github.com/23skdu/longbow-ndexec/internal/ndarray"
	"github.com/23skdu/longbow-ndexec/internal/ops"
	"github.com/23skdu/longbow-ndexec/internal/simd"
)

var _ Backend = (*VectorizedBackend)(nil)

// VectorizedBackend runs ops over dense slices when every operand shares one
// contiguous layout: gonum for double precision, the simd kernels for single.
// Reductions over strided or half precision views gather into pooled float64
// scratch first. Anything else goes through the reference kernels.
type VectorizedBackend struct{}

func NewVectorizedBackend() *VectorizedBackend {
	return &VectorizedBackend{}
}

func (b *VectorizedBackend) Name() string {
	return "vectorized"
}

func (b *VectorizedBackend) Supports(t ops.Type) bool {
	return t.Valid()
}

func (b *VectorizedBackend) Synchronize() {}

func (b *VectorizedBackend) Scalar(o *ops.Op) error {
	if err := checkKind(b, o, ops.KindScalar, ops.KindComparison); err != nil {
		return err
	}
	return b.elementwise(o)
}

func (b *VectorizedBackend) Transform(o *ops.Op) error {
	if err := checkKind(b, o, ops.KindTransform); err != nil {
		return err
	}
	if o.Type() == ops.SoftMax {
		if zs, ok := dense64(o.X(), nil, o.X()); ok && sameView(o) {
			ops.SoftMaxInPlace(zs)
			return nil
		}
		softMax(o)
		return nil
	}
	return b.elementwise(o)
}

func (b *VectorizedBackend) elementwise(o *ops.Op) error {
	x, y, z := o.Operands()
	switch x.DType() {
	case buffer.Double:
		if xs, ok := dense64(x, y, z); ok {
			ys, _ := dense64(y, x, z)
			zs, _ := dense64(z, x, y)
			return elementwise64(o, xs, ys, zs)
		}
	case buffer.Float:
		if xs, ok := dense32(x, y, z); ok {
			ys, _ := dense32(y, x, z)
			zs, _ := dense32(z, x, y)
			return elementwise32(o, xs, ys, zs)
		}
	}
	vectorizedFallbacks.WithLabelValues(o.Type().String()).Inc()
	return elementwise(o, 0, x.Length())
}

func (b *VectorizedBackend) Accumulate(o *ops.Op) (float64, error) {
	if err := checkKind(b, o, ops.KindAccumulation); err != nil {
		return 0, err
	}
	x, y, _ := o.Operands()
	n := x.Length()
	if n < o.MinElements() {
		return 0, errors.Wrapf(ops.ErrInsufficientElements, "%s of %d elements", o.Type(), n)
	}

	switch x.DType() {
	case buffer.Double:
		if xs, ok := dense64(x, y, nil); ok {
			ys, _ := dense64(y, x, nil)
			return reduce64(o, xs, ys), nil
		}
		if v, ok := reduceStrided(o); ok {
			return v, nil
		}
	case buffer.Float:
		if xs, ok := dense32(x, y, nil); ok {
			ys, _ := dense32(y, x, nil)
			if v, ok := reduce32(o, xs, ys); ok {
				return v, nil
			}
		}
	}

	xbuf := scratch.get(n)
	defer scratch.put(xbuf)
	gather(*xbuf, x)
	var ys []float64
	if y != nil {
		ybuf := scratch.get(n)
		defer scratch.put(ybuf)
		gather(*ybuf, y)
		ys = *ybuf
	}
	return reduce64(o, *xbuf, ys), nil
}

// sameView reports whether z is x itself, so a kernel may work in place on x's storage.
func sameView(o *ops.Op) bool {
	x, _, z := o.Operands()
	return x == z || (x.Buffer() == z.Buffer() && x.Offset() == z.Offset() && x.SameLayout(z))
}

// dense64 returns the dense double slice behind a when a and every non-nil
// peer share one contiguous layout. A nil a yields (nil, true).
func dense64(a, p1, p2 *ndarray.NDArray) ([]float64, bool) {
	if a == nil {
		return nil, true
	}
	data := a.Buffer().Float64s()
	if data == nil || !alignedWith(a, p1, p2) {
		return nil, false
	}
	off, n, ok := a.Span()
	if !ok {
		return nil, false
	}
	return data[off : off+n], true
}

func dense32(a, p1, p2 *ndarray.NDArray) ([]float32, bool) {
	if a == nil {
		return nil, true
	}
	data := a.Buffer().Float32s()
	if data == nil || !alignedWith(a, p1, p2) {
		return nil, false
	}
	off, n, ok := a.Span()
	if !ok {
		return nil, false
	}
	return data[off : off+n], true
}

func alignedWith(a *ndarray.NDArray, peers ...*ndarray.NDArray) bool {
	for _, p := range peers {
		if p == nil {
			continue
		}
		if p.DType() != a.DType() || !p.IsContiguous() || !a.SameLayout(p) {
			return false
		}
	}
	return true
}

func elementwise64(o *ops.Op, xs, ys, zs []float64) error {
	s := o.Scalar()
	switch o.Type() {
	case ops.ScalarAdd:
		copy(zs, xs)
		floats.AddConst(s, zs)
	case ops.ScalarSub:
		copy(zs, xs)
		floats.AddConst(-s, zs)
	case ops.ScalarMul:
		copy(zs, xs)
		floats.Scale(s, zs)
	case ops.AddOp:
		floats.AddTo(zs, xs, ys)
	case ops.SubOp:
		floats.SubTo(zs, xs, ys)
	case ops.MulOp:
		floats.MulTo(zs, xs, ys)
	case ops.DivOp:
		floats.DivTo(zs, xs, ys)
	case ops.CopyOp:
		copy(zs, ys)
	default:
		f := o.Func()
		if f == nil {
			return errors.Wrapf(ops.ErrIllegalOpKind, "%s has no element function", o.Type())
		}
		if ys == nil {
			for i, v := range xs {
				zs[i] = f(v, 0)
			}
			return nil
		}
		for i, v := range xs {
			zs[i] = f(v, ys[i])
		}
	}
	return nil
}

func elementwise32(o *ops.Op, xs, ys, zs []float32) error {
	s := o.Scalar()
	exact := float64(float32(s)) == s
	switch {
	case o.Type() == ops.ScalarAdd && exact:
		copy(zs, xs)
		simd.AddConst(zs, float32(s))
		return nil
	case o.Type() == ops.ScalarMul && exact:
		copy(zs, xs)
		simd.Scale(zs, float32(s))
		return nil
	case o.Type() == ops.AddOp:
		simd.Add(zs, xs, ys)
		return nil
	case o.Type() == ops.SubOp:
		simd.Sub(zs, xs, ys)
		return nil
	case o.Type() == ops.MulOp:
		simd.Mul(zs, xs, ys)
		return nil
	case o.Type() == ops.DivOp:
		simd.Div(zs, xs, ys)
		return nil
	case o.Type() == ops.CopyOp:
		copy(zs, ys)
		return nil
	}
	f := o.Func()
	if f == nil {
		return errors.Wrapf(ops.ErrIllegalOpKind, "%s has no element function", o.Type())
	}
	if ys == nil {
		simd.Map(zs, xs, func(v float64) float64 { return f(v, 0) })
		return nil
	}
	for i, v := range xs {
		zs[i] = float32(f(float64(v), float64(ys[i])))
	}
	return nil
}

func reduce64(o *ops.Op, xs, ys []float64) float64 {
	switch o.Type() {
	case ops.Sum:
		return floats.Sum(xs)
	case ops.Prod:
		return floats.Prod(xs)
	case ops.Mean:
		return moment(o, stat.Mean(xs, nil), xs)
	case ops.Variance:
		if o.BiasCorrected() {
			return moment(o, stat.Variance(xs, nil), xs)
		}
		return moment(o, stat.PopVariance(xs, nil), xs)
	case ops.StandardDeviation:
		if o.BiasCorrected() {
			return moment(o, stat.StdDev(xs, nil), xs)
		}
		return moment(o, stat.PopStdDev(xs, nil), xs)
	case ops.Max:
		_, hi := simd.MinMax(xs)
		return hi
	case ops.Min:
		lo, _ := simd.MinMax(xs)
		return lo
	case ops.Norm1:
		return floats.Norm(xs, 1)
	case ops.Norm2:
		return floats.Norm(xs, 2)
	case ops.NormMax:
		return simd.MaxAbs(xs)
	case ops.EuclideanDistance:
		return floats.Distance(xs, ys, 2)
	case ops.ManhattanDistance:
		return floats.Distance(xs, ys, 1)
	case ops.CosineSimilarity:
		return floats.Dot(xs, ys) / (floats.Norm(xs, 2) * floats.Norm(ys, 2))
	}
	return math.NaN()
}

// moment returns v when it is finite. gonum sums before dividing, so a
// non-finite v is recomputed with the Welford accumulator the other backends use.
func moment(o *ops.Op, v float64, xs []float64) float64 {
	if !math.IsInf(v, 0) && !math.IsNaN(v) {
		return v
	}
	acc := ops.NewAccumulator(o)
	for _, x := range xs {
		acc.Add(x, 0)
	}
	if r, err := acc.Result(); err == nil {
		return r
	}
	return v
}

// reduce32 covers the reductions the simd kernels implement directly.
func reduce32(o *ops.Op, xs, ys []float32) (float64, bool) {
	switch o.Type() {
	case ops.Sum:
		return simd.Sum(xs), true
	case ops.Norm2:
		return math.Sqrt(simd.SumSquares(xs)), true
	case ops.NormMax:
		return simd.MaxAbs(xs), true
	case ops.Max:
		_, hi := simd.MinMax(xs)
		return hi, true
	case ops.Min:
		lo, _ := simd.MinMax(xs)
		return lo, true
	case ops.EuclideanDistance:
		return math.Sqrt(simd.SquaredDistance(xs, ys)), true
	case ops.CosineSimilarity:
		return simd.Dot(xs, ys) / (math.Sqrt(simd.SumSquares(xs)) * math.Sqrt(simd.SumSquares(ys))), true
	}
	return 0, false
}

// reduceStrided handles rank-1 double views with a positive stride through
// BLAS level 1 routines without gathering.
func reduceStrided(o *ops.Op) (float64, bool) {
	x, y, _ := o.Operands()
	xv, ok := blasVector(x)
	if !ok {
		return 0, false
	}
	switch o.Type() {
	case ops.Norm1:
		return blas64.Asum(xv), true
	case ops.Norm2:
		return blas64.Nrm2(xv), true
	case ops.CosineSimilarity:
		yv, ok := blasVector(y)
		if !ok {
			return 0, false
		}
		return blas64.Dot(xv, yv) / (blas64.Nrm2(xv) * blas64.Nrm2(yv)), true
	}
	return 0, false
}

func blasVector(a *ndarray.NDArray) (blas64.Vector, bool) {
	if a == nil || a.Rank() != 1 || a.DType() != buffer.Double {
		return blas64.Vector{}, false
	}
	inc := a.Stride()[0]
	data := a.Buffer().Float64s()
	if inc < 1 || data == nil {
		return blas64.Vector{}, false
	}
	return blas64.Vector{N: a.Length(), Data: data[a.Offset():], Inc: inc}, true
}
