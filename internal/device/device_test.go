package device

import (
	"fmt"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-ndexec/internal/buffer"
	"github.com/23skdu/longbow-ndexec/internal/ndarray"
	"github.com/23skdu/longbow-ndexec/internal/ops"
)

const rows, cols = 7, 5

func testBackends(t *testing.T) []Backend {
	t.Helper()
	var out []Backend
	for _, name := range []string{"reference", "vectorized", "parallel"} {
		b, err := New(name, Options{Workers: 4, MinChunkSize: 3})
		require.NoError(t, err)
		out = append(out, b)
	}
	return out
}

func values(n int, seed float64) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = math.Sin(float64(i)+seed) + 1.5
	}
	return v
}

// layouts builds the same logical rows x cols matrix over differently shaped storage.
var layouts = []struct {
	name  string
	build func(t *testing.T, f *ndarray.Factory, vals []float64) *ndarray.NDArray
}{
	{"dense", func(t *testing.T, f *ndarray.Factory, vals []float64) *ndarray.NDArray {
		a, err := f.Create(vals, rows, cols)
		require.NoError(t, err)
		return a
	}},
	{"fortran", func(t *testing.T, f *ndarray.Factory, vals []float64) *ndarray.NDArray {
		d := make([]float64, len(vals))
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				d[i+j*rows] = vals[i*cols+j]
			}
		}
		flat, err := f.Create(d)
		require.NoError(t, err)
		a, err := flat.ReshapeOrder(ndarray.F, rows, cols)
		require.NoError(t, err)
		return a
	}},
	{"strided", func(t *testing.T, f *ndarray.Factory, vals []float64) *ndarray.NDArray {
		d := make([]float64, 2*len(vals))
		for i, v := range vals {
			d[2*i] = v
			d[2*i+1] = -99
		}
		wide, err := f.Create(d, rows, cols, 2)
		require.NoError(t, err)
		a, err := wide.Slice(0, 2)
		require.NoError(t, err)
		require.False(t, a.IsContiguous())
		return a
	}},
}

func closeTo(want, got, rel float64) bool {
	if math.IsNaN(want) {
		return math.IsNaN(got)
	}
	if math.IsInf(want, 0) {
		return want == got
	}
	return math.Abs(want-got) <= rel*math.Max(1, math.Abs(want))
}

func TestRegistry(t *testing.T) {
	assert.Subset(t, Names(), []string{"gpu", "parallel", "reference", "vectorized"})

	_, err := New("tpu", Options{})
	assert.ErrorIs(t, err, ErrUnknownBackend)

	_, err = New("gpu", Options{Device: 1})
	assert.ErrorIs(t, err, ErrBackendUnavailable)

	Register("custom", func(Options) (Backend, error) { return NewReferenceBackend(), nil })
	b, err := New("custom", Options{})
	require.NoError(t, err)
	assert.Equal(t, "reference", b.Name())
}

func TestKindChecks(t *testing.T) {
	x, err := ndarray.NewFactory(buffer.Double, nil).Linspace(1, 4, 4)
	require.NoError(t, err)
	for _, b := range testBackends(t) {
		assert.ErrorIs(t, b.Scalar(ops.NewSum(x)), ops.ErrIllegalOpKind, b.Name())
		assert.ErrorIs(t, b.Transform(ops.NewScalarAdd(x, 1)), ops.ErrIllegalOpKind, b.Name())
		_, err := b.Accumulate(ops.NewExp(x))
		assert.ErrorIs(t, err, ops.ErrIllegalOpKind, b.Name())
		assert.False(t, b.Supports(ops.TypeInvalid))
		b.Synchronize()
	}
}

func TestAccumulationsAgree(t *testing.T) {
	xs, ys := values(rows*cols, 0), values(rows*cols, 1.7)
	var accumulations []ops.Type
	for _, typ := range ops.Types() {
		if typ.Kind() == ops.KindAccumulation {
			accumulations = append(accumulations, typ)
		}
	}
	ref := NewReferenceBackend()

	for _, dtype := range []buffer.DType{buffer.Double, buffer.Float} {
		f := ndarray.NewFactory(dtype, nil)
		refX, refY := layouts[0].build(t, f, xs), layouts[0].build(t, f, ys)
		for _, typ := range accumulations {
			want, err := ref.Accumulate(ops.New(typ, refX, refY, 0))
			require.NoError(t, err)
			for _, b := range testBackends(t) {
				for _, lx := range layouts {
					for _, ly := range layouts {
						name := fmt.Sprintf("%s/%s/%s/%s-%s", dtype, typ, b.Name(), lx.name, ly.name)
						x, y := lx.build(t, f, xs), ly.build(t, f, ys)
						got, err := b.Accumulate(ops.New(typ, x, y, 0))
						require.NoError(t, err, name)
						assert.True(t, closeTo(want, got, 1e-9), "%s: want %v got %v", name, want, got)
					}
				}
			}
		}
	}

	t.Run("LargeMagnitudes", func(t *testing.T) {
		f := ndarray.NewFactory(buffer.Double, nil)
		fill := func(n int, v ...float64) *ndarray.NDArray {
			vals := make([]float64, n)
			for i := range vals {
				vals[i] = v[i*len(v)/n]
			}
			a, err := f.Create(vals)
			require.NoError(t, err)
			return a
		}
		const n = 16
		tests := []struct {
			name string
			op   func() *ops.Op
			want float64
		}{
			{"Norm2", func() *ops.Op { return ops.NewNorm2(fill(n, 1e200, 3e200)) }, math.Sqrt(80) * 1e200},
			{"Norm2Max", func() *ops.Op { return ops.NewNorm2(fill(2, 1e308)) }, math.Sqrt2 * 1e308},
			{"Euclidean", func() *ops.Op { return ops.NewEuclideanDistance(fill(n, 1e200), fill(n, -1e200)) }, 8 * 1e200},
			{"Mean", func() *ops.Op { return ops.NewMean(fill(n, 1e308)) }, 1e308},
			{"Variance", func() *ops.Op { return ops.NewVariance(fill(n, 1e308), true) }, 0},
			{"StandardDeviation", func() *ops.Op { return ops.NewStandardDeviation(fill(n, 1e308), false) }, 0},
			{"Sum", func() *ops.Op { return ops.NewSum(fill(2, 1e308)) }, math.Inf(1)},
		}
		for _, tt := range tests {
			for _, b := range testBackends(t) {
				got, err := b.Accumulate(tt.op())
				require.NoError(t, err)
				assert.True(t, closeTo(tt.want, got, 1e-12), "%s/%s: want %v got %v", tt.name, b.Name(), tt.want, got)
			}
		}
	})
}

func TestElementwiseAgree(t *testing.T) {
	xs, ys := values(rows*cols, 0), values(rows*cols, 0.3)
	build := []func(x, y *ndarray.NDArray) *ops.Op{
		func(x, _ *ndarray.NDArray) *ops.Op { return ops.NewScalarAdd(x, 0.1) },
		func(x, _ *ndarray.NDArray) *ops.Op { return ops.NewScalarAdd(x, 2) },
		func(x, _ *ndarray.NDArray) *ops.Op { return ops.NewScalarSub(x, 0.25) },
		func(x, _ *ndarray.NDArray) *ops.Op { return ops.NewScalarMul(x, 3) },
		func(x, _ *ndarray.NDArray) *ops.Op { return ops.NewScalarReverseDiv(x, 1) },
		func(x, _ *ndarray.NDArray) *ops.Op { return ops.NewScalarGreaterThan(x, 1.5) },
		func(x, _ *ndarray.NDArray) *ops.Op { return ops.NewExp(x) },
		func(x, _ *ndarray.NDArray) *ops.Op { return ops.NewPow(x, 2) },
		func(x, _ *ndarray.NDArray) *ops.Op { return ops.NewSetRange(x, 0, 1) },
		func(x, _ *ndarray.NDArray) *ops.Op { return ops.NewSoftMax(x) },
		func(x, y *ndarray.NDArray) *ops.Op { return ops.NewAdd(x, y, nil) },
		func(x, y *ndarray.NDArray) *ops.Op { return ops.NewSub(x, y, nil) },
		func(x, y *ndarray.NDArray) *ops.Op { return ops.NewMul(x, y, nil) },
		func(x, y *ndarray.NDArray) *ops.Op { return ops.NewDiv(x, y, nil) },
		func(x, y *ndarray.NDArray) *ops.Op { return ops.NewCopy(x, y, nil) },
	}
	run := func(b Backend, o *ops.Op) error {
		if o.Kind() == ops.KindTransform {
			return b.Transform(o)
		}
		return b.Scalar(o)
	}
	ref := NewReferenceBackend()
	k := 0

	for _, dtype := range []buffer.DType{buffer.Double, buffer.Float, buffer.Half} {
		f := ndarray.NewFactory(dtype, nil)
		tol := map[buffer.DType]float64{buffer.Double: 1e-12, buffer.Float: 1e-6, buffer.Half: 1e-2}[dtype]
		for _, mk := range build {
			want := layouts[0].build(t, f, xs)
			wo := mk(want, layouts[0].build(t, f, ys))
			require.NoError(t, run(ref, wo))

			for _, b := range testBackends(t) {
				for _, l := range layouts {
					name := fmt.Sprintf("%s/%s/%s/%s", dtype, wo.Type(), b.Name(), l.name)

					// in place
					x := l.build(t, f, xs)
					require.NoError(t, run(b, mk(x, l.build(t, f, ys))), name)
					assert.True(t, want.EqualWithin(x, tol), "%s in place: want %v got %v", name, want, x)

					// separate output in a different layout
					x = l.build(t, f, xs)
					k++
					z := layouts[k%len(layouts)].build(t, f, make([]float64, rows*cols))
					require.NoError(t, run(b, mk(x, l.build(t, f, ys)).WithOutput(z)), name)
					assert.True(t, want.EqualWithin(z, tol), "%s to z: want %v got %v", name, want, z)
					assert.True(t, l.build(t, f, xs).Equal(x), "%s: input modified", name)
				}
			}
		}
	}
}

func TestStridedBLAS(t *testing.T) {
	f := ndarray.NewFactory(buffer.Double, nil)
	m, err := f.Create(values(rows*cols, 0), rows, cols)
	require.NoError(t, err)
	x, err := m.GetColumn(1)
	require.NoError(t, err)
	y, err := m.GetColumn(3)
	require.NoError(t, err)

	ref, vec := NewReferenceBackend(), NewVectorizedBackend()
	for _, o := range []*ops.Op{ops.NewNorm1(x), ops.NewNorm2(x), ops.NewCosineSimilarity(x, y)} {
		want, err := ref.Accumulate(o)
		require.NoError(t, err)
		_, ok := reduceStrided(o)
		require.True(t, ok, o.String())
		got, err := vec.Accumulate(o)
		require.NoError(t, err)
		assert.InDelta(t, want, got, 1e-12, o.String())
	}
}

func TestSoftMaxSumsToOne(t *testing.T) {
	f := ndarray.NewFactory(buffer.Double, nil)
	for _, b := range testBackends(t) {
		x, err := f.Create([]float64{1, 2, 3, 4, 1000, -1000})
		require.NoError(t, err)
		require.NoError(t, b.Transform(ops.NewSoftMax(x)))
		sum, err := NewReferenceBackend().Accumulate(ops.NewSum(x))
		require.NoError(t, err)
		assert.InDelta(t, 1, sum, 1e-12, b.Name())
	}
}

func TestInsufficientElements(t *testing.T) {
	x, err := ndarray.NewFactory(buffer.Double, nil).Create([]float64{3})
	require.NoError(t, err)
	for _, b := range testBackends(t) {
		_, err := b.Accumulate(ops.NewVariance(x, true))
		assert.ErrorIs(t, err, ops.ErrInsufficientElements, b.Name())
		v, err := b.Accumulate(ops.NewVariance(x, false))
		require.NoError(t, err)
		assert.Equal(t, 0.0, v)
	}
}

func TestParallelChunks(t *testing.T) {
	b := NewParallelBackend(Options{Workers: 3, MinChunkSize: 4})
	assert.Equal(t, [][2]int{{0, 3}}, b.chunks(3))
	assert.Equal(t, [][2]int{{0, 4}, {4, 8}, {8, 10}}, b.chunks(10))
	assert.Equal(t, [][2]int{{0, 34}, {34, 68}, {68, 100}}, b.chunks(100))

	d := NewParallelBackend(Options{})
	assert.Positive(t, d.workers)
	assert.Equal(t, 1, d.minChunk)
}

func TestScratchPoolMetrics(t *testing.T) {
	hits, misses := testutil.ToFloat64(scratchHits), testutil.ToFloat64(scratchMisses)
	for i := 0; i < 20; i++ {
		s := scratch.get(64)
		require.Len(t, *s, 64)
		scratch.put(s)
	}
	dh := testutil.ToFloat64(scratchHits) - hits
	dm := testutil.ToFloat64(scratchMisses) - misses
	assert.Equal(t, 20.0, dh+dm)
	assert.GreaterOrEqual(t, dh, 1.0)
}

func TestVectorizedFallbackMetric(t *testing.T) {
	f := ndarray.NewFactory(buffer.Half, nil)
	x, err := f.Linspace(1, 4, 4)
	require.NoError(t, err)
	before := testutil.ToFloat64(vectorizedFallbacks.WithLabelValues("exp"))
	require.NoError(t, NewVectorizedBackend().Transform(ops.NewExp(x)))
	assert.Equal(t, before+1, testutil.ToFloat64(vectorizedFallbacks.WithLabelValues("exp")))
}

func BenchmarkSum(b *testing.B) {
	x, _ := ndarray.NewFactory(buffer.Double, nil).Linspace(0, 1, 1<<16)
	for _, name := range []string{"reference", "vectorized", "parallel"} {
		be, _ := New(name, Options{Workers: 4, MinChunkSize: 4096})
		b.Run(name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				_, _ = be.Accumulate(ops.NewSum(x))
			}
		})
	}
}
