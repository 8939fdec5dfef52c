package ndarray

import (
	"math"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-ndexec/internal/buffer"
	"github.com/23skdu/longbow-ndexec/internal/config"
)

func linspace(t *testing.T, f *Factory, n int) *NDArray {
	t.Helper()
	a, err := f.Linspace(1, float64(n), n)
	require.NoError(t, err)
	return a
}

func TestFactory(t *testing.T) {
	f := NewFactory(buffer.Double, nil)

	t.Run("Linspace", func(t *testing.T) {
		a := linspace(t, f, 5)
		assert.Equal(t, []float64{1, 2, 3, 4, 5}, a.ToFloat64s())
		assert.Equal(t, []int{5}, a.Shape())
		assert.Equal(t, C, a.Order())
	})

	t.Run("Default", func(t *testing.T) {
		env := config.Env()
		prev := env.Configuration()
		t.Cleanup(func() { require.NoError(t, env.Set(prev)) })

		cfg := prev
		cfg.DType = "float"
		require.NoError(t, env.Set(cfg))
		mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
		d := Default(mem)
		assert.Equal(t, buffer.Float, d.DType())
		assert.Same(t, mem, d.Allocator())
		assert.Equal(t, memory.DefaultAllocator, Default(nil).Allocator())
	})

	t.Run("CreateWithShape", func(t *testing.T) {
		a, err := f.Create([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
		require.NoError(t, err)
		assert.Equal(t, []int{3, 1}, a.Stride())
		v, err := a.GetAt(1, 2)
		require.NoError(t, err)
		assert.Equal(t, 6.0, v)
	})

	t.Run("OnesZerosValue", func(t *testing.T) {
		ones, err := f.Ones(3)
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 1, 1}, ones.ToFloat64s())
		zeros, err := f.Zeros(2)
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 0}, zeros.ToFloat64s())
		twos, err := f.ValueArrayOf(4, 2)
		require.NoError(t, err)
		assert.Equal(t, []float64{2, 2, 2, 2}, twos.ToFloat64s())
	})

	t.Run("Scalar", func(t *testing.T) {
		s, err := f.Scalar(7)
		require.NoError(t, err)
		assert.Equal(t, 0, s.Rank())
		assert.Equal(t, 1, s.Length())
		v, err := s.GetDouble(0)
		require.NoError(t, err)
		assert.Equal(t, 7.0, v)
		assert.Equal(t, "7", s.String())
	})

	t.Run("Float32Input", func(t *testing.T) {
		a, err := NewFactory(buffer.Float, nil).CreateFloat32([]float32{0.5, 1.5})
		require.NoError(t, err)
		assert.Equal(t, buffer.Float, a.DType())
		assert.Equal(t, []float32{0.5, 1.5}, a.Buffer().Float32s())
	})

	t.Run("Errors", func(t *testing.T) {
		_, err := f.Create([]float64{1, 2, 3}, 2, 2)
		assert.ErrorIs(t, err, ErrInvalidShape)
		_, err = f.Linspace(0, 1, 0)
		assert.ErrorIs(t, err, ErrInvalidShape)
		_, err = f.New(3, 0)
		assert.ErrorIs(t, err, ErrInvalidShape)
		_, err = f.Create(nil)
		assert.ErrorIs(t, err, ErrInvalidShape)
	})
}

func TestReshape(t *testing.T) {
	f := NewFactory(buffer.Double, nil)

	t.Run("RowMajor", func(t *testing.T) {
		a := linspace(t, f, 6)
		m, err := a.Reshape(2, 3)
		require.NoError(t, err)
		assert.Same(t, a.Buffer(), m.Buffer())
		assert.Equal(t, "[[1, 2, 3], [4, 5, 6]]", m.String())
	})

	t.Run("ColumnMajor", func(t *testing.T) {
		a := linspace(t, f, 6)
		m, err := a.ReshapeOrder(F, 2, 3)
		require.NoError(t, err)
		assert.Same(t, a.Buffer(), m.Buffer())
		assert.Equal(t, []int{1, 2}, m.Stride())
		assert.Equal(t, "[[1, 3, 5], [2, 4, 6]]", m.String())
		// Linear indices follow the view's own order.
		assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, m.ToFloat64s())
	})

	t.Run("SharesWrites", func(t *testing.T) {
		a := linspace(t, f, 4)
		m, err := a.Reshape(2, 2)
		require.NoError(t, err)
		require.NoError(t, m.PutAt(40, 1, 1))
		v, _ := a.GetDouble(3)
		assert.Equal(t, 40.0, v)
	})

	t.Run("StridedViewIsCopied", func(t *testing.T) {
		m, err := linspace(t, f, 6).ReshapeOrder(F, 2, 3)
		require.NoError(t, err)
		row, err := m.Slice(0, 0)
		require.NoError(t, err)
		col, err := row.Reshape(3, 1)
		require.NoError(t, err)
		assert.NotSame(t, row.Buffer(), col.Buffer())
		assert.Equal(t, []float64{1, 3, 5}, col.ToFloat64s())
	})

	t.Run("CountMismatch", func(t *testing.T) {
		_, err := linspace(t, f, 6).Reshape(4, 2)
		assert.ErrorIs(t, err, ErrShapeMismatch)
		_, err = linspace(t, f, 6).Reshape(-2, -3)
		assert.ErrorIs(t, err, ErrInvalidShape)
	})
}

func TestSlice(t *testing.T) {
	f := NewFactory(buffer.Double, nil)
	m, err := f.Create([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	require.NoError(t, err)

	t.Run("Rows", func(t *testing.T) {
		r, err := m.GetRow(1)
		require.NoError(t, err)
		assert.Equal(t, []float64{4, 5, 6}, r.ToFloat64s())
		assert.Equal(t, 3, r.Offset())
	})

	t.Run("Columns", func(t *testing.T) {
		c, err := m.GetColumn(2)
		require.NoError(t, err)
		assert.Equal(t, []float64{3, 6}, c.ToFloat64s())
		assert.Equal(t, []int{3}, c.Stride())
		assert.False(t, c.IsContiguous())
		_, _, ok := c.Span()
		assert.False(t, ok)
	})

	t.Run("NegativeAxis", func(t *testing.T) {
		c, err := m.Slice(0, -1)
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 4}, c.ToFloat64s())
	})

	t.Run("StridedColumnMajorSlice", func(t *testing.T) {
		fm, err := linspace(t, f, 6).ReshapeOrder(F, 2, 3)
		require.NoError(t, err)
		s, err := fm.Slice(0, 0)
		require.NoError(t, err)
		assert.Equal(t, []int{2}, s.Stride())
		for i, want := range []float64{1, 3, 5} {
			got, err := s.GetDouble(i)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	})

	t.Run("AllSlices", func(t *testing.T) {
		rows, err := m.Slices(0)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, []float64{1, 2, 3}, rows[0].ToFloat64s())
	})

	t.Run("Errors", func(t *testing.T) {
		_, err := m.Slice(2, 0)
		assert.ErrorIs(t, err, ErrIndexOutOfBounds)
		_, err = m.Slice(0, 2)
		assert.ErrorIs(t, err, ErrIndexOutOfBounds)
		v := linspace(t, f, 3)
		_, err = v.GetRow(0)
		assert.ErrorIs(t, err, ErrInvalidShape)
		_, err = v.GetDouble(3)
		assert.ErrorIs(t, err, ErrIndexOutOfBounds)
		assert.ErrorIs(t, v.PutDouble(-1, 0), ErrIndexOutOfBounds)
		_, err = m.GetAt(0)
		assert.ErrorIs(t, err, ErrIndexOutOfBounds)
	})
}

func TestView(t *testing.T) {
	buf, err := buffer.FromFloat64s(memory.DefaultAllocator, buffer.Double, []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)

	t.Run("Strided", func(t *testing.T) {
		a, err := View(buf, 1, []int{2, 2}, []int{3, 1}, C)
		require.NoError(t, err)
		assert.Equal(t, []float64{2, 3, 5, 6}, a.ToFloat64s())
		assert.False(t, a.IsContiguous())
		v, err := a.GetAt(1, 0)
		require.NoError(t, err)
		assert.Equal(t, 5.0, v)
	})

	t.Run("NegativeStride", func(t *testing.T) {
		a, err := View(buf, 4, []int{3}, []int{-2}, C)
		require.NoError(t, err)
		assert.Equal(t, []float64{5, 3, 1}, a.ToFloat64s())

		_, err = View(buf, 3, []int{3}, []int{-2}, C)
		assert.ErrorIs(t, err, ErrIndexOutOfBounds)
	})

	t.Run("TooShort", func(t *testing.T) {
		_, err := View(buf, 0, []int{2, 3}, []int{4, 1}, C)
		assert.ErrorIs(t, err, ErrIndexOutOfBounds)
		_, err = View(buf, 1, []int{6}, []int{1}, C)
		assert.ErrorIs(t, err, ErrIndexOutOfBounds)
	})

	t.Run("InvalidShape", func(t *testing.T) {
		_, err := View(buf, 0, []int{2, 3}, []int{1}, C)
		assert.ErrorIs(t, err, ErrInvalidShape)
		_, err = View(buf, 0, []int{0}, []int{1}, C)
		assert.ErrorIs(t, err, ErrInvalidShape)
	})
}

func TestDup(t *testing.T) {
	f := NewFactory(buffer.Double, nil)
	a := linspace(t, f, 4)
	d := a.Dup()
	require.True(t, a.Equal(d))

	require.NoError(t, d.PutDouble(0, 100))
	v, _ := a.GetDouble(0)
	assert.Equal(t, 1.0, v)
	assert.False(t, a.Equal(d))

	m, err := linspace(t, f, 6).ReshapeOrder(F, 2, 3)
	require.NoError(t, err)
	c := m.DupOrder(C)
	assert.Equal(t, []int{3, 1}, c.Stride())
	assert.True(t, m.Equal(c))
	assert.Equal(t, []float64{1, 3, 5, 2, 4, 6}, c.ToFloat64s())
}

func TestEquality(t *testing.T) {
	f := NewFactory(buffer.Double, nil)
	a, _ := f.Create([]float64{1, math.NaN(), 3})
	b, _ := f.Create([]float64{1, math.NaN(), 3 + 1e-9})

	assert.False(t, a.Equal(b))
	assert.True(t, a.EqualWithin(b, 1e-6))
	assert.False(t, a.EqualWithin(b, 1e-12))

	c, _ := f.Create([]float64{1, 2, 3}, 3, 1)
	assert.False(t, a.EqualWithin(c, 1))
	assert.False(t, a.Equal(nil))
}

func TestCursor(t *testing.T) {
	f := NewFactory(buffer.Double, nil)
	m, err := linspace(t, f, 6).ReshapeOrder(F, 2, 3)
	require.NoError(t, err)

	var got []float64
	cur := NewCursor(0, m.Length(), m)
	for cur.Next() {
		got = append(got, m.Buffer().GetDouble(cur.Offset(0)))
	}
	assert.Equal(t, []float64{1, 3, 5, 2, 4, 6}, got)

	t.Run("Range", func(t *testing.T) {
		var idx []int
		cur := NewCursor(2, 5, m)
		for cur.Next() {
			idx = append(idx, cur.Index())
			got = append(got, m.Buffer().GetDouble(cur.Offset(0)))
		}
		assert.Equal(t, []int{2, 3, 4}, idx)
		assert.Equal(t, []float64{5, 2, 4}, got[6:])
	})

	t.Run("Empty", func(t *testing.T) {
		cur := NewCursor(3, 3, m)
		assert.False(t, cur.Next())
	})
}

func TestToArrow(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	f := NewFactory(buffer.Double, nil)
	m, err := linspace(t, f, 6).ReshapeOrder(F, 2, 3)
	require.NoError(t, err)
	row, err := m.Slice(0, 0)
	require.NoError(t, err)

	arr := row.ToArrow(mem)
	defer arr.Release()
	assert.Equal(t, []float64{1, 3, 5}, arr.(*array.Float64).Float64Values())

	t.Run("Half", func(t *testing.T) {
		h, err := NewFactory(buffer.Half, nil).Create([]float64{0.5, -2, 1024})
		require.NoError(t, err)
		arr := h.ToArrow(mem)
		defer arr.Release()
		f16 := arr.(*array.Float16)
		require.Equal(t, 3, f16.Len())
		assert.Equal(t, float32(-2), f16.Value(1).Float32())
	})

	t.Run("Record", func(t *testing.T) {
		rec := m.ToRecord(mem)
		defer rec.Release()
		assert.Equal(t, int64(6), rec.NumRows())
		md := rec.Schema().Metadata()
		assert.Equal(t, []string{"2,3", "f", "double"}, md.Values())
	})
}
