package ndarray

import (
	"slices"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/pkg/errors"

	"github.com/23skdu/longbow-ndexec/internal/buffer"
	"github.com/23skdu/longbow-ndexec/internal/config"
)

// Factory creates dense C-ordered arrays of one element type from one allocator.
type Factory struct {
	dtype buffer.DType
	mem   memory.Allocator
}

// NewFactory returns a factory for dtype. A nil allocator means the Arrow
// default allocator.
func NewFactory(dtype buffer.DType, mem memory.Allocator) *Factory {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	return &Factory{dtype: dtype, mem: mem}
}

// Default returns a factory for the element type configured in the
// process-wide Environment, drawing from mem (nil for the Arrow default).
func Default(mem memory.Allocator) *Factory {
	dtype, err := buffer.ParseDType(config.Env().Configuration().DType)
	if err != nil {
		dtype = buffer.Double
	}
	return NewFactory(dtype, mem)
}

func (f *Factory) DType() buffer.DType         { return f.dtype }
func (f *Factory) Allocator() memory.Allocator { return f.mem }

func (f *Factory) wrap(buf buffer.DataBuffer, shape []int) *NDArray {
	return &NDArray{
		buf:    buf,
		mem:    f.mem,
		shape:  slices.Clone(shape),
		stride: defaultStrides(shape, C),
		order:  C,
	}
}

func resolveShape(n int, shape []int) ([]int, error) {
	if len(shape) == 0 {
		shape = []int{n}
	}
	if !validShape(shape) {
		return nil, errors.Wrapf(ErrInvalidShape, "%v", shape)
	}
	if shapeLength(shape) != n {
		return nil, errors.Wrapf(ErrInvalidShape, "shape %v holds %d elements, got %d values", shape, shapeLength(shape), n)
	}
	return shape, nil
}

// New allocates a zero-filled array.
func (f *Factory) New(shape ...int) (*NDArray, error) {
	if len(shape) == 0 || !validShape(shape) {
		return nil, errors.Wrapf(ErrInvalidShape, "%v", shape)
	}
	buf, err := buffer.NewWithAllocator(f.mem, f.dtype, shapeLength(shape))
	if err != nil {
		return nil, err
	}
	return f.wrap(buf, shape), nil
}

// Create copies values into a new array. Without a shape the result is a
// vector of len(values).
func (f *Factory) Create(values []float64, shape ...int) (*NDArray, error) {
	if len(values) == 0 {
		return nil, errors.Wrap(ErrInvalidShape, "no values")
	}
	shape, err := resolveShape(len(values), shape)
	if err != nil {
		return nil, err
	}
	buf, err := buffer.FromFloat64s(f.mem, f.dtype, values)
	if err != nil {
		return nil, err
	}
	return f.wrap(buf, shape), nil
}

// CreateFloat32 is Create for single precision input.
func (f *Factory) CreateFloat32(values []float32, shape ...int) (*NDArray, error) {
	if len(values) == 0 {
		return nil, errors.Wrap(ErrInvalidShape, "no values")
	}
	shape, err := resolveShape(len(values), shape)
	if err != nil {
		return nil, err
	}
	buf, err := buffer.FromFloat32s(f.mem, f.dtype, values)
	if err != nil {
		return nil, err
	}
	return f.wrap(buf, shape), nil
}

// Linspace returns count evenly spaced values from start to end inclusive.
func (f *Factory) Linspace(start, end float64, count int) (*NDArray, error) {
	if count <= 0 {
		return nil, errors.Wrapf(ErrInvalidShape, "linspace of %d values", count)
	}
	values := make([]float64, count)
	if count == 1 {
		values[0] = start
	} else {
		step := (end - start) / float64(count-1)
		for i := range values {
			values[i] = start + float64(i)*step
		}
		values[count-1] = end
	}
	return f.Create(values)
}

// ValueArrayOf returns a vector of n copies of v.
func (f *Factory) ValueArrayOf(n int, v float64) (*NDArray, error) {
	a, err := f.New(n)
	if err != nil {
		return nil, err
	}
	if v != 0 {
		for i := 0; i < n; i++ {
			a.buf.SetDouble(i, v)
		}
	}
	return a, nil
}

func (f *Factory) Ones(n int) (*NDArray, error)  { return f.ValueArrayOf(n, 1) }
func (f *Factory) Zeros(n int) (*NDArray, error) { return f.New(n) }

// Scalar returns a rank-0 array holding v.
func (f *Factory) Scalar(v float64) (*NDArray, error) {
	buf, err := buffer.NewWithAllocator(f.mem, f.dtype, 1)
	if err != nil {
		return nil, err
	}
	buf.SetDouble(0, v)
	return f.wrap(buf, []int{}), nil
}
