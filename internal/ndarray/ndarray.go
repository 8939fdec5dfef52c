package ndarray

import (
	"math"
	"slices"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-ndexec/internal/buffer"
)

// NDArray is a strided view over a DataBuffer: (buffer, offset, shape, stride, order).
//
// Views created by Slice, GetRow, GetColumn and Reshape share the buffer of
// their parent, so writes through one are visible through the other. Dup
// is the only way to obtain independent storage.
//
// Linear logical indices (GetDouble, PutDouble, ToFloat64s) follow the view's
// order. Kernels that touch several views at once walk them with a Cursor,
// which always goes row-major over the shared shape.
type NDArray struct {
	buf    buffer.DataBuffer
	mem    memory.Allocator
	offset int
	shape  []int
	stride []int
	order  Order
}

// View wraps buf with an explicit layout. It validates that every reachable
// element lies inside the buffer.
func View(buf buffer.DataBuffer, offset int, shape, stride []int, order Order) (*NDArray, error) {
	if len(shape) != len(stride) {
		return nil, errors.Wrapf(ErrInvalidShape, "shape %v has %d strides", shape, len(stride))
	}
	if !validShape(shape) {
		return nil, errors.Wrapf(ErrInvalidShape, "shape %v", shape)
	}
	lo, hi := offset, offset
	for d, n := range shape {
		step := stride[d] * (n - 1)
		if step < 0 {
			lo += step
		} else {
			hi += step
		}
	}
	if lo < 0 || hi >= buf.Len() {
		return nil, errors.Wrapf(ErrIndexOutOfBounds, "view [%d, %d] over buffer of %d elements", lo, hi, buf.Len())
	}
	if order != F {
		order = C
	}
	return &NDArray{
		buf:    buf,
		mem:    memory.DefaultAllocator,
		offset: offset,
		shape:  slices.Clone(shape),
		stride: slices.Clone(stride),
		order:  order,
	}, nil
}

func (a *NDArray) derive(offset int, shape, stride []int, order Order) *NDArray {
	return &NDArray{buf: a.buf, mem: a.mem, offset: offset, shape: shape, stride: stride, order: order}
}

// Buffer returns the DataBuffer behind the view.
func (a *NDArray) Buffer() buffer.DataBuffer { return a.buf }

// Offset returns the buffer index of the first logical element.
func (a *NDArray) Offset() int { return a.offset }

// Shape returns a copy of the dimensions.
func (a *NDArray) Shape() []int { return slices.Clone(a.shape) }

// Stride returns a copy of the per-dimension element steps.
func (a *NDArray) Stride() []int { return slices.Clone(a.stride) }

func (a *NDArray) Rank() int           { return len(a.shape) }
func (a *NDArray) Order() Order        { return a.order }
func (a *NDArray) DType() buffer.DType { return a.buf.DType() }

// Length returns the number of logical elements, product(shape).
func (a *NDArray) Length() int { return shapeLength(a.shape) }

// Allocator returns the Arrow allocator new arrays derived from a are drawn from.
func (a *NDArray) Allocator() memory.Allocator { return a.mem }

// Size returns the extent of dimension d.
func (a *NDArray) Size(d int) int { return a.shape[d] }

// IsContiguous reports whether the view covers a dense block of the buffer in
// row-major or column-major order.
func (a *NDArray) IsContiguous() bool {
	return isCompact(a.shape, a.stride, C) || isCompact(a.shape, a.stride, F)
}

// Span returns the dense buffer range [offset, offset+Length()) covered by a
// contiguous view. ok is false for strided views.
func (a *NDArray) Span() (offset, length int, ok bool) {
	if !a.IsContiguous() {
		return 0, 0, false
	}
	return a.offset, a.Length(), true
}

// SameLayout reports whether a and b have the same shape and step through
// their buffers identically, so position k of one span corresponds to
// position k of the other.
func (a *NDArray) SameLayout(b *NDArray) bool {
	if !slices.Equal(a.shape, b.shape) {
		return false
	}
	for d, n := range a.shape {
		if n != 1 && a.stride[d] != b.stride[d] {
			return false
		}
	}
	return true
}

func (a *NDArray) offsetOfCoords(coords []int) int {
	off := a.offset
	for d, c := range coords {
		off += c * a.stride[d]
	}
	return off
}

// offsetOfIndex maps a linear logical index, in the view's order, to a buffer index.
func (a *NDArray) offsetOfIndex(i int) int {
	off := a.offset
	if a.order == F {
		for d := 0; d < len(a.shape); d++ {
			off += (i % a.shape[d]) * a.stride[d]
			i /= a.shape[d]
		}
		return off
	}
	for d := len(a.shape) - 1; d >= 0; d-- {
		off += (i % a.shape[d]) * a.stride[d]
		i /= a.shape[d]
	}
	return off
}

func (a *NDArray) checkIndex(i int) error {
	if i < 0 || i >= a.Length() {
		return errors.Wrapf(ErrIndexOutOfBounds, "index %d for length %d", i, a.Length())
	}
	return nil
}

func (a *NDArray) checkCoords(coords []int) error {
	if len(coords) != len(a.shape) {
		return errors.Wrapf(ErrIndexOutOfBounds, "%d coordinates for rank %d", len(coords), len(a.shape))
	}
	for d, c := range coords {
		if c < 0 || c >= a.shape[d] {
			return errors.Wrapf(ErrIndexOutOfBounds, "coordinate %d on axis %d of extent %d", c, d, a.shape[d])
		}
	}
	return nil
}

// GetDouble reads the element at linear logical index i.
func (a *NDArray) GetDouble(i int) (float64, error) {
	if err := a.checkIndex(i); err != nil {
		return 0, err
	}
	return a.buf.GetDouble(a.offsetOfIndex(i)), nil
}

// PutDouble writes the element at linear logical index i.
func (a *NDArray) PutDouble(i int, v float64) error {
	if err := a.checkIndex(i); err != nil {
		return err
	}
	a.buf.SetDouble(a.offsetOfIndex(i), v)
	return nil
}

// GetAt reads the element at the given coordinates.
func (a *NDArray) GetAt(coords ...int) (float64, error) {
	if err := a.checkCoords(coords); err != nil {
		return 0, err
	}
	return a.buf.GetDouble(a.offsetOfCoords(coords)), nil
}

// PutAt writes v at the given coordinates.
func (a *NDArray) PutAt(v float64, coords ...int) error {
	if err := a.checkCoords(coords); err != nil {
		return err
	}
	a.buf.SetDouble(a.offsetOfCoords(coords), v)
	return nil
}

func (a *NDArray) normalizeAxis(axis int) (int, error) {
	if axis < 0 {
		axis += len(a.shape)
	}
	if axis < 0 || axis >= len(a.shape) {
		return 0, errors.Wrapf(ErrIndexOutOfBounds, "axis %d for rank %d", axis, len(a.shape))
	}
	return axis, nil
}

// Slice returns the hyperplane index along axis as a view of rank Rank()-1.
// Negative axes count from the end.
func (a *NDArray) Slice(index, axis int) (*NDArray, error) {
	axis, err := a.normalizeAxis(axis)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= a.shape[axis] {
		return nil, errors.Wrapf(ErrIndexOutOfBounds, "slice %d on axis %d of extent %d", index, axis, a.shape[axis])
	}
	return a.derive(a.offset+index*a.stride[axis], without(a.shape, axis), without(a.stride, axis), a.order), nil
}

// Slices returns every slice along axis, in index order.
func (a *NDArray) Slices(axis int) ([]*NDArray, error) {
	axis, err := a.normalizeAxis(axis)
	if err != nil {
		return nil, err
	}
	out := make([]*NDArray, a.shape[axis])
	for i := range out {
		out[i] = must.M1(a.Slice(i, axis))
	}
	return out, nil
}

// GetRow returns row i of a matrix.
func (a *NDArray) GetRow(i int) (*NDArray, error) {
	if len(a.shape) != 2 {
		return nil, errors.Wrapf(ErrInvalidShape, "GetRow on rank %d", len(a.shape))
	}
	return a.Slice(i, 0)
}

// GetColumn returns column j of a matrix.
func (a *NDArray) GetColumn(j int) (*NDArray, error) {
	if len(a.shape) != 2 {
		return nil, errors.Wrapf(ErrInvalidShape, "GetColumn on rank %d", len(a.shape))
	}
	return a.Slice(j, 1)
}

// Reshape is ReshapeOrder in the view's own order.
func (a *NDArray) Reshape(shape ...int) (*NDArray, error) {
	return a.ReshapeOrder(a.order, shape...)
}

// ReshapeOrder reinterprets the elements, read in the given order, with a new
// shape. The result shares the buffer whenever the view is dense in that
// order. A strided view is copied first, so its reshape no longer aliases it.
func (a *NDArray) ReshapeOrder(order Order, shape ...int) (*NDArray, error) {
	if len(shape) == 0 || !validShape(shape) {
		return nil, errors.Wrapf(ErrInvalidShape, "reshape to %v", shape)
	}
	if n := shapeLength(shape); n != a.Length() {
		return nil, errors.Wrapf(ErrShapeMismatch, "reshape %v (%d elements) to %v (%d elements)", a.shape, a.Length(), shape, n)
	}
	if order != F {
		order = C
	}
	src := a
	if !isCompact(a.shape, a.stride, order) {
		log.Debug().Ints("shape", a.shape).Ints("stride", a.stride).Str("order", order.String()).
			Msg("reshape of strided view copies")
		src = a.DupOrder(order)
	}
	return src.derive(src.offset, slices.Clone(shape), defaultStrides(shape, order), order), nil
}

// Dup returns an independent copy laid out densely in the view's order.
func (a *NDArray) Dup() *NDArray {
	return a.DupOrder(a.order)
}

// DupOrder returns an independent dense copy in the requested order.
func (a *NDArray) DupOrder(order Order) *NDArray {
	if order != F {
		order = C
	}
	buf := must.M1(buffer.NewWithAllocator(a.mem, a.buf.DType(), a.Length()))
	out := &NDArray{
		buf:    buf,
		mem:    a.mem,
		shape:  slices.Clone(a.shape),
		stride: defaultStrides(a.shape, order),
		order:  order,
	}
	CopyTo(out, a)
	return out
}

// NewLike allocates a zero-filled C-ordered array with a's dtype and allocator.
func (a *NDArray) NewLike(shape ...int) (*NDArray, error) {
	if !validShape(shape) {
		return nil, errors.Wrapf(ErrInvalidShape, "%v", shape)
	}
	buf, err := buffer.NewWithAllocator(a.mem, a.buf.DType(), shapeLength(shape))
	if err != nil {
		return nil, err
	}
	return &NDArray{buf: buf, mem: a.mem, shape: slices.Clone(shape), stride: defaultStrides(shape, C), order: C}, nil
}

// CopyTo copies every element of src into dst, which must have the same shape.
// Element types may differ; values are converted through float64.
func CopyTo(dst, src *NDArray) {
	cur := NewCursor(0, src.Length(), dst, src)
	for cur.Next() {
		dst.buf.SetDouble(cur.Offset(0), src.buf.GetDouble(cur.Offset(1)))
	}
}

// ToFloat64s returns the logical elements in the view's order.
func (a *NDArray) ToFloat64s() []float64 {
	out := make([]float64, a.Length())
	for i := range out {
		out[i] = a.buf.GetDouble(a.offsetOfIndex(i))
	}
	return out
}

// Equal reports whether b has the same shape and bitwise identical element
// values. Element types are compared after widening to float64.
func (a *NDArray) Equal(b *NDArray) bool {
	if b == nil || !slices.Equal(a.shape, b.shape) {
		return false
	}
	cur := NewCursor(0, a.Length(), a, b)
	for cur.Next() {
		if math.Float64bits(a.buf.GetDouble(cur.Offset(0))) != math.Float64bits(b.buf.GetDouble(cur.Offset(1))) {
			return false
		}
	}
	return true
}

// EqualWithin reports whether b has the same shape and every pair of elements
// differs by at most tol. Two NaNs compare equal.
func (a *NDArray) EqualWithin(b *NDArray, tol float64) bool {
	if b == nil || !slices.Equal(a.shape, b.shape) {
		return false
	}
	cur := NewCursor(0, a.Length(), a, b)
	for cur.Next() {
		x, y := a.buf.GetDouble(cur.Offset(0)), b.buf.GetDouble(cur.Offset(1))
		if math.IsNaN(x) || math.IsNaN(y) {
			if math.IsNaN(x) != math.IsNaN(y) {
				return false
			}
			continue
		}
		if x != y && math.Abs(x-y) > tol {
			return false
		}
	}
	return true
}
