package ndarray

import (
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/float16"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/23skdu/longbow-ndexec/internal/buffer"
)

// ToArrow copies the logical elements, in the view's order, into a new Arrow
// array of the matching floating point type. The caller owns the result.
func (a *NDArray) ToArrow(mem memory.Allocator) arrow.Array {
	if mem == nil {
		mem = a.mem
	}
	n := a.Length()
	switch a.DType() {
	case buffer.Half:
		b := array.NewFloat16Builder(mem)
		defer b.Release()
		b.Reserve(n)
		for i := 0; i < n; i++ {
			b.Append(float16.New(float32(a.buf.GetDouble(a.offsetOfIndex(i)))))
		}
		return b.NewArray()
	case buffer.Float:
		b := array.NewFloat32Builder(mem)
		defer b.Release()
		b.Reserve(n)
		for i := 0; i < n; i++ {
			b.Append(float32(a.buf.GetDouble(a.offsetOfIndex(i))))
		}
		return b.NewArray()
	default:
		b := array.NewFloat64Builder(mem)
		defer b.Release()
		b.AppendValues(a.ToFloat64s(), nil)
		return b.NewArray()
	}
}

// ToRecord wraps ToArrow in a single-column record whose schema metadata
// carries the shape, order and element type needed to rebuild the view.
func (a *NDArray) ToRecord(mem memory.Allocator) arrow.Record {
	col := a.ToArrow(mem)
	defer col.Release()

	dims := make([]string, len(a.shape))
	for d, n := range a.shape {
		dims[d] = strconv.Itoa(n)
	}
	md := arrow.NewMetadata(
		[]string{"shape", "order", "dtype"},
		[]string{strings.Join(dims, ","), a.order.String(), a.DType().String()},
	)
	schema := arrow.NewSchema([]arrow.Field{{Name: "values", Type: col.DataType()}}, &md)
	return array.NewRecord(schema, []arrow.Array{col}, int64(col.Len()))
}
