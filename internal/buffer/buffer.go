package buffer

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/pkg/errors"
)

var (
	// ErrInvalidLength is returned when a buffer is requested with a non-positive length.
	ErrInvalidLength = errors.New("invalid buffer length")
	// ErrUnknownDType is returned for element types outside Half/Float/Double.
	ErrUnknownDType = errors.New("unknown data type")
)

// Location tells where the memory behind a DataBuffer lives.
type Location uint8

const (
	Host Location = iota
	Device
)

func (l Location) String() string {
	if l == Device {
		return "device"
	}
	return "host"
}

// DataBuffer is flat, typed, fixed-length storage shared by one or more
// NDArray views. Element access is by raw buffer index; views are responsible
// for mapping logical indices through their offset and strides.
type DataBuffer interface {
	DType() DType
	// Len returns the number of elements. It never changes.
	Len() int
	ElementSize() int
	Location() Location

	// GetDouble reads element i widened to float64.
	GetDouble(i int) float64
	// SetDouble stores v into element i, rounding to the buffer precision.
	SetDouble(i int, v float64)

	// Float64s returns the backing storage for Double buffers and nil otherwise.
	Float64s() []float64
	// Float32s returns the backing storage for Float buffers and nil otherwise.
	Float32s() []float32
	// Bytes returns the raw little-endian bytes of the buffer.
	Bytes() []byte

	// Release returns the memory to the allocator. Every view over the buffer
	// becomes invalid. Calling it is optional for Go-allocated memory.
	Release()
}

var _ DataBuffer = (*HostBuffer)(nil)

// HostBuffer is a DataBuffer in host memory obtained from an Arrow allocator.
type HostBuffer struct {
	dtype DType
	n     int
	mem   *memory.Buffer

	f16 []uint16
	f32 []float32
	f64 []float64
}

// New allocates a zero-filled host buffer from the default Arrow allocator.
func New(dtype DType, n int) (*HostBuffer, error) {
	return NewWithAllocator(memory.DefaultAllocator, dtype, n)
}

// NewWithAllocator allocates a zero-filled host buffer of n elements.
func NewWithAllocator(alloc memory.Allocator, dtype DType, n int) (*HostBuffer, error) {
	if !dtype.Valid() {
		return nil, errors.Wrapf(ErrUnknownDType, "dtype %d", dtype)
	}
	if n <= 0 {
		return nil, errors.Wrapf(ErrInvalidLength, "%d elements", n)
	}
	if alloc == nil {
		alloc = memory.DefaultAllocator
	}

	mb := memory.NewResizableBuffer(alloc)
	mb.Resize(n * dtype.Size())
	raw := mb.Bytes()
	clear(raw)

	b := &HostBuffer{dtype: dtype, n: n, mem: mb}
	switch dtype {
	case Half:
		b.f16 = arrow.Uint16Traits.CastFromBytes(raw)[:n]
	case Float:
		b.f32 = arrow.Float32Traits.CastFromBytes(raw)[:n]
	case Double:
		b.f64 = arrow.Float64Traits.CastFromBytes(raw)[:n]
	}

	bytesAllocated.WithLabelValues(dtype.String()).Add(float64(n * dtype.Size()))
	return b, nil
}

// FromFloat64s allocates a buffer and copies values into it, converting to dtype.
func FromFloat64s(alloc memory.Allocator, dtype DType, values []float64) (*HostBuffer, error) {
	b, err := NewWithAllocator(alloc, dtype, len(values))
	if err != nil {
		return nil, err
	}
	switch dtype {
	case Double:
		copy(b.f64, values)
	default:
		for i, v := range values {
			b.SetDouble(i, v)
		}
	}
	return b, nil
}

// FromFloat32s allocates a buffer and copies values into it, converting to dtype.
func FromFloat32s(alloc memory.Allocator, dtype DType, values []float32) (*HostBuffer, error) {
	b, err := NewWithAllocator(alloc, dtype, len(values))
	if err != nil {
		return nil, err
	}
	switch dtype {
	case Float:
		copy(b.f32, values)
	default:
		for i, v := range values {
			b.SetDouble(i, float64(v))
		}
	}
	return b, nil
}

func (b *HostBuffer) DType() DType        { return b.dtype }
func (b *HostBuffer) Len() int            { return b.n }
func (b *HostBuffer) ElementSize() int    { return b.dtype.Size() }
func (b *HostBuffer) Location() Location  { return Host }
func (b *HostBuffer) Float64s() []float64 { return b.f64 }
func (b *HostBuffer) Float32s() []float32 { return b.f32 }

// Half returns the backing bit patterns for Half buffers and nil otherwise.
func (b *HostBuffer) Half() []uint16 { return b.f16 }

func (b *HostBuffer) Bytes() []byte {
	if b.mem == nil {
		return nil
	}
	return b.mem.Bytes()[:b.n*b.dtype.Size()]
}

func (b *HostBuffer) GetDouble(i int) float64 {
	switch b.dtype {
	case Double:
		return b.f64[i]
	case Float:
		return float64(b.f32[i])
	default:
		return float64(FromHalf(b.f16[i]))
	}
}

func (b *HostBuffer) SetDouble(i int, v float64) {
	switch b.dtype {
	case Double:
		b.f64[i] = v
	case Float:
		b.f32[i] = float32(v)
	default:
		b.f16[i] = HalfFromFloat64(v)
	}
}

func (b *HostBuffer) Release() {
	if b.mem == nil {
		return
	}
	b.mem.Release()
	b.mem = nil
	b.f16, b.f32, b.f64 = nil, nil, nil
}
