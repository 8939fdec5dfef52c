package buffer

import (
	"strings"

	"github.com/pkg/errors"
)

// DType is the element type of a DataBuffer.
type DType uint8

const (
	// Half is IEEE 754 binary16, stored as raw uint16 bit patterns.
	Half DType = iota
	// Float is IEEE 754 single precision.
	Float
	// Double is IEEE 754 double precision.
	Double
)

// Size returns the width of one element in bytes.
func (d DType) Size() int {
	switch d {
	case Half:
		return 2
	case Float:
		return 4
	case Double:
		return 8
	default:
		return 0
	}
}

func (d DType) String() string {
	switch d {
	case Half:
		return "half"
	case Float:
		return "float"
	case Double:
		return "double"
	default:
		return "unknown"
	}
}

// Valid reports whether d is one of the supported element types.
func (d DType) Valid() bool {
	return d <= Double
}

// ParseDType accepts the names returned by String plus the common aliases
// fp16/fp32/fp64 and float16/float32/float64.
func ParseDType(s string) (DType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "half", "fp16", "float16":
		return Half, nil
	case "float", "single", "fp32", "float32":
		return Float, nil
	case "double", "fp64", "float64":
		return Double, nil
	}
	return 0, errors.Wrapf(ErrUnknownDType, "%q", s)
}

// Round converts v to the precision of d and back. Results read from an
// accumulation are passed through Round so callers observe the nominal
// precision of the buffer that fed the reduction.
func Round(d DType, v float64) float64 {
	switch d {
	case Half:
		return float64(FromHalf(HalfFromFloat64(v)))
	case Float:
		return float64(float32(v))
	default:
		return v
	}
}
