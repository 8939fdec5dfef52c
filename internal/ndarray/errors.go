package ndarray

import "github.com/pkg/errors"

var (
	// ErrInvalidShape is returned by factories and reshapes given a non-positive
	// dimension or a shape that does not match the supplied values.
	ErrInvalidShape = errors.New("invalid shape")
	// ErrShapeMismatch is returned when two shapes that must agree do not.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrIndexOutOfBounds is returned for slice, row, axis or element indices
	// beyond the extent of a view.
	ErrIndexOutOfBounds = errors.New("index out of bounds")
)
