package ops

import "github.com/pkg/errors"

var (
	// ErrIllegalOpKind is returned for unknown op types, kinds a backend has no
	// kernel for, and ops whose arguments cannot be executed.
	ErrIllegalOpKind = errors.New("illegal op kind")
	// ErrNotExecuted is returned when the output or result of an op is read
	// before it was executed.
	ErrNotExecuted = errors.New("op not executed")
	// ErrNoScalarResult is returned by CurrentResult for ops that did not
	// produce a single value: elementwise ops and reductions along an axis.
	ErrNoScalarResult = errors.New("op has no scalar result")
	// ErrInsufficientElements is returned by reductions that are undefined for
	// the number of elements given, such as bias-corrected variance of one value.
	ErrInsufficientElements = errors.New("insufficient elements")
)
