package device

import (
	"github.com/pkg/errors"

	"github.com/23skdu/longbow-ndexec/internal/ndarray"
	"github.com/23skdu/longbow-ndexec/internal/ops"
)

// ensure interface compliance
var _ Backend = (*ReferenceBackend)(nil)

// ReferenceBackend walks every operand through its strides one element at a
// time. It defines the results the other backends must reproduce.
type ReferenceBackend struct{}

func NewReferenceBackend() *ReferenceBackend {
	return &ReferenceBackend{}
}

func (b *ReferenceBackend) Name() string {
	return "reference"
}

func (b *ReferenceBackend) Supports(t ops.Type) bool {
	return t.Valid()
}

func (b *ReferenceBackend) Scalar(o *ops.Op) error {
	if err := checkKind(b, o, ops.KindScalar, ops.KindComparison); err != nil {
		return err
	}
	return elementwise(o, 0, o.X().Length())
}

func (b *ReferenceBackend) Transform(o *ops.Op) error {
	if err := checkKind(b, o, ops.KindTransform); err != nil {
		return err
	}
	if o.Type() == ops.SoftMax {
		softMax(o)
		return nil
	}
	return elementwise(o, 0, o.X().Length())
}

func (b *ReferenceBackend) Accumulate(o *ops.Op) (float64, error) {
	if err := checkKind(b, o, ops.KindAccumulation); err != nil {
		return 0, err
	}
	acc := accumulate(o, 0, o.X().Length())
	if acc.Len() < o.MinElements() {
		return 0, errors.Wrapf(ops.ErrInsufficientElements, "%s of %d elements", o.Type(), acc.Len())
	}
	return acc.Result()
}

func (b *ReferenceBackend) Synchronize() {
	// CPU is always synchronous
}

// elementwise applies the op's element function to logical indices [start, end).
func elementwise(o *ops.Op, start, end int) error {
	f := o.Func()
	if f == nil {
		return errors.Wrapf(ops.ErrIllegalOpKind, "%s has no element function", o.Type())
	}
	x, y, z := o.Operands()
	xb, zb := x.Buffer(), z.Buffer()
	if y == nil {
		cur := ndarray.NewCursor(start, end, z, x)
		for cur.Next() {
			zb.SetDouble(cur.Offset(0), f(xb.GetDouble(cur.Offset(1)), 0))
		}
		return nil
	}
	yb := y.Buffer()
	cur := ndarray.NewCursor(start, end, z, x, y)
	for cur.Next() {
		zb.SetDouble(cur.Offset(0), f(xb.GetDouble(cur.Offset(1)), yb.GetDouble(cur.Offset(2))))
	}
	return nil
}

// accumulate folds logical indices [start, end) of x (and y) into a fresh accumulator.
func accumulate(o *ops.Op, start, end int) *ops.Accumulator {
	acc := ops.NewAccumulator(o)
	x, y, _ := o.Operands()
	xb := x.Buffer()
	if y == nil {
		cur := ndarray.NewCursor(start, end, x)
		for cur.Next() {
			acc.Add(xb.GetDouble(cur.Offset(0)), 0)
		}
		return acc
	}
	yb := y.Buffer()
	cur := ndarray.NewCursor(start, end, x, y)
	for cur.Next() {
		acc.Add(xb.GetDouble(cur.Offset(0)), yb.GetDouble(cur.Offset(1)))
	}
	return acc
}

// softMax normalises the whole of x into z through a pooled float64 buffer.
func softMax(o *ops.Op) {
	x, _, z := o.Operands()
	buf := scratch.get(x.Length())
	defer scratch.put(buf)
	gather(*buf, x)
	ops.SoftMaxInPlace(*buf)
	scatter(z, *buf)
}
