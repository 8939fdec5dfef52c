package ops

import (
	"slices"

	"github.com/pkg/errors"

	"github.com/23skdu/longbow-ndexec/internal/buffer"
	"github.com/23skdu/longbow-ndexec/internal/ndarray"
)

// State is the lifecycle stage of an Op.
type State uint8

const (
	Created State = iota
	Executed
	ResultRead
)

func (s State) String() string {
	switch s {
	case Executed:
		return "executed"
	case ResultRead:
		return "result_read"
	default:
		return "created"
	}
}

// Op describes one operation over operand views: its type, the input x, an
// optional second input y, the output z (x itself unless WithOutput was used),
// an optional scalar and extra arguments. After execution it also carries the
// scalar result of accumulations.
//
// An Op is not safe for concurrent execution.
type Op struct {
	typ    Type
	x      *ndarray.NDArray
	y      *ndarray.NDArray
	z      *ndarray.NDArray
	scalar float64
	args   []float64
	bias   bool

	state       State
	result      float64
	dimensional bool
}

// New builds an op of any type. Named constructors are usually clearer.
func New(t Type, x, y *ndarray.NDArray, scalar float64, args ...float64) *Op {
	return &Op{typ: t, x: x, y: y, z: x, scalar: scalar, args: slices.Clone(args), bias: true}
}

func unary(t Type, x *ndarray.NDArray, args ...float64) *Op { return New(t, x, nil, 0, args...) }

func scalarOp(t Type, x *ndarray.NDArray, s float64) *Op { return New(t, x, nil, s) }

// pairwise ops write to x unless z is given.
func pairwise(t Type, x, y, z *ndarray.NDArray) *Op {
	o := New(t, x, y, 0)
	if z != nil {
		o.z = z
	}
	return o
}

func NewScalarAdd(x *ndarray.NDArray, s float64) *Op        { return scalarOp(ScalarAdd, x, s) }
func NewScalarSub(x *ndarray.NDArray, s float64) *Op        { return scalarOp(ScalarSub, x, s) }
func NewScalarReverseSub(x *ndarray.NDArray, s float64) *Op { return scalarOp(ScalarReverseSub, x, s) }
func NewScalarMul(x *ndarray.NDArray, s float64) *Op        { return scalarOp(ScalarMul, x, s) }
func NewScalarDiv(x *ndarray.NDArray, s float64) *Op        { return scalarOp(ScalarDiv, x, s) }
func NewScalarReverseDiv(x *ndarray.NDArray, s float64) *Op { return scalarOp(ScalarReverseDiv, x, s) }
func NewScalarMax(x *ndarray.NDArray, s float64) *Op        { return scalarOp(ScalarMax, x, s) }
func NewScalarMin(x *ndarray.NDArray, s float64) *Op        { return scalarOp(ScalarMin, x, s) }
func NewScalarSet(x *ndarray.NDArray, s float64) *Op        { return scalarOp(ScalarSet, x, s) }

func NewExp(x *ndarray.NDArray) *Op      { return unary(Exp, x) }
func NewLog(x *ndarray.NDArray) *Op      { return unary(Log, x) }
func NewSqrt(x *ndarray.NDArray) *Op     { return unary(Sqrt, x) }
func NewAbs(x *ndarray.NDArray) *Op      { return unary(Abs, x) }
func NewNeg(x *ndarray.NDArray) *Op      { return unary(Neg, x) }
func NewTanh(x *ndarray.NDArray) *Op     { return unary(Tanh, x) }
func NewSigmoid(x *ndarray.NDArray) *Op  { return unary(Sigmoid, x) }
func NewIdentity(x *ndarray.NDArray) *Op { return unary(Identity, x) }

// NewPow raises every element to the power p.
func NewPow(x *ndarray.NDArray, p float64) *Op { return unary(Pow, x, p) }

// NewSetRange keeps values inside [lo, hi] and maps the rest into it. With
// the range [0, 1] outliers are squashed by the logistic function; any other
// range wraps them modulo its width.
func NewSetRange(x *ndarray.NDArray, lo, hi float64) *Op { return unary(SetRange, x, lo, hi) }

// NewSoftMax normalises exp(x) over the whole view, or over each slice when
// executed along an axis.
func NewSoftMax(x *ndarray.NDArray) *Op { return unary(SoftMax, x) }

func NewAdd(x, y, z *ndarray.NDArray) *Op { return pairwise(AddOp, x, y, z) }
func NewSub(x, y, z *ndarray.NDArray) *Op { return pairwise(SubOp, x, y, z) }
func NewMul(x, y, z *ndarray.NDArray) *Op { return pairwise(MulOp, x, y, z) }
func NewDiv(x, y, z *ndarray.NDArray) *Op { return pairwise(DivOp, x, y, z) }

// NewCopy copies y into z, or into x when z is nil.
func NewCopy(x, y, z *ndarray.NDArray) *Op { return pairwise(CopyOp, x, y, z) }

func NewSum(x *ndarray.NDArray) *Op     { return unary(Sum, x) }
func NewProd(x *ndarray.NDArray) *Op    { return unary(Prod, x) }
func NewMean(x *ndarray.NDArray) *Op    { return unary(Mean, x) }
func NewMax(x *ndarray.NDArray) *Op     { return unary(Max, x) }
func NewMin(x *ndarray.NDArray) *Op     { return unary(Min, x) }
func NewNorm1(x *ndarray.NDArray) *Op   { return unary(Norm1, x) }
func NewNorm2(x *ndarray.NDArray) *Op   { return unary(Norm2, x) }
func NewNormMax(x *ndarray.NDArray) *Op { return unary(NormMax, x) }

// NewVariance computes the sample variance when biasCorrected is set and the
// population variance otherwise.
func NewVariance(x *ndarray.NDArray, biasCorrected bool) *Op {
	o := unary(Variance, x)
	o.bias = biasCorrected
	return o
}

func NewStandardDeviation(x *ndarray.NDArray, biasCorrected bool) *Op {
	o := unary(StandardDeviation, x)
	o.bias = biasCorrected
	return o
}

func NewEuclideanDistance(x, y *ndarray.NDArray) *Op { return New(EuclideanDistance, x, y, 0) }
func NewManhattanDistance(x, y *ndarray.NDArray) *Op { return New(ManhattanDistance, x, y, 0) }

// NewCosineSimilarity is dot(x, y) / (|x| |y|). A zero vector yields NaN.
func NewCosineSimilarity(x, y *ndarray.NDArray) *Op { return New(CosineSimilarity, x, y, 0) }

func NewScalarGreaterThan(x *ndarray.NDArray, s float64) *Op {
	return scalarOp(ScalarGreaterThan, x, s)
}

func NewScalarGreaterThanOrEqual(x *ndarray.NDArray, s float64) *Op {
	return scalarOp(ScalarGreaterThanOrEqual, x, s)
}

func NewScalarLessThan(x *ndarray.NDArray, s float64) *Op {
	return scalarOp(ScalarLessThan, x, s)
}

func NewScalarLessThanOrEqual(x *ndarray.NDArray, s float64) *Op {
	return scalarOp(ScalarLessThanOrEqual, x, s)
}

func NewScalarEquals(x *ndarray.NDArray, s float64) *Op {
	return scalarOp(ScalarEquals, x, s)
}

func NewScalarNotEquals(x *ndarray.NDArray, s float64) *Op {
	return scalarOp(ScalarNotEquals, x, s)
}

// WithOutput directs elementwise results to z instead of x.
func (o *Op) WithOutput(z *ndarray.NDArray) *Op {
	o.z = z
	return o
}

func (o *Op) Type() Type          { return o.typ }
func (o *Op) Kind() Kind          { return o.typ.Kind() }
func (o *Op) X() *ndarray.NDArray { return o.x }
func (o *Op) Y() *ndarray.NDArray { return o.y }
func (o *Op) Scalar() float64     { return o.scalar }
func (o *Op) Args() []float64     { return o.args }
func (o *Op) BiasCorrected() bool { return o.bias }
func (o *Op) State() State        { return o.state }
func (o *Op) IsDimensional() bool { return o.dimensional }
func (o *Op) String() string      { return o.typ.String() }

func (o *Op) arg(i int, def float64) float64 {
	if i < len(o.args) {
		return o.args[i]
	}
	return def
}

// Operands returns x, y and z regardless of state. Backends use it to reach
// the output before the op is marked executed.
func (o *Op) Operands() (x, y, z *ndarray.NDArray) { return o.x, o.y, o.z }

// Z returns the output view of an executed op.
func (o *Op) Z() (*ndarray.NDArray, error) {
	if o.state == Created {
		return nil, errors.Wrapf(ErrNotExecuted, "reading output of %s", o.typ)
	}
	return o.z, nil
}

// CurrentResult returns the scalar result of an executed accumulation,
// rounded to the precision of x.
func (o *Op) CurrentResult() (float64, error) {
	if o.state == Created {
		return 0, errors.Wrapf(ErrNotExecuted, "reading result of %s", o.typ)
	}
	if o.Kind() != KindAccumulation || o.dimensional {
		return 0, errors.Wrapf(ErrNoScalarResult, "%s", o.typ)
	}
	o.state = ResultRead
	return buffer.Round(o.x.DType(), o.result), nil
}

// Finish records the outcome of a whole-view execution.
func (o *Op) Finish(result float64) {
	o.result = result
	o.dimensional = false
	o.state = Executed
}

// FinishAlong records the outcome of an execution along an axis whose
// output is z.
func (o *Op) FinishAlong(z *ndarray.NDArray) {
	o.z = z
	o.result = 0
	o.dimensional = true
	o.state = Executed
}

// Derive returns a fresh op of the same type and arguments over other operands.
func (o *Op) Derive(x, y, z *ndarray.NDArray) *Op {
	return &Op{typ: o.typ, x: x, y: y, z: z, scalar: o.scalar, args: o.args, bias: o.bias}
}

// Validate checks that the op can be executed: a known type, the operands
// it reads, shape agreement and sane arguments.
func (o *Op) Validate() error {
	if !o.typ.Valid() {
		return errors.Wrapf(ErrIllegalOpKind, "op type %d", o.typ)
	}
	if o.x == nil {
		return errors.Wrapf(ErrIllegalOpKind, "%s without input", o.typ)
	}
	if o.typ.Pairwise() {
		if o.y == nil {
			return errors.Wrapf(ErrIllegalOpKind, "%s requires a second operand", o.typ)
		}
		if !ndarray.SameShape(o.x.Shape(), o.y.Shape()) {
			return errors.Wrapf(ndarray.ErrShapeMismatch, "%s: x %v, y %v", o.typ, o.x.Shape(), o.y.Shape())
		}
	}
	if o.Kind() != KindAccumulation {
		if o.z == nil {
			return errors.Wrapf(ErrIllegalOpKind, "%s without output", o.typ)
		}
		if !ndarray.SameShape(o.x.Shape(), o.z.Shape()) {
			return errors.Wrapf(ndarray.ErrShapeMismatch, "%s: x %v, z %v", o.typ, o.x.Shape(), o.z.Shape())
		}
	}
	switch o.typ {
	case Pow:
		if len(o.args) != 1 {
			return errors.Wrapf(ErrIllegalOpKind, "pow takes one exponent, got %d", len(o.args))
		}
	case SetRange:
		if len(o.args) != 2 || o.args[0] > o.args[1] {
			return errors.Wrapf(ErrIllegalOpKind, "setrange bounds %v", o.args)
		}
	}
	return nil
}

// MinElements is the smallest element count the op's reduction is defined for.
func (o *Op) MinElements() int {
	if (o.typ == Variance || o.typ == StandardDeviation) && o.bias {
		return 2
	}
	return 1
}
