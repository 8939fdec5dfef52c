package ops

import (
	"strings"

	"github.com/pkg/errors"
)

// Kind groups op types by how they are executed.
type Kind uint8

const (
	KindInvalid Kind = iota
	// KindScalar ops compute z[i] = f(x[i], scalar).
	KindScalar
	// KindTransform ops compute z[i] = f(x[i]) or, for pairwise types, f(x[i], y[i]).
	KindTransform
	// KindAccumulation ops reduce x (and y) to a single float64.
	KindAccumulation
	// KindComparison ops write 1 where the predicate on (x[i], scalar) holds and 0 elsewhere.
	KindComparison
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindTransform:
		return "transform"
	case KindAccumulation:
		return "accumulation"
	case KindComparison:
		return "comparison"
	default:
		return "invalid"
	}
}

// Type identifies one operation.
type Type uint16

const (
	TypeInvalid Type = iota

	ScalarAdd
	ScalarSub
	ScalarReverseSub
	ScalarMul
	ScalarDiv
	ScalarReverseDiv
	ScalarMax
	ScalarMin
	ScalarSet

	Exp
	Log
	Pow
	Sqrt
	Abs
	Neg
	Tanh
	Sigmoid
	SetRange
	Identity
	SoftMax
	AddOp
	SubOp
	MulOp
	DivOp
	CopyOp

	Sum
	Prod
	Mean
	Variance
	StandardDeviation
	Max
	Min
	Norm1
	Norm2
	NormMax
	EuclideanDistance
	ManhattanDistance
	CosineSimilarity

	ScalarGreaterThan
	ScalarGreaterThanOrEqual
	ScalarLessThan
	ScalarLessThanOrEqual
	ScalarEquals
	ScalarNotEquals

	// TypeLast is one past the last valid type.
	TypeLast
)

type typeInfo struct {
	name     string
	kind     Kind
	pairwise bool
}

var typeInfos = [TypeLast]typeInfo{
	ScalarAdd:        {"scalar_add", KindScalar, false},
	ScalarSub:        {"scalar_sub", KindScalar, false},
	ScalarReverseSub: {"scalar_rsub", KindScalar, false},
	ScalarMul:        {"scalar_mul", KindScalar, false},
	ScalarDiv:        {"scalar_div", KindScalar, false},
	ScalarReverseDiv: {"scalar_rdiv", KindScalar, false},
	ScalarMax:        {"scalar_max", KindScalar, false},
	ScalarMin:        {"scalar_min", KindScalar, false},
	ScalarSet:        {"scalar_set", KindScalar, false},

	Exp:      {"exp", KindTransform, false},
	Log:      {"log", KindTransform, false},
	Pow:      {"pow", KindTransform, false},
	Sqrt:     {"sqrt", KindTransform, false},
	Abs:      {"abs", KindTransform, false},
	Neg:      {"neg", KindTransform, false},
	Tanh:     {"tanh", KindTransform, false},
	Sigmoid:  {"sigmoid", KindTransform, false},
	SetRange: {"setrange", KindTransform, false},
	Identity: {"identity", KindTransform, false},
	SoftMax:  {"softmax", KindTransform, false},
	AddOp:    {"add", KindTransform, true},
	SubOp:    {"sub", KindTransform, true},
	MulOp:    {"mul", KindTransform, true},
	DivOp:    {"div", KindTransform, true},
	CopyOp:   {"copy", KindTransform, true},

	Sum:               {"sum", KindAccumulation, false},
	Prod:              {"prod", KindAccumulation, false},
	Mean:              {"mean", KindAccumulation, false},
	Variance:          {"var", KindAccumulation, false},
	StandardDeviation: {"std", KindAccumulation, false},
	Max:               {"max", KindAccumulation, false},
	Min:               {"min", KindAccumulation, false},
	Norm1:             {"norm1", KindAccumulation, false},
	Norm2:             {"norm2", KindAccumulation, false},
	NormMax:           {"normmax", KindAccumulation, false},
	EuclideanDistance: {"euclidean", KindAccumulation, true},
	ManhattanDistance: {"manhattan", KindAccumulation, true},
	CosineSimilarity:  {"cosinesim", KindAccumulation, true},

	ScalarGreaterThan:        {"gt", KindComparison, false},
	ScalarGreaterThanOrEqual: {"gte", KindComparison, false},
	ScalarLessThan:           {"lt", KindComparison, false},
	ScalarLessThanOrEqual:    {"lte", KindComparison, false},
	ScalarEquals:             {"eq", KindComparison, false},
	ScalarNotEquals:          {"neq", KindComparison, false},
}

var typesByName = func() map[string]Type {
	m := make(map[string]Type, len(typeInfos))
	for t := TypeInvalid + 1; t < TypeLast; t++ {
		m[typeInfos[t].name] = t
	}
	return m
}()

// Valid reports whether t names a known operation.
func (t Type) Valid() bool { return t > TypeInvalid && t < TypeLast }

func (t Type) String() string {
	if !t.Valid() {
		return "invalid"
	}
	return typeInfos[t].name
}

// Kind returns the execution kind of t, KindInvalid for unknown types.
func (t Type) Kind() Kind {
	if !t.Valid() {
		return KindInvalid
	}
	return typeInfos[t].kind
}

// Pairwise reports whether t reads a second operand y.
func (t Type) Pairwise() bool {
	return t.Valid() && typeInfos[t].pairwise
}

// Types returns every valid type in declaration order.
func Types() []Type {
	out := make([]Type, 0, TypeLast-1)
	for t := TypeInvalid + 1; t < TypeLast; t++ {
		out = append(out, t)
	}
	return out
}

// ParseType maps the names returned by Type.String back to types.
func ParseType(s string) (Type, error) {
	if t, ok := typesByName[strings.ToLower(strings.TrimSpace(s))]; ok {
		return t, nil
	}
	return TypeInvalid, errors.Wrapf(ErrIllegalOpKind, "unknown op %q", s)
}
