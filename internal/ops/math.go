package ops

import "math"

// ElementFunc computes one output element. x is the element of the first
// operand and y that of the second; y is zero for ops without a second operand.
type ElementFunc func(x, y float64) float64

// Func returns the per-element function of a scalar, comparison or
// transform op. SoftMax and accumulations have none and return nil.
func (o *Op) Func() ElementFunc {
	s := o.scalar
	switch o.typ {
	case ScalarAdd:
		return func(x, _ float64) float64 { return x + s }
	case ScalarSub:
		return func(x, _ float64) float64 { return x - s }
	case ScalarReverseSub:
		return func(x, _ float64) float64 { return s - x }
	case ScalarMul:
		return func(x, _ float64) float64 { return x * s }
	case ScalarDiv:
		return func(x, _ float64) float64 { return x / s }
	case ScalarReverseDiv:
		return func(x, _ float64) float64 { return s / x }
	case ScalarMax:
		return func(x, _ float64) float64 { return math.Max(x, s) }
	case ScalarMin:
		return func(x, _ float64) float64 { return math.Min(x, s) }
	case ScalarSet:
		return func(_, _ float64) float64 { return s }

	case Exp:
		return func(x, _ float64) float64 { return math.Exp(x) }
	case Log:
		return func(x, _ float64) float64 { return math.Log(x) }
	case Pow:
		p := o.arg(0, 1)
		return func(x, _ float64) float64 { return math.Pow(x, p) }
	case Sqrt:
		return func(x, _ float64) float64 { return math.Sqrt(x) }
	case Abs:
		return func(x, _ float64) float64 { return math.Abs(x) }
	case Neg:
		return func(x, _ float64) float64 { return -x }
	case Tanh:
		return func(x, _ float64) float64 { return math.Tanh(x) }
	case Sigmoid:
		return func(x, _ float64) float64 { return sigmoid(x) }
	case SetRange:
		return setRange(o.arg(0, 0), o.arg(1, 1))
	case Identity:
		return func(x, _ float64) float64 { return x }
	case AddOp:
		return func(x, y float64) float64 { return x + y }
	case SubOp:
		return func(x, y float64) float64 { return x - y }
	case MulOp:
		return func(x, y float64) float64 { return x * y }
	case DivOp:
		return func(x, y float64) float64 { return x / y }
	case CopyOp:
		return func(_, y float64) float64 { return y }

	case ScalarGreaterThan:
		return predicate(func(x float64) bool { return x > s })
	case ScalarGreaterThanOrEqual:
		return predicate(func(x float64) bool { return x >= s })
	case ScalarLessThan:
		return predicate(func(x float64) bool { return x < s })
	case ScalarLessThanOrEqual:
		return predicate(func(x float64) bool { return x <= s })
	case ScalarEquals:
		return predicate(func(x float64) bool { return x == s })
	case ScalarNotEquals:
		return predicate(func(x float64) bool { return x != s })
	}
	return nil
}

func predicate(p func(float64) bool) ElementFunc {
	return func(x, _ float64) float64 {
		if p(x) {
			return 1
		}
		return 0
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func setRange(lo, hi float64) ElementFunc {
	width := hi - lo
	squash := lo == 0 && hi == 1
	return func(x, _ float64) float64 {
		switch {
		case math.IsNaN(x):
			return x
		case x >= lo && x <= hi:
			return x
		case squash:
			return sigmoid(x)
		case width == 0:
			return lo
		}
		r := math.Mod(x-lo, width)
		if r < 0 {
			r += width
		}
		return lo + r
	}
}

// SoftMaxInPlace replaces v with exp(v - max(v)) / sum. Backends gather a
// group into v, call it and scatter the result.
func SoftMaxInPlace(v []float64) {
	hi := math.Inf(-1)
	for _, x := range v {
		hi = math.Max(hi, x)
	}
	sum := 0.0
	for i, x := range v {
		v[i] = math.Exp(x - hi)
		sum += v[i]
	}
	for i := range v {
		v[i] /= sum
	}
}
