package ops

import (
	"math"

	"github.com/pkg/errors"
)

// Accumulator holds the float64 running state of one accumulation. Partial
// accumulators over disjoint ranges can be merged; merging in range order
// gives the same result as a single pass up to rounding.
type Accumulator struct {
	typ  Type
	bias bool

	n   int
	acc float64
	// Welford state for Mean, Variance and StandardDeviation.
	mean, m2 float64
	// Norm2 and EuclideanDistance keep sqrt(ssq)*scale, as BLAS nrm2 does,
	// so squares of large magnitudes do not overflow.
	scale, ssq float64
	// CosineSimilarity state.
	dot, xx, yy float64
}

// NewAccumulator returns the identity state for op's type.
func NewAccumulator(o *Op) *Accumulator {
	a := &Accumulator{typ: o.typ, bias: o.bias}
	switch o.typ {
	case Prod:
		a.acc = 1
	case Max:
		a.acc = math.Inf(-1)
	case Min:
		a.acc = math.Inf(1)
	}
	return a
}

// Len returns the number of elements folded in so far.
func (a *Accumulator) Len() int { return a.n }

// Add folds in one element; y is only read by pairwise types.
func (a *Accumulator) Add(x, y float64) {
	a.n++
	switch a.typ {
	case Sum:
		a.acc += x
	case Prod:
		a.acc *= x
	case Mean, Variance, StandardDeviation:
		d := x - a.mean
		a.mean += d / float64(a.n)
		a.m2 += d * (x - a.mean)
	case Max:
		if x > a.acc || math.IsNaN(x) {
			a.acc = x
		}
	case Min:
		if x < a.acc || math.IsNaN(x) {
			a.acc = x
		}
	case Norm1:
		a.acc += math.Abs(x)
	case Norm2:
		a.addScaled(x)
	case NormMax:
		if ax := math.Abs(x); ax > a.acc || math.IsNaN(ax) {
			a.acc = ax
		}
	case EuclideanDistance:
		a.addScaled(x - y)
	case ManhattanDistance:
		a.acc += math.Abs(x - y)
	case CosineSimilarity:
		a.dot += x * y
		a.xx += x * x
		a.yy += y * y
	}
}

// Merge folds in the state of b, which must cover the elements following a's.
func (a *Accumulator) Merge(b *Accumulator) {
	if b.n == 0 {
		return
	}
	if a.n == 0 {
		*a = *b
		return
	}
	switch a.typ {
	case Sum, Norm1, ManhattanDistance:
		a.acc += b.acc
	case Norm2, EuclideanDistance:
		a.scale, a.ssq = mergeScaled(a.scale, a.ssq, b.scale, b.ssq)
	case Prod:
		a.acc *= b.acc
	case Max:
		if b.acc > a.acc || math.IsNaN(b.acc) {
			a.acc = b.acc
		}
	case Min:
		if b.acc < a.acc || math.IsNaN(b.acc) {
			a.acc = b.acc
		}
	case NormMax:
		if b.acc > a.acc || math.IsNaN(b.acc) {
			a.acc = b.acc
		}
	case Mean, Variance, StandardDeviation:
		// Chan et al. pairwise update.
		na, nb := float64(a.n), float64(b.n)
		n := na + nb
		d := b.mean - a.mean
		a.mean += d * nb / n
		a.m2 += b.m2 + d*d*na*nb/n
	case CosineSimilarity:
		a.dot += b.dot
		a.xx += b.xx
		a.yy += b.yy
	}
	a.n += b.n
}

// Result finalises the accumulation.
func (a *Accumulator) Result() (float64, error) {
	if a.n == 0 {
		return 0, errors.Wrapf(ErrInsufficientElements, "%s of no elements", a.typ)
	}
	switch a.typ {
	case Mean:
		return a.mean, nil
	case Variance, StandardDeviation:
		v, err := a.variance()
		if err != nil {
			return 0, err
		}
		if a.typ == StandardDeviation {
			return math.Sqrt(v), nil
		}
		return v, nil
	case Norm2, EuclideanDistance:
		if math.IsInf(a.scale, 1) {
			return a.scale + a.ssq, nil
		}
		return a.scale * math.Sqrt(a.ssq), nil
	case CosineSimilarity:
		return a.dot / (math.Sqrt(a.xx) * math.Sqrt(a.yy)), nil
	}
	return a.acc, nil
}

func (a *Accumulator) variance() (float64, error) {
	if a.bias {
		if a.n < 2 {
			return 0, errors.Wrapf(ErrInsufficientElements, "bias-corrected %s of %d element", a.typ, a.n)
		}
		return a.m2 / float64(a.n-1), nil
	}
	return a.m2 / float64(a.n), nil
}

func (a *Accumulator) addScaled(v float64) {
	av := math.Abs(v)
	switch {
	case av == 0:
	case math.IsNaN(av):
		a.ssq = av
	case math.IsInf(av, 1):
		if !math.IsNaN(a.ssq) {
			a.scale, a.ssq = av, 1
		}
	case a.scale < av:
		r := a.scale / av
		a.ssq = 1 + a.ssq*r*r
		a.scale = av
	case !math.IsInf(a.scale, 1):
		r := av / a.scale
		a.ssq += r * r
	}
}

// mergeScaled combines two (scale, ssq) pairs into one over the larger scale.
func mergeScaled(sa, qa, sb, qb float64) (float64, float64) {
	if sa < sb {
		sa, qa, sb, qb = sb, qb, sa, qa
	}
	switch {
	case math.IsNaN(qb):
		return sa, qb
	case sb == 0:
		return sa, qa
	case math.IsInf(sa, 1):
		return sa, qa
	}
	r := sb / sa
	return sa, qa + qb*r*r
}
