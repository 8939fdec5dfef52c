package device

import (
	"math"
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/23skdu/longbow-ndexec/internal/ndarray"
	"github.com/23skdu/longbow-ndexec/internal/ops"
)

var _ Backend = (*ParallelBackend)(nil)

// ParallelBackend splits the logical index range of an op into contiguous
// chunks and runs the reference kernels on them concurrently. Accumulations
// merge the per-chunk state in chunk order.
type ParallelBackend struct {
	workers  int
	minChunk int
}

// NewParallelBackend uses opts.Workers goroutines (runtime.NumCPU when unset)
// and never hands a worker fewer than opts.MinChunkSize elements.
func NewParallelBackend(opts Options) *ParallelBackend {
	b := &ParallelBackend{workers: opts.Workers, minChunk: opts.MinChunkSize}
	if b.workers < 1 {
		b.workers = runtime.NumCPU()
	}
	if b.minChunk < 1 {
		b.minChunk = 1
	}
	return b
}

func (b *ParallelBackend) Name() string {
	return "parallel"
}

func (b *ParallelBackend) Supports(t ops.Type) bool {
	return t.Valid()
}

// chunks partitions [0, n) into at most workers ranges of at least minChunk elements.
func (b *ParallelBackend) chunks(n int) [][2]int {
	count := (n + b.minChunk - 1) / b.minChunk
	if count > b.workers {
		count = b.workers
	}
	if count < 1 {
		count = 1
	}
	size := (n + count - 1) / count
	out := make([][2]int, 0, count)
	for start := 0; start < n; start += size {
		out = append(out, [2]int{start, min(start+size, n)})
	}
	parallelChunks.Observe(float64(len(out)))
	return out
}

func (b *ParallelBackend) run(chunks [][2]int, fn func(i, start, end int) error) error {
	var g errgroup.Group
	g.SetLimit(b.workers)
	for i, c := range chunks {
		g.Go(func() error { return fn(i, c[0], c[1]) })
	}
	return g.Wait()
}

func (b *ParallelBackend) Scalar(o *ops.Op) error {
	if err := checkKind(b, o, ops.KindScalar, ops.KindComparison); err != nil {
		return err
	}
	return b.run(b.chunks(o.X().Length()), func(_, start, end int) error {
		return elementwise(o, start, end)
	})
}

func (b *ParallelBackend) Transform(o *ops.Op) error {
	if err := checkKind(b, o, ops.KindTransform); err != nil {
		return err
	}
	if o.Type() == ops.SoftMax {
		return b.softMax(o)
	}
	return b.run(b.chunks(o.X().Length()), func(_, start, end int) error {
		return elementwise(o, start, end)
	})
}

func (b *ParallelBackend) Accumulate(o *ops.Op) (float64, error) {
	if err := checkKind(b, o, ops.KindAccumulation); err != nil {
		return 0, err
	}
	chunks := b.chunks(o.X().Length())
	parts := make([]*ops.Accumulator, len(chunks))
	err := b.run(chunks, func(i, start, end int) error {
		parts[i] = accumulate(o, start, end)
		return nil
	})
	if err != nil {
		return 0, err
	}
	total := ops.NewAccumulator(o)
	for _, p := range parts {
		total.Merge(p)
	}
	if total.Len() < o.MinElements() {
		return 0, errors.Wrapf(ops.ErrInsufficientElements, "%s of %d elements", o.Type(), total.Len())
	}
	return total.Result()
}

// softMax runs three passes: chunk maxima, chunk sums of exp(x - max), then
// the normalised write.
func (b *ParallelBackend) softMax(o *ops.Op) error {
	x, _, z := o.Operands()
	xb, zb := x.Buffer(), z.Buffer()
	chunks := b.chunks(x.Length())

	maxima := make([]float64, len(chunks))
	err := b.run(chunks, func(i, start, end int) error {
		hi := math.Inf(-1)
		cur := ndarray.NewCursor(start, end, x)
		for cur.Next() {
			hi = math.Max(hi, xb.GetDouble(cur.Offset(0)))
		}
		maxima[i] = hi
		return nil
	})
	if err != nil {
		return err
	}
	hi := math.Inf(-1)
	for _, m := range maxima {
		hi = math.Max(hi, m)
	}

	sums := make([]float64, len(chunks))
	err = b.run(chunks, func(i, start, end int) error {
		var s float64
		cur := ndarray.NewCursor(start, end, x)
		for cur.Next() {
			s += math.Exp(xb.GetDouble(cur.Offset(0)) - hi)
		}
		sums[i] = s
		return nil
	})
	if err != nil {
		return err
	}
	var sum float64
	for _, s := range sums {
		sum += s
	}

	return b.run(chunks, func(_, start, end int) error {
		cur := ndarray.NewCursor(start, end, z, x)
		for cur.Next() {
			zb.SetDouble(cur.Offset(0), math.Exp(xb.GetDouble(cur.Offset(1))-hi)/sum)
		}
		return nil
	})
}

func (b *ParallelBackend) Synchronize() {
	// run waits for its workers before returning
}
