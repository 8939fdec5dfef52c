package device

import (
	"sync"

	"github.com/23skdu/longbow-ndexec/internal/ndarray"
)

// scratchPool recycles float64 gather buffers between kernel calls.
type scratchPool struct {
	pool sync.Pool
}

var scratch = &scratchPool{}

// get returns a buffer of length n. Its contents are unspecified.
func (p *scratchPool) get(n int) *[]float64 {
	if v, ok := p.pool.Get().(*[]float64); ok && cap(*v) >= n {
		scratchHits.Inc()
		*v = (*v)[:n]
		return v
	}
	scratchMisses.Inc()
	s := make([]float64, n)
	return &s
}

func (p *scratchPool) put(s *[]float64) {
	p.pool.Put(s)
}

// gather copies the elements of a in row-major order into dst.
func gather(dst []float64, a *ndarray.NDArray) {
	buf := a.Buffer()
	cur := ndarray.NewCursor(0, len(dst), a)
	for i := 0; cur.Next(); i++ {
		dst[i] = buf.GetDouble(cur.Offset(0))
	}
}

// scatter writes src into a in row-major order.
func scatter(a *ndarray.NDArray, src []float64) {
	buf := a.Buffer()
	cur := ndarray.NewCursor(0, len(src), a)
	for i := 0; cur.Next(); i++ {
		buf.SetDouble(cur.Offset(0), src[i])
	}
}
