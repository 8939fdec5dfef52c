package ndarray

// Cursor walks one or more views of identical shape in row-major logical order,
// yielding the buffer offset of the current element in each view. It is how
// kernels iterate operands whose strides, offsets and orders differ.
//
//	cur := NewCursor(0, x.Length(), z, x)
//	for cur.Next() {
//		zb.SetDouble(cur.Offset(0), f(xb.GetDouble(cur.Offset(1))))
//	}
type Cursor struct {
	shape   []int
	strides [][]int
	coords  []int
	offsets []int
	pos     int
	end     int
	started bool
}

// NewCursor positions a cursor before logical element start; iteration stops
// at end. The first view's shape governs; callers check shapes beforehand.
func NewCursor(start, end int, views ...*NDArray) *Cursor {
	shape := views[0].shape
	c := &Cursor{
		shape:   shape,
		strides: make([][]int, len(views)),
		coords:  make([]int, len(shape)),
		offsets: make([]int, len(views)),
		pos:     start,
		end:     end,
	}
	rem := start
	for d := len(shape) - 1; d >= 0; d-- {
		c.coords[d] = rem % shape[d]
		rem /= shape[d]
	}
	for k, v := range views {
		c.strides[k] = v.stride
		off := v.offset
		for d, co := range c.coords {
			off += co * v.stride[d]
		}
		c.offsets[k] = off
	}
	return c
}

// Next advances to the next element and reports whether one is available.
func (c *Cursor) Next() bool {
	if !c.started {
		c.started = true
		return c.pos < c.end
	}
	c.pos++
	if c.pos >= c.end {
		return false
	}
	for d := len(c.shape) - 1; d >= 0; d-- {
		c.coords[d]++
		if c.coords[d] < c.shape[d] {
			for k := range c.offsets {
				c.offsets[k] += c.strides[k][d]
			}
			return true
		}
		for k := range c.offsets {
			c.offsets[k] -= (c.shape[d] - 1) * c.strides[k][d]
		}
		c.coords[d] = 0
	}
	return true
}

// Offset returns the buffer index of the current element in view k.
func (c *Cursor) Offset(k int) int { return c.offsets[k] }

// Index returns the current row-major logical index.
func (c *Cursor) Index() int { return c.pos }
