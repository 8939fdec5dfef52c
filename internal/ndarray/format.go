package ndarray

import (
	"strconv"
	"strings"
)

// String renders the view as nested brackets in row-major order.
func (a *NDArray) String() string {
	var sb strings.Builder
	if len(a.shape) == 0 {
		sb.WriteString(strconv.FormatFloat(a.buf.GetDouble(a.offset), 'g', -1, 64))
		return sb.String()
	}
	coords := make([]int, len(a.shape))
	a.format(&sb, coords, 0)
	return sb.String()
}

func (a *NDArray) format(sb *strings.Builder, coords []int, d int) {
	sb.WriteByte('[')
	for i := 0; i < a.shape[d]; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		coords[d] = i
		if d == len(a.shape)-1 {
			sb.WriteString(strconv.FormatFloat(a.buf.GetDouble(a.offsetOfCoords(coords)), 'g', -1, 64))
		} else {
			a.format(sb, coords, d+1)
		}
	}
	sb.WriteByte(']')
}
