package obs

import (
	"strconv"
	"sync/atomic"
)

// Sequence creates monotonically increasing string ids such as "ORD1", "ORD2".
type Sequence struct {
	prefix string
	next   uint64
}

// NewSequence returns a sequence whose first id is prefix + (seed+1).
func NewSequence(prefix string, seed uint64) *Sequence {
	return &Sequence{prefix: prefix, next: seed}
}

// Next returns the next id.
func (g *Sequence) Next() string {
	if g == nil {
		return ""
	}
	return g.prefix + strconv.FormatUint(atomic.AddUint64(&g.next, 1), 10)
}
