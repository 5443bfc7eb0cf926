package badger

import (
	"sync/atomic"
)

// sequence allocates sequentially unique ids for one entity kind. Counters
// live in memory and are seeded from the store's current max on open, so
// ids stay unique across restarts.
type sequence struct {
	counter uint64
}

// seed sets the counter so the next id is max+1.
func (s *sequence) seed(max uint64) {
	atomic.StoreUint64(&s.counter, max)
}

// next returns the next id.
func (s *sequence) next() uint64 {
	return atomic.AddUint64(&s.counter, 1)
}

// nextBlock reserves n consecutive ids and returns the first.
func (s *sequence) nextBlock(n int) uint64 {
	if n <= 0 {
		n = 1
	}
	last := atomic.AddUint64(&s.counter, uint64(n))
	return last - uint64(n) + 1
}
