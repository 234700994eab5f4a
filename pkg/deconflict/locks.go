package deconflict

import (
	"hash/fnv"
	"strings"
	"sync"
)

const lockStripes = 256

// vendorLocks serializes check-then-create per vendor. Names that differ only
// in case share a stripe; unrelated vendors may collide on a stripe, which
// only costs throughput.
type vendorLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (l *vendorLocks) stripe(vendor string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(vendor)))
	return &l.stripes[h.Sum32()%lockStripes]
}

// lock acquires the vendor's stripe and returns its unlock function.
func (l *vendorLocks) lock(vendor string) func() {
	mu := l.stripe(vendor)
	mu.Lock()
	return mu.Unlock
}
