package buffer

import (
	"math/bits"

	"github.com/sirupsen/logrus"
)

// Allocator supplies and reclaims byte buffers for frame assembly.
// Acquire returns a slice with length size and capacity of at least size;
// Release hands storage back once no consumer references it. Both methods
// must be safe for concurrent use.
type Allocator interface {
	Acquire(size int) []byte
	Release(buf []byte)
}

// DirectAllocator allocates from the heap and lets the garbage collector
// reclaim. It is the fallback when pooling is disabled or exhausted.
type DirectAllocator struct{}

// Acquire returns a fresh slice of the requested size.
func (DirectAllocator) Acquire(size int) []byte { return make([]byte, size) }

// Release is a no-op; the garbage collector owns the storage.
func (DirectAllocator) Release(buf []byte) {}

const (
	poolMinClassBits = 6  // smallest class: 64 bytes
	poolMaxClassBits = 20 // largest class: 1 MiB
	poolClassCount   = poolMaxClassBits - poolMinClassBits + 1
)

// PoolAllocator keeps freed buffers in per-size-class free lists so frame
// assembly reuses large allocations instead of churning the heap. Each
// class holds power-of-two sized buffers in a bounded free list; when a
// class runs dry the allocator falls back to direct allocation, which is
// slower but correct.
type PoolAllocator struct {
	classes [poolClassCount]chan []byte
}

// NewPoolAllocator creates a pool with the given free-list depth per size
// class. Depth must be at least one.
func NewPoolAllocator(depth int) *PoolAllocator {
	if depth < 1 {
		depth = 1
	}
	p := &PoolAllocator{}
	for i := range p.classes {
		p.classes[i] = make(chan []byte, depth)
	}
	logrus.WithFields(logrus.Fields{
		"function": "NewPoolAllocator",
		"depth":    depth,
		"classes":  poolClassCount,
	}).Debug("Created pooled buffer allocator")
	return p
}

// classFor maps a size to its free-list index, or -1 when the size is
// outside the pooled range.
func classFor(size int) int {
	if size <= 0 {
		return 0
	}
	b := bits.Len(uint(size - 1))
	if b < poolMinClassBits {
		return 0
	}
	if b > poolMaxClassBits {
		return -1
	}
	return b - poolMinClassBits
}

// Acquire returns a slice of length size backed by pooled storage when a
// free buffer of the right class is available, falling back to a direct
// allocation otherwise.
func (p *PoolAllocator) Acquire(size int) []byte {
	c := classFor(size)
	if c < 0 {
		logrus.WithFields(logrus.Fields{
			"function": "PoolAllocator.Acquire",
			"size":     size,
		}).Warn("Requested buffer exceeds pooled classes, allocating directly")
		return make([]byte, size)
	}
	select {
	case buf := <-p.classes[c]:
		return buf[:size]
	default:
		return make([]byte, size, 1<<(c+poolMinClassBits))
	}
}

// Release returns storage to its size class. Buffers outside the pooled
// range, or releases into a full free list, are dropped for the garbage
// collector to reclaim.
func (p *PoolAllocator) Release(buf []byte) {
	c := classFor(cap(buf))
	if c < 0 || cap(buf) != 1<<(c+poolMinClassBits) {
		return
	}
	select {
	case p.classes[c] <- buf[:cap(buf)]:
	default:
	}
}
