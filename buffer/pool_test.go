package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolAllocatorReusesStorage(t *testing.T) {
	pool := NewPoolAllocator(4)

	first := pool.Acquire(100)
	require.Len(t, first, 100)
	require.GreaterOrEqual(t, cap(first), 100)

	pool.Release(first)
	second := pool.Acquire(100)

	assert.Equal(t, cap(first), cap(second))
	// Same backing array comes back out of the free list.
	first = first[:1]
	second = second[:1]
	first[0] = 0xAB
	assert.Equal(t, byte(0xAB), second[0])
}

func TestPoolAllocatorFallsBackWhenEmpty(t *testing.T) {
	pool := NewPoolAllocator(1)

	a := pool.Acquire(64)
	b := pool.Acquire(64)

	assert.Len(t, a, 64)
	assert.Len(t, b, 64)
}

func TestPoolAllocatorOversizedRequest(t *testing.T) {
	pool := NewPoolAllocator(1)

	big := pool.Acquire(4 << 20)
	assert.Len(t, big, 4<<20)
	// Dropping an oversized buffer must not poison a size class.
	pool.Release(big)
	reused := pool.Acquire(64)
	assert.Len(t, reused, 64)
}

func TestClassFor(t *testing.T) {
	tests := []struct {
		name string
		size int
		want int
	}{
		{name: "Tiny rounds to smallest class", size: 1, want: 0},
		{name: "Exact smallest class", size: 64, want: 0},
		{name: "Just above a class boundary", size: 65, want: 1},
		{name: "Largest pooled size", size: 1 << 20, want: poolClassCount - 1},
		{name: "Beyond pooled range", size: (1 << 20) + 1, want: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classFor(tt.size))
		})
	}
}

func TestDirectAllocator(t *testing.T) {
	var alloc DirectAllocator
	buf := alloc.Acquire(32)
	assert.Len(t, buf, 32)
	alloc.Release(buf)
}
