package receiver

import (
	"runtime"
	"sync/atomic"
)

// spinLock guards one ring slot. Critical sections are O(1) array
// accesses with at most one writer and one reader contending per slot,
// so a busy-wait compare-and-swap beats a heap-allocated mutex per slot.
// It is not reentrant. Keep critical sections short and never perform
// I/O while holding one.
type spinLock struct {
	state atomic.Int32
}

// lock spins until the slot is acquired.
func (l *spinLock) lock() {
	for !l.state.CompareAndSwap(0, 1) {
		runtime.Gosched()
	}
}

// unlock releases the slot.
func (l *spinLock) unlock() {
	l.state.Store(0)
}

// forceClear releases the slot regardless of holder. Only the dispose
// path uses it, to unstick operations mid-flight during shutdown.
func (l *spinLock) forceClear() {
	l.state.Store(0)
}
