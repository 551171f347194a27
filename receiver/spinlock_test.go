package receiver

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpinLockMutualExclusion(t *testing.T) {
	var l spinLock
	var wg sync.WaitGroup

	counter := 0
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				l.lock()
				counter++
				l.unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 8000, counter)
}

func TestSpinLockForceClear(t *testing.T) {
	var l spinLock

	l.lock()
	l.forceClear()

	// the slot must be acquirable again without an unlock from the holder
	done := make(chan struct{})
	go func() {
		l.lock()
		l.unlock()
		close(done)
	}()
	<-done
}
