package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/voicewire/voice"
)

// recordingAllocator tracks released buffers for ownership assertions.
type recordingAllocator struct {
	released [][]byte
}

func (a *recordingAllocator) Acquire(size int) []byte { return make([]byte, size) }

func (a *recordingAllocator) Release(buf []byte) { a.released = append(a.released, buf) }

func TestWrapAndAccessors(t *testing.T) {
	data := []byte{1, 2, 3, 4}
	fb := Wrap(data, voice.FlagEndOfStream, 42, nil)

	assert.Equal(t, data, fb.Bytes())
	assert.Equal(t, 4, fb.Len())
	assert.Equal(t, voice.FlagEndOfStream, fb.Flags())
	assert.Equal(t, byte(42), fb.FrameNumber())
}

func TestCopyTakesOwnership(t *testing.T) {
	alloc := &recordingAllocator{}
	payload := []byte{9, 8, 7}

	fb := Copy(alloc, payload, 0, 1)
	payload[0] = 0 // mutate the transport's array after the copy

	assert.Equal(t, []byte{9, 8, 7}, fb.Bytes())
}

func TestReleaseReturnsToAllocator(t *testing.T) {
	alloc := &recordingAllocator{}
	fb := Copy(alloc, []byte{1, 2}, 0, 0)

	fb.Retain()
	fb.Release()
	assert.Empty(t, alloc.released, "storage released while a reference remains")

	fb.Release()
	require.Len(t, alloc.released, 1)
}
