package buffer

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/voicewire/voice"
)

// FrameBuffer is a reference-counted view over a byte range plus frame
// metadata. The bytes must not be read after the last reference is
// released; ring slots may transiently share one buffer only inside a
// locked slot swap.
type FrameBuffer struct {
	data        []byte
	length      int
	flags       voice.FrameFlags
	frameNumber byte
	refs        atomic.Int32
	alloc       Allocator
}

// Wrap creates a frame buffer over data with an initial reference count
// of one. alloc receives the full backing storage back on the final
// Release; a nil alloc makes the final Release a no-op (storage owned by
// the garbage collector).
func Wrap(data []byte, flags voice.FrameFlags, frameNumber byte, alloc Allocator) *FrameBuffer {
	b := &FrameBuffer{
		data:        data,
		length:      len(data),
		flags:       flags,
		frameNumber: frameNumber,
		alloc:       alloc,
	}
	b.refs.Store(1)
	return b
}

// Copy acquires storage from alloc, copies payload into it, and wraps it.
// This is the ingress path for payloads whose backing array belongs to
// the transport layer.
func Copy(alloc Allocator, payload []byte, flags voice.FrameFlags, frameNumber byte) *FrameBuffer {
	data := alloc.Acquire(len(payload))
	copy(data, payload)
	return Wrap(data[:len(payload)], flags, frameNumber, alloc)
}

// Bytes returns the live byte range. Valid only while the caller holds a
// reference.
func (b *FrameBuffer) Bytes() []byte { return b.data[:b.length] }

// Len returns the length of the live byte range.
func (b *FrameBuffer) Len() int { return b.length }

// Cap returns the capacity of the backing storage.
func (b *FrameBuffer) Cap() int { return cap(b.data) }

// Flags returns the frame flags.
func (b *FrameBuffer) Flags() voice.FrameFlags { return b.flags }

// FrameNumber returns the 8-bit logical frame number.
func (b *FrameBuffer) FrameNumber() byte { return b.frameNumber }

// Retain adds a reference and returns the buffer for chaining.
func (b *FrameBuffer) Retain() *FrameBuffer {
	b.refs.Add(1)
	return b
}

// Release drops a reference. The final release returns the backing
// storage to the originating allocator.
func (b *FrameBuffer) Release() {
	n := b.refs.Add(-1)
	if n > 0 {
		return
	}
	if n < 0 {
		logrus.WithFields(logrus.Fields{
			"function": "FrameBuffer.Release",
			"refs":     n,
		}).Error("Frame buffer over-released")
		return
	}
	if b.alloc != nil {
		b.alloc.Release(b.data[:cap(b.data)])
	}
	b.data = nil
}
