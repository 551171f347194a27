// Package limits provides centralized size limits for the voice frame transport.
// This ensures consistent validation across the sender and receiver components.
package limits

import (
	"errors"
	"fmt"
)

const (
	// DefaultRingSize is the default event-number modulus and receive ring size.
	// 256 keeps event numbers and trailer fields within a single byte.
	DefaultRingSize = 256

	// MaxRingSize is the largest supported receive ring. Above 256 the
	// fragment-count and FEC trailer fields widen to two bytes, so sender
	// and receiver must agree on the ring size.
	MaxRingSize = 2048

	// MinRingSize is the smallest constructible receive ring.
	MinRingSize = 1

	// MaxDelayFrames is the largest configurable decode delay in frames.
	MaxDelayFrames = 127

	// MaxEventPayload is the default upper bound for a single event payload.
	// This matches the conservative single-datagram budget used elsewhere
	// in the stack (UDP payload minus envelope overhead).
	MaxEventPayload = 1372

	// DefaultFragmentSize is the default per-fragment payload size used when
	// fragmentation is enabled and the transport does not advertise a limit.
	// It leaves room for the fragment-count trailer on the first fragment.
	DefaultFragmentSize = MaxEventPayload - 2

	// ConfigQueueCap bounds the side queue of codec configuration frames on
	// the receive side. When full, the oldest entry is dropped.
	ConfigQueueCap = 10

	// FrameBehindTolerance is how many frames behind the write position an
	// incoming event may be before it is treated as a stream discontinuity.
	FrameBehindTolerance = 10

	// FrameAheadTolerance is how many frames ahead of the write position an
	// incoming event may be before it is treated as a stream discontinuity.
	FrameAheadTolerance = 5

	// DecodeStallLimit bounds the number of drain-loop iterations without
	// forward progress before the reassembler gives up until the next wake.
	DecodeStallLimit = 100

	// MinClearLag is the minimum distance behind the event read cursor at
	// which consumed ring slots are released back to the allocator. Slots
	// inside the lag window stay resident for FEC recovery.
	MinClearLag = 64

	// MaxProcessingBuffer is the absolute maximum for any assembly buffer.
	// This prevents memory exhaustion from malformed fragment counts (1MB).
	MaxProcessingBuffer = 1024 * 1024
)

var (
	// ErrRingSizeOutOfRange indicates a requested ring size outside [MinRingSize, MaxRingSize].
	ErrRingSizeOutOfRange = errors.New("ring size out of range")

	// ErrDelayOutOfRange indicates a requested decode delay outside [0, MaxDelayFrames].
	ErrDelayOutOfRange = errors.New("delay frames out of range")

	// ErrPayloadTooLarge indicates a payload exceeds the processing buffer limit.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// ValidateRingSize validates a ring size against the supported range.
// Returns an error with context including the requested and allowed sizes.
func ValidateRingSize(size int) error {
	if size < MinRingSize || size > MaxRingSize {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrRingSizeOutOfRange, size, MinRingSize, MaxRingSize)
	}
	return nil
}

// ValidateDelayFrames validates a configured decode delay.
func ValidateDelayFrames(frames int) error {
	if frames < 0 || frames > MaxDelayFrames {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrDelayOutOfRange, frames, MaxDelayFrames)
	}
	return nil
}

// ValidatePayloadSize validates a payload or assembly buffer size against
// the absolute processing limit.
func ValidatePayloadSize(size int) error {
	if size < 0 || size > MaxProcessingBuffer {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrPayloadTooLarge, size, MaxProcessingBuffer)
	}
	return nil
}

// EventNumberBytes returns the wire width of event-number-derived fields
// (fragment counts, FEC group start markers) for the given ring size.
// Rings up to 256 slots keep the original single-byte encoding.
func EventNumberBytes(ringSize int) int {
	if ringSize <= 256 {
		return 1
	}
	return 2
}
