package voice

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/voicewire/limits"
)

// Config carries the per-stream transport settings shared by the sender
// and the receive pipeline. Both sides of a stream must agree on RingSize
// because it selects the wire width of trailer fields.
type Config struct {
	// RingSize is the event-number modulus and the physical size of the
	// receive ring arrays. Default 256, maximum 2048.
	RingSize int

	// DelayFrames is the explicit decode delay in frames (0-127).
	// Zero selects automatic delay: one frame once fragmentation has been
	// observed on the stream, zero otherwise.
	DelayFrames int

	// FECGroupSize is the number of consecutive events XORed into one
	// redundancy event. Zero disables forward error correction.
	FECGroupSize int

	// Fragmentation enables splitting frames larger than FragmentSize
	// into multiple events.
	Fragmentation bool

	// FragmentSize is the per-fragment payload size used when
	// fragmentation is enabled. Zero selects limits.DefaultFragmentSize.
	FragmentSize int

	// PartSize is the pre-fragmentation split threshold for very large
	// frames. Zero means unbounded (no part splitting).
	PartSize int

	// SyncDecode runs the reassembler synchronously on the receiving
	// goroutine instead of on a dedicated decode goroutine per stream.
	SyncDecode bool
}

// DefaultConfig returns the stream configuration used when no explicit
// settings are provided: 256-slot ring, automatic delay, FEC disabled,
// fragmentation enabled at the default fragment size.
func DefaultConfig() Config {
	return Config{
		RingSize:      limits.DefaultRingSize,
		Fragmentation: true,
		FragmentSize:  limits.DefaultFragmentSize,
	}
}

// Validate checks the configuration and fills in defaulted fields.
// It is called by the sender and receiver constructors; an invalid
// configuration prevents the stream from being created.
func (c *Config) Validate() error {
	if c.RingSize == 0 {
		c.RingSize = limits.DefaultRingSize
	}
	if err := limits.ValidateRingSize(c.RingSize); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "Config.Validate",
			"ring_size": c.RingSize,
			"error":     err.Error(),
		}).Error("Stream configuration rejected")
		return fmt.Errorf("invalid stream config: %w", err)
	}
	if err := limits.ValidateDelayFrames(c.DelayFrames); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":     "Config.Validate",
			"delay_frames": c.DelayFrames,
			"error":        err.Error(),
		}).Error("Stream configuration rejected")
		return fmt.Errorf("invalid stream config: %w", err)
	}
	if c.FECGroupSize < 0 {
		return fmt.Errorf("invalid stream config: FEC group size %d is negative", c.FECGroupSize)
	}
	if c.FECGroupSize >= c.RingSize && c.FECGroupSize > 0 {
		return fmt.Errorf("invalid stream config: FEC group size %d must be smaller than ring size %d", c.FECGroupSize, c.RingSize)
	}
	if c.FragmentSize < 0 {
		return fmt.Errorf("invalid stream config: fragment size %d is negative", c.FragmentSize)
	}
	if c.FragmentSize == 0 {
		c.FragmentSize = limits.DefaultFragmentSize
	}
	if c.PartSize < 0 {
		return fmt.Errorf("invalid stream config: part size %d is negative", c.PartSize)
	}
	return nil
}
