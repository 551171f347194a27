package voice

import (
	"github.com/google/uuid"
)

// FrameFlags is the bitmask carried by every event describing how its
// payload participates in frame reassembly.
type FrameFlags byte

const (
	// FlagConfig marks a codec configuration payload. Config frames are
	// never fragmented and travel via a separate best-effort queue on the
	// receive side.
	FlagConfig FrameFlags = 1 << iota

	// FlagEndOfStream marks the flush point of the stream. The delay
	// controller drops to zero delay until the marked frame is passed.
	FlagEndOfStream

	// FlagPartNotBeg marks a part that is not the beginning of a multi-part
	// transfer. Parts are pre-fragmentation splits of very large frames.
	FlagPartNotBeg

	// FlagPartNotEnd marks a part that is not the end of a multi-part
	// transfer.
	FlagPartNotEnd

	// FlagFragNotBeg marks a fragment that is not the first fragment of
	// its frame.
	FlagFragNotBeg

	// FlagFragNotEnd marks a fragment that is not the last fragment of
	// its frame.
	FlagFragNotEnd

	// FlagFEC marks an XOR redundancy payload covering a group of
	// preceding events. FEC events are routed to the parallel FEC ring.
	FlagFEC
)

// MaskFrag selects the fragmentation boundary bits.
const MaskFrag = FlagFragNotBeg | FlagFragNotEnd

// MaskPart selects the multi-part boundary bits.
const MaskPart = FlagPartNotBeg | FlagPartNotEnd

// IsConfig reports whether the flags mark a codec configuration payload.
func (f FrameFlags) IsConfig() bool { return f&FlagConfig != 0 }

// IsEndOfStream reports whether the flags mark the stream flush point.
func (f FrameFlags) IsEndOfStream() bool { return f&FlagEndOfStream != 0 }

// IsFEC reports whether the flags mark an XOR redundancy payload.
func (f FrameFlags) IsFEC() bool { return f&FlagFEC != 0 }

// IsFragmented reports whether the flags carry any fragment boundary bit.
func (f FrameFlags) IsFragmented() bool { return f&MaskFrag != 0 }

// IsFirstFragment reports whether the flags mark the first fragment of a
// multi-fragment frame: fragmented, but still the beginning.
func (f FrameFlags) IsFirstFragment() bool { return f&MaskFrag == FlagFragNotEnd }

// IsContinuationFragment reports whether the flags mark a fragment after
// the first one of its frame.
func (f FrameFlags) IsContinuationFragment() bool { return f&FlagFragNotBeg != 0 }

// IsPart reports whether the flags carry any multi-part boundary bit.
func (f FrameFlags) IsPart() bool { return f&MaskPart != 0 }

// IsFinalPart reports whether the flags mark the final part of a multi-part
// transfer: not the beginning, but the end.
func (f FrameFlags) IsFinalPart() bool { return f&MaskPart == FlagPartNotBeg }

// FrameDiff returns the signed modular distance from frame number b to
// frame number a. Positive means a is ahead of b, negative behind. Frame
// numbers wrap at 256, so the comparison must go through a signed byte.
func FrameDiff(a, b byte) int {
	return int(int8(a - b))
}

// EventAdd advances event number e by n slots modulo ringSize.
func EventAdd(e uint16, n int, ringSize int) uint16 {
	return uint16((int(e) + n%ringSize + ringSize) % ringSize)
}

// EventDiff returns the signed modular distance from event number b to
// event number a within a ring of ringSize slots. The result lies in
// [-ringSize/2, ringSize/2) for rings larger than one slot.
func EventDiff(a, b uint16, ringSize int) int {
	d := (int(a) - int(b) + ringSize) % ringSize
	if d >= (ringSize+1)/2 && ringSize > 1 {
		d -= ringSize
	}
	return d
}

// Info describes one voice stream. It is handed to the decoder sink when
// the stream opens and used for log correlation.
type Info struct {
	// StreamID uniquely identifies the stream across the session.
	StreamID uuid.UUID

	// Codec names the payload codec, e.g. "opus".
	Codec string

	// SamplingRate is the media sampling rate in Hz.
	SamplingRate int

	// Channels is the number of media channels.
	Channels int
}

// NewInfo creates stream metadata with a fresh stream ID.
func NewInfo(codec string, samplingRate, channels int) Info {
	return Info{
		StreamID:     uuid.New(),
		Codec:        codec,
		SamplingRate: samplingRate,
		Channels:     channels,
	}
}
