package codec

import (
	"github.com/opd-ai/voicewire/buffer"
	"github.com/opd-ai/voicewire/voice"
)

// Decoder consumes reassembled frames from the receive pipeline.
//
// Input may be invoked from the stream's decode goroutine. A nil frame
// stands in for a frame lost on the network and keeps the output cadence;
// implementations should conceal it (silence, interpolation) rather than
// fail. Implementations needing the buffer beyond the call must Retain
// and later Release it. Config frames arrive before the data frames they
// configure.
type Decoder interface {
	// Open prepares the decoder for a stream. Called once before the
	// first Input.
	Open(info voice.Info) error

	// Input consumes one reassembled frame, or nil for a lost frame.
	Input(frame *buffer.FrameBuffer) error

	// Dispose releases decoder resources. No Input follows Dispose.
	Dispose()
}
