package codec

import (
	"sync"

	"github.com/opd-ai/voicewire/buffer"
	"github.com/opd-ai/voicewire/voice"
)

// CapturedFrame is one frame as observed by a CaptureSink.
type CapturedFrame struct {
	// Payload is a copy of the frame bytes; nil for a lost-frame placeholder.
	Payload []byte

	// Flags are the delivered frame flags.
	Flags voice.FrameFlags

	// FrameNumber is the delivered logical frame number.
	FrameNumber byte

	// Lost reports whether this entry stands in for a lost frame.
	Lost bool
}

// CaptureSink records every delivered frame. It backs pipeline tests and
// diagnostic tooling; payloads are copied so captures outlive the buffers.
type CaptureSink struct {
	mu       sync.Mutex
	info     voice.Info
	frames   []CapturedFrame
	opened   bool
	disposed bool
}

// NewCaptureSink creates an empty capture sink.
func NewCaptureSink() *CaptureSink {
	return &CaptureSink{}
}

// Open records the stream info.
func (s *CaptureSink) Open(info voice.Info) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info = info
	s.opened = true
	return nil
}

// Input records one frame, copying its payload.
func (s *CaptureSink) Input(frame *buffer.FrameBuffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if frame == nil {
		s.frames = append(s.frames, CapturedFrame{Lost: true})
		return nil
	}
	cp := make([]byte, frame.Len())
	copy(cp, frame.Bytes())
	s.frames = append(s.frames, CapturedFrame{
		Payload:     cp,
		Flags:       frame.Flags(),
		FrameNumber: frame.FrameNumber(),
	})
	return nil
}

// Dispose marks the sink disposed.
func (s *CaptureSink) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed = true
}

// Frames returns a snapshot of everything delivered so far.
func (s *CaptureSink) Frames() []CapturedFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CapturedFrame, len(s.frames))
	copy(out, s.frames)
	return out
}

// Opened reports whether Open has been called.
func (s *CaptureSink) Opened() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

// Disposed reports whether Dispose has been called.
func (s *CaptureSink) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// Info returns the stream info passed to Open.
func (s *CaptureSink) Info() voice.Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}
