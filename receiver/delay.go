package receiver

import "github.com/opd-ai/voicewire/voice"

// delayFrames decides how many frames the read cursor trails the write
// cursor before delivery.
//
// A pending flush forces zero delay until the flush frame is passed.
// Otherwise an explicitly configured delay wins; with automatic delay,
// one frame of slack is kept once fragmentation has been observed on the
// stream (fragments need time for all their pieces to arrive), and none
// before that.
func (r *Receiver) delayFrames() int {
	if r.flushFrame.Load() != flushNone {
		return 0
	}
	if r.cfg.DelayFrames > 0 {
		return r.cfg.DelayFrames
	}
	if r.fragmentsSeen.Load() {
		return 1
	}
	return 0
}

// advanceReadFrame moves the frame read cursor forward one frame and
// retires the flush marker once the cursor passes it, restoring normal
// delay.
func (r *Receiver) advanceReadFrame() {
	next := byte(r.frameReadPos.Load()) + 1
	r.frameReadPos.Store(uint32(next))

	if ff := r.flushFrame.Load(); ff != flushNone && voice.FrameDiff(next, byte(ff)) > 0 {
		r.flushFrame.Store(flushNone)
	}
}
