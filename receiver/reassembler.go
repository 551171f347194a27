package receiver

import (
	"encoding/binary"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/voicewire/buffer"
	"github.com/opd-ai/voicewire/limits"
	"github.com/opd-ai/voicewire/voice"
)

// decodeQueue drains as much of the ring as the current delay allows, in
// frame order, feeding the decoder sink. It is the single reader: a
// compare-and-swap gate skips re-entry when the synchronous path and the
// decode goroutine race, and the loser's work is covered by the holder's
// re-read of the cursors.
func (r *Receiver) decodeQueue() {
	if !r.decoding.CompareAndSwap(false, true) {
		return
	}
	defer r.decoding.Store(false)

	r.drainConfig()
	if !r.started.Load() {
		return
	}

	stalled := 0
	for !r.disposing.Load() {
		// the write position moves underneath us; re-read every pass
		maxRead := byte(r.frameWritePos.Load()) - byte(r.delayFrames())
		readPos := byte(r.frameReadPos.Load())
		if voice.FrameDiff(readPos, maxRead) > 0 {
			break
		}

		frameBefore := r.frameReadPos.Load()
		eventBefore := r.eventReadPos.Load()
		r.drainConfig()
		if !r.processEvent(maxRead) {
			break
		}
		if r.frameReadPos.Load() != frameBefore || r.eventReadPos.Load() != eventBefore {
			stalled = 0
			continue
		}

		stalled++
		if stalled > limits.DecodeStallLimit {
			// livelock guard: passes that move neither cursor cannot go
			// on forever; give up until the next wake
			r.log.WithFields(logrus.Fields{
				"function": "Receiver.decodeQueue",
				"passes":   stalled,
			}).Debug("Decode made no progress, deferring")
			break
		}
	}

	r.clearTrailing()
}

// processEvent consumes the ring entry under the event read cursor.
// Returns false when the pipeline must wait for more data before the
// cursor can move (the caller retries on the next wake).
func (r *Receiver) processEvent(maxRead byte) bool {
	eventPos := uint16(r.eventReadPos.Load())
	slot := int(eventPos) % r.ringSize

	r.locks[slot].lock()
	fb := r.slots[slot]
	if fb == nil && r.sinceFEC.Load() < fecNever {
		if r.tryRecover(eventPos) {
			fb = r.slots[slot]
		}
	}
	if fb != nil {
		fb.Retain()
	}
	r.locks[slot].unlock()

	if fb == nil {
		// the event never arrived and could not be recovered
		r.metrics.eventsLost.Add(1)
		r.advanceReadFrame()
		r.eventReadPos.Store(uint32(voice.EventAdd(eventPos, 1, r.ringSize)))
		return true
	}
	defer fb.Release()

	flags := fb.Flags()
	if flags.IsConfig() {
		// configs travel via the side queue; a ring occupant with the
		// config flag is a placeholder and is skipped
		r.advanceReadFrame()
		r.eventReadPos.Store(uint32(voice.EventAdd(eventPos, 1, r.ringSize)))
		return true
	}

	frameNumber := fb.FrameNumber()
	if !r.fillMissingFrames(frameNumber, maxRead) {
		return false
	}

	if voice.FrameDiff(frameNumber, byte(r.frameReadPos.Load())) < 0 {
		// superseded by a cursor reset while it sat in the ring
		r.metrics.eventsLate.Add(1)
		r.eventReadPos.Store(uint32(voice.EventAdd(eventPos, 1, r.ringSize)))
		return true
	}

	switch {
	case flags.IsFirstFragment():
		r.assembleFragments(fb, eventPos)
	case flags.IsContinuationFragment():
		// the fragment's beginning was lost; resynchronize on the next
		// frame start without touching the frame cursor
		r.metrics.eventsLost.Add(1)
		r.eventReadPos.Store(uint32(voice.EventAdd(eventPos, 1, r.ringSize)))
	default:
		r.deliverFrame(fb)
		r.advanceReadFrame()
		r.eventReadPos.Store(uint32(voice.EventAdd(eventPos, 1, r.ringSize)))
	}
	return true
}

// fillMissingFrames feeds loss placeholders for frames between the read
// cursor and target so the decoder keeps its output cadence. Returns
// false when the write bound was reached first; the caller then waits
// for more data.
func (r *Receiver) fillMissingFrames(target, maxRead byte) bool {
	for voice.FrameDiff(target, byte(r.frameReadPos.Load())) > 0 {
		if voice.FrameDiff(byte(r.frameReadPos.Load()), maxRead) > 0 {
			return false
		}
		r.deliverFrame(nil)
		r.metrics.framesLost.Add(1)
		r.advanceReadFrame()
	}
	return true
}

// assembleFragments rebuilds a multi-fragment frame starting at the
// first fragment, walking exactly count-1 further ring slots. Missing
// or mismatched fragments are zero-filled so a partial frame is still
// delivered rather than dropped whole. The frame cursor advances by one
// (fragments share a frame number), the event cursor by the full count.
func (r *Receiver) assembleFragments(first *buffer.FrameBuffer, eventPos uint16) {
	trailer := limits.EventNumberBytes(r.ringSize)
	firstPayload := first.Bytes()
	if len(firstPayload) <= trailer {
		r.skipBrokenFrame(eventPos, "first fragment shorter than its trailer")
		return
	}

	var count int
	if trailer == 1 {
		count = int(firstPayload[len(firstPayload)-1])
	} else {
		count = int(binary.BigEndian.Uint16(firstPayload[len(firstPayload)-2:]))
	}
	fragSize := len(firstPayload) - trailer
	total := count * fragSize
	if count <= 0 || count >= r.ringSize || limits.ValidatePayloadSize(total) != nil {
		r.skipBrokenFrame(eventPos, "invalid fragment count")
		return
	}

	frameNumber := first.FrameNumber()
	asm := r.alloc.Acquire(total)
	copy(asm, firstPayload[:fragSize])
	end := fragSize

	for i := 1; i < count; i++ {
		e := voice.EventAdd(eventPos, i, r.ringSize)
		slot := int(e) % r.ringSize

		r.locks[slot].lock()
		frag := r.slots[slot]
		if frag == nil && r.sinceFEC.Load() < fecNever {
			if r.tryRecover(e) {
				frag = r.slots[slot]
			}
		}
		if frag != nil {
			frag.Retain()
		}
		r.locks[slot].unlock()

		off := i * fragSize
		ok := frag != nil &&
			frag.FrameNumber() == frameNumber &&
			frag.Flags().IsContinuationFragment()
		if ok {
			n := copy(asm[off:], frag.Bytes())
			zeroFill(asm[off+n : off+fragSize])
			if off+n > end {
				end = off + n
			}
		} else {
			// best effort: hole in the frame instead of losing it whole
			zeroFill(asm[off : off+fragSize])
			r.metrics.eventsLost.Add(1)
			end = off + fragSize
		}
		if frag != nil {
			frag.Release()
		}
	}

	assembled := buffer.Wrap(asm[:end], first.Flags()&^voice.MaskFrag, frameNumber, r.alloc)
	r.deliverFrame(assembled)
	assembled.Release()

	r.advanceReadFrame()
	r.eventReadPos.Store(uint32(voice.EventAdd(eventPos, count, r.ringSize)))
}

// skipBrokenFrame handles a protocol violation in a frame's first event:
// log, count it as a whole lost frame, keep cadence with a placeholder,
// and move past the event. Never propagated to the caller.
func (r *Receiver) skipBrokenFrame(eventPos uint16, reason string) {
	r.log.WithFields(logrus.Fields{
		"function":     "Receiver.skipBrokenFrame",
		"event_number": eventPos,
		"reason":       reason,
	}).Warn("Protocol violation, dropping frame")
	r.deliverFrame(nil)
	r.metrics.framesLost.Add(1)
	r.advanceReadFrame()
	r.eventReadPos.Store(uint32(voice.EventAdd(eventPos, 1, r.ringSize)))
}

// deliverFrame routes one reassembled frame (or a nil loss placeholder)
// through part accumulation to the decoder sink.
//
// Parts are pre-fragmentation splits of very large frames: every part's
// bytes are appended to the accumulation buffer and only the completed
// transfer, marked by a final part, reaches the decoder.
func (r *Receiver) deliverFrame(fb *buffer.FrameBuffer) {
	if fb == nil {
		r.inputDecoder(nil)
		return
	}

	flags := fb.Flags()
	if !flags.IsPart() {
		r.inputDecoder(fb)
		return
	}

	r.partBuf = append(r.partBuf, fb.Bytes()...)
	if !flags.IsFinalPart() {
		return
	}

	data := r.alloc.Acquire(len(r.partBuf))
	copy(data, r.partBuf)
	whole := buffer.Wrap(data, flags&^voice.MaskPart, fb.FrameNumber(), r.alloc)
	r.partBuf = r.partBuf[:0]

	r.inputDecoder(whole)
	whole.Release()
}

// inputDecoder feeds the decoder sink, trapping failures. Per-frame
// decode errors are the decoder's to conceal; an error returned here is
// treated as fatal for this stream only.
func (r *Receiver) inputDecoder(fb *buffer.FrameBuffer) {
	if err := r.dec.Input(fb); err != nil {
		r.setFatal(err)
		return
	}
	if fb != nil {
		r.metrics.framesDelivered.Add(1)
	}
}

// clearTrailing releases ring slots a fixed lag behind the event read
// cursor, in both the main and FEC rings. The lag keeps enough history
// resident for FEC recovery windows while bounding memory.
func (r *Receiver) clearTrailing() {
	lag := r.ringSize / 4
	if lag < limits.MinClearLag {
		lag = limits.MinClearLag
	}
	if lag >= r.ringSize {
		lag = r.ringSize - 1
	}
	if lag < 1 {
		return
	}

	cur := uint16(r.eventReadPos.Load())
	pos := uint16(r.clearPos.Load())
	behind := (int(cur) - int(pos) + r.ringSize) % r.ringSize

	for n := behind - lag; n > 0; n-- {
		slot := int(pos) % r.ringSize

		r.locks[slot].lock()
		if fb := r.slots[slot]; fb != nil {
			fb.Release()
			r.slots[slot] = nil
		}
		r.locks[slot].unlock()

		r.fecLocks[slot].lock()
		if fb := r.fecSlots[slot]; fb != nil {
			fb.Release()
			r.fecSlots[slot] = nil
		}
		r.fecLocks[slot].unlock()

		pos = voice.EventAdd(pos, 1, r.ringSize)
	}
	r.clearPos.Store(uint32(pos))
}

func zeroFill(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
