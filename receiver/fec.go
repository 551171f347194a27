package receiver

import (
	"encoding/binary"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/voicewire/buffer"
	"github.com/opd-ai/voicewire/limits"
	"github.com/opd-ai/voicewire/voice"
)

// fecTrailerFixed mirrors the sender's trailer layout: XOR flags (1),
// XOR frame number (1), XOR size (2), then the group start event number
// in 1 or 2 bytes depending on ring size.
const fecTrailerFixed = 4

// storeFEC places an XOR redundancy event in the FEC ring and records,
// for every event number its group covers, which FEC event protects it.
// Each write bumps the slot's generation so stale cross-reference entries
// from an earlier occupant of the slot can be detected and ignored.
func (r *Receiver) storeFEC(fb *buffer.FrameBuffer, eventNumber uint16) {
	trailer := limits.EventNumberBytes(r.ringSize)
	payload := fb.Bytes()
	if len(payload) < fecTrailerFixed+trailer {
		r.log.WithFields(logrus.Fields{
			"function":     "Receiver.storeFEC",
			"event_number": eventNumber,
			"size":         len(payload),
		}).Warn("Malformed FEC event, discarding")
		fb.Release()
		return
	}

	var start uint16
	if trailer == 1 {
		start = uint16(payload[len(payload)-1])
	} else {
		start = binary.BigEndian.Uint16(payload[len(payload)-2:])
	}

	slot := int(eventNumber) % r.ringSize
	r.fecLocks[slot].lock()
	if old := r.fecSlots[slot]; old != nil {
		old.Release()
	}
	r.fecSlots[slot] = fb
	gen := r.fecSlotGen[slot].Add(1)
	r.fecLocks[slot].unlock()

	for e, n := start, 0; e != eventNumber && n < r.ringSize; e, n = voice.EventAdd(e, 1, r.ringSize), n+1 {
		idx := int(e) % r.ringSize
		r.fecXRef[idx].Store(int32(eventNumber))
		r.fecXRefGen[idx].Store(gen)
	}

	r.sinceFEC.Store(0)
}

// tryRecover attempts to rebuild the lost event via the FEC event that
// covers it, writing the recovered frame into the lost slot on success.
// The caller holds the lost slot's lock; member and FEC slot locks are
// taken one at a time, so writers (which hold a single lock) cannot
// deadlock against the recovery walk. Recovery fails when any other
// group member is also missing, when the cross-reference entry is stale,
// or when the recovered size does not fit the FEC buffer. The fold runs
// on a scratch copy of the accumulator, never on the FEC buffer itself:
// a failed attempt must leave the group intact so a retry after a late
// arrival still folds from clean redundancy data.
func (r *Receiver) tryRecover(lost uint16) bool {
	lostSlot := int(lost) % r.ringSize
	ref := r.fecXRef[lostSlot].Load()
	if ref < 0 {
		return false
	}
	refGen := r.fecXRefGen[lostSlot].Load()
	fecEvent := uint16(ref)
	fecSlot := int(fecEvent) % r.ringSize

	r.fecLocks[fecSlot].lock()
	defer r.fecLocks[fecSlot].unlock()

	if r.fecSlotGen[fecSlot].Load() != refGen {
		// slot reused by a later FEC event since this entry was written
		r.metrics.recoveryFailures.Add(1)
		return false
	}
	fb := r.fecSlots[fecSlot]
	if fb == nil || !fb.Flags().IsFEC() {
		r.metrics.recoveryFailures.Add(1)
		return false
	}

	trailer := limits.EventNumberBytes(r.ringSize)
	payload := fb.Bytes()
	trailerOff := len(payload) - fecTrailerFixed - trailer
	if trailerOff < 0 {
		r.metrics.recoveryFailures.Add(1)
		return false
	}

	acc := payload[:trailerOff]
	xorFlags := payload[trailerOff]
	xorFrame := payload[trailerOff+1]
	xorSize := binary.BigEndian.Uint16(payload[trailerOff+2 : trailerOff+4])
	var start uint16
	if trailer == 1 {
		start = uint16(payload[trailerOff+fecTrailerFixed])
	} else {
		start = binary.BigEndian.Uint16(payload[trailerOff+fecTrailerFixed:])
	}

	// Fold every other group member back out of a scratch copy of the
	// accumulator. What remains is the lost event's payload and metadata.
	scratch := r.alloc.Acquire(len(acc))
	copy(scratch, acc)
	for e, n := start, 0; e != fecEvent && n < r.ringSize; e, n = voice.EventAdd(e, 1, r.ringSize), n+1 {
		if e == lost {
			continue
		}
		slot := int(e) % r.ringSize
		r.locks[slot].lock()
		mb := r.slots[slot]
		if mb == nil {
			// a second loss in the same group: unrecoverable
			r.locks[slot].unlock()
			r.alloc.Release(scratch)
			r.metrics.recoveryFailures.Add(1)
			return false
		}
		b := mb.Bytes()
		for i := 0; i < len(b) && i < len(scratch); i++ {
			scratch[i] ^= b[i]
		}
		xorFlags ^= byte(mb.Flags())
		xorFrame ^= mb.FrameNumber()
		xorSize ^= uint16(len(b))
		r.locks[slot].unlock()
	}

	size := int(int16(xorSize))
	if size < 0 || size > len(scratch) {
		r.alloc.Release(scratch)
		r.log.WithFields(logrus.Fields{
			"function":     "Receiver.tryRecover",
			"event_number": lost,
			"size":         size,
			"fec_capacity": len(acc),
		}).Warn("FEC recovery produced invalid size")
		r.metrics.recoveryFailures.Add(1)
		return false
	}

	// The scratch buffer now is the lost payload: place it in the lost
	// slot with the recovered metadata and consume the FEC slot.
	recovered := buffer.Wrap(scratch[:size], voice.FrameFlags(xorFlags), xorFrame, r.alloc)
	fb.Release()
	r.fecSlots[fecSlot] = nil
	r.slots[lostSlot] = recovered
	r.fecXRef[lostSlot].Store(-1)

	r.metrics.eventsRecovered.Add(1)
	return true
}
