package receiver

import (
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/voicewire/buffer"
	"github.com/opd-ai/voicewire/codec"
	"github.com/opd-ai/voicewire/limits"
	"github.com/opd-ai/voicewire/transport"
	"github.com/opd-ai/voicewire/voice"
)

// fecNever is the "no FEC seen yet" sentinel for the recency counter.
const fecNever = math.MaxInt32

// flushNone marks an empty flush-frame slot.
const flushNone = -1

// Receiver is the receive pipeline of one voice stream: ring buffers,
// delay control, reassembly, and decoder delivery.
type Receiver struct {
	cfg   voice.Config
	info  voice.Info
	dec   codec.Decoder
	alloc buffer.Allocator
	log   *logrus.Entry

	ringSize int

	slots []*buffer.FrameBuffer
	locks []spinLock

	fecSlots []*buffer.FrameBuffer
	fecLocks []spinLock

	// cross-reference: for each slot index, the FEC event number whose
	// group covers it, plus the generation of that FEC slot at the time
	// the entry was written. A generation mismatch marks a stale entry.
	fecXRef    []atomic.Int32
	fecXRefGen []atomic.Uint32
	fecSlotGen []atomic.Uint32

	// events seen since the last FEC event; fecNever until the first one
	sinceFEC atomic.Int32

	// cursors; stored as wider atomics, truncated on use. Writers update
	// frameWritePos and reset all three on discontinuities, the reader
	// owns ordinary advancement of the read cursors.
	frameWritePos atomic.Uint32
	frameReadPos  atomic.Uint32
	eventReadPos  atomic.Uint32
	clearPos      atomic.Uint32

	started       atomic.Bool
	fragmentsSeen atomic.Bool
	flushFrame    atomic.Int32

	configMu    sync.Mutex
	configQueue []*buffer.FrameBuffer

	// part accumulation across reassembled frames (reader only)
	partBuf []byte

	wake      chan struct{}
	disposing atomic.Bool
	receiving atomic.Int32
	decoding  atomic.Bool

	fatalMu  sync.Mutex
	fatalErr error

	metrics metrics
}

// New creates the receive pipeline for one stream and opens the decoder
// sink. An invalid configuration or a failing decoder open prevents the
// stream from being created.
func New(cfg voice.Config, info voice.Info, dec codec.Decoder, alloc buffer.Allocator) (*Receiver, error) {
	if dec == nil {
		logrus.WithFields(logrus.Fields{
			"function": "receiver.New",
			"error":    "decoder sink cannot be nil",
		}).Error("Invalid decoder sink")
		return nil, fmt.Errorf("decoder sink cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if alloc == nil {
		alloc = buffer.DirectAllocator{}
	}

	r := &Receiver{
		cfg:        cfg,
		info:       info,
		dec:        dec,
		alloc:      alloc,
		ringSize:   cfg.RingSize,
		slots:      make([]*buffer.FrameBuffer, cfg.RingSize),
		locks:      make([]spinLock, cfg.RingSize),
		fecSlots:   make([]*buffer.FrameBuffer, cfg.RingSize),
		fecLocks:   make([]spinLock, cfg.RingSize),
		fecXRef:    make([]atomic.Int32, cfg.RingSize),
		fecXRefGen: make([]atomic.Uint32, cfg.RingSize),
		fecSlotGen: make([]atomic.Uint32, cfg.RingSize),
		wake:       make(chan struct{}, 1),
	}
	for i := range r.fecXRef {
		r.fecXRef[i].Store(-1)
	}
	r.sinceFEC.Store(fecNever)
	r.flushFrame.Store(flushNone)
	r.log = logrus.WithFields(logrus.Fields{
		"stream_id": info.StreamID.String(),
	})

	if err := dec.Open(info); err != nil {
		r.log.WithFields(logrus.Fields{
			"function": "receiver.New",
			"error":    err.Error(),
		}).Error("Decoder sink open failed")
		return nil, fmt.Errorf("failed to open decoder sink: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"function":  "receiver.New",
		"ring_size": cfg.RingSize,
		"delay":     cfg.DelayFrames,
		"sync":      cfg.SyncDecode,
	}).Info("Created receive pipeline")

	return r, nil
}

// ReceiveEvent stores one incoming transport event. The payload is
// copied into allocator-owned storage before the call returns, so the
// transport may reuse its array. Safe for concurrent use.
func (r *Receiver) ReceiveEvent(ev *transport.Event) {
	fb := buffer.Copy(r.alloc, ev.Payload, ev.Flags, ev.FrameNumber)
	r.Receive(fb, ev.EventNumber)
}

// Receive stores one incoming event whose payload already lives in a
// frame buffer. Ownership of fb transfers to the ring; callers keeping
// the buffer must Retain it first. Safe for concurrent use.
func (r *Receiver) Receive(fb *buffer.FrameBuffer, eventNumber uint16) {
	if r.disposing.Load() {
		fb.Release()
		return
	}
	r.receiving.Add(1)
	defer r.receiving.Add(-1)
	if r.disposing.Load() {
		fb.Release()
		return
	}

	r.metrics.eventsReceived.Add(1)
	flags := fb.Flags()

	if flags.IsConfig() {
		r.enqueueConfig(fb)
		r.signal()
		return
	}

	if flags.IsFragmented() {
		r.fragmentsSeen.Store(true)
	}

	if flags.IsFEC() {
		r.storeFEC(fb, eventNumber)
		r.signal()
		return
	}

	frameNumber := fb.FrameNumber()
	endOfStream := flags.IsEndOfStream()

	if !r.started.Load() {
		// bootstrap: align all cursors with the first data event so the
		// reassembler does not flood the decoder with missing frames
		r.frameWritePos.Store(uint32(frameNumber))
		r.frameReadPos.Store(uint32(frameNumber))
		r.eventReadPos.Store(uint32(eventNumber))
		r.clearPos.Store(uint32(eventNumber))
		r.started.Store(true)
	}

	slot := int(eventNumber) % r.ringSize
	r.locks[slot].lock()
	if old := r.slots[slot]; old != nil {
		old.Release()
	}
	r.slots[slot] = fb
	r.locks[slot].unlock()

	if v := r.sinceFEC.Load(); v < fecNever {
		r.sinceFEC.Store(v + 1)
	}

	adv := voice.FrameDiff(frameNumber, byte(r.frameWritePos.Load()))
	switch {
	case adv < -limits.FrameBehindTolerance || adv > limits.FrameAheadTolerance:
		// stream restart (interest group change, sender reset): snap all
		// cursors to the incoming event
		r.frameWritePos.Store(uint32(frameNumber))
		r.frameReadPos.Store(uint32(frameNumber))
		r.eventReadPos.Store(uint32(eventNumber))
		r.clearPos.Store(uint32(eventNumber))
		r.flushFrame.Store(flushNone)
		r.metrics.discontinuities.Add(1)
		r.log.WithFields(logrus.Fields{
			"function":      "Receiver.Receive",
			"frame_number":  frameNumber,
			"frame_advance": adv,
			"event_number":  eventNumber,
		}).Debug("Frame discontinuity, resetting cursors")
	case adv > 0:
		r.frameWritePos.Store(uint32(frameNumber))
	case adv < 0:
		r.metrics.eventsLate.Add(1)
	}

	if endOfStream {
		r.flushFrame.Store(int32(frameNumber))
	}

	r.signal()
	if r.cfg.SyncDecode {
		r.decodeQueue()
	}
}

// enqueueConfig appends a config frame to the bounded side queue,
// evicting the oldest entry when full. Config frames never enter the
// main ring: they are not fragmented and are numbered independently.
func (r *Receiver) enqueueConfig(fb *buffer.FrameBuffer) {
	r.configMu.Lock()
	if len(r.configQueue) >= limits.ConfigQueueCap {
		oldest := r.configQueue[0]
		r.configQueue = r.configQueue[1:]
		oldest.Release()
		r.metrics.configsDropped.Add(1)
	}
	r.configQueue = append(r.configQueue, fb)
	r.configMu.Unlock()
}

// drainConfig feeds queued config frames to the decoder. Configs are
// ordered before the data they configure, so the reassembler drains the
// queue ahead of every batch of ring entries.
func (r *Receiver) drainConfig() {
	for {
		r.configMu.Lock()
		if len(r.configQueue) == 0 {
			r.configMu.Unlock()
			return
		}
		fb := r.configQueue[0]
		r.configQueue = r.configQueue[1:]
		r.configMu.Unlock()

		r.inputDecoder(fb)
		fb.Release()
	}
}

// signal wakes the decode goroutine. The one-slot channel coalesces
// bursts of arrivals into a single wake.
func (r *Receiver) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run services the decode signal until Dispose. It runs on the stream's
// dedicated decode goroutine in asynchronous mode; synchronous streams
// never call it. A decoder failure or a panic inside the decode path
// terminates this stream's pipeline and is returned, without affecting
// other streams.
func (r *Receiver) Run() (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("decode pipeline panic: %v", p)
			r.log.WithFields(logrus.Fields{
				"function": "Receiver.Run",
				"panic":    p,
			}).Error("Decode pipeline terminated by panic")
			r.Dispose()
		}
	}()

	for range r.wake {
		if r.disposing.Load() {
			return nil
		}
		r.decodeQueue()
		if ferr := r.fatal(); ferr != nil {
			r.log.WithFields(logrus.Fields{
				"function": "Receiver.Run",
				"error":    ferr.Error(),
			}).Error("Decode pipeline terminated")
			r.Dispose()
			return ferr
		}
	}
	return nil
}

// fatal returns the first unrecoverable decoder error, if any.
func (r *Receiver) fatal() error {
	r.fatalMu.Lock()
	defer r.fatalMu.Unlock()
	return r.fatalErr
}

func (r *Receiver) setFatal(err error) {
	r.fatalMu.Lock()
	if r.fatalErr == nil {
		r.fatalErr = err
	}
	r.fatalMu.Unlock()
}

// Dispose shuts the pipeline down cooperatively: raise the disposing
// flag, wake the decode goroutine, then busy-wait until no receive or
// decode is in flight, force-clearing slot locks to unstick anything
// mid-operation. After the wait no concurrent ring access is possible
// and resources are released without locking. Idempotent.
func (r *Receiver) Dispose() {
	if !r.disposing.CompareAndSwap(false, true) {
		return
	}
	r.signal()

	for r.receiving.Load() > 0 || r.decoding.Load() {
		for i := range r.locks {
			r.locks[i].forceClear()
		}
		for i := range r.fecLocks {
			r.fecLocks[i].forceClear()
		}
		runtime.Gosched()
	}

	for i, fb := range r.slots {
		if fb != nil {
			fb.Release()
			r.slots[i] = nil
		}
	}
	for i, fb := range r.fecSlots {
		if fb != nil {
			fb.Release()
			r.fecSlots[i] = nil
		}
	}

	r.configMu.Lock()
	for _, fb := range r.configQueue {
		fb.Release()
	}
	r.configQueue = nil
	r.configMu.Unlock()

	r.dec.Dispose()
	r.log.WithFields(logrus.Fields{
		"function": "Receiver.Dispose",
	}).Info("Receive pipeline disposed")
}

// Info returns the stream metadata of this pipeline.
func (r *Receiver) Info() voice.Info { return r.info }
