// Package voicewire implements frame-level voice transport: an outgoing
// frame sender with fragmentation and XOR redundancy, and a lock-minimal
// receive pipeline that reorders, repairs, and reassembles incoming
// events into decoder-ready frames.
package voicewire

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/opd-ai/voicewire/buffer"
	"github.com/opd-ai/voicewire/codec"
	"github.com/opd-ai/voicewire/receiver"
	"github.com/opd-ai/voicewire/sender"
	"github.com/opd-ai/voicewire/transport"
	"github.com/opd-ai/voicewire/voice"
)

// Options configures a Manager.
type Options struct {
	// Transport carries events for every stream the manager owns.
	Transport transport.Transport

	// Stream holds the transport settings applied to new streams.
	Stream voice.Config

	// Allocator provides payload storage; nil selects a pooling
	// allocator shared by all streams.
	Allocator buffer.Allocator

	// ChannelID tags every outgoing event.
	ChannelID byte
}

// NewOptions returns options with the default stream settings.
func NewOptions() *Options {
	return &Options{
		Stream: voice.DefaultConfig(),
	}
}

// LocalVoice is one outgoing stream: a frame sender bound to a voice ID.
type LocalVoice struct {
	id  byte
	snd *sender.Sender
}

// ID returns the stream's voice ID.
func (v *LocalVoice) ID() byte { return v.id }

// Send frames one unit of encoder output into transport events.
func (v *LocalVoice) Send(payload []byte, flags voice.FrameFlags) error {
	return v.snd.SendFrame(payload, flags)
}

// Stats returns the stream's send counters.
func (v *LocalVoice) Stats() sender.Stats { return v.snd.Stats() }

// RemoteVoice is one incoming stream: a receive pipeline bound to a
// voice ID.
type RemoteVoice struct {
	id  byte
	rcv *receiver.Receiver
}

// ID returns the stream's voice ID.
func (v *RemoteVoice) ID() byte { return v.id }

// Metrics returns the stream's receive counters.
func (v *RemoteVoice) Metrics() receiver.MetricsSnapshot { return v.rcv.Metrics() }

// Manager owns the local and remote voice streams of one session and
// routes incoming transport events to their receive pipelines.
type Manager struct {
	opts  *Options
	alloc buffer.Allocator

	mu      sync.Mutex
	locals  map[byte]*LocalVoice
	remotes map[byte]*RemoteVoice
	nextID  byte
	closed  bool

	// decode goroutines of asynchronous remote streams
	group errgroup.Group
}

// New creates a stream manager over the given transport.
func New(opts *Options) (*Manager, error) {
	if opts == nil {
		opts = NewOptions()
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}
	if err := opts.Stream.Validate(); err != nil {
		return nil, err
	}

	alloc := opts.Allocator
	if alloc == nil {
		alloc = buffer.NewPoolAllocator(64)
	}

	m := &Manager{
		opts:    opts,
		alloc:   alloc,
		locals:  make(map[byte]*LocalVoice),
		remotes: make(map[byte]*RemoteVoice),
		nextID:  1,
	}

	logrus.WithFields(logrus.Fields{
		"function":  "voicewire.New",
		"ring_size": opts.Stream.RingSize,
		"fec_group": opts.Stream.FECGroupSize,
	}).Info("Created stream manager")

	return m, nil
}

// CreateLocalVoice starts an outgoing stream and assigns it the next
// free voice ID.
func (m *Manager) CreateLocalVoice(info voice.Info, params transport.SendParams) (*LocalVoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("manager is closed")
	}

	id, err := m.allocateIDLocked()
	if err != nil {
		return nil, err
	}

	snd, err := sender.New(m.opts.Stream, info, m.opts.Transport, id, m.opts.ChannelID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create local voice: %w", err)
	}

	v := &LocalVoice{id: id, snd: snd}
	m.locals[id] = v
	return v, nil
}

// allocateIDLocked finds the next voice ID unused by either direction.
// Zero is reserved.
func (m *Manager) allocateIDLocked() (byte, error) {
	for i := 0; i < 255; i++ {
		id := m.nextID
		m.nextID++
		if m.nextID == 0 {
			m.nextID = 1
		}
		if id == 0 {
			continue
		}
		if _, ok := m.locals[id]; ok {
			continue
		}
		if _, ok := m.remotes[id]; ok {
			continue
		}
		return id, nil
	}
	return 0, fmt.Errorf("no free voice IDs")
}

// CreateRemoteVoice starts the receive pipeline for an announced remote
// stream. In asynchronous mode the stream's decode goroutine is owned by
// the manager and joined on Close.
func (m *Manager) CreateRemoteVoice(voiceID byte, info voice.Info, dec codec.Decoder) (*RemoteVoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("manager is closed")
	}
	if _, ok := m.remotes[voiceID]; ok {
		return nil, fmt.Errorf("voice ID %d already has a remote stream", voiceID)
	}

	rcv, err := receiver.New(m.opts.Stream, info, dec, m.alloc)
	if err != nil {
		return nil, fmt.Errorf("failed to create remote voice: %w", err)
	}

	v := &RemoteVoice{id: voiceID, rcv: rcv}
	m.remotes[voiceID] = v

	if !m.opts.Stream.SyncDecode {
		m.group.Go(rcv.Run)
	}
	return v, nil
}

// RemoveLocalVoice stops an outgoing stream.
func (m *Manager) RemoveLocalVoice(voiceID byte) {
	m.mu.Lock()
	delete(m.locals, voiceID)
	m.mu.Unlock()
}

// RemoveRemoteVoice stops an incoming stream and disposes its pipeline.
func (m *Manager) RemoveRemoteVoice(voiceID byte) {
	m.mu.Lock()
	v := m.remotes[voiceID]
	delete(m.remotes, voiceID)
	m.mu.Unlock()

	if v != nil {
		v.rcv.Dispose()
	}
}

// HandleEvent routes one incoming transport event to the receive
// pipeline of its stream. Events for unknown voice IDs are dropped;
// remote streams may be announced after their first events arrive.
func (m *Manager) HandleEvent(ev *transport.Event) {
	m.mu.Lock()
	v := m.remotes[ev.VoiceID]
	m.mu.Unlock()

	if v == nil {
		logrus.WithFields(logrus.Fields{
			"function": "Manager.HandleEvent",
			"voice_id": ev.VoiceID,
		}).Debug("Event for unknown voice, dropping")
		return
	}
	v.rcv.ReceiveEvent(ev)
}

// Close disposes every stream and joins the decode goroutines. It
// returns the first fatal stream error, if any. Idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	remotes := make([]*RemoteVoice, 0, len(m.remotes))
	for _, v := range m.remotes {
		remotes = append(remotes, v)
	}
	m.remotes = make(map[byte]*RemoteVoice)
	m.locals = make(map[byte]*LocalVoice)
	m.mu.Unlock()

	for _, v := range remotes {
		v.rcv.Dispose()
	}
	err := m.group.Wait()

	logrus.WithFields(logrus.Fields{
		"function": "Manager.Close",
	}).Info("Stream manager closed")
	return err
}
