package transport

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Transport carries events to the remote side of a stream. Implementations
// must be safe for concurrent use; the voice layer assumes a single
// producer per stream but multiple streams may share one transport.
type Transport interface {
	// SendEvent emits one network event. The callee must not retain
	// ev.Payload beyond the call.
	SendEvent(ev *Event) error

	// MaxPayloadSize returns the largest payload a single event may
	// carry, or 0 when the transport imposes no limit.
	MaxPayloadSize() int
}

// Receiver consumes delivered events. The payload is only valid for the
// duration of the call.
type Receiver func(ev *Event)

// Loopback is an in-process transport that delivers sent events
// synchronously to subscribed receivers. It serves examples and tests.
type Loopback struct {
	mu         sync.RWMutex
	receivers  []Receiver
	maxPayload int
}

// NewLoopback creates a loopback transport with no payload size limit.
func NewLoopback() *Loopback {
	return &Loopback{}
}

// SetMaxPayloadSize configures an artificial single-event payload limit,
// useful for exercising fragmentation.
func (l *Loopback) SetMaxPayloadSize(size int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maxPayload = size
}

// MaxPayloadSize returns the configured payload limit, 0 when unlimited.
func (l *Loopback) MaxPayloadSize() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.maxPayload
}

// Subscribe registers a receiver for every subsequently sent event.
func (l *Loopback) Subscribe(r Receiver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.receivers = append(l.receivers, r)
}

// SendEvent delivers the event to all subscribers on the calling
// goroutine. Envelope serialization round-trips through Marshal so the
// loopback exercises the same ownership rules as a network transport.
func (l *Loopback) SendEvent(ev *Event) error {
	data, err := ev.Marshal()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Loopback.SendEvent",
			"voice_id": ev.VoiceID,
			"error":    err.Error(),
		}).Error("Failed to marshal event")
		return err
	}

	delivered, err := UnmarshalEvent(data)
	if err != nil {
		return err
	}
	delivered.Params = ev.Params

	l.mu.RLock()
	receivers := make([]Receiver, len(l.receivers))
	copy(receivers, l.receivers)
	l.mu.RUnlock()

	for _, r := range receivers {
		r(delivered)
	}
	return nil
}
