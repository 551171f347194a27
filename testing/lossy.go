package testing

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/voicewire/transport"
	"github.com/opd-ai/voicewire/voice"
)

// LossyTransport wraps another transport and drops, withholds, or reorders
// events according to test instructions. It simulates the unreliable
// delivery the receive pipeline is designed to absorb.
type LossyTransport struct {
	inner transport.Transport

	mu         sync.Mutex
	dropNext   map[uint16]int // event number -> remaining drops
	dropFEC    bool
	held       []*transport.Event
	holding    bool
	dropped    []*transport.Event
	delivered  int
	maxPayload int
}

// NewLossyTransport creates a simulator delivering through inner.
func NewLossyTransport(inner transport.Transport) *LossyTransport {
	return &LossyTransport{
		inner:    inner,
		dropNext: make(map[uint16]int),
	}
}

// DropEventNumber drops the next occurrence of the given event number.
func (l *LossyTransport) DropEventNumber(n uint16) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dropNext[n]++
}

// DropFEC discards all FEC events when set, simulating redundancy loss.
func (l *LossyTransport) DropFEC(drop bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dropFEC = drop
}

// Hold starts withholding events instead of delivering them.
func (l *LossyTransport) Hold() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.holding = true
}

// ReleaseHeld stops withholding and delivers the held events in the
// given order. Indexes outside the held range are ignored; a nil order
// delivers in arrival order.
func (l *LossyTransport) ReleaseHeld(order []int) error {
	l.mu.Lock()
	held := l.held
	l.held = nil
	l.holding = false
	l.mu.Unlock()

	if order == nil {
		for i := range held {
			order = append(order, i)
		}
	}
	for _, i := range order {
		if i < 0 || i >= len(held) {
			continue
		}
		if err := l.inner.SendEvent(held[i]); err != nil {
			return err
		}
		l.mu.Lock()
		l.delivered++
		l.mu.Unlock()
	}
	return nil
}

// copyEvent clones an event; transports must not retain caller payloads.
func copyEvent(ev *transport.Event) *transport.Event {
	cp := *ev
	cp.Payload = append([]byte(nil), ev.Payload...)
	return &cp
}

// SendEvent applies the configured loss pattern, then forwards.
func (l *LossyTransport) SendEvent(ev *transport.Event) error {
	l.mu.Lock()
	if l.dropFEC && ev.Flags&voice.FlagFEC != 0 {
		l.dropped = append(l.dropped, copyEvent(ev))
		l.mu.Unlock()
		return nil
	}
	if n := l.dropNext[ev.EventNumber]; n > 0 && ev.Flags&voice.FlagFEC == 0 {
		l.dropNext[ev.EventNumber] = n - 1
		l.dropped = append(l.dropped, copyEvent(ev))
		l.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function":     "LossyTransport.SendEvent",
			"event_number": ev.EventNumber,
		}).Debug("Simulating event loss")
		return nil
	}
	if l.holding {
		l.held = append(l.held, copyEvent(ev))
		l.mu.Unlock()
		return nil
	}
	l.delivered++
	l.mu.Unlock()
	return l.inner.SendEvent(ev)
}

// MaxPayloadSize reports the inner transport's payload budget.
func (l *LossyTransport) MaxPayloadSize() int {
	if l.maxPayload > 0 {
		return l.maxPayload
	}
	return l.inner.MaxPayloadSize()
}

// SetMaxPayloadSize overrides the advertised payload budget.
func (l *LossyTransport) SetMaxPayloadSize(size int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maxPayload = size
}

// Dropped returns the events discarded so far.
func (l *LossyTransport) Dropped() []*transport.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*transport.Event, len(l.dropped))
	copy(out, l.dropped)
	return out
}

// Delivered returns the number of events passed through.
func (l *LossyTransport) Delivered() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.delivered
}
