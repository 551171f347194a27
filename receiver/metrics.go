package receiver

import "sync/atomic"

// metrics holds the receive pipeline's loss accounting. All counters are
// atomic; writers and the reader update them without coordination.
type metrics struct {
	eventsReceived   atomic.Uint64
	eventsLost       atomic.Uint64
	eventsLate       atomic.Uint64
	eventsRecovered  atomic.Uint64
	recoveryFailures atomic.Uint64
	framesDelivered  atomic.Uint64
	framesLost       atomic.Uint64
	discontinuities  atomic.Uint64
	configsDropped   atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of the receive counters.
type MetricsSnapshot struct {
	// EventsReceived counts every event handed to Receive.
	EventsReceived uint64

	// EventsLost counts ring slots found empty when their turn came,
	// after any recovery attempt.
	EventsLost uint64

	// EventsLate counts events that arrived after their frame had
	// already been superseded.
	EventsLate uint64

	// EventsRecovered counts losses repaired via FEC.
	EventsRecovered uint64

	// RecoveryFailures counts FEC recovery attempts that failed
	// (multiple losses in one group, or validation failures).
	RecoveryFailures uint64

	// FramesDelivered counts frames handed to the decoder sink,
	// loss placeholders excluded.
	FramesDelivered uint64

	// FramesLost counts frames replaced by a loss placeholder.
	FramesLost uint64

	// Discontinuities counts cursor resets from out-of-tolerance frame
	// jumps (stream restarts).
	Discontinuities uint64

	// ConfigsDropped counts config frames evicted from the full side
	// queue.
	ConfigsDropped uint64
}

// Metrics returns a snapshot of the pipeline's counters.
func (r *Receiver) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		EventsReceived:   r.metrics.eventsReceived.Load(),
		EventsLost:       r.metrics.eventsLost.Load(),
		EventsLate:       r.metrics.eventsLate.Load(),
		EventsRecovered:  r.metrics.eventsRecovered.Load(),
		RecoveryFailures: r.metrics.recoveryFailures.Load(),
		FramesDelivered:  r.metrics.framesDelivered.Load(),
		FramesLost:       r.metrics.framesLost.Load(),
		Discontinuities:  r.metrics.discontinuities.Load(),
		ConfigsDropped:   r.metrics.configsDropped.Load(),
	}
}
