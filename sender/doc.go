// Package sender turns an encoder's compressed output into sequenced
// network events.
//
// One logical frame becomes one or more events: very large frames are
// first split into parts, each part is fragmented down to the transport's
// single-event payload budget, and, when forward error correction is
// enabled, every group of K consecutive events is followed by one XOR
// redundancy event that lets the receiver recover a single loss per group.
//
// A Sender is single-producer: the encoder path calls SendFrame from one
// goroutine at a time. Counters and timestamps are published through
// Stats for concurrent observers.
package sender
