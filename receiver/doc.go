// Package receiver implements the receive side of the voice frame
// transport: a per-stream ring buffer absorbing out-of-order events, a
// delay controller trading latency for loss tolerance, and a reassembler
// that recovers losses via XOR forward error correction, reassembles
// fragmented and multi-part frames, and feeds complete frames to a
// decoder sink in frame order.
//
// Concurrency model: Receive may be invoked from any number of network
// callback goroutines; the reassembler runs either on one dedicated
// decode goroutine per stream (see Run) or synchronously on the receiving
// goroutine. Ring slots are guarded individually by compare-and-swap spin
// locks; critical sections are O(1) array accesses, and no global lock
// exists. Shutdown is cooperative: Dispose raises a flag, wakes the
// decode goroutine, force-clears slot locks, and waits until no receive
// or decode is in flight before releasing resources.
package receiver
