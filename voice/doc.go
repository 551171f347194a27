// Package voice defines the shared leaf types of the voice frame transport:
// frame flags, stream configuration, stream metadata, and the modular
// sequence arithmetic used by both the sender and the receive pipeline.
//
// The transport moves logical frames (one unit of encoder output, identified
// by an 8-bit frame number) as one or more events (one unit of network
// transmission, identified by a 16-bit event number modulo the configured
// ring size). Oversized frames are split into fragments, extremely large
// frames additionally into parts, and groups of events may be protected by
// an XOR forward-error-correction event.
//
// Both counters wrap. All ordering decisions use signed modular differences,
// never direct numeric comparison.
package voice
