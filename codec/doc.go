// Package codec defines the decoder sink consumed by the receive
// pipeline and provides two implementations: an Opus sink backed by the
// pure Go pion/opus decoder, and a capture sink for tests and tooling.
package codec
