// Package buffer provides the reference-counted frame buffers shared
// between the receive ring, the reassembler, and buffer pools.
//
// A FrameBuffer is a byte range plus frame metadata. Ownership is shared:
// every holder that outlives the call it received the buffer in must
// Retain it, and every holder must Release exactly once. The final
// Release returns the backing storage to the allocator it came from.
package buffer
