// Package transport defines the event envelope and the egress interface
// of the voice frame transport.
//
// The sender produces Events; an implementation of Transport carries them
// to the remote side, which feeds them back into the receive pipeline.
// The envelope serialization here covers the voice-level fields only; any
// outer session framing belongs to the embedding application.
//
// Example:
//
//	tr := transport.NewLoopback()
//	tr.Subscribe(func(ev *transport.Event) {
//	    // hand to the receiver for this voice
//	})
//
//	err := tr.SendEvent(&transport.Event{
//	    VoiceID: 1,
//	    Payload: []byte{...},
//	})
package transport
