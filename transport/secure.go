package transport

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/nacl/secretbox"
)

// nonceSize is the NaCl secretbox nonce size prepended to sealed payloads.
const nonceSize = 24

// ErrDecryptionFailed indicates a sealed payload failed authentication.
var ErrDecryptionFailed = errors.New("payload decryption failed")

// Secure wraps another transport and seals every event payload with
// NaCl secretbox under a pre-shared stream key. Envelope metadata stays
// in the clear so the receive pipeline can route events without the key.
//
// Key agreement is out of scope here: the embedding session layer is
// expected to derive and distribute the stream key.
type Secure struct {
	inner Transport
	key   [32]byte
}

// NewSecure creates an encrypting transport decorator around inner.
func NewSecure(inner Transport, key [32]byte) (*Secure, error) {
	if inner == nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewSecure",
			"error":    "inner transport cannot be nil",
		}).Error("Invalid transport")
		return nil, fmt.Errorf("inner transport cannot be nil")
	}
	return &Secure{inner: inner, key: key}, nil
}

// MaxPayloadSize returns the inner limit reduced by the sealing overhead.
func (s *Secure) MaxPayloadSize() int {
	max := s.inner.MaxPayloadSize()
	if max == 0 {
		return 0
	}
	return max - nonceSize - secretbox.Overhead
}

// SendEvent seals the payload and forwards the event to the inner
// transport. The sealed payload is nonce || ciphertext.
func (s *Secure) SendEvent(ev *Event) error {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Secure.SendEvent",
			"error":    err.Error(),
		}).Error("Failed to generate nonce")
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], ev.Payload, &nonce, &s.key)

	out := *ev
	out.Payload = sealed
	return s.inner.SendEvent(&out)
}

// OpenEvent reverses SendEvent's sealing in place on the receive side.
// The event's payload is replaced by the authenticated plaintext.
func (s *Secure) OpenEvent(ev *Event) error {
	if len(ev.Payload) < nonceSize+secretbox.Overhead {
		return ErrDecryptionFailed
	}

	var nonce [nonceSize]byte
	copy(nonce[:], ev.Payload[:nonceSize])

	plain, ok := secretbox.Open(nil, ev.Payload[nonceSize:], &nonce, &s.key)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function":     "Secure.OpenEvent",
			"voice_id":     ev.VoiceID,
			"event_number": ev.EventNumber,
		}).Warn("Event payload failed authentication")
		return ErrDecryptionFailed
	}

	ev.Payload = plain
	return nil
}
