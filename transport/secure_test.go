package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecureSealOpenRoundTrip(t *testing.T) {
	lo := NewLoopback()
	var key [32]byte
	copy(key[:], "0123456789abcdef0123456789abcdef")

	sec, err := NewSecure(lo, key)
	require.NoError(t, err)

	var sealed *Event
	lo.Subscribe(func(ev *Event) { sealed = ev })

	plaintext := []byte("compressed audio frame")
	require.NoError(t, sec.SendEvent(&Event{VoiceID: 1, Payload: plaintext}))

	require.NotNil(t, sealed)
	assert.NotEqual(t, plaintext, sealed.Payload, "payload left in the clear")

	require.NoError(t, sec.OpenEvent(sealed))
	assert.Equal(t, plaintext, sealed.Payload)
}

func TestSecureOpenRejectsTampering(t *testing.T) {
	lo := NewLoopback()
	var key [32]byte

	sec, err := NewSecure(lo, key)
	require.NoError(t, err)

	var sealed *Event
	lo.Subscribe(func(ev *Event) { sealed = ev })
	require.NoError(t, sec.SendEvent(&Event{Payload: []byte("frame")}))
	require.NotNil(t, sealed)

	sealed.Payload[len(sealed.Payload)-1] ^= 0xFF
	assert.ErrorIs(t, sec.OpenEvent(sealed), ErrDecryptionFailed)
}

func TestSecureRejectsNilInner(t *testing.T) {
	var key [32]byte
	_, err := NewSecure(nil, key)
	assert.Error(t, err)
}

func TestSecureMaxPayloadAccountsForOverhead(t *testing.T) {
	lo := NewLoopback()
	var key [32]byte
	sec, err := NewSecure(lo, key)
	require.NoError(t, err)

	assert.Equal(t, 0, sec.MaxPayloadSize())

	lo.SetMaxPayloadSize(1000)
	assert.Less(t, sec.MaxPayloadSize(), 1000)
	assert.Greater(t, sec.MaxPayloadSize(), 0)
}
