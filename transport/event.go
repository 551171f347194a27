package transport

import (
	"encoding/binary"
	"errors"

	"github.com/opd-ai/voicewire/voice"
)

// SendParams carries per-send transport hints.
type SendParams struct {
	// Reliable requests at-least-once delivery from transports that
	// support it. The receive pipeline never depends on it.
	Reliable bool

	// InterestGroup scopes delivery to a receiver group; zero means all.
	InterestGroup byte
}

// Event is one unit of network transmission: a payload plus the sequence
// metadata the receive pipeline needs to place it in the ring.
type Event struct {
	// VoiceID identifies the stream this event belongs to.
	VoiceID byte

	// ChannelID identifies the logical channel of the stream.
	ChannelID byte

	// Flags describes how the payload participates in reassembly.
	Flags voice.FrameFlags

	// FrameNumber is the 8-bit logical frame number.
	FrameNumber byte

	// EventNumber is the event sequence number modulo the ring size.
	EventNumber uint16

	// Payload is the event body. Receivers must copy it before the
	// delivering callback returns.
	Payload []byte

	// Params carries transport hints for this send.
	Params SendParams
}

// eventHeaderLen is the serialized envelope header size.
const eventHeaderLen = 6

// ErrEventTooShort indicates a serialized event shorter than its header.
var ErrEventTooShort = errors.New("event too short")

// Marshal converts an event to a byte slice for transmission.
func (e *Event) Marshal() ([]byte, error) {
	if e.Payload == nil {
		return nil, errors.New("event payload is nil")
	}

	// Format: [voice id][channel id][flags][frame number][event number (2 bytes)][payload]
	result := make([]byte, eventHeaderLen+len(e.Payload))
	result[0] = e.VoiceID
	result[1] = e.ChannelID
	result[2] = byte(e.Flags)
	result[3] = e.FrameNumber
	binary.BigEndian.PutUint16(result[4:6], e.EventNumber)
	copy(result[eventHeaderLen:], e.Payload)

	return result, nil
}

// UnmarshalEvent converts a byte slice back to an Event structure.
func UnmarshalEvent(data []byte) (*Event, error) {
	if len(data) < eventHeaderLen {
		return nil, ErrEventTooShort
	}

	ev := &Event{
		VoiceID:     data[0],
		ChannelID:   data[1],
		Flags:       voice.FrameFlags(data[2]),
		FrameNumber: data[3],
		EventNumber: binary.BigEndian.Uint16(data[4:6]),
		Payload:     make([]byte, len(data)-eventHeaderLen),
	}
	copy(ev.Payload, data[eventHeaderLen:])

	return ev, nil
}
