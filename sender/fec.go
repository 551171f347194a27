package sender

import (
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/voicewire/limits"
	"github.com/opd-ai/voicewire/transport"
	"github.com/opd-ai/voicewire/voice"
)

// fecTrailerFixed is the fixed portion of the FEC trailer: XOR of member
// flags (1 byte), XOR of member frame numbers (1 byte), XOR of member
// sizes (2 bytes). The group start event number follows in 1 or 2 bytes
// depending on ring size.
const fecTrailerFixed = 4

// fecAccumulate folds one sent event into the current XOR group.
// Shorter payloads XOR against the accumulator prefix only, which is
// equivalent to zero-padding them to the group's longest member.
func (s *Sender) fecAccumulate(payload []byte, flags voice.FrameFlags) {
	if len(payload) > len(s.fecAcc) {
		s.fecAcc = append(s.fecAcc, make([]byte, len(payload)-len(s.fecAcc))...)
	}
	for i, b := range payload {
		s.fecAcc[i] ^= b
	}
	if len(payload) > s.fecAccLen {
		s.fecAccLen = len(payload)
	}
	s.fecFlags ^= flags
	s.fecFrame ^= s.frameNumber
	s.fecSize ^= uint16(len(payload))
	s.fecCount++
}

// sendFECEvent emits the accumulated XOR payload for the finished group.
//
// The FEC event carries the next unused event number without consuming
// it: its number is never one of its own group members, and the loss of
// the FEC event itself needs no separate accounting on the receive side.
func (s *Sender) sendFECEvent() error {
	trailer := limits.EventNumberBytes(s.cfg.RingSize)
	payload := make([]byte, s.fecAccLen+fecTrailerFixed+trailer)
	copy(payload, s.fecAcc[:s.fecAccLen])
	payload[s.fecAccLen] = byte(s.fecFlags)
	payload[s.fecAccLen+1] = s.fecFrame
	binary.BigEndian.PutUint16(payload[s.fecAccLen+2:], s.fecSize)
	if trailer == 1 {
		payload[s.fecAccLen+fecTrailerFixed] = byte(s.fecStart)
	} else {
		binary.BigEndian.PutUint16(payload[s.fecAccLen+fecTrailerFixed:], s.fecStart)
	}

	ev := &transport.Event{
		VoiceID:     s.voiceID,
		ChannelID:   s.channelID,
		Flags:       voice.FlagFEC,
		FrameNumber: s.frameNumber,
		EventNumber: s.eventNumber, // reused, not advanced
		Payload:     payload,
		Params:      s.params,
	}
	if err := s.tr.SendEvent(ev); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":     "Sender.sendFECEvent",
			"stream_id":    s.info.StreamID.String(),
			"event_number": s.eventNumber,
			"group_start":  s.fecStart,
			"error":        err.Error(),
		}).Error("Failed to send FEC event")
		s.resetFECGroup()
		return fmt.Errorf("failed to send FEC event: %w", err)
	}

	s.statsMu.Lock()
	s.stats.EventsSent++
	s.stats.FECEventsSent++
	s.statsMu.Unlock()

	s.resetFECGroup()
	return nil
}

// resetFECGroup clears the accumulator for the next group, which starts
// at the current (still unused) event number.
func (s *Sender) resetFECGroup() {
	for i := range s.fecAcc {
		s.fecAcc[i] = 0
	}
	s.fecAccLen = 0
	s.fecFlags = 0
	s.fecFrame = 0
	s.fecSize = 0
	s.fecCount = 0
	s.fecStart = s.eventNumber
}
