package sender

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/voicewire/limits"
	"github.com/opd-ai/voicewire/transport"
	"github.com/opd-ai/voicewire/voice"
)

// Stats carries the per-sender diagnostic counters.
type Stats struct {
	// EventsSent counts every event handed to the transport, FEC included.
	EventsSent uint64

	// FECEventsSent counts emitted XOR redundancy events.
	FECEventsSent uint64

	// FramesSent counts logical frames, regardless of fragmentation.
	FramesSent uint64

	// FramesFragmented counts frames that needed more than one event.
	FramesFragmented uint64

	// ConfigResendsSuppressed counts config sends skipped because the
	// payload matched the previously transmitted configuration.
	ConfigResendsSuppressed uint64

	// LastTransmit is when payload bytes last went out. Zero-length
	// events advance counters but do not count as transmitting.
	LastTransmit time.Time
}

// Sender frames compressed payloads into transport events for one stream.
type Sender struct {
	cfg       voice.Config
	info      voice.Info
	tr        transport.Transport
	voiceID   byte
	channelID byte
	params    transport.SendParams

	eventNumber uint16
	frameNumber byte

	// resolved per-fragment payload size (transport budget applied)
	fragmentSize int

	// XOR accumulator state for the current FEC group
	fecAcc    []byte
	fecAccLen int
	fecFlags  voice.FrameFlags
	fecFrame  byte
	fecSize   uint16
	fecCount  int
	fecStart  uint16

	lastConfig []byte

	statsMu sync.Mutex
	stats   Stats
}

// New creates a frame sender for one stream. The configuration is
// validated and defaulted; fragment sizing is clamped to the transport's
// advertised payload budget, leaving room for the fragment-count trailer
// on first fragments.
func New(cfg voice.Config, info voice.Info, tr transport.Transport, voiceID, channelID byte, params transport.SendParams) (*Sender, error) {
	if tr == nil {
		logrus.WithFields(logrus.Fields{
			"function": "sender.New",
			"error":    "transport cannot be nil",
		}).Error("Invalid transport")
		return nil, fmt.Errorf("transport cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	fragSize := cfg.FragmentSize
	trailer := limits.EventNumberBytes(cfg.RingSize)
	if max := tr.MaxPayloadSize(); max > 0 && fragSize+trailer > max {
		fragSize = max - trailer
	}
	if fragSize <= 0 {
		return nil, fmt.Errorf("transport payload budget too small for fragmentation (fragment size %d)", fragSize)
	}

	s := &Sender{
		cfg:          cfg,
		info:         info,
		tr:           tr,
		voiceID:      voiceID,
		channelID:    channelID,
		params:       params,
		fragmentSize: fragSize,
	}
	if cfg.FECGroupSize > 0 {
		s.fecAcc = make([]byte, 0)
	}

	logrus.WithFields(logrus.Fields{
		"function":      "sender.New",
		"stream_id":     info.StreamID.String(),
		"voice_id":      voiceID,
		"ring_size":     cfg.RingSize,
		"fragment_size": fragSize,
		"fec_group":     cfg.FECGroupSize,
		"part_size":     cfg.PartSize,
	}).Info("Created frame sender")

	return s, nil
}

// SendFrame frames one unit of encoder output into transport events.
//
// Config payloads bypass splitting entirely and are suppressed when
// byte-identical to the previously sent configuration. Everything else
// is split into parts above the part threshold, fragmented down to the
// per-event budget, and covered by the FEC accumulator when enabled.
func (s *Sender) SendFrame(payload []byte, flags voice.FrameFlags) error {
	if flags.IsConfig() {
		return s.sendConfig(payload, flags)
	}

	if s.cfg.PartSize > 0 && len(payload) > s.cfg.PartSize {
		return s.sendParts(payload, flags)
	}
	return s.sendFrameEvents(payload, flags)
}

// sendParts splits an extremely large frame into independently fragmented
// parts. Each part is a logical frame of its own on the wire; the
// receiver concatenates them back together before decoding.
func (s *Sender) sendParts(payload []byte, flags voice.FrameFlags) error {
	size := s.cfg.PartSize
	count := (len(payload) + size - 1) / size

	logrus.WithFields(logrus.Fields{
		"function":  "Sender.sendParts",
		"stream_id": s.info.StreamID.String(),
		"size":      len(payload),
		"parts":     count,
	}).Debug("Splitting frame into parts")

	for i := 0; i < count; i++ {
		beg := i * size
		end := beg + size
		if end > len(payload) {
			end = len(payload)
		}
		pf := flags
		if i > 0 {
			pf |= voice.FlagPartNotBeg
		}
		if i < count-1 {
			pf |= voice.FlagPartNotEnd
		}
		if err := s.sendFrameEvents(payload[beg:end], pf); err != nil {
			return err
		}
	}
	return nil
}

// sendFrameEvents emits one logical frame, fragmenting when the payload
// exceeds the per-event budget, then advances the frame number.
func (s *Sender) sendFrameEvents(payload []byte, flags voice.FrameFlags) error {
	if s.cfg.Fragmentation && len(payload) > s.fragmentSize {
		if err := s.sendFragmented(payload, flags); err != nil {
			return err
		}
	} else {
		if err := s.sendEvent(payload, flags); err != nil {
			return err
		}
	}

	s.frameNumber++
	s.statsMu.Lock()
	s.stats.FramesSent++
	s.statsMu.Unlock()
	return nil
}

// sendFragmented splits payload into fragmentSize pieces. The first
// fragment carries the total fragment count appended at its tail so the
// receiver learns the frame's extent without a control message.
func (s *Sender) sendFragmented(payload []byte, flags voice.FrameFlags) error {
	count := (len(payload) + s.fragmentSize - 1) / s.fragmentSize
	trailer := limits.EventNumberBytes(s.cfg.RingSize)
	if (trailer == 1 && count > 0xFF) || count >= s.cfg.RingSize {
		return fmt.Errorf("frame of %d bytes needs %d fragments, exceeding ring size %d", len(payload), count, s.cfg.RingSize)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Sender.sendFragmented",
		"stream_id": s.info.StreamID.String(),
		"size":      len(payload),
		"fragments": count,
	}).Debug("Fragmenting frame")

	// first fragment: one full piece plus the count trailer
	first := make([]byte, s.fragmentSize+trailer)
	copy(first, payload[:s.fragmentSize])
	if trailer == 1 {
		first[s.fragmentSize] = byte(count)
	} else {
		binary.BigEndian.PutUint16(first[s.fragmentSize:], uint16(count))
	}
	if err := s.sendEvent(first, flags|voice.FlagFragNotEnd); err != nil {
		return err
	}

	for i := 1; i < count; i++ {
		beg := i * s.fragmentSize
		end := beg + s.fragmentSize
		if end > len(payload) {
			end = len(payload)
		}
		ff := flags | voice.FlagFragNotBeg
		if i < count-1 {
			ff |= voice.FlagFragNotEnd
		}
		if err := s.sendEvent(payload[beg:end], ff); err != nil {
			return err
		}
	}

	s.statsMu.Lock()
	s.stats.FramesFragmented++
	s.statsMu.Unlock()
	return nil
}

// sendConfig transmits a codec configuration payload. Identical
// back-to-back configurations are suppressed; configs are never
// fragmented and never advance the event or frame counters.
func (s *Sender) sendConfig(payload []byte, flags voice.FrameFlags) error {
	if s.lastConfig != nil && bytes.Equal(payload, s.lastConfig) {
		s.statsMu.Lock()
		s.stats.ConfigResendsSuppressed++
		s.statsMu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function":  "Sender.sendConfig",
			"stream_id": s.info.StreamID.String(),
			"size":      len(payload),
		}).Debug("Suppressed identical config resend")
		return nil
	}

	s.lastConfig = append(s.lastConfig[:0], payload...)

	ev := &transport.Event{
		VoiceID:     s.voiceID,
		ChannelID:   s.channelID,
		Flags:       flags | voice.FlagConfig,
		FrameNumber: s.frameNumber,
		EventNumber: s.eventNumber,
		Payload:     payload,
		Params:      s.params,
	}
	if err := s.tr.SendEvent(ev); err != nil {
		return fmt.Errorf("failed to send config event: %w", err)
	}

	s.statsMu.Lock()
	s.stats.EventsSent++
	if len(payload) > 0 {
		s.stats.LastTransmit = time.Now()
	}
	s.statsMu.Unlock()
	return nil
}

// sendEvent emits one event, advances the event number, and feeds the
// FEC accumulator.
func (s *Sender) sendEvent(payload []byte, flags voice.FrameFlags) error {
	ev := &transport.Event{
		VoiceID:     s.voiceID,
		ChannelID:   s.channelID,
		Flags:       flags,
		FrameNumber: s.frameNumber,
		EventNumber: s.eventNumber,
		Payload:     payload,
		Params:      s.params,
	}
	if err := s.tr.SendEvent(ev); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":     "Sender.sendEvent",
			"stream_id":    s.info.StreamID.String(),
			"event_number": s.eventNumber,
			"error":        err.Error(),
		}).Error("Failed to send event")
		return fmt.Errorf("failed to send event: %w", err)
	}

	s.statsMu.Lock()
	s.stats.EventsSent++
	if len(payload) > 0 {
		s.stats.LastTransmit = time.Now()
	}
	s.statsMu.Unlock()

	s.eventNumber = voice.EventAdd(s.eventNumber, 1, s.cfg.RingSize)

	if s.cfg.FECGroupSize > 0 {
		s.fecAccumulate(payload, flags)
		if s.fecCount >= s.cfg.FECGroupSize {
			return s.sendFECEvent()
		}
	}
	return nil
}

// Stats returns a snapshot of the sender's counters.
func (s *Sender) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

// EventNumber returns the next event number to be assigned.
func (s *Sender) EventNumber() uint16 { return s.eventNumber }

// FrameNumber returns the next frame number to be assigned.
func (s *Sender) FrameNumber() byte { return s.frameNumber }

// Info returns the stream metadata this sender was created for.
func (s *Sender) Info() voice.Info { return s.info }
