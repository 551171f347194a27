package sender

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/voicewire/transport"
	"github.com/opd-ai/voicewire/voice"
)

// mockTransport records every sent event for verification.
type mockTransport struct {
	events     []*transport.Event
	maxPayload int
	failNext   bool
}

func newMockTransport() *mockTransport { return &mockTransport{} }

func (m *mockTransport) SendEvent(ev *transport.Event) error {
	if m.failNext {
		m.failNext = false
		return assert.AnError
	}
	cp := *ev
	cp.Payload = append([]byte(nil), ev.Payload...)
	m.events = append(m.events, &cp)
	return nil
}

func (m *mockTransport) MaxPayloadSize() int { return m.maxPayload }

func testConfig() voice.Config {
	return voice.Config{
		RingSize:      256,
		Fragmentation: true,
		FragmentSize:  10,
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		config      voice.Config
		tr          transport.Transport
		expectError bool
		errorMsg    string
	}{
		{
			name:   "Valid parameters",
			config: testConfig(),
			tr:     newMockTransport(),
		},
		{
			name:        "Nil transport",
			config:      testConfig(),
			expectError: true,
			errorMsg:    "transport cannot be nil",
		},
		{
			name:        "Ring size above maximum",
			config:      voice.Config{RingSize: 4096},
			tr:          newMockTransport(),
			expectError: true,
			errorMsg:    "ring size out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.config, voice.NewInfo("opus", 48000, 1), tt.tr, 1, 0, transport.SendParams{})
			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
				assert.Nil(t, s)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, s)
			}
		})
	}
}

func TestSendFrameUnfragmented(t *testing.T) {
	tr := newMockTransport()
	s, err := New(testConfig(), voice.NewInfo("opus", 48000, 1), tr, 3, 1, transport.SendParams{})
	require.NoError(t, err)

	require.NoError(t, s.SendFrame([]byte("hello"), 0))
	require.NoError(t, s.SendFrame([]byte("world"), 0))

	require.Len(t, tr.events, 2)
	assert.Equal(t, []byte("hello"), tr.events[0].Payload)
	assert.Equal(t, byte(3), tr.events[0].VoiceID)
	assert.Equal(t, byte(1), tr.events[0].ChannelID)
	assert.Equal(t, uint16(0), tr.events[0].EventNumber)
	assert.Equal(t, byte(0), tr.events[0].FrameNumber)
	assert.Equal(t, uint16(1), tr.events[1].EventNumber)
	assert.Equal(t, byte(1), tr.events[1].FrameNumber)

	stats := s.Stats()
	assert.Equal(t, uint64(2), stats.EventsSent)
	assert.Equal(t, uint64(2), stats.FramesSent)
	assert.False(t, stats.LastTransmit.IsZero())
}

func TestSendFrameFragmented(t *testing.T) {
	tr := newMockTransport()
	s, err := New(testConfig(), voice.NewInfo("opus", 48000, 1), tr, 1, 0, transport.SendParams{})
	require.NoError(t, err)

	// 25 bytes with fragment size 10: three fragments.
	payload := make([]byte, 25)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, s.SendFrame(payload, 0))

	require.Len(t, tr.events, 3)

	first := tr.events[0]
	assert.True(t, first.Flags.IsFirstFragment())
	require.Len(t, first.Payload, 11, "first fragment carries the count trailer")
	assert.Equal(t, byte(3), first.Payload[10], "trailer holds total fragment count")
	assert.Equal(t, payload[:10], first.Payload[:10])

	middle := tr.events[1]
	assert.Equal(t, voice.FlagFragNotBeg|voice.FlagFragNotEnd, middle.Flags&voice.MaskFrag)
	assert.Equal(t, payload[10:20], middle.Payload)

	last := tr.events[2]
	assert.Equal(t, voice.FlagFragNotBeg, last.Flags&voice.MaskFrag)
	assert.Equal(t, payload[20:], last.Payload)

	// fragments share the frame number, each consumes an event number
	for i, ev := range tr.events {
		assert.Equal(t, byte(0), ev.FrameNumber)
		assert.Equal(t, uint16(i), ev.EventNumber)
	}
	assert.Equal(t, byte(1), s.FrameNumber())
	assert.Equal(t, uint64(1), s.Stats().FramesFragmented)
}

func TestSendFrameFragmentationDisabled(t *testing.T) {
	tr := newMockTransport()
	cfg := testConfig()
	cfg.Fragmentation = false
	s, err := New(cfg, voice.NewInfo("opus", 48000, 1), tr, 1, 0, transport.SendParams{})
	require.NoError(t, err)

	payload := make([]byte, 50)
	require.NoError(t, s.SendFrame(payload, 0))
	require.Len(t, tr.events, 1)
	assert.Len(t, tr.events[0].Payload, 50)
	assert.False(t, tr.events[0].Flags.IsFragmented())
}

func TestSendFrameParts(t *testing.T) {
	tr := newMockTransport()
	cfg := testConfig()
	cfg.FragmentSize = 100
	cfg.PartSize = 8
	s, err := New(cfg, voice.NewInfo("opus", 48000, 1), tr, 1, 0, transport.SendParams{})
	require.NoError(t, err)

	payload := make([]byte, 20) // three parts: 8 + 8 + 4
	require.NoError(t, s.SendFrame(payload, 0))

	require.Len(t, tr.events, 3)
	assert.Equal(t, voice.FlagPartNotEnd, tr.events[0].Flags&voice.MaskPart)
	assert.Equal(t, voice.FlagPartNotBeg|voice.FlagPartNotEnd, tr.events[1].Flags&voice.MaskPart)
	assert.Equal(t, voice.FlagPartNotBeg, tr.events[2].Flags&voice.MaskPart)

	// each part is its own frame
	assert.Equal(t, byte(0), tr.events[0].FrameNumber)
	assert.Equal(t, byte(1), tr.events[1].FrameNumber)
	assert.Equal(t, byte(2), tr.events[2].FrameNumber)
	assert.Equal(t, uint64(3), s.Stats().FramesSent)
}

func TestSendConfigSuppression(t *testing.T) {
	tr := newMockTransport()
	s, err := New(testConfig(), voice.NewInfo("opus", 48000, 1), tr, 1, 0, transport.SendParams{})
	require.NoError(t, err)

	cfgPayload := []byte{0x01, 0x02}
	require.NoError(t, s.SendFrame(cfgPayload, voice.FlagConfig))
	require.NoError(t, s.SendFrame(cfgPayload, voice.FlagConfig))

	require.Len(t, tr.events, 1, "identical config resend must be suppressed")
	assert.True(t, tr.events[0].Flags.IsConfig())
	assert.Equal(t, uint64(1), s.Stats().ConfigResendsSuppressed)

	// a different config goes out again
	require.NoError(t, s.SendFrame([]byte{0x03}, voice.FlagConfig))
	require.Len(t, tr.events, 2)

	// config events never advance the counters
	assert.Equal(t, uint16(0), s.EventNumber())
	assert.Equal(t, byte(0), s.FrameNumber())
}

func TestSendZeroLengthAdvancesWithoutTransmit(t *testing.T) {
	tr := newMockTransport()
	s, err := New(testConfig(), voice.NewInfo("opus", 48000, 1), tr, 1, 0, transport.SendParams{})
	require.NoError(t, err)

	require.NoError(t, s.SendFrame([]byte{}, voice.FlagEndOfStream))

	assert.Equal(t, uint16(1), s.EventNumber())
	assert.Equal(t, byte(1), s.FrameNumber())
	stats := s.Stats()
	assert.Equal(t, uint64(1), stats.EventsSent)
	assert.True(t, stats.LastTransmit.IsZero(), "empty payload must not count as transmitting")
}

func TestEventNumberWrapsAtRingSize(t *testing.T) {
	tr := newMockTransport()
	cfg := testConfig()
	cfg.RingSize = 4
	s, err := New(cfg, voice.NewInfo("opus", 48000, 1), tr, 1, 0, transport.SendParams{})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.SendFrame([]byte{byte(i)}, 0))
	}
	assert.Equal(t, uint16(1), s.EventNumber())
	assert.Equal(t, uint16(0), tr.events[4].EventNumber)
}

func TestTransportBudgetClampsFragmentSize(t *testing.T) {
	tr := newMockTransport()
	tr.maxPayload = 8
	s, err := New(testConfig(), voice.NewInfo("opus", 48000, 1), tr, 1, 0, transport.SendParams{})
	require.NoError(t, err)

	payload := make([]byte, 20)
	require.NoError(t, s.SendFrame(payload, 0))

	for _, ev := range tr.events {
		assert.LessOrEqual(t, len(ev.Payload), 8)
	}
}
