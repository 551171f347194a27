package voicewire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/voicewire/codec"
	"github.com/opd-ai/voicewire/transport"
	"github.com/opd-ai/voicewire/voice"
)

func newTestManager(t *testing.T, stream voice.Config) (*Manager, *transport.Loopback) {
	t.Helper()
	lo := transport.NewLoopback()
	opts := NewOptions()
	opts.Transport = lo
	opts.Stream = stream

	m, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	lo.Subscribe(m.HandleEvent)
	return m, lo
}

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		opts        *Options
		expectError bool
		errorMsg    string
	}{
		{
			name:        "Nil options",
			expectError: true,
			errorMsg:    "transport cannot be nil",
		},
		{
			name:        "Missing transport",
			opts:        NewOptions(),
			expectError: true,
			errorMsg:    "transport cannot be nil",
		},
		{
			name: "Valid options",
			opts: &Options{
				Transport: transport.NewLoopback(),
				Stream:    voice.DefaultConfig(),
			},
		},
		{
			name: "Invalid stream settings",
			opts: &Options{
				Transport: transport.NewLoopback(),
				Stream:    voice.Config{RingSize: 10000},
			},
			expectError: true,
			errorMsg:    "ring size out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(tt.opts)
			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, m.Close())
		})
	}
}

func TestLocalRemoteRoundTrip(t *testing.T) {
	cfg := voice.DefaultConfig()
	cfg.SyncDecode = true
	m, _ := newTestManager(t, cfg)

	local, err := m.CreateLocalVoice(voice.NewInfo("opus", 48000, 1), transport.SendParams{})
	require.NoError(t, err)

	sink := codec.NewCaptureSink()
	remote, err := m.CreateRemoteVoice(local.ID(), voice.NewInfo("opus", 48000, 1), sink)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, local.Send([]byte{byte(i)}, 0))
	}

	frames := sink.Frames()
	require.Len(t, frames, 5)
	for i, f := range frames {
		assert.Equal(t, []byte{byte(i)}, f.Payload)
	}
	assert.Equal(t, uint64(5), remote.Metrics().FramesDelivered)
	assert.Equal(t, uint64(5), local.Stats().FramesSent)
}

func TestAsyncDecodeLifecycle(t *testing.T) {
	cfg := voice.DefaultConfig()
	m, _ := newTestManager(t, cfg)

	local, err := m.CreateLocalVoice(voice.NewInfo("opus", 48000, 1), transport.SendParams{})
	require.NoError(t, err)

	sink := codec.NewCaptureSink()
	_, err = m.CreateRemoteVoice(local.ID(), voice.NewInfo("opus", 48000, 1), sink)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, local.Send([]byte{byte(i)}, 0))
	}

	require.Eventually(t, func() bool {
		return len(sink.Frames()) == 5
	}, 2*time.Second, time.Millisecond)

	require.NoError(t, m.Close())
	assert.True(t, sink.Disposed())
}

func TestEventsForUnknownVoiceDropped(t *testing.T) {
	cfg := voice.DefaultConfig()
	cfg.SyncDecode = true
	m, _ := newTestManager(t, cfg)

	// no remote stream registered for this ID
	m.HandleEvent(&transport.Event{VoiceID: 42, Payload: []byte{1}})
}

func TestDuplicateRemoteVoiceRejected(t *testing.T) {
	cfg := voice.DefaultConfig()
	cfg.SyncDecode = true
	m, _ := newTestManager(t, cfg)

	info := voice.NewInfo("opus", 48000, 1)
	_, err := m.CreateRemoteVoice(7, info, codec.NewCaptureSink())
	require.NoError(t, err)

	_, err = m.CreateRemoteVoice(7, info, codec.NewCaptureSink())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already has a remote stream")
}

func TestVoiceIDAllocationSkipsTaken(t *testing.T) {
	cfg := voice.DefaultConfig()
	cfg.SyncDecode = true
	m, _ := newTestManager(t, cfg)

	info := voice.NewInfo("opus", 48000, 1)
	_, err := m.CreateRemoteVoice(1, info, codec.NewCaptureSink())
	require.NoError(t, err)

	local, err := m.CreateLocalVoice(info, transport.SendParams{})
	require.NoError(t, err)
	assert.Equal(t, byte(2), local.ID(), "ID 1 is taken by the remote stream")
}

func TestRemoveRemoteVoiceDisposes(t *testing.T) {
	cfg := voice.DefaultConfig()
	cfg.SyncDecode = true
	m, _ := newTestManager(t, cfg)

	sink := codec.NewCaptureSink()
	_, err := m.CreateRemoteVoice(3, voice.NewInfo("opus", 48000, 1), sink)
	require.NoError(t, err)

	m.RemoveRemoteVoice(3)
	assert.True(t, sink.Disposed())

	// events after removal are dropped
	m.HandleEvent(&transport.Event{VoiceID: 3, Payload: []byte{1}})
}

func TestCloseIdempotent(t *testing.T) {
	lo := transport.NewLoopback()
	m, err := New(&Options{Transport: lo, Stream: voice.DefaultConfig()})
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err = m.CreateLocalVoice(voice.NewInfo("opus", 48000, 1), transport.SendParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}
