package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/voicewire/buffer"
	"github.com/opd-ai/voicewire/voice"
)

func TestCaptureSinkRecordsFrames(t *testing.T) {
	sink := NewCaptureSink()
	info := voice.NewInfo("opus", 48000, 1)
	require.NoError(t, sink.Open(info))
	assert.True(t, sink.Opened())
	assert.Equal(t, info, sink.Info())

	fb := buffer.Wrap([]byte{1, 2, 3}, 0, 9, nil)
	require.NoError(t, sink.Input(fb))
	require.NoError(t, sink.Input(nil))

	frames := sink.Frames()
	require.Len(t, frames, 2)
	assert.Equal(t, []byte{1, 2, 3}, frames[0].Payload)
	assert.Equal(t, byte(9), frames[0].FrameNumber)
	assert.False(t, frames[0].Lost)
	assert.True(t, frames[1].Lost)

	sink.Dispose()
	assert.True(t, sink.Disposed())
}

func TestCaptureSinkCopiesPayload(t *testing.T) {
	sink := NewCaptureSink()
	require.NoError(t, sink.Open(voice.NewInfo("opus", 48000, 1)))

	payload := []byte{5, 6}
	fb := buffer.Wrap(payload, 0, 0, nil)
	require.NoError(t, sink.Input(fb))
	payload[0] = 0

	assert.Equal(t, []byte{5, 6}, sink.Frames()[0].Payload)
}

func TestOpusSinkValidation(t *testing.T) {
	_, err := NewOpusSink(nil)
	assert.Error(t, err)

	sink, err := NewOpusSink(func(pcm []int16, samplingRate int) {})
	require.NoError(t, err)

	err = sink.Open(voice.Info{Codec: "pcm"})
	assert.Error(t, err, "non-opus codec must be rejected")

	err = sink.Input(nil)
	assert.Error(t, err, "input before open must fail")
}

func TestOpusSinkConcealsLostFrames(t *testing.T) {
	var got [][]int16
	sink, err := NewOpusSink(func(pcm []int16, samplingRate int) {
		got = append(got, pcm)
	})
	require.NoError(t, err)
	require.NoError(t, sink.Open(voice.NewInfo("opus", 48000, 1)))

	require.NoError(t, sink.Input(nil))
	require.Len(t, got, 1)
	assert.Len(t, got[0], 48000/50, "one 20ms frame of silence")
}
