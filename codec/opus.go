package codec

import (
	"fmt"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/voicewire/buffer"
	"github.com/opd-ai/voicewire/voice"
)

// opusOutputSamples sizes the decode output buffer: 1920 samples covers
// 40ms at 48kHz, the largest standard Opus frame duration in use here.
const opusOutputSamples = 1920

// OpusSink decodes reassembled Opus frames to PCM using the pure Go
// pion/opus decoder and forwards the samples to an output callback.
type OpusSink struct {
	decoder opus.Decoder
	output  func(pcm []int16, samplingRate int)
	info    voice.Info
	out     []byte
	open    bool
}

// NewOpusSink creates a decoder sink forwarding PCM to output.
func NewOpusSink(output func(pcm []int16, samplingRate int)) (*OpusSink, error) {
	if output == nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewOpusSink",
			"error":    "output callback cannot be nil",
		}).Error("Invalid output callback")
		return nil, fmt.Errorf("output callback cannot be nil")
	}
	return &OpusSink{
		output: output,
		out:    make([]byte, opusOutputSamples*2),
	}, nil
}

// Open prepares the Opus decoder for the stream.
func (s *OpusSink) Open(info voice.Info) error {
	logrus.WithFields(logrus.Fields{
		"function":      "OpusSink.Open",
		"stream_id":     info.StreamID.String(),
		"codec":         info.Codec,
		"sampling_rate": info.SamplingRate,
		"channels":      info.Channels,
	}).Info("Opening Opus decoder sink")

	if info.Codec != "" && info.Codec != "opus" {
		return fmt.Errorf("unsupported codec %q", info.Codec)
	}

	s.decoder = opus.NewDecoder()
	s.info = info
	s.open = true
	return nil
}

// Input decodes one frame. Nil and empty frames are concealed as silence
// sized to the stream's nominal 20ms frame so playback cadence holds.
func (s *OpusSink) Input(frame *buffer.FrameBuffer) error {
	if !s.open {
		return fmt.Errorf("decoder sink not open")
	}

	if frame == nil || frame.Len() == 0 {
		s.concealLoss()
		return nil
	}

	if frame.Flags().IsConfig() {
		// Opus carries configuration in-band; nothing to apply here.
		logrus.WithFields(logrus.Fields{
			"function":  "OpusSink.Input",
			"stream_id": s.info.StreamID.String(),
			"size":      frame.Len(),
		}).Debug("Ignoring codec config frame")
		return nil
	}

	bandwidth, isStereo, err := s.decoder.Decode(frame.Bytes(), s.out)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "OpusSink.Input",
			"stream_id": s.info.StreamID.String(),
			"size":      frame.Len(),
			"error":     err.Error(),
		}).Warn("Opus decode failed, concealing frame")
		s.concealLoss()
		return nil
	}

	sampleCount := len(s.out) / 2
	if isStereo {
		sampleCount /= 2
	}
	pcm := make([]int16, sampleCount)
	for i := 0; i < sampleCount; i++ {
		pcm[i] = int16(s.out[i*2]) | int16(s.out[i*2+1])<<8
	}

	logrus.WithFields(logrus.Fields{
		"function":  "OpusSink.Input",
		"stream_id": s.info.StreamID.String(),
		"bandwidth": bandwidth.String(),
		"stereo":    isStereo,
		"samples":   sampleCount,
	}).Debug("Decoded Opus frame")

	s.output(pcm, s.info.SamplingRate)
	return nil
}

// concealLoss emits one nominal frame of silence in place of lost data.
func (s *OpusSink) concealLoss() {
	rate := s.info.SamplingRate
	if rate == 0 {
		rate = 48000
	}
	s.output(make([]int16, rate/50), rate) // 20ms of silence
}

// Dispose releases the sink. The pion decoder holds no OS resources.
func (s *OpusSink) Dispose() {
	logrus.WithFields(logrus.Fields{
		"function":  "OpusSink.Dispose",
		"stream_id": s.info.StreamID.String(),
	}).Info("Disposing Opus decoder sink")
	s.open = false
}
