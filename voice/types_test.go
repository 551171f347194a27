package voice

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameFlags(t *testing.T) {
	tests := []struct {
		name  string
		flags FrameFlags
		check func(t *testing.T, f FrameFlags)
	}{
		{
			name:  "Config flag",
			flags: FlagConfig,
			check: func(t *testing.T, f FrameFlags) {
				assert.True(t, f.IsConfig())
				assert.False(t, f.IsFragmented())
				assert.False(t, f.IsFEC())
			},
		},
		{
			name:  "First fragment carries only FragNotEnd",
			flags: FlagFragNotEnd,
			check: func(t *testing.T, f FrameFlags) {
				assert.True(t, f.IsFragmented())
				assert.True(t, f.IsFirstFragment())
				assert.False(t, f.IsContinuationFragment())
			},
		},
		{
			name:  "Middle fragment carries both fragment bits",
			flags: FlagFragNotBeg | FlagFragNotEnd,
			check: func(t *testing.T, f FrameFlags) {
				assert.True(t, f.IsFragmented())
				assert.False(t, f.IsFirstFragment())
				assert.True(t, f.IsContinuationFragment())
			},
		},
		{
			name:  "Last fragment carries only FragNotBeg",
			flags: FlagFragNotBeg,
			check: func(t *testing.T, f FrameFlags) {
				assert.True(t, f.IsFragmented())
				assert.False(t, f.IsFirstFragment())
				assert.True(t, f.IsContinuationFragment())
			},
		},
		{
			name:  "Final part carries only PartNotBeg",
			flags: FlagPartNotBeg,
			check: func(t *testing.T, f FrameFlags) {
				assert.True(t, f.IsPart())
				assert.True(t, f.IsFinalPart())
			},
		},
		{
			name:  "First part of a transfer is not final",
			flags: FlagPartNotEnd,
			check: func(t *testing.T, f FrameFlags) {
				assert.True(t, f.IsPart())
				assert.False(t, f.IsFinalPart())
			},
		},
		{
			name:  "FEC flag",
			flags: FlagFEC,
			check: func(t *testing.T, f FrameFlags) {
				assert.True(t, f.IsFEC())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, tt.flags)
		})
	}
}

func TestFrameDiff(t *testing.T) {
	tests := []struct {
		name string
		a, b byte
		want int
	}{
		{name: "Equal", a: 10, b: 10, want: 0},
		{name: "Ahead", a: 12, b: 10, want: 2},
		{name: "Behind", a: 10, b: 12, want: -2},
		{name: "Ahead across wrap", a: 2, b: 250, want: 8},
		{name: "Behind across wrap", a: 250, b: 2, want: -8},
		{name: "Far jump reads as large advance", a: 40, b: 5, want: 35},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FrameDiff(tt.a, tt.b))
		})
	}
}

func TestEventAdd(t *testing.T) {
	assert.Equal(t, uint16(5), EventAdd(3, 2, 256))
	assert.Equal(t, uint16(1), EventAdd(255, 2, 256))
	assert.Equal(t, uint16(255), EventAdd(1, -2, 256))
	assert.Equal(t, uint16(0), EventAdd(2047, 1, 2048))
	assert.Equal(t, uint16(0), EventAdd(0, 5, 1))
}

func TestEventDiff(t *testing.T) {
	tests := []struct {
		name     string
		a, b     uint16
		ringSize int
		want     int
	}{
		{name: "Equal", a: 7, b: 7, ringSize: 256, want: 0},
		{name: "Ahead", a: 9, b: 7, ringSize: 256, want: 2},
		{name: "Behind", a: 7, b: 9, ringSize: 256, want: -2},
		{name: "Ahead across wrap", a: 1, b: 254, ringSize: 256, want: 3},
		{name: "Behind across wrap", a: 254, b: 1, ringSize: 256, want: -3},
		{name: "Large ring wrap", a: 3, b: 2040, ringSize: 2048, want: 11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EventDiff(tt.a, tt.b, tt.ringSize))
		})
	}
}

func TestNewInfo(t *testing.T) {
	info := NewInfo("opus", 48000, 1)
	assert.Equal(t, "opus", info.Codec)
	assert.Equal(t, 48000, info.SamplingRate)
	assert.Equal(t, 1, info.Channels)
	assert.NotZero(t, info.StreamID)
}
