// Package config provides the YAML settings schema and loader for
// voicewire deployments.
package config

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/opd-ai/voicewire/limits"
	"github.com/opd-ai/voicewire/voice"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level converts l to its logrus equivalent. An empty level means info.
func (l LogLevel) Level() logrus.Level {
	switch l {
	case LogDebug:
		return logrus.DebugLevel
	case LogWarn:
		return logrus.WarnLevel
	case LogError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Stream is the per-stream transport settings block.
type Stream struct {
	// RingSize is the event-number modulus; 0 selects the default of 256.
	RingSize int `yaml:"ring_size"`

	// DelayFrames is the explicit decode delay (0 = automatic).
	DelayFrames int `yaml:"delay_frames"`

	// FECGroupSize enables XOR redundancy every N events (0 = off).
	FECGroupSize int `yaml:"fec_group_size"`

	// Fragmentation enables splitting oversized frames across events.
	Fragmentation bool `yaml:"fragmentation"`

	// FragmentSize is the per-event payload target when fragmenting.
	FragmentSize int `yaml:"fragment_size"`

	// PartSize is the pre-fragmentation split threshold (0 = unbounded).
	PartSize int `yaml:"part_size"`

	// SyncDecode decodes on the receiving goroutine instead of a
	// dedicated one per stream.
	SyncDecode bool `yaml:"sync_decode"`
}

// Config is the root settings structure.
type Config struct {
	// LogLevel selects global log verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// Stream holds the default transport settings applied to new streams.
	Stream Stream `yaml:"stream"`
}

// Load reads the YAML settings file at path and returns a validated
// Config. It is a convenience wrapper around LoadFromReader.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML settings from r and validates the result.
// Useful in tests where settings are built from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings for coherence. Stream-level defaults are
// not filled in here; voice.Config.Validate does that when a stream is
// created.
func (c *Config) Validate() error {
	if c.LogLevel != "" && !c.LogLevel.IsValid() {
		return fmt.Errorf("config: log_level %q is invalid; valid values: debug, info, warn, error", c.LogLevel)
	}
	if c.Stream.RingSize != 0 {
		if err := limits.ValidateRingSize(c.Stream.RingSize); err != nil {
			return fmt.Errorf("config: stream.ring_size: %w", err)
		}
	}
	if err := limits.ValidateDelayFrames(c.Stream.DelayFrames); err != nil {
		return fmt.Errorf("config: stream.delay_frames: %w", err)
	}
	if c.Stream.FECGroupSize < 0 {
		return fmt.Errorf("config: stream.fec_group_size %d is negative", c.Stream.FECGroupSize)
	}
	if c.Stream.FragmentSize < 0 {
		return fmt.Errorf("config: stream.fragment_size %d is negative", c.Stream.FragmentSize)
	}
	if c.Stream.PartSize < 0 {
		return fmt.Errorf("config: stream.part_size %d is negative", c.Stream.PartSize)
	}
	return nil
}

// StreamConfig converts the stream settings block to a voice.Config.
func (c *Config) StreamConfig() voice.Config {
	return voice.Config{
		RingSize:      c.Stream.RingSize,
		DelayFrames:   c.Stream.DelayFrames,
		FECGroupSize:  c.Stream.FECGroupSize,
		Fragmentation: c.Stream.Fragmentation,
		FragmentSize:  c.Stream.FragmentSize,
		PartSize:      c.Stream.PartSize,
		SyncDecode:    c.Stream.SyncDecode,
	}
}
