// Package audioio provides audio capture sources for the recorder.
//
// This package supports multiple backends:
//   - miniaudio (via malgo) - default when built with cgo
//   - PortAudio - opt in with the "portaudio" build tag
//   - Mock - CI/Testing without hardware
//
// The backend is selected automatically based on build tags,
// or can be explicitly specified via configuration.
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto automatically selects the best available backend.
	BackendAuto Backend = "auto"
	// BackendPortAudio uses PortAudio for cross-platform capture.
	BackendPortAudio Backend = "portaudio"
	// BackendMiniaudio uses miniaudio through malgo.
	BackendMiniaudio Backend = "miniaudio"
	// BackendMock uses a mock implementation for testing.
	BackendMock Backend = "mock"
)

// DefaultDevice selects the host's default input device.
const DefaultDevice = -1

// Config holds audio configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	// Default: "auto" (selects best available for the build)
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the audio sample rate in Hz.
	// Default: 44100
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of audio channels.
	// Default: 1 (mono)
	Channels int `yaml:"channels" json:"channels"`

	// BlockSize is the number of frames delivered per callback.
	// Default: 1024 (~23ms at 44.1kHz)
	BlockSize int `yaml:"block_size" json:"block_size"`

	// DeviceIndex is the backend's input device index, resolved by the
	// host's device enumeration. DefaultDevice (-1) uses the system default.
	DeviceIndex int `yaml:"device_index" json:"device_index"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:     BackendAuto,
		SampleRate:  44100,
		Channels:    1,
		BlockSize:   1024,
		DeviceIndex: DefaultDevice,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("block_size must be positive, got %d", c.BlockSize)
	}
	if c.DeviceIndex < DefaultDevice {
		return fmt.Errorf("device_index must be >= %d, got %d", DefaultDevice, c.DeviceIndex)
	}
	switch c.Backend {
	case BackendAuto, BackendPortAudio, BackendMiniaudio, BackendMock, "":
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	return nil
}

// BlockDuration returns the wall-clock length of one block.
func (c *Config) BlockDuration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.BlockSize) * time.Second / time.Duration(c.SampleRate)
}

// BlockSamples returns the number of interleaved samples in one block.
func (c *Config) BlockSamples() int {
	return c.BlockSize * c.Channels
}
