package audioio

import (
	"errors"
	"io"
	"time"
)

// ErrDeviceUnavailable is returned when an input device cannot be opened or
// started at the requested format.
var ErrDeviceUnavailable = errors.New("audioio: device unavailable")

// Block is one callback's worth of interleaved float32 samples.
//
// A Block passed to a BlockFunc borrows the driver's buffer and is only valid
// for the duration of the call. Use Clone to keep it.
type Block struct {
	// Samples holds interleaved samples in [-1, 1].
	Samples []float32

	// Channels is the number of interleaved channels.
	Channels int

	// SampleRate is the sample rate of this block.
	SampleRate int
}

// Clone returns a copy of the block that owns its samples.
func (b Block) Clone() Block {
	samples := make([]float32, len(b.Samples))
	copy(samples, b.Samples)
	return Block{Samples: samples, Channels: b.Channels, SampleRate: b.SampleRate}
}

// Frames returns the number of sample frames (samples per channel).
func (b Block) Frames() int {
	if b.Channels == 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the playback duration of the block.
func (b Block) Duration() time.Duration {
	if b.SampleRate == 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// BlockFunc receives blocks on the backend's real-time thread. It must not
// block, take contended locks, log or do I/O.
type BlockFunc func(Block)

// Source captures audio from a microphone or other input device.
type Source interface {
	// Open acquires the configured device at the configured format.
	// It fails with ErrDeviceUnavailable if the device cannot be opened.
	Open() error

	// Start begins invoking fn for every captured block.
	Start(fn BlockFunc) error

	// Stop halts capture and returns once the callback thread has quiesced;
	// fn is never invoked after Stop returns.
	// It is safe to call Stop multiple times.
	Stop() error

	// Config returns the current audio configuration.
	Config() Config

	// Name returns the backend name (e.g., "portaudio", "miniaudio", "mock").
	Name() string

	// Close releases the device. Open may be called again afterwards.
	io.Closer
}

// SourceStats contains statistics about the audio source.
type SourceStats struct {
	// BlocksDelivered is the total number of blocks handed to the callback.
	BlocksDelivered int64 `json:"blocks_delivered"`

	// SamplesDelivered is the total number of samples handed to the callback.
	SamplesDelivered int64 `json:"samples_delivered"`

	// Overruns counts driver-reported input overflows and underflows.
	Overruns int64 `json:"overruns"`

	// Running indicates if the source is currently capturing.
	Running bool `json:"running"`

	// Backend is the name of the audio backend.
	Backend string `json:"backend"`
}

// SourceWithStats extends Source with statistics.
type SourceWithStats interface {
	Source
	Stats() SourceStats
}
