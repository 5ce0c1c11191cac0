package capture

import (
	"fmt"
	"time"
)

// State is the recorder state.
type State int32

const (
	// StateIdle means no recording has been started yet.
	StateIdle State = iota
	// StateRecording means blocks are being accepted into the buffer.
	StateRecording
	// StatePaused means the device runs but blocks are discarded.
	StatePaused
	// StateStopped means the last recording is finalized and read-only.
	StateStopped
)

var stateNames = [...]string{"idle", "recording", "paused", "stopped"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int32(s))
	}
	return stateNames[s]
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Active reports whether a recording is in progress.
func (s State) Active() bool {
	return s == StateRecording || s == StatePaused
}

// Recording is a point-in-time view of the recording buffer.
type Recording struct {
	// Samples holds interleaved float samples in capture order.
	Samples []float32

	// SampleRate is the capture sample rate.
	SampleRate int

	// Channels is the number of interleaved channels.
	Channels int

	// Blocks is the number of blocks accepted.
	Blocks int
}

// Len returns the number of interleaved samples.
func (r Recording) Len() int {
	return len(r.Samples)
}

// IsEmpty reports whether the recording holds no samples.
func (r Recording) IsEmpty() bool {
	return len(r.Samples) == 0
}

// Frames returns the number of sample frames.
func (r Recording) Frames() int {
	if r.Channels == 0 {
		return 0
	}
	return len(r.Samples) / r.Channels
}

// Duration returns the audio duration held by the recording.
func (r Recording) Duration() time.Duration {
	if r.SampleRate == 0 {
		return 0
	}
	return time.Duration(r.Frames()) * time.Second / time.Duration(r.SampleRate)
}

// Metrics is the recorder's externally visible status.
type Metrics struct {
	State         State         `json:"state"`
	Elapsed       time.Duration `json:"elapsed_ns"`
	Level         float64       `json:"level"`
	Peak          float64       `json:"peak"`
	Samples       int           `json:"samples"`
	Frames        int           `json:"frames"`
	Blocks        int           `json:"blocks"`
	SampleRate    int           `json:"sample_rate"`
	Channels      int           `json:"channels"`
	DroppedBlocks int64         `json:"dropped_blocks"`
	Overruns      int64         `json:"overruns"`
}
