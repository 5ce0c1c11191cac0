package capture

import (
	"errors"

	"github.com/teslashibe/go-recorder/pkg/audioio"
)

// Sentinel errors for common error conditions.
var (
	// ErrAlreadyRecording is returned by Start while a recording is in
	// progress (Recording or Paused). The existing buffer is untouched.
	ErrAlreadyRecording = errors.New("capture: already recording")

	// ErrDeviceUnavailable is returned by Start when the audio input cannot
	// be opened or started. Recording does not begin.
	ErrDeviceUnavailable = audioio.ErrDeviceUnavailable
)
