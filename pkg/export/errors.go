package export

import "errors"

var (
	// ErrEmptyBuffer is returned when exporting a recording with no samples.
	ErrEmptyBuffer = errors.New("export: recording is empty")

	// ErrEncodeFailure is returned when the lossy encoder fails. No file is
	// left at the destination path.
	ErrEncodeFailure = errors.New("export: encode failed")

	// ErrUnknownEncoder is returned by EncoderFor for an unsupported name.
	ErrUnknownEncoder = errors.New("export: unknown encoder")
)
