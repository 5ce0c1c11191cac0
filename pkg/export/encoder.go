package export

import (
	"context"
	"fmt"
)

// Params are the settings for one lossy encode.
type Params struct {
	SampleRate  int
	Channels    int
	BitrateKbps int
}

// Encoder turns 16-bit little-endian interleaved PCM into a compressed
// stream. Every call must build fresh encoder state so that identical
// input yields identical output.
type Encoder interface {
	Name() string
	MimeType() string
	Encode(ctx context.Context, pcm []byte, p Params) ([]byte, error)
}

// EncoderFor returns the lossy encoder registered under name.
// ffmpegPath is only used by "mp3"; empty means look it up on PATH.
func EncoderFor(name, ffmpegPath string) (Encoder, error) {
	switch Format(name) {
	case FormatMP3, "":
		return NewFFmpegMP3(ffmpegPath), nil
	case FormatOpus:
		return newOpusEncoder()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoder, name)
	}
}
