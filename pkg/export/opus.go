//go:build opus

package export

import (
	"context"
	"fmt"

	"gopkg.in/hraban/opus.v2"

	"github.com/teslashibe/go-recorder/pkg/audioio"
)

const (
	opusFrameDuration = 20 // ms
	opusComplexity    = 10
	opusMaxPacket     = 4000
)

// Opus encodes 20 ms Opus frames carried as length-prefixed RTP packets.
// Input must be 8, 12, 16, 24 or 48 kHz.
type Opus struct{}

func newOpusEncoder() (Encoder, error) {
	return Opus{}, nil
}

func (Opus) Name() string     { return string(FormatOpus) }
func (Opus) MimeType() string { return opusMimeType }

// Encode pads the final frame with silence.
func (Opus) Encode(ctx context.Context, pcm []byte, p Params) ([]byte, error) {
	enc, err := opus.NewEncoder(p.SampleRate, p.Channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("%w: opus encoder: %v", ErrEncodeFailure, err)
	}
	if err := enc.SetBitrate(p.BitrateKbps * 1000); err != nil {
		return nil, fmt.Errorf("%w: opus bitrate: %v", ErrEncodeFailure, err)
	}
	if err := enc.SetComplexity(opusComplexity); err != nil {
		return nil, fmt.Errorf("%w: opus complexity: %v", ErrEncodeFailure, err)
	}

	samples := audioio.BytesToSamples(pcm)
	frameSize := p.SampleRate * opusFrameDuration / 1000
	step := frameSize * p.Channels

	frame := make([]int16, step)
	buf := make([]byte, opusMaxPacket)
	var packets [][]byte

	for off := 0; off < len(samples); off += step {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n := copy(frame, samples[off:])
		clear(frame[n:])

		size, err := enc.Encode(frame, buf)
		if err != nil {
			return nil, fmt.Errorf("%w: opus frame %d: %v", ErrEncodeFailure, off/step, err)
		}
		packets = append(packets, append([]byte(nil), buf[:size]...))
	}

	return frameRTP(packets, frameSize, p.SampleRate)
}
