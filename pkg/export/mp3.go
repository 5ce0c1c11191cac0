package export

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// FFmpegMP3 encodes MP3 by piping raw PCM through an ffmpeg subprocess
// using libmp3lame. Bit-exact flags and disabled ID3/Xing tags keep the
// output stable for a given ffmpeg build.
type FFmpegMP3 struct {
	path string
}

// NewFFmpegMP3 returns an MP3 encoder that runs the ffmpeg binary at path,
// or "ffmpeg" from PATH when path is empty.
func NewFFmpegMP3(path string) *FFmpegMP3 {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpegMP3{path: path}
}

func (*FFmpegMP3) Name() string     { return string(FormatMP3) }
func (*FFmpegMP3) MimeType() string { return "audio/mpeg" }

// Encode runs one ffmpeg process per call.
func (m *FFmpegMP3) Encode(ctx context.Context, pcm []byte, p Params) ([]byte, error) {
	bin, err := exec.LookPath(m.path)
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg not found: %v", ErrEncodeFailure, err)
	}

	cmd := exec.CommandContext(ctx, bin, m.args(p)...)
	cmd.Stdin = bytes.NewReader(pcm)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("%w: ffmpeg: %s", ErrEncodeFailure, msg)
	}
	return stdout.Bytes(), nil
}

func (m *FFmpegMP3) args(p Params) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(p.SampleRate),
		"-ac", strconv.Itoa(p.Channels),
		"-i", "pipe:0",
		"-map_metadata", "-1",
		"-c:a", "libmp3lame",
		"-b:a", strconv.Itoa(p.BitrateKbps) + "k",
		"-write_xing", "0",
		"-id3v2_version", "0",
		"-fflags", "+bitexact",
		"-flags:a", "+bitexact",
		"-f", "mp3",
		"pipe:1",
	}
}
