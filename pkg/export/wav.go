package export

import (
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavBitDepth  = 16
	wavFormatPCM = 1

	// wavChunkFrames bounds the int buffer handed to the encoder per write.
	wavChunkFrames = 4096
)

// writeWAV encodes pcm as a canonical 44-byte-header RIFF/WAVE file.
func writeWAV(w io.WriteSeeker, pcm []int16, sampleRate, channels int) error {
	enc := wav.NewEncoder(w, sampleRate, wavBitDepth, channels, wavFormatPCM)

	buf := &audio.IntBuffer{
		Format: &audio.Format{
			SampleRate:  sampleRate,
			NumChannels: channels,
		},
		SourceBitDepth: wavBitDepth,
		Data:           make([]int, 0, wavChunkFrames*channels),
	}

	step := wavChunkFrames * channels
	for off := 0; off < len(pcm); off += step {
		end := min(off+step, len(pcm))
		buf.Data = buf.Data[:0]
		for _, s := range pcm[off:end] {
			buf.Data = append(buf.Data, int(s))
		}
		if err := enc.Write(buf); err != nil {
			return err
		}
	}

	return enc.Close()
}
