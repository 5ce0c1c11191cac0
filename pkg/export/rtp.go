package export

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

const (
	// opusPayloadType is the dynamic payload type browsers negotiate for Opus.
	opusPayloadType = 111

	// opusClockRate is the RTP clock for Opus regardless of input rate.
	opusClockRate = 48000

	// streamSSRC is fixed so identical input produces identical files.
	streamSSRC = 0x52454331
)

// opusMimeType is the MIME type of an Opus stream.
var opusMimeType = webrtc.MimeTypeOpus

// frameRTP wraps encoded packets in RTP headers and concatenates them with
// a 16-bit big-endian length prefix per packet (RFC 4571 framing).
// frameSize is in samples per channel at sampleRate.
func frameRTP(packets [][]byte, frameSize, sampleRate int) ([]byte, error) {
	step := uint32(frameSize * opusClockRate / sampleRate)

	var out []byte
	for i, payload := range packets {
		pkt := rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    opusPayloadType,
				SequenceNumber: uint16(i),
				Timestamp:      uint32(i) * step,
				SSRC:           streamSSRC,
				Marker:         i == 0,
			},
			Payload: payload,
		}
		raw, err := pkt.Marshal()
		if err != nil {
			return nil, fmt.Errorf("marshal rtp packet %d: %w", i, err)
		}
		if len(raw) > math.MaxUint16 {
			return nil, fmt.Errorf("rtp packet %d too large: %d bytes", i, len(raw))
		}
		out = binary.BigEndian.AppendUint16(out, uint16(len(raw)))
		out = append(out, raw...)
	}
	return out, nil
}
