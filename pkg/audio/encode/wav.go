// ABOUTME: WAV file writer
// ABOUTME: Wraps PCM bytes in a canonical 44-byte RIFF/WAVE header
package encode

import (
	"encoding/binary"

	"github.com/anomaly-engine/anomaly/pkg/audio"
)

// WAV encodes the buffer as a PCM WAV file at the given bit depth
func WAV(buf audio.Buffer, bitDepth int) ([]byte, error) {
	enc, err := NewPCM(bitDepth)
	if err != nil {
		return nil, err
	}
	pcm := enc.Encode(buf.Samples)

	channels := buf.Format.Channels
	blockAlign := channels * bitDepth / 8
	out := make([]byte, 44, 44+len(pcm))

	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")

	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1)
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(buf.Format.SampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(buf.Format.SampleRate*blockAlign))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], uint16(bitDepth))

	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))

	return append(out, pcm...), nil
}
