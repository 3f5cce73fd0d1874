// ABOUTME: WAV container decoder
// ABOUTME: Walks RIFF chunks and hands the data chunk to the PCM decoder
package decode

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/anomaly-engine/anomaly/pkg/audio"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// WAVDecoder decodes RIFF/WAVE files holding integer PCM
type WAVDecoder struct{}

// Decode parses the fmt and data chunks
func (WAVDecoder) Decode(data []byte) (audio.Buffer, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return audio.Buffer{}, errors.New("not a RIFF/WAVE file")
	}

	var (
		format  audio.Format
		haveFmt bool
		pcm     []byte
	)

	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(data) {
			// Some writers leave the data size unfinished; take what is there.
			if id == "data" {
				size = len(data) - body
			} else {
				return audio.Buffer{}, fmt.Errorf("chunk %q overruns file", id)
			}
		}
		chunk := data[body : body+size]

		switch id {
		case "fmt ":
			if len(chunk) < 16 {
				return audio.Buffer{}, errors.New("short fmt chunk")
			}
			tag := binary.LittleEndian.Uint16(chunk[0:2])
			if tag != wavFormatPCM && tag != wavFormatExtensible {
				return audio.Buffer{}, fmt.Errorf("unsupported wav format tag %#x", tag)
			}
			format = audio.Format{
				Channels:   int(binary.LittleEndian.Uint16(chunk[2:4])),
				SampleRate: int(binary.LittleEndian.Uint32(chunk[4:8])),
				BitDepth:   int(binary.LittleEndian.Uint16(chunk[14:16])),
			}
			haveFmt = true
		case "data":
			pcm = chunk
		}

		// chunks are word aligned
		off = body + size + size&1
	}

	if !haveFmt {
		return audio.Buffer{}, errors.New("missing fmt chunk")
	}
	if format.Channels < 1 || format.SampleRate < 1 {
		return audio.Buffer{}, fmt.Errorf("invalid wav format %dHz %dch", format.SampleRate, format.Channels)
	}

	dec, err := NewPCM(format)
	if err != nil {
		return audio.Buffer{}, err
	}

	samples := dec.Samples(pcm)
	frames := len(samples) / format.Channels
	return audio.Buffer{Samples: samples[:frames*format.Channels], Format: format}, nil
}
