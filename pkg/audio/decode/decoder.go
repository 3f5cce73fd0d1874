// ABOUTME: Decoder interface definition and format sniffing
// ABOUTME: Picks a decoder for whole sound files by their magic bytes
package decode

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/anomaly-engine/anomaly/pkg/audio"
)

// ErrUnknownFormat is returned for data that matches no supported container
var ErrUnknownFormat = errors.New("decode: unknown audio format")

// Codec names a supported container
type Codec string

const (
	CodecWAV  Codec = "wav"
	CodecFLAC Codec = "flac"
	CodecMP3  Codec = "mp3"
)

// Decoder decodes a complete encoded sound file to PCM
type Decoder interface {
	Decode(data []byte) (audio.Buffer, error)
}

// Detect identifies the container of an encoded sound file
func Detect(data []byte) (Codec, error) {
	switch {
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return CodecWAV, nil
	case bytes.HasPrefix(data, []byte("fLaC")):
		return CodecFLAC, nil
	case bytes.HasPrefix(data, []byte("ID3")):
		return CodecMP3, nil
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return CodecMP3, nil
	}
	return "", ErrUnknownFormat
}

// New returns the decoder for a codec
func New(codec Codec) (Decoder, error) {
	switch codec {
	case CodecWAV:
		return WAVDecoder{}, nil
	case CodecFLAC:
		return FLACDecoder{}, nil
	case CodecMP3:
		return MP3Decoder{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, codec)
	}
}

// Decode sniffs the container and decodes the whole file
func Decode(data []byte) (audio.Buffer, error) {
	codec, err := Detect(data)
	if err != nil {
		return audio.Buffer{}, err
	}
	dec, err := New(codec)
	if err != nil {
		return audio.Buffer{}, err
	}
	buf, err := dec.Decode(data)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("%s: %w", codec, err)
	}
	return buf, nil
}
