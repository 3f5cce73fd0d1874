// ABOUTME: Payload validation for content files before they are cached
// ABOUTME: Images decode their header, fonts check the sfnt magic, sounds fully decode
package content

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/anomaly-engine/anomaly/pkg/audio/decode"
	"github.com/anomaly-engine/anomaly/pkg/protocol"
)

// ErrInvalidContent is wrapped by every validation failure
var ErrInvalidContent = errors.New("invalid content")

// Meta is what validation learns about a payload
type Meta struct {
	Width int
}

// Validator checks a payload of a class and extracts its metadata
type Validator func(class protocol.ContentType, data []byte) (Meta, error)

var fontMagics = [][]byte{
	{0x00, 0x01, 0x00, 0x00},
	[]byte("OTTO"),
	[]byte("true"),
	[]byte("ttcf"),
	[]byte("wOFF"),
	[]byte("wOF2"),
}

// Validate is the default Validator
func Validate(class protocol.ContentType, data []byte) (Meta, error) {
	if len(data) == 0 {
		return Meta{}, fmt.Errorf("%w: empty file", ErrInvalidContent)
	}

	switch class {
	case protocol.ContentImage:
		cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return Meta{}, fmt.Errorf("%w: image: %v", ErrInvalidContent, err)
		}
		if cfg.Width <= 0 || cfg.Height <= 0 {
			return Meta{}, fmt.Errorf("%w: %s image has no pixels", ErrInvalidContent, format)
		}
		return Meta{Width: cfg.Width}, nil

	case protocol.ContentFont:
		if len(data) >= 4 {
			for _, magic := range fontMagics {
				if bytes.Equal(data[:4], magic) {
					return Meta{}, nil
				}
			}
		}
		return Meta{}, fmt.Errorf("%w: font: unrecognised header", ErrInvalidContent)

	case protocol.ContentSound:
		if _, err := decode.Decode(data); err != nil {
			return Meta{}, fmt.Errorf("%w: sound: %v", ErrInvalidContent, err)
		}
		return Meta{}, nil

	default:
		return Meta{}, fmt.Errorf("%w: unknown class %d", ErrInvalidContent, class)
	}
}
