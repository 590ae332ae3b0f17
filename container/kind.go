package container

import (
	"bytes"
	"errors"
	"fmt"
	"image/gif"

	"github.com/h2non/filetype/matchers"
	"github.com/h2non/filetype/types"
)

// ErrUnsupported is returned when the byte stream matches no known container
// signature.
var ErrUnsupported = errors.New("unsupported image container")

var animChunk = []byte("ANIM")

// Kind is the result of classifying a byte stream: the true container type
// (never derived from the file name) and whether it holds more than one frame.
type Kind struct {
	Type     types.Type
	Animated bool
}

func (k Kind) String() string {
	if k.Animated {
		return fmt.Sprintf("animated %s", k.Type.Extension)
	}

	return fmt.Sprintf("static %s", k.Type.Extension)
}

// Classify inspects the byte content and determines the container and the
// static/animated split. It is a pure function of the bytes: identical input
// always yields an identical Kind.
//
// GIF is probed by decoding frames and checking for a second one. WebP is
// probed by a linear scan for the ANIM chunk marker rather than a structured
// RIFF walk; malformed files can produce false negatives. Every other
// container is treated as static.
func Classify(data []byte) (Kind, error) {
	t := Match(data)
	if t == types.Unknown {
		return Kind{}, ErrUnsupported
	}

	switch t {
	case matchers.TypeGif:
		img, err := gif.DecodeAll(bytes.NewReader(data))
		if err != nil {
			return Kind{}, fmt.Errorf("gif decode: %w", err)
		}

		return Kind{Type: t, Animated: len(img.Image) > 1}, nil
	case matchers.TypeWebp:
		return Kind{Type: t, Animated: bytes.Contains(data, animChunk)}, nil
	default:
		return Kind{Type: t, Animated: false}, nil
	}
}
