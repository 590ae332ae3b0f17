package encoder

import (
	"bytes"
	"fmt"
	"image/gif"

	"github.com/h2non/filetype/matchers"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/plumed-nebula/yana/container"
	"github.com/plumed-nebula/yana/task"
)

// Transcode handles multi-frame content. The (format, mode) pairs form a
// closed state machine:
//
//	GIF  + original  -> full re-encode as GIF with infinite repeat
//	WebP + original  -> byte-for-byte passthrough (no animated-WebP encoder)
//	GIF  + webp      -> first frame only, encoded as static WebP; the
//	                    animation is discarded and a warning is emitted
//	WebP + webp      -> passthrough (already WebP)
//
// Any decode or encode failure propagates as an error; the first-frame
// fallback is the only intentional degradation.
func Transcode(data []byte, kind container.Kind, mode task.EncodingMode, quality int) ([]byte, error) {
	if !kind.Animated {
		return nil, fmt.Errorf("transcode called on static input: %s", kind)
	}

	switch {
	case kind.Type == matchers.TypeGif && mode == task.ModeOriginalFormat:
		return reencodeGIF(data)
	case kind.Type == matchers.TypeWebp && mode == task.ModeOriginalFormat:
		return data, nil
	case kind.Type == matchers.TypeGif && mode == task.ModeTargetWebP:
		zap.S().Warnw("animated gif degraded to static webp, animation discarded",
			"frames_kept", 1,
		)

		img, err := Decode(data)
		if err != nil {
			return nil, err
		}

		return EncodeWebP(img, quality)
	case kind.Type == matchers.TypeWebp && mode == task.ModeTargetWebP:
		return data, nil
	default:
		return nil, fmt.Errorf("no animated transcoder for %s in mode %s", kind, mode)
	}
}

// reencodeGIF decodes every frame and writes a fresh GIF with infinite
// repeat. This is a genuine re-encode and may alter frame timing and palette
// fidelity versus the source.
func reencodeGIF(data []byte) ([]byte, error) {
	img, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("failed at gif decode"), err)
	}

	img.LoopCount = 0

	buf := bytes.Buffer{}
	if err := gif.EncodeAll(&buf, img); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed at gif encode"), err)
	}

	return buf.Bytes(), nil
}
