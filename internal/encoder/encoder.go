// Package encoder turns decoded pixels back into bytes, one path per
// container format. Quality must be pre-clamped to [0,100] by the caller;
// encoders never receive out-of-range values.
package encoder

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	ico "github.com/biessek/golang-ico"
	"github.com/chai2010/webp"
	"github.com/ftrvxmtrx/tga"
	"github.com/h2non/filetype/matchers"
	"github.com/h2non/filetype/types"
	pnm "github.com/jbuchbinder/gopnm"
	"go.uber.org/multierr"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/plumed-nebula/yana/container"
	"github.com/plumed-nebula/yana/task"
)

// PngOptions modulate the PNG encoder only.
type PngOptions struct {
	Mode         task.PngCompressionMode
	Optimization task.PngOptimizationLevel
}

// Encode re-encodes img into the given container. The switch is exhaustive
// over the supported set; a format the classifier accepts but no encoder
// handles is a bug and fails loudly.
func Encode(img image.Image, t types.Type, quality int, png PngOptions) ([]byte, error) {
	switch t {
	case matchers.TypePng:
		return EncodePNG(img, quality, png.Mode, png.Optimization)
	case matchers.TypeJpeg:
		return EncodeJPEG(img, quality)
	case matchers.TypeWebp:
		return EncodeWebP(img, quality)
	case matchers.TypeBmp, matchers.TypeTiff, matchers.TypeIco, container.TypePnm, container.TypeTga:
		return encodeFallback(img, t)
	default:
		return nil, fmt.Errorf("no encoder for container: %s", t.Extension)
	}
}

// quantizeStep maps quality to the channel rounding step of the lossy PNG
// pre-pass. Lower quality selects a larger step and stronger compression.
func quantizeStep(quality int) uint8 {
	switch {
	case quality <= 10:
		return 48
	case quality <= 25:
		return 32
	case quality <= 45:
		return 16
	case quality <= 65:
		return 8
	case quality <= 85:
		return 4
	case quality <= 95:
		return 2
	default:
		return 1
	}
}

func quantizeChannel(value, step uint8) uint8 {
	if step <= 1 {
		return value
	}

	s := uint16(step)
	rounded := ((uint16(value) + s/2) / s) * s
	if rounded > 255 {
		rounded = 255
	}

	return uint8(rounded)
}

// EncodePNG writes a lossless PNG container. When mode is lossy, every color
// channel is first rounded to the nearest multiple of a quality-derived step,
// which costs O(pixels) and trades fidelity for smaller compressed output.
// The optimization level controls compression effort, not visual quality.
func EncodePNG(img image.Image, quality int, mode task.PngCompressionMode, optimization task.PngOptimizationLevel) ([]byte, error) {
	rgba := toNRGBA(img)

	if mode == task.PngLossy {
		if step := quantizeStep(quality); step > 1 {
			for i := 0; i < len(rgba.Pix); i += 4 {
				rgba.Pix[i] = quantizeChannel(rgba.Pix[i], step)
				rgba.Pix[i+1] = quantizeChannel(rgba.Pix[i+1], step)
				rgba.Pix[i+2] = quantizeChannel(rgba.Pix[i+2], step)
			}
		}
	}

	var level png.CompressionLevel
	switch optimization {
	case task.PngOptBest:
		level = png.BestCompression
	case task.PngOptFast:
		level = png.BestSpeed
	default:
		level = png.DefaultCompression
	}

	buf := bytes.Buffer{}
	enc := png.Encoder{CompressionLevel: level}
	if err := enc.Encode(&buf, rgba); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed at png encode"), err)
	}

	return buf.Bytes(), nil
}

// EncodeJPEG passes quality straight through to the encoder. Grayscale and
// RGB layouts are preserved; anything carrying alpha is flattened to RGB,
// which irreversibly drops the alpha channel.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	switch src := img.(type) {
	case *image.Gray, *image.YCbCr:
		// encodable as-is
	case *image.NRGBA:
		if !src.Opaque() {
			img = flattenToRGB(src)
		}
	case *image.RGBA:
		if !src.Opaque() {
			img = flattenToRGB(src)
		}
	default:
		img = flattenToRGB(img)
	}

	buf := bytes.Buffer{}
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed at jpeg encode"), err)
	}

	return buf.Bytes(), nil
}

// EncodeWebP produces a static lossy WebP. The pixel layout keeps alpha when
// the source has any translucent pixel and collapses to RGB otherwise.
func EncodeWebP(img image.Image, quality int) ([]byte, error) {
	if opaque(img) {
		img = flattenToRGB(img)
	}

	buf := bytes.Buffer{}
	if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed at webp encode"), err)
	}

	return buf.Bytes(), nil
}

// encodeFallback covers the simple containers. These are effectively lossless
// and take no quality parameter.
func encodeFallback(img image.Image, t types.Type) ([]byte, error) {
	buf := bytes.Buffer{}

	var err error
	switch t {
	case matchers.TypeBmp:
		err = bmp.Encode(&buf, img)
	case matchers.TypeTiff:
		err = tiff.Encode(&buf, img, nil)
	case matchers.TypeIco:
		err = ico.Encode(&buf, img)
	case container.TypePnm:
		err = pnm.Encode(&buf, img, pnm.PPM)
	case container.TypeTga:
		err = tga.Encode(&buf, img)
	default:
		return nil, fmt.Errorf("no fallback encoder for container: %s", t.Extension)
	}

	if err != nil {
		return nil, multierr.Append(fmt.Errorf("failed at %s encode", t.Extension), err)
	}

	return buf.Bytes(), nil
}

func toNRGBA(img image.Image) *image.NRGBA {
	if src, ok := img.(*image.NRGBA); ok {
		out := image.NewNRGBA(src.Bounds())
		copy(out.Pix, src.Pix)

		return out
	}

	b := img.Bounds()
	out := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x, y, img.At(x, y))
		}
	}

	return out
}

func flattenToRGB(img image.Image) image.Image {
	b := img.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			i := out.PixOffset(x, y)
			out.Pix[i] = uint8(r >> 8)
			out.Pix[i+1] = uint8(g >> 8)
			out.Pix[i+2] = uint8(bl >> 8)
			out.Pix[i+3] = 0xff
		}
	}

	return out
}

func opaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}

	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return false
			}
		}
	}

	return true
}
