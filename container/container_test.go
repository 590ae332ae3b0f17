package container

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"testing"

	"github.com/h2non/filetype/matchers"

	"github.com/plumed-nebula/yana/internal/testutil"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	buf := bytes.Buffer{}
	testutil.IsNil(t, png.Encode(&buf, img), "png encode")

	return buf.Bytes()
}

func gifBytes(t *testing.T, frames int) []byte {
	t.Helper()

	out := &gif.GIF{}
	for i := 0; i < frames; i++ {
		frame := image.NewPaletted(image.Rect(0, 0, 4, 4), color.Palette{color.Black, color.White})
		out.Image = append(out.Image, frame)
		out.Delay = append(out.Delay, 10)
	}

	buf := bytes.Buffer{}
	testutil.IsNil(t, gif.EncodeAll(&buf, out), "gif encode")

	return buf.Bytes()
}

func webpBytes(animated bool) []byte {
	// A signature-valid RIFF header is enough for classification; the ANIM
	// probe is a byte scan, not a decode.
	data := []byte("RIFF\x24\x00\x00\x00WEBPVP8 ")
	if animated {
		data = append(data, []byte("ANIM\x06\x00\x00\x00")...)
	}

	return append(data, make([]byte, 16)...)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		data     []byte
		typeExt  string
		animated bool
	}{
		{"static png", pngBytes(t), "png", false},
		{"single frame gif", gifBytes(t, 1), "gif", false},
		{"animated gif", gifBytes(t, 2), "gif", true},
		{"static webp", webpBytes(false), "webp", false},
		{"animated webp", webpBytes(true), "webp", true},
		{"pnm", []byte("P6 4 4 255 "), "pnm", false},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			kind, err := Classify(c.data)
			testutil.IsNil(t, err, "classify error")
			testutil.Assert(t, c.typeExt, kind.Type.Extension, "container type")
			testutil.Assert(t, c.animated, kind.Animated, "animated flag")
		})
	}
}

func TestClassifyUnknown(t *testing.T) {
	t.Parallel()

	_, err := Classify([]byte("definitely not an image"))
	testutil.Assert(t, ErrUnsupported, err, "unknown container")
}

func TestClassifyDeterministic(t *testing.T) {
	t.Parallel()

	data := gifBytes(t, 2)

	first, err := Classify(data)
	testutil.IsNil(t, err, "first classify")

	for i := 0; i < 10; i++ {
		again, err := Classify(data)
		testutil.IsNil(t, err, "repeat classify")
		testutil.Assert(t, first, again, "classification stability")
	}
}

func TestClassifyIgnoresExtensionlessInput(t *testing.T) {
	t.Parallel()

	// Classification never sees a file name; a PNG byte stream is a PNG no
	// matter what it was called on disk.
	kind, err := Classify(pngBytes(t))
	testutil.IsNil(t, err, "classify error")
	testutil.Assert(t, matchers.TypePng, kind.Type, "container type")
}

func TestIsSupported(t *testing.T) {
	t.Parallel()

	testutil.Assert(t, true, IsSupported(matchers.TypePng), "png supported")
	testutil.Assert(t, true, IsSupported(TypePnm), "pnm supported")
	testutil.Assert(t, true, IsSupported(TypeTga), "tga supported")
	testutil.Assert(t, false, IsSupported(matchers.TypeMp4), "mp4 not supported")
}

func TestTgaFooterMatch(t *testing.T) {
	t.Parallel()

	data := make([]byte, 64)
	copy(data[len(data)-18:], []byte("TRUEVISION-XFILE\x2e\x00"))

	testutil.Assert(t, TypeTga, Match(data), "tga footer")
}
