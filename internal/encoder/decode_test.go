package encoder

import (
	"bytes"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/bmp"

	"github.com/plumed-nebula/yana/internal/testutil"
)

// Decode must route every sniffable container through its own codec; a
// regression here surfaces as the wrong decoder claiming the stream and
// failing on valid input.
func TestDecodeCommonFormats(t *testing.T) {
	t.Parallel()

	src := testImage(255)

	cases := []struct {
		name   string
		encode func(w *bytes.Buffer) error
	}{
		{"png", func(w *bytes.Buffer) error { return png.Encode(w, src) }},
		{"jpeg", func(w *bytes.Buffer) error { return jpeg.Encode(w, src, &jpeg.Options{Quality: 90}) }},
		{"gif", func(w *bytes.Buffer) error { return gif.Encode(w, src, nil) }},
		{"bmp", func(w *bytes.Buffer) error { return bmp.Encode(w, src) }},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			buf := bytes.Buffer{}
			testutil.IsNil(t, c.encode(&buf), "encode fixture")

			img, err := Decode(buf.Bytes())
			testutil.IsNil(t, err, "decode error")
			testutil.Assert(t, src.Bounds(), img.Bounds(), "decoded bounds")
		})
	}
}

func TestDecodeTGA(t *testing.T) {
	t.Parallel()

	src := testImage(255)

	buf := bytes.Buffer{}
	testutil.IsNil(t, tga.Encode(&buf, src), "tga encode")

	img, err := Decode(buf.Bytes())
	testutil.IsNil(t, err, "tga decode error")
	testutil.Assert(t, src.Bounds(), img.Bounds(), "decoded bounds")
}

func TestDecodeGarbage(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte("not an image at all"))
	testutil.IsNotNil(t, err, "garbage must fail")
}
