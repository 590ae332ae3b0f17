package encoder

import (
	"bytes"
	"fmt"
	"image"

	"github.com/ftrvxmtrx/tga"
	"go.uber.org/multierr"

	// Register every sniffable decoder the classifier can report. TGA is
	// absent on purpose: it has no header signature, and its RegisterFormat
	// call uses an empty magic that would shadow every other format.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "github.com/biessek/golang-ico"
	_ "github.com/jbuchbinder/gopnm"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/plumed-nebula/yana/container"
)

// Decode reads the first frame of the byte stream. TGA is dispatched off the
// classifier's footer match instead of image.Decode's signature sniffing,
// which cannot identify it.
func Decode(data []byte) (image.Image, error) {
	if container.Match(data) == container.TypeTga {
		img, err := tga.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("failed at tga decode"), err)
		}

		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		// Footerless TGA files carry no signature at all and land here.
		if img, tgaErr := tga.Decode(bytes.NewReader(data)); tgaErr == nil {
			return img, nil
		}

		return nil, multierr.Append(fmt.Errorf("failed at image decode"), err)
	}

	return img, nil
}
