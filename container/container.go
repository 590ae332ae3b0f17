package container

import (
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/matchers"
	"github.com/h2non/filetype/types"
)

var (
	TypePnm = types.NewType("pnm", "image/x-portable-anymap")
	TypeTga = types.NewType("tga", "image/x-tga")
)

func init() {
	filetype.AddMatcher(TypePnm, func(data []byte) bool {
		if len(data) < 3 {
			return false
		}

		return data[0] == 'P' &&
			data[1] >= '1' && data[1] <= '6' &&
			(data[2] == ' ' || data[2] == '\t' || data[2] == '\n' || data[2] == '\r' || data[2] == '#')
	})

	// TGA has no header signature, only the optional v2 footer.
	filetype.AddMatcher(TypeTga, func(data []byte) bool {
		const footer = "TRUEVISION-XFILE"
		if len(data) < 18+len(footer) {
			return false
		}

		return string(data[len(data)-18:len(data)-2]) == footer
	})
}

func Match(data []byte) types.Type {
	t, _ := filetype.Match(data)

	return t
}

// IsSupported reports whether the pipeline has an encoder for the container.
func IsSupported(t types.Type) bool {
	switch t {
	case matchers.TypePng,
		matchers.TypeJpeg,
		matchers.TypeWebp,
		matchers.TypeGif,
		matchers.TypeBmp,
		matchers.TypeTiff,
		matchers.TypeIco,
		TypePnm,
		TypeTga:
		return true
	default:
		return false
	}
}
