package domain

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// Image is a decoded image resource.
//
// Data holds the encoded bytes as fetched.
type Image struct {
	Data        []byte
	Format      string
	ContentType string
	Width       int
	Height      int
}

var contentTypes = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
}

// DecodeImage verifies that data is a complete image in one of the supported formats
//
// Returns ErrDecode if the data can not be decoded.
func DecodeImage(data []byte) (Image, error) {
	if len(data) == 0 {
		return Image{}, fmt.Errorf("%w: no data", ErrDecode)
	}

	decoded, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	contentType, ok := contentTypes[format]
	if !ok {
		return Image{}, fmt.Errorf("%w: unsupported format %s", ErrDecode, format)
	}

	bounds := decoded.Bounds()

	return Image{
		Data:        data,
		Format:      format,
		ContentType: contentType,
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
	}, nil
}
