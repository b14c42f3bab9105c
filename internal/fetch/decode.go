package fetch

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"

	"github.com/cshum/vipsgen/vips"
	_ "golang.org/x/image/webp"
)

// Decoder turns a fetched body into an image.
type Decoder interface {
	Decode(body []byte) (image.Image, error)
}

// StdDecoder decodes PNG, JPEG and WebP with the image package.
type StdDecoder struct{}

func (StdDecoder) Decode(body []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// VipsDecoder decodes with libvips and optionally resizes to MaxSize pixels
// on the longest side. vips.Startup must have been called.
type VipsDecoder struct {
	MaxSize int
}

func (d VipsDecoder) Decode(body []byte) (image.Image, error) {
	img, err := vips.NewImageFromBuffer(body, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}
	defer img.Close()

	if longest := max(img.Width(), img.Height()); d.MaxSize > 0 && longest > d.MaxSize {
		resizeOpts := vips.DefaultResizeOptions()
		resizeOpts.Kernel = vips.KernelLanczos3
		if err := img.Resize(float64(d.MaxSize)/float64(longest), resizeOpts); err != nil {
			return nil, fmt.Errorf("failed to resize: %w", err)
		}
	}

	out, err := img.PngsaveBuffer(vips.DefaultPngsaveBufferOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to export: %w", err)
	}
	decoded, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return decoded, nil
}
