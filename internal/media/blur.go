// Package media stores uploaded images and produces the ImageReference
// values the rest of the application passes around.
package media

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // GIF decode support
	_ "image/jpeg" // JPEG decode support
	"image/png"
	"math"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // WebP decode support
)

// BlurWidth is the pixel width of generated blur placeholders.
const BlurWidth = 10

// MaxBlurPixels caps the decoded size of images we build placeholders for.
// A small compressed upload can declare dimensions that would need
// gigabytes to decode.
const MaxBlurPixels = 40_000_000

// ErrImageTooManyPixels is returned when an image's declared dimensions
// exceed MaxBlurPixels.
var ErrImageTooManyPixels = errors.New("media: image dimensions too large")

// BlurPlaceholder decodes an image and returns a tiny PNG of it as a
// base64 data URI, suitable for rendering while the full image loads.
// The header is checked against MaxBlurPixels before any pixel data is
// decoded.
func BlurPlaceholder(data []byte) (string, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decoding image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxBlurPixels {
		return "", fmt.Errorf("%w: %dx%d", ErrImageTooManyPixels, cfg.Width, cfg.Height)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decoding image: %w", err)
	}

	bounds := src.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return "", fmt.Errorf("decoding image: empty bounds %v", bounds)
	}

	width := BlurWidth
	if bounds.Dx() < width {
		width = bounds.Dx()
	}
	height := int(math.Round(float64(bounds.Dy()) * float64(width) / float64(bounds.Dx())))
	if height < 1 {
		height = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return "", fmt.Errorf("encoding placeholder: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
