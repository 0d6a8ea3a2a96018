// Package imageprep normalizes meal photos before they are sent to a
// provider: oversized images are downscaled preserving aspect ratio and
// everything is re-encoded as JPEG at a fixed quality.
package imageprep

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

const (
	// MaxDimension is the longest side accepted by the analysis prompt.
	MaxDimension = 1024

	jpegQuality = 80
)

// Prepare decodes, downscales if needed, and re-encodes an image as JPEG.
func Prepare(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := src.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width > MaxDimension || height > MaxDimension {
		width, height = fitWithin(width, height, MaxDimension)
		scaled := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), src, bounds, draw.Over, nil)
		src = scaled
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	return buf.Bytes(), nil
}

// fitWithin scales dimensions so the longer side equals limit.
func fitWithin(width, height, limit int) (int, int) {
	if width >= height {
		scaled := height * limit / width
		if scaled < 1 {
			scaled = 1
		}
		return limit, scaled
	}

	scaled := width * limit / height
	if scaled < 1 {
		scaled = 1
	}
	return scaled, limit
}
