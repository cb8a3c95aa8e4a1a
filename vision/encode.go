// Package vision provides frame preparation for the inference pipeline:
// decoding incoming images, bounding their resolution, and encoding the
// JPEG payload sent to the vision-language backend.
package vision

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// Frame preparation errors
var (
	ErrEmptyImage   = errors.New("vision: empty image data")
	ErrInvalidImage = errors.New("vision: invalid image data")
)

// DefaultMaxDimension bounds the longest side of frames sent to the
// inference backend. Vision models downsample anyway; shipping full
// camera resolution only inflates the request.
const DefaultMaxDimension = 768

// defaultJPEGQuality trades size against the detail a captioning model needs.
const defaultJPEGQuality = 80

// Decode decodes image data in common formats (PNG, JPEG, GIF).
// This is a pure function with no side effects.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return img, nil
}

// BoundDimensions scales img down so its longest side is at most maxDim,
// preserving aspect ratio. Images already within bounds are returned
// unchanged. This is a pure function with no side effects.
func BoundDimensions(img image.Image, maxDim int) image.Image {
	if maxDim < 1 {
		maxDim = DefaultMaxDimension
	}
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width <= maxDim && height <= maxDim {
		return img
	}

	scale := float64(maxDim) / float64(max(width, height))
	newWidth := int(float64(width) * scale)
	newHeight := int(float64(height) * scale)
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// EncodeJPEG encodes img as a JPEG payload.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: defaultJPEGQuality}); err != nil {
		return nil, fmt.Errorf("vision: jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}

// PrepareFrame bounds img to maxDim and encodes it as a JPEG ready for
// dispatch to the inference backend.
func PrepareFrame(img image.Image, maxDim int) ([]byte, error) {
	if img == nil {
		return nil, ErrEmptyImage
	}
	return EncodeJPEG(BoundDimensions(img, maxDim))
}

// DataURL wraps a JPEG payload in the data URL form expected by
// OpenAI-compatible vision endpoints.
func DataURL(imageJPEG []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(imageJPEG)
}
