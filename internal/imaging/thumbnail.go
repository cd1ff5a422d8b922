package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
)

// Thumbnail scales and center-crops img to exactly width×height.
//
// Slides keep a thumbnail instead of the full frame so the slide history stays
// small. A nil image, or a non-positive size, returns nil.
func Thumbnail(img image.Image, width, height int) image.Image {
	if img == nil || width <= 0 || height <= 0 {
		return nil
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil
	}
	return imaging.Thumbnail(img, width, height, imaging.Box)
}

// FitWithin downsizes img so neither side exceeds maxSide, preserving the
// aspect ratio. Images already within the limit (or maxSide <= 0) are returned
// unchanged.
//
// The detector does not bound analysis time itself; callers cap frame
// resolution with this before submission.
func FitWithin(img image.Image, maxSide int) image.Image {
	if img == nil || maxSide <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() <= maxSide && b.Dy() <= maxSide {
		return img
	}
	return imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
}

// Crop extracts the rectangle r from img. The rectangle is clipped to the
// image bounds; an empty intersection returns an error.
func Crop(img image.Image, r image.Rectangle) (image.Image, error) {
	clipped := r.Intersect(img.Bounds())
	if clipped.Empty() {
		return nil, fmt.Errorf("crop region %v outside image bounds %v", r, img.Bounds())
	}
	return imaging.Crop(img, clipped), nil
}

// EncodePNGBase64 encodes img as PNG and returns it base64-encoded.
func EncodePNGBase64(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
