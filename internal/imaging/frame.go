package imaging

import (
	"image"
	"image/draw"

	"github.com/anthonynsimon/bild/clone"
)

// ToRGBA returns a copy of img as an *image.RGBA whose bounds start at (0,0).
//
// The copy is made with bild's clone package, which handles every standard
// color model (YCbCr from JPEG, paletted GIF, 16-bit PNG). A nil image yields nil.
func ToRGBA(img image.Image) *image.RGBA {
	if img == nil {
		return nil
	}
	rgba := clone.AsRGBA(img)
	if rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	shifted := image.NewRGBA(image.Rect(0, 0, rgba.Rect.Dx(), rgba.Rect.Dy()))
	draw.Draw(shifted, shifted.Rect, rgba, rgba.Rect.Min, draw.Src)
	return shifted
}

// Luma converts 8-bit RGB to brightness using ITU-R BT.601 weights.
func Luma(r, g, b uint8) float64 {
	return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
}

// LumaAt returns the brightness (0-255) of the pixel at (x, y).
// The caller guarantees the coordinates are inside img.
func LumaAt(img *image.RGBA, x, y int) float64 {
	i := y*img.Stride + x*4
	return Luma(img.Pix[i], img.Pix[i+1], img.Pix[i+2])
}

// pixelCount returns width*height for img, or 0 for a nil image.
func pixelCount(img *image.RGBA) int {
	if img == nil {
		return 0
	}
	return img.Rect.Dx() * img.Rect.Dy()
}

// sameSize reports whether two buffers have identical dimensions.
func sameSize(a, b *image.RGBA) bool {
	return a.Rect.Dx() == b.Rect.Dx() && a.Rect.Dy() == b.Rect.Dy()
}

// pixelOffset maps a linear pixel index to its offset in img.Pix.
func pixelOffset(img *image.RGBA, index int) int {
	w := img.Rect.Dx()
	return (index/w)*img.Stride + (index%w)*4
}

// IsEmpty reports whether img has no pixels to analyze.
func IsEmpty(img *image.RGBA) bool {
	return pixelCount(img) == 0
}
