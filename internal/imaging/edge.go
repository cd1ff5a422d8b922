package imaging

import (
	"image"
	"math"
)

// EdgeMap computes the Sobel gradient magnitude of every interior pixel.
//
// The result is a grayscale buffer of the same dimensions as img where each value
// is the local intensity change at that pixel. It serves as the structural
// fingerprint of a frame: two frames with the same layout produce similar maps
// even when their colors differ.
//
// Parameters:
//   - img: Source frame with bounds starting at (0,0).
//
// Returns:
//   - *image.Gray: Gradient magnitudes (0-255). Nil if img is nil.
//
// # Algorithm
//
//  1. Grayscale conversion: each pixel of the 3x3 neighbourhood is converted to
//     luminance using ITU-R BT.601 weights (0.299*R + 0.587*G + 0.114*B)
//
//  2. Gradient computation: Sobel operators for X and Y gradients
//     magnitude = sqrt(Gx² + Gy²)
//
//  3. Clamping: magnitudes above 255 are stored as 255
//
// Border pixels (first/last row and column) have no full neighbourhood and are
// left at 0.
func EdgeMap(img *image.RGBA) *image.Gray {
	if img == nil {
		return nil
	}
	width := img.Rect.Dx()
	height := img.Rect.Dy()
	edges := image.NewGray(image.Rect(0, 0, width, height))
	if width < 3 || height < 3 {
		return edges
	}

	// Luma is computed once per pixel rather than nine times per neighbourhood.
	luma := make([]float64, width*height)
	for y := 0; y < height; y++ {
		row := y * img.Stride
		for x := 0; x < width; x++ {
			i := row + x*4
			luma[y*width+x] = Luma(img.Pix[i], img.Pix[i+1], img.Pix[i+2])
		}
	}

	sobelX := [3][3]float64{
		{-1, 0, 1},
		{-2, 0, 2},
		{-1, 0, 1},
	}
	sobelY := [3][3]float64{
		{-1, -2, -1},
		{0, 0, 0},
		{1, 2, 1},
	}

	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			var gx, gy float64
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					v := luma[(y+ky)*width+x+kx]
					gx += v * sobelX[ky+1][kx+1]
					gy += v * sobelY[ky+1][kx+1]
				}
			}
			mag := math.Sqrt(gx*gx + gy*gy)
			if mag > 255 {
				mag = 255
			}
			edges.Pix[y*edges.Stride+x] = uint8(mag)
		}
	}

	return edges
}

// StructuralDifference compares the edge maps of two frames.
//
// See StructuralDifferenceMaps for the comparison itself. Frames of different
// dimensions return 1.
func StructuralDifference(a, b *image.RGBA) float64 {
	if a == nil || b == nil || !sameSize(a, b) {
		return 1
	}
	return StructuralDifferenceMaps(EdgeMap(a), EdgeMap(b))
}

// StructuralDifferenceMaps compares two precomputed edge maps.
//
// The absolute difference is summed over the pixels where either map has a
// non-zero edge and normalized by (edge pixel count × 255). Flat regions present
// in both frames therefore do not dilute the score. Two maps without any edges
// are identical and return 0.
func StructuralDifferenceMaps(ea, eb *image.Gray) float64 {
	if ea == nil || eb == nil || ea.Rect.Size() != eb.Rect.Size() {
		return 1
	}
	width := ea.Rect.Dx()
	height := ea.Rect.Dy()

	var sum float64
	count := 0
	for y := 0; y < height; y++ {
		ra := ea.Pix[y*ea.Stride : y*ea.Stride+width]
		rb := eb.Pix[y*eb.Stride : y*eb.Stride+width]
		for x := 0; x < width; x++ {
			if ra[x] == 0 && rb[x] == 0 {
				continue
			}
			sum += float64(absDiff(ra[x], rb[x]))
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / (float64(count) * 255)
}

// EdgeDifference returns the mean absolute difference between the gradient
// magnitudes of two frames, normalized by 255.
func EdgeDifference(a, b *image.RGBA) float64 {
	if a == nil || b == nil || !sameSize(a, b) {
		return 1
	}
	return EdgeDifferenceMaps(EdgeMap(a), EdgeMap(b))
}

// EdgeDifferenceMaps is EdgeDifference over precomputed edge maps.
// Unlike StructuralDifferenceMaps it averages over every pixel.
func EdgeDifferenceMaps(ea, eb *image.Gray) float64 {
	if ea == nil || eb == nil || ea.Rect.Size() != eb.Rect.Size() {
		return 1
	}
	width := ea.Rect.Dx()
	height := ea.Rect.Dy()
	if width*height == 0 {
		return 0
	}

	var sum float64
	for y := 0; y < height; y++ {
		ra := ea.Pix[y*ea.Stride : y*ea.Stride+width]
		rb := eb.Pix[y*eb.Stride : y*eb.Stride+width]
		for x := 0; x < width; x++ {
			sum += float64(absDiff(ra[x], rb[x]))
		}
	}
	return sum / (float64(width*height) * 255)
}

// EdgeFraction returns the share of pixels whose edge magnitude exceeds threshold.
func EdgeFraction(edges *image.Gray, threshold uint8) float64 {
	if edges == nil {
		return 0
	}
	width := edges.Rect.Dx()
	height := edges.Rect.Dy()
	if width*height == 0 {
		return 0
	}
	strong := 0
	for y := 0; y < height; y++ {
		for _, v := range edges.Pix[y*edges.Stride : y*edges.Stride+width] {
			if v > threshold {
				strong++
			}
		}
	}
	return float64(strong) / float64(width*height)
}

// clamp constrains an integer value to the range [min, max].
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
