package imaging

import (
	"image"
	"math"
)

// DefaultVisualStride samples every 4th pixel for VisualDifference.
const DefaultVisualStride = 4

// maxRGBDistance is the Euclidean distance between black and white.
var maxRGBDistance = 255 * math.Sqrt(3)

// VisualDifference measures the average per-pixel RGB distance between two frames.
//
// Returns a value in [0, 1]: 0 for identical frames, 1 when every sampled pixel
// went from black to white (or vice versa). Frames of different dimensions
// return 1.
func VisualDifference(a, b *image.RGBA) float64 {
	return VisualDifferenceStride(a, b, DefaultVisualStride)
}

// VisualDifferenceStride is VisualDifference with an explicit sampling stride.
//
// Every stride-th pixel (by linear index) is compared using the Euclidean
// distance of its RGB components. The mean distance is normalized by the
// maximum possible distance 255·√3 and capped at 1 to absorb rounding. A
// stride below 1 samples every pixel.
func VisualDifferenceStride(a, b *image.RGBA, stride int) float64 {
	if a == nil || b == nil || !sameSize(a, b) {
		return 1
	}
	n := pixelCount(a)
	if n == 0 {
		return 0
	}
	if stride < 1 {
		stride = 1
	}

	var total float64
	samples := 0
	for p := 0; p < n; p += stride {
		ia := pixelOffset(a, p)
		ib := pixelOffset(b, p)
		dr := float64(a.Pix[ia]) - float64(b.Pix[ib])
		dg := float64(a.Pix[ia+1]) - float64(b.Pix[ib+1])
		db := float64(a.Pix[ia+2]) - float64(b.Pix[ib+2])
		total += math.Sqrt(dr*dr + dg*dg + db*db)
		samples++
	}

	return math.Min(total/float64(samples)/maxRGBDistance, 1)
}

// RegionVariance computes the brightness variance inside a square region.
//
// Parameters:
//   - img: Source frame.
//   - x, y: Top-left corner of the region (inclusive).
//   - size: Side length of the square in pixels.
//
// The region is clipped to the frame bounds. Brightness is BT.601 luma on a
// 0-255 scale, so a region split evenly between black and white has a variance
// of about 16256. Empty regions return 0.
func RegionVariance(img *image.RGBA, x, y, size int) float64 {
	if img == nil || size <= 0 {
		return 0
	}
	x1 := clamp(x, 0, img.Rect.Dx())
	y1 := clamp(y, 0, img.Rect.Dy())
	x2 := clamp(x+size, 0, img.Rect.Dx())
	y2 := clamp(y+size, 0, img.Rect.Dy())
	n := (x2 - x1) * (y2 - y1)
	if n <= 0 {
		return 0
	}

	var sum, sumSq float64
	for py := y1; py < y2; py++ {
		for px := x1; px < x2; px++ {
			v := LumaAt(img, px, py)
			sum += v
			sumSq += v * v
		}
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance < 0 {
		// rounding on perfectly flat regions
		return 0
	}
	return variance
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
