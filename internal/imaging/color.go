package imaging

import (
	"image"
	"math"
	"sort"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// DefaultHistogramStride samples every 16th pixel for ColorHistogram.
const DefaultHistogramStride = 16

// HistogramSize is the number of buckets kept by ColorHistogram.
const HistogramSize = 10

// bucketWidth is the width of one quantization bucket per channel.
const bucketWidth = 32

// RGBColor represents an RGB color with 8-bit components.
type RGBColor struct {
	R uint8 `json:"r"` // Red component (0-255)
	G uint8 `json:"g"` // Green component (0-255)
	B uint8 `json:"b"` // Blue component (0-255)
}

// Hex returns the color as "#rrggbb".
func (c RGBColor) Hex() string {
	return c.colorful().Hex()
}

func (c RGBColor) colorful() colorful.Color {
	return colorful.Color{
		R: float64(c.R) / 255.0,
		G: float64(c.G) / 255.0,
		B: float64(c.B) / 255.0,
	}
}

func (c RGBColor) key() uint32 {
	return uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

// ColorBucket is one quantized color and the number of sampled pixels in it.
type ColorBucket struct {
	Color RGBColor `json:"color"` // Bucket base color (each channel a multiple of 32)
	Count int      `json:"count"` // Sampled pixels that fell into this bucket
}

// Histogram holds the most populated color buckets of a frame.
type Histogram struct {
	// Buckets are sorted by descending count. Ties are ordered by color value so
	// the result never depends on map iteration order.
	Buckets []ColorBucket `json:"buckets"`

	// Samples is the number of pixels that were counted.
	Samples int `json:"samples"`
}

// Fraction returns the share of samples in bucket i, or 0 if i is out of range.
func (h Histogram) Fraction(i int) float64 {
	if i < 0 || i >= len(h.Buckets) || h.Samples == 0 {
		return 0
	}
	return float64(h.Buckets[i].Count) / float64(h.Samples)
}

// HexColors returns up to n bucket colors as hex strings, most common first.
func (h Histogram) HexColors(n int) []string {
	if n > len(h.Buckets) {
		n = len(h.Buckets)
	}
	out := make([]string, 0, n)
	for _, b := range h.Buckets[:n] {
		out = append(out, b.Color.Hex())
	}
	return out
}

// ColorHistogram returns the top 10 quantized colors of a frame.
func ColorHistogram(img *image.RGBA) Histogram {
	return ColorHistogramStride(img, DefaultHistogramStride)
}

// ColorHistogramStride is ColorHistogram with an explicit sampling stride.
//
// # Color Quantization
//
// Each channel is rounded down to a multiple of 32, grouping similar colors:
//
//	quantized = (original / 32) * 32
//
// For example, #F0F0F0 and #FAFAFA both land in the #e0e0e0 bucket.
//
// # Sampling
//
// Only every stride-th pixel (by linear index) is counted. A stride below 1
// counts every pixel.
func ColorHistogramStride(img *image.RGBA, stride int) Histogram {
	n := pixelCount(img)
	if n == 0 {
		return Histogram{Buckets: []ColorBucket{}}
	}
	if stride < 1 {
		stride = 1
	}

	counts := make(map[uint32]int)
	samples := 0
	for p := 0; p < n; p += stride {
		i := pixelOffset(img, p)
		c := RGBColor{
			R: img.Pix[i] / bucketWidth * bucketWidth,
			G: img.Pix[i+1] / bucketWidth * bucketWidth,
			B: img.Pix[i+2] / bucketWidth * bucketWidth,
		}
		counts[c.key()]++
		samples++
	}

	buckets := make([]ColorBucket, 0, len(counts))
	for k, cnt := range counts {
		buckets = append(buckets, ColorBucket{
			Color: RGBColor{R: uint8(k >> 16), G: uint8(k >> 8), B: uint8(k)},
			Count: cnt,
		})
	}

	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Count != buckets[j].Count {
			return buckets[i].Count > buckets[j].Count
		}
		return buckets[i].Color.key() < buckets[j].Color.key()
	})

	if len(buckets) > HistogramSize {
		buckets = buckets[:HistogramSize]
	}

	return Histogram{Buckets: buckets, Samples: samples}
}

// ColorDifference compares the color distribution of two frames.
//
// Frames of different dimensions return 1.
func ColorDifference(a, b *image.RGBA) float64 {
	if a == nil || b == nil || !sameSize(a, b) {
		return 1
	}
	return ColorDifferenceHistograms(ColorHistogram(a), ColorHistogram(b))
}

// ColorDifferenceHistograms compares two histograms rank by rank.
//
// For each rank i present in either histogram:
//
//	d_i = |color_a - color_b| / (255 * √3)
//	score += d_i * |f_a - f_b|
//
// where f is the bucket's share of samples. A rank missing from one side has
// share 0 and distance 1. The sum is clamped to [0, 1]. Ranks holding the same
// share score 0 whatever their colors.
func ColorDifferenceHistograms(ha, hb Histogram) float64 {
	n := len(ha.Buckets)
	if len(hb.Buckets) > n {
		n = len(hb.Buckets)
	}

	var score float64
	for i := 0; i < n; i++ {
		fa := ha.Fraction(i)
		fb := hb.Fraction(i)
		d := 1.0
		if i < len(ha.Buckets) && i < len(hb.Buckets) {
			d = ha.Buckets[i].Color.colorful().DistanceRgb(hb.Buckets[i].Color.colorful()) / math.Sqrt(3)
		}
		score += d * math.Abs(fa-fb)
	}

	return math.Min(math.Max(score, 0), 1)
}
