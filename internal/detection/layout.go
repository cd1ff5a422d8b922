package detection

import (
	"image"
	"math"

	"github.com/ironsheep/slide-detect-mcp/internal/imaging"
)

// Thresholds holds the tunable constants of the layout heuristics.
//
// Fractions are relative to the frame width or height; brightness values are
// BT.601 luma on a 0-255 scale.
type Thresholds struct {
	// TitleBand is the share of the frame height treated as the title area.
	TitleBand float64 `json:"title_band" yaml:"titleBand"`
	// TitleBrightness is the mean brightness below which the title band is
	// considered to hold dark text on a light background.
	TitleBrightness float64 `json:"title_brightness" yaml:"titleBrightness"`

	// BulletLeft and BulletRight bound the vertical band searched for bullets.
	BulletLeft  float64 `json:"bullet_left" yaml:"bulletLeft"`
	BulletRight float64 `json:"bullet_right" yaml:"bulletRight"`
	// BulletTop and BulletBottom bound the rows searched for bullets.
	BulletTop    float64 `json:"bullet_top" yaml:"bulletTop"`
	BulletBottom float64 `json:"bullet_bottom" yaml:"bulletBottom"`
	// BulletRowStep and BulletColStep are the sampling steps inside the band.
	BulletRowStep int `json:"bullet_row_step" yaml:"bulletRowStep"`
	BulletColStep int `json:"bullet_col_step" yaml:"bulletColStep"`
	// MinBulletPixels is the dark-pixel count the band must exceed.
	MinBulletPixels int `json:"min_bullet_pixels" yaml:"minBulletPixels"`

	// DarkPixel is the brightness below which a pixel counts as ink.
	DarkPixel float64 `json:"dark_pixel" yaml:"darkPixel"`

	// TileSize is the side of the square tiles scanned for images.
	TileSize int `json:"tile_size" yaml:"tileSize"`
	// TileVariance is the brightness variance above which a tile looks like an image.
	TileVariance float64 `json:"tile_variance" yaml:"tileVariance"`
	// MinImageTiles is the high-variance tile count the frame must exceed.
	MinImageTiles int `json:"min_image_tiles" yaml:"minImageTiles"`

	// StrongEdge is the gradient magnitude above which an edge is strong.
	StrongEdge uint8 `json:"strong_edge" yaml:"strongEdge"`
	// AlignmentWindow is the length of the line checked around a strong edge.
	AlignmentWindow int `json:"alignment_window" yaml:"alignmentWindow"`
	// MinAligned is how many strong edges the window must contain.
	MinAligned int `json:"min_aligned" yaml:"minAligned"`
	// ChartRatio is the aligned/strong edge ratio above which a chart is reported.
	ChartRatio float64 `json:"chart_ratio" yaml:"chartRatio"`

	// TextMinConfidence filters heuristic text regions.
	TextMinConfidence float64 `json:"text_min_confidence" yaml:"textMinConfidence"`
}

// DefaultThresholds returns the standard layout heuristics.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TitleBand:         0.2,
		TitleBrightness:   128,
		BulletLeft:        0.1,
		BulletRight:       0.2,
		BulletTop:         0.3,
		BulletBottom:      0.8,
		BulletRowStep:     20,
		BulletColStep:     5,
		MinBulletPixels:   3,
		DarkPixel:         100,
		TileSize:          50,
		TileVariance:      1000,
		MinImageTiles:     2,
		StrongEdge:        128,
		AlignmentWindow:   7,
		MinAligned:        5,
		ChartRatio:        0.3,
		TextMinConfidence: 0.3,
	}
}

// clamped returns th with the band fractions limited to [0, 1] and sampling
// steps of at least 1. Every detector scans with the clamped copy.
func (th Thresholds) clamped() Thresholds {
	th.TitleBand = clampFraction(th.TitleBand)
	th.BulletLeft = clampFraction(th.BulletLeft)
	th.BulletRight = clampFraction(th.BulletRight)
	th.BulletTop = clampFraction(th.BulletTop)
	th.BulletBottom = clampFraction(th.BulletBottom)
	th.BulletRowStep = maxInt(th.BulletRowStep, 1)
	th.BulletColStep = maxInt(th.BulletColStep, 1)
	th.AlignmentWindow = maxInt(th.AlignmentWindow, 1)
	return th
}

func clampFraction(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(math.Max(v, 0), 1)
}

// Layout describes the structural features found on a slide.
type Layout struct {
	HasTitle        bool         `json:"has_title"`
	HasBulletPoints bool         `json:"has_bullet_points"`
	HasImages       bool         `json:"has_images"`
	HasCharts       bool         `json:"has_charts"`
	TextRegions     []TextRegion `json:"text_regions"`
}

// Metadata holds scalar measurements of a slide.
type Metadata struct {
	// AspectRatio is width / height.
	AspectRatio float64 `json:"aspect_ratio"`
	// Complexity is the share of pixels with a strong edge (0-1).
	Complexity float64 `json:"complexity"`
	// TextDensity is the share of sampled pixels darker than the ink threshold (0-1).
	TextDensity float64 `json:"text_density"`
	// Brightness is the mean sampled luma scaled to 0-1.
	Brightness float64 `json:"brightness"`
	// DominantColors holds the three most common quantized colors.
	DominantColors []string `json:"dominant_colors"`
}

// Analysis is the complete result of analyzing one frame.
type Analysis struct {
	Layout   Layout   `json:"layout"`
	Metadata Metadata `json:"metadata"`

	// DominantColors holds up to five quantized colors ordered by pixel count.
	DominantColors []string `json:"dominant_colors"`
}

// Analyze infers layout and metadata for a single frame.
//
// Parameters:
//   - img: Frame to analyze, bounds starting at (0,0).
//   - edges: Precomputed imaging.EdgeMap of img, or nil to compute it here.
//   - th: Heuristic thresholds; use DefaultThresholds() for standard behaviour.
//   - sampleStride: Pixel stride for brightness, text density and colors
//     (imaging.DefaultHistogramStride by default).
//
// An empty frame yields a zero Analysis.
func Analyze(img *image.RGBA, edges *image.Gray, th Thresholds, sampleStride int) Analysis {
	if img == nil || imaging.IsEmpty(img) {
		return Analysis{Layout: Layout{TextRegions: []TextRegion{}}}
	}
	if edges == nil {
		edges = imaging.EdgeMap(img)
	}
	if sampleStride < 1 {
		sampleStride = imaging.DefaultHistogramStride
	}
	th = th.clamped()

	width := img.Rect.Dx()
	height := img.Rect.Dy()
	brightness, textDensity := sampleBrightness(img, sampleStride, th.DarkPixel)
	palette := imaging.ColorHistogramStride(img, sampleStride).HexColors(5)
	top3 := palette
	if len(top3) > 3 {
		top3 = top3[:3]
	}

	hasTitle := DetectTitle(img, th)
	layout := Layout{
		HasTitle:        hasTitle,
		HasBulletPoints: DetectBulletPoints(img, th),
		HasImages:       DetectImages(img, th),
		HasCharts:       DetectCharts(edges, th),
		TextRegions:     DetectTextRegions(edges, th.TextMinConfidence),
	}
	if hasTitle {
		markTitleRegions(layout.TextRegions, int(float64(height)*th.TitleBand))
	}

	return Analysis{
		Layout: layout,
		Metadata: Metadata{
			AspectRatio:    float64(width) / float64(height),
			Complexity:     imaging.EdgeFraction(edges, th.StrongEdge),
			TextDensity:    textDensity,
			Brightness:     brightness,
			DominantColors: append([]string(nil), top3...),
		},
		DominantColors: palette,
	}
}

// DetectTitle reports whether the top band of the frame is darker than
// mid-gray on average, which on a light slide means a title is present.
func DetectTitle(img *image.RGBA, th Thresholds) bool {
	th = th.clamped()
	rows := int(float64(img.Rect.Dy()) * th.TitleBand)
	width := img.Rect.Dx()
	if rows <= 0 || width <= 0 {
		return false
	}

	var sum float64
	for y := 0; y < rows; y++ {
		for x := 0; x < width; x++ {
			sum += imaging.LumaAt(img, x, y)
		}
	}
	return sum/float64(rows*width) < th.TitleBrightness
}

// DetectBulletPoints samples a narrow vertical band left of the body text and
// counts dark pixels. Bullets, numbers and dashes all leave ink there.
//
// A band whose left edge lies right of its right edge, or whose top lies below
// its bottom, is empty.
func DetectBulletPoints(img *image.RGBA, th Thresholds) bool {
	th = th.clamped()
	width := img.Rect.Dx()
	height := img.Rect.Dy()

	dark := 0
	for y := int(float64(height) * th.BulletTop); y < int(float64(height)*th.BulletBottom); y += th.BulletRowStep {
		for x := int(float64(width) * th.BulletLeft); x < int(float64(width)*th.BulletRight); x += th.BulletColStep {
			if imaging.LumaAt(img, x, y) < th.DarkPixel {
				dark++
			}
		}
	}
	return dark > th.MinBulletPixels
}

// DetectImages tiles the frame and counts tiles whose brightness variance is
// high enough to look like photographic content. Partial tiles at the right
// and bottom edges are skipped.
func DetectImages(img *image.RGBA, th Thresholds) bool {
	size := th.TileSize
	if size <= 0 {
		return false
	}

	tiles := 0
	for y := 0; y+size <= img.Rect.Dy(); y += size {
		for x := 0; x+size <= img.Rect.Dx(); x += size {
			if imaging.RegionVariance(img, x, y, size) > th.TileVariance {
				tiles++
			}
		}
	}
	return tiles > th.MinImageTiles
}

// DetectCharts looks for the straight axis-aligned lines typical of charts.
//
// A strong edge pixel is "aligned" when at least MinAligned pixels of the
// AlignmentWindow-long horizontal or vertical line centred on it (itself
// included) are strong edges as well. A chart is reported when aligned pixels
// make up more than ChartRatio of all strong edge pixels.
func DetectCharts(edges *image.Gray, th Thresholds) bool {
	th = th.clamped()
	width := edges.Rect.Dx()
	height := edges.Rect.Dy()
	half := th.AlignmentWindow / 2

	strong := func(x, y int) bool {
		return edges.Pix[y*edges.Stride+x] > th.StrongEdge
	}

	total, aligned := 0, 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if !strong(x, y) {
				continue
			}
			total++

			horizontal := 0
			for dx := -half; dx <= half; dx++ {
				if px := x + dx; px >= 0 && px < width && strong(px, y) {
					horizontal++
				}
			}
			if horizontal >= th.MinAligned {
				aligned++
				continue
			}

			vertical := 0
			for dy := -half; dy <= half; dy++ {
				if py := y + dy; py >= 0 && py < height && strong(x, py) {
					vertical++
				}
			}
			if vertical >= th.MinAligned {
				aligned++
			}
		}
	}

	if total == 0 {
		return false
	}
	return float64(aligned)/float64(total) > th.ChartRatio
}

// sampleBrightness returns mean luma (0-1) and the share of dark pixels over
// every stride-th pixel.
func sampleBrightness(img *image.RGBA, stride int, dark float64) (brightness, density float64) {
	width := img.Rect.Dx()
	n := width * img.Rect.Dy()

	var sum float64
	darkCount, samples := 0, 0
	for p := 0; p < n; p += stride {
		v := imaging.LumaAt(img, p%width, p/width)
		sum += v
		if v < dark {
			darkCount++
		}
		samples++
	}
	return sum / float64(samples) / 255, float64(darkCount) / float64(samples)
}
