package detection

import (
	"image"
	"math"
	"sort"
)

// FontStyle is the inferred weight/slant of a text region.
type FontStyle string

const (
	FontNormal FontStyle = "normal"
	FontBold   FontStyle = "bold"
	FontItalic FontStyle = "italic"
)

// textEdge is the gradient magnitude counted as a glyph stroke boundary.
const textEdge = 64

// TextRegion represents an area of a slide that likely contains text.
type TextRegion struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`

	// Text is empty unless an OCR consumer fills it in.
	Text string `json:"text,omitempty"`

	Confidence float64   `json:"confidence"`
	FontSize   float64   `json:"font_size"`
	FontStyle  FontStyle `json:"font_style"`
}

// Rect returns the region as an image.Rectangle.
func (r TextRegion) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// DetectTextRegions finds regions likely to contain text.
//
// This is a heuristic-based approach that looks for areas with medium edge
// density and a predominantly horizontal edge distribution, as produced by
// lines of glyphs. Overlapping windows are merged, and results are sorted by
// confidence (highest first).
//
// The font size of a region is estimated as the tallest run of consecutive
// rows containing glyph edges, which approximates one line of text.
func DetectTextRegions(edges *image.Gray, minConfidence float64) []TextRegion {
	width := edges.Rect.Dx()
	height := edges.Rect.Dy()
	grid := newEdgeGrid(edges, width, height)

	windowSizes := []struct{ w, h int }{
		{100, 30}, // Small text
		{150, 40}, // Medium text
		{200, 50}, // Large text
		{80, 25},  // Very small text
	}

	candidates := make([]TextRegion, 0)

	for _, ws := range windowSizes {
		stepX := ws.w / 2
		stepY := ws.h / 2

		for y := 0; y <= height-ws.h; y += stepY {
			for x := 0; x <= width-ws.w; x += stepX {
				area := ws.w * ws.h
				density := float64(grid.count(x, y, ws.w, ws.h)) / float64(area)

				// Text typically has medium edge density (not too sparse, not too dense)
				if density < 0.05 || density > 0.4 {
					continue
				}

				horizontalScore := grid.horizontalScore(x, y, ws.w, ws.h)
				confidence := horizontalScore * (1.0 - math.Abs(density-0.2)/0.2)
				if confidence < minConfidence {
					continue
				}

				candidates = append(candidates, TextRegion{
					X:          x,
					Y:          y,
					Width:      ws.w,
					Height:     ws.h,
					Confidence: math.Round(confidence*1000) / 1000,
					FontStyle:  FontNormal,
				})
			}
		}
	}

	merged := mergeOverlappingRegions(candidates)
	for i := range merged {
		merged[i].FontSize = float64(grid.tallestRowRun(merged[i].X, merged[i].Y, merged[i].Width, merged[i].Height))
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Confidence > merged[j].Confidence
	})

	return merged
}

// markTitleRegions flags regions starting inside the title band as bold.
func markTitleRegions(regions []TextRegion, titleRows int) {
	for i := range regions {
		if regions[i].Y < titleRows {
			regions[i].FontStyle = FontBold
		}
	}
}

// edgeGrid is a boolean edge mask with a summed-area table for O(1) window counts.
type edgeGrid struct {
	width, height int
	on            []bool
	sums          []int // (width+1)*(height+1) integral image
}

func newEdgeGrid(edges *image.Gray, width, height int) *edgeGrid {
	g := &edgeGrid{
		width:  width,
		height: height,
		on:     make([]bool, width*height),
		sums:   make([]int, (width+1)*(height+1)),
	}
	for y := 0; y < height; y++ {
		rowSum := 0
		for x := 0; x < width; x++ {
			if edges.Pix[y*edges.Stride+x] > textEdge {
				g.on[y*width+x] = true
				rowSum++
			}
			g.sums[(y+1)*(width+1)+x+1] = g.sums[y*(width+1)+x+1] + rowSum
		}
	}
	return g
}

func (g *edgeGrid) at(x, y int) bool {
	return g.on[y*g.width+x]
}

// count returns the number of edge pixels in the w×h window at (x, y).
func (g *edgeGrid) count(x, y, w, h int) int {
	stride := g.width + 1
	return g.sums[(y+h)*stride+x+w] - g.sums[y*stride+x+w] - g.sums[(y+h)*stride+x] + g.sums[y*stride+x]
}

// horizontalScore calculates how "horizontal" the edge distribution is
func (g *edgeGrid) horizontalScore(x, y, w, h int) float64 {
	horizontalRuns := 0
	verticalRuns := 0

	// Count horizontal edge runs
	for row := y; row < y+h; row++ {
		inRun := false
		for col := x; col < x+w; col++ {
			if g.at(col, row) {
				if !inRun {
					horizontalRuns++
					inRun = true
				}
			} else {
				inRun = false
			}
		}
	}

	// Count vertical edge runs
	for col := x; col < x+w; col++ {
		inRun := false
		for row := y; row < y+h; row++ {
			if g.at(col, row) {
				if !inRun {
					verticalRuns++
					inRun = true
				}
			} else {
				inRun = false
			}
		}
	}

	if horizontalRuns+verticalRuns == 0 {
		return 0
	}
	return float64(horizontalRuns) / float64(horizontalRuns+verticalRuns)
}

// tallestRowRun returns the longest streak of consecutive rows in the window
// that contain at least one edge pixel.
func (g *edgeGrid) tallestRowRun(x, y, w, h int) int {
	best, run := 0, 0
	for row := y; row < y+h; row++ {
		if g.count(x, row, w, 1) > 0 {
			run++
			if run > best {
				best = run
			}
		} else {
			run = 0
		}
	}
	return best
}

// mergeOverlappingRegions combines overlapping text regions
func mergeOverlappingRegions(regions []TextRegion) []TextRegion {
	merged := make([]TextRegion, 0, len(regions))

	for _, r := range regions {
		foundMerge := false
		for i := range merged {
			if regionsOverlap(r.Rect(), merged[i].Rect()) {
				u := r.Rect().Union(merged[i].Rect())
				merged[i].X, merged[i].Y = u.Min.X, u.Min.Y
				merged[i].Width, merged[i].Height = u.Dx(), u.Dy()
				merged[i].Confidence = math.Max(r.Confidence, merged[i].Confidence)
				foundMerge = true
				break
			}
		}
		if !foundMerge {
			merged = append(merged, r)
		}
	}

	return merged
}

// regionsOverlap checks if two rectangles overlap
func regionsOverlap(a, b image.Rectangle) bool {
	return a.Min.X < b.Max.X && a.Max.X > b.Min.X && a.Min.Y < b.Max.Y && a.Max.Y > b.Min.Y
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
