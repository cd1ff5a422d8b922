package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/ironsheep/slide-detect-mcp/internal/detection"
	"github.com/ironsheep/slide-detect-mcp/internal/imaging"
)

// DefaultLanguage is used when Config.Language is empty.
const DefaultLanguage = "eng"

// Config selects the Tesseract language data.
type Config struct {
	// Language is a Tesseract language code such as "eng" or "deu".
	Language string `yaml:"language"`
	// TessdataPrefix overrides the directory holding *.traineddata files.
	TessdataPrefix string `yaml:"tessdataPrefix"`
}

// Bounds represents a rectangular bounding box in pixel coordinates.
type Bounds struct {
	X1 int `json:"x1"` // Left edge
	Y1 int `json:"y1"` // Top edge
	X2 int `json:"x2"` // Right edge
	Y2 int `json:"y2"` // Bottom edge
}

func boundsOf(r image.Rectangle) Bounds {
	return Bounds{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y}
}

// Word is one recognized word.
type Word struct {
	Text string `json:"text"`
	// Confidence is Tesseract's recognition confidence (0.0 to 1.0).
	Confidence float64 `json:"confidence"`
	Bounds     Bounds  `json:"bounds"`
}

// Result contains the text read from an image or region.
type Result struct {
	// FullText keeps Tesseract's spacing and newlines.
	FullText string `json:"full_text"`
	// Words may be empty if bounding boxes could not be extracted, even when
	// FullText is not.
	Words []Word `json:"words"`
}

// Extractor runs Tesseract with a fixed configuration. A fresh client is
// created per call, so an Extractor may be shared between goroutines.
type Extractor struct {
	cfg Config
}

// NewExtractor creates an Extractor. An empty language means DefaultLanguage.
func NewExtractor(cfg Config) *Extractor {
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	return &Extractor{cfg: cfg}
}

// Language returns the configured language code.
func (e *Extractor) Language() string {
	return e.cfg.Language
}

// ExtractText reads all text in img.
//
// Word bounds are in img's coordinate space. If word-level boxes fail (which
// happens with some Tesseract builds) the full text is still returned.
func (e *Extractor) ExtractText(img image.Image) (*Result, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image for OCR: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if e.cfg.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(e.cfg.TessdataPrefix); err != nil {
			return nil, fmt.Errorf("failed to set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(e.cfg.Language); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return &Result{FullText: text, Words: []Word{}}, nil
	}

	origin := img.Bounds().Min
	words := make([]Word, 0, len(boxes))
	for _, box := range boxes {
		if strings.TrimSpace(box.Word) == "" {
			continue
		}
		words = append(words, Word{
			Text:       box.Word,
			Confidence: box.Confidence / 100.0,
			Bounds:     boundsOf(box.Box.Add(origin)),
		})
	}

	return &Result{FullText: text, Words: words}, nil
}

// ExtractRegion reads the text inside r. The rectangle is clipped to the
// image; word bounds are reported in the coordinates of the full image.
func (e *Extractor) ExtractRegion(img image.Image, r image.Rectangle) (*Result, error) {
	cropped, err := imaging.Crop(img, r)
	if err != nil {
		return nil, err
	}
	result, err := e.ExtractText(cropped)
	if err != nil {
		return nil, err
	}
	offsetWords(result.Words, r.Intersect(img.Bounds()).Min)
	return result, nil
}

// offsetWords shifts word bounds from crop space to image space. Crops start
// at (0,0), so the crop origin is added back.
func offsetWords(words []Word, origin image.Point) {
	for i := range words {
		words[i].Bounds.X1 += origin.X
		words[i].Bounds.Y1 += origin.Y
		words[i].Bounds.X2 += origin.X
		words[i].Bounds.Y2 += origin.Y
	}
}

// AnnotateRegions returns a copy of regions with Text filled from the matching
// area of frame. Regions are read one at a time; the first failure aborts and
// is returned.
func (e *Extractor) AnnotateRegions(frame image.Image, regions []detection.TextRegion) ([]detection.TextRegion, error) {
	out := make([]detection.TextRegion, len(regions))
	copy(out, regions)

	for i := range out {
		result, err := e.ExtractRegion(frame, out[i].Rect())
		if err != nil {
			return nil, fmt.Errorf("region %d at (%d,%d): %w", i, out[i].X, out[i].Y, err)
		}
		out[i].Text = strings.TrimSpace(result.FullText)
	}
	return out, nil
}

// Version returns the version of the linked Tesseract library.
func Version() string {
	client := gosseract.NewClient()
	defer client.Close()
	return client.Version()
}
