package session

import (
	"image"
	"time"

	"github.com/google/uuid"

	"github.com/ironsheep/slide-detect-mcp/internal/imaging"
)

// Frame is one captured still image. Frames are immutable once built; the
// session shares the pixel buffer with its history instead of copying it.
type Frame struct {
	ID        string
	Timestamp time.Time
	Image     *image.RGBA
}

// NewFrame builds a Frame from any image, normalizing it to a zero-origin RGBA
// copy. An empty id is replaced by a random UUID.
func NewFrame(id string, ts time.Time, img image.Image) Frame {
	if id == "" {
		id = uuid.NewString()
	}
	return Frame{
		ID:        id,
		Timestamp: ts,
		Image:     imaging.ToRGBA(img),
	}
}

// Width returns the frame width in pixels.
func (f Frame) Width() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Rect.Dx()
}

// Height returns the frame height in pixels.
func (f Frame) Height() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Rect.Dy()
}

// Empty reports whether the frame has no pixels to analyze.
func (f Frame) Empty() bool {
	return imaging.IsEmpty(f.Image)
}
