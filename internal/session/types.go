package session

import (
	"image"
	"time"

	"github.com/ironsheep/slide-detect-mcp/internal/classify"
	"github.com/ironsheep/slide-detect-mcp/internal/detection"
)

// SlideInfo is the structural snapshot of a slide, taken from the frame that
// triggered an accepted change.
type SlideInfo struct {
	ID        string    `json:"id"`
	FrameID   string    `json:"frame_id"`
	Timestamp time.Time `json:"timestamp"`

	// Thumbnail is a reduced copy of the frame; see Settings.ThumbnailWidth.
	Thumbnail image.Image `json:"-"`

	// DominantColors holds up to five hex colors, most common first.
	DominantColors []string `json:"dominant_colors"`

	Layout   detection.Layout   `json:"layout"`
	Metadata detection.Metadata `json:"metadata"`
}

// SlideChangeEvent reports one accepted change.
type SlideChangeEvent struct {
	ID         string              `json:"id"`
	Timestamp  time.Time           `json:"timestamp"`
	FrameID    string              `json:"frame_id"`
	ChangeType classify.ChangeType `json:"change_type"`
	Confidence float64             `json:"confidence"`

	// PreviousSlide is nil for the first event after construction or Reset.
	PreviousSlide *SlideInfo `json:"previous_slide,omitempty"`
	CurrentSlide  SlideInfo  `json:"current_slide"`

	Metrics classify.Metrics `json:"metrics"`
}

// Stats summarizes a session.
type Stats struct {
	TotalSlides int
	// AverageSlideTime is the mean gap between consecutive accepted slides, or
	// zero with fewer than two slides.
	AverageSlideTime time.Duration
	// LastChangeTime is the timestamp of the latest accepted change, or the
	// zero time if none.
	LastChangeTime time.Time
	Settings       Settings
}
