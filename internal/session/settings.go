package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/slide-detect-mcp/internal/classify"
	"github.com/ironsheep/slide-detect-mcp/internal/detection"
	"github.com/ironsheep/slide-detect-mcp/internal/imaging"
)

// Default settings.
const (
	DefaultSensitivityThreshold = 0.3
	DefaultMinimumTimeBetween   = 2 * time.Second
	DefaultDebounceTime         = 500 * time.Millisecond
	DefaultThumbnailWidth       = 160
	DefaultThumbnailHeight      = 90
)

// Settings controls how a Session decides that a slide changed.
//
// Out-of-range values are not rejected. They are clamped where they are used:
// the sensitivity threshold behaves as if limited to [0, 1], negative durations
// behave as zero, and non-positive strides and thumbnail sizes fall back to
// their defaults.
type Settings struct {
	// SensitivityThreshold is the overall score a change must strictly exceed.
	SensitivityThreshold float64
	// MinimumTimeBetweenChanges is the cooldown after an accepted change,
	// measured on frame timestamps.
	MinimumTimeBetweenChanges time.Duration
	// IgnoreMinorChanges suppresses content updates scoring below 0.5.
	IgnoreMinorChanges bool

	EnableStructuralAnalysis bool
	EnableColorAnalysis      bool
	EnableEdgeDetection      bool

	// DebounceTime is how long a pending frame must stay unreplaced before
	// Tick analyzes it.
	DebounceTime time.Duration

	// VisualSampleStride is the pixel stride of the visual difference.
	VisualSampleStride int
	// HistogramSampleStride is the pixel stride of color histograms and
	// brightness sampling.
	HistogramSampleStride int

	ThumbnailWidth  int
	ThumbnailHeight int

	// Layout holds the layout heuristics used to describe accepted slides.
	Layout detection.Thresholds
}

// DefaultSettings returns the standard detection settings.
func DefaultSettings() Settings {
	return Settings{
		SensitivityThreshold:      DefaultSensitivityThreshold,
		MinimumTimeBetweenChanges: DefaultMinimumTimeBetween,
		IgnoreMinorChanges:        true,
		EnableStructuralAnalysis:  true,
		EnableColorAnalysis:       true,
		EnableEdgeDetection:       true,
		DebounceTime:              DefaultDebounceTime,
		VisualSampleStride:        imaging.DefaultVisualStride,
		HistogramSampleStride:     imaging.DefaultHistogramStride,
		ThumbnailWidth:            DefaultThumbnailWidth,
		ThumbnailHeight:           DefaultThumbnailHeight,
		Layout:                    detection.DefaultThresholds(),
	}
}

// toggles returns the optional signals enabled by s.
// Toggles reports which optional signals are enabled.
func (s Settings) Toggles() classify.Toggles {
	return classify.Toggles{
		Structural: s.EnableStructuralAnalysis,
		Color:      s.EnableColorAnalysis,
		Edge:       s.EnableEdgeDetection,
	}
}

// VisualStride is VisualSampleStride, or the default when unset or below 1.
func (s Settings) VisualStride() int {
	if s.VisualSampleStride < 1 {
		return imaging.DefaultVisualStride
	}
	return s.VisualSampleStride
}

// HistogramStride is HistogramSampleStride, or the default when unset or below 1.
func (s Settings) HistogramStride() int {
	if s.HistogramSampleStride < 1 {
		return imaging.DefaultHistogramStride
	}
	return s.HistogramSampleStride
}

func (s Settings) thumbnailSize() (int, int) {
	w, h := s.ThumbnailWidth, s.ThumbnailHeight
	if w <= 0 {
		w = DefaultThumbnailWidth
	}
	if h <= 0 {
		h = DefaultThumbnailHeight
	}
	return w, h
}

// Merge returns s with every field set in p overwritten.
func (s Settings) Merge(p SettingsPatch) Settings {
	if p.SensitivityThreshold != nil {
		s.SensitivityThreshold = *p.SensitivityThreshold
	}
	if p.MinimumTimeBetweenChangesMs != nil {
		s.MinimumTimeBetweenChanges = time.Duration(*p.MinimumTimeBetweenChangesMs) * time.Millisecond
	}
	if p.IgnoreMinorChanges != nil {
		s.IgnoreMinorChanges = *p.IgnoreMinorChanges
	}
	if p.EnableStructuralAnalysis != nil {
		s.EnableStructuralAnalysis = *p.EnableStructuralAnalysis
	}
	if p.EnableColorAnalysis != nil {
		s.EnableColorAnalysis = *p.EnableColorAnalysis
	}
	if p.EnableEdgeDetection != nil {
		s.EnableEdgeDetection = *p.EnableEdgeDetection
	}
	if p.DebounceTimeMs != nil {
		s.DebounceTime = time.Duration(*p.DebounceTimeMs) * time.Millisecond
	}
	if p.VisualSampleStride != nil {
		s.VisualSampleStride = *p.VisualSampleStride
	}
	if p.HistogramSampleStride != nil {
		s.HistogramSampleStride = *p.HistogramSampleStride
	}
	if p.ThumbnailWidth != nil {
		s.ThumbnailWidth = *p.ThumbnailWidth
	}
	if p.ThumbnailHeight != nil {
		s.ThumbnailHeight = *p.ThumbnailHeight
	}
	if p.Layout != nil {
		s.Layout = *p.Layout
	}
	return s
}

// Patch returns s as a patch with every field set.
func (s Settings) Patch() SettingsPatch {
	cooldown := s.MinimumTimeBetweenChanges.Milliseconds()
	debounce := s.DebounceTime.Milliseconds()
	layout := s.Layout
	return SettingsPatch{
		SensitivityThreshold:        &s.SensitivityThreshold,
		MinimumTimeBetweenChangesMs: &cooldown,
		IgnoreMinorChanges:          &s.IgnoreMinorChanges,
		EnableStructuralAnalysis:    &s.EnableStructuralAnalysis,
		EnableColorAnalysis:         &s.EnableColorAnalysis,
		EnableEdgeDetection:         &s.EnableEdgeDetection,
		DebounceTimeMs:              &debounce,
		VisualSampleStride:          &s.VisualSampleStride,
		HistogramSampleStride:       &s.HistogramSampleStride,
		ThumbnailWidth:              &s.ThumbnailWidth,
		ThumbnailHeight:             &s.ThumbnailHeight,
		Layout:                      &layout,
	}
}

// MarshalJSON encodes the settings in the same shape SettingsPatch accepts,
// with durations in milliseconds.
func (s Settings) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Patch())
}

// SettingsPatch is a partial Settings update. Nil fields keep their current
// value. Durations are whole milliseconds.
type SettingsPatch struct {
	SensitivityThreshold        *float64              `json:"sensitivity_threshold,omitempty" yaml:"sensitivityThreshold"`
	MinimumTimeBetweenChangesMs *int64                `json:"minimum_time_between_changes_ms,omitempty" yaml:"minimumTimeBetweenChanges"`
	IgnoreMinorChanges          *bool                 `json:"ignore_minor_changes,omitempty" yaml:"ignoreMinorChanges"`
	EnableStructuralAnalysis    *bool                 `json:"enable_structural_analysis,omitempty" yaml:"enableStructuralAnalysis"`
	EnableColorAnalysis         *bool                 `json:"enable_color_analysis,omitempty" yaml:"enableColorAnalysis"`
	EnableEdgeDetection         *bool                 `json:"enable_edge_detection,omitempty" yaml:"enableEdgeDetection"`
	DebounceTimeMs              *int64                `json:"debounce_time_ms,omitempty" yaml:"debounceTime"`
	VisualSampleStride          *int                  `json:"visual_sample_stride,omitempty" yaml:"visualSampleStride"`
	HistogramSampleStride       *int                  `json:"histogram_sample_stride,omitempty" yaml:"histogramSampleStride"`
	ThumbnailWidth              *int                  `json:"thumbnail_width,omitempty" yaml:"thumbnailWidth"`
	ThumbnailHeight             *int                  `json:"thumbnail_height,omitempty" yaml:"thumbnailHeight"`
	Layout                      *detection.Thresholds `json:"layout,omitempty" yaml:"layout"`
}

// ParseSettingsYAML decodes a YAML settings document into a patch over base.
//
// A layout section only overrides the thresholds it names; the rest come from
// base.Layout. Unknown keys and values of the wrong type are errors. An empty
// document yields a patch that changes nothing.
func ParseSettingsYAML(data []byte, base Settings) (SettingsPatch, error) {
	layout := base.Layout
	p := SettingsPatch{Layout: &layout}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return p, nil
		}
		return SettingsPatch{}, fmt.Errorf("invalid settings document: %w", err)
	}
	return p, nil
}

// ParseSettingsJSON is ParseSettingsYAML for JSON objects.
func ParseSettingsJSON(data []byte, base Settings) (SettingsPatch, error) {
	layout := base.Layout
	p := SettingsPatch{Layout: &layout}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return SettingsPatch{}, fmt.Errorf("invalid settings: %w", err)
	}
	return p, nil
}
