// Package classify turns raw difference signals into a single change score and
// a change-type label.
//
// The four signals (visual, structural, color, edge) are combined with fixed
// weights over whichever signals are enabled:
//
//	overall = Σ(weight_i · metric_i) / Σ(weight_i)
//
// The overall score and the structural signal then select a ChangeType; the
// first matching rule wins:
//
//  1. overall > 0.8 → slide_change
//  2. structural > 0.6 → transition
//  3. overall > 0.4 → content_update
//  4. otherwise → animation
package classify

import "math"

// ChangeType labels what kind of change occurred between two frames.
type ChangeType string

const (
	SlideChange   ChangeType = "slide_change"
	ContentUpdate ChangeType = "content_update"
	Transition    ChangeType = "transition"
	Animation     ChangeType = "animation"
)

// Signal weights. Visual difference is always enabled.
const (
	VisualWeight     = 0.4
	StructuralWeight = 0.3
	ColorWeight      = 0.2
	EdgeWeight       = 0.1
)

// Classification boundaries.
const (
	slideChangeAbove   = 0.8
	transitionAbove    = 0.6
	contentUpdateAbove = 0.4
	minorChangeBelow   = 0.5
)

// Metrics holds the four raw difference signals, each in [0, 1].
type Metrics struct {
	Visual     float64 `json:"visual" yaml:"visual"`
	Structural float64 `json:"structural" yaml:"structural"`
	Color      float64 `json:"color" yaml:"color"`
	Edge       float64 `json:"edge" yaml:"edge"`
}

// Uniform returns Metrics with every signal set to v.
func Uniform(v float64) Metrics {
	return Metrics{Visual: v, Structural: v, Color: v, Edge: v}
}

// Toggles selects which optional signals contribute to the overall score.
type Toggles struct {
	Structural bool
	Color      bool
	Edge       bool
}

// AllSignals enables every optional signal.
func AllSignals() Toggles {
	return Toggles{Structural: true, Color: true, Edge: true}
}

// Overall combines the enabled signals into one score in [0, 1].
func Overall(m Metrics, t Toggles) float64 {
	sum := VisualWeight * clamp01(m.Visual)
	weights := VisualWeight
	if t.Structural {
		sum += StructuralWeight * clamp01(m.Structural)
		weights += StructuralWeight
	}
	if t.Color {
		sum += ColorWeight * clamp01(m.Color)
		weights += ColorWeight
	}
	if t.Edge {
		sum += EdgeWeight * clamp01(m.Edge)
		weights += EdgeWeight
	}
	return sum / weights
}

// Classify maps an overall score and the raw signals to a ChangeType.
func Classify(overall float64, m Metrics) ChangeType {
	switch {
	case overall > slideChangeAbove:
		return SlideChange
	case m.Structural > transitionAbove:
		return Transition
	case overall > contentUpdateAbove:
		return ContentUpdate
	default:
		return Animation
	}
}

// Confidence is the overall score capped at 1.
func Confidence(overall float64) float64 {
	return math.Min(overall, 1.0)
}

// Exceeds reports whether overall is strictly above threshold. The threshold
// is clamped to [0, 1] first, so out-of-range settings degrade gracefully.
func Exceeds(overall, threshold float64) bool {
	return overall > clamp01(threshold)
}

// Minor reports whether a change is a content update too small to report when
// minor changes are ignored.
func Minor(ct ChangeType, overall float64) bool {
	return ct == ContentUpdate && overall < minorChangeBelow
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
