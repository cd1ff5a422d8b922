// Package detection infers the structure of a single slide frame.
//
// The layout analyzer looks at one frame in isolation and reports coarse
// structural features (a title band, bullet points, embedded images, chart-like
// geometry) along with scalar metadata (brightness, complexity, text density,
// aspect ratio) and heuristic text regions. It never compares frames; that is
// the job of the imaging and classify packages.
//
// # Heuristics, Not Recognition
//
// Every feature is a threshold on simple pixel statistics:
//
//   - Title: mean brightness of the top band below mid-gray
//   - Bullet points: dark pixels in a narrow band left of the body text
//   - Images: 50x50 tiles with high brightness variance
//   - Charts: strong edges that line up horizontally or vertically
//   - Text regions: windows with moderate, mostly horizontal edge density
//
// None of this reads text. TextRegion.Text is left empty for an OCR consumer
// to fill in. The thresholds are collected in Thresholds so callers can tune
// them; DefaultThresholds returns the documented values.
//
// # Coordinate System
//
// All coordinates use the standard image convention:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
//
// # Limitations
//
// The heuristics assume slide-like content: light backgrounds, dark text,
// axis-aligned shapes. Dark themes report a title on almost every frame, and
// photographs register as images and charts alike.
package detection
