// Package ocr reads the text of detected slides using Tesseract.
//
// The detector itself never performs OCR. It reports where text probably is
// (detection.TextRegion) and leaves Text empty. This package is the consumer
// that fills it in, typically once per accepted slide rather than per frame.
//
// # Prerequisites
//
// Tesseract and its language data must be installed, since gosseract links
// against the native library:
//   - Ubuntu/Debian: apt-get install tesseract-ocr tesseract-ocr-eng
//   - macOS: brew install tesseract
//
// A custom tessdata directory can be supplied with Config.TessdataPrefix.
//
// # Performance
//
// OCR is far slower than change detection. Crop to the detected regions
// (AnnotateRegions does this) instead of reading the full frame, and run it
// off the capture path.
package ocr
