// Package imaging provides the pixel metrics used by the slide change detector.
//
// This package implements the stateless, deterministic building blocks of change
// detection: visual (RGB) difference, Sobel edge maps, structural and edge
// difference, quantized color histograms, color difference and region variance.
// It also carries the small amount of image plumbing the detector needs around
// those metrics: frame normalization, thumbnails, resolution capping and loading
// frames from disk.
//
// # Pixel Buffers
//
// Metric functions operate on *image.RGBA buffers whose bounds start at (0,0).
// Use ToRGBA to normalize any image.Image before calling them; it copies the
// source so callers may keep mutating their own buffers.
//
//   - X: horizontal position (0 = leftmost pixel)
//   - Y: vertical position (0 = topmost pixel)
//   - Pixel index i maps to (i % width, i / width)
//
// # Sampling
//
// Several metrics sample a subset of pixels to trade accuracy for throughput:
//
//   - VisualDifference: every 4th pixel
//   - ColorHistogram: every 16th pixel
//
// The *Stride variants accept a custom stride. Sampling is by linear pixel index,
// so results are identical across runs for identical inputs.
//
// # Normalization
//
// Every difference function returns a value in [0, 1]. Frames whose dimensions
// differ are treated as completely different and yield 1.
//
// # Thread Safety
//
// All metric functions are pure and may be called concurrently, including on the
// same frames. The FrameCache type is safe for concurrent use.
package imaging
