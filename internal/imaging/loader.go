package imaging

import (
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"sync"

	"github.com/anthonynsimon/bild/imgio"
	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// FrameCache provides thread-safe caching of decoded frames read from disk.
//
// The cache stores normalized *image.RGBA buffers keyed by their file path, after
// any resolution cap has been applied. Once a frame is loaded, subsequent Load()
// calls for the same path return the cached buffer without disk I/O. Cached
// buffers are shared and must be treated as read-only.
//
// # Memory Management
//
// Cached frames remain in memory until explicitly removed via Evict() or Clear().
// Screen captures are large; long-running processes should evict frames once
// they have been submitted to a detector.
type FrameCache struct {
	mu      sync.RWMutex
	frames  map[string]*image.RGBA
	maxSide int
}

// NewFrameCache creates an empty cache. Frames wider or taller than maxSide are
// downscaled on load; maxSide <= 0 disables the cap.
func NewFrameCache(maxSide int) *FrameCache {
	return &FrameCache{
		frames:  make(map[string]*image.RGBA),
		maxSide: maxSide,
	}
}

// Load retrieves a frame from the cache or decodes it from disk.
//
// Supported formats are PNG, JPEG, GIF, BMP and WebP.
//
// # Errors
//
//   - Returns error if the file does not exist or cannot be read
//   - Returns error if the file is not a supported image
//   - Returns error if the decoded image has no pixels
func (c *FrameCache) Load(path string) (*image.RGBA, error) {
	c.mu.RLock()
	if img, ok := c.frames[path]; ok {
		c.mu.RUnlock()
		return img, nil
	}
	c.mu.RUnlock()

	img, err := LoadFrame(path, c.maxSide)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.frames[path] = img
	c.mu.Unlock()

	return img, nil
}

// Clear removes all frames from the cache.
func (c *FrameCache) Clear() {
	c.mu.Lock()
	c.frames = make(map[string]*image.RGBA)
	c.mu.Unlock()
}

// Evict removes a specific frame from the cache by its path.
func (c *FrameCache) Evict(path string) {
	c.mu.Lock()
	delete(c.frames, path)
	c.mu.Unlock()
}

// Len returns the number of cached frames.
func (c *FrameCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.frames)
}

// LoadFrame decodes an image file, applies the resolution cap and normalizes it
// to a zero-origin RGBA buffer.
func LoadFrame(path string, maxSide int) (*image.RGBA, error) {
	img, err := imgio.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load frame: %w", err)
	}
	rgba := ToRGBA(FitWithin(img, maxSide))
	if IsEmpty(rgba) {
		return nil, fmt.Errorf("frame %s has no pixels", path)
	}
	return rgba, nil
}
