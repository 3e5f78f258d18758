package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"sync"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// MaxPhotoBytes bounds the size of an uploaded photo.
const MaxPhotoBytes = 40 << 20

// Decode decodes an uploaded photo.
//
// EXIF orientation is applied, so a phone photo taken in portrait arrives
// upright regardless of how the camera stored the pixels. Supported formats
// are JPEG, PNG, GIF, BMP, TIFF and WebP.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image data")
	}
	if len(data) > MaxPhotoBytes {
		return nil, fmt.Errorf("image too large: %d bytes (max %d)", len(data), MaxPhotoBytes)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("image has zero size")
	}
	return img, nil
}

// ImageCache provides thread-safe caching of decoded photos keyed by path.
//
// The tool server reads the same photo several times while a caller iterates
// (detect markers, align, read with different thresholds); the cache avoids
// decoding it again on each call. Cached images are never modified, so the
// returned values may be shared between concurrent reads.
//
// # Memory Management
//
// Cached images remain in memory until explicitly removed via Evict() or
// Clear(). A full-resolution phone photo decodes to tens of megabytes.
type ImageCache struct {
	mu     sync.RWMutex
	images map[string]image.Image
}

// NewImageCache creates and initializes a new empty image cache.
func NewImageCache() *ImageCache {
	return &ImageCache{
		images: make(map[string]image.Image),
	}
}

// Load retrieves a photo from the cache or decodes it from disk.
//
// The image is cached using the exact path string provided. Different paths
// to the same file (e.g., relative vs absolute) result in separate entries.
func (c *ImageCache) Load(path string) (image.Image, error) {
	c.mu.RLock()
	if img, ok := c.images[path]; ok {
		c.mu.RUnlock()
		return img, nil
	}
	c.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.images[path] = img
	c.mu.Unlock()

	return img, nil
}

// Clear removes all images from the cache.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]image.Image)
	c.mu.Unlock()
}

// Evict removes a specific image from the cache by its path.
func (c *ImageCache) Evict(path string) {
	c.mu.Lock()
	delete(c.images, path)
	c.mu.Unlock()
}

// ImageInfo describes an uploaded photo without decoding its pixels.
type ImageInfo struct {
	// Width and Height are the stored dimensions, before EXIF orientation.
	Width  int `json:"width"`
	Height int `json:"height"`

	// Format is the decoder name reported by the image package ("jpeg",
	// "png", "webp", ...).
	Format string `json:"format"`

	// SizeBytes is the encoded size of the photo.
	SizeBytes int `json:"size_bytes"`
}

// Inspect reads the header of an encoded photo.
func Inspect(data []byte) (*ImageInfo, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to read image header: %w", err)
	}
	return &ImageInfo{
		Width:     cfg.Width,
		Height:    cfg.Height,
		Format:    format,
		SizeBytes: len(data),
	}, nil
}
