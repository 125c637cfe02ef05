package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var ErrEmptyImagePath = errors.New("render: empty image path")

// OpenFunc reads the raw bytes of an image path.
type OpenFunc func(path string) ([]byte, error)

// OpenFile tries path as given, then under catalogs/ and assets/.
func OpenFile(path string) ([]byte, error) {
	tried := []string{path, filepath.Join("catalogs", path), filepath.Join("assets", path)}
	for _, p := range tried {
		if b, err := os.ReadFile(p); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("render: image %s: %w", path, os.ErrNotExist)
}

type imageEntry struct {
	done    chan struct{}
	decoded image.Image
	err     error
	img     *ebiten.Image
}

// ImageCache decodes background images on goroutines. Draw code asks for an
// image every frame and gets nothing until the decode has landed; the GPU
// image is created on first use from the frame loop.
type ImageCache struct {
	open OpenFunc

	mu      sync.Mutex
	entries map[string]*imageEntry
}

func NewImageCache(open OpenFunc) *ImageCache {
	if open == nil {
		open = OpenFile
	}
	return &ImageCache{open: open, entries: make(map[string]*imageEntry)}
}

// Request starts loading path if it is not already loading or loaded.
func (c *ImageCache) Request(path string) {
	c.entry(path)
}

func (c *ImageCache) entry(path string) *imageEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[path]; ok {
		return e
	}
	e := &imageEntry{done: make(chan struct{})}
	c.entries[path] = e
	if path == "" {
		e.err = ErrEmptyImagePath
		close(e.done)
		return e
	}
	go func() {
		defer close(e.done)
		b, err := c.open(path)
		if err != nil {
			e.err = err
			log.Printf("render: load %s: %v", path, err)
			return
		}
		img, _, err := image.Decode(bytes.NewReader(b))
		if err != nil {
			e.err = fmt.Errorf("render: decode %s: %w", path, err)
			log.Printf("%v", e.err)
			return
		}
		e.decoded = img
	}()
	return e
}

// Wait blocks until path has loaded or failed, or ctx is done.
func (c *ImageCache) Wait(ctx context.Context, path string) error {
	e := c.entry(path)
	select {
	case <-e.done:
		return e.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Decoded returns the decoded image once loading has finished successfully.
func (c *ImageCache) Decoded(path string) (image.Image, bool) {
	c.mu.Lock()
	e, ok := c.entries[path]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-e.done:
		return e.decoded, e.err == nil
	default:
		return nil, false
	}
}

// Image returns the GPU image for path, requesting the load if needed. It
// must be called from the frame loop.
func (c *ImageCache) Image(path string) (*ebiten.Image, bool) {
	e := c.entry(path)
	select {
	case <-e.done:
	default:
		return nil, false
	}
	if e.err != nil {
		return nil, false
	}
	if e.img == nil {
		e.img = ebiten.NewImageFromImage(e.decoded)
	}
	return e.img, true
}

// Forget drops path so the next request reloads it.
func (c *ImageCache) Forget(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, path)
}
