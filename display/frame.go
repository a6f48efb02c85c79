package display

import (
	"image"
	"sync"
)

// Frame holds the most recently composed image. The guest writes it from the
// scheduler goroutine and the presenter reads it from the draw callback.
type Frame struct {
	comp *Compositor

	mu     sync.RWMutex
	pixels []byte
	count  uint64
}

func NewFrame(comp *Compositor) *Frame {
	return &Frame{
		comp:   comp,
		pixels: make([]byte, comp.DestLen()),
	}
}

func (f *Frame) Width() int  { return f.comp.Width() }
func (f *Frame) Height() int { return f.comp.Height() }

// SourceLen reports how many bytes ShowFrame reads from guest memory.
func (f *Frame) SourceLen() uint32 {
	return f.comp.SourceLen()
}

// ShowFrame composes src into the held image. src is not retained.
func (f *Frame) ShowFrame(src []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.comp.Compose(src, f.pixels); err != nil {
		return err
	}
	f.count++
	return nil
}

// Read calls fn with the current pixels under the read lock. fn must not
// retain pixels.
func (f *Frame) Read(fn func(pixels []byte, count uint64)) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	fn(f.pixels, f.count)
}

// Count is the number of frames composed so far.
func (f *Frame) Count() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.count
}

// Image copies the current pixels into an RGBA image.
func (f *Frame) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width(), f.Height()))
	f.Read(func(pixels []byte, _ uint64) {
		copy(img.Pix, pixels)
	})
	return img
}
