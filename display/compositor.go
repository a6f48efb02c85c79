// Package display turns the guest's pixel buffer into a host image and
// presents it.
//
// The guest renders at half the host's vertical resolution. Every source row
// is shown twice, so destination pixel (i, j) is source pixel (i, j>>1).
// Pixels are copied as opaque 32-bit units; whatever channel order the guest
// wrote is what the presenter receives.
package display

import (
	"errors"
	"fmt"
)

// BytesPerPixel is the size of one opaque guest pixel.
const BytesPerPixel = 4

var ErrShortBuffer = errors.New("buffer too small for frame")

type Compositor struct {
	width  int
	height int
}

func NewCompositor(width, height int) (*Compositor, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid display size %dx%d", width, height)
	}
	return &Compositor{width: width, height: height}, nil
}

func (c *Compositor) Width() int  { return c.width }
func (c *Compositor) Height() int { return c.height }

// SourceRows is the number of guest rows one destination frame reads.
func (c *Compositor) SourceRows() int {
	return (c.height + 1) / 2
}

// SourceLen is the number of bytes a guest pixel buffer must provide.
func (c *Compositor) SourceLen() uint32 {
	return uint32(c.width * c.SourceRows() * BytesPerPixel)
}

// DestLen is the size of a composed host frame.
func (c *Compositor) DestLen() int {
	return c.width * c.height * BytesPerPixel
}

// Compose fills dst from src, duplicating each source row.
func (c *Compositor) Compose(src, dst []byte) error {
	if len(src) < int(c.SourceLen()) {
		return fmt.Errorf("source has %d bytes, need %d: %w", len(src), c.SourceLen(), ErrShortBuffer)
	}
	if len(dst) < c.DestLen() {
		return fmt.Errorf("destination has %d bytes, need %d: %w", len(dst), c.DestLen(), ErrShortBuffer)
	}
	stride := c.width * BytesPerPixel
	for j := 0; j < c.height; j++ {
		from := (j >> 1) * stride
		copy(dst[j*stride:(j+1)*stride], src[from:from+stride])
	}
	return nil
}
