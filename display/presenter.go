//go:build !headless

package display

import (
	"fmt"

	"github.com/hajimehoshi/ebiten/v2"
)

const (
	RendererBlit   = "blit"
	RendererShader = "shader"
)

// Presenter draws the current frame onto the screen. The blit and shader
// implementations are interchangeable and both consume the composed frame.
type Presenter interface {
	Present(screen *ebiten.Image, frame *Frame)
}

// NewPresenter returns the presenter named by renderer. An empty name
// selects the blit path.
func NewPresenter(renderer string, width, height int) (Presenter, error) {
	switch renderer {
	case "", RendererBlit:
		return NewBlitPresenter(width, height), nil
	case RendererShader:
		return NewShaderPresenter(width, height)
	default:
		return nil, fmt.Errorf("unknown renderer %q", renderer)
	}
}

// BlitPresenter uploads the frame into an image and draws it directly.
type BlitPresenter struct {
	image *ebiten.Image
}

func NewBlitPresenter(width, height int) *BlitPresenter {
	return &BlitPresenter{image: ebiten.NewImage(width, height)}
}

func (p *BlitPresenter) Present(screen *ebiten.Image, frame *Frame) {
	frame.Read(func(pixels []byte, _ uint64) {
		p.image.WritePixels(pixels)
	})
	screen.DrawImage(p.image, nil)
}
