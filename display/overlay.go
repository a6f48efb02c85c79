//go:build !headless

package display

import (
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/text"
	"golang.org/x/image/font/basicfont"
)

const overlayLineHeight = 15

// Overlay is a status bar along the bottom of the screen listing the
// inserted disks. F12 toggles it.
type Overlay struct {
	visible bool
}

func NewOverlay(visible bool) *Overlay {
	return &Overlay{visible: visible}
}

func (o *Overlay) Toggle() {
	o.visible = !o.visible
}

func (o *Overlay) Visible() bool {
	return o.visible
}

func (o *Overlay) Draw(screen *ebiten.Image, lines []string) {
	if !o.visible || len(lines) == 0 {
		return
	}
	face := basicfont.Face7x13
	bounds := screen.Bounds()
	barHeight := len(lines)*overlayLineHeight + 4
	y := bounds.Dy() - barHeight
	ebitenutil.DrawRect(screen, 0, float64(y), float64(bounds.Dx()), float64(barHeight), color.RGBA{0, 0, 0, 180})
	for i, line := range lines {
		text.Draw(screen, line, face, 6, y+(i+1)*overlayLineHeight-2, color.RGBA{190, 190, 190, 255})
	}
}
