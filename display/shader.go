//go:build !headless

package display

import (
	"fmt"

	"github.com/hajimehoshi/ebiten/v2"
)

// textureShader samples the uploaded frame 1:1.
const textureShader = `//kage:unit pixels

package main

func Fragment(dstPos vec4, srcPos vec2, color vec4) vec4 {
	return imageSrc0At(srcPos)
}
`

// ShaderPresenter uploads the frame as a texture and draws it with two
// triangles covering the viewport.
type ShaderPresenter struct {
	texture  *ebiten.Image
	shader   *ebiten.Shader
	vertices []ebiten.Vertex
	indices  []uint16
}

// NewShaderPresenter compiles the texture shader. A compile failure means
// the session cannot start.
func NewShaderPresenter(width, height int) (*ShaderPresenter, error) {
	shader, err := ebiten.NewShader([]byte(textureShader))
	if err != nil {
		return nil, fmt.Errorf("failed to compile display shader: %w", err)
	}
	w, h := float32(width), float32(height)
	corner := func(x, y float32) ebiten.Vertex {
		return ebiten.Vertex{
			DstX: x, DstY: y,
			SrcX: x, SrcY: y,
			ColorR: 1, ColorG: 1, ColorB: 1, ColorA: 1,
		}
	}
	return &ShaderPresenter{
		texture: ebiten.NewImage(width, height),
		shader:  shader,
		vertices: []ebiten.Vertex{
			corner(0, 0),
			corner(w, 0),
			corner(0, h),
			corner(w, h),
		},
		indices: []uint16{0, 1, 2, 1, 3, 2},
	}, nil
}

func (p *ShaderPresenter) Present(screen *ebiten.Image, frame *Frame) {
	frame.Read(func(pixels []byte, _ uint64) {
		p.texture.WritePixels(pixels)
	})
	op := &ebiten.DrawTrianglesShaderOptions{}
	op.Images[0] = p.texture
	screen.DrawTrianglesShader(p.vertices, p.indices, p.shader, op)
}
