package gui

import "github.com/go-gl/mathgl/mgl32"

// Quad is one textured rectangle in screen pixels, y pointing up.
type Quad struct {
	Min   mgl32.Vec2
	Max   mgl32.Vec2
	UVMin mgl32.Vec2
	UVMax mgl32.Vec2
	Color mgl32.Vec4
	// Texture is a bindless table index.
	Texture uint32
}

// DrawList collects the quads of one frame in drawing order.
type DrawList struct {
	Quads []Quad
}

func (d *DrawList) Reset() {
	d.Quads = d.Quads[:0]
}

func (d *DrawList) Add(q Quad) {
	d.Quads = append(d.Quads, q)
}

func (d *DrawList) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Quads)
}
