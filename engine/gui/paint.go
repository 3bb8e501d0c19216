package gui

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Painter turns a laid out frame into overlay quads. Images maps document
// image indices to bindless texture indices; untextured quads sample the
// null texture, which is white.
type Painter struct {
	doc    *Document
	fonts  []*Font
	images []uint32
	null   uint32
}

func NewPainter(doc *Document, fonts []*Font, images []uint32, null uint32) (*Painter, error) {
	if len(fonts) != len(doc.Fonts) {
		return nil, fmt.Errorf("document has %d fonts, got %d", len(doc.Fonts), len(fonts))
	}
	if len(images) != len(doc.Images) {
		return nil, fmt.Errorf("document has %d images, got %d textures", len(doc.Images), len(images))
	}
	return &Painter{doc: doc, fonts: fonts, images: images, null: null}, nil
}

// Paint appends the quads of every visible node in drawing order: a node's
// quad, then its text, then its children.
func (p *Painter) Paint(f *Frame, list *DrawList) {
	for _, placed := range f.Nodes {
		n := &p.doc.Nodes[placed.Node]
		if n.Quad != nil {
			q := &p.doc.Quads[*n.Quad]
			tex := p.null
			if q.Image != nil {
				tex = p.images[*q.Image]
			}
			list.Add(Quad{
				Min:     placed.Rect.Min,
				Max:     placed.Rect.Max,
				UVMin:   mgl32.Vec2{0, 1},
				UVMax:   mgl32.Vec2{1, 0},
				Color:   q.Color,
				Texture: tex,
			})
		}
		if n.Text != nil {
			t := &p.doc.Texts[*n.Text]
			appendText(list, p.fonts[t.Font], t, placed.Rect)
		}
	}
}
