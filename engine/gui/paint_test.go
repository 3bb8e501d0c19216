package gui

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestPaint(t *testing.T) {
	f := goRegular(t)
	f.Texture = 7
	doc, err := Parse([]byte(`{
		"fonts": [{"path": "go.ttf", "size": 16}],
		"images": ["panel.png"],
		"texts": [{"text": "AV", "font": 0, "color": [0, 0, 0, 1]}],
		"quads": [{"color": [0.5, 0.5, 0.5, 1]}, {"image": 0}],
		"guis": [[0]],
		"nodes": [
			{"name": "background", "quad": 0, "children": [1]},
			{"name": "label", "quad": 1, "text": 0, "scale": [0.5, 0.5]}
		]
	}`))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewPainter(doc, nil, []uint32{3}, 0); err == nil {
		t.Error("painter accepted a missing font")
	}
	if _, err := NewPainter(doc, []*Font{f}, nil, 0); err == nil {
		t.Error("painter accepted a missing image")
	}
	p, err := NewPainter(doc, []*Font{f}, []uint32{3}, 1)
	if err != nil {
		t.Fatal(err)
	}
	frame, err := doc.Layout(0, mgl32.Vec2{400, 200})
	if err != nil {
		t.Fatal(err)
	}

	var list DrawList
	p.Paint(frame, &list)
	if list.Len() != 4 {
		t.Fatalf("%d quads, want background, label and two glyphs", list.Len())
	}
	bg, label := list.Quads[0], list.Quads[1]
	if bg.Texture != 1 || bg.Color != (mgl32.Vec4{0.5, 0.5, 0.5, 1}) {
		t.Errorf("background %+v, want the null texture", bg)
	}
	if bg.Min != (mgl32.Vec2{0, 0}) || bg.Max != (mgl32.Vec2{400, 200}) {
		t.Errorf("background rect %v-%v", bg.Min, bg.Max)
	}
	if label.Texture != 3 || label.Color != (mgl32.Vec4{1, 1, 1, 1}) {
		t.Errorf("label %+v, want the image texture in white", label)
	}
	if label.UVMin != (mgl32.Vec2{0, 1}) || label.UVMax != (mgl32.Vec2{1, 0}) {
		t.Errorf("label uv %v-%v", label.UVMin, label.UVMax)
	}
	for _, g := range list.Quads[2:] {
		if g.Texture != 7 || g.Color != (mgl32.Vec4{0, 0, 0, 1}) {
			t.Errorf("glyph %+v, want the font texture in black", g)
		}
		if g.Max[1] > label.Max[1] {
			t.Errorf("glyph %v-%v rises above the label %v-%v", g.Min, g.Max, label.Min, label.Max)
		}
	}
}
