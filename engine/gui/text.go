package gui

import (
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// lineWidth is the advance of one line at scale one, kerning included.
func lineWidth(f *Font, line string) float32 {
	var w float32
	prev := rune(-1)
	for _, r := range line {
		if r == '\t' {
			w += f.TabAdvance
			prev = -1
			continue
		}
		g, ok := f.Glyph(r)
		if !ok {
			continue
		}
		if prev >= 0 {
			w += float32(f.Kern(prev, r))
		}
		w += float32(g.XAdvance)
		prev = r
	}
	return w
}

// appendText lays t out from the top of rect downward, one quad per glyph.
// Lines are aligned within the rect's width; nothing is clipped.
func appendText(list *DrawList, f *Font, t *TextContent, rect Rect) {
	scale := float32(1)
	if t.Size > 0 && f.Size > 0 {
		scale = t.Size / f.Size
	}
	atlasW, atlasH := float32(f.Atlas.Rect.Dx()), float32(f.Atlas.Rect.Dy())
	top := rect.Max[1]

	for _, line := range strings.Split(t.Text, "\n") {
		x := rect.Min[0]
		switch t.Align {
		case AlignCenter:
			x += (rect.Size()[0] - lineWidth(f, line)*scale) / 2
		case AlignRight:
			x = rect.Max[0] - lineWidth(f, line)*scale
		}

		prev := rune(-1)
		for _, r := range line {
			if r == '\t' {
				x += f.TabAdvance * scale
				prev = -1
				continue
			}
			g, ok := f.Glyph(r)
			if !ok {
				continue
			}
			if prev >= 0 {
				x += float32(f.Kern(prev, r)) * scale
			}
			prev = r
			if g.Width > 0 && g.Height > 0 {
				gx := x + float32(g.XOffset)*scale
				gTop := top - float32(g.YOffset)*scale
				list.Add(Quad{
					Min: mgl32.Vec2{gx, gTop - float32(g.Height)*scale},
					Max: mgl32.Vec2{gx + float32(g.Width)*scale, gTop},
					// Atlas rows run downward, so v flips against screen y.
					UVMin:   mgl32.Vec2{float32(g.X) / atlasW, float32(g.Y+g.Height) / atlasH},
					UVMax:   mgl32.Vec2{float32(g.X+g.Width) / atlasW, float32(g.Y) / atlasH},
					Color:   t.Color,
					Texture: f.Texture,
				})
			}
			x += float32(g.XAdvance) * scale
		}
		top -= f.LineHeight * scale
	}
}
