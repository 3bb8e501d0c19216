package gui

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

type Anchor string

const (
	AnchorTopLeft     Anchor = "top_left"
	AnchorTop         Anchor = "top"
	AnchorTopRight    Anchor = "top_right"
	AnchorLeft        Anchor = "left"
	AnchorCenter      Anchor = "center"
	AnchorRight       Anchor = "right"
	AnchorBottomLeft  Anchor = "bottom_left"
	AnchorBottom      Anchor = "bottom"
	AnchorBottomRight Anchor = "bottom_right"
)

// y points up, so top anchors have a factor of one.
var anchorFactors = map[Anchor]mgl32.Vec2{
	AnchorTopLeft:     {0, 1},
	AnchorTop:         {0.5, 1},
	AnchorTopRight:    {1, 1},
	AnchorLeft:        {0, 0.5},
	AnchorCenter:      {0.5, 0.5},
	AnchorRight:       {1, 0.5},
	AnchorBottomLeft:  {0, 0},
	AnchorBottom:      {0.5, 0},
	AnchorBottomRight: {1, 0},
}

// Factor is the pivot of the anchor as a fraction of the parent size.
func (a Anchor) Factor() mgl32.Vec2 {
	return anchorFactors[a]
}

// Rect is a screen rectangle in pixels, origin bottom left.
type Rect struct {
	Min mgl32.Vec2
	Max mgl32.Vec2
}

func (r Rect) Size() mgl32.Vec2 {
	return r.Max.Sub(r.Min)
}

// Contains is inclusive at Min and exclusive at Max.
func (r Rect) Contains(p mgl32.Vec2) bool {
	return p[0] >= r.Min[0] && p[0] < r.Max[0] && p[1] >= r.Min[1] && p[1] < r.Max[1]
}

// Placed is a node resolved to its screen rect.
type Placed struct {
	Node int
	Rect Rect
}

// Frame is one layout of a GUI: the visible nodes in drawing order and the
// subset carrying interaction behavior, also in drawing order.
type Frame struct {
	Viewport      Rect
	Nodes         []Placed
	Interactables []Placed
}

// Place resolves a child against its parent rect. Per axis the child's size
// is its scale in pixels or as a fraction of the parent, and its position is
// the anchor pivot of the parent plus the offset, less the same pivot of the
// child.
func Place(parent Rect, n *Node) Rect {
	f := n.Anchor.Factor()
	size := parent.Size()
	var lo, hi mgl32.Vec2
	for axis := 0; axis < 2; axis++ {
		scale := n.Scale[axis]
		if !n.AbsoluteScale[axis] {
			scale *= size[axis]
		}
		offset := n.Position[axis]
		if !n.AbsolutePosition[axis] {
			offset *= size[axis]
		}
		lo[axis] = parent.Min[axis] + f[axis]*size[axis] + offset - f[axis]*scale
		hi[axis] = lo[axis] + scale
	}
	return Rect{Min: lo, Max: hi}
}

// Layout resolves screen gui against a viewport of the given size. Hidden
// nodes are skipped with their subtrees.
func (d *Document) Layout(gui int, viewport mgl32.Vec2) (*Frame, error) {
	if gui < 0 || gui >= len(d.GUIs) {
		return nil, fmt.Errorf("gui %d out of range of %d", gui, len(d.GUIs))
	}
	f := &Frame{Viewport: Rect{Max: viewport}}
	for _, root := range d.GUIs[gui] {
		d.place(f, root, f.Viewport)
	}
	return f, nil
}

func (d *Document) place(f *Frame, index int, parent Rect) {
	n := &d.Nodes[index]
	if n.Hidden {
		return
	}
	p := Placed{Node: index, Rect: Place(parent, n)}
	f.Nodes = append(f.Nodes, p)
	if n.Interactable != nil {
		f.Interactables = append(f.Interactables, p)
	}
	for _, c := range n.Children {
		d.place(f, c, p.Rect)
	}
}
