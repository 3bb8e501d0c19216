// Package gui lays out a tree of anchored nodes into screen rectangles,
// turns them into quads for the overlay pass and dispatches pointer
// interaction to script callbacks.
package gui

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl32"
)

var ErrInvalidDocument = errors.New("invalid gui document")

const defaultNodeName = "unnamed node"

// Action names a script method to call.
type Action struct {
	Method string `json:"method"`
	Script int    `json:"script"`
}

// Interactable lists the actions of each interaction event.
type Interactable struct {
	Passive   []Action `json:"passive_actions"`
	Hover     []Action `json:"hover_actions"`
	Unhover   []Action `json:"unhover_actions"`
	LeftTap   []Action `json:"left_tap_actions"`
	LeftHold  []Action `json:"left_hold_actions"`
	RightTap  []Action `json:"right_tap_actions"`
	RightHold []Action `json:"right_hold_actions"`
}

func (i *Interactable) actions() [][]Action {
	return [][]Action{i.Passive, i.Hover, i.Unhover, i.LeftTap, i.LeftHold, i.RightTap, i.RightHold}
}

type Node struct {
	Name         string        `json:"name"`
	Interactable *Interactable `json:"interactable_information"`
	Hidden       bool          `json:"hidden"`
	Children     []int         `json:"children"`
	// Position and Scale are fractions of the parent rect unless the axis is
	// flagged absolute, in which case they are pixels.
	Position         mgl32.Vec2 `json:"position"`
	Scale            mgl32.Vec2 `json:"scale"`
	AbsolutePosition [2]bool    `json:"absolute_position"`
	AbsoluteScale    [2]bool    `json:"absolute_scale"`
	Anchor           Anchor     `json:"anchor_point"`
	Text             *int       `json:"text"`
	Quad             *int       `json:"quad"`
}

func (n *Node) UnmarshalJSON(b []byte) error {
	type plain Node
	p := plain{
		Name:   defaultNodeName,
		Scale:  mgl32.Vec2{1, 1},
		Anchor: AnchorCenter,
	}
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*n = Node(p)
	return nil
}

// FontRef is a bitmap font (.fnt) or a TrueType/OpenType font rasterised at
// Size pixels.
type FontRef struct {
	Path string  `json:"path"`
	Size float64 `json:"size"`
}

type TextAlign string

const (
	AlignLeft   TextAlign = "left"
	AlignCenter TextAlign = "center"
	AlignRight  TextAlign = "right"
)

type TextContent struct {
	Text  string     `json:"text"`
	Font  int        `json:"font"`
	Size  float32    `json:"size"`
	Color mgl32.Vec4 `json:"color"`
	Align TextAlign  `json:"align"`
}

func (t *TextContent) UnmarshalJSON(b []byte) error {
	type plain TextContent
	p := plain{Color: mgl32.Vec4{1, 1, 1, 1}, Align: AlignLeft}
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*t = TextContent(p)
	return nil
}

type QuadContent struct {
	Color mgl32.Vec4 `json:"color"`
	Image *int       `json:"image"`
}

func (q *QuadContent) UnmarshalJSON(b []byte) error {
	type plain QuadContent
	p := plain{Color: mgl32.Vec4{1, 1, 1, 1}}
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*q = QuadContent(p)
	return nil
}

// Document is the flat arena of a GUI description. Nodes reference
// children, texts and quads by index, and each entry of GUIs lists the root
// nodes of one screen.
type Document struct {
	Scripts []string      `json:"scripts"`
	Fonts   []FontRef     `json:"fonts"`
	Images  []string      `json:"images"`
	GUIs    [][]int       `json:"guis"`
	Texts   []TextContent `json:"texts"`
	Quads   []QuadContent `json:"quads"`
	Nodes   []Node        `json:"nodes"`
}

func Parse(data []byte) (*Document, error) {
	doc := &Document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Validate checks every index of the document and that the node graph is a
// forest.
func (d *Document) Validate() error {
	var errs []error
	bad := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidDocument}, args...)...))
	}
	inRange := func(i, n int) bool { return i >= 0 && i < n }

	for g, roots := range d.GUIs {
		for _, r := range roots {
			if !inRange(r, len(d.Nodes)) {
				bad("gui %d root %d out of range", g, r)
			}
		}
	}
	for i, t := range d.Texts {
		if !inRange(t.Font, len(d.Fonts)) {
			bad("text %d font %d out of range", i, t.Font)
		}
		switch t.Align {
		case AlignLeft, AlignCenter, AlignRight:
		default:
			bad("text %d align %q", i, t.Align)
		}
	}
	for i, q := range d.Quads {
		if q.Image != nil && !inRange(*q.Image, len(d.Images)) {
			bad("quad %d image %d out of range", i, *q.Image)
		}
	}

	parent := make([]int, len(d.Nodes))
	for i := range parent {
		parent[i] = -1
	}
	for i, n := range d.Nodes {
		if _, ok := anchorFactors[n.Anchor]; !ok {
			bad("node %d (%s) anchor %q", i, n.Name, n.Anchor)
		}
		for _, c := range n.Children {
			switch {
			case !inRange(c, len(d.Nodes)):
				bad("node %d (%s) child %d out of range", i, n.Name, c)
			case c == i:
				bad("node %d (%s) is its own child", i, n.Name)
			case parent[c] >= 0:
				bad("node %d has parents %d and %d", c, parent[c], i)
			default:
				parent[c] = i
			}
		}
		if n.Text != nil && !inRange(*n.Text, len(d.Texts)) {
			bad("node %d (%s) text %d out of range", i, n.Name, *n.Text)
		}
		if n.Quad != nil && !inRange(*n.Quad, len(d.Quads)) {
			bad("node %d (%s) quad %d out of range", i, n.Name, *n.Quad)
		}
		if n.Interactable != nil {
			for _, actions := range n.Interactable.actions() {
				for _, a := range actions {
					if !inRange(a.Script, len(d.Scripts)) {
						bad("node %d (%s) action %s script %d out of range", i, n.Name, a.Method, a.Script)
					}
				}
			}
		}
	}
	if len(errs) == 0 {
		errs = append(errs, d.checkCycles(parent)...)
	}
	return errors.Join(errs...)
}

// checkCycles walks up from every node; with single parents a walk longer
// than the node count means a cycle.
func (d *Document) checkCycles(parent []int) []error {
	for i := range d.Nodes {
		steps := 0
		for p := parent[i]; p >= 0; p = parent[p] {
			if steps++; steps > len(d.Nodes) {
				return []error{fmt.Errorf("%w: node %d (%s) is part of a cycle", ErrInvalidDocument, i, d.Nodes[i].Name)}
			}
		}
	}
	return nil
}
