package gui

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/lumen/engine/containers"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/scripting"
)

// Pointer is the pointer state of one frame in GUI space, y pointing up.
type Pointer struct {
	Position mgl32.Vec2
	Left     bool
	Right    bool
}

// PointerFromInput converts the window input, whose y points down, for a
// viewport of the given height.
func PointerFromInput(in *core.Input, height float32) Pointer {
	x, y := in.MousePosition()
	return Pointer{
		Position: mgl32.Vec2{x, height - y},
		Left:     in.IsButtonDown(core.BUTTON_LEFT),
		Right:    in.IsButtonDown(core.BUTTON_RIGHT),
	}
}

type Event string

const (
	EventPassive   Event = "passive"
	EventHover     Event = "hover"
	EventUnhover   Event = "unhover"
	EventLeftTap   Event = "left_tap"
	EventLeftHold  Event = "left_hold"
	EventRightTap  Event = "right_tap"
	EventRightHold Event = "right_hold"
)

func (i *Interactable) forEvent(e Event) []Action {
	switch e {
	case EventPassive:
		return i.Passive
	case EventHover:
		return i.Hover
	case EventUnhover:
		return i.Unhover
	case EventLeftTap:
		return i.LeftTap
	case EventLeftHold:
		return i.LeftHold
	case EventRightTap:
		return i.RightTap
	case EventRightHold:
		return i.RightHold
	}
	return nil
}

type button int

const (
	buttonNone button = iota
	buttonLeft
	buttonRight
)

func (b button) down(p Pointer) bool {
	switch b {
	case buttonLeft:
		return p.Left
	case buttonRight:
		return p.Right
	}
	return false
}

func (b button) events() (tap, hold Event) {
	if b == buttonRight {
		return EventRightTap, EventRightHold
	}
	return EventLeftTap, EventLeftHold
}

type dispatch struct {
	node  int
	event Event
}

// Interaction replays a frame's interactables against the pointer. A single
// node at a time can hold the capture: from the press of a button over it
// until that button's release, no other node is hovered or tapped.
type Interaction struct {
	doc   *Document
	host  scripting.Host
	queue *containers.RingQueue[dispatch]

	hovered  map[int]bool
	captured int
	button   button
	previous Pointer
	frame    uint64
}

// NewInteraction dispatches to host. maxDispatch bounds the node events of
// one frame; further events are dropped with a warning.
func NewInteraction(doc *Document, host scripting.Host, maxDispatch int) *Interaction {
	return &Interaction{
		doc:      doc,
		host:     host,
		queue:    containers.NewRingQueue[dispatch](maxDispatch),
		hovered:  make(map[int]bool),
		captured: -1,
	}
}

// Captured returns the node holding the capture, or -1.
func (in *Interaction) Captured() int {
	return in.captured
}

func (in *Interaction) push(node int, e Event) {
	if len(in.doc.Nodes[node].Interactable.forEvent(e)) == 0 {
		return
	}
	if err := in.queue.Enqueue(dispatch{node, e}); errors.Is(err, containers.ErrQueueFull) {
		core.LogWarn("gui: %s of node %d dropped, dispatch queue full", e, node)
	}
}

// Update advances the interaction state for one frame and runs the
// resulting callbacks. The first failing callback is logged and returned,
// and the remaining callbacks of the frame are skipped; the state still
// advances.
func (in *Interaction) Update(f *Frame, p Pointer) error {
	in.frame++
	prev := in.previous
	in.previous = p

	for _, it := range f.Interactables {
		in.push(it.Node, EventPassive)
	}

	// Topmost hit: the last drawn interactable under the pointer.
	top := -1
	rects := make(map[int]Rect, len(f.Interactables))
	for i := len(f.Interactables) - 1; i >= 0; i-- {
		it := f.Interactables[i]
		rects[it.Node] = it.Rect
		if top < 0 && it.Rect.Contains(p.Position) {
			top = it.Node
		}
	}

	hover := top
	if in.captured >= 0 {
		// The capture outlives a node that disappeared from the frame; it is
		// released without a tap.
		r, visible := rects[in.captured]
		inside := visible && r.Contains(p.Position)
		hover = -1
		if inside {
			hover = in.captured
		}
		tap, hold := in.button.events()
		if in.button.down(p) && visible {
			in.push(in.captured, hold)
		} else {
			if inside {
				in.push(in.captured, tap)
			}
			in.captured, in.button = -1, buttonNone
		}
	} else if top >= 0 {
		switch {
		case p.Left && !prev.Left:
			in.captured, in.button = top, buttonLeft
		case p.Right && !prev.Right:
			in.captured, in.button = top, buttonRight
		}
		if in.captured >= 0 {
			_, hold := in.button.events()
			in.push(in.captured, hold)
		}
	}

	for node := range in.hovered {
		if node != hover {
			delete(in.hovered, node)
			in.push(node, EventUnhover)
		}
	}
	if hover >= 0 {
		in.hovered[hover] = true
		in.push(hover, EventHover)
	}

	return in.drain(p)
}

func (in *Interaction) drain(p Pointer) error {
	var failed error
	for !in.queue.IsEmpty() {
		d, _ := in.queue.Dequeue()
		if failed != nil {
			continue
		}
		n := &in.doc.Nodes[d.node]
		ctx := scripting.CallContext{
			Node:     d.node,
			NodeName: n.Name,
			Event:    string(d.event),
			Pointer:  p.Position,
			Frame:    in.frame,
		}
		for _, a := range n.Interactable.forEvent(d.event) {
			if err := in.host.Call(a.Script, a.Method, ctx); err != nil {
				failed = fmt.Errorf("gui node %d (%s) %s: %w", d.node, n.Name, d.event, err)
				core.LogError("%v; skipping the remaining callbacks of this frame", failed)
				break
			}
		}
	}
	return failed
}
