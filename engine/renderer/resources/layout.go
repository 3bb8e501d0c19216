package resources

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

var ErrLayoutMismatch = errors.New("image layout mismatch")

// LayoutTracker remembers the layout each tracked image is expected to be in
// at the current point of command recording. Aliased textures share an
// image and therefore share an entry. A nil tracker accepts everything.
type LayoutTracker struct {
	layouts map[gpu.Image]gpu.ImageLayout
	names   map[gpu.Image]string
}

func NewLayoutTracker() *LayoutTracker {
	return &LayoutTracker{
		layouts: make(map[gpu.Image]gpu.ImageLayout),
		names:   make(map[gpu.Image]string),
	}
}

// Track starts following t, assumed to be in layout.
func (lt *LayoutTracker) Track(t *Texture, layout gpu.ImageLayout) {
	if lt == nil {
		return
	}
	lt.layouts[t.Image] = layout
	lt.names[t.Image] = t.Name
}

func (lt *LayoutTracker) Forget(t *Texture) {
	if lt == nil {
		return
	}
	delete(lt.layouts, t.Image)
	delete(lt.names, t.Image)
}

// Set records a transition of a tracked image. Untracked images are ignored.
func (lt *LayoutTracker) Set(img gpu.Image, layout gpu.ImageLayout) {
	if lt == nil {
		return
	}
	if _, ok := lt.layouts[img]; ok {
		lt.layouts[img] = layout
	}
}

func (lt *LayoutTracker) Layout(img gpu.Image) (gpu.ImageLayout, bool) {
	if lt == nil {
		return gpu.ImageLayoutUndefined, false
	}
	l, ok := lt.layouts[img]
	return l, ok
}

// Expect fails with ErrLayoutMismatch when a tracked image is not in layout.
func (lt *LayoutTracker) Expect(img gpu.Image, layout gpu.ImageLayout, op string) error {
	if lt == nil {
		return nil
	}
	cur, ok := lt.layouts[img]
	if !ok || cur == layout {
		return nil
	}
	return fmt.Errorf("%w: %s uses %q in %s, expected %s", ErrLayoutMismatch, op, lt.names[img], cur, layout)
}
