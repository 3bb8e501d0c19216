package pass

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/resources"
)

var ErrUnknownPass = errors.New("unknown pass")

// Registry owns every Pass of a renderer. Passes refer to each other by ID,
// and an alias may only name a pass created before it, so a producer always
// outlives its consumers.
type Registry struct {
	dev     gpu.Device
	tracker *resources.LayoutTracker
	passes  []*Pass
}

func NewRegistry(dev gpu.Device, tracker *resources.LayoutTracker) *Registry {
	return &Registry{dev: dev, tracker: tracker}
}

func (r *Registry) Create(spec Spec) (*Pass, error) {
	id := ID(len(r.passes))
	p, err := newPass(r.dev, r, r.tracker, id, spec)
	if err != nil {
		return nil, err
	}
	r.passes = append(r.passes, p)
	return p, nil
}

func (r *Registry) Get(id ID) (*Pass, error) {
	if id < 0 || int(id) >= len(r.passes) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPass, id)
	}
	p := r.passes[id]
	if p.destroyed {
		return nil, fmt.Errorf("%w: %q", ErrDestroyed, p.Name)
	}
	return p, nil
}

func (r *Registry) Len() int {
	return len(r.passes)
}

func (r *Registry) Tracker() *resources.LayoutTracker {
	return r.tracker
}

// Destroy tears passes down in reverse creation order.
func (r *Registry) Destroy() {
	for i := len(r.passes) - 1; i >= 0; i-- {
		r.passes[i].Destroy()
	}
	r.passes = nil
}
