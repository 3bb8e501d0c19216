package graph

import (
	"errors"
	"fmt"
	"sync"
)

var ErrFrameSlotBusy = errors.New("frame slot busy")

// FrameGuard tracks which frame slots may be written by the CPU. A slot is
// busy from its submit until its fence has been waited on again.
type FrameGuard struct {
	mu      sync.Mutex
	pending []bool
}

func NewFrameGuard(frames int) *FrameGuard {
	return &FrameGuard{pending: make([]bool, frames)}
}

func (g *FrameGuard) MarkSubmitted(frame int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending[frame] = true
}

func (g *FrameGuard) MarkWaited(frame int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending[frame] = false
}

// MarkAllWaited clears every slot, after the device went idle.
func (g *FrameGuard) MarkAllWaited() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.pending {
		g.pending[i] = false
	}
}

func (g *FrameGuard) CanWrite(frame int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if frame < 0 || frame >= len(g.pending) {
		return fmt.Errorf("frame %d out of range", frame)
	}
	if g.pending[frame] {
		return fmt.Errorf("%w: frame %d submitted and not waited on", ErrFrameSlotBusy, frame)
	}
	return nil
}
