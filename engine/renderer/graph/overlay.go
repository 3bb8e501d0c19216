package graph

import (
	"encoding/binary"
	"fmt"
	gomath "math"

	"github.com/spaghettifunk/lumen/engine/gui"
	"github.com/spaghettifunk/lumen/engine/world"
)

// overlayQuadStride is the std430 size of one GUI quad: rect, uv rect,
// color and texture index padded to a vec4.
const overlayQuadStride = 64

func packQuad(b []byte, q gui.Quad) []byte {
	f := func(vs ...float32) {
		for _, v := range vs {
			b = binary.LittleEndian.AppendUint32(b, gomath.Float32bits(v))
		}
	}
	f(q.Min[0], q.Min[1], q.Max[0], q.Max[1])
	f(q.UVMin[0], q.UVMin[1], q.UVMax[0], q.UVMax[1])
	f(q.Color[:]...)
	b = binary.LittleEndian.AppendUint32(b, q.Texture)
	return append(b, make([]byte, 12)...)
}

// writeOverlay uploads the frame's GUI quads and returns how many to draw.
func (r *SceneRenderer) writeOverlay(frame int, list *gui.DrawList) (int, error) {
	n := list.Len()
	if n == 0 {
		return 0, nil
	}
	if n > r.cfg.GUI.MaxQuads {
		return 0, fmt.Errorf("gui: %w: %d quads, capacity %d", world.ErrCapacityExceeded, n, r.cfg.GUI.MaxQuads)
	}
	if err := r.guard.CanWrite(frame); err != nil {
		return 0, fmt.Errorf("gui quads: %w", err)
	}
	data := make([]byte, 0, n*overlayQuadStride)
	for _, q := range list.Quads {
		data = packQuad(data, q)
	}
	if err := r.overlay[frame].Write(0, data); err != nil {
		return 0, err
	}
	return n, nil
}
