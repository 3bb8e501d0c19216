// Package uniforms builds the byte blocks the shaders read: uniform buffers
// in std140 layout and push constant blocks.
package uniforms

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	lmath "github.com/spaghettifunk/lumen/engine/math"
)

// Writer appends std140 aligned values. A vec3 is aligned like a vec4 but
// only 12 bytes long, so a following scalar fills its fourth component.
// Arrays of scalars are written as vec4 arrays by the callers.
type Writer struct {
	buf []byte
}

func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

func (w *Writer) align(n int) {
	end := int(lmath.AlignUp(uint(len(w.buf)), uint(n)))
	w.buf = append(w.buf, make([]byte, end-len(w.buf))...)
}

func (w *Writer) Float(v float32) *Writer {
	w.align(4)
	w.buf = binary.LittleEndian.AppendUint32(w.buf, math.Float32bits(v))
	return w
}

func (w *Writer) Uint(v uint32) *Writer {
	w.align(4)
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
	return w
}

func (w *Writer) Int(v int32) *Writer {
	return w.Uint(uint32(v))
}

func (w *Writer) Vec2(v mgl32.Vec2) *Writer {
	w.align(8)
	for _, c := range v {
		w.Float(c)
	}
	return w
}

func (w *Writer) Vec3(v mgl32.Vec3) *Writer {
	w.align(16)
	for _, c := range v {
		w.Float(c)
	}
	return w
}

func (w *Writer) Vec4(v mgl32.Vec4) *Writer {
	w.align(16)
	for _, c := range v {
		w.Float(c)
	}
	return w
}

// Mat4 writes column major.
func (w *Writer) Mat4(m mgl32.Mat4) *Writer {
	w.align(16)
	for _, c := range m {
		w.Float(c)
	}
	return w
}

// Pad aligns the block to 16 bytes, the size granularity of std140 structs.
func (w *Writer) Pad() *Writer {
	w.align(16)
	return w
}

func (w *Writer) Len() int {
	return len(w.buf)
}

func (w *Writer) Bytes() []byte {
	return w.buf
}
