package math

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		name            string
		v, low, high, w float32
	}{
		{"below", -1, 0, 1, 0},
		{"inside", 0.5, 0, 1, 0.5},
		{"above", 2, 0, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clamp(tt.v, tt.low, tt.high); got != tt.w {
				t.Errorf("expected %v, got %v", tt.w, got)
			}
		})
	}
	if Clamp(7, 0, 5) != 5 {
		t.Error("integer clamp")
	}
}

func TestAlignUp(t *testing.T) {
	if AlignUp[uint64](65, 16) != 80 || AlignUp[uint64](64, 16) != 64 {
		t.Error("align up")
	}
}

func TestRandomIsSeeded(t *testing.T) {
	a, b := NewRandom(42), NewRandom(42)
	for i := 0; i < 16; i++ {
		x, y := a.Range(-1, 1), b.Range(-1, 1)
		if x != y {
			t.Fatalf("same seed diverged at %d: %v != %v", i, x, y)
		}
		if x < -1 || x >= 1 {
			t.Fatalf("value %v outside range", x)
		}
	}
}

func TestTransformWorld(t *testing.T) {
	parent := TransformFromPosition(mgl32.Vec3{1, 0, 0})
	child := TransformFromPosition(mgl32.Vec3{0, 2, 0})
	child.Parent = parent

	p := child.World().Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	if !p.ApproxEqual(mgl32.Vec4{1, 2, 0, 1}) {
		t.Errorf("unexpected world position %v", p)
	}

	child.SetScale(mgl32.Vec3{2, 2, 2})
	p = child.World().Mul4x1(mgl32.Vec4{1, 0, 0, 1})
	if !p.ApproxEqual(mgl32.Vec4{3, 2, 0, 1}) {
		t.Errorf("scale not applied after change, got %v", p)
	}
}

func TestGenerateTangents(t *testing.T) {
	positions := []mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}
	uvs := []mgl32.Vec2{{0, 0}, {1, 0}, {0, 1}}
	tangents := GenerateTangents(positions, uvs, []uint32{0, 1, 2})
	for i, tg := range tangents {
		if !tg.ApproxEqual(mgl32.Vec4{1, 0, 0, 1}) {
			t.Errorf("vertex %d: expected +X tangent, got %v", i, tg)
		}
	}
	normals := GenerateNormals(positions, []uint32{0, 1, 2})
	if !normals[0].ApproxEqual(mgl32.Vec3{0, 0, 1}) {
		t.Errorf("expected +Z normal, got %v", normals[0])
	}
}

func TestGenerateCube(t *testing.T) {
	m := GenerateCube(2, 4, 6, 1, 1)
	if len(m.Positions) != 24 || len(m.Indices) != 36 || len(m.Tangents) != 24 {
		t.Fatalf("%d vertices, %d indices, %d tangents", len(m.Positions), len(m.Indices), len(m.Tangents))
	}
	lo, hi := Extents(m.Positions)
	if !lo.ApproxEqual(mgl32.Vec3{-1, -2, -3}) || !hi.ApproxEqual(mgl32.Vec3{1, 2, 3}) {
		t.Errorf("extents %v %v", lo, hi)
	}
	// Every triangle winds counter clockwise around its face normal.
	face := GenerateNormals(m.Positions, m.Indices)
	for i := range face {
		if !face[i].ApproxEqual(m.Normals[i]) {
			t.Fatalf("vertex %d: winding normal %v, face normal %v", i, face[i], m.Normals[i])
		}
	}
}
