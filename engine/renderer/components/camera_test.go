package components

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestCameraDefaultView(t *testing.T) {
	c := NewCamera()
	if !c.View().ApproxEqual(mgl32.Ident4()) {
		t.Errorf("default view %v", c.View())
	}
	if f := c.Forward(); !f.ApproxEqual(mgl32.Vec3{0, 0, -1}) {
		t.Errorf("forward %v, want -Z", f)
	}
	if r := c.Right(); !r.ApproxEqual(mgl32.Vec3{1, 0, 0}) {
		t.Errorf("right %v, want +X", r)
	}
}

func TestCameraMovement(t *testing.T) {
	tests := []struct {
		name string
		move func(c *Camera)
		want mgl32.Vec3
	}{
		{"forward", func(c *Camera) { c.MoveForward(2) }, mgl32.Vec3{0, 0, -2}},
		{"backward", func(c *Camera) { c.MoveBackward(2) }, mgl32.Vec3{0, 0, 2}},
		{"left", func(c *Camera) { c.MoveLeft(1) }, mgl32.Vec3{-1, 0, 0}},
		{"right", func(c *Camera) { c.MoveRight(1) }, mgl32.Vec3{1, 0, 0}},
		{"up", func(c *Camera) { c.MoveUp(3) }, mgl32.Vec3{0, 3, 0}},
		{"down", func(c *Camera) { c.MoveDown(3) }, mgl32.Vec3{0, -3, 0}},
	}
	for _, tt := range tests {
		c := NewCamera()
		tt.move(c)
		if !c.Position().ApproxEqualThreshold(tt.want, 1e-5) {
			t.Errorf("%s: position %v, want %v", tt.name, c.Position(), tt.want)
		}
	}
}

func TestCameraViewInvertsTransform(t *testing.T) {
	c := NewCamera()
	c.SetPosition(mgl32.Vec3{1, 2, 3})
	c.Yaw(0.5)
	p := c.View().Mul4x1(c.Position().Vec4(1))
	if !p.Vec3().ApproxEqualThreshold(mgl32.Vec3{}, 1e-5) {
		t.Errorf("camera origin maps to %v in view space", p)
	}
}

func TestCameraPitchClamped(t *testing.T) {
	c := NewCamera()
	c.Pitch(10)
	limit := mgl32.DegToRad(89)
	if got := c.EulerRotation()[0]; got > limit+1e-5 {
		t.Errorf("pitch %v above %v", got, limit)
	}
	c.Pitch(-20)
	if got := c.EulerRotation()[0]; got < -limit-1e-5 {
		t.Errorf("pitch %v below %v", got, -limit)
	}
}

func TestCameraProjectionFlipsY(t *testing.T) {
	c := NewCamera()
	p := c.Projection(16.0 / 9.0)
	if p[5] >= 0 {
		t.Errorf("projection y scale %v, want negative", p[5])
	}
}
