package components

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine/math"
)

// Camera is a perspective camera driven by a position and Euler rotation
// (pitch, yaw, roll). The view matrix is rebuilt lazily after a change.
type Camera struct {
	position      mgl32.Vec3
	eulerRotation mgl32.Vec3
	isDirty       bool
	view          mgl32.Mat4

	// Vertical field of view in radians.
	FovY float32
	Near float32
	Far  float32
}

const DEFAULT_CAMERA_NAME string = "default"

func NewCamera() *Camera {
	c := &Camera{}
	c.Reset()
	return c
}

func (c *Camera) Reset() {
	c.position = mgl32.Vec3{}
	c.eulerRotation = mgl32.Vec3{}
	c.view = mgl32.Ident4()
	c.isDirty = false
	c.FovY = mgl32.DegToRad(60)
	c.Near = 0.1
	c.Far = 1000
}

func (c *Camera) Position() mgl32.Vec3 {
	return c.position
}

func (c *Camera) SetPosition(position mgl32.Vec3) {
	c.position = position
	c.isDirty = true
}

func (c *Camera) EulerRotation() mgl32.Vec3 {
	return c.eulerRotation
}

func (c *Camera) SetEulerRotation(rotation mgl32.Vec3) {
	c.eulerRotation = rotation
	c.isDirty = true
}

// View returns the inverse of the camera's world transform.
func (c *Camera) View() mgl32.Mat4 {
	if c.isDirty {
		rotation := mgl32.AnglesToQuat(c.eulerRotation[0], c.eulerRotation[1], c.eulerRotation[2], mgl32.XYZ).Mat4()
		world := mgl32.Translate3D(c.position[0], c.position[1], c.position[2]).Mul4(rotation)
		c.view = world.Inv()
		c.isDirty = false
	}
	return c.view
}

// Projection returns the perspective projection for the given aspect ratio.
// Y is flipped for Vulkan clip space.
func (c *Camera) Projection(aspect float32) mgl32.Mat4 {
	p := mgl32.Perspective(c.FovY, aspect, c.Near, c.Far)
	p[5] *= -1
	return p
}

func (c *Camera) Forward() mgl32.Vec3 {
	v := c.View()
	return mgl32.Vec3{-v[2], -v[6], -v[10]}.Normalize()
}

func (c *Camera) Backward() mgl32.Vec3 {
	return c.Forward().Mul(-1)
}

func (c *Camera) Right() mgl32.Vec3 {
	v := c.View()
	return mgl32.Vec3{v[0], v[4], v[8]}.Normalize()
}

func (c *Camera) Left() mgl32.Vec3 {
	return c.Right().Mul(-1)
}

func (c *Camera) move(direction mgl32.Vec3, amount float32) {
	c.position = c.position.Add(direction.Mul(amount))
	c.isDirty = true
}

func (c *Camera) MoveForward(amount float32)  { c.move(c.Forward(), amount) }
func (c *Camera) MoveBackward(amount float32) { c.move(c.Backward(), amount) }
func (c *Camera) MoveLeft(amount float32)     { c.move(c.Left(), amount) }
func (c *Camera) MoveRight(amount float32)    { c.move(c.Right(), amount) }
func (c *Camera) MoveUp(amount float32)       { c.move(mgl32.Vec3{0, 1, 0}, amount) }
func (c *Camera) MoveDown(amount float32)     { c.move(mgl32.Vec3{0, -1, 0}, amount) }

func (c *Camera) Yaw(amount float32) {
	c.eulerRotation[1] += amount
	c.isDirty = true
}

func (c *Camera) Pitch(amount float32) {
	c.eulerRotation[0] += amount
	// Clamp to avoid Gimbal lock.
	limit := 89 * math.K_DEG2RAD_MULTIPLIER
	c.eulerRotation[0] = math.Clamp(c.eulerRotation[0], -limit, limit)
	c.isDirty = true
}
