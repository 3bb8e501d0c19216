package testbed

import (
	"fmt"
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/lumen/engine"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/scripting"
	"github.com/spaghettifunk/lumen/engine/world"
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	engine *engine.Engine

	width  uint32
	height uint32

	// The cubes hang off a turntable that slowly rotates the whole row.
	turntable *math.Transform
	cubes     []cube
	cubeMat   uint32
	screen    int

	// The column bends at its base through a two-joint skin.
	column     int
	columnMat  uint32
	jointsAt   int
	swayTime   float32
}

type cube struct {
	instance  int
	transform *math.Transform
	speed     float32
}

var (
	moveSpeed float32 = 5.0
	turnSpeed float32 = 1.5
)

func NewTestGame() *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			Name:  "Lumen Testbed",
			State: &gameState{},
		},
	}
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown
	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func cubeModel(name string, w, h, d, tile float32) world.Model {
	mesh := math.GenerateCube(w, h, d, tile, tile)
	m := world.Model{Name: name, Indices: mesh.Indices}
	m.Vertices = make([]world.Vertex, len(mesh.Positions))
	for i := range mesh.Positions {
		m.Vertices[i] = world.Vertex{
			Position: mesh.Positions[i],
			Normal:   mesh.Normals[i],
			UV:       mesh.UVs[i],
			Tangent:  mesh.Tangents[i],
		}
	}
	return m
}

// skinnedColumn binds the lower half of a tall box to joint 0 and the upper
// half to joint 1.
func skinnedColumn() world.Model {
	m := cubeModel("column", 0.4, 2, 0.4, 1)
	for i := range m.Vertices {
		v := &m.Vertices[i]
		v.Position = v.Position.Add(mgl32.Vec3{0, 1, 0})
		if v.Position.Y() > 1 {
			v.Joints = [4]uint32{1}
		}
		v.Weights = mgl32.Vec4{1, 0, 0, 0}
	}
	return m
}

// columnJoints sways the upper joint around the column's base.
func columnJoints(t float32) []mgl32.Mat4 {
	angle := 0.35 * float32(gomath.Sin(float64(t)))
	return []mgl32.Mat4{mgl32.Ident4(), mgl32.HomogRotate3DZ(angle)}
}

func (g *TestGame) Initialize(e *engine.Engine) error {
	core.LogInfo("initializing testbed...")
	state := g.state()
	state.engine = e

	w := e.World()
	floor, err := w.AddModel(cubeModel("floor", 40, 0.2, 40, 8))
	if err != nil {
		return err
	}
	cubeMesh, err := w.AddModel(cubeModel("cube", 1, 1, 1, 1))
	if err != nil {
		return err
	}

	stone := world.DefaultMaterial()
	stone.BaseColor = mgl32.Vec4{0.55, 0.55, 0.5, 1}
	floorMat, err := w.AddMaterial(stone)
	if err != nil {
		return err
	}
	metal := world.DefaultMaterial()
	metal.BaseColor = mgl32.Vec4{0.9, 0.4, 0.2, 1}
	metal.Metallic = 1
	metal.Roughness = 0.35
	cubeMat, err := w.AddMaterial(metal)
	if err != nil {
		return err
	}
	state.cubeMat = uint32(cubeMat)

	if _, err := w.AddInstance(floor, world.Instance{
		Model:    mgl32.Translate3D(0, -0.1, 0),
		Material: uint32(floorMat),
	}); err != nil {
		return err
	}
	state.turntable = math.TransformCreate()
	for i := 0; i < 5; i++ {
		t := math.TransformFromPosition(mgl32.Vec3{float32(i-2) * 2.5, 0.5, 0})
		t.Parent = state.turntable
		idx, err := w.AddInstance(cubeMesh, world.Instance{
			Model:    t.World(),
			Material: state.cubeMat,
		})
		if err != nil {
			return err
		}
		state.cubes = append(state.cubes, cube{instance: idx, transform: t, speed: float32(i+1) * 0.3})
	}

	columnMesh, err := w.AddModel(skinnedColumn())
	if err != nil {
		return err
	}
	state.jointsAt, err = w.AddJoints(columnJoints(0))
	if err != nil {
		return err
	}
	state.columnMat = uint32(floorMat)
	state.column, err = w.AddInstance(columnMesh, world.Instance{
		Model:       mgl32.Translate3D(0, 0, -4),
		Material:    state.columnMat,
		JointOffset: uint32(state.jointsAt),
		Skinned:     true,
	})
	if err != nil {
		return err
	}

	lights := []world.Light{
		{Type: world.LightPoint, Position: mgl32.Vec3{-4, 2, 3}, Color: mgl32.Vec3{1, 0.8, 0.6}, Intensity: 8, Range: 10},
		{Type: world.LightPoint, Position: mgl32.Vec3{4, 2, -3}, Color: mgl32.Vec3{0.5, 0.7, 1}, Intensity: 8, Range: 10},
	}
	for _, l := range lights {
		if _, err := w.AddLight(l); err != nil {
			return err
		}
	}
	e.SetSun(mgl32.Vec3{-0.4, -1, -0.3})

	cam := e.Camera()
	cam.SetPosition(mgl32.Vec3{0, 3, 10})
	cam.Pitch(-0.25)

	scripts := e.Scripts()
	scripts.Register("menu", "quit", func(ctx scripting.CallContext) error {
		core.LogInfo("quit pressed on %s", ctx.NodeName)
		e.Events().Fire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
		return nil
	})
	scripts.Register("menu", "next_screen", func(ctx scripting.CallContext) error {
		return g.cycleScreen()
	})
	scripts.Register("menu", "hover", func(ctx scripting.CallContext) error {
		core.LogDebug("hovering %s at %v", ctx.NodeName, ctx.Pointer)
		return nil
	})
	return nil
}

func (g *TestGame) cycleScreen() error {
	state := g.state()
	next := state.screen + 1
	if err := state.engine.SetGUIScreen(next); err != nil {
		next = 0
		if err := state.engine.SetGUIScreen(next); err != nil {
			return fmt.Errorf("no gui screens: %w", err)
		}
	}
	state.screen = next
	return nil
}

func (g *TestGame) Update(e *engine.Engine, deltaTime float64) error {
	state := g.state()
	in := e.Input()
	cam := e.Camera()
	dt := float32(deltaTime)

	if in.IsKeyDown(core.KEY_A) || in.IsKeyDown(core.KEY_LEFT) {
		cam.Yaw(turnSpeed * dt)
	}
	if in.IsKeyDown(core.KEY_D) || in.IsKeyDown(core.KEY_RIGHT) {
		cam.Yaw(-turnSpeed * dt)
	}
	if in.IsKeyDown(core.KEY_UP) {
		cam.Pitch(turnSpeed * dt)
	}
	if in.IsKeyDown(core.KEY_DOWN) {
		cam.Pitch(-turnSpeed * dt)
	}
	speed := moveSpeed
	if in.IsKeyDown(core.KEY_LSHIFT) {
		speed *= 3
	}
	if in.IsKeyDown(core.KEY_W) {
		cam.MoveForward(speed * dt)
	}
	if in.IsKeyDown(core.KEY_S) {
		cam.MoveBackward(speed * dt)
	}
	if in.IsKeyDown(core.KEY_Q) {
		cam.MoveLeft(speed * dt)
	}
	if in.IsKeyDown(core.KEY_E) {
		cam.MoveRight(speed * dt)
	}
	if in.IsKeyDown(core.KEY_SPACE) {
		cam.MoveUp(speed * dt)
	}
	if in.IsKeyDown(core.KEY_LCONTROL) {
		cam.MoveDown(speed * dt)
	}
	if in.KeyPressed(core.KEY_F1) {
		if err := g.cycleScreen(); err != nil {
			core.LogWarn("%v", err)
		}
	}

	state.turntable.Rotate(mgl32.QuatRotate(0.1*dt, mgl32.Vec3{0, 1, 0}))
	w := e.World()
	for _, c := range state.cubes {
		c.transform.Rotate(mgl32.QuatRotate(c.speed*dt, mgl32.Vec3{0, 1, 0}))
		if err := w.UpdateInstance(c.instance, world.Instance{Model: c.transform.World(), Material: state.cubeMat}); err != nil {
			return err
		}
	}
	state.swayTime += dt
	return w.UpdateJoints(state.jointsAt, columnJoints(state.swayTime))
}

func (g *TestGame) OnResize(width, height uint32) error {
	state := g.state()
	state.width, state.height = width, height
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogInfo("shutting down testbed...")
	return nil
}
