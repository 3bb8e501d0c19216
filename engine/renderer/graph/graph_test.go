package graph

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/gui"
	"github.com/spaghettifunk/lumen/engine/renderer/components"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu/recorder"
	"github.com/spaghettifunk/lumen/engine/renderer/renderpass"
	"github.com/spaghettifunk/lumen/engine/renderer/resources"
	"github.com/spaghettifunk/lumen/engine/world"
)

// shaderSet serves an empty module for every known name.
type shaderSet map[string]bool

func allShaders() shaderSet {
	s := shaderSet{}
	for _, name := range []string{
		shaderFullscreen, shaderGeometryVert, shaderGeometryFrag, shaderShadowVert, shaderShadowGeom,
		shaderDownsample, shaderSSAO, shaderBlurBilateral, shaderBlurSeparable, shaderUpsample,
		shaderLighting, shaderOverlayVert, shaderOverlayFrag, shaderPresent,
	} {
		s[name] = true
	}
	return s
}

func (s shaderSet) Shader(name string, stage gpu.ShaderStage) (gpu.ShaderModule, error) {
	if !s[name] {
		return gpu.ShaderModule{}, fmt.Errorf("no shader %q", name)
	}
	return gpu.ShaderModule{Stage: stage, Code: []byte{0x03, 0x02, 0x23, 0x07}, Path: name}, nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Window.Width, cfg.Window.Height = 64, 36
	cfg.Shadow.Resolution = 32
	cfg.Bindless.Capacity = 8
	cfg.GUI.MaxQuads = 16
	cfg.World = config.WorldConfig{
		MaxVertices:  64,
		MaxIndices:   64,
		MaxInstances: 8,
		MaxMaterials: 4,
		MaxJoints:    4,
		MaxLights:    4,
	}
	return cfg
}

type fixture struct {
	dev    *recorder.Device
	driver *recorder.Driver
	world  *world.World
	r      *SceneRenderer
	scene  Scene
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	dev := recorder.NewDevice()
	driver, err := recorder.NewDriver(dev, cfg.Renderer.FramesInFlight, uint32(cfg.Window.Width), uint32(cfg.Window.Height), 3)
	if err != nil {
		t.Fatal(err)
	}
	w, err := world.New(dev, cfg.Renderer.FramesInFlight, cfg.World)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Destroy)

	model, err := w.AddModel(world.Model{
		Name: "triangle",
		Vertices: []world.Vertex{
			{Position: mgl32.Vec3{0, 0, 0}, Normal: mgl32.Vec3{0, 0, 1}},
			{Position: mgl32.Vec3{1, 0, 0}, Normal: mgl32.Vec3{0, 0, 1}},
			{Position: mgl32.Vec3{0, 1, 0}, Normal: mgl32.Vec3{0, 0, 1}},
		},
		Indices: []uint32{0, 1, 2},
	})
	if err != nil {
		t.Fatal(err)
	}
	mat, err := w.AddMaterial(world.DefaultMaterial())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		inst := world.Instance{Model: mgl32.Translate3D(float32(i)*2, 0, 0), Material: uint32(mat)}
		if _, err := w.AddInstance(model, inst); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := w.AddLight(world.Light{Type: world.LightPoint, Position: mgl32.Vec3{0, 3, 0}, Color: mgl32.Vec3{1, 1, 1}, Intensity: 5, Range: 10}); err != nil {
		t.Fatal(err)
	}

	r, err := NewSceneRenderer(dev, driver, cfg, allShaders(), w)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(r.Destroy)

	cam := components.NewCamera()
	cam.SetPosition(mgl32.Vec3{0, 2, 6})
	overlay := &gui.DrawList{}
	overlay.Add(gui.Quad{Max: mgl32.Vec2{10, 10}, UVMax: mgl32.Vec2{1, 1}, Color: mgl32.Vec4{1, 1, 1, 1}})
	overlay.Add(gui.Quad{Min: mgl32.Vec2{20, 20}, Max: mgl32.Vec2{30, 30}, UVMax: mgl32.Vec2{1, 1}, Color: mgl32.Vec4{1, 0, 0, 0.5}})

	return &fixture{
		dev:    dev,
		driver: driver,
		world:  w,
		r:      r,
		scene: Scene{
			World:   w,
			Camera:  cam,
			Sun:     Sun{Direction: mgl32.Vec3{-0.3, -1, -0.2}},
			Overlay: overlay,
		},
	}
}

func (f *fixture) run(t *testing.T, frames int) {
	t.Helper()
	n := f.r.frames
	for i := 0; i < frames; i++ {
		if err := f.r.DrawFrame(i%n, f.scene); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
}

func (f *fixture) noViolations(t *testing.T) {
	t.Helper()
	for _, v := range f.dev.Violations() {
		t.Error(v)
	}
}

func TestFramesRecordWithoutViolations(t *testing.T) {
	for _, blur := range []config.BlurMode{config.BlurBilateral, config.BlurSeparable} {
		t.Run(string(blur), func(t *testing.T) {
			cfg := testConfig()
			cfg.SSAO.Blur = blur
			cfg.Renderer.DebugLayouts = true
			f := newFixture(t, cfg)
			f.run(t, 6)
			f.noViolations(t)
			if got := f.driver.Stats().Presents; got != 6 {
				t.Errorf("presents = %d, want 6", got)
			}
		})
	}
}

func TestPassOrder(t *testing.T) {
	tests := []struct {
		blur config.BlurMode
		want []string
	}{
		{config.BlurBilateral, []string{"geometry", "shadow", "ssao-downsample", "ssao", "ssao-blur", "ssao-upsample", "lighting", "gui", "present"}},
		{config.BlurSeparable, []string{"geometry", "shadow", "ssao-downsample", "ssao", "ssao-blur-h", "ssao-blur-v", "ssao-upsample", "lighting", "gui", "present"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.blur), func(t *testing.T) {
			cfg := testConfig()
			cfg.SSAO.Blur = tt.blur
			f := newFixture(t, cfg)
			f.run(t, 1)

			byTarget := map[gpu.RenderTarget]string{}
			for _, rp := range f.r.Passes() {
				byTarget[rp.Pass.Target] = rp.Name
			}
			var got []string
			for _, c := range f.driver.LastCommands(0).Commands() {
				if c.Kind == recorder.CmdBeginRenderTarget {
					got = append(got, byTarget[c.Begin.Target])
				}
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("pass order = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFrameCommandStream(t *testing.T) {
	f := newFixture(t, testConfig())
	f.run(t, 1)
	cmds := f.driver.LastCommands(0).Commands()
	p := &f.r.passes

	// The world upload's buffer barrier precedes every render target.
	upload := -1
	for i, c := range cmds {
		if c.Kind == recorder.CmdPipelineBarrier && len(c.BufferBarriers) > 0 {
			upload = i
			break
		}
	}
	if upload < 0 {
		t.Fatal("no world upload barrier recorded")
	}
	for i := 0; i < upload; i++ {
		if cmds[i].Kind == recorder.CmdBeginRenderTarget {
			t.Fatal("render target begun before the world upload")
		}
	}

	// Lighting ends straight into the overlay with no barrier between.
	var lightingEnd, overlayBegin = -1, -1
	var current string
	for i, c := range cmds {
		switch c.Kind {
		case recorder.CmdBeginRenderTarget:
			switch c.Begin.Target {
			case p.lighting.Pass.Target:
				current = "lighting"
			case p.overlay.Pass.Target:
				current = "gui"
				overlayBegin = i
			default:
				current = ""
			}
		case recorder.CmdEndRenderTarget:
			if current == "lighting" {
				lightingEnd = i
			}
		case recorder.CmdDraw:
			if current == "gui" && (c.Draw.Count != 6 || c.Draw.InstanceCount != 2) {
				t.Errorf("gui draw = %+v, want 6 vertices of 2 quads", c.Draw)
			}
		}
	}
	if lightingEnd < 0 || overlayBegin != lightingEnd+1 {
		t.Errorf("lighting end at %d, gui begin at %d: want adjacent", lightingEnd, overlayBegin)
	}

	var indexed int
	for _, c := range cmds {
		if c.Kind == recorder.CmdDrawIndexed {
			indexed++
			if c.Draw.InstanceCount != 2 {
				t.Errorf("world draw instances = %d, want 2", c.Draw.InstanceCount)
			}
		}
	}
	// Geometry and shadow each draw the one batched model.
	if indexed != 2 {
		t.Errorf("indexed draws = %d, want 2", indexed)
	}
}

func TestPresentUsesAcquiredImage(t *testing.T) {
	f := newFixture(t, testConfig())
	for i := 0; i < 5; i++ {
		frame := i % 2
		if err := f.r.DrawFrame(frame, f.scene); err != nil {
			t.Fatal(err)
		}
		image := i % 3
		var last gpu.Framebuffer
		for _, c := range f.driver.LastCommands(frame).Commands() {
			if c.Kind == recorder.CmdBeginRenderTarget {
				last = c.Begin.Framebuffer
			}
		}
		if want := f.r.passes.present.Pass.Framebuffers[image]; last != want {
			t.Errorf("frame %d presented through framebuffer %d, want image %d's %d", i, last, image, want)
		}
	}
	f.noViolations(t)
}

// TestNoWriteToInFlightMemory replays the device timeline and fails when a
// host write overlaps bytes written for a submission whose fence has not
// been waited on.
func TestNoWriteToInFlightMemory(t *testing.T) {
	f := newFixture(t, testConfig())
	type region struct {
		mem        gpu.Memory
		start, end uint64
	}
	frames := f.r.frames
	inFlight := make([][]region, frames)
	pending := make([]bool, frames)

	seen := len(f.dev.Events())
	for i := 0; i < 8; i++ {
		frame := i % frames
		if err := f.r.DrawFrame(frame, f.scene); err != nil {
			t.Fatal(err)
		}
		events := f.dev.Events()[seen:]
		seen = len(f.dev.Events())

		var written []region
		for _, e := range events {
			switch e.Kind {
			case recorder.EventFenceSignal:
				pending[e.Frame] = false
				inFlight[e.Frame] = nil
			case recorder.EventWaitIdle:
				for s := range pending {
					pending[s] = false
					inFlight[s] = nil
				}
			case recorder.EventWrite:
				w := region{e.Memory, e.Offset, e.Offset + e.Size}
				for s := range pending {
					if !pending[s] || s == frame {
						continue
					}
					for _, r := range inFlight[s] {
						if r.mem == w.mem && w.start < r.end && r.start < w.end {
							t.Errorf("frame %d wrote memory %d [%d,%d) still read by in-flight frame %d", frame, w.mem, w.start, w.end, s)
						}
					}
				}
				written = append(written, w)
			case recorder.EventSubmit:
				pending[e.Frame] = true
				inFlight[e.Frame] = written
			}
		}
		// Change something every frame so every slot uploads.
		if err := f.world.UpdateInstance(i%2, world.Instance{Model: mgl32.Translate3D(0, float32(i), 0)}); err != nil {
			t.Fatal(err)
		}
	}
	f.noViolations(t)
}

func TestBusySlotRejectsWrites(t *testing.T) {
	f := newFixture(t, testConfig())
	if err := f.r.DrawFrame(0, f.scene); err != nil {
		t.Fatal(err)
	}
	// Slot 0 is submitted and its fence not waited on.
	cmd := f.dev.NewCommandBuffer()
	_, err := f.r.RenderFrame(cmd, 0, 0, f.scene)
	if !errors.Is(err, ErrFrameSlotBusy) {
		t.Fatalf("render into busy slot: %v, want ErrFrameSlotBusy", err)
	}
	if err := f.world.UpdateInstance(0, world.Instance{}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.world.UpdateBuffers(f.dev.NewCommandBuffer(), 0); !errors.Is(err, ErrFrameSlotBusy) {
		t.Fatalf("world upload into busy slot: %v, want ErrFrameSlotBusy", err)
	}
	// Slot 1 is free.
	if err := f.r.DrawFrame(1, f.scene); err != nil {
		t.Fatal(err)
	}
}

func TestFailedFrameKeepsWorldUploads(t *testing.T) {
	cfg := testConfig()
	cfg.GUI.MaxQuads = 1
	f := newFixture(t, cfg)

	if err := f.r.DrawFrame(0, f.scene); !errors.Is(err, world.ErrCapacityExceeded) {
		t.Fatalf("frame with too many quads: %v, want ErrCapacityExceeded", err)
	}
	stats := f.driver.Stats()
	if stats.Discards != 1 || stats.Submits != 0 {
		t.Fatalf("discards %d submits %d after a failed frame", stats.Discards, stats.Submits)
	}
	if !f.world.Dirty(0) {
		t.Fatal("failed frame marked the world uploaded")
	}

	// The discarded image forces a recreate; the frame after that renders.
	f.scene.Overlay = &gui.DrawList{}
	if err := f.r.DrawFrame(0, f.scene); err != nil {
		t.Fatal(err)
	}
	if f.driver.Stats().Recreates != 1 {
		t.Errorf("recreates %d after a discarded image", f.driver.Stats().Recreates)
	}
	if err := f.r.DrawFrame(0, f.scene); err != nil {
		t.Fatal(err)
	}
	if f.world.Dirty(0) {
		t.Error("frame 0 still dirty after a submitted frame")
	}
	instances := f.dev.BufferBytes(f.world.InstanceBuffers()[0].Handle)
	if allZero(instances[:2*world.InstanceStride]) {
		t.Error("frame 0 instance buffer empty after a submitted frame")
	}
	f.noViolations(t)
}

func TestOverlayWaitsForLightingWrites(t *testing.T) {
	f := newFixture(t, testConfig())
	if err := f.r.DrawFrame(0, f.scene); err != nil {
		t.Fatal(err)
	}
	p := &f.r.passes
	hdr := p.lighting.Pass.Texture(0, 0).Image
	if p.overlay.Pass.Texture(0, 0).Image != hdr {
		t.Fatal("gui does not alias the lighting target")
	}

	barrier, begin := -1, -1
	for i, c := range f.driver.LastCommands(0).Commands() {
		switch c.Kind {
		case recorder.CmdPipelineBarrier:
			for _, b := range c.ImageBarriers {
				if b.Image == hdr && b.SrcAccess == gpu.AccessColorAttachmentWrite &&
					b.NewLayout == gpu.ImageLayoutColorAttachmentOptimal {
					barrier = i
				}
			}
		case recorder.CmdBeginRenderTarget:
			if c.Begin.Target == p.overlay.Pass.Target && begin < 0 {
				begin = i
			}
		}
	}
	if barrier < 0 || begin < 0 || barrier > begin {
		t.Errorf("lighting write barrier at %d, gui begin at %d", barrier, begin)
	}
	f.noViolations(t)
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func TestLayoutTrackerCatchesMissingTransition(t *testing.T) {
	cfg := testConfig()
	cfg.Renderer.DebugLayouts = true
	f := newFixture(t, cfg)
	if f.r.Tracker() == nil {
		t.Fatal("debug layouts enabled but no tracker")
	}
	p := &f.r.passes
	cmd := f.dev.NewCommandBuffer()
	if _, err := f.world.UpdateBuffers(cmd, 0); err != nil {
		t.Fatal(err)
	}
	if err := write(p.geometry, 0, 0, make([]byte, 352)); err != nil {
		t.Fatal(err)
	}
	if err := p.geometry.DoRenderpass(0, cmd, renderpass.Options{Draw: f.world.Record}); err != nil {
		t.Fatal(err)
	}
	// The geometry attachments were never made readable.
	err := p.downsample.DoRenderpass(0, cmd, renderpass.Options{})
	if !errors.Is(err, resources.ErrLayoutMismatch) {
		t.Fatalf("downsample after untransitioned geometry: %v, want ErrLayoutMismatch", err)
	}
}

func TestTrackerDisabledByDefault(t *testing.T) {
	f := newFixture(t, testConfig())
	if f.r.Tracker() != nil {
		t.Fatal("tracker created without debug layouts")
	}
}

func TestOutOfDateSwapchainReloads(t *testing.T) {
	f := newFixture(t, testConfig())
	f.run(t, 2)
	before := f.r.passes.present

	f.driver.ForceOutOfDate()
	if err := f.r.DrawFrame(0, f.scene); err != nil {
		t.Fatalf("out of date frame: %v", err)
	}
	if got := f.driver.Stats().Recreates; got != 1 {
		t.Fatalf("recreates = %d, want 1", got)
	}
	if f.r.passes.present == before {
		t.Fatal("passes were not rebuilt")
	}
	f.run(t, 4)
	f.noViolations(t)
}

func TestResizeRebuildsAtNewExtent(t *testing.T) {
	f := newFixture(t, testConfig())
	f.run(t, 2)
	_, _, pipelines := f.dev.Live()

	if err := f.r.Resize(40, 20); err != nil {
		t.Fatal(err)
	}
	if got := f.r.Extent(); got.Width != 40 || got.Height != 20 {
		t.Fatalf("extent = %+v, want 40x20", got)
	}
	if w, h := f.r.passes.downsample.Pass.Width, f.r.passes.downsample.Pass.Height; w != 20 || h != 10 {
		t.Errorf("half resolution = %dx%d, want 20x10", w, h)
	}
	if w := f.r.passes.shadow.Pass.Width; w != 32 {
		t.Errorf("shadow resolution changed to %d", w)
	}
	if _, _, after := f.dev.Live(); after != pipelines {
		t.Errorf("live pipelines %d after resize, %d before", after, pipelines)
	}
	f.run(t, 3)
	f.noViolations(t)
}

func TestOverlayCapacity(t *testing.T) {
	cfg := testConfig()
	cfg.GUI.MaxQuads = 1
	f := newFixture(t, cfg)
	err := f.r.DrawFrame(0, f.scene)
	if !errors.Is(err, world.ErrCapacityExceeded) {
		t.Fatalf("overlay over capacity: %v, want ErrCapacityExceeded", err)
	}
}

func TestMissingShaderFailsCleanly(t *testing.T) {
	cfg := testConfig()
	dev := recorder.NewDevice()
	driver, err := recorder.NewDriver(dev, 2, 64, 36, 3)
	if err != nil {
		t.Fatal(err)
	}
	w, err := world.New(dev, 2, cfg.World)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Destroy()

	shaders := allShaders()
	delete(shaders, shaderLighting)
	if _, err := NewSceneRenderer(dev, driver, cfg, shaders, w); err == nil {
		t.Fatal("renderer built without a lighting shader")
	}
	if _, _, pipelines := dev.Live(); pipelines != 0 {
		t.Errorf("%d pipelines leaked by the failed build", pipelines)
	}
}

func TestCommitTexturesRewritesBindlessArray(t *testing.T) {
	f := newFixture(t, testConfig())
	tex, err := resources.UploadTexture(f.dev, "checker", 1, 1, 1, gpu.FormatRGBA8Unorm, []byte{0, 0, 0, 255})
	if err != nil {
		t.Fatal(err)
	}
	defer tex.Destroy()
	f.run(t, 2)

	index, err := f.r.Textures().Register(tex)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.r.CommitTextures(); err != nil {
		t.Fatal(err)
	}
	for frame, set := range f.r.scene.Sets {
		infos := f.dev.DescriptorImages(set, sceneTextureBinding)
		if int(index) >= len(infos) || infos[index].View != tex.View {
			t.Errorf("frame %d: bindless slot %d does not hold the committed texture", frame, index)
		}
	}
	f.run(t, 2)
	f.noViolations(t)
}
