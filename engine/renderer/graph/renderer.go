// Package graph records the deferred frame: geometry, cascaded shadows, the
// SSAO chain, lighting, the GUI overlay and presentation, in that fixed
// order. Every consumer's descriptors are wired to its producers' textures
// once, when the passes are built, and each producer is made readable in
// the same command buffer before its consumer begins.
package graph

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/gui"
	"github.com/spaghettifunk/lumen/engine/renderer/components"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/pass"
	"github.com/spaghettifunk/lumen/engine/renderer/renderpass"
	"github.com/spaghettifunk/lumen/engine/renderer/resources"
	"github.com/spaghettifunk/lumen/engine/renderer/uniforms"
	"github.com/spaghettifunk/lumen/engine/world"
)

// Ambient light term of the lighting pass.
const ambient = 0.03

// Sun is the directional light casting the cascaded shadows.
type Sun struct {
	Direction mgl32.Vec3
}

// Scene is what one frame draws.
type Scene struct {
	World   *world.World
	Camera  *components.Camera
	Sun     Sun
	Overlay *gui.DrawList
}

type samplers struct {
	linearClamp   *resources.Sampler
	nearestClamp  *resources.Sampler
	linearRepeat  *resources.Sampler
	nearestRepeat *resources.Sampler
	shadow        *resources.Sampler
}

func (s *samplers) destroy() {
	for _, x := range []*resources.Sampler{s.linearClamp, s.nearestClamp, s.linearRepeat, s.nearestRepeat, s.shadow} {
		x.Destroy()
	}
}

type SceneRenderer struct {
	cfg     *config.Config
	dev     gpu.Device
	driver  gpu.FrameDriver
	shaders ShaderSource
	world   *world.World
	guard   *FrameGuard
	frames  int
	extent  gpu.Extent2D

	// Kept across reloads.
	samplers samplers
	null     *resources.Texture
	noise    *resources.Texture
	kernel   []mgl32.Vec4
	textures *world.TextureTable
	scene    *resources.DescriptorSet
	overlay  []*resources.Buffer

	// Rebuilt by Reload.
	tracker *resources.LayoutTracker
	reg     *pass.Registry
	passes  passes
}

// NewSceneRenderer creates the resolution independent resources and builds
// every pass at the driver's current extent. w must have been created with
// the driver's number of frames in flight.
func NewSceneRenderer(dev gpu.Device, driver gpu.FrameDriver, cfg *config.Config, shaders ShaderSource, w *world.World) (*SceneRenderer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	frames := driver.FramesInFlight()
	if frames != cfg.Renderer.FramesInFlight {
		return nil, fmt.Errorf("driver has %d frames in flight, config %d", frames, cfg.Renderer.FramesInFlight)
	}
	if n := len(w.InstanceBuffers()); n != frames {
		return nil, fmt.Errorf("world has %d frames, renderer %d", n, frames)
	}
	r := &SceneRenderer{
		cfg:     cfg,
		dev:     dev,
		driver:  driver,
		shaders: shaders,
		world:   w,
		guard:   NewFrameGuard(frames),
		frames:  frames,
		extent:  driver.Extent(),
	}
	w.SetGuard(r.guard)
	if err := r.init(); err != nil {
		r.Destroy()
		return nil, err
	}
	if err := r.build(); err != nil {
		r.Destroy()
		return nil, err
	}
	core.LogInfo("scene renderer ready: %dx%d, %d frames in flight, ssao blur %s, %d shadow cascades",
		r.extent.Width, r.extent.Height, frames, cfg.SSAO.Blur, cfg.Shadow.Cascades)
	return r, nil
}

func (r *SceneRenderer) init() error {
	var err error
	for _, s := range []struct {
		dst  **resources.Sampler
		desc gpu.SamplerDesc
	}{
		{&r.samplers.linearClamp, resources.LinearClamp},
		{&r.samplers.nearestClamp, resources.NearestClamp},
		{&r.samplers.linearRepeat, resources.LinearRepeat},
		{&r.samplers.nearestRepeat, resources.NearestRepeat},
		{&r.samplers.shadow, resources.ShadowCompare},
	} {
		if *s.dst, err = resources.NewSampler(r.dev, s.desc); err != nil {
			return err
		}
	}

	r.null, err = resources.UploadTexture(r.dev, "null", 1, 1, 1, gpu.FormatRGBA8Unorm, []byte{255, 255, 255, 255})
	if err != nil {
		return err
	}
	size := r.cfg.SSAO.NoiseSize
	r.noise, err = resources.UploadTexture(r.dev, "ssao-noise", uint32(size), uint32(size), 1, gpu.FormatRGBA16Sfloat,
		resources.EncodeHalf(uniforms.Noise(size, r.cfg.SSAO.Seed)))
	if err != nil {
		return err
	}
	r.kernel = uniforms.Kernel(r.cfg.SSAO.KernelSize, r.cfg.SSAO.Seed)

	r.textures, err = world.NewTextureTable(r.cfg.Bindless.Capacity, r.cfg.Bindless.NullTextureIndex)
	if err != nil {
		return err
	}

	for f := 0; f < r.frames; f++ {
		buf, err := resources.NewBuffer(r.dev, resources.BufferSpec{
			Name:   fmt.Sprintf("gui-quads-%d", f),
			Size:   uint64(r.cfg.GUI.MaxQuads) * overlayQuadStride,
			Usage:  gpu.BufferUsageStorage,
			Memory: gpu.MemoryHostVisible,
		})
		if err != nil {
			return err
		}
		r.overlay = append(r.overlay, buf)
	}
	return r.buildScene()
}

// Guard is the frame slot guard shared by every uniform buffer and the
// world. The frame loop marks slots submitted and waited.
func (r *SceneRenderer) Guard() *FrameGuard {
	return r.guard
}

// Textures is the bindless table. New textures become visible after
// CommitTextures.
func (r *SceneRenderer) Textures() *world.TextureTable {
	return r.textures
}

// Tracker returns the debug layout tracker, nil unless enabled in config.
func (r *SceneRenderer) Tracker() *resources.LayoutTracker {
	return r.tracker
}

func (r *SceneRenderer) Extent() gpu.Extent2D {
	return r.extent
}

// Passes returns the renderpasses in recording order.
func (r *SceneRenderer) Passes() []*renderpass.Renderpass {
	return r.passes.ordered()
}

// CommitTextures drains the device and rewrites the bindless array.
func (r *SceneRenderer) CommitTextures() error {
	if !r.textures.Dirty() {
		return nil
	}
	if err := r.dev.WaitIdle(); err != nil {
		return err
	}
	r.guard.MarkAllWaited()
	return r.textures.Commit()
}

// Reload waits for the device to go idle, then destroys and recreates every
// pass at extent and wires them again.
func (r *SceneRenderer) Reload(extent gpu.Extent2D) error {
	if err := r.dev.WaitIdle(); err != nil {
		return err
	}
	r.guard.MarkAllWaited()
	r.destroyPasses()
	r.extent = extent
	if err := r.build(); err != nil {
		return fmt.Errorf("reload at %dx%d: %w", extent.Width, extent.Height, err)
	}
	core.LogInfo("scene renderer reloaded at %dx%d", extent.Width, extent.Height)
	return nil
}

// RenderFrame records frame into cmd, presenting into swapchain image
// presentIndex. The frame's fence must have been waited on. The world's
// uploads recorded into cmd only count as done once the returned commit is
// called, after cmd has been submitted.
func (r *SceneRenderer) RenderFrame(cmd gpu.CommandBuffer, frame int, presentIndex uint32, scene Scene) (commit func(), err error) {
	if err := r.checkBuilt(); err != nil {
		return nil, err
	}
	if frame < 0 || frame >= r.frames {
		return nil, fmt.Errorf("frame %d out of range", frame)
	}
	if scene.World != r.world {
		return nil, errors.New("scene world is not the world the renderer was built with")
	}
	if scene.Camera == nil {
		return nil, errors.New("scene has no camera")
	}
	if err := r.guard.CanWrite(frame); err != nil {
		return nil, err
	}
	p := &r.passes

	quads, err := r.writeOverlay(frame, scene.Overlay)
	if err != nil {
		return nil, err
	}
	commit, err = r.world.UpdateBuffers(cmd, frame)
	if err != nil {
		return nil, err
	}

	cam := scene.Camera
	aspect := float32(r.extent.Width) / float32(r.extent.Height)
	view := cam.View()
	proj := cam.Projection(aspect)
	camera := uniforms.CameraData{View: view, Projection: proj, Position: cam.Position(), Near: cam.Near, Far: cam.Far}.Bytes()

	splits := uniforms.CascadeSplits(cam.Near, min(r.cfg.Shadow.Far, cam.Far), r.cfg.Shadow.Cascades, r.cfg.Shadow.SplitLambda)
	shadow := uniforms.ShadowData{
		Matrices: uniforms.CascadeMatrices(view, cam.FovY, aspect, cam.Near, splits, scene.Sun.Direction, r.cfg.Shadow.Resolution),
		Splits:   splits,
		LightDir: scene.Sun.Direction.Normalize(),
	}.Bytes()
	drawWorld := func(cmd gpu.CommandBuffer) error { return r.world.Record(cmd) }

	if err := write(p.geometry, frame, 0, camera); err != nil {
		return nil, err
	}
	if err := p.geometry.DoRenderpass(frame, cmd, renderpass.Options{Draw: drawWorld, TransitionAfter: true}); err != nil {
		return nil, err
	}

	if err := write(p.shadow, frame, 0, shadow); err != nil {
		return nil, err
	}
	if err := p.shadow.DoRenderpass(frame, cmd, renderpass.Options{Draw: drawWorld, TransitionAfter: true}); err != nil {
		return nil, err
	}

	if err := write(p.downsample, frame, 0, camera); err != nil {
		return nil, err
	}
	if err := p.downsample.DoRenderpass(frame, cmd, renderpass.Options{TransitionAfter: true}); err != nil {
		return nil, err
	}

	half := p.downsample.Pass
	noise := float32(r.cfg.SSAO.NoiseSize)
	ssao := uniforms.SSAOData{
		Kernel:     r.kernel,
		Projection: proj,
		NoiseScale: mgl32.Vec2{float32(half.Width) / noise, float32(half.Height) / noise},
		Radius:     r.cfg.SSAO.Radius,
		Bias:       r.cfg.SSAO.Bias,
	}
	if err := write(p.ssao, frame, 0, ssao.Bytes()); err != nil {
		return nil, err
	}
	if err := p.ssao.DoRenderpass(frame, cmd, renderpass.Options{TransitionAfter: true}); err != nil {
		return nil, err
	}

	if err := r.recordBlur(cmd, frame); err != nil {
		return nil, err
	}

	upsample := uniforms.UpsamplePush{
		TexelSize:       mgl32.Vec2{1 / float32(half.Width), 1 / float32(half.Height)},
		DepthThreshold:  r.cfg.SSAO.UpsampleDepthThreshold,
		NormalThreshold: r.cfg.SSAO.UpsampleNormalThreshold,
	}
	if err := p.upsample.DoRenderpass(frame, cmd, renderpass.Options{
		PushConstants:   upsample.Bytes,
		TransitionAfter: true,
	}); err != nil {
		return nil, err
	}

	if err := write(p.lighting, frame, 0, camera); err != nil {
		return nil, err
	}
	if err := write(p.lighting, frame, 1, shadow); err != nil {
		return nil, err
	}
	lighting := uniforms.LightingPush{
		LightCount:   uint32(r.world.LightCount()),
		CascadeCount: uint32(r.cfg.Shadow.Cascades),
		Ambient:      ambient,
		UseSSAO:      1,
	}
	// The overlay loads and blends over the lit image, so it stays an
	// attachment.
	if err := p.lighting.DoRenderpass(frame, cmd, renderpass.Options{PushConstants: lighting.Bytes, BarrierAfter: true}); err != nil {
		return nil, err
	}

	screen := uniforms.ScreenPush{Size: mgl32.Vec2{float32(r.extent.Width), float32(r.extent.Height)}}
	if err := p.overlay.DoRenderpass(frame, cmd, renderpass.Options{
		PushConstants: screen.Bytes,
		Draw: func(cmd gpu.CommandBuffer) error {
			if quads > 0 {
				cmd.Draw(6, uint32(quads), 0, 0)
			}
			return nil
		},
		TransitionAfter: true,
	}); err != nil {
		return nil, err
	}

	framebuffer := int(presentIndex)
	present := uniforms.PresentPush{Exposure: 1, Gamma: 2.2}
	if err := p.present.DoRenderpass(frame, cmd, renderpass.Options{
		PushConstants:       present.Bytes,
		FramebufferOverride: &framebuffer,
	}); err != nil {
		return nil, err
	}
	return commit, nil
}

func (r *SceneRenderer) recordBlur(cmd gpu.CommandBuffer, frame int) error {
	cfg := r.cfg.SSAO
	blur := uniforms.BlurData{
		SigmaSpatial: cfg.BlurSigmaSpatial,
		SigmaDepth:   cfg.BlurSigmaDepth,
		Radius:       int32(cfg.BlurRadius),
		Weights:      uniforms.GaussianWeights(cfg.BlurRadius, cfg.BlurSigmaSpatial),
	}.Bytes()

	p := &r.passes
	if p.blur != nil {
		if err := write(p.blur, frame, 0, blur); err != nil {
			return err
		}
		return p.blur.DoRenderpass(frame, cmd, renderpass.Options{TransitionAfter: true})
	}
	for _, step := range []struct {
		rp  *renderpass.Renderpass
		dir mgl32.Vec2
	}{
		{p.blurH, mgl32.Vec2{1, 0}},
		{p.blurV, mgl32.Vec2{0, 1}},
	} {
		if err := write(step.rp, frame, 0, blur); err != nil {
			return err
		}
		push := uniforms.DirectionPush{Direction: step.dir}
		if err := step.rp.DoRenderpass(frame, cmd, renderpass.Options{PushConstants: push.Bytes, TransitionAfter: true}); err != nil {
			return err
		}
	}
	return nil
}

func write(rp *renderpass.Renderpass, frame int, binding uint32, data []byte) error {
	return rp.Descriptors.WriteUniform(frame, binding, data)
}

// Destroy waits for the device and frees everything the renderer created.
// The world stays owned by the caller.
func (r *SceneRenderer) Destroy() {
	if r == nil {
		return
	}
	if err := r.dev.WaitIdle(); err != nil {
		core.LogWarn("scene renderer destroy: %v", err)
	}
	r.destroyPasses()
	r.scene.Destroy()
	r.scene = nil
	for _, b := range r.overlay {
		b.Destroy()
	}
	r.overlay = nil
	if r.noise != nil {
		r.noise.Destroy()
	}
	if r.null != nil {
		r.null.Destroy()
	}
	r.samplers.destroy()
}
