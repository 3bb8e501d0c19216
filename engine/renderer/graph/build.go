package graph

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/pass"
	"github.com/spaghettifunk/lumen/engine/renderer/renderpass"
	"github.com/spaghettifunk/lumen/engine/renderer/resources"
	"github.com/spaghettifunk/lumen/engine/renderer/uniforms"
	"github.com/spaghettifunk/lumen/engine/world"
)

// Attachment slots of the passes other passes read from.
const (
	slotAlbedo   = 0
	slotNormal   = 1
	slotMaterial = 2
	slotDepth    = 3

	slotLinearDepth = 0
	slotHalfNormal  = 1
)

// Binding of the bindless array in the scene set.
const sceneTextureBinding = 4

// passes holds the renderpasses of one build in recording order. blur is
// set in bilateral mode, blurH and blurV in separable mode.
type passes struct {
	geometry   *renderpass.Renderpass
	shadow     *renderpass.Renderpass
	downsample *renderpass.Renderpass
	ssao       *renderpass.Renderpass
	blur       *renderpass.Renderpass
	blurH      *renderpass.Renderpass
	blurV      *renderpass.Renderpass
	upsample   *renderpass.Renderpass
	lighting   *renderpass.Renderpass
	overlay    *renderpass.Renderpass
	present    *renderpass.Renderpass
}

// ordered lists the built renderpasses in recording order.
func (p *passes) ordered() []*renderpass.Renderpass {
	all := []*renderpass.Renderpass{
		p.geometry, p.shadow, p.downsample, p.ssao,
		p.blur, p.blurH, p.blurV,
		p.upsample, p.lighting, p.overlay, p.present,
	}
	out := all[:0]
	for _, rp := range all {
		if rp != nil {
			out = append(out, rp)
		}
	}
	return out
}

// blurred is the pass whose output the upsample reads.
func (p *passes) blurred() *renderpass.Renderpass {
	if p.blurV != nil {
		return p.blurV
	}
	return p.blur
}

func divide(v uint32, d int) uint32 {
	if d <= 1 {
		return v
	}
	return max(1, v/uint32(d))
}

func colorAttachment(name string, format gpu.Format) pass.NewAttachment {
	return pass.NewAttachment{Name: name, Format: format, LoadOp: gpu.LoadOpClear, StoreOp: gpu.StoreOpStore}
}

func depthAttachment(name string) pass.NewAttachment {
	return pass.NewAttachment{
		Name:    name,
		Format:  gpu.FormatD32Sfloat,
		LoadOp:  gpu.LoadOpClear,
		StoreOp: gpu.StoreOpStore,
		Clear:   gpu.ClearValue{Depth: 1},
	}
}

// image binds slot of p for every frame.
func image(p *pass.Pass, slot int, s *resources.Sampler) resources.ImageDescriptor {
	return resources.ImageDescriptor{Textures: p.SlotTextures(slot), Sampler: s, Stages: gpu.ShaderStageFragment}
}

func uniform(size int, stages gpu.ShaderStage) resources.UniformBuffer {
	return resources.UniformBuffer{Size: uint64(size), Stages: stages}
}

// buildScene creates the descriptor set every pass drawing the world shares:
// the per frame world storage buffers and the bindless texture array.
func (r *SceneRenderer) buildScene() error {
	all := gpu.ShaderStageAllGraphics
	set, err := resources.NewDescriptorSet(r.dev, "scene", r.frames, []resources.Descriptor{
		resources.StorageBuffer{Buffers: r.world.InstanceBuffers(), Stages: all},
		resources.StorageBuffer{Buffers: r.world.MaterialBuffers(), Stages: all},
		resources.StorageBuffer{Buffers: r.world.JointBuffers(), Stages: all},
		resources.StorageBuffer{Buffers: r.world.LightBuffers(), Stages: all},
		resources.TextureArray{
			Capacity: uint32(r.cfg.Bindless.Capacity),
			Textures: r.textures.Textures(),
			Null:     r.null,
			Sampler:  r.samplers.linearRepeat,
			Stages:   gpu.ShaderStageFragment,
		},
	})
	if err != nil {
		return err
	}
	r.scene = set
	r.textures.Attach(set, sceneTextureBinding)
	return nil
}

// build creates every pass for the current extent and wires each consumer's
// descriptors to its producers' textures.
func (r *SceneRenderer) build() (err error) {
	if r.cfg.Renderer.DebugLayouts {
		r.tracker = resources.NewLayoutTracker()
	} else {
		r.tracker = nil
	}
	r.reg = pass.NewRegistry(r.dev, r.tracker)
	r.passes = passes{}
	defer func() {
		if err != nil {
			r.destroyPasses()
		}
	}()

	cfg := r.cfg
	width, height := r.extent.Width, r.extent.Height
	halfW, halfH := divide(width, cfg.SSAO.Downsample), divide(height, cfg.SSAO.Downsample)
	fragStage := gpu.ShaderStageFragment
	vertFrag := gpu.ShaderStageVertex | gpu.ShaderStageFragment
	s := r.samplers
	p := &r.passes
	newPass := func(name string, w, h uint32, attachments ...pass.Attachment) renderpass.CreatePass {
		return renderpass.CreatePass{Spec: pass.Spec{Name: name, Width: w, Height: h, Frames: r.frames, Attachments: attachments}}
	}
	shaders := func(refs ...shaderRef) []gpu.ShaderModule {
		if err != nil {
			return nil
		}
		var m []gpu.ShaderModule
		m, err = loadShaders(r.shaders, refs...)
		return m
	}
	post := func(fragment string) []gpu.ShaderModule {
		return shaders(vert(shaderFullscreen), frag(fragment))
	}
	create := func(spec renderpass.Spec) *renderpass.Renderpass {
		if err != nil {
			return nil
		}
		var rp *renderpass.Renderpass
		rp, err = renderpass.New(r.dev, r.reg, spec)
		if rp != nil {
			rp.Descriptors.SetGuard(r.guard)
		}
		return rp
	}

	p.geometry = create(renderpass.Spec{
		Name: "geometry",
		Source: newPass("geometry", width, height,
			colorAttachment("albedo", gpu.FormatRGBA8Unorm),
			colorAttachment("normal", gpu.FormatRGBA16Sfloat),
			colorAttachment("material", gpu.FormatRGBA8Unorm),
			depthAttachment("depth"),
		),
		Descriptors: []resources.Descriptor{uniform(uniforms.CameraBlockSize, vertFrag)},
		ExtraSets:   []*resources.DescriptorSet{r.scene},
		Pipelines: []renderpass.PipelineSpec{{
			Name:             "geometry",
			Shaders:          shaders(vert(shaderGeometryVert), frag(shaderGeometryFrag)),
			VertexBindings:   world.VertexBindings(),
			VertexAttributes: world.VertexAttributes(),
			CullMode:         gpu.CullBack,
			DepthTest:        true,
			DepthWrite:       true,
			DepthCompare:     gpu.CompareLess,
			ColorOutputs:     3,
		}},
	})
	if err != nil {
		return err
	}

	shadowSource := newPass("shadow", cfg.Shadow.Resolution, cfg.Shadow.Resolution, depthAttachment("depth"))
	shadowSource.Spec.Layers = uint32(cfg.Shadow.Cascades)
	p.shadow = create(renderpass.Spec{
		Name:        "shadow",
		Source:      shadowSource,
		Descriptors: []resources.Descriptor{uniform(uniforms.ShadowBlockSize, gpu.ShaderStageGeometry)},
		ExtraSets:   []*resources.DescriptorSet{r.scene},
		Pipelines: []renderpass.PipelineSpec{{
			Name:             "shadow",
			Shaders:          shaders(vert(shaderShadowVert), geom(shaderShadowGeom)),
			VertexBindings:   world.VertexBindings(),
			VertexAttributes: world.VertexAttributes(),
			CullMode:         gpu.CullNone,
			DepthTest:        true,
			DepthWrite:       true,
			DepthCompare:     gpu.CompareLessOrEqual,
			DepthBias:        true,
		}},
	})
	if err != nil {
		return err
	}

	geometry := p.geometry.Pass
	p.downsample = create(renderpass.Spec{
		Name: "ssao-downsample",
		Source: newPass("ssao-downsample", halfW, halfH,
			colorAttachment("linear-depth", gpu.FormatR32Sfloat),
			colorAttachment("normal", gpu.FormatRGBA16Sfloat),
		),
		Descriptors: []resources.Descriptor{
			uniform(uniforms.CameraBlockSize, fragStage),
			image(geometry, slotDepth, s.nearestClamp),
			image(geometry, slotNormal, s.nearestClamp),
		},
		Pipelines: []renderpass.PipelineSpec{{Name: "ssao-downsample", Shaders: post(shaderDownsample)}},
	})
	if err != nil {
		return err
	}

	half := p.downsample.Pass
	p.ssao = create(renderpass.Spec{
		Name:   "ssao",
		Source: newPass("ssao", halfW, halfH, colorAttachment("ao", gpu.FormatR8Unorm)),
		Descriptors: []resources.Descriptor{
			uniform(uniforms.SSAOBlockSize, fragStage),
			image(half, slotLinearDepth, s.nearestClamp),
			image(half, slotHalfNormal, s.nearestClamp),
			resources.ImageDescriptor{Textures: []*resources.Texture{r.noise}, Sampler: s.nearestRepeat, Stages: fragStage},
		},
		Pipelines: []renderpass.PipelineSpec{{Name: "ssao", Shaders: post(shaderSSAO)}},
	})
	if err != nil {
		return err
	}

	switch cfg.SSAO.Blur {
	case config.BlurSeparable:
		p.blurH = r.createBlur(create, post, "ssao-blur-h", p.ssao.Pass, half, halfW, halfH)
		if err != nil {
			return err
		}
		p.blurV = r.createBlur(create, post, "ssao-blur-v", p.blurH.Pass, half, halfW, halfH)
	default:
		p.blur = r.createBlur(create, post, "ssao-blur", p.ssao.Pass, half, halfW, halfH)
	}
	if err != nil {
		return err
	}

	p.upsample = create(renderpass.Spec{
		Name:   "ssao-upsample",
		Source: newPass("ssao-upsample", width, height, colorAttachment("ao", gpu.FormatR8Unorm)),
		Descriptors: []resources.Descriptor{
			image(p.blurred().Pass, 0, s.linearClamp),
			image(half, slotLinearDepth, s.nearestClamp),
			image(geometry, slotDepth, s.nearestClamp),
			image(half, slotHalfNormal, s.nearestClamp),
			image(geometry, slotNormal, s.nearestClamp),
		},
		Pipelines:        []renderpass.PipelineSpec{{Name: "ssao-upsample", Shaders: post(shaderUpsample)}},
		PushConstantSize: 16,
		PushStages:       fragStage,
	})
	if err != nil {
		return err
	}

	p.lighting = create(renderpass.Spec{
		Name:   "lighting",
		Source: newPass("lighting", width, height, colorAttachment("hdr", gpu.FormatRGBA16Sfloat)),
		Descriptors: []resources.Descriptor{
			uniform(uniforms.CameraBlockSize, fragStage),
			uniform(uniforms.ShadowBlockSize, fragStage),
			image(geometry, slotAlbedo, s.nearestClamp),
			image(geometry, slotNormal, s.nearestClamp),
			image(geometry, slotMaterial, s.nearestClamp),
			image(geometry, slotDepth, s.nearestClamp),
			image(p.upsample.Pass, 0, s.linearClamp),
			image(p.shadow.Pass, 0, s.shadow),
		},
		ExtraSets:        []*resources.DescriptorSet{r.scene},
		Pipelines:        []renderpass.PipelineSpec{{Name: "lighting", Shaders: post(shaderLighting)}},
		PushConstantSize: 16,
		PushStages:       fragStage,
	})
	if err != nil {
		return err
	}

	p.overlay = create(renderpass.Spec{
		Name: "gui",
		Source: renderpass.CreatePass{Spec: pass.Spec{
			Name: "gui", Width: width, Height: height, Frames: r.frames,
			Attachments: []pass.Attachment{pass.AliasAttachment{Pass: p.lighting.Pass.ID, Slot: 0}},
		}},
		Descriptors: []resources.Descriptor{
			resources.StorageBuffer{Buffers: r.overlay, Stages: gpu.ShaderStageVertex},
		},
		ExtraSets: []*resources.DescriptorSet{r.scene},
		Pipelines: []renderpass.PipelineSpec{{
			Name:    "gui",
			Shaders: shaders(vert(shaderOverlayVert), frag(shaderOverlayFrag)),
			Blend:   gpu.BlendAlpha,
		}},
		PushConstantSize: 8,
		PushStages:       gpu.ShaderStageVertex,
	})
	if err != nil {
		return err
	}

	p.present = create(renderpass.Spec{
		Name: "present",
		Source: renderpass.CreatePass{Spec: pass.Spec{
			Name: "present", Width: width, Height: height, Frames: r.frames,
			Attachments: []pass.Attachment{pass.SwapchainAttachment{
				Views:  r.driver.SwapchainViews(),
				Format: r.driver.SwapchainFormat(),
			}},
		}},
		Descriptors:      []resources.Descriptor{image(p.overlay.Pass, 0, s.linearClamp)},
		Pipelines:        []renderpass.PipelineSpec{{Name: "present", Shaders: post(shaderPresent)}},
		PushConstantSize: 8,
		PushStages:       fragStage,
	})
	return err
}

func (r *SceneRenderer) createBlur(
	create func(renderpass.Spec) *renderpass.Renderpass,
	post func(string) []gpu.ShaderModule,
	name string, input, half *pass.Pass, w, h uint32,
) *renderpass.Renderpass {
	shader, push := shaderBlurBilateral, uint32(0)
	if r.cfg.SSAO.Blur == config.BlurSeparable {
		shader, push = shaderBlurSeparable, 8
	}
	stage := gpu.ShaderStageFragment
	return create(renderpass.Spec{
		Name: name,
		Source: renderpass.CreatePass{Spec: pass.Spec{
			Name: name, Width: w, Height: h, Frames: r.frames,
			Attachments: []pass.Attachment{colorAttachment("ao", gpu.FormatR8Unorm)},
		}},
		Descriptors: []resources.Descriptor{
			uniform(uniforms.BlurBlockSize, stage),
			image(input, 0, r.samplers.nearestClamp),
			image(half, slotLinearDepth, r.samplers.nearestClamp),
		},
		Pipelines:        []renderpass.PipelineSpec{{Name: name, Shaders: post(shader)}},
		PushConstantSize: push,
		PushStages:       stage,
	})
}

func (r *SceneRenderer) destroyPasses() {
	ordered := r.passes.ordered()
	for i := len(ordered) - 1; i >= 0; i-- {
		ordered[i].Destroy()
	}
	r.passes = passes{}
	if r.reg != nil {
		r.reg.Destroy()
		r.reg = nil
	}
}

func (r *SceneRenderer) checkBuilt() error {
	if r.passes.present == nil {
		return fmt.Errorf("scene renderer has no passes")
	}
	return nil
}
