// Package renderpass couples a Pass with its pipelines and descriptor set
// and records the begin, push, draw, end and transition sequence every
// pass of the renderer shares.
package renderpass

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/pass"
	"github.com/spaghettifunk/lumen/engine/renderer/resources"
)

var ErrPushConstantSize = errors.New("push constant size mismatch")

// PassSource is either CreatePass or ReferencePass.
type PassSource interface {
	isPassSource()
}

// CreatePass builds a new Pass owned by the Renderpass.
type CreatePass struct {
	Spec pass.Spec
}

// ReferencePass renders into a Pass created elsewhere, which keeps
// ownership of it.
type ReferencePass struct {
	ID pass.ID
}

func (CreatePass) isPassSource()    {}
func (ReferencePass) isPassSource() {}

type PipelineSpec struct {
	Name             string
	Shaders          []gpu.ShaderModule
	VertexBindings   []gpu.VertexBinding
	VertexAttributes []gpu.VertexAttribute
	CullMode         gpu.CullMode
	DepthTest        bool
	DepthWrite       bool
	DepthCompare     gpu.CompareOp
	DepthBias        bool
	Blend            gpu.BlendMode
	// ColorOutputs is the number of color outputs the fragment shader
	// writes. Zero means "whatever the pass has".
	ColorOutputs int
}

type Spec struct {
	Name        string
	Source      PassSource
	Descriptors []resources.Descriptor
	// ExtraSets are bound after the renderpass' own set, at set 1 onward.
	ExtraSets        []*resources.DescriptorSet
	Pipelines        []PipelineSpec
	PushConstantSize uint32
	PushStages       gpu.ShaderStage
}

type Renderpass struct {
	Name        string
	Pass        *pass.Pass
	Descriptors *resources.DescriptorSet
	Pipelines   []gpu.Pipeline

	pushSize   uint32
	pushStages gpu.ShaderStage
	extraSets  []*resources.DescriptorSet
	ownsPass   bool
	dev        gpu.Device
	tracker    *resources.LayoutTracker
	destroyed  bool
}

func New(dev gpu.Device, reg *pass.Registry, spec Spec) (*Renderpass, error) {
	if len(spec.Pipelines) == 0 {
		return nil, fmt.Errorf("renderpass %q has no pipelines", spec.Name)
	}
	if spec.PushConstantSize > 128 {
		return nil, fmt.Errorf("renderpass %q: %w: %d bytes exceed 128", spec.Name, ErrPushConstantSize, spec.PushConstantSize)
	}
	rp := &Renderpass{
		Name:       spec.Name,
		pushSize:   spec.PushConstantSize,
		pushStages: spec.PushStages,
		extraSets:  spec.ExtraSets,
		dev:        dev,
		tracker:    reg.Tracker(),
	}

	switch src := spec.Source.(type) {
	case CreatePass:
		p, err := reg.Create(src.Spec)
		if err != nil {
			return nil, fmt.Errorf("renderpass %q: %w", spec.Name, err)
		}
		rp.Pass = p
		rp.ownsPass = true
	case ReferencePass:
		p, err := reg.Get(src.ID)
		if err != nil {
			return nil, fmt.Errorf("renderpass %q: %w", spec.Name, err)
		}
		rp.Pass = p
	default:
		return nil, fmt.Errorf("renderpass %q: no pass source", spec.Name)
	}

	var err error
	rp.Descriptors, err = resources.NewDescriptorSet(dev, spec.Name, rp.Pass.Frames, spec.Descriptors)
	if err != nil {
		rp.Destroy()
		return nil, err
	}

	layouts := []gpu.DescriptorSetLayout{rp.Descriptors.Layout}
	for _, s := range spec.ExtraSets {
		layouts = append(layouts, s.Layout)
	}
	colors := rp.Pass.ColorAttachments()
	for _, ps := range spec.Pipelines {
		if ps.ColorOutputs != 0 && ps.ColorOutputs != colors {
			rp.Destroy()
			return nil, fmt.Errorf("renderpass %q pipeline %q writes %d colors, pass %q has %d", spec.Name, ps.Name, ps.ColorOutputs, rp.Pass.Name, colors)
		}
		pl, err := dev.CreatePipeline(gpu.PipelineDesc{
			Name:             ps.Name,
			Target:           rp.Pass.Target,
			Shaders:          ps.Shaders,
			VertexBindings:   ps.VertexBindings,
			VertexAttributes: ps.VertexAttributes,
			CullMode:         ps.CullMode,
			DepthTest:        ps.DepthTest,
			DepthWrite:       ps.DepthWrite,
			DepthCompare:     ps.DepthCompare,
			DepthBias:        ps.DepthBias,
			Blend:            ps.Blend,
			ColorAttachments: colors,
			SetLayouts:       layouts,
			PushConstantSize: spec.PushConstantSize,
			PushStages:       spec.PushStages,
		})
		if err != nil {
			rp.Destroy()
			return nil, fmt.Errorf("renderpass %q pipeline %q: %w", spec.Name, ps.Name, err)
		}
		rp.Pipelines = append(rp.Pipelines, pl)
	}
	return rp, nil
}

// Begin starts the pass for frame: begins the render target, binds pipeline
// 0, sets viewport and scissor to the pass extent and binds the frame's
// descriptor sets.
func (rp *Renderpass) Begin(frame int, cmd gpu.CommandBuffer, framebufferOverride *int) error {
	if rp.destroyed {
		return fmt.Errorf("renderpass %q destroyed", rp.Name)
	}
	if err := rp.Pass.CheckBegin(frame); err != nil {
		return fmt.Errorf("renderpass %q: %w", rp.Name, err)
	}
	// Every set is checked before the target begins, so nothing after
	// BeginRenderTarget can fail and leave the target open.
	if err := rp.checkInputs(frame); err != nil {
		return err
	}
	cmd.BeginRenderTarget(rp.Pass.BeginInfo(frame, framebufferOverride, nil))
	cmd.BindPipeline(rp.Pipelines[0])
	cmd.SetViewport(gpu.Viewport{Width: float32(rp.Pass.Width), Height: float32(rp.Pass.Height), MaxDepth: 1})
	cmd.SetScissor(gpu.Rect{Width: rp.Pass.Width, Height: rp.Pass.Height})
	rp.Descriptors.Bind(cmd, rp.Pipelines[0], 0, frame)
	for i, s := range rp.extraSets {
		s.Bind(cmd, rp.Pipelines[0], uint32(i+1), frame)
	}
	return nil
}

func (rp *Renderpass) checkInputs(frame int) error {
	if err := rp.Descriptors.CheckLayouts(frame, rp.tracker); err != nil {
		return fmt.Errorf("renderpass %q: %w", rp.Name, err)
	}
	for _, s := range rp.extraSets {
		if err := s.CheckLayouts(frame, rp.tracker); err != nil {
			return fmt.Errorf("renderpass %q: %w", rp.Name, err)
		}
	}
	return nil
}

// End ends the render target and records the attachments' final layouts.
func (rp *Renderpass) End(frame int, cmd gpu.CommandBuffer) {
	cmd.EndRenderTarget()
	rp.Pass.Ended(frame)
}

// Push records push constants. data must be exactly the declared size.
func (rp *Renderpass) Push(cmd gpu.CommandBuffer, data []byte) error {
	if uint32(len(data)) != rp.pushSize {
		return fmt.Errorf("renderpass %q: %w: got %d bytes, declared %d", rp.Name, ErrPushConstantSize, len(data), rp.pushSize)
	}
	cmd.PushConstants(rp.Pipelines[0], rp.pushStages, 0, data)
	return nil
}

type Options struct {
	// PushConstants returns the push constant block for the frame.
	PushConstants func() []byte
	// Draw records the draws. Nil draws one fullscreen quad of 6 vertices.
	Draw func(cmd gpu.CommandBuffer) error
	// TransitionAfter makes the attachments readable once the pass ends.
	TransitionAfter bool
	// BarrierAfter keeps the attachments in attachment layout and makes the
	// writes visible to a following pass that loads them. Ignored when
	// TransitionAfter is set.
	BarrierAfter        bool
	FramebufferOverride *int
}

// DoRenderpass records begin, push constants, draw, end and the optional
// transition to readable.
func (rp *Renderpass) DoRenderpass(frame int, cmd gpu.CommandBuffer, opts Options) error {
	if err := rp.Begin(frame, cmd, opts.FramebufferOverride); err != nil {
		return err
	}
	if opts.PushConstants != nil {
		if err := rp.Push(cmd, opts.PushConstants()); err != nil {
			rp.End(frame, cmd)
			return err
		}
	}
	if opts.Draw != nil {
		if err := opts.Draw(cmd); err != nil {
			rp.End(frame, cmd)
			return fmt.Errorf("renderpass %q draw: %w", rp.Name, err)
		}
	} else {
		cmd.Draw(6, 1, 0, 0)
	}
	rp.End(frame, cmd)
	switch {
	case opts.TransitionAfter:
		return rp.Pass.TransitionToReadable(cmd, frame)
	case opts.BarrierAfter:
		return rp.Pass.AttachmentBarrier(cmd, frame)
	}
	return nil
}

// Destroy frees the pipelines and descriptor set, and the pass when owned.
func (rp *Renderpass) Destroy() {
	if rp == nil || rp.destroyed {
		return
	}
	rp.destroyed = true
	for _, p := range rp.Pipelines {
		rp.dev.DestroyPipeline(p)
	}
	rp.Pipelines = nil
	rp.Descriptors.Destroy()
	if rp.ownsPass {
		rp.Pass.Destroy()
	}
}
