// Package pass builds render targets: per frame attachment textures, one
// shared render target handle and per frame framebuffers.
package pass

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/resources"
)

var ErrDestroyed = errors.New("pass destroyed")

// ID indexes a Pass inside its Registry.
type ID int

// Attachment is one of NewAttachment, AliasAttachment or SwapchainAttachment.
type Attachment interface {
	isAttachment()
}

// NewAttachment allocates a fresh texture per frame.
type NewAttachment struct {
	Name        string
	Format      gpu.Format
	LoadOp      gpu.LoadOp
	StoreOp     gpu.StoreOp
	Clear       gpu.ClearValue
	StencilView bool
}

// AliasAttachment renders into attachment Slot of an earlier pass, loading
// its contents. The producing pass must have left it in attachment layout.
type AliasAttachment struct {
	Pass ID
	Slot int
}

// SwapchainAttachment renders into presentable images. Framebuffers are
// created per swapchain image and selected with a framebuffer override.
type SwapchainAttachment struct {
	Views  []gpu.ImageView
	Format gpu.Format
	Clear  gpu.ClearValue
}

func (NewAttachment) isAttachment()       {}
func (AliasAttachment) isAttachment()     {}
func (SwapchainAttachment) isAttachment() {}

type Spec struct {
	Name   string
	Width  uint32
	Height uint32
	// Layers above one make a layered framebuffer, written by a geometry
	// shader selecting gl_Layer.
	Layers      uint32
	Frames      int
	Attachments []Attachment
}

type Pass struct {
	ID     ID
	Name   string
	Width  uint32
	Height uint32
	Layers uint32
	Frames int

	// Textures is indexed [frame][slot]. Swapchain slots are nil.
	Textures     [][]*resources.Texture
	Target       gpu.RenderTarget
	Framebuffers []gpu.Framebuffer
	ClearValues  []gpu.ClearValue

	attachments []gpu.AttachmentDesc
	swapchain   int
	spec        Spec
	dev         gpu.Device
	reg         *Registry
	tracker     *resources.LayoutTracker
	destroyed   bool
}

func newPass(dev gpu.Device, reg *Registry, tracker *resources.LayoutTracker, id ID, spec Spec) (*Pass, error) {
	if spec.Frames <= 0 {
		return nil, fmt.Errorf("pass %q: frames must be positive", spec.Name)
	}
	if len(spec.Attachments) == 0 {
		return nil, fmt.Errorf("pass %q has no attachments", spec.Name)
	}
	if spec.Layers == 0 {
		spec.Layers = 1
	}
	spec.Attachments = append([]Attachment(nil), spec.Attachments...)
	p := &Pass{
		ID:        id,
		Name:      spec.Name,
		Frames:    spec.Frames,
		Layers:    spec.Layers,
		swapchain: -1,
		spec:      spec,
		dev:       dev,
		reg:       reg,
		tracker:   tracker,
	}
	if err := p.build(spec.Width, spec.Height); err != nil {
		p.release()
		return nil, err
	}
	return p, nil
}

func (p *Pass) build(width, height uint32) error {
	p.Width, p.Height = width, height
	p.Textures = make([][]*resources.Texture, p.Frames)
	for f := range p.Textures {
		p.Textures[f] = make([]*resources.Texture, len(p.spec.Attachments))
	}
	p.attachments = make([]gpu.AttachmentDesc, len(p.spec.Attachments))
	p.ClearValues = make([]gpu.ClearValue, len(p.spec.Attachments))

	depth := 0
	for slot, a := range p.spec.Attachments {
		switch a := a.(type) {
		case NewAttachment:
			desc, err := p.buildNew(slot, a)
			if err != nil {
				return err
			}
			p.attachments[slot] = desc
			p.ClearValues[slot] = a.Clear
		case AliasAttachment:
			desc, err := p.buildAlias(slot, a)
			if err != nil {
				return err
			}
			p.attachments[slot] = desc
		case SwapchainAttachment:
			if p.swapchain >= 0 {
				return fmt.Errorf("pass %q has more than one swapchain attachment", p.Name)
			}
			if len(a.Views) == 0 {
				return fmt.Errorf("pass %q swapchain attachment has no views", p.Name)
			}
			p.swapchain = slot
			p.attachments[slot] = gpu.AttachmentDesc{
				Format:        a.Format,
				Samples:       1,
				LoadOp:        gpu.LoadOpClear,
				StoreOp:       gpu.StoreOpStore,
				InitialLayout: gpu.ImageLayoutUndefined,
				FinalLayout:   gpu.ImageLayoutPresentSrc,
			}
			p.ClearValues[slot] = a.Clear
		default:
			return fmt.Errorf("pass %q slot %d: unknown attachment %T", p.Name, slot, a)
		}
		if p.attachments[slot].Format.IsDepth() {
			depth++
		}
	}
	if depth > 1 {
		return fmt.Errorf("pass %q has %d depth attachments", p.Name, depth)
	}
	if last := p.attachments[len(p.attachments)-1]; depth == 1 && !last.Format.IsDepth() {
		return fmt.Errorf("pass %q: depth attachment must be the last slot", p.Name)
	}

	var err error
	p.Target, err = p.dev.CreateRenderTarget(gpu.RenderTargetDesc{Name: p.Name, Attachments: p.attachments})
	if err != nil {
		return fmt.Errorf("pass %q render target: %w", p.Name, err)
	}

	count := p.Frames
	if p.swapchain >= 0 {
		count = len(p.spec.Attachments[p.swapchain].(SwapchainAttachment).Views)
	}
	p.Framebuffers = make([]gpu.Framebuffer, count)
	for i := range p.Framebuffers {
		views := make([]gpu.ImageView, len(p.attachments))
		for slot := range views {
			if slot == p.swapchain {
				views[slot] = p.spec.Attachments[slot].(SwapchainAttachment).Views[i]
				continue
			}
			// A swapchain pass shares its other attachments between images.
			views[slot] = p.Textures[i%p.Frames][slot].View
		}
		p.Framebuffers[i], err = p.dev.CreateFramebuffer(gpu.FramebufferDesc{
			Target: p.Target,
			Views:  views,
			Width:  width,
			Height: height,
			Layers: p.Layers,
		})
		if err != nil {
			return fmt.Errorf("pass %q framebuffer %d: %w", p.Name, i, err)
		}
	}
	core.LogDebug("pass %s built at %dx%d with %d framebuffers", p.Name, width, height, len(p.Framebuffers))
	return nil
}

func (p *Pass) buildNew(slot int, a NewAttachment) (gpu.AttachmentDesc, error) {
	usage := gpu.ImageUsageSampled | gpu.ImageUsageTransferSrc
	if a.Format.IsDepth() {
		usage |= gpu.ImageUsageDepthStencilAttachment
	} else {
		usage |= gpu.ImageUsageColorAttachment
	}
	for f := 0; f < p.Frames; f++ {
		tex, err := resources.NewTexture(p.dev, resources.TextureSpec{
			Name:        fmt.Sprintf("%s.%s[%d]", p.Name, a.Name, f),
			Width:       p.Width,
			Height:      p.Height,
			Layers:      p.Layers,
			Format:      a.Format,
			Samples:     1,
			Usage:       usage,
			StencilView: a.StencilView,
			LoadOp:      a.LoadOp,
			StoreOp:     a.StoreOp,
		})
		if err != nil {
			return gpu.AttachmentDesc{}, fmt.Errorf("pass %q slot %d: %w", p.Name, slot, err)
		}
		p.Textures[f][slot] = tex
		p.tracker.Track(tex, gpu.ImageLayoutUndefined)
	}
	tex := p.Textures[0][slot]
	return gpu.AttachmentDesc{
		Format:         a.Format,
		Samples:        1,
		LoadOp:         a.LoadOp,
		StoreOp:        a.StoreOp,
		StencilLoadOp:  gpu.LoadOpDontCare,
		StencilStoreOp: gpu.StoreOpDontCare,
		InitialLayout:  gpu.ImageLayoutUndefined,
		FinalLayout:    tex.AttachmentLayout(),
	}, nil
}

func (p *Pass) buildAlias(slot int, a AliasAttachment) (gpu.AttachmentDesc, error) {
	if p.reg == nil {
		return gpu.AttachmentDesc{}, fmt.Errorf("pass %q: alias attachments need a registry", p.Name)
	}
	src, err := p.reg.Get(a.Pass)
	if err != nil {
		return gpu.AttachmentDesc{}, fmt.Errorf("pass %q slot %d: %w", p.Name, slot, err)
	}
	if src.Frames != p.Frames {
		return gpu.AttachmentDesc{}, fmt.Errorf("pass %q aliases %q with %d frames, has %d", p.Name, src.Name, src.Frames, p.Frames)
	}
	if a.Slot < 0 || a.Slot >= len(src.attachments) || a.Slot == src.swapchain {
		return gpu.AttachmentDesc{}, fmt.Errorf("pass %q aliases invalid slot %d of %q", p.Name, a.Slot, src.Name)
	}
	if src.Width != p.Width || src.Height != p.Height {
		return gpu.AttachmentDesc{}, fmt.Errorf("pass %q is %dx%d, aliased %q is %dx%d", p.Name, p.Width, p.Height, src.Name, src.Width, src.Height)
	}
	var layout gpu.ImageLayout
	for f := 0; f < p.Frames; f++ {
		orig := src.Textures[f][a.Slot]
		layout = orig.AttachmentLayout()
		tex, err := resources.NewTexture(p.dev, resources.TextureSpec{
			Preexisting:   orig,
			LoadOp:        gpu.LoadOpLoad,
			InitialLayout: layout,
		})
		if err != nil {
			return gpu.AttachmentDesc{}, err
		}
		p.Textures[f][slot] = tex
	}
	return gpu.AttachmentDesc{
		Format:         src.attachments[a.Slot].Format,
		Samples:        1,
		LoadOp:         gpu.LoadOpLoad,
		StoreOp:        gpu.StoreOpStore,
		StencilLoadOp:  gpu.LoadOpDontCare,
		StencilStoreOp: gpu.StoreOpDontCare,
		InitialLayout:  layout,
		FinalLayout:    layout,
	}, nil
}

// Attachments returns the attachment descriptions in slot order.
func (p *Pass) Attachments() []gpu.AttachmentDesc {
	return p.attachments
}

// ColorAttachments counts the non depth attachments.
func (p *Pass) ColorAttachments() int {
	n := 0
	for _, a := range p.attachments {
		if !a.Format.IsDepth() {
			n++
		}
	}
	return n
}

func (p *Pass) HasSwapchain() bool {
	return p.swapchain >= 0
}

// Texture returns the texture of slot for frame.
func (p *Pass) Texture(frame, slot int) *resources.Texture {
	return p.Textures[frame][slot]
}

// SlotTextures returns slot's texture for every frame, in frame order.
func (p *Pass) SlotTextures(slot int) []*resources.Texture {
	out := make([]*resources.Texture, p.Frames)
	for f := range out {
		out[f] = p.Textures[f][slot]
	}
	return out
}

// BeginInfo returns the begin parameters for frame. framebufferOverride
// selects a different framebuffer, which swapchain passes need because the
// acquired image index differs from the frame slot. scissor defaults to the
// full extent.
func (p *Pass) BeginInfo(frame int, framebufferOverride *int, scissor *gpu.Rect) gpu.RenderTargetBegin {
	fb := frame
	if framebufferOverride != nil {
		fb = *framebufferOverride
	}
	area := gpu.Rect{Width: p.Width, Height: p.Height}
	if scissor != nil {
		area = *scissor
	}
	return gpu.RenderTargetBegin{
		Target:      p.Target,
		Framebuffer: p.Framebuffers[fb],
		Area:        area,
		ClearValues: p.ClearValues,
	}
}

// CheckBegin verifies the tracked layouts of frame's attachments against the
// layouts the render target expects to find them in.
func (p *Pass) CheckBegin(frame int) error {
	if p.destroyed {
		return fmt.Errorf("%w: %q", ErrDestroyed, p.Name)
	}
	for slot, a := range p.attachments {
		if slot == p.swapchain || a.InitialLayout == gpu.ImageLayoutUndefined {
			continue
		}
		if err := p.tracker.Expect(p.Textures[frame][slot].Image, a.InitialLayout, "begin "+p.Name); err != nil {
			return err
		}
	}
	return nil
}

// Ended records the final layouts after the render target of frame ended.
func (p *Pass) Ended(frame int) {
	for slot, a := range p.attachments {
		if slot == p.swapchain {
			continue
		}
		p.tracker.Set(p.Textures[frame][slot].Image, a.FinalLayout)
	}
}

// TransitionToReadable records one barrier per attachment of frame, moving
// it from attachment layout to the layout later passes sample it in.
func (p *Pass) TransitionToReadable(cmd gpu.CommandBuffer, frame int) error {
	if p.destroyed {
		return fmt.Errorf("%w: %q", ErrDestroyed, p.Name)
	}
	if frame < 0 || frame >= p.Frames {
		return fmt.Errorf("pass %q: frame %d out of range", p.Name, frame)
	}
	for slot, tex := range p.Textures[frame] {
		if slot == p.swapchain {
			continue
		}
		b, src, dst := ReadableBarrier(tex)
		if err := p.tracker.Expect(tex.Image, b.OldLayout, "transition "+p.Name); err != nil {
			return err
		}
		cmd.PipelineBarrier(src, dst, []gpu.ImageBarrier{b}, nil)
		p.tracker.Set(tex.Image, b.NewLayout)
	}
	return nil
}

// AttachmentBarrier records one barrier per attachment of frame that keeps
// it in attachment layout and orders this pass's writes before a following
// pass that loads the same image as its own attachment.
func (p *Pass) AttachmentBarrier(cmd gpu.CommandBuffer, frame int) error {
	if p.destroyed {
		return fmt.Errorf("%w: %q", ErrDestroyed, p.Name)
	}
	if frame < 0 || frame >= p.Frames {
		return fmt.Errorf("pass %q: frame %d out of range", p.Name, frame)
	}
	for slot, tex := range p.Textures[frame] {
		if slot == p.swapchain {
			continue
		}
		layout := tex.AttachmentLayout()
		if err := p.tracker.Expect(tex.Image, layout, "attachment barrier "+p.Name); err != nil {
			return err
		}
		b := gpu.ImageBarrier{
			Image:      tex.Image,
			OldLayout:  layout,
			NewLayout:  layout,
			SrcAccess:  gpu.AccessColorAttachmentWrite,
			DstAccess:  gpu.AccessColorAttachmentRead | gpu.AccessColorAttachmentWrite,
			Aspect:     gpu.AspectOf(tex.Format),
			LayerCount: tex.Layers,
		}
		src, dst := gpu.StageColorAttachmentOutput, gpu.StageColorAttachmentOutput
		if tex.IsDepth() {
			b.SrcAccess = gpu.AccessDepthStencilAttachmentWrite
			b.DstAccess = gpu.AccessDepthStencilAttachmentRead | gpu.AccessDepthStencilAttachmentWrite
			src, dst = gpu.StageLateFragmentTests, gpu.StageEarlyFragmentTests
		}
		cmd.PipelineBarrier(src, dst, []gpu.ImageBarrier{b}, nil)
	}
	return nil
}

// ReadableBarrier is the attachment to sampled barrier for t with its
// source and destination stages.
func ReadableBarrier(t *resources.Texture) (gpu.ImageBarrier, gpu.PipelineStage, gpu.PipelineStage) {
	b := gpu.ImageBarrier{
		Image:      t.Image,
		OldLayout:  t.AttachmentLayout(),
		NewLayout:  t.ReadableLayout(),
		DstAccess:  gpu.AccessShaderRead,
		Aspect:     gpu.AspectOf(t.Format),
		LayerCount: t.Layers,
	}
	if t.IsDepth() {
		b.SrcAccess = gpu.AccessDepthStencilAttachmentWrite
		return b, gpu.StageLateFragmentTests, gpu.StageFragmentShader
	}
	b.SrcAccess = gpu.AccessColorAttachmentWrite
	return b, gpu.StageColorAttachmentOutput, gpu.StageFragmentShader
}

// Resize recreates every attachment and framebuffer at the new extent. The
// device must be idle. Passes aliasing this one must be resized after it.
func (p *Pass) Resize(width, height uint32) error {
	if p.destroyed {
		return fmt.Errorf("%w: %q", ErrDestroyed, p.Name)
	}
	p.release()
	return p.build(width, height)
}

func (p *Pass) release() {
	for _, fb := range p.Framebuffers {
		if fb != 0 {
			p.dev.DestroyFramebuffer(fb)
		}
	}
	p.Framebuffers = nil
	if p.Target != 0 {
		p.dev.DestroyRenderTarget(p.Target)
		p.Target = 0
	}
	for _, frame := range p.Textures {
		for _, tex := range frame {
			if tex == nil {
				continue
			}
			if !tex.IsAlias() {
				p.tracker.Forget(tex)
			}
			tex.Destroy()
		}
	}
	p.Textures = nil
}

// Destroy frees every object of the pass exactly once.
func (p *Pass) Destroy() {
	if p == nil || p.destroyed {
		return
	}
	p.release()
	p.destroyed = true
}

func (p *Pass) Destroyed() bool {
	return p.destroyed
}
