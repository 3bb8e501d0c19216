package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

type vulkanRenderTarget struct {
	handle vk.RenderPass
	desc   gpu.RenderTargetDesc
}

type vulkanFramebuffer struct {
	handle vk.Framebuffer
	target gpu.RenderTarget
}

// CreateRenderTarget builds a single subpass render pass. Color attachments
// precede the optional depth attachment.
func (b *Backend) CreateRenderTarget(desc gpu.RenderTargetDesc) (gpu.RenderTarget, error) {
	ctx := b.context
	attachments := make([]vk.AttachmentDescription, len(desc.Attachments))
	var colorRefs []vk.AttachmentReference
	var depthRef *vk.AttachmentReference

	for i, a := range desc.Attachments {
		attachments[i] = vk.AttachmentDescription{
			Format:         toFormat(a.Format),
			Samples:        toSamples(a.Samples),
			LoadOp:         toLoadOp(a.LoadOp),
			StoreOp:        toStoreOp(a.StoreOp),
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  toLayout(a.InitialLayout),
			FinalLayout:    toLayout(a.FinalLayout),
		}
		if a.Format.HasStencil() {
			attachments[i].StencilLoadOp = toLoadOp(a.StencilLoadOp)
			attachments[i].StencilStoreOp = toStoreOp(a.StencilStoreOp)
		}
		if a.Format.IsDepth() {
			if depthRef != nil {
				return 0, fmt.Errorf("render target %s: more than one depth attachment", desc.Name)
			}
			depthRef = &vk.AttachmentReference{Attachment: uint32(i), Layout: vk.ImageLayoutDepthStencilAttachmentOptimal}
			continue
		}
		if depthRef != nil {
			return 0, fmt.Errorf("render target %s: color attachment %d after depth", desc.Name, i)
		}
		colorRefs = append(colorRefs, vk.AttachmentReference{Attachment: uint32(i), Layout: vk.ImageLayoutColorAttachmentOptimal})
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:       vk.PipelineBindPointGraphics,
		ColorAttachmentCount:    uint32(len(colorRefs)),
		PColorAttachments:       colorRefs,
		PDepthStencilAttachment: depthRef,
	}

	attachmentStages := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit) |
		vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit) |
		vk.PipelineStageFlags(vk.PipelineStageLateFragmentTestsBit)
	attachmentAccess := vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit) |
		vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit) | vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit)
	// Earlier passes writing the same images, such as a pass this one
	// aliases and loads, must finish their attachment writes first.
	dependencies := []vk.SubpassDependency{{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  attachmentStages,
		DstStageMask:  attachmentStages,
		SrcAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit) | vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
		DstAccessMask: attachmentAccess,
	}}

	info := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}
	var handle vk.RenderPass
	if err := check(fmt.Sprintf("vkCreateRenderPass(%s)", desc.Name), vk.CreateRenderPass(ctx.logical(), &info, ctx.Allocator, &handle)); err != nil {
		return 0, err
	}
	core.LogDebug("render target %s created with %d attachments", desc.Name, len(attachments))
	return gpu.RenderTarget(ctx.targets.add(&vulkanRenderTarget{handle: handle, desc: desc})), nil
}

func (b *Backend) DestroyRenderTarget(target gpu.RenderTarget) {
	ctx := b.context
	if t := ctx.targets.remove(uint64(target)); t != nil {
		vk.DestroyRenderPass(ctx.logical(), t.handle, ctx.Allocator)
	}
}

func (b *Backend) CreateFramebuffer(desc gpu.FramebufferDesc) (gpu.Framebuffer, error) {
	ctx := b.context
	target := ctx.targets.get(uint64(desc.Target))
	if target == nil {
		return 0, handleError("render target", uint64(desc.Target))
	}
	if len(desc.Views) != len(target.desc.Attachments) {
		return 0, fmt.Errorf("framebuffer for %s: %d views for %d attachments", target.desc.Name, len(desc.Views), len(target.desc.Attachments))
	}
	views := make([]vk.ImageView, len(desc.Views))
	for i, v := range desc.Views {
		if views[i] = ctx.view(v); views[i] == vk.NullImageView {
			return 0, handleError("image view", uint64(v))
		}
	}
	layers := desc.Layers
	if layers == 0 {
		layers = 1
	}
	info := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      target.handle,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           desc.Width,
		Height:          desc.Height,
		Layers:          layers,
	}
	var handle vk.Framebuffer
	if err := check("vkCreateFramebuffer", vk.CreateFramebuffer(ctx.logical(), &info, ctx.Allocator, &handle)); err != nil {
		return 0, err
	}
	return gpu.Framebuffer(ctx.framebuffers.add(&vulkanFramebuffer{handle: handle, target: desc.Target})), nil
}

func (b *Backend) DestroyFramebuffer(framebuffer gpu.Framebuffer) {
	ctx := b.context
	if fb := ctx.framebuffers.remove(uint64(framebuffer)); fb != nil {
		vk.DestroyFramebuffer(ctx.logical(), fb.handle, ctx.Allocator)
	}
}
