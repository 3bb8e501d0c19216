package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

// VulkanCommandBuffer records gpu commands into a primary command buffer.
type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
	State  VulkanCommandBufferState

	context *VulkanContext
}

var _ gpu.CommandBuffer = (*VulkanCommandBuffer)(nil)

func NewVulkanCommandBuffer(context *VulkanContext, pool vk.CommandPool) (*VulkanCommandBuffer, error) {
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		CommandBufferCount: 1,
		Level:              vk.CommandBufferLevelPrimary,
	}
	handles := make([]vk.CommandBuffer, 1)
	err := context.locks.SafeCall(CommandManagement, func() error {
		return check("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(context.logical(), &allocateInfo, handles))
	})
	if err != nil {
		return nil, err
	}
	return &VulkanCommandBuffer{Handle: handles[0], State: COMMAND_BUFFER_STATE_READY, context: context}, nil
}

func (v *VulkanCommandBuffer) Free(pool vk.CommandPool) {
	if v.Handle == nil {
		return
	}
	_ = v.context.locks.SafeCall(CommandManagement, func() error {
		vk.FreeCommandBuffers(v.context.logical(), pool, 1, []vk.CommandBuffer{v.Handle})
		return nil
	})
	v.Handle = nil
	v.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (v *VulkanCommandBuffer) Begin(singleUse bool) error {
	if err := check("vkResetCommandBuffer", vk.ResetCommandBuffer(v.Handle, 0)); err != nil {
		return err
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if singleUse {
		beginInfo.Flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if err := check("vkBeginCommandBuffer", vk.BeginCommandBuffer(v.Handle, &beginInfo)); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (v *VulkanCommandBuffer) End() error {
	if v.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		core.LogWarn("command buffer ended inside a render pass")
		v.EndRenderTarget()
	}
	if err := check("vkEndCommandBuffer", vk.EndCommandBuffer(v.Handle)); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (v *VulkanCommandBuffer) BeginRenderTarget(begin gpu.RenderTargetBegin) {
	ctx := v.context
	target := ctx.targets.get(uint64(begin.Target))
	fb := ctx.framebuffers.get(uint64(begin.Framebuffer))
	if target == nil || fb == nil {
		core.LogError("begin render target %d with framebuffer %d: %v", begin.Target, begin.Framebuffer, ErrUnknownHandle)
		return
	}
	clearValues := make([]vk.ClearValue, len(begin.ClearValues))
	for i, c := range begin.ClearValues {
		if i < len(target.desc.Attachments) && target.desc.Attachments[i].Format.IsDepth() {
			clearValues[i].SetDepthStencil(c.Depth, c.Stencil)
		} else {
			clearValues[i].SetColor(c.Color[:])
		}
	}
	beginInfo := vk.RenderPassBeginInfo{
		SType:           vk.StructureTypeRenderPassBeginInfo,
		RenderPass:      target.handle,
		Framebuffer:     fb.handle,
		RenderArea:      toRect(begin.Area),
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(v.Handle, &beginInfo, vk.SubpassContentsInline)
	v.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (v *VulkanCommandBuffer) EndRenderTarget() {
	vk.CmdEndRenderPass(v.Handle)
	v.State = COMMAND_BUFFER_STATE_RECORDING
}

func (v *VulkanCommandBuffer) BindPipeline(pipeline gpu.Pipeline) {
	if p := v.context.pipelines.get(uint64(pipeline)); p != nil {
		vk.CmdBindPipeline(v.Handle, vk.PipelineBindPointGraphics, p.handle)
	}
}

func (v *VulkanCommandBuffer) SetViewport(viewport gpu.Viewport) {
	vk.CmdSetViewport(v.Handle, 0, 1, []vk.Viewport{{
		X:        viewport.X,
		Y:        viewport.Y,
		Width:    viewport.Width,
		Height:   viewport.Height,
		MinDepth: viewport.MinDepth,
		MaxDepth: viewport.MaxDepth,
	}})
}

func (v *VulkanCommandBuffer) SetScissor(scissor gpu.Rect) {
	vk.CmdSetScissor(v.Handle, 0, 1, []vk.Rect2D{toRect(scissor)})
}

func (v *VulkanCommandBuffer) BindDescriptorSet(pipeline gpu.Pipeline, firstSet uint32, set gpu.DescriptorSet) {
	p := v.context.pipelines.get(uint64(pipeline))
	s := v.context.sets.get(uint64(set))
	if p == nil || s == nil {
		return
	}
	vk.CmdBindDescriptorSets(v.Handle, vk.PipelineBindPointGraphics, p.layout, firstSet, 1, []vk.DescriptorSet{s.handle}, 0, nil)
}

func (v *VulkanCommandBuffer) PushConstants(pipeline gpu.Pipeline, stages gpu.ShaderStage, offset uint32, data []byte) {
	p := v.context.pipelines.get(uint64(pipeline))
	if p == nil || len(data) == 0 {
		return
	}
	vk.CmdPushConstants(v.Handle, p.layout, toShaderStages(stages), offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (v *VulkanCommandBuffer) BindVertexBuffers(first uint32, buffers []gpu.Buffer, offsets []uint64) {
	handles := make([]vk.Buffer, len(buffers))
	sizes := make([]vk.DeviceSize, len(buffers))
	for i, b := range buffers {
		handles[i] = v.context.buffer(b)
		if i < len(offsets) {
			sizes[i] = vk.DeviceSize(offsets[i])
		}
	}
	vk.CmdBindVertexBuffers(v.Handle, first, uint32(len(handles)), handles, sizes)
}

func (v *VulkanCommandBuffer) BindIndexBuffer(buffer gpu.Buffer, offset uint64, indexType gpu.IndexType) {
	vk.CmdBindIndexBuffer(v.Handle, v.context.buffer(buffer), vk.DeviceSize(offset), toIndexType(indexType))
}

func (v *VulkanCommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(v.Handle, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (v *VulkanCommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(v.Handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (v *VulkanCommandBuffer) PipelineBarrier(src, dst gpu.PipelineStage, images []gpu.ImageBarrier, buffers []gpu.BufferBarrier) {
	ctx := v.context
	imageBarriers := make([]vk.ImageMemoryBarrier, 0, len(images))
	for _, ib := range images {
		img, err := ctx.image(ib.Image)
		if err != nil {
			core.LogError("pipeline barrier: %v", err)
			continue
		}
		aspect := ib.Aspect
		if aspect == 0 {
			aspect = gpu.AspectOf(img.desc.Format)
		}
		count := ib.LayerCount
		if count == 0 {
			count = img.desc.Layers - ib.BaseLayer
		}
		imageBarriers = append(imageBarriers, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       toAccess(ib.SrcAccess),
			DstAccessMask:       toAccess(ib.DstAccess),
			OldLayout:           toLayout(ib.OldLayout),
			NewLayout:           toLayout(ib.NewLayout),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               img.handle,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     toAspect(aspect),
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: ib.BaseLayer,
				LayerCount:     count,
			},
		})
	}
	bufferBarriers := make([]vk.BufferMemoryBarrier, 0, len(buffers))
	for _, bb := range buffers {
		size := vk.DeviceSize(bb.Size)
		if bb.Size == 0 {
			size = vk.DeviceSize(vk.WholeSize)
		}
		bufferBarriers = append(bufferBarriers, vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       toAccess(bb.SrcAccess),
			DstAccessMask:       toAccess(bb.DstAccess),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Buffer:              ctx.buffer(bb.Buffer),
			Offset:              vk.DeviceSize(bb.Offset),
			Size:                size,
		})
	}
	vk.CmdPipelineBarrier(v.Handle, toStages(src), toStages(dst), 0,
		0, nil,
		uint32(len(bufferBarriers)), bufferBarriers,
		uint32(len(imageBarriers)), imageBarriers)
}

func (v *VulkanCommandBuffer) CopyBuffer(src, dst gpu.Buffer, regions []gpu.BufferCopy) {
	copies := make([]vk.BufferCopy, len(regions))
	for i, r := range regions {
		copies[i] = vk.BufferCopy{
			SrcOffset: vk.DeviceSize(r.SrcOffset),
			DstOffset: vk.DeviceSize(r.DstOffset),
			Size:      vk.DeviceSize(r.Size),
		}
	}
	vk.CmdCopyBuffer(v.Handle, v.context.buffer(src), v.context.buffer(dst), uint32(len(copies)), copies)
}

func (v *VulkanCommandBuffer) imageCopies(img *vulkanImage, regions []gpu.BufferImageCopy) []vk.BufferImageCopy {
	out := make([]vk.BufferImageCopy, len(regions))
	for i, r := range regions {
		aspect := r.Aspect
		if aspect == 0 {
			aspect = gpu.AspectOf(img.desc.Format)
		}
		out[i] = vk.BufferImageCopy{
			BufferOffset: vk.DeviceSize(r.BufferOffset),
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask:     toAspect(aspect),
				MipLevel:       0,
				BaseArrayLayer: r.Layer,
				LayerCount:     1,
			},
			ImageOffset: vk.Offset3D{X: r.X, Y: r.Y, Z: 0},
			ImageExtent: vk.Extent3D{Width: r.Width, Height: r.Height, Depth: 1},
		}
	}
	return out
}

func (v *VulkanCommandBuffer) CopyBufferToImage(src gpu.Buffer, dst gpu.Image, layout gpu.ImageLayout, regions []gpu.BufferImageCopy) {
	img, err := v.context.image(dst)
	if err != nil {
		core.LogError("copy buffer to image: %v", err)
		return
	}
	copies := v.imageCopies(img, regions)
	vk.CmdCopyBufferToImage(v.Handle, v.context.buffer(src), img.handle, toLayout(layout), uint32(len(copies)), copies)
}

func (v *VulkanCommandBuffer) CopyImageToBuffer(src gpu.Image, layout gpu.ImageLayout, dst gpu.Buffer, regions []gpu.BufferImageCopy) {
	img, err := v.context.image(src)
	if err != nil {
		core.LogError("copy image to buffer: %v", err)
		return
	}
	copies := v.imageCopies(img, regions)
	vk.CmdCopyImageToBuffer(v.Handle, img.handle, toLayout(layout), v.context.buffer(dst), uint32(len(copies)), copies)
}
