package recorder

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

type CommandKind int

const (
	CmdBeginRenderTarget CommandKind = iota
	CmdEndRenderTarget
	CmdBindPipeline
	CmdSetViewport
	CmdSetScissor
	CmdBindDescriptorSet
	CmdPushConstants
	CmdBindVertexBuffers
	CmdBindIndexBuffer
	CmdDraw
	CmdDrawIndexed
	CmdPipelineBarrier
	CmdCopyBuffer
	CmdCopyBufferToImage
	CmdCopyImageToBuffer
)

var commandNames = [...]string{
	"begin_render_target",
	"end_render_target",
	"bind_pipeline",
	"set_viewport",
	"set_scissor",
	"bind_descriptor_set",
	"push_constants",
	"bind_vertex_buffers",
	"bind_index_buffer",
	"draw",
	"draw_indexed",
	"pipeline_barrier",
	"copy_buffer",
	"copy_buffer_to_image",
	"copy_image_to_buffer",
}

func (k CommandKind) String() string {
	if int(k) < len(commandNames) {
		return commandNames[k]
	}
	return fmt.Sprintf("command(%d)", int(k))
}

type DrawArgs struct {
	Count         uint32
	InstanceCount uint32
	First         uint32
	VertexOffset  int32
	FirstInstance uint32
}

// Command is one recorded call. Only the fields relevant to Kind are set.
type Command struct {
	Kind           CommandKind
	Begin          gpu.RenderTargetBegin
	Pipeline       gpu.Pipeline
	Set            gpu.DescriptorSet
	Viewport       gpu.Viewport
	Scissor        gpu.Rect
	Data           []byte
	Buffers        []gpu.Buffer
	SrcStage       gpu.PipelineStage
	DstStage       gpu.PipelineStage
	ImageBarriers  []gpu.ImageBarrier
	BufferBarriers []gpu.BufferBarrier
	Src            gpu.Buffer
	Dst            gpu.Buffer
	Image          gpu.Image
	Layout         gpu.ImageLayout
	Copies         []gpu.BufferCopy
	ImageCopies    []gpu.BufferImageCopy
	Draw           DrawArgs
}

// CommandBuffer records commands and checks them against the device's
// layout state as they are recorded.
type CommandBuffer struct {
	dev      *Device
	commands []Command
	active   *activeTarget
}

type activeTarget struct {
	images []gpu.Image
	final  []gpu.ImageLayout
}

func (cb *CommandBuffer) Commands() []Command {
	return cb.commands
}

func (cb *CommandBuffer) push(c Command) {
	cb.commands = append(cb.commands, c)
}

func (cb *CommandBuffer) BeginRenderTarget(begin gpu.RenderTargetBegin) {
	cb.push(Command{Kind: CmdBeginRenderTarget, Begin: begin})
	cb.active = cb.dev.beginTarget(begin)
}

func (cb *CommandBuffer) EndRenderTarget() {
	cb.push(Command{Kind: CmdEndRenderTarget})
	if cb.active == nil {
		cb.dev.violate("end render target without begin")
		return
	}
	cb.dev.endTarget(cb.active)
	cb.active = nil
}

func (cb *CommandBuffer) BindPipeline(pipeline gpu.Pipeline) {
	cb.push(Command{Kind: CmdBindPipeline, Pipeline: pipeline})
}

func (cb *CommandBuffer) SetViewport(viewport gpu.Viewport) {
	cb.push(Command{Kind: CmdSetViewport, Viewport: viewport})
}

func (cb *CommandBuffer) SetScissor(scissor gpu.Rect) {
	cb.push(Command{Kind: CmdSetScissor, Scissor: scissor})
}

func (cb *CommandBuffer) BindDescriptorSet(pipeline gpu.Pipeline, firstSet uint32, set gpu.DescriptorSet) {
	cb.push(Command{Kind: CmdBindDescriptorSet, Pipeline: pipeline, Set: set})
	cb.dev.checkDescriptorBind(set, cb.active)
}

func (cb *CommandBuffer) PushConstants(pipeline gpu.Pipeline, stages gpu.ShaderStage, offset uint32, data []byte) {
	cb.push(Command{Kind: CmdPushConstants, Pipeline: pipeline, Data: append([]byte(nil), data...)})
}

func (cb *CommandBuffer) BindVertexBuffers(first uint32, buffers []gpu.Buffer, offsets []uint64) {
	cb.push(Command{Kind: CmdBindVertexBuffers, Buffers: append([]gpu.Buffer(nil), buffers...)})
}

func (cb *CommandBuffer) BindIndexBuffer(buffer gpu.Buffer, offset uint64, indexType gpu.IndexType) {
	cb.push(Command{Kind: CmdBindIndexBuffer, Buffers: []gpu.Buffer{buffer}})
}

func (cb *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if cb.active == nil {
		cb.dev.violate("draw outside of a render target")
	}
	cb.push(Command{Kind: CmdDraw, Draw: DrawArgs{
		Count:         vertexCount,
		InstanceCount: instanceCount,
		First:         firstVertex,
		FirstInstance: firstInstance,
	}})
}

func (cb *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	if cb.active == nil {
		cb.dev.violate("indexed draw outside of a render target")
	}
	cb.push(Command{Kind: CmdDrawIndexed, Draw: DrawArgs{
		Count:         indexCount,
		InstanceCount: instanceCount,
		First:         firstIndex,
		VertexOffset:  vertexOffset,
		FirstInstance: firstInstance,
	}})
}

func (cb *CommandBuffer) PipelineBarrier(src, dst gpu.PipelineStage, images []gpu.ImageBarrier, buffers []gpu.BufferBarrier) {
	if cb.active != nil {
		cb.dev.violate("pipeline barrier inside a render target")
	}
	cb.push(Command{
		Kind:           CmdPipelineBarrier,
		SrcStage:       src,
		DstStage:       dst,
		ImageBarriers:  append([]gpu.ImageBarrier(nil), images...),
		BufferBarriers: append([]gpu.BufferBarrier(nil), buffers...),
	})
	for _, b := range images {
		cb.dev.transition(b)
	}
}

func (cb *CommandBuffer) CopyBuffer(src, dst gpu.Buffer, regions []gpu.BufferCopy) {
	cb.push(Command{Kind: CmdCopyBuffer, Src: src, Dst: dst, Copies: append([]gpu.BufferCopy(nil), regions...)})
}

func (cb *CommandBuffer) CopyBufferToImage(src gpu.Buffer, dst gpu.Image, layout gpu.ImageLayout, regions []gpu.BufferImageCopy) {
	cb.dev.expectLayout(dst, gpu.ImageLayoutTransferDstOptimal, "copy buffer to image")
	cb.push(Command{Kind: CmdCopyBufferToImage, Src: src, Image: dst, Layout: layout, ImageCopies: append([]gpu.BufferImageCopy(nil), regions...)})
}

func (cb *CommandBuffer) CopyImageToBuffer(src gpu.Image, layout gpu.ImageLayout, dst gpu.Buffer, regions []gpu.BufferImageCopy) {
	cb.dev.expectLayout(src, gpu.ImageLayoutTransferSrcOptimal, "copy image to buffer")
	cb.push(Command{Kind: CmdCopyImageToBuffer, Image: src, Layout: layout, Dst: dst, ImageCopies: append([]gpu.BufferImageCopy(nil), regions...)})
}

// Count returns how many commands of kind were recorded.
func (cb *CommandBuffer) Count(kind CommandKind) int {
	n := 0
	for _, c := range cb.commands {
		if c.Kind == kind {
			n++
		}
	}
	return n
}
