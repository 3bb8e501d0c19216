package gpu

import "errors"

var (
	// ErrSwapchainOutOfDate is returned by AcquireImage and Present when the
	// surface changed and the swapchain must be recreated before rendering.
	ErrSwapchainOutOfDate = errors.New("swapchain out of date")
	// ErrNotHostVisible is returned when mapping device local memory.
	ErrNotHostVisible = errors.New("memory is not host visible")
)

type ImageDesc struct {
	Name    string
	Width   uint32
	Height  uint32
	Layers  uint32
	Format  Format
	Samples uint32
	Usage   ImageUsage
}

type ImageViewDesc struct {
	Image      Image
	Format     Format
	Aspect     ImageAspect
	BaseLayer  uint32
	LayerCount uint32
	// Array forces an array view even for a single layer.
	Array bool
}

type BufferDesc struct {
	Name   string
	Size   uint64
	Usage  BufferUsage
	Memory MemoryLocation
}

type SamplerDesc struct {
	MinFilter     Filter
	MagFilter     Filter
	AddressMode   AddressMode
	Compare       bool
	CompareOp     CompareOp
	MaxAnisotropy float32
	BorderWhite   bool
}

type AttachmentDesc struct {
	Format         Format
	Samples        uint32
	LoadOp         LoadOp
	StoreOp        StoreOp
	StencilLoadOp  LoadOp
	StencilStoreOp StoreOp
	InitialLayout  ImageLayout
	FinalLayout    ImageLayout
}

// RenderTargetDesc describes a single-subpass render target. Color
// attachments come first in attachment order; at most one depth attachment.
type RenderTargetDesc struct {
	Name        string
	Attachments []AttachmentDesc
}

type FramebufferDesc struct {
	Target RenderTarget
	Views  []ImageView
	Width  uint32
	Height uint32
	Layers uint32
}

type DescriptorBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStage
}

type DescriptorSetLayoutDesc struct {
	Bindings []DescriptorBinding
}

type BufferInfo struct {
	Buffer Buffer
	Offset uint64
	Range  uint64
}

type ImageInfo struct {
	View    ImageView
	Sampler Sampler
	Layout  ImageLayout
}

type DescriptorWrite struct {
	Set          DescriptorSet
	Binding      uint32
	ArrayElement uint32
	Type         DescriptorType
	Buffers      []BufferInfo
	Images       []ImageInfo
}

type ShaderModule struct {
	Stage ShaderStage
	// SPIR-V words as little endian bytes.
	Code []byte
	Path string
}

type VertexBinding struct {
	Binding     uint32
	Stride      uint32
	PerInstance bool
}

type VertexAttribute struct {
	Location uint32
	Binding  uint32
	Format   VertexFormat
	Offset   uint32
}

type PipelineDesc struct {
	Name             string
	Target           RenderTarget
	Shaders          []ShaderModule
	VertexBindings   []VertexBinding
	VertexAttributes []VertexAttribute
	CullMode         CullMode
	DepthTest        bool
	DepthWrite       bool
	DepthCompare     CompareOp
	DepthBias        bool
	Blend            BlendMode
	ColorAttachments int
	SetLayouts       []DescriptorSetLayout
	PushConstantSize uint32
	PushStages       ShaderStage
}

type ImageBarrier struct {
	Image      Image
	OldLayout  ImageLayout
	NewLayout  ImageLayout
	SrcAccess  AccessFlags
	DstAccess  AccessFlags
	Aspect     ImageAspect
	BaseLayer  uint32
	LayerCount uint32
}

type BufferBarrier struct {
	Buffer    Buffer
	SrcAccess AccessFlags
	DstAccess AccessFlags
	Offset    uint64
	Size      uint64
}

type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

type BufferImageCopy struct {
	BufferOffset uint64
	X, Y         int32
	Width        uint32
	Height       uint32
	Layer        uint32
	Aspect       ImageAspect
}

type RenderTargetBegin struct {
	Target      RenderTarget
	Framebuffer Framebuffer
	Area        Rect
	ClearValues []ClearValue
}

// Mapping is a persistently mapped host visible allocation.
type Mapping interface {
	Write(offset uint64, data []byte) error
	Read(offset uint64, dst []byte) error
	Len() uint64
}

type Device interface {
	CreateImage(desc ImageDesc) (Image, Memory, error)
	DestroyImage(image Image, memory Memory)
	CreateImageView(desc ImageViewDesc) (ImageView, error)
	DestroyImageView(view ImageView)

	CreateBuffer(desc BufferDesc) (Buffer, Memory, error)
	DestroyBuffer(buffer Buffer, memory Memory)
	MapMemory(memory Memory) (Mapping, error)
	UnmapMemory(memory Memory)

	CreateSampler(desc SamplerDesc) (Sampler, error)
	DestroySampler(sampler Sampler)

	CreateRenderTarget(desc RenderTargetDesc) (RenderTarget, error)
	DestroyRenderTarget(target RenderTarget)
	CreateFramebuffer(desc FramebufferDesc) (Framebuffer, error)
	DestroyFramebuffer(framebuffer Framebuffer)

	CreateDescriptorSetLayout(desc DescriptorSetLayoutDesc) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(layout DescriptorSetLayout)
	AllocateDescriptorSets(layout DescriptorSetLayout, count int) ([]DescriptorSet, error)
	FreeDescriptorSets(sets []DescriptorSet)
	UpdateDescriptorSets(writes []DescriptorWrite)

	CreatePipeline(desc PipelineDesc) (Pipeline, error)
	DestroyPipeline(pipeline Pipeline)

	// ImmediateSubmit records fn into a one-shot command buffer, submits it
	// and waits for completion.
	ImmediateSubmit(fn func(cmd CommandBuffer) error) error
	WaitIdle() error
}

type CommandBuffer interface {
	BeginRenderTarget(begin RenderTargetBegin)
	EndRenderTarget()
	BindPipeline(pipeline Pipeline)
	SetViewport(viewport Viewport)
	SetScissor(scissor Rect)
	BindDescriptorSet(pipeline Pipeline, firstSet uint32, set DescriptorSet)
	PushConstants(pipeline Pipeline, stages ShaderStage, offset uint32, data []byte)
	BindVertexBuffers(first uint32, buffers []Buffer, offsets []uint64)
	BindIndexBuffer(buffer Buffer, offset uint64, indexType IndexType)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	PipelineBarrier(src, dst PipelineStage, images []ImageBarrier, buffers []BufferBarrier)
	CopyBuffer(src, dst Buffer, regions []BufferCopy)
	CopyBufferToImage(src Buffer, dst Image, layout ImageLayout, regions []BufferImageCopy)
	CopyImageToBuffer(src Image, layout ImageLayout, dst Buffer, regions []BufferImageCopy)
}

// FrameDriver owns the swapchain, the per-frame command buffers and the
// frame fences. Frame indices are frames-in-flight slots, image indices are
// swapchain images.
type FrameDriver interface {
	FramesInFlight() int
	Extent() Extent2D
	SwapchainFormat() Format
	SwapchainViews() []ImageView

	// WaitFrame blocks until the previous submission of slot frame has
	// completed. It is the only blocking point of the steady state loop.
	WaitFrame(frame int) error
	AcquireImage(frame int) (uint32, error)
	BeginCommands(frame int) (CommandBuffer, error)
	Submit(frame int) error
	// Discard drops whatever slot frame recorded after a successful acquire
	// and submits an empty batch in its place. The acquired image is not
	// presented; the next acquire reports ErrSwapchainOutOfDate.
	Discard(frame int) error
	Present(frame int, image uint32) error
	Recreate(width, height uint32) error
}
