// Package gpu is the narrow device surface the renderer records against.
// The Vulkan backend implements it for real hardware and the recorder
// package implements it in memory for tests and headless runs.
package gpu

import "fmt"

// Handle is an opaque backend object id. Zero is the null handle.
type Handle uint64

type (
	Image               Handle
	ImageView           Handle
	Memory              Handle
	Buffer              Handle
	Sampler             Handle
	RenderTarget        Handle
	Framebuffer         Handle
	Pipeline            Handle
	DescriptorSetLayout Handle
	DescriptorSet       Handle
)

type Format uint32

const (
	FormatUndefined Format = iota
	FormatR8Unorm
	FormatRG8Unorm
	FormatRGBA8Unorm
	FormatBGRA8Unorm
	FormatRGBA8Srgb
	FormatBGRA8Srgb
	FormatR16Sfloat
	FormatRG16Sfloat
	FormatRGBA16Sfloat
	FormatR32Sfloat
	FormatRG32Sfloat
	FormatRGBA32Sfloat
	FormatR32Uint
	FormatR32Sint
	FormatD32Sfloat
	FormatD24UnormS8Uint
	FormatD32SfloatS8Uint
)

var formatNames = map[Format]string{
	FormatUndefined:       "undefined",
	FormatR8Unorm:         "r8_unorm",
	FormatRG8Unorm:        "rg8_unorm",
	FormatRGBA8Unorm:      "rgba8_unorm",
	FormatBGRA8Unorm:      "bgra8_unorm",
	FormatRGBA8Srgb:       "rgba8_srgb",
	FormatBGRA8Srgb:       "bgra8_srgb",
	FormatR16Sfloat:       "r16_sfloat",
	FormatRG16Sfloat:      "rg16_sfloat",
	FormatRGBA16Sfloat:    "rgba16_sfloat",
	FormatR32Sfloat:       "r32_sfloat",
	FormatRG32Sfloat:      "rg32_sfloat",
	FormatRGBA32Sfloat:    "rgba32_sfloat",
	FormatR32Uint:         "r32_uint",
	FormatR32Sint:         "r32_sint",
	FormatD32Sfloat:       "d32_sfloat",
	FormatD24UnormS8Uint:  "d24_unorm_s8_uint",
	FormatD32SfloatS8Uint: "d32_sfloat_s8_uint",
}

func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return fmt.Sprintf("format(%d)", uint32(f))
}

func (f Format) IsDepth() bool {
	switch f {
	case FormatD32Sfloat, FormatD24UnormS8Uint, FormatD32SfloatS8Uint:
		return true
	}
	return false
}

func (f Format) HasStencil() bool {
	return f == FormatD24UnormS8Uint || f == FormatD32SfloatS8Uint
}

// BytesPerPixel is the texel size of the format. Packed depth/stencil
// formats report the size of their depth aspect when copied out.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatR8Unorm:
		return 1
	case FormatRG8Unorm, FormatR16Sfloat:
		return 2
	case FormatRGBA8Unorm, FormatBGRA8Unorm, FormatRGBA8Srgb, FormatBGRA8Srgb,
		FormatRG16Sfloat, FormatR32Sfloat, FormatR32Uint, FormatR32Sint,
		FormatD32Sfloat, FormatD24UnormS8Uint:
		return 4
	case FormatRGBA16Sfloat, FormatRG32Sfloat, FormatD32SfloatS8Uint:
		return 8
	case FormatRGBA32Sfloat:
		return 16
	}
	return 0
}

type ImageLayout uint32

const (
	ImageLayoutUndefined ImageLayout = iota
	ImageLayoutGeneral
	ImageLayoutColorAttachmentOptimal
	ImageLayoutDepthStencilAttachmentOptimal
	ImageLayoutDepthStencilReadOnlyOptimal
	ImageLayoutShaderReadOnlyOptimal
	ImageLayoutTransferSrcOptimal
	ImageLayoutTransferDstOptimal
	ImageLayoutPresentSrc
)

func (l ImageLayout) String() string {
	switch l {
	case ImageLayoutUndefined:
		return "undefined"
	case ImageLayoutGeneral:
		return "general"
	case ImageLayoutColorAttachmentOptimal:
		return "color_attachment_optimal"
	case ImageLayoutDepthStencilAttachmentOptimal:
		return "depth_stencil_attachment_optimal"
	case ImageLayoutDepthStencilReadOnlyOptimal:
		return "depth_stencil_read_only_optimal"
	case ImageLayoutShaderReadOnlyOptimal:
		return "shader_read_only_optimal"
	case ImageLayoutTransferSrcOptimal:
		return "transfer_src_optimal"
	case ImageLayoutTransferDstOptimal:
		return "transfer_dst_optimal"
	case ImageLayoutPresentSrc:
		return "present_src"
	}
	return fmt.Sprintf("layout(%d)", uint32(l))
}

type AccessFlags uint32

const (
	AccessShaderRead AccessFlags = 1 << iota
	AccessShaderWrite
	AccessColorAttachmentRead
	AccessColorAttachmentWrite
	AccessDepthStencilAttachmentRead
	AccessDepthStencilAttachmentWrite
	AccessTransferRead
	AccessTransferWrite
	AccessHostWrite
	AccessVertexAttributeRead
	AccessIndexRead
	AccessUniformRead
	AccessMemoryRead
)

type PipelineStage uint32

const (
	StageTopOfPipe PipelineStage = 1 << iota
	StageVertexInput
	StageVertexShader
	StageGeometryShader
	StageFragmentShader
	StageEarlyFragmentTests
	StageLateFragmentTests
	StageColorAttachmentOutput
	StageTransfer
	StageBottomOfPipe
	StageHost
)

type LoadOp uint8

const (
	LoadOpClear LoadOp = iota
	LoadOpLoad
	LoadOpDontCare
)

type StoreOp uint8

const (
	StoreOpStore StoreOp = iota
	StoreOpDontCare
)

type ShaderStage uint32

const (
	ShaderStageVertex ShaderStage = 1 << iota
	ShaderStageGeometry
	ShaderStageFragment

	ShaderStageAllGraphics = ShaderStageVertex | ShaderStageGeometry | ShaderStageFragment
)

type IndexType uint8

const (
	IndexTypeUint16 IndexType = iota
	IndexTypeUint32
)

type ImageUsage uint32

const (
	ImageUsageColorAttachment ImageUsage = 1 << iota
	ImageUsageDepthStencilAttachment
	ImageUsageSampled
	ImageUsageTransferSrc
	ImageUsageTransferDst
)

type BufferUsage uint32

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageTransferSrc
	BufferUsageTransferDst
)

type MemoryLocation uint8

const (
	MemoryDeviceLocal MemoryLocation = iota
	MemoryHostVisible
)

type ImageAspect uint8

const (
	AspectColor ImageAspect = 1 << iota
	AspectDepth
	AspectStencil
)

// AspectOf returns the aspects a full view of an image in format f covers.
func AspectOf(f Format) ImageAspect {
	if !f.IsDepth() {
		return AspectColor
	}
	if f.HasStencil() {
		return AspectDepth | AspectStencil
	}
	return AspectDepth
}

type DescriptorType uint8

const (
	DescriptorUniformBuffer DescriptorType = iota
	DescriptorStorageBuffer
	DescriptorCombinedImageSampler
)

type Filter uint8

const (
	FilterLinear Filter = iota
	FilterNearest
)

type AddressMode uint8

const (
	AddressRepeat AddressMode = iota
	AddressClampToEdge
	AddressClampToBorder
)

type CompareOp uint8

const (
	CompareNever CompareOp = iota
	CompareLess
	CompareLessOrEqual
	CompareGreater
	CompareAlways
)

type CullMode uint8

const (
	CullNone CullMode = iota
	CullBack
	CullFront
)

type BlendMode uint8

const (
	BlendNone BlendMode = iota
	BlendAlpha
	BlendAdditive
)

type VertexFormat uint8

const (
	VertexFloat VertexFormat = iota
	VertexVec2
	VertexVec3
	VertexVec4
	VertexUVec4
)

type Extent2D struct {
	Width  uint32
	Height uint32
}

type Rect struct {
	X      int32
	Y      int32
	Width  uint32
	Height uint32
}

type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

type ClearValue struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}
