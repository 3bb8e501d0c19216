package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

var formats = map[gpu.Format]vk.Format{
	gpu.FormatUndefined:       vk.FormatUndefined,
	gpu.FormatR8Unorm:         vk.FormatR8Unorm,
	gpu.FormatRG8Unorm:        vk.FormatR8g8Unorm,
	gpu.FormatRGBA8Unorm:      vk.FormatR8g8b8a8Unorm,
	gpu.FormatBGRA8Unorm:      vk.FormatB8g8r8a8Unorm,
	gpu.FormatRGBA8Srgb:       vk.FormatR8g8b8a8Srgb,
	gpu.FormatBGRA8Srgb:       vk.FormatB8g8r8a8Srgb,
	gpu.FormatR16Sfloat:       vk.FormatR16Sfloat,
	gpu.FormatRG16Sfloat:      vk.FormatR16g16Sfloat,
	gpu.FormatRGBA16Sfloat:    vk.FormatR16g16b16a16Sfloat,
	gpu.FormatR32Sfloat:       vk.FormatR32Sfloat,
	gpu.FormatRG32Sfloat:      vk.FormatR32g32Sfloat,
	gpu.FormatRGBA32Sfloat:    vk.FormatR32g32b32a32Sfloat,
	gpu.FormatR32Uint:         vk.FormatR32Uint,
	gpu.FormatR32Sint:         vk.FormatR32Sint,
	gpu.FormatD32Sfloat:       vk.FormatD32Sfloat,
	gpu.FormatD24UnormS8Uint:  vk.FormatD24UnormS8Uint,
	gpu.FormatD32SfloatS8Uint: vk.FormatD32SfloatS8Uint,
}

func toFormat(f gpu.Format) vk.Format { return formats[f] }

func fromFormat(f vk.Format) gpu.Format {
	for k, v := range formats {
		if v == f {
			return k
		}
	}
	return gpu.FormatUndefined
}

func toLayout(l gpu.ImageLayout) vk.ImageLayout {
	switch l {
	case gpu.ImageLayoutGeneral:
		return vk.ImageLayoutGeneral
	case gpu.ImageLayoutColorAttachmentOptimal:
		return vk.ImageLayoutColorAttachmentOptimal
	case gpu.ImageLayoutDepthStencilAttachmentOptimal:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case gpu.ImageLayoutDepthStencilReadOnlyOptimal:
		return vk.ImageLayoutDepthStencilReadOnlyOptimal
	case gpu.ImageLayoutShaderReadOnlyOptimal:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case gpu.ImageLayoutTransferSrcOptimal:
		return vk.ImageLayoutTransferSrcOptimal
	case gpu.ImageLayoutTransferDstOptimal:
		return vk.ImageLayoutTransferDstOptimal
	case gpu.ImageLayoutPresentSrc:
		return vk.ImageLayoutPresentSrc
	}
	return vk.ImageLayoutUndefined
}

var accessBits = []struct {
	from gpu.AccessFlags
	to   vk.AccessFlagBits
}{
	{gpu.AccessShaderRead, vk.AccessShaderReadBit},
	{gpu.AccessShaderWrite, vk.AccessShaderWriteBit},
	{gpu.AccessColorAttachmentRead, vk.AccessColorAttachmentReadBit},
	{gpu.AccessColorAttachmentWrite, vk.AccessColorAttachmentWriteBit},
	{gpu.AccessDepthStencilAttachmentRead, vk.AccessDepthStencilAttachmentReadBit},
	{gpu.AccessDepthStencilAttachmentWrite, vk.AccessDepthStencilAttachmentWriteBit},
	{gpu.AccessTransferRead, vk.AccessTransferReadBit},
	{gpu.AccessTransferWrite, vk.AccessTransferWriteBit},
	{gpu.AccessHostWrite, vk.AccessHostWriteBit},
	{gpu.AccessVertexAttributeRead, vk.AccessVertexAttributeReadBit},
	{gpu.AccessIndexRead, vk.AccessIndexReadBit},
	{gpu.AccessUniformRead, vk.AccessUniformReadBit},
	{gpu.AccessMemoryRead, vk.AccessMemoryReadBit},
}

func toAccess(a gpu.AccessFlags) vk.AccessFlags {
	var out vk.AccessFlags
	for _, b := range accessBits {
		if a&b.from != 0 {
			out |= vk.AccessFlags(b.to)
		}
	}
	return out
}

var stageBits = []struct {
	from gpu.PipelineStage
	to   vk.PipelineStageFlagBits
}{
	{gpu.StageTopOfPipe, vk.PipelineStageTopOfPipeBit},
	{gpu.StageVertexInput, vk.PipelineStageVertexInputBit},
	{gpu.StageVertexShader, vk.PipelineStageVertexShaderBit},
	{gpu.StageGeometryShader, vk.PipelineStageGeometryShaderBit},
	{gpu.StageFragmentShader, vk.PipelineStageFragmentShaderBit},
	{gpu.StageEarlyFragmentTests, vk.PipelineStageEarlyFragmentTestsBit},
	{gpu.StageLateFragmentTests, vk.PipelineStageLateFragmentTestsBit},
	{gpu.StageColorAttachmentOutput, vk.PipelineStageColorAttachmentOutputBit},
	{gpu.StageTransfer, vk.PipelineStageTransferBit},
	{gpu.StageBottomOfPipe, vk.PipelineStageBottomOfPipeBit},
	{gpu.StageHost, vk.PipelineStageHostBit},
}

func toStages(s gpu.PipelineStage) vk.PipelineStageFlags {
	var out vk.PipelineStageFlags
	for _, b := range stageBits {
		if s&b.from != 0 {
			out |= vk.PipelineStageFlags(b.to)
		}
	}
	if out == 0 {
		out = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
	return out
}

func toShaderStages(s gpu.ShaderStage) vk.ShaderStageFlags {
	var out vk.ShaderStageFlags
	if s&gpu.ShaderStageVertex != 0 {
		out |= vk.ShaderStageFlags(vk.ShaderStageVertexBit)
	}
	if s&gpu.ShaderStageGeometry != 0 {
		out |= vk.ShaderStageFlags(vk.ShaderStageGeometryBit)
	}
	if s&gpu.ShaderStageFragment != 0 {
		out |= vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
	}
	return out
}

func toShaderStageBit(s gpu.ShaderStage) vk.ShaderStageFlagBits {
	switch s {
	case gpu.ShaderStageGeometry:
		return vk.ShaderStageGeometryBit
	case gpu.ShaderStageFragment:
		return vk.ShaderStageFragmentBit
	}
	return vk.ShaderStageVertexBit
}

func toImageUsage(u gpu.ImageUsage) vk.ImageUsageFlags {
	var out vk.ImageUsageFlags
	if u&gpu.ImageUsageColorAttachment != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)
	}
	if u&gpu.ImageUsageDepthStencilAttachment != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)
	}
	if u&gpu.ImageUsageSampled != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageSampledBit)
	}
	if u&gpu.ImageUsageTransferSrc != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit)
	}
	if u&gpu.ImageUsageTransferDst != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageTransferDstBit)
	}
	return out
}

func toBufferUsage(u gpu.BufferUsage) vk.BufferUsageFlags {
	var out vk.BufferUsageFlags
	if u&gpu.BufferUsageVertex != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)
	}
	if u&gpu.BufferUsageIndex != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit)
	}
	if u&gpu.BufferUsageUniform != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)
	}
	if u&gpu.BufferUsageStorage != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit)
	}
	if u&gpu.BufferUsageTransferSrc != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit)
	}
	if u&gpu.BufferUsageTransferDst != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)
	}
	return out
}

func toAspect(a gpu.ImageAspect) vk.ImageAspectFlags {
	var out vk.ImageAspectFlags
	if a&gpu.AspectColor != 0 {
		out |= vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
	if a&gpu.AspectDepth != 0 {
		out |= vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	if a&gpu.AspectStencil != 0 {
		out |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	}
	return out
}

func toDescriptorType(t gpu.DescriptorType) vk.DescriptorType {
	switch t {
	case gpu.DescriptorStorageBuffer:
		return vk.DescriptorTypeStorageBuffer
	case gpu.DescriptorCombinedImageSampler:
		return vk.DescriptorTypeCombinedImageSampler
	}
	return vk.DescriptorTypeUniformBuffer
}

func toFilter(f gpu.Filter) vk.Filter {
	if f == gpu.FilterNearest {
		return vk.FilterNearest
	}
	return vk.FilterLinear
}

func toAddressMode(m gpu.AddressMode) vk.SamplerAddressMode {
	switch m {
	case gpu.AddressClampToEdge:
		return vk.SamplerAddressModeClampToEdge
	case gpu.AddressClampToBorder:
		return vk.SamplerAddressModeClampToBorder
	}
	return vk.SamplerAddressModeRepeat
}

func toCompareOp(op gpu.CompareOp) vk.CompareOp {
	switch op {
	case gpu.CompareLess:
		return vk.CompareOpLess
	case gpu.CompareLessOrEqual:
		return vk.CompareOpLessOrEqual
	case gpu.CompareGreater:
		return vk.CompareOpGreater
	case gpu.CompareAlways:
		return vk.CompareOpAlways
	}
	return vk.CompareOpNever
}

func toLoadOp(op gpu.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case gpu.LoadOpLoad:
		return vk.AttachmentLoadOpLoad
	case gpu.LoadOpDontCare:
		return vk.AttachmentLoadOpDontCare
	}
	return vk.AttachmentLoadOpClear
}

func toStoreOp(op gpu.StoreOp) vk.AttachmentStoreOp {
	if op == gpu.StoreOpDontCare {
		return vk.AttachmentStoreOpDontCare
	}
	return vk.AttachmentStoreOpStore
}

func toSamples(n uint32) vk.SampleCountFlagBits {
	switch n {
	case 2:
		return vk.SampleCount2Bit
	case 4:
		return vk.SampleCount4Bit
	case 8:
		return vk.SampleCount8Bit
	}
	return vk.SampleCount1Bit
}

func toVertexFormat(f gpu.VertexFormat) vk.Format {
	switch f {
	case gpu.VertexVec2:
		return vk.FormatR32g32Sfloat
	case gpu.VertexVec3:
		return vk.FormatR32g32b32Sfloat
	case gpu.VertexVec4:
		return vk.FormatR32g32b32a32Sfloat
	case gpu.VertexUVec4:
		return vk.FormatR32g32b32a32Uint
	}
	return vk.FormatR32Sfloat
}

func toCullMode(m gpu.CullMode) vk.CullModeFlags {
	switch m {
	case gpu.CullBack:
		return vk.CullModeFlags(vk.CullModeBackBit)
	case gpu.CullFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	}
	return vk.CullModeFlags(vk.CullModeNone)
}

func toIndexType(t gpu.IndexType) vk.IndexType {
	if t == gpu.IndexTypeUint16 {
		return vk.IndexTypeUint16
	}
	return vk.IndexTypeUint32
}

func toRect(r gpu.Rect) vk.Rect2D {
	return vk.Rect2D{
		Offset: vk.Offset2D{X: r.X, Y: r.Y},
		Extent: vk.Extent2D{Width: r.Width, Height: r.Height},
	}
}
