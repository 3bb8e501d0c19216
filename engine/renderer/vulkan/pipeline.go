package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

type vulkanPipeline struct {
	handle vk.Pipeline
	layout vk.PipelineLayout
	name   string
}

func (b *Backend) createShaderModule(shader gpu.ShaderModule) (vk.ShaderModule, error) {
	if len(shader.Code) == 0 || len(shader.Code)%4 != 0 {
		return vk.NullShaderModule, fmt.Errorf("shader %s: SPIR-V size %d is not a positive multiple of 4", shader.Path, len(shader.Code))
	}
	ctx := b.context
	info := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(shader.Code)),
		PCode:    unsafe.Slice((*uint32)(unsafe.Pointer(&shader.Code[0])), len(shader.Code)/4),
	}
	var module vk.ShaderModule
	if err := check(fmt.Sprintf("vkCreateShaderModule(%s)", shader.Path), vk.CreateShaderModule(ctx.logical(), &info, ctx.Allocator, &module)); err != nil {
		return vk.NullShaderModule, err
	}
	return module, nil
}

func blendAttachment(mode gpu.BlendMode) vk.PipelineColorBlendAttachmentState {
	state := vk.PipelineColorBlendAttachmentState{
		BlendEnable: vk.False,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
	}
	switch mode {
	case gpu.BlendAlpha:
		state.BlendEnable = vk.True
		state.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		state.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		state.ColorBlendOp = vk.BlendOpAdd
		state.SrcAlphaBlendFactor = vk.BlendFactorOne
		state.DstAlphaBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		state.AlphaBlendOp = vk.BlendOpAdd
	case gpu.BlendAdditive:
		state.BlendEnable = vk.True
		state.SrcColorBlendFactor = vk.BlendFactorOne
		state.DstColorBlendFactor = vk.BlendFactorOne
		state.ColorBlendOp = vk.BlendOpAdd
		state.SrcAlphaBlendFactor = vk.BlendFactorOne
		state.DstAlphaBlendFactor = vk.BlendFactorOne
		state.AlphaBlendOp = vk.BlendOpAdd
	}
	return state
}

// CreatePipeline builds a graphics pipeline against subpass 0 of its render
// target. Viewport and scissor are dynamic.
func (b *Backend) CreatePipeline(desc gpu.PipelineDesc) (gpu.Pipeline, error) {
	ctx := b.context
	target := ctx.targets.get(uint64(desc.Target))
	if target == nil {
		return 0, handleError("render target", uint64(desc.Target))
	}

	stages := make([]vk.PipelineShaderStageCreateInfo, 0, len(desc.Shaders))
	modules := make([]vk.ShaderModule, 0, len(desc.Shaders))
	// Modules are only needed until the pipeline exists.
	defer func() {
		for _, m := range modules {
			vk.DestroyShaderModule(ctx.logical(), m, ctx.Allocator)
		}
	}()
	for _, shader := range desc.Shaders {
		module, err := b.createShaderModule(shader)
		if err != nil {
			return 0, fmt.Errorf("pipeline %s: %w", desc.Name, err)
		}
		modules = append(modules, module)
		stages = append(stages, vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  toShaderStageBit(shader.Stage),
			Module: module,
			PName:  VulkanSafeString("main"),
		})
	}

	bindings := make([]vk.VertexInputBindingDescription, len(desc.VertexBindings))
	for i, vb := range desc.VertexBindings {
		rate := vk.VertexInputRateVertex
		if vb.PerInstance {
			rate = vk.VertexInputRateInstance
		}
		bindings[i] = vk.VertexInputBindingDescription{Binding: vb.Binding, Stride: vb.Stride, InputRate: rate}
	}
	attributes := make([]vk.VertexInputAttributeDescription, len(desc.VertexAttributes))
	for i, va := range desc.VertexAttributes {
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: va.Location,
			Binding:  va.Binding,
			Format:   toVertexFormat(va.Format),
			Offset:   va.Offset,
		}
	}
	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                toCullMode(desc.CullMode),
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}
	if desc.DepthBias {
		rasterizer.DepthBiasEnable = vk.True
		rasterizer.DepthBiasConstantFactor = 1.25
		rasterizer.DepthBiasSlopeFactor = 1.75
	}

	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.False,
		DepthWriteEnable:  vk.False,
		DepthCompareOp:    vk.CompareOpAlways,
		StencilTestEnable: vk.False,
	}
	if desc.DepthTest {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthCompareOp = toCompareOp(desc.DepthCompare)
	}
	if desc.DepthWrite {
		depthStencil.DepthWriteEnable = vk.True
	}

	blends := make([]vk.PipelineColorBlendAttachmentState, desc.ColorAttachments)
	for i := range blends {
		blends[i] = blendAttachment(desc.Blend)
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blends)),
		PAttachments:    blends,
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	setLayouts := make([]vk.DescriptorSetLayout, len(desc.SetLayouts))
	for i, h := range desc.SetLayouts {
		l := ctx.setLayouts.get(uint64(h))
		if l == nil {
			return 0, handleError("descriptor set layout", uint64(h))
		}
		setLayouts[i] = l.handle
	}
	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(setLayouts)),
		PSetLayouts:    setLayouts,
	}
	if desc.PushConstantSize > 0 {
		layoutInfo.PushConstantRangeCount = 1
		layoutInfo.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: toShaderStages(desc.PushStages),
			Offset:     0,
			Size:       desc.PushConstantSize,
		}}
	}

	out := &vulkanPipeline{name: desc.Name}
	if err := ctx.locks.SafeCall(PipelineManagement, func() error {
		return check("vkCreatePipelineLayout", vk.CreatePipelineLayout(ctx.logical(), &layoutInfo, ctx.Allocator, &out.layout))
	}); err != nil {
		return 0, err
	}

	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              out.layout,
		RenderPass:          target.handle,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}
	pipelines := make([]vk.Pipeline, 1)
	if err := ctx.locks.SafeCall(PipelineManagement, func() error {
		return check(fmt.Sprintf("vkCreateGraphicsPipelines(%s)", desc.Name),
			vk.CreateGraphicsPipelines(ctx.logical(), vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{pipelineCreateInfo}, ctx.Allocator, pipelines))
	}); err != nil {
		vk.DestroyPipelineLayout(ctx.logical(), out.layout, ctx.Allocator)
		return 0, err
	}
	out.handle = pipelines[0]

	core.LogDebug("Graphics pipeline %s created!", desc.Name)
	return gpu.Pipeline(ctx.pipelines.add(out)), nil
}

func (b *Backend) DestroyPipeline(pipeline gpu.Pipeline) {
	ctx := b.context
	p := ctx.pipelines.remove(uint64(pipeline))
	if p == nil {
		return
	}
	_ = ctx.locks.SafeCall(PipelineManagement, func() error {
		if p.handle != vk.NullPipeline {
			vk.DestroyPipeline(ctx.logical(), p.handle, ctx.Allocator)
		}
		if p.layout != vk.NullPipelineLayout {
			vk.DestroyPipelineLayout(ctx.logical(), p.layout, ctx.Allocator)
		}
		return nil
	})
}
