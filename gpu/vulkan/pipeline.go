package vulkan

import (
	"sync/atomic"

	vk "github.com/goki/vulkan"

	"github.com/vanta-gfx/vanta/core"
	"github.com/vanta-gfx/vanta/gpu"
)

// GraphicsPipeline wraps a VkPipeline plus the C5 layout its draw calls
// bind against and the format/depth metadata BeginRenderPass needs to
// pick a compatible render pass.
type GraphicsPipeline struct {
	handle vk.Pipeline
	layout *GraphicsPipelineLayout

	colorFormats []vk.Format
	depthFormat  vk.Format
	hasDepth     bool
	sampleCount  uint32

	vertexUniformBlockSize   uint64
	fragmentUniformBlockSize uint64

	refcount atomic.Int32
}

func (p *GraphicsPipeline) Retain()       { p.refcount.Add(1) }
func (p *GraphicsPipeline) Release() int32 { return p.refcount.Add(-1) }
func (p *GraphicsPipeline) RefCount() int32 { return p.refcount.Load() }

// ComputePipeline wraps a VkPipeline plus its C5 layout.
type ComputePipeline struct {
	handle vk.Pipeline
	layout *ComputePipelineLayout

	uniformBlockSize uint64

	refcount atomic.Int32
}

func (p *ComputePipeline) Retain()       { p.refcount.Add(1) }
func (p *ComputePipeline) Release() int32 { return p.refcount.Add(-1) }
func (p *ComputePipeline) RefCount() int32 { return p.refcount.Load() }

func toVkTopology(t gpu.PrimitiveTopology) vk.PrimitiveTopology {
	switch t {
	case gpu.PrimitiveTopologyTriangleStrip:
		return vk.PrimitiveTopologyTriangleStrip
	case gpu.PrimitiveTopologyLineList:
		return vk.PrimitiveTopologyLineList
	case gpu.PrimitiveTopologyLineStrip:
		return vk.PrimitiveTopologyLineStrip
	case gpu.PrimitiveTopologyPointList:
		return vk.PrimitiveTopologyPointList
	default:
		return vk.PrimitiveTopologyTriangleList
	}
}

func toVkPolygonMode(f gpu.FillMode) vk.PolygonMode {
	if f == gpu.FillModeLine {
		return vk.PolygonModeLine
	}
	return vk.PolygonModeFill
}

func toVkCullMode(c gpu.CullMode) vk.CullModeFlagBits {
	switch c {
	case gpu.CullModeFront:
		return vk.CullModeFrontBit
	case gpu.CullModeBack:
		return vk.CullModeBackBit
	default:
		return vk.CullModeNone
	}
}

func toVkFrontFace(f gpu.FrontFace) vk.FrontFace {
	if f == gpu.FrontFaceClockwise {
		return vk.FrontFaceClockwise
	}
	return vk.FrontFaceCounterClockwise
}

func toVkBlendFactor(f gpu.BlendFactor) vk.BlendFactor {
	switch f {
	case gpu.BlendFactorOne:
		return vk.BlendFactorOne
	case gpu.BlendFactorSrcColor:
		return vk.BlendFactorSrcColor
	case gpu.BlendFactorOneMinusSrcColor:
		return vk.BlendFactorOneMinusSrcColor
	case gpu.BlendFactorDstColor:
		return vk.BlendFactorDstColor
	case gpu.BlendFactorOneMinusDstColor:
		return vk.BlendFactorOneMinusDstColor
	case gpu.BlendFactorSrcAlpha:
		return vk.BlendFactorSrcAlpha
	case gpu.BlendFactorOneMinusSrcAlpha:
		return vk.BlendFactorOneMinusSrcAlpha
	case gpu.BlendFactorDstAlpha:
		return vk.BlendFactorDstAlpha
	case gpu.BlendFactorOneMinusDstAlpha:
		return vk.BlendFactorOneMinusDstAlpha
	default:
		return vk.BlendFactorZero
	}
}

func toVkBlendOp(o gpu.BlendOp) vk.BlendOp {
	switch o {
	case gpu.BlendOpSubtract:
		return vk.BlendOpSubtract
	case gpu.BlendOpReverseSubtract:
		return vk.BlendOpReverseSubtract
	case gpu.BlendOpMin:
		return vk.BlendOpMin
	case gpu.BlendOpMax:
		return vk.BlendOpMax
	default:
		return vk.BlendOpAdd
	}
}

func toVkVertexFormat(f gpu.Format) vk.Format { return toVkFormat(f) }

// alignUniformBlockSize rounds size up to the device's minimum dynamic
// uniform buffer offset alignment, per spec §4.9.
func alignUniformBlockSize(size uint64, alignment uint64) uint64 {
	if alignment == 0 {
		return size
	}
	return (size + alignment - 1) &^ (alignment - 1)
}

// CreateGraphicsPipeline implements gpu.Device.CreateGraphicsPipeline per
// spec §4.9: fetch a C5 pipeline layout sized to the shaders' binding
// counts, build a transient compatible render pass (C8) for pipeline
// creation, and leave viewport/scissor dynamic since render targets vary
// in size across frames.
func (d *Device) CreateGraphicsPipeline(info gpu.GraphicsPipelineCreateInfo) *gpu.GraphicsPipeline {
	vertexModule, ok := info.VertexShader.Backend().(*ShaderModule)
	if !ok || vertexModule == nil {
		core.LogError("CreateGraphicsPipeline %q: missing vertex shader", info.DebugName)
		return nil
	}
	fragmentModule, ok := info.FragmentShader.Backend().(*ShaderModule)
	if !ok || fragmentModule == nil {
		core.LogError("CreateGraphicsPipeline %q: missing fragment shader", info.DebugName)
		return nil
	}

	layout, err := d.pipelineLayouts.fetchGraphics(d, vertexModule.samplerCount, fragmentModule.samplerCount)
	if err != nil {
		core.LogError("CreateGraphicsPipeline %q: %v", info.DebugName, err)
		return nil
	}

	sampleCount := info.SampleCount
	if sampleCount == 0 {
		sampleCount = 1
	}

	colorFormats := make([]vk.Format, len(info.ColorAttachments))
	for i, c := range info.ColorAttachments {
		colorFormats[i] = toVkFormat(c.Format)
	}
	var depthFormat vk.Format
	hasDepth := info.DepthStencil != nil
	if hasDepth {
		depthFormat = toVkFormat(info.DepthStencil.Format)
	}

	renderPass, err := compatibleRenderPass(d, colorFormats, depthFormat, hasDepth, sampleCount)
	if err != nil {
		core.LogError("CreateGraphicsPipeline %q: %v", info.DebugName, err)
		return nil
	}

	bindings := make([]vk.VertexInputBindingDescription, len(info.VertexBindings))
	for i, b := range info.VertexBindings {
		rate := vk.VertexInputRateVertex
		if !b.PerVertex {
			rate = vk.VertexInputRateInstance
		}
		bindings[i] = vk.VertexInputBindingDescription{Binding: b.Binding, Stride: b.Stride, InputRate: rate}
	}
	attributes := make([]vk.VertexInputAttributeDescription, len(info.VertexAttributes))
	for i, a := range info.VertexAttributes {
		attributes[i] = vk.VertexInputAttributeDescription{Location: a.Location, Binding: a.Binding, Format: toVkVertexFormat(a.Format), Offset: a.Offset}
	}
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: toVkTopology(info.Topology),
	}

	viewportState := vk.PipelineViewportStateCreateInfo{
		SType: vk.StructureTypePipelineViewportStateCreateInfo, ViewportCount: 1, ScissorCount: 1,
	}

	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: toVkPolygonMode(info.FillMode),
		CullMode:    vk.CullModeFlags(toVkCullMode(info.CullMode)),
		FrontFace:   toVkFrontFace(info.FrontFace),
		LineWidth:   1.0,
	}

	multisample := vk.PipelineMultisampleStateCreateInfo{
		SType: vk.StructureTypePipelineMultisampleStateCreateInfo, RasterizationSamples: vk.SampleCountFlagBits(sampleCount), MinSampleShading: 1.0,
	}

	var depthStencil vk.PipelineDepthStencilStateCreateInfo
	if hasDepth {
		depthStencil = vk.PipelineDepthStencilStateCreateInfo{
			SType: vk.StructureTypePipelineDepthStencilStateCreateInfo,
		}
		if info.DepthStencil.DepthTestEnable {
			depthStencil.DepthTestEnable = vk.True
			depthStencil.DepthCompareOp = toVkCompareOp(info.DepthStencil.CompareOp)
		}
		if info.DepthStencil.DepthWriteEnable {
			depthStencil.DepthWriteEnable = vk.True
		}
	}

	colorBlendAttachments := make([]vk.PipelineColorBlendAttachmentState, len(info.ColorAttachments))
	for i, c := range info.ColorAttachments {
		bs := c.BlendState
		state := vk.PipelineColorBlendAttachmentState{
			ColorWriteMask: vk.ColorComponentFlags(bs.WriteMaskRGBA),
		}
		if bs.Enable {
			state.BlendEnable = vk.True
			state.SrcColorBlendFactor = toVkBlendFactor(bs.SrcColorFactor)
			state.DstColorBlendFactor = toVkBlendFactor(bs.DstColorFactor)
			state.ColorBlendOp = toVkBlendOp(bs.ColorBlendOp)
			state.SrcAlphaBlendFactor = toVkBlendFactor(bs.SrcAlphaFactor)
			state.DstAlphaBlendFactor = toVkBlendFactor(bs.DstAlphaFactor)
			state.AlphaBlendOp = toVkBlendOp(bs.AlphaBlendOp)
		}
		colorBlendAttachments[i] = state
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType: vk.StructureTypePipelineColorBlendStateCreateInfo, AttachmentCount: uint32(len(colorBlendAttachments)), PAttachments: colorBlendAttachments,
	}

	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType: vk.StructureTypePipelineDynamicStateCreateInfo, DynamicStateCount: uint32(len(dynamicStates)), PDynamicStates: dynamicStates,
	}

	stages := []vk.PipelineShaderStageCreateInfo{vertexModule.stageCreateInfo(), fragmentModule.stageCreateInfo()}

	createInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisample,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              layout.handle,
		RenderPass:          renderPass,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}
	if hasDepth {
		createInfo.PDepthStencilState = &depthStencil
	}

	handles := make([]vk.Pipeline, 1)
	if res := vk.CreateGraphicsPipelines(d.logical, vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{createInfo}, d.allocCallbacks, handles); res != vk.Success {
		core.LogError("CreateGraphicsPipeline %q: vkCreateGraphicsPipelines failed: %s", info.DebugName, VulkanResultString(res, true))
		return nil
	}

	alignment := uint64(d.properties.Limits.MinUniformBufferOffsetAlignment)
	p := &GraphicsPipeline{
		handle: handles[0], layout: layout,
		colorFormats: colorFormats, depthFormat: depthFormat, hasDepth: hasDepth, sampleCount: sampleCount,
		vertexUniformBlockSize:   alignUniformBlockSize(uint64(vertexModule.uniformBlockSizeBytes), alignment),
		fragmentUniformBlockSize: alignUniformBlockSize(uint64(fragmentModule.uniformBlockSizeBytes), alignment),
	}
	d.stampDebugName(uint64(p.handle), vk.ObjectTypePipeline, info.DebugName)
	return gpu.NewGraphicsPipeline(p)
}

// CreateComputePipeline implements gpu.Device.CreateComputePipeline.
func (d *Device) CreateComputePipeline(info gpu.ComputePipelineCreateInfo) *gpu.ComputePipeline {
	module, ok := info.Shader.Backend().(*ShaderModule)
	if !ok || module == nil {
		core.LogError("CreateComputePipeline %q: missing shader", info.DebugName)
		return nil
	}

	bufferCount := info.ReadOnlyBufferCount + info.ReadWriteBufferCount
	textureCount := info.ReadOnlyTextureCount + info.ReadWriteTextureCount

	layout, err := d.pipelineLayouts.fetchCompute(d, bufferCount, textureCount)
	if err != nil {
		core.LogError("CreateComputePipeline %q: %v", info.DebugName, err)
		return nil
	}

	createInfo := vk.ComputePipelineCreateInfo{
		SType:  vk.StructureTypeComputePipelineCreateInfo,
		Stage:  module.stageCreateInfo(),
		Layout: layout.handle,
	}
	handles := make([]vk.Pipeline, 1)
	if res := vk.CreateComputePipelines(d.logical, vk.NullPipelineCache, 1, []vk.ComputePipelineCreateInfo{createInfo}, d.allocCallbacks, handles); res != vk.Success {
		core.LogError("CreateComputePipeline %q: vkCreateComputePipelines failed: %s", info.DebugName, VulkanResultString(res, true))
		return nil
	}

	alignment := uint64(d.properties.Limits.MinUniformBufferOffsetAlignment)
	p := &ComputePipeline{
		handle: handles[0], layout: layout,
		uniformBlockSize: alignUniformBlockSize(uint64(module.uniformBlockSizeBytes), alignment),
	}
	d.stampDebugName(uint64(p.handle), vk.ObjectTypePipeline, info.DebugName)
	return gpu.NewComputePipeline(p)
}

func (d *Device) destroyGraphicsPipelineNow(p *GraphicsPipeline) {
	vk.DestroyPipeline(d.logical, p.handle, d.allocCallbacks)
}

func (d *Device) destroyComputePipelineNow(p *ComputePipeline) {
	vk.DestroyPipeline(d.logical, p.handle, d.allocCallbacks)
}

func (d *Device) QueueDestroyGraphicsPipeline(handle *gpu.GraphicsPipeline) {
	if handle == nil {
		return
	}
	d.dispose.queueGraphicsPipeline(handle.Backend().(*GraphicsPipeline))
}

func (d *Device) QueueDestroyComputePipeline(handle *gpu.ComputePipeline) {
	if handle == nil {
		return
	}
	d.dispose.queueComputePipeline(handle.Backend().(*ComputePipeline))
}

// BindGraphicsPipeline implements gpu.Device.BindGraphicsPipeline.
func (d *Device) BindGraphicsPipeline(cmd *gpu.CommandBuffer, pipeline *gpu.GraphicsPipeline) {
	cb := fromGpuCommandBuffer(cmd)
	p := pipeline.Backend().(*GraphicsPipeline)
	vk.CmdBindPipeline(cb.handle, vk.PipelineBindPointGraphics, p.handle)
	cb.touchGraphicsPipeline(p)
	cb.boundGraphicsPipeline = p
}

// BindComputePipeline implements gpu.Device.BindComputePipeline.
func (d *Device) BindComputePipeline(cmd *gpu.CommandBuffer, pipeline *gpu.ComputePipeline) {
	cb := fromGpuCommandBuffer(cmd)
	p := pipeline.Backend().(*ComputePipeline)
	vk.CmdBindPipeline(cb.handle, vk.PipelineBindPointCompute, p.handle)
	cb.touchComputePipeline(p)
	cb.boundComputePipeline = p
}
