package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/vanta-gfx/vanta/core"
	"github.com/vanta-gfx/vanta/gpu"
)

// passSampleCount returns the MSAA sample count every attachment in a
// render pass shares, per spec §4.7's single sampleCount field on
// renderPassKey/framebufferKey. Color attachments take priority since a
// depth-only pass is degenerate in practice.
func passSampleCount(color []gpu.ColorAttachmentBinding, depthStencil *gpu.DepthStencilAttachmentBinding) uint32 {
	for _, c := range color {
		return c.Texture.Backend().(*Texture).sampleCount
	}
	if depthStencil != nil {
		return depthStencil.Texture.Backend().(*Texture).sampleCount
	}
	return 1
}

// BeginRenderPass implements gpu.Device.BeginRenderPass per spec §4.8:
// compute the effective extent, fetch the render pass and framebuffer
// via C8, transition every attachment into its write layout, assemble
// clear values in attachment order, and start recording with a default
// full-target viewport and scissor.
func (d *Device) BeginRenderPass(cmd *gpu.CommandBuffer, color []gpu.ColorAttachmentBinding, depthStencil *gpu.DepthStencilAttachmentBinding) {
	cb := fromGpuCommandBuffer(cmd)
	if cb == nil {
		return
	}

	sampleCount := passSampleCount(color, depthStencil)

	width := ^uint32(0)
	height := ^uint32(0)
	for _, c := range color {
		t := c.Texture.Backend().(*Texture)
		width = min(width, t.width>>c.MipLevel)
		height = min(height, t.height>>c.MipLevel)
	}
	if depthStencil != nil {
		t := depthStencil.Texture.Backend().(*Texture)
		width = min(width, t.width)
		height = min(height, t.height)
	}
	if width == ^uint32(0) {
		width, height = 0, 0
	}

	rpKey := buildRenderPassKey(color, depthStencil, sampleCount)
	renderPass, err := d.renderPasses.fetch(d, rpKey)
	if err != nil {
		core.LogError("BeginRenderPass: %v", err)
		return
	}

	var fbKey framebufferKey
	fbKey.colorCount = len(color)
	fbKey.width, fbKey.height = width, height

	var clearValues []vk.ClearValue
	for i, c := range color {
		t := c.Texture.Backend().(*Texture)
		rt, err := d.renderTargets.fetch(d, t, 0, c.Layer, c.MipLevel, sampleCount)
		if err != nil {
			core.LogError("BeginRenderPass: color attachment %d: %v", i, err)
			return
		}
		cb.touchTexture(t)

		discard := c.LoadOp != gpu.LoadOpLoad
		imageBarrier(cb.handle, t, t.aspect, c.Layer, 1, c.MipLevel, 1, discard, gpu.AccessColorAttachmentWrite)

		// buildRenderPass orders each color slot's attachments as
		// [sample-count-N target, single-sample resolve target]; the
		// framebuffer's attachment list follows [colorViews[i],
		// msaaViews[i]] in that same order, so the sidecar (the thing
		// actually rendered into) goes in colorViews and the resolve
		// destination — the caller's own texture view — goes second.
		if rt.msaaView != nil {
			fbKey.colorViews[i] = rt.msaaView
			fbKey.msaaViews[i] = rt.view
		} else {
			fbKey.colorViews[i] = rt.view
		}
		var cv vk.ClearValue
		cv.SetColor(c.ClearColor[:])
		clearValues = append(clearValues, cv)
		if rt.msaaView != nil {
			var resolveCv vk.ClearValue
			resolveCv.SetColor(c.ClearColor[:])
			clearValues = append(clearValues, resolveCv)
		}
	}

	if depthStencil != nil {
		t := depthStencil.Texture.Backend().(*Texture)
		rt, err := d.renderTargets.fetch(d, t, 0, 0, 0, sampleCount)
		if err != nil {
			core.LogError("BeginRenderPass: depth attachment: %v", err)
			return
		}
		cb.touchTexture(t)

		discard := depthStencil.DepthLoadOp != gpu.LoadOpLoad && depthStencil.StencilLoadOp != gpu.LoadOpLoad
		imageBarrier(cb.handle, t, t.aspect, 0, t.layerCount, 0, 1, discard, gpu.AccessDepthStencilAttachmentWrite)

		fbKey.hasDepth = true
		fbKey.depthView = rt.view
		var depthCv vk.ClearValue
		depthCv.SetDepthStencil(depthStencil.ClearDepth, depthStencil.ClearStencil)
		clearValues = append(clearValues, depthCv)
	}

	framebuffer, err := d.framebuffers.fetch(d, renderPass, fbKey)
	if err != nil {
		core.LogError("BeginRenderPass: %v", err)
		return
	}
	cb.usedFramebuffers = append(cb.usedFramebuffers, framebuffer)

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  renderPass,
		Framebuffer: framebuffer,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: width, Height: height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(cb.handle, &beginInfo, vk.SubpassContentsInline)

	viewport := vk.Viewport{X: 0, Y: 0, Width: float32(width), Height: float32(height), MinDepth: 0, MaxDepth: 1}
	vk.CmdSetViewport(cb.handle, 0, 1, []vk.Viewport{viewport})
	scissor := vk.Rect2D{Offset: vk.Offset2D{X: 0, Y: 0}, Extent: vk.Extent2D{Width: width, Height: height}}
	vk.CmdSetScissor(cb.handle, 0, 1, []vk.Rect2D{scissor})

	cb.state = commandBufferInRenderPass
	cb.activeColorAttachments = append(cb.activeColorAttachments[:0], color...)
}

// EndRenderPass implements gpu.Device.EndRenderPass per spec §4.8: flush
// any uniform buffers the bound pipeline acquired, transition sampled-
// or storage-capable color attachments into a shader-accessible layout,
// end the pass, and clear render-pass-scoped state.
func (d *Device) EndRenderPass(cmd *gpu.CommandBuffer) {
	cb := fromGpuCommandBuffer(cmd)
	if cb == nil {
		return
	}

	if cb.boundVertexUniformBuffer != nil {
		cb.boundUniformBuffers = append(cb.boundUniformBuffers, cb.boundVertexUniformBuffer)
		cb.boundVertexUniformBuffer = nil
	}
	if cb.boundFragmentUniformBuffer != nil {
		cb.boundUniformBuffers = append(cb.boundUniformBuffers, cb.boundFragmentUniformBuffer)
		cb.boundFragmentUniformBuffer = nil
	}

	vk.CmdEndRenderPass(cb.handle)

	for _, c := range cb.activeColorAttachments {
		t := c.Texture.Backend().(*Texture)
		if t.usage&gpu.TextureUsageSampler != 0 {
			imageBarrier(cb.handle, t, t.aspect, c.Layer, 1, c.MipLevel, 1, false, gpu.AccessAnyShaderReadSampledImage)
		} else if t.usage&(gpu.TextureUsageComputeStorageRead|gpu.TextureUsageComputeStorageWrite) != 0 {
			imageBarrier(cb.handle, t, t.aspect, c.Layer, 1, c.MipLevel, 1, false, gpu.AccessGeneral)
		}
	}
	cb.activeColorAttachments = cb.activeColorAttachments[:0]

	cb.state = commandBufferRecording
	cb.boundGraphicsPipeline = nil
}
