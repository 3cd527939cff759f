package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/vanta-gfx/vanta/core"
	"github.com/vanta-gfx/vanta/gpu"
)

// uniformSetOrDummy returns ub's descriptor set, substituting the pool's
// shared dummy buffer's set when no uniforms were ever pushed this draw
// (blockSize == 0 pipelines never acquire a real UB), per spec §4.6.
func uniformSetOrDummy(ub *UniformBuffer, pool *UniformBufferPool) vk.DescriptorSet {
	if ub != nil {
		return ub.set
	}
	return pool.dummy.set
}

// bindGraphicsDescriptorSets assembles the four sets a graphics draw
// binds — vertex samplers, fragment samplers, vertex uniforms, fragment
// uniforms — substituting the device's empty set or a pool's dummy
// uniform buffer wherever nothing was actually bound, per spec §4.6.
func bindGraphicsDescriptorSets(d *Device, cb *CommandBuffer) {
	p := cb.boundGraphicsPipeline
	if p == nil {
		return
	}

	vertexSamplerSet := cb.boundVertexSamplerSet
	if vertexSamplerSet == nil {
		vertexSamplerSet = d.emptySet
	}
	fragmentSamplerSet := cb.boundFragmentSamplerSet
	if fragmentSamplerSet == nil {
		fragmentSamplerSet = d.emptySet
	}

	sets := []vk.DescriptorSet{
		vertexSamplerSet,
		fragmentSamplerSet,
		uniformSetOrDummy(cb.boundVertexUniformBuffer, d.uniformPools[gpu.ShaderStageVertex]),
		uniformSetOrDummy(cb.boundFragmentUniformBuffer, d.uniformPools[gpu.ShaderStageFragment]),
	}
	offsets := []uint32{cb.lastVertexUniformOffset, cb.lastFragmentUniformOffset}

	vk.CmdBindDescriptorSets(cb.handle, vk.PipelineBindPointGraphics, p.layout.handle,
		0, uint32(len(sets)), sets, uint32(len(offsets)), offsets)
}

// bindComputeDescriptorSets assembles the three sets a dispatch binds:
// storage buffers, storage images, compute uniforms.
func bindComputeDescriptorSets(d *Device, cb *CommandBuffer) {
	p := cb.boundComputePipeline
	if p == nil {
		return
	}

	bufferSet := cb.boundComputeBufferSet
	if bufferSet == nil {
		bufferSet = d.emptySet
	}
	textureSet := cb.boundComputeTextureSet
	if textureSet == nil {
		textureSet = d.emptySet
	}

	sets := []vk.DescriptorSet{
		bufferSet,
		textureSet,
		uniformSetOrDummy(cb.boundComputeUniformBuffer, d.uniformPools[gpu.ShaderStageCompute]),
	}
	offsets := []uint32{cb.lastComputeUniformOffset}

	vk.CmdBindDescriptorSets(cb.handle, vk.PipelineBindPointCompute, p.layout.handle,
		0, uint32(len(sets)), sets, uint32(len(offsets)), offsets)
}

// DrawPrimitives implements gpu.Device.DrawPrimitives.
func (d *Device) DrawPrimitives(cmd *gpu.CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	cb := fromGpuCommandBuffer(cmd)
	if cb == nil {
		return
	}
	bindGraphicsDescriptorSets(d, cb)
	vk.CmdDraw(cb.handle, vertexCount, instanceCount, firstVertex, firstInstance)
}

// DrawIndexedPrimitives implements gpu.Device.DrawIndexedPrimitives.
func (d *Device) DrawIndexedPrimitives(cmd *gpu.CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	cb := fromGpuCommandBuffer(cmd)
	if cb == nil {
		return
	}
	bindGraphicsDescriptorSets(d, cb)
	vk.CmdDrawIndexed(cb.handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

// DrawIndirect implements gpu.Device.DrawIndirect. Unlike a vertex or
// index buffer bind, which freely transitions a buffer into its bound
// kind, an indirect-draw buffer's access kind is the caller's
// responsibility to have already established as INDIRECT_BUFFER (via
// whatever wrote its draw arguments transitioning it back afterward);
// this rejects the call rather than silently barriering a buffer the
// caller never prepared for indirect use.
func (d *Device) DrawIndirect(cmd *gpu.CommandBuffer, buffer *gpu.Buffer, offset uint64, drawCount, stride uint32) {
	cb := fromGpuCommandBuffer(cmd)
	if cb == nil || buffer == nil {
		return
	}
	b := buffer.Backend().(*Buffer)
	if b.currentAccess() != gpu.AccessIndirectBuffer {
		core.LogError("DrawIndirect: buffer %q access kind is %s, not INDIRECT_BUFFER; skipping draw", b.debugName, b.currentAccess())
		return
	}
	cb.touchBuffer(b)
	bindGraphicsDescriptorSets(d, cb)
	vk.CmdDrawIndirect(cb.handle, b.handle, vk.DeviceSize(offset), drawCount, stride)
}

// reTransitionAfterDispatch restores every buffer and texture bound via
// BindComputeBuffers/BindComputeTextures to the access kind a later
// graphics stage expects, per spec §6's dispatch note: buffers return to
// their usage-derived kind (vertex/index/indirect), textures to
// ANY_SHADER_READ_SAMPLED_IMAGE so a later pass may sample them.
func reTransitionAfterDispatch(cb *CommandBuffer) {
	for _, b := range cb.pendingComputeBuffers {
		switch {
		case b.usage&gpu.BufferUsageVertex != 0:
			bufferBarrier(cb.handle, b, gpu.AccessVertexBuffer)
		case b.usage&gpu.BufferUsageIndex != 0:
			bufferBarrier(cb.handle, b, gpu.AccessIndexBuffer)
		case b.usage&gpu.BufferUsageIndirect != 0:
			bufferBarrier(cb.handle, b, gpu.AccessIndirectBuffer)
		}
	}
	cb.pendingComputeBuffers = cb.pendingComputeBuffers[:0]

	for _, t := range cb.pendingComputeTextures {
		imageBarrier(cb.handle, t, t.aspect, 0, t.layerCount, 0, t.levelCount, false, gpu.AccessAnyShaderReadSampledImage)
	}
	cb.pendingComputeTextures = cb.pendingComputeTextures[:0]
}

// DispatchCompute implements gpu.Device.DispatchCompute.
func (d *Device) DispatchCompute(cmd *gpu.CommandBuffer, groupCountX, groupCountY, groupCountZ uint32) {
	cb := fromGpuCommandBuffer(cmd)
	if cb == nil {
		return
	}
	bindComputeDescriptorSets(d, cb)
	vk.CmdDispatch(cb.handle, groupCountX, groupCountY, groupCountZ)
	reTransitionAfterDispatch(cb)
}
