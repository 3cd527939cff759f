package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/vanta-gfx/vanta/core"
	"github.com/vanta-gfx/vanta/gpu"
)

// BindVertexBuffers implements gpu.Device.BindVertexBuffers: barrier
// every buffer to VERTEX_BUFFER, then issue a single vkCmdBindVertexBuffers
// call across the contiguous binding range starting at firstBinding.
func (d *Device) BindVertexBuffers(cmd *gpu.CommandBuffer, firstBinding uint32, buffers []gpu.BufferBinding) {
	cb := fromGpuCommandBuffer(cmd)
	if cb == nil || len(buffers) == 0 {
		return
	}

	handles := make([]vk.Buffer, len(buffers))
	offsets := make([]vk.DeviceSize, len(buffers))
	for i, bb := range buffers {
		b := bb.Buffer.Backend().(*Buffer)
		bufferBarrier(cb.handle, b, gpu.AccessVertexBuffer)
		cb.touchBuffer(b)
		handles[i] = b.handle
		offsets[i] = vk.DeviceSize(bb.Offset)
	}
	vk.CmdBindVertexBuffers(cb.handle, firstBinding, uint32(len(handles)), handles, offsets)
}

func toVkIndexType(size gpu.IndexElementSize) vk.IndexType {
	if size == gpu.IndexElementSize32 {
		return vk.IndexTypeUint32
	}
	return vk.IndexTypeUint16
}

// BindIndexBuffer implements gpu.Device.BindIndexBuffer: barrier the
// buffer to INDEX_BUFFER, then vkCmdBindIndexBuffer.
func (d *Device) BindIndexBuffer(cmd *gpu.CommandBuffer, buffer gpu.BufferBinding, elementSize gpu.IndexElementSize) {
	cb := fromGpuCommandBuffer(cmd)
	if cb == nil || buffer.Buffer == nil {
		return
	}
	b := buffer.Buffer.Backend().(*Buffer)
	bufferBarrier(cb.handle, b, gpu.AccessIndexBuffer)
	cb.touchBuffer(b)
	vk.CmdBindIndexBuffer(cb.handle, b.handle, vk.DeviceSize(buffer.Offset), toVkIndexType(elementSize))
}

// fetchSamplerSet barriers every bound texture to its shader-read layout
// for stage, builds one combined-image-sampler write per binding, and
// fetches the descriptor set from the pipeline layout's sampler cache
// for that stage, per spec §4.5/§4.6.
func fetchSamplerSet(d *Device, cb *CommandBuffer, cache *descriptorSetCache, bindings []gpu.TextureSamplerBinding, readKind gpu.AccessKind) vk.DescriptorSet {
	if cache == nil || len(bindings) == 0 {
		return d.emptySet
	}

	writes := make([]descriptorWrite, len(bindings))
	for i, tb := range bindings {
		t := tb.Texture.Backend().(*Texture)
		s := tb.Sampler.Backend().(*Sampler)
		imageBarrier(cb.handle, t, t.aspect, 0, t.layerCount, 0, t.levelCount, false, readKind)
		cb.touchTexture(t)
		cb.touchSampler(s)
		writes[i] = descriptorWrite{
			binding: uint32(i),
			imageInfo: &vk.DescriptorImageInfo{
				Sampler:     s.handle,
				ImageView:   t.view,
				ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
			},
		}
	}
	set, err := cache.fetch(d, cb, writes)
	if err != nil {
		core.LogError("fetchSamplerSet: %v", err)
		return d.emptySet
	}
	return set
}

// BindVertexSamplers implements gpu.Device.BindVertexSamplers.
func (d *Device) BindVertexSamplers(cmd *gpu.CommandBuffer, bindings []gpu.TextureSamplerBinding) {
	cb := fromGpuCommandBuffer(cmd)
	if cb == nil || cb.boundGraphicsPipeline == nil {
		return
	}
	cache := cb.boundGraphicsPipeline.layout.vertexSamplerCache
	cb.boundVertexSamplerSet = fetchSamplerSet(d, cb, cache, bindings, gpu.AccessVertexShaderReadSampledImage)
}

// BindFragmentSamplers implements gpu.Device.BindFragmentSamplers.
func (d *Device) BindFragmentSamplers(cmd *gpu.CommandBuffer, bindings []gpu.TextureSamplerBinding) {
	cb := fromGpuCommandBuffer(cmd)
	if cb == nil || cb.boundGraphicsPipeline == nil {
		return
	}
	cache := cb.boundGraphicsPipeline.layout.fragmentSamplerCache
	cb.boundFragmentSamplerSet = fetchSamplerSet(d, cb, cache, bindings, gpu.AccessFragmentShaderReadSampledImage)
}

// BindComputeBuffers implements gpu.Device.BindComputeBuffers: barrier
// every buffer to COMPUTE_SHADER_BUFFER_READ_WRITE, build one storage-
// buffer write per binding, and track them on the command buffer so
// DispatchCompute can re-transition them back to their graphics-side
// access kind once the dispatch completes, per spec §6's dispatch note.
func (d *Device) BindComputeBuffers(cmd *gpu.CommandBuffer, buffers []*gpu.Buffer) {
	cb := fromGpuCommandBuffer(cmd)
	if cb == nil || cb.boundComputePipeline == nil {
		return
	}
	cache := cb.boundComputePipeline.layout.bufferCache
	if cache == nil || len(buffers) == 0 {
		cb.boundComputeBufferSet = d.emptySet
		return
	}

	writes := make([]descriptorWrite, len(buffers))
	cb.pendingComputeBuffers = cb.pendingComputeBuffers[:0]
	for i, gb := range buffers {
		b := gb.Backend().(*Buffer)
		bufferBarrier(cb.handle, b, gpu.AccessComputeShaderBufferReadWrite)
		cb.touchBuffer(b)
		cb.pendingComputeBuffers = append(cb.pendingComputeBuffers, b)
		writes[i] = descriptorWrite{
			binding:    uint32(i),
			bufferInfo: &vk.DescriptorBufferInfo{Buffer: b.handle, Offset: 0, Range: vk.DeviceSize(vk.WholeSize)},
		}
	}
	set, err := cache.fetch(d, cb, writes)
	if err != nil {
		core.LogError("BindComputeBuffers: %v", err)
		set = d.emptySet
	}
	cb.boundComputeBufferSet = set
}

// BindComputeTextures implements gpu.Device.BindComputeTextures: barrier
// every texture to COMPUTE_SHADER_STORAGE_IMAGE_READ_WRITE (layout
// GENERAL), build one storage-image write per binding, and track them
// for DispatchCompute's post-dispatch re-transition.
func (d *Device) BindComputeTextures(cmd *gpu.CommandBuffer, textures []*gpu.Texture) {
	cb := fromGpuCommandBuffer(cmd)
	if cb == nil || cb.boundComputePipeline == nil {
		return
	}
	cache := cb.boundComputePipeline.layout.textureCache
	if cache == nil || len(textures) == 0 {
		cb.boundComputeTextureSet = d.emptySet
		return
	}

	writes := make([]descriptorWrite, len(textures))
	cb.pendingComputeTextures = cb.pendingComputeTextures[:0]
	for i, gt := range textures {
		t := gt.Backend().(*Texture)
		imageBarrier(cb.handle, t, t.aspect, 0, t.layerCount, 0, t.levelCount, false, gpu.AccessComputeShaderStorageImageReadWrite)
		cb.touchTexture(t)
		cb.pendingComputeTextures = append(cb.pendingComputeTextures, t)
		writes[i] = descriptorWrite{
			binding:   uint32(i),
			imageInfo: &vk.DescriptorImageInfo{ImageView: t.view, ImageLayout: vk.ImageLayoutGeneral},
		}
	}
	set, err := cache.fetch(d, cb, writes)
	if err != nil {
		core.LogError("BindComputeTextures: %v", err)
		set = d.emptySet
	}
	cb.boundComputeTextureSet = set
}
