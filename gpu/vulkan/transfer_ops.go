package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/vanta-gfx/vanta/core"
	"github.com/vanta-gfx/vanta/gpu"
)

// SetBufferData implements gpu.Device.SetBufferData per spec §6: stage
// data into the transfer pool, copy it onto dst via vkCmdCopyBuffer, and
// return the buffer to its usage-derived default access.
func (d *Device) SetBufferData(cmd *gpu.CommandBuffer, dst gpu.BufferRegion, data []byte) {
	cb := fromGpuCommandBuffer(cmd)
	if cb == nil || dst.Buffer == nil || len(data) == 0 {
		return
	}
	b := dst.Buffer.Backend().(*Buffer)

	tb, srcOffset := d.transferPool.stage(data)
	if tb == nil {
		core.LogError("SetBufferData: transfer pool exhausted staging %d bytes", len(data))
		return
	}
	cb.pendingTransferBufs = append(cb.pendingTransferBufs, tb)

	bufferBarrier(cb.handle, b, gpu.AccessTransferWrite)
	cb.touchBuffer(b)

	region := vk.BufferCopy{SrcOffset: vk.DeviceSize(srcOffset), DstOffset: vk.DeviceSize(dst.Offset), Size: vk.DeviceSize(len(data))}
	vk.CmdCopyBuffer(cb.handle, tb.handle, b.handle, 1, []vk.BufferCopy{region})

	bufferBarrier(cb.handle, b, initialAccessKind(b.usage))
}

func bufferImageCopy(region gpu.TextureRegion, t *Texture, bufferOffset uint64) vk.BufferImageCopy {
	return vk.BufferImageCopy{
		BufferOffset: vk.DeviceSize(bufferOffset),
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.ImageAspectFlags(t.aspect),
			MipLevel:       region.MipLevel,
			BaseArrayLayer: region.Layer,
			LayerCount:     1,
		},
		ImageOffset: vk.Offset3D{X: int32(region.X), Y: int32(region.Y), Z: int32(region.Z)},
		ImageExtent: vk.Extent3D{Width: region.Width, Height: region.Height, Depth: maxU32(region.Depth, 1)},
	}
}

// SetTextureData implements gpu.Device.SetTextureData per spec §6: stage
// data, transition dst to TRANSFER_WRITE, vkCmdCopyBufferToImage, then
// leave the texture in ANY_SHADER_READ_SAMPLED_IMAGE when it's sampler-
// capable, or back to GENERAL for storage-only textures.
func (d *Device) SetTextureData(cmd *gpu.CommandBuffer, dst gpu.TextureRegion, data []byte) {
	cb := fromGpuCommandBuffer(cmd)
	if cb == nil || dst.Texture == nil || len(data) == 0 {
		return
	}
	t := dst.Texture.Backend().(*Texture)

	tb, srcOffset := d.transferPool.stage(data)
	if tb == nil {
		core.LogError("SetTextureData: transfer pool exhausted staging %d bytes", len(data))
		return
	}
	cb.pendingTransferBufs = append(cb.pendingTransferBufs, tb)

	cb.touchTexture(t)
	imageBarrier(cb.handle, t, t.aspect, dst.Layer, 1, dst.MipLevel, 1, true, gpu.AccessTransferWrite)
	copyRegion := bufferImageCopy(dst, t, srcOffset)
	vk.CmdCopyBufferToImage(cb.handle, tb.handle, t.handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{copyRegion})
	imageBarrier(cb.handle, t, t.aspect, dst.Layer, 1, dst.MipLevel, 1, false, textureRestAccess(t))
}

// textureRestAccess is the access kind a texture settles into once a
// transfer finishes writing it, per spec §6: sampler-capable textures
// land in ANY_SHADER_READ_SAMPLED_IMAGE, storage-only ones in GENERAL.
func textureRestAccess(t *Texture) gpu.AccessKind {
	if t.usage&gpu.TextureUsageSampler != 0 {
		return gpu.AccessAnyShaderReadSampledImage
	}
	if t.usage&(gpu.TextureUsageComputeStorageRead|gpu.TextureUsageComputeStorageWrite) != 0 {
		return gpu.AccessGeneral
	}
	return gpu.AccessNone
}

// SetTextureDataYUV implements gpu.Device.SetTextureDataYUV: each plane
// is an independently formatted single-channel texture, so the upload is
// three independent SetTextureData-style copies onto y, u, v in turn.
func (d *Device) SetTextureDataYUV(cmd *gpu.CommandBuffer, y, u, v gpu.TextureRegion, yData, uData, vData []byte) {
	d.SetTextureData(cmd, y, yData)
	d.SetTextureData(cmd, u, uData)
	d.SetTextureData(cmd, v, vData)
}

// CopyTextureToTexture implements gpu.Device.CopyTextureToTexture per
// spec §6: blit via the transfer queue family, honoring filter for
// scaling mismatches between src and dst regions.
func (d *Device) CopyTextureToTexture(cmd *gpu.CommandBuffer, src, dst gpu.TextureRegion, filter gpu.Filter) {
	cb := fromGpuCommandBuffer(cmd)
	if cb == nil || src.Texture == nil || dst.Texture == nil {
		return
	}
	st := src.Texture.Backend().(*Texture)
	dt := dst.Texture.Backend().(*Texture)
	cb.touchTexture(st)
	cb.touchTexture(dt)

	imageBarrier(cb.handle, st, st.aspect, src.Layer, 1, src.MipLevel, 1, false, gpu.AccessTransferRead)
	imageBarrier(cb.handle, dt, dt.aspect, dst.Layer, 1, dst.MipLevel, 1, true, gpu.AccessTransferWrite)

	blit := vk.ImageBlit{
		SrcSubresource: vk.ImageSubresourceLayers{AspectMask: vk.ImageAspectFlags(st.aspect), MipLevel: src.MipLevel, BaseArrayLayer: src.Layer, LayerCount: 1},
		SrcOffsets: [2]vk.Offset3D{
			{X: int32(src.X), Y: int32(src.Y), Z: int32(src.Z)},
			{X: int32(src.X + src.Width), Y: int32(src.Y + src.Height), Z: int32(src.Z + maxU32(src.Depth, 1))},
		},
		DstSubresource: vk.ImageSubresourceLayers{AspectMask: vk.ImageAspectFlags(dt.aspect), MipLevel: dst.MipLevel, BaseArrayLayer: dst.Layer, LayerCount: 1},
		DstOffsets: [2]vk.Offset3D{
			{X: int32(dst.X), Y: int32(dst.Y), Z: int32(dst.Z)},
			{X: int32(dst.X + dst.Width), Y: int32(dst.Y + dst.Height), Z: int32(dst.Z + maxU32(dst.Depth, 1))},
		},
	}
	vk.CmdBlitImage(cb.handle, st.handle, vk.ImageLayoutTransferSrcOptimal, dt.handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.ImageBlit{blit}, toVkFilter(filter))

	imageBarrier(cb.handle, st, st.aspect, src.Layer, 1, src.MipLevel, 1, false, textureRestAccess(st))
	imageBarrier(cb.handle, dt, dt.aspect, dst.Layer, 1, dst.MipLevel, 1, false, textureRestAccess(dt))
}

// CopyTextureToBuffer implements gpu.Device.CopyTextureToBuffer: barrier
// src to TRANSFER_READ, vkCmdCopyImageToBuffer into dst, then return src
// to its shader-read/general access and dst to its default access.
func (d *Device) CopyTextureToBuffer(cmd *gpu.CommandBuffer, src gpu.TextureRegion, dst gpu.BufferRegion) {
	cb := fromGpuCommandBuffer(cmd)
	if cb == nil || src.Texture == nil || dst.Buffer == nil {
		return
	}
	st := src.Texture.Backend().(*Texture)
	db := dst.Buffer.Backend().(*Buffer)
	cb.touchTexture(st)
	cb.touchBuffer(db)

	imageBarrier(cb.handle, st, st.aspect, src.Layer, 1, src.MipLevel, 1, false, gpu.AccessTransferRead)
	bufferBarrier(cb.handle, db, gpu.AccessTransferWrite)

	region := bufferImageCopy(src, st, dst.Offset)
	vk.CmdCopyImageToBuffer(cb.handle, st.handle, vk.ImageLayoutTransferSrcOptimal, db.handle, 1, []vk.BufferImageCopy{region})

	imageBarrier(cb.handle, st, st.aspect, src.Layer, 1, src.MipLevel, 1, false, textureRestAccess(st))
	bufferBarrier(cb.handle, db, initialAccessKind(db.usage))
}

// GetBufferData implements gpu.Device.GetBufferData: synchronously copy
// src into a staging buffer on a fixed command buffer, submit, wait for
// the fence, then memcpy out of the staging buffer's mapped memory. This
// is the only Device method that blocks on the GPU itself rather than
// deferring to the caller's own Submit/Wait.
func (d *Device) GetBufferData(src gpu.BufferRegion, out []byte) error {
	if src.Buffer == nil || len(out) == 0 {
		return fmt.Errorf("GetBufferData: nil buffer or empty destination")
	}
	b := src.Buffer.Backend().(*Buffer)

	gcb := d.AcquireCommandBuffer(true)
	if gcb == nil {
		return fmt.Errorf("GetBufferData: failed to acquire command buffer")
	}
	cb := fromGpuCommandBuffer(gcb)

	tb := d.transferPool.acquire(uint64(len(out)))
	if tb == nil {
		return fmt.Errorf("GetBufferData: transfer pool exhausted staging %d bytes", len(out))
	}
	cb.pendingTransferBufs = append(cb.pendingTransferBufs, tb)

	bufferBarrier(cb.handle, b, gpu.AccessTransferRead)
	cb.touchBuffer(b)
	region := vk.BufferCopy{SrcOffset: vk.DeviceSize(src.Offset), DstOffset: 0, Size: vk.DeviceSize(len(out))}
	vk.CmdCopyBuffer(cb.handle, b.handle, tb.handle, 1, []vk.BufferCopy{region})
	bufferBarrier(cb.handle, b, initialAccessKind(b.usage))

	if err := d.Submit([]*gpu.CommandBuffer{gcb}); err != nil {
		return fmt.Errorf("GetBufferData: %w", err)
	}
	d.Wait()

	copy(out, tb.mapped[:len(out)])
	return nil
}
