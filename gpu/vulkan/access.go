package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/vanta-gfx/vanta/gpu"
)

// accessInfo is one row of the access-kind table: the stage mask,
// access mask, and image layout a gpu.AccessKind maps to. This is the
// single source of truth every barrier call consults (spec §4.2, §9
// "Enum -> access table").
type accessInfo struct {
	stage  vk.PipelineStageFlagBits
	access vk.AccessFlagBits
	layout vk.ImageLayout
}

// accessTable is indexed by gpu.AccessKind. Kept free of any live
// vk.Device/command-buffer state so spec §8's table-driven properties
// can be asserted without a GPU.
var accessTable = [...]accessInfo{
	gpu.AccessNone: {vk.PipelineStageTopOfPipeBit, 0, vk.ImageLayoutUndefined},

	gpu.AccessIndexBuffer:    {vk.PipelineStageVertexInputBit, vk.AccessIndexReadBit, vk.ImageLayoutUndefined},
	gpu.AccessVertexBuffer:   {vk.PipelineStageVertexInputBit, vk.AccessVertexAttributeReadBit, vk.ImageLayoutUndefined},
	gpu.AccessIndirectBuffer: {vk.PipelineStageDrawIndirectBit, vk.AccessIndirectCommandReadBit, vk.ImageLayoutUndefined},

	gpu.AccessVertexShaderReadUniformBuffer: {vk.PipelineStageVertexShaderBit, vk.AccessUniformReadBit, vk.ImageLayoutUndefined},
	gpu.AccessVertexShaderReadSampledImage:  {vk.PipelineStageVertexShaderBit, vk.AccessShaderReadBit, vk.ImageLayoutShaderReadOnlyOptimal},
	gpu.AccessVertexShaderReadOther:         {vk.PipelineStageVertexShaderBit, vk.AccessShaderReadBit, vk.ImageLayoutUndefined},

	gpu.AccessFragmentShaderReadUniformBuffer: {vk.PipelineStageFragmentShaderBit, vk.AccessUniformReadBit, vk.ImageLayoutUndefined},
	gpu.AccessFragmentShaderReadSampledImage:  {vk.PipelineStageFragmentShaderBit, vk.AccessShaderReadBit, vk.ImageLayoutShaderReadOnlyOptimal},
	gpu.AccessFragmentShaderReadOther:         {vk.PipelineStageFragmentShaderBit, vk.AccessShaderReadBit, vk.ImageLayoutUndefined},

	gpu.AccessComputeShaderReadUniformBuffer:     {vk.PipelineStageComputeShaderBit, vk.AccessUniformReadBit, vk.ImageLayoutUndefined},
	gpu.AccessComputeShaderReadSampledImage:      {vk.PipelineStageComputeShaderBit, vk.AccessShaderReadBit, vk.ImageLayoutShaderReadOnlyOptimal},
	gpu.AccessComputeShaderReadOther:             {vk.PipelineStageComputeShaderBit, vk.AccessShaderReadBit, vk.ImageLayoutUndefined},
	gpu.AccessComputeShaderBufferReadWrite:       {vk.PipelineStageComputeShaderBit, vk.AccessShaderReadBit | vk.AccessShaderWriteBit, vk.ImageLayoutUndefined},
	gpu.AccessComputeShaderStorageImageReadWrite: {vk.PipelineStageComputeShaderBit, vk.AccessShaderReadBit | vk.AccessShaderWriteBit, vk.ImageLayoutGeneral},
	gpu.AccessAnyShaderReadSampledImage:          {vk.PipelineStageVertexShaderBit | vk.PipelineStageFragmentShaderBit | vk.PipelineStageComputeShaderBit, vk.AccessShaderReadBit, vk.ImageLayoutShaderReadOnlyOptimal},

	gpu.AccessColorAttachmentRead:      {vk.PipelineStageColorAttachmentOutputBit, vk.AccessColorAttachmentReadBit, vk.ImageLayoutColorAttachmentOptimal},
	gpu.AccessColorAttachmentWrite:     {vk.PipelineStageColorAttachmentOutputBit, vk.AccessColorAttachmentWriteBit, vk.ImageLayoutColorAttachmentOptimal},
	gpu.AccessColorAttachmentReadWrite: {vk.PipelineStageColorAttachmentOutputBit, vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit, vk.ImageLayoutColorAttachmentOptimal},

	gpu.AccessDepthStencilAttachmentRead:      {vk.PipelineStageEarlyFragmentTestsBit, vk.AccessDepthStencilAttachmentReadBit, vk.ImageLayoutDepthStencilReadOnlyOptimal},
	gpu.AccessDepthStencilAttachmentWrite:     {vk.PipelineStageLateFragmentTestsBit, vk.AccessDepthStencilAttachmentWriteBit, vk.ImageLayoutDepthStencilAttachmentOptimal},
	gpu.AccessDepthStencilAttachmentReadWrite: {vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit, vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit, vk.ImageLayoutDepthStencilAttachmentOptimal},
	gpu.AccessDepthStencilAttachmentReadOnly:  {vk.PipelineStageEarlyFragmentTestsBit, vk.AccessDepthStencilAttachmentReadBit, vk.ImageLayoutDepthStencilReadOnlyOptimal},

	gpu.AccessTransferRead:  {vk.PipelineStageTransferBit, vk.AccessTransferReadBit, vk.ImageLayoutTransferSrcOptimal},
	gpu.AccessTransferWrite: {vk.PipelineStageTransferBit, vk.AccessTransferWriteBit, vk.ImageLayoutTransferDstOptimal},

	gpu.AccessResolveRead:  {vk.PipelineStageColorAttachmentOutputBit, vk.AccessColorAttachmentReadBit, vk.ImageLayoutColorAttachmentOptimal},
	gpu.AccessResolveWrite: {vk.PipelineStageColorAttachmentOutputBit, vk.AccessColorAttachmentWriteBit, vk.ImageLayoutColorAttachmentOptimal},

	gpu.AccessPresent: {vk.PipelineStageBottomOfPipeBit, 0, vk.ImageLayoutPresentSrc},
	gpu.AccessGeneral: {vk.PipelineStageAllCommandsBit, vk.AccessShaderReadBit | vk.AccessShaderWriteBit, vk.ImageLayoutGeneral},

	gpu.AccessHostRead:  {vk.PipelineStageHostBit, vk.AccessHostReadBit, vk.ImageLayoutUndefined},
	gpu.AccessHostWrite: {vk.PipelineStageHostBit, vk.AccessHostWriteBit, vk.ImageLayoutUndefined},
}

func lookupAccess(k gpu.AccessKind) accessInfo {
	if int(k) < len(accessTable) {
		return accessTable[k]
	}
	return accessTable[gpu.AccessNone]
}

// clampStage substitutes TOP_OF_PIPE/BOTTOM_OF_PIPE for a zero stage
// mask, per spec §4.2 step 5. isSource chooses which sentinel applies:
// a barrier's source side defaults to TOP_OF_PIPE when nothing else
// produced the data, its destination side to BOTTOM_OF_PIPE when
// nothing else consumes it.
func clampStage(stage vk.PipelineStageFlagBits, isSource bool) vk.PipelineStageFlagBits {
	if stage != 0 {
		return stage
	}
	if isSource {
		return vk.PipelineStageTopOfPipeBit
	}
	return vk.PipelineStageBottomOfPipeBit
}

// trackedBuffer and trackedImage are the minimal interfaces access.go
// needs from Buffer/Texture: their current kind and the raw handle to
// barrier. Buffer and Texture (buffer.go, texture.go) implement these.
type trackedBuffer interface {
	vkBufferHandle() vk.Buffer
	currentAccess() gpu.AccessKind
	setCurrentAccess(gpu.AccessKind)
}

type trackedImage interface {
	vkImageHandle() vk.Image
	currentAccess() gpu.AccessKind
	setCurrentAccess(gpu.AccessKind)
}

// bufferBarrier implements spec §4.2's buffer transition: look up the
// previous kind, compute src/dst access masks, emit the barrier, and
// store the new kind on the resource.
func bufferBarrier(cmd vk.CommandBuffer, buf trackedBuffer, newKind gpu.AccessKind) {
	prevKind := buf.currentAccess()
	prev := lookupAccess(prevKind)
	next := lookupAccess(newKind)

	var srcAccess vk.AccessFlagBits
	if !prevKind.IsReadOnly() {
		srcAccess = prev.access
	}

	barrier := vk.BufferMemoryBarrier{
		SType:               vk.StructureTypeBufferMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(srcAccess),
		DstAccessMask:       vk.AccessFlags(next.access),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Buffer:              buf.vkBufferHandle(),
		Offset:              0,
		Size:                vk.DeviceSize(vk.WholeSize),
	}

	vk.CmdPipelineBarrier(cmd,
		vk.PipelineStageFlags(clampStage(prev.stage, true)),
		vk.PipelineStageFlags(clampStage(next.stage, false)),
		0, 0, nil, 1, []vk.BufferMemoryBarrier{barrier}, 0, nil)

	buf.setCurrentAccess(newKind)
}

// imageBarrier implements spec §4.2's image transition, additionally
// choosing UNDEFINED as the old layout when discardContents is true
// (used when the caller has no need for the image's prior contents,
// e.g. a freshly acquired swapchain image or a render target about to
// be fully overwritten).
func imageBarrier(cmd vk.CommandBuffer, img trackedImage, aspects vk.ImageAspectFlagBits,
	baseLayer, layerCount, baseLevel, levelCount uint32, discardContents bool, newKind gpu.AccessKind) {
	prevKind := img.currentAccess()
	prev := lookupAccess(prevKind)
	next := lookupAccess(newKind)

	var srcAccess vk.AccessFlagBits
	if !prevKind.IsReadOnly() {
		srcAccess = prev.access
	}

	oldLayout := prev.layout
	if discardContents {
		oldLayout = vk.ImageLayoutUndefined
	}

	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(srcAccess),
		DstAccessMask:       vk.AccessFlags(next.access),
		OldLayout:           oldLayout,
		NewLayout:           next.layout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img.vkImageHandle(),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(aspects),
			BaseMipLevel:   baseLevel,
			LevelCount:     levelCount,
			BaseArrayLayer: baseLayer,
			LayerCount:     layerCount,
		},
	}

	vk.CmdPipelineBarrier(cmd,
		vk.PipelineStageFlags(clampStage(prev.stage, true)),
		vk.PipelineStageFlags(clampStage(next.stage, false)),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})

	img.setCurrentAccess(newKind)
}
