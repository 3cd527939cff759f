package vulkan

import (
	"sync/atomic"

	vk "github.com/goki/vulkan"

	"github.com/vanta-gfx/vanta/core"
	"github.com/vanta-gfx/vanta/gpu"
)

// Texture wraps a VkImage+VkImageView bound to a suballocator Region.
// Swapchain-owned images reuse this struct with a zero Region (they own
// no memory of their own, per spec §4.11).
type Texture struct {
	handle      vk.Image
	view        vk.ImageView
	region      Region
	width       uint32
	height      uint32
	depth       uint32
	layerCount  uint32
	levelCount  uint32
	sampleCount uint32
	format      vk.Format
	aspect      vk.ImageAspectFlagBits
	usage       gpu.TextureUsage
	is3D        bool
	isCube      bool
	access      gpu.AccessKind
	refcount    atomic.Int32
	swapchainOwned bool
	debugName   string
}

func (t *Texture) vkImageHandle() vk.Image         { return t.handle }
func (t *Texture) currentAccess() gpu.AccessKind   { return t.access }
func (t *Texture) setCurrentAccess(k gpu.AccessKind) { t.access = k }
func (t *Texture) Retain()                         { t.refcount.Add(1) }
func (t *Texture) Release() int32                  { return t.refcount.Add(-1) }
func (t *Texture) RefCount() int32                 { return t.refcount.Load() }

func toVkFormat(f gpu.Format) vk.Format {
	switch f {
	case gpu.FormatR8Unorm:
		return vk.FormatR8Unorm
	case gpu.FormatR8G8B8A8Unorm:
		return vk.FormatR8g8b8a8Unorm
	case gpu.FormatB8G8R8A8Unorm:
		return vk.FormatB8g8r8a8Unorm
	case gpu.FormatR16G16Float:
		return vk.FormatR16g16Sfloat
	case gpu.FormatR16G16B16A16Float:
		return vk.FormatR16g16b16a16Sfloat
	case gpu.FormatR32Float:
		return vk.FormatR32Sfloat
	case gpu.FormatR32G32Float:
		return vk.FormatR32g32Sfloat
	case gpu.FormatR32G32B32Float:
		return vk.FormatR32g32b32Sfloat
	case gpu.FormatR32G32B32A32Float:
		return vk.FormatR32g32b32a32Sfloat
	case gpu.FormatD32Float:
		return vk.FormatD32Sfloat
	case gpu.FormatD24UnormS8Uint:
		return vk.FormatD24UnormS8Uint
	case gpu.FormatBC1Unorm:
		return vk.FormatBc1RgbaUnormBlock
	case gpu.FormatBC3Unorm:
		return vk.FormatBc3UnormBlock
	case gpu.FormatBC7Unorm:
		return vk.FormatBc7UnormBlock
	default:
		return vk.FormatR8g8b8a8Unorm
	}
}

func toVkImageUsage(usage gpu.TextureUsage) vk.ImageUsageFlagBits {
	flags := vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit
	if usage&gpu.TextureUsageSampler != 0 {
		flags |= vk.ImageUsageSampledBit
	}
	if usage&gpu.TextureUsageColorTarget != 0 {
		flags |= vk.ImageUsageColorAttachmentBit
	}
	if usage&gpu.TextureUsageDepthStencilTarget != 0 {
		flags |= vk.ImageUsageDepthStencilAttachmentBit
	}
	if usage&gpu.TextureUsageComputeStorageRead != 0 || usage&gpu.TextureUsageComputeStorageWrite != 0 {
		flags |= vk.ImageUsageStorageBit
	}
	return flags
}

func aspectForFormat(format vk.Format) vk.ImageAspectFlagBits {
	switch format {
	case vk.FormatD32Sfloat:
		return vk.ImageAspectDepthBit
	case vk.FormatD24UnormS8Uint:
		return vk.ImageAspectDepthBit | vk.ImageAspectStencilBit
	default:
		return vk.ImageAspectColorBit
	}
}

// CreateTexture implements gpu.Device.CreateTexture: build the VkImage
// per spec §3's Texture invariants (cube => layerCount 6, 3D => depth>1
// and layerCount 1), suballocate and bind, create a full-resource view,
// and leave the tracked access at NONE (contents undefined, per §6).
func (d *Device) CreateTexture(info gpu.TextureCreateInfo) *gpu.Texture {
	if info.IsCube && info.LayerCount != 6 {
		core.LogError("CreateTexture %q: cube textures require layerCount == 6, got %d", info.DebugName, info.LayerCount)
		return nil
	}
	if info.Is3D && (info.Depth <= 1 || info.LayerCount != 1) {
		core.LogError("CreateTexture %q: 3D textures require depth > 1 and layerCount == 1", info.DebugName)
		return nil
	}

	imageType := vk.ImageType2d
	depth := info.Depth
	if info.Is3D {
		imageType = vk.ImageType3d
	} else {
		depth = 1
	}
	if info.LevelCount == 0 {
		info.LevelCount = 1
	}
	if info.LayerCount == 0 {
		info.LayerCount = 1
	}
	if info.SampleCount == 0 {
		info.SampleCount = 1
	}

	format := toVkFormat(info.Format)
	var createFlags vk.ImageCreateFlagBits
	if info.IsCube {
		createFlags = vk.ImageCreateCubeCompatibleBit
	}

	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		Flags:     vk.ImageCreateFlags(createFlags),
		ImageType: imageType,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  info.Width,
			Height: info.Height,
			Depth:  depth,
		},
		MipLevels:     info.LevelCount,
		ArrayLayers:   info.LayerCount,
		Samples:       vk.SampleCountFlagBits(info.SampleCount),
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(toVkImageUsage(info.Usage)),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}

	var handle vk.Image
	if res := vk.CreateImage(d.logical, &createInfo, d.allocCallbacks, &handle); res != vk.Success {
		core.LogError("CreateTexture %q: vkCreateImage failed: %s", info.DebugName, VulkanResultString(res, true))
		return nil
	}

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.logical, handle, &requirements)
	requirements.Deref()

	memoryTypeIndex := d.findMemoryIndex(requirements.MemoryTypeBits, uint32(vk.MemoryPropertyDeviceLocalBit))
	if memoryTypeIndex == -1 {
		core.LogError("CreateTexture %q: no suitable device-local memory type", info.DebugName)
		vk.DestroyImage(d.logical, handle, d.allocCallbacks)
		return nil
	}

	allocator := d.suballocatorFor(uint32(memoryTypeIndex), false)
	region, err := allocator.Allocate(requirements.Size, requirements.Alignment, false)
	if err != nil {
		core.LogError("CreateTexture %q: %s", info.DebugName, err)
		vk.DestroyImage(d.logical, handle, d.allocCallbacks)
		return nil
	}
	if res := vk.BindImageMemory(d.logical, handle, region.Block.Handle, vk.DeviceSize(region.Offset)); res != vk.Success {
		core.LogError("CreateTexture %q: vkBindImageMemory failed: %s", info.DebugName, VulkanResultString(res, true))
		allocator.Free(region)
		vk.DestroyImage(d.logical, handle, d.allocCallbacks)
		return nil
	}

	aspect := aspectForFormat(format)
	viewType := vk.ImageViewType2d
	switch {
	case info.IsCube:
		viewType = vk.ImageViewTypeCube
	case info.Is3D:
		viewType = vk.ImageViewType3d
	case info.LayerCount > 1:
		viewType = vk.ImageViewType2dArray
	}

	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    handle,
		ViewType: viewType,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(aspect),
			BaseMipLevel:   0,
			LevelCount:     info.LevelCount,
			BaseArrayLayer: 0,
			LayerCount:     info.LayerCount,
		},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(d.logical, &viewCreateInfo, d.allocCallbacks, &view); res != vk.Success {
		core.LogError("CreateTexture %q: vkCreateImageView failed: %s", info.DebugName, VulkanResultString(res, true))
		allocator.Free(region)
		vk.DestroyImage(d.logical, handle, d.allocCallbacks)
		return nil
	}

	tex := &Texture{
		handle:      handle,
		view:        view,
		region:      region,
		width:       info.Width,
		height:      info.Height,
		depth:       depth,
		layerCount:  info.LayerCount,
		levelCount:  info.LevelCount,
		sampleCount: info.SampleCount,
		format:      format,
		aspect:      aspect,
		usage:       info.Usage,
		is3D:        info.Is3D,
		isCube:      info.IsCube,
		access:      gpu.AccessNone,
		debugName:   info.DebugName,
	}
	d.stampDebugName(uint64(handle), vk.ObjectTypeImage, info.DebugName)
	return gpu.NewTexture(tex)
}

func (d *Device) destroyTextureNow(t *Texture) {
	destroyedViews := d.renderTargets.invalidate(d, t)
	d.framebuffers.invalidateForViews(d, destroyedViews)
	vk.DestroyImageView(d.logical, t.view, d.allocCallbacks)
	if !t.swapchainOwned {
		vk.DestroyImage(d.logical, t.handle, d.allocCallbacks)
		allocator := d.suballocatorFor(t.region.Block.MemoryTypeIndex, false)
		allocator.Free(t.region)
	}
}

func (d *Device) QueueDestroyTexture(handle *gpu.Texture) {
	if handle == nil {
		return
	}
	t := handle.Backend().(*Texture)
	d.dispose.queueTexture(t)
}
