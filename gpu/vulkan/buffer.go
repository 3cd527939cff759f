package vulkan

import (
	"sync/atomic"

	vk "github.com/goki/vulkan"

	"github.com/vanta-gfx/vanta/core"
	"github.com/vanta-gfx/vanta/gpu"
)

// Buffer wraps a VkBuffer bound to a suballocator Region. Its current
// access kind is mutated only by the command buffer presently recording
// a transition on it, per spec §5's documented (unlocked) contract.
type Buffer struct {
	handle    vk.Buffer
	region    Region
	size      uint64
	usage     gpu.BufferUsage
	access    gpu.AccessKind
	refcount  atomic.Int32
	debugName string
}

func (b *Buffer) vkBufferHandle() vk.Buffer           { return b.handle }
func (b *Buffer) currentAccess() gpu.AccessKind       { return b.access }
func (b *Buffer) setCurrentAccess(k gpu.AccessKind)   { b.access = k }
func (b *Buffer) Retain()                             { b.refcount.Add(1) }
func (b *Buffer) Release() int32                      { return b.refcount.Add(-1) }
func (b *Buffer) RefCount() int32                     { return b.refcount.Load() }

// initialAccessKind derives the access kind a freshly created buffer
// should report before it is ever used, per spec §6's CreateBuffer
// guarantee ("initial access = usage-derived read kind"). Buffers whose
// usage spans multiple kinds default to the first one named; the
// resource's actual kind only matters relative to the next barrier.
func initialAccessKind(usage gpu.BufferUsage) gpu.AccessKind {
	switch {
	case usage&gpu.BufferUsageIndex != 0:
		return gpu.AccessIndexBuffer
	case usage&gpu.BufferUsageVertex != 0:
		return gpu.AccessVertexBuffer
	case usage&gpu.BufferUsageIndirect != 0:
		return gpu.AccessIndirectBuffer
	case usage&gpu.BufferUsageComputeStorageRead != 0, usage&gpu.BufferUsageComputeStorageWrite != 0:
		return gpu.AccessComputeShaderBufferReadWrite
	default:
		return gpu.AccessNone
	}
}

func toVkBufferUsage(usage gpu.BufferUsage) vk.BufferUsageFlagBits {
	flags := vk.BufferUsageTransferSrcBit | vk.BufferUsageTransferDstBit
	if usage&gpu.BufferUsageVertex != 0 {
		flags |= vk.BufferUsageVertexBufferBit
	}
	if usage&gpu.BufferUsageIndex != 0 {
		flags |= vk.BufferUsageIndexBufferBit
	}
	if usage&gpu.BufferUsageIndirect != 0 {
		flags |= vk.BufferUsageIndirectBufferBit
	}
	if usage&(gpu.BufferUsageComputeStorageRead|gpu.BufferUsageComputeStorageWrite) != 0 {
		flags |= vk.BufferUsageStorageBufferBit
	}
	return flags
}

// CreateBuffer implements gpu.Device.CreateBuffer: create the VkBuffer,
// ask it for its memory requirements, suballocate a region from C1
// sized and typed to match, bind it, and leave the buffer's tracked
// access at its usage-derived initial kind (untouched, no barrier).
func (d *Device) CreateBuffer(info gpu.BufferCreateInfo) *gpu.Buffer {
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(info.SizeInBytes),
		Usage:       vk.BufferUsageFlags(toVkBufferUsage(info.Usage)),
		SharingMode: vk.SharingModeExclusive,
	}

	var handle vk.Buffer
	if res := vk.CreateBuffer(d.logical, &createInfo, nil, &handle); res != vk.Success {
		core.LogError("CreateBuffer: vkCreateBuffer failed: %s", VulkanResultString(res, true))
		return nil
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.logical, handle, &requirements)
	requirements.Deref()

	memoryTypeIndex := d.findMemoryIndex(requirements.MemoryTypeBits, uint32(vk.MemoryPropertyDeviceLocalBit))
	if memoryTypeIndex == -1 {
		core.LogError("CreateBuffer: no suitable device-local memory type for buffer %q", info.DebugName)
		vk.DestroyBuffer(d.logical, handle, nil)
		return nil
	}

	allocator := d.suballocatorFor(uint32(memoryTypeIndex), false)
	region, err := allocator.Allocate(requirements.Size, requirements.Alignment, false)
	if err != nil {
		core.LogError("CreateBuffer: %s", err)
		vk.DestroyBuffer(d.logical, handle, nil)
		return nil
	}

	if res := vk.BindBufferMemory(d.logical, handle, region.Block.Handle, vk.DeviceSize(region.Offset)); res != vk.Success {
		core.LogError("CreateBuffer: vkBindBufferMemory failed: %s", VulkanResultString(res, true))
		allocator.Free(region)
		vk.DestroyBuffer(d.logical, handle, nil)
		return nil
	}

	buf := &Buffer{
		handle:    handle,
		region:    region,
		size:      info.SizeInBytes,
		usage:     info.Usage,
		access:    initialAccessKind(info.Usage),
		debugName: info.DebugName,
	}
	d.stampDebugName(uint64(handle), vk.ObjectTypeBuffer, info.DebugName)
	return gpu.NewBuffer(buf)
}

func (d *Device) destroyBufferNow(b *Buffer) {
	vk.DestroyBuffer(d.logical, b.handle, nil)
	allocator := d.suballocatorFor(b.region.Block.MemoryTypeIndex, false)
	allocator.Free(b.region)
}

// QueueDestroyBuffer appends to the dispose queue; the next post-submit
// sweep frees it once its refcount reaches zero (spec §4.10).
func (d *Device) QueueDestroyBuffer(handle *gpu.Buffer) {
	if handle == nil {
		return
	}
	b := handle.Backend().(*Buffer)
	d.dispose.queueBuffer(b)
}
