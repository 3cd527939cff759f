package vulkan

import (
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/vanta-gfx/vanta/core"
)

const transferBufferInitialSize = 8 * 1024 * 1024

// TransferBuffer is a host-visible staging buffer with a bump offset,
// per spec §3 ("host-visible staging VkBuffer with a bump offset").
type TransferBuffer struct {
	handle   vk.Buffer
	memory   vk.DeviceMemory
	mapped   []byte
	capacity uint64
	offset   uint64
	owner    *TransferBufferPool
}

// TransferBufferPool is a single growing pool of TransferBuffers, reset
// on reclaim rather than individually freed (spec §9: "Transfer
// staging... single growing bump-allocator pool... reset on reclaim").
type TransferBufferPool struct {
	mu       sync.Mutex
	device   *Device
	all      []*TransferBuffer
	inactive []*TransferBuffer
}

func newTransferBufferPool(d *Device) *TransferBufferPool {
	return &TransferBufferPool{device: d}
}

func (p *TransferBufferPool) allocBuffer(size uint64) *TransferBuffer {
	d := p.device
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit | vk.BufferUsageTransferDstBit),
		SharingMode: vk.SharingModeExclusive,
	}
	var handle vk.Buffer
	if res := vk.CreateBuffer(d.logical, &createInfo, d.allocCallbacks, &handle); res != vk.Success {
		core.LogError("TransferBufferPool: vkCreateBuffer failed: %s", VulkanResultString(res, true))
		return nil
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.logical, handle, &reqs)
	reqs.Deref()

	memTypeIndex := d.findMemoryIndex(reqs.MemoryTypeBits, uint32(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if memTypeIndex < 0 {
		vk.DestroyBuffer(d.logical, handle, d.allocCallbacks)
		return nil
	}

	allocInfo := vk.MemoryAllocateInfo{SType: vk.StructureTypeMemoryAllocateInfo, AllocationSize: reqs.Size, MemoryTypeIndex: uint32(memTypeIndex)}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(d.logical, &allocInfo, d.allocCallbacks, &memory); res != vk.Success {
		vk.DestroyBuffer(d.logical, handle, d.allocCallbacks)
		core.LogError("TransferBufferPool: vkAllocateMemory failed: %s", VulkanResultString(res, true))
		return nil
	}
	vk.BindBufferMemory(d.logical, handle, memory, 0)

	var ptr unsafe.Pointer
	if res := vk.MapMemory(d.logical, memory, 0, vk.DeviceSize(size), 0, &ptr); res != vk.Success {
		vk.FreeMemory(d.logical, memory, d.allocCallbacks)
		vk.DestroyBuffer(d.logical, handle, d.allocCallbacks)
		return nil
	}

	tb := &TransferBuffer{handle: handle, memory: memory, mapped: unsafe.Slice((*byte)(ptr), size), capacity: size, owner: p}
	p.all = append(p.all, tb)
	return tb
}

// acquire returns a buffer with at least requiredSize bytes of free
// capacity, growing by doubling (from an 8 MB floor) to fit it, per
// spec §3/§4.12.
func (p *TransferBufferPool) acquire(requiredSize uint64) *TransferBuffer {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, tb := range p.inactive {
		if tb.capacity-tb.offset >= requiredSize {
			p.inactive = append(p.inactive[:i], p.inactive[i+1:]...)
			return tb
		}
	}

	size := uint64(transferBufferInitialSize)
	for size < requiredSize {
		size *= 2
	}
	return p.allocBuffer(size)
}

// recycle resets tb's bump offset and returns it to the inactive list.
func (p *TransferBufferPool) recycle(tb *TransferBuffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tb.offset = 0
	p.inactive = append(p.inactive, tb)
}

func (p *TransferBufferPool) destroyAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := p.device
	for _, tb := range p.all {
		vk.UnmapMemory(d.logical, tb.memory)
		vk.DestroyBuffer(d.logical, tb.handle, d.allocCallbacks)
		vk.FreeMemory(d.logical, tb.memory, d.allocCallbacks)
	}
	p.all = nil
	p.inactive = nil
}

// stage copies data into a transfer buffer's bump arena and returns the
// buffer plus the byte offset the data landed at.
func (p *TransferBufferPool) stage(data []byte) (*TransferBuffer, uint64) {
	tb := p.acquire(uint64(len(data)))
	if tb == nil {
		return nil, 0
	}
	offset := tb.offset
	copy(tb.mapped[offset:], data)
	tb.offset += uint64(len(data))
	return tb, offset
}
