package vulkan

import (
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/vanta-gfx/vanta/core"
	"github.com/vanta-gfx/vanta/gpu"
	"github.com/vanta-gfx/vanta/internal/container"
)

// CommandPool holds the inactive command buffers acquired by a single
// thread, per spec §3 ("CommandPool: per thread id, holds inactive
// command buffers") and §4.3's Acquire protocol. The device lazily
// creates one per calling thread id.
type CommandPool struct {
	mu       sync.Mutex
	vkPool   vk.CommandPool
	inactive *container.Stack[*CommandBuffer]
}

func newCommandPool(d *Device) (*CommandPool, error) {
	createInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.graphicsQueueIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var vkPool vk.CommandPool
	if res := vk.CreateCommandPool(d.logical, &createInfo, d.allocCallbacks, &vkPool); res != vk.Success {
		core.LogError("CommandPool: vkCreateCommandPool failed: %s", VulkanResultString(res, true))
		return nil, vkErr("vkCreateCommandPool", res)
	}
	return &CommandPool{vkPool: vkPool, inactive: container.NewStack[*CommandBuffer](4)}, nil
}

// acquire implements spec §4.3's Acquire protocol: grow by two buffers
// and a fence each when the inactive stack is empty, then reset and
// begin recording on the one returned.
func (p *CommandPool) acquire(d *Device, threadID uint64, fixed bool) (*CommandBuffer, error) {
	p.mu.Lock()
	if p.inactive.Empty() {
		if err := p.grow(d, threadID); err != nil {
			p.mu.Unlock()
			return nil, err
		}
	}
	cb, _ := p.inactive.Pop()
	p.mu.Unlock()

	if res := vk.ResetFences(d.logical, 1, []vk.Fence{cb.fence}); res != vk.Success {
		return nil, vkErr("vkResetFences", res)
	}
	if res := vk.ResetCommandBuffer(cb.handle, vk.CommandBufferResetFlags(vk.CommandBufferResetReleaseResourcesBit)); res != vk.Success {
		return nil, vkErr("vkResetCommandBuffer", res)
	}

	// A fixed buffer's prior recording held its references past its
	// submit fence signaling (cleanup skips releasing them for exactly
	// this reason); re-recording it here replaces that recording, so
	// release them now. Harmless no-op for a non-fixed buffer, whose
	// references were already released and tracking lists already
	// cleared by cleanup.
	cb.releaseTracked()
	cb.reset()
	cb.fixed = fixed

	beginInfo := vk.CommandBufferBeginInfo{SType: vk.StructureTypeCommandBufferBeginInfo}
	if !fixed {
		beginInfo.Flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if res := vk.BeginCommandBuffer(cb.handle, &beginInfo); res != vk.Success {
		return nil, vkErr("vkBeginCommandBuffer", res)
	}
	cb.state = commandBufferRecording
	return cb, nil
}

func (p *CommandPool) grow(d *Device, threadID uint64) error {
	const growBy = 2
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p.vkPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: growBy,
	}
	handles := make([]vk.CommandBuffer, growBy)
	if res := vk.AllocateCommandBuffers(d.logical, &allocateInfo, &handles[0]); res != vk.Success {
		core.LogError("CommandPool: vkAllocateCommandBuffers failed: %s", VulkanResultString(res, true))
		return vkErr("vkAllocateCommandBuffers", res)
	}
	for _, h := range handles {
		fenceInfo := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo, Flags: vk.FenceCreateFlags(vk.FenceCreateSignaledBit)}
		var fence vk.Fence
		if res := vk.CreateFence(d.logical, &fenceInfo, d.allocCallbacks, &fence); res != vk.Success {
			core.LogError("CommandPool: vkCreateFence failed: %s", VulkanResultString(res, true))
			return vkErr("vkCreateFence", res)
		}
		p.inactive.Push(&CommandBuffer{handle: h, fence: fence, threadID: threadID, pool: p})
	}
	return nil
}

// release returns cb to the inactive stack after cleanup has run.
func (p *CommandPool) release(cb *CommandBuffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inactive.Push(cb)
}

func (p *CommandPool) destroy(d *Device) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.inactive.Len() > 0 {
		cb, _ := p.inactive.Pop()
		vk.DestroyFence(d.logical, cb.fence, d.allocCallbacks)
	}
	vk.DestroyCommandPool(d.logical, p.vkPool, d.allocCallbacks)
}

// AcquireCommandBuffer implements gpu.Device.AcquireCommandBuffer. Pools
// are keyed by core.CurrentThreadID, which returns the calling
// goroutine's id as a stand-in for spec §4.3's per-thread affinity: a
// goroutine gets the same pool on every call, whether or not it is
// locked to its OS thread.
func (d *Device) AcquireCommandBuffer(fixed bool) *gpu.CommandBuffer {
	threadID := core.CurrentThreadID()

	d.commandPoolsMu.Lock()
	pool, ok := d.commandPools[threadID]
	if !ok {
		var err error
		pool, err = newCommandPool(d)
		if err != nil {
			d.commandPoolsMu.Unlock()
			core.LogError("AcquireCommandBuffer: failed to create pool for thread %d: %v", threadID, err)
			return nil
		}
		d.commandPools[threadID] = pool
	}
	d.commandPoolsMu.Unlock()

	d.acquireMu.Lock()
	cb, err := pool.acquire(d, threadID, fixed)
	d.acquireMu.Unlock()
	if err != nil {
		core.LogError("AcquireCommandBuffer: %v", err)
		return nil
	}
	return toGpuCommandBuffer(cb)
}
