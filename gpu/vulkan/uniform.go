package vulkan

import (
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/vanta-gfx/vanta/core"
	"github.com/vanta-gfx/vanta/gpu"
	"github.com/vanta-gfx/vanta/internal/container"
)

const uniformBufferSize = 16 * 1024

// UniformBuffer is a 16 KB host-visible, host-coherent buffer treated as
// a linear arena (spec §9: "not a ring"): pushes bump offset forward
// monotonically until the buffer is finalized and returned to its pool.
type UniformBuffer struct {
	handle vk.Buffer
	memory vk.DeviceMemory
	mapped []byte
	set    vk.DescriptorSet
	offset uint64
	owner  *UniformBufferPool
}

// UniformBufferPool is the per-stage supply of UniformBuffers described
// by spec §4.6: an inactive stack plus an internal descriptor pool chain
// growing by 128 sets at a time.
type UniformBufferPool struct {
	mu    sync.Mutex
	stage gpu.ShaderStage

	layout vk.DescriptorSetLayout

	all      []*UniformBuffer
	inactive *container.Stack[*UniformBuffer]

	descriptorPools  []vk.DescriptorPool
	capacity         uint32
	used             uint32
	nextPoolGrowthBy uint32

	dummy *UniformBuffer
}

func newUniformBufferPool(d *Device, stage gpu.ShaderStage, initialSets uint32) *UniformBufferPool {
	if initialSets == 0 {
		initialSets = 128
	}
	layout, err := d.descriptorLayouts.fetch(d, descriptorLayoutKey{
		descriptorType: vk.DescriptorTypeUniformBufferDynamic,
		bindingCount:   1,
		stage:          toVkShaderStage(stage),
	})
	if err != nil {
		core.LogError("newUniformBufferPool(%v): %v", stage, err)
		return nil
	}

	p := &UniformBufferPool{
		stage:            stage,
		layout:           layout,
		inactive:         container.NewStack[*UniformBuffer](int(initialSets)),
		nextPoolGrowthBy: initialSets,
	}
	p.dummy = p.createBuffer(d)
	return p
}

// createBuffer allocates one 16 KB buffer + descriptor set. When capacity
// runs out it adds a descriptor pool: initialSets sets for the first,
// 128 sets for each one after.
func (p *UniformBufferPool) createBuffer(d *Device) *UniformBuffer {
	if p.used >= p.capacity {
		if err := p.growDescriptorPool(d); err != nil {
			core.LogError("UniformBufferPool: %v", err)
			return nil
		}
	}

	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(uniformBufferSize),
		Usage:       vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit),
		SharingMode: vk.SharingModeExclusive,
	}
	var handle vk.Buffer
	if res := vk.CreateBuffer(d.logical, &createInfo, d.allocCallbacks, &handle); res != vk.Success {
		core.LogError("UniformBufferPool: vkCreateBuffer failed: %s", VulkanResultString(res, true))
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

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: uint32(memTypeIndex),
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(d.logical, &allocInfo, d.allocCallbacks, &memory); res != vk.Success {
		vk.DestroyBuffer(d.logical, handle, d.allocCallbacks)
		core.LogError("UniformBufferPool: vkAllocateMemory failed: %s", VulkanResultString(res, true))
		return nil
	}
	vk.BindBufferMemory(d.logical, handle, memory, 0)

	var ptr unsafe.Pointer
	if res := vk.MapMemory(d.logical, memory, 0, vk.DeviceSize(uniformBufferSize), 0, &ptr); res != vk.Success {
		vk.FreeMemory(d.logical, memory, d.allocCallbacks)
		vk.DestroyBuffer(d.logical, handle, d.allocCallbacks)
		core.LogError("UniformBufferPool: vkMapMemory failed: %s", VulkanResultString(res, true))
		return nil
	}

	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.descriptorPools[len(p.descriptorPools)-1],
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{p.layout},
	}
	var set vk.DescriptorSet
	if res := vk.AllocateDescriptorSets(d.logical, &allocateInfo, &set); res != vk.Success {
		core.LogError("UniformBufferPool: vkAllocateDescriptorSets failed: %s", VulkanResultString(res, true))
		return nil
	}
	p.used++

	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set,
		DstBinding:      0,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeUniformBufferDynamic,
		PBufferInfo: []vk.DescriptorBufferInfo{{
			Buffer: handle,
			Offset: 0,
			Range:  vk.DeviceSize(uniformBufferSize),
		}},
	}
	vk.UpdateDescriptorSets(d.logical, 1, []vk.WriteDescriptorSet{write}, 0, nil)

	ub := &UniformBuffer{
		handle: handle,
		memory: memory,
		mapped: unsafe.Slice((*byte)(ptr), uniformBufferSize),
		set:    set,
		owner:  p,
	}
	p.all = append(p.all, ub)
	return ub
}

func (p *UniformBufferPool) growDescriptorPool(d *Device) error {
	poolSize := vk.DescriptorPoolSize{
		Type:            vk.DescriptorTypeUniformBufferDynamic,
		DescriptorCount: p.nextPoolGrowthBy,
	}
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       p.nextPoolGrowthBy,
		PoolSizeCount: 1,
		PPoolSizes:    []vk.DescriptorPoolSize{poolSize},
	}
	var pool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(d.logical, &createInfo, d.allocCallbacks, &pool); res != vk.Success {
		return vkErr("vkCreateDescriptorPool", res)
	}
	p.descriptorPools = append(p.descriptorPools, pool)
	p.capacity += p.nextPoolGrowthBy
	p.nextPoolGrowthBy = 128
	return nil
}

// acquire pops an inactive UB, resetting its offset, or creates a fresh
// one when the stack is empty.
func (p *UniformBufferPool) acquire(d *Device) *UniformBuffer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ub, ok := p.inactive.Pop(); ok {
		ub.offset = 0
		return ub
	}
	return p.createBuffer(d)
}

// recycle returns ub to the inactive stack. Called from a command
// buffer's fence-completion cleanup.
func (p *UniformBufferPool) recycle(ub *UniformBuffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inactive.Push(ub)
}

func (p *UniformBufferPool) destroyAll(d *Device) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ub := range p.all {
		vk.UnmapMemory(d.logical, ub.memory)
		vk.DestroyBuffer(d.logical, ub.handle, d.allocCallbacks)
		vk.FreeMemory(d.logical, ub.memory, d.allocCallbacks)
	}
	p.all = nil
	for _, pool := range p.descriptorPools {
		vk.DestroyDescriptorPool(d.logical, pool, d.allocCallbacks)
	}
	p.descriptorPools = nil
}

// push implements spec §4.6's push protocol: finalize and swap in a
// fresh UB when the in-flight one can't fit blockSize more bytes, copy
// data into the mapped arena, and return the offset the write landed
// at. blockSize is the pipeline's alignment-rounded uniform block size,
// not len(data) — offsets advance by blockSize regardless of how much
// of the block the caller actually wrote.
func push(d *Device, cmd *CommandBuffer, cur **UniformBuffer, pool *UniformBufferPool, data []byte, blockSize uint64) uint32 {
	if blockSize == 0 {
		return 0
	}
	ub := *cur
	if ub == nil {
		ub = pool.acquire(d)
		*cur = ub
	}
	if ub.offset+blockSize > uniformBufferSize {
		cmd.boundUniformBuffers = append(cmd.boundUniformBuffers, ub)
		ub = pool.acquire(d)
		*cur = ub
	}
	offset := ub.offset
	copy(ub.mapped[offset:], data)
	ub.offset += blockSize
	return uint32(offset)
}

// PushVertexShaderUniforms implements gpu.Device.PushVertexShaderUniforms.
func (d *Device) PushVertexShaderUniforms(cmd *gpu.CommandBuffer, data []byte) uint32 {
	cb := fromGpuCommandBuffer(cmd)
	if cb == nil || cb.boundGraphicsPipeline == nil {
		return 0
	}
	offset := push(d, cb, &cb.boundVertexUniformBuffer, d.uniformPools[gpu.ShaderStageVertex], data, cb.boundGraphicsPipeline.vertexUniformBlockSize)
	cb.lastVertexUniformOffset = offset
	return offset
}

// PushFragmentShaderUniforms implements gpu.Device.PushFragmentShaderUniforms.
func (d *Device) PushFragmentShaderUniforms(cmd *gpu.CommandBuffer, data []byte) uint32 {
	cb := fromGpuCommandBuffer(cmd)
	if cb == nil || cb.boundGraphicsPipeline == nil {
		return 0
	}
	offset := push(d, cb, &cb.boundFragmentUniformBuffer, d.uniformPools[gpu.ShaderStageFragment], data, cb.boundGraphicsPipeline.fragmentUniformBlockSize)
	cb.lastFragmentUniformOffset = offset
	return offset
}

// PushComputeShaderUniforms implements gpu.Device.PushComputeShaderUniforms.
func (d *Device) PushComputeShaderUniforms(cmd *gpu.CommandBuffer, data []byte) uint32 {
	cb := fromGpuCommandBuffer(cmd)
	if cb == nil || cb.boundComputePipeline == nil {
		return 0
	}
	offset := push(d, cb, &cb.boundComputeUniformBuffer, d.uniformPools[gpu.ShaderStageCompute], data, cb.boundComputePipeline.uniformBlockSize)
	cb.lastComputeUniformOffset = offset
	return offset
}
