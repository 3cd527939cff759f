package vulkan

import (
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/vanta-gfx/vanta/core"
	"github.com/vanta-gfx/vanta/internal/container"
)

// descriptorSetCache is one cache per (pipeline-layout slot, descriptor
// type, binding count, stage), per spec §4.5 (C6). It owns a chain of
// fixed-size VkDescriptorPools and a stack of inactive sets allocated
// from them, doubling pool size on growth.
type descriptorSetCache struct {
	mu sync.Mutex

	layout         vk.DescriptorSetLayout
	descriptorType vk.DescriptorType
	bindingCount   uint32

	pools        []vk.DescriptorPool
	inactive     *container.Stack[vk.DescriptorSet]
	nextPoolSize uint32
}

func newDescriptorSetCache(layout vk.DescriptorSetLayout, descriptorType vk.DescriptorType, bindingCount, initialPoolSize uint32) *descriptorSetCache {
	if initialPoolSize == 0 {
		initialPoolSize = 256
	}
	return &descriptorSetCache{
		layout:         layout,
		descriptorType: descriptorType,
		bindingCount:   bindingCount,
		inactive:       container.NewStack[vk.DescriptorSet](int(initialPoolSize)),
		nextPoolSize:   initialPoolSize,
	}
}

// descriptorWrite is a backend-neutral write the fetch caller supplies:
// either a buffer info (uniform/storage buffer) or an image info
// (sampled/storage image), one per binding index.
type descriptorWrite struct {
	binding    uint32
	bufferInfo *vk.DescriptorBufferInfo
	imageInfo  *vk.DescriptorImageInfo
}

// fetch implements spec §4.5's five-step protocol: grow on empty stack,
// pop a set, apply writes, register a return token on cmd so the set
// comes back to this cache's stack on fence completion, and return it.
func (c *descriptorSetCache) fetch(d *Device, cmd *CommandBuffer, writes []descriptorWrite) (vk.DescriptorSet, error) {
	c.mu.Lock()
	if c.inactive.Empty() {
		if err := c.grow(d); err != nil {
			c.mu.Unlock()
			return nil, err
		}
	}
	set, _ := c.inactive.Pop()
	c.mu.Unlock()

	vkWrites := make([]vk.WriteDescriptorSet, len(writes))
	for i, w := range writes {
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      w.binding,
			DescriptorCount: 1,
			DescriptorType:  c.descriptorType,
		}
		if w.bufferInfo != nil {
			write.PBufferInfo = []vk.DescriptorBufferInfo{*w.bufferInfo}
		}
		if w.imageInfo != nil {
			write.PImageInfo = []vk.DescriptorImageInfo{*w.imageInfo}
		}
		vkWrites[i] = write
	}
	if len(vkWrites) > 0 {
		vk.UpdateDescriptorSets(d.logical, uint32(len(vkWrites)), vkWrites, 0, nil)
	}

	if cmd != nil {
		cmd.boundDescriptorSetReturns = append(cmd.boundDescriptorSetReturns, descriptorSetReturn{cache: c, set: set})
	}
	return set, nil
}

func (c *descriptorSetCache) grow(d *Device) error {
	poolSize := vk.DescriptorPoolSize{
		Type:            c.descriptorType,
		DescriptorCount: c.nextPoolSize * maxU32(c.bindingCount, 1),
	}
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       c.nextPoolSize,
		PoolSizeCount: 1,
		PPoolSizes:    []vk.DescriptorPoolSize{poolSize},
	}
	var pool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(d.logical, &createInfo, d.allocCallbacks, &pool); res != vk.Success {
		core.LogError("descriptorSetCache: vkCreateDescriptorPool failed: %s", VulkanResultString(res, true))
		return vkErr("vkCreateDescriptorPool", res)
	}

	layouts := make([]vk.DescriptorSetLayout, c.nextPoolSize)
	for i := range layouts {
		layouts[i] = c.layout
	}
	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: c.nextPoolSize,
		PSetLayouts:        layouts,
	}
	sets := make([]vk.DescriptorSet, c.nextPoolSize)
	if res := vk.AllocateDescriptorSets(d.logical, &allocateInfo, &sets[0]); res != vk.Success {
		core.LogError("descriptorSetCache: vkAllocateDescriptorSets failed: %s", VulkanResultString(res, true))
		return vkErr("vkAllocateDescriptorSets", res)
	}

	c.pools = append(c.pools, pool)
	for _, s := range sets {
		c.inactive.Push(s)
	}
	c.nextPoolSize *= 2
	return nil
}

// recycle returns set to the inactive stack. Called from a command
// buffer's fence-completion sweep (spec §4.3 Cleanup).
func (c *descriptorSetCache) recycle(set vk.DescriptorSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inactive.Push(set)
}

func (c *descriptorSetCache) destroyAll(d *Device) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, pool := range c.pools {
		vk.DestroyDescriptorPool(d.logical, pool, d.allocCallbacks)
	}
	c.pools = nil
}

type descriptorSetReturn struct {
	cache *descriptorSetCache
	set   vk.DescriptorSet
}

func maxU32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
