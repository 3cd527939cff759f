package vulkan

import (
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/vanta-gfx/vanta/core"
)

// descriptorLayoutKey dedupes VkDescriptorSetLayouts by (descriptor
// type, binding count, stage), per spec §2 C4. Structural equality over
// a byte-wise POD key, per spec §9's "intrusive hash maps" guidance.
type descriptorLayoutKey struct {
	descriptorType vk.DescriptorType
	bindingCount   uint32
	stage          vk.ShaderStageFlagBits
}

type descriptorLayoutCache struct {
	mu    sync.Mutex
	cache map[descriptorLayoutKey]vk.DescriptorSetLayout
}

func newDescriptorLayoutCache() *descriptorLayoutCache {
	return &descriptorLayoutCache{cache: make(map[descriptorLayoutKey]vk.DescriptorSetLayout)}
}

// fetch returns the cached layout for key, creating it on miss. Every
// binding in the set shares the same descriptor type and stage — this
// is sufficient for vanta's fixed binding shapes (sampler sets, buffer
// sets, the single dynamic-offset uniform binding).
func (c *descriptorLayoutCache) fetch(d *Device, key descriptorLayoutKey) (vk.DescriptorSetLayout, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if layout, ok := c.cache[key]; ok {
		return layout, nil
	}

	bindings := make([]vk.DescriptorSetLayoutBinding, key.bindingCount)
	for i := range bindings {
		bindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         uint32(i),
			DescriptorType:  key.descriptorType,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(key.stage),
		}
	}

	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: key.bindingCount,
		PBindings:    bindings,
	}

	var layout vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(d.logical, &createInfo, d.allocCallbacks, &layout); res != vk.Success {
		core.LogError("descriptorLayoutCache: vkCreateDescriptorSetLayout failed: %s", VulkanResultString(res, true))
		return nil, fmt.Errorf("vkCreateDescriptorSetLayout: %s", VulkanResultString(res, true))
	}
	c.cache[key] = layout
	return layout, nil
}

func (c *descriptorLayoutCache) destroyAll(d *Device) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, layout := range c.cache {
		vk.DestroyDescriptorSetLayout(d.logical, layout, d.allocCallbacks)
	}
	c.cache = make(map[descriptorLayoutKey]vk.DescriptorSetLayout)
}

// emptySetLayout is the distinguished zero-binding layout substituted
// when a pipeline's corresponding binding count is zero, per spec §3
// (PipelineLayout) and §9 ("dummy sets and zero-binding layouts").
func (c *descriptorLayoutCache) emptySetLayout(d *Device) (vk.DescriptorSetLayout, error) {
	return c.fetch(d, descriptorLayoutKey{descriptorType: vk.DescriptorTypeUniformBuffer, bindingCount: 0, stage: vk.ShaderStageAllBit})
}

// initEmptySet allocates the single dummy descriptor set bound in place
// of a sampler/buffer/texture set whose pipeline declared zero bindings
// for that slot, so vkCmdBindDescriptorSets always sees a full,
// layout-compatible run of sets.
func (d *Device) initEmptySet() error {
	layout, err := d.descriptorLayouts.emptySetLayout(d)
	if err != nil {
		return err
	}

	poolSize := vk.DescriptorPoolSize{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 1}
	createInfo := vk.DescriptorPoolCreateInfo{
		SType: vk.StructureTypeDescriptorPoolCreateInfo, MaxSets: 1,
		PoolSizeCount: 1, PPoolSizes: []vk.DescriptorPoolSize{poolSize},
	}
	var pool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(d.logical, &createInfo, d.allocCallbacks, &pool); res != vk.Success {
		return fmt.Errorf("vkCreateDescriptorPool: %s", VulkanResultString(res, true))
	}

	allocInfo := vk.DescriptorSetAllocateInfo{
		SType: vk.StructureTypeDescriptorSetAllocateInfo, DescriptorPool: pool,
		DescriptorSetCount: 1, PSetLayouts: []vk.DescriptorSetLayout{layout},
	}
	var set vk.DescriptorSet
	if res := vk.AllocateDescriptorSets(d.logical, &allocInfo, &set); res != vk.Success {
		vk.DestroyDescriptorPool(d.logical, pool, d.allocCallbacks)
		return fmt.Errorf("vkAllocateDescriptorSets: %s", VulkanResultString(res, true))
	}

	d.emptySetPool = pool
	d.emptySet = set
	return nil
}
