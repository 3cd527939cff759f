package vulkan

import (
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/vanta-gfx/vanta/core"
)

// GraphicsPipelineLayout bundles a VkPipelineLayout with the descriptor
// machinery its four sets need at bind time: vertex samplers, fragment
// samplers (both via C6 caches), and the fixed vertex/fragment uniform
// set layouts (singletons shared by every graphics pipeline, per §4.6).
type GraphicsPipelineLayout struct {
	handle vk.PipelineLayout

	vertexSamplerCache   *descriptorSetCache // nil when vertexSamplerCount == 0
	fragmentSamplerCache *descriptorSetCache

	vertexUniformSetLayout   vk.DescriptorSetLayout
	fragmentUniformSetLayout vk.DescriptorSetLayout
}

// ComputePipelineLayout bundles a VkPipelineLayout with the three
// descriptor sets a compute pipeline binds: storage buffers, storage
// images, and the fixed compute uniform set.
type ComputePipelineLayout struct {
	handle vk.PipelineLayout

	bufferCache  *descriptorSetCache
	textureCache *descriptorSetCache

	uniformSetLayout vk.DescriptorSetLayout
}

type pipelineLayoutKey struct {
	vertexSamplerCount   uint32
	fragmentSamplerCount uint32
	bufferCount          uint32
	textureCount         uint32
	kind                 string // "graphics" or "compute"
}

// pipelineLayoutCache deduplicates pipeline layouts by the tuple of set
// layouts they were built from (spec §2 C5). Since layouts with equal
// binding-count tuples always resolve to the same descriptor-set
// layouts via descriptorLayoutCache, keying on the tuple is equivalent
// to keying on the set-layout handles themselves.
type pipelineLayoutCache struct {
	mu       sync.Mutex
	graphics map[pipelineLayoutKey]*GraphicsPipelineLayout
	compute  map[pipelineLayoutKey]*ComputePipelineLayout
}

func newPipelineLayoutCache() *pipelineLayoutCache {
	return &pipelineLayoutCache{
		graphics: make(map[pipelineLayoutKey]*GraphicsPipelineLayout),
		compute:  make(map[pipelineLayoutKey]*ComputePipelineLayout),
	}
}

func (c *pipelineLayoutCache) fetchGraphics(d *Device, vertexSamplerCount, fragmentSamplerCount uint32) (*GraphicsPipelineLayout, error) {
	key := pipelineLayoutKey{vertexSamplerCount: vertexSamplerCount, fragmentSamplerCount: fragmentSamplerCount, kind: "graphics"}

	c.mu.Lock()
	if gl, ok := c.graphics[key]; ok {
		c.mu.Unlock()
		return gl, nil
	}
	c.mu.Unlock()

	vertexSamplerLayout, err := c.setLayoutOrEmpty(d, vertexSamplerCount, vk.DescriptorTypeCombinedImageSampler, vk.ShaderStageVertexBit)
	if err != nil {
		return nil, err
	}
	fragmentSamplerLayout, err := c.setLayoutOrEmpty(d, fragmentSamplerCount, vk.DescriptorTypeCombinedImageSampler, vk.ShaderStageFragmentBit)
	if err != nil {
		return nil, err
	}
	vertexUniformLayout, err := d.descriptorLayouts.fetch(d, descriptorLayoutKey{descriptorType: vk.DescriptorTypeUniformBufferDynamic, bindingCount: 1, stage: vk.ShaderStageVertexBit})
	if err != nil {
		return nil, err
	}
	fragmentUniformLayout, err := d.descriptorLayouts.fetch(d, descriptorLayoutKey{descriptorType: vk.DescriptorTypeUniformBufferDynamic, bindingCount: 1, stage: vk.ShaderStageFragmentBit})
	if err != nil {
		return nil, err
	}

	setLayouts := []vk.DescriptorSetLayout{vertexSamplerLayout, fragmentSamplerLayout, vertexUniformLayout, fragmentUniformLayout}
	createInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(setLayouts)),
		PSetLayouts:    setLayouts,
	}
	var handle vk.PipelineLayout
	if res := vk.CreatePipelineLayout(d.logical, &createInfo, d.allocCallbacks, &handle); res != vk.Success {
		core.LogError("pipelineLayoutCache: vkCreatePipelineLayout failed: %s", VulkanResultString(res, true))
		return nil, fmt.Errorf("vkCreatePipelineLayout: %s", VulkanResultString(res, true))
	}

	gl := &GraphicsPipelineLayout{
		handle:                   handle,
		vertexUniformSetLayout:   vertexUniformLayout,
		fragmentUniformSetLayout: fragmentUniformLayout,
	}
	if vertexSamplerCount > 0 {
		gl.vertexSamplerCache = newDescriptorSetCache(vertexSamplerLayout, vk.DescriptorTypeCombinedImageSampler, vertexSamplerCount, d.config.DescriptorPoolInitialSets)
	}
	if fragmentSamplerCount > 0 {
		gl.fragmentSamplerCache = newDescriptorSetCache(fragmentSamplerLayout, vk.DescriptorTypeCombinedImageSampler, fragmentSamplerCount, d.config.DescriptorPoolInitialSets)
	}

	c.mu.Lock()
	c.graphics[key] = gl
	c.mu.Unlock()
	return gl, nil
}

func (c *pipelineLayoutCache) fetchCompute(d *Device, bufferCount, textureCount uint32) (*ComputePipelineLayout, error) {
	key := pipelineLayoutKey{bufferCount: bufferCount, textureCount: textureCount, kind: "compute"}

	c.mu.Lock()
	if cl, ok := c.compute[key]; ok {
		c.mu.Unlock()
		return cl, nil
	}
	c.mu.Unlock()

	bufferLayout, err := c.setLayoutOrEmpty(d, bufferCount, vk.DescriptorTypeStorageBuffer, vk.ShaderStageComputeBit)
	if err != nil {
		return nil, err
	}
	textureLayout, err := c.setLayoutOrEmpty(d, textureCount, vk.DescriptorTypeStorageImage, vk.ShaderStageComputeBit)
	if err != nil {
		return nil, err
	}
	uniformLayout, err := d.descriptorLayouts.fetch(d, descriptorLayoutKey{descriptorType: vk.DescriptorTypeUniformBufferDynamic, bindingCount: 1, stage: vk.ShaderStageComputeBit})
	if err != nil {
		return nil, err
	}

	setLayouts := []vk.DescriptorSetLayout{bufferLayout, textureLayout, uniformLayout}
	createInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(setLayouts)),
		PSetLayouts:    setLayouts,
	}
	var handle vk.PipelineLayout
	if res := vk.CreatePipelineLayout(d.logical, &createInfo, d.allocCallbacks, &handle); res != vk.Success {
		return nil, fmt.Errorf("vkCreatePipelineLayout: %s", VulkanResultString(res, true))
	}

	cl := &ComputePipelineLayout{handle: handle, uniformSetLayout: uniformLayout}
	if bufferCount > 0 {
		cl.bufferCache = newDescriptorSetCache(bufferLayout, vk.DescriptorTypeStorageBuffer, bufferCount, d.config.DescriptorPoolInitialSets)
	}
	if textureCount > 0 {
		cl.textureCache = newDescriptorSetCache(textureLayout, vk.DescriptorTypeStorageImage, textureCount, d.config.DescriptorPoolInitialSets)
	}

	c.mu.Lock()
	c.compute[key] = cl
	c.mu.Unlock()
	return cl, nil
}

func (c *pipelineLayoutCache) setLayoutOrEmpty(d *Device, count uint32, descType vk.DescriptorType, stage vk.ShaderStageFlagBits) (vk.DescriptorSetLayout, error) {
	if count == 0 {
		return d.descriptorLayouts.emptySetLayout(d)
	}
	return d.descriptorLayouts.fetch(d, descriptorLayoutKey{descriptorType: descType, bindingCount: count, stage: stage})
}

// destroyAll tears down every VkPipelineLayout and the descriptor-set
// caches hanging off it. The descriptor-set *layouts* themselves are
// owned by Device.descriptorLayouts and torn down separately.
func (c *pipelineLayoutCache) destroyAll(d *Device) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, gl := range c.graphics {
		if gl.vertexSamplerCache != nil {
			gl.vertexSamplerCache.destroyAll(d)
		}
		if gl.fragmentSamplerCache != nil {
			gl.fragmentSamplerCache.destroyAll(d)
		}
		vk.DestroyPipelineLayout(d.logical, gl.handle, d.allocCallbacks)
		delete(c.graphics, key)
	}
	for key, cl := range c.compute {
		if cl.bufferCache != nil {
			cl.bufferCache.destroyAll(d)
		}
		if cl.textureCache != nil {
			cl.textureCache.destroyAll(d)
		}
		vk.DestroyPipelineLayout(d.logical, cl.handle, d.allocCallbacks)
		delete(c.compute, key)
	}
}
