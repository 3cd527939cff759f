package vulkan

import (
	"fmt"
	"sync"
	"sync/atomic"

	vk "github.com/goki/vulkan"

	"github.com/vanta-gfx/vanta/core"
)

// RenderTarget is the per-subresource VkImageView a render pass writes
// into, keyed by (texture, depth, layer, level, sampleCount) per spec
// §4.7. When sampleCount > 1 it also owns a multisample sidecar image,
// the one the pass renders into, which is resolved into the base
// texture on store.
type RenderTarget struct {
	key renderTargetKey

	view vk.ImageView

	msaaImage  vk.Image
	msaaMemory vk.DeviceMemory
	msaaView   vk.ImageView

	refcount atomic.Int32
}

func (rt *RenderTarget) Retain()       { rt.refcount.Add(1) }
func (rt *RenderTarget) Release() int32 { return rt.refcount.Add(-1) }
func (rt *RenderTarget) RefCount() int32 { return rt.refcount.Load() }

type renderTargetKey struct {
	texture     *Texture
	depth       uint32
	layer       uint32
	level       uint32
	sampleCount uint32
}

// renderTargetCache dedupes RenderTargets by subresource identity and
// owns invalidation when the backing texture is destroyed.
type renderTargetCache struct {
	mu      sync.Mutex
	entries map[renderTargetKey]*RenderTarget
}

func newRenderTargetCache() *renderTargetCache {
	return &renderTargetCache{entries: make(map[renderTargetKey]*RenderTarget)}
}

func (c *renderTargetCache) fetch(d *Device, t *Texture, depth, layer, level, sampleCount uint32) (*RenderTarget, error) {
	key := renderTargetKey{texture: t, depth: depth, layer: layer, level: level, sampleCount: sampleCount}

	c.mu.Lock()
	if rt, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return rt, nil
	}
	c.mu.Unlock()

	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    t.handle,
		ViewType: vk.ImageViewType2d,
		Format:   t.format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(aspectForFormat(t.format)),
			BaseMipLevel:   level,
			LevelCount:     1,
			BaseArrayLayer: layer,
			LayerCount:     1,
		},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(d.logical, &viewInfo, d.allocCallbacks, &view); res != vk.Success {
		core.LogError("renderTargetCache: vkCreateImageView failed: %s", VulkanResultString(res, true))
		return nil, fmt.Errorf("vkCreateImageView: %s", VulkanResultString(res, true))
	}

	rt := &RenderTarget{key: key, view: view}

	if sampleCount > 1 {
		if err := c.createMSAASidecar(d, rt, t, sampleCount); err != nil {
			vk.DestroyImageView(d.logical, view, d.allocCallbacks)
			return nil, err
		}
	}

	c.mu.Lock()
	c.entries[key] = rt
	c.mu.Unlock()
	return rt, nil
}

func (c *renderTargetCache) createMSAASidecar(d *Device, rt *RenderTarget, t *Texture, sampleCount uint32) error {
	imageInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    t.format,
		Extent:    vk.Extent3D{Width: maxU32(t.width>>rt.key.level, 1), Height: maxU32(t.height>>rt.key.level, 1), Depth: 1},
		MipLevels: 1, ArrayLayers: 1,
		Samples:     vk.SampleCountFlagBits(sampleCount),
		Tiling:      vk.ImageTilingOptimal,
		Usage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransientAttachmentBit),
		SharingMode: vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var image vk.Image
	if res := vk.CreateImage(d.logical, &imageInfo, d.allocCallbacks, &image); res != vk.Success {
		return vkErr("vkCreateImage", res)
	}
	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.logical, image, &reqs)
	reqs.Deref()
	memTypeIndex := d.findMemoryIndex(reqs.MemoryTypeBits, uint32(vk.MemoryPropertyDeviceLocalBit))
	allocInfo := vk.MemoryAllocateInfo{SType: vk.StructureTypeMemoryAllocateInfo, AllocationSize: reqs.Size, MemoryTypeIndex: uint32(memTypeIndex)}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(d.logical, &allocInfo, d.allocCallbacks, &memory); res != vk.Success {
		vk.DestroyImage(d.logical, image, d.allocCallbacks)
		return vkErr("vkAllocateMemory", res)
	}
	vk.BindImageMemory(d.logical, image, memory, 0)

	viewInfo := vk.ImageViewCreateInfo{
		SType: vk.StructureTypeImageViewCreateInfo, Image: image, ViewType: vk.ImageViewType2d, Format: t.format,
		SubresourceRange: vk.ImageSubresourceRange{AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit), LevelCount: 1, LayerCount: 1},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(d.logical, &viewInfo, d.allocCallbacks, &view); res != vk.Success {
		vk.FreeMemory(d.logical, memory, d.allocCallbacks)
		vk.DestroyImage(d.logical, image, d.allocCallbacks)
		return vkErr("vkCreateImageView", res)
	}

	rt.msaaImage, rt.msaaMemory, rt.msaaView = image, memory, view
	return nil
}

// invalidate destroys every render target referencing t, per spec
// §4.7's invalidation rule, and returns the set of views that were
// destroyed so the framebuffer cache can invalidate in turn.
func (c *renderTargetCache) invalidate(d *Device, t *Texture) []vk.ImageView {
	c.mu.Lock()
	defer c.mu.Unlock()

	var destroyedViews []vk.ImageView
	for key, rt := range c.entries {
		if key.texture != t {
			continue
		}
		destroyedViews = append(destroyedViews, rt.view)
		d.destroyRenderTargetNow(rt)
		delete(c.entries, key)
	}
	return destroyedViews
}

func (d *Device) destroyRenderTargetNow(rt *RenderTarget) {
	vk.DestroyImageView(d.logical, rt.view, d.allocCallbacks)
	if rt.msaaView != nil {
		vk.DestroyImageView(d.logical, rt.msaaView, d.allocCallbacks)
		vk.DestroyImage(d.logical, rt.msaaImage, d.allocCallbacks)
		vk.FreeMemory(d.logical, rt.msaaMemory, d.allocCallbacks)
	}
}

func (c *renderTargetCache) destroyAll(d *Device) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, rt := range c.entries {
		d.destroyRenderTargetNow(rt)
		delete(c.entries, key)
	}
}
