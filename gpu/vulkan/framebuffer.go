package vulkan

import (
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"
)

// framebufferKey is the ordered list of color attachment view handles
// (the MSAA sidecar view when the target is multisampled, otherwise the
// texture's own view) paired with the parallel list of resolve-target
// view handles (null when not MSAA), the optional depth-stencil view
// handle, and the target extent, per spec §4.7. The pairing mirrors
// buildRenderPass's per-slot attachment order: sample-count-N target
// first, single-sample resolve target second.
type framebufferKey struct {
	colorViews [8]vk.ImageView
	msaaViews  [8]vk.ImageView
	colorCount int
	depthView  vk.ImageView
	hasDepth   bool
	width      uint32
	height     uint32
}

type cachedFramebuffer struct {
	handle vk.Framebuffer
	views  []vk.ImageView
}

// framebufferCache dedupes VkFramebuffers by attachment-view identity and
// invalidates entries when one of their views is destroyed.
type framebufferCache struct {
	mu      sync.Mutex
	entries map[framebufferKey]*cachedFramebuffer
}

func newFramebufferCache() *framebufferCache {
	return &framebufferCache{entries: make(map[framebufferKey]*cachedFramebuffer)}
}

func (c *framebufferCache) fetch(d *Device, renderPass vk.RenderPass, key framebufferKey) (vk.Framebuffer, error) {
	c.mu.Lock()
	if fb, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return fb.handle, nil
	}
	c.mu.Unlock()

	var attachments []vk.ImageView
	for i := 0; i < key.colorCount; i++ {
		attachments = append(attachments, key.colorViews[i])
		if key.msaaViews[i] != nil {
			attachments = append(attachments, key.msaaViews[i])
		}
	}
	if key.hasDepth {
		attachments = append(attachments, key.depthView)
	}

	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderPass,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           key.width,
		Height:          key.height,
		Layers:          1,
	}
	var handle vk.Framebuffer
	if res := vk.CreateFramebuffer(d.logical, &createInfo, d.allocCallbacks, &handle); res != vk.Success {
		return nil, fmt.Errorf("vkCreateFramebuffer: %s", VulkanResultString(res, true))
	}

	c.mu.Lock()
	c.entries[key] = &cachedFramebuffer{handle: handle, views: attachments}
	c.mu.Unlock()
	return handle, nil
}

// invalidateForViews destroys every cached framebuffer whose attachment
// list contains any of views, per spec §4.7's invalidation chain: a
// destroyed render target takes its dependent framebuffers with it.
func (c *framebufferCache) invalidateForViews(d *Device, views []vk.ImageView) {
	if len(views) == 0 {
		return
	}
	stale := make(map[vk.ImageView]bool, len(views))
	for _, v := range views {
		stale[v] = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, fb := range c.entries {
		for _, v := range fb.views {
			if stale[v] {
				vk.DestroyFramebuffer(d.logical, fb.handle, d.allocCallbacks)
				delete(c.entries, key)
				break
			}
		}
	}
}

func (c *framebufferCache) destroyAll(d *Device) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, fb := range c.entries {
		vk.DestroyFramebuffer(d.logical, fb.handle, d.allocCallbacks)
		delete(c.entries, key)
	}
}
