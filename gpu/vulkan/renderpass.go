package vulkan

import (
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/vanta-gfx/vanta/gpu"
)

type colorAttachmentKey struct {
	format     vk.Format
	clearColor [4]float32
	loadOp     vk.AttachmentLoadOp
	storeOp    vk.AttachmentStoreOp
}

type depthAttachmentKey struct {
	format         vk.Format
	depthLoadOp    vk.AttachmentLoadOp
	depthStoreOp   vk.AttachmentStoreOp
	stencilLoadOp  vk.AttachmentLoadOp
	stencilStoreOp vk.AttachmentStoreOp
}

// renderPassKey is structural over every field spec §4.7 names for a
// render pass, including every float of every clear color. A plain Go
// struct comparison does exactly this when used as a map key.
type renderPassKey struct {
	colors      [8]colorAttachmentKey
	colorCount  int
	hasDepth    bool
	depth       depthAttachmentKey
	sampleCount uint32
}

type renderPassCache struct {
	mu      sync.Mutex
	entries map[renderPassKey]vk.RenderPass
}

func newRenderPassCache() *renderPassCache {
	return &renderPassCache{entries: make(map[renderPassKey]vk.RenderPass)}
}

func buildRenderPassKey(color []gpu.ColorAttachmentBinding, depthStencil *gpu.DepthStencilAttachmentBinding, sampleCount uint32) renderPassKey {
	var key renderPassKey
	key.sampleCount = sampleCount
	key.colorCount = len(color)
	for i, c := range color {
		key.colors[i] = colorAttachmentKey{
			format:     c.Texture.Backend().(*Texture).format,
			clearColor: c.ClearColor,
			loadOp:     toVkLoadOp(c.LoadOp),
			storeOp:    toVkStoreOp(c.StoreOp),
		}
	}
	if depthStencil != nil {
		key.hasDepth = true
		key.depth = depthAttachmentKey{
			format:         depthStencil.Texture.Backend().(*Texture).format,
			depthLoadOp:    toVkLoadOp(depthStencil.DepthLoadOp),
			depthStoreOp:   toVkStoreOp(depthStencil.DepthStoreOp),
			stencilLoadOp:  toVkLoadOp(depthStencil.StencilLoadOp),
			stencilStoreOp: toVkStoreOp(depthStencil.StencilStoreOp),
		}
	}
	return key
}

func toVkLoadOp(op gpu.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case gpu.LoadOpClear:
		return vk.AttachmentLoadOpClear
	case gpu.LoadOpDontCare:
		return vk.AttachmentLoadOpDontCare
	default:
		return vk.AttachmentLoadOpLoad
	}
}

func toVkStoreOp(op gpu.StoreOp) vk.AttachmentStoreOp {
	if op == gpu.StoreOpStore {
		return vk.AttachmentStoreOpStore
	}
	return vk.AttachmentStoreOpDontCare
}

// fetch builds (or reuses) a VkRenderPass matching key, per spec §4.7.
func (c *renderPassCache) fetch(d *Device, key renderPassKey) (vk.RenderPass, error) {
	c.mu.Lock()
	if rp, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return rp, nil
	}
	c.mu.Unlock()

	rp, err := buildRenderPass(d, key)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = rp
	c.mu.Unlock()
	return rp, nil
}

func buildRenderPass(d *Device, key renderPassKey) (vk.RenderPass, error) {
	samples := vk.SampleCountFlagBits(key.sampleCount)
	var attachments []vk.AttachmentDescription
	var colorRefs []vk.AttachmentReference
	var resolveRefs []vk.AttachmentReference
	hasResolve := samples > vk.SampleCount1Bit

	for i := 0; i < key.colorCount; i++ {
		c := key.colors[i]
		attachments = append(attachments, vk.AttachmentDescription{
			Format: c.format, Samples: samples, LoadOp: c.loadOp, StoreOp: c.storeOp,
			StencilLoadOp: vk.AttachmentLoadOpDontCare, StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout: initialLayoutFor(c.loadOp), FinalLayout: vk.ImageLayoutColorAttachmentOptimal,
		})
		colorRefs = append(colorRefs, vk.AttachmentReference{Attachment: uint32(len(attachments) - 1), Layout: vk.ImageLayoutColorAttachmentOptimal})
		if hasResolve {
			attachments = append(attachments, vk.AttachmentDescription{
				Format: c.format, Samples: vk.SampleCount1Bit, LoadOp: vk.AttachmentLoadOpDontCare, StoreOp: vk.AttachmentStoreOpStore,
				StencilLoadOp: vk.AttachmentLoadOpDontCare, StencilStoreOp: vk.AttachmentStoreOpDontCare,
				InitialLayout: vk.ImageLayoutUndefined, FinalLayout: vk.ImageLayoutColorAttachmentOptimal,
			})
			resolveRefs = append(resolveRefs, vk.AttachmentReference{Attachment: uint32(len(attachments) - 1), Layout: vk.ImageLayoutColorAttachmentOptimal})
		}
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorRefs)),
		PColorAttachments:    colorRefs,
	}
	if hasResolve {
		subpass.PResolveAttachments = resolveRefs
	}

	var depthRef vk.AttachmentReference
	if key.hasDepth {
		attachments = append(attachments, vk.AttachmentDescription{
			Format: key.depth.format, Samples: samples,
			LoadOp: key.depth.depthLoadOp, StoreOp: key.depth.depthStoreOp,
			StencilLoadOp: key.depth.stencilLoadOp, StencilStoreOp: key.depth.stencilStoreOp,
			InitialLayout: initialLayoutForDepth(key.depth.depthLoadOp), FinalLayout: vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		depthRef = vk.AttachmentReference{Attachment: uint32(len(attachments) - 1), Layout: vk.ImageLayoutDepthStencilAttachmentOptimal}
		subpass.PDepthStencilAttachment = &depthRef
	}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
	}

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}
	var rp vk.RenderPass
	if res := vk.CreateRenderPass(d.logical, &createInfo, d.allocCallbacks, &rp); res != vk.Success {
		return nil, fmt.Errorf("vkCreateRenderPass: %s", VulkanResultString(res, true))
	}
	return rp, nil
}

func initialLayoutFor(loadOp vk.AttachmentLoadOp) vk.ImageLayout {
	if loadOp == vk.AttachmentLoadOpLoad {
		return vk.ImageLayoutColorAttachmentOptimal
	}
	return vk.ImageLayoutUndefined
}

func initialLayoutForDepth(loadOp vk.AttachmentLoadOp) vk.ImageLayout {
	if loadOp == vk.AttachmentLoadOpLoad {
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	}
	return vk.ImageLayoutUndefined
}

// compatibleRenderPass builds the transient, non-cached render pass
// pipeline creation needs (spec §4.9): formats and sample count only,
// every loadOp/storeOp is DONT_CARE since it is never actually executed.
func compatibleRenderPass(d *Device, colorFormats []vk.Format, depthFormat vk.Format, hasDepth bool, sampleCount uint32) (vk.RenderPass, error) {
	var key renderPassKey
	key.sampleCount = sampleCount
	key.colorCount = len(colorFormats)
	for i, f := range colorFormats {
		key.colors[i] = colorAttachmentKey{format: f, loadOp: vk.AttachmentLoadOpDontCare, storeOp: vk.AttachmentStoreOpDontCare}
	}
	if hasDepth {
		key.hasDepth = true
		key.depth = depthAttachmentKey{
			format: depthFormat, depthLoadOp: vk.AttachmentLoadOpDontCare, depthStoreOp: vk.AttachmentStoreOpDontCare,
			stencilLoadOp: vk.AttachmentLoadOpDontCare, stencilStoreOp: vk.AttachmentStoreOpDontCare,
		}
	}
	return buildRenderPass(d, key)
}

func (c *renderPassCache) destroyAll(d *Device) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, rp := range c.entries {
		vk.DestroyRenderPass(d.logical, rp, d.allocCallbacks)
		delete(c.entries, key)
	}
}
