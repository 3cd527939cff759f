package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"

	"github.com/vanta-gfx/vanta/gpu"
)

func colorBinding(format vk.Format, clear [4]float32, load gpu.LoadOp, store gpu.StoreOp) gpu.ColorAttachmentBinding {
	tex := gpu.NewTexture(&Texture{format: format})
	return gpu.ColorAttachmentBinding{Texture: tex, LoadOp: load, StoreOp: store, ClearColor: clear}
}

func TestRenderPassKeyEqualForIdenticalAttachments(t *testing.T) {
	clear := [4]float32{0.25, 0.5, 0.75, 1.0}
	a := []gpu.ColorAttachmentBinding{colorBinding(vk.FormatR8g8b8a8Unorm, clear, gpu.LoadOpClear, gpu.StoreOpStore)}
	b := []gpu.ColorAttachmentBinding{colorBinding(vk.FormatR8g8b8a8Unorm, clear, gpu.LoadOpClear, gpu.StoreOpStore)}

	k1 := buildRenderPassKey(a, nil, 1)
	k2 := buildRenderPassKey(b, nil, 1)
	if k1 != k2 {
		t.Fatalf("two structurally identical attachment lists produced different render pass keys:\n%+v\n%+v", k1, k2)
	}

	cache := newRenderPassCache()
	cache.entries[k1] = vk.RenderPass(42)
	if _, ok := cache.entries[k2]; !ok {
		t.Fatalf("render pass cache lookup missed on a structurally identical key")
	}
}

func TestRenderPassKeyDiffersOnClearColor(t *testing.T) {
	a := []gpu.ColorAttachmentBinding{colorBinding(vk.FormatR8g8b8a8Unorm, [4]float32{0.25, 0.5, 0.75, 1.0}, gpu.LoadOpClear, gpu.StoreOpStore)}
	b := []gpu.ColorAttachmentBinding{colorBinding(vk.FormatR8g8b8a8Unorm, [4]float32{0, 0, 0, 1}, gpu.LoadOpClear, gpu.StoreOpStore)}

	k1 := buildRenderPassKey(a, nil, 1)
	k2 := buildRenderPassKey(b, nil, 1)
	if k1 == k2 {
		t.Fatalf("render pass keys with different clear colors must not collide")
	}
}

func TestRenderPassKeyDiffersOnSampleCount(t *testing.T) {
	clear := [4]float32{0.25, 0.5, 0.75, 1.0}
	a := []gpu.ColorAttachmentBinding{colorBinding(vk.FormatR8g8b8a8Unorm, clear, gpu.LoadOpClear, gpu.StoreOpStore)}

	k1 := buildRenderPassKey(a, nil, 1)
	k2 := buildRenderPassKey(a, nil, 4)
	if k1 == k2 {
		t.Fatalf("render pass keys with different sample counts must not collide")
	}
}

func TestFramebufferKeyEqualForIdenticalViews(t *testing.T) {
	k1 := framebufferKey{colorCount: 1, width: 320, height: 240}
	k1.colorViews[0] = vk.ImageView(1)

	k2 := framebufferKey{colorCount: 1, width: 320, height: 240}
	k2.colorViews[0] = vk.ImageView(1)

	if k1 != k2 {
		t.Fatalf("two framebuffer keys built from the same view handle and extent must compare equal")
	}
}

func TestFramebufferKeyDiffersOnExtent(t *testing.T) {
	k1 := framebufferKey{colorCount: 1, width: 320, height: 240}
	k1.colorViews[0] = vk.ImageView(1)

	k2 := framebufferKey{colorCount: 1, width: 640, height: 480}
	k2.colorViews[0] = vk.ImageView(1)

	if k1 == k2 {
		t.Fatalf("framebuffer keys with different extents must not collide")
	}
}
