package vulkan

import (
	"context"
	"fmt"
	"math"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/vanta-gfx/vanta/core"
	"github.com/vanta-gfx/vanta/gpu"
	"github.com/vanta-gfx/vanta/platform"
)

// Swapchain is one window's presentation surface, per spec §4.11: a
// VkSwapchainKHR, its images wrapped as memory-less Textures, and the
// single image-available/render-finished semaphore pair recording
// chains through on acquire.
type Swapchain struct {
	platform *platform.Platform
	surface  vk.Surface
	handle   vk.Swapchain

	format       vk.SurfaceFormat
	presentMode  vk.PresentMode
	extent       vk.Extent2D
	images       []*Texture
	currentIndex uint32

	imageAvailable vk.Semaphore
	renderFinished vk.Semaphore
}

func toVkPresentMode(p gpu.PresentMode) vk.PresentMode {
	switch p {
	case gpu.PresentModeImmediate:
		return vk.PresentModeImmediate
	case gpu.PresentModeMailbox:
		return vk.PresentModeMailbox
	case gpu.PresentModeFIFORelaxed:
		return vk.PresentModeFifoRelaxed
	default:
		return vk.PresentModeFifo
	}
}

// ClaimWindow implements gpu.Device.ClaimWindow: create a surface,
// query caps, and build the initial swapchain for window (spec §4.11
// "Claim window").
func (d *Device) ClaimWindow(window *gpu.Window, preferred gpu.PresentMode) error {
	plat := window.Backend().(*platform.Platform)

	surfaceHandle, err := plat.CreateWindowSurface(uintptr(unsafe.Pointer(d.instance)))
	if err != nil {
		return fmt.Errorf("create window surface: %w", err)
	}
	surface := vk.SurfaceFromPointer(surfaceHandle)

	sc, err := d.createSwapchainFor(plat, surface, toVkPresentMode(preferred), nil)
	if err != nil {
		vk.DestroySurface(d.instance, surface, d.allocCallbacks)
		return err
	}

	d.swapchainsMu.Lock()
	d.swapchains[plat] = sc
	d.swapchainsMu.Unlock()
	return nil
}

func (d *Device) createSwapchainFor(plat *platform.Platform, surface vk.Surface, presentMode vk.PresentMode, old vk.Swapchain) (*Swapchain, error) {
	var caps vk.SurfaceCapabilities
	vk.GetPhysicalDeviceSurfaceCapabilities(d.physical, surface, &caps)
	caps.Deref()

	var formatCount uint32
	vk.GetPhysicalDeviceSurfaceFormats(d.physical, surface, &formatCount, nil)
	formats := make([]vk.SurfaceFormat, formatCount)
	vk.GetPhysicalDeviceSurfaceFormats(d.physical, surface, &formatCount, formats)
	for i := range formats {
		formats[i].Deref()
	}

	chosen := formats[0]
	for _, f := range formats {
		if f.Format == vk.FormatR8g8b8a8Unorm {
			chosen = f
			break
		}
		if f.Format == vk.FormatB8g8r8a8Unorm {
			chosen = f
		}
	}

	var modeCount uint32
	vk.GetPhysicalDeviceSurfacePresentModes(d.physical, surface, &modeCount, nil)
	modes := make([]vk.PresentMode, modeCount)
	vk.GetPhysicalDeviceSurfacePresentModes(d.physical, surface, &modeCount, modes)
	wantMode := vk.PresentModeFifo
	for _, m := range modes {
		if m == presentMode {
			wantMode = presentMode
			break
		}
	}

	width, height := plat.DrawableSize()
	extent := vk.Extent2D{Width: uint32(width), Height: uint32(height)}
	if caps.CurrentExtent.Width != math.MaxUint32 {
		extent = caps.CurrentExtent
	}
	extent.Width = clampU32(extent.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width)
	extent.Height = clampU32(extent.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height)

	imageCount := caps.MinImageCount + 1
	if wantMode == vk.PresentModeMailbox && imageCount < 3 {
		imageCount = 3
	}
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          surface,
		MinImageCount:    imageCount,
		ImageFormat:      chosen.Format,
		ImageColorSpace:  chosen.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      wantMode,
		Clipped:          vk.True,
		OldSwapchain:     old,
	}

	var handle vk.Swapchain
	if res := vk.CreateSwapchain(d.logical, &createInfo, d.allocCallbacks, &handle); res != vk.Success {
		return nil, fmt.Errorf("vkCreateSwapchainKHR: %s", VulkanResultString(res, true))
	}

	var count uint32
	vk.GetSwapchainImages(d.logical, handle, &count, nil)
	rawImages := make([]vk.Image, count)
	vk.GetSwapchainImages(d.logical, handle, &count, rawImages)

	images := make([]*Texture, count)
	for i, img := range rawImages {
		viewInfo := vk.ImageViewCreateInfo{
			SType: vk.StructureTypeImageViewCreateInfo, Image: img, ViewType: vk.ImageViewType2d, Format: chosen.Format,
			SubresourceRange: vk.ImageSubresourceRange{AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit), LevelCount: 1, LayerCount: 1},
		}
		var view vk.ImageView
		if res := vk.CreateImageView(d.logical, &viewInfo, d.allocCallbacks, &view); res != vk.Success {
			return nil, fmt.Errorf("vkCreateImageView: %s", VulkanResultString(res, true))
		}
		images[i] = &Texture{
			handle: img, view: view, width: extent.Width, height: extent.Height, depth: 1,
			layerCount: 1, levelCount: 1, sampleCount: 1, format: chosen.Format,
			aspect: vk.ImageAspectColorBit, usage: gpu.TextureUsageColorTarget,
			access: gpu.AccessNone, swapchainOwned: true,
		}
	}

	semInfo := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	var imgAvail, renderDone vk.Semaphore
	vk.CreateSemaphore(d.logical, &semInfo, d.allocCallbacks, &imgAvail)
	vk.CreateSemaphore(d.logical, &semInfo, d.allocCallbacks, &renderDone)

	return &Swapchain{
		platform: plat, surface: surface, handle: handle,
		format: chosen, presentMode: wantMode, extent: extent, images: images,
		imageAvailable: imgAvail, renderFinished: renderDone,
	}, nil
}

// AcquireSwapchainTexture implements gpu.Device.AcquireSwapchainTexture
// per spec §4.11's acquire protocol, including the recreate-on-stale
// retry.
func (d *Device) AcquireSwapchainTexture(ctx context.Context, window *gpu.Window, cmd *gpu.CommandBuffer) *gpu.Texture {
	plat := window.Backend().(*platform.Platform)
	if plat.Minimized() {
		return nil
	}

	d.swapchainsMu.Lock()
	sc, ok := d.swapchains[plat]
	d.swapchainsMu.Unlock()
	if !ok {
		core.LogError("AcquireSwapchainTexture: window was never claimed")
		return nil
	}

	cb := fromGpuCommandBuffer(cmd)
	for attempt := 0; attempt < 2; attempt++ {
		var imageIndex uint32
		result := vk.AcquireNextImage(d.logical, sc.handle, math.MaxUint64, sc.imageAvailable, vk.NullFence, &imageIndex)
		if result == vk.ErrorOutOfDate || result == vk.Suboptimal {
			recreated, err := d.recreateSwapchain(sc)
			if err != nil {
				core.LogError("AcquireSwapchainTexture: recreate failed: %v", err)
				return nil
			}
			d.swapchainsMu.Lock()
			d.swapchains[plat] = recreated
			d.swapchainsMu.Unlock()
			sc = recreated
			continue
		}
		if result != vk.Success {
			core.LogError("AcquireSwapchainTexture: vkAcquireNextImageKHR failed: %s", VulkanResultString(result, true))
			return nil
		}

		sc.currentIndex = imageIndex
		tex := sc.images[imageIndex]
		imageBarrier(cb.handle, tex, tex.aspect, 0, 1, 0, 1, true, gpu.AccessColorAttachmentWrite)

		cb.pendingPresents = append(cb.pendingPresents, trackedPresent{
			swapchain: sc, imageIndex: imageIndex,
			imageAvailable: sc.imageAvailable, renderFinished: sc.renderFinished,
		})
		return gpu.NewTexture(tex)
	}
	return nil
}

func (d *Device) recreateSwapchain(sc *Swapchain) (*Swapchain, error) {
	vk.DeviceWaitIdle(d.logical)
	old := sc.handle
	fresh, err := d.createSwapchainFor(sc.platform, sc.surface, sc.presentMode, old)
	if err != nil {
		return nil, err
	}
	sc.destroyImagesAndSwapchain(d)
	return fresh, nil
}

func (sc *Swapchain) destroyImagesAndSwapchain(d *Device) {
	for _, img := range sc.images {
		vk.DestroyImageView(d.logical, img.view, d.allocCallbacks)
	}
	vk.DestroySwapchain(d.logical, sc.handle, d.allocCallbacks)
}

func (sc *Swapchain) destroy(d *Device) {
	sc.destroyImagesAndSwapchain(d)
	vk.DestroySemaphore(d.logical, sc.imageAvailable, d.allocCallbacks)
	vk.DestroySemaphore(d.logical, sc.renderFinished, d.allocCallbacks)
	vk.DestroySurface(d.instance, sc.surface, d.allocCallbacks)
}

// UnclaimWindow implements gpu.Device.UnclaimWindow.
func (d *Device) UnclaimWindow(window *gpu.Window) {
	plat := window.Backend().(*platform.Platform)
	d.swapchainsMu.Lock()
	sc, ok := d.swapchains[plat]
	if ok {
		delete(d.swapchains, plat)
	}
	d.swapchainsMu.Unlock()
	if ok {
		vk.DeviceWaitIdle(d.logical)
		sc.destroy(d)
	}
}

func clampU32(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
