// Command vantaview exercises the clear-and-present scenario end to end:
// claim a window, begin a render pass with a single cleared color
// attachment, end it, and present, once per frame until the window
// closes. It touches nothing in the gpu contract beyond what that
// scenario needs — no pipelines, no buffers, no uniforms.
package main

import (
	"context"

	"github.com/vanta-gfx/vanta/core"
	"github.com/vanta-gfx/vanta/gpu"
	"github.com/vanta-gfx/vanta/gpu/vulkan"
	"github.com/vanta-gfx/vanta/platform"
)

const (
	windowWidth  = 320
	windowHeight = 240
)

const configPath = "vanta.toml"

func main() {
	cfg, err := core.LoadConfig(configPath)
	if err != nil {
		core.LogFatal("load config: %v", err)
	}
	core.SetVerbose(cfg.Verbose)

	plat, err := platform.New()
	if err != nil {
		core.LogFatal("create platform: %v", err)
	}
	if err := plat.Startup("vantaview", 100, 100, windowWidth, windowHeight); err != nil {
		core.LogFatal("platform startup: %v", err)
	}
	defer plat.Shutdown()

	device, err := vulkan.NewDevice(plat, cfg, "vantaview")
	if err != nil {
		core.LogFatal("create device: %v", err)
	}
	defer device.Destroy()

	if reloader, err := vulkan.NewHotReloader(); err != nil {
		core.LogWarn("hot-reload disabled: %v", err)
	} else {
		defer reloader.Close()
		if err := reloader.WatchConfig(configPath, cfg, func(next core.DeviceConfig) {
			core.SetVerbose(next.Verbose)
		}); err != nil {
			core.LogWarn("hot-reload: failed to watch %s: %v", configPath, err)
		}
	}

	window := gpu.NewWindow(plat)
	if err := device.ClaimWindow(window, gpu.PresentModeFIFO); err != nil {
		core.LogFatal("claim window: %v", err)
	}
	defer device.UnclaimWindow(window)

	clearColor := [4]float32{0.25, 0.5, 0.75, 1.0}

	for !plat.ShouldClose() {
		plat.PumpMessages()
		if plat.Minimized() {
			continue
		}

		cmd := device.AcquireCommandBuffer(false)
		if cmd == nil {
			core.LogError("acquire command buffer failed")
			continue
		}

		target := device.AcquireSwapchainTexture(context.Background(), window, cmd)
		if target == nil {
			continue
		}

		device.BeginRenderPass(cmd, []gpu.ColorAttachmentBinding{{
			Texture:    target,
			LoadOp:     gpu.LoadOpClear,
			StoreOp:    gpu.StoreOpStore,
			ClearColor: clearColor,
		}}, nil)
		device.EndRenderPass(cmd)

		if err := device.Submit([]*gpu.CommandBuffer{cmd}); err != nil {
			core.LogError("submit: %v", err)
		}
	}

	device.Wait()
}
