package platform

import (
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/vanta-gfx/vanta/core"
)

func init() {
	// GLFW event handling must run on the main OS thread.
	runtime.LockOSThread()
}

// Platform owns a single GLFW window and its surface-relevant state. No
// input system lives in this layer; callers that need key/mouse/scroll
// events poll glfw.Window directly.
type Platform struct {
	Window *glfw.Window
}

func New() (*Platform, error) {
	return &Platform{}, nil
}

// Startup creates a GLFW window with no client API bound, since the
// Vulkan backend creates its own surface against it.
func (p *Platform) Startup(applicationName string, x, y, width, height uint32) error {
	if err := glfw.Init(); err != nil {
		core.LogFatal("failed to initialize glfw: %s", err)
		return err
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		core.LogFatal("failed to create window: %s", err)
		return err
	}
	p.Window = window

	p.Window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		core.LogDebug("framebuffer resized to %dx%d", width, height)
	})
	p.Window.SetPos(int(x), int(y))
	p.Window.Show()

	return nil
}

func (p *Platform) Shutdown() error {
	glfw.Terminate()
	return nil
}

// PumpMessages drains the platform event queue. Call once per frame
// before touching swapchain state.
func (p *Platform) PumpMessages() {
	glfw.PollEvents()
}

// DrawableSize returns the window's current framebuffer size in pixels,
// which can differ from its logical size on HiDPI displays.
func (p *Platform) DrawableSize() (width, height int) {
	return p.Window.GetFramebufferSize()
}

// Minimized reports whether the window's framebuffer has zero area, the
// signal the swapchain manager uses to skip acquire/present entirely
// rather than recreate against a zero-sized surface.
func (p *Platform) Minimized() bool {
	w, h := p.DrawableSize()
	return w == 0 || h == 0
}

// CreateWindowSurface creates a VkSurfaceKHR for this window against the
// given VkInstance, returning the raw handle for the backend to wrap.
func (p *Platform) CreateWindowSurface(instance uintptr) (uintptr, error) {
	surface, err := p.Window.CreateWindowSurface(instance, nil)
	if err != nil {
		return 0, err
	}
	return surface, nil
}

func (p *Platform) ShouldClose() bool {
	return p.Window.ShouldClose()
}
