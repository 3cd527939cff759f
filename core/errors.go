package core

import "errors"

var (
	// ErrSwapchainBooting names a frame that bailed out early because its
	// swapchain is being recreated; the caller should skip the frame
	// rather than treat this as failure. Nothing in this module returns
	// it: AcquireSwapchainTexture reports such a frame by returning nil.
	ErrSwapchainBooting = errors.New("swapchain resized or recreated, booting")

	// ErrOutOfDeviceMemory is returned when vkAllocateMemory fails and no
	// dedicated-allocation fallback was attempted. Recoverable: the
	// caller may retry with a smaller resource or a host-visible memory
	// type.
	ErrOutOfDeviceMemory = errors.New("out of device memory")

	// ErrDeviceLost names the state after the Vulkan device has been
	// lost. There is no automatic recovery. Nothing in this module returns
	// it: Wait has no error result, and Submit wraps the raw Vulkan result.
	ErrDeviceLost = errors.New("vulkan device lost")

	// ErrUserContractViolation marks programmer error the layer detected
	// but cannot safely recover from (pushing uniforms with no pipeline
	// bound, submitting from a thread that did not acquire the command
	// buffer, binding a zero-sized sampler set, issuing an indirect draw
	// against a buffer not in INDIRECT_BUFFER access).
	ErrUserContractViolation = errors.New("user contract violation")

	// ErrNotImplemented marks an optional capability the backend does
	// not provide. Callers should treat it as a missing feature, not a
	// transient failure.
	ErrNotImplemented = errors.New("not implemented")

	ErrUnknown = errors.New("unknown")
)
