package vulkan

import (
	"math"

	vk "github.com/goki/vulkan"

	"github.com/vanta-gfx/vanta/core"
	"github.com/vanta-gfx/vanta/gpu"
)

// Submit implements gpu.Device.Submit per spec §4.4: transition every
// pending present image to PRESENT, end recording, submit with the
// swapchains' wait/signal semaphore chain, present, then sweep completed
// fences from prior submissions before returning.
func (d *Device) Submit(buffers []*gpu.CommandBuffer) error {
	d.submitMu.Lock()
	defer d.submitMu.Unlock()

	for _, gcb := range buffers {
		cb := fromGpuCommandBuffer(gcb)
		if cb == nil {
			continue
		}

		for _, present := range cb.pendingPresents {
			tex := present.swapchain.images[present.imageIndex]
			imageBarrier(cb.handle, tex, tex.aspect, 0, 1, 0, 1, false, gpu.AccessPresent)
		}

		if res := vk.EndCommandBuffer(cb.handle); res != vk.Success {
			return vkErr("vkEndCommandBuffer", res)
		}

		var waitSemaphores []vk.Semaphore
		var waitStages []vk.PipelineStageFlags
		var signalSemaphores []vk.Semaphore
		for _, present := range cb.pendingPresents {
			waitSemaphores = append(waitSemaphores, present.imageAvailable)
			waitStages = append(waitStages, vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit))
			signalSemaphores = append(signalSemaphores, present.renderFinished)
		}

		submitInfo := vk.SubmitInfo{
			SType:                vk.StructureTypeSubmitInfo,
			WaitSemaphoreCount:   uint32(len(waitSemaphores)),
			PWaitSemaphores:      waitSemaphores,
			PWaitDstStageMask:    waitStages,
			CommandBufferCount:   1,
			PCommandBuffers:      []vk.CommandBuffer{cb.handle},
			SignalSemaphoreCount: uint32(len(signalSemaphores)),
			PSignalSemaphores:    signalSemaphores,
		}
		if res := vk.QueueSubmit(d.graphicsQueue, 1, []vk.SubmitInfo{submitInfo}, cb.fence); res != vk.Success {
			return vkErr("vkQueueSubmit", res)
		}
		cb.state = commandBufferSubmitted
		d.submitted = append(d.submitted, cb)

		for _, present := range cb.pendingPresents {
			d.presentOne(present)
		}
	}

	d.sweepSubmitted()
	d.sweepDisposeQueues()
	return nil
}

// presentOne issues vkQueuePresentKHR for one present intent, recreating
// the swapchain on OUT_OF_DATE/SUBOPTIMAL rather than treating it as a
// fatal error, per spec §4.11.
func (d *Device) presentOne(present trackedPresent) {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{present.renderFinished},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{present.swapchain.handle},
		PImageIndices:      []uint32{present.imageIndex},
	}
	result := vk.QueuePresent(d.graphicsQueue, &presentInfo)
	if result == vk.ErrorOutOfDate || result == vk.Suboptimal {
		recreated, err := d.recreateSwapchain(present.swapchain)
		if err != nil {
			core.LogError("presentOne: swapchain recreate failed: %v", err)
			return
		}
		d.swapchainsMu.Lock()
		d.swapchains[present.swapchain.platform] = recreated
		d.swapchainsMu.Unlock()
		return
	}
	if result != vk.Success {
		core.LogError("presentOne: vkQueuePresentKHR failed: %s", VulkanResultString(result, true))
	}
}

// sweepSubmitted polls every submitted command buffer's fence and runs
// cleanup on whichever have signaled, per spec §4.3's cleanup contract.
// Must be called with submitMu held.
func (d *Device) sweepSubmitted() {
	live := d.submitted[:0]
	for _, cb := range d.submitted {
		status := vk.GetFenceStatus(d.logical, cb.fence)
		if status == vk.Success {
			cb.cleanup(d)
		} else {
			live = append(live, cb)
		}
	}
	d.submitted = live
}

// Wait implements gpu.Device.Wait: block until every submitted command
// buffer's fence signals, then sweep cleanup and dispose queues.
func (d *Device) Wait() {
	d.submitMu.Lock()
	defer d.submitMu.Unlock()

	if len(d.submitted) > 0 {
		fences := make([]vk.Fence, len(d.submitted))
		for i, cb := range d.submitted {
			fences[i] = cb.fence
		}
		vk.WaitForFences(d.logical, uint32(len(fences)), fences, vk.True, math.MaxUint64)
	}
	d.sweepSubmitted()
	d.sweepDisposeQueues()
}
