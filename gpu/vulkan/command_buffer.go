package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/vanta-gfx/vanta/gpu"
)

type commandBufferState int

const (
	commandBufferInactive commandBufferState = iota
	commandBufferRecording
	commandBufferInRenderPass
	commandBufferSubmitted
)

// trackedPresent is one swapchain this command buffer's recording will
// present to, carrying the wait/signal semaphore pair the submission
// engine chains through per spec §4.4.
type trackedPresent struct {
	swapchain      *Swapchain
	imageIndex     uint32
	imageAvailable vk.Semaphore
	renderFinished vk.Semaphore
}

// CommandBuffer is a single recording surface, thread-affined to
// whichever goroutine acquired it, per spec §3's CommandBuffer entity.
// None of its tracking lists are synchronized internally — the
// single-threaded-recording contract (spec §4.3 Threading) is the
// caller's responsibility, not this type's.
type CommandBuffer struct {
	handle   vk.CommandBuffer
	fence    vk.Fence
	threadID uint64
	pool     *CommandPool

	fixed bool
	state commandBufferState

	boundGraphicsPipeline *GraphicsPipeline
	boundComputePipeline  *ComputePipeline

	boundVertexUniformBuffer   *UniformBuffer
	boundFragmentUniformBuffer *UniformBuffer
	boundComputeUniformBuffer  *UniformBuffer

	lastVertexUniformOffset   uint32
	lastFragmentUniformOffset uint32
	lastComputeUniformOffset  uint32

	boundVertexSamplerSet   vk.DescriptorSet
	boundFragmentSamplerSet vk.DescriptorSet
	boundComputeBufferSet   vk.DescriptorSet
	boundComputeTextureSet  vk.DescriptorSet

	pendingComputeBuffers  []*Buffer
	pendingComputeTextures []*Texture

	activeColorAttachments []gpu.ColorAttachmentBinding

	boundDescriptorSetReturns []descriptorSetReturn
	boundUniformBuffers       []*UniformBuffer

	usedBuffers      []*Buffer
	usedTextures     []*Texture
	usedSamplers     []*Sampler
	usedGraphics     []*GraphicsPipeline
	usedCompute      []*ComputePipeline
	usedFramebuffers []vk.Framebuffer

	pendingPresents     []trackedPresent
	pendingTransferBufs []*TransferBuffer
}

func (cb *CommandBuffer) touchBuffer(b *Buffer) {
	b.Retain()
	cb.usedBuffers = append(cb.usedBuffers, b)
}

func (cb *CommandBuffer) touchTexture(t *Texture) {
	t.Retain()
	cb.usedTextures = append(cb.usedTextures, t)
}

func (cb *CommandBuffer) touchSampler(s *Sampler) {
	s.Retain()
	cb.usedSamplers = append(cb.usedSamplers, s)
}

func (cb *CommandBuffer) touchGraphicsPipeline(p *GraphicsPipeline) {
	p.Retain()
	cb.usedGraphics = append(cb.usedGraphics, p)
}

func (cb *CommandBuffer) touchComputePipeline(p *ComputePipeline) {
	p.Retain()
	cb.usedCompute = append(cb.usedCompute, p)
}

// releaseTracked drops this command buffer's reference to every
// resource it touched during its last recording and returns borrowed
// pool objects (uniform buffers, descriptor sets, transfer buffers) to
// their owners. Called before a fixed command buffer's references are
// replaced by a fresh recording, and for every non-fixed command buffer
// on fence completion — never while the buffer's prior recording might
// still be resubmitted unchanged.
func (cb *CommandBuffer) releaseTracked() {
	for _, b := range cb.usedBuffers {
		b.Release()
	}
	for _, t := range cb.usedTextures {
		t.Release()
	}
	for _, s := range cb.usedSamplers {
		s.Release()
	}
	for _, p := range cb.usedGraphics {
		p.Release()
	}
	for _, p := range cb.usedCompute {
		p.Release()
	}
	for _, ub := range cb.boundUniformBuffers {
		ub.owner.recycle(ub)
	}
	for _, ret := range cb.boundDescriptorSetReturns {
		ret.cache.recycle(ret.set)
	}
	for _, tb := range cb.pendingTransferBufs {
		tb.owner.recycle(tb)
	}
}

// reset clears every tracking list so the buffer can be reused for a
// fresh recording. It does not touch the Vulkan handle or fence — those
// are reset by CommandPool.acquire before recording begins.
func (cb *CommandBuffer) reset() {
	cb.boundGraphicsPipeline = nil
	cb.boundComputePipeline = nil
	cb.boundVertexUniformBuffer = nil
	cb.boundFragmentUniformBuffer = nil
	cb.boundComputeUniformBuffer = nil
	cb.lastVertexUniformOffset = 0
	cb.lastFragmentUniformOffset = 0
	cb.lastComputeUniformOffset = 0
	cb.boundVertexSamplerSet = nil
	cb.boundFragmentSamplerSet = nil
	cb.boundComputeBufferSet = nil
	cb.boundComputeTextureSet = nil
	cb.pendingComputeBuffers = cb.pendingComputeBuffers[:0]
	cb.pendingComputeTextures = cb.pendingComputeTextures[:0]
	cb.activeColorAttachments = cb.activeColorAttachments[:0]
	cb.boundDescriptorSetReturns = cb.boundDescriptorSetReturns[:0]
	cb.boundUniformBuffers = cb.boundUniformBuffers[:0]
	cb.usedBuffers = cb.usedBuffers[:0]
	cb.usedTextures = cb.usedTextures[:0]
	cb.usedSamplers = cb.usedSamplers[:0]
	cb.usedGraphics = cb.usedGraphics[:0]
	cb.usedCompute = cb.usedCompute[:0]
	cb.usedFramebuffers = cb.usedFramebuffers[:0]
	cb.pendingPresents = cb.pendingPresents[:0]
	cb.pendingTransferBufs = cb.pendingTransferBufs[:0]
	cb.state = commandBufferInactive
}

// cleanup implements spec §4.3's post-signal cleanup and pushes the
// buffer back onto its pool's inactive stack. Called only from the
// device's fence-poll sweep. Dropping a reference to zero does NOT free
// the underlying Vk object here — ownership rules (spec §3, §4.10)
// require an explicit QueueDestroy* from the caller before a resource's
// refcount reaching zero actually frees anything; that freeing happens
// exclusively in sweepDisposeQueues, which checks both refcount and
// dispose-queue membership.
//
// A fixed command buffer holds its references for the buffer's
// lifetime, not per-submit (SPEC_FULL.md's resolution for re-recordable
// buffers): its recorded commands may be resubmitted unchanged any
// number of times, so the resources it references must stay pinned
// past this single fence signal. Only CommandPool.acquire, when the
// same buffer is re-recorded, releases the previous recording's
// references — this function skips that for fixed buffers entirely.
func (cb *CommandBuffer) cleanup(d *Device) {
	if !cb.fixed {
		cb.releaseTracked()
		cb.reset()
	}
	pool := cb.pool
	pool.release(cb)
}

func toGpuCommandBuffer(cb *CommandBuffer) *gpu.CommandBuffer { return gpu.NewCommandBuffer(cb) }

func fromGpuCommandBuffer(cmd *gpu.CommandBuffer) *CommandBuffer {
	if cmd == nil {
		return nil
	}
	return cmd.Backend().(*CommandBuffer)
}
