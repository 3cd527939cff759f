// Package gpu is the device-facing contract: applications describe
// pipelines, resources, and per-frame command streams against Device,
// and a backend (gpu/vulkan) translates those streams into GPU work.
// Package gpu itself is backend-agnostic — it holds only the shared
// vocabulary (enums, create-info structs, opaque handles) every backend
// implements against.
package gpu

import "context"

// Device is the renderer-neutral operation set a backend implements.
// Every method here corresponds to one row of the Upward operation
// table: handle-returning calls return nil on failure and record the
// reason through the hooked logger rather than returning an error,
// matching the "no exceptions" contract every backend honors.
type Device interface {
	// Resource factories.
	CreateBuffer(info BufferCreateInfo) *Buffer
	CreateTexture(info TextureCreateInfo) *Texture
	CreateShaderModule(info ShaderCreateInfo) *ShaderModule
	CreateGraphicsPipeline(info GraphicsPipelineCreateInfo) *GraphicsPipeline
	CreateComputePipeline(info ComputePipelineCreateInfo) *ComputePipeline
	CreateSampler(info SamplerCreateInfo) *Sampler

	// Upload / copy.
	SetBufferData(cmd *CommandBuffer, dst BufferRegion, data []byte)
	SetTextureData(cmd *CommandBuffer, dst TextureRegion, data []byte)
	SetTextureDataYUV(cmd *CommandBuffer, y, u, v TextureRegion, yData, uData, vData []byte)
	CopyTextureToTexture(cmd *CommandBuffer, src, dst TextureRegion, filter Filter)
	CopyTextureToBuffer(cmd *CommandBuffer, src TextureRegion, dst BufferRegion)
	GetBufferData(src BufferRegion, out []byte) error

	// Command-buffer lifecycle.
	AcquireCommandBuffer(fixed bool) *CommandBuffer
	Submit(buffers []*CommandBuffer) error
	Wait()

	// Render pass.
	BeginRenderPass(cmd *CommandBuffer, color []ColorAttachmentBinding, depthStencil *DepthStencilAttachmentBinding)
	EndRenderPass(cmd *CommandBuffer)

	// Pipeline / resource binding.
	BindGraphicsPipeline(cmd *CommandBuffer, pipeline *GraphicsPipeline)
	BindComputePipeline(cmd *CommandBuffer, pipeline *ComputePipeline)
	BindVertexBuffers(cmd *CommandBuffer, firstBinding uint32, buffers []BufferBinding)
	BindIndexBuffer(cmd *CommandBuffer, buffer BufferBinding, elementSize IndexElementSize)
	BindVertexSamplers(cmd *CommandBuffer, bindings []TextureSamplerBinding)
	BindFragmentSamplers(cmd *CommandBuffer, bindings []TextureSamplerBinding)
	BindComputeBuffers(cmd *CommandBuffer, buffers []*Buffer)
	BindComputeTextures(cmd *CommandBuffer, textures []*Texture)

	// Uniform pushes.
	PushVertexShaderUniforms(cmd *CommandBuffer, data []byte) uint32
	PushFragmentShaderUniforms(cmd *CommandBuffer, data []byte) uint32
	PushComputeShaderUniforms(cmd *CommandBuffer, data []byte) uint32

	// Draw / dispatch.
	DrawPrimitives(cmd *CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexedPrimitives(cmd *CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	DrawIndirect(cmd *CommandBuffer, buffer *Buffer, offset uint64, drawCount, stride uint32)
	DispatchCompute(cmd *CommandBuffer, groupCountX, groupCountY, groupCountZ uint32)

	// Swapchain / presentation.
	ClaimWindow(window *Window, preferred PresentMode) error
	AcquireSwapchainTexture(ctx context.Context, window *Window, cmd *CommandBuffer) *Texture
	UnclaimWindow(window *Window)

	// Deferred destruction.
	QueueDestroyBuffer(buffer *Buffer)
	QueueDestroyTexture(texture *Texture)
	QueueDestroySampler(sampler *Sampler)
	QueueDestroyShaderModule(module *ShaderModule)
	QueueDestroyGraphicsPipeline(pipeline *GraphicsPipeline)
	QueueDestroyComputePipeline(pipeline *ComputePipeline)

	// Lifecycle.
	Destroy()
}
