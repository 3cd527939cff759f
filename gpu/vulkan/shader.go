package vulkan

import (
	"sync/atomic"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/vanta-gfx/vanta/core"
	"github.com/vanta-gfx/vanta/gpu"
)

// ShaderModule wraps a VkShaderModule plus the binding-count metadata
// the pipeline layer needs without inspecting bytecode (spec §6:
// "shader bytecode is consumed opaquely").
type ShaderModule struct {
	handle                vk.ShaderModule
	stage                 gpu.ShaderStage
	entryPoint            string
	samplerCount          uint32
	uniformBufferCount    uint32
	storageBufferCount    uint32
	storageTextureCount   uint32
	uniformBlockSizeBytes uint32
	refcount              atomic.Int32
}

func (m *ShaderModule) Retain()      { m.refcount.Add(1) }
func (m *ShaderModule) Release() int32  { return m.refcount.Add(-1) }
func (m *ShaderModule) RefCount() int32 { return m.refcount.Load() }

func toVkShaderStage(s gpu.ShaderStage) vk.ShaderStageFlagBits {
	switch s {
	case gpu.ShaderStageFragment:
		return vk.ShaderStageFragmentBit
	case gpu.ShaderStageCompute:
		return vk.ShaderStageComputeBit
	default:
		return vk.ShaderStageVertexBit
	}
}

// CreateShaderModule implements gpu.Device.CreateShaderModule. The
// SPIR-V blob is opaque here; code length must be a multiple of 4 as
// required by VkShaderModuleCreateInfo.
func (d *Device) CreateShaderModule(info gpu.ShaderCreateInfo) *gpu.ShaderModule {
	if len(info.Code) == 0 || len(info.Code)%4 != 0 {
		core.LogError("CreateShaderModule %q: bytecode length %d is not a multiple of 4", info.DebugName, len(info.Code))
		return nil
	}

	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(info.Code)),
		PCode:    (*uint32)(unsafe.Pointer(&info.Code[0])),
	}

	var handle vk.ShaderModule
	if res := vk.CreateShaderModule(d.logical, &createInfo, d.allocCallbacks, &handle); res != vk.Success {
		core.LogError("CreateShaderModule %q: vkCreateShaderModule failed: %s", info.DebugName, VulkanResultString(res, true))
		return nil
	}

	entry := info.EntryPoint
	if entry == "" {
		entry = "main"
	}

	d.stampDebugName(uint64(handle), vk.ObjectTypeShaderModule, info.DebugName)
	return gpu.NewShaderModule(&ShaderModule{
		handle:                handle,
		stage:                 info.Stage,
		entryPoint:            entry,
		samplerCount:          info.SamplerCount,
		uniformBufferCount:    info.UniformBufferCount,
		storageBufferCount:    info.StorageBufferCount,
		storageTextureCount:   info.StorageTextureCount,
		uniformBlockSizeBytes: info.UniformBlockSizeBytes,
	})
}

func (d *Device) destroyShaderModuleNow(m *ShaderModule) {
	vk.DestroyShaderModule(d.logical, m.handle, d.allocCallbacks)
}

func (d *Device) QueueDestroyShaderModule(handle *gpu.ShaderModule) {
	if handle == nil {
		return
	}
	d.dispose.queueShaderModule(handle.Backend().(*ShaderModule))
}

func (m *ShaderModule) stageCreateInfo() vk.PipelineShaderStageCreateInfo {
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  toVkShaderStage(m.stage),
		Module: m.handle,
		PName:  VulkanSafeString(m.entryPoint),
	}
}
