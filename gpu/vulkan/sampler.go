package vulkan

import (
	"sync/atomic"

	vk "github.com/goki/vulkan"

	"github.com/vanta-gfx/vanta/core"
	"github.com/vanta-gfx/vanta/gpu"
)

// Sampler wraps a VkSampler. CreateSampler passes MipLodBias/MaxAnisotropy through per
// SPEC_FULL §4.18, present in the original driver but summarized away
// by the distilled spec's "filter/address/compare/border" phrasing.
type Sampler struct {
	handle   vk.Sampler
	refcount atomic.Int32
}

func (s *Sampler) Retain()     { s.refcount.Add(1) }
func (s *Sampler) Release() int32 { return s.refcount.Add(-1) }
func (s *Sampler) RefCount() int32 { return s.refcount.Load() }

func toVkFilter(f gpu.Filter) vk.Filter {
	if f == gpu.FilterLinear {
		return vk.FilterLinear
	}
	return vk.FilterNearest
}

func toVkAddressMode(m gpu.SamplerAddressMode) vk.SamplerAddressMode {
	switch m {
	case gpu.SamplerAddressModeMirroredRepeat:
		return vk.SamplerAddressModeMirroredRepeat
	case gpu.SamplerAddressModeClampToEdge:
		return vk.SamplerAddressModeClampToEdge
	case gpu.SamplerAddressModeClampToBorder:
		return vk.SamplerAddressModeClampToBorder
	default:
		return vk.SamplerAddressModeRepeat
	}
}

func toVkCompareOp(op gpu.CompareOp) vk.CompareOp {
	switch op {
	case gpu.CompareOpLess:
		return vk.CompareOpLess
	case gpu.CompareOpEqual:
		return vk.CompareOpEqual
	case gpu.CompareOpLessOrEqual:
		return vk.CompareOpLessOrEqual
	case gpu.CompareOpGreater:
		return vk.CompareOpGreater
	case gpu.CompareOpNotEqual:
		return vk.CompareOpNotEqual
	case gpu.CompareOpGreaterOrEqual:
		return vk.CompareOpGreaterOrEqual
	case gpu.CompareOpAlways:
		return vk.CompareOpAlways
	default:
		return vk.CompareOpNever
	}
}

func (d *Device) CreateSampler(info gpu.SamplerCreateInfo) *gpu.Sampler {
	createInfo := vk.SamplerCreateInfo{
		SType:            vk.StructureTypeSamplerCreateInfo,
		MagFilter:        toVkFilter(info.MagFilter),
		MinFilter:        toVkFilter(info.MinFilter),
		AddressModeU:     toVkAddressMode(info.AddressModeU),
		AddressModeV:     toVkAddressMode(info.AddressModeV),
		AddressModeW:     toVkAddressMode(info.AddressModeW),
		MipLodBias:       info.MipLodBias,
		AnisotropyEnable: vk.False,
		MaxAnisotropy:    1.0,
		BorderColor:      vk.BorderColorFloatTransparentBlack,
		MinLod:           0,
		MaxLod:           vk.LodClampNone,
		MipmapMode:       vk.SamplerMipmapModeLinear,
	}
	if info.MaxAnisotropy > 0 {
		createInfo.AnisotropyEnable = vk.True
		createInfo.MaxAnisotropy = info.MaxAnisotropy
	}
	if info.CompareOp != nil {
		createInfo.CompareEnable = vk.True
		createInfo.CompareOp = toVkCompareOp(*info.CompareOp)
	}

	var handle vk.Sampler
	if res := vk.CreateSampler(d.logical, &createInfo, d.allocCallbacks, &handle); res != vk.Success {
		core.LogError("CreateSampler %q: vkCreateSampler failed: %s", info.DebugName, VulkanResultString(res, true))
		return nil
	}
	d.stampDebugName(uint64(handle), vk.ObjectTypeSampler, info.DebugName)
	return gpu.NewSampler(&Sampler{handle: handle})
}

func (d *Device) destroySamplerNow(s *Sampler) {
	vk.DestroySampler(d.logical, s.handle, d.allocCallbacks)
}

func (d *Device) QueueDestroySampler(handle *gpu.Sampler) {
	if handle == nil {
		return
	}
	d.dispose.queueSampler(handle.Backend().(*Sampler))
}
