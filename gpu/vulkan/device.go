package vulkan

import (
	"fmt"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/google/uuid"

	"github.com/vanta-gfx/vanta/core"
	"github.com/vanta-gfx/vanta/gpu"
	"github.com/vanta-gfx/vanta/platform"
)

var _ gpu.Device = (*Device)(nil)

// Device owns every Vulkan object and cache named in the core spec: the
// instance/physical/logical device, the one graphics+compute+transfer
// queue, the per-memory-type suballocators (C1), the dispose queues
// (C13), the descriptor and uniform machinery (C4-C7), the render-pass
// caches (C8), the swapchains (C9), and the submission lock (C11). No
// package-level mutable state exists outside of it, per spec §9.
type Device struct {
	instance       vk.Instance
	physical       vk.PhysicalDevice
	logical        vk.Device
	allocCallbacks *vk.AllocationCallbacks

	graphicsQueueIndex uint32
	graphicsQueue      vk.Queue

	properties vk.PhysicalDeviceProperties
	memoryProps vk.PhysicalDeviceMemoryProperties

	config core.DeviceConfig

	suballocatorsMu sync.Mutex
	suballocators   map[uint32]*SubAllocator

	dispose disposeQueues

	descriptorLayouts *descriptorLayoutCache
	pipelineLayouts   *pipelineLayoutCache

	emptySetPool vk.DescriptorPool
	emptySet     vk.DescriptorSet

	uniformPools [3]*UniformBufferPool // indexed by gpu.ShaderStage

	renderPasses  *renderPassCache
	framebuffers  *framebufferCache
	renderTargets *renderTargetCache

	commandPoolsMu sync.Mutex
	commandPools   map[uint64]*CommandPool
	acquireMu      sync.Mutex

	submitMu  sync.Mutex
	submitted []*CommandBuffer

	transferPool *TransferBufferPool

	swapchainsMu sync.Mutex
	swapchains   map[*platform.Platform]*Swapchain

	debugUtilsEnabled bool

	locks *VulkanLockPool
}

// NewDevice brings up the instance, surface-capable physical device,
// and logical device against plat's window, then wires every cache.
// Grounded on the teacher's VulkanRenderer.Initialize (backend.go) and
// DeviceCreate/SelectPhysicalDevice (device.go).
func NewDevice(plat *platform.Platform, cfg core.DeviceConfig, appName string) (*Device, error) {
	core.SetVerbose(cfg.Verbose)

	d := &Device{
		config:        cfg,
		suballocators: make(map[uint32]*SubAllocator),
		commandPools:  make(map[uint64]*CommandPool),
		swapchains:    make(map[*platform.Platform]*Swapchain),
		locks:         NewVulkanLockPool(),
	}

	if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return nil, fmt.Errorf("vulkan loader: %w", err)
	}
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("vulkan init: %w", err)
	}

	if err := d.createInstance(appName, cfg.ValidationLayers); err != nil {
		return nil, err
	}

	surfaceHandle, err := plat.CreateWindowSurface(uintptr(unsafe.Pointer(d.instance)))
	if err != nil {
		return nil, fmt.Errorf("create window surface: %w", err)
	}
	surface := vk.SurfaceFromPointer(surfaceHandle)

	if err := d.selectPhysicalDevice(surface); err != nil {
		return nil, err
	}
	if err := d.createLogicalDevice(); err != nil {
		return nil, err
	}

	d.descriptorLayouts = newDescriptorLayoutCache()
	d.pipelineLayouts = newPipelineLayoutCache()
	d.renderPasses = newRenderPassCache()
	d.framebuffers = newFramebufferCache()
	d.renderTargets = newRenderTargetCache()
	d.transferPool = newTransferBufferPool(d)

	for stage := range d.uniformPools {
		d.uniformPools[stage] = newUniformBufferPool(d, gpu.ShaderStage(stage), cfg.UniformPoolInitialSets)
	}

	if err := d.initEmptySet(); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *Device) createInstance(appName string, validation bool) error {
	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   VulkanSafeString(appName),
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        VulkanSafeString("vanta"),
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.ApiVersion11,
	}

	extensions := vk.GetRequiredInstanceExtensions()
	if validation {
		extensions = append(extensions, vk.ExtDebugReportExtensionName, vk.ExtDebugUtilsExtensionName+"\x00")
		d.debugUtilsEnabled = true
	}

	var layers []string
	if validation {
		layers = []string{"VK_LAYER_KHRONOS_validation\x00"}
		if !d.validationLayersAvailable(layers) {
			core.LogWarn("validation layers requested but not available, continuing without them")
			layers = nil
			d.debugUtilsEnabled = false
		}
	}

	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensions),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, d.allocCallbacks, &instance); res != vk.Success {
		return fmt.Errorf("vkCreateInstance: %s", VulkanResultString(res, true))
	}
	d.instance = instance
	vk.InitInstance(instance)
	return nil
}

func (d *Device) validationLayersAvailable(want []string) bool {
	var count uint32
	vk.EnumerateInstanceLayerProperties(&count, nil)
	if count == 0 {
		return false
	}
	have := make([]vk.LayerProperties, count)
	vk.EnumerateInstanceLayerProperties(&count, have)
	for _, w := range want {
		found := false
		for i := range have {
			have[i].Deref()
			end := FindFirstZeroInByteArray(have[i].LayerName[:])
			if vk.ToString(have[i].LayerName[:end+1])+"\x00" == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// selectPhysicalDevice prefers a discrete GPU whose queue families
// cover graphics, present, and transfer in one family, per
// SPEC_FULL §4.14 and spec.md's single-queue Non-goal.
func (d *Device) selectPhysicalDevice(surface vk.Surface) error {
	var count uint32
	vk.EnumeratePhysicalDevices(d.instance, &count, nil)
	if count == 0 {
		return fmt.Errorf("no Vulkan-capable physical devices found")
	}
	devices := make([]vk.PhysicalDevice, count)
	vk.EnumeratePhysicalDevices(d.instance, &count, devices)

	var best vk.PhysicalDevice
	var bestQueueFamily uint32
	bestScore := -1

	for _, pd := range devices {
		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(pd, &props)
		props.Deref()

		var familyCount uint32
		vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, nil)
		families := make([]vk.QueueFamilyProperties, familyCount)
		vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, families)

		for i := uint32(0); i < familyCount; i++ {
			families[i].Deref()
			flags := vk.QueueFlagBits(families[i].QueueFlags)
			if flags&vk.QueueGraphicsBit == 0 || flags&vk.QueueComputeBit == 0 || flags&vk.QueueTransferBit == 0 {
				continue
			}
			var presentSupport vk.Bool32
			vk.GetPhysicalDeviceSurfaceSupport(pd, i, surface, &presentSupport)
			if presentSupport == vk.False {
				continue
			}

			score := 1
			if props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
				score = 2
			}
			if score > bestScore {
				bestScore = score
				best = pd
				bestQueueFamily = i
				d.properties = props
			}
		}
	}

	if bestScore < 0 {
		return fmt.Errorf("no physical device exposes a combined graphics/compute/transfer/present queue family")
	}

	d.physical = best
	d.graphicsQueueIndex = bestQueueFamily
	vk.GetPhysicalDeviceMemoryProperties(d.physical, &d.memoryProps)
	d.memoryProps.Deref()
	core.LogInfo("selected physical device %q", vk.ToString(d.properties.DeviceName[:]))
	return nil
}

func (d *Device) createLogicalDevice() error {
	priority := float32(1.0)
	queueCreateInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: d.graphicsQueueIndex,
		QueueCount:       1,
		PQueuePriorities: []float32{priority},
	}

	features := vk.PhysicalDeviceFeatures{
		SamplerAnisotropy: vk.True,
	}

	extensions := []string{vk.KhrSwapchainExtensionName}

	createInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    1,
		PQueueCreateInfos:       []vk.DeviceQueueCreateInfo{queueCreateInfo},
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{features},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensions),
	}

	if err := d.locks.SafeCall(DeviceManagement, func() error {
		var logical vk.Device
		if res := vk.CreateDevice(d.physical, &createInfo, d.allocCallbacks, &logical); res != vk.Success {
			return fmt.Errorf("vkCreateDevice: %s", VulkanResultString(res, true))
		}
		d.logical = logical
		vk.InitDevice(logical)
		return nil
	}); err != nil {
		return err
	}

	return d.locks.SafeCall(QueueManagement, func() error {
		var queue vk.Queue
		vk.GetDeviceQueue(d.logical, d.graphicsQueueIndex, 0, &queue)
		d.graphicsQueue = queue
		return nil
	})
}

// findMemoryIndex mirrors the teacher's VulkanContext.FindMemoryIndex
// (context.go), kept as a Device method since there is no separate
// context object in this design.
func (d *Device) findMemoryIndex(typeFilter, propertyFlags uint32) int32 {
	for i := uint32(0); i < d.memoryProps.MemoryTypeCount; i++ {
		d.memoryProps.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && (uint32(d.memoryProps.MemoryTypes[i].PropertyFlags)&propertyFlags) == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("findMemoryIndex: no memory type satisfies filter %#x flags %#x", typeFilter, propertyFlags)
	return -1
}

func (d *Device) isMemoryTypeHostVisible(memoryTypeIndex uint32) bool {
	d.memoryProps.MemoryTypes[memoryTypeIndex].Deref()
	return vk.MemoryPropertyFlagBits(d.memoryProps.MemoryTypes[memoryTypeIndex].PropertyFlags)&vk.MemoryPropertyHostVisibleBit != 0
}

// suballocatorFor lazily creates the per-memory-type SubAllocator (C1),
// binding its raw allocate/free callbacks to this live device.
func (d *Device) suballocatorFor(memoryTypeIndex uint32, forceHostVisible bool) *SubAllocator {
	d.suballocatorsMu.Lock()
	defer d.suballocatorsMu.Unlock()

	if a, ok := d.suballocators[memoryTypeIndex]; ok {
		return a
	}

	hostVisible := forceHostVisible || d.isMemoryTypeHostVisible(memoryTypeIndex)
	initialBlockSize := uint64(d.config.SuballocatorBlockMB) * 1024 * 1024
	a := NewSubAllocator(memoryTypeIndex, hostVisible, initialBlockSize, func(size uint64, typeIndex uint32) (vk.DeviceMemory, []byte, error) {
		allocInfo := vk.MemoryAllocateInfo{
			SType:           vk.StructureTypeMemoryAllocateInfo,
			AllocationSize:  vk.DeviceSize(size),
			MemoryTypeIndex: typeIndex,
		}
		var memory vk.DeviceMemory
		if res := vk.AllocateMemory(d.logical, &allocInfo, d.allocCallbacks, &memory); res != vk.Success {
			return nil, nil, fmt.Errorf("vkAllocateMemory: %s", VulkanResultString(res, true))
		}
		var mapped []byte
		if hostVisible {
			var ptr unsafe.Pointer
			if res := vk.MapMemory(d.logical, memory, 0, vk.DeviceSize(size), 0, &ptr); res != vk.Success {
				vk.FreeMemory(d.logical, memory, d.allocCallbacks)
				return nil, nil, fmt.Errorf("vkMapMemory: %s", VulkanResultString(res, true))
			}
			mapped = unsafe.Slice((*byte)(ptr), size)
		}
		return memory, mapped, nil
	}, func(memory vk.DeviceMemory) {
		vk.FreeMemory(d.logical, memory, d.allocCallbacks)
	})

	d.suballocators[memoryTypeIndex] = a
	return a
}

// stampDebugName returns a tag for a Vulkan object (name, or a short
// UUID-derived tag when name is empty) and, when VK_EXT_debug_utils is
// enabled, sets it as the object's name for validation-layer correlation
// (C19). Without the extension it only returns the tag.
func (d *Device) stampDebugName(handle uint64, objectType vk.ObjectType, name string) string {
	tag := name
	if tag == "" {
		tag = uuid.NewString()[:8]
	}
	if !d.debugUtilsEnabled || handle == 0 {
		return tag
	}
	info := vk.DebugUtilsObjectNameInfoEXT{
		SType:        vk.StructureTypeDebugUtilsObjectNameInfoExt,
		ObjectType:   objectType,
		ObjectHandle: handle,
		PObjectName:  VulkanSafeString(tag),
	}
	vk.SetDebugUtilsObjectNameEXT(d.logical, &info)
	return tag
}

// Destroy tears the device down in reverse dependency order: wait for
// the GPU, then release swapchains, pools, caches, and finally the
// logical device and instance.
func (d *Device) Destroy() {
	d.Wait()

	d.swapchainsMu.Lock()
	for _, sc := range d.swapchains {
		sc.destroy(d)
	}
	d.swapchainsMu.Unlock()

	d.renderTargets.destroyAll(d)
	d.framebuffers.destroyAll(d)
	d.renderPasses.destroyAll(d)

	for _, pool := range d.uniformPools {
		if pool != nil {
			pool.destroyAll(d)
		}
	}
	d.transferPool.destroyAll()

	if d.emptySetPool != nil {
		vk.DestroyDescriptorPool(d.logical, d.emptySetPool, d.allocCallbacks)
	}
	d.pipelineLayouts.destroyAll(d)
	d.descriptorLayouts.destroyAll(d)

	d.commandPoolsMu.Lock()
	for _, cp := range d.commandPools {
		cp.destroy(d)
	}
	d.commandPoolsMu.Unlock()

	d.sweepDisposeQueues()

	d.suballocatorsMu.Lock()
	for _, a := range d.suballocators {
		for _, block := range a.blocks {
			a.freeRaw(block.Handle)
		}
	}
	d.suballocatorsMu.Unlock()

	if d.logical != nil {
		vk.DeviceWaitIdle(d.logical)
		d.locks.SafeCall(DeviceManagement, func() error {
			vk.DestroyDevice(d.logical, d.allocCallbacks)
			return nil
		})
	}
	if d.instance != nil {
		d.locks.SafeCall(InstanceManagement, func() error {
			vk.DestroyInstance(d.instance, d.allocCallbacks)
			return nil
		})
	}
}
