package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/core"
)

const portabilitySubset = "VK_KHR_portability_subset"

type VulkanDevice struct {
	PhysicalDevice     vk.PhysicalDevice
	LogicalDevice      vk.Device
	SwapchainSupport   VulkanSwapchainSupportInfo
	GraphicsQueueIndex uint32
	PresentQueueIndex  uint32
	TransferQueueIndex uint32

	GraphicsQueue vk.Queue
	PresentQueue  vk.Queue
	TransferQueue vk.Queue

	GraphicsCommandPool vk.CommandPool
	DescriptorPool      vk.DescriptorPool

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties
}

type VulkanPhysicalDeviceRequirements struct {
	Graphics             bool
	Present              bool
	Transfer             bool
	DeviceExtensionNames []string
	SamplerAnisotropy    bool
	DiscreteGPU          bool
}

type VulkanPhysicalDeviceQueueFamilyInfo struct {
	GraphicsFamilyIndex int
	PresentFamilyIndex  int
	TransferFamilyIndex int
}

// descriptorPoolSizes bounds what a single frame graph can allocate. The
// bindless texture array dominates the image sampler count.
var descriptorPoolSizes = []vk.DescriptorPoolSize{
	{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 256},
	{Type: vk.DescriptorTypeStorageBuffer, DescriptorCount: 256},
	{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: 8192},
}

const descriptorPoolMaxSets = 512

func DeviceCreate(context *VulkanContext) error {
	device, err := selectPhysicalDevice(context)
	if err != nil {
		return err
	}
	context.Device = device

	core.LogInfo("Creating logical device...")

	// Do not create additional queues for shared indices.
	indices := []uint32{device.GraphicsQueueIndex}
	if device.PresentQueueIndex != device.GraphicsQueueIndex {
		indices = append(indices, device.PresentQueueIndex)
	}
	if device.TransferQueueIndex != device.GraphicsQueueIndex && device.TransferQueueIndex != device.PresentQueueIndex {
		indices = append(indices, device.TransferQueueIndex)
	}
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i, index := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: index,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	deviceFeatures := vk.PhysicalDeviceFeatures{
		SamplerAnisotropy: device.Features.SamplerAnisotropy,
		GeometryShader:    device.Features.GeometryShader,
	}

	extensionNames := []string{vk.KhrSwapchainExtensionName}
	if hasDeviceExtension(device.PhysicalDevice, portabilitySubset) {
		core.LogInfo("Adding required extension '%s'.", portabilitySubset)
		extensionNames = append(extensionNames, portabilitySubset)
	}

	// The scene textures are one runtime sized array indexed per instance.
	indexing := vk.PhysicalDeviceVulkan12Features{
		SType:                                     vk.StructureTypePhysicalDeviceVulkan12Features,
		DescriptorIndexing:                        vk.True,
		ShaderSampledImageArrayNonUniformIndexing: vk.True,
		RuntimeDescriptorArray:                    vk.True,
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		PNext:                   unsafe.Pointer(&indexing),
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}

	var logical vk.Device
	if err := check("vkCreateDevice", vk.CreateDevice(device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &logical)); err != nil {
		return err
	}
	device.LogicalDevice = logical
	core.LogInfo("Logical device created.")

	vk.GetDeviceQueue(logical, device.GraphicsQueueIndex, 0, &device.GraphicsQueue)
	vk.GetDeviceQueue(logical, device.PresentQueueIndex, 0, &device.PresentQueue)
	vk.GetDeviceQueue(logical, device.TransferQueueIndex, 0, &device.TransferQueue)
	core.LogInfo("Queues obtained.")

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: device.GraphicsQueueIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	if err := check("vkCreateCommandPool", vk.CreateCommandPool(logical, &poolCreateInfo, context.Allocator, &device.GraphicsCommandPool)); err != nil {
		return err
	}
	core.LogInfo("Graphics command pool created.")

	descriptorPoolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       descriptorPoolMaxSets,
		PoolSizeCount: uint32(len(descriptorPoolSizes)),
		PPoolSizes:    descriptorPoolSizes,
	}
	if err := check("vkCreateDescriptorPool", vk.CreateDescriptorPool(logical, &descriptorPoolInfo, context.Allocator, &device.DescriptorPool)); err != nil {
		return err
	}
	return nil
}

func DeviceDestroy(context *VulkanContext) {
	device := context.Device
	if device == nil {
		return
	}
	device.GraphicsQueue = nil
	device.PresentQueue = nil
	device.TransferQueue = nil

	if device.DescriptorPool != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(device.LogicalDevice, device.DescriptorPool, context.Allocator)
		device.DescriptorPool = vk.NullDescriptorPool
	}

	core.LogInfo("Destroying command pools...")
	if device.GraphicsCommandPool != vk.NullCommandPool {
		vk.DestroyCommandPool(device.LogicalDevice, device.GraphicsCommandPool, context.Allocator)
		device.GraphicsCommandPool = vk.NullCommandPool
	}

	core.LogInfo("Destroying logical device...")
	if device.LogicalDevice != nil {
		vk.DestroyDevice(device.LogicalDevice, context.Allocator)
		device.LogicalDevice = nil
	}
	// Physical devices are not destroyed.
	device.PhysicalDevice = nil
	device.SwapchainSupport = VulkanSwapchainSupportInfo{}
}

// FindMemoryIndex returns the first memory type allowed by typeBits that has
// every requested property.
func (d *VulkanDevice) FindMemoryIndex(typeBits uint32, properties vk.MemoryPropertyFlags) (uint32, error) {
	d.Memory.Deref()
	for i := uint32(0); i < d.Memory.MemoryTypeCount; i++ {
		memoryType := d.Memory.MemoryTypes[i]
		memoryType.Deref()
		if typeBits&(1<<i) != 0 && memoryType.PropertyFlags&properties == properties {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no memory type for bits 0x%x with properties 0x%x", typeBits, uint32(properties))
}

func DeviceQuerySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface, supportInfo *VulkanSwapchainSupportInfo) error {
	if err := check("vkGetPhysicalDeviceSurfaceCapabilities", vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &supportInfo.Capabilities)); err != nil {
		return err
	}
	supportInfo.Capabilities.Deref()
	supportInfo.Capabilities.CurrentExtent.Deref()
	supportInfo.Capabilities.MinImageExtent.Deref()
	supportInfo.Capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	if err := check("vkGetPhysicalDeviceSurfaceFormats", vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, nil)); err != nil {
		return err
	}
	supportInfo.Formats = make([]vk.SurfaceFormat, formatCount)
	if formatCount > 0 {
		if err := check("vkGetPhysicalDeviceSurfaceFormats", vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, supportInfo.Formats)); err != nil {
			return err
		}
		for i := range supportInfo.Formats {
			supportInfo.Formats[i].Deref()
		}
	}

	var modeCount uint32
	if err := check("vkGetPhysicalDeviceSurfacePresentModes", vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &modeCount, nil)); err != nil {
		return err
	}
	supportInfo.PresentModes = make([]vk.PresentMode, modeCount)
	if modeCount > 0 {
		if err := check("vkGetPhysicalDeviceSurfacePresentModes", vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &modeCount, supportInfo.PresentModes)); err != nil {
			return err
		}
	}
	return nil
}

func selectPhysicalDevice(context *VulkanContext) (*VulkanDevice, error) {
	var count uint32
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(context.Instance, &count, nil)); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, fmt.Errorf("no devices which support Vulkan were found")
	}
	physicalDevices := make([]vk.PhysicalDevice, count)
	if err := check("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(context.Instance, &count, physicalDevices)); err != nil {
		return nil, err
	}

	requirements := VulkanPhysicalDeviceRequirements{
		Graphics:             true,
		Present:              true,
		Transfer:             true,
		SamplerAnisotropy:    true,
		DiscreteGPU:          true,
		DeviceExtensionNames: []string{vk.KhrSwapchainExtensionName},
	}
	if runtime.GOOS == "darwin" {
		requirements.DiscreteGPU = false
	}

	// A discrete GPU is preferred; fall back to anything that fits otherwise.
	for _, discrete := range []bool{requirements.DiscreteGPU, false} {
		requirements.DiscreteGPU = discrete
		for _, pd := range physicalDevices {
			device := &VulkanDevice{PhysicalDevice: pd}
			vk.GetPhysicalDeviceProperties(pd, &device.Properties)
			device.Properties.Deref()
			vk.GetPhysicalDeviceFeatures(pd, &device.Features)
			device.Features.Deref()
			vk.GetPhysicalDeviceMemoryProperties(pd, &device.Memory)
			device.Memory.Deref()

			queueInfo, ok := PhysicalDeviceMeetsRequirements(pd, context.Surface, device, &requirements)
			if !ok {
				continue
			}
			device.GraphicsQueueIndex = uint32(queueInfo.GraphicsFamilyIndex)
			device.PresentQueueIndex = uint32(queueInfo.PresentFamilyIndex)
			device.TransferQueueIndex = uint32(queueInfo.TransferFamilyIndex)
			logDevice(device)
			return device, nil
		}
	}
	return nil, fmt.Errorf("no physical devices were found which meet the requirements")
}

func logDevice(device *VulkanDevice) {
	properties := device.Properties
	core.LogInfo("Selected device: '%s'.", cString(properties.DeviceName[:]))
	switch properties.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		core.LogInfo("GPU type is Integrated.")
	case vk.PhysicalDeviceTypeDiscreteGpu:
		core.LogInfo("GPU type is Discrete.")
	case vk.PhysicalDeviceTypeVirtualGpu:
		core.LogInfo("GPU type is Virtual.")
	case vk.PhysicalDeviceTypeCpu:
		core.LogInfo("GPU type is CPU.")
	default:
		core.LogInfo("GPU type is Unknown.")
	}
	core.LogInfo("GPU Driver version: %d.%d.%d",
		vk.Version(properties.DriverVersion).Major(),
		vk.Version(properties.DriverVersion).Minor(),
		vk.Version(properties.DriverVersion).Patch())
	core.LogInfo("Vulkan API version: %d.%d.%d",
		vk.Version(properties.ApiVersion).Major(),
		vk.Version(properties.ApiVersion).Minor(),
		vk.Version(properties.ApiVersion).Patch())

	for j := uint32(0); j < device.Memory.MemoryHeapCount; j++ {
		heap := device.Memory.MemoryHeaps[j]
		heap.Deref()
		gib := float64(heap.Size) / 1024.0 / 1024.0 / 1024.0
		if vk.MemoryHeapFlagBits(heap.Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", gib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", gib)
		}
	}
}

func PhysicalDeviceMeetsRequirements(pd vk.PhysicalDevice, surface vk.Surface, device *VulkanDevice, requirements *VulkanPhysicalDeviceRequirements) (VulkanPhysicalDeviceQueueFamilyInfo, bool) {
	info := VulkanPhysicalDeviceQueueFamilyInfo{GraphicsFamilyIndex: -1, PresentFamilyIndex: -1, TransferFamilyIndex: -1}
	name := cString(device.Properties.DeviceName[:])

	if requirements.DiscreteGPU && device.Properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
		core.LogInfo("Device '%s' is not a discrete GPU, and one is required. Skipping.", name)
		return info, false
	}

	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, nil)
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, families)

	minTransferScore := 255
	for i := range families {
		families[i].Deref()
		flags := vk.QueueFlagBits(families[i].QueueFlags)
		score := 0
		if flags&vk.QueueGraphicsBit != 0 {
			if info.GraphicsFamilyIndex < 0 {
				info.GraphicsFamilyIndex = i
			}
			score++
		}
		if flags&vk.QueueComputeBit != 0 {
			score++
		}
		// The lowest score is the most likely to be a dedicated transfer queue.
		if flags&vk.QueueTransferBit != 0 && score <= minTransferScore {
			minTransferScore = score
			info.TransferFamilyIndex = i
		}

		var supportsPresent vk.Bool32
		if err := check("vkGetPhysicalDeviceSurfaceSupport", vk.GetPhysicalDeviceSurfaceSupport(pd, uint32(i), surface, &supportsPresent)); err != nil {
			return info, false
		}
		if supportsPresent == vk.True && (info.PresentFamilyIndex < 0 || i == info.GraphicsFamilyIndex) {
			info.PresentFamilyIndex = i
		}
	}
	// Graphics queues can always transfer.
	if info.TransferFamilyIndex < 0 {
		info.TransferFamilyIndex = info.GraphicsFamilyIndex
	}

	core.LogInfo("Graphics | Present | Transfer | Name")
	core.LogInfo("%8d | %7d | %8d | %s", info.GraphicsFamilyIndex, info.PresentFamilyIndex, info.TransferFamilyIndex, name)

	if (requirements.Graphics && info.GraphicsFamilyIndex < 0) ||
		(requirements.Present && info.PresentFamilyIndex < 0) ||
		(requirements.Transfer && info.TransferFamilyIndex < 0) {
		return info, false
	}
	core.LogInfo("Device meets queue requirements.")

	if err := DeviceQuerySwapchainSupport(pd, surface, &device.SwapchainSupport); err != nil {
		return info, false
	}
	if len(device.SwapchainSupport.Formats) < 1 || len(device.SwapchainSupport.PresentModes) < 1 {
		core.LogInfo("Required swapchain support not present, skipping device.")
		return info, false
	}

	for _, ext := range requirements.DeviceExtensionNames {
		if !hasDeviceExtension(pd, ext) {
			core.LogInfo("Required extension not found: '%s', skipping device.", ext)
			return info, false
		}
	}

	if requirements.SamplerAnisotropy && device.Features.SamplerAnisotropy == vk.False {
		core.LogInfo("Device does not support samplerAnisotropy, skipping.")
		return info, false
	}
	return info, true
}

func hasDeviceExtension(pd vk.PhysicalDevice, name string) bool {
	var count uint32
	if vk.EnumerateDeviceExtensionProperties(pd, "", &count, nil) != vk.Success || count == 0 {
		return false
	}
	available := make([]vk.ExtensionProperties, count)
	if vk.EnumerateDeviceExtensionProperties(pd, "", &count, available) != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		if cString(available[i].ExtensionName[:]) == name {
			return true
		}
	}
	return false
}
