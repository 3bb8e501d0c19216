package vulkan

import (
	"math"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

type VulkanSwapchain struct {
	ImageFormat vk.SurfaceFormat
	Handle      vk.Swapchain
	Extent      vk.Extent2D
	Images      []vk.Image
	Views       []gpu.ImageView
}

type VulkanSwapchainSupportInfo struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

// preferredFormats is searched in order before falling back to whatever the
// surface lists first.
var preferredFormats = []vk.Format{vk.FormatB8g8r8a8Srgb, vk.FormatB8g8r8a8Unorm}

func chooseSurfaceFormat(formats []vk.SurfaceFormat) vk.SurfaceFormat {
	for _, want := range preferredFormats {
		for _, f := range formats {
			if f.Format == want && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
				return f
			}
		}
	}
	return formats[0]
}

func choosePresentMode(modes []vk.PresentMode, vsync bool) vk.PresentMode {
	if vsync {
		return vk.PresentModeFifo
	}
	for _, mode := range modes {
		if mode == vk.PresentModeMailbox {
			return mode
		}
	}
	return vk.PresentModeFifo
}

func SwapchainCreate(context *VulkanContext, width, height uint32, vsync bool, old vk.Swapchain) (*VulkanSwapchain, error) {
	device := context.Device
	if err := DeviceQuerySwapchainSupport(device.PhysicalDevice, context.Surface, &device.SwapchainSupport); err != nil {
		return nil, err
	}
	support := device.SwapchainSupport
	swapchain := &VulkanSwapchain{ImageFormat: chooseSurfaceFormat(support.Formats)}

	extent := vk.Extent2D{Width: width, Height: height}
	if support.Capabilities.CurrentExtent.Width != math.MaxUint32 {
		extent = support.Capabilities.CurrentExtent
	}
	// Clamp to the value allowed by the GPU.
	lo, hi := support.Capabilities.MinImageExtent, support.Capabilities.MaxImageExtent
	extent.Width = clamp(extent.Width, lo.Width, hi.Width)
	extent.Height = clamp(extent.Height, lo.Height, hi.Height)
	swapchain.Extent = extent

	imageCount := support.Capabilities.MinImageCount + 1
	if support.Capabilities.MaxImageCount > 0 && imageCount > support.Capabilities.MaxImageCount {
		imageCount = support.Capabilities.MaxImageCount
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      swapchain.ImageFormat.Format,
		ImageColorSpace:  swapchain.ImageFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit) | vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     support.Capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      choosePresentMode(support.PresentModes, vsync),
		Clipped:          vk.True,
		OldSwapchain:     old,
	}
	if device.GraphicsQueueIndex != device.PresentQueueIndex {
		createInfo.ImageSharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = 2
		createInfo.PQueueFamilyIndices = []uint32{device.GraphicsQueueIndex, device.PresentQueueIndex}
	}

	if err := check("vkCreateSwapchain", vk.CreateSwapchain(context.logical(), &createInfo, context.Allocator, &swapchain.Handle)); err != nil {
		return nil, err
	}

	var count uint32
	if err := check("vkGetSwapchainImages", vk.GetSwapchainImages(context.logical(), swapchain.Handle, &count, nil)); err != nil {
		return nil, err
	}
	swapchain.Images = make([]vk.Image, count)
	if err := check("vkGetSwapchainImages", vk.GetSwapchainImages(context.logical(), swapchain.Handle, &count, swapchain.Images)); err != nil {
		return nil, err
	}

	for _, image := range swapchain.Images {
		viewInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    image,
			ViewType: vk.ImageViewType2d,
			Format:   swapchain.ImageFormat.Format,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		}
		var view vk.ImageView
		if err := check("vkCreateImageView", vk.CreateImageView(context.logical(), &viewInfo, context.Allocator, &view)); err != nil {
			swapchain.Destroy(context)
			return nil, err
		}
		swapchain.Views = append(swapchain.Views, gpu.ImageView(context.views.add(&vulkanImageView{handle: view, swapchain: true})))
	}

	core.LogInfo("Swapchain created successfully: %dx%d, %d images.", extent.Width, extent.Height, count)
	return swapchain, nil
}

// Destroy releases the views. The images belong to the swapchain and go with it.
func (vs *VulkanSwapchain) Destroy(context *VulkanContext) {
	for _, v := range vs.Views {
		if view := context.views.remove(uint64(v)); view != nil {
			vk.DestroyImageView(context.logical(), view.handle, context.Allocator)
		}
	}
	vs.Views = nil
	if vs.Handle != vk.NullSwapchain {
		vk.DestroySwapchain(context.logical(), vs.Handle, context.Allocator)
		vs.Handle = vk.NullSwapchain
	}
}

func (vs *VulkanSwapchain) AcquireNextImageIndex(context *VulkanContext, timeoutNS uint64, imageAvailable vk.Semaphore) (uint32, error) {
	var index uint32
	result := vk.AcquireNextImage(context.logical(), vs.Handle, timeoutNS, imageAvailable, vk.NullFence, &index)
	switch result {
	case vk.Success, vk.Suboptimal:
		return index, nil
	case vk.ErrorOutOfDate:
		return 0, gpu.ErrSwapchainOutOfDate
	}
	return 0, check("vkAcquireNextImage", result)
}

func (vs *VulkanSwapchain) Present(context *VulkanContext, renderComplete vk.Semaphore, imageIndex uint32) error {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{renderComplete},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{vs.Handle},
		PImageIndices:      []uint32{imageIndex},
	}
	device := context.Device
	var result vk.Result
	_ = context.locks.SafeQueueCall(device.PresentQueueIndex, func() error {
		result = vk.QueuePresent(device.PresentQueue, &presentInfo)
		return nil
	})
	switch result {
	case vk.Success:
		return nil
	case vk.ErrorOutOfDate, vk.Suboptimal:
		return gpu.ErrSwapchainOutOfDate
	}
	return check("vkQueuePresent", result)
}
