package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// VulkanContext is the state shared by every object the backend creates.
type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface
	Device    *VulkanDevice

	debugMessenger vk.DebugReportCallback
	locks          *LockPool

	images       *table[vulkanImage]
	views        *table[vulkanImageView]
	memories     *table[vulkanMemory]
	buffers      *table[vulkanBuffer]
	samplers     *table[vulkanSampler]
	targets      *table[vulkanRenderTarget]
	framebuffers *table[vulkanFramebuffer]
	setLayouts   *table[vulkanSetLayout]
	sets         *table[vulkanDescriptorSet]
	pipelines    *table[vulkanPipeline]
}

func newContext() *VulkanContext {
	return &VulkanContext{
		locks:        NewLockPool(),
		images:       newTable[vulkanImage](256),
		views:        newTable[vulkanImageView](256),
		memories:     newTable[vulkanMemory](512),
		buffers:      newTable[vulkanBuffer](256),
		samplers:     newTable[vulkanSampler](16),
		targets:      newTable[vulkanRenderTarget](32),
		framebuffers: newTable[vulkanFramebuffer](64),
		setLayouts:   newTable[vulkanSetLayout](32),
		sets:         newTable[vulkanDescriptorSet](256),
		pipelines:    newTable[vulkanPipeline](32),
	}
}

func (c *VulkanContext) logical() vk.Device {
	return c.Device.LogicalDevice
}

func (c *VulkanContext) image(h gpu.Image) (*vulkanImage, error) {
	if v := c.images.get(uint64(h)); v != nil {
		return v, nil
	}
	return nil, handleError("image", uint64(h))
}

func (c *VulkanContext) view(h gpu.ImageView) vk.ImageView {
	if v := c.views.get(uint64(h)); v != nil {
		return v.handle
	}
	return vk.NullImageView
}

func (c *VulkanContext) buffer(h gpu.Buffer) vk.Buffer {
	if v := c.buffers.get(uint64(h)); v != nil {
		return v.handle
	}
	return vk.NullBuffer
}

func (c *VulkanContext) sampler(h gpu.Sampler) vk.Sampler {
	if v := c.samplers.get(uint64(h)); v != nil {
		return v.handle
	}
	return vk.NullSampler
}
