// Package vulkan implements the gpu device and frame driver on top of
// goki/vulkan and a GLFW window surface.
package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

// Window is the part of a GLFW window the backend needs. *glfw.Window
// satisfies it.
type Window interface {
	CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (uintptr, error)
	GetRequiredInstanceExtensions() []string
	GetFramebufferSize() (int, int)
}

type Options struct {
	AppName        string
	FramesInFlight int
	VSync          bool
	Validation     bool
}

// Backend owns the instance, surface and logical device. It implements
// gpu.Device; the swapchain side lives in its FrameDriver.
type Backend struct {
	context *VulkanContext
	driver  *FrameDriver
	opts    Options
}

var _ gpu.Device = (*Backend)(nil)

func New(window Window, opts Options) (*Backend, error) {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return nil, fmt.Errorf("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize vk: %w", err)
	}

	b := &Backend{context: newContext(), opts: opts}
	if err := b.createInstance(window); err != nil {
		return nil, err
	}

	core.LogDebug("Creating Vulkan surface...")
	surface, err := window.CreateWindowSurface(b.context.Instance, nil)
	if err != nil {
		b.Shutdown()
		return nil, fmt.Errorf("vulkan surface creation failed: %w", err)
	}
	b.context.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")

	if err := DeviceCreate(b.context); err != nil {
		b.Shutdown()
		return nil, err
	}

	width, height := window.GetFramebufferSize()
	driver, err := newFrameDriver(b.context, opts.FramesInFlight, uint32(width), uint32(height), opts.VSync)
	if err != nil {
		b.Shutdown()
		return nil, err
	}
	b.driver = driver

	core.LogInfo("Vulkan renderer initialized successfully.")
	return b, nil
}

func (b *Backend) Driver() *FrameDriver { return b.driver }

func (b *Backend) createInstance(window Window) error {
	ctx := b.context
	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 2, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(b.opts.AppName),
		PEngineName:        VulkanSafeString("Lumen"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &appInfo,
	}

	extensions := append([]string{}, window.GetRequiredInstanceExtensions()...)
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	var layers []string
	if b.opts.Validation {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
		core.LogInfo("Validation layers enabled. Enumerating...")
		ok, err := hasInstanceLayer(validationLayer)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("required validation layer is missing: %s", validationLayer)
		}
		layers = append(layers, validationLayer)
	}
	for _, ext := range extensions {
		core.LogDebug("Required extension: %s", ext)
	}

	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(extensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if err := check("vkCreateInstance", vk.CreateInstance(&createInfo, ctx.Allocator, &ctx.Instance)); err != nil {
		return err
	}
	if err := vk.InitInstance(ctx.Instance); err != nil {
		return err
	}
	core.LogInfo("Vulkan Instance created.")

	if b.opts.Validation {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		if err := check("vkCreateDebugReportCallback", vk.CreateDebugReportCallback(ctx.Instance, &debugCreateInfo, ctx.Allocator, &ctx.debugMessenger)); err != nil {
			return err
		}
		core.LogDebug("Vulkan debugger created.")
	}
	return nil
}

func hasInstanceLayer(name string) (bool, error) {
	var count uint32
	if err := check("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, nil)); err != nil {
		return false, err
	}
	available := make([]vk.LayerProperties, count)
	if err := check("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, available)); err != nil {
		return false, err
	}
	for i := range available {
		available[i].Deref()
		if cString(available[i].LayerName[:]) == name {
			core.LogInfo("Found layer %s.", name)
			return true, nil
		}
	}
	return false, nil
}

// ImmediateSubmit records fn into a one-shot command buffer on the graphics
// queue and blocks until it completes.
func (b *Backend) ImmediateSubmit(fn func(cmd gpu.CommandBuffer) error) error {
	ctx := b.context
	device := ctx.Device
	cb, err := NewVulkanCommandBuffer(ctx, device.GraphicsCommandPool)
	if err != nil {
		return err
	}
	defer cb.Free(device.GraphicsCommandPool)

	if err := cb.Begin(true); err != nil {
		return err
	}
	if err := fn(cb); err != nil {
		_ = cb.End()
		return err
	}
	if err := cb.End(); err != nil {
		return err
	}

	fence, err := NewFence(ctx, false)
	if err != nil {
		return err
	}
	defer fence.Destroy(ctx)

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cb.Handle},
	}
	if err := ctx.locks.SafeQueueCall(device.GraphicsQueueIndex, func() error {
		return check("vkQueueSubmit", vk.QueueSubmit(device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence.Handle))
	}); err != nil {
		return err
	}
	return fence.Wait(ctx, ^uint64(0))
}

func (b *Backend) WaitIdle() error {
	if b.context.Device == nil || b.context.Device.LogicalDevice == nil {
		return nil
	}
	return check("vkDeviceWaitIdle", vk.DeviceWaitIdle(b.context.logical()))
}

// Shutdown destroys everything in the opposite order of creation. Objects
// the renderer still holds are reported and released.
func (b *Backend) Shutdown() {
	ctx := b.context
	if ctx.Device != nil && ctx.Device.LogicalDevice != nil {
		_ = b.WaitIdle()
		if b.driver != nil {
			b.driver.destroy()
			b.driver = nil
		}
		b.releaseLeaks()
		DeviceDestroy(ctx)
	}

	if ctx.Surface != vk.NullSurface {
		core.LogDebug("Destroying Vulkan surface...")
		vk.DestroySurface(ctx.Instance, ctx.Surface, ctx.Allocator)
		ctx.Surface = vk.NullSurface
	}
	if ctx.debugMessenger != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(ctx.Instance, ctx.debugMessenger, ctx.Allocator)
		ctx.debugMessenger = vk.NullDebugReportCallback
	}
	if ctx.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(ctx.Instance, ctx.Allocator)
		ctx.Instance = nil
	}
}

func (b *Backend) releaseLeaks() {
	ctx := b.context
	leaks := map[string]int{
		"pipelines":              ctx.pipelines.len(),
		"framebuffers":           ctx.framebuffers.len(),
		"render targets":         ctx.targets.len(),
		"descriptor set layouts": ctx.setLayouts.len(),
		"buffers":                ctx.buffers.len(),
		"images":                 ctx.images.len(),
		"image views":            ctx.views.len(),
		"samplers":               ctx.samplers.len(),
		"memory allocations":     ctx.memories.len(),
	}
	for kind, n := range leaks {
		if n > 0 {
			core.LogWarn("%d %s still alive at shutdown", n, kind)
		}
	}
	ctx.pipelines.each(func(id uint64, _ *vulkanPipeline) { b.DestroyPipeline(gpu.Pipeline(id)) })
	ctx.framebuffers.each(func(id uint64, _ *vulkanFramebuffer) { b.DestroyFramebuffer(gpu.Framebuffer(id)) })
	ctx.targets.each(func(id uint64, _ *vulkanRenderTarget) { b.DestroyRenderTarget(gpu.RenderTarget(id)) })
	ctx.sets.each(func(id uint64, _ *vulkanDescriptorSet) { ctx.sets.remove(id) })
	ctx.setLayouts.each(func(id uint64, _ *vulkanSetLayout) { b.DestroyDescriptorSetLayout(gpu.DescriptorSetLayout(id)) })
	ctx.views.each(func(id uint64, _ *vulkanImageView) { b.DestroyImageView(gpu.ImageView(id)) })
	ctx.samplers.each(func(id uint64, _ *vulkanSampler) { b.DestroySampler(gpu.Sampler(id)) })
	ctx.buffers.each(func(id uint64, _ *vulkanBuffer) { b.DestroyBuffer(gpu.Buffer(id), 0) })
	ctx.images.each(func(id uint64, _ *vulkanImage) { b.DestroyImage(gpu.Image(id), 0) })
	ctx.memories.each(func(id uint64, _ *vulkanMemory) { b.free(gpu.Memory(id)) })
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
