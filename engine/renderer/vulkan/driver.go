package vulkan

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// FrameDriver runs the acquire, record, submit and present cycle over a
// fixed number of frames in flight.
type FrameDriver struct {
	context *VulkanContext
	frames  int
	vsync   bool

	swapchain      *VulkanSwapchain
	commandBuffers []*VulkanCommandBuffer
	imageAvailable []vk.Semaphore
	renderComplete []vk.Semaphore
	inFlight       []*VulkanFence
	// The fence of the frame that last rendered to each swapchain image.
	imagesInFlight []*VulkanFence
	acquired       []uint32
	// An image was acquired and never presented; recreate before the next
	// acquire.
	stale bool
}

var _ gpu.FrameDriver = (*FrameDriver)(nil)

func newFrameDriver(context *VulkanContext, frames int, width, height uint32, vsync bool) (*FrameDriver, error) {
	if frames <= 0 {
		return nil, fmt.Errorf("frames in flight must be positive, got %d", frames)
	}
	d := &FrameDriver{
		context:        context,
		frames:         frames,
		vsync:          vsync,
		commandBuffers: make([]*VulkanCommandBuffer, frames),
		imageAvailable: make([]vk.Semaphore, frames),
		renderComplete: make([]vk.Semaphore, frames),
		inFlight:       make([]*VulkanFence, frames),
		acquired:       make([]uint32, frames),
	}
	sc, err := SwapchainCreate(context, width, height, vsync, vk.NullSwapchain)
	if err != nil {
		return nil, err
	}
	d.swapchain = sc
	d.imagesInFlight = make([]*VulkanFence, len(sc.Images))

	for i := 0; i < frames; i++ {
		if d.commandBuffers[i], err = NewVulkanCommandBuffer(context, context.Device.GraphicsCommandPool); err != nil {
			return nil, err
		}
		if d.imageAvailable[i], err = newSemaphore(context); err != nil {
			return nil, err
		}
		if d.renderComplete[i], err = newSemaphore(context); err != nil {
			return nil, err
		}
		// Signaled so the first wait on each slot returns at once.
		if d.inFlight[i], err = NewFence(context, true); err != nil {
			return nil, err
		}
	}
	core.LogDebug("Frame driver created with %d frames in flight.", frames)
	return d, nil
}

func (d *FrameDriver) destroy() {
	ctx := d.context
	for i := 0; i < d.frames; i++ {
		if d.imageAvailable[i] != vk.NullSemaphore {
			vk.DestroySemaphore(ctx.logical(), d.imageAvailable[i], ctx.Allocator)
		}
		if d.renderComplete[i] != vk.NullSemaphore {
			vk.DestroySemaphore(ctx.logical(), d.renderComplete[i], ctx.Allocator)
		}
		if d.inFlight[i] != nil {
			d.inFlight[i].Destroy(ctx)
		}
		if d.commandBuffers[i] != nil {
			d.commandBuffers[i].Free(ctx.Device.GraphicsCommandPool)
		}
	}
	if d.swapchain != nil {
		d.swapchain.Destroy(ctx)
		d.swapchain = nil
	}
}

func (d *FrameDriver) checkFrame(frame int) error {
	if frame < 0 || frame >= d.frames {
		return fmt.Errorf("frame %d out of range [0,%d)", frame, d.frames)
	}
	return nil
}

func (d *FrameDriver) FramesInFlight() int { return d.frames }

func (d *FrameDriver) Extent() gpu.Extent2D {
	return gpu.Extent2D{Width: d.swapchain.Extent.Width, Height: d.swapchain.Extent.Height}
}

func (d *FrameDriver) SwapchainFormat() gpu.Format {
	return fromFormat(d.swapchain.ImageFormat.Format)
}

func (d *FrameDriver) SwapchainViews() []gpu.ImageView { return d.swapchain.Views }

func (d *FrameDriver) WaitFrame(frame int) error {
	if err := d.checkFrame(frame); err != nil {
		return err
	}
	return d.inFlight[frame].Wait(d.context, math.MaxUint64)
}

func (d *FrameDriver) AcquireImage(frame int) (uint32, error) {
	if err := d.checkFrame(frame); err != nil {
		return 0, err
	}
	if d.stale {
		return 0, gpu.ErrSwapchainOutOfDate
	}
	index, err := d.swapchain.AcquireNextImageIndex(d.context, math.MaxUint64, d.imageAvailable[frame])
	if err != nil {
		return 0, err
	}
	// Another slot may still be rendering into this image.
	if f := d.imagesInFlight[index]; f != nil && f != d.inFlight[frame] {
		if err := f.Wait(d.context, math.MaxUint64); err != nil {
			return 0, err
		}
	}
	d.imagesInFlight[index] = d.inFlight[frame]
	d.acquired[frame] = index
	return index, nil
}

func (d *FrameDriver) BeginCommands(frame int) (gpu.CommandBuffer, error) {
	if err := d.checkFrame(frame); err != nil {
		return nil, err
	}
	cb := d.commandBuffers[frame]
	if err := cb.Begin(false); err != nil {
		return nil, err
	}
	return cb, nil
}

func (d *FrameDriver) Submit(frame int) error {
	if err := d.checkFrame(frame); err != nil {
		return err
	}
	ctx := d.context
	cb := d.commandBuffers[frame]
	if err := cb.End(); err != nil {
		return err
	}
	fence := d.inFlight[frame]
	if err := fence.Reset(ctx); err != nil {
		return err
	}
	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{d.imageAvailable[frame]},
		PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cb.Handle},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{d.renderComplete[frame]},
	}
	device := ctx.Device
	err := ctx.locks.SafeQueueCall(device.GraphicsQueueIndex, func() error {
		return check("vkQueueSubmit", vk.QueueSubmit(device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence.Handle))
	})
	if err != nil {
		return err
	}
	cb.State = COMMAND_BUFFER_STATE_SUBMITTED
	return nil
}

func (d *FrameDriver) Discard(frame int) error {
	if err := d.checkFrame(frame); err != nil {
		return err
	}
	ctx := d.context
	cb := d.commandBuffers[frame]
	// Begin resets the buffer, dropping the partial recording.
	if err := cb.Begin(false); err != nil {
		return err
	}
	if err := cb.End(); err != nil {
		return err
	}
	fence := d.inFlight[frame]
	if err := fence.Reset(ctx); err != nil {
		return err
	}
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{d.imageAvailable[frame]},
		PWaitDstStageMask:  []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cb.Handle},
	}
	device := ctx.Device
	err := ctx.locks.SafeQueueCall(device.GraphicsQueueIndex, func() error {
		return check("vkQueueSubmit", vk.QueueSubmit(device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence.Handle))
	})
	if err != nil {
		return err
	}
	cb.State = COMMAND_BUFFER_STATE_SUBMITTED
	d.stale = true
	core.LogWarn("frame %d discarded, swapchain image %d not presented", frame, d.acquired[frame])
	return nil
}

func (d *FrameDriver) Present(frame int, image uint32) error {
	if err := d.checkFrame(frame); err != nil {
		return err
	}
	return d.swapchain.Present(d.context, d.renderComplete[frame], image)
}

// Recreate rebuilds the swapchain for a new surface size. The old views are
// invalid afterwards.
func (d *FrameDriver) Recreate(width, height uint32) error {
	if width == 0 || height == 0 {
		return fmt.Errorf("recreate swapchain at %dx%d: %w", width, height, gpu.ErrSwapchainOutOfDate)
	}
	ctx := d.context
	if err := check("vkDeviceWaitIdle", vk.DeviceWaitIdle(ctx.logical())); err != nil {
		return err
	}
	old := d.swapchain
	sc, err := SwapchainCreate(ctx, width, height, d.vsync, old.Handle)
	if err != nil {
		return err
	}
	old.Destroy(ctx)
	d.swapchain = sc
	d.imagesInFlight = make([]*VulkanFence, len(sc.Images))
	d.stale = false
	core.LogInfo("Swapchain recreated at %dx%d.", sc.Extent.Width, sc.Extent.Height)
	return nil
}
