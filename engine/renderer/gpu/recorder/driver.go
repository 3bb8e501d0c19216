package recorder

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// Stats counts what a Driver has seen since creation.
type Stats struct {
	Submits   int
	Discards  int
	Presents  int
	Recreates int
	Commands  map[CommandKind]int
}

// Driver is a headless gpu.FrameDriver. Submission executes transfers
// immediately and leaves the slot pending until the next WaitFrame, which is
// when its fence is considered signaled.
type Driver struct {
	dev     *Device
	frames  int
	extent  gpu.Extent2D
	format  gpu.Format
	images  []gpu.Image
	memory  []gpu.Memory
	views   []gpu.ImageView
	pending []bool
	open    []*CommandBuffer
	last    []*CommandBuffer
	next    uint32

	outOfDate bool
	stats     Stats
}

func NewDriver(dev *Device, frames int, width, height uint32, swapchainImages int) (*Driver, error) {
	if frames <= 0 {
		return nil, fmt.Errorf("frames in flight must be positive, got %d", frames)
	}
	if swapchainImages < frames {
		swapchainImages = frames
	}
	d := &Driver{
		dev:     dev,
		frames:  frames,
		format:  gpu.FormatBGRA8Srgb,
		pending: make([]bool, frames),
		open:    make([]*CommandBuffer, frames),
		last:    make([]*CommandBuffer, frames),
		stats:   Stats{Commands: make(map[CommandKind]int)},
	}
	if err := d.createSwapchain(width, height, swapchainImages); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Driver) createSwapchain(width, height uint32, count int) error {
	d.extent = gpu.Extent2D{Width: width, Height: height}
	for i := 0; i < count; i++ {
		img, mem, err := d.dev.CreateImage(gpu.ImageDesc{
			Name:    fmt.Sprintf("swapchain_%d", i),
			Width:   width,
			Height:  height,
			Layers:  1,
			Format:  d.format,
			Samples: 1,
			Usage:   gpu.ImageUsageColorAttachment | gpu.ImageUsageTransferSrc,
		})
		if err != nil {
			return err
		}
		view, err := d.dev.CreateImageView(gpu.ImageViewDesc{Image: img, Format: d.format, Aspect: gpu.AspectColor, LayerCount: 1})
		if err != nil {
			return err
		}
		d.images = append(d.images, img)
		d.memory = append(d.memory, mem)
		d.views = append(d.views, view)
	}
	return nil
}

func (d *Driver) destroySwapchain() {
	for i := range d.images {
		d.dev.DestroyImageView(d.views[i])
		d.dev.DestroyImage(d.images[i], d.memory[i])
	}
	d.images, d.memory, d.views = nil, nil, nil
}

func (d *Driver) FramesInFlight() int             { return d.frames }
func (d *Driver) Extent() gpu.Extent2D            { return d.extent }
func (d *Driver) SwapchainFormat() gpu.Format     { return d.format }
func (d *Driver) SwapchainViews() []gpu.ImageView { return d.views }

// SwapchainImages exposes the presentable images for inspection.
func (d *Driver) SwapchainImages() []gpu.Image { return d.images }

func (d *Driver) WaitFrame(frame int) error {
	if err := d.checkFrame(frame); err != nil {
		return err
	}
	if d.pending[frame] {
		d.pending[frame] = false
		d.dev.record(Event{Kind: EventFenceSignal, Frame: frame})
	}
	return nil
}

func (d *Driver) AcquireImage(frame int) (uint32, error) {
	if err := d.checkFrame(frame); err != nil {
		return 0, err
	}
	if d.outOfDate {
		return 0, gpu.ErrSwapchainOutOfDate
	}
	idx := d.next
	d.next = (d.next + 1) % uint32(len(d.images))
	return idx, nil
}

func (d *Driver) BeginCommands(frame int) (gpu.CommandBuffer, error) {
	if err := d.checkFrame(frame); err != nil {
		return nil, err
	}
	if d.pending[frame] {
		d.dev.violate("frame slot %d recorded while its previous submission is in flight", frame)
	}
	d.open[frame] = d.dev.NewCommandBuffer()
	return d.open[frame], nil
}

func (d *Driver) Submit(frame int) error {
	if err := d.checkFrame(frame); err != nil {
		return err
	}
	cb := d.open[frame]
	if cb == nil {
		return fmt.Errorf("submit of frame %d without recorded commands", frame)
	}
	if cb.active != nil {
		d.dev.violate("frame %d submitted inside a render target", frame)
	}
	d.dev.Execute(cb)
	for _, c := range cb.commands {
		d.stats.Commands[c.Kind]++
	}
	d.stats.Submits++
	d.last[frame] = cb
	d.open[frame] = nil
	d.pending[frame] = true
	d.dev.record(Event{Kind: EventSubmit, Frame: frame})
	return nil
}

func (d *Driver) Discard(frame int) error {
	if err := d.checkFrame(frame); err != nil {
		return err
	}
	d.open[frame] = nil
	d.pending[frame] = true
	d.outOfDate = true
	d.stats.Discards++
	d.dev.record(Event{Kind: EventSubmit, Frame: frame})
	return nil
}

func (d *Driver) Present(frame int, image uint32) error {
	if int(image) >= len(d.images) {
		return fmt.Errorf("present of unknown swapchain image %d", image)
	}
	if d.outOfDate {
		return gpu.ErrSwapchainOutOfDate
	}
	d.dev.expectLayout(d.images[image], gpu.ImageLayoutPresentSrc, "present")
	d.stats.Presents++
	d.dev.record(Event{Kind: EventPresent, Frame: frame, Image: image})
	return nil
}

func (d *Driver) Recreate(width, height uint32) error {
	count := len(d.images)
	d.destroySwapchain()
	if err := d.createSwapchain(width, height, count); err != nil {
		return err
	}
	d.next = 0
	d.outOfDate = false
	d.stats.Recreates++
	return nil
}

// ForceOutOfDate makes the next acquire or present report an out of date
// swapchain, the way a window resize does.
func (d *Driver) ForceOutOfDate() {
	d.outOfDate = true
}

// LastCommands returns the most recently submitted command buffer of frame.
func (d *Driver) LastCommands(frame int) *CommandBuffer {
	return d.last[frame]
}

func (d *Driver) Stats() Stats {
	return d.stats
}

func (d *Driver) checkFrame(frame int) error {
	if frame < 0 || frame >= d.frames {
		return fmt.Errorf("frame slot %d out of range [0,%d)", frame, d.frames)
	}
	return nil
}
