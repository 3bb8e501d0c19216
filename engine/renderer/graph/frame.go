package graph

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// DrawFrame runs one iteration of the frame loop on slot frame: wait for the
// slot's fence, acquire a swapchain image, record, submit and present. An
// out of date swapchain is recreated and the passes reloaded; the frame is
// then skipped without error.
func (r *SceneRenderer) DrawFrame(frame int, scene Scene) error {
	if err := r.driver.WaitFrame(frame); err != nil {
		return err
	}
	r.guard.MarkWaited(frame)

	image, err := r.driver.AcquireImage(frame)
	if errors.Is(err, gpu.ErrSwapchainOutOfDate) {
		return r.recreate()
	}
	if err != nil {
		return err
	}

	cmd, err := r.driver.BeginCommands(frame)
	if err != nil {
		return r.discard(frame, err)
	}
	commit, err := r.RenderFrame(cmd, frame, image, scene)
	if err != nil {
		return r.discard(frame, err)
	}
	if err := r.driver.Submit(frame); err != nil {
		return err
	}
	r.guard.MarkSubmitted(frame)
	commit()

	err = r.driver.Present(frame, image)
	if errors.Is(err, gpu.ErrSwapchainOutOfDate) {
		return r.recreate()
	}
	return err
}

// discard gives up on a frame that already acquired its image. The slot's
// recording is replaced by an empty submission so the acquire is consumed
// and the slot fence still signals.
func (r *SceneRenderer) discard(frame int, cause error) error {
	if err := r.driver.Discard(frame); err != nil {
		return errors.Join(cause, fmt.Errorf("discard frame %d: %w", frame, err))
	}
	r.guard.MarkSubmitted(frame)
	return cause
}

// Resize recreates the swapchain at width by height and rebuilds every pass.
func (r *SceneRenderer) Resize(width, height uint32) error {
	if err := r.dev.WaitIdle(); err != nil {
		return err
	}
	r.guard.MarkAllWaited()
	if err := r.driver.Recreate(width, height); err != nil {
		return err
	}
	return r.Reload(r.driver.Extent())
}

func (r *SceneRenderer) recreate() error {
	core.LogDebug("swapchain out of date, recreating at %dx%d", r.extent.Width, r.extent.Height)
	return r.Resize(r.extent.Width, r.extent.Height)
}
