package pass

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu/recorder"
	"github.com/spaghettifunk/lumen/engine/renderer/resources"
)

func gbufferSpec(frames int) Spec {
	return Spec{
		Name:   "geometry",
		Width:  64,
		Height: 32,
		Frames: frames,
		Attachments: []Attachment{
			NewAttachment{Name: "albedo", Format: gpu.FormatRGBA8Unorm, LoadOp: gpu.LoadOpClear, StoreOp: gpu.StoreOpStore},
			NewAttachment{Name: "normal", Format: gpu.FormatRGBA16Sfloat, LoadOp: gpu.LoadOpClear, StoreOp: gpu.StoreOpStore},
			NewAttachment{Name: "depth", Format: gpu.FormatD32Sfloat, LoadOp: gpu.LoadOpClear, StoreOp: gpu.StoreOpStore, Clear: gpu.ClearValue{Depth: 1}},
		},
	}
}

func TestNewBuildsIdenticalFrames(t *testing.T) {
	dev := recorder.NewDevice()
	reg := NewRegistry(dev, nil)
	p, err := reg.Create(gbufferSpec(3))
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Textures) != 3 || len(p.Framebuffers) != 3 {
		t.Fatalf("expected 3 frames, got %d textures %d framebuffers", len(p.Textures), len(p.Framebuffers))
	}
	for f := range p.Textures {
		for slot, tex := range p.Textures[f] {
			if tex.Format != p.Textures[0][slot].Format {
				t.Errorf("frame %d slot %d format %s differs from frame 0", f, slot, tex.Format)
			}
			if f > 0 && tex.Image == p.Textures[0][slot].Image {
				t.Errorf("frame %d slot %d shares an image with frame 0", f, slot)
			}
		}
	}
	if p.ColorAttachments() != 2 {
		t.Errorf("expected 2 color attachments, got %d", p.ColorAttachments())
	}
	if got := p.Attachments()[2].FinalLayout; got != gpu.ImageLayoutDepthStencilAttachmentOptimal {
		t.Errorf("depth final layout %s", got)
	}
}

func TestTransitionToReadable(t *testing.T) {
	dev := recorder.NewDevice()
	reg := NewRegistry(dev, nil)
	p, _ := reg.Create(gbufferSpec(2))

	cmd := dev.NewCommandBuffer()
	cmd.BeginRenderTarget(p.BeginInfo(1, nil, nil))
	cmd.EndRenderTarget()
	if err := p.TransitionToReadable(cmd, 1); err != nil {
		t.Fatal(err)
	}

	var barriers []recorder.Command
	for _, c := range cmd.Commands() {
		if c.Kind == recorder.CmdPipelineBarrier {
			barriers = append(barriers, c)
		}
	}
	if len(barriers) != 3 {
		t.Fatalf("expected one barrier per attachment, got %d", len(barriers))
	}
	tests := []struct {
		slot      int
		old, new  gpu.ImageLayout
		srcAccess gpu.AccessFlags
		src       gpu.PipelineStage
	}{
		{0, gpu.ImageLayoutColorAttachmentOptimal, gpu.ImageLayoutShaderReadOnlyOptimal, gpu.AccessColorAttachmentWrite, gpu.StageColorAttachmentOutput},
		{1, gpu.ImageLayoutColorAttachmentOptimal, gpu.ImageLayoutShaderReadOnlyOptimal, gpu.AccessColorAttachmentWrite, gpu.StageColorAttachmentOutput},
		{2, gpu.ImageLayoutDepthStencilAttachmentOptimal, gpu.ImageLayoutDepthStencilReadOnlyOptimal, gpu.AccessDepthStencilAttachmentWrite, gpu.StageLateFragmentTests},
	}
	for _, tt := range tests {
		c := barriers[tt.slot]
		b := c.ImageBarriers[0]
		if b.Image != p.Textures[1][tt.slot].Image {
			t.Errorf("slot %d: barrier on wrong image", tt.slot)
		}
		if b.OldLayout != tt.old || b.NewLayout != tt.new {
			t.Errorf("slot %d: %s -> %s", tt.slot, b.OldLayout, b.NewLayout)
		}
		if b.SrcAccess != tt.srcAccess || b.DstAccess != gpu.AccessShaderRead {
			t.Errorf("slot %d: access %v -> %v", tt.slot, b.SrcAccess, b.DstAccess)
		}
		if c.SrcStage != tt.src || c.DstStage != gpu.StageFragmentShader {
			t.Errorf("slot %d: stages %v -> %v", tt.slot, c.SrcStage, c.DstStage)
		}
	}
	if v := dev.Violations(); len(v) != 0 {
		t.Errorf("unexpected violations: %v", v)
	}
	// frame 0 was never rendered, only frame 1 moved
	if got := dev.ImageLayout(p.Textures[0][0].Image); got != gpu.ImageLayoutUndefined {
		t.Errorf("frame 0 layout changed to %s", got)
	}
}

func TestTrackerRejectsTransitionBeforeRender(t *testing.T) {
	dev := recorder.NewDevice()
	reg := NewRegistry(dev, resources.NewLayoutTracker())
	p, _ := reg.Create(gbufferSpec(1))

	err := p.TransitionToReadable(dev.NewCommandBuffer(), 0)
	if !errors.Is(err, resources.ErrLayoutMismatch) {
		t.Fatalf("expected ErrLayoutMismatch, got %v", err)
	}
}

func TestAliasAttachment(t *testing.T) {
	dev := recorder.NewDevice()
	tracker := resources.NewLayoutTracker()
	reg := NewRegistry(dev, tracker)
	lighting, err := reg.Create(Spec{
		Name: "lighting", Width: 8, Height: 8, Frames: 2,
		Attachments: []Attachment{NewAttachment{Name: "color", Format: gpu.FormatRGBA16Sfloat}},
	})
	if err != nil {
		t.Fatal(err)
	}
	overlay, err := reg.Create(Spec{
		Name: "gui", Width: 8, Height: 8, Frames: 2,
		Attachments: []Attachment{AliasAttachment{Pass: lighting.ID, Slot: 0}},
	})
	if err != nil {
		t.Fatal(err)
	}
	a := overlay.Attachments()[0]
	if a.LoadOp != gpu.LoadOpLoad || a.InitialLayout != gpu.ImageLayoutColorAttachmentOptimal {
		t.Errorf("alias must load from attachment layout, got %+v", a)
	}
	if overlay.Texture(1, 0).Image != lighting.Texture(1, 0).Image {
		t.Error("alias must share the producer's image")
	}

	// gui before lighting rendered is a tracked mismatch
	if err := overlay.CheckBegin(0); !errors.Is(err, resources.ErrLayoutMismatch) {
		t.Errorf("expected mismatch, got %v", err)
	}
	lighting.Ended(0)
	if err := overlay.CheckBegin(0); err != nil {
		t.Errorf("begin after lighting: %v", err)
	}

	if _, err := reg.Create(Spec{Name: "bad", Width: 8, Height: 8, Frames: 2, Attachments: []Attachment{AliasAttachment{Pass: 9}}}); !errors.Is(err, ErrUnknownPass) {
		t.Errorf("expected ErrUnknownPass, got %v", err)
	}
	if _, err := reg.Create(Spec{Name: "small", Width: 4, Height: 4, Frames: 2, Attachments: []Attachment{AliasAttachment{Pass: lighting.ID}}}); err == nil {
		t.Error("expected extent mismatch error")
	}

	overlay.Destroy()
	if images, _, _ := dev.Live(); images != 2 {
		t.Errorf("destroying the alias pass freed the producer's images: %d live", images)
	}
}

func TestSwapchainPassUsesOverride(t *testing.T) {
	dev := recorder.NewDevice()
	drv, _ := recorder.NewDriver(dev, 2, 16, 16, 3)
	reg := NewRegistry(dev, nil)
	p, err := reg.Create(Spec{
		Name: "present", Width: 16, Height: 16, Frames: 2,
		Attachments: []Attachment{SwapchainAttachment{Views: drv.SwapchainViews(), Format: drv.SwapchainFormat()}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Framebuffers) != 3 {
		t.Fatalf("expected one framebuffer per swapchain image, got %d", len(p.Framebuffers))
	}
	idx := 2
	if got := p.BeginInfo(0, &idx, nil).Framebuffer; got != p.Framebuffers[2] {
		t.Error("override must select the swapchain framebuffer")
	}
	if p.Attachments()[0].FinalLayout != gpu.ImageLayoutPresentSrc {
		t.Error("swapchain attachment must end in present layout")
	}
	if err := p.TransitionToReadable(dev.NewCommandBuffer(), 0); err != nil {
		t.Fatal(err)
	}
}

func TestDestroyOnceAndResize(t *testing.T) {
	dev := recorder.NewDevice()
	reg := NewRegistry(dev, nil)
	p, _ := reg.Create(gbufferSpec(2))

	if err := p.Resize(128, 64); err != nil {
		t.Fatal(err)
	}
	if p.Width != 128 || p.Textures[1][2].Width != 128 {
		t.Errorf("resize did not recreate attachments")
	}
	if images, _, _ := dev.Live(); images != 6 {
		t.Errorf("resize leaked images: %d live", images)
	}

	reg.Destroy()
	p.Destroy()
	if images, _, _ := dev.Live(); images != 0 {
		t.Errorf("expected no live images, got %d", images)
	}
	if len(dev.Violations()) != 0 {
		t.Errorf("double destroy reached the device: %v", dev.Violations())
	}
	if err := p.Resize(1, 1); !errors.Is(err, ErrDestroyed) {
		t.Errorf("expected ErrDestroyed, got %v", err)
	}
}
