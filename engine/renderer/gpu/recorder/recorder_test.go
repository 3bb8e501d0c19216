package recorder

import (
	"bytes"
	"errors"
	"testing"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

func newColorTarget(t *testing.T, dev *Device, initial, final gpu.ImageLayout, load gpu.LoadOp) (gpu.Image, gpu.RenderTarget, gpu.Framebuffer) {
	t.Helper()
	img, _, err := dev.CreateImage(gpu.ImageDesc{Name: "color", Width: 4, Height: 4, Format: gpu.FormatRGBA8Unorm, Samples: 1})
	if err != nil {
		t.Fatal(err)
	}
	view, err := dev.CreateImageView(gpu.ImageViewDesc{Image: img, Format: gpu.FormatRGBA8Unorm, Aspect: gpu.AspectColor, LayerCount: 1})
	if err != nil {
		t.Fatal(err)
	}
	rt, err := dev.CreateRenderTarget(gpu.RenderTargetDesc{Name: "target", Attachments: []gpu.AttachmentDesc{{
		Format:        gpu.FormatRGBA8Unorm,
		Samples:       1,
		LoadOp:        load,
		InitialLayout: initial,
		FinalLayout:   final,
	}}})
	if err != nil {
		t.Fatal(err)
	}
	fb, err := dev.CreateFramebuffer(gpu.FramebufferDesc{Target: rt, Views: []gpu.ImageView{view}, Width: 4, Height: 4, Layers: 1})
	if err != nil {
		t.Fatal(err)
	}
	return img, rt, fb
}

func TestRenderTargetSetsFinalLayout(t *testing.T) {
	dev := NewDevice()
	img, rt, fb := newColorTarget(t, dev, gpu.ImageLayoutUndefined, gpu.ImageLayoutColorAttachmentOptimal, gpu.LoadOpClear)

	cb := dev.NewCommandBuffer()
	cb.BeginRenderTarget(gpu.RenderTargetBegin{Target: rt, Framebuffer: fb})
	cb.Draw(6, 1, 0, 0)
	cb.EndRenderTarget()

	if got := dev.ImageLayout(img); got != gpu.ImageLayoutColorAttachmentOptimal {
		t.Errorf("expected color attachment layout after end, got %s", got)
	}
	if v := dev.Violations(); len(v) != 0 {
		t.Errorf("unexpected violations: %v", v)
	}
	if cb.Count(CmdDraw) != 1 {
		t.Errorf("expected one draw, got %d", cb.Count(CmdDraw))
	}
}

func TestViolations(t *testing.T) {
	tests := []struct {
		name   string
		record func(dev *Device, cb *CommandBuffer, img gpu.Image, rt gpu.RenderTarget, fb gpu.Framebuffer)
	}{
		{"draw outside target", func(dev *Device, cb *CommandBuffer, img gpu.Image, rt gpu.RenderTarget, fb gpu.Framebuffer) {
			cb.Draw(3, 1, 0, 0)
		}},
		{"barrier inside target", func(dev *Device, cb *CommandBuffer, img gpu.Image, rt gpu.RenderTarget, fb gpu.Framebuffer) {
			cb.BeginRenderTarget(gpu.RenderTargetBegin{Target: rt, Framebuffer: fb})
			cb.PipelineBarrier(gpu.StageColorAttachmentOutput, gpu.StageFragmentShader, nil, nil)
			cb.EndRenderTarget()
		}},
		{"barrier from wrong layout", func(dev *Device, cb *CommandBuffer, img gpu.Image, rt gpu.RenderTarget, fb gpu.Framebuffer) {
			cb.PipelineBarrier(gpu.StageColorAttachmentOutput, gpu.StageFragmentShader, []gpu.ImageBarrier{{
				Image:     img,
				OldLayout: gpu.ImageLayoutColorAttachmentOptimal,
				NewLayout: gpu.ImageLayoutShaderReadOnlyOptimal,
			}}, nil)
		}},
		{"end without begin", func(dev *Device, cb *CommandBuffer, img gpu.Image, rt gpu.RenderTarget, fb gpu.Framebuffer) {
			cb.EndRenderTarget()
		}},
		{"copy into image not in transfer layout", func(dev *Device, cb *CommandBuffer, img gpu.Image, rt gpu.RenderTarget, fb gpu.Framebuffer) {
			buf, _, _ := dev.CreateBuffer(gpu.BufferDesc{Size: 64, Memory: gpu.MemoryHostVisible})
			cb.CopyBufferToImage(buf, img, gpu.ImageLayoutTransferDstOptimal, nil)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := NewDevice()
			img, rt, fb := newColorTarget(t, dev, gpu.ImageLayoutUndefined, gpu.ImageLayoutColorAttachmentOptimal, gpu.LoadOpClear)
			tt.record(dev, dev.NewCommandBuffer(), img, rt, fb)
			if len(dev.Violations()) == 0 {
				t.Fatal("expected a violation")
			}
		})
	}
}

func TestBeginChecksInitialLayout(t *testing.T) {
	dev := NewDevice()
	_, rt, fb := newColorTarget(t, dev, gpu.ImageLayoutColorAttachmentOptimal, gpu.ImageLayoutShaderReadOnlyOptimal, gpu.LoadOpLoad)

	cb := dev.NewCommandBuffer()
	cb.BeginRenderTarget(gpu.RenderTargetBegin{Target: rt, Framebuffer: fb})
	cb.EndRenderTarget()

	if len(dev.Violations()) != 1 {
		t.Fatalf("expected exactly one violation for an undefined image loaded as an attachment, got %v", dev.Violations())
	}
}

func TestDescriptorBindChecksLayoutAndFeedback(t *testing.T) {
	dev := NewDevice()
	img, rt, fb := newColorTarget(t, dev, gpu.ImageLayoutUndefined, gpu.ImageLayoutColorAttachmentOptimal, gpu.LoadOpClear)
	view, _ := dev.CreateImageView(gpu.ImageViewDesc{Image: img, Format: gpu.FormatRGBA8Unorm, Aspect: gpu.AspectColor, LayerCount: 1})

	layout, _ := dev.CreateDescriptorSetLayout(gpu.DescriptorSetLayoutDesc{Bindings: []gpu.DescriptorBinding{
		{Binding: 0, Type: gpu.DescriptorCombinedImageSampler, Count: 1, Stages: gpu.ShaderStageFragment},
	}})
	sets, err := dev.AllocateDescriptorSets(layout, 1)
	if err != nil {
		t.Fatal(err)
	}
	dev.UpdateDescriptorSets([]gpu.DescriptorWrite{{
		Set:     sets[0],
		Binding: 0,
		Type:    gpu.DescriptorCombinedImageSampler,
		Images:  []gpu.ImageInfo{{View: view, Layout: gpu.ImageLayoutShaderReadOnlyOptimal}},
	}})

	cb := dev.NewCommandBuffer()
	cb.BindDescriptorSet(0, 0, sets[0])
	if len(dev.Violations()) != 1 {
		t.Fatalf("sampling an undefined image should be one violation, got %v", dev.Violations())
	}

	cb.BeginRenderTarget(gpu.RenderTargetBegin{Target: rt, Framebuffer: fb})
	cb.EndRenderTarget()
	cb.PipelineBarrier(gpu.StageColorAttachmentOutput, gpu.StageFragmentShader, []gpu.ImageBarrier{{
		Image:     img,
		OldLayout: gpu.ImageLayoutColorAttachmentOptimal,
		NewLayout: gpu.ImageLayoutShaderReadOnlyOptimal,
	}}, nil)
	cb.BindDescriptorSet(0, 0, sets[0])
	if len(dev.Violations()) != 1 {
		t.Fatalf("bind after transition should be clean, got %v", dev.Violations())
	}
}

func TestCopiesExecuteOnSubmit(t *testing.T) {
	dev := NewDevice()
	drv, err := NewDriver(dev, 2, 8, 8, 3)
	if err != nil {
		t.Fatal(err)
	}

	staging, stagingMem, _ := dev.CreateBuffer(gpu.BufferDesc{Size: 16, Usage: gpu.BufferUsageTransferSrc, Memory: gpu.MemoryHostVisible})
	device, _, _ := dev.CreateBuffer(gpu.BufferDesc{Size: 16, Usage: gpu.BufferUsageTransferDst, Memory: gpu.MemoryDeviceLocal})
	m, err := dev.MapMemory(stagingMem)
	if err != nil {
		t.Fatal(err)
	}
	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if err := m.Write(4, payload); err != nil {
		t.Fatal(err)
	}

	if err := drv.WaitFrame(0); err != nil {
		t.Fatal(err)
	}
	cmd, _ := drv.BeginCommands(0)
	cmd.CopyBuffer(staging, device, []gpu.BufferCopy{{SrcOffset: 4, DstOffset: 0, Size: 8}})
	if got := dev.BufferBytes(device); !bytes.Equal(got[:8], make([]byte, 8)) {
		t.Fatal("copy must not execute before submit")
	}
	if err := drv.Submit(0); err != nil {
		t.Fatal(err)
	}
	if got := dev.BufferBytes(device); !bytes.Equal(got[:8], payload) {
		t.Errorf("expected %v after submit, got %v", payload, got[:8])
	}
}

func TestMapDeviceLocalFails(t *testing.T) {
	dev := NewDevice()
	_, mem, _ := dev.CreateBuffer(gpu.BufferDesc{Size: 4, Memory: gpu.MemoryDeviceLocal})
	if _, err := dev.MapMemory(mem); !errors.Is(err, gpu.ErrNotHostVisible) {
		t.Errorf("expected ErrNotHostVisible, got %v", err)
	}
}

func TestDriverFenceEvents(t *testing.T) {
	dev := NewDevice()
	drv, _ := NewDriver(dev, 2, 8, 8, 2)

	for frame := 0; frame < 4; frame++ {
		slot := frame % 2
		if err := drv.WaitFrame(slot); err != nil {
			t.Fatal(err)
		}
		if _, err := drv.BeginCommands(slot); err != nil {
			t.Fatal(err)
		}
		if err := drv.Submit(slot); err != nil {
			t.Fatal(err)
		}
	}

	var kinds []EventKind
	for _, e := range dev.Events() {
		kinds = append(kinds, e.Kind)
	}
	want := []EventKind{EventSubmit, EventSubmit, EventFenceSignal, EventSubmit, EventFenceSignal, EventSubmit}
	if len(kinds) != len(want) {
		t.Fatalf("expected %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event %d: expected %v, got %v", i, want[i], kinds[i])
		}
	}
	if len(dev.Violations()) != 0 {
		t.Errorf("unexpected violations: %v", dev.Violations())
	}
}

func TestDriverRecordingPendingSlotIsViolation(t *testing.T) {
	dev := NewDevice()
	drv, _ := NewDriver(dev, 2, 8, 8, 2)
	_, _ = drv.BeginCommands(0)
	_ = drv.Submit(0)
	_, _ = drv.BeginCommands(0)
	if len(dev.Violations()) != 1 {
		t.Fatalf("expected one violation, got %v", dev.Violations())
	}
}

func TestDriverOutOfDate(t *testing.T) {
	dev := NewDevice()
	drv, _ := NewDriver(dev, 2, 8, 8, 2)
	drv.ForceOutOfDate()
	if _, err := drv.AcquireImage(0); !errors.Is(err, gpu.ErrSwapchainOutOfDate) {
		t.Fatalf("expected out of date, got %v", err)
	}
	if err := drv.Recreate(16, 16); err != nil {
		t.Fatal(err)
	}
	if drv.Extent().Width != 16 {
		t.Errorf("expected new extent, got %+v", drv.Extent())
	}
	if _, err := drv.AcquireImage(0); err != nil {
		t.Errorf("acquire after recreate: %v", err)
	}
}

func TestImageCopyRoundTrip(t *testing.T) {
	dev := NewDevice()
	img, _, _ := dev.CreateImage(gpu.ImageDesc{Name: "tex", Width: 2, Height: 2, Format: gpu.FormatR8Unorm})
	src, srcMem, _ := dev.CreateBuffer(gpu.BufferDesc{Size: 4, Memory: gpu.MemoryHostVisible})
	dst, _, _ := dev.CreateBuffer(gpu.BufferDesc{Size: 4, Memory: gpu.MemoryHostVisible})
	m, _ := dev.MapMemory(srcMem)
	_ = m.Write(0, []byte{10, 20, 30, 40})

	region := []gpu.BufferImageCopy{{Width: 2, Height: 2, Aspect: gpu.AspectColor}}
	err := dev.ImmediateSubmit(func(cmd gpu.CommandBuffer) error {
		cmd.PipelineBarrier(gpu.StageTopOfPipe, gpu.StageTransfer, []gpu.ImageBarrier{{Image: img, NewLayout: gpu.ImageLayoutTransferDstOptimal}}, nil)
		cmd.CopyBufferToImage(src, img, gpu.ImageLayoutTransferDstOptimal, region)
		cmd.PipelineBarrier(gpu.StageTransfer, gpu.StageTransfer, []gpu.ImageBarrier{{
			Image:     img,
			OldLayout: gpu.ImageLayoutTransferDstOptimal,
			NewLayout: gpu.ImageLayoutTransferSrcOptimal,
		}}, nil)
		cmd.CopyImageToBuffer(img, gpu.ImageLayoutTransferSrcOptimal, dst, region)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := dev.BufferBytes(dst); !bytes.Equal(got, []byte{10, 20, 30, 40}) {
		t.Errorf("unexpected round trip %v", got)
	}
	if len(dev.Violations()) != 0 {
		t.Errorf("unexpected violations: %v", dev.Violations())
	}
}
