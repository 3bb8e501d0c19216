package renderpass

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu/recorder"
	"github.com/spaghettifunk/lumen/engine/renderer/pass"
	"github.com/spaghettifunk/lumen/engine/renderer/resources"
)

type graph struct {
	dev      *recorder.Device
	producer *Renderpass
	consumer *Renderpass
}

func newGraph(t *testing.T, tracker *resources.LayoutTracker) graph {
	t.Helper()
	dev := recorder.NewDevice()
	reg := pass.NewRegistry(dev, tracker)

	producer, err := New(dev, reg, Spec{
		Name: "producer",
		Source: CreatePass{Spec: pass.Spec{
			Name: "producer", Width: 8, Height: 8, Frames: 2,
			Attachments: []pass.Attachment{pass.NewAttachment{Name: "color", Format: gpu.FormatRGBA8Unorm}},
		}},
		Descriptors: []resources.Descriptor{resources.UniformBuffer{Size: 64, Stages: gpu.ShaderStageFragment}},
		Pipelines:   []PipelineSpec{{Name: "producer"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	sampler, _ := resources.NewSampler(dev, resources.LinearClamp)
	consumer, err := New(dev, reg, Spec{
		Name: "consumer",
		Source: CreatePass{Spec: pass.Spec{
			Name: "consumer", Width: 8, Height: 8, Frames: 2,
			Attachments: []pass.Attachment{pass.NewAttachment{Name: "color", Format: gpu.FormatRGBA8Unorm}},
		}},
		Descriptors: []resources.Descriptor{resources.ImageDescriptor{
			Textures: producer.Pass.SlotTextures(0),
			Sampler:  sampler,
			Stages:   gpu.ShaderStageFragment,
		}},
		Pipelines:        []PipelineSpec{{Name: "consumer"}},
		PushConstantSize: 8,
		PushStages:       gpu.ShaderStageFragment,
	})
	if err != nil {
		t.Fatal(err)
	}
	return graph{dev: dev, producer: producer, consumer: consumer}
}

func TestTransitionPrecedesConsumerBind(t *testing.T) {
	g := newGraph(t, resources.NewLayoutTracker())

	for frame := 0; frame < 2; frame++ {
		cmd := g.dev.NewCommandBuffer()
		if err := g.producer.DoRenderpass(frame, cmd, Options{TransitionAfter: true}); err != nil {
			t.Fatal(err)
		}
		err := g.consumer.DoRenderpass(frame, cmd, Options{
			PushConstants:   func() []byte { return make([]byte, 8) },
			TransitionAfter: true,
		})
		if err != nil {
			t.Fatal(err)
		}

		produced := g.producer.Pass.Texture(frame, 0).Image
		consumerSet := g.consumer.Descriptors.Sets[frame]
		transition, bind := -1, -1
		for i, c := range cmd.Commands() {
			switch c.Kind {
			case recorder.CmdPipelineBarrier:
				if c.ImageBarriers[0].Image == produced && transition < 0 {
					transition = i
				}
			case recorder.CmdBindDescriptorSet:
				if c.Set == consumerSet {
					bind = i
				}
			}
		}
		if transition < 0 || bind < 0 {
			t.Fatalf("frame %d: missing transition (%d) or bind (%d)", frame, transition, bind)
		}
		if transition > bind {
			t.Errorf("frame %d: consumer bound at %d before producer transition at %d", frame, bind, transition)
		}
	}
	if v := g.dev.Violations(); len(v) != 0 {
		t.Errorf("unexpected violations: %v", v)
	}
}

func TestSkippedTransitionIsRejected(t *testing.T) {
	g := newGraph(t, resources.NewLayoutTracker())
	cmd := g.dev.NewCommandBuffer()
	if err := g.producer.DoRenderpass(0, cmd, Options{}); err != nil {
		t.Fatal(err)
	}
	err := g.consumer.DoRenderpass(0, cmd, Options{PushConstants: func() []byte { return make([]byte, 8) }})
	if !errors.Is(err, resources.ErrLayoutMismatch) {
		t.Fatalf("expected ErrLayoutMismatch, got %v", err)
	}
	if cmd.Count(recorder.CmdBeginRenderTarget) != 1 {
		t.Error("the rejected consumer must not begin its render target")
	}
}

func TestRejectedExtraSetLeavesNoOpenTarget(t *testing.T) {
	tracker := resources.NewLayoutTracker()
	g := newGraph(t, tracker)
	sampler, _ := resources.NewSampler(g.dev, resources.LinearClamp)
	shared, err := resources.NewDescriptorSet(g.dev, "shared", 2, []resources.Descriptor{resources.ImageDescriptor{
		Textures: g.producer.Pass.SlotTextures(0),
		Sampler:  sampler,
		Stages:   gpu.ShaderStageFragment,
	}})
	if err != nil {
		t.Fatal(err)
	}
	reg := pass.NewRegistry(g.dev, tracker)
	rp, err := New(g.dev, reg, Spec{
		Name: "extra",
		Source: CreatePass{Spec: pass.Spec{
			Name: "extra", Width: 8, Height: 8, Frames: 2,
			Attachments: []pass.Attachment{pass.NewAttachment{Name: "color", Format: gpu.FormatRGBA8Unorm}},
		}},
		ExtraSets: []*resources.DescriptorSet{shared},
		Pipelines: []PipelineSpec{{Name: "extra"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	cmd := g.dev.NewCommandBuffer()
	if err := g.producer.DoRenderpass(0, cmd, Options{}); err != nil {
		t.Fatal(err)
	}
	// The producer's attachment is still writable, so set 1 cannot bind.
	if err := rp.DoRenderpass(0, cmd, Options{}); !errors.Is(err, resources.ErrLayoutMismatch) {
		t.Fatalf("expected ErrLayoutMismatch, got %v", err)
	}
	if b, e := cmd.Count(recorder.CmdBeginRenderTarget), cmd.Count(recorder.CmdEndRenderTarget); b != e {
		t.Errorf("%d render targets begun, %d ended", b, e)
	}
}

func TestBarrierAfterKeepsAttachmentLayout(t *testing.T) {
	g := newGraph(t, resources.NewLayoutTracker())
	cmd := g.dev.NewCommandBuffer()
	if err := g.producer.DoRenderpass(0, cmd, Options{BarrierAfter: true}); err != nil {
		t.Fatal(err)
	}
	cmds := cmd.Commands()
	last := cmds[len(cmds)-1]
	if last.Kind != recorder.CmdPipelineBarrier {
		t.Fatalf("last command %s, want a pipeline barrier", last.Kind)
	}
	b := last.ImageBarriers[0]
	if b.Image != g.producer.Pass.Texture(0, 0).Image {
		t.Error("barrier is not on the pass attachment")
	}
	if b.OldLayout != gpu.ImageLayoutColorAttachmentOptimal || b.NewLayout != gpu.ImageLayoutColorAttachmentOptimal {
		t.Errorf("barrier moves %s to %s, want attachment layout kept", b.OldLayout, b.NewLayout)
	}
	if b.SrcAccess != gpu.AccessColorAttachmentWrite || b.DstAccess&gpu.AccessColorAttachmentRead == 0 {
		t.Errorf("barrier access %v to %v", b.SrcAccess, b.DstAccess)
	}
	if last.SrcStage != gpu.StageColorAttachmentOutput || last.DstStage != gpu.StageColorAttachmentOutput {
		t.Errorf("barrier stages %v to %v", last.SrcStage, last.DstStage)
	}
	if v := g.dev.Violations(); len(v) != 0 {
		t.Errorf("unexpected violations: %v", v)
	}
}

func TestSkippedTransitionWithoutTrackerIsCaughtByDevice(t *testing.T) {
	g := newGraph(t, nil)
	cmd := g.dev.NewCommandBuffer()
	_ = g.producer.DoRenderpass(0, cmd, Options{})
	if err := g.consumer.DoRenderpass(0, cmd, Options{PushConstants: func() []byte { return make([]byte, 8) }}); err != nil {
		t.Fatal(err)
	}
	if len(g.dev.Violations()) == 0 {
		t.Fatal("sampling an attachment that was never made readable must be a device violation")
	}
}

func TestDoRenderpassShape(t *testing.T) {
	g := newGraph(t, nil)
	cmd := g.dev.NewCommandBuffer()
	if err := g.producer.DoRenderpass(1, cmd, Options{}); err != nil {
		t.Fatal(err)
	}
	want := []recorder.CommandKind{
		recorder.CmdBeginRenderTarget,
		recorder.CmdBindPipeline,
		recorder.CmdSetViewport,
		recorder.CmdSetScissor,
		recorder.CmdBindDescriptorSet,
		recorder.CmdDraw,
		recorder.CmdEndRenderTarget,
	}
	got := cmd.Commands()
	if len(got) != len(want) {
		t.Fatalf("expected %d commands, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].Kind != want[i] {
			t.Errorf("command %d: expected %s, got %s", i, want[i], got[i].Kind)
		}
	}
	if got[5].Draw.Count != 6 {
		t.Errorf("default draw must be 6 vertices, got %d", got[5].Draw.Count)
	}
	if got[0].Begin.Framebuffer != g.producer.Pass.Framebuffers[1] {
		t.Error("begin must use the frame's framebuffer")
	}
}

func TestPushConstantSizeChecked(t *testing.T) {
	g := newGraph(t, nil)
	cmd := g.dev.NewCommandBuffer()
	err := g.consumer.Push(cmd, make([]byte, 4))
	if !errors.Is(err, ErrPushConstantSize) {
		t.Errorf("expected ErrPushConstantSize, got %v", err)
	}
}

func TestPipelineMustMatchPassOutputs(t *testing.T) {
	dev := recorder.NewDevice()
	reg := pass.NewRegistry(dev, nil)
	_, err := New(dev, reg, Spec{
		Name: "mismatch",
		Source: CreatePass{Spec: pass.Spec{
			Name: "mismatch", Width: 4, Height: 4, Frames: 1,
			Attachments: []pass.Attachment{pass.NewAttachment{Name: "c", Format: gpu.FormatRGBA8Unorm}},
		}},
		Pipelines: []PipelineSpec{{Name: "mrt", ColorOutputs: 3}},
	})
	if err == nil {
		t.Fatal("expected an output count mismatch error")
	}
	if images, _, pipelines := dev.Live(); images != 0 || pipelines != 0 {
		t.Errorf("failed construction leaked %d images and %d pipelines", images, pipelines)
	}
}

func TestReferencePassIsNotOwned(t *testing.T) {
	dev := recorder.NewDevice()
	reg := pass.NewRegistry(dev, nil)
	p, err := reg.Create(pass.Spec{
		Name: "shared", Width: 4, Height: 4, Frames: 1,
		Attachments: []pass.Attachment{pass.NewAttachment{Name: "c", Format: gpu.FormatRGBA8Unorm}},
	})
	if err != nil {
		t.Fatal(err)
	}
	rp, err := New(dev, reg, Spec{Name: "ref", Source: ReferencePass{ID: p.ID}, Pipelines: []PipelineSpec{{Name: "ref"}}})
	if err != nil {
		t.Fatal(err)
	}
	rp.Destroy()
	rp.Destroy()
	if p.Destroyed() {
		t.Error("a referenced pass must outlive the renderpass")
	}
}
