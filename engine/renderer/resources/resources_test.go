package resources

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu/recorder"
)

func TestDecodeTexel(t *testing.T) {
	f32 := func(v float32) []byte { return binary.LittleEndian.AppendUint32(nil, math.Float32bits(v)) }

	tests := []struct {
		name   string
		format gpu.Format
		raw    []byte
		want   [4]float32
	}{
		{"r8", gpu.FormatR8Unorm, []byte{255}, [4]float32{1, 0, 0, 1}},
		{"rgba8", gpu.FormatRGBA8Unorm, []byte{0, 51, 102, 255}, [4]float32{0, 0.2, 0.4, 1}},
		{"bgra8 swizzle", gpu.FormatBGRA8Unorm, []byte{255, 0, 0, 255}, [4]float32{0, 0, 1, 1}},
		{"r16 one", gpu.FormatR16Sfloat, []byte{0x00, 0x3c}, [4]float32{1, 0, 0, 1}},
		{"r16 negative two", gpu.FormatR16Sfloat, []byte{0x00, 0xc0}, [4]float32{-2, 0, 0, 1}},
		{"r32 float", gpu.FormatR32Sfloat, f32(0.25), [4]float32{0.25, 0, 0, 1}},
		{"depth", gpu.FormatD32Sfloat, f32(0.5), [4]float32{0.5, 0, 0, 1}},
		{"r32 sint", gpu.FormatR32Sint, binary.LittleEndian.AppendUint32(nil, uint32(0xffffffff)), [4]float32{-1, 0, 0, 1}},
		{"r32 uint", gpu.FormatR32Uint, binary.LittleEndian.AppendUint32(nil, 7), [4]float32{7, 0, 0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeTexel(tt.format, tt.raw)
			if err != nil {
				t.Fatal(err)
			}
			for i := range got {
				if math.Abs(float64(got[i]-tt.want[i])) > 1e-3 {
					t.Fatalf("expected %v, got %v", tt.want, got)
				}
			}
		})
	}
}

func TestDecodeUnsupported(t *testing.T) {
	if _, err := DecodeTexel(gpu.FormatD24UnormS8Uint, make([]byte, 4)); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestHalfRoundTrip(t *testing.T) {
	for _, v := range []float32{0, 1, -1, 0.5, 3.140625, 65504, 6.0e-8} {
		texel, err := DecodeTexel(gpu.FormatR16Sfloat, EncodeHalf([]float32{v}))
		if err != nil {
			t.Fatal(err)
		}
		if got := texel[0]; math.Abs(float64(got-v)) > math.Abs(float64(v))*1e-3+1e-7 {
			t.Errorf("round trip of %v gave %v", v, got)
		}
	}
}

func TestUploadAndSample(t *testing.T) {
	dev := recorder.NewDevice()
	pixels := []byte{
		0, 0, 0, 255, 255, 0, 0, 255,
		0, 255, 0, 255, 0, 0, 255, 255,
	}
	tex, err := UploadTexture(dev, "checker", 2, 2, 1, gpu.FormatRGBA8Unorm, pixels)
	if err != nil {
		t.Fatal(err)
	}
	if got := dev.ImageLayout(tex.Image); got != gpu.ImageLayoutShaderReadOnlyOptimal {
		t.Fatalf("expected shader read only after upload, got %s", got)
	}

	texel, err := tex.Sample(0, 1, 0, gpu.ImageLayoutShaderReadOnlyOptimal)
	if err != nil {
		t.Fatal(err)
	}
	if texel != [4]float32{0, 1, 0, 1} {
		t.Errorf("expected green, got %v", texel)
	}
	if got := dev.ImageLayout(tex.Image); got != gpu.ImageLayoutShaderReadOnlyOptimal {
		t.Errorf("sample must restore layout, got %s", got)
	}
	if v := dev.Violations(); len(v) != 0 {
		t.Errorf("unexpected violations: %v", v)
	}
	if _, err := tex.Sample(2, 0, 0, gpu.ImageLayoutShaderReadOnlyOptimal); err == nil {
		t.Error("expected out of range error")
	}
}

func TestAliasDestroyIsIdempotent(t *testing.T) {
	dev := recorder.NewDevice()
	owner, err := NewTexture(dev, TextureSpec{Name: "owner", Width: 4, Height: 4, Format: gpu.FormatRGBA16Sfloat, Usage: gpu.ImageUsageColorAttachment})
	if err != nil {
		t.Fatal(err)
	}
	alias, err := NewTexture(dev, TextureSpec{
		Preexisting:   owner,
		LoadOp:        gpu.LoadOpLoad,
		InitialLayout: gpu.ImageLayoutColorAttachmentOptimal,
	})
	if err != nil {
		t.Fatal(err)
	}
	if alias.Image != owner.Image || alias.View != owner.View {
		t.Fatal("alias must share image and view")
	}
	if alias.LoadOp != gpu.LoadOpLoad || alias.InitialLayout != gpu.ImageLayoutColorAttachmentOptimal {
		t.Errorf("alias must override load op and initial layout, got %+v", alias)
	}

	alias.Destroy()
	alias.Destroy()
	if images, _, _ := dev.Live(); images != 1 {
		t.Fatalf("destroying an alias must not free the image, %d live", images)
	}
	owner.Destroy()
	owner.Destroy()
	if images, _, _ := dev.Live(); images != 0 {
		t.Errorf("expected no live images, got %d", images)
	}
	if len(dev.Violations()) != 0 {
		t.Errorf("double destroy reached the device: %v", dev.Violations())
	}
}

func TestStencilViewNeedsStencilFormat(t *testing.T) {
	dev := recorder.NewDevice()
	_, err := NewTexture(dev, TextureSpec{Width: 1, Height: 1, Format: gpu.FormatD32Sfloat, StencilView: true})
	if err == nil {
		t.Fatal("expected error for stencil view on depth only format")
	}
	tex, err := NewTexture(dev, TextureSpec{Width: 1, Height: 1, Format: gpu.FormatD24UnormS8Uint, StencilView: true})
	if err != nil {
		t.Fatal(err)
	}
	if tex.StencilView == 0 {
		t.Error("expected a stencil view")
	}
}

func TestTextureArrayPadsWithNull(t *testing.T) {
	dev := recorder.NewDevice()
	null, _ := UploadTexture(dev, "null", 1, 1, 1, gpu.FormatRGBA8Unorm, []byte{255, 0, 255, 255})
	a, _ := UploadTexture(dev, "a", 1, 1, 1, gpu.FormatRGBA8Unorm, []byte{1, 2, 3, 4})
	sampler, _ := NewSampler(dev, LinearRepeat)

	ds, err := NewDescriptorSet(dev, "bindless", 2, []Descriptor{
		TextureArray{Capacity: 8, Textures: []*Texture{a}, Null: null, Sampler: sampler, Stages: gpu.ShaderStageFragment},
	})
	if err != nil {
		t.Fatal(err)
	}
	for f, set := range ds.Sets {
		infos := dev.DescriptorImages(set, 0)
		if len(infos) != 8 {
			t.Fatalf("frame %d: expected 8 slots, got %d", f, len(infos))
		}
		if infos[0].View != a.View {
			t.Errorf("frame %d: slot 0 should hold the registered texture", f)
		}
		for i := 1; i < 8; i++ {
			if infos[i].View != null.View {
				t.Errorf("frame %d: slot %d should hold the null texture", f, i)
			}
		}
	}

	b, _ := UploadTexture(dev, "b", 1, 1, 1, gpu.FormatRGBA8Unorm, []byte{5, 6, 7, 8})
	if err := ds.UpdateTextureArray(0, []*Texture{a, b}); err != nil {
		t.Fatal(err)
	}
	if infos := dev.DescriptorImages(ds.Sets[1], 0); infos[1].View != b.View || infos[2].View != null.View {
		t.Error("update must rewrite the whole array")
	}

	tooMany := make([]*Texture, 9)
	for i := range tooMany {
		tooMany[i] = a
	}
	if err := ds.UpdateTextureArray(0, tooMany); err == nil {
		t.Error("expected capacity error")
	}
}

type busyGuard struct{ busy map[int]bool }

func (g busyGuard) CanWrite(frame int) error {
	if g.busy[frame] {
		return errors.New("busy")
	}
	return nil
}

func TestWriteUniformRespectsGuard(t *testing.T) {
	dev := recorder.NewDevice()
	ds, err := NewDescriptorSet(dev, "camera", 2, []Descriptor{UniformBuffer{Size: 64, Stages: gpu.ShaderStageVertex}})
	if err != nil {
		t.Fatal(err)
	}
	ds.SetGuard(busyGuard{busy: map[int]bool{1: true}})

	if err := ds.WriteUniform(0, 0, make([]byte, 64)); err != nil {
		t.Errorf("frame 0 write: %v", err)
	}
	if err := ds.WriteUniform(1, 0, make([]byte, 64)); err == nil {
		t.Error("expected guard to reject frame 1")
	}
	if err := ds.WriteUniform(0, 0, make([]byte, 65)); err == nil {
		t.Error("expected overflow error")
	}
	if ds.uniforms[0][0] == ds.uniforms[0][1] {
		t.Error("each frame needs its own uniform buffer")
	}
}

func TestCheckLayoutsUsesTracker(t *testing.T) {
	dev := recorder.NewDevice()
	tex, _ := NewTexture(dev, TextureSpec{Name: "gbuffer", Width: 2, Height: 2, Format: gpu.FormatRGBA8Unorm, Usage: gpu.ImageUsageSampled | gpu.ImageUsageColorAttachment})
	ds, err := NewDescriptorSet(dev, "lighting", 1, []Descriptor{ImageDescriptor{Textures: []*Texture{tex}, Stages: gpu.ShaderStageFragment}})
	if err != nil {
		t.Fatal(err)
	}
	tracker := NewLayoutTracker()
	tracker.Track(tex, gpu.ImageLayoutColorAttachmentOptimal)

	if err := ds.CheckLayouts(0, tracker); !errors.Is(err, ErrLayoutMismatch) {
		t.Fatalf("expected ErrLayoutMismatch, got %v", err)
	}

	tracker.Set(tex.Image, gpu.ImageLayoutShaderReadOnlyOptimal)
	if err := ds.CheckLayouts(0, tracker); err != nil {
		t.Fatalf("check after transition: %v", err)
	}
	cmd := dev.NewCommandBuffer()
	ds.Bind(cmd, 0, 0, 0)
	if cmd.Count(recorder.CmdBindDescriptorSet) != 1 {
		t.Error("bind not recorded")
	}
	var nilTracker *LayoutTracker
	if err := nilTracker.Expect(tex.Image, gpu.ImageLayoutGeneral, "noop"); err != nil {
		t.Errorf("nil tracker must accept everything, got %v", err)
	}
}
