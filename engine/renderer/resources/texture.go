// Package resources wraps device objects the renderer owns: textures,
// buffers, samplers and per-frame descriptor sets.
package resources

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

var ErrUnsupportedFormat = errors.New("unsupported texel format")

type TextureSpec struct {
	Name    string
	Width   uint32
	Height  uint32
	Layers  uint32
	Format  gpu.Format
	Samples uint32
	Usage   gpu.ImageUsage
	// StencilView requests a second view over the stencil aspect.
	StencilView bool

	LoadOp        gpu.LoadOp
	StoreOp       gpu.StoreOp
	InitialLayout gpu.ImageLayout

	// Preexisting makes the new texture an alias of an existing one: image,
	// views and memory are shared and only LoadOp/InitialLayout come from
	// this spec. Aliases never free the underlying objects.
	Preexisting *Texture
}

type Texture struct {
	Name        string
	Image       gpu.Image
	View        gpu.ImageView
	StencilView gpu.ImageView
	Width       uint32
	Height      uint32
	Layers      uint32
	Format      gpu.Format
	Samples     uint32

	LoadOp        gpu.LoadOp
	StoreOp       gpu.StoreOp
	InitialLayout gpu.ImageLayout

	dev       gpu.Device
	memory    gpu.Memory
	alias     bool
	destroyed bool
}

func NewTexture(dev gpu.Device, spec TextureSpec) (*Texture, error) {
	if spec.Preexisting != nil {
		src := spec.Preexisting
		if src.destroyed {
			return nil, fmt.Errorf("texture %q aliases destroyed texture %q", spec.Name, src.Name)
		}
		return &Texture{
			Name:          src.Name,
			Image:         src.Image,
			View:          src.View,
			StencilView:   src.StencilView,
			Width:         src.Width,
			Height:        src.Height,
			Layers:        src.Layers,
			Format:        src.Format,
			Samples:       src.Samples,
			LoadOp:        spec.LoadOp,
			StoreOp:       src.StoreOp,
			InitialLayout: spec.InitialLayout,
			dev:           dev,
			alias:         true,
		}, nil
	}

	if spec.Name == "" {
		spec.Name = "texture-" + uuid.NewString()
	}
	if spec.Layers == 0 {
		spec.Layers = 1
	}
	if spec.Samples == 0 {
		spec.Samples = 1
	}
	if spec.StencilView && !spec.Format.HasStencil() {
		return nil, fmt.Errorf("texture %q: format %s has no stencil aspect", spec.Name, spec.Format)
	}

	img, mem, err := dev.CreateImage(gpu.ImageDesc{
		Name:    spec.Name,
		Width:   spec.Width,
		Height:  spec.Height,
		Layers:  spec.Layers,
		Format:  spec.Format,
		Samples: spec.Samples,
		Usage:   spec.Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("texture %q: %w", spec.Name, err)
	}
	t := &Texture{
		Name:          spec.Name,
		Image:         img,
		Width:         spec.Width,
		Height:        spec.Height,
		Layers:        spec.Layers,
		Format:        spec.Format,
		Samples:       spec.Samples,
		LoadOp:        spec.LoadOp,
		StoreOp:       spec.StoreOp,
		InitialLayout: spec.InitialLayout,
		dev:           dev,
		memory:        mem,
	}

	aspect := gpu.AspectColor
	if spec.Format.IsDepth() {
		aspect = gpu.AspectDepth
	}
	t.View, err = dev.CreateImageView(gpu.ImageViewDesc{
		Image:      img,
		Format:     spec.Format,
		Aspect:     aspect,
		LayerCount: spec.Layers,
		Array:      spec.Layers > 1,
	})
	if err != nil {
		t.Destroy()
		return nil, fmt.Errorf("texture %q view: %w", spec.Name, err)
	}
	if spec.StencilView {
		t.StencilView, err = dev.CreateImageView(gpu.ImageViewDesc{
			Image:      img,
			Format:     spec.Format,
			Aspect:     gpu.AspectStencil,
			LayerCount: spec.Layers,
			Array:      spec.Layers > 1,
		})
		if err != nil {
			t.Destroy()
			return nil, fmt.Errorf("texture %q stencil view: %w", spec.Name, err)
		}
	}
	return t, nil
}

func (t *Texture) IsDepth() bool {
	return t.Format.IsDepth()
}

// IsAlias reports whether t shares another texture's image.
func (t *Texture) IsAlias() bool {
	return t.alias
}

// ReadableLayout is the layout the texture is sampled in once its producing
// pass has transitioned it.
func (t *Texture) ReadableLayout() gpu.ImageLayout {
	if t.IsDepth() {
		return gpu.ImageLayoutDepthStencilReadOnlyOptimal
	}
	return gpu.ImageLayoutShaderReadOnlyOptimal
}

// AttachmentLayout is the layout the texture is in while rendered to.
func (t *Texture) AttachmentLayout() gpu.ImageLayout {
	if t.IsDepth() {
		return gpu.ImageLayoutDepthStencilAttachmentOptimal
	}
	return gpu.ImageLayoutColorAttachmentOptimal
}

// Destroy frees the texture. It is safe to call more than once; aliases only
// mark themselves destroyed.
func (t *Texture) Destroy() {
	if t == nil || t.destroyed {
		return
	}
	t.destroyed = true
	if t.alias {
		return
	}
	if t.StencilView != 0 {
		t.dev.DestroyImageView(t.StencilView)
	}
	if t.View != 0 {
		t.dev.DestroyImageView(t.View)
	}
	t.dev.DestroyImage(t.Image, t.memory)
	core.LogDebug("texture %s destroyed", t.Name)
}

func (t *Texture) Destroyed() bool {
	return t.destroyed
}

// UploadTexture creates a sampled texture and fills every layer from pixels
// through a staging buffer. The texture is left in ShaderReadOnlyOptimal.
func UploadTexture(dev gpu.Device, name string, width, height, layers uint32, format gpu.Format, pixels []byte) (*Texture, error) {
	if layers == 0 {
		layers = 1
	}
	want := int(width) * int(height) * int(layers) * format.BytesPerPixel()
	if len(pixels) != want {
		return nil, fmt.Errorf("texture %q: expected %d bytes of pixels, got %d", name, want, len(pixels))
	}
	t, err := NewTexture(dev, TextureSpec{
		Name:   name,
		Width:  width,
		Height: height,
		Layers: layers,
		Format: format,
		Usage:  gpu.ImageUsageSampled | gpu.ImageUsageTransferDst | gpu.ImageUsageTransferSrc,
	})
	if err != nil {
		return nil, err
	}
	staging, err := NewBuffer(dev, BufferSpec{
		Name:   name + "-staging",
		Size:   uint64(len(pixels)),
		Usage:  gpu.BufferUsageTransferSrc,
		Memory: gpu.MemoryHostVisible,
	})
	if err != nil {
		t.Destroy()
		return nil, err
	}
	defer staging.Destroy()
	if err := staging.Write(0, pixels); err != nil {
		t.Destroy()
		return nil, err
	}

	aspect := gpu.AspectOf(format)
	regions := make([]gpu.BufferImageCopy, layers)
	layerSize := uint64(width) * uint64(height) * uint64(format.BytesPerPixel())
	for l := range regions {
		regions[l] = gpu.BufferImageCopy{
			BufferOffset: uint64(l) * layerSize,
			Width:        width,
			Height:       height,
			Layer:        uint32(l),
			Aspect:       aspect,
		}
	}
	err = dev.ImmediateSubmit(func(cmd gpu.CommandBuffer) error {
		cmd.PipelineBarrier(gpu.StageTopOfPipe, gpu.StageTransfer, []gpu.ImageBarrier{{
			Image:      t.Image,
			OldLayout:  gpu.ImageLayoutUndefined,
			NewLayout:  gpu.ImageLayoutTransferDstOptimal,
			DstAccess:  gpu.AccessTransferWrite,
			Aspect:     aspect,
			LayerCount: layers,
		}}, nil)
		cmd.CopyBufferToImage(staging.Handle, t.Image, gpu.ImageLayoutTransferDstOptimal, regions)
		cmd.PipelineBarrier(gpu.StageTransfer, gpu.StageFragmentShader, []gpu.ImageBarrier{{
			Image:      t.Image,
			OldLayout:  gpu.ImageLayoutTransferDstOptimal,
			NewLayout:  gpu.ImageLayoutShaderReadOnlyOptimal,
			SrcAccess:  gpu.AccessTransferWrite,
			DstAccess:  gpu.AccessShaderRead,
			Aspect:     aspect,
			LayerCount: layers,
		}}, nil)
		return nil
	})
	if err != nil {
		t.Destroy()
		return nil, fmt.Errorf("texture %q upload: %w", name, err)
	}
	return t, nil
}

// Sample reads back the texel at (x, y) of layer z and decodes it. current
// is the layout the image is in; it is restored afterwards. This stalls the
// device and is meant for debugging and picking.
func (t *Texture) Sample(x, y, z uint32, current gpu.ImageLayout) ([4]float32, error) {
	if t.destroyed {
		return [4]float32{}, fmt.Errorf("sample of destroyed texture %q", t.Name)
	}
	if x >= t.Width || y >= t.Height || z >= t.Layers {
		return [4]float32{}, fmt.Errorf("sample (%d,%d,%d) outside texture %q of %dx%dx%d", x, y, z, t.Name, t.Width, t.Height, t.Layers)
	}
	if !CanDecode(t.Format) {
		return [4]float32{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, t.Format)
	}
	bpp := t.Format.BytesPerPixel()
	readback, err := NewBuffer(t.dev, BufferSpec{
		Name:   t.Name + "-readback",
		Size:   uint64(bpp),
		Usage:  gpu.BufferUsageTransferDst,
		Memory: gpu.MemoryHostVisible,
	})
	if err != nil {
		return [4]float32{}, err
	}
	defer readback.Destroy()

	aspect := gpu.AspectColor
	if t.IsDepth() {
		aspect = gpu.AspectDepth
	}
	err = t.dev.ImmediateSubmit(func(cmd gpu.CommandBuffer) error {
		cmd.PipelineBarrier(gpu.StageBottomOfPipe, gpu.StageTransfer, []gpu.ImageBarrier{{
			Image:      t.Image,
			OldLayout:  current,
			NewLayout:  gpu.ImageLayoutTransferSrcOptimal,
			DstAccess:  gpu.AccessTransferRead,
			Aspect:     aspect,
			BaseLayer:  z,
			LayerCount: 1,
		}}, nil)
		cmd.CopyImageToBuffer(t.Image, gpu.ImageLayoutTransferSrcOptimal, readback.Handle, []gpu.BufferImageCopy{{
			X:      int32(x),
			Y:      int32(y),
			Width:  1,
			Height: 1,
			Layer:  z,
			Aspect: aspect,
		}})
		cmd.PipelineBarrier(gpu.StageTransfer, gpu.StageTopOfPipe, []gpu.ImageBarrier{{
			Image:      t.Image,
			OldLayout:  gpu.ImageLayoutTransferSrcOptimal,
			NewLayout:  current,
			SrcAccess:  gpu.AccessTransferRead,
			Aspect:     aspect,
			BaseLayer:  z,
			LayerCount: 1,
		}}, nil)
		return nil
	})
	if err != nil {
		return [4]float32{}, err
	}
	raw := make([]byte, bpp)
	if err := readback.Read(0, raw); err != nil {
		return [4]float32{}, err
	}
	return DecodeTexel(t.Format, raw)
}
