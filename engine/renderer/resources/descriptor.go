package resources

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// Descriptor is one binding of a DescriptorSet. Bindings are numbered by
// their position in the list handed to NewDescriptorSet.
type Descriptor interface {
	layoutBinding(binding uint32) gpu.DescriptorBinding
}

// UniformBuffer allocates one host visible buffer of Size bytes per frame.
type UniformBuffer struct {
	Size   uint64
	Stages gpu.ShaderStage
}

// StorageBuffer binds existing buffers, either one per frame or a single
// buffer shared by all frames.
type StorageBuffer struct {
	Buffers []*Buffer
	Stages  gpu.ShaderStage
}

// ImageDescriptor binds one texture per frame (or one shared texture) as a
// combined image sampler. Layout defaults to the texture's readable layout.
type ImageDescriptor struct {
	Textures []*Texture
	Sampler  *Sampler
	Layout   gpu.ImageLayout
	Stages   gpu.ShaderStage
}

// TextureArray is a fixed size bindless array. Slots past the supplied
// textures are filled with Null.
type TextureArray struct {
	Capacity uint32
	Textures []*Texture
	Null     *Texture
	Sampler  *Sampler
	Stages   gpu.ShaderStage
}

func (d UniformBuffer) layoutBinding(b uint32) gpu.DescriptorBinding {
	return gpu.DescriptorBinding{Binding: b, Type: gpu.DescriptorUniformBuffer, Count: 1, Stages: d.Stages}
}

func (d StorageBuffer) layoutBinding(b uint32) gpu.DescriptorBinding {
	return gpu.DescriptorBinding{Binding: b, Type: gpu.DescriptorStorageBuffer, Count: 1, Stages: d.Stages}
}

func (d ImageDescriptor) layoutBinding(b uint32) gpu.DescriptorBinding {
	return gpu.DescriptorBinding{Binding: b, Type: gpu.DescriptorCombinedImageSampler, Count: 1, Stages: d.Stages}
}

func (d TextureArray) layoutBinding(b uint32) gpu.DescriptorBinding {
	return gpu.DescriptorBinding{Binding: b, Type: gpu.DescriptorCombinedImageSampler, Count: d.Capacity, Stages: d.Stages}
}

// SlotGuard decides whether host memory of a frame slot may be written.
type SlotGuard interface {
	CanWrite(frame int) error
}

// DescriptorSet is one native set per frame in flight, all sharing a layout.
type DescriptorSet struct {
	Name   string
	Layout gpu.DescriptorSetLayout
	Sets   []gpu.DescriptorSet

	dev         gpu.Device
	descriptors []Descriptor
	uniforms    map[uint32][]*Buffer
	guard       SlotGuard
	destroyed   bool
}

func NewDescriptorSet(dev gpu.Device, name string, frames int, descriptors []Descriptor) (*DescriptorSet, error) {
	if frames <= 0 {
		return nil, fmt.Errorf("descriptor set %q: frames must be positive", name)
	}
	bindings := make([]gpu.DescriptorBinding, len(descriptors))
	for i, d := range descriptors {
		bindings[i] = d.layoutBinding(uint32(i))
	}
	layout, err := dev.CreateDescriptorSetLayout(gpu.DescriptorSetLayoutDesc{Bindings: bindings})
	if err != nil {
		return nil, fmt.Errorf("descriptor set %q layout: %w", name, err)
	}
	sets, err := dev.AllocateDescriptorSets(layout, frames)
	if err != nil {
		dev.DestroyDescriptorSetLayout(layout)
		return nil, fmt.Errorf("descriptor set %q: %w", name, err)
	}
	ds := &DescriptorSet{
		Name:        name,
		Layout:      layout,
		Sets:        sets,
		dev:         dev,
		descriptors: append([]Descriptor(nil), descriptors...),
		uniforms:    make(map[uint32][]*Buffer),
	}

	var writes []gpu.DescriptorWrite
	for i, d := range descriptors {
		binding := uint32(i)
		for f := 0; f < frames; f++ {
			w, err := ds.buildWrite(binding, d, f)
			if err != nil {
				ds.Destroy()
				return nil, err
			}
			writes = append(writes, w)
		}
	}
	dev.UpdateDescriptorSets(writes)
	return ds, nil
}

func pick[T any](items []T, frame int) (T, error) {
	var zero T
	switch len(items) {
	case 0:
		return zero, errors.New("no resource supplied")
	case 1:
		return items[0], nil
	}
	if frame >= len(items) {
		return zero, fmt.Errorf("no resource for frame %d", frame)
	}
	return items[frame], nil
}

func (ds *DescriptorSet) buildWrite(binding uint32, d Descriptor, frame int) (gpu.DescriptorWrite, error) {
	w := gpu.DescriptorWrite{Set: ds.Sets[frame], Binding: binding}
	switch d := d.(type) {
	case UniformBuffer:
		buf, err := NewBuffer(ds.dev, BufferSpec{
			Name:   fmt.Sprintf("%s-ubo-%d-%d", ds.Name, binding, frame),
			Size:   d.Size,
			Usage:  gpu.BufferUsageUniform,
			Memory: gpu.MemoryHostVisible,
		})
		if err != nil {
			return w, err
		}
		ds.uniforms[binding] = append(ds.uniforms[binding], buf)
		w.Type = gpu.DescriptorUniformBuffer
		w.Buffers = []gpu.BufferInfo{{Buffer: buf.Handle, Range: d.Size}}
	case StorageBuffer:
		buf, err := pick(d.Buffers, frame)
		if err != nil {
			return w, fmt.Errorf("descriptor set %q binding %d: %w", ds.Name, binding, err)
		}
		w.Type = gpu.DescriptorStorageBuffer
		w.Buffers = []gpu.BufferInfo{{Buffer: buf.Handle, Range: buf.Size}}
	case ImageDescriptor:
		tex, err := pick(d.Textures, frame)
		if err != nil {
			return w, fmt.Errorf("descriptor set %q binding %d: %w", ds.Name, binding, err)
		}
		w.Type = gpu.DescriptorCombinedImageSampler
		w.Images = []gpu.ImageInfo{imageInfo(tex, d.Sampler, d.Layout)}
	case TextureArray:
		infos, err := arrayInfos(d, d.Textures)
		if err != nil {
			return w, fmt.Errorf("descriptor set %q binding %d: %w", ds.Name, binding, err)
		}
		w.Type = gpu.DescriptorCombinedImageSampler
		w.Images = infos
	default:
		return w, fmt.Errorf("descriptor set %q binding %d: unknown descriptor %T", ds.Name, binding, d)
	}
	return w, nil
}

func imageInfo(t *Texture, s *Sampler, layout gpu.ImageLayout) gpu.ImageInfo {
	if layout == gpu.ImageLayoutUndefined {
		layout = t.ReadableLayout()
	}
	var sampler gpu.Sampler
	if s != nil {
		sampler = s.Handle
	}
	return gpu.ImageInfo{View: t.View, Sampler: sampler, Layout: layout}
}

func arrayInfos(d TextureArray, textures []*Texture) ([]gpu.ImageInfo, error) {
	if uint32(len(textures)) > d.Capacity {
		return nil, fmt.Errorf("%d textures exceed texture array capacity %d", len(textures), d.Capacity)
	}
	if d.Null == nil && uint32(len(textures)) < d.Capacity {
		return nil, fmt.Errorf("texture array needs a null texture to pad %d slots", d.Capacity-uint32(len(textures)))
	}
	infos := make([]gpu.ImageInfo, d.Capacity)
	for i := range infos {
		t := d.Null
		if i < len(textures) && textures[i] != nil {
			t = textures[i]
		}
		infos[i] = imageInfo(t, d.Sampler, gpu.ImageLayoutShaderReadOnlyOptimal)
	}
	return infos, nil
}

// SetGuard installs the frame slot guard consulted by WriteUniform.
func (ds *DescriptorSet) SetGuard(g SlotGuard) {
	ds.guard = g
}

// WriteUniform copies data into the uniform buffer of binding for frame.
func (ds *DescriptorSet) WriteUniform(frame int, binding uint32, data []byte) error {
	bufs, ok := ds.uniforms[binding]
	if !ok {
		return fmt.Errorf("descriptor set %q binding %d is not a uniform buffer", ds.Name, binding)
	}
	if frame < 0 || frame >= len(bufs) {
		return fmt.Errorf("descriptor set %q: frame %d out of range", ds.Name, frame)
	}
	if ds.guard != nil {
		if err := ds.guard.CanWrite(frame); err != nil {
			return fmt.Errorf("descriptor set %q: %w", ds.Name, err)
		}
	}
	return bufs[frame].Write(0, data)
}

// UpdateTextureArray rewrites the whole bindless array of binding in every
// frame's set. The caller must make sure no submitted frame still reads it.
func (ds *DescriptorSet) UpdateTextureArray(binding uint32, textures []*Texture) error {
	if int(binding) >= len(ds.descriptors) {
		return fmt.Errorf("descriptor set %q has no binding %d", ds.Name, binding)
	}
	arr, ok := ds.descriptors[binding].(TextureArray)
	if !ok {
		return fmt.Errorf("descriptor set %q binding %d is not a texture array", ds.Name, binding)
	}
	infos, err := arrayInfos(arr, textures)
	if err != nil {
		return fmt.Errorf("descriptor set %q binding %d: %w", ds.Name, binding, err)
	}
	arr.Textures = append([]*Texture(nil), textures...)
	ds.descriptors[binding] = arr

	writes := make([]gpu.DescriptorWrite, len(ds.Sets))
	for f, set := range ds.Sets {
		writes[f] = gpu.DescriptorWrite{
			Set:     set,
			Binding: binding,
			Type:    gpu.DescriptorCombinedImageSampler,
			Images:  infos,
		}
	}
	ds.dev.UpdateDescriptorSets(writes)
	return nil
}

// Bind records the bind of frame's set at set index index. Layouts are
// checked separately with CheckLayouts, before any render target begins.
func (ds *DescriptorSet) Bind(cmd gpu.CommandBuffer, pipeline gpu.Pipeline, index uint32, frame int) {
	cmd.BindDescriptorSet(pipeline, index, ds.Sets[frame])
}

// CheckLayouts verifies that every sampled texture of frame is in the layout
// its descriptor was written with.
func (ds *DescriptorSet) CheckLayouts(frame int, tracker *LayoutTracker) error {
	if ds.destroyed {
		return fmt.Errorf("descriptor set %q destroyed", ds.Name)
	}
	if frame < 0 || frame >= len(ds.Sets) {
		return fmt.Errorf("descriptor set %q: frame %d out of range", ds.Name, frame)
	}
	if tracker == nil {
		return nil
	}
	for i, d := range ds.descriptors {
		img, ok := d.(ImageDescriptor)
		if !ok {
			continue
		}
		tex, err := pick(img.Textures, frame)
		if err != nil {
			return err
		}
		want := imageInfo(tex, img.Sampler, img.Layout).Layout
		if err := tracker.Expect(tex.Image, want, fmt.Sprintf("%s binding %d", ds.Name, i)); err != nil {
			return err
		}
	}
	return nil
}

func (ds *DescriptorSet) Destroy() {
	if ds == nil || ds.destroyed {
		return
	}
	ds.destroyed = true
	for _, bufs := range ds.uniforms {
		for _, b := range bufs {
			b.Destroy()
		}
	}
	ds.dev.FreeDescriptorSets(ds.Sets)
	ds.dev.DestroyDescriptorSetLayout(ds.Layout)
}
