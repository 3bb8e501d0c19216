// Package recorder is an in-memory gpu.Device. Buffers and images have real
// byte backing, copies execute on submit, and every recorded command is
// checked against tracked image layouts the way a validation layer would.
package recorder

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

type EventKind int

const (
	EventWrite EventKind = iota
	EventSubmit
	EventFenceSignal
	EventPresent
	EventWaitIdle
	EventImmediateSubmit
	EventDescriptorUpdate
)

// Event is one entry of the device timeline.
type Event struct {
	Kind   EventKind
	Frame  int
	Memory gpu.Memory
	Offset uint64
	Size   uint64
	Image  uint32
}

type allocation struct {
	data   []byte
	host   bool
	mapped bool
}

type image struct {
	desc   gpu.ImageDesc
	memory gpu.Memory
	layout gpu.ImageLayout
	data   []byte
}

type view struct {
	desc gpu.ImageViewDesc
}

type buffer struct {
	desc   gpu.BufferDesc
	memory gpu.Memory
}

type descriptorSet struct {
	layout gpu.DescriptorSetLayout
	images map[uint32][]gpu.ImageInfo
	bufs   map[uint32][]gpu.BufferInfo
}

type Device struct {
	mu   sync.Mutex
	next uint64

	memory       map[gpu.Memory]*allocation
	images       map[gpu.Image]*image
	views        map[gpu.ImageView]*view
	buffers      map[gpu.Buffer]*buffer
	samplers     map[gpu.Sampler]gpu.SamplerDesc
	targets      map[gpu.RenderTarget]gpu.RenderTargetDesc
	framebuffers map[gpu.Framebuffer]gpu.FramebufferDesc
	layouts      map[gpu.DescriptorSetLayout]gpu.DescriptorSetLayoutDesc
	sets         map[gpu.DescriptorSet]*descriptorSet
	pipelines    map[gpu.Pipeline]gpu.PipelineDesc

	events     []Event
	violations []error
}

var ErrUnknownHandle = errors.New("unknown handle")

func NewDevice() *Device {
	return &Device{
		memory:       make(map[gpu.Memory]*allocation),
		images:       make(map[gpu.Image]*image),
		views:        make(map[gpu.ImageView]*view),
		buffers:      make(map[gpu.Buffer]*buffer),
		samplers:     make(map[gpu.Sampler]gpu.SamplerDesc),
		targets:      make(map[gpu.RenderTarget]gpu.RenderTargetDesc),
		framebuffers: make(map[gpu.Framebuffer]gpu.FramebufferDesc),
		layouts:      make(map[gpu.DescriptorSetLayout]gpu.DescriptorSetLayoutDesc),
		sets:         make(map[gpu.DescriptorSet]*descriptorSet),
		pipelines:    make(map[gpu.Pipeline]gpu.PipelineDesc),
	}
}

func (d *Device) handle() uint64 {
	d.next++
	return d.next
}

func (d *Device) NewCommandBuffer() *CommandBuffer {
	return &CommandBuffer{dev: d}
}

func (d *Device) CreateImage(desc gpu.ImageDesc) (gpu.Image, gpu.Memory, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return 0, 0, fmt.Errorf("image %q has zero extent", desc.Name)
	}
	if desc.Layers == 0 {
		desc.Layers = 1
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	size := int(desc.Width) * int(desc.Height) * int(desc.Layers) * desc.Format.BytesPerPixel()
	mem := gpu.Memory(d.handle())
	d.memory[mem] = &allocation{data: make([]byte, size)}
	img := gpu.Image(d.handle())
	d.images[img] = &image{desc: desc, memory: mem, layout: gpu.ImageLayoutUndefined, data: d.memory[mem].data}
	return img, mem, nil
}

func (d *Device) DestroyImage(img gpu.Image, mem gpu.Memory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.images[img]; !ok {
		d.violations = append(d.violations, fmt.Errorf("destroy of unknown image %d", img))
	}
	delete(d.images, img)
	delete(d.memory, mem)
}

func (d *Device) CreateImageView(desc gpu.ImageViewDesc) (gpu.ImageView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.images[desc.Image]; !ok {
		return 0, fmt.Errorf("%w: image %d", ErrUnknownHandle, desc.Image)
	}
	v := gpu.ImageView(d.handle())
	d.views[v] = &view{desc: desc}
	return v, nil
}

func (d *Device) DestroyImageView(v gpu.ImageView) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.views, v)
}

func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, gpu.Memory, error) {
	if desc.Size == 0 {
		return 0, 0, fmt.Errorf("buffer %q has zero size", desc.Name)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	mem := gpu.Memory(d.handle())
	d.memory[mem] = &allocation{data: make([]byte, desc.Size), host: desc.Memory == gpu.MemoryHostVisible}
	buf := gpu.Buffer(d.handle())
	d.buffers[buf] = &buffer{desc: desc, memory: mem}
	return buf, mem, nil
}

func (d *Device) DestroyBuffer(buf gpu.Buffer, mem gpu.Memory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.buffers[buf]; !ok {
		d.violations = append(d.violations, fmt.Errorf("destroy of unknown buffer %d", buf))
	}
	delete(d.buffers, buf)
	delete(d.memory, mem)
}

type mapping struct {
	dev *Device
	mem gpu.Memory
}

func (m *mapping) Write(offset uint64, data []byte) error {
	m.dev.mu.Lock()
	defer m.dev.mu.Unlock()
	a, ok := m.dev.memory[m.mem]
	if !ok {
		return fmt.Errorf("%w: memory %d", ErrUnknownHandle, m.mem)
	}
	if offset+uint64(len(data)) > uint64(len(a.data)) {
		return fmt.Errorf("write of %d bytes at %d overflows allocation of %d", len(data), offset, len(a.data))
	}
	copy(a.data[offset:], data)
	m.dev.events = append(m.dev.events, Event{Kind: EventWrite, Memory: m.mem, Offset: offset, Size: uint64(len(data))})
	return nil
}

func (m *mapping) Read(offset uint64, dst []byte) error {
	m.dev.mu.Lock()
	defer m.dev.mu.Unlock()
	a, ok := m.dev.memory[m.mem]
	if !ok {
		return fmt.Errorf("%w: memory %d", ErrUnknownHandle, m.mem)
	}
	if offset+uint64(len(dst)) > uint64(len(a.data)) {
		return fmt.Errorf("read of %d bytes at %d overflows allocation of %d", len(dst), offset, len(a.data))
	}
	copy(dst, a.data[offset:])
	return nil
}

func (m *mapping) Len() uint64 {
	m.dev.mu.Lock()
	defer m.dev.mu.Unlock()
	return uint64(len(m.dev.memory[m.mem].data))
}

func (d *Device) MapMemory(mem gpu.Memory) (gpu.Mapping, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.memory[mem]
	if !ok {
		return nil, fmt.Errorf("%w: memory %d", ErrUnknownHandle, mem)
	}
	if !a.host {
		return nil, gpu.ErrNotHostVisible
	}
	a.mapped = true
	return &mapping{dev: d, mem: mem}, nil
}

func (d *Device) UnmapMemory(mem gpu.Memory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if a, ok := d.memory[mem]; ok {
		a.mapped = false
	}
}

func (d *Device) CreateSampler(desc gpu.SamplerDesc) (gpu.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := gpu.Sampler(d.handle())
	d.samplers[s] = desc
	return s, nil
}

func (d *Device) DestroySampler(s gpu.Sampler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.samplers, s)
}

func (d *Device) CreateRenderTarget(desc gpu.RenderTargetDesc) (gpu.RenderTarget, error) {
	depth := 0
	for _, a := range desc.Attachments {
		if a.Format.IsDepth() {
			depth++
		}
	}
	if depth > 1 {
		return 0, fmt.Errorf("render target %q has %d depth attachments", desc.Name, depth)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	t := gpu.RenderTarget(d.handle())
	d.targets[t] = desc
	return t, nil
}

func (d *Device) DestroyRenderTarget(t gpu.RenderTarget) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.targets, t)
}

func (d *Device) CreateFramebuffer(desc gpu.FramebufferDesc) (gpu.Framebuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	target, ok := d.targets[desc.Target]
	if !ok {
		return 0, fmt.Errorf("%w: render target %d", ErrUnknownHandle, desc.Target)
	}
	if len(target.Attachments) != len(desc.Views) {
		return 0, fmt.Errorf("framebuffer has %d views, render target %q expects %d", len(desc.Views), target.Name, len(target.Attachments))
	}
	for i, v := range desc.Views {
		vw, ok := d.views[v]
		if !ok {
			return 0, fmt.Errorf("%w: image view %d", ErrUnknownHandle, v)
		}
		if vw.desc.Format != target.Attachments[i].Format {
			return 0, fmt.Errorf("framebuffer view %d format %s does not match attachment format %s", i, vw.desc.Format, target.Attachments[i].Format)
		}
	}
	fb := gpu.Framebuffer(d.handle())
	d.framebuffers[fb] = desc
	return fb, nil
}

func (d *Device) DestroyFramebuffer(fb gpu.Framebuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.framebuffers, fb)
}

func (d *Device) CreateDescriptorSetLayout(desc gpu.DescriptorSetLayoutDesc) (gpu.DescriptorSetLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l := gpu.DescriptorSetLayout(d.handle())
	d.layouts[l] = desc
	return l, nil
}

func (d *Device) DestroyDescriptorSetLayout(l gpu.DescriptorSetLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.layouts, l)
}

func (d *Device) AllocateDescriptorSets(layout gpu.DescriptorSetLayout, count int) ([]gpu.DescriptorSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.layouts[layout]; !ok {
		return nil, fmt.Errorf("%w: descriptor set layout %d", ErrUnknownHandle, layout)
	}
	sets := make([]gpu.DescriptorSet, count)
	for i := range sets {
		sets[i] = gpu.DescriptorSet(d.handle())
		d.sets[sets[i]] = &descriptorSet{
			layout: layout,
			images: make(map[uint32][]gpu.ImageInfo),
			bufs:   make(map[uint32][]gpu.BufferInfo),
		}
	}
	return sets, nil
}

func (d *Device) FreeDescriptorSets(sets []gpu.DescriptorSet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range sets {
		delete(d.sets, s)
	}
}

func (d *Device) UpdateDescriptorSets(writes []gpu.DescriptorWrite) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, w := range writes {
		s, ok := d.sets[w.Set]
		if !ok {
			d.violations = append(d.violations, fmt.Errorf("update of unknown descriptor set %d", w.Set))
			continue
		}
		if len(w.Images) > 0 {
			cur := s.images[w.Binding]
			need := int(w.ArrayElement) + len(w.Images)
			if len(cur) < need {
				cur = append(cur, make([]gpu.ImageInfo, need-len(cur))...)
			}
			copy(cur[w.ArrayElement:], w.Images)
			s.images[w.Binding] = cur
		}
		if len(w.Buffers) > 0 {
			cur := s.bufs[w.Binding]
			need := int(w.ArrayElement) + len(w.Buffers)
			if len(cur) < need {
				cur = append(cur, make([]gpu.BufferInfo, need-len(cur))...)
			}
			copy(cur[w.ArrayElement:], w.Buffers)
			s.bufs[w.Binding] = cur
		}
		d.events = append(d.events, Event{Kind: EventDescriptorUpdate})
	}
}

func (d *Device) CreatePipeline(desc gpu.PipelineDesc) (gpu.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	target, ok := d.targets[desc.Target]
	if !ok {
		return 0, fmt.Errorf("%w: render target %d", ErrUnknownHandle, desc.Target)
	}
	colors := 0
	for _, a := range target.Attachments {
		if !a.Format.IsDepth() {
			colors++
		}
	}
	if colors != desc.ColorAttachments {
		return 0, fmt.Errorf("pipeline %q writes %d color attachments, render target %q has %d", desc.Name, desc.ColorAttachments, target.Name, colors)
	}
	if desc.PushConstantSize > 128 {
		return 0, fmt.Errorf("pipeline %q push constants of %d bytes exceed 128", desc.Name, desc.PushConstantSize)
	}
	p := gpu.Pipeline(d.handle())
	d.pipelines[p] = desc
	return p, nil
}

func (d *Device) DestroyPipeline(p gpu.Pipeline) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pipelines, p)
}

func (d *Device) ImmediateSubmit(fn func(cmd gpu.CommandBuffer) error) error {
	cb := d.NewCommandBuffer()
	if err := fn(cb); err != nil {
		return err
	}
	d.Execute(cb)
	d.mu.Lock()
	d.events = append(d.events, Event{Kind: EventImmediateSubmit})
	d.mu.Unlock()
	return nil
}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, Event{Kind: EventWaitIdle})
	return nil
}

// Execute performs the transfer commands of cb against device memory.
func (d *Device) Execute(cb *CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range cb.commands {
		switch c.Kind {
		case CmdCopyBuffer:
			src, dst := d.buffers[c.Src], d.buffers[c.Dst]
			if src == nil || dst == nil {
				d.violations = append(d.violations, fmt.Errorf("copy between unknown buffers %d -> %d", c.Src, c.Dst))
				continue
			}
			sd, dd := d.memory[src.memory].data, d.memory[dst.memory].data
			for _, r := range c.Copies {
				if r.SrcOffset+r.Size > uint64(len(sd)) || r.DstOffset+r.Size > uint64(len(dd)) {
					d.violations = append(d.violations, fmt.Errorf("copy region %+v out of bounds", r))
					continue
				}
				copy(dd[r.DstOffset:r.DstOffset+r.Size], sd[r.SrcOffset:r.SrcOffset+r.Size])
			}
		case CmdCopyBufferToImage:
			src, img := d.buffers[c.Src], d.images[c.Image]
			if src == nil || img == nil {
				continue
			}
			d.copyImage(img, d.memory[src.memory].data, c.ImageCopies, true)
		case CmdCopyImageToBuffer:
			dst, img := d.buffers[c.Dst], d.images[c.Image]
			if dst == nil || img == nil {
				continue
			}
			d.copyImage(img, d.memory[dst.memory].data, c.ImageCopies, false)
		}
	}
}

func (d *Device) copyImage(img *image, buf []byte, regions []gpu.BufferImageCopy, toImage bool) {
	bpp := img.desc.Format.BytesPerPixel()
	w, h := int(img.desc.Width), int(img.desc.Height)
	for _, r := range regions {
		row := int(r.Width) * bpp
		for y := 0; y < int(r.Height); y++ {
			io := ((int(r.Layer)*h+int(r.Y)+y)*w + int(r.X)) * bpp
			bo := int(r.BufferOffset) + y*row
			if io+row > len(img.data) || bo+row > len(buf) {
				d.violations = append(d.violations, fmt.Errorf("image copy region %+v out of bounds", r))
				break
			}
			if toImage {
				copy(img.data[io:io+row], buf[bo:bo+row])
			} else {
				copy(buf[bo:bo+row], img.data[io:io+row])
			}
		}
	}
}

func (d *Device) violate(format string, args ...interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.violations = append(d.violations, fmt.Errorf(format, args...))
}

func (d *Device) transition(b gpu.ImageBarrier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	img, ok := d.images[b.Image]
	if !ok {
		d.violations = append(d.violations, fmt.Errorf("barrier on unknown image %d", b.Image))
		return
	}
	if b.OldLayout != gpu.ImageLayoutUndefined && img.layout != b.OldLayout {
		d.violations = append(d.violations, fmt.Errorf("image %q barrier expects %s but image is %s", img.desc.Name, b.OldLayout, img.layout))
	}
	img.layout = b.NewLayout
}

func (d *Device) expectLayout(im gpu.Image, layout gpu.ImageLayout, op string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	img, ok := d.images[im]
	if !ok {
		d.violations = append(d.violations, fmt.Errorf("%s on unknown image %d", op, im))
		return
	}
	if img.layout != layout {
		d.violations = append(d.violations, fmt.Errorf("%s on image %q in %s, expected %s", op, img.desc.Name, img.layout, layout))
	}
}

func (d *Device) beginTarget(begin gpu.RenderTargetBegin) *activeTarget {
	d.mu.Lock()
	defer d.mu.Unlock()
	fb, ok := d.framebuffers[begin.Framebuffer]
	if !ok {
		d.violations = append(d.violations, fmt.Errorf("begin with unknown framebuffer %d", begin.Framebuffer))
		return &activeTarget{}
	}
	target, ok := d.targets[begin.Target]
	if !ok || fb.Target != begin.Target {
		d.violations = append(d.violations, fmt.Errorf("framebuffer %d is not compatible with render target %d", begin.Framebuffer, begin.Target))
		return &activeTarget{}
	}
	active := &activeTarget{}
	for i, v := range fb.Views {
		vw := d.views[v]
		if vw == nil {
			continue
		}
		img := d.images[vw.desc.Image]
		if img == nil {
			d.violations = append(d.violations, fmt.Errorf("framebuffer view %d refers to a destroyed image", v))
			continue
		}
		a := target.Attachments[i]
		if a.InitialLayout != gpu.ImageLayoutUndefined && img.layout != a.InitialLayout {
			d.violations = append(d.violations, fmt.Errorf("render target %q attachment %d (%q) expects %s but image is %s", target.Name, i, img.desc.Name, a.InitialLayout, img.layout))
		}
		if a.LoadOp == gpu.LoadOpLoad && a.InitialLayout == gpu.ImageLayoutUndefined {
			d.violations = append(d.violations, fmt.Errorf("render target %q attachment %d loads contents from an undefined layout", target.Name, i))
		}
		active.images = append(active.images, vw.desc.Image)
		active.final = append(active.final, a.FinalLayout)
	}
	return active
}

func (d *Device) endTarget(active *activeTarget) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, im := range active.images {
		if img := d.images[im]; img != nil {
			img.layout = active.final[i]
		}
	}
}

func (d *Device) checkDescriptorBind(set gpu.DescriptorSet, active *activeTarget) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sets[set]
	if !ok {
		d.violations = append(d.violations, fmt.Errorf("bind of unknown descriptor set %d", set))
		return
	}
	for binding, infos := range s.images {
		for i, info := range infos {
			if info.View == 0 {
				continue
			}
			vw := d.views[info.View]
			if vw == nil {
				d.violations = append(d.violations, fmt.Errorf("descriptor set %d binding %d[%d] refers to a destroyed view", set, binding, i))
				continue
			}
			img := d.images[vw.desc.Image]
			if img == nil {
				d.violations = append(d.violations, fmt.Errorf("descriptor set %d binding %d[%d] refers to a destroyed image", set, binding, i))
				continue
			}
			if img.layout != info.Layout {
				d.violations = append(d.violations, fmt.Errorf("descriptor set %d binding %d[%d] samples %q in %s, expected %s", set, binding, i, img.desc.Name, img.layout, info.Layout))
			}
			if active != nil {
				for _, a := range active.images {
					if a == vw.desc.Image {
						d.violations = append(d.violations, fmt.Errorf("descriptor set %d binding %d samples %q while it is being rendered to", set, binding, img.desc.Name))
					}
				}
			}
		}
	}
}

// Violations returns every contract violation recorded so far.
func (d *Device) Violations() []error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]error(nil), d.violations...)
}

// Events returns the device timeline.
func (d *Device) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Event(nil), d.events...)
}

func (d *Device) record(e Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, e)
}

// BufferBytes returns a copy of the buffer's backing memory.
func (d *Device) BufferBytes(buf gpu.Buffer) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[buf]
	if !ok {
		return nil
	}
	return append([]byte(nil), d.memory[b.memory].data...)
}

// BufferMemory returns the allocation backing buf.
func (d *Device) BufferMemory(buf gpu.Buffer) gpu.Memory {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.buffers[buf]; ok {
		return b.memory
	}
	return 0
}

// ImageLayout returns the tracked layout of img.
func (d *Device) ImageLayout(img gpu.Image) gpu.ImageLayout {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i, ok := d.images[img]; ok {
		return i.layout
	}
	return gpu.ImageLayoutUndefined
}

// WriteImage fills img's backing store directly, standing in for a render.
func (d *Device) WriteImage(img gpu.Image, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	i, ok := d.images[img]
	if !ok {
		return fmt.Errorf("%w: image %d", ErrUnknownHandle, img)
	}
	copy(i.data, data)
	return nil
}

// DescriptorImages returns the image infos written to binding of set.
func (d *Device) DescriptorImages(set gpu.DescriptorSet, binding uint32) []gpu.ImageInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.sets[set]; ok {
		return append([]gpu.ImageInfo(nil), s.images[binding]...)
	}
	return nil
}

// ViewImage resolves the image behind a view.
func (d *Device) ViewImage(v gpu.ImageView) gpu.Image {
	d.mu.Lock()
	defer d.mu.Unlock()
	if vw, ok := d.views[v]; ok {
		return vw.desc.Image
	}
	return 0
}

// Live returns the number of live images, buffers and pipelines, used to
// check for leaks after a destroy.
func (d *Device) Live() (images, buffers, pipelines int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.images), len(d.buffers), len(d.pipelines)
}
