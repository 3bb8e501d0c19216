package world

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/resources"
)

var ErrCapacityExceeded = errors.New("buffer capacity exceeded")

// appendBuffer is a device local buffer shared by every frame in flight.
// Entries are only ever appended: committed bytes are never written again,
// so frames still in flight keep reading valid data while new entries are
// copied in behind them.
type appendBuffer struct {
	name      string
	stride    uint64
	capacity  int
	committed int
	recorded  int // entries covered by the last recorded copy
	pending   []byte

	staging *resources.Buffer
	device  *resources.Buffer
}

func newAppendBuffer(dev gpu.Device, name string, stride uint64, capacity int, usage gpu.BufferUsage) (*appendBuffer, error) {
	size := stride * uint64(capacity)
	staging, err := resources.NewBuffer(dev, resources.BufferSpec{
		Name:   name + "-staging",
		Size:   size,
		Usage:  gpu.BufferUsageTransferSrc,
		Memory: gpu.MemoryHostVisible,
	})
	if err != nil {
		return nil, err
	}
	device, err := resources.NewBuffer(dev, resources.BufferSpec{
		Name:   name,
		Size:   size,
		Usage:  usage | gpu.BufferUsageTransferDst,
		Memory: gpu.MemoryDeviceLocal,
	})
	if err != nil {
		staging.Destroy()
		return nil, err
	}
	return &appendBuffer{name: name, stride: stride, capacity: capacity, staging: staging, device: device}, nil
}

// count includes pending entries.
func (b *appendBuffer) count() int {
	return b.committed + len(b.pending)/int(b.stride)
}

// append queues data, which holds n entries, and returns the index of the
// first one.
func (b *appendBuffer) append(data []byte, n int) (int, error) {
	first := b.count()
	if first+n > b.capacity {
		return 0, fmt.Errorf("%s: %w: %d + %d entries, capacity %d", b.name, ErrCapacityExceeded, first, n, b.capacity)
	}
	b.pending = append(b.pending, data...)
	return first, nil
}

func (b *appendBuffer) dirty() bool {
	return len(b.pending) > 0
}

// flush stages the pending entries at the committed offset and records the
// copy into the device buffer. The entries only count as committed once
// commit runs, after the command buffer holding the copy was submitted; an
// abandoned recording leaves them pending for the next flush.
func (b *appendBuffer) flush(cmd gpu.CommandBuffer) (barrier *gpu.BufferBarrier, commit func(), err error) {
	if !b.dirty() {
		return nil, func() {}, nil
	}
	offset := uint64(b.committed) * b.stride
	n := len(b.pending)
	if err := b.staging.Write(offset, b.pending); err != nil {
		return nil, nil, err
	}
	cmd.CopyBuffer(b.staging.Handle, b.device.Handle, []gpu.BufferCopy{{SrcOffset: offset, DstOffset: offset, Size: uint64(n)}})
	b.recorded = b.count()
	commit = func() {
		b.committed += n / int(b.stride)
		b.pending = b.pending[n:]
	}
	return &gpu.BufferBarrier{Buffer: b.device.Handle, SrcAccess: gpu.AccessTransferWrite, Offset: offset, Size: uint64(n)}, commit, nil
}

func (b *appendBuffer) destroy() {
	b.staging.Destroy()
	b.device.Destroy()
}

type span struct {
	start, end int
}

// frameBuffer keeps one device buffer per frame in flight, fed from a CPU
// copy of the whole array. Entries can be appended or rewritten in place;
// every change is recorded as a dirty span for each frame and uploaded when
// that frame's slot is next updated.
type frameBuffer struct {
	name     string
	stride   uint64
	capacity int
	count    int
	shadow   []byte
	dirty    [][]span

	staging []*resources.Buffer
	device  []*resources.Buffer
}

func newFrameBuffer(dev gpu.Device, name string, stride uint64, capacity, frames int) (*frameBuffer, error) {
	fb := &frameBuffer{
		name:     name,
		stride:   stride,
		capacity: capacity,
		shadow:   make([]byte, 0, stride*uint64(capacity)),
		dirty:    make([][]span, frames),
	}
	size := stride * uint64(capacity)
	for f := 0; f < frames; f++ {
		staging, err := resources.NewBuffer(dev, resources.BufferSpec{
			Name:   fmt.Sprintf("%s-staging-%d", name, f),
			Size:   size,
			Usage:  gpu.BufferUsageTransferSrc,
			Memory: gpu.MemoryHostVisible,
		})
		if err != nil {
			fb.destroy()
			return nil, err
		}
		fb.staging = append(fb.staging, staging)
		device, err := resources.NewBuffer(dev, resources.BufferSpec{
			Name:   fmt.Sprintf("%s-%d", name, f),
			Size:   size,
			Usage:  gpu.BufferUsageStorage | gpu.BufferUsageTransferDst,
			Memory: gpu.MemoryDeviceLocal,
		})
		if err != nil {
			fb.destroy()
			return nil, err
		}
		fb.device = append(fb.device, device)
	}
	return fb, nil
}

func (b *frameBuffer) markDirty(start, end int) {
	for f := range b.dirty {
		b.dirty[f] = append(b.dirty[f], span{start, end})
	}
}

func (b *frameBuffer) append(data []byte, n int) (int, error) {
	if b.count+n > b.capacity {
		return 0, fmt.Errorf("%s: %w: %d + %d entries, capacity %d", b.name, ErrCapacityExceeded, b.count, n, b.capacity)
	}
	first := b.count
	b.shadow = append(b.shadow, data...)
	b.count += n
	b.markDirty(first, b.count)
	return first, nil
}

func (b *frameBuffer) set(index int, data []byte) error {
	n := len(data) / int(b.stride)
	if index < 0 || index+n > b.count {
		return fmt.Errorf("%s: entries [%d,%d) out of range, have %d", b.name, index, index+n, b.count)
	}
	copy(b.shadow[uint64(index)*b.stride:], data)
	b.markDirty(index, index+n)
	return nil
}

func (b *frameBuffer) isDirty(frame int) bool {
	return len(b.dirty[frame]) > 0
}

// merge sorts and coalesces overlapping or touching spans.
func merge(spans []span) []span {
	slices.SortFunc(spans, func(a, b span) int { return a.start - b.start })
	out := spans[:0]
	for _, s := range spans {
		if n := len(out); n > 0 && s.start <= out[n-1].end {
			out[n-1].end = max(out[n-1].end, s.end)
			continue
		}
		out = append(out, s)
	}
	return out
}

// flush records the copies of frame's dirty spans. The spans stay dirty
// until commit runs; spans marked after the flush are kept either way.
func (b *frameBuffer) flush(cmd gpu.CommandBuffer, frame int) (barriers []gpu.BufferBarrier, commit func(), err error) {
	if !b.isDirty(frame) {
		return nil, func() {}, nil
	}
	flushed := len(b.dirty[frame])
	spans := merge(slices.Clone(b.dirty[frame]))
	regions := make([]gpu.BufferCopy, 0, len(spans))
	barriers = make([]gpu.BufferBarrier, 0, len(spans))
	for _, s := range spans {
		start, end := uint64(s.start)*b.stride, uint64(s.end)*b.stride
		if err := b.staging[frame].Write(start, b.shadow[start:end]); err != nil {
			return nil, nil, err
		}
		regions = append(regions, gpu.BufferCopy{SrcOffset: start, DstOffset: start, Size: end - start})
		barriers = append(barriers, gpu.BufferBarrier{
			Buffer:    b.device[frame].Handle,
			SrcAccess: gpu.AccessTransferWrite,
			DstAccess: gpu.AccessShaderRead,
			Offset:    start,
			Size:      end - start,
		})
	}
	cmd.CopyBuffer(b.staging[frame].Handle, b.device[frame].Handle, regions)
	commit = func() {
		b.dirty[frame] = slices.Delete(b.dirty[frame], 0, flushed)
	}
	return barriers, commit, nil
}

func (b *frameBuffer) destroy() {
	for _, s := range b.staging {
		s.Destroy()
	}
	for _, d := range b.device {
		d.Destroy()
	}
}
