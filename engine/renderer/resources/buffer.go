package resources

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

type BufferSpec struct {
	Name   string
	Size   uint64
	Usage  gpu.BufferUsage
	Memory gpu.MemoryLocation
}

// Buffer owns a device buffer and its memory. Host visible buffers are
// mapped for their whole lifetime.
type Buffer struct {
	Name   string
	Handle gpu.Buffer
	Memory gpu.Memory
	Size   uint64

	dev       gpu.Device
	mapping   gpu.Mapping
	destroyed bool
}

func NewBuffer(dev gpu.Device, spec BufferSpec) (*Buffer, error) {
	handle, mem, err := dev.CreateBuffer(gpu.BufferDesc{
		Name:   spec.Name,
		Size:   spec.Size,
		Usage:  spec.Usage,
		Memory: spec.Memory,
	})
	if err != nil {
		return nil, fmt.Errorf("buffer %q: %w", spec.Name, err)
	}
	b := &Buffer{Name: spec.Name, Handle: handle, Memory: mem, Size: spec.Size, dev: dev}
	if spec.Memory == gpu.MemoryHostVisible {
		b.mapping, err = dev.MapMemory(mem)
		if err != nil {
			dev.DestroyBuffer(handle, mem)
			return nil, fmt.Errorf("buffer %q map: %w", spec.Name, err)
		}
	}
	return b, nil
}

// Write copies data into the mapped buffer at offset.
func (b *Buffer) Write(offset uint64, data []byte) error {
	if b.mapping == nil {
		return fmt.Errorf("buffer %q: %w", b.Name, gpu.ErrNotHostVisible)
	}
	if offset+uint64(len(data)) > b.Size {
		return fmt.Errorf("buffer %q: write of %d bytes at %d exceeds size %d", b.Name, len(data), offset, b.Size)
	}
	return b.mapping.Write(offset, data)
}

func (b *Buffer) Read(offset uint64, dst []byte) error {
	if b.mapping == nil {
		return fmt.Errorf("buffer %q: %w", b.Name, gpu.ErrNotHostVisible)
	}
	return b.mapping.Read(offset, dst)
}

func (b *Buffer) HostVisible() bool {
	return b.mapping != nil
}

func (b *Buffer) Destroy() {
	if b == nil || b.destroyed {
		return
	}
	b.destroyed = true
	if b.mapping != nil {
		b.dev.UnmapMemory(b.Memory)
		b.mapping = nil
	}
	b.dev.DestroyBuffer(b.Handle, b.Memory)
}
