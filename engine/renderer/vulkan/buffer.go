package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

type vulkanMemory struct {
	handle      vk.DeviceMemory
	size        uint64
	hostVisible bool
	mapped      *mapping
}

type vulkanBuffer struct {
	handle vk.Buffer
	size   uint64
}

// mapping is a persistent view of host coherent memory. Writes need no
// explicit flush.
type mapping struct {
	data []byte
}

func (m *mapping) Write(offset uint64, data []byte) error {
	if offset+uint64(len(data)) > uint64(len(m.data)) {
		return fmt.Errorf("write of %d bytes at %d overruns mapping of %d", len(data), offset, len(m.data))
	}
	copy(m.data[offset:], data)
	return nil
}

func (m *mapping) Read(offset uint64, dst []byte) error {
	if offset+uint64(len(dst)) > uint64(len(m.data)) {
		return fmt.Errorf("read of %d bytes at %d overruns mapping of %d", len(dst), offset, len(m.data))
	}
	copy(dst, m.data[offset:])
	return nil
}

func (m *mapping) Len() uint64 { return uint64(len(m.data)) }

func (b *Backend) allocate(reqs vk.MemoryRequirements, location gpu.MemoryLocation) (*vulkanMemory, error) {
	ctx := b.context
	properties := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	if location == gpu.MemoryHostVisible {
		properties = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) | vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit)
	}
	index, err := ctx.Device.FindMemoryIndex(reqs.MemoryTypeBits, properties)
	if err != nil {
		return nil, err
	}
	info := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: index,
	}
	var handle vk.DeviceMemory
	if err := check("vkAllocateMemory", vk.AllocateMemory(ctx.logical(), &info, ctx.Allocator, &handle)); err != nil {
		return nil, err
	}
	return &vulkanMemory{handle: handle, size: uint64(reqs.Size), hostVisible: location == gpu.MemoryHostVisible}, nil
}

func (b *Backend) free(memory gpu.Memory) {
	ctx := b.context
	mem := ctx.memories.remove(uint64(memory))
	if mem == nil {
		return
	}
	if mem.mapped != nil {
		vk.UnmapMemory(ctx.logical(), mem.handle)
	}
	vk.FreeMemory(ctx.logical(), mem.handle, ctx.Allocator)
}

func (b *Backend) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, gpu.Memory, error) {
	ctx := b.context
	if desc.Size == 0 {
		return 0, 0, fmt.Errorf("buffer %s: zero size", desc.Name)
	}
	info := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       toBufferUsage(desc.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var handle vk.Buffer
	if err := check(fmt.Sprintf("vkCreateBuffer(%s)", desc.Name), vk.CreateBuffer(ctx.logical(), &info, ctx.Allocator, &handle)); err != nil {
		return 0, 0, err
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(ctx.logical(), handle, &reqs)
	reqs.Deref()

	mem, err := b.allocate(reqs, desc.Memory)
	if err != nil {
		vk.DestroyBuffer(ctx.logical(), handle, ctx.Allocator)
		return 0, 0, fmt.Errorf("buffer %s: %w", desc.Name, err)
	}
	if err := check("vkBindBufferMemory", vk.BindBufferMemory(ctx.logical(), handle, mem.handle, 0)); err != nil {
		vk.FreeMemory(ctx.logical(), mem.handle, ctx.Allocator)
		vk.DestroyBuffer(ctx.logical(), handle, ctx.Allocator)
		return 0, 0, err
	}
	buf := gpu.Buffer(ctx.buffers.add(&vulkanBuffer{handle: handle, size: desc.Size}))
	memory := gpu.Memory(ctx.memories.add(mem))
	core.LogDebug("buffer %s created: %d bytes", desc.Name, desc.Size)
	return buf, memory, nil
}

func (b *Backend) DestroyBuffer(buffer gpu.Buffer, memory gpu.Memory) {
	ctx := b.context
	if buf := ctx.buffers.remove(uint64(buffer)); buf != nil {
		vk.DestroyBuffer(ctx.logical(), buf.handle, ctx.Allocator)
	}
	b.free(memory)
}

// MapMemory maps the whole allocation once. Later calls return the same
// mapping until UnmapMemory.
func (b *Backend) MapMemory(memory gpu.Memory) (gpu.Mapping, error) {
	ctx := b.context
	mem := ctx.memories.get(uint64(memory))
	if mem == nil {
		return nil, handleError("memory", uint64(memory))
	}
	if !mem.hostVisible {
		return nil, gpu.ErrNotHostVisible
	}
	if mem.mapped != nil {
		return mem.mapped, nil
	}
	var ptr unsafe.Pointer
	if err := check("vkMapMemory", vk.MapMemory(ctx.logical(), mem.handle, 0, vk.DeviceSize(mem.size), 0, &ptr)); err != nil {
		return nil, err
	}
	mem.mapped = &mapping{data: unsafe.Slice((*byte)(ptr), mem.size)}
	return mem.mapped, nil
}

func (b *Backend) UnmapMemory(memory gpu.Memory) {
	ctx := b.context
	mem := ctx.memories.get(uint64(memory))
	if mem == nil || mem.mapped == nil {
		return
	}
	vk.UnmapMemory(ctx.logical(), mem.handle)
	mem.mapped = nil
}
