package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

type vulkanSetLayout struct {
	handle vk.DescriptorSetLayout
	// Freed sets go back here instead of the pool, which is created
	// without the free descriptor set flag.
	recycled []vk.DescriptorSet
}

type vulkanDescriptorSet struct {
	handle vk.DescriptorSet
	layout gpu.DescriptorSetLayout
}

func (b *Backend) CreateDescriptorSetLayout(desc gpu.DescriptorSetLayoutDesc) (gpu.DescriptorSetLayout, error) {
	ctx := b.context
	bindings := make([]vk.DescriptorSetLayoutBinding, len(desc.Bindings))
	for i, binding := range desc.Bindings {
		count := binding.Count
		if count == 0 {
			count = 1
		}
		bindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         binding.Binding,
			DescriptorType:  toDescriptorType(binding.Type),
			DescriptorCount: count,
			StageFlags:      toShaderStages(binding.Stages),
		}
	}
	info := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	var handle vk.DescriptorSetLayout
	err := ctx.locks.SafeCall(DescriptorManagement, func() error {
		return check("vkCreateDescriptorSetLayout", vk.CreateDescriptorSetLayout(ctx.logical(), &info, ctx.Allocator, &handle))
	})
	if err != nil {
		return 0, err
	}
	return gpu.DescriptorSetLayout(ctx.setLayouts.add(&vulkanSetLayout{handle: handle})), nil
}

func (b *Backend) DestroyDescriptorSetLayout(layout gpu.DescriptorSetLayout) {
	ctx := b.context
	if l := ctx.setLayouts.remove(uint64(layout)); l != nil {
		vk.DestroyDescriptorSetLayout(ctx.logical(), l.handle, ctx.Allocator)
	}
}

func (b *Backend) AllocateDescriptorSets(layout gpu.DescriptorSetLayout, count int) ([]gpu.DescriptorSet, error) {
	ctx := b.context
	l := ctx.setLayouts.get(uint64(layout))
	if l == nil {
		return nil, handleError("descriptor set layout", uint64(layout))
	}
	out := make([]gpu.DescriptorSet, 0, count)
	err := ctx.locks.SafeCall(DescriptorManagement, func() error {
		for len(out) < count {
			var set vk.DescriptorSet
			if n := len(l.recycled); n > 0 {
				set = l.recycled[n-1]
				l.recycled = l.recycled[:n-1]
			} else {
				info := vk.DescriptorSetAllocateInfo{
					SType:              vk.StructureTypeDescriptorSetAllocateInfo,
					DescriptorPool:     ctx.Device.DescriptorPool,
					DescriptorSetCount: 1,
					PSetLayouts:        []vk.DescriptorSetLayout{l.handle},
				}
				if err := check("vkAllocateDescriptorSets", vk.AllocateDescriptorSets(ctx.logical(), &info, &set)); err != nil {
					return err
				}
			}
			out = append(out, gpu.DescriptorSet(ctx.sets.add(&vulkanDescriptorSet{handle: set, layout: layout})))
		}
		return nil
	})
	if err != nil {
		b.FreeDescriptorSets(out)
		return nil, err
	}
	return out, nil
}

func (b *Backend) FreeDescriptorSets(sets []gpu.DescriptorSet) {
	ctx := b.context
	_ = ctx.locks.SafeCall(DescriptorManagement, func() error {
		for _, s := range sets {
			set := ctx.sets.remove(uint64(s))
			if set == nil {
				continue
			}
			if l := ctx.setLayouts.get(uint64(set.layout)); l != nil {
				l.recycled = append(l.recycled, set.handle)
			}
		}
		return nil
	})
}

func (b *Backend) UpdateDescriptorSets(writes []gpu.DescriptorWrite) {
	ctx := b.context
	out := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		set := ctx.sets.get(uint64(w.Set))
		if set == nil {
			continue
		}
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set.handle,
			DstBinding:      w.Binding,
			DstArrayElement: w.ArrayElement,
			DescriptorType:  toDescriptorType(w.Type),
		}
		if w.Type == gpu.DescriptorCombinedImageSampler {
			images := make([]vk.DescriptorImageInfo, len(w.Images))
			for i, img := range w.Images {
				images[i] = vk.DescriptorImageInfo{
					Sampler:     ctx.sampler(img.Sampler),
					ImageView:   ctx.view(img.View),
					ImageLayout: toLayout(img.Layout),
				}
			}
			write.DescriptorCount = uint32(len(images))
			write.PImageInfo = images
		} else {
			buffers := make([]vk.DescriptorBufferInfo, len(w.Buffers))
			for i, buf := range w.Buffers {
				size := vk.DeviceSize(buf.Range)
				if buf.Range == 0 {
					size = vk.DeviceSize(vk.WholeSize)
				}
				buffers[i] = vk.DescriptorBufferInfo{
					Buffer: ctx.buffer(buf.Buffer),
					Offset: vk.DeviceSize(buf.Offset),
					Range:  size,
				}
			}
			write.DescriptorCount = uint32(len(buffers))
			write.PBufferInfo = buffers
		}
		if write.DescriptorCount > 0 {
			out = append(out, write)
		}
	}
	if len(out) == 0 {
		return
	}
	_ = ctx.locks.SafeCall(DescriptorManagement, func() error {
		vk.UpdateDescriptorSets(ctx.logical(), uint32(len(out)), out, 0, nil)
		return nil
	})
}
