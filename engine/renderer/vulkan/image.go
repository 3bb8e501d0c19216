package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

type vulkanImage struct {
	handle vk.Image
	desc   gpu.ImageDesc
}

type vulkanImageView struct {
	handle vk.ImageView
	// Swapchain views are destroyed with the swapchain, not through the device.
	swapchain bool
}

type vulkanSampler struct {
	handle vk.Sampler
}

func (b *Backend) CreateImage(desc gpu.ImageDesc) (gpu.Image, gpu.Memory, error) {
	ctx := b.context
	layers := desc.Layers
	if layers == 0 {
		layers = 1
	}
	info := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    toFormat(desc.Format),
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   layers,
		Samples:       toSamples(desc.Samples),
		Tiling:        vk.ImageTilingOptimal,
		Usage:         toImageUsage(desc.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}

	var handle vk.Image
	if err := check(fmt.Sprintf("vkCreateImage(%s)", desc.Name), vk.CreateImage(ctx.logical(), &info, ctx.Allocator, &handle)); err != nil {
		return 0, 0, err
	}

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(ctx.logical(), handle, &reqs)
	reqs.Deref()

	mem, err := b.allocate(reqs, gpu.MemoryDeviceLocal)
	if err != nil {
		vk.DestroyImage(ctx.logical(), handle, ctx.Allocator)
		return 0, 0, fmt.Errorf("image %s: %w", desc.Name, err)
	}
	if err := check("vkBindImageMemory", vk.BindImageMemory(ctx.logical(), handle, mem.handle, 0)); err != nil {
		vk.FreeMemory(ctx.logical(), mem.handle, ctx.Allocator)
		vk.DestroyImage(ctx.logical(), handle, ctx.Allocator)
		return 0, 0, err
	}

	desc.Layers = layers
	img := gpu.Image(ctx.images.add(&vulkanImage{handle: handle, desc: desc}))
	memory := gpu.Memory(ctx.memories.add(mem))
	core.LogDebug("image %s created: %dx%dx%d %s", desc.Name, desc.Width, desc.Height, layers, desc.Format)
	return img, memory, nil
}

func (b *Backend) DestroyImage(image gpu.Image, memory gpu.Memory) {
	ctx := b.context
	if img := ctx.images.remove(uint64(image)); img != nil {
		vk.DestroyImage(ctx.logical(), img.handle, ctx.Allocator)
	}
	b.free(memory)
}

func (b *Backend) CreateImageView(desc gpu.ImageViewDesc) (gpu.ImageView, error) {
	ctx := b.context
	img, err := ctx.image(desc.Image)
	if err != nil {
		return 0, err
	}
	count := desc.LayerCount
	if count == 0 {
		count = 1
	}
	viewType := vk.ImageViewType2d
	if count > 1 || desc.Array {
		viewType = vk.ImageViewType2dArray
	}
	format := desc.Format
	if format == gpu.FormatUndefined {
		format = img.desc.Format
	}
	aspect := desc.Aspect
	if aspect == 0 {
		aspect = gpu.AspectOf(format)
	}
	info := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.handle,
		ViewType: viewType,
		Format:   toFormat(format),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     toAspect(aspect),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: desc.BaseLayer,
			LayerCount:     count,
		},
	}
	var handle vk.ImageView
	if err := check("vkCreateImageView", vk.CreateImageView(ctx.logical(), &info, ctx.Allocator, &handle)); err != nil {
		return 0, err
	}
	return gpu.ImageView(ctx.views.add(&vulkanImageView{handle: handle})), nil
}

func (b *Backend) DestroyImageView(view gpu.ImageView) {
	ctx := b.context
	if v := ctx.views.get(uint64(view)); v == nil || v.swapchain {
		return
	}
	if v := ctx.views.remove(uint64(view)); v != nil {
		vk.DestroyImageView(ctx.logical(), v.handle, ctx.Allocator)
	}
}

func (b *Backend) CreateSampler(desc gpu.SamplerDesc) (gpu.Sampler, error) {
	ctx := b.context
	address := toAddressMode(desc.AddressMode)
	border := vk.BorderColorFloatOpaqueBlack
	if desc.BorderWhite {
		border = vk.BorderColorFloatOpaqueWhite
	}
	info := vk.SamplerCreateInfo{
		SType:            vk.StructureTypeSamplerCreateInfo,
		MagFilter:        toFilter(desc.MagFilter),
		MinFilter:        toFilter(desc.MinFilter),
		MipmapMode:       vk.SamplerMipmapModeLinear,
		AddressModeU:     address,
		AddressModeV:     address,
		AddressModeW:     address,
		AnisotropyEnable: vk.False,
		MaxAnisotropy:    1,
		CompareEnable:    vk.False,
		CompareOp:        vk.CompareOpAlways,
		MinLod:           0,
		MaxLod:           1,
		BorderColor:      border,
	}
	if desc.MaxAnisotropy > 1 && ctx.Device.Features.SamplerAnisotropy == vk.True {
		info.AnisotropyEnable = vk.True
		info.MaxAnisotropy = desc.MaxAnisotropy
	}
	if desc.Compare {
		info.CompareEnable = vk.True
		info.CompareOp = toCompareOp(desc.CompareOp)
	}
	var handle vk.Sampler
	if err := check("vkCreateSampler", vk.CreateSampler(ctx.logical(), &info, ctx.Allocator, &handle)); err != nil {
		return 0, err
	}
	return gpu.Sampler(ctx.samplers.add(&vulkanSampler{handle: handle})), nil
}

func (b *Backend) DestroySampler(sampler gpu.Sampler) {
	ctx := b.context
	if s := ctx.samplers.remove(uint64(sampler)); s != nil {
		vk.DestroySampler(ctx.logical(), s.handle, ctx.Allocator)
	}
}
