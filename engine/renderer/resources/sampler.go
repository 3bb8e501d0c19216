package resources

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

var (
	LinearClamp = gpu.SamplerDesc{
		MinFilter:   gpu.FilterLinear,
		MagFilter:   gpu.FilterLinear,
		AddressMode: gpu.AddressClampToEdge,
	}
	NearestClamp = gpu.SamplerDesc{
		MinFilter:   gpu.FilterNearest,
		MagFilter:   gpu.FilterNearest,
		AddressMode: gpu.AddressClampToEdge,
	}
	LinearRepeat = gpu.SamplerDesc{
		MinFilter:     gpu.FilterLinear,
		MagFilter:     gpu.FilterLinear,
		AddressMode:   gpu.AddressRepeat,
		MaxAnisotropy: 16,
	}
	NearestRepeat = gpu.SamplerDesc{
		MinFilter:   gpu.FilterNearest,
		MagFilter:   gpu.FilterNearest,
		AddressMode: gpu.AddressRepeat,
	}
	// ShadowCompare samples outside the cascade as fully lit.
	ShadowCompare = gpu.SamplerDesc{
		MinFilter:   gpu.FilterLinear,
		MagFilter:   gpu.FilterLinear,
		AddressMode: gpu.AddressClampToBorder,
		Compare:     true,
		CompareOp:   gpu.CompareLessOrEqual,
		BorderWhite: true,
	}
)

type Sampler struct {
	Handle gpu.Sampler
	dev    gpu.Device
}

func NewSampler(dev gpu.Device, desc gpu.SamplerDesc) (*Sampler, error) {
	h, err := dev.CreateSampler(desc)
	if err != nil {
		return nil, fmt.Errorf("sampler: %w", err)
	}
	return &Sampler{Handle: h, dev: dev}, nil
}

func (s *Sampler) Destroy() {
	if s == nil || s.Handle == 0 {
		return
	}
	s.dev.DestroySampler(s.Handle)
	s.Handle = 0
}
