package uniforms

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine/config"
)

// Block sizes in bytes, matching the declarations in assets/shaders.
const (
	CameraBlockSize = 5*64 + 16 + 16
	SSAOBlockSize   = config.MaxKernelSize*16 + 2*64 + 16 + 16
	ShadowBlockSize = config.MaxCascades*64 + 16 + 16
	BlurBlockSize   = 16 + 4*16
)

// CameraData is the per frame camera block shared by geometry, SSAO and
// lighting.
type CameraData struct {
	View       mgl32.Mat4
	Projection mgl32.Mat4
	Position   mgl32.Vec3
	Near       float32
	Far        float32
}

func (c CameraData) Bytes() []byte {
	w := NewWriter(CameraBlockSize)
	w.Mat4(c.View).
		Mat4(c.Projection).
		Mat4(c.View.Inv()).
		Mat4(c.Projection.Inv()).
		Mat4(c.Projection.Mul4(c.View)).
		Vec3(c.Position).
		Float(c.Near).
		Float(c.Far).
		Pad()
	return w.Bytes()
}

// SSAOData is the SSAO generation block. The kernel array is always written
// at its maximum length and followed by the number of samples in use.
type SSAOData struct {
	Kernel     []mgl32.Vec4
	Projection mgl32.Mat4
	NoiseScale mgl32.Vec2
	Radius     float32
	Bias       float32
}

func (s SSAOData) Bytes() []byte {
	w := NewWriter(SSAOBlockSize)
	for i := 0; i < config.MaxKernelSize; i++ {
		var v mgl32.Vec4
		if i < len(s.Kernel) {
			v = s.Kernel[i]
		}
		w.Vec4(v)
	}
	w.Mat4(s.Projection).
		Mat4(s.Projection.Inv()).
		Vec2(s.NoiseScale).
		Float(s.Radius).
		Float(s.Bias).
		Int(int32(len(s.Kernel))).
		Pad()
	return w.Bytes()
}

// ShadowData carries the cascade matrices and their far split distances in
// view space.
type ShadowData struct {
	Matrices []mgl32.Mat4
	Splits   []float32
	LightDir mgl32.Vec3
}

func (s ShadowData) Bytes() []byte {
	w := NewWriter(ShadowBlockSize)
	for i := 0; i < config.MaxCascades; i++ {
		m := mgl32.Ident4()
		if i < len(s.Matrices) {
			m = s.Matrices[i]
		}
		w.Mat4(m)
	}
	var splits mgl32.Vec4
	for i := 0; i < len(s.Splits) && i < 4; i++ {
		splits[i] = s.Splits[i]
	}
	w.Vec4(splits).
		Vec3(s.LightDir).
		Int(int32(len(s.Matrices))).
		Pad()
	return w.Bytes()
}

// BlurData is the bilateral blur block: sigmas, radius and the one sided
// Gaussian weights packed four per vec4.
type BlurData struct {
	SigmaSpatial float32
	SigmaDepth   float32
	Radius       int32
	Weights      []float32
}

func (b BlurData) Bytes() []byte {
	w := NewWriter(BlurBlockSize)
	w.Float(b.SigmaSpatial).
		Float(b.SigmaDepth).
		Int(b.Radius).
		Pad()
	for i := 0; i < 4; i++ {
		var v mgl32.Vec4
		for j := 0; j < 4; j++ {
			if k := i*4 + j; k < len(b.Weights) {
				v[j] = b.Weights[k]
			}
		}
		w.Vec4(v)
	}
	return w.Bytes()
}

// Push constant blocks.

// DirectionPush selects the axis of a separable blur.
type DirectionPush struct {
	Direction mgl32.Vec2
}

func (p DirectionPush) Bytes() []byte {
	return NewWriter(8).Vec2(p.Direction).Bytes()
}

// UpsamplePush drives the depth aware upsample.
type UpsamplePush struct {
	TexelSize       mgl32.Vec2
	DepthThreshold  float32
	NormalThreshold float32
}

func (p UpsamplePush) Bytes() []byte {
	return NewWriter(16).Vec2(p.TexelSize).Float(p.DepthThreshold).Float(p.NormalThreshold).Bytes()
}

type LightingPush struct {
	LightCount   uint32
	CascadeCount uint32
	Ambient      float32
	UseSSAO      uint32
}

func (p LightingPush) Bytes() []byte {
	return NewWriter(16).Uint(p.LightCount).Uint(p.CascadeCount).Float(p.Ambient).Uint(p.UseSSAO).Bytes()
}

type ScreenPush struct {
	Size mgl32.Vec2
}

func (p ScreenPush) Bytes() []byte {
	return NewWriter(8).Vec2(p.Size).Bytes()
}

type PresentPush struct {
	Exposure float32
	Gamma    float32
}

func (p PresentPush) Bytes() []byte {
	return NewWriter(8).Float(p.Exposure).Float(p.Gamma).Bytes()
}
