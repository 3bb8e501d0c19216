package world

import (
	"encoding/binary"
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// Strides of the GPU side records, std430 compatible.
const (
	VertexStride   = 80
	IndexStride    = 4
	InstanceStride = 80
	MaterialStride = 64
	JointStride    = 64
	LightStride    = 48
)

// NoTexture marks an unset material texture. The shader resolves it to the
// bindless table's null slot.
const NoTexture = ^uint32(0)

type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	UV       mgl32.Vec2
	Tangent  mgl32.Vec4
	Joints   [4]uint32
	Weights  mgl32.Vec4
}

type Instance struct {
	Model    mgl32.Mat4
	Material uint32
	// JointOffset is the first joint matrix of a skinned instance.
	JointOffset uint32
	Skinned     bool
}

type Material struct {
	BaseColor         mgl32.Vec4
	Emissive          mgl32.Vec3
	Metallic          float32
	Roughness         float32
	AlphaCutoff       float32
	BaseColorTexture  uint32
	NormalTexture     uint32
	MetalRoughTexture uint32
	OcclusionTexture  uint32
	EmissiveTexture   uint32
}

// DefaultMaterial is white, fully rough and untextured.
func DefaultMaterial() Material {
	return Material{
		BaseColor:         mgl32.Vec4{1, 1, 1, 1},
		Roughness:         1,
		AlphaCutoff:       0.5,
		BaseColorTexture:  NoTexture,
		NormalTexture:     NoTexture,
		MetalRoughTexture: NoTexture,
		OcclusionTexture:  NoTexture,
		EmissiveTexture:   NoTexture,
	}
}

type LightType uint32

const (
	LightDirectional LightType = iota
	LightPoint
)

type Light struct {
	Type      LightType
	Position  mgl32.Vec3
	Direction mgl32.Vec3
	Color     mgl32.Vec3
	Intensity float32
	Range     float32
}

type packer struct {
	b []byte
}

func (p *packer) f32(vs ...float32) *packer {
	for _, v := range vs {
		p.b = binary.LittleEndian.AppendUint32(p.b, gomath.Float32bits(v))
	}
	return p
}

func (p *packer) u32(vs ...uint32) *packer {
	for _, v := range vs {
		p.b = binary.LittleEndian.AppendUint32(p.b, v)
	}
	return p
}

func (v Vertex) appendTo(b []byte) []byte {
	p := &packer{b: b}
	p.f32(v.Position[:]...).
		f32(v.Normal[:]...).
		f32(v.UV[:]...).
		f32(v.Tangent[:]...).
		u32(v.Joints[:]...).
		f32(v.Weights[:]...)
	return p.b
}

func (i Instance) appendTo(b []byte) []byte {
	var skinned uint32
	if i.Skinned {
		skinned = 1
	}
	p := &packer{b: b}
	p.f32(i.Model[:]...).u32(i.Material, i.JointOffset, skinned, 0)
	return p.b
}

func (m Material) appendTo(b []byte) []byte {
	p := &packer{b: b}
	p.f32(m.BaseColor[:]...).
		f32(m.Emissive[:]...).f32(m.Metallic).
		f32(m.Roughness, m.AlphaCutoff).u32(m.BaseColorTexture, m.NormalTexture).
		u32(m.MetalRoughTexture, m.OcclusionTexture, m.EmissiveTexture, 0)
	return p.b
}

func (l Light) appendTo(b []byte) []byte {
	p := &packer{b: b}
	p.f32(l.Position[:]...).f32(l.Range).
		f32(l.Color[:]...).f32(l.Intensity).
		f32(l.Direction[:]...).u32(uint32(l.Type))
	return p.b
}

func packJoint(b []byte, m mgl32.Mat4) []byte {
	p := &packer{b: b}
	p.f32(m[:]...)
	return p.b
}

// VertexBindings and VertexAttributes describe Vertex to a pipeline.
func VertexBindings() []gpu.VertexBinding {
	return []gpu.VertexBinding{{Binding: 0, Stride: VertexStride}}
}

func VertexAttributes() []gpu.VertexAttribute {
	return []gpu.VertexAttribute{
		{Location: 0, Format: gpu.VertexVec3, Offset: 0},
		{Location: 1, Format: gpu.VertexVec3, Offset: 12},
		{Location: 2, Format: gpu.VertexVec2, Offset: 24},
		{Location: 3, Format: gpu.VertexVec4, Offset: 32},
		{Location: 4, Format: gpu.VertexUVec4, Offset: 48},
		{Location: 5, Format: gpu.VertexVec4, Offset: 64},
	}
}
