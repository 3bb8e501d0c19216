package math

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine/core"
)

// GenerateNormals computes flat face normals for an indexed triangle list.
func GenerateNormals(positions []mgl32.Vec3, indices []uint32) []mgl32.Vec3 {
	normals := make([]mgl32.Vec3, len(positions))
	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]
		edge1 := positions[i1].Sub(positions[i0])
		edge2 := positions[i2].Sub(positions[i0])
		// NOTE: face normal only, smoothing is left to the asset pipeline.
		n := edge1.Cross(edge2)
		if n.Len() > K_FLOAT_EPSILON {
			n = n.Normalize()
		}
		normals[i0], normals[i1], normals[i2] = n, n, n
	}
	return normals
}

// GenerateTangents computes per face tangents with handedness in w.
// Degenerate UV mappings produce a +X tangent.
func GenerateTangents(positions []mgl32.Vec3, uvs []mgl32.Vec2, indices []uint32) []mgl32.Vec4 {
	tangents := make([]mgl32.Vec4, len(positions))
	for i := range tangents {
		tangents[i] = mgl32.Vec4{1, 0, 0, 1}
	}
	if len(uvs) != len(positions) {
		core.LogWarn("tangent generation skipped: %d vertices but %d texture coordinates", len(positions), len(uvs))
		return tangents
	}
	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]

		edge1 := positions[i1].Sub(positions[i0])
		edge2 := positions[i2].Sub(positions[i0])

		deltaU1 := uvs[i1].X() - uvs[i0].X()
		deltaV1 := uvs[i1].Y() - uvs[i0].Y()
		deltaU2 := uvs[i2].X() - uvs[i0].X()
		deltaV2 := uvs[i2].Y() - uvs[i0].Y()

		dividend := deltaU1*deltaV2 - deltaU2*deltaV1
		if dividend > -K_FLOAT_EPSILON && dividend < K_FLOAT_EPSILON {
			continue
		}
		fc := 1.0 / dividend

		tangent := edge1.Mul(deltaV2).Sub(edge2.Mul(deltaV1)).Mul(fc)
		if tangent.Len() <= K_FLOAT_EPSILON {
			continue
		}
		tangent = tangent.Normalize()

		handedness := float32(1.0)
		if dividend < 0 {
			handedness = -1.0
		}
		t4 := tangent.Vec4(handedness)
		tangents[i0], tangents[i1], tangents[i2] = t4, t4, t4
	}
	return tangents
}

// Extents returns the axis aligned bounds of positions.
func Extents(positions []mgl32.Vec3) (min, max mgl32.Vec3) {
	if len(positions) == 0 {
		return
	}
	min, max = positions[0], positions[0]
	for _, p := range positions[1:] {
		for a := 0; a < 3; a++ {
			if p[a] < min[a] {
				min[a] = p[a]
			}
			if p[a] > max[a] {
				max[a] = p[a]
			}
		}
	}
	return min, max
}

// MeshData is an indexed triangle list with per vertex attributes.
type MeshData struct {
	Positions []mgl32.Vec3
	Normals   []mgl32.Vec3
	UVs       []mgl32.Vec2
	Tangents  []mgl32.Vec4
	Indices   []uint32
}

type cubeFace struct {
	normal, u, v mgl32.Vec3
}

// front, back, left, right, top, bottom; u cross v is the face normal so
// every face winds counter clockwise seen from outside.
var cubeFaces = [6]cubeFace{
	{mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}},
	{mgl32.Vec3{0, 0, -1}, mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 1, 0}},
	{mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, 1, 0}},
	{mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}},
	{mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}},
	{mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, 1}},
}

// GenerateCube builds a box centred on the origin, 4 vertices and 2
// triangles per side. Texture coordinates repeat tileX by tileY times per
// side. Zero sizes default to one.
func GenerateCube(width, height, depth, tileX, tileY float32) MeshData {
	one := func(name string, v float32) float32 {
		if v == 0 {
			core.LogWarn("%s must be nonzero. Defaulting to one.", name)
			return 1
		}
		return v
	}
	half := mgl32.Vec3{one("width", width) * 0.5, one("height", height) * 0.5, one("depth", depth) * 0.5}
	tileX, tileY = one("tileX", tileX), one("tileY", tileY)
	scale := func(v mgl32.Vec3) mgl32.Vec3 {
		return mgl32.Vec3{v[0] * half[0], v[1] * half[1], v[2] * half[2]}
	}

	var m MeshData
	corners := [4][2]float32{{-1, -1}, {1, 1}, {-1, 1}, {1, -1}}
	for i, f := range cubeFaces {
		centre := scale(f.normal)
		for _, c := range corners {
			p := centre.Add(scale(f.u.Mul(c[0]))).Add(scale(f.v.Mul(c[1])))
			m.Positions = append(m.Positions, p)
			m.Normals = append(m.Normals, f.normal)
			m.UVs = append(m.UVs, mgl32.Vec2{(c[0] + 1) * 0.5 * tileX, (c[1] + 1) * 0.5 * tileY})
		}
		base := uint32(i * 4)
		m.Indices = append(m.Indices, base, base+1, base+2, base, base+3, base+1)
	}
	m.Tangents = GenerateTangents(m.Positions, m.UVs, m.Indices)
	return m
}
