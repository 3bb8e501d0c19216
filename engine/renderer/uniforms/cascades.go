package uniforms

import (
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine/math"
)

// CascadeSplits returns the far distance of each of count cascades between
// near and far. lambda blends the logarithmic split (1) with the uniform one
// (0).
func CascadeSplits(near, far float32, count int, lambda float32) []float32 {
	splits := make([]float32, count)
	ratio := float64(far / near)
	for i := range splits {
		p := float32(i+1) / float32(count)
		log := near * float32(gomath.Pow(ratio, float64(p)))
		uniform := near + (far-near)*p
		splits[i] = math.Lerp(uniform, log, lambda)
	}
	splits[count-1] = far
	return splits
}

// CascadeMatrices fits one orthographic light matrix around each slice of
// the camera frustum. Each slice is enclosed in a bounding sphere so the
// projection does not change size when the camera rotates, and the origin
// is snapped to shadow map texels to keep edges from shimmering.
func CascadeMatrices(view mgl32.Mat4, fovY, aspect, near float32, splits []float32, lightDir mgl32.Vec3, resolution uint32) []mgl32.Mat4 {
	dir := lightDir.Normalize()
	up := mgl32.Vec3{0, 1, 0}
	if gomath.Abs(float64(dir.Dot(up))) > 0.99 {
		up = mgl32.Vec3{0, 0, 1}
	}

	matrices := make([]mgl32.Mat4, len(splits))
	prev := near
	for i, split := range splits {
		corners := sliceCorners(view, fovY, aspect, prev, split)
		prev = split

		var center mgl32.Vec3
		for _, c := range corners {
			center = center.Add(c)
		}
		center = center.Mul(1 / float32(len(corners)))
		var radius float32
		for _, c := range corners {
			if d := c.Sub(center).Len(); d > radius {
				radius = d
			}
		}
		radius = float32(gomath.Ceil(float64(radius)*16)) / 16

		lightView := mgl32.LookAtV(center.Sub(dir.Mul(radius)), center, up)
		lightProj := mgl32.Ortho(-radius, radius, -radius, radius, 0, 2*radius)

		half := float32(resolution) / 2
		origin := lightProj.Mul4(lightView).Mul4x1(mgl32.Vec4{0, 0, 0, 1}).Mul(half)
		lightProj[12] += (float32(gomath.Round(float64(origin[0]))) - origin[0]) / half
		lightProj[13] += (float32(gomath.Round(float64(origin[1]))) - origin[1]) / half

		matrices[i] = lightProj.Mul4(lightView)
	}
	return matrices
}

// sliceCorners returns the eight world space corners of the frustum slice
// [near, far].
func sliceCorners(view mgl32.Mat4, fovY, aspect, near, far float32) []mgl32.Vec3 {
	inv := mgl32.Perspective(fovY, aspect, near, far).Mul4(view).Inv()
	corners := make([]mgl32.Vec3, 0, 8)
	for _, x := range []float32{-1, 1} {
		for _, y := range []float32{-1, 1} {
			for _, z := range []float32{-1, 1} {
				p := inv.Mul4x1(mgl32.Vec4{x, y, z, 1})
				corners = append(corners, p.Vec3().Mul(1/p[3]))
			}
		}
	}
	return corners
}

// GaussianWeights returns the normalized one sided weights w[0..radius] of a
// kernel spanning [-radius, radius].
func GaussianWeights(radius int, sigma float32) []float32 {
	weights := make([]float32, radius+1)
	var sum float32
	for i := range weights {
		x := float64(i)
		weights[i] = float32(gomath.Exp(-x * x / (2 * float64(sigma*sigma))))
		if i == 0 {
			sum += weights[i]
		} else {
			sum += 2 * weights[i]
		}
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights
}
