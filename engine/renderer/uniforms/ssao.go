package uniforms

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/lumen/engine/math"
)

// Kernel returns n sample offsets in the +z tangent space hemisphere. Samples
// are scaled so that they cluster near the origin.
func Kernel(n int, seed uint64) []mgl32.Vec4 {
	rng := math.NewRandom(seed)
	kernel := make([]mgl32.Vec4, n)
	for i := range kernel {
		v := mgl32.Vec3{rng.Range(-1, 1), rng.Range(-1, 1), rng.Float32()}
		if v.Len() < math.K_FLOAT_EPSILON {
			v = mgl32.Vec3{0, 0, 1}
		}
		v = v.Normalize().Mul(rng.Float32())
		t := float32(i) / float32(n)
		v = v.Mul(math.Lerp(0.1, 1, t*t))
		kernel[i] = v.Vec4(0)
	}
	return kernel
}

// Noise returns size*size RGBA texels of random rotation vectors around z,
// for a repeating RGBA16F texture.
func Noise(size int, seed uint64) []float32 {
	// Offset the seed so the noise does not repeat the kernel's sequence.
	rng := math.NewRandom(seed ^ 0x9e3779b97f4a7c15)
	texels := make([]float32, 0, size*size*4)
	for i := 0; i < size*size; i++ {
		texels = append(texels, rng.Range(-1, 1), rng.Range(-1, 1), 0, 0)
	}
	return texels
}
