package math

import "golang.org/x/exp/rand"

// Random is a seeded generator. Rendering data derived from it (SSAO kernels,
// noise) is reproducible across runs for a given seed.
type Random struct {
	src *rand.Rand
}

func NewRandom(seed uint64) *Random {
	return &Random{src: rand.New(rand.NewSource(seed))}
}

// Float32 returns a value in [0, 1).
func (r *Random) Float32() float32 {
	return r.src.Float32()
}

// Range returns a value in [min, max).
func (r *Random) Range(min, max float32) float32 {
	return min + r.src.Float32()*(max-min)
}

// Intn returns a value in [0, n).
func (r *Random) Intn(n int) int {
	return r.src.Intn(n)
}
