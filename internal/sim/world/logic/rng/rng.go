package rng

import (
	"math/rand/v2"

	"fastterrain.ai/internal/sim/world/logic/mathx"
)

// Rand is a deterministic random source. It is not safe for concurrent use;
// give each goroutine (each chunk build) its own stream.
type Rand struct {
	r *rand.Rand
}

func New(seed int64) *Rand {
	return &Rand{r: rand.New(rand.NewPCG(uint64(seed), mathx.Hash1(seed, 1)))}
}

// ForChunk derives an independent stream from the world seed and a chunk
// coordinate, so output does not depend on chunk load order.
func ForChunk(seed int64, cx, cy int) *Rand {
	h := mathx.Hash2(seed, cx, cy)
	return &Rand{r: rand.New(rand.NewPCG(h, mathx.Hash1(int64(h), 2)))}
}

// Intn returns a value in [0,n). n <= 0 yields 0.
func (r *Rand) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return r.r.IntN(n)
}

// Range returns a value in [min,max] inclusive.
func (r *Rand) Range(min, max int) int {
	if max <= min {
		return min
	}
	return min + r.r.IntN(max-min+1)
}

func (r *Rand) Float64() float64 { return r.r.Float64() }

// Choose picks one entry uniformly. Empty input yields "".
func (r *Rand) Choose(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return items[r.r.IntN(len(items))]
}
