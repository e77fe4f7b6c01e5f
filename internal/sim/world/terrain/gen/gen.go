package gen

import (
	"math"

	"github.com/aquilax/go-perlin"
)

// Noise samples a deterministic coherent noise field at world grid coordinates.
type Noise interface {
	At(x, y int) float64
}

type NoiseParams struct {
	Alpha     float64
	Beta      float64
	Octaves   int
	Frequency float64
}

func DefaultNoiseParams() NoiseParams {
	return NoiseParams{Alpha: 2, Beta: 2, Octaves: 3, Frequency: 0.08}
}

type perlinNoise struct {
	p    *perlin.Perlin
	freq float64
}

// NewPerlin seeds a Perlin field from the world seed. The field is read-only
// after construction, so one instance can serve concurrent chunk builds.
func NewPerlin(seed int64, params NoiseParams) Noise {
	d := DefaultNoiseParams()
	if params.Alpha <= 0 {
		params.Alpha = d.Alpha
	}
	if params.Beta <= 0 {
		params.Beta = d.Beta
	}
	if params.Octaves <= 0 {
		params.Octaves = d.Octaves
	}
	if params.Frequency <= 0 {
		params.Frequency = d.Frequency
	}
	return &perlinNoise{
		p:    perlin.NewPerlin(params.Alpha, params.Beta, int32(params.Octaves), seed),
		freq: params.Frequency,
	}
}

// At samples cell centres; Perlin noise is zero on every lattice point.
func (n *perlinNoise) At(x, y int) float64 {
	return n.p.Noise2D((float64(x)+0.5)*n.freq, (float64(y)+0.5)*n.freq)
}

// NoiseIndex maps a sample onto [0,count): floor(|v|*count), clamped.
func NoiseIndex(v float64, count int) int {
	if count <= 0 {
		return 0
	}
	if math.IsNaN(v) {
		return 0
	}
	i := int(math.Floor(math.Abs(v) * float64(count)))
	if i >= count {
		return count - 1
	}
	if i < 0 {
		return 0
	}
	return i
}
