package world

import (
	"time"

	"fastterrain.ai/internal/sim/tuning"
	"fastterrain.ai/internal/sim/world/stream"
	"fastterrain.ai/internal/sim/world/terrain/gen"
)

type WorldConfig struct {
	ID   string
	Seed int64

	// Size, when non-zero, replaces the size drawn from the config's
	// terrainSize range. Snapshots restore through it.
	Size gen.WorldSize

	Stream        stream.Config
	PositionEvery time.Duration
	Noise         gen.NoiseParams
}

// ConfigFromTuning maps runtime tuning onto a world config.
func ConfigFromTuning(id string, seed int64, t tuning.Tuning) WorldConfig {
	return WorldConfig{
		ID:   id,
		Seed: seed,
		Stream: stream.Config{
			RadiusChunks:     t.Stream.RadiusChunks,
			HysteresisChunks: t.Stream.HysteresisChunks,
			Interval:         time.Duration(t.Stream.IntervalMs) * time.Millisecond,
			MaxLoadsPerStep:  t.Stream.MaxLoadsPerStep,
			Workers:          t.Stream.Workers,
			QueueSize:        t.Stream.QueueSize,
		},
		PositionEvery: time.Duration(t.Position.PublishEveryMs) * time.Millisecond,
		Noise: gen.NoiseParams{
			Alpha:     t.Noise.Alpha,
			Beta:      t.Noise.Beta,
			Octaves:   t.Noise.Octaves,
			Frequency: t.Noise.Frequency,
		},
	}
}
