package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	Stream   Stream   `yaml:"stream"`
	Position Position `yaml:"position"`
	Noise    Noise    `yaml:"noise"`

	SnapshotEverySeconds int `yaml:"snapshot_every_seconds"`
	SnapshotKeep         int `yaml:"snapshot_keep"`

	// PresentationHz caps how often the observer flushes chunk messages.
	PresentationHz int `yaml:"presentation_hz"`
}

type Stream struct {
	RadiusChunks     int `yaml:"radius_chunks"`
	HysteresisChunks int `yaml:"hysteresis_chunks"`
	IntervalMs       int `yaml:"interval_ms"`
	MaxLoadsPerStep  int `yaml:"max_loads_per_step"`
	Workers          int `yaml:"workers"`
	QueueSize        int `yaml:"queue_size"`
}

type Position struct {
	PublishEveryMs int `yaml:"publish_every_ms"`
}

type Noise struct {
	Alpha     float64 `yaml:"alpha"`
	Beta      float64 `yaml:"beta"`
	Octaves   int     `yaml:"octaves"`
	Frequency float64 `yaml:"frequency"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		Stream: Stream{
			RadiusChunks:     2,
			HysteresisChunks: 1,
			IntervalMs:       100,
			MaxLoadsPerStep:  8,
			Workers:          2,
			QueueSize:        64,
		},
		Position:             Position{PublishEveryMs: 250},
		Noise:                Noise{Alpha: 2, Beta: 2, Octaves: 3, Frequency: 0.08},
		SnapshotEverySeconds: 60,
		SnapshotKeep:         10,
		PresentationHz:       20,
	}
}

// Load reads path over Defaults, so a file only needs the keys it changes.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	switch {
	case t.Stream.RadiusChunks < 0:
		return fmt.Errorf("stream.radius_chunks must be >= 0")
	case t.Stream.HysteresisChunks < 0:
		return fmt.Errorf("stream.hysteresis_chunks must be >= 0")
	case t.Stream.IntervalMs <= 0:
		return fmt.Errorf("stream.interval_ms must be > 0")
	case t.Stream.MaxLoadsPerStep <= 0:
		return fmt.Errorf("stream.max_loads_per_step must be > 0")
	case t.Stream.Workers <= 0:
		return fmt.Errorf("stream.workers must be > 0")
	case t.Stream.QueueSize <= 0:
		return fmt.Errorf("stream.queue_size must be > 0")
	case t.Position.PublishEveryMs < 0:
		return fmt.Errorf("position.publish_every_ms must be >= 0")
	case t.Noise.Octaves < 0 || t.Noise.Frequency < 0:
		return fmt.Errorf("noise parameters must be >= 0")
	case t.SnapshotEverySeconds < 0 || t.SnapshotKeep < 0:
		return fmt.Errorf("snapshot settings must be >= 0")
	case t.PresentationHz <= 0:
		return fmt.Errorf("presentation_hz must be > 0")
	}
	return nil
}
