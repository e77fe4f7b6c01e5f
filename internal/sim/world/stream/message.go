package stream

import (
	"fastterrain.ai/internal/sim/world/terrain/store"
)

// ChunkReady carries a finished chunk. The view is a private copy.
type ChunkReady struct {
	store.View
}

type ChunkCleared struct {
	Key store.ChunkKey
}

// Message is exactly one of Ready or Cleared.
type Message struct {
	Seq     uint64
	Ready   *ChunkReady
	Cleared *ChunkCleared
}
