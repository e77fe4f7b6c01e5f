package store

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sync"

	"fastterrain.ai/internal/sim/catalogs"
	"fastterrain.ai/internal/sim/world/terrain/gen"
	"fastterrain.ai/internal/sim/world/terrain/grid"
	"fastterrain.ai/internal/sim/world/terrain/objects"
)

type ChunkKey struct {
	CX int
	CY int
}

type State uint8

const (
	Unloaded State = iota
	Loading
	Loaded
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "UNLOADED"
	case Loading:
		return "LOADING"
	case Loaded:
		return "LOADED"
	default:
		return "UNKNOWN"
	}
}

// Chunk is one fixed slot of the world. Slots are never destroyed; unloading
// drops the tiles and spawns and keeps the overrides.
type Chunk struct {
	Key    ChunkKey
	Origin grid.Point
	W, H   int
	State  State

	// Tiles holds palette ids row-major while Loaded (len = W*H).
	Tiles   []uint16
	Spawns  []objects.SpawnRequest
	Anchors []gen.BehaviorAnchor

	Loads    int
	Failures int

	overrides map[grid.Point]uint16

	dirty bool
	hash  [32]byte
}

func (c *Chunk) index(x, y int) int {
	return x + y*c.W
}

func (c *Chunk) Get(x, y int) uint16 {
	return c.Tiles[c.index(x, y)]
}

func (c *Chunk) Set(x, y int, id uint16) {
	i := c.index(x, y)
	if c.Tiles[i] == id {
		return
	}
	c.Tiles[i] = id
	c.dirty = true
}

// Digest is the sha256 of the little-endian tile ids.
func (c *Chunk) Digest() [32]byte {
	if c.dirty || c.hash == ([32]byte{}) {
		c.hash = digestTiles(c.Tiles)
		c.dirty = false
	}
	return c.hash
}

func digestTiles(tiles []uint16) [32]byte {
	h := sha256.New()
	var tmp [2]byte
	for _, v := range tiles {
		binary.LittleEndian.PutUint16(tmp[:], v)
		h.Write(tmp[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// DigestHex hashes palette ids the same way Chunk.Digest does.
func DigestHex(tiles []uint16) string {
	d := digestTiles(tiles)
	return hex.EncodeToString(d[:])
}

// ChunkStore owns every chunk slot covering the world. It is safe for
// concurrent use; the streamer is its only writer of load state.
type ChunkStore struct {
	mu sync.RWMutex

	Tiles     *catalogs.TileCatalog
	Behaviors map[string]string
	World     gen.WorldSize
	ChunkW    int
	ChunkH    int
	Cols      int
	Rows      int

	chunks []*Chunk
}

func NewChunkStore(tiles *catalogs.TileCatalog, behaviors map[string]string, world gen.WorldSize, chunkW, chunkH int) *ChunkStore {
	cols := (world.Width + chunkW - 1) / chunkW
	rows := (world.Height + chunkH - 1) / chunkH
	s := &ChunkStore{
		Tiles:     tiles,
		Behaviors: behaviors,
		World:     world,
		ChunkW:    chunkW,
		ChunkH:    chunkH,
		Cols:      cols,
		Rows:      rows,
		chunks:    make([]*Chunk, 0, cols*rows),
	}
	for cy := 0; cy < rows; cy++ {
		for cx := 0; cx < cols; cx++ {
			s.chunks = append(s.chunks, &Chunk{
				Key:       ChunkKey{CX: cx, CY: cy},
				Origin:    grid.Point{X: cx * chunkW, Y: cy * chunkH},
				W:         chunkW,
				H:         chunkH,
				overrides: map[grid.Point]uint16{},
			})
		}
	}
	return s
}
