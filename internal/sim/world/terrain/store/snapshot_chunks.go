package store

import (
	"fmt"
	"sort"

	snapv1 "fastterrain.ai/internal/persistence/snapshot"
	"fastterrain.ai/internal/sim/world/terrain/grid"
)

// ExportChunks converts the store into snapshot chunks: every loaded chunk
// with its tiles and spawns, plus every unloaded chunk that carries overrides.
func (s *ChunkStore) ExportChunks() []snapv1.ChunkV1 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []snapv1.ChunkV1
	for _, c := range s.chunks {
		if c.State != Loaded && len(c.overrides) == 0 {
			continue
		}
		ch := snapv1.ChunkV1{CX: c.Key.CX, CY: c.Key.CY, Overrides: exportOverrides(c.overrides)}
		if c.State == Loaded {
			ch.Tiles = append([]uint16(nil), c.Tiles...)
			ch.Digest = DigestHex(c.Tiles)
			for _, sp := range c.Spawns {
				ch.Spawns = append(ch.Spawns, snapv1.SpawnV1{Entity: sp.Entity, X: sp.Pos.X, Y: sp.Pos.Y})
			}
		}
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CX != out[j].CX {
			return out[i].CX < out[j].CX
		}
		return out[i].CY < out[j].CY
	})
	return out
}

func exportOverrides(m map[grid.Point]uint16) []snapv1.OverrideV1 {
	if len(m) == 0 {
		return nil
	}
	out := make([]snapv1.OverrideV1, 0, len(m))
	for p, id := range m {
		out = append(out, snapv1.OverrideV1{X: p.X, Y: p.Y, Tile: id})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}

// ImportOverrides restores the set-cell overrides of snapshot chunks. Tiles
// are not imported: chunks regenerate deterministically when streamed in.
func (s *ChunkStore) ImportOverrides(chunks []snapv1.ChunkV1) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range chunks {
		k := ChunkKey{CX: ch.CX, CY: ch.CY}
		c := s.slot(k)
		if c == nil {
			return fmt.Errorf("snapshot chunk %v outside world of %dx%d chunks", k, s.Cols, s.Rows)
		}
		if len(ch.Tiles) != 0 && len(ch.Tiles) != c.W*c.H {
			return fmt.Errorf("snapshot chunk %v tiles length mismatch: got %d want %d", k, len(ch.Tiles), c.W*c.H)
		}
		for _, o := range ch.Overrides {
			if o.X < 0 || o.Y < 0 || o.X >= c.W || o.Y >= c.H {
				return fmt.Errorf("snapshot chunk %v override (%d,%d) out of range", k, o.X, o.Y)
			}
			if int(o.Tile) >= len(s.Tiles.Palette) {
				return fmt.Errorf("snapshot chunk %v override tile id %d out of palette", k, o.Tile)
			}
			c.overrides[grid.Point{X: o.X, Y: o.Y}] = o.Tile
		}
	}
	return nil
}

// Overrides returns a copy of chunk k's overrides in local coordinates.
func (s *ChunkStore) Overrides(k ChunkKey) map[grid.Point]uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.slot(k)
	if c == nil {
		return nil
	}
	out := make(map[grid.Point]uint16, len(c.overrides))
	for p, id := range c.overrides {
		out[p] = id
	}
	return out
}
