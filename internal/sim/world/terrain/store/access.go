package store

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"fastterrain.ai/internal/sim/catalogs"
	"fastterrain.ai/internal/sim/world/logic/mathx"
	"fastterrain.ai/internal/sim/world/terrain/gen"
	"fastterrain.ai/internal/sim/world/terrain/grid"
	"fastterrain.ai/internal/sim/world/terrain/objects"
)

// ErrOutOfWorld is returned for positions outside the world bounds.
var ErrOutOfWorld = errors.New("outside world")

// View is an immutable copy of a loaded chunk, safe to hand to another
// goroutine.
type View struct {
	Key    ChunkKey
	Origin grid.Point
	W, H   int
	Cells  []gen.Cell
	// Tiles are the palette ids row-major; Digest hashes exactly these.
	Tiles   []uint16
	Spawns  []objects.SpawnRequest
	Anchors []gen.BehaviorAnchor
	Digest  string
}

func (s *ChunkStore) slot(k ChunkKey) *Chunk {
	if k.CX < 0 || k.CY < 0 || k.CX >= s.Cols || k.CY >= s.Rows {
		return nil
	}
	return s.chunks[k.CX+k.CY*s.Cols]
}

func (s *ChunkStore) Has(k ChunkKey) bool {
	return s.slot(k) != nil
}

// KeyAt returns the chunk holding world grid position pos.
func (s *ChunkStore) KeyAt(pos grid.Point) (ChunkKey, bool) {
	if pos.X < 0 || pos.Y < 0 || pos.X >= s.World.Width || pos.Y >= s.World.Height {
		return ChunkKey{}, false
	}
	return ChunkKey{CX: mathx.FloorDiv(pos.X, s.ChunkW), CY: mathx.FloorDiv(pos.Y, s.ChunkH)}, true
}

func (s *ChunkStore) State(k ChunkKey) State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c := s.slot(k); c != nil {
		return c.State
	}
	return Unloaded
}

// BeginLoad moves an Unloaded slot to Loading. It reports false for any other
// state so a chunk is never built twice at once.
func (s *ChunkStore) BeginLoad(k ChunkKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.slot(k)
	if c == nil || c.State != Unloaded {
		return false
	}
	c.State = Loading
	return true
}

// Abort returns a Loading slot to Unloaded after a failed build.
func (s *ChunkStore) Abort(k ChunkKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.slot(k); c != nil && c.State == Loading {
		c.State = Unloaded
		c.Failures++
	}
}

// Commit stores a finished build, applies the slot's overrides and marks it
// Loaded.
func (s *ChunkStore) Commit(res *gen.Result) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := ChunkKey{CX: res.CX, CY: res.CY}
	c := s.slot(k)
	if c == nil {
		return View{}, fmt.Errorf("commit: no chunk %v", k)
	}
	if c.State != Loading {
		return View{}, fmt.Errorf("commit: chunk %v is %s", k, c.State)
	}
	if res.Grid.Width() != c.W || res.Grid.Height() != c.H {
		return View{}, fmt.Errorf("commit: chunk %v grid %dx%d want %dx%d", k, res.Grid.Width(), res.Grid.Height(), c.W, c.H)
	}

	tiles := make([]uint16, c.W*c.H)
	var bad error
	res.Grid.Each(func(x, y int, t grid.Tile) {
		id, ok := s.Tiles.Index[t.Name]
		if !ok && bad == nil {
			bad = fmt.Errorf("commit: chunk %v: %w %q", k, catalogs.ErrUnknownTile, t.Name)
		}
		tiles[x+y*c.W] = id
	})
	if bad != nil {
		return View{}, bad
	}
	c.Tiles = tiles
	c.dirty = true
	for p, id := range c.overrides {
		c.Set(p.X, p.Y, id)
	}
	c.Spawns = append([]objects.SpawnRequest(nil), res.Spawns...)
	if len(c.overrides) > 0 {
		c.Anchors = gen.Anchors(s.Behaviors, s.decode(c), c.Origin)
	} else {
		c.Anchors = append([]gen.BehaviorAnchor(nil), res.Anchors...)
	}
	c.Digest()
	c.State = Loaded
	c.Loads++
	return s.view(c), nil
}

// Unload clears a Loaded slot. Overrides survive.
func (s *ChunkStore) Unload(k ChunkKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.slot(k)
	if c == nil || c.State != Loaded {
		return false
	}
	c.State = Unloaded
	c.Tiles = nil
	c.Spawns = nil
	c.Anchors = nil
	c.hash = [32]byte{}
	return true
}

// SetCell overrides one world cell. The override is kept across unloads and
// applied on every later load. loaded reports whether the chunk's tiles
// changed now.
func (s *ChunkStore) SetCell(pos grid.Point, name string) (k ChunkKey, loaded bool, err error) {
	id, ok := s.Tiles.Index[name]
	if !ok {
		return k, false, fmt.Errorf("set cell: %w %q", catalogs.ErrUnknownTile, name)
	}
	k, ok = s.KeyAt(pos)
	if !ok {
		return k, false, fmt.Errorf("set cell: (%d,%d): %w", pos.X, pos.Y, ErrOutOfWorld)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.slot(k)
	local := grid.Point{X: pos.X - c.Origin.X, Y: pos.Y - c.Origin.Y}
	c.overrides[local] = id
	if c.State != Loaded {
		return k, false, nil
	}
	c.Set(local.X, local.Y, id)
	c.Digest()
	c.Anchors = gen.Anchors(s.Behaviors, s.decode(c), c.Origin)
	return k, true, nil
}

func (s *ChunkStore) View(k ChunkKey) (View, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.slot(k)
	if c == nil || c.State != Loaded {
		return View{}, false
	}
	return s.view(c), true
}

// TileAt reads a cell of a loaded chunk.
func (s *ChunkStore) TileAt(pos grid.Point) (grid.Tile, bool) {
	k, ok := s.KeyAt(pos)
	if !ok {
		return grid.Tile{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.slot(k)
	if c.State != Loaded {
		return grid.Tile{}, false
	}
	return s.Tiles.ByID(c.Get(pos.X-c.Origin.X, pos.Y-c.Origin.Y))
}

// Keys lists the slots in state st, sorted by CX then CY.
func (s *ChunkStore) Keys(st State) []ChunkKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []ChunkKey
	for _, c := range s.chunks {
		if c.State == st {
			keys = append(keys, c.Key)
		}
	}
	sortKeys(keys)
	return keys
}

func (s *ChunkStore) LoadedChunkKeys() []ChunkKey {
	return s.Keys(Loaded)
}

// Counts returns how many slots are in each state.
func (s *ChunkStore) Counts() (unloaded, loading, loaded int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.chunks {
		switch c.State {
		case Unloaded:
			unloaded++
		case Loading:
			loading++
		case Loaded:
			loaded++
		}
	}
	return
}

// Failures is the total number of failed builds across all slots.
func (s *ChunkStore) Failures() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.chunks {
		n += c.Failures
	}
	return n
}

func sortKeys(keys []ChunkKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CY < keys[j].CY
	})
}

func (s *ChunkStore) decode(c *Chunk) *grid.Grid {
	g := grid.New(c.W, c.H)
	for y := 0; y < c.H; y++ {
		for x := 0; x < c.W; x++ {
			if t, ok := s.Tiles.ByID(c.Get(x, y)); ok {
				g.Set(x, y, t)
			}
		}
	}
	return g
}

// view expects the digest to be current; callers may hold only the read lock.
func (s *ChunkStore) view(c *Chunk) View {
	g := s.decode(c)
	res := gen.Result{CX: c.Key.CX, CY: c.Key.CY, Origin: c.Origin, Grid: g}
	return View{
		Key:     c.Key,
		Origin:  c.Origin,
		W:       c.W,
		H:       c.H,
		Cells:   res.Cells(),
		Tiles:   append([]uint16(nil), c.Tiles...),
		Spawns:  append([]objects.SpawnRequest(nil), c.Spawns...),
		Anchors: append([]gen.BehaviorAnchor(nil), c.Anchors...),
		Digest:  hex.EncodeToString(c.hash[:]),
	}
}
