package objects

import (
	"github.com/zyedidia/generic/mapset"

	"fastterrain.ai/internal/sim/world/logic/rng"
	"fastterrain.ai/internal/sim/world/terrain/grid"
)

// SpawnRequest asks the presentation side to instantiate an entity at a world
// grid position.
type SpawnRequest struct {
	Entity string
	Pos    grid.Point
}

// Site is the chunk a placement pass works on. Grid coordinates are chunk
// local; Origin converts them to world coordinates.
type Site struct {
	Grid   *grid.Grid
	Origin grid.Point
	Rand   *rng.Rand
	Spawns []SpawnRequest

	// Extent is the in-world part of the grid, measured from (0,0). Chunks on
	// the world edge are only partly inside the world.
	Extent grid.Point

	claimed mapset.Set[grid.Point]
}

func NewSite(g *grid.Grid, origin grid.Point, r *rng.Rand) *Site {
	return &Site{
		Grid:    g,
		Origin:  origin,
		Rand:    r,
		Extent:  grid.Point{X: g.Width(), Y: g.Height()},
		claimed: mapset.New[grid.Point](),
	}
}

// Anchors lists the local cells whose tile is one of names, row-major.
func (s *Site) Anchors(names mapset.Set[string]) []grid.Point {
	all := s.Grid.RegionSafe(grid.Point{}, s.Grid.Width(), s.Grid.Height())
	return grid.CellsMatching(names, grid.Present(all))
}

// CanBuild checks a w*h footprint at local origin at: it must lie inside the
// chunk and every cell must be Empty and not claimed by a pending spawn.
func (s *Site) CanBuild(at grid.Point, w, h int) bool {
	if w <= 0 || h <= 0 {
		return false
	}
	if at.X < 0 || at.Y < 0 || at.X+w > s.Extent.X || at.Y+h > s.Extent.Y {
		return false
	}
	for _, c := range s.Grid.RegionSafe(at, w, h) {
		if !c.OK || !c.IsEmpty() || s.claimed.Has(c.Pos) {
			return false
		}
	}
	return true
}

// Spawn claims a local cell and records a deferred spawn at its world position.
func (s *Site) Spawn(entity string, local grid.Point) {
	s.claimed.Put(local)
	s.Spawns = append(s.Spawns, SpawnRequest{Entity: entity, Pos: s.Origin.Add(local)})
}

// above returns the top-left corner of a w*h footprint whose bottom row sits
// directly on top of anchor, horizontally centred on it.
func above(anchor grid.Point, w, h int) grid.Point {
	return grid.Point{X: anchor.X - (w-1)/2, Y: anchor.Y - h}
}
