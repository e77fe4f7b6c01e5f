package gen

import (
	"fmt"

	"fastterrain.ai/internal/sim/catalogs"
	"fastterrain.ai/internal/sim/world/logic/mathx"
	"fastterrain.ai/internal/sim/world/logic/rng"
	"fastterrain.ai/internal/sim/world/terrain/autotile"
	"fastterrain.ai/internal/sim/world/terrain/grid"
	"fastterrain.ai/internal/sim/world/terrain/objects"
)

type Stage uint8

const (
	StageUnbuilt Stage = iota
	StageNoiseGenerated
	StageBordersApplied
	StageObjectsPlaced
	StageBordersFinal
	StageReady
)

func (s Stage) String() string {
	switch s {
	case StageUnbuilt:
		return "UNBUILT"
	case StageNoiseGenerated:
		return "NOISE_GENERATED"
	case StageBordersApplied:
		return "BORDERS_APPLIED"
	case StageObjectsPlaced:
		return "OBJECTS_PLACED"
	case StageBordersFinal:
		return "BORDERS_FINAL"
	case StageReady:
		return "READY"
	default:
		return fmt.Sprintf("STAGE_%d", s)
	}
}

type WorldSize struct {
	Width  int
	Height int
}

type BehaviorAnchor struct {
	Pos      grid.Point
	Behavior string
}

// Cell is one drawable tile in world coordinates.
type Cell struct {
	Pos   grid.Point
	Name  string
	Atlas grid.Point
	Alt   int
}

// Result is a finished chunk. The builder never touches it after Build
// returns.
type Result struct {
	CX, CY  int
	Origin  grid.Point
	Grid    *grid.Grid
	Spawns  []objects.SpawnRequest
	Anchors []BehaviorAnchor
	Stage   Stage
}

// Cells lists the non-empty cells row-major.
func (r *Result) Cells() []Cell {
	var out []Cell
	r.Grid.Each(func(x, y int, t grid.Tile) {
		if t.IsEmpty() {
			return
		}
		out = append(out, Cell{Pos: r.Origin.Add(grid.Point{X: x, Y: y}), Name: t.Name, Atlas: t.Atlas, Alt: t.Alt})
	})
	return out
}

// Terrain holds one chunk's grids while it is being built.
type Terrain struct {
	Grid   *grid.Grid
	Noise  *grid.Grid
	Origin grid.Point
	// Extent is how much of the chunk lies inside the world.
	Extent grid.Point
}

type Builder struct {
	Seed       int64
	World      WorldSize
	ChunkW     int
	ChunkH     int
	Tiles      *catalogs.TileCatalog
	NoiseTiles []grid.Tile
	Noise      Noise
	Rules      *autotile.Engine
	Objects    []objects.Placement
	Behaviors  map[string]string

	// Trace, when set, observes every stage transition.
	Trace func(cx, cy int, s Stage)
}

// NewBuilder compiles rules and object strategies from the catalog. Any
// configuration problem is returned here rather than during a build.
func NewBuilder(seed int64, world WorldSize, cats *catalogs.Catalogs, reg *objects.Registry, noise Noise) (*Builder, error) {
	if world.Width <= 0 || world.Height <= 0 {
		return nil, fmt.Errorf("world size must be positive, got %dx%d", world.Width, world.Height)
	}
	rules, err := autotile.Compile(cats.Rules)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		reg = objects.DefaultRegistry()
	}
	objs, err := reg.Build(cats.Objects, &cats.Tiles)
	if err != nil {
		return nil, err
	}
	noiseTiles := make([]grid.Tile, 0, len(cats.NoiseTiles))
	for _, n := range cats.NoiseTiles {
		noiseTiles = append(noiseTiles, cats.Tiles.MustTile(n))
	}
	return &Builder{
		Seed:       seed,
		World:      world,
		ChunkW:     cats.Chunk.Width,
		ChunkH:     cats.Chunk.Height,
		Tiles:      &cats.Tiles,
		NoiseTiles: noiseTiles,
		Noise:      noise,
		Rules:      rules,
		Objects:    objs,
		Behaviors:  cats.BehaviorFor(),
	}, nil
}

// Chunks returns how many chunk columns and rows cover the world.
func (b *Builder) Chunks() (cols, rows int) {
	return mathx.FloorDiv(b.World.Width+b.ChunkW-1, b.ChunkW), mathx.FloorDiv(b.World.Height+b.ChunkH-1, b.ChunkH)
}

// Build runs the whole pipeline for chunk (cx,cy). It depends only on the
// seed, the configuration and the chunk coordinate.
func (b *Builder) Build(cx, cy int) (res *Result, err error) {
	cols, rows := b.Chunks()
	if cx < 0 || cy < 0 || cx >= cols || cy >= rows {
		return nil, fmt.Errorf("chunk (%d,%d) outside world of %dx%d chunks", cx, cy, cols, rows)
	}
	defer func() {
		if p := recover(); p != nil {
			res = nil
			err = fmt.Errorf("build chunk (%d,%d): panic: %v", cx, cy, p)
		}
	}()

	origin := grid.Point{X: cx * b.ChunkW, Y: cy * b.ChunkH}
	t := &Terrain{
		Grid:   grid.New(b.ChunkW, b.ChunkH),
		Noise:  grid.New(b.ChunkW, b.ChunkH),
		Origin: origin,
		Extent: grid.Point{
			X: mathx.ClampInt(b.World.Width-origin.X, 0, b.ChunkW),
			Y: mathx.ClampInt(b.World.Height-origin.Y, 0, b.ChunkH),
		},
	}
	r := rng.ForChunk(b.Seed, cx, cy)

	b.GenerateNoise(t)
	b.trace(cx, cy, StageNoiseGenerated)

	ApplyBorders(b.Rules, b.Tiles, t.Noise, t.Grid, t.Extent, r)
	b.trace(cx, cy, StageBordersApplied)

	site := objects.NewSite(t.Grid, origin, r)
	site.Extent = t.Extent
	for _, p := range b.Objects {
		p.Place(site)
	}
	b.trace(cx, cy, StageObjectsPlaced)

	ApplyBorders(b.Rules, b.Tiles, t.Grid, t.Grid, t.Extent, r)
	b.trace(cx, cy, StageBordersFinal)

	res = &Result{
		CX:      cx,
		CY:      cy,
		Origin:  origin,
		Grid:    t.Grid,
		Spawns:  site.Spawns,
		Anchors: Anchors(b.Behaviors, t.Grid, origin),
		Stage:   StageReady,
	}
	b.trace(cx, cy, StageReady)
	return res, nil
}

func (b *Builder) trace(cx, cy int, s Stage) {
	if b.Trace != nil {
		b.Trace(cx, cy, s)
	}
}

// GenerateNoise fills every in-world Empty cell of the chunk from the noise
// field, writing both the authoritative and the noise-only grid.
func (b *Builder) GenerateNoise(t *Terrain) {
	n := len(b.NoiseTiles)
	if n == 0 || b.Noise == nil {
		return
	}
	for y := 0; y < t.Extent.Y; y++ {
		for x := 0; x < t.Extent.X; x++ {
			if !t.Grid.Get(x, y).IsEmpty() {
				continue
			}
			v := b.Noise.At(t.Origin.X+x, t.Origin.Y+y)
			tile := b.NoiseTiles[NoiseIndex(v, n)]
			t.Grid.Set(x, y, tile)
			t.Noise.Set(x, y, tile)
		}
	}
}

type rewrite struct {
	x, y int
	t    grid.Tile
}

// ApplyBorders decides every non-empty cell of src and writes the changed
// cells into dst after the whole scan, so no decision in a pass sees another
// decision from the same pass. Neighbors at or beyond extent count as outside
// the world. It returns the number of rewrites.
func ApplyBorders(rules *autotile.Engine, tiles *catalogs.TileCatalog, src, dst *grid.Grid, extent grid.Point, r *rng.Rand) int {
	if rules == nil || rules.Len() == 0 {
		return 0
	}
	var buf []rewrite
	src.Each(func(x, y int, t grid.Tile) {
		if t.IsEmpty() {
			return
		}
		name := rules.DecideWithin(t, src.Neighbors(x, y), src, extent, r)
		if name == t.Name {
			return
		}
		nt, ok := tiles.Tile(name)
		if !ok {
			return
		}
		buf = append(buf, rewrite{x: x, y: y, t: nt})
	})
	for _, w := range buf {
		dst.Set(w.x, w.y, w.t)
	}
	return len(buf)
}

// Anchors lists the world positions of tiles bound to a behavior, row-major.
func Anchors(behaviors map[string]string, g *grid.Grid, origin grid.Point) []BehaviorAnchor {
	if len(behaviors) == 0 {
		return nil
	}
	var out []BehaviorAnchor
	g.Each(func(x, y int, t grid.Tile) {
		if name, ok := behaviors[t.Name]; ok {
			out = append(out, BehaviorAnchor{Pos: origin.Add(grid.Point{X: x, Y: y}), Behavior: name})
		}
	})
	return out
}
