package objects

import (
	"fmt"

	"fastterrain.ai/internal/sim/catalogs"
	"fastterrain.ai/internal/sim/world/terrain/grid"
)

// tree grows a trunk of random height out of the anchor with a one-row canopy
// on top. Trees and mushroom trees differ only in their canopy.
type tree struct {
	base
	trunk      grid.Tile
	canopy     []grid.Tile
	minH, maxH int
}

type treeOptions struct {
	Trunk       string `json:"trunk"`
	Leaves      string `json:"leaves"`
	MinHeight   int    `json:"minHeight"`
	MaxHeight   int    `json:"maxHeight"`
	CanopyWidth int    `json:"canopyWidth"`
}

func newTree(def catalogs.ObjectDef, tiles *catalogs.TileCatalog) (Placement, error) {
	opt := treeOptions{MinHeight: 2, MaxHeight: 4, CanopyWidth: 3}
	if err := decodeOptions(def.Options, &opt); err != nil {
		return nil, err
	}
	if opt.Trunk == "" || opt.Leaves == "" {
		return nil, fmt.Errorf("options: trunk and leaves are required")
	}
	if err := resolveTiles(tiles, opt.Trunk, opt.Leaves); err != nil {
		return nil, err
	}
	if opt.CanopyWidth < 1 || opt.CanopyWidth%2 == 0 {
		return nil, fmt.Errorf("options: canopyWidth must be odd and positive, got %d", opt.CanopyWidth)
	}
	canopy := make([]grid.Tile, opt.CanopyWidth)
	for i := range canopy {
		canopy[i] = tiles.MustTile(opt.Leaves)
	}
	return newTreeShape(def, tiles.MustTile(opt.Trunk), canopy, opt.MinHeight, opt.MaxHeight)
}

type mushroomOptions struct {
	Stem      string `json:"stem"`
	CapLeft   string `json:"capLeft"`
	Cap       string `json:"cap"`
	CapRight  string `json:"capRight"`
	MinHeight int    `json:"minHeight"`
	MaxHeight int    `json:"maxHeight"`
}

func newMushroomTree(def catalogs.ObjectDef, tiles *catalogs.TileCatalog) (Placement, error) {
	opt := mushroomOptions{MinHeight: 1, MaxHeight: 3}
	if err := decodeOptions(def.Options, &opt); err != nil {
		return nil, err
	}
	if opt.Stem == "" || opt.Cap == "" {
		return nil, fmt.Errorf("options: stem and cap are required")
	}
	if opt.CapLeft == "" {
		opt.CapLeft = opt.Cap
	}
	if opt.CapRight == "" {
		opt.CapRight = opt.Cap
	}
	if err := resolveTiles(tiles, opt.Stem, opt.CapLeft, opt.Cap, opt.CapRight); err != nil {
		return nil, err
	}
	canopy := []grid.Tile{tiles.MustTile(opt.CapLeft), tiles.MustTile(opt.Cap), tiles.MustTile(opt.CapRight)}
	return newTreeShape(def, tiles.MustTile(opt.Stem), canopy, opt.MinHeight, opt.MaxHeight)
}

func newTreeShape(def catalogs.ObjectDef, trunk grid.Tile, canopy []grid.Tile, minH, maxH int) (Placement, error) {
	if minH < 1 || maxH < minH {
		return nil, fmt.Errorf("options: bad height range [%d,%d]", minH, maxH)
	}
	return &tree{base: newBase(def), trunk: trunk, canopy: canopy, minH: minH, maxH: maxH}, nil
}

func (t *tree) Place(s *Site) {
	w := len(t.canopy)
	for _, a := range s.Anchors(t.spawnOn) {
		h := s.Rand.Range(t.minH, t.maxH)
		at := above(a, w, h+1)
		if !s.CanBuild(at, w, h+1) || !t.roll(s.Rand) {
			continue
		}
		for i, c := range t.canopy {
			s.Grid.Set(at.X+i, at.Y, c)
		}
		for y := at.Y + 1; y < a.Y; y++ {
			s.Grid.Set(a.X, y, t.trunk)
		}
	}
}

// stamp places a fixed pattern. Rows run top to bottom; "" leaves a cell
// empty but still requires it to be free.
type stamp struct {
	base
	rows [][]grid.Tile
	w    int
}

type stampOptions struct {
	Pattern [][]string `json:"pattern"`
}

func newStamp(def catalogs.ObjectDef, tiles *catalogs.TileCatalog) (Placement, error) {
	var opt stampOptions
	if err := decodeOptions(def.Options, &opt); err != nil {
		return nil, err
	}
	if len(opt.Pattern) == 0 {
		return nil, fmt.Errorf("options: pattern is required")
	}
	st := &stamp{base: newBase(def)}
	for _, row := range opt.Pattern {
		out := make([]grid.Tile, len(row))
		for i, n := range row {
			if n == "" {
				out[i] = grid.Empty()
				continue
			}
			if err := resolveTiles(tiles, n); err != nil {
				return nil, err
			}
			out[i] = tiles.MustTile(n)
		}
		if len(out) > st.w {
			st.w = len(out)
		}
		st.rows = append(st.rows, out)
	}
	if st.w == 0 {
		return nil, fmt.Errorf("options: pattern has no columns")
	}
	return st, nil
}

func (st *stamp) Place(s *Site) {
	h := len(st.rows)
	for _, a := range s.Anchors(st.spawnOn) {
		at := above(a, st.w, h)
		if !s.CanBuild(at, st.w, h) || !st.roll(s.Rand) {
			continue
		}
		for dy, row := range st.rows {
			for dx, t := range row {
				if t.IsEmpty() {
					continue
				}
				s.Grid.Set(at.X+dx, at.Y+dy, t)
			}
		}
	}
}

// scatter drops a single decoration tile on top of the anchor.
type scatter struct {
	base
	tiles []grid.Tile
}

type scatterOptions struct {
	Tiles []string `json:"tiles"`
}

func newScatter(def catalogs.ObjectDef, tiles *catalogs.TileCatalog) (Placement, error) {
	var opt scatterOptions
	if err := decodeOptions(def.Options, &opt); err != nil {
		return nil, err
	}
	if len(opt.Tiles) == 0 {
		return nil, fmt.Errorf("options: tiles is required")
	}
	if err := resolveTiles(tiles, opt.Tiles...); err != nil {
		return nil, err
	}
	sc := &scatter{base: newBase(def)}
	for _, n := range opt.Tiles {
		sc.tiles = append(sc.tiles, tiles.MustTile(n))
	}
	return sc, nil
}

func (sc *scatter) Place(s *Site) {
	for _, a := range s.Anchors(sc.spawnOn) {
		at := above(a, 1, 1)
		if !s.CanBuild(at, 1, 1) || !sc.roll(s.Rand) {
			continue
		}
		s.Grid.Set(at.X, at.Y, sc.tiles[s.Rand.Intn(len(sc.tiles))])
	}
}

// spawner writes no tiles; it records entities for the host to instantiate.
type spawner struct {
	base
	entities []string
}

type spawnerOptions struct {
	Entities []string `json:"entities"`
}

func newSpawner(def catalogs.ObjectDef, _ *catalogs.TileCatalog) (Placement, error) {
	var opt spawnerOptions
	if err := decodeOptions(def.Options, &opt); err != nil {
		return nil, err
	}
	if len(opt.Entities) == 0 {
		return nil, fmt.Errorf("options: entities is required")
	}
	return &spawner{base: newBase(def), entities: opt.Entities}, nil
}

func (sp *spawner) Place(s *Site) {
	for _, a := range s.Anchors(sp.spawnOn) {
		at := above(a, 1, 1)
		if !s.CanBuild(at, 1, 1) || !sp.roll(s.Rand) {
			continue
		}
		s.Spawn(s.Rand.Choose(sp.entities), at)
	}
}
