package grid

import (
	"fmt"

	"github.com/zyedidia/generic/mapset"
)

// NoNeighbor marks a direction that was not queried. Rule evaluation skips it.
var NoNeighbor = Point{X: -1, Y: -1}

type Neighbors struct {
	N, E, S, W Point
}

// Grid is a fixed-size 2D array of tiles, row-major.
type Grid struct {
	w, h  int
	cells []Tile
}

func New(w, h int) *Grid {
	if w < 0 || h < 0 {
		panic(fmt.Sprintf("grid: negative size %dx%d", w, h))
	}
	g := &Grid{w: w, h: h, cells: make([]Tile, w*h)}
	e := Empty()
	for i := range g.cells {
		g.cells[i] = e
	}
	return g
}

func (g *Grid) Width() int  { return g.w }
func (g *Grid) Height() int { return g.h }

func (g *Grid) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.w && y < g.h
}

func (g *Grid) index(x, y int) int {
	if !g.InBounds(x, y) {
		panic(fmt.Sprintf("grid: (%d,%d) out of range %dx%d", x, y, g.w, g.h))
	}
	return x + y*g.w
}

// Get reads a cell the caller already knows is in range.
func (g *Grid) Get(x, y int) Tile { return g.cells[g.index(x, y)] }

func (g *Grid) GetSafe(x, y int) (Tile, bool) {
	if !g.InBounds(x, y) {
		return Tile{}, false
	}
	return g.cells[x+y*g.w], true
}

func (g *Grid) Set(x, y int, t Tile) { g.cells[g.index(x, y)] = t }

// SetSafe writes in-range cells and reports whether the write happened.
func (g *Grid) SetSafe(x, y int, t Tile) bool {
	if !g.InBounds(x, y) {
		return false
	}
	g.cells[x+y*g.w] = t
	return true
}

// Neighbors returns the four cardinal coordinates; they may be out of range.
func (g *Grid) Neighbors(x, y int) Neighbors {
	return Neighbors{
		N: Point{X: x, Y: y - 1},
		E: Point{X: x + 1, Y: y},
		S: Point{X: x, Y: y + 1},
		W: Point{X: x - 1, Y: y},
	}
}

// RegionUnsafe returns the w*h block at origin in row-major order and panics
// when any cell falls outside the grid.
func (g *Grid) RegionUnsafe(origin Point, w, h int) []PositionedTile {
	out := make([]PositionedTile, 0, w*h)
	for y := origin.Y; y < origin.Y+h; y++ {
		for x := origin.X; x < origin.X+w; x++ {
			out = append(out, PositionedTile{Tile: g.Get(x, y), Pos: Point{X: x, Y: y}})
		}
	}
	return out
}

// RegionSafe is RegionUnsafe with absent cells instead of panics. The result
// always has length w*h.
func (g *Grid) RegionSafe(origin Point, w, h int) []MaybeTile {
	if w <= 0 || h <= 0 {
		return nil
	}
	out := make([]MaybeTile, 0, w*h)
	for y := origin.Y; y < origin.Y+h; y++ {
		for x := origin.X; x < origin.X+w; x++ {
			p := Point{X: x, Y: y}
			t, ok := g.GetSafe(x, y)
			out = append(out, MaybeTile{PositionedTile: PositionedTile{Tile: t, Pos: p}, OK: ok})
		}
	}
	return out
}

// Present drops the absent cells of a RegionSafe result.
func Present(region []MaybeTile) []PositionedTile {
	out := make([]PositionedTile, 0, len(region))
	for _, c := range region {
		if c.OK {
			out = append(out, c.PositionedTile)
		}
	}
	return out
}

func CellsMatching(names mapset.Set[string], region []PositionedTile) []Point {
	var out []Point
	for _, c := range region {
		if names.Has(c.Name) {
			out = append(out, c.Pos)
		}
	}
	return out
}

func (g *Grid) Clone() *Grid {
	c := &Grid{w: g.w, h: g.h, cells: make([]Tile, len(g.cells))}
	copy(c.cells, g.cells)
	return c
}

// Each visits cells in row-major order.
func (g *Grid) Each(fn func(x, y int, t Tile)) {
	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			fn(x, y, g.cells[x+y*g.w])
		}
	}
}
