package world

import (
	"github.com/zyedidia/generic/mapset"

	"fastterrain.ai/internal/sim/world/terrain/gen"
	"fastterrain.ai/internal/sim/world/terrain/grid"
)

// FindSpawnPoint returns the Empty cell directly above a spawn tile. Chunk
// columns are searched outward from the world centre, each top to bottom,
// so the player lands on the highest surface near the middle. Without a
// match (or without spawn tiles) it returns the world centre.
func FindSpawnPoint(b *gen.Builder, spawnTiles []string) grid.Point {
	centre := grid.Point{X: b.World.Width / 2, Y: b.World.Height / 2}
	if len(spawnTiles) == 0 {
		return centre
	}
	names := mapset.New[string]()
	for _, n := range spawnTiles {
		names.Put(n)
	}

	cols, rows := b.Chunks()
	mid := centre.X / b.ChunkW
	for _, cx := range outward(mid, cols) {
		var above *gen.Result
		for cy := 0; cy < rows; cy++ {
			res, err := b.Build(cx, cy)
			if err != nil {
				above = nil
				continue
			}
			if p, ok := surface(res, above, names); ok {
				return p
			}
			above = res
		}
	}
	return centre
}

// outward lists 0..n-1 starting at mid, alternating right then left.
func outward(mid, n int) []int {
	out := make([]int, 0, n)
	if mid >= 0 && mid < n {
		out = append(out, mid)
	}
	for d := 1; len(out) < n; d++ {
		if r := mid + d; r >= 0 && r < n {
			out = append(out, r)
		}
		if l := mid - d; l >= 0 && l < n {
			out = append(out, l)
		}
		if mid+d >= n && mid-d < 0 {
			break
		}
	}
	return out
}

// surface scans res column by column from the top for a spawn tile with an
// Empty cell above it. above is the chunk directly on top, if built.
func surface(res *gen.Result, above *gen.Result, names mapset.Set[string]) (grid.Point, bool) {
	g := res.Grid
	for x := 0; x < g.Width(); x++ {
		for y := 0; y < g.Height(); y++ {
			if !names.Has(g.Get(x, y).Name) {
				continue
			}
			var open bool
			switch {
			case y > 0:
				open = g.Get(x, y-1).IsEmpty()
			case above != nil:
				open = above.Grid.Get(x, above.Grid.Height()-1).IsEmpty()
			}
			// On the world's top row there is no cell to stand in.
			if !open {
				continue
			}
			return res.Origin.Add(grid.Point{X: x, Y: y - 1}), true
		}
	}
	return grid.Point{}, false
}
