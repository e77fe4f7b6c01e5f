package stream

import (
	"sort"

	"fastterrain.ai/internal/sim/world/logic/mathx"
	"fastterrain.ai/internal/sim/world/terrain/store"
)

// Distance is the Chebyshev distance between two chunk keys.
func Distance(a, b store.ChunkKey) int {
	return mathx.Chebyshev(a.CX, a.CY, b.CX, b.CY)
}

// Window lists the chunk keys within Chebyshev distance radius of center
// that exist in a cols*rows world, nearest first. Ties on Manhattan distance
// are broken by CY then CX so the order is stable.
func Window(center store.ChunkKey, radius, cols, rows int) []store.ChunkKey {
	if radius < 0 {
		radius = 0
	}
	type item struct {
		k    store.ChunkKey
		dist int
	}
	items := make([]item, 0, (2*radius+1)*(2*radius+1))
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			k := store.ChunkKey{CX: center.CX + dx, CY: center.CY + dy}
			if k.CX < 0 || k.CY < 0 || k.CX >= cols || k.CY >= rows {
				continue
			}
			items = append(items, item{k: k, dist: mathx.AbsInt(dx) + mathx.AbsInt(dy)})
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].dist != items[j].dist {
			return items[i].dist < items[j].dist
		}
		if items[i].k.CY != items[j].k.CY {
			return items[i].k.CY < items[j].k.CY
		}
		return items[i].k.CX < items[j].k.CX
	})
	out := make([]store.ChunkKey, 0, len(items))
	for _, it := range items {
		out = append(out, it.k)
	}
	return out
}
