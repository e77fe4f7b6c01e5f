package autotile

import (
	"fmt"

	"fastterrain.ai/internal/sim/catalogs"
	"fastterrain.ai/internal/sim/world/logic/rng"
	"fastterrain.ai/internal/sim/world/terrain/grid"
)

type Condition struct {
	N, E, S, W Expr
	Results    []string
}

type Rule struct {
	Tile       string
	Conditions []Condition
}

// Engine decides a tile's final variant from its four neighbors.
type Engine struct {
	rules map[string]*Rule
}

// Compile parses every pattern once. When two rules share a tile name the
// first one is kept.
func Compile(defs []catalogs.RuleDef) (*Engine, error) {
	e := &Engine{rules: make(map[string]*Rule, len(defs))}
	for i, d := range defs {
		if _, dup := e.rules[d.Tile]; dup {
			continue
		}
		r := &Rule{Tile: d.Tile}
		for j, c := range d.Conditions {
			var cond Condition
			for _, dir := range []struct {
				name string
				src  string
				dst  *Expr
			}{
				{"N", c.N, &cond.N},
				{"E", c.E, &cond.E},
				{"S", c.S, &cond.S},
				{"W", c.W, &cond.W},
			} {
				x, err := Parse(dir.src)
				if err != nil {
					return nil, fmt.Errorf("autotileRules[%d] %s conditions[%d].%s: %w", i, d.Tile, j, dir.name, err)
				}
				*dir.dst = x
			}
			cond.Results = c.Results()
			r.Conditions = append(r.Conditions, cond)
		}
		e.rules[d.Tile] = r
	}
	return e, nil
}

func (e *Engine) Len() int { return len(e.rules) }

func (e *Engine) Rule(tile string) (*Rule, bool) {
	r, ok := e.rules[tile]
	return r, ok
}

// Decide returns the tile name t should become. Neighbor coordinates equal to
// grid.NoNeighbor are skipped; coordinates outside g fail their pattern. r is
// only drawn from when the winning result lists several tiles.
func (e *Engine) Decide(t grid.Tile, nb grid.Neighbors, g *grid.Grid, r *rng.Rand) string {
	return e.DecideWithin(t, nb, g, grid.Point{X: g.Width(), Y: g.Height()}, r)
}

// DecideWithin is Decide with cells at or beyond extent treated as outside
// the grid, so a partial edge chunk sees the world edge as absent.
func (e *Engine) DecideWithin(t grid.Tile, nb grid.Neighbors, g *grid.Grid, extent grid.Point, r *rng.Rand) string {
	rule, ok := e.rules[t.Name]
	if !ok {
		return t.Name
	}
	for _, c := range rule.Conditions {
		if !c.matches(rule.Tile, nb, g, extent) {
			continue
		}
		if len(c.Results) > 1 {
			return r.Choose(c.Results)
		}
		return c.Results[0]
	}
	return t.Name
}

func (c *Condition) matches(self string, nb grid.Neighbors, g *grid.Grid, extent grid.Point) bool {
	return dirMatches(c.N, self, nb.N, g, extent) &&
		dirMatches(c.E, self, nb.E, g, extent) &&
		dirMatches(c.S, self, nb.S, g, extent) &&
		dirMatches(c.W, self, nb.W, g, extent)
}

func dirMatches(x Expr, self string, at grid.Point, g *grid.Grid, extent grid.Point) bool {
	if at == grid.NoNeighbor {
		return true
	}
	if at.X >= extent.X || at.Y >= extent.Y {
		return false
	}
	n, ok := g.GetSafe(at.X, at.Y)
	if !ok {
		return false
	}
	return x.Eval(self, n.Name)
}
