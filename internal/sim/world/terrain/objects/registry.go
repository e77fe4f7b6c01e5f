package objects

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/zyedidia/generic/mapset"

	"fastterrain.ai/internal/sim/catalogs"
	"fastterrain.ai/internal/sim/world/logic/rng"
)

// Placement is a configured object strategy. Place scans the site for anchors
// and stamps structures or records spawns.
type Placement interface {
	Name() string
	Place(s *Site)
}

type Factory func(def catalogs.ObjectDef, tiles *catalogs.TileCatalog) (Placement, error)

type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// DefaultRegistry knows every built-in strategy.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("Tree", newTree)
	r.Register("FTTree", newTree)
	r.Register("MushroomTree", newMushroomTree)
	r.Register("Default", newStamp)
	r.Register("Grass", newScatter)
	r.Register("EnemySpawner", newSpawner)
	return r
}

func (r *Registry) Register(name string, f Factory) {
	if _, dup := r.factories[name]; dup {
		panic(fmt.Sprintf("objects: strategy %q registered twice", name))
	}
	r.factories[name] = f
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.factories))
	for n := range r.factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Build instantiates defs in order. Unknown strategy names and option tiles
// missing from the catalog are errors.
func (r *Registry) Build(defs []catalogs.ObjectDef, tiles *catalogs.TileCatalog) ([]Placement, error) {
	out := make([]Placement, 0, len(defs))
	for i, d := range defs {
		f, ok := r.factories[d.Name]
		if !ok {
			return nil, fmt.Errorf("objects.chunk[%d]: unknown strategy %q (known: %v)", i, d.Name, r.Names())
		}
		p, err := f(d, tiles)
		if err != nil {
			return nil, fmt.Errorf("objects.chunk[%d] %s: %w", i, d.Name, err)
		}
		out = append(out, p)
	}
	return out, nil
}

type base struct {
	name    string
	spawnOn mapset.Set[string]
	rarity  float64
}

func newBase(def catalogs.ObjectDef) base {
	b := base{name: def.Name, spawnOn: mapset.New[string](), rarity: def.Rarity}
	for _, n := range def.SpawnOn {
		b.spawnOn.Put(n)
	}
	return b
}

func (b base) Name() string { return b.name }

// roll is the rarity gate: rarity 1 always passes, 0 never does.
func (b base) roll(r *rng.Rand) bool {
	return r.Float64() < b.rarity
}

func decodeOptions(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("options: %w", err)
	}
	return nil
}

func resolveTiles(tiles *catalogs.TileCatalog, names ...string) error {
	for _, n := range names {
		if !tiles.Has(n) {
			return fmt.Errorf("options: %w %q", catalogs.ErrUnknownTile, n)
		}
	}
	return nil
}
