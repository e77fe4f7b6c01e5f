package gen

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"fastterrain.ai/internal/sim/catalogs"
	"fastterrain.ai/internal/sim/world/logic/rng"
	"fastterrain.ai/internal/sim/world/terrain/autotile"
	"fastterrain.ai/internal/sim/world/terrain/grid"
	"fastterrain.ai/internal/sim/world/terrain/objects"
)

const sandGrassWater = `{
  "tiles": [
    {"name": "Sand", "x": 0, "y": 0},
    {"name": "Grass", "x": 1, "y": 0},
    {"name": "Water", "x": 2, "y": 0}
  ],
  "noiseTiles": ["Sand", "Grass", "Water"],
  "terrainSize": {"width": {"min": 16, "max": 16}, "height": {"min": 16, "max": 16}},
  "chunk": {"width": 4, "height": 4},
  "autotileRules": [],
  "objects": {"chunk": []},
  "behaviors": []
}`

// islands has rules with random results, objects and behaviors so that
// determinism covers every rng consumer.
const islands = `{
  "tiles": [
    {"name": "Dirt", "x": 0, "y": 0},
    {"name": "Grass", "x": 1, "y": 0},
    {"name": "GrassTop", "x": 2, "y": 0},
    {"name": "GrassTopAlt", "x": 2, "y": 1, "alt": 1},
    {"name": "Stone", "x": 3, "y": 0},
    {"name": "Trunk", "x": 4, "y": 0},
    {"name": "Leaves", "x": 5, "y": 0},
    {"name": "Flower", "x": 6, "y": 0}
  ],
  "noiseTiles": ["Empty", "Empty", "Dirt", "Grass", "Stone"],
  "terrainSize": {"width": {"min": 40, "max": 40}, "height": {"min": 40, "max": 40}},
  "chunk": {"width": 16, "height": 16},
  "autotileRules": [
    {"tile": "Grass", "conditions": [
      {"result": "GrassTop,GrassTopAlt", "N": "Empty", "E": "Any", "S": "Any", "W": "Any"}
    ]},
    {"tile": "Dirt", "conditions": [
      {"result": "Grass", "N": "Empty|Flower", "E": "Any", "S": "!Empty", "W": "Any"}
    ]}
  ],
  "objects": {"chunk": [
    {"name": "Tree", "spawnOn": ["GrassTop", "GrassTopAlt"], "rarity": 0.2,
     "options": {"trunk": "Trunk", "leaves": "Leaves", "minHeight": 1, "maxHeight": 3}},
    {"name": "Grass", "spawnOn": ["GrassTop"], "rarity": 0.5, "options": {"tiles": ["Flower"]}},
    {"name": "EnemySpawner", "spawnOn": ["Stone"], "rarity": 0.3, "options": {"entities": ["slime", "bat"]}}
  ]},
  "behaviors": [{"tile": "Trunk", "behavior": "climb"}]
}`

func mustCatalog(t *testing.T, doc string) *catalogs.Catalogs {
	t.Helper()
	c, err := catalogs.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse catalog: %v", err)
	}
	return c
}

func mustBuilder(t *testing.T, seed int64, doc string) *Builder {
	t.Helper()
	cats := mustCatalog(t, doc)
	w := WorldSize{Width: cats.Size.Width.Min, Height: cats.Size.Height.Min}
	b, err := NewBuilder(seed, w, cats, nil, NewPerlin(seed, DefaultNoiseParams()))
	if err != nil {
		t.Fatalf("builder: %v", err)
	}
	return b
}

func TestNoiseFillsChunkFromNoiseTiles(t *testing.T) {
	b := mustBuilder(t, 42, sandGrassWater)
	tr := &Terrain{
		Grid:   grid.New(4, 4),
		Noise:  grid.New(4, 4),
		Extent: grid.Point{X: 4, Y: 4},
	}
	b.GenerateNoise(tr)

	allowed := map[string]bool{"Sand": true, "Grass": true, "Water": true}
	count := 0
	tr.Grid.Each(func(x, y int, tl grid.Tile) {
		if tl.IsEmpty() {
			t.Fatalf("(%d,%d) still Empty after noise", x, y)
		}
		if !allowed[tl.Name] {
			t.Fatalf("(%d,%d)=%q not a noise tile", x, y, tl.Name)
		}
		if n := tr.Noise.Get(x, y); n.Name != tl.Name {
			t.Fatalf("(%d,%d) noise grid %q != grid %q", x, y, n.Name, tl.Name)
		}
		count++
	})
	if count != 16 {
		t.Fatalf("cells=%d want 16", count)
	}
}

func TestNoiseIndex(t *testing.T) {
	cases := []struct {
		v    float64
		n    int
		want int
	}{
		{0, 3, 0},
		{0.34, 3, 1},
		{-0.34, 3, 1},
		{0.99, 3, 2},
		{1.0, 3, 2},
		{-7.5, 3, 2},
		{0.5, 0, 0},
	}
	for _, c := range cases {
		if got := NoiseIndex(c.v, c.n); got != c.want {
			t.Errorf("NoiseIndex(%v,%d)=%d want %d", c.v, c.n, got, c.want)
		}
	}
}

func TestBuildStageOrder(t *testing.T) {
	b := mustBuilder(t, 7, islands)
	var got []Stage
	b.Trace = func(cx, cy int, s Stage) { got = append(got, s) }
	res, err := b.Build(0, 0)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := []Stage{StageNoiseGenerated, StageBordersApplied, StageObjectsPlaced, StageBordersFinal, StageReady}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("stages=%v want %v", got, want)
	}
	if res.Stage != StageReady {
		t.Fatalf("result stage=%v", res.Stage)
	}
}

func snapshotGrid(g *grid.Grid) []string {
	var out []string
	g.Each(func(x, y int, t grid.Tile) { out = append(out, t.Name) })
	return out
}

func TestBuildDeterministic(t *testing.T) {
	for _, key := range [][2]int{{0, 0}, {1, 2}, {2, 2}} {
		a, err := mustBuilder(t, 1337, islands).Build(key[0], key[1])
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		// Build other chunks first on the second builder; order must not matter.
		b2 := mustBuilder(t, 1337, islands)
		for _, other := range [][2]int{{2, 0}, {0, 2}} {
			if _, err := b2.Build(other[0], other[1]); err != nil {
				t.Fatalf("build: %v", err)
			}
		}
		b, err := b2.Build(key[0], key[1])
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		if !reflect.DeepEqual(snapshotGrid(a.Grid), snapshotGrid(b.Grid)) {
			t.Fatalf("chunk %v grids differ", key)
		}
		if !reflect.DeepEqual(a.Spawns, b.Spawns) {
			t.Fatalf("chunk %v spawns differ: %v vs %v", key, a.Spawns, b.Spawns)
		}
		if !reflect.DeepEqual(a.Anchors, b.Anchors) {
			t.Fatalf("chunk %v anchors differ", key)
		}
	}
}

func TestBuildSeedChangesOutput(t *testing.T) {
	a, _ := mustBuilder(t, 1, islands).Build(0, 0)
	b, _ := mustBuilder(t, 2, islands).Build(0, 0)
	if reflect.DeepEqual(snapshotGrid(a.Grid), snapshotGrid(b.Grid)) {
		t.Fatalf("different seeds produced the same chunk")
	}
}

func TestBuildEdgeChunkIsPartial(t *testing.T) {
	// 40x40 world, 16x16 chunks: chunk (2,2) covers x,y in [32,48).
	res, err := mustBuilder(t, 3, islands).Build(2, 2)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	res.Grid.Each(func(x, y int, tl grid.Tile) {
		if (x >= 8 || y >= 8) && !tl.IsEmpty() {
			t.Fatalf("(%d,%d)=%q outside the world", x, y, tl.Name)
		}
	})
	for _, c := range res.Cells() {
		if c.Pos.X >= 40 || c.Pos.Y >= 40 {
			t.Fatalf("cell outside world: %+v", c)
		}
	}
	for _, s := range res.Spawns {
		if s.Pos.X >= 40 || s.Pos.Y >= 40 {
			t.Fatalf("spawn outside world: %+v", s)
		}
	}
}

func TestWorldEdgeAutotilesIndependentOfChunkFit(t *testing.T) {
	cats := mustCatalog(t, `{
	  "tiles": [{"name": "Dirt", "x": 0, "y": 0}, {"name": "EdgeR", "x": 1, "y": 0}],
	  "noiseTiles": ["Dirt"],
	  "terrainSize": {"width": {"min": 30, "max": 32}, "height": {"min": 16, "max": 16}},
	  "chunk": {"width": 16, "height": 16},
	  "autotileRules": [{"tile": "Dirt", "conditions": [
	    {"result": "EdgeR", "N": "Any", "E": "Empty", "S": "Any", "W": "Any"}
	  ]}],
	  "objects": {"chunk": []},
	  "behaviors": []
	}`)
	edge := func(width int) []string {
		t.Helper()
		b, err := NewBuilder(9, WorldSize{Width: width, Height: 16}, cats, nil, NewPerlin(9, DefaultNoiseParams()))
		if err != nil {
			t.Fatalf("builder: %v", err)
		}
		res, err := b.Build(1, 0)
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		// Rightmost in-world column of chunk (1,0), rows 1..14.
		x := width - 1 - res.Origin.X
		var col []string
		for y := 1; y < 15; y++ {
			col = append(col, res.Grid.Get(x, y).Name)
		}
		return col
	}
	short, full := edge(30), edge(32)
	if !reflect.DeepEqual(short, full) {
		t.Fatalf("world edge differs: width 30=%v width 32=%v", short, full)
	}
	for _, name := range short {
		if name != "Dirt" {
			t.Fatalf("world edge rewritten to %q; cells past the world must be absent", name)
		}
	}
}

func TestBuildRejectsChunkOutsideWorld(t *testing.T) {
	b := mustBuilder(t, 3, islands)
	for _, k := range [][2]int{{-1, 0}, {0, -1}, {3, 0}, {0, 3}} {
		if _, err := b.Build(k[0], k[1]); err == nil {
			t.Fatalf("chunk %v: expected error", k)
		}
	}
}

func TestBehaviorAnchorsFollowTiles(t *testing.T) {
	b := mustBuilder(t, 11, islands)
	cols, rows := b.Chunks()
	for cy := 0; cy < rows; cy++ {
		for cx := 0; cx < cols; cx++ {
			res, err := b.Build(cx, cy)
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			for _, a := range res.Anchors {
				local := grid.Point{X: a.Pos.X - res.Origin.X, Y: a.Pos.Y - res.Origin.Y}
				if tl := res.Grid.Get(local.X, local.Y); tl.Name != "Trunk" || a.Behavior != "climb" {
					t.Fatalf("anchor %+v on %q", a, tl.Name)
				}
			}
		}
	}
}

func TestApplyBordersIsBuffered(t *testing.T) {
	// One populated row between two Empty rows. Rule: an A whose west
	// neighbor is A becomes B. Rewriting in place would turn A A A into
	// A B A because x=2 would see the fresh B; buffered gives A B B.
	cats := mustCatalog(t, `{
	  "tiles": [{"name": "A", "x": 0, "y": 0}, {"name": "B", "x": 1, "y": 0}],
	  "noiseTiles": ["A"],
	  "terrainSize": {"width": {"min": 3, "max": 3}, "height": {"min": 3, "max": 3}},
	  "chunk": {"width": 3, "height": 3},
	  "autotileRules": [{"tile": "A", "conditions": [
	    {"result": "B", "N": "Any", "E": "Any", "S": "Any", "W": "A"}
	  ]}],
	  "objects": {"chunk": []},
	  "behaviors": []
	}`)
	rules, err := autotile.Compile(cats.Rules)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	g := grid.New(5, 3)
	for x := 1; x < 4; x++ {
		g.Set(x, 1, cats.Tiles.MustTile("A"))
	}
	// x=1 has an Empty west neighbor; x=0 and x=4 stay Empty.
	n := ApplyBorders(rules, &cats.Tiles, g, g, grid.Point{X: 5, Y: 3}, rng.New(1))
	got := []string{}
	for x := 0; x < 5; x++ {
		got = append(got, g.Get(x, 1).Name)
	}
	want := []string{"Empty", "A", "B", "B", "Empty"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("row=%v want %v", got, want)
	}
	if n != 2 {
		t.Fatalf("rewrites=%d want 2", n)
	}
}

type boom struct{}

func (boom) Name() string          { return "Boom" }
func (boom) Place(s *objects.Site) { panic("kaboom") }

func TestBuildRecoversFromPlacementPanic(t *testing.T) {
	cats := mustCatalog(t, strings.Replace(sandGrassWater,
		`"objects": {"chunk": []}`,
		`"objects": {"chunk": [{"name": "Boom", "spawnOn": ["Sand"], "rarity": 1}]}`, 1))
	reg := objects.NewRegistry()
	reg.Register("Boom", func(catalogs.ObjectDef, *catalogs.TileCatalog) (objects.Placement, error) {
		return boom{}, nil
	})
	b, err := NewBuilder(1, WorldSize{Width: 8, Height: 8}, cats, reg, NewPerlin(1, DefaultNoiseParams()))
	if err != nil {
		t.Fatalf("builder: %v", err)
	}
	_, err = b.Build(0, 0)
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("expected recovered panic, got %v", err)
	}
}

func TestNewBuilderUnknownStrategy(t *testing.T) {
	cats := mustCatalog(t, strings.Replace(sandGrassWater,
		`"objects": {"chunk": []}`,
		`"objects": {"chunk": [{"name": "Castle", "spawnOn": ["Sand"], "rarity": 1}]}`, 1))
	_, err := NewBuilder(1, WorldSize{Width: 8, Height: 8}, cats, nil, NewPerlin(1, DefaultNoiseParams()))
	if err == nil || !strings.Contains(err.Error(), "Castle") {
		t.Fatalf("expected unknown strategy error, got %v", err)
	}
}

func TestNewBuilderBadPattern(t *testing.T) {
	// The catalog accepts any non-empty pattern string; compiling it is the
	// builder's job.
	cats := mustCatalog(t, strings.Replace(islands, `"N": "Empty|Flower"`, `"N": "Empty|"`, 1))
	_, err := NewBuilder(1, WorldSize{Width: 40, Height: 40}, cats, nil, NewPerlin(1, DefaultNoiseParams()))
	if err == nil || !strings.Contains(err.Error(), "conditions[0].N") {
		t.Fatalf("expected pattern error, got %v", err)
	}
}

func ExampleStage_String() {
	fmt.Println(StageNoiseGenerated, StageReady)
	// Output: NOISE_GENERATED READY
}
