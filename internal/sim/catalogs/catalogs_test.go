package catalogs

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"fastterrain.ai/internal/sim/world/terrain/grid"
)

const minimal = `{
  "tiles": [{"name": "Grass", "x": 1, "y": 2}, {"name": "Sand", "x": 3, "y": 4, "alt": 1}],
  "noiseTiles": ["Empty", "Grass", "Sand"],
  "terrainSize": {"width": {"min": 10, "max": 20}, "height": {"min": 5, "max": 5}},
  "chunk": {"width": 8, "height": 8},
  "autotileRules": [{"tile": "Grass", "conditions": [{"result": "Sand, Grass", "N": "Any", "E": "Any", "S": "Any", "W": "Any"}]}],
  "objects": {"chunk": []},
  "behaviors": [{"tile": "Sand", "behavior": "sink"}, {"tile": "Sand", "behavior": "ignored"}]
}`

func TestParseMinimal(t *testing.T) {
	c, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := c.Tiles.Palette; len(got) != 3 || got[0] != grid.EmptyName || got[1] != "Grass" || got[2] != "Sand" {
		t.Fatalf("palette=%v", got)
	}
	if c.Tiles.Index[grid.EmptyName] != 0 {
		t.Fatalf("Empty must be id 0")
	}
	sand, ok := c.Tiles.Tile("Sand")
	if !ok || sand.Atlas != (grid.Point{X: 3, Y: 4}) || sand.Alt != 1 {
		t.Fatalf("sand=%+v ok=%v", sand, ok)
	}
	if tl, ok := c.Tiles.ByID(1); !ok || tl.Name != "Grass" {
		t.Fatalf("ByID(1)=%+v", tl)
	}
	if _, ok := c.Tiles.ByID(9); ok {
		t.Fatalf("ByID out of palette")
	}
	if got := c.Rules[0].Conditions[0].Results(); len(got) != 2 || got[1] != "Grass" {
		t.Fatalf("results=%q", got)
	}
	if b := c.BehaviorFor(); b["Sand"] != "sink" {
		t.Fatalf("behaviors=%v", b)
	}
	if c.Digest == "" || c.Tiles.PaletteDigest == "" || c.Tiles.DefsDigest == "" {
		t.Fatalf("digests missing")
	}
}

func TestParseRejects(t *testing.T) {
	cases := []struct {
		name, from, to string
		unknownTile    bool
	}{
		{"missing key", `"behaviors": [{"tile": "Sand", "behavior": "sink"}, {"tile": "Sand", "behavior": "ignored"}]`, `"x": 1`, false},
		{"unknown noise tile", `"noiseTiles": ["Empty", "Grass", "Sand"]`, `"noiseTiles": ["Lava"]`, true},
		{"unknown rule result", `"result": "Sand, Grass"`, `"result": "Sand, Lava"`, true},
		{"empty result entry", `"result": "Sand, Grass"`, `"result": "Sand,,Grass"`, false},
		{"unknown behavior tile", `{"tile": "Sand", "behavior": "sink"}`, `{"tile": "Mud", "behavior": "sink"}`, true},
		{"min above max", `"min": 10, "max": 20`, `"min": 30, "max": 20`, false},
		{"zero chunk", `"chunk": {"width": 8, "height": 8}`, `"chunk": {"width": 0, "height": 8}`, false},
		{"reserved Empty", `{"name": "Grass", "x": 1, "y": 2}`, `{"name": "Empty", "x": 1, "y": 2}`, false},
		{"duplicate tile", `{"name": "Sand", "x": 3, "y": 4, "alt": 1}`, `{"name": "Grass", "x": 3, "y": 4}`, false},
	}
	for _, tc := range cases {
		doc := strings.Replace(minimal, tc.from, tc.to, 1)
		if doc == minimal {
			t.Fatalf("%s: replacement did not apply", tc.name)
		}
		_, err := Parse([]byte(doc))
		if err == nil {
			t.Errorf("%s: expected error", tc.name)
			continue
		}
		if tc.unknownTile && !errors.Is(err, ErrUnknownTile) {
			t.Errorf("%s: err=%v, want ErrUnknownTile", tc.name, err)
		}
	}
}

func TestLoadShippedConfig(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "..", "configs"))
	if err != nil {
		t.Fatalf("load configs: %v", err)
	}
	if len(c.Objects) == 0 || len(c.Rules) == 0 || len(c.SpawnTiles) == 0 {
		t.Fatalf("shipped config looks empty: %+v", c)
	}
}
