package catalogs

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"fastterrain.ai/internal/sim/world/terrain/grid"
)

// FileName is the config document inside a config directory.
const FileName = "terrain.json"

var ErrUnknownTile = errors.New("unknown tile")

//go:embed terrain.schema.json
var terrainSchemaJSON []byte

type Catalogs struct {
	Tiles      TileCatalog
	NoiseTiles []string
	Size       TerrainSize
	Chunk      ChunkDims
	Rules      []RuleDef
	Objects    []ObjectDef
	Behaviors  []BehaviorDef
	SpawnTiles []string

	// Digest is the sha256 of the raw document.
	Digest string
}

type TileCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]TileDef
	PaletteDigest string
	DefsDigest    string
}

type TileDef struct {
	Name string `json:"name"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
	Alt  int    `json:"alt,omitempty"`
}

type Range struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

type TerrainSize struct {
	Width  Range `json:"width"`
	Height Range `json:"height"`
}

type ChunkDims struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type RuleDef struct {
	Tile       string         `json:"tile"`
	Conditions []ConditionDef `json:"conditions"`
}

type ConditionDef struct {
	Result string `json:"result"`
	N      string `json:"N"`
	E      string `json:"E"`
	S      string `json:"S"`
	W      string `json:"W"`
}

// Results splits a comma separated result into its candidate tile names.
func (c ConditionDef) Results() []string {
	parts := strings.Split(c.Result, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

type ObjectDef struct {
	Name    string          `json:"name"`
	SpawnOn []string        `json:"spawnOn"`
	Rarity  float64         `json:"rarity"`
	Options json.RawMessage `json:"options,omitempty"`
}

type BehaviorDef struct {
	Tile     string `json:"tile"`
	Behavior string `json:"behavior"`
}

type document struct {
	Tiles         []TileDef     `json:"tiles"`
	NoiseTiles    []string      `json:"noiseTiles"`
	TerrainSize   TerrainSize   `json:"terrainSize"`
	Chunk         ChunkDims     `json:"chunk"`
	AutotileRules []RuleDef     `json:"autotileRules"`
	Objects       objectsDoc    `json:"objects"`
	Behaviors     []BehaviorDef `json:"behaviors"`
	SpawnTiles    []string      `json:"spawnTiles"`
}

type objectsDoc struct {
	Chunk []ObjectDef `json:"chunk"`
}

func Load(configDir string) (*Catalogs, error) {
	return LoadFile(filepath.Join(configDir, FileName))
}

func LoadFile(path string) (*Catalogs, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return c, nil
}

// Parse validates raw against the document schema and then checks every
// cross reference (tile names in rules, objects, behaviors).
func Parse(raw []byte) (*Catalogs, error) {
	s, err := schema()
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	if err := s.Validate(v); err != nil {
		return nil, err
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	c := &Catalogs{
		NoiseTiles: doc.NoiseTiles,
		Size:       doc.TerrainSize,
		Chunk:      doc.Chunk,
		Rules:      doc.AutotileRules,
		Objects:    doc.Objects.Chunk,
		Behaviors:  doc.Behaviors,
		SpawnTiles: doc.SpawnTiles,
		Digest:     sha256Hex(raw),
	}
	if err := buildTiles(doc.Tiles, &c.Tiles); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

var (
	schemaOnce sync.Once
	schemaVal  *jsonschema.Schema
	schemaErr  error
)

func schema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		comp := jsonschema.NewCompiler()
		if err := comp.AddResource("terrain.schema.json", bytes.NewReader(terrainSchemaJSON)); err != nil {
			schemaErr = fmt.Errorf("terrain schema: %w", err)
			return
		}
		schemaVal, schemaErr = comp.Compile("terrain.schema.json")
	})
	return schemaVal, schemaErr
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func buildTiles(defs []TileDef, out *TileCatalog) error {
	out.Defs = map[string]TileDef{}
	for _, d := range defs {
		if d.Name == "" {
			return fmt.Errorf("tiles: empty name")
		}
		if d.Name == grid.EmptyName {
			return fmt.Errorf("tiles: %q is reserved", grid.EmptyName)
		}
		if _, dup := out.Defs[d.Name]; dup {
			return fmt.Errorf("tiles: duplicate %q", d.Name)
		}
		out.Defs[d.Name] = d
	}
	defsJSON, _ := json.Marshal(defs)
	out.DefsDigest = sha256Hex(defsJSON)

	names := make([]string, 0, len(out.Defs))
	for n := range out.Defs {
		names = append(names, n)
	}
	sort.Strings(names)

	// Empty is always palette id 0.
	names = append([]string{grid.EmptyName}, names...)
	out.Palette = names
	out.Index = make(map[string]uint16, len(names))
	for i, n := range names {
		out.Index[n] = uint16(i)
	}
	palJSON, _ := json.Marshal(names)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

// Has reports whether name is a declared tile or Empty.
func (c *TileCatalog) Has(name string) bool {
	if name == grid.EmptyName {
		return true
	}
	_, ok := c.Defs[name]
	return ok
}

func (c *TileCatalog) Tile(name string) (grid.Tile, bool) {
	if name == grid.EmptyName {
		return grid.Empty(), true
	}
	d, ok := c.Defs[name]
	if !ok {
		return grid.Tile{}, false
	}
	return grid.Tile{Name: d.Name, Atlas: grid.Point{X: d.X, Y: d.Y}, Alt: d.Alt}, true
}

// MustTile resolves a tile that validation already proved to exist.
func (c *TileCatalog) MustTile(name string) grid.Tile {
	t, ok := c.Tile(name)
	if !ok {
		panic(fmt.Sprintf("catalogs: %v %q", ErrUnknownTile, name))
	}
	return t
}

func (c *TileCatalog) ByID(id uint16) (grid.Tile, bool) {
	if int(id) >= len(c.Palette) {
		return grid.Tile{}, false
	}
	return c.Tile(c.Palette[id])
}

// BehaviorFor maps tile names to behavior names. The first binding wins.
func (c *Catalogs) BehaviorFor() map[string]string {
	out := make(map[string]string, len(c.Behaviors))
	for _, b := range c.Behaviors {
		if _, ok := out[b.Tile]; !ok {
			out[b.Tile] = b.Behavior
		}
	}
	return out
}

func (c *Catalogs) validate() error {
	known := func(where, name string) error {
		if !c.Tiles.Has(name) {
			return fmt.Errorf("%s: %w %q", where, ErrUnknownTile, name)
		}
		return nil
	}

	for _, n := range c.NoiseTiles {
		if err := known("noiseTiles", n); err != nil {
			return err
		}
	}
	for _, r := range []struct {
		name string
		v    Range
	}{{"terrainSize.width", c.Size.Width}, {"terrainSize.height", c.Size.Height}} {
		if r.v.Min > r.v.Max {
			return fmt.Errorf("%s: min %d > max %d", r.name, r.v.Min, r.v.Max)
		}
	}
	if c.Chunk.Width <= 0 || c.Chunk.Height <= 0 {
		return fmt.Errorf("chunk: size must be positive, got %dx%d", c.Chunk.Width, c.Chunk.Height)
	}
	for i, r := range c.Rules {
		where := fmt.Sprintf("autotileRules[%d]", i)
		if err := known(where+".tile", r.Tile); err != nil {
			return err
		}
		for j, cond := range r.Conditions {
			for _, res := range cond.Results() {
				if res == "" {
					return fmt.Errorf("%s.conditions[%d].result: empty entry in %q", where, j, cond.Result)
				}
				if err := known(fmt.Sprintf("%s.conditions[%d].result", where, j), res); err != nil {
					return err
				}
			}
		}
	}
	for i, o := range c.Objects {
		for _, n := range o.SpawnOn {
			if err := known(fmt.Sprintf("objects.chunk[%d].spawnOn", i), n); err != nil {
				return err
			}
		}
	}
	for i, b := range c.Behaviors {
		if err := known(fmt.Sprintf("behaviors[%d].tile", i), b.Tile); err != nil {
			return err
		}
	}
	for _, n := range c.SpawnTiles {
		if err := known("spawnTiles", n); err != nil {
			return err
		}
	}
	return nil
}
