package world

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"fastterrain.ai/internal/persistence/snapshot"
	"fastterrain.ai/internal/sim/catalogs"
	"fastterrain.ai/internal/sim/world/logic/mathx"
	"fastterrain.ai/internal/sim/world/logic/rng"
	"fastterrain.ai/internal/sim/world/stream"
	"fastterrain.ai/internal/sim/world/terrain/gen"
	"fastterrain.ai/internal/sim/world/terrain/grid"
	"fastterrain.ai/internal/sim/world/terrain/store"
)

// World ties the terrain builder, the chunk store and the streamer together
// for one seeded world.
type World struct {
	cfg    WorldConfig
	cats   *catalogs.Catalogs
	runID  string
	size   gen.WorldSize
	spawn  grid.Point
	logger *log.Logger

	builder  *gen.Builder
	store    *store.ChunkStore
	feed     *stream.Feed
	streamer *stream.Streamer
}

// Metrics is a read-only view of the world, safe to read from any goroutine.
type Metrics struct {
	WorldID string         `json:"world_id"`
	RunID   string         `json:"run_id"`
	Seed    int64          `json:"seed"`
	Width   int            `json:"width"`
	Height  int            `json:"height"`
	SpawnX  int            `json:"spawn_x"`
	SpawnY  int            `json:"spawn_y"`
	PlayerX int            `json:"player_x"`
	PlayerY int            `json:"player_y"`
	Stream  stream.Metrics `json:"stream"`
}

func New(cfg WorldConfig, cats *catalogs.Catalogs, logger *log.Logger) (*World, error) {
	if cats == nil {
		return nil, fmt.Errorf("world: nil catalogs")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	size := cfg.Size
	if size.Width <= 0 || size.Height <= 0 {
		size = DrawSize(cfg.Seed, cats.Size)
	}
	b, err := gen.NewBuilder(cfg.Seed, size, cats, nil, gen.NewPerlin(cfg.Seed, cfg.Noise))
	if err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}
	st := store.NewChunkStore(&cats.Tiles, cats.BehaviorFor(), size, cats.Chunk.Width, cats.Chunk.Height)
	spawn := FindSpawnPoint(b, cats.SpawnTiles)
	feed := stream.NewFeed(cfg.PositionEvery, spawn)

	w := &World{
		cfg:     cfg,
		cats:    cats,
		runID:   uuid.NewString(),
		size:    size,
		spawn:   spawn,
		logger:  logger,
		builder: b,
		store:   st,
		feed:    feed,
	}
	w.streamer = stream.New(cfg.Stream, st, b, feed, logger)
	return w, nil
}

// DrawSize picks the world size from the configured ranges with a stream
// derived from the seed, independent of every chunk stream.
func DrawSize(seed int64, r catalogs.TerrainSize) gen.WorldSize {
	rnd := rng.New(int64(mathx.Hash1(seed, 0x51)))
	return gen.WorldSize{
		Width:  rnd.Range(r.Width.Min, r.Width.Max),
		Height: rnd.Range(r.Height.Min, r.Height.Max),
	}
}

func (w *World) ID() string                    { return w.cfg.ID }
func (w *World) RunID() string                 { return w.runID }
func (w *World) Seed() int64                   { return w.cfg.Seed }
func (w *World) Size() gen.WorldSize           { return w.size }
func (w *World) SpawnPoint() grid.Point        { return w.spawn }
func (w *World) Catalogs() *catalogs.Catalogs  { return w.cats }
func (w *World) Builder() *gen.Builder         { return w.builder }
func (w *World) Store() *store.ChunkStore      { return w.store }
func (w *World) Streamer() *stream.Streamer    { return w.streamer }
func (w *World) PlayerPosition() grid.Point    { return w.feed.Latest() }
func (w *World) Config() WorldConfig           { return w.cfg }
func (w *World) Run(ctx context.Context) error { return w.streamer.Run(ctx) }

// Step runs one streaming pass without the ticker; hosts that drive their
// own loop call it directly. Step is not safe to call while Run is active:
// both drive the same streamer state without a lock.
func (w *World) Step(ctx context.Context) error { return w.streamer.Step(ctx) }

// PublishPosition feeds the player's grid position, clamped into the world.
func (w *World) PublishPosition(p grid.Point) bool {
	p.X = mathx.ClampInt(p.X, 0, w.size.Width-1)
	p.Y = mathx.ClampInt(p.Y, 0, w.size.Height-1)
	return w.feed.Publish(p)
}

func (w *World) SetCell(pos grid.Point, tile string) error {
	return w.streamer.SetCell(pos, tile)
}

func (w *World) Drain(max int) []stream.Message { return w.streamer.Drain(max) }

func (w *World) Next(ctx context.Context) (stream.Message, error) { return w.streamer.Next(ctx) }

func (w *World) Metrics() Metrics {
	p := w.feed.Latest()
	return Metrics{
		WorldID: w.cfg.ID,
		RunID:   w.runID,
		Seed:    w.cfg.Seed,
		Width:   w.size.Width,
		Height:  w.size.Height,
		SpawnX:  w.spawn.X,
		SpawnY:  w.spawn.Y,
		PlayerX: p.X,
		PlayerY: p.Y,
		Stream:  w.streamer.Metrics(),
	}
}

// ExportSnapshot captures the loaded chunks and every override. It may be
// called from any goroutine.
func (w *World) ExportSnapshot(seq uint64) snapshot.SnapshotV1 {
	p := w.feed.Latest()
	return snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:     snapshot.Version,
			WorldID:     w.cfg.ID,
			RunID:       w.runID,
			CreatedUnix: time.Now().Unix(),
			Seq:         seq,
		},
		Seed:          w.cfg.Seed,
		WorldWidth:    w.size.Width,
		WorldHeight:   w.size.Height,
		ChunkWidth:    w.store.ChunkW,
		ChunkHeight:   w.store.ChunkH,
		Palette:       append([]string(nil), w.cats.Tiles.Palette...),
		PaletteDigest: w.cats.Tiles.PaletteDigest,
		ConfigDigest:  w.cats.Digest,
		SpawnX:        w.spawn.X,
		SpawnY:        w.spawn.Y,
		PlayerX:       p.X,
		PlayerY:       p.Y,
		Chunks:        w.store.ExportChunks(),
	}
}

// NewFromSnapshot recreates a world from a snapshot: same seed and size,
// overrides restored, player back where it was. Chunk tiles regenerate as
// they stream in.
func NewFromSnapshot(cfg WorldConfig, cats *catalogs.Catalogs, snap snapshot.SnapshotV1, logger *log.Logger) (*World, error) {
	if snap.PaletteDigest != cats.Tiles.PaletteDigest {
		return nil, fmt.Errorf("snapshot palette %s does not match config palette %s", snap.PaletteDigest, cats.Tiles.PaletteDigest)
	}
	if snap.ChunkWidth != cats.Chunk.Width || snap.ChunkHeight != cats.Chunk.Height {
		return nil, fmt.Errorf("snapshot chunk size %dx%d does not match config %dx%d",
			snap.ChunkWidth, snap.ChunkHeight, cats.Chunk.Width, cats.Chunk.Height)
	}
	cfg.Seed = snap.Seed
	cfg.Size = gen.WorldSize{Width: snap.WorldWidth, Height: snap.WorldHeight}
	if cfg.ID == "" {
		cfg.ID = snap.Header.WorldID
	}
	w, err := New(cfg, cats, logger)
	if err != nil {
		return nil, err
	}
	if err := w.store.ImportOverrides(snap.Chunks); err != nil {
		return nil, err
	}
	w.PublishPosition(grid.Point{X: snap.PlayerX, Y: snap.PlayerY})
	return w, nil
}
