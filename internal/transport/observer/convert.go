package observer

import (
	"fastterrain.ai/internal/protocol"
	"fastterrain.ai/internal/sim/encoding"
	"fastterrain.ai/internal/sim/world"
	"fastterrain.ai/internal/sim/world/stream"
	"fastterrain.ai/internal/sim/world/terrain/store"
)

// ChunkReady converts a loaded chunk view. Slices are never nil so the
// client always sees arrays.
func ChunkReady(seq uint64, v store.View) protocol.ChunkReadyMsg {
	m := protocol.ChunkReadyMsg{
		Type:            protocol.TypeChunkReady,
		ProtocolVersion: protocol.Version,
		Seq:             seq,
		Chunk:           [2]int{v.Key.CX, v.Key.CY},
		Origin:          [2]int{v.Origin.X, v.Origin.Y},
		Width:           v.W,
		Height:          v.H,
		Digest:          v.Digest,
		Cells:           make([]protocol.CellInfo, 0, len(v.Cells)),
		Spawns:          make([]protocol.SpawnInfo, 0, len(v.Spawns)),
		Anchors:         make([]protocol.AnchorInfo, 0, len(v.Anchors)),
	}
	for _, c := range v.Cells {
		m.Cells = append(m.Cells, protocol.CellInfo{
			X:     c.Pos.X,
			Y:     c.Pos.Y,
			Tile:  c.Name,
			Atlas: [2]int{c.Atlas.X, c.Atlas.Y},
			Alt:   c.Alt,
		})
	}
	for _, s := range v.Spawns {
		m.Spawns = append(m.Spawns, protocol.SpawnInfo{Entity: s.Entity, X: s.Pos.X, Y: s.Pos.Y})
	}
	for _, a := range v.Anchors {
		m.Anchors = append(m.Anchors, protocol.AnchorInfo{Behavior: a.Behavior, X: a.Pos.X, Y: a.Pos.Y})
	}
	return m
}

func ChunkCleared(seq uint64, k store.ChunkKey) protocol.ChunkClearedMsg {
	return protocol.ChunkClearedMsg{
		Type:            protocol.TypeChunkCleared,
		ProtocolVersion: protocol.Version,
		Seq:             seq,
		Chunk:           [2]int{k.CX, k.CY},
	}
}

// withTiles attaches the chunk's palette ids in the requested encoding.
func withTiles(m protocol.ChunkReadyMsg, v store.View, enc string) protocol.ChunkReadyMsg {
	if enc == protocol.EncodingTileRuns {
		m.Encoding = encoding.TileRuns
		m.Data = encoding.EncodeTileRuns(v.Tiles)
	}
	return m
}

// Encode turns a streamer message into its wire form for a session that
// asked for enc in HELLO.
func Encode(m stream.Message, enc string) any {
	if m.Ready != nil {
		return withTiles(ChunkReady(m.Seq, m.Ready.View), m.Ready.View, enc)
	}
	if m.Cleared != nil {
		return ChunkCleared(m.Seq, m.Cleared.Key)
	}
	return nil
}

// Welcome describes the world and its tile palette to a new session.
func Welcome(sessionID string, w *world.World) protocol.WelcomeMsg {
	cfg := w.Config()
	size := w.Size()
	spawn := w.SpawnPoint()
	st := w.Store()
	sc := w.Streamer().Config()
	tiles := w.Catalogs().Tiles

	pal := protocol.Palette{
		Digest: tiles.PaletteDigest,
		Tiles:  make([]protocol.TileInfo, 0, len(tiles.Palette)),
	}
	for id, name := range tiles.Palette {
		t, _ := tiles.ByID(uint16(id))
		pal.Tiles = append(pal.Tiles, protocol.TileInfo{
			ID:    uint16(id),
			Name:  name,
			Atlas: [2]int{t.Atlas.X, t.Atlas.Y},
			Alt:   t.Alt,
		})
	}

	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		WorldParams: protocol.WorldParams{
			WorldID:          cfg.ID,
			RunID:            w.RunID(),
			Seed:             w.Seed(),
			Width:            size.Width,
			Height:           size.Height,
			ChunkWidth:       st.ChunkW,
			ChunkHeight:      st.ChunkH,
			RadiusChunks:     sc.RadiusChunks,
			HysteresisChunks: sc.HysteresisChunks,
			Spawn:            [2]int{spawn.X, spawn.Y},
			PositionEveryMs:  int(cfg.PositionEvery.Milliseconds()),
		},
		Palette: pal,
	}
}
