package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"fastterrain.ai/internal/protocol"
)

func compile(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", name)
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

// roundTrip marshals v and decodes it into the generic form the validator
// expects.
func roundTrip(t *testing.T, v any) any {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func TestSchemas_ValidateSamples(t *testing.T) {
	validate := func(s *jsonschema.Schema, raw string) {
		t.Helper()
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			t.Fatalf("sample: %v", err)
		}
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	validate(compile(t, "hello.schema.json"), `{"type":"HELLO","protocol_version":"1.0","client_name":"bot1"}`)
	validate(compile(t, "hello.schema.json"), `{"type":"HELLO","protocol_version":"1.0","client_name":"bot1","encoding":"PAL_RLE_U16"}`)
	validate(compile(t, "position.schema.json"), `{"type":"POSITION","protocol_version":"1.0","x":12,"y":-3}`)
	validate(compile(t, "set_cell.schema.json"), `{"type":"SET_CELL","protocol_version":"1.0","req_id":"R1","x":1,"y":2,"tile":"Ladder"}`)
	validate(compile(t, "ack.schema.json"), `{"type":"ACK","protocol_version":"1.0","ack_for":"R1","accepted":false,"code":"E_UNKNOWN_TILE"}`)
	validate(compile(t, "chunk_cleared.schema.json"), `{"type":"CHUNK_CLEARED","protocol_version":"1.0","seq":9,"chunk":[1,2]}`)
}

func TestSchemas_GoMessagesConform(t *testing.T) {
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       "S1",
		WorldParams: protocol.WorldParams{
			WorldID: "overworld", Seed: 42, Width: 200, Height: 100,
			ChunkWidth: 16, ChunkHeight: 16, RadiusChunks: 2, HysteresisChunks: 1,
			Spawn: [2]int{100, 20}, PositionEveryMs: 250,
		},
		Palette: protocol.Palette{
			Digest: "abc",
			Tiles: []protocol.TileInfo{
				{ID: 0, Name: "Empty", Atlas: [2]int{-1, -1}},
				{ID: 1, Name: "Dirt", Atlas: [2]int{0, 1}},
			},
		},
	}
	if err := compile(t, "welcome.schema.json").Validate(roundTrip(t, welcome)); err != nil {
		t.Fatalf("welcome: %v", err)
	}

	ready := protocol.ChunkReadyMsg{
		Type:            protocol.TypeChunkReady,
		ProtocolVersion: protocol.Version,
		Seq:             1,
		Chunk:           [2]int{0, 1},
		Origin:          [2]int{0, 16},
		Width:           16,
		Height:          16,
		Digest:          "5f70bf18a086007016e948b04aed3b82103a36bea41755b6cddfaf10ace3c6ef",
		Cells:           []protocol.CellInfo{{X: 3, Y: 17, Tile: "Dirt", Atlas: [2]int{0, 1}}},
		Spawns:          []protocol.SpawnInfo{},
		Anchors:         []protocol.AnchorInfo{{Behavior: "climb", X: 3, Y: 17}},
	}
	s := compile(t, "chunk_ready.schema.json")
	if err := s.Validate(roundTrip(t, ready)); err != nil {
		t.Fatalf("chunk ready: %v", err)
	}

	ready.Encoding = protocol.EncodingTileRuns
	if err := s.Validate(roundTrip(t, ready)); err == nil {
		t.Fatalf("encoding without data accepted")
	}
	ready.Data = "AYAC"
	if err := s.Validate(roundTrip(t, ready)); err != nil {
		t.Fatalf("chunk ready with data: %v", err)
	}
	ready.Encoding, ready.Data = "", ""

	ready.Cells = append(ready.Cells, protocol.CellInfo{X: 4, Y: 17, Tile: "Empty"})
	if err := s.Validate(roundTrip(t, ready)); err == nil {
		t.Fatalf("Empty cell accepted")
	}
	ready.Cells = ready.Cells[:1]
	ready.Spawns = nil
	if err := s.Validate(roundTrip(t, ready)); err == nil {
		t.Fatalf("null spawns accepted")
	}

	ack := protocol.AckMsg{Type: protocol.TypeAck, ProtocolVersion: protocol.Version, AckFor: "R1", Accepted: true}
	if err := compile(t, "ack.schema.json").Validate(roundTrip(t, ack)); err != nil {
		t.Fatalf("ack: %v", err)
	}
}
