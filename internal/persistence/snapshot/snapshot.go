package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version     int    `json:"version"`
	WorldID     string `json:"world_id"`
	RunID       string `json:"run_id"`
	CreatedUnix int64  `json:"created_unix"`
	Seq         uint64 `json:"seq"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed        int64 `json:"seed"`
	WorldWidth  int   `json:"world_width"`
	WorldHeight int   `json:"world_height"`
	ChunkWidth  int   `json:"chunk_width"`
	ChunkHeight int   `json:"chunk_height"`

	// Palette maps the uint16 tile ids in Chunks back to tile names.
	Palette       []string `json:"palette"`
	PaletteDigest string   `json:"palette_digest"`
	ConfigDigest  string   `json:"config_digest"`

	SpawnX  int `json:"spawn_x"`
	SpawnY  int `json:"spawn_y"`
	PlayerX int `json:"player_x"`
	PlayerY int `json:"player_y"`

	Chunks []ChunkV1 `json:"chunks"`
}

// ChunkV1 is one chunk slot. Tiles is empty for a chunk that is not loaded
// but still carries overrides.
type ChunkV1 struct {
	CX        int          `json:"cx"`
	CY        int          `json:"cy"`
	Tiles     []uint16     `json:"tiles,omitempty"`
	Digest    string       `json:"digest,omitempty"`
	Spawns    []SpawnV1    `json:"spawns,omitempty"`
	Overrides []OverrideV1 `json:"overrides,omitempty"`
}

type SpawnV1 struct {
	Entity string `json:"entity"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
}

// OverrideV1 is a set-cell edit in chunk-local coordinates.
type OverrideV1 struct {
	X    int    `json:"x"`
	Y    int    `json:"y"`
	Tile uint16 `json:"tile"`
}

// WriteSnapshot writes a JSON header line followed by the gob body, all
// zstd-compressed. The file is written next to path and renamed into place.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := writeFile(tmp, snap); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeFile(path string, snap SnapshotV1) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The header line duplicates what the gob body carries.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the JSON header line, for listing snapshots
// without decoding their bodies.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

// FileName is the snapshot file name for a sequence number.
func FileName(seq uint64) string {
	return fmt.Sprintf("%012d.snap.zst", seq)
}
