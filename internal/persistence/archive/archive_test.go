package archive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"fastterrain.ai/internal/persistence/snapshot"
)

func TestArchiveSnapshot_CopiesWithMeta(t *testing.T) {
	worldDir := filepath.Join(t.TempDir(), "worlds", "w1")
	src := filepath.Join(worldDir, "snapshots", "000000000002.snap.zst")
	if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
		t.Fatalf("mkdir snapshots: %v", err)
	}
	want := []byte("dummy")
	if err := os.WriteFile(src, want, 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}

	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{Version: 1, WorldID: "w1", RunID: "r1", Seq: 2},
		Seed:   42,
		Chunks: []snapshot.ChunkV1{
			{CX: 0, CY: 0, Overrides: []snapshot.OverrideV1{{X: 1, Y: 1, Tile: 2}, {X: 2, Y: 1, Tile: 2}}},
			{CX: 1, CY: 0},
		},
	}
	dst, err := ArchiveSnapshot(worldDir, src, "revert", snap)
	if err != nil {
		t.Fatalf("ArchiveSnapshot: %v", err)
	}
	wantDst := filepath.Join(worldDir, "archives", "000000000002_revert", "000000000002.snap.zst")
	if dst != wantDst {
		t.Fatalf("dst=%q want %q", dst, wantDst)
	}
	got, err := os.ReadFile(dst)
	if err != nil || string(got) != string(want) {
		t.Fatalf("copy=%q err=%v", got, err)
	}

	b, err := os.ReadFile(filepath.Join(filepath.Dir(dst), "meta.json"))
	if err != nil {
		t.Fatalf("read meta: %v", err)
	}
	var meta Meta
	if err := json.Unmarshal(b, &meta); err != nil {
		t.Fatalf("meta json: %v", err)
	}
	if meta.Reason != "revert" || meta.Seq != 2 || meta.RunID != "r1" || meta.Chunks != 2 || meta.Overrides != 2 || meta.Seed != 42 {
		t.Fatalf("meta=%+v", meta)
	}
}

func TestArchiveSnapshot_RejectsBadReason(t *testing.T) {
	for _, reason := range []string{"", "  ", "a/b"} {
		if _, err := ArchiveSnapshot(t.TempDir(), "x", reason, snapshot.SnapshotV1{}); err == nil {
			t.Fatalf("reason %q accepted", reason)
		}
	}
}

func TestArchiveSnapshot_MissingSource(t *testing.T) {
	if _, err := ArchiveSnapshot(t.TempDir(), filepath.Join(t.TempDir(), "nope.snap.zst"), "revert", snapshot.SnapshotV1{}); err == nil {
		t.Fatal("expected error for missing source")
	}
}
