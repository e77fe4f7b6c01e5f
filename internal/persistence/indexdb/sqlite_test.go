package indexdb

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"fastterrain.ai/internal/persistence/snapshot"
	"fastterrain.ai/internal/sim/catalogs"
	"fastterrain.ai/internal/sim/tuning"
	"fastterrain.ai/internal/sim/world/terrain/store"
)

func openTest(t *testing.T) (*SQLiteIndex, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index", "world.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	idx.SetClock(func() time.Time { return time.Unix(1700000000, 0) })
	return idx, path
}

func reopen(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenSQLiteEmptyPath(t *testing.T) {
	if _, err := OpenSQLite(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestSQLiteIndex_ChunkEvents(t *testing.T) {
	idx, path := openTest(t)
	idx.RecordRun("run-1", "world_1", 42, 200, 100)
	idx.ChunkLoaded(store.View{Key: store.ChunkKey{CX: 1, CY: 2}, Digest: "abc", W: 16, H: 16}, 7*time.Millisecond)
	idx.ChunkUnloaded(store.ChunkKey{CX: 1, CY: 2})
	idx.ChunkFailed(store.ChunkKey{CX: 3, CY: 0}, errors.New("boom"))
	idx.CellEdited(store.ChunkKey{CX: 1, CY: 2}, 20, 35, "Ladder")
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	// Writes after close are ignored.
	idx.CellEdited(store.ChunkKey{}, 0, 0, "Dirt")

	db := reopen(t, path)

	var world string
	var seed int64
	if err := db.QueryRow(`SELECT world_id,seed FROM runs WHERE run_id='run-1'`).Scan(&world, &seed); err != nil {
		t.Fatalf("runs: %v", err)
	}
	if world != "world_1" || seed != 42 {
		t.Fatalf("run row: world=%q seed=%d", world, seed)
	}

	rows, err := db.Query(`SELECT kind,cx,cy,IFNULL(digest,''),build_ms,IFNULL(error,''),run_id FROM chunk_events ORDER BY id`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	type ev struct {
		kind, digest, errMsg, run string
		cx, cy                    int
		build                     int64
	}
	var got []ev
	for rows.Next() {
		var e ev
		if err := rows.Scan(&e.kind, &e.cx, &e.cy, &e.digest, &e.build, &e.errMsg, &e.run); err != nil {
			t.Fatalf("scan: %v", err)
		}
		got = append(got, e)
	}
	if len(got) != 3 {
		t.Fatalf("chunk events: got %d want 3", len(got))
	}
	if got[0].kind != "LOADED" || got[0].digest != "abc" || got[0].build != 7 || got[0].run != "run-1" {
		t.Fatalf("loaded row: %+v", got[0])
	}
	if got[1].kind != "UNLOADED" || got[1].cx != 1 || got[1].cy != 2 {
		t.Fatalf("unloaded row: %+v", got[1])
	}
	if got[2].kind != "FAILED" || got[2].errMsg != "boom" {
		t.Fatalf("failed row: %+v", got[2])
	}

	var edits int
	if err := db.QueryRow(`SELECT COUNT(*) FROM edits WHERE cx=1 AND cy=2 AND x=20 AND y=35 AND tile='Ladder'`).Scan(&edits); err != nil {
		t.Fatalf("edits: %v", err)
	}
	if edits != 1 {
		t.Fatalf("edits: got %d want 1", edits)
	}
}

func TestSQLiteIndex_RecordSnapshot(t *testing.T) {
	idx, path := openTest(t)
	snap := snapshot.SnapshotV1{
		Header:      snapshot.Header{Version: snapshot.Version, WorldID: "w", RunID: "r", CreatedUnix: 99, Seq: 3},
		Seed:        7,
		WorldWidth:  64,
		WorldHeight: 32,
		Chunks: []snapshot.ChunkV1{
			{CX: 0, CY: 0, Overrides: []snapshot.OverrideV1{{X: 1, Y: 1, Tile: 2}}},
			{CX: 1, CY: 0, Overrides: []snapshot.OverrideV1{{X: 1, Y: 1, Tile: 2}, {X: 2, Y: 2, Tile: 3}}},
		},
	}
	idx.RecordSnapshot("/abs/000000000003.snap.zst", snap)
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db := reopen(t, path)
	var (
		p                 string
		seed              int64
		chunks, overrides int
		width, height     int
	)
	row := db.QueryRow(`SELECT path,seed,chunks,overrides,width,height FROM snapshots WHERE seq=3`)
	if err := row.Scan(&p, &seed, &chunks, &overrides, &width, &height); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if p != "/abs/000000000003.snap.zst" || seed != 7 || chunks != 2 || overrides != 3 || width != 64 || height != 32 {
		t.Fatalf("row mismatch: path=%q seed=%d chunks=%d overrides=%d %dx%d", p, seed, chunks, overrides, width, height)
	}
}

func TestSQLiteIndex_UpsertCatalogs(t *testing.T) {
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	idx, path := openTest(t)
	if err := idx.UpsertCatalogs("../../../configs", cats, tuning.Defaults()); err != nil {
		t.Fatalf("UpsertCatalogs: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db := reopen(t, path)
	want := map[string]string{
		"terrain":       cats.Digest,
		"tiles_palette": cats.Tiles.PaletteDigest,
	}
	for name, digest := range want {
		var got string
		if err := db.QueryRow(`SELECT digest FROM catalogs WHERE name=?`, name).Scan(&got); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if got != digest {
			t.Fatalf("%s digest: got %s want %s", name, got, digest)
		}
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM catalogs WHERE name='tuning'`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("tuning row: n=%d err=%v", n, err)
	}
	var v string
	if err := db.QueryRow(`SELECT value FROM meta WHERE key='schema_version'`).Scan(&v); err != nil || v != schemaVersion {
		t.Fatalf("schema_version: %q err=%v", v, err)
	}
}

func TestNilIndexIsNoop(t *testing.T) {
	var idx *SQLiteIndex
	idx.RecordRun("r", "w", 1, 1, 1)
	idx.ChunkUnloaded(store.ChunkKey{})
	idx.CellEdited(store.ChunkKey{}, 0, 0, "Dirt")
	if idx.Dropped() != 0 {
		t.Fatalf("nil index dropped rows")
	}
	if err := idx.UpsertCatalogs("", nil, tuning.Defaults()); err != nil {
		t.Fatalf("nil UpsertCatalogs: %v", err)
	}
}
