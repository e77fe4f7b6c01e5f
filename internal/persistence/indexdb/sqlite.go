package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"fastterrain.ai/internal/persistence/snapshot"
	"fastterrain.ai/internal/sim/catalogs"
	"fastterrain.ai/internal/sim/tuning"
	"fastterrain.ai/internal/sim/world/terrain/store"
)

const schemaVersion = "1"

// SQLiteIndex is a queryable read model of a world's history. The JSONL event
// logs remain the source of truth; rows are dropped when the writer falls
// behind.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64

	runID atomic.Value // string
	now   func() time.Time
}

type reqKind int

const (
	reqRun reqKind = iota + 1
	reqChunk
	reqEdit
	reqSnapshot
)

type req struct {
	kind reqKind

	run      runRow
	chunk    chunkRow
	edit     editRow
	snapshot snapshotRow
}

type runRow struct {
	RunID     string
	WorldID   string
	Seed      int64
	Width     int
	Height    int
	StartedAt string
}

type chunkRow struct {
	UnixMS  int64
	RunID   string
	Kind    string
	CX, CY  int
	Digest  string
	Cells   int
	Spawns  int
	BuildMS int64
	Error   string
}

type editRow struct {
	UnixMS int64
	RunID  string
	CX, CY int
	X, Y   int
	Tile   string
}

type snapshotRow struct {
	Seq       uint64
	Path      string
	WorldID   string
	RunID     string
	Seed      int64
	Width     int
	Height    int
	Chunks    int
	Overrides int
	CreatedAt int64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:  db,
		ch:  make(chan req, 65536),
		now: time.Now,
	}
	s.runID.Store("")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-only workload of a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			world_id TEXT NOT NULL,
			seed INTEGER NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			started_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chunk_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			unix_ms INTEGER NOT NULL,
			run_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			cx INTEGER NOT NULL,
			cy INTEGER NOT NULL,
			digest TEXT,
			cells INTEGER NOT NULL,
			spawns INTEGER NOT NULL,
			build_ms INTEGER NOT NULL,
			error TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chunk_events_chunk ON chunk_events(cx, cy, unix_ms);`,
		`CREATE INDEX IF NOT EXISTS idx_chunk_events_run ON chunk_events(run_id, kind);`,
		`CREATE TABLE IF NOT EXISTS edits (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			unix_ms INTEGER NOT NULL,
			run_id TEXT NOT NULL,
			cx INTEGER NOT NULL,
			cy INTEGER NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			tile TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_edits_pos ON edits(x, y, unix_ms);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			seq INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			world_id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			seed INTEGER NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			chunks INTEGER NOT NULL,
			overrides INTEGER NOT NULL,
			created_unix INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// SetClock replaces the clock used to stamp rows.
func (s *SQLiteIndex) SetClock(now func() time.Time) {
	if s != nil && now != nil {
		s.now = now
	}
}

// Dropped is the number of rows discarded because the writer was behind.
func (s *SQLiteIndex) Dropped() uint64 {
	if s == nil {
		return 0
	}
	return s.dropped.Load()
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) enqueue(r req) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		s.dropped.Add(1)
	}
}

func (s *SQLiteIndex) currentRun() string {
	id, _ := s.runID.Load().(string)
	return id
}

// RecordRun registers a server run. Later chunk and edit rows carry its id.
func (s *SQLiteIndex) RecordRun(runID, worldID string, seed int64, width, height int) {
	if s == nil {
		return
	}
	s.runID.Store(runID)
	s.enqueue(req{kind: reqRun, run: runRow{
		RunID:     runID,
		WorldID:   worldID,
		Seed:      seed,
		Width:     width,
		Height:    height,
		StartedAt: s.now().UTC().Format(time.RFC3339Nano),
	}})
}

func (s *SQLiteIndex) ChunkLoaded(v store.View, build time.Duration) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqChunk, chunk: chunkRow{
		UnixMS:  s.now().UnixMilli(),
		RunID:   s.currentRun(),
		Kind:    "LOADED",
		CX:      v.Key.CX,
		CY:      v.Key.CY,
		Digest:  v.Digest,
		Cells:   len(v.Cells),
		Spawns:  len(v.Spawns),
		BuildMS: build.Milliseconds(),
	}})
}

func (s *SQLiteIndex) ChunkUnloaded(k store.ChunkKey) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqChunk, chunk: chunkRow{
		UnixMS: s.now().UnixMilli(),
		RunID:  s.currentRun(),
		Kind:   "UNLOADED",
		CX:     k.CX,
		CY:     k.CY,
	}})
}

func (s *SQLiteIndex) ChunkFailed(k store.ChunkKey, err error) {
	if s == nil {
		return
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.enqueue(req{kind: reqChunk, chunk: chunkRow{
		UnixMS: s.now().UnixMilli(),
		RunID:  s.currentRun(),
		Kind:   "FAILED",
		CX:     k.CX,
		CY:     k.CY,
		Error:  msg,
	}})
}

// CellEdited records an accepted set-cell request.
func (s *SQLiteIndex) CellEdited(k store.ChunkKey, x, y int, tile string) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqEdit, edit: editRow{
		UnixMS: s.now().UnixMilli(),
		RunID:  s.currentRun(),
		CX:     k.CX,
		CY:     k.CY,
		X:      x,
		Y:      y,
		Tile:   tile,
	}})
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil {
		return
	}
	overrides := 0
	for _, c := range snap.Chunks {
		overrides += len(c.Overrides)
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: snapshotRow{
		Seq:       snap.Header.Seq,
		Path:      path,
		WorldID:   snap.Header.WorldID,
		RunID:     snap.Header.RunID,
		Seed:      snap.Seed,
		Width:     snap.WorldWidth,
		Height:    snap.WorldHeight,
		Chunks:    len(snap.Chunks),
		Overrides: overrides,
		CreatedAt: snap.Header.CreatedUnix,
	}})
}

// UpsertCatalogs stores the raw terrain document, the palette and the tuning
// actually applied. It writes synchronously.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}

	now := s.now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if configDir != "" {
		if b, err := os.ReadFile(filepath.Join(configDir, catalogs.FileName)); err == nil {
			rows = append(rows, kv{name: "terrain", digest: cats.Digest, json: b})
		}
	}
	if b, _ := json.Marshal(cats.Tiles.Palette); len(b) > 0 {
		rows = append(rows, kv{name: "tiles_palette", digest: cats.Tiles.PaletteDigest, json: b})
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version',?)`, schemaVersion); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertRun, _ := s.db.Prepare(`INSERT OR REPLACE INTO runs(run_id,world_id,seed,width,height,started_at) VALUES(?,?,?,?,?,?)`)
	insertChunk, _ := s.db.Prepare(`INSERT INTO chunk_events(unix_ms,run_id,kind,cx,cy,digest,cells,spawns,build_ms,error) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertEdit, _ := s.db.Prepare(`INSERT INTO edits(unix_ms,run_id,cx,cy,x,y,tile) VALUES(?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(seq,path,world_id,run_id,seed,width,height,chunks,overrides,created_unix) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertRun, insertChunk, insertEdit, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			s.dropped.Add(1)
			continue
		}
		switch r.kind {
		case reqRun:
			ru := r.run
			exec(insertRun, ru.RunID, ru.WorldID, ru.Seed, ru.Width, ru.Height, ru.StartedAt)
		case reqChunk:
			c := r.chunk
			exec(insertChunk, c.UnixMS, c.RunID, c.Kind, c.CX, c.CY, nullable(c.Digest), c.Cells, c.Spawns, c.BuildMS, nullable(c.Error))
		case reqEdit:
			e := r.edit
			exec(insertEdit, e.UnixMS, e.RunID, e.CX, e.CY, e.X, e.Y, e.Tile)
		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Seq), sn.Path, sn.WorldID, sn.RunID, sn.Seed, sn.Width, sn.Height, sn.Chunks, sn.Overrides, sn.CreatedAt)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
