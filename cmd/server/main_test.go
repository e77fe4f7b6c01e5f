package main

import (
	"bytes"
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"

	"fastterrain.ai/internal/persistence/snapshot"
	"fastterrain.ai/internal/sim/catalogs"
	"fastterrain.ai/internal/sim/tuning"
	"fastterrain.ai/internal/sim/world"
)

func testWorld(t *testing.T) *world.World {
	t.Helper()
	cats, err := catalogs.Load(filepath.Join("..", "..", "configs"))
	if err != nil {
		t.Fatalf("load configs: %v", err)
	}
	cfg := world.ConfigFromTuning("srv", 9, tuning.Defaults())
	cfg.Stream.QueueSize = 512
	cfg.Stream.MaxLoadsPerStep = 64
	w, err := world.New(cfg, cats, nil)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	return w
}

func TestSnapshotterSavesAndPrunes(t *testing.T) {
	w := testWorld(t)
	dir := t.TempDir()
	s := newSnapshotter(w, dir, 2, 5, nil, log.New(io.Discard, "", 0))

	var last string
	for i := 0; i < 3; i++ {
		path, seq, err := s.Save()
		if err != nil {
			t.Fatalf("save: %v", err)
		}
		if seq != uint64(6+i) {
			t.Fatalf("seq=%d want %d", seq, 6+i)
		}
		last = path
	}
	ents, err := snapshot.List(filepath.Join(dir, "snapshots"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ents) != 2 || ents[0].Seq != 7 || ents[1].Seq != 8 {
		t.Fatalf("kept=%+v", ents)
	}
	if s.Written() != 3 {
		t.Fatalf("written=%d", s.Written())
	}
	h, err := snapshot.ReadHeader(last)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if h.Seq != 8 || h.WorldID != "srv" || h.RunID != w.RunID() {
		t.Fatalf("header=%+v", h)
	}
}

func TestWriteMetrics(t *testing.T) {
	w := testWorld(t)
	var buf bytes.Buffer
	writeMetrics(&buf, metricsSnapshot{World: w.Metrics(), Connected: true, Forwarded: 4, Snapshots: 2})
	out := buf.String()
	for _, want := range []string{
		`fastterrain_chunks{world="srv",state="loaded"} 0`,
		`fastterrain_session_connected{world="srv"} 1`,
		`fastterrain_messages_forwarded_total{world="srv"} 4`,
		`fastterrain_snapshots_total{world="srv"} 2`,
		"# TYPE fastterrain_chunk_loads_total counter",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestOpenRuntimeIndex(t *testing.T) {
	dir := t.TempDir()
	idx, err := openRuntimeIndex(dir, true)
	if err != nil || idx != nil {
		t.Fatalf("disabled: idx=%v err=%v", idx, err)
	}

	t.Setenv("FT_INDEX_BACKEND", "none")
	if idx, err := openRuntimeIndex(dir, false); err != nil || idx != nil {
		t.Fatalf("none: idx=%v err=%v", idx, err)
	}

	t.Setenv("FT_INDEX_BACKEND", "postgres")
	if _, err := openRuntimeIndex(dir, false); err == nil {
		t.Fatalf("expected unsupported backend error")
	}

	t.Setenv("FT_INDEX_BACKEND", "sqlite")
	idx, err = openRuntimeIndex(dir, false)
	if err != nil || idx == nil {
		t.Fatalf("sqlite: idx=%v err=%v", idx, err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	if !isLoopbackRemote("127.0.0.1:1234") || isLoopbackRemote("192.168.1.4:80") {
		t.Fatalf("loopback detection")
	}
}
