package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	persistlog "fastterrain.ai/internal/persistence/log"
	"fastterrain.ai/internal/persistence/snapshot"
	"fastterrain.ai/internal/sim/catalogs"
	"fastterrain.ai/internal/sim/tuning"
	"fastterrain.ai/internal/sim/world"
	"fastterrain.ai/internal/transport/observer"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		seed       = flag.Int64("seed", 1337, "world seed (used only when starting a fresh world)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index (chunk events, edits, snapshot metadata)")

		snapPath    = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest  = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
		allowRemote = flag.Bool("allow_remote", false, "accept presentation sessions from non-loopback addresses")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	// Optional read-model index; the JSONL logs stay the source of truth.
	idx, err := openRuntimeIndex(worldDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = snapshot.Latest(filepath.Join(worldDir, "snapshots"))
	}

	streamLogger := log.New(os.Stdout, "[stream] ", log.LstdFlags|log.Lmicroseconds)
	cfg := world.ConfigFromTuning(*worldID, *seed, tune)

	var (
		w       *world.World
		lastSeq uint64
	)
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != *worldID {
			logger.Fatalf("snapshot world id mismatch: flag=%s snap=%s", *worldID, snap.Header.WorldID)
		}
		w, err = world.NewFromSnapshot(cfg, cats, snap, streamLogger)
		if err != nil {
			logger.Fatalf("world: %v", err)
		}
		lastSeq = snap.Header.Seq
		logger.Printf("resumed from snapshot=%s seq=%d seed=%d", filepath.Base(snapshotToLoad), lastSeq, w.Seed())
	} else {
		w, err = world.New(cfg, cats, streamLogger)
		if err != nil {
			logger.Fatalf("world: %v", err)
		}
		if last := snapshot.Latest(filepath.Join(worldDir, "snapshots")); last != "" {
			if h, err := snapshot.ReadHeader(last); err == nil {
				lastSeq = h.Seq
			}
		}
	}
	size := w.Size()
	spawn := w.SpawnPoint()
	logger.Printf("world=%s run=%s seed=%d size=%dx%d spawn=(%d,%d)", w.ID(), w.RunID(), w.Seed(), size.Width, size.Height, spawn.X, spawn.Y)

	eventLog := persistlog.NewChunkEventLogger(worldDir, *worldID)
	defer eventLog.Close()
	w.Streamer().AddSink(eventLog)
	if idx != nil {
		idx.RecordRun(w.RunID(), w.ID(), w.Seed(), size.Width, size.Height)
		w.Streamer().AddSink(idx)
	}

	obsSrv := observer.NewServer(w, logger)
	obsSrv.AllowRemote = *allowRemote
	if tune.PresentationHz > 0 {
		obsSrv.FlushEvery = time.Second / time.Duration(tune.PresentationHz)
	}
	obsSrv.AddEditSink(eventLog)
	if idx != nil {
		obsSrv.AddEditSink(idx)
	}

	snaps := newSnapshotter(w, worldDir, tune.SnapshotKeep, lastSeq, idx, logger)

	ctx, cancel := signalContext()
	defer cancel()

	var bg sync.WaitGroup
	bg.Add(3)
	go func() {
		defer bg.Done()
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("world stopped: %v", err)
		}
	}()
	go func() {
		defer bg.Done()
		// Runs until the queue closes so the streamer never blocks.
		if err := obsSrv.Pump(context.Background()); err != nil {
			logger.Printf("pump stopped: %v", err)
		}
	}()
	go func() {
		defer bg.Done()
		snaps.Run(ctx, time.Duration(tune.SnapshotEverySeconds)*time.Second)
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m := metricsSnapshot{
			World:     w.Metrics(),
			Connected: obsSrv.Connected(),
			Forwarded: obsSrv.Forwarded(),
			Dropped:   obsSrv.Dropped(),
			Snapshots: snaps.Written(),
		}
		m.EventLogErrors, _ = eventLog.Errors()
		if idx != nil {
			m.IndexDropped = idx.Dropped()
		}
		writeMetrics(rw, m)
	})
	mux.HandleFunc("/bootstrap", obsSrv.BootstrapHandler())
	mux.HandleFunc("/v1/ws", obsSrv.WSHandler())

	// Local-only admin endpoints.
	mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(w.Metrics())
	})
	mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		path, seq, err := snaps.Save()
		rw.Header().Set("Content-Type", "application/json")
		if err != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
			return
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "seq": seq, "path": path})
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	bg.Wait()
	logger.Printf("stopped")
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
