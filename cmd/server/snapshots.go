package main

import (
	"context"
	"log"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"fastterrain.ai/internal/persistence/snapshot"
	"fastterrain.ai/internal/sim/world"
)

// snapshotter writes numbered snapshots of one world and keeps the newest
// keep files.
type snapshotter struct {
	w      *world.World
	dir    string
	keep   int
	idx    runtimeIndex
	logger *log.Logger

	mu      sync.Mutex
	seq     uint64
	written atomic.Uint64
}

func newSnapshotter(w *world.World, worldDir string, keep int, lastSeq uint64, idx runtimeIndex, logger *log.Logger) *snapshotter {
	return &snapshotter{
		w:      w,
		dir:    filepath.Join(worldDir, "snapshots"),
		keep:   keep,
		idx:    idx,
		logger: logger,
		seq:    lastSeq,
	}
}

// Save writes the next snapshot and returns its path and sequence number.
func (s *snapshotter) Save() (string, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.seq + 1
	snap := s.w.ExportSnapshot(seq)
	path := filepath.Join(s.dir, snapshot.FileName(seq))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return "", 0, err
	}
	s.seq = seq
	s.written.Add(1)
	if s.idx != nil {
		s.idx.RecordSnapshot(path, snap)
	}
	if removed, err := snapshot.Prune(s.dir, s.keep); err != nil {
		s.logger.Printf("snapshot prune: %v", err)
	} else if removed > 0 {
		s.logger.Printf("snapshot prune: removed %d", removed)
	}
	return path, seq, nil
}

func (s *snapshotter) Written() uint64 { return s.written.Load() }

// Run saves every interval until ctx ends, then saves once more.
func (s *snapshotter) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		<-ctx.Done()
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			if path, _, err := s.Save(); err != nil {
				s.logger.Printf("final snapshot: %v", err)
			} else {
				s.logger.Printf("final snapshot %s", filepath.Base(path))
			}
			return
		case <-t.C:
			if _, _, err := s.Save(); err != nil {
				s.logger.Printf("snapshot write: %v", err)
			}
		}
	}
}
