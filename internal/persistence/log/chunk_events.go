package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"fastterrain.ai/internal/sim/world/terrain/store"
)

const (
	KindLoaded   = "LOADED"
	KindUnloaded = "UNLOADED"
	KindFailed   = "FAILED"
	KindEdit     = "EDIT"
)

// ChunkEvent is one line of the chunk event log.
type ChunkEvent struct {
	UnixMS  int64   `json:"ts_ms"`
	WorldID string  `json:"world_id"`
	Kind    string  `json:"kind"`
	CX      int     `json:"cx"`
	CY      int     `json:"cy"`
	Digest  string  `json:"digest,omitempty"`
	Cells   int     `json:"cells,omitempty"`
	Spawns  int     `json:"spawns,omitempty"`
	BuildMS float64 `json:"build_ms,omitempty"`
	X       int     `json:"x,omitempty"`
	Y       int     `json:"y,omitempty"`
	Tile    string  `json:"tile,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// ChunkEventLogger writes chunk lifecycle events as compressed JSONL. It
// satisfies stream.EventSink. Write errors are counted, not returned, so a
// full disk never stalls streaming.
type ChunkEventLogger struct {
	seg     *segmentLog
	worldID string

	mu      sync.Mutex
	errs    int
	lastErr error
}

func NewChunkEventLogger(worldDir, worldID string) *ChunkEventLogger {
	return &ChunkEventLogger{
		seg:     newSegmentLog(worldDir),
		worldID: worldID,
	}
}

func (l *ChunkEventLogger) write(e ChunkEvent) {
	e.WorldID = l.worldID
	if err := l.seg.append(&e); err != nil {
		l.mu.Lock()
		l.errs++
		l.lastErr = err
		l.mu.Unlock()
	}
}

func (l *ChunkEventLogger) ChunkLoaded(v store.View, build time.Duration) {
	l.write(ChunkEvent{
		Kind:    KindLoaded,
		CX:      v.Key.CX,
		CY:      v.Key.CY,
		Digest:  v.Digest,
		Cells:   len(v.Cells),
		Spawns:  len(v.Spawns),
		BuildMS: float64(build.Microseconds()) / 1000.0,
	})
}

func (l *ChunkEventLogger) ChunkUnloaded(k store.ChunkKey) {
	l.write(ChunkEvent{Kind: KindUnloaded, CX: k.CX, CY: k.CY})
}

func (l *ChunkEventLogger) ChunkFailed(k store.ChunkKey, err error) {
	l.write(ChunkEvent{Kind: KindFailed, CX: k.CX, CY: k.CY, Error: err.Error()})
}

// CellEdited records a set-cell override.
func (l *ChunkEventLogger) CellEdited(k store.ChunkKey, x, y int, tile string) {
	l.write(ChunkEvent{Kind: KindEdit, CX: k.CX, CY: k.CY, X: x, Y: y, Tile: tile})
}

// Errors reports how many writes failed and the last failure.
func (l *ChunkEventLogger) Errors() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errs, l.lastErr
}

// SetClock replaces the clock that stamps events and picks their segment.
func (l *ChunkEventLogger) SetClock(now func() time.Time) { l.seg.setClock(now) }

func (l *ChunkEventLogger) Close() error { return l.seg.close() }

// ReadEvents decodes every event of one log file.
func ReadEvents(path string) ([]ChunkEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []ChunkEvent
	r := bufio.NewReader(dec)
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			var e ChunkEvent
			if jerr := json.Unmarshal(line, &e); jerr != nil {
				return out, fmt.Errorf("%s: %w", filepath.Base(path), jerr)
			}
			out = append(out, e)
		}
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
	}
}

// EventFiles lists the chunk event logs under worldDir, oldest first.
func EventFiles(worldDir string) ([]string, error) {
	files, err := filepath.Glob(segmentGlob(worldDir))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
