package log

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	segmentDir    = "events"
	segmentPrefix = "chunks"
	segmentExt    = ".jsonl.zst"
	hourLayout    = "2006-01-02-15"
)

// segmentPath names the segment holding events stamped within hour (UTC).
func segmentPath(worldDir string, hour time.Time) string {
	return filepath.Join(worldDir, segmentDir, segmentPrefix+"-"+hour.UTC().Format(hourLayout)+segmentExt)
}

func segmentGlob(worldDir string) string {
	return filepath.Join(worldDir, segmentDir, segmentPrefix+"-*"+segmentExt)
}

// segmentLog appends chunk events to hourly zstd segments. The same clock
// stamps each event and picks its segment, so a segment's name bounds the
// timestamps inside it. Reopening an hour appends a new zstd frame.
type segmentLog struct {
	worldDir string
	now      func() time.Time

	mu   sync.Mutex
	hour string
	f    *os.File
	zw   *zstd.Encoder
	enc  *json.Encoder
}

func newSegmentLog(worldDir string) *segmentLog {
	return &segmentLog{worldDir: worldDir, now: time.Now}
}

func (s *segmentLog) setClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *segmentLog) append(e *ChunkEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e.UnixMS = now.UnixMilli()
	if hour := now.UTC().Format(hourLayout); hour != s.hour {
		if err := s.open(now); err != nil {
			return err
		}
	}
	if err := s.enc.Encode(e); err != nil {
		// The frame is now torn; the next append starts a fresh one.
		_ = s.closeSegment()
		return err
	}
	return nil
}

func (s *segmentLog) open(now time.Time) error {
	if err := s.closeSegment(); err != nil {
		return err
	}
	path := segmentPath(s.worldDir, now)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	s.f, s.zw, s.enc = f, zw, json.NewEncoder(zw)
	s.hour = now.UTC().Format(hourLayout)
	return nil
}

func (s *segmentLog) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeSegment()
}

// closeSegment ends the zstd frame and forgets the hour so the next append
// reopens. It is a no-op when nothing is open.
func (s *segmentLog) closeSegment() error {
	var err error
	if s.zw != nil {
		err = s.zw.Close()
	}
	if s.f != nil {
		if cerr := s.f.Close(); err == nil {
			err = cerr
		}
	}
	s.f, s.zw, s.enc = nil, nil, nil
	s.hour = ""
	return err
}
