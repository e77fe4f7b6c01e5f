package stream

import (
	"sync"
	"time"

	"fastterrain.ai/internal/sim/world/terrain/grid"
)

// Feed carries the player's grid position from the presentation side to the
// streamer. Publishes closer together than every are held back and surface
// once the interval has passed, so the latest position is never lost.
type Feed struct {
	mu      sync.Mutex
	every   time.Duration
	now     func() time.Time
	cur     grid.Point
	pending grid.Point
	hasNew  bool
	last    time.Time
	started bool
	updates uint64
}

func NewFeed(every time.Duration, start grid.Point) *Feed {
	return &Feed{every: every, now: time.Now, cur: start}
}

// SetClock replaces the time source; tests use it to step time by hand.
func (f *Feed) SetClock(now func() time.Time) {
	f.mu.Lock()
	f.now = now
	f.mu.Unlock()
}

// Publish records p and reports whether it became the latest position now.
func (f *Feed) Publish(p grid.Point) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = p
	f.hasNew = true
	return f.promoteLocked(f.now())
}

func (f *Feed) Latest() grid.Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.promoteLocked(f.now())
	return f.cur
}

// Updates counts positions that became current.
func (f *Feed) Updates() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates
}

func (f *Feed) promoteLocked(now time.Time) bool {
	if !f.hasNew {
		return false
	}
	if f.started && now.Sub(f.last) < f.every {
		return false
	}
	f.cur = f.pending
	f.hasNew = false
	f.last = now
	f.started = true
	f.updates++
	return true
}
