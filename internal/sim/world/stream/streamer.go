package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"fastterrain.ai/internal/sim/world/logic/mathx"
	"fastterrain.ai/internal/sim/world/terrain/gen"
	"fastterrain.ai/internal/sim/world/terrain/grid"
	"fastterrain.ai/internal/sim/world/terrain/store"
)

var (
	ErrQueueClosed    = errors.New("stream: queue closed")
	ErrAlreadyRunning = errors.New("stream: already running")
)

type Config struct {
	RadiusChunks     int
	HysteresisChunks int
	Interval         time.Duration
	MaxLoadsPerStep  int
	Workers          int
	QueueSize        int
}

func DefaultConfig() Config {
	return Config{
		RadiusChunks:     2,
		HysteresisChunks: 1,
		Interval:         100 * time.Millisecond,
		MaxLoadsPerStep:  8,
		Workers:          2,
		QueueSize:        64,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RadiusChunks < 0 {
		c.RadiusChunks = 0
	}
	if c.HysteresisChunks < 0 {
		c.HysteresisChunks = 0
	}
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.MaxLoadsPerStep <= 0 {
		c.MaxLoadsPerStep = d.MaxLoadsPerStep
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	return c
}

// Builder produces one chunk. gen.Builder satisfies it.
type Builder interface {
	Build(cx, cy int) (*gen.Result, error)
}

// EventSink observes chunk lifecycle transitions. Calls come from the
// streamer goroutine and must not block for long.
type EventSink interface {
	ChunkLoaded(v store.View, build time.Duration)
	ChunkUnloaded(k store.ChunkKey)
	ChunkFailed(k store.ChunkKey, err error)
}

// Metrics is a read-only view of the streamer, safe to read from any
// goroutine.
type Metrics struct {
	Steps        uint64         `json:"steps"`
	Center       store.ChunkKey `json:"center"`
	Loaded       int            `json:"loaded"`
	Loading      int            `json:"loading"`
	Unloaded     int            `json:"unloaded"`
	LoadsTotal   uint64         `json:"loads_total"`
	UnloadsTotal uint64         `json:"unloads_total"`
	FailedTotal  uint64         `json:"failed_total"`
	EditsTotal   uint64         `json:"edits_total"`
	QueueDepth   int            `json:"queue_depth"`
	StepMS       float64        `json:"step_ms"`
	BuildMSAvg   float64        `json:"build_ms_avg"`
}

// Streamer keeps the chunks around the player loaded. It is the single
// producer of its message queue; the presentation side is the single
// consumer.
type Streamer struct {
	cfg     Config
	store   *store.ChunkStore
	builder Builder
	feed    *Feed
	logger  *log.Logger

	sinksMu sync.Mutex
	sinks   []EventSink

	out     chan Message
	seq     uint64
	running atomic.Bool
	closed  atomic.Bool

	editsMu sync.Mutex
	edited  map[store.ChunkKey]bool

	steps        uint64
	loadsTotal   uint64
	unloadsTotal uint64
	failedTotal  uint64
	editsTotal   atomic.Uint64
	buildTotal   time.Duration
	metrics      atomic.Value
}

func New(cfg Config, st *store.ChunkStore, b Builder, feed *Feed, logger *log.Logger) *Streamer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	cfg = cfg.withDefaults()
	s := &Streamer{
		cfg:     cfg,
		store:   st,
		builder: b,
		feed:    feed,
		logger:  logger,
		out:     make(chan Message, cfg.QueueSize),
		edited:  map[store.ChunkKey]bool{},
	}
	s.metrics.Store(Metrics{})
	return s
}

func (s *Streamer) Config() Config { return s.cfg }

func (s *Streamer) Store() *store.ChunkStore { return s.store }

func (s *Streamer) Feed() *Feed { return s.feed }

func (s *Streamer) AddSink(k EventSink) {
	if k == nil {
		return
	}
	s.sinksMu.Lock()
	s.sinks = append(s.sinks, k)
	s.sinksMu.Unlock()
}

func (s *Streamer) eachSink(fn func(EventSink)) {
	s.sinksMu.Lock()
	sinks := append([]EventSink(nil), s.sinks...)
	s.sinksMu.Unlock()
	for _, k := range sinks {
		fn(k)
	}
}

// Center is the chunk holding the player's latest position, clamped into the
// world.
func (s *Streamer) Center() store.ChunkKey {
	p := s.feed.Latest()
	p.X = mathx.ClampInt(p.X, 0, s.store.World.Width-1)
	p.Y = mathx.ClampInt(p.Y, 0, s.store.World.Height-1)
	k, _ := s.store.KeyAt(p)
	return k
}

// SetCell overrides a world cell. A loaded chunk is re-published as a fresh
// ChunkReady on the next step.
func (s *Streamer) SetCell(pos grid.Point, name string) error {
	k, loaded, err := s.store.SetCell(pos, name)
	if err != nil {
		return err
	}
	s.editsTotal.Add(1)
	if loaded {
		s.editsMu.Lock()
		s.edited[k] = true
		s.editsMu.Unlock()
	}
	return nil
}

// Step runs one scheduling pass: re-publish edited chunks, unload chunks
// beyond radius+hysteresis, then load the missing chunks of the window,
// nearest first. Builds started here always finish, even if ctx is
// cancelled meanwhile; ctx only bounds waiting on a full queue.
func (s *Streamer) Step(ctx context.Context) error {
	if s.closed.Load() {
		return ErrQueueClosed
	}
	start := time.Now()
	center := s.Center()

	if err := s.republish(ctx); err != nil {
		return err
	}

	keep := s.cfg.RadiusChunks + s.cfg.HysteresisChunks
	for _, k := range s.store.Keys(store.Loaded) {
		if Distance(k, center) <= keep {
			continue
		}
		// Cleared goes out before the store drops the chunk, so a failed
		// emit leaves it Loaded for the next Step to retry.
		if err := s.emit(ctx, Message{Cleared: &ChunkCleared{Key: k}}); err != nil {
			return err
		}
		if !s.store.Unload(k) {
			continue
		}
		s.unloadsTotal++
		s.eachSink(func(e EventSink) { e.ChunkUnloaded(k) })
	}

	var batch []store.ChunkKey
	for _, k := range Window(center, s.cfg.RadiusChunks, s.store.Cols, s.store.Rows) {
		if len(batch) >= s.cfg.MaxLoadsPerStep {
			break
		}
		if s.store.BeginLoad(k) {
			batch = append(batch, k)
		}
	}
	results := s.buildBatch(batch)

	var emitErr error
	for i, k := range batch {
		r := results[i]
		if r.err != nil {
			s.store.Abort(k)
			s.failedTotal++
			s.logger.Printf("build chunk (%d,%d) failed: %v", k.CX, k.CY, r.err)
			s.eachSink(func(e EventSink) { e.ChunkFailed(k, r.err) })
			continue
		}
		v, err := s.store.Commit(r.res)
		if err != nil {
			s.store.Abort(k)
			s.failedTotal++
			s.logger.Printf("commit chunk (%d,%d) failed: %v", k.CX, k.CY, err)
			s.eachSink(func(e EventSink) { e.ChunkFailed(k, err) })
			continue
		}
		s.loadsTotal++
		s.buildTotal += r.dur
		s.eachSink(func(e EventSink) { e.ChunkLoaded(v, r.dur) })
		if emitErr == nil {
			emitErr = s.emit(ctx, Message{Ready: &ChunkReady{View: v}})
		}
	}

	s.steps++
	s.publishMetrics(center, time.Since(start))
	return emitErr
}

type buildResult struct {
	res *gen.Result
	err error
	dur time.Duration
}

// buildBatch builds every key with up to cfg.Workers goroutines. Each chunk
// is built by exactly one goroutine; results keep the batch order.
func (s *Streamer) buildBatch(keys []store.ChunkKey) []buildResult {
	out := make([]buildResult, len(keys))
	if len(keys) == 0 {
		return out
	}
	workers := s.cfg.Workers
	if workers > len(keys) {
		workers = len(keys)
	}
	next := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				out[i] = s.buildOne(keys[i])
			}
		}()
	}
	for i := range keys {
		next <- i
	}
	close(next)
	wg.Wait()
	return out
}

func (s *Streamer) buildOne(k store.ChunkKey) (r buildResult) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			r = buildResult{err: fmt.Errorf("panic: %v", p)}
		}
		r.dur = time.Since(start)
	}()
	res, err := s.builder.Build(k.CX, k.CY)
	if err == nil && res == nil {
		err = fmt.Errorf("builder returned no chunk")
	}
	return buildResult{res: res, err: err}
}

func (s *Streamer) republish(ctx context.Context) error {
	s.editsMu.Lock()
	keys := make([]store.ChunkKey, 0, len(s.edited))
	for k := range s.edited {
		keys = append(keys, k)
	}
	s.edited = map[store.ChunkKey]bool{}
	s.editsMu.Unlock()
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CY != keys[j].CY {
			return keys[i].CY < keys[j].CY
		}
		return keys[i].CX < keys[j].CX
	})
	for _, k := range keys {
		v, ok := s.store.View(k)
		if !ok {
			continue
		}
		if err := s.emit(ctx, Message{Ready: &ChunkReady{View: v}}); err != nil {
			return err
		}
	}
	return nil
}

// emit blocks until the consumer has room or ctx ends.
func (s *Streamer) emit(ctx context.Context, m Message) error {
	s.seq++
	m.Seq = s.seq
	select {
	case s.out <- m:
		return nil
	default:
	}
	select {
	case s.out <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run steps every cfg.Interval until ctx is cancelled. The queue is closed
// when Run returns.
func (s *Streamer) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer func() {
		s.closed.Store(true)
		close(s.out)
	}()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := s.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Printf("step: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Drain returns up to max queued messages without blocking. max <= 0 means
// everything queued.
func (s *Streamer) Drain(max int) []Message {
	var out []Message
	for max <= 0 || len(out) < max {
		select {
		case m, ok := <-s.out:
			if !ok {
				return out
			}
			out = append(out, m)
		default:
			return out
		}
	}
	return out
}

// Next blocks for the next message. It returns ErrQueueClosed once Run has
// exited and the queue is empty.
func (s *Streamer) Next(ctx context.Context) (Message, error) {
	select {
	case m, ok := <-s.out:
		if !ok {
			return Message{}, ErrQueueClosed
		}
		return m, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (s *Streamer) Metrics() Metrics {
	v := s.metrics.Load()
	m, _ := v.(Metrics)
	m.QueueDepth = len(s.out)
	m.EditsTotal = s.editsTotal.Load()
	return m
}

func (s *Streamer) publishMetrics(center store.ChunkKey, step time.Duration) {
	unloaded, loading, loaded := s.store.Counts()
	m := Metrics{
		Steps:        s.steps,
		Center:       center,
		Loaded:       loaded,
		Loading:      loading,
		Unloaded:     unloaded,
		LoadsTotal:   s.loadsTotal,
		UnloadsTotal: s.unloadsTotal,
		FailedTotal:  s.failedTotal,
		StepMS:       float64(step.Microseconds()) / 1000.0,
	}
	if s.loadsTotal > 0 {
		m.BuildMSAvg = float64(s.buildTotal.Microseconds()) / 1000.0 / float64(s.loadsTotal)
	}
	s.metrics.Store(m)
}
