package observer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"fastterrain.ai/internal/protocol"
	"fastterrain.ai/internal/sim/catalogs"
	"fastterrain.ai/internal/sim/world"
	"fastterrain.ai/internal/sim/world/stream"
	"fastterrain.ai/internal/sim/world/terrain/grid"
	"fastterrain.ai/internal/sim/world/terrain/store"
)

// EditSink is told about every accepted SET_CELL.
type EditSink interface {
	CellEdited(k store.ChunkKey, x, y int, tile string)
}

// Server is the presentation endpoint. It serves one session at a time and
// forwards the world's chunk messages to it.
type Server struct {
	world *world.World
	log   *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	// AllowRemote lifts the loopback-only restriction.
	AllowRemote bool
	// OutBuffer is the per-session send queue length.
	OutBuffer int
	// FlushEvery batches chunk messages into frames; zero sends at once.
	FlushEvery time.Duration

	mu      sync.Mutex
	session *session
	edits   []EditSink

	forwarded atomic.Uint64
	dropped   atomic.Uint64
}

type session struct {
	id   string
	enc  string
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func (s *session) close() {
	s.once.Do(func() { close(s.done) })
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		OutBuffer: 1024,
	}
}

func (s *Server) AddEditSink(e EditSink) {
	if e == nil {
		return
	}
	s.mu.Lock()
	s.edits = append(s.edits, e)
	s.mu.Unlock()
}

// Connected reports whether a session is attached.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session != nil
}

// Forwarded and Dropped count chunk messages sent to and discarded for the
// session.
func (s *Server) Forwarded() uint64 { return s.forwarded.Load() }
func (s *Server) Dropped() uint64   { return s.dropped.Load() }

// Pump drains the world's queue until it closes or ctx ends. It must run for
// the whole life of the world so the streamer never blocks on a full queue.
func (s *Server) Pump(ctx context.Context) error {
	for {
		m, err := s.world.Next(ctx)
		if err != nil {
			if errors.Is(err, stream.ErrQueueClosed) {
				return nil
			}
			return err
		}
		s.deliver(m)
	}
}

// deliver encodes m for the session and queues it. A session that cannot
// keep up is closed; on reconnect it is bootstrapped from the store again.
func (s *Server) deliver(m stream.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.session
	if sess == nil {
		s.dropped.Add(1)
		return
	}
	b, err := json.Marshal(Encode(m, sess.enc))
	if err != nil {
		s.log.Printf("encode seq=%d: %v", m.Seq, err)
		return
	}
	select {
	case sess.out <- b:
		s.forwarded.Add(1)
	default:
		s.dropped.Add(1)
		s.log.Printf("session %s too slow; closing", sess.id)
		s.session = nil
		sess.close()
	}
}

// attach installs a new session and queues the chunks already loaded. The
// bootstrap is queued under the lock so later messages follow it.
func (s *Server) attach(enc string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		return nil, errBusy
	}
	buf := s.OutBuffer
	if buf <= 0 {
		buf = 1024
	}
	st := s.world.Store()
	keys := st.LoadedChunkKeys()
	if len(keys) > buf {
		buf = len(keys) + buf
	}
	sess := &session{
		id:   fmt.Sprintf("S%d", s.nextID.Add(1)),
		enc:  enc,
		out:  make(chan []byte, buf),
		done: make(chan struct{}),
	}
	for _, k := range keys {
		v, ok := st.View(k)
		if !ok {
			continue
		}
		b, err := json.Marshal(withTiles(ChunkReady(0, v), v, enc))
		if err != nil {
			return nil, err
		}
		sess.out <- b
	}
	s.session = sess
	return sess, nil
}

func (s *Server) detach(sess *session) {
	s.mu.Lock()
	if s.session == sess {
		s.session = nil
	}
	s.mu.Unlock()
	sess.close()
}

var errBusy = errors.New("server busy")

// BootstrapHandler serves the WELCOME payload over plain HTTP.
func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.AllowRemote && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(Welcome("", s.world))
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.AllowRemote && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send HELLO first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var hello protocol.HelloMsg
		if err := json.Unmarshal(msg, &hello); err != nil || hello.Type != protocol.TypeHello {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
			return
		}
		if hello.ProtocolVersion != protocol.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
			return
		}

		switch hello.Encoding {
		case "", protocol.EncodingCells, protocol.EncodingTileRuns:
		default:
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unsupported encoding"), time.Now().Add(time.Second))
			return
		}

		sess, err := s.attach(hello.Encoding)
		if err != nil {
			if errors.Is(err, errBusy) {
				_ = writeJSON(conn, ack("", false, protocol.ErrBusy, "server busy"))
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server busy"), time.Now().Add(time.Second))
			}
			return
		}
		defer s.detach(sess)

		if hello.ClientName == "" {
			hello.ClientName = "client"
		}
		s.log.Printf("session %s attached (%s) encoding=%q", sess.id, hello.ClientName, hello.Encoding)

		// WELCOME goes out before any queued chunk.
		if err := writeJSON(conn, Welcome(sess.id, s.world)); err != nil {
			return
		}

		// Replies from the reader share the writer goroutine.
		replies := make(chan []byte, 64)
		writeErr := make(chan error, 1)
		go func() {
			write := func(b []byte) error {
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				return conn.WriteMessage(websocket.TextMessage, b)
			}
			out := sess.out
			var frame <-chan time.Time
			if s.FlushEvery > 0 {
				t := time.NewTicker(s.FlushEvery)
				defer t.Stop()
				frame = t.C
				out = nil
			}
			for {
				select {
				case <-sess.done:
					writeErr <- nil
					return
				case b := <-replies:
					if err := write(b); err != nil {
						writeErr <- err
						return
					}
				case b := <-out:
					if err := write(b); err != nil {
						writeErr <- err
						return
					}
				case <-frame:
					if err := flush(sess.out, write); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		readerDone := make(chan struct{})
		go func() {
			select {
			case <-sess.done:
				// Dropped server-side; unblock ReadMessage.
				_ = conn.Close()
			case <-readerDone:
			}
		}()

		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if b := s.handle(msg); b != nil {
				select {
				case replies <- b:
				case <-sess.done:
				}
			}
		}

		close(readerDone)
		sess.close()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
		s.log.Printf("session %s detached", sess.id)
	}
}

// handle processes one client message and returns the encoded reply, if any.
func (s *Server) handle(msg []byte) []byte {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return mustJSON(ack("", false, protocol.ErrProtoBadRequest, "bad json"))
	}
	if base.ProtocolVersion != protocol.Version {
		return mustJSON(ack("", false, protocol.ErrProtoBadRequest, "bad protocol_version"))
	}
	switch base.Type {
	case protocol.TypePosition:
		var p protocol.PositionMsg
		if err := json.Unmarshal(msg, &p); err != nil {
			return mustJSON(ack("", false, protocol.ErrProtoBadRequest, "bad POSITION"))
		}
		s.world.PublishPosition(grid.Point{X: p.X, Y: p.Y})
		return nil

	case protocol.TypeSetCell:
		var sc protocol.SetCellMsg
		if err := json.Unmarshal(msg, &sc); err != nil {
			return mustJSON(ack("", false, protocol.ErrProtoBadRequest, "bad SET_CELL"))
		}
		return mustJSON(s.setCell(sc))

	default:
		return mustJSON(ack("", false, protocol.ErrProtoBadRequest, "unknown type "+base.Type))
	}
}

func (s *Server) setCell(sc protocol.SetCellMsg) protocol.AckMsg {
	if strings.TrimSpace(sc.Tile) == "" {
		return ack(sc.ReqID, false, protocol.ErrBadRequest, "missing tile")
	}
	pos := grid.Point{X: sc.X, Y: sc.Y}
	if err := s.world.SetCell(pos, sc.Tile); err != nil {
		switch {
		case errors.Is(err, catalogs.ErrUnknownTile):
			return ack(sc.ReqID, false, protocol.ErrUnknownTile, err.Error())
		case errors.Is(err, store.ErrOutOfWorld):
			return ack(sc.ReqID, false, protocol.ErrOutOfWorld, err.Error())
		default:
			return ack(sc.ReqID, false, protocol.ErrInternal, err.Error())
		}
	}
	k, _ := s.world.Store().KeyAt(pos)
	s.mu.Lock()
	sinks := append([]EditSink(nil), s.edits...)
	s.mu.Unlock()
	for _, e := range sinks {
		e.CellEdited(k, sc.X, sc.Y, sc.Tile)
	}
	return ack(sc.ReqID, true, "", "")
}

// flush writes whatever is queued without waiting for more.
func flush(out <-chan []byte, write func([]byte) error) error {
	for {
		select {
		case b := <-out:
			if err := write(b); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func ack(reqID string, accepted bool, code, message string) protocol.AckMsg {
	return protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          reqID,
		Accepted:        accepted,
		Code:            code,
		Message:         message,
	}
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
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
