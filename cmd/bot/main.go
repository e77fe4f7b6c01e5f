package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fastterrain.ai/internal/protocol"
	"fastterrain.ai/internal/sim/encoding"
	"fastterrain.ai/internal/sim/world/terrain/store"
)

// walker tracks what the server has streamed to this client.
type walker struct {
	mu      sync.Mutex
	welcome protocol.WelcomeMsg
	chunks  map[[2]int]string
	ready   int
	cleared int
	acks    int
	nacks   int
	// Chunks whose tile data decoded and hashed to the advertised digest,
	// and those that did not.
	verified   int
	mismatched int
}

func (w *walker) handle(logger *log.Logger, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	switch base.Type {
	case protocol.TypeChunkReady:
		var m protocol.ChunkReadyMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return
		}
		w.chunks[m.Chunk] = m.Digest
		w.ready++
		if m.Encoding == encoding.TileRuns {
			if err := verifyTiles(m); err != nil {
				w.mismatched++
				logger.Printf("chunk %v: %v", m.Chunk, err)
			} else {
				w.verified++
			}
		}
	case protocol.TypeChunkCleared:
		var m protocol.ChunkClearedMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return
		}
		delete(w.chunks, m.Chunk)
		w.cleared++
	case protocol.TypeAck:
		var m protocol.AckMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return
		}
		if m.Accepted {
			w.acks++
		} else {
			w.nacks++
			logger.Printf("ACK %s rejected: %s %s", m.AckFor, m.Code, m.Message)
		}
	}
}

func (w *walker) stats() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return fmt.Sprintf("chunks=%d ready=%d cleared=%d acks=%d nacks=%d verified=%d mismatched=%d",
		len(w.chunks), w.ready, w.cleared, w.acks, w.nacks, w.verified, w.mismatched)
}

// verifyTiles checks that the tile runs decode to a full chunk whose hash is
// the advertised digest.
func verifyTiles(m protocol.ChunkReadyMsg) error {
	ids, err := encoding.DecodeTileRuns(m.Data, m.Width*m.Height)
	if err != nil {
		return err
	}
	if got := store.DigestHex(ids); got != m.Digest {
		return fmt.Errorf("digest mismatch: data=%s msg=%s", got, m.Digest)
	}
	return nil
}

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "client name")
		interval = flag.Duration("interval", 100*time.Millisecond, "time between moves")
		speed    = flag.Int("speed", 1, "cells per move")
		paint    = flag.String("paint", "", "tile to paint under the walker every -paint_every moves (empty disables)")
		every    = flag.Int("paint_every", 50, "moves between paints")
		seed     = flag.Int64("seed", 1, "walk jitter seed")
		enc      = flag.String("encoding", protocol.EncodingTileRuns, "chunk encoding to request: CELLS or PAL_RLE_U16 (verifies digests)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		Encoding:        *enc,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	w := &walker{chunks: map[[2]int]string{}}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		logger.Fatalf("read WELCOME: %v", err)
	}
	if err := json.Unmarshal(msg, &w.welcome); err != nil || w.welcome.Type != protocol.TypeWelcome {
		var ack protocol.AckMsg
		if json.Unmarshal(msg, &ack) == nil && ack.Code != "" {
			logger.Fatalf("rejected: %s %s", ack.Code, ack.Message)
		}
		logger.Fatalf("expected WELCOME, got %s", string(msg))
	}
	_ = conn.SetReadDeadline(time.Time{})
	wp := w.welcome.WorldParams
	logger.Printf("WELCOME session=%s world=%s seed=%d size=%dx%d spawn=%v tiles=%d",
		w.welcome.SessionID, wp.WorldID, wp.Seed, wp.Width, wp.Height, wp.Spawn, len(w.welcome.Palette.Tiles))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				logger.Printf("read: %v", err)
				return
			}
			w.handle(logger, msg)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	r := rand.New(rand.NewSource(*seed))
	x, y := wp.Spawn[0], wp.Spawn[1]
	dx := *speed
	if dx <= 0 {
		dx = 1
	}
	t := time.NewTicker(*interval)
	defer t.Stop()
	report := time.NewTicker(5 * time.Second)
	defer report.Stop()

	for moves := 1; ; moves++ {
		select {
		case <-stop:
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
			logger.Printf("stopping: %s", w.stats())
			return
		case <-done:
			logger.Printf("server closed: %s", w.stats())
			return
		case <-report.C:
			logger.Printf("at (%d,%d) %s", x, y, w.stats())
			continue
		case <-t.C:
		}

		x, dx = bounce(x, dx, wp.Width)
		y = clamp(y+r.Intn(3)-1, 0, wp.Height-1)
		pos := protocol.PositionMsg{Type: protocol.TypePosition, ProtocolVersion: protocol.Version, X: x, Y: y}
		if err := conn.WriteJSON(pos); err != nil {
			logger.Printf("send POSITION: %v", err)
			return
		}
		if *paint != "" && *every > 0 && moves%*every == 0 {
			sc := protocol.SetCellMsg{
				Type:            protocol.TypeSetCell,
				ProtocolVersion: protocol.Version,
				ReqID:           fmt.Sprintf("P%d", moves),
				X:               x,
				Y:               y,
				Tile:            *paint,
			}
			if err := conn.WriteJSON(sc); err != nil {
				logger.Printf("send SET_CELL: %v", err)
				return
			}
		}
	}
}

// bounce advances x by dx and reverses at the world edges.
func bounce(x, dx, width int) (int, int) {
	nx := x + dx
	if nx < 0 || nx >= width {
		dx = -dx
		nx = x + dx
	}
	return clamp(nx, 0, width-1), dx
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
