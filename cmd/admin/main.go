package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"fastterrain.ai/internal/persistence/archive"
	"fastterrain.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "revert":
			revertCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "snapshots":
			snapshotsCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID != "" {
		base = filepath.Join(base, *worldID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

func snapshotsCmd(args []string) {
	fs := flag.NewFlagSet("snapshots", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "world_1", "world id")
	_ = fs.Parse(args)

	ents, err := snapshot.List(filepath.Join(*dataDir, "worlds", *worldID, "snapshots"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		os.Exit(1)
	}
	for _, e := range ents {
		h, err := snapshot.ReadHeader(e.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", filepath.Base(e.Path), err)
			continue
		}
		printJSON(struct {
			Seq     uint64 `json:"seq"`
			Path    string `json:"path"`
			RunID   string `json:"run_id"`
			Created int64  `json:"created_unix"`
		}{e.Seq, e.Path, h.RunID, h.CreatedUnix})
	}
}

// revertCmd drops set-cell overrides inside a rectangle and writes a new
// snapshot; the reverted cells regenerate from the seed on the next load.
func revertCmd(args []string) {
	fs := flag.NewFlagSet("revert", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id")
	snapPath := fs.String("snapshot", "", "snapshot to revert from (optional; defaults to latest)")
	rect := fs.String("rect", "", "world rectangle: x1,y1:x2,y2 (required)")
	tile := fs.String("tile", "", "only revert overrides that painted this tile (optional)")
	outPath := fs.String("out", "", "output snapshot path (optional)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*worldID) == "" {
		fmt.Fprintln(os.Stderr, "missing -world")
		os.Exit(2)
	}
	if strings.TrimSpace(*rect) == "" {
		fmt.Fprintln(os.Stderr, "missing -rect")
		os.Exit(2)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" {
		snapshotToLoad = snapshot.Latest(filepath.Join(worldDir, "snapshots"))
	}
	if snapshotToLoad == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run server until it writes one")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(snapshotToLoad)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	min, max, err := parseRect(*rect)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -rect:", err)
		os.Exit(2)
	}
	tileID := -1
	if t := strings.TrimSpace(*tile); t != "" {
		tileID = paletteIndex(snap.Palette, t)
		if tileID < 0 {
			fmt.Fprintf(os.Stderr, "tile %q not in snapshot palette\n", t)
			os.Exit(2)
		}
	}

	// orig keeps the pre-revert chunk list for the archive meta.
	orig := snap
	orig.Chunks = append([]snapshot.ChunkV1(nil), snap.Chunks...)
	removed := revertOverrides(&snap, min, max, tileID)
	if removed == 0 {
		fmt.Println("no matching overrides; nothing to revert")
		return
	}
	archived, err := archive.ArchiveSnapshot(worldDir, snapshotToLoad, "revert", orig)
	if err != nil {
		fmt.Fprintln(os.Stderr, "archive:", err)
		os.Exit(1)
	}

	if strings.TrimSpace(*outPath) == "" {
		*outPath = filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.revert.snap.zst", snap.Header.Seq))
	}
	if err := snapshot.WriteSnapshot(*outPath, snap); err != nil {
		fmt.Fprintln(os.Stderr, "write snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("revert ok: snapshot=%s seq=%d rect=%s removed=%d out=%s archived=%s\n",
		filepath.Base(snapshotToLoad), snap.Header.Seq, *rect, removed, *outPath, archived)
}

// revertOverrides removes the overrides whose world position lies in
// [min,max]. tileID < 0 matches any tile. Loaded chunks lose their stored
// tiles so the snapshot never claims a digest for the reverted state.
func revertOverrides(snap *snapshot.SnapshotV1, min, max [2]int, tileID int) (removed int) {
	if snap == nil {
		return 0
	}
	for i := range snap.Chunks {
		ch := &snap.Chunks[i]
		ox, oy := ch.CX*snap.ChunkWidth, ch.CY*snap.ChunkHeight
		kept := ch.Overrides[:0]
		n := 0
		for _, o := range ch.Overrides {
			x, y := ox+o.X, oy+o.Y
			inside := x >= min[0] && x <= max[0] && y >= min[1] && y <= max[1]
			if inside && (tileID < 0 || int(o.Tile) == tileID) {
				n++
				continue
			}
			kept = append(kept, o)
		}
		ch.Overrides = kept
		if n > 0 {
			ch.Tiles = nil
			ch.Spawns = nil
			ch.Digest = ""
		}
		removed += n
	}
	// Chunks left with nothing to restore are dropped.
	out := snap.Chunks[:0]
	for _, ch := range snap.Chunks {
		if len(ch.Tiles) == 0 && len(ch.Overrides) == 0 {
			continue
		}
		out = append(out, ch)
	}
	snap.Chunks = out
	return removed
}

func paletteIndex(palette []string, name string) int {
	for i, p := range palette {
		if p == name {
			return i
		}
	}
	return -1
}

func parseRect(s string) (min, max [2]int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return min, max, fmt.Errorf("expected x1,y1:x2,y2")
	}
	a, err := parseVec2(parts[0])
	if err != nil {
		return min, max, err
	}
	b, err := parseVec2(parts[1])
	if err != nil {
		return min, max, err
	}
	for i := 0; i < 2; i++ {
		if a[i] <= b[i] {
			min[i], max[i] = a[i], b[i]
		} else {
			min[i], max[i] = b[i], a[i]
		}
	}
	return min, max, nil
}

func parseVec2(s string) ([2]int, error) {
	var v [2]int
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return v, fmt.Errorf("expected x,y")
	}
	for i := 0; i < 2; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return v, err
		}
		v[i] = n
	}
	return v, nil
}
