package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	persistlog "fastterrain.ai/internal/persistence/log"
	"fastterrain.ai/internal/persistence/snapshot"
	"fastterrain.ai/internal/sim/catalogs"
	"fastterrain.ai/internal/sim/tuning"
	"fastterrain.ai/internal/sim/world"
)

func main() {
	var (
		snapPath  = flag.String("snapshot", "", "path to .snap.zst (default: latest under -data/-world)")
		dataDir   = flag.String("data", "./data", "runtime data directory")
		worldID   = flag.String("world", "world_1", "world id")
		configDir = flag.String("configs", "./configs", "config directory")
		verify    = flag.Bool("verify", false, "regenerate every stored chunk and compare digests")
		events    = flag.Bool("events", false, "summarize the chunk event logs of the world")
		dump      = flag.Bool("dump", false, "with -events, print every event as JSON")
		kind      = flag.String("kind", "", "with -dump, only events of this kind (LOADED, UNLOADED, FAILED, EDIT)")
	)
	flag.Parse()

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)

	if *events {
		if err := eventsCmd(os.Stdout, worldDir, *dump, strings.ToUpper(strings.TrimSpace(*kind))); err != nil {
			fmt.Fprintln(os.Stderr, "events:", err)
			os.Exit(1)
		}
		if *snapPath == "" && !*verify {
			return
		}
	}

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		path = snapshot.Latest(filepath.Join(worldDir, "snapshots"))
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot and no snapshot found in", worldDir)
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	overrides, loaded := 0, 0
	for _, c := range snap.Chunks {
		overrides += len(c.Overrides)
		if len(c.Tiles) > 0 {
			loaded++
		}
	}
	fmt.Printf("snapshot v%d world=%s run=%s seq=%d seed=%d size=%dx%d chunk=%dx%d chunks=%d loaded=%d overrides=%d player=(%d,%d)\n",
		snap.Header.Version, snap.Header.WorldID, snap.Header.RunID, snap.Header.Seq, snap.Seed,
		snap.WorldWidth, snap.WorldHeight, snap.ChunkWidth, snap.ChunkHeight,
		len(snap.Chunks), loaded, overrides, snap.PlayerX, snap.PlayerY)

	if !*verify {
		return
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	if snap.ConfigDigest != "" && snap.ConfigDigest != cats.Digest {
		fmt.Fprintf(os.Stderr, "warning: config digest differs from snapshot (%s vs %s)\n", cats.Digest, snap.ConfigDigest)
	}
	tune, err := tuning.Load(filepath.Join(*configDir, "tuning.yaml"))
	if err != nil {
		tune = tuning.Defaults()
	}

	checks, err := world.VerifySnapshot(world.ConfigFromTuning(snap.Header.WorldID, snap.Seed, tune), cats, snap, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "verify:", err)
		os.Exit(1)
	}
	bad := 0
	for _, c := range checks {
		if c.OK() {
			continue
		}
		bad++
		if c.Err != nil {
			fmt.Printf("chunk (%d,%d): %v\n", c.Key.CX, c.Key.CY, c.Err)
			continue
		}
		fmt.Printf("chunk (%d,%d): stored=%s tiles=%s rebuilt=%s\n", c.Key.CX, c.Key.CY, c.Stored, c.Tiles, c.Rebuilt)
	}
	if bad > 0 {
		fmt.Printf("verify FAILED: %d of %d chunks differ\n", bad, len(checks))
		os.Exit(1)
	}
	fmt.Printf("verify ok: %d chunks\n", len(checks))
}

func eventsCmd(out io.Writer, worldDir string, dump bool, kind string) error {
	files, err := persistlog.EventFiles(worldDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no event files under %s", worldDir)
	}
	counts := map[string]int{}
	failedChunks := map[[2]int]int{}
	for _, f := range files {
		evs, err := persistlog.ReadEvents(f)
		if err != nil {
			return err
		}
		for _, e := range evs {
			counts[e.Kind]++
			if e.Kind == persistlog.KindFailed {
				failedChunks[[2]int{e.CX, e.CY}]++
			}
			if dump && (kind == "" || kind == e.Kind) {
				b, _ := json.Marshal(e)
				fmt.Fprintln(out, string(b))
			}
		}
	}

	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, fmt.Sprintf("%s=%d", strings.ToLower(k), counts[k]))
	}
	fmt.Fprintf(out, "events files=%d %s\n", len(files), strings.Join(parts, " "))
	failed := make([][2]int, 0, len(failedChunks))
	for k := range failedChunks {
		failed = append(failed, k)
	}
	sort.Slice(failed, func(i, j int) bool {
		if failed[i][0] != failed[j][0] {
			return failed[i][0] < failed[j][0]
		}
		return failed[i][1] < failed[j][1]
	})
	for _, k := range failed {
		fmt.Fprintf(out, "failed chunk (%d,%d) x%d\n", k[0], k[1], failedChunks[k])
	}
	return nil
}
