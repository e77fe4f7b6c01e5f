package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fastterrain.ai/internal/persistence/indexdb"
	"fastterrain.ai/internal/persistence/snapshot"
	"fastterrain.ai/internal/sim/catalogs"
	"fastterrain.ai/internal/sim/tuning"
	"fastterrain.ai/internal/sim/world/stream"
	"fastterrain.ai/internal/transport/observer"
)

type runtimeIndex interface {
	stream.EventSink
	observer.EditSink
	Close() error
	RecordRun(runID, worldID string, seed int64, width, height int)
	UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	Dropped() uint64
}

func indexPath(worldDir string) string {
	return filepath.Join(worldDir, "index", "world.sqlite")
}

func openRuntimeIndex(worldDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("FT_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		idx, err := indexdb.OpenSQLite(indexPath(worldDir))
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported FT_INDEX_BACKEND: %s", backend)
	}
}
