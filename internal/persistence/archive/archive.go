package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fastterrain.ai/internal/persistence/snapshot"
)

type Meta struct {
	Reason     string `json:"reason"`
	Seq        uint64 `json:"seq"`
	WorldID    string `json:"world_id"`
	RunID      string `json:"run_id"`
	Seed       int64  `json:"seed"`
	Snapshot   string `json:"snapshot"`
	Chunks     int    `json:"chunks"`
	Overrides  int    `json:"overrides"`
	ArchivedAt string `json:"archived_at"`
}

// ArchiveSnapshot copies snapshotPath into `worldDir/archives/<seq>_<reason>/`
// next to a meta.json describing it. Archives are never pruned.
func ArchiveSnapshot(worldDir, snapshotPath, reason string, snap snapshot.SnapshotV1) (string, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" || strings.ContainsAny(reason, `/\`) {
		return "", fmt.Errorf("archive: bad reason %q", reason)
	}
	dir := filepath.Join(worldDir, "archives", fmt.Sprintf("%012d_%s", snap.Header.Seq, reason))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", err
	}

	overrides := 0
	for _, ch := range snap.Chunks {
		overrides += len(ch.Overrides)
	}
	meta := Meta{
		Reason:     reason,
		Seq:        snap.Header.Seq,
		WorldID:    snap.Header.WorldID,
		RunID:      snap.Header.RunID,
		Seed:       snap.Seed,
		Snapshot:   filepath.Base(dst),
		Chunks:     len(snap.Chunks),
		Overrides:  overrides,
		ArchivedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), b, 0o644); err != nil {
		return "", err
	}
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
