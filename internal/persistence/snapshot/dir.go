package snapshot

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const suffix = ".snap.zst"

// Entry is one snapshot file in a snapshot directory.
type Entry struct {
	Seq  uint64
	Path string
}

// List returns the snapshots in dir, oldest first. Files whose names are not
// a sequence number are skipped; a missing dir is empty.
func List(dir string) ([]Entry, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []Entry
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		seq, err := strconv.ParseUint(strings.TrimSuffix(e.Name(), suffix), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, Entry{Seq: seq, Path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// Latest returns the newest snapshot in dir, or "" when there is none.
func Latest(dir string) string {
	ents, err := List(dir)
	if err != nil || len(ents) == 0 {
		return ""
	}
	return ents[len(ents)-1].Path
}

// Prune removes all but the newest keep snapshots. keep <= 0 keeps all.
func Prune(dir string, keep int) (removed int, err error) {
	if keep <= 0 {
		return 0, nil
	}
	ents, err := List(dir)
	if err != nil {
		return 0, err
	}
	for len(ents) > keep {
		if err := os.Remove(ents[0].Path); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed++
		ents = ents[1:]
	}
	return removed, nil
}
