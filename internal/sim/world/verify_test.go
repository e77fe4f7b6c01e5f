package world

import (
	"context"
	"testing"
)

func TestVerifySnapshot(t *testing.T) {
	cats := shippedCatalogs(t)
	w, err := New(testConfig(11), cats, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := w.Step(context.Background()); err != nil {
		t.Fatalf("step: %v", err)
	}
	w.Drain(0)
	if err := w.SetCell(w.SpawnPoint(), "Rock"); err != nil {
		t.Fatalf("set cell: %v", err)
	}

	snap := w.ExportSnapshot(1)
	checks, err := VerifySnapshot(testConfig(0), cats, snap, nil)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(checks) == 0 {
		t.Fatalf("no chunks checked")
	}
	for _, c := range checks {
		if !c.OK() {
			t.Fatalf("chunk %v: %+v", c.Key, c)
		}
	}

	snap.Chunks[0].Tiles[0]++
	checks, err = VerifySnapshot(testConfig(0), cats, snap, nil)
	if err != nil {
		t.Fatalf("verify tampered: %v", err)
	}
	bad := 0
	for _, c := range checks {
		if !c.OK() {
			bad++
		}
	}
	if bad != 1 {
		t.Fatalf("tampered mismatches=%d want 1", bad)
	}
}
