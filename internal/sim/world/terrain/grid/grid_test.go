package grid

import (
	"testing"

	"github.com/zyedidia/generic/mapset"
)

func tile(name string) Tile { return Tile{Name: name} }

func TestNewGridStartsEmpty(t *testing.T) {
	g := New(3, 2)
	g.Each(func(x, y int, tl Tile) {
		if !tl.IsEmpty() {
			t.Fatalf("cell (%d,%d) = %q, want Empty", x, y, tl.Name)
		}
	})
	if e := Empty(); e.Atlas != (Point{X: -1, Y: -1}) {
		t.Fatalf("Empty atlas = %+v", e.Atlas)
	}
}

func TestTileEqualityByName(t *testing.T) {
	a := Tile{Name: "Grass", Atlas: Point{X: 1, Y: 1}}
	b := Tile{Name: "Grass", Atlas: Point{X: 9, Y: 9}, Alt: 2}
	if !a.Is(b) {
		t.Fatalf("tiles with the same name should be equal")
	}
	if a.Is(tile("Sand")) {
		t.Fatalf("different names should not be equal")
	}
}

func TestSafeAccessorsBounds(t *testing.T) {
	g := New(4, 3)
	for y := -5; y < 8; y++ {
		for x := -5; x < 9; x++ {
			_, ok := g.GetSafe(x, y)
			want := x >= 0 && x < 4 && y >= 0 && y < 3
			if ok != want {
				t.Fatalf("GetSafe(%d,%d) ok=%v want %v", x, y, ok, want)
			}
			if got := g.SetSafe(x, y, tile("Stone")); got != want {
				t.Fatalf("SetSafe(%d,%d)=%v want %v", x, y, got, want)
			}
		}
	}
}

func TestGetPanicsOutOfRange(t *testing.T) {
	g := New(2, 2)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	g.Get(2, 0)
}

func TestNeighbors(t *testing.T) {
	g := New(2, 2)
	nb := g.Neighbors(0, 0)
	want := Neighbors{N: Point{0, -1}, E: Point{1, 0}, S: Point{0, 1}, W: Point{-1, 0}}
	if nb != want {
		t.Fatalf("Neighbors(0,0)=%+v want %+v", nb, want)
	}
}

func TestRegionSafeShape(t *testing.T) {
	g := New(3, 3)
	g.Set(2, 2, tile("Water"))

	r := g.RegionSafe(Point{X: 1, Y: 1}, 3, 2)
	if len(r) != 6 {
		t.Fatalf("len=%d want 6", len(r))
	}
	wantOK := []bool{true, true, false, true, true, false}
	for i, c := range r {
		if c.OK != wantOK[i] {
			t.Fatalf("cell %d (%+v) ok=%v want %v", i, c.Pos, c.OK, wantOK[i])
		}
	}
	// Row-major order.
	if r[3].Pos != (Point{X: 1, Y: 2}) || r[4].Name != "Water" {
		t.Fatalf("unexpected order: %+v %+v", r[3], r[4])
	}

	neg := g.RegionSafe(Point{X: -10, Y: -10}, 2, 2)
	for _, c := range neg {
		if c.OK {
			t.Fatalf("negative region reported present cell %+v", c.Pos)
		}
	}
}

func TestRegionUnsafePanics(t *testing.T) {
	g := New(2, 2)
	if got := len(g.RegionUnsafe(Point{}, 2, 2)); got != 4 {
		t.Fatalf("len=%d", got)
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	g.RegionUnsafe(Point{X: 1, Y: 1}, 2, 2)
}

func TestCellsMatching(t *testing.T) {
	g := New(3, 1)
	g.Set(0, 0, tile("Grass"))
	g.Set(1, 0, tile("Sand"))
	g.Set(2, 0, tile("Grass"))

	names := mapset.New[string]()
	names.Put("Grass")
	got := CellsMatching(names, Present(g.RegionSafe(Point{}, 4, 1)))
	if len(got) != 2 || got[0] != (Point{0, 0}) || got[1] != (Point{2, 0}) {
		t.Fatalf("CellsMatching=%v", got)
	}
}
