package grid

// EmptyName is the name of the tile that marks unoccupied space.
const EmptyName = "Empty"

type Point struct {
	X int
	Y int
}

func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }

// Tile is an immutable tile record. Two tiles are the same tile when their
// names match; atlas and alt are presentation attributes.
type Tile struct {
	Name  string
	Atlas Point
	Alt   int
}

func Empty() Tile {
	return Tile{Name: EmptyName, Atlas: Point{X: -1, Y: -1}}
}

func (t Tile) IsEmpty() bool { return t.Name == EmptyName }

func (t Tile) Is(other Tile) bool { return t.Name == other.Name }

type PositionedTile struct {
	Tile
	Pos Point
}

// MaybeTile is a region cell that may lie outside the grid.
type MaybeTile struct {
	PositionedTile
	OK bool
}
