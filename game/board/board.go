// Package board tracks which objects occupy which cells of a level.
//
// Objects may cover several cells in a row. Every cell of one placement
// records the object, its facing direction and the coordinates of the other
// cells of the same placement, so any one cell is enough to find or clear
// the whole object.
package board

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/wricardo/mcp-training/carpark/game/grid"
)

var (
	ErrSpaceUnavailable = errors.New("space unavailable")
	ErrInvalidObject    = errors.New("invalid object")
	ErrObjectNotFound   = errors.New("object not found")
	ErrInvalidSize      = errors.New("invalid board size")
)

// Cell is the placement side of one grid location. The zero value is empty
type Cell struct {
	Object    *Object           `json:"object,omitempty"`
	Direction grid.Direction    `json:"direction,omitempty"`
	Linked    []grid.Coordinate `json:"linked,omitempty"`
}

// Empty reports whether nothing occupies the cell
func (c Cell) Empty() bool { return c.Object == nil }

// Placement describes one placed object. Origin is the first cell; the span
// extends from it along Direction, so Cells[len-1] is the far end
type Placement struct {
	Object    *Object           `json:"object"`
	Origin    grid.Coordinate   `json:"origin"`
	Direction grid.Direction    `json:"direction"`
	Cells     []grid.Coordinate `json:"cells"`
}

// FarEnd is the last cell of the span
func (p Placement) FarEnd() grid.Coordinate {
	return p.Cells[len(p.Cells)-1]
}

// Board is a width x height occupancy grid. Not safe for concurrent use
type Board struct {
	width      int
	height     int
	cells      [][]Cell
	placements map[uuid.UUID]*Placement
}

// NewBoard creates an empty board
func NewBoard(width, height int) (*Board, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	cells := make([][]Cell, height)
	for y := range cells {
		cells[y] = make([]Cell, width)
	}
	return &Board{
		width:      width,
		height:     height,
		cells:      cells,
		placements: make(map[uuid.UUID]*Placement),
	}, nil
}

// Width is the number of columns
func (b *Board) Width() int { return b.width }

// Height is the number of rows
func (b *Board) Height() int { return b.height }

// InBounds reports whether c is on the board
func (b *Board) InBounds(c grid.Coordinate) bool {
	return c.X >= 0 && c.X < b.width && c.Y >= 0 && c.Y < b.height
}

// Cell returns a copy of the cell at c. Off-board coordinates read as empty
func (b *Board) Cell(c grid.Coordinate) Cell {
	if !b.InBounds(c) {
		return Cell{}
	}
	cell := b.cells[c.Y][c.X]
	cell.Linked = append([]grid.Coordinate(nil), cell.Linked...)
	return cell
}

// IsOccupied reports whether an object covers c. It satisfies
// pathfind.OccupancyProbe
func (b *Board) IsOccupied(c grid.Coordinate) bool {
	return b.InBounds(c) && b.cells[c.Y][c.X].Object != nil
}

// IsSpaceAvailable reports whether span cells starting at origin and
// stepping along dir are all on the board and free
func (b *Board) IsSpaceAvailable(origin grid.Coordinate, dir grid.Direction, span int) bool {
	if span <= 0 || !dir.Valid() {
		return false
	}
	step := dir.Delta()
	for i := 0; i < span; i++ {
		c := origin.Add(step.Scale(i))
		if !b.InBounds(c) || b.IsOccupied(c) {
			return false
		}
	}
	return true
}

// Place puts obj on the board starting at origin and returns the covered
// cells in span order
func (b *Board) Place(origin grid.Coordinate, dir grid.Direction, obj *Object) ([]grid.Coordinate, error) {
	if obj == nil {
		return nil, fmt.Errorf("%w: nil object", ErrInvalidObject)
	}
	if !obj.Kind.Valid() || obj.Span <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidObject, obj)
	}
	if !dir.Valid() {
		return nil, fmt.Errorf("%w: direction %q", ErrInvalidObject, dir)
	}
	if _, exists := b.placements[obj.ID]; exists {
		return nil, fmt.Errorf("%w: %v is already placed", ErrInvalidObject, obj)
	}
	if !b.IsSpaceAvailable(origin, dir, obj.Span) {
		return nil, fmt.Errorf("%w: %d cells %s from %v", ErrSpaceUnavailable, obj.Span, dir, origin)
	}

	coords := make([]grid.Coordinate, obj.Span)
	for i := range coords {
		coords[i] = origin.Add(dir.Delta().Scale(i))
	}

	for i, c := range coords {
		linked := make([]grid.Coordinate, 0, len(coords)-1)
		for j, other := range coords {
			if j != i {
				linked = append(linked, other)
			}
		}
		b.cells[c.Y][c.X] = Cell{Object: obj, Direction: dir, Linked: linked}
	}

	b.placements[obj.ID] = &Placement{
		Object:    obj,
		Origin:    origin,
		Direction: dir,
		Cells:     coords,
	}
	return append([]grid.Coordinate(nil), coords...), nil
}

// Clear removes the object covering c together with all of its linked cells
// and returns every cleared coordinate. Clearing an empty cell is a no-op
func (b *Board) Clear(c grid.Coordinate) []grid.Coordinate {
	if !b.IsOccupied(c) {
		return nil
	}
	cell := b.cells[c.Y][c.X]

	cleared := make([]grid.Coordinate, 0, len(cell.Linked)+1)
	cleared = append(cleared, c)
	cleared = append(cleared, cell.Linked...)
	for _, lc := range cleared {
		b.cells[lc.Y][lc.X] = Cell{}
	}
	delete(b.placements, cell.Object.ID)
	return cleared
}

// Remove clears the object with the given id
func (b *Board) Remove(id uuid.UUID) ([]grid.Coordinate, error) {
	p, ok := b.placements[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, id)
	}
	return b.Clear(p.Origin), nil
}

// Footprint returns every cell of the object covering c, in span order
func (b *Board) Footprint(c grid.Coordinate) []grid.Coordinate {
	if !b.IsOccupied(c) {
		return nil
	}
	p := b.placements[b.cells[c.Y][c.X].Object.ID]
	return append([]grid.Coordinate(nil), p.Cells...)
}

// FarEnd returns the last cell of the span covering c
func (b *Board) FarEnd(c grid.Coordinate) (grid.Coordinate, bool) {
	if !b.IsOccupied(c) {
		return grid.Coordinate{}, false
	}
	return b.placements[b.cells[c.Y][c.X].Object.ID].FarEnd(), true
}

// ApproachCells returns the free cells a stickman can stand on to reach the
// object covering c: the neighbors of the span's far end in the two
// directions perpendicular to the span
func (b *Board) ApproachCells(c grid.Coordinate) []grid.Coordinate {
	if !b.IsOccupied(c) {
		return nil
	}
	p := b.placements[b.cells[c.Y][c.X].Object.ID]
	end := p.FarEnd()

	var approach []grid.Coordinate
	for _, d := range p.Direction.Perpendicular() {
		n := end.Add(d.Delta())
		if b.InBounds(n) && !b.IsOccupied(n) {
			approach = append(approach, n)
		}
	}
	return approach
}

// Find looks up the placement of an object by id
func (b *Board) Find(id uuid.UUID) (Placement, bool) {
	p, ok := b.placements[id]
	if !ok {
		return Placement{}, false
	}
	return copyPlacement(p), true
}

// At returns the placement covering c
func (b *Board) At(c grid.Coordinate) (Placement, bool) {
	if !b.IsOccupied(c) {
		return Placement{}, false
	}
	return b.Find(b.cells[c.Y][c.X].Object.ID)
}

// Placements returns one entry per object ordered by origin, row-major
func (b *Board) Placements() []Placement {
	out := make([]Placement, 0, len(b.placements))
	for _, p := range b.placements {
		out = append(out, copyPlacement(p))
	}
	sort.Slice(out, func(i, j int) bool {
		a, c := out[i].Origin, out[j].Origin
		if a.Y != c.Y {
			return a.Y < c.Y
		}
		return a.X < c.X
	})
	return out
}

// Count returns how many objects of kind are on the board
func (b *Board) Count(kind Kind) int {
	n := 0
	for _, p := range b.placements {
		if p.Object.Kind == kind {
			n++
		}
	}
	return n
}

// Clone returns an independent copy. Objects are shared since they are
// immutable
func (b *Board) Clone() *Board {
	clone := &Board{
		width:      b.width,
		height:     b.height,
		cells:      make([][]Cell, b.height),
		placements: make(map[uuid.UUID]*Placement, len(b.placements)),
	}
	for y := range b.cells {
		clone.cells[y] = make([]Cell, b.width)
		for x, cell := range b.cells[y] {
			cell.Linked = append([]grid.Coordinate(nil), cell.Linked...)
			clone.cells[y][x] = cell
		}
	}
	for id, p := range b.placements {
		cp := copyPlacement(p)
		clone.placements[id] = &cp
	}
	return clone
}

func copyPlacement(p *Placement) Placement {
	cp := *p
	cp.Cells = append([]grid.Coordinate(nil), p.Cells...)
	return cp
}
