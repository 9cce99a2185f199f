// Package pathfind implements the grid pathfinding core: the node graph,
// its occupancy flags and an A* search over it.
//
// Two graph shapes are supported. A plain rectangle maps every coordinate to
// itself in world space. A ring graph folds the road around a level into a
// coordinate space whose border is drivable, whose interior is reserved, and
// which continues past the top-left corner into a virtual exit tail. Search
// adjacency always follows coordinates; step costs follow world positions.
package pathfind

import (
	"errors"
	"fmt"

	"github.com/wricardo/mcp-training/carpark/game/grid"
)

var (
	ErrNodeNotFound      = errors.New("node not found")
	ErrInvalidDimensions = errors.New("invalid graph dimensions")
)

// neighborOffsets is the fixed expansion order. It decides which of several
// equally good nodes enters the open set first, so it must not change.
var neighborOffsets = []grid.Coordinate{
	{X: 0, Y: 1},
	{X: 0, Y: -1},
	{X: 1, Y: 0},
	{X: -1, Y: 0},
}

// OccupancyProbe is implemented by collaborators that know which cells are
// physically blocked right now.
type OccupancyProbe interface {
	IsOccupied(c grid.Coordinate) bool
}

// Graph owns the node set for one level. It is not safe for concurrent use;
// the owner must serialize occupancy writes and searches.
type Graph struct {
	nodes      map[grid.Coordinate]*Node
	width      int
	height     int
	tail       int
	generation uint64
}

// NewGraph builds a plain width x height graph with world == coordinate and
// every node walkable.
func NewGraph(width, height int) (*Graph, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}

	g := &Graph{
		nodes:  make(map[grid.Coordinate]*Node, width*height),
		width:  width,
		height: height,
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := grid.C(x, y)
			g.nodes[c] = newNode(c, c, true)
		}
	}
	return g, nil
}

// NewGraphFromWorld builds a graph from an explicit coordinate-to-world
// mapping indexed world[y][x]. Every node starts walkable.
func NewGraphFromWorld(world [][]grid.Coordinate) (*Graph, error) {
	height := len(world)
	if height == 0 {
		return nil, fmt.Errorf("%w: empty world array", ErrInvalidDimensions)
	}
	width := len(world[0])
	if width == 0 {
		return nil, fmt.Errorf("%w: empty world row", ErrInvalidDimensions)
	}

	g := &Graph{
		nodes:  make(map[grid.Coordinate]*Node, width*height),
		width:  width,
		height: height,
	}
	for y, row := range world {
		if len(row) != width {
			return nil, fmt.Errorf("%w: row %d has %d columns, expected %d", ErrInvalidDimensions, y, len(row), width)
		}
		for x, pos := range row {
			c := grid.C(x, y)
			g.nodes[c] = newNode(c, pos, true)
		}
	}
	return g, nil
}

// Width is the number of columns of the rectangular part of the graph.
func (g *Graph) Width() int { return g.width }

// Height is the number of rows of the rectangular part of the graph.
func (g *Graph) Height() int { return g.height }

// Len returns the number of nodes, virtual tail included.
func (g *Graph) Len() int { return len(g.nodes) }

// Node looks up the node for c. Unbuilt coordinates report false.
func (g *Graph) Node(c grid.Coordinate) (*Node, bool) {
	n, ok := g.nodes[c]
	return n, ok
}

// MustNode is Node for callers that only hold coordinates they built.
// Asking for anything else is a programming error.
func (g *Graph) MustNode(c grid.Coordinate) *Node {
	n, ok := g.nodes[c]
	if !ok {
		panic(fmt.Sprintf("pathfind: %v: %v", ErrNodeNotFound, c))
	}
	return n
}

// Contains reports whether c was built.
func (g *Graph) Contains(c grid.Coordinate) bool {
	_, ok := g.nodes[c]
	return ok
}

// InBounds reports whether c lies in the rectangular part of the graph.
func (g *Graph) InBounds(c grid.Coordinate) bool {
	return c.X >= 0 && c.X < g.width && c.Y >= 0 && c.Y < g.height
}

// SetWalkable updates the occupancy flag of c. The next search sees it.
func (g *Graph) SetWalkable(c grid.Coordinate, walkable bool) error {
	n, ok := g.nodes[c]
	if !ok {
		return fmt.Errorf("%w: %v", ErrNodeNotFound, c)
	}
	n.walkable = walkable
	return nil
}

// IsWalkable reports the live flag of c; unbuilt coordinates are not walkable.
func (g *Graph) IsWalkable(c grid.Coordinate) bool {
	n, ok := g.nodes[c]
	return ok && n.walkable
}

// ApplyOccupancy refreshes every node from probe. Virtual tail nodes and
// the reserved interior of a ring are left alone.
func (g *Graph) ApplyOccupancy(probe OccupancyProbe) {
	for c, n := range g.nodes {
		if n.virtual || n.reserved {
			continue
		}
		n.walkable = !probe.IsOccupied(c)
	}
}

// Neighbors returns the built 4-connected neighbors of n in coordinate space.
func (g *Graph) Neighbors(n *Node) []*Node {
	neighbors := make([]*Node, 0, len(neighborOffsets))
	for _, offset := range neighborOffsets {
		if next, ok := g.nodes[n.coordinate.Add(offset)]; ok {
			neighbors = append(neighbors, next)
		}
	}
	return neighbors
}

// nextGeneration starts a new search epoch for the lazily reset scratch state.
func (g *Graph) nextGeneration() uint64 {
	g.generation++
	return g.generation
}
