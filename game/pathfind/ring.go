package pathfind

import (
	"fmt"

	"github.com/wricardo/mcp-training/carpark/game/grid"
)

const (
	// DefaultExitTail is how many virtual road cells leave the top-left corner.
	DefaultExitTail = 28

	// ExitGateOffset is the tail index the exit gate stands beside.
	ExitGateOffset = 4
)

// RingWorld returns the world mapping of the road ring around a
// levelWidth x levelHeight grid: a (W+2) x (H+2) array, indexed [y][x], whose
// coordinate (x, y) sits at world (x-1, 1-y). Ring coordinate (x+1, y+1)
// therefore borders level cell (x, y).
func RingWorld(levelWidth, levelHeight int) [][]grid.Coordinate {
	width, height := levelWidth+2, levelHeight+2
	world := make([][]grid.Coordinate, height)
	for y := range world {
		world[y] = make([]grid.Coordinate, width)
		for x := range world[y] {
			world[y][x] = grid.C(x-1, 1-y)
		}
	}
	return world
}

// NewRingGraph builds the road graph used for vehicle exit routing.
//
// Only the outermost ring of world is walkable; the interior is reserved for
// parked objects. tail virtual coordinates (0,-1) .. (0,-tail) continue from
// the (0,0) corner, each placed one more corner offset further out in world
// space, so a route can leave the visible grid.
func NewRingGraph(world [][]grid.Coordinate, tail int) (*Graph, error) {
	if tail < 0 {
		return nil, fmt.Errorf("%w: negative tail length %d", ErrInvalidDimensions, tail)
	}

	g, err := NewGraphFromWorld(world)
	if err != nil {
		return nil, err
	}
	if g.width < 3 || g.height < 3 {
		return nil, fmt.Errorf("%w: ring needs at least 3x3, got %dx%d", ErrInvalidDimensions, g.width, g.height)
	}

	for c, n := range g.nodes {
		interior := c.X > 0 && c.X < g.width-1 && c.Y > 0 && c.Y < g.height-1
		n.walkable = !interior
		n.reserved = interior
	}

	corner := world[0][0]
	step := corner.Sub(world[1][0])
	for k := 1; k <= tail; k++ {
		c := grid.C(0, -k)
		n := newNode(c, corner.Add(step.Scale(k)), true)
		n.virtual = true
		g.nodes[c] = n
	}
	g.tail = tail

	return g, nil
}

// TailLength returns the number of virtual exit coordinates.
func (g *Graph) TailLength() int { return g.tail }

// TailEnd is the last virtual coordinate, the final destination of an exit
// route. A graph without a tail reports false.
func (g *Graph) TailEnd() (grid.Coordinate, bool) {
	if g.tail == 0 {
		return grid.Coordinate{}, false
	}
	return grid.C(0, -g.tail), true
}

// GateCoordinate is the tail coordinate beside the exit gate.
func (g *Graph) GateCoordinate() (grid.Coordinate, bool) {
	if g.tail < ExitGateOffset {
		return grid.Coordinate{}, false
	}
	return grid.C(0, -ExitGateOffset), true
}

// IsVirtual reports whether c is part of the exit tail.
func (g *Graph) IsVirtual(c grid.Coordinate) bool {
	n, ok := g.nodes[c]
	return ok && n.virtual
}
