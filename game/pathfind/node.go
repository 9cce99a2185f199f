package pathfind

import "github.com/wricardo/mcp-training/carpark/game/grid"

// Node is the search state attached to one coordinate of a Graph.
//
// The coordinate and world position are fixed when the graph is built.
// GCost, HCost and Parent are scratch values owned by the search in
// progress; they are only meaningful for the generation that wrote them.
type Node struct {
	coordinate grid.Coordinate
	world      grid.Coordinate
	walkable   bool
	virtual    bool
	reserved   bool

	GCost  int
	HCost  int
	Parent *Node

	// per-search bookkeeping
	generation uint64
	open       bool
	closed     bool
	heapIndex  int
	seq        int
}

func newNode(c, world grid.Coordinate, walkable bool) *Node {
	return &Node{coordinate: c, world: world, walkable: walkable, heapIndex: -1}
}

// Coordinate returns the logical key of the node.
func (n *Node) Coordinate() grid.Coordinate { return n.coordinate }

// World returns the render-space position the coordinate maps to.
func (n *Node) World() grid.Coordinate { return n.world }

// IsWalkable reports the live occupancy flag.
func (n *Node) IsWalkable() bool { return n.walkable }

// IsVirtual reports whether the node belongs to an off-grid exit tail.
func (n *Node) IsVirtual() bool { return n.virtual }

// FCost is the estimated total cost through this node.
func (n *Node) FCost() int { return n.GCost + n.HCost }

// touch resets the scratch state the first time a search visits the node.
func (n *Node) touch(generation uint64) {
	if n.generation == generation {
		return
	}
	n.generation = generation
	n.GCost = 0
	n.HCost = 0
	n.Parent = nil
	n.open = false
	n.closed = false
	n.heapIndex = -1
	n.seq = 0
}
