package pathfind

import (
	"container/heap"
	"fmt"

	"github.com/wricardo/mcp-training/carpark/game/grid"
)

// Costs are the step weights of the octile distance. Only 4-connected
// neighbors are expanded today, but the formula keeps the diagonal weight.
type Costs struct {
	Straight int `json:"straight" yaml:"straight"`
	Diagonal int `json:"diagonal" yaml:"diagonal"`
}

// DefaultCosts approximate 1 and sqrt(2) scaled by ten.
var DefaultCosts = Costs{Straight: 10, Diagonal: 14}

// Distance is the octile distance between two world positions.
func (c Costs) Distance(a, b grid.Coordinate) int {
	dx := abs(a.X - b.X)
	dy := abs(a.Y - b.Y)
	if dx > dy {
		return c.Diagonal*dy + c.Straight*(dx-dy)
	}
	return c.Diagonal*dx + c.Straight*(dy-dx)
}

// Result is the outcome of one search. An unreachable target is a normal
// result: Found is false and Furthest tells how far the search got.
type Result struct {
	Path        []grid.Coordinate `json:"path"`
	Found       bool              `json:"found"`
	Cost        int               `json:"cost"`
	Furthest    grid.Coordinate   `json:"furthest"`
	HasFurthest bool              `json:"has_furthest"`
	Expanded    int               `json:"expanded"`
	Truncated   bool              `json:"truncated,omitempty"`
}

// Pathfinder runs A* over a Graph.
type Pathfinder struct {
	graph         *Graph
	costs         Costs
	maxIterations int
}

// Option configures a Pathfinder.
type Option func(*Pathfinder)

// WithCosts overrides the straight/diagonal step weights.
func WithCosts(costs Costs) Option {
	return func(p *Pathfinder) {
		p.costs = costs
	}
}

// WithMaxIterations bounds how many nodes one search may close. A negative
// value means no bound beyond the size of the graph.
func WithMaxIterations(n int) Option {
	return func(p *Pathfinder) {
		p.maxIterations = n
	}
}

// New creates a pathfinder over graph.
func New(graph *Graph, opts ...Option) *Pathfinder {
	p := &Pathfinder{
		graph:         graph,
		costs:         DefaultCosts,
		maxIterations: -1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Graph returns the graph the pathfinder searches.
func (p *Pathfinder) Graph() *Graph { return p.graph }

// Costs returns the configured step weights.
func (p *Pathfinder) Costs() Costs { return p.costs }

// FindPath searches from start to target and returns the coordinates to walk
// through, start excluded and target included. start == target succeeds with
// an empty path. Asking for a coordinate that was never built returns
// ErrNodeNotFound.
func (p *Pathfinder) FindPath(start, target grid.Coordinate) (Result, error) {
	startNode, ok := p.graph.Node(start)
	if !ok {
		return Result{}, fmt.Errorf("%w: start %v", ErrNodeNotFound, start)
	}
	targetNode, ok := p.graph.Node(target)
	if !ok {
		return Result{}, fmt.Errorf("%w: target %v", ErrNodeNotFound, target)
	}

	generation := p.graph.nextGeneration()
	startNode.touch(generation)

	open := &openSet{}
	seq := 0
	startNode.seq = seq
	heap.Push(open, startNode)

	var result Result
	var lastClosed *Node

	for open.Len() > 0 {
		if p.maxIterations >= 0 && result.Expanded >= p.maxIterations {
			result.Truncated = true
			break
		}

		current := heap.Pop(open).(*Node)
		current.closed = true
		lastClosed = current
		result.Expanded++

		if current == targetNode {
			result.Found = true
			result.Cost = current.GCost
			result.Path = retrace(startNode, targetNode)
			result.Furthest = current.coordinate
			result.HasFurthest = true
			return result, nil
		}

		for _, neighbor := range p.graph.Neighbors(current) {
			neighbor.touch(generation)
			if !neighbor.walkable || neighbor.closed {
				continue
			}

			tentative := current.GCost + p.costs.Distance(current.world, neighbor.world)
			if neighbor.open && tentative >= neighbor.GCost {
				continue
			}

			neighbor.GCost = tentative
			neighbor.HCost = p.costs.Distance(neighbor.world, targetNode.world)
			neighbor.Parent = current

			if neighbor.open {
				heap.Fix(open, neighbor.heapIndex)
				continue
			}
			seq++
			neighbor.seq = seq
			heap.Push(open, neighbor)
		}
	}

	// Unreachable: report where the search stopped making progress.
	if lastClosed != nil {
		result.Furthest = lastClosed.coordinate
		result.HasFurthest = true
	}
	return result, nil
}

// retrace walks parent links back from end and returns the path without start.
func retrace(start, end *Node) []grid.Coordinate {
	path := make([]grid.Coordinate, 0, 16)
	for n := end; n != start && n != nil; n = n.Parent {
		path = append(path, n.coordinate)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// openSet is a min-heap on FCost, then HCost, then insertion order.
type openSet []*Node

func (s openSet) Len() int { return len(s) }

func (s openSet) Less(i, j int) bool {
	a, b := s[i], s[j]
	if a.FCost() != b.FCost() {
		return a.FCost() < b.FCost()
	}
	if a.HCost != b.HCost {
		return a.HCost < b.HCost
	}
	return a.seq < b.seq
}

func (s openSet) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
	s[i].heapIndex = i
	s[j].heapIndex = j
}

func (s *openSet) Push(x any) {
	n := x.(*Node)
	n.heapIndex = len(*s)
	n.open = true
	*s = append(*s, n)
}

func (s *openSet) Pop() any {
	old := *s
	last := len(old) - 1
	n := old[last]
	old[last] = nil
	n.heapIndex = -1
	n.open = false
	*s = old[:last]
	return n
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
