// Package grid defines the coordinate and direction vocabulary shared by the
// board, the pathfinder and the game engine.
//
// Rows grow downward: Up is y-1 and Down is y+1, matching how levels are
// authored (row 0 is the top row of the layout).
package grid

import (
	"fmt"
	"strings"
)

// Coordinate identifies one logical grid cell
type Coordinate struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// C is shorthand for Coordinate{X: x, Y: y}
func C(x, y int) Coordinate {
	return Coordinate{X: x, Y: y}
}

// Add returns c translated by d
func (c Coordinate) Add(d Coordinate) Coordinate {
	return Coordinate{X: c.X + d.X, Y: c.Y + d.Y}
}

// Sub returns c - d
func (c Coordinate) Sub(d Coordinate) Coordinate {
	return Coordinate{X: c.X - d.X, Y: c.Y - d.Y}
}

// Scale multiplies both components by k
func (c Coordinate) Scale(k int) Coordinate {
	return Coordinate{X: c.X * k, Y: c.Y * k}
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// Manhattan returns the 4-connected step distance between two coordinates
func Manhattan(a, b Coordinate) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

// Direction is one of the four cardinal directions
type Direction string

const (
	Up    Direction = "up"
	Down  Direction = "down"
	Left  Direction = "left"
	Right Direction = "right"
)

// Directions lists the cardinal directions in a fixed order
var Directions = []Direction{Up, Down, Left, Right}

// ParseDirection accepts a direction name in any case
func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ToLower(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("invalid direction %q: must be up, down, left or right", s)
	}
	return d, nil
}

// Valid reports whether d is one of the four cardinal directions
func (d Direction) Valid() bool {
	switch d {
	case Up, Down, Left, Right:
		return true
	}
	return false
}

// Delta returns the unit step for d. An invalid direction has a zero delta
func (d Direction) Delta() Coordinate {
	switch d {
	case Up:
		return Coordinate{X: 0, Y: -1}
	case Down:
		return Coordinate{X: 0, Y: 1}
	case Left:
		return Coordinate{X: -1, Y: 0}
	case Right:
		return Coordinate{X: 1, Y: 0}
	}
	return Coordinate{}
}

// Opposite returns the direction pointing the other way
func (d Direction) Opposite() Direction {
	switch d {
	case Up:
		return Down
	case Down:
		return Up
	case Left:
		return Right
	case Right:
		return Left
	}
	return d
}

// Perpendicular returns the two directions at right angles to d
func (d Direction) Perpendicular() [2]Direction {
	if d.Horizontal() {
		return [2]Direction{Up, Down}
	}
	return [2]Direction{Left, Right}
}

// Horizontal reports whether d runs along the x axis
func (d Direction) Horizontal() bool {
	return d == Left || d == Right
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
