package engine

import (
	"github.com/wricardo/mcp-training/carpark/game/board"
	"github.com/wricardo/mcp-training/carpark/game/grid"
)

// HitKind says what a tapped coordinate holds
type HitKind string

const (
	HitNone     HitKind = "none"
	HitGround   HitKind = "ground"
	HitStickman HitKind = "stickman"
	HitCar      HitKind = "car"
	HitObstacle HitKind = "obstacle"
)

// Hit is a tap resolved once against the board. Object is nil for none and
// ground hits.
type Hit struct {
	Kind       HitKind         `json:"kind"`
	Coordinate grid.Coordinate `json:"coordinate"`
	Object     *board.Object   `json:"object,omitempty"`
}

// ResolveHit classifies c against b. Off-board taps hit nothing.
func ResolveHit(b *board.Board, c grid.Coordinate) Hit {
	if !b.InBounds(c) {
		return Hit{Kind: HitNone, Coordinate: c}
	}
	cell := b.Cell(c)
	if cell.Empty() {
		return Hit{Kind: HitGround, Coordinate: c}
	}

	hit := Hit{Coordinate: c, Object: cell.Object}
	switch {
	case cell.Object.Kind == board.Stickman:
		hit.Kind = HitStickman
	case cell.Object.Kind.IsCar():
		hit.Kind = HitCar
	default:
		hit.Kind = HitObstacle
	}
	return hit
}
