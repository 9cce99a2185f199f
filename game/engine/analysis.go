package engine

import (
	"fmt"

	"github.com/wricardo/mcp-training/carpark/game/board"
	"github.com/wricardo/mcp-training/carpark/game/grid"
)

// CarReport describes one car of a level as it stands before the first tap
type CarReport struct {
	ID          string            `json:"id"`
	Kind        board.Kind        `json:"kind"`
	Color       board.Color       `json:"color"`
	Cells       []grid.Coordinate `json:"cells"`
	Direction   grid.Direction    `json:"direction"`
	Approach    []grid.Coordinate `json:"approach"`
	ReachableBy int               `json:"reachable_by"`
	Lane        Lane              `json:"lane"`
}

// LevelReport summarizes a level for authors
type LevelReport struct {
	Name      string      `json:"name"`
	Width     int         `json:"width"`
	Height    int         `json:"height"`
	Cars      int         `json:"cars"`
	Stickmen  int         `json:"stickmen"`
	Obstacles int         `json:"obstacles"`
	FreeCells int         `json:"free_cells"`
	CarInfo   []CarReport `json:"car_info"`
	Warnings  []string    `json:"warnings,omitempty"`
}

// AnalyzeLevel validates config and reports, per car, where it can be
// boarded, how many matching stickmen can walk there right away and which
// way it would leave. Cars nobody can reach yet are warnings, not errors:
// other cars leaving may open the way.
func AnalyzeLevel(config *LevelConfig) (*LevelReport, error) {
	e, err := NewEngine(config)
	if err != nil {
		return nil, err
	}

	report := &LevelReport{
		Name:      config.Name,
		Width:     config.Width,
		Height:    config.Height,
		Cars:      len(e.cars),
		Stickmen:  e.board.Count(board.Stickman),
		Obstacles: e.board.Count(board.Obstacle),
		FreeCells: CountFreeCells(e.board),
	}

	stickmen := []board.Placement{}
	for _, p := range e.board.Placements() {
		if p.Object.Kind == board.Stickman {
			stickmen = append(stickmen, p)
		}
	}

	for _, c := range e.cars {
		cr := CarReport{
			ID:        c.object.ID.String(),
			Kind:      c.object.Kind,
			Color:     c.object.Color,
			Cells:     c.cells,
			Direction: c.direction,
			Approach:  e.board.ApproachCells(c.cells[0]),
			Lane:      e.lane(c),
		}

		for _, s := range stickmen {
			if s.Object.Color != c.object.Color {
				continue
			}
			if e.canReachAny(s.Origin, cr.Approach) {
				cr.ReachableBy++
			}
		}

		where := fmt.Sprintf("%s %s at %v", cr.Color, cr.Kind, c.cells[0])
		switch {
		case len(cr.Approach) == 0:
			report.Warnings = append(report.Warnings, where+" has no free approach cell")
		case cr.ReachableBy == 0:
			report.Warnings = append(report.Warnings, where+" cannot be reached by any matching stickman yet")
		}
		if !cr.Lane.Clear {
			report.Warnings = append(report.Warnings, where+" has both exit lanes blocked")
		}

		report.CarInfo = append(report.CarInfo, cr)
	}

	return report, nil
}

func (e *GameEngine) canReachAny(from grid.Coordinate, targets []grid.Coordinate) bool {
	for _, t := range targets {
		res, err := e.FindPath(from, t)
		if err == nil && res.Found {
			return true
		}
	}
	return false
}

// CountFreeCells counts the board cells nothing stands on
func CountFreeCells(b *board.Board) int {
	count := 0
	for y := 0; y < b.Height(); y++ {
		for x := 0; x < b.Width(); x++ {
			if !b.IsOccupied(grid.C(x, y)) {
				count++
			}
		}
	}
	return count
}

// CountCarsInState counts the cars of a game state in the given state
func CountCarsInState(state *GameState, s CarState) int {
	count := 0
	for _, c := range state.Cars {
		if c.State == s {
			count++
		}
	}
	return count
}
