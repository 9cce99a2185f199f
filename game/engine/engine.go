package engine

import (
	"errors"
	"fmt"

	"github.com/wricardo/mcp-training/carpark/game/board"
	"github.com/wricardo/mcp-training/carpark/game/grid"
	"github.com/wricardo/mcp-training/carpark/game/pathfind"
)

var (
	ErrCarNotFound = errors.New("car not found")
	ErrNotACar     = errors.New("not a car")
	ErrUnknownMove = errors.New("unknown action")
)

// Engine provides the main interface for game operations
type Engine interface {
	// Game state management
	GetState() *GameState
	Reset() *GameState
	IsGameOver() bool
	IsVictory() bool
	Replay(history []MoveHistoryEntry) error

	// Player actions
	Tap(c grid.Coordinate) ActionResult
	Select(c grid.Coordinate) ActionResult
	MoveStickman(target grid.Coordinate) ActionResult
	BoardCar(c grid.Coordinate) ActionResult
	Apply(action string, target grid.Coordinate) (ActionResult, error)

	// Queries
	Resolve(c grid.Coordinate) Hit
	FindPath(start, target grid.Coordinate) (pathfind.Result, error)
	IsSpaceAvailable(origin grid.Coordinate, dir grid.Direction, span int) bool
	ApproachCells(c grid.Coordinate) []grid.Coordinate
	ExitLane(carID string) (Lane, error)
	RoadRoute(carID string) (pathfind.Result, error)

	// Configuration
	GetConfig() *LevelConfig
	SetConfig(config *LevelConfig) error

	// History
	GetMoveHistory() []MoveHistoryEntry
	GetLastMove() *MoveHistoryEntry
}

// car is the engine's bookkeeping for one car
type car struct {
	object     *board.Object
	direction  grid.Direction
	cells      []grid.Coordinate
	state      CarState
	exitOrder  int
	exitVia    grid.Direction
	route      []grid.Coordinate
	passedGate bool
}

// GameEngine implements the Engine interface. It owns its board and graphs
// and is not safe for concurrent use.
type GameEngine struct {
	state  *GameState
	config *LevelConfig

	board    *board.Board
	walk     *pathfind.Graph
	road     *pathfind.Graph
	walker   *pathfind.Pathfinder
	driver   *pathfind.Pathfinder
	messages Messages

	cars     []*car
	selected *grid.Coordinate
	queue    []*car
	exited   int
}

// NewEngine creates a new game engine with the provided configuration
func NewEngine(config *LevelConfig) (*GameEngine, error) {
	if err := ValidateLevelConfig(config); err != nil {
		return nil, err
	}

	engine := &GameEngine{config: config}
	if err := engine.load(); err != nil {
		return nil, err
	}
	engine.state.MoveHistory = []MoveHistoryEntry{}
	return engine, nil
}

// NewEngineWithDefaults creates a new game engine with the default level
func NewEngineWithDefaults() *GameEngine {
	engine, err := NewEngine(DefaultLevelConfig())
	if err != nil {
		panic(fmt.Sprintf("engine: default level is invalid: %v", err))
	}
	return engine
}

// load rebuilds board, graphs and cars from the config. History is left to
// the caller.
func (e *GameEngine) load() error {
	b, err := buildBoard(e.config)
	if err != nil {
		return err
	}
	walk, err := pathfind.NewGraph(e.config.Width, e.config.Height)
	if err != nil {
		return err
	}
	road, err := pathfind.NewRingGraph(pathfind.RingWorld(e.config.Width, e.config.Height), e.config.exitTail())
	if err != nil {
		return err
	}

	costs := e.config.costs()
	e.board = b
	e.walk = walk
	e.road = road
	e.walker = pathfind.New(walk, pathfind.WithCosts(costs))
	e.driver = pathfind.New(road, pathfind.WithCosts(costs))
	e.messages = e.config.Messages.withDefaults()
	e.selected = nil
	e.queue = nil
	e.exited = 0

	e.cars = e.cars[:0]
	for _, p := range b.Placements() {
		if !p.Object.Kind.IsCar() {
			continue
		}
		e.cars = append(e.cars, &car{
			object:    p.Object,
			direction: p.Direction,
			cells:     p.Cells,
			state:     CarParked,
		})
	}

	history := []MoveHistoryEntry(nil)
	total := 0
	if e.state != nil {
		history = e.state.MoveHistory
		total = e.state.TotalMoves
	}
	e.state = &GameState{
		Width:        e.config.Width,
		Height:       e.config.Height,
		Message:      e.messages.Welcome,
		ConfigName:   e.config.Name,
		TotalCars:    len(e.cars),
		MoveHistory:  history,
		TotalMoves:   total,
		CurrentMoves: []MoveHistoryEntry{},
	}
	e.refresh()
	return nil
}

// GetState returns the current game state
func (e *GameEngine) GetState() *GameState {
	return e.state
}

// Reset restarts the level. Cumulative history survives and records the reset.
func (e *GameEngine) Reset() *GameState {
	if err := e.load(); err != nil {
		// The config validated when it was set, so it still builds.
		panic(fmt.Sprintf("engine: reloading %q: %v", e.config.Name, err))
	}

	entry := e.newEntry(ActionReset, grid.Coordinate{}, ActionResult{Success: true, Message: e.state.Message})
	e.state.MoveHistory = append(e.state.MoveHistory, entry)
	e.state.TotalMoves++
	return e.state
}

// IsGameOver returns whether the game is over
func (e *GameEngine) IsGameOver() bool {
	return e.state.GameOver
}

// IsVictory returns whether every car has left
func (e *GameEngine) IsVictory() bool {
	return e.state.Victory
}

// GetConfig returns the current level configuration
func (e *GameEngine) GetConfig() *LevelConfig {
	return e.config
}

// SetConfig switches level and starts it from scratch
func (e *GameEngine) SetConfig(config *LevelConfig) error {
	if err := ValidateLevelConfig(config); err != nil {
		return err
	}

	e.config = config
	e.state = nil
	if err := e.load(); err != nil {
		return err
	}
	e.state.MoveHistory = []MoveHistoryEntry{}
	return nil
}

// GetMoveHistory returns the complete move history
func (e *GameEngine) GetMoveHistory() []MoveHistoryEntry {
	return e.state.MoveHistory
}

// GetLastMove returns the last move made, or nil if no moves
func (e *GameEngine) GetLastMove() *MoveHistoryEntry {
	if len(e.state.MoveHistory) == 0 {
		return nil
	}
	return &e.state.MoveHistory[len(e.state.MoveHistory)-1]
}

// Apply performs a named action. It is what replay and bulk requests use.
func (e *GameEngine) Apply(action string, target grid.Coordinate) (ActionResult, error) {
	switch action {
	case ActionTap:
		return e.Tap(target), nil
	case ActionSelect:
		return e.Select(target), nil
	case ActionWalk:
		return e.MoveStickman(target), nil
	case ActionBoard:
		return e.BoardCar(target), nil
	case ActionReset:
		e.Reset()
		return ActionResult{Action: ActionReset, Success: true, Message: e.state.Message}, nil
	}
	return ActionResult{}, fmt.Errorf("%w: %q", ErrUnknownMove, action)
}

// Replay restarts the level and applies every recorded action in order. The
// recorded entries replace the regenerated ones so timestamps survive.
func (e *GameEngine) Replay(history []MoveHistoryEntry) error {
	e.state = nil
	if err := e.load(); err != nil {
		return err
	}
	e.state.MoveHistory = []MoveHistoryEntry{}

	for i, entry := range history {
		if _, err := e.Apply(entry.Action, entry.Target); err != nil {
			return fmt.Errorf("replaying move %d: %w", i+1, err)
		}
	}

	e.state.MoveHistory = append([]MoveHistoryEntry{}, history...)
	e.state.TotalMoves = len(history)
	current := []MoveHistoryEntry{}
	for _, entry := range history {
		if entry.Action == ActionReset {
			current = current[:0]
			continue
		}
		current = append(current, entry)
	}
	e.state.CurrentMoves = current
	e.state.CurrentMovesCount = len(current)
	return nil
}

// Resolve classifies what is at c
func (e *GameEngine) Resolve(c grid.Coordinate) Hit {
	return ResolveHit(e.board, c)
}

// FindPath searches the walking grid as it is right now. The cell at start
// does not block its own walker.
func (e *GameEngine) FindPath(start, target grid.Coordinate) (pathfind.Result, error) {
	e.walk.ApplyOccupancy(e.board)
	return e.walker.FindPath(start, target)
}

// IsSpaceAvailable reports whether span free cells run from origin along dir.
func (e *GameEngine) IsSpaceAvailable(origin grid.Coordinate, dir grid.Direction, span int) bool {
	return e.board.IsSpaceAvailable(origin, dir, span)
}

// ApproachCells lists where a stickman can stand to board the car at c
func (e *GameEngine) ApproachCells(c grid.Coordinate) []grid.Coordinate {
	return e.board.ApproachCells(c)
}

// Board exposes the placement grid for read-only inspection
func (e *GameEngine) Board() *board.Board {
	return e.board
}

func (e *GameEngine) findCar(id string) (*car, error) {
	for _, c := range e.cars {
		if c.object.ID.String() == id {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrCarNotFound, id)
}

// CarAt returns the ID of the car covering c
func (e *GameEngine) CarAt(c grid.Coordinate) (string, error) {
	hit := e.Resolve(c)
	if hit.Kind != HitCar {
		return "", fmt.Errorf("%w: %v holds %s", ErrNotACar, c, hit.Kind)
	}
	return hit.Object.ID.String(), nil
}

// refresh rebuilds the derived client view of the board
func (e *GameEngine) refresh() {
	s := e.state
	s.Grid = make([][]CellView, e.board.Height())
	for y := range s.Grid {
		s.Grid[y] = make([]CellView, e.board.Width())
		for x := range s.Grid[y] {
			cell := e.board.Cell(grid.C(x, y))
			if cell.Empty() {
				continue
			}
			s.Grid[y][x] = CellView{
				Kind:      cell.Object.Kind,
				Color:     cell.Object.Color,
				ObjectID:  cell.Object.ID.String(),
				Direction: cell.Direction,
			}
		}
	}

	s.Stickmen = []StickmanStatus{}
	for _, p := range e.board.Placements() {
		if p.Object.Kind != board.Stickman {
			continue
		}
		s.Stickmen = append(s.Stickmen, StickmanStatus{
			ID:       p.Object.ID.String(),
			Color:    p.Object.Color,
			Position: p.Origin,
			Selected: e.selected != nil && *e.selected == p.Origin,
		})
	}

	s.Cars = make([]CarStatus, 0, len(e.cars))
	for _, c := range e.cars {
		s.Cars = append(s.Cars, CarStatus{
			ID:         c.object.ID.String(),
			Kind:       c.object.Kind,
			Color:      c.object.Color,
			Direction:  c.direction,
			Cells:      c.cells,
			State:      c.state,
			ExitOrder:  c.exitOrder,
			ExitVia:    c.exitVia,
			Route:      c.route,
			PassedGate: c.passedGate,
		})
	}

	if e.selected != nil {
		sel := *e.selected
		s.Selected = &sel
	} else {
		s.Selected = nil
	}
	s.CarsExited = e.exited
	s.TotalCars = len(e.cars)
}
