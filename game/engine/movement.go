package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/wricardo/mcp-training/carpark/game/grid"
	"github.com/wricardo/mcp-training/carpark/game/pathfind"
)

// ErrCarExited is returned for lane queries about a car that already left
var ErrCarExited = errors.New("car has already left")

const (
	msgLevelOver     = "The level is over. Reset to play again."
	msgSelectFirst   = "Select a stickman first."
	msgNothingThere  = "Nothing there."
	msgNotAStickman  = "Only stickmen can be selected."
	msgNotACar       = "That is not a car."
	msgCarTaken      = "That car already has a driver."
	msgSelectionGone = "Selection cleared."
)

// Lane is how a car would leave the lot right now
type Lane struct {
	CarID     string          `json:"car_id"`
	Direction grid.Direction  `json:"direction"`
	Forward   bool            `json:"forward"`
	Clear     bool            `json:"clear"`
	Entry     grid.Coordinate `json:"entry"`
}

// Tap resolves what is at c and does what a tap there means: select a
// stickman, walk the selected stickman to free ground or board a car.
func (e *GameEngine) Tap(c grid.Coordinate) ActionResult {
	hit := e.Resolve(c)

	var res ActionResult
	switch {
	case e.state.GameOver:
		res = failed(msgLevelOver)
	case hit.Kind == HitStickman:
		res = e.selectStickman(hit)
	case hit.Kind == HitGround:
		res = e.walkTo(hit.Coordinate)
	case hit.Kind == HitCar:
		res = e.boardCar(hit)
	case hit.Kind == HitObstacle:
		res = failed(e.messages.Blocked)
	default:
		res = failed(msgNothingThere)
	}

	res.Action = ActionTap
	res.Hit = hit
	e.record(ActionTap, c, res)
	return res
}

// Select picks the stickman at c. Selecting the selected stickman again
// clears the selection.
func (e *GameEngine) Select(c grid.Coordinate) ActionResult {
	hit := e.Resolve(c)

	res := failed(msgLevelOver)
	if !e.state.GameOver {
		res = e.selectStickman(hit)
	}

	res.Action = ActionSelect
	res.Hit = hit
	e.record(ActionSelect, c, res)
	return res
}

// MoveStickman walks the selected stickman to target
func (e *GameEngine) MoveStickman(target grid.Coordinate) ActionResult {
	hit := e.Resolve(target)

	res := failed(msgLevelOver)
	if !e.state.GameOver {
		res = e.walkTo(target)
	}

	res.Action = ActionWalk
	res.Hit = hit
	e.record(ActionWalk, target, res)
	return res
}

// BoardCar sends the selected stickman to the car at c
func (e *GameEngine) BoardCar(c grid.Coordinate) ActionResult {
	hit := e.Resolve(c)

	res := failed(msgLevelOver)
	if !e.state.GameOver {
		res = e.boardCar(hit)
	}

	res.Action = ActionBoard
	res.Hit = hit
	e.record(ActionBoard, c, res)
	return res
}

func (e *GameEngine) selectStickman(hit Hit) ActionResult {
	if hit.Kind != HitStickman {
		return failed(msgNotAStickman)
	}
	if e.selected != nil && *e.selected == hit.Coordinate {
		e.selected = nil
		return ActionResult{Success: true, Message: msgSelectionGone}
	}

	c := hit.Coordinate
	e.selected = &c
	return ActionResult{
		Success: true,
		Message: fmt.Sprintf("Selected the %s stickman at %v.", hit.Object.Color, c),
	}
}

func (e *GameEngine) walkTo(target grid.Coordinate) ActionResult {
	if e.selected == nil {
		return failed(msgSelectFirst)
	}
	from := *e.selected
	if !e.board.InBounds(target) || e.board.IsOccupied(target) {
		return failed(e.messages.Blocked)
	}

	found, err := e.FindPath(from, target)
	if err != nil {
		return failed(err.Error())
	}
	if !found.Found {
		return noPath(e.messages.NoPath, found)
	}

	p, _ := e.board.At(from)
	e.board.Clear(from)
	if _, err := e.board.Place(target, p.Direction, p.Object); err != nil {
		// target was checked free above
		panic(fmt.Sprintf("engine: moving stickman to %v: %v", target, err))
	}
	e.selected = &target

	res := ActionResult{
		Success: true,
		Path:    found.Path,
		Message: fmt.Sprintf(e.messages.Moved, len(found.Path)),
	}
	e.depart(&res)
	return res
}

func (e *GameEngine) boardCar(hit Hit) ActionResult {
	if e.selected == nil {
		return failed(msgSelectFirst)
	}
	if hit.Kind != HitCar {
		return failed(msgNotACar)
	}
	c, err := e.findCar(hit.Object.ID.String())
	if err != nil {
		return failed(err.Error())
	}
	if c.state != CarParked {
		return failed(msgCarTaken)
	}

	from := *e.selected
	passenger, _ := e.board.At(from)
	if passenger.Object.Color != c.object.Color {
		return failed(e.messages.WrongColor)
	}

	// The passenger's own cell counts as an approach cell.
	e.board.Clear(from)
	approach := e.board.ApproachCells(hit.Coordinate)
	if _, err := e.board.Place(from, passenger.Direction, passenger.Object); err != nil {
		panic(fmt.Sprintf("engine: restoring stickman at %v: %v", from, err))
	}
	if len(approach) == 0 {
		return failed(e.messages.NoApproach)
	}

	var route []grid.Coordinate
	reached := false
	var last pathfind.Result
	for _, a := range approach {
		if a == from {
			reached = true
			break
		}
		found, err := e.FindPath(from, a)
		if err != nil {
			return failed(err.Error())
		}
		if found.Found {
			route = found.Path
			reached = true
			break
		}
		last = found
	}
	if !reached {
		return noPath(e.messages.NoPath, last)
	}

	e.board.Clear(from)
	e.selected = nil
	c.state = CarReady
	e.queue = append(e.queue, c)

	res := ActionResult{
		Success: true,
		Path:    route,
		Message: e.messages.Boarded,
	}
	e.depart(&res)
	return res
}

// depart lets waiting cars go and folds the outcome into res
func (e *GameEngine) depart(res *ActionResult) {
	gone := e.DepartReadyCars()
	if len(gone) == 0 {
		return
	}
	res.Departed = gone
	if e.state.Victory {
		res.Message = fmt.Sprintf(e.messages.Victory, len(e.cars))
		return
	}
	res.Message = fmt.Sprintf(e.messages.CarExited, len(e.cars)-e.exited)
}

// DepartReadyCars drives off every ready car whose lane is clear, in the
// order they became ready. A departure can clear another car's lane, so the
// queue is retried until nothing moves. It returns the IDs that left.
func (e *GameEngine) DepartReadyCars() []string {
	var gone []string
	for {
		progressed := false
		waiting := e.queue[:0]
		for _, c := range e.queue {
			if e.tryDepart(c) {
				gone = append(gone, c.object.ID.String())
				progressed = true
				continue
			}
			waiting = append(waiting, c)
		}
		e.queue = waiting
		if !progressed {
			break
		}
	}

	if len(e.cars) > 0 && e.exited == len(e.cars) {
		e.state.Victory = true
		e.state.GameOver = true
	}
	return gone
}

func (e *GameEngine) tryDepart(c *car) bool {
	lane := e.lane(c)
	if !lane.Clear {
		return false
	}
	route, err := e.roadRoute(lane)
	if err != nil || !route.Found {
		return false
	}

	e.board.Clear(c.cells[0])
	e.exited++
	c.state = CarExited
	c.exitOrder = e.exited
	c.exitVia = lane.Direction
	c.route = append([]grid.Coordinate{lane.Entry}, route.Path...)
	if gate, ok := e.road.GateCoordinate(); ok {
		for _, step := range c.route {
			if step == gate {
				c.passedGate = true
				break
			}
		}
	}
	return true
}

// ExitLane reports which way the car would leave and whether that way is free
func (e *GameEngine) ExitLane(carID string) (Lane, error) {
	c, err := e.findCar(carID)
	if err != nil {
		return Lane{}, err
	}
	if c.state == CarExited {
		return Lane{}, fmt.Errorf("%w: %s", ErrCarExited, carID)
	}
	return e.lane(c), nil
}

// RoadRoute is the ring road route from the car's lane entry to the end of
// the exit tail. A car that already left reports the route it took.
func (e *GameEngine) RoadRoute(carID string) (pathfind.Result, error) {
	c, err := e.findCar(carID)
	if err != nil {
		return pathfind.Result{}, err
	}
	if c.state == CarExited {
		return pathfind.Result{Path: c.route, Found: true}, nil
	}
	return e.roadRoute(e.lane(c))
}

func (e *GameEngine) roadRoute(lane Lane) (pathfind.Result, error) {
	end, ok := e.road.TailEnd()
	if !ok {
		end = grid.C(0, 0)
	}
	return e.driver.FindPath(lane.Entry, end)
}

// lane checks forward from the front end first, then backward from the rear.
func (e *GameEngine) lane(c *car) Lane {
	front := c.cells[len(c.cells)-1]
	rear := c.cells[0]
	id := c.object.ID.String()

	if e.runClear(front, c.direction) {
		return Lane{CarID: id, Direction: c.direction, Forward: true, Clear: true, Entry: e.roadEntry(front, c.direction)}
	}
	back := c.direction.Opposite()
	if e.runClear(rear, back) {
		return Lane{CarID: id, Direction: back, Forward: false, Clear: true, Entry: e.roadEntry(rear, back)}
	}
	return Lane{CarID: id, Direction: c.direction, Forward: true, Clear: false, Entry: e.roadEntry(front, c.direction)}
}

// runClear reports whether every cell past from along dir up to the edge is free
func (e *GameEngine) runClear(from grid.Coordinate, dir grid.Direction) bool {
	step := dir.Delta()
	for p := from.Add(step); e.board.InBounds(p); p = p.Add(step) {
		if e.board.IsOccupied(p) {
			return false
		}
	}
	return true
}

// roadEntry maps a level cell and heading to the ring coordinate where the
// car joins the road. Ring coordinate (x+1, y+1) borders level cell (x, y).
func (e *GameEngine) roadEntry(c grid.Coordinate, dir grid.Direction) grid.Coordinate {
	switch dir {
	case grid.Right:
		return grid.C(e.config.Width+1, c.Y+1)
	case grid.Left:
		return grid.C(0, c.Y+1)
	case grid.Up:
		return grid.C(c.X+1, 0)
	default:
		return grid.C(c.X+1, e.config.Height+1)
	}
}

func (e *GameEngine) newEntry(action string, target grid.Coordinate, res ActionResult) MoveHistoryEntry {
	return MoveHistoryEntry{
		Action:     action,
		Target:     target,
		Hit:        res.Hit.Kind,
		Path:       res.Path,
		Success:    res.Success,
		Message:    res.Message,
		Timestamp:  time.Now().Unix(),
		MoveNumber: e.state.TotalMoves + 1,
	}
}

// record adds an action to both histories and refreshes the client view
func (e *GameEngine) record(action string, target grid.Coordinate, res ActionResult) {
	entry := e.newEntry(action, target, res)
	e.state.MoveHistory = append(e.state.MoveHistory, entry)
	e.state.TotalMoves++
	e.state.CurrentMoves = append(e.state.CurrentMoves, entry)
	e.state.CurrentMovesCount++

	e.state.Message = res.Message
	e.state.LastPath = res.Path
	e.state.Furthest = res.Furthest
	e.refresh()
}

func failed(message string) ActionResult {
	return ActionResult{Success: false, Message: message}
}

func noPath(message string, r pathfind.Result) ActionResult {
	res := failed(message)
	if r.HasFurthest {
		f := r.Furthest
		res.Furthest = &f
		res.Message = fmt.Sprintf("%s Got as far as %v.", message, f)
	}
	return res
}
