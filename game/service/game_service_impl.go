package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wricardo/mcp-training/carpark/game/engine"
	"github.com/wricardo/mcp-training/carpark/game/grid"
)

// gameServiceImpl implements the GameService interface
type gameServiceImpl struct {
	sessions SessionManager
	configs  ConfigManager
	log      logrus.FieldLogger
	mu       sync.RWMutex
}

// NewGameService creates a new game service instance
func NewGameService(sessions SessionManager, configs ConfigManager, log logrus.FieldLogger) GameService {
	return &gameServiceImpl{
		sessions: sessions,
		configs:  configs,
		log:      log,
	}
}

// CreateSession creates a new game session
func (s *gameServiceImpl) CreateSession(ctx context.Context, configName string) (*SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Load configuration
	var config *engine.LevelConfig
	configID := configName
	if configName != "" {
		var err error
		config, err = s.configs.LoadConfig(configName)
		if err != nil {
			if errors.Is(err, ErrConfigNotFound) {
				return nil, s.notFoundWithChoices(configName)
			}
			return nil, fmt.Errorf("failed to load config %s: %w", configName, err)
		}
	} else {
		config = s.configs.GetDefault()
		configID = s.configs.DefaultID()
	}

	// Let session manager generate a proper 4-character ID
	session, err := s.sessions.Create("", configID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.log.WithFields(logrus.Fields{"session": session.ID, "level": configID}).Info("session created")
	return sessionInfo(session), nil
}

func (s *gameServiceImpl) notFoundWithChoices(configName string) error {
	available, err := s.configs.ListConfigs()
	if err != nil || len(available) == 0 {
		return fmt.Errorf("%w: '%s'. Use /api/configs to list available levels", ErrConfigNotFound, configName)
	}
	ids := make([]string, 0, len(available))
	for _, cfg := range available {
		ids = append(ids, cfg.ConfigID)
	}
	return fmt.Errorf("%w: '%s'. Available levels: %s", ErrConfigNotFound, configName, strings.Join(ids, ", "))
}

// GetSession retrieves session information
func (s *gameServiceImpl) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	return sessionInfo(session), nil
}

// ListSessions returns all active sessions
func (s *gameServiceImpl) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := s.sessions.List()
	result := make([]*SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, sessionInfo(sess))
	}
	return result, nil
}

// DeleteSession removes a session
func (s *gameServiceImpl) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sessions.Delete(sessionID); err != nil {
		return err
	}
	s.log.WithField("session", sessionID).Info("session deleted")
	return nil
}

// Tap resolves and performs a tap at target
func (s *gameServiceImpl) Tap(ctx context.Context, sessionID string, target grid.Coordinate) (*ActionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	res := sess.Engine.Tap(target)
	s.save(sessionID, "tap")
	return respond(sess, res), nil
}

// BulkTap performs taps in order and stops at the first one that fails or
// when the level is over.
func (s *gameServiceImpl) BulkTap(ctx context.Context, sessionID string, targets []grid.Coordinate, reset bool) (*BulkTapResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	result := &BulkTapResult{
		RequestedTaps: len(targets),
		Success:       true,
		Results:       []engine.ActionResult{},
		Events:        []GameEvent{},
	}

	if reset {
		sess.Engine.Reset()
		result.Events = append(result.Events, GameEvent{
			Type:      "reset",
			Message:   "Level reset to its initial layout",
			Timestamp: time.Now(),
		})
	}

	// Limit taps to prevent abuse
	if len(targets) > engine.MaxBulkTaps {
		result.Truncated = true
		result.Limit = engine.MaxBulkTaps
		targets = targets[:engine.MaxBulkTaps]
	}

	for i, target := range targets {
		if sess.Engine.IsGameOver() {
			result.StoppedReason = "game_over"
			result.StoppedOnTap = i + 1
			break
		}

		res := sess.Engine.Tap(target)
		result.Results = append(result.Results, res)
		result.TapsExecuted++
		result.Events = append(result.Events, eventsFor(res, sess.Engine.GetState())...)

		if !res.Success {
			result.Success = false
			result.StoppedReason = res.Message
			result.StoppedOnTap = i + 1
			break
		}
	}

	state := sess.Engine.GetState()
	result.GameState = state
	result.GameOver = state.GameOver
	result.Message = state.Message

	s.save(sessionID, "bulk tap")
	return result, nil
}

// Select picks the stickman at c, or clears the selection if it is the
// selected one.
func (s *gameServiceImpl) Select(ctx context.Context, sessionID string, at grid.Coordinate) (*ActionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	res := sess.Engine.Select(at)
	s.save(sessionID, "select")
	return respond(sess, res), nil
}

// MoveStickman walks a stickman to target. When from is given that stickman
// is selected first.
func (s *gameServiceImpl) MoveStickman(ctx context.Context, sessionID string, from *grid.Coordinate, target grid.Coordinate) (*ActionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	defer s.save(sessionID, "walk")

	if res, ok := ensureSelected(sess, from); !ok {
		return respond(sess, res), nil
	}
	return respond(sess, sess.Engine.MoveStickman(target)), nil
}

// BoardCar sends a stickman to the car at c. When from is given that stickman
// is selected first.
func (s *gameServiceImpl) BoardCar(ctx context.Context, sessionID string, from *grid.Coordinate, c grid.Coordinate) (*ActionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	defer s.save(sessionID, "board")

	if res, ok := ensureSelected(sess, from); !ok {
		return respond(sess, res), nil
	}
	return respond(sess, sess.Engine.BoardCar(c)), nil
}

// ensureSelected selects from unless it already is the selection
func ensureSelected(sess *Session, from *grid.Coordinate) (engine.ActionResult, bool) {
	if from == nil {
		return engine.ActionResult{}, true
	}
	if sel := sess.Engine.GetState().Selected; sel != nil && *sel == *from {
		return engine.ActionResult{}, true
	}
	res := sess.Engine.Select(*from)
	return res, res.Success
}

// Reset resets a game session to initial state
func (s *gameServiceImpl) Reset(ctx context.Context, sessionID string) (*engine.GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	state := sess.Engine.Reset()
	s.save(sessionID, "reset")
	return state, nil
}

// FindPath reports the walking route between two cells as the board is now
func (s *gameServiceImpl) FindPath(ctx context.Context, sessionID string, start, target grid.Coordinate) (*PathResponse, error) {
	// The search writes occupancy into the walk graph
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	found, err := sess.Engine.FindPath(start, target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return &PathResponse{Start: start, Target: target, Result: found}, nil
}

// CheckSpace reports whether req.Span free cells run from req.Origin
func (s *gameServiceImpl) CheckSpace(ctx context.Context, sessionID string, req SpaceRequest) (*SpaceResponse, error) {
	dir, err := grid.ParseDirection(req.Direction)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.Span < 1 {
		return nil, fmt.Errorf("%w: span must be at least 1, got %d", ErrInvalidRequest, req.Span)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	return &SpaceResponse{
		Origin:    req.Origin,
		Direction: dir,
		Span:      req.Span,
		Available: sess.Engine.IsSpaceAvailable(req.Origin, dir, req.Span),
	}, nil
}

// CarRoute describes how a car would leave now, or how it left
func (s *gameServiceImpl) CarRoute(ctx context.Context, sessionID, carID string) (*CarRouteResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	var status *engine.CarStatus
	for _, c := range sess.Engine.GetState().Cars {
		if c.ID == carID {
			c := c
			status = &c
			break
		}
	}
	if status == nil {
		return nil, fmt.Errorf("%w: %s", engine.ErrCarNotFound, carID)
	}

	resp := &CarRouteResponse{CarID: carID, State: status.State}
	if status.State != engine.CarExited {
		lane, err := sess.Engine.ExitLane(carID)
		if err != nil {
			return nil, err
		}
		resp.Lane = &lane
		if status.State == engine.CarParked {
			resp.Approach = sess.Engine.ApproachCells(status.Cells[0])
		}
	}

	route, err := sess.Engine.RoadRoute(carID)
	if err != nil {
		return nil, err
	}
	resp.Route = route.Path
	resp.Found = route.Found
	return resp, nil
}

// GetGameState retrieves the current game state
func (s *gameServiceImpl) GetGameState(ctx context.Context, sessionID string) (*engine.GameState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Engine.GetState(), nil
}

// GetMoveHistory retrieves paginated move history
func (s *gameServiceImpl) GetMoveHistory(ctx context.Context, sessionID string, opts HistoryOptions) (*HistoryResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionNotFound, err)
	}

	history := sess.Engine.GetMoveHistory()
	total := len(history)

	// Apply defaults
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}
	if opts.Order == "" {
		opts.Order = "desc"
	}

	// Calculate pagination
	totalPages := (total + opts.Limit - 1) / opts.Limit
	if totalPages == 0 {
		totalPages = 1
	}

	start := (opts.Page - 1) * opts.Limit
	end := start + opts.Limit
	if end > total {
		end = total
	}

	var moves []engine.MoveHistoryEntry
	if opts.Order == "desc" {
		// Most recent first
		for i := total - 1 - start; i >= 0 && i >= total-end; i-- {
			moves = append(moves, history[i])
		}
	} else if start < total {
		moves = history[start:end]
	}

	if moves == nil {
		moves = []engine.MoveHistoryEntry{}
	}

	return &HistoryResponse{
		Moves:       moves,
		TotalMoves:  total,
		Page:        opts.Page,
		PageSize:    opts.Limit,
		TotalPages:  totalPages,
		HasNext:     opts.Page < totalPages,
		HasPrevious: opts.Page > 1,
	}, nil
}

// ListConfigs returns available levels
func (s *gameServiceImpl) ListConfigs(ctx context.Context) ([]*ConfigInfo, error) {
	return s.configs.ListConfigs()
}

// LoadConfig loads a specific level
func (s *gameServiceImpl) LoadConfig(ctx context.Context, configName string) (*engine.LevelConfig, error) {
	return s.configs.LoadConfig(configName)
}

// SaveConfig saves a level to disk
func (s *gameServiceImpl) SaveConfig(ctx context.Context, configName string, config *engine.LevelConfig) error {
	if err := s.configs.SaveConfig(configName, config); err != nil {
		return err
	}
	s.log.WithField("level", configName).Info("level saved")
	return nil
}

// session looks a session up and marks it accessed
func (s *gameServiceImpl) session(id string) (*Session, error) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrSessionNotFound, err)
	}
	if err := s.sessions.UpdateLastAccessed(id); err != nil {
		s.log.WithField("session", id).WithError(err).Debug("could not update last access")
	}
	return sess, nil
}

// save persists a session after a mutation. Failures are logged, the action
// itself already happened.
func (s *gameServiceImpl) save(id, after string) {
	if err := s.sessions.Save(id); err != nil {
		s.log.WithFields(logrus.Fields{"session": id, "after": after}).WithError(err).Warn("failed to persist session")
	}
}

func sessionInfo(sess *Session) *SessionInfo {
	return &SessionInfo{
		ID:             sess.ID,
		ConfigName:     sess.ConfigID,
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: sess.LastAccessedAt,
		GameState:      sess.Engine.GetState(),
		GameConfig:     sess.Config,
	}
}

func respond(sess *Session, res engine.ActionResult) *ActionResponse {
	state := sess.Engine.GetState()
	return &ActionResponse{
		Success:   res.Success,
		Result:    res,
		GameState: state,
		Message:   res.Message,
		Events:    eventsFor(res, state),
	}
}

// eventsFor turns one action result into the events clients animate
func eventsFor(res engine.ActionResult, state *engine.GameState) []GameEvent {
	if !res.Success {
		return nil
	}
	now := time.Now()
	events := []GameEvent{}

	at := res.Hit.Coordinate
	kind := ""
	switch {
	case res.Action == engine.ActionSelect, res.Action == engine.ActionTap && res.Hit.Kind == engine.HitStickman:
		kind = "select"
	case res.Action == engine.ActionWalk, res.Action == engine.ActionTap && res.Hit.Kind == engine.HitGround:
		kind = "walk"
	case res.Action == engine.ActionBoard, res.Action == engine.ActionTap && res.Hit.Kind == engine.HitCar:
		kind = "board"
	}
	if kind != "" {
		ev := GameEvent{Type: kind, Message: res.Message, Timestamp: now, Position: &at}
		if kind == "board" && res.Hit.Object != nil {
			ev.CarID = res.Hit.Object.ID.String()
		}
		events = append(events, ev)
	}

	for _, id := range res.Departed {
		events = append(events, GameEvent{
			Type:      "car_exited",
			Message:   fmt.Sprintf("Car %s left the lot", id),
			Timestamp: now,
			CarID:     id,
		})
	}

	if state.Victory && len(res.Departed) > 0 {
		events = append(events, GameEvent{
			Type:      "victory",
			Message:   state.Message,
			Timestamp: now,
		})
	}
	return events
}
