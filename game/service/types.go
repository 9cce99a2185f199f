package service

import (
	"time"

	"github.com/wricardo/mcp-training/carpark/game/engine"
	"github.com/wricardo/mcp-training/carpark/game/grid"
	"github.com/wricardo/mcp-training/carpark/game/pathfind"
)

// SessionInfo provides information about a game session
type SessionInfo struct {
	ID             string              `json:"id"`
	ConfigName     string              `json:"config_name"`
	CreatedAt      time.Time           `json:"created_at"`
	LastAccessedAt time.Time           `json:"last_accessed_at"`
	GameState      *engine.GameState   `json:"game_state"`
	GameConfig     *engine.LevelConfig `json:"game_config"`
}

// ActionResponse is the outcome of one player action
type ActionResponse struct {
	Success   bool                `json:"success"`
	Result    engine.ActionResult `json:"result"`
	GameState *engine.GameState   `json:"game_state"`
	Message   string              `json:"message"`
	Events    []GameEvent         `json:"events,omitempty"`
}

// BulkTapResult contains the result of a sequence of taps
type BulkTapResult struct {
	TapsExecuted  int                   `json:"taps_executed"`
	RequestedTaps int                   `json:"requested_taps"`
	Success       bool                  `json:"success"`
	Results       []engine.ActionResult `json:"results"`
	GameState     *engine.GameState     `json:"game_state"`
	Events        []GameEvent           `json:"events"`
	StoppedReason string                `json:"stopped_reason,omitempty"`
	StoppedOnTap  int                   `json:"stopped_on_tap,omitempty"` // 1-based
	Truncated     bool                  `json:"truncated,omitempty"`
	Limit         int                   `json:"limit,omitempty"`
	GameOver      bool                  `json:"game_over"`
	Message       string                `json:"message,omitempty"`
}

// PathResponse is a walking route query
type PathResponse struct {
	Start  grid.Coordinate `json:"start"`
	Target grid.Coordinate `json:"target"`
	pathfind.Result
}

// SpaceRequest asks whether an object of Span cells fits at Origin
type SpaceRequest struct {
	Origin    grid.Coordinate `json:"origin"`
	Direction string          `json:"direction"`
	Span      int             `json:"span"`
}

// SpaceResponse answers a SpaceRequest
type SpaceResponse struct {
	Origin    grid.Coordinate `json:"origin"`
	Direction grid.Direction  `json:"direction"`
	Span      int             `json:"span"`
	Available bool            `json:"available"`
}

// CarRouteResponse is how a car leaves the lot and the road it takes
type CarRouteResponse struct {
	CarID    string            `json:"car_id"`
	State    engine.CarState   `json:"state"`
	Lane     *engine.Lane      `json:"lane,omitempty"`
	Route    []grid.Coordinate `json:"route,omitempty"`
	Found    bool              `json:"found"`
	Approach []grid.Coordinate `json:"approach,omitempty"`
}

// GameEvent represents an event that occurred during gameplay
type GameEvent struct {
	Type      string           `json:"type"` // "select", "walk", "board", "car_exited", "victory", "reset"
	Message   string           `json:"message"`
	Timestamp time.Time        `json:"timestamp"`
	Position  *grid.Coordinate `json:"position,omitempty"`
	CarID     string           `json:"car_id,omitempty"`
}

// HistoryOptions configures move history retrieval
type HistoryOptions struct {
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
	Order string `json:"order"` // "asc" or "desc"
}

// HistoryResponse contains paginated move history
type HistoryResponse struct {
	Moves       []engine.MoveHistoryEntry `json:"moves"`
	TotalMoves  int                       `json:"total_moves"`
	Page        int                       `json:"page"`
	PageSize    int                       `json:"page_size"`
	TotalPages  int                       `json:"total_pages"`
	HasNext     bool                      `json:"has_next"`
	HasPrevious bool                      `json:"has_previous"`
}

// ConfigInfo provides information about a level file
type ConfigInfo struct {
	Filename    string `json:"filename"`
	ConfigID    string `json:"config_id"` // The identifier to use for session creation
	Name        string `json:"name"`      // Display name
	Description string `json:"description"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Cars        int    `json:"cars"`
}
