package service

import (
	"context"
	"errors"
	"time"

	"github.com/wricardo/mcp-training/carpark/game/engine"
	"github.com/wricardo/mcp-training/carpark/game/grid"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrConfigNotFound  = errors.New("configuration not found")
	ErrInvalidRequest  = errors.New("invalid request")
)

// GameService defines all game-related operations
type GameService interface {
	// Session Management
	CreateSession(ctx context.Context, configName string) (*SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	ListSessions(ctx context.Context) ([]*SessionInfo, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Game Operations
	Tap(ctx context.Context, sessionID string, target grid.Coordinate) (*ActionResponse, error)
	BulkTap(ctx context.Context, sessionID string, targets []grid.Coordinate, reset bool) (*BulkTapResult, error)
	Select(ctx context.Context, sessionID string, at grid.Coordinate) (*ActionResponse, error)
	MoveStickman(ctx context.Context, sessionID string, from *grid.Coordinate, target grid.Coordinate) (*ActionResponse, error)
	BoardCar(ctx context.Context, sessionID string, from *grid.Coordinate, car grid.Coordinate) (*ActionResponse, error)
	Reset(ctx context.Context, sessionID string) (*engine.GameState, error)

	// Queries
	FindPath(ctx context.Context, sessionID string, start, target grid.Coordinate) (*PathResponse, error)
	CheckSpace(ctx context.Context, sessionID string, req SpaceRequest) (*SpaceResponse, error)
	CarRoute(ctx context.Context, sessionID, carID string) (*CarRouteResponse, error)

	// Game State
	GetGameState(ctx context.Context, sessionID string) (*engine.GameState, error)
	GetMoveHistory(ctx context.Context, sessionID string, opts HistoryOptions) (*HistoryResponse, error)

	// Configuration
	ListConfigs(ctx context.Context) ([]*ConfigInfo, error)
	LoadConfig(ctx context.Context, configName string) (*engine.LevelConfig, error)
	SaveConfig(ctx context.Context, configName string, config *engine.LevelConfig) error
}

// SessionManager defines session storage operations
type SessionManager interface {
	Create(id, configID string, config *engine.LevelConfig) (*Session, error)
	Get(id string) (*Session, error)
	GetOrCreate(id, configID string, config *engine.LevelConfig) (*Session, error)
	List() []*Session
	Delete(id string) error
	UpdateLastAccessed(id string) error
	Save(id string) error
}

// ConfigManager handles level loading
type ConfigManager interface {
	LoadConfig(name string) (*engine.LevelConfig, error)
	ListConfigs() ([]*ConfigInfo, error)
	GetDefault() *engine.LevelConfig
	DefaultID() string
	SaveConfig(name string, config *engine.LevelConfig) error
}

// Session represents an active game session. ConfigID is the level file the
// session was started from.
type Session struct {
	ID             string
	ConfigID       string
	Engine         *engine.GameEngine
	Config         *engine.LevelConfig
	CreatedAt      time.Time
	LastAccessedAt time.Time
}
