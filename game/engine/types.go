package engine

import (
	"github.com/wricardo/mcp-training/carpark/game/board"
	"github.com/wricardo/mcp-training/carpark/game/grid"
	"github.com/wricardo/mcp-training/carpark/game/pathfind"
)

const (
	// Validation constants
	MinGridSize         = 2
	MaxGridSize         = 30
	MaxObjects          = 200
	MaxBulkTaps         = 50
	WebSocketBufferSize = 256
)

// ObjectConfig places one object in a level
type ObjectConfig struct {
	Kind      string `json:"kind" yaml:"kind"`
	Color     string `json:"color,omitempty" yaml:"color,omitempty"`
	X         int    `json:"x" yaml:"x"`
	Y         int    `json:"y" yaml:"y"`
	Direction string `json:"direction,omitempty" yaml:"direction,omitempty"`
	Span      int    `json:"span,omitempty" yaml:"span,omitempty"`
}

// Messages are the texts shown after each kind of outcome
type Messages struct {
	Welcome    string `json:"welcome" yaml:"welcome"`
	Moved      string `json:"moved,omitempty" yaml:"moved,omitempty"`
	NoPath     string `json:"no_path,omitempty" yaml:"no_path,omitempty"`
	Boarded    string `json:"boarded,omitempty" yaml:"boarded,omitempty"`
	WrongColor string `json:"wrong_color,omitempty" yaml:"wrong_color,omitempty"`
	NoApproach string `json:"no_approach,omitempty" yaml:"no_approach,omitempty"`
	CarExited  string `json:"car_exited,omitempty" yaml:"car_exited,omitempty"`
	Victory    string `json:"victory" yaml:"victory"`
	Blocked    string `json:"blocked,omitempty" yaml:"blocked,omitempty"`
}

// LevelConfig is a level as authored in a JSON or YAML file
type LevelConfig struct {
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description" yaml:"description"`
	Width       int             `json:"width" yaml:"width"`
	Height      int             `json:"height" yaml:"height"`
	ExitTail    int             `json:"exit_tail,omitempty" yaml:"exit_tail,omitempty"`
	Costs       *pathfind.Costs `json:"costs,omitempty" yaml:"costs,omitempty"`
	Objects     []ObjectConfig  `json:"objects" yaml:"objects"`
	Messages    Messages        `json:"messages" yaml:"messages"`
}

// CarState is where a car is in its life cycle
type CarState string

const (
	CarParked CarState = "parked"
	CarReady  CarState = "ready"
	CarExited CarState = "exited"
)

// CarStatus is the client view of one car
type CarStatus struct {
	ID         string            `json:"id"`
	Kind       board.Kind        `json:"kind"`
	Color      board.Color       `json:"color"`
	Direction  grid.Direction    `json:"direction"`
	Cells      []grid.Coordinate `json:"cells"`
	State      CarState          `json:"state"`
	ExitOrder  int               `json:"exit_order,omitempty"`
	ExitVia    grid.Direction    `json:"exit_via,omitempty"`
	Route      []grid.Coordinate `json:"route,omitempty"`
	PassedGate bool              `json:"passed_gate,omitempty"`
}

// StickmanStatus is the client view of one stickman still on the board
type StickmanStatus struct {
	ID       string          `json:"id"`
	Color    board.Color     `json:"color"`
	Position grid.Coordinate `json:"position"`
	Selected bool            `json:"selected,omitempty"`
}

// CellView is one board cell as sent to clients
type CellView struct {
	Kind      board.Kind     `json:"kind,omitempty"`
	Color     board.Color    `json:"color,omitempty"`
	ObjectID  string         `json:"object_id,omitempty"`
	Direction grid.Direction `json:"direction,omitempty"`
}

// GameState represents the complete game state
type GameState struct {
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	Grid       [][]CellView      `json:"grid"`
	Stickmen   []StickmanStatus  `json:"stickmen"`
	Cars       []CarStatus       `json:"cars"`
	Selected   *grid.Coordinate  `json:"selected,omitempty"`
	Message    string            `json:"message"`
	GameOver   bool              `json:"game_over"`
	Victory    bool              `json:"victory"`
	ConfigName string            `json:"config_name"`
	CarsExited int               `json:"cars_exited"`
	TotalCars  int               `json:"total_cars"`
	LastPath   []grid.Coordinate `json:"last_path,omitempty"`
	Furthest   *grid.Coordinate  `json:"furthest,omitempty"`

	MoveHistory []MoveHistoryEntry `json:"move_history"`
	TotalMoves  int                `json:"total_moves"`

	// CurrentMoves tracks only the moves since the last reset. It mirrors MoveHistory entries
	// but gets cleared on reset while MoveHistory remains cumulative.
	CurrentMoves      []MoveHistoryEntry `json:"current_moves"`
	CurrentMovesCount int                `json:"current_moves_count"`
}

// Action names recorded in the move history
const (
	ActionTap    = "tap"
	ActionSelect = "select"
	ActionWalk   = "walk"
	ActionBoard  = "board"
	ActionReset  = "reset"
)

// MoveHistoryEntry represents a single player action. Replaying the Action
// and Target of every entry in order reproduces the game.
type MoveHistoryEntry struct {
	Action     string            `json:"action"`
	Target     grid.Coordinate   `json:"target"`
	Hit        HitKind           `json:"hit,omitempty"`
	Path       []grid.Coordinate `json:"path,omitempty"`
	Success    bool              `json:"success"`
	Message    string            `json:"message,omitempty"`
	Timestamp  int64             `json:"timestamp"`
	MoveNumber int               `json:"move_number"`
}

// ActionResult is what one player action did
type ActionResult struct {
	Action   string            `json:"action"`
	Hit      Hit               `json:"hit"`
	Success  bool              `json:"success"`
	Path     []grid.Coordinate `json:"path,omitempty"`
	Furthest *grid.Coordinate  `json:"furthest,omitempty"`
	Departed []string          `json:"departed,omitempty"`
	Message  string            `json:"message"`
}
