package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/wricardo/mcp-training/carpark/game/board"
	"github.com/wricardo/mcp-training/carpark/game/grid"
	"github.com/wricardo/mcp-training/carpark/game/pathfind"
)

// ErrInvalidLevel prefixes every validation failure
var ErrInvalidLevel = errors.New("config validation")

// objectNamespace scopes the IDs derived for level objects
var objectNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/wricardo/mcp-training/carpark/objects"))

// ObjectID is the ID of the index-th object of the named level. The same
// level always yields the same IDs, so car IDs survive resets, replays and
// server restarts.
func ObjectID(levelName string, index int) uuid.UUID {
	return uuid.NewSHA1(objectNamespace, []byte(fmt.Sprintf("%s/%d", levelName, index)))
}

// ValidateLevelConfig validates a level for correctness and winnability
func ValidateLevelConfig(config *LevelConfig) error {
	if config == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidLevel)
	}

	// Validate required fields
	if config.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidLevel)
	}
	if config.Description == "" {
		return fmt.Errorf("%w: description is required", ErrInvalidLevel)
	}

	// Validate grid size
	if config.Width < MinGridSize || config.Width > MaxGridSize {
		return fmt.Errorf("%w: width must be between %d and %d, got %d", ErrInvalidLevel, MinGridSize, MaxGridSize, config.Width)
	}
	if config.Height < MinGridSize || config.Height > MaxGridSize {
		return fmt.Errorf("%w: height must be between %d and %d, got %d", ErrInvalidLevel, MinGridSize, MaxGridSize, config.Height)
	}
	if config.ExitTail < 0 {
		return fmt.Errorf("%w: exit_tail must not be negative, got %d", ErrInvalidLevel, config.ExitTail)
	}
	if config.Costs != nil && (config.Costs.Straight <= 0 || config.Costs.Diagonal <= 0) {
		return fmt.Errorf("%w: costs must be positive, got %+v", ErrInvalidLevel, *config.Costs)
	}
	if len(config.Objects) > MaxObjects {
		return fmt.Errorf("%w: at most %d objects allowed, got %d", ErrInvalidLevel, MaxObjects, len(config.Objects))
	}

	// Placing every object checks kinds, colors, bounds and overlaps
	b, err := buildBoard(config)
	if err != nil {
		return err
	}

	cars := map[board.Color]int{}
	stickmen := map[board.Color]int{}
	for _, p := range b.Placements() {
		switch {
		case p.Object.Kind.IsCar():
			cars[p.Object.Color]++
		case p.Object.Kind == board.Stickman:
			stickmen[p.Object.Color]++
		}
	}
	if len(cars) == 0 {
		return fmt.Errorf("%w: level must contain at least one car", ErrInvalidLevel)
	}

	// Validate winnability - every car needs a passenger of its color
	for _, color := range board.Colors {
		if cars[color] > stickmen[color] {
			return fmt.Errorf("%w: %d %s car(s) but only %d %s stickman/stickmen", ErrInvalidLevel,
				cars[color], color, stickmen[color], color)
		}
	}

	// Validate messages
	if config.Messages.Welcome == "" {
		return fmt.Errorf("%w: messages.welcome is required", ErrInvalidLevel)
	}
	if config.Messages.Victory == "" {
		return fmt.Errorf("%w: messages.victory is required", ErrInvalidLevel)
	}

	// Validate format strings
	countTemplates := map[string]string{
		"victory":    config.Messages.Victory,
		"moved":      config.Messages.Moved,
		"car_exited": config.Messages.CarExited,
	}
	for _, key := range []string{"victory", "moved", "car_exited"} {
		tmpl := countTemplates[key]
		if tmpl == "" {
			continue
		}
		if strings.Count(tmpl, "%d") != 1 || strings.Count(tmpl, "%") != 1 {
			return fmt.Errorf("%w: messages.%s must contain exactly one %%d", ErrInvalidLevel, key)
		}
	}

	return nil
}

// buildBoard places every configured object on a fresh board
func buildBoard(config *LevelConfig) (*board.Board, error) {
	b, err := board.NewBoard(config.Width, config.Height)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLevel, err)
	}

	for i, oc := range config.Objects {
		obj, dir, err := objectFromConfig(oc)
		if err != nil {
			return nil, fmt.Errorf("%w: objects[%d]: %v", ErrInvalidLevel, i, err)
		}
		obj.ID = ObjectID(config.Name, i)
		if _, err := b.Place(grid.C(oc.X, oc.Y), dir, obj); err != nil {
			return nil, fmt.Errorf("%w: objects[%d] %s at (%d,%d): %v", ErrInvalidLevel, i, obj.Kind, oc.X, oc.Y, err)
		}
	}
	return b, nil
}

func objectFromConfig(oc ObjectConfig) (*board.Object, grid.Direction, error) {
	kind, err := board.ParseKind(oc.Kind)
	if err != nil {
		return nil, "", err
	}

	var color board.Color
	if oc.Color != "" || kind != board.Obstacle {
		color, err = board.ParseColor(oc.Color)
		if err != nil {
			return nil, "", err
		}
	}

	dir := grid.Down
	switch {
	case oc.Direction != "":
		dir, err = grid.ParseDirection(oc.Direction)
		if err != nil {
			return nil, "", err
		}
	case kind.IsCar():
		return nil, "", fmt.Errorf("%s needs a direction", kind)
	}

	if oc.Span < 0 {
		return nil, "", fmt.Errorf("span must not be negative, got %d", oc.Span)
	}
	if kind == board.Stickman && oc.Span > 1 {
		return nil, "", fmt.Errorf("stickman span must be 1, got %d", oc.Span)
	}

	return board.NewObject(kind, color, oc.Span), dir, nil
}

// ParseLevelConfig decodes a level. ext selects YAML for ".yaml" and ".yml",
// JSON otherwise.
func ParseLevelConfig(data []byte, ext string) (*LevelConfig, error) {
	var config LevelConfig
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, err
		}
	}
	return &config, nil
}

// LoadLevelConfig loads and validates a level file
func LoadLevelConfig(filename string) (*LevelConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	config, err := ParseLevelConfig(data, filepath.Ext(filename))
	if err != nil {
		return nil, fmt.Errorf("failed to parse level file '%s': %w", filename, err)
	}

	// Validate the loaded configuration
	if err := ValidateLevelConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// DefaultLevelConfig is the level used when none is given
func DefaultLevelConfig() *LevelConfig {
	config := &LevelConfig{
		Name:        "default",
		Description: "Three cars, three passengers and a couple of cones in the way",
		Width:       6,
		Height:      6,
		Objects: []ObjectConfig{
			{Kind: "small_car", Color: "red", X: 0, Y: 0, Direction: "right"},
			{Kind: "long_car", Color: "blue", X: 5, Y: 1, Direction: "down"},
			{Kind: "small_car", Color: "yellow", X: 2, Y: 3, Direction: "up"},
			{Kind: "obstacle", X: 0, Y: 3},
			{Kind: "obstacle", X: 3, Y: 5},
			{Kind: "stickman", Color: "blue", X: 0, Y: 5},
			{Kind: "stickman", Color: "yellow", X: 1, Y: 5},
			{Kind: "stickman", Color: "red", X: 4, Y: 5},
		},
	}
	config.Messages = defaultMessages()
	return config
}

func defaultMessages() Messages {
	return Messages{
		Welcome:    "Tap a stickman, then tap the car of the same color.",
		Moved:      "Walked %d steps.",
		NoPath:     "No way through from here.",
		Boarded:    "All aboard!",
		WrongColor: "That is not your car.",
		NoApproach: "Nobody can reach that car right now.",
		CarExited:  "A car left the lot. %d to go.",
		Victory:    "Lot cleared! All %d cars are out.",
		Blocked:    "Something is in the way.",
	}
}

// withDefaults fills the optional messages a level left empty
func (m Messages) withDefaults() Messages {
	d := defaultMessages()
	fill := func(v *string, fallback string) {
		if *v == "" {
			*v = fallback
		}
	}
	fill(&m.Welcome, d.Welcome)
	fill(&m.Moved, d.Moved)
	fill(&m.NoPath, d.NoPath)
	fill(&m.Boarded, d.Boarded)
	fill(&m.WrongColor, d.WrongColor)
	fill(&m.NoApproach, d.NoApproach)
	fill(&m.CarExited, d.CarExited)
	fill(&m.Victory, d.Victory)
	fill(&m.Blocked, d.Blocked)
	return m
}

func (c *LevelConfig) exitTail() int {
	if c.ExitTail > 0 {
		return c.ExitTail
	}
	return pathfind.DefaultExitTail
}

func (c *LevelConfig) costs() pathfind.Costs {
	if c.Costs != nil {
		return *c.Costs
	}
	return pathfind.DefaultCosts
}
