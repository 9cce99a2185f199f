package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/mcp-training/carpark/game/board"
	"github.com/wricardo/mcp-training/carpark/game/engine"
	"github.com/wricardo/mcp-training/carpark/game/grid"
	"github.com/wricardo/mcp-training/carpark/game/service"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Car Park Puzzle",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Car Park Puzzle - MCP Interface

This is a thin client that proxies all requests to the REST API server.

GAME OBJECTIVE:
Every car must leave the lot. Walk each stickman to a car of its own colour;
a boarded car drives out as soon as its lane to the edge is clear.

AVAILABLE TOOLS:
- game_state: Board, cars and stickmen
- tap: Tap one cell, exactly like a player would - requires intent explanation
- bulk_tap: Several taps at once - requires intent explanation
- walk / board: Explicit stickman moves
- find_path: Walking route between two cells
- check_space: Does a span of cells fit
- car_route: How a car would leave the lot
- reset_game, move_history
- create_session, get_session, list_sessions, list_configs
- game_instructions: Full rules
- describe_cell: Everything about one cell

NOTE: The 'intent' parameter on tap/bulk_tap serves as rubber duck debugging - explain your reasoning!`),
	)

	c.registerTools()
}

func sessionProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Session ID",
	}
}

func intProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": description,
	}
}

func intentProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Brief explanation of the intent behind this action (serves as a rubber duck to help explain your reasoning)",
	}
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	// Session management
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Create a new game session with optional level selection",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"config_id": map[string]interface{}{
					"type":        "string",
					"description": "Level to play (optional, see list_configs)",
				},
			},
		},
	}, c.handleCreateSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List all active game sessions",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListSessions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_session",
		Description: "Get details of a specific session",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"session_id": sessionProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleGetSession)

	// Game operations
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "game_state",
		Description: "Get the current board, cars and stickmen",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"session_id": sessionProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleGameState)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "tap",
		Description: "Tap a cell. A stickman is selected or deselected, empty ground makes the selected stickman walk there, a car is boarded by the selected stickman.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProperty(),
				"x":          intProperty("Column (0-based)"),
				"y":          intProperty("Row (0-based)"),
				"intent":     intentProperty(),
			},
			Required: []string{"session_id", "x", "y"},
		},
	}, c.handleTap)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "bulk_tap",
		Description: fmt.Sprintf("Execute up to %d taps in sequence. Stops at the first rejected tap or when the level is cleared.", engine.MaxBulkTaps),
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProperty(),
				"taps": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"x": map[string]interface{}{"type": "integer"},
							"y": map[string]interface{}{"type": "integer"},
						},
						"required": []string{"x", "y"},
					},
					"description": "Cells to tap, in order",
				},
				"intent": intentProperty(),
				"reset": map[string]interface{}{
					"type":        "boolean",
					"description": "Reset before tapping",
				},
			},
			Required: []string{"session_id", "taps"},
		},
	}, c.handleBulkTap)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "walk",
		Description: "Walk a stickman to an empty cell. Without from_x/from_y the selected stickman walks.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProperty(),
				"to_x":       intProperty("Target column"),
				"to_y":       intProperty("Target row"),
				"from_x":     intProperty("Stickman column (optional)"),
				"from_y":     intProperty("Stickman row (optional)"),
			},
			Required: []string{"session_id", "to_x", "to_y"},
		},
	}, c.handleWalk)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "board",
		Description: "Walk a stickman to a car of its colour and board it. Without from_x/from_y the selected stickman boards.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProperty(),
				"car_x":      intProperty("Any cell of the car, column"),
				"car_y":      intProperty("Any cell of the car, row"),
				"from_x":     intProperty("Stickman column (optional)"),
				"from_y":     intProperty("Stickman row (optional)"),
			},
			Required: []string{"session_id", "car_x", "car_y"},
		},
	}, c.handleBoard)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "reset_game",
		Description: "Reset the level to its initial layout",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"session_id": sessionProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleReset)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "move_history",
		Description: "Get move history for a session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProperty(),
				"page":       intProperty("Page number"),
				"limit":      intProperty("Items per page"),
			},
			Required: []string{"session_id"},
		},
	}, c.handleMoveHistory)

	// Queries
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "find_path",
		Description: "Shortest walking route between two cells on the current board. Does not move anything.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProperty(),
				"start_x":    intProperty("Start column"),
				"start_y":    intProperty("Start row"),
				"target_x":   intProperty("Target column"),
				"target_y":   intProperty("Target row"),
			},
			Required: []string{"session_id", "start_x", "start_y", "target_x", "target_y"},
		},
	}, c.handleFindPath)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "check_space",
		Description: "Check whether span cells starting at (x,y) and extending in direction are on the board and empty",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProperty(),
				"x":          intProperty("Origin column"),
				"y":          intProperty("Origin row"),
				"direction": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"up", "down", "left", "right"},
					"description": "Direction the span extends in",
				},
				"span": intProperty("Number of cells"),
			},
			Required: []string{"session_id", "x", "y", "direction", "span"},
		},
	}, c.handleCheckSpace)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "car_route",
		Description: "Show how a car leaves the lot: its exit lane, whether the lane is clear and the road it drives",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProperty(),
				"car_id": map[string]interface{}{
					"type":        "string",
					"description": "Car ID from game_state",
				},
			},
			Required: []string{"session_id", "car_id"},
		},
	}, c.handleCarRoute)

	// Configuration
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_configs",
		Description: "List available levels",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListConfigs)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "game_instructions",
		Description: "Get comprehensive game instructions and rules",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleGameInstructions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "describe_cell",
		Description: "Get detailed information about one cell: what stands there, its colour, and the car or stickman it belongs to",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProperty(),
				"x":          intProperty("Column (0-based)"),
				"y":          intProperty("Row (0-based)"),
			},
			Required: []string{"session_id", "x", "y"},
		},
	}, c.handleDescribeCell)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error != "" {
			return fmt.Errorf("%s", errResp.Error)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func sessionPath(sessionID, suffix string) string {
	return "/api/sessions/" + url.PathEscape(sessionID) + suffix
}

// Argument helpers. JSON numbers arrive as float64.

func stringArg(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return s
}

func intArg(args map[string]interface{}, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}

func coordArg(args map[string]interface{}, xKey, yKey string) (grid.Coordinate, error) {
	x, okX := intArg(args, xKey)
	y, okY := intArg(args, yKey)
	if !okX || !okY {
		return grid.Coordinate{}, fmt.Errorf("%s and %s are required integers", xKey, yKey)
	}
	return grid.C(x, y), nil
}

// optionalCoordArg returns nil when neither key is set
func optionalCoordArg(args map[string]interface{}, xKey, yKey string) (*grid.Coordinate, error) {
	_, hasX := args[xKey]
	_, hasY := args[yKey]
	if !hasX && !hasY {
		return nil, nil
	}
	c, err := coordArg(args, xKey, yKey)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Tool handlers

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	body := map[string]string{}
	if configID := stringArg(args, "config_id"); configID != "" {
		body["config_id"] = configID
	}

	var session service.SessionInfo
	if err := c.apiCall(ctx, "POST", "/api/sessions", body, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessionInfo(&session)), nil
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count    int                   `json:"count"`
		Sessions []service.SessionInfo `json:"sessions"`
	}

	if err := c.apiCall(ctx, "GET", "/api/sessions", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Active Sessions (%d):\n\n", response.Count)
	for _, s := range response.Sessions {
		progress := ""
		if s.GameState != nil {
			progress = fmt.Sprintf(", Cars out: %d/%d", s.GameState.CarsExited, s.GameState.TotalCars)
		}
		fmt.Fprintf(&b, "- %s (Level: %s, Created: %s%s)\n",
			s.ID, s.ConfigName, s.CreatedAt.Format("15:04:05"), progress)
	}

	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := stringArg(request.GetArguments(), "session_id")

	var session service.SessionInfo
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, ""), nil, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessionInfo(&session)), nil
}

func (c *Client) handleGameState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := stringArg(request.GetArguments(), "session_id")

	var state engine.GameState
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, "/state"), nil, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatGameState(&state)), nil
}

func (c *Client) handleTap(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	sessionID := stringArg(args, "session_id")
	// intent is only there to make the caller explain itself

	target, err := coordArg(args, "x", "y")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var result service.ActionResponse
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/tap"), target, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatActionResponse(&result)), nil
}

func (c *Client) handleBulkTap(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	sessionID := stringArg(args, "session_id")
	reset, _ := args["reset"].(bool)

	raw, _ := args["taps"].([]interface{})
	taps := make([]grid.Coordinate, 0, len(raw))
	for i, item := range raw {
		tap, ok := item.(map[string]interface{})
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("tap %d must be an object with x and y", i+1)), nil
		}
		at, err := coordArg(tap, "x", "y")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("tap %d: %v", i+1, err)), nil
		}
		taps = append(taps, at)
	}

	body := map[string]interface{}{
		"taps":  taps,
		"reset": reset,
	}

	var result service.BulkTapResult
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/bulk-tap"), body, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatBulkTapResult(sessionID, &result)), nil
}

func (c *Client) handleWalk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	sessionID := stringArg(args, "session_id")

	to, err := coordArg(args, "to_x", "to_y")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	from, err := optionalCoordArg(args, "from_x", "from_y")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	body := map[string]interface{}{"to": to}
	if from != nil {
		body["from"] = from
	}

	var result service.ActionResponse
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/walk"), body, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatActionResponse(&result)), nil
}

func (c *Client) handleBoard(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	sessionID := stringArg(args, "session_id")

	car, err := coordArg(args, "car_x", "car_y")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	from, err := optionalCoordArg(args, "from_x", "from_y")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	body := map[string]interface{}{"car": car}
	if from != nil {
		body["from"] = from
	}

	var result service.ActionResponse
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/board"), body, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatActionResponse(&result)), nil
}

func (c *Client) handleReset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := stringArg(request.GetArguments(), "session_id")

	var response struct {
		Message string            `json:"message"`
		State   *engine.GameState `json:"state"`
	}

	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/reset"), nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("%s\n\n%s", response.Message, formatGameState(response.State))), nil
}

func (c *Client) handleMoveHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	sessionID := stringArg(args, "session_id")

	params := url.Values{}
	if page, ok := intArg(args, "page"); ok {
		params.Set("page", fmt.Sprint(page))
	}
	if limit, ok := intArg(args, "limit"); ok {
		params.Set("limit", fmt.Sprint(limit))
	}
	path := sessionPath(sessionID, "/history")
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var history service.HistoryResponse
	if err := c.apiCall(ctx, "GET", path, nil, &history); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatHistory(&history)), nil
}

func (c *Client) handleFindPath(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	sessionID := stringArg(args, "session_id")

	start, err := coordArg(args, "start_x", "start_y")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	target, err := coordArg(args, "target_x", "target_y")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	body := map[string]grid.Coordinate{"start": start, "target": target}

	var path service.PathResponse
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/path"), body, &path); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatPath(&path)), nil
}

func (c *Client) handleCheckSpace(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	sessionID := stringArg(args, "session_id")

	origin, err := coordArg(args, "x", "y")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	span, ok := intArg(args, "span")
	if !ok {
		return mcp.NewToolResultError("span is a required integer"), nil
	}

	body := service.SpaceRequest{
		Origin:    origin,
		Direction: stringArg(args, "direction"),
		Span:      span,
	}

	var space service.SpaceResponse
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/space"), body, &space); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	verdict := "does not fit"
	if space.Available {
		verdict = "fits"
	}
	return mcp.NewToolResultText(fmt.Sprintf("%d cell(s) from %s going %s: %s",
		space.Span, space.Origin, space.Direction, verdict)), nil
}

func (c *Client) handleCarRoute(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	sessionID := stringArg(args, "session_id")
	carID := stringArg(args, "car_id")

	var route service.CarRouteResponse
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, "/cars/"+url.PathEscape(carID)+"/route"), nil, &route); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatCarRoute(&route)), nil
}

func (c *Client) handleListConfigs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var configs []service.ConfigInfo
	if err := c.apiCall(ctx, "GET", "/api/configs", nil, &configs); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	b.WriteString("Available Levels:\n\n")
	for _, cfg := range configs {
		fmt.Fprintf(&b, "• %s (config_id: %s)\n  %s\n  Lot: %dx%d, Cars: %d\n\n",
			cfg.Name, cfg.ConfigID, cfg.Description, cfg.Width, cfg.Height, cfg.Cars)
	}

	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGameInstructions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(instructions), nil
}

const instructions = `Car Park Puzzle - Complete Instructions

GAME OBJECTIVE:
Empty the parking lot. Every car needs a driver of its own colour, and a car
with a driver leaves as soon as nothing blocks its way out.

BOARD LEGEND (game_state):
• .  - Empty ground (walkable)
• #  - Obstacle
• r g y b p o  - Stickman (lowercase colour initial)
• R G Y B P O  - Car cell (uppercase colour initial)
• *  - The selected stickman
Colours: red, green, yellow, blue, purple, orange.
Coordinates are (x,y): x is the column from the left, y the row from the top,
both starting at 0.

TAPPING:
• Tap a stickman to select it, tap it again to deselect.
• With a stickman selected, tap empty ground to walk there. Stickmen walk
  up, down, left and right, never diagonally, and never through anything.
• With a stickman selected, tap a car of the same colour to board it. The
  stickman walks to a free cell beside the far end of the car first.
• Tapping a car of another colour does nothing.

LEAVING THE LOT:
• A boarded car drives forward out of the lot if every cell in front of it
  up to the edge is empty. Otherwise it tries reversing out behind it.
• If both ways are blocked the car waits with its driver. It leaves as soon
  as another move clears its lane.
• Cars leave in the order they were boarded.

STRATEGY:
• Use car_route to see which lane a car would use and whether it is clear.
• Use find_path before a long walk; a failed walk reports the closest cell
  the stickman could reach.
• Free cars that block other lanes first.
• bulk_tap stops at the first rejected tap, so plan whole sequences.

VICTORY:
All cars have left the lot. After that every action is refused until reset.

Good luck clearing the lot!`

func (c *Client) handleDescribeCell(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	sessionID := stringArg(args, "session_id")

	at, err := coordArg(args, "x", "y")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var state engine.GameState
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, "/state"), nil, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(describeCell(&state, at)), nil
}

func describeCell(state *engine.GameState, at grid.Coordinate) string {
	if at.X < 0 || at.Y < 0 || at.X >= state.Width || at.Y >= state.Height || at.Y >= len(state.Grid) || at.X >= len(state.Grid[at.Y]) {
		return fmt.Sprintf("Cell %s is off the board. The lot is %dx%d (x 0-%d, y 0-%d).",
			at, state.Width, state.Height, state.Width-1, state.Height-1)
	}

	cell := state.Grid[at.Y][at.X]
	var b strings.Builder
	fmt.Fprintf(&b, "Cell %s: ", at)

	switch {
	case cell.Kind == "":
		b.WriteString("empty ground, walkable")
	case cell.Kind == board.Obstacle:
		b.WriteString("obstacle, blocks walking and driving")
	case cell.Kind == board.Stickman:
		fmt.Fprintf(&b, "%s stickman (id %s)", cell.Color, cell.ObjectID)
		if state.Selected != nil && *state.Selected == at {
			b.WriteString(", selected")
		}
	case cell.Kind.IsCar():
		fmt.Fprintf(&b, "%s %s facing %s (id %s)", cell.Color, cell.Kind, cell.Direction, cell.ObjectID)
		for _, car := range state.Cars {
			if car.ID == cell.ObjectID {
				fmt.Fprintf(&b, "\nCells: %s\nState: %s", formatCoords(car.Cells), car.State)
			}
		}
	default:
		fmt.Fprintf(&b, "%s", cell.Kind)
	}

	return b.String()
}

// Formatting helpers

func formatSessionInfo(session *service.SessionInfo) string {
	return fmt.Sprintf("Session: %s\nLevel: %s\nCreated: %s\n\n%s",
		session.ID, session.ConfigName,
		session.CreatedAt.Format("2006-01-02 15:04:05"),
		formatGameState(session.GameState))
}

var colorInitials = map[board.Color]byte{
	board.Red:    'r',
	board.Green:  'g',
	board.Yellow: 'y',
	board.Blue:   'b',
	board.Purple: 'p',
	board.Orange: 'o',
}

func cellChar(cell engine.CellView) byte {
	switch {
	case cell.Kind == "":
		return '.'
	case cell.Kind == board.Stickman:
		if c, ok := colorInitials[cell.Color]; ok {
			return c
		}
		return 's'
	case cell.Kind.IsCar():
		if c, ok := colorInitials[cell.Color]; ok {
			return c - 'a' + 'A'
		}
		return 'C'
	default:
		return '#'
	}
}

// renderBoard draws the lot with x increasing to the right and y downwards
func renderBoard(state *engine.GameState) string {
	var b strings.Builder
	b.WriteString("   ")
	for x := 0; x < state.Width; x++ {
		b.WriteByte(byte('0' + x%10))
	}
	b.WriteString("\n")

	for y, row := range state.Grid {
		fmt.Fprintf(&b, "%2d ", y)
		for x, cell := range row {
			if state.Selected != nil && *state.Selected == grid.C(x, y) {
				b.WriteByte('*')
				continue
			}
			b.WriteByte(cellChar(cell))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatGameState(state *engine.GameState) string {
	if state == nil {
		return "No game state available"
	}

	var b strings.Builder

	fmt.Fprintf(&b, "Level: %s | Lot: %dx%d | Cars out: %d/%d | Moves: %d\n\n",
		state.ConfigName, state.Width, state.Height, state.CarsExited, state.TotalCars, state.TotalMoves)

	b.WriteString(renderBoard(state))

	if state.Selected != nil {
		fmt.Fprintf(&b, "\nSelected: %s\n", *state.Selected)
	}

	if len(state.Cars) > 0 {
		b.WriteString("\nCars:\n")
		for _, car := range state.Cars {
			fmt.Fprintf(&b, "- %s %s %s facing %s: %s", car.ID, car.Color, car.Kind, car.Direction, car.State)
			if car.State != engine.CarExited {
				fmt.Fprintf(&b, " at %s", formatCoords(car.Cells))
			} else if car.ExitVia != "" {
				fmt.Fprintf(&b, " (#%d, via %s)", car.ExitOrder, car.ExitVia)
			}
			b.WriteString("\n")
		}
	}

	if len(state.Stickmen) > 0 {
		b.WriteString("\nStickmen:\n")
		for _, s := range state.Stickmen {
			fmt.Fprintf(&b, "- %s at %s\n", s.Color, s.Position)
		}
	}

	if state.GameOver {
		if state.Victory {
			b.WriteString("\n🎉 VICTORY!")
		} else {
			b.WriteString("\nGAME OVER")
		}
	}

	if state.Message != "" {
		fmt.Fprintf(&b, "\nMessage: %s", state.Message)
	}

	return b.String()
}

func formatCoords(coords []grid.Coordinate) string {
	parts := make([]string, len(coords))
	for i, c := range coords {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}

func formatActionResponse(result *service.ActionResponse) string {
	var b strings.Builder
	if result.Success {
		fmt.Fprintf(&b, "✓ %s %s (%s)\n", result.Result.Action, result.Result.Hit.Coordinate, result.Result.Hit.Kind)
	} else {
		fmt.Fprintf(&b, "✗ %s %s failed: %s\n", result.Result.Action, result.Result.Hit.Coordinate, result.Message)
		if result.Result.Furthest != nil {
			fmt.Fprintf(&b, "Closest reachable cell: %s\n", *result.Result.Furthest)
		}
	}

	if len(result.Result.Path) > 0 {
		fmt.Fprintf(&b, "Path: %s\n", formatCoords(result.Result.Path))
	}

	if len(result.Events) > 0 {
		b.WriteString("Events:\n")
		for _, event := range result.Events {
			fmt.Fprintf(&b, "- %s: %s\n", event.Type, event.Message)
		}
	}

	b.WriteString("\n")
	b.WriteString(formatGameState(result.GameState))
	return b.String()
}

func formatBulkTapResult(sessionID string, result *service.BulkTapResult) string {
	var b strings.Builder

	level := ""
	if result.GameState != nil {
		level = result.GameState.ConfigName
	}
	fmt.Fprintf(&b, "Session: %s • Level: %s\n", sessionID, level)

	fmt.Fprintf(&b, "Executed %d/%d taps\n", result.TapsExecuted, result.RequestedTaps)
	if result.Truncated {
		fmt.Fprintf(&b, "Truncated to the first %d taps\n", result.Limit)
	}
	if result.StoppedReason != "" {
		fmt.Fprintf(&b, "Stopped on tap %d: %s\n", result.StoppedOnTap, result.StoppedReason)
	}

	if len(result.Results) > 0 {
		b.WriteString("\nTaps:\n")
		for i, r := range result.Results {
			status := "✓"
			if !r.Success {
				status = "✗"
			}
			fmt.Fprintf(&b, "%d. %s %s %s %s\n", i+1, status, r.Hit.Coordinate, r.Action, r.Message)
		}
	}

	if len(result.Events) > 0 {
		b.WriteString("\nEvents:\n")
		for _, event := range result.Events {
			fmt.Fprintf(&b, "- %s: %s\n", event.Type, event.Message)
		}
	}

	b.WriteString("\n")
	b.WriteString(formatGameState(result.GameState))
	return b.String()
}

func formatPath(path *service.PathResponse) string {
	if path.Found {
		return fmt.Sprintf("Path %s → %s, %d step(s): %s",
			path.Start, path.Target, len(path.Path), formatCoords(path.Path))
	}
	if path.HasFurthest {
		return fmt.Sprintf("No path %s → %s. Closest reachable cell: %s", path.Start, path.Target, path.Furthest)
	}
	return fmt.Sprintf("No path %s → %s", path.Start, path.Target)
}

func formatCarRoute(route *service.CarRouteResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Car %s: %s\n", route.CarID, route.State)

	if route.Lane != nil {
		way := "reversing"
		if route.Lane.Forward {
			way = "forward"
		}
		clear := "blocked"
		if route.Lane.Clear {
			clear = "clear"
		}
		fmt.Fprintf(&b, "Exit: %s via %s, lane %s, joins the road at %s\n", way, route.Lane.Direction, clear, route.Lane.Entry)
	}
	if len(route.Approach) > 0 {
		fmt.Fprintf(&b, "Board from: %s\n", formatCoords(route.Approach))
	}
	if route.Found {
		fmt.Fprintf(&b, "Road: %d cell(s) to the exit\n", len(route.Route))
	}
	return b.String()
}

func formatHistory(history *service.HistoryResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Move History (Page %d/%d, Total: %d moves):\n\n",
		history.Page, history.TotalPages, history.TotalMoves)

	for _, move := range history.Moves {
		status := "✓"
		if !move.Success {
			status = "✗"
		}
		fmt.Fprintf(&b, "%d. %s %s %s", move.MoveNumber, status, move.Action, move.Target)
		if move.Hit != "" {
			fmt.Fprintf(&b, " (%s)", move.Hit)
		}
		if move.Message != "" {
			fmt.Fprintf(&b, " - %s", move.Message)
		}
		b.WriteString("\n")
	}

	return b.String()
}
