package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/wricardo/mcp-training/carpark/game/board"
	"github.com/wricardo/mcp-training/carpark/game/engine"
	"github.com/wricardo/mcp-training/carpark/game/grid"
	"github.com/wricardo/mcp-training/carpark/game/pathfind"
	"github.com/wricardo/mcp-training/carpark/game/service"
)

func toolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil || len(result.Content) == 0 {
		t.Fatal("Expected result content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatal("Expected text content in result")
	}
	return text.Text
}

// testState is a 4x3 lot: a red car on (0,0)-(1,0), a red stickman at (3,2)
// and an obstacle at (2,1).
func testState() *engine.GameState {
	state := &engine.GameState{
		Width:      4,
		Height:     3,
		ConfigName: "test",
		TotalCars:  1,
		Message:    "Welcome",
	}
	state.Grid = make([][]engine.CellView, 3)
	for y := range state.Grid {
		state.Grid[y] = make([]engine.CellView, 4)
	}
	carCell := engine.CellView{Kind: board.SmallCar, Color: board.Red, ObjectID: "car-1", Direction: grid.Right}
	state.Grid[0][0] = carCell
	state.Grid[0][1] = carCell
	state.Grid[1][2] = engine.CellView{Kind: board.Obstacle}
	state.Grid[2][3] = engine.CellView{Kind: board.Stickman, Color: board.Red, ObjectID: "man-1"}
	state.Cars = []engine.CarStatus{{
		ID: "car-1", Kind: board.SmallCar, Color: board.Red, Direction: grid.Right,
		Cells: []grid.Coordinate{grid.C(0, 0), grid.C(1, 0)}, State: engine.CarParked,
	}}
	state.Stickmen = []engine.StickmanStatus{{ID: "man-1", Color: board.Red, Position: grid.C(3, 2)}}
	return state
}

func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:8080/")

	if client.baseURL != "http://localhost:8080" {
		t.Errorf("Expected trailing slash trimmed, got %s", client.baseURL)
	}
	if client.httpClient == nil {
		t.Error("Expected HTTP client to be initialized")
	}
	if client.GetMCPServer() == nil {
		t.Error("Expected MCP server to be initialized")
	}
}

func TestClient_apiCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			json.NewEncoder(w).Encode(map[string]string{"id": "ab12"})
		case "/json-error":
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]interface{}{"error": "session not found", "code": 404})
		default:
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("Internal Server Error"))
		}
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ctx := context.Background()

	var response map[string]string
	if err := client.apiCall(ctx, "GET", "/ok", nil, &response); err != nil {
		t.Fatalf("apiCall failed: %v", err)
	}
	if response["id"] != "ab12" {
		t.Errorf("Expected id ab12, got %v", response["id"])
	}

	err := client.apiCall(ctx, "GET", "/json-error", nil, nil)
	if err == nil || err.Error() != "session not found" {
		t.Errorf("Expected the API error message, got %v", err)
	}

	err = client.apiCall(ctx, "GET", "/plain-error", nil, nil)
	if err == nil || !strings.Contains(err.Error(), "API error: 500") {
		t.Errorf("Expected 'API error: 500', got %v", err)
	}
}

func TestClient_apiCall_Unreachable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1")
	if err := client.apiCall(context.Background(), "GET", "/api", nil, nil); err == nil {
		t.Error("Expected error for unreachable server")
	}
}

func TestClient_handleCreateSession(t *testing.T) {
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/api/sessions" {
			t.Errorf("Expected POST /api/sessions, got %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(service.SessionInfo{
			ID:         "ab12",
			ConfigName: "gridlock",
			GameState:  testState(),
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	result, err := client.handleCreateSession(context.Background(), toolRequest("create_session", map[string]interface{}{
		"config_id": "gridlock",
	}))
	if err != nil {
		t.Fatalf("handleCreateSession failed: %v", err)
	}

	text := resultText(t, result)
	if !strings.Contains(text, "Session: ab12") || !strings.Contains(text, "Level: gridlock") {
		t.Errorf("Unexpected text: %s", text)
	}
	if gotBody["config_id"] != "gridlock" {
		t.Errorf("Expected config_id forwarded, got %v", gotBody)
	}
}

func TestClient_ActionTools(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody = nil
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(service.ActionResponse{
			Success: true,
			Result: engine.ActionResult{
				Action:  "walk",
				Hit:     engine.Hit{Kind: engine.HitGround, Coordinate: grid.C(3, 1)},
				Success: true,
				Path:    []grid.Coordinate{grid.C(3, 1)},
			},
			GameState: testState(),
			Events:    []service.GameEvent{{Type: "walk", Message: "Walked 1 step"}},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ctx := context.Background()

	tests := []struct {
		name     string
		call     func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
		args     map[string]interface{}
		wantPath string
		wantBody map[string]interface{}
	}{
		{
			name:     "tap",
			call:     client.handleTap,
			args:     map[string]interface{}{"session_id": "ab12", "x": float64(3), "y": float64(1), "intent": "walk up"},
			wantPath: "/api/sessions/ab12/tap",
			wantBody: map[string]interface{}{"x": float64(3), "y": float64(1)},
		},
		{
			name:     "walk with from",
			call:     client.handleWalk,
			args:     map[string]interface{}{"session_id": "ab12", "to_x": float64(3), "to_y": float64(1), "from_x": float64(3), "from_y": float64(2)},
			wantPath: "/api/sessions/ab12/walk",
			wantBody: map[string]interface{}{
				"to":   map[string]interface{}{"x": float64(3), "y": float64(1)},
				"from": map[string]interface{}{"x": float64(3), "y": float64(2)},
			},
		},
		{
			name:     "board without from",
			call:     client.handleBoard,
			args:     map[string]interface{}{"session_id": "ab12", "car_x": float64(0), "car_y": float64(0)},
			wantPath: "/api/sessions/ab12/board",
			wantBody: map[string]interface{}{"car": map[string]interface{}{"x": float64(0), "y": float64(0)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.call(ctx, toolRequest(tt.name, tt.args))
			if err != nil {
				t.Fatalf("handler failed: %v", err)
			}
			if result.IsError {
				t.Fatalf("Unexpected tool error: %s", resultText(t, result))
			}
			if gotPath != tt.wantPath {
				t.Errorf("Expected path %s, got %s", tt.wantPath, gotPath)
			}
			wantJSON, _ := json.Marshal(tt.wantBody)
			gotJSON, _ := json.Marshal(gotBody)
			if string(wantJSON) != string(gotJSON) {
				t.Errorf("Expected body %s, got %s", wantJSON, gotJSON)
			}

			text := resultText(t, result)
			for _, want := range []string{"✓ walk (3,1)", "Path: (3,1)", "- walk: Walked 1 step"} {
				if !strings.Contains(text, want) {
					t.Errorf("Expected %q in output, got: %s", want, text)
				}
			}
		})
	}

	t.Run("missing coordinates", func(t *testing.T) {
		gotPath = ""
		result, _ := client.handleTap(ctx, toolRequest("tap", map[string]interface{}{"session_id": "ab12", "x": float64(1)}))
		if !result.IsError {
			t.Error("Expected a tool error")
		}
		if gotPath != "" {
			t.Error("Expected no API call")
		}
	})

	t.Run("half a from coordinate", func(t *testing.T) {
		result, _ := client.handleWalk(ctx, toolRequest("walk", map[string]interface{}{
			"session_id": "ab12", "to_x": float64(1), "to_y": float64(1), "from_x": float64(3),
		}))
		if !result.IsError {
			t.Error("Expected a tool error")
		}
	})
}

func TestClient_handleBulkTap(t *testing.T) {
	var gotBody struct {
		Taps  []grid.Coordinate `json:"taps"`
		Reset bool              `json:"reset"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(service.BulkTapResult{
			TapsExecuted:  1,
			RequestedTaps: 2,
			Results: []engine.ActionResult{
				{Action: "select", Hit: engine.Hit{Kind: engine.HitStickman, Coordinate: grid.C(3, 2)}, Success: true, Message: "Selected"},
				{Action: "board", Hit: engine.Hit{Kind: engine.HitCar, Coordinate: grid.C(0, 0)}, Success: false, Message: "No path."},
			},
			StoppedReason: "No path.",
			StoppedOnTap:  2,
			GameState:     testState(),
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	result, err := client.handleBulkTap(context.Background(), toolRequest("bulk_tap", map[string]interface{}{
		"session_id": "ab12",
		"taps": []interface{}{
			map[string]interface{}{"x": float64(3), "y": float64(2)},
			map[string]interface{}{"x": float64(0), "y": float64(0)},
		},
		"reset": true,
	}))
	if err != nil {
		t.Fatalf("handleBulkTap failed: %v", err)
	}

	if len(gotBody.Taps) != 2 || gotBody.Taps[1] != grid.C(0, 0) || !gotBody.Reset {
		t.Errorf("Unexpected request body: %+v", gotBody)
	}

	text := resultText(t, result)
	for _, want := range []string{"Executed 1/2 taps", "Stopped on tap 2: No path.", "2. ✗ (0,0) board"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in output, got: %s", want, text)
		}
	}

	bad, _ := client.handleBulkTap(context.Background(), toolRequest("bulk_tap", map[string]interface{}{
		"session_id": "ab12",
		"taps":       []interface{}{"up"},
	}))
	if !bad.IsError {
		t.Error("Expected a tool error for a malformed tap")
	}
}

func TestClient_QueryTools(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/sessions/ab12/path":
			var req struct{ Start, Target grid.Coordinate }
			json.NewDecoder(r.Body).Decode(&req)
			json.NewEncoder(w).Encode(service.PathResponse{
				Start:  req.Start,
				Target: req.Target,
				Result: pathfind.Result{Path: []grid.Coordinate{grid.C(3, 1), grid.C(3, 0)}, Found: true},
			})
		case "/api/sessions/ab12/space":
			var req service.SpaceRequest
			json.NewDecoder(r.Body).Decode(&req)
			json.NewEncoder(w).Encode(service.SpaceResponse{Origin: req.Origin, Direction: grid.Right, Span: req.Span, Available: true})
		case "/api/sessions/ab12/cars/car-1/route":
			json.NewEncoder(w).Encode(service.CarRouteResponse{
				CarID:    "car-1",
				State:    engine.CarParked,
				Lane:     &engine.Lane{CarID: "car-1", Direction: grid.Right, Forward: true, Clear: false, Entry: grid.C(5, 1)},
				Approach: []grid.Coordinate{grid.C(1, 1)},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "car not found: ghost"})
		}
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ctx := context.Background()

	tests := []struct {
		name string
		call func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
		args map[string]interface{}
		want []string
	}{
		{
			name: "find_path",
			call: client.handleFindPath,
			args: map[string]interface{}{"session_id": "ab12", "start_x": float64(3), "start_y": float64(2), "target_x": float64(3), "target_y": float64(0)},
			want: []string{"Path (3,2) → (3,0), 2 step(s): (3,1) (3,0)"},
		},
		{
			name: "check_space",
			call: client.handleCheckSpace,
			args: map[string]interface{}{"session_id": "ab12", "x": float64(0), "y": float64(1), "direction": "right", "span": float64(2)},
			want: []string{"2 cell(s) from (0,1) going right: fits"},
		},
		{
			name: "car_route",
			call: client.handleCarRoute,
			args: map[string]interface{}{"session_id": "ab12", "car_id": "car-1"},
			want: []string{"Car car-1: parked", "Exit: forward via right, lane blocked", "Board from: (1,1)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.call(ctx, toolRequest(tt.name, tt.args))
			if err != nil {
				t.Fatalf("handler failed: %v", err)
			}
			text := resultText(t, result)
			for _, want := range tt.want {
				if !strings.Contains(text, want) {
					t.Errorf("Expected %q in output, got: %s", want, text)
				}
			}
		})
	}

	t.Run("unknown car", func(t *testing.T) {
		result, _ := client.handleCarRoute(ctx, toolRequest("car_route", map[string]interface{}{"session_id": "ab12", "car_id": "ghost"}))
		if !result.IsError || !strings.Contains(resultText(t, result), "car not found") {
			t.Error("Expected the API error as a tool error")
		}
	})
}

func TestFormatGameState(t *testing.T) {
	state := testState()
	selected := grid.C(3, 2)
	state.Selected = &selected

	result := formatGameState(state)

	expected := []string{
		"Level: test | Lot: 4x3 | Cars out: 0/1",
		"   0123\n",
		" 0 RR..\n",
		" 1 ..#.\n",
		" 2 ...*\n",
		"Selected: (3,2)",
		"- car-1 red small_car facing right: parked at (0,0) (1,0)",
		"- red at (3,2)",
		"Message: Welcome",
	}
	for _, want := range expected {
		if !strings.Contains(result, want) {
			t.Errorf("Expected %q in formatted output, got:\n%s", want, result)
		}
	}
}

func TestFormatGameState_Victory(t *testing.T) {
	state := testState()
	state.GameOver = true
	state.Victory = true

	if !strings.Contains(formatGameState(state), "🎉 VICTORY!") {
		t.Error("Expected victory banner")
	}
	if formatGameState(nil) != "No game state available" {
		t.Error("Expected placeholder for nil state")
	}
}

func TestDescribeCell(t *testing.T) {
	state := testState()

	tests := []struct {
		at   grid.Coordinate
		want string
	}{
		{grid.C(0, 0), "red small_car facing right (id car-1)"},
		{grid.C(1, 0), "State: parked"},
		{grid.C(2, 1), "obstacle"},
		{grid.C(3, 2), "red stickman (id man-1)"},
		{grid.C(0, 2), "empty ground"},
		{grid.C(4, 0), "off the board"},
		{grid.C(0, -1), "off the board"},
	}

	for _, tt := range tests {
		t.Run(tt.at.String(), func(t *testing.T) {
			if got := describeCell(state, tt.at); !strings.Contains(got, tt.want) {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestClient_handleGameInstructions(t *testing.T) {
	client := NewClient("http://localhost:8080")

	result, err := client.handleGameInstructions(context.Background(), toolRequest("game_instructions", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("handleGameInstructions failed: %v", err)
	}

	text := resultText(t, result)
	for _, section := range []string{"GAME OBJECTIVE:", "BOARD LEGEND", "TAPPING:", "LEAVING THE LOT:", "VICTORY:"} {
		if !strings.Contains(text, section) {
			t.Errorf("Expected %q in instructions", section)
		}
	}
}
