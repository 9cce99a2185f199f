package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wricardo/mcp-training/carpark/game/config"
	"github.com/wricardo/mcp-training/carpark/game/engine"
	"github.com/wricardo/mcp-training/carpark/game/grid"
	"github.com/wricardo/mcp-training/carpark/game/pathfind"
	"github.com/wricardo/mcp-training/carpark/game/service"
	"github.com/wricardo/mcp-training/carpark/game/session"
	"github.com/wricardo/mcp-training/carpark/logger"
	"github.com/wricardo/mcp-training/carpark/transport/websocket"
)

// MockGameService implements service.GameService for testing
type MockGameService struct {
	CreateSessionFunc func(ctx context.Context, configName string) (*service.SessionInfo, error)
	GetSessionFunc    func(ctx context.Context, sessionID string) (*service.SessionInfo, error)
	ListSessionsFunc  func(ctx context.Context) ([]*service.SessionInfo, error)
	DeleteSessionFunc func(ctx context.Context, sessionID string) error

	TapFunc          func(ctx context.Context, sessionID string, target grid.Coordinate) (*service.ActionResponse, error)
	BulkTapFunc      func(ctx context.Context, sessionID string, targets []grid.Coordinate, reset bool) (*service.BulkTapResult, error)
	SelectFunc       func(ctx context.Context, sessionID string, at grid.Coordinate) (*service.ActionResponse, error)
	MoveStickmanFunc func(ctx context.Context, sessionID string, from *grid.Coordinate, target grid.Coordinate) (*service.ActionResponse, error)
	BoardCarFunc     func(ctx context.Context, sessionID string, from *grid.Coordinate, car grid.Coordinate) (*service.ActionResponse, error)
	ResetFunc        func(ctx context.Context, sessionID string) (*engine.GameState, error)

	FindPathFunc   func(ctx context.Context, sessionID string, start, target grid.Coordinate) (*service.PathResponse, error)
	CheckSpaceFunc func(ctx context.Context, sessionID string, req service.SpaceRequest) (*service.SpaceResponse, error)
	CarRouteFunc   func(ctx context.Context, sessionID, carID string) (*service.CarRouteResponse, error)

	GetGameStateFunc   func(ctx context.Context, sessionID string) (*engine.GameState, error)
	GetMoveHistoryFunc func(ctx context.Context, sessionID string, opts service.HistoryOptions) (*service.HistoryResponse, error)

	ListConfigsFunc func(ctx context.Context) ([]*service.ConfigInfo, error)
	LoadConfigFunc  func(ctx context.Context, configName string) (*engine.LevelConfig, error)
	SaveConfigFunc  func(ctx context.Context, configName string, cfg *engine.LevelConfig) error
}

func okAction() *service.ActionResponse {
	return &service.ActionResponse{Success: true, GameState: &engine.GameState{}}
}

func (m *MockGameService) CreateSession(ctx context.Context, configName string) (*service.SessionInfo, error) {
	if m.CreateSessionFunc != nil {
		return m.CreateSessionFunc(ctx, configName)
	}
	return &service.SessionInfo{ID: "test-session", ConfigName: configName, CreatedAt: time.Now()}, nil
}

func (m *MockGameService) GetSession(ctx context.Context, sessionID string) (*service.SessionInfo, error) {
	if m.GetSessionFunc != nil {
		return m.GetSessionFunc(ctx, sessionID)
	}
	return &service.SessionInfo{ID: sessionID, ConfigName: "test-config", CreatedAt: time.Now()}, nil
}

func (m *MockGameService) ListSessions(ctx context.Context) ([]*service.SessionInfo, error) {
	if m.ListSessionsFunc != nil {
		return m.ListSessionsFunc(ctx)
	}
	return []*service.SessionInfo{}, nil
}

func (m *MockGameService) DeleteSession(ctx context.Context, sessionID string) error {
	if m.DeleteSessionFunc != nil {
		return m.DeleteSessionFunc(ctx, sessionID)
	}
	return nil
}

func (m *MockGameService) Tap(ctx context.Context, sessionID string, target grid.Coordinate) (*service.ActionResponse, error) {
	if m.TapFunc != nil {
		return m.TapFunc(ctx, sessionID, target)
	}
	return okAction(), nil
}

func (m *MockGameService) BulkTap(ctx context.Context, sessionID string, targets []grid.Coordinate, reset bool) (*service.BulkTapResult, error) {
	if m.BulkTapFunc != nil {
		return m.BulkTapFunc(ctx, sessionID, targets, reset)
	}
	return &service.BulkTapResult{Success: true, GameState: &engine.GameState{}}, nil
}

func (m *MockGameService) Select(ctx context.Context, sessionID string, at grid.Coordinate) (*service.ActionResponse, error) {
	if m.SelectFunc != nil {
		return m.SelectFunc(ctx, sessionID, at)
	}
	return okAction(), nil
}

func (m *MockGameService) MoveStickman(ctx context.Context, sessionID string, from *grid.Coordinate, target grid.Coordinate) (*service.ActionResponse, error) {
	if m.MoveStickmanFunc != nil {
		return m.MoveStickmanFunc(ctx, sessionID, from, target)
	}
	return okAction(), nil
}

func (m *MockGameService) BoardCar(ctx context.Context, sessionID string, from *grid.Coordinate, car grid.Coordinate) (*service.ActionResponse, error) {
	if m.BoardCarFunc != nil {
		return m.BoardCarFunc(ctx, sessionID, from, car)
	}
	return okAction(), nil
}

func (m *MockGameService) Reset(ctx context.Context, sessionID string) (*engine.GameState, error) {
	if m.ResetFunc != nil {
		return m.ResetFunc(ctx, sessionID)
	}
	return &engine.GameState{}, nil
}

func (m *MockGameService) FindPath(ctx context.Context, sessionID string, start, target grid.Coordinate) (*service.PathResponse, error) {
	if m.FindPathFunc != nil {
		return m.FindPathFunc(ctx, sessionID, start, target)
	}
	return &service.PathResponse{Start: start, Target: target}, nil
}

func (m *MockGameService) CheckSpace(ctx context.Context, sessionID string, req service.SpaceRequest) (*service.SpaceResponse, error) {
	if m.CheckSpaceFunc != nil {
		return m.CheckSpaceFunc(ctx, sessionID, req)
	}
	return &service.SpaceResponse{Origin: req.Origin, Span: req.Span}, nil
}

func (m *MockGameService) CarRoute(ctx context.Context, sessionID, carID string) (*service.CarRouteResponse, error) {
	if m.CarRouteFunc != nil {
		return m.CarRouteFunc(ctx, sessionID, carID)
	}
	return &service.CarRouteResponse{CarID: carID}, nil
}

func (m *MockGameService) GetGameState(ctx context.Context, sessionID string) (*engine.GameState, error) {
	if m.GetGameStateFunc != nil {
		return m.GetGameStateFunc(ctx, sessionID)
	}
	return &engine.GameState{}, nil
}

func (m *MockGameService) GetMoveHistory(ctx context.Context, sessionID string, opts service.HistoryOptions) (*service.HistoryResponse, error) {
	if m.GetMoveHistoryFunc != nil {
		return m.GetMoveHistoryFunc(ctx, sessionID, opts)
	}
	return &service.HistoryResponse{
		Moves:      []engine.MoveHistoryEntry{},
		Page:       opts.Page,
		PageSize:   opts.Limit,
		TotalPages: 1,
	}, nil
}

func (m *MockGameService) ListConfigs(ctx context.Context) ([]*service.ConfigInfo, error) {
	if m.ListConfigsFunc != nil {
		return m.ListConfigsFunc(ctx)
	}
	return []*service.ConfigInfo{}, nil
}

func (m *MockGameService) LoadConfig(ctx context.Context, configName string) (*engine.LevelConfig, error) {
	if m.LoadConfigFunc != nil {
		return m.LoadConfigFunc(ctx, configName)
	}
	return &engine.LevelConfig{Name: configName, Description: "Test config"}, nil
}

func (m *MockGameService) SaveConfig(ctx context.Context, configName string, cfg *engine.LevelConfig) error {
	if m.SaveConfigFunc != nil {
		return m.SaveConfigFunc(ctx, configName, cfg)
	}
	return nil
}

// Test helpers
func setupTestServer(t *testing.T, mockService *MockGameService) *Server {
	t.Helper()
	hub := websocket.NewHub(logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return NewServer(mockService, hub, logger.Discard())
}

func makeRequest(method, path string, body interface{}) *http.Request {
	var bodyBytes []byte
	if body != nil {
		bodyBytes, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewBuffer(bodyBytes))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), target); err != nil {
		t.Fatalf("Failed to parse response: %v (body %s)", err, w.Body.String())
	}
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]interface{}
	parseResponse(t, w, &resp)
	msg, _ := resp["error"].(string)
	return msg
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"session not found", fmt.Errorf("%w: abcd", service.ErrSessionNotFound), http.StatusNotFound},
		{"config not found", service.ErrConfigNotFound, http.StatusNotFound},
		{"car not found", fmt.Errorf("wrap: %w", engine.ErrCarNotFound), http.StatusNotFound},
		{"invalid request", service.ErrInvalidRequest, http.StatusBadRequest},
		{"invalid config", config.ErrInvalidConfig, http.StatusBadRequest},
		{"invalid level", engine.ErrInvalidLevel, http.StatusBadRequest},
		{"anything else", errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

// Session Management Tests

func TestCreateSession(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    map[string]string
		wantConfig     string
		createErr      error
		expectedStatus int
	}{
		{name: "Default config", expectedStatus: http.StatusCreated},
		{name: "config_id", requestBody: map[string]string{"config_id": "easy"}, wantConfig: "easy", expectedStatus: http.StatusCreated},
		{name: "Deprecated config_name", requestBody: map[string]string{"config_name": "hard"}, wantConfig: "hard", expectedStatus: http.StatusCreated},
		{name: "Unknown config", requestBody: map[string]string{"config_id": "nope"}, wantConfig: "nope", createErr: service.ErrConfigNotFound, expectedStatus: http.StatusNotFound},
		{name: "Service error", createErr: errors.New("service error"), expectedStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockGameService{
				CreateSessionFunc: func(ctx context.Context, configName string) (*service.SessionInfo, error) {
					if configName != tt.wantConfig {
						t.Errorf("Expected config %q, got %q", tt.wantConfig, configName)
					}
					if tt.createErr != nil {
						return nil, tt.createErr
					}
					return &service.SessionInfo{ID: "ab12", ConfigName: configName}, nil
				},
			}

			server := setupTestServer(t, mockService)
			w := httptest.NewRecorder()
			server.ServeHTTP(w, makeRequest("POST", "/api/sessions", tt.requestBody))

			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if tt.createErr == nil {
				var resp service.SessionInfo
				parseResponse(t, w, &resp)
				if resp.ID != "ab12" {
					t.Errorf("Expected session ID ab12, got %s", resp.ID)
				}
			} else if msg := errorMessage(t, w); msg != tt.createErr.Error() {
				t.Errorf("Expected error %q, got %q", tt.createErr.Error(), msg)
			}
		})
	}
}

func TestListSessions(t *testing.T) {
	now := time.Now()
	sessions := func() []*service.SessionInfo {
		return []*service.SessionInfo{
			{ID: "old", CreatedAt: now.Add(-3 * time.Hour), LastAccessedAt: now.Add(-time.Minute)},
			{ID: "mid", CreatedAt: now.Add(-2 * time.Hour), LastAccessedAt: now.Add(-time.Hour)},
			{ID: "new", CreatedAt: now.Add(-time.Hour), LastAccessedAt: now.Add(-2 * time.Hour)},
		}
	}

	tests := []struct {
		name      string
		query     string
		wantIDs   []string
		wantTotal int
	}{
		{"Default sorts by last access desc", "", []string{"old", "mid", "new"}, 3},
		{"Created desc", "?sort=created", []string{"new", "mid", "old"}, 3},
		{"Created asc", "?sort=created&order=asc", []string{"old", "mid", "new"}, 3},
		{"Limit", "?sort=created&limit=1", []string{"new"}, 3},
		{"Limit above count is ignored", "?limit=10", []string{"old", "mid", "new"}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockGameService{
				ListSessionsFunc: func(ctx context.Context) ([]*service.SessionInfo, error) {
					return sessions(), nil
				},
			}
			server := setupTestServer(t, mockService)
			w := httptest.NewRecorder()
			server.ServeHTTP(w, makeRequest("GET", "/api/sessions"+tt.query, nil))

			if w.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", w.Code)
			}
			var resp struct {
				Count    int                    `json:"count"`
				Total    int                    `json:"total"`
				Sessions []*service.SessionInfo `json:"sessions"`
			}
			parseResponse(t, w, &resp)

			if resp.Count != len(tt.wantIDs) || resp.Total != tt.wantTotal {
				t.Errorf("Expected count %d total %d, got %d %d", len(tt.wantIDs), tt.wantTotal, resp.Count, resp.Total)
			}
			for i, id := range tt.wantIDs {
				if i >= len(resp.Sessions) || resp.Sessions[i].ID != id {
					t.Errorf("Position %d: expected %s", i, id)
				}
			}
		})
	}

	t.Run("Service error", func(t *testing.T) {
		mockService := &MockGameService{
			ListSessionsFunc: func(ctx context.Context) ([]*service.SessionInfo, error) {
				return nil, errors.New("database error")
			},
		}
		server := setupTestServer(t, mockService)
		w := httptest.NewRecorder()
		server.ServeHTTP(w, makeRequest("GET", "/api/sessions", nil))
		if w.Code != http.StatusInternalServerError {
			t.Errorf("Expected status 500, got %d", w.Code)
		}
	})
}

func TestGetAndDeleteSession(t *testing.T) {
	mockService := &MockGameService{
		GetSessionFunc: func(ctx context.Context, sessionID string) (*service.SessionInfo, error) {
			if sessionID == "ab12" {
				return &service.SessionInfo{ID: "ab12"}, nil
			}
			return nil, fmt.Errorf("%w: %s", service.ErrSessionNotFound, sessionID)
		},
		DeleteSessionFunc: func(ctx context.Context, sessionID string) error {
			if sessionID == "ab12" {
				return nil
			}
			return service.ErrSessionNotFound
		},
	}
	server := setupTestServer(t, mockService)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{"GET", "/api/sessions/ab12", http.StatusOK},
		{"GET", "/api/sessions/zzzz", http.StatusNotFound},
		{"DELETE", "/api/sessions/ab12", http.StatusOK},
		{"DELETE", "/api/sessions/zzzz", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			server.ServeHTTP(w, makeRequest(tt.method, tt.path, nil))
			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}

// Game Operation Tests

func TestActions(t *testing.T) {
	var (
		gotTarget grid.Coordinate
		gotFrom   *grid.Coordinate
		called    string
	)
	record := func(name string, from *grid.Coordinate, target grid.Coordinate) (*service.ActionResponse, error) {
		called, gotFrom, gotTarget = name, from, target
		resp := okAction()
		resp.Result = engine.ActionResult{Action: name, Success: true}
		return resp, nil
	}
	mockService := &MockGameService{
		TapFunc: func(ctx context.Context, id string, target grid.Coordinate) (*service.ActionResponse, error) {
			return record("tap", nil, target)
		},
		SelectFunc: func(ctx context.Context, id string, at grid.Coordinate) (*service.ActionResponse, error) {
			return record("select", nil, at)
		},
		MoveStickmanFunc: func(ctx context.Context, id string, from *grid.Coordinate, target grid.Coordinate) (*service.ActionResponse, error) {
			return record("walk", from, target)
		},
		BoardCarFunc: func(ctx context.Context, id string, from *grid.Coordinate, car grid.Coordinate) (*service.ActionResponse, error) {
			return record("board", from, car)
		},
	}
	server := setupTestServer(t, mockService)

	from := grid.C(3, 2)
	tests := []struct {
		name       string
		path       string
		body       interface{}
		wantStatus int
		wantCall   string
		wantTarget grid.Coordinate
		wantFrom   *grid.Coordinate
	}{
		{"Tap", "/api/sessions/ab12/tap", map[string]int{"x": 2, "y": 1}, http.StatusOK, "tap", grid.C(2, 1), nil},
		{"Select", "/api/sessions/ab12/select", map[string]int{"x": 3, "y": 2}, http.StatusOK, "select", grid.C(3, 2), nil},
		{"Walk", "/api/sessions/ab12/walk", map[string]interface{}{"to": grid.C(1, 1)}, http.StatusOK, "walk", grid.C(1, 1), nil},
		{"Walk from", "/api/sessions/ab12/walk", map[string]interface{}{"from": from, "to": grid.C(1, 1)}, http.StatusOK, "walk", grid.C(1, 1), &from},
		{"Walk without target", "/api/sessions/ab12/walk", map[string]interface{}{"from": from}, http.StatusBadRequest, "", grid.Coordinate{}, nil},
		{"Board", "/api/sessions/ab12/board", map[string]interface{}{"car": grid.C(0, 0)}, http.StatusOK, "board", grid.C(0, 0), nil},
		{"Board without car", "/api/sessions/ab12/board", map[string]interface{}{}, http.StatusBadRequest, "", grid.Coordinate{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called, gotFrom, gotTarget = "", nil, grid.Coordinate{}

			w := httptest.NewRecorder()
			server.ServeHTTP(w, makeRequest("POST", tt.path, tt.body))

			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if called != tt.wantCall {
				t.Fatalf("Expected call %q, got %q", tt.wantCall, called)
			}
			if tt.wantCall == "" {
				return
			}
			if gotTarget != tt.wantTarget {
				t.Errorf("Expected target %v, got %v", tt.wantTarget, gotTarget)
			}
			if (gotFrom == nil) != (tt.wantFrom == nil) || (gotFrom != nil && *gotFrom != *tt.wantFrom) {
				t.Errorf("Expected from %v, got %v", tt.wantFrom, gotFrom)
			}

			var resp service.ActionResponse
			parseResponse(t, w, &resp)
			if !resp.Success || resp.Result.Action != tt.wantCall {
				t.Errorf("Unexpected response: %+v", resp)
			}
		})
	}

	t.Run("Malformed body", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/sessions/ab12/tap", strings.NewReader("{not json"))
		server.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})

	t.Run("Unknown session", func(t *testing.T) {
		mockService.TapFunc = func(ctx context.Context, id string, target grid.Coordinate) (*service.ActionResponse, error) {
			return nil, service.ErrSessionNotFound
		}
		w := httptest.NewRecorder()
		server.ServeHTTP(w, makeRequest("POST", "/api/sessions/zzzz/tap", grid.C(0, 0)))
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", w.Code)
		}
	})
}

func TestBulkTap(t *testing.T) {
	var gotTaps []grid.Coordinate
	var gotReset bool
	mockService := &MockGameService{
		BulkTapFunc: func(ctx context.Context, id string, targets []grid.Coordinate, reset bool) (*service.BulkTapResult, error) {
			gotTaps, gotReset = targets, reset
			return &service.BulkTapResult{
				TapsExecuted:  len(targets),
				RequestedTaps: len(targets),
				Success:       true,
				GameState:     &engine.GameState{CarsExited: 1, TotalCars: 1, Victory: true},
			}, nil
		},
	}
	server := setupTestServer(t, mockService)

	body := map[string]interface{}{
		"taps":  []grid.Coordinate{grid.C(3, 2), grid.C(0, 0)},
		"reset": true,
	}
	w := httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("POST", "/api/sessions/ab12/bulk-tap", body))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if len(gotTaps) != 2 || gotTaps[1] != grid.C(0, 0) || !gotReset {
		t.Errorf("Unexpected service call: taps=%v reset=%v", gotTaps, gotReset)
	}

	var resp service.BulkTapResult
	parseResponse(t, w, &resp)
	if resp.TapsExecuted != 2 || !resp.GameState.Victory {
		t.Errorf("Unexpected response: %+v", resp)
	}
}

func TestResetAndState(t *testing.T) {
	mockService := &MockGameService{
		ResetFunc: func(ctx context.Context, id string) (*engine.GameState, error) {
			return &engine.GameState{TotalMoves: 4, Message: "Welcome"}, nil
		},
		GetGameStateFunc: func(ctx context.Context, id string) (*engine.GameState, error) {
			if id != "ab12" {
				return nil, service.ErrSessionNotFound
			}
			return &engine.GameState{Width: 4, Height: 3}, nil
		},
	}
	server := setupTestServer(t, mockService)

	w := httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("POST", "/api/sessions/ab12/reset", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var reset struct {
		Message string            `json:"message"`
		State   *engine.GameState `json:"state"`
	}
	parseResponse(t, w, &reset)
	if reset.State == nil || reset.State.TotalMoves != 4 {
		t.Errorf("Unexpected reset response: %+v", reset)
	}

	w = httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("GET", "/api/sessions/ab12/state", nil))
	var state engine.GameState
	parseResponse(t, w, &state)
	if state.Width != 4 || state.Height != 3 {
		t.Errorf("Unexpected state: %+v", state)
	}

	w = httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("GET", "/api/sessions/zzzz/state", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestGetHistory(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  service.HistoryOptions
	}{
		{"Defaults", "", service.HistoryOptions{Page: 1, Limit: 20, Order: "desc"}},
		{"Explicit", "?page=3&limit=5&order=asc", service.HistoryOptions{Page: 3, Limit: 5, Order: "asc"}},
		{"Bad values fall back", "?page=-1&limit=abc&order=sideways", service.HistoryOptions{Page: 1, Limit: 20, Order: "desc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got service.HistoryOptions
			mockService := &MockGameService{
				GetMoveHistoryFunc: func(ctx context.Context, id string, opts service.HistoryOptions) (*service.HistoryResponse, error) {
					got = opts
					return &service.HistoryResponse{Page: opts.Page, PageSize: opts.Limit}, nil
				},
			}
			server := setupTestServer(t, mockService)
			w := httptest.NewRecorder()
			server.ServeHTTP(w, makeRequest("GET", "/api/sessions/ab12/history"+tt.query, nil))

			if w.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", w.Code)
			}
			if got != tt.want {
				t.Errorf("Expected options %+v, got %+v", tt.want, got)
			}
		})
	}
}

// Query Tests

func TestFindPath(t *testing.T) {
	var gotStart, gotTarget grid.Coordinate
	mockService := &MockGameService{
		FindPathFunc: func(ctx context.Context, id string, start, target grid.Coordinate) (*service.PathResponse, error) {
			gotStart, gotTarget = start, target
			if target.X < 0 {
				return nil, fmt.Errorf("%w: %v", service.ErrInvalidRequest, pathfind.ErrNodeNotFound)
			}
			return &service.PathResponse{
				Start:  start,
				Target: target,
				Result: pathfind.Result{Path: []grid.Coordinate{target}, Found: true},
			}, nil
		},
	}
	server := setupTestServer(t, mockService)

	t.Run("POST body", func(t *testing.T) {
		body := map[string]grid.Coordinate{"start": grid.C(3, 2), "target": grid.C(3, 1)}
		w := httptest.NewRecorder()
		server.ServeHTTP(w, makeRequest("POST", "/api/sessions/ab12/path", body))
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		if gotStart != grid.C(3, 2) || gotTarget != grid.C(3, 1) {
			t.Errorf("Unexpected coordinates %v -> %v", gotStart, gotTarget)
		}
		var resp service.PathResponse
		parseResponse(t, w, &resp)
		if !resp.Found || len(resp.Path) != 1 {
			t.Errorf("Unexpected response: %+v", resp)
		}
	})

	t.Run("GET query", func(t *testing.T) {
		w := httptest.NewRecorder()
		server.ServeHTTP(w, makeRequest("GET", "/api/sessions/ab12/path?sx=0&sy=2&tx=3&ty=0", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		if gotStart != grid.C(0, 2) || gotTarget != grid.C(3, 0) {
			t.Errorf("Unexpected coordinates %v -> %v", gotStart, gotTarget)
		}
	})

	t.Run("GET missing parameters", func(t *testing.T) {
		w := httptest.NewRecorder()
		server.ServeHTTP(w, makeRequest("GET", "/api/sessions/ab12/path?sx=0", nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})

	t.Run("Off board", func(t *testing.T) {
		body := map[string]grid.Coordinate{"start": grid.C(0, 0), "target": grid.C(-1, 0)}
		w := httptest.NewRecorder()
		server.ServeHTTP(w, makeRequest("POST", "/api/sessions/ab12/path", body))
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})
}

func TestCheckSpaceAndCarRoute(t *testing.T) {
	var gotSpace service.SpaceRequest
	mockService := &MockGameService{
		CheckSpaceFunc: func(ctx context.Context, id string, req service.SpaceRequest) (*service.SpaceResponse, error) {
			gotSpace = req
			return &service.SpaceResponse{Origin: req.Origin, Direction: grid.Right, Span: req.Span, Available: true}, nil
		},
		CarRouteFunc: func(ctx context.Context, id, carID string) (*service.CarRouteResponse, error) {
			if carID != "car-1" {
				return nil, fmt.Errorf("%w: %s", engine.ErrCarNotFound, carID)
			}
			return &service.CarRouteResponse{CarID: carID, State: engine.CarParked, Found: true}, nil
		},
	}
	server := setupTestServer(t, mockService)

	body := service.SpaceRequest{Origin: grid.C(0, 1), Direction: "right", Span: 2}
	w := httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("POST", "/api/sessions/ab12/space", body))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if gotSpace != body {
		t.Errorf("Expected request %+v, got %+v", body, gotSpace)
	}

	w = httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("GET", "/api/sessions/ab12/cars/car-1/route", nil))
	var route service.CarRouteResponse
	parseResponse(t, w, &route)
	if route.CarID != "car-1" || !route.Found {
		t.Errorf("Unexpected route: %+v", route)
	}

	w = httptest.NewRecorder()
	server.ServeHTTP(w, makeRequest("GET", "/api/sessions/ab12/cars/ghost/route", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

// Configuration Tests

func TestConfigs(t *testing.T) {
	var saved string
	mockService := &MockGameService{
		ListConfigsFunc: func(ctx context.Context) ([]*service.ConfigInfo, error) {
			return []*service.ConfigInfo{{ConfigID: "default", Cars: 2}, {ConfigID: "gridlock", Cars: 6}}, nil
		},
		LoadConfigFunc: func(ctx context.Context, name string) (*engine.LevelConfig, error) {
			if name != "gridlock" {
				return nil, service.ErrConfigNotFound
			}
			return &engine.LevelConfig{Name: "Gridlock", Width: 6, Height: 6}, nil
		},
		SaveConfigFunc: func(ctx context.Context, name string, cfg *engine.LevelConfig) error {
			if cfg.Width < engine.MinGridSize {
				return fmt.Errorf("%w: width too small", engine.ErrInvalidLevel)
			}
			saved = name
			return nil
		},
	}
	server := setupTestServer(t, mockService)

	t.Run("List", func(t *testing.T) {
		w := httptest.NewRecorder()
		server.ServeHTTP(w, makeRequest("GET", "/api/configs", nil))
		var resp []*service.ConfigInfo
		parseResponse(t, w, &resp)
		if len(resp) != 2 || resp[1].Cars != 6 {
			t.Errorf("Unexpected configs: %+v", resp)
		}
	})

	t.Run("Get", func(t *testing.T) {
		w := httptest.NewRecorder()
		server.ServeHTTP(w, makeRequest("GET", "/api/configs/gridlock", nil))
		var resp engine.LevelConfig
		parseResponse(t, w, &resp)
		if resp.Name != "Gridlock" {
			t.Errorf("Unexpected config: %+v", resp)
		}

		w = httptest.NewRecorder()
		server.ServeHTTP(w, makeRequest("GET", "/api/configs/missing", nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", w.Code)
		}
	})

	t.Run("Create", func(t *testing.T) {
		body := map[string]interface{}{"config_id": "mine", "name": "Mine", "width": 5, "height": 5}
		w := httptest.NewRecorder()
		server.ServeHTTP(w, makeRequest("POST", "/api/configs", body))
		if w.Code != http.StatusCreated {
			t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
		}
		if saved != "mine" {
			t.Errorf("Expected config saved as mine, got %q", saved)
		}
	})

	t.Run("Create uses name when no id", func(t *testing.T) {
		body := map[string]interface{}{"name": "named", "width": 5, "height": 5}
		w := httptest.NewRecorder()
		server.ServeHTTP(w, makeRequest("POST", "/api/configs", body))
		if w.Code != http.StatusCreated || saved != "named" {
			t.Errorf("Expected 201 and save as named, got %d %q", w.Code, saved)
		}
	})

	t.Run("Create invalid", func(t *testing.T) {
		body := map[string]interface{}{"name": "tiny", "width": 1, "height": 1}
		w := httptest.NewRecorder()
		server.ServeHTTP(w, makeRequest("POST", "/api/configs", body))
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})

	t.Run("Create without name", func(t *testing.T) {
		w := httptest.NewRecorder()
		server.ServeHTTP(w, makeRequest("POST", "/api/configs", map[string]int{"width": 5}))
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})
}

func TestUnifiedSessions(t *testing.T) {
	all := []*service.SessionInfo{
		{ID: "a", ConfigName: "default", GameState: &engine.GameState{TotalCars: 2}},
		{ID: "b", ConfigName: "gridlock", GameState: &engine.GameState{TotalCars: 6}},
		{ID: "c", ConfigName: "gridlock", GameState: &engine.GameState{TotalCars: 6}},
	}
	mockService := &MockGameService{
		ListSessionsFunc: func(ctx context.Context) ([]*service.SessionInfo, error) { return all, nil },
		GetSessionFunc: func(ctx context.Context, id string) (*service.SessionInfo, error) {
			for _, s := range all {
				if s.ID == id {
					return s, nil
				}
			}
			return nil, service.ErrSessionNotFound
		},
	}
	server := setupTestServer(t, mockService)

	tests := []struct {
		name      string
		query     string
		wantCount int
		wantCars  int
	}{
		{"All", "", 3, 2},
		{"By config", "?configName=gridlock", 2, 6},
		{"By IDs skips unknown", "?sessionIds=c,%20zz,a", 2, 6},
		{"No match", "?configName=none", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			server.ServeHTTP(w, makeRequest("GET", "/api/sessions/unified"+tt.query, nil))
			if w.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", w.Code)
			}
			var resp struct {
				TotalCars int                      `json:"total_cars"`
				Sessions  []map[string]interface{} `json:"sessions"`
			}
			parseResponse(t, w, &resp)
			if len(resp.Sessions) != tt.wantCount || resp.TotalCars != tt.wantCars {
				t.Errorf("Expected %d sessions and %d cars, got %d and %d", tt.wantCount, tt.wantCars, len(resp.Sessions), resp.TotalCars)
			}
		})
	}
}

func TestWebSocketAndHealth(t *testing.T) {
	mockService := &MockGameService{
		GetSessionFunc: func(ctx context.Context, id string) (*service.SessionInfo, error) {
			return nil, service.ErrSessionNotFound
		},
	}
	server := setupTestServer(t, mockService)

	tests := []struct {
		path string
		want int
	}{
		{"/ws", http.StatusBadRequest},
		{"/ws?session=zzzz", http.StatusNotFound},
		{"/api/health", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			server.ServeHTTP(w, makeRequest("GET", tt.path, nil))
			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, w.Code)
			}
		})
	}

	t.Run("No hub", func(t *testing.T) {
		server := NewServer(&MockGameService{}, nil, logger.Discard())
		w := httptest.NewRecorder()
		server.ServeHTTP(w, makeRequest("GET", "/ws?session=ab12", nil))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", w.Code)
		}

		// Actions still work without broadcasting
		w = httptest.NewRecorder()
		server.ServeHTTP(w, makeRequest("POST", "/api/sessions/ab12/tap", grid.C(0, 0)))
		if w.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
	})
}

// TestFullGame drives a real service through the HTTP layer
func TestFullGame(t *testing.T) {
	configs, err := config.NewManager(t.TempDir(), logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	level := &engine.LevelConfig{
		Name:        "Lot",
		Description: "One red car and its driver",
		Width:       4,
		Height:      3,
		Objects: []engine.ObjectConfig{
			{Kind: "small_car", Color: "red", X: 0, Y: 0, Direction: "right"},
			{Kind: "stickman", Color: "red", X: 3, Y: 2},
		},
		Messages: engine.Messages{Welcome: "Park it", Victory: "Cleared %d cars!"},
	}
	if err := configs.SaveConfig("lot", level); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	svc := service.NewGameService(session.NewManager(logger.Discard()), configs, logger.Discard())
	server := NewServer(svc, nil, logger.Discard())

	do := func(method, path string, body interface{}) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		server.ServeHTTP(w, makeRequest(method, path, body))
		return w
	}

	w := do("POST", "/api/sessions", map[string]string{"config_id": "lot"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Create session: %d %s", w.Code, w.Body.String())
	}
	var info service.SessionInfo
	parseResponse(t, w, &info)
	base := "/api/sessions/" + info.ID

	if w := do("POST", "/api/sessions", map[string]string{"config_id": "nope"}); w.Code != http.StatusNotFound {
		t.Errorf("Unknown level: expected 404, got %d", w.Code)
	}
	if w := do("GET", "/api/sessions/zzzz/state", nil); w.Code != http.StatusNotFound {
		t.Errorf("Unknown session: expected 404, got %d", w.Code)
	}
	if w := do("POST", base+"/path", map[string]grid.Coordinate{"start": grid.C(3, 2), "target": grid.C(9, 9)}); w.Code != http.StatusBadRequest {
		t.Errorf("Off-board path: expected 400, got %d", w.Code)
	}
	if w := do("GET", base+"/cars/ghost/route", nil); w.Code != http.StatusNotFound {
		t.Errorf("Unknown car: expected 404, got %d", w.Code)
	}

	w = do("POST", base+"/bulk-tap", map[string]interface{}{
		"taps": []grid.Coordinate{grid.C(3, 2), grid.C(0, 0)},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Bulk tap: %d %s", w.Code, w.Body.String())
	}
	var result service.BulkTapResult
	parseResponse(t, w, &result)
	if !result.Success || result.TapsExecuted != 2 {
		t.Errorf("Expected both taps to succeed, got %+v", result)
	}
	if !result.GameState.Victory || result.GameState.CarsExited != 1 {
		t.Errorf("Expected victory with one car out, got victory=%v exited=%d", result.GameState.Victory, result.GameState.CarsExited)
	}

	w = do("GET", base+"/history?order=asc", nil)
	var history service.HistoryResponse
	parseResponse(t, w, &history)
	if history.TotalMoves != 2 {
		t.Errorf("Expected 2 moves in history, got %d", history.TotalMoves)
	}
}
