package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/wricardo/mcp-training/carpark/game/config"
	"github.com/wricardo/mcp-training/carpark/game/engine"
	"github.com/wricardo/mcp-training/carpark/game/grid"
	"github.com/wricardo/mcp-training/carpark/game/service"
	"github.com/wricardo/mcp-training/carpark/transport/websocket"
)

// Server represents the REST API server
type Server struct {
	service service.GameService
	hub     *websocket.Hub
	router  *mux.Router
	log     logrus.FieldLogger
}

// NewServer creates a new API server. hub may be nil when no browser clients
// are served.
func NewServer(gameService service.GameService, hub *websocket.Hub, log logrus.FieldLogger) *Server {
	s := &Server{
		service: gameService,
		hub:     hub,
		router:  mux.NewRouter(),
		log:     log,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.Use(s.logRequests)

	api := s.router.PathPrefix("/api").Subrouter()

	// Session management
	api.HandleFunc("/sessions", s.handleCreateSession).Methods("POST")
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	// Must be registered before the {id} pattern
	api.HandleFunc("/sessions/unified", s.handleUnifiedSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods("DELETE")

	// Game operations
	api.HandleFunc("/sessions/{id}/state", s.handleGetGameState).Methods("GET")
	api.HandleFunc("/sessions/{id}/tap", s.handleTap).Methods("POST")
	api.HandleFunc("/sessions/{id}/bulk-tap", s.handleBulkTap).Methods("POST")
	api.HandleFunc("/sessions/{id}/select", s.handleSelect).Methods("POST")
	api.HandleFunc("/sessions/{id}/walk", s.handleWalk).Methods("POST")
	api.HandleFunc("/sessions/{id}/board", s.handleBoard).Methods("POST")
	api.HandleFunc("/sessions/{id}/reset", s.handleReset).Methods("POST")
	api.HandleFunc("/sessions/{id}/history", s.handleGetHistory).Methods("GET")

	// Queries
	api.HandleFunc("/sessions/{id}/path", s.handleFindPath).Methods("GET", "POST")
	api.HandleFunc("/sessions/{id}/space", s.handleCheckSpace).Methods("POST")
	api.HandleFunc("/sessions/{id}/cars/{carID}/route", s.handleCarRoute).Methods("GET")

	// Configuration
	api.HandleFunc("/configs", s.handleListConfigs).Methods("GET")
	api.HandleFunc("/configs", s.handleCreateConfig).Methods("POST")
	api.HandleFunc("/configs/{name}", s.handleGetConfig).Methods("GET")

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// WebSocket
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		}).Debug("request")
	})
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{"error": message, "code": status})
}

// respondServiceError maps service errors to status codes
func respondServiceError(w http.ResponseWriter, err error) {
	respondError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrConfigNotFound),
		errors.Is(err, engine.ErrCarNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, engine.ErrInvalidLevel):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", service.ErrInvalidRequest, err)
	}
	return nil
}

// broadcast pushes the new state and any events to browser clients
func (s *Server) broadcast(sessionID string, state *engine.GameState, events []service.GameEvent) {
	if s.hub == nil || state == nil {
		return
	}
	sessionID = strings.ToLower(sessionID)
	s.hub.BroadcastToSession(sessionID, state)
	if len(events) > 0 {
		s.hub.BroadcastEvent(sessionID, websocket.EventGame, events)
	}
}

// logAction writes the compact per-action line used to follow a game from the
// server log
func (s *Server) logAction(sessionID string, resp *service.ActionResponse) {
	fields := logrus.Fields{
		"session": sessionID,
		"action":  resp.Result.Action,
		"target":  resp.Result.Hit.Coordinate,
		"hit":     resp.Result.Hit.Kind,
		"success": resp.Success,
	}
	if len(resp.Result.Path) > 0 {
		fields["steps"] = len(resp.Result.Path)
	}
	if len(resp.Result.Departed) > 0 {
		fields["departed"] = len(resp.Result.Departed)
	}
	s.log.WithFields(fields).Info("action")
}

// Session Handlers

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConfigID   string `json:"config_id,omitempty"`
		ConfigName string `json:"config_name,omitempty"` // Deprecated, use config_id
	}

	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	configID := req.ConfigID
	if configID == "" && req.ConfigName != "" {
		configID = req.ConfigName
	}

	session, err := s.service.CreateSession(r.Context(), configID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, session)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.service.ListSessions(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	total := len(sessions)

	query := r.URL.Query()
	sortBy := query.Get("sort")    // "created", "accessed" (default)
	order := query.Get("order")    // "asc", "desc" (default: "desc")
	limitStr := query.Get("limit") // number of sessions to return

	if sortBy == "" {
		sortBy = "accessed"
	}
	if order == "" {
		order = "desc"
	}

	sort.Slice(sessions, func(i, j int) bool {
		var ti, tj time.Time
		if sortBy == "created" {
			ti, tj = sessions[i].CreatedAt, sessions[j].CreatedAt
		} else {
			ti, tj = sessions[i].LastAccessedAt, sessions[j].LastAccessedAt
		}

		if order == "asc" {
			return ti.Before(tj)
		}
		return ti.After(tj)
	})

	limit := len(sessions)
	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l < len(sessions) {
			limit = l
		}
	}
	sessions = sessions[:limit]

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(sessions),
		"total":    total,
		"sessions": sessions,
		"sort":     sortBy,
		"order":    order,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.service.GetSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, session)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if err := s.service.DeleteSession(r.Context(), sessionID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Session %s deleted", sessionID),
	})
}

// Game Operation Handlers

func (s *Server) handleGetGameState(w http.ResponseWriter, r *http.Request) {
	state, err := s.service.GetGameState(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleTap(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var target grid.Coordinate
	if err := decode(r, &target); err != nil {
		respondServiceError(w, err)
		return
	}

	resp, err := s.service.Tap(r.Context(), sessionID, target)
	s.finishAction(w, sessionID, resp, err)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var at grid.Coordinate
	if err := decode(r, &at); err != nil {
		respondServiceError(w, err)
		return
	}

	resp, err := s.service.Select(r.Context(), sessionID, at)
	s.finishAction(w, sessionID, resp, err)
}

func (s *Server) handleWalk(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		From *grid.Coordinate `json:"from,omitempty"`
		To   *grid.Coordinate `json:"to"`
	}
	if err := decode(r, &req); err != nil {
		respondServiceError(w, err)
		return
	}
	if req.To == nil {
		respondError(w, http.StatusBadRequest, "to is required")
		return
	}

	resp, err := s.service.MoveStickman(r.Context(), sessionID, req.From, *req.To)
	s.finishAction(w, sessionID, resp, err)
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		From *grid.Coordinate `json:"from,omitempty"`
		Car  *grid.Coordinate `json:"car"`
	}
	if err := decode(r, &req); err != nil {
		respondServiceError(w, err)
		return
	}
	if req.Car == nil {
		respondError(w, http.StatusBadRequest, "car is required")
		return
	}

	resp, err := s.service.BoardCar(r.Context(), sessionID, req.From, *req.Car)
	s.finishAction(w, sessionID, resp, err)
}

// finishAction logs, broadcasts and writes the response of a single action.
// A rejected action is still a 200: the game state tells the client why.
func (s *Server) finishAction(w http.ResponseWriter, sessionID string, resp *service.ActionResponse, err error) {
	if err != nil {
		respondServiceError(w, err)
		return
	}

	s.logAction(sessionID, resp)
	s.broadcast(sessionID, resp.GameState, resp.Events)
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBulkTap(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		Taps  []grid.Coordinate `json:"taps"`
		Reset bool              `json:"reset,omitempty"`
	}
	if err := decode(r, &req); err != nil {
		respondServiceError(w, err)
		return
	}

	result, err := s.service.BulkTap(r.Context(), sessionID, req.Taps, req.Reset)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	s.broadcast(sessionID, result.GameState, result.Events)

	stop := result.StoppedReason
	if stop == "" {
		stop = "none"
	}
	s.log.WithFields(logrus.Fields{
		"session":   sessionID,
		"executed":  result.TapsExecuted,
		"requested": result.RequestedTaps,
		"stop":      stop,
		"exited":    result.GameState.CarsExited,
		"cars":      result.GameState.TotalCars,
	}).Info("bulk tap")

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	state, err := s.service.Reset(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	s.broadcast(sessionID, state, nil)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Game reset successfully",
		"state":   state,
	})
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	opts := service.HistoryOptions{
		Page:  1,
		Limit: 20,
		Order: "desc",
	}

	query := r.URL.Query()
	if pageStr := query.Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			opts.Page = p
		}
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			opts.Limit = l
		}
	}

	if order := query.Get("order"); order == "asc" || order == "desc" {
		opts.Order = order
	}

	history, err := s.service.GetMoveHistory(r.Context(), mux.Vars(r)["id"], opts)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, history)
}

// Query Handlers

// handleFindPath accepts either a JSON body {start, target} or the query
// parameters sx, sy, tx, ty.
func (s *Server) handleFindPath(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Start  grid.Coordinate `json:"start"`
		Target grid.Coordinate `json:"target"`
	}

	if r.Method == http.MethodPost {
		if err := decode(r, &req); err != nil {
			respondServiceError(w, err)
			return
		}
	} else {
		var err error
		if req.Start, err = queryCoordinate(r, "sx", "sy"); err != nil {
			respondServiceError(w, err)
			return
		}
		if req.Target, err = queryCoordinate(r, "tx", "ty"); err != nil {
			respondServiceError(w, err)
			return
		}
	}

	path, err := s.service.FindPath(r.Context(), mux.Vars(r)["id"], req.Start, req.Target)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, path)
}

func queryCoordinate(r *http.Request, xKey, yKey string) (grid.Coordinate, error) {
	query := r.URL.Query()
	x, errX := strconv.Atoi(query.Get(xKey))
	y, errY := strconv.Atoi(query.Get(yKey))
	if errX != nil || errY != nil {
		return grid.Coordinate{}, fmt.Errorf("%w: %s and %s must be integers", service.ErrInvalidRequest, xKey, yKey)
	}
	return grid.C(x, y), nil
}

func (s *Server) handleCheckSpace(w http.ResponseWriter, r *http.Request) {
	var req service.SpaceRequest
	if err := decode(r, &req); err != nil {
		respondServiceError(w, err)
		return
	}

	space, err := s.service.CheckSpace(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, space)
}

func (s *Server) handleCarRoute(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	route, err := s.service.CarRoute(r.Context(), vars["id"], vars["carID"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, route)
}

// Configuration Handlers

func (s *Server) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := s.service.ListConfigs(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, configs)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.service.LoadConfig(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleCreateConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConfigID string `json:"config_id,omitempty"`
		engine.LevelConfig
	}
	if err := decode(r, &req); err != nil {
		respondServiceError(w, err)
		return
	}

	configID := req.ConfigID
	if configID == "" {
		configID = req.Name
	}
	if configID == "" {
		respondError(w, http.StatusBadRequest, "Config name is required")
		return
	}

	if err := s.service.SaveConfig(r.Context(), configID, &req.LevelConfig); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message":   "Configuration saved successfully",
		"config_id": strings.TrimSuffix(configID, ".json"),
	})
}

// Unified Sessions Handler

// handleUnifiedSessions returns several sessions at once for the side by side
// view. Sessions are picked by sessionIds, by configName, or all.
func (s *Server) handleUnifiedSessions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var sessions []*service.SessionInfo

	if sessionIDs := query.Get("sessionIds"); sessionIDs != "" {
		ids := strings.Split(sessionIDs, ",")
		sessions = make([]*service.SessionInfo, 0, len(ids))
		for _, id := range ids {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if session, err := s.service.GetSession(r.Context(), id); err == nil {
				sessions = append(sessions, session)
			}
		}
	} else {
		all, err := s.service.ListSessions(r.Context())
		if err != nil {
			respondServiceError(w, err)
			return
		}
		configName := query.Get("configName")
		sessions = make([]*service.SessionInfo, 0, len(all))
		for _, session := range all {
			if configName == "" || session.ConfigName == configName {
				sessions = append(sessions, session)
			}
		}
	}

	configName := ""
	totalCars := 0
	if len(sessions) > 0 {
		configName = sessions[0].ConfigName
		if sessions[0].GameState != nil {
			totalCars = sessions[0].GameState.TotalCars
		}
	}

	entries := make([]map[string]interface{}, 0, len(sessions))
	for _, session := range sessions {
		entries = append(entries, map[string]interface{}{
			"session_id":    session.ID,
			"config_name":   session.ConfigName,
			"game_state":    session.GameState,
			"created_at":    session.CreatedAt,
			"last_accessed": session.LastAccessedAt,
		})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"config_name": configName,
		"total_cars":  totalCars,
		"sessions":    entries,
	})
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session parameter required", http.StatusBadRequest)
		return
	}
	if s.hub == nil {
		http.Error(w, "websocket updates disabled", http.StatusServiceUnavailable)
		return
	}

	if _, err := s.service.GetSession(r.Context(), sessionID); err != nil {
		http.Error(w, "Invalid session", http.StatusNotFound)
		return
	}

	s.hub.ServeWS(w, r, strings.ToLower(sessionID))
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
