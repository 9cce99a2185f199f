// Package service is the business layer between the transports (REST,
// WebSocket, MCP) and the game engine.
//
// GameService is the main interface. It looks sessions up through a
// SessionManager, levels through a ConfigManager, runs the requested action
// on the session's engine and persists the session afterwards. Calls are
// serialized by one mutex, so a GameEngine never sees two callers at once.
//
// Usage:
//
//	configs, _ := config.NewManager("configs", log)
//	sessions := session.NewManager(log)
//	svc := service.NewGameService(sessions, configs, log)
//
//	info, err := svc.CreateSession(ctx, "gridlock")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Select the stickman at (0,5) and walk it to (2,5)
//	from := grid.C(0, 5)
//	resp, err := svc.MoveStickman(ctx, info.ID, &from, grid.C(2, 5))
//
// Errors wrap ErrSessionNotFound, ErrConfigNotFound or ErrInvalidRequest so
// transports can map them to status codes with errors.Is.
package service
