// Package api provides the HTTP REST API for the parking puzzle.
//
// Endpoints:
//
// Session Management:
//   - POST /api/sessions - Create a session ({"config_id": "gridlock"}, empty for the default level)
//   - GET /api/sessions - List sessions (?sort=created|accessed&order=asc|desc&limit=N)
//   - GET /api/sessions/unified - Several sessions at once (?sessionIds=a,b or ?configName=x)
//   - GET /api/sessions/{id} - Session details including state and level
//   - DELETE /api/sessions/{id} - Delete a session
//
// Game Operations:
//   - GET /api/sessions/{id}/state - Current game state
//   - POST /api/sessions/{id}/tap - Tap a cell: {"x": 3, "y": 2}
//   - POST /api/sessions/{id}/bulk-tap - Up to 50 taps: {"taps": [{"x":3,"y":2}], "reset": false}
//   - POST /api/sessions/{id}/select - Select or deselect a stickman: {"x": 3, "y": 2}
//   - POST /api/sessions/{id}/walk - Walk a stickman: {"from": {"x":3,"y":2}, "to": {"x":1,"y":1}}
//   - POST /api/sessions/{id}/board - Board a car: {"from": {"x":3,"y":2}, "car": {"x":0,"y":0}}
//   - POST /api/sessions/{id}/reset - Restart the level (recorded in history)
//   - GET /api/sessions/{id}/history - Move history (?page=1&limit=20&order=desc)
//
// "from" is optional on walk and board; without it the current selection is
// used.
//
// Queries:
//   - GET|POST /api/sessions/{id}/path - Walking route: {"start": {...}, "target": {...}} or ?sx=&sy=&tx=&ty=
//   - POST /api/sessions/{id}/space - Does a span fit: {"origin": {...}, "direction": "right", "span": 2}
//   - GET /api/sessions/{id}/cars/{carID}/route - Exit lane and road route of a car
//
// Configuration:
//   - GET /api/configs - List levels
//   - GET /api/configs/{name} - Get one level
//   - POST /api/configs - Save a level (the body is the level, plus an optional config_id)
//
// Other:
//   - GET /ws?session={id} - WebSocket state updates
//   - GET /api/health - Health check
//
// A rejected move (no path, wrong colour, nothing selected) is not an HTTP
// error: the response has success=false and a message. HTTP errors are JSON:
//
//	{
//	  "error": "session not found: zzzz",
//	  "code": 404
//	}
//
// 404 is returned for unknown sessions, levels and cars, 400 for malformed
// requests and invalid levels, 500 for anything else.
package api
