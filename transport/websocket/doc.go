// Package websocket pushes game updates to browser clients.
//
// Clients connect to /ws?session=<id> and receive a JSON Message every time
// the session changes: a "state_update" carrying the full engine.GameState
// after each action, and a "game_events" message with the events the action
// produced (walks, boardings, departures, victory).
//
// Broadcasts are queued on a buffered channel and delivered by Hub.Run, so
// HTTP handlers never wait on slow sockets. A client whose send buffer is
// full is dropped. Clients are not expected to send anything; reads only
// keep the connection alive.
//
//	hub := websocket.NewHub(log)
//	go hub.Run(ctx)
//	hub.BroadcastToSession(sessionID, state)
package websocket
