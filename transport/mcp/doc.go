// Package mcp exposes the parking puzzle to AI agents over the Model Context
// Protocol.
//
// The Client registers MCP tools and forwards each call to the REST API, so
// the same server answers humans, the WebSocket viewer and agents.
//
// Tools:
//   - create_session, get_session, list_sessions, list_configs: session and level management
//   - game_state: the lot drawn as text plus car and stickman lists
//   - tap, bulk_tap: the player's only real input
//   - walk, board: explicit stickman moves
//   - reset_game, move_history: restart and review
//   - find_path, check_space, car_route: read-only queries that never change the board
//   - describe_cell, game_instructions: help for reading the board
//
// Every game tool takes a session_id; the tools are stateless between calls.
//
// Transport:
//
//	client := mcp.NewClient("http://localhost:8080")
//	server.ServeStdio(client.GetMCPServer())
//
// or, over HTTP, pass each POSTed body to GetMCPServer().HandleMessage.
package mcp
