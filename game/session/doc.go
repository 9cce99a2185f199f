// Package session keeps the game sessions of a server.
//
// A session is one player's run through one level: an engine, the level it
// was built from and the level's ID. Manager stores sessions under
// case-insensitive IDs and generates 4-character hex IDs when none is given.
//
// With a SessionPersistence attached, sessions are saved when created and
// whenever the service layer asks, and sessions missing from memory are
// loaded on demand. FilePersistence writes one JSON file per session holding
// the level ID and the move history. Loading replays that history on a fresh
// engine, so the board never needs to be serialized.
//
// Usage:
//
//	persistence, err := session.NewFilePersistence("sessions", configs)
//	if err != nil {
//		log.Fatal(err)
//	}
//	manager := session.NewManagerWithPersistence(persistence, log)
//	if err := manager.LoadPersistedSessions(); err != nil {
//		log.Warn(err)
//	}
//
//	sess, err := manager.Create("", "gridlock", level)
package session
