// Package engine provides the gameplay of the car park puzzle.
//
// The engine package implements the game mechanics including:
//   - Tap resolution into stickman, car, obstacle or ground hits
//   - Walking the selected stickman across the lot with A*
//   - Boarding cars of the matching color from their approach cells
//   - Exit lanes and ring road routes for cars leaving the lot
//   - Move history and deterministic replay
//   - Level loading and validation
//
// Core Types:
//
// The Engine interface defines the main contract for game operations,
// implemented by GameEngine. GameState is the client view of a running
// level, while LevelConfig describes a level as authored in JSON or YAML.
//
// Usage:
//
//	config, err := engine.LoadLevelConfig("configs/default.json")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	gameEngine, err := engine.NewEngine(config)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	gameEngine.Tap(grid.C(4, 5)) // select a stickman
//	gameEngine.Tap(grid.C(1, 0)) // send it to a car
//	state := gameEngine.GetState()
//
// Game Rules:
//
// Cars are parked on the lot between obstacles and stickmen. A stickman can
// only board a car of its own color, and only by reaching one of the free
// cells beside the car's front end. A boarded car drives out forward if
// nothing stands between its front and the edge, backward if its rear is
// free, and otherwise waits until the way clears. The level is won when
// every car has left.
package engine
