// Package config loads the parking lot levels served by the game.
//
// Levels live as JSON or YAML files in one directory. A level's ID is its
// file name without the extension, so "rush_hour.yaml" is requested as
// "rush_hour". When the same ID exists in several formats, .json is
// preferred over .yaml and .yaml over .yml.
//
// Usage:
//
//	manager, err := config.NewManager("configs", log)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	level, err := manager.LoadConfig("gridlock")
//	levels, err := manager.ListConfigs()
//
//	// Drop cached levels whenever their files change
//	go manager.Watch(ctx, nil)
//
// The default level is default.json (or .yaml), else the first valid level
// in the directory, else the built-in engine level. Every level is checked
// with engine.ValidateLevelConfig before it is cached or saved.
package config
