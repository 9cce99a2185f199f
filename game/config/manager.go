package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/wricardo/mcp-training/carpark/game/board"
	"github.com/wricardo/mcp-training/carpark/game/engine"
	"github.com/wricardo/mcp-training/carpark/game/service"
)

var (
	ErrConfigNotFound = service.ErrConfigNotFound
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// DefaultID names the level used when a session asks for none
const DefaultID = "default"

// extensions are tried in this order when a name has none
var extensions = []string{".json", ".yaml", ".yml"}

// Manager loads and caches level files from one directory
type Manager struct {
	configDir     string
	log           logrus.FieldLogger
	defaultID     string
	defaultConfig *engine.LevelConfig
	configs       map[string]*engine.LevelConfig
	mu            sync.RWMutex
}

// NewManager creates a new configuration manager
func NewManager(configDir string, log logrus.FieldLogger) (*Manager, error) {
	// Ensure config directory exists
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("config directory does not exist: %s", configDir)
	}

	m := &Manager{
		configDir: configDir,
		log:       log,
		configs:   make(map[string]*engine.LevelConfig),
	}
	m.loadDefaultConfig()
	return m, nil
}

// LoadConfig loads a level by ID (file name with or without extension)
func (m *Manager) LoadConfig(name string) (*engine.LevelConfig, error) {
	id := configID(name)

	m.mu.RLock()
	// Check cache first
	if config, exists := m.configs[id]; exists {
		m.mu.RUnlock()
		return config, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if config, exists := m.configs[id]; exists {
		return config, nil
	}

	path, err := m.findFile(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config, err := engine.ParseLevelConfig(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %v", ErrInvalidConfig, filepath.Base(path), err)
	}
	if err := engine.ValidateLevelConfig(config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	m.configs[id] = config
	return config, nil
}

// findFile resolves a level name to a file in the config directory
func (m *Manager) findFile(name string) (string, error) {
	if hasLevelExt(name) {
		path := filepath.Join(m.configDir, name)
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("%w: %s", ErrConfigNotFound, name)
		}
		return path, nil
	}
	for _, ext := range extensions {
		path := filepath.Join(m.configDir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrConfigNotFound, name)
}

// ListConfigs returns information about every valid level in the directory.
// When a level exists in more than one format the first extension wins.
func (m *Manager) ListConfigs() ([]*service.ConfigInfo, error) {
	entries, err := os.ReadDir(m.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}

	files := map[string]string{}
	for _, entry := range entries {
		if entry.IsDir() || !hasLevelExt(entry.Name()) {
			continue
		}
		id := configID(entry.Name())
		if prev, ok := files[id]; ok && extRank(prev) <= extRank(entry.Name()) {
			continue
		}
		files[id] = entry.Name()
	}

	ids := make([]string, 0, len(files))
	for id := range files {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	configs := []*service.ConfigInfo{}
	for _, id := range ids {
		config, err := m.LoadConfig(files[id])
		if err != nil {
			m.log.WithField("file", files[id]).WithError(err).Warn("skipping invalid level")
			continue
		}

		cars := 0
		for _, o := range config.Objects {
			if kind, err := board.ParseKind(o.Kind); err == nil && kind.IsCar() {
				cars++
			}
		}
		configs = append(configs, &service.ConfigInfo{
			Filename:    files[id],
			ConfigID:    id,
			Name:        config.Name,
			Description: config.Description,
			Width:       config.Width,
			Height:      config.Height,
			Cars:        cars,
		})
	}

	return configs, nil
}

// GetDefault returns the default level
func (m *Manager) GetDefault() *engine.LevelConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultConfig
}

// DefaultID returns the ID of the default level
func (m *Manager) DefaultID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultID
}

// SetDefault sets the default level by name
func (m *Manager) SetDefault(name string) error {
	config, err := m.LoadConfig(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultID = configID(name)
	m.defaultConfig = config
	return nil
}

// RefreshCache drops every cached level and reloads the default
func (m *Manager) RefreshCache() {
	m.mu.Lock()
	m.configs = make(map[string]*engine.LevelConfig)
	m.mu.Unlock()

	m.loadDefaultConfig()
}

// Invalidate drops one level from the cache. The default is reloaded when it
// is the one that changed.
func (m *Manager) Invalidate(name string) {
	id := configID(name)

	m.mu.Lock()
	delete(m.configs, id)
	isDefault := id == m.defaultID
	m.mu.Unlock()

	if !isDefault {
		return
	}
	config, err := m.LoadConfig(id)
	if err != nil {
		m.log.WithField("level", id).WithError(err).Warn("default level no longer loads, keeping the previous one")
		return
	}
	m.mu.Lock()
	m.defaultConfig = config
	m.mu.Unlock()
}

// loadDefaultConfig picks default.*, then the first valid level, then the
// built-in level.
func (m *Manager) loadDefaultConfig() {
	id := DefaultID
	config, err := m.LoadConfig(DefaultID)
	if err != nil {
		config = nil
		if configs, listErr := m.ListConfigs(); listErr == nil && len(configs) > 0 {
			id = configs[0].ConfigID
			config, _ = m.LoadConfig(configs[0].Filename)
		}
	}
	if config == nil {
		id = DefaultID
		config = engine.DefaultLevelConfig()
		m.log.WithField("dir", m.configDir).Info("no level files found, using the built-in level")
	}

	m.mu.Lock()
	m.defaultID = id
	m.defaultConfig = config
	m.mu.Unlock()
}

// SaveConfig validates a level and writes it to disk. Names ending in .yaml
// or .yml are written as YAML, everything else as JSON.
func (m *Manager) SaveConfig(name string, config *engine.LevelConfig) error {
	if err := engine.ValidateLevelConfig(config); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if name == "" || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: bad level name %q", ErrInvalidConfig, name)
	}

	filename := name
	if !hasLevelExt(filename) {
		filename = name + ".json"
	}

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(config)
	default:
		data, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	configPath := filepath.Join(m.configDir, filename)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	m.mu.Lock()
	m.configs[configID(filename)] = config
	m.mu.Unlock()
	return nil
}

// Watch invalidates levels as their files change until ctx is done.
// onChange, when set, is called with the ID of each changed level.
func (m *Manager) Watch(ctx context.Context, onChange func(id string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(m.configDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", m.configDir, err)
	}

	last := make(map[string]time.Time)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if !hasLevelExt(event.Name) {
				continue
			}
			now := time.Now()
			if t, ok := last[event.Name]; ok && now.Sub(t) < 100*time.Millisecond {
				continue
			}
			last[event.Name] = now

			id := configID(filepath.Base(event.Name))
			m.Invalidate(id)
			m.log.WithFields(logrus.Fields{"level": id, "op": event.Op.String()}).Debug("level file changed")
			if onChange != nil {
				onChange(id)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.log.WithError(err).Warn("level watcher error")
		}
	}
}

func hasLevelExt(name string) bool {
	return extRank(name) < len(extensions)
}

func extRank(name string) int {
	ext := strings.ToLower(filepath.Ext(name))
	for i, e := range extensions {
		if e == ext {
			return i
		}
	}
	return len(extensions)
}

// configID strips a level extension, so "easy.yaml" and "easy" name the same level
func configID(name string) string {
	if hasLevelExt(name) {
		return strings.TrimSuffix(name, filepath.Ext(name))
	}
	return name
}
