package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/strandlight/beamcast/internal/logger"
)

// Manager owns the configuration file: it loads it at construction,
// writes defaults on first run and serializes every save.
type Manager struct {
	configPath string
	mu         sync.RWMutex
	config     *Config
}

// NewManager loads the configuration from configFile, falling back to
// ~/.config/beamcast/config.yaml when empty. A missing file is created
// with defaults.
func NewManager(configFile string) (*Manager, error) {
	path := configFile
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		path = filepath.Join(homeDir, ".config", "beamcast", "config.yaml")
	}

	m := &Manager{configPath: path}

	if err := m.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		logger.WithComponent("config").Info().
			Str("path", m.configPath).
			Msg("Config file not found, writing defaults")
		m.config = Defaults()
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("writing default config: %w", err)
		}
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Int("outputs", len(m.config.Outputs)).
		Msg("Config loaded")
	return m, nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", m.configPath, err)
	}
	cfg.normalize()

	m.mu.Lock()
	m.config = &cfg
	m.mu.Unlock()
	return nil
}

// Get returns a deep copy of the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config == nil {
		return Defaults()
	}
	return m.config.clone()
}

// Save writes the current configuration to disk.
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()
	if cfg == nil {
		cfg = Defaults()
	}

	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", m.configPath, err)
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Config saved")
	return nil
}

// Update replaces the whole configuration and saves it.
func (m *Manager) Update(cfg *Config) error {
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.config = cfg.clone()
	m.mu.Unlock()
	return m.Save()
}

// ConfigPath returns where the configuration lives on disk.
func (m *Manager) ConfigPath() string {
	return m.configPath
}

// SetServerPort updates the API port and saves.
func (m *Manager) SetServerPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("server_port %d out of range", port)
	}
	m.mu.Lock()
	m.config.ServerPort = port
	m.mu.Unlock()
	return m.Save()
}

// ServerPort returns the API port.
func (m *Manager) ServerPort() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.ServerPort
}

// SetLogLevel updates the log level and saves.
func (m *Manager) SetLogLevel(level string) error {
	m.mu.Lock()
	m.config.LogLevel = level
	m.mu.Unlock()
	return m.Save()
}

// LogLevel returns the configured log level.
func (m *Manager) LogLevel() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.LogLevel
}

// SetTargetFPS updates the engine throttle and saves.
func (m *Manager) SetTargetFPS(fps float64) error {
	if fps <= 0 {
		return fmt.Errorf("target_fps %v invalid", fps)
	}
	m.mu.Lock()
	m.config.Engine.TargetFPS = fps
	m.mu.Unlock()
	return m.Save()
}
