// Package config loads server settings from ~/.previewfs/config.yaml
// and keeps them fresh while the server runs. The file is created with
// commented defaults on first start, and a watcher reloads it on write
// when auto_reload is enabled.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

//go:embed default_config.yaml
var defaultConfigTemplate string

const (
	// ConfigPathEnvVar overrides the default config file location.
	ConfigPathEnvVar = "PREVIEWFS_CONFIG_PATH"

	supportedVersion = 1
)

// Config is the parsed configuration file.
type Config struct {
	Version  int `yaml:"version"`
	Settings struct {
		AutoReload bool `yaml:"auto_reload"`
	} `yaml:"settings"`
	Persistence struct {
		Enabled  bool   `yaml:"enabled"`
		DataPath string `yaml:"data_path"`
	} `yaml:"persistence"`
	Limits Limits `yaml:"limits"`
}

// Limits bound per-workspace resource usage. They are enforced at the
// tool boundary, before a command reaches the tree.
type Limits struct {
	MaxFileSize          int `yaml:"max_file_size"`
	MaxFilesPerWorkspace int `yaml:"max_files_per_workspace"`
}

func defaults() Config {
	var cfg Config
	cfg.Version = supportedVersion
	cfg.Settings.AutoReload = true
	cfg.Persistence.Enabled = true
	cfg.Limits.MaxFileSize = 1 << 20
	cfg.Limits.MaxFilesPerWorkspace = 4096
	return cfg
}

// Engine holds the live configuration and reloads it when the file
// changes on disk.
type Engine struct {
	path   string
	logger *logrus.Logger

	mutex sync.RWMutex
	cfg   Config
}

// DefaultPath returns the config file location, honouring
// PREVIEWFS_CONFIG_PATH.
func DefaultPath() (string, error) {
	if custom := os.Getenv(ConfigPathEnvVar); custom != "" {
		return custom, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, ".previewfs", "config.yaml"), nil
}

// NewEngine loads (creating if absent) the config file at path and, if
// auto_reload is enabled, starts watching it for changes.
func NewEngine(path string, logger *logrus.Logger) (*Engine, error) {
	e := &Engine{path: path, logger: logger, cfg: defaults()}

	if err := e.ensureConfigFile(); err != nil {
		return nil, fmt.Errorf("failed to ensure config file: %w", err)
	}
	if err := e.Load(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if e.Current().Settings.AutoReload {
		go func() {
			if err := e.startFileWatcher(); err != nil {
				logger.WithError(err).Warn("Failed to start config file watcher, auto-reload disabled")
			}
		}()
	}
	return e, nil
}

// ensureConfigFile writes the commented default config on first start.
func (e *Engine) ensureConfigFile() error {
	if _, err := os.Stat(e.path); !os.IsNotExist(err) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(e.path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	content := strings.ReplaceAll(defaultConfigTemplate, "{{.Timestamp}}", time.Now().Format(time.RFC3339))
	if err := os.WriteFile(e.path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to create default config: %w", err)
	}
	if e.logger.GetLevel() >= logrus.InfoLevel {
		e.logger.Infof("Created default configuration at %s", e.path)
	}
	return nil
}

// Load reads and parses the config file, replacing the live config.
// Unset limits fall back to the defaults so a sparse file stays valid.
func (e *Engine) Load() error {
	data, err := os.ReadFile(e.path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if cfg.Version != supportedVersion {
		return fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, supportedVersion)
	}
	if cfg.Limits.MaxFileSize <= 0 {
		cfg.Limits.MaxFileSize = defaults().Limits.MaxFileSize
	}
	if cfg.Limits.MaxFilesPerWorkspace <= 0 {
		cfg.Limits.MaxFilesPerWorkspace = defaults().Limits.MaxFilesPerWorkspace
	}

	e.mutex.Lock()
	e.cfg = cfg
	e.mutex.Unlock()

	e.logger.WithFields(logrus.Fields{
		"config_path": e.path,
		"persistence": cfg.Persistence.Enabled,
	}).Debug("Configuration loaded")
	return nil
}

// Current returns a copy of the live configuration.
func (e *Engine) Current() Config {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.cfg
}

// startFileWatcher reloads the config whenever the file is written. A
// reload that fails keeps the previous config in effect.
func (e *Engine) startFileWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(e.path); err != nil {
		if closeErr := watcher.Close(); closeErr != nil {
			e.logger.WithError(closeErr).Warn("Failed to close watcher after add error")
		}
		return fmt.Errorf("failed to watch config file: %w", err)
	}

	go func() {
		defer func() {
			_ = watcher.Close()
		}()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Write == fsnotify.Write {
					e.logger.Debug("Config file changed, reloading")
					if err := e.Load(); err != nil {
						e.logger.WithError(err).Error("Failed to reload config, keeping previous settings")
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				e.logger.WithError(err).Error("Config file watcher error")
			}
		}
	}()
	return nil
}
