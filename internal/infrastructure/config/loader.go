package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DirName is the per-user configuration directory under $HOME.
	DirName = ".listingsync"
	// FileName is the configuration file inside the directory.
	FileName = "config.yaml"
	// DatabaseFile is the default sqlite store file inside the directory.
	DatabaseFile = "listingsync.db"
	// InboxDir is the default watch inbox inside the directory.
	InboxDir = "inbox"
)

// Loader handles loading configuration from files.
type Loader struct {
	configDir string
}

// NewLoader creates a configuration loader. An empty configDir means ~/.listingsync.
func NewLoader(configDir string) (*Loader, error) {
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, DirName)
	}

	return &Loader{configDir: configDir}, nil
}

// Load reads configPath, or the default location when empty. A missing file
// yields the default configuration. Paths left empty are filled in relative
// to the configuration directory.
func (l *Loader) Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = l.DefaultConfigPath()
	}

	cfg, err := l.read(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = NewDefaultConfig()
	} else if err != nil {
		return nil, err
	}

	l.fillPaths(cfg)
	return cfg, nil
}

// LoadFromFile loads configuration from a specific file path. The file must exist.
func (l *Loader) LoadFromFile(configPath string) (*Config, error) {
	cfg, err := l.read(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}
	if err != nil {
		return nil, err
	}
	l.fillPaths(cfg)
	return cfg, nil
}

func (l *Loader) read(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := NewDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

func (l *Loader) fillPaths(cfg *Config) {
	if cfg.Store.Kind == "sqlite" && cfg.Store.DSN == "" {
		cfg.Store.DSN = filepath.Join(l.configDir, DatabaseFile)
	}
	if cfg.Watch.InboxDir == "" {
		cfg.Watch.InboxDir = filepath.Join(l.configDir, InboxDir)
	}
	cfg.Store.DSN = ExpandHome(cfg.Store.DSN)
	cfg.Watch.InboxDir = ExpandHome(cfg.Watch.InboxDir)
}

// Save writes configuration to configPath, or the default location when empty.
func (l *Loader) Save(cfg *Config, configPath string) error {
	if configPath == "" {
		configPath = l.DefaultConfigPath()
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := `# listingsync configuration
# The API token is read from the environment variable named by api.token_env.
#
`
	if err := os.WriteFile(configPath, []byte(header+string(data)), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ConfigDir returns the configuration directory path.
func (l *Loader) ConfigDir() string {
	return l.configDir
}

// DefaultConfigPath returns the default configuration file path.
func (l *Loader) DefaultConfigPath() string {
	return filepath.Join(l.configDir, FileName)
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
