// Package config handles loading and managing recordvault configuration.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// StorageConfig holds data storage configuration.
type StorageConfig struct {
	DataDir string `toml:"data_dir"` // vault.db and attachments/ live here
}

// APIConfig holds HTTP API server configuration.
type APIConfig struct {
	Port          int      `toml:"port"`           // HTTP server port (default: 8080)
	BindAddress   string   `toml:"bind_address"`   // listen address (default: 127.0.0.1)
	Key           string   `toml:"key"`            // API authentication key ("" = open)
	RateLimit     int      `toml:"rate_limit"`     // requests/minute per client IP (0 = off)
	CORSOrigins   []string `toml:"cors_origins"`   // allowed CORS origins
	AllowInsecure bool     `toml:"allow_insecure"` // permit keyless non-loopback binds
}

// ValidateSecure rejects a non-loopback bind address when no API key is
// configured, unless allow_insecure is set. Evidence data must not end
// up on an open network port by accident.
func (a APIConfig) ValidateSecure() error {
	addr := a.BindAddress
	if addr == "" || addr == "localhost" {
		return nil
	}
	if ip := net.ParseIP(addr); ip != nil && ip.IsLoopback() {
		return nil
	}
	if a.Key != "" || a.AllowInsecure {
		return nil
	}
	return fmt.Errorf("refusing to bind the API to %s without [api] key; set a key or allow_insecure", addr)
}

// UpdateConfig holds release check configuration.
type UpdateConfig struct {
	DisableCheck bool `toml:"disable_check"`
}

// WatchEntry defines one watched import directory.
type WatchEntry struct {
	Dir      string `toml:"dir"`      // directory scanned for *.zip archives
	Case     string `toml:"case"`     // case name or ID archives are imported into
	Schedule string `toml:"schedule"` // cron expression (e.g. "*/15 * * * *")
	Enabled  bool   `toml:"enabled"`
}

type Config struct {
	Storage StorageConfig `toml:"storage"`
	API     APIConfig     `toml:"api"`
	Update  UpdateConfig  `toml:"update"`
	Watch   []WatchEntry  `toml:"watch"`

	// Computed paths (not from config file)
	HomeDir string `toml:"-"`
}

// DefaultHome returns the default recordvault home directory.
// Respects the RECORDVAULT_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("RECORDVAULT_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".recordvault"
	}
	return filepath.Join(home, ".recordvault")
}

// Default returns the configuration defaults rooted at home
// (empty = DefaultHome()).
func Default(home string) *Config {
	if home == "" {
		home = DefaultHome()
	}
	return &Config{
		Storage: StorageConfig{
			DataDir: home,
		},
		API: APIConfig{
			Port:        8080,
			BindAddress: "127.0.0.1",
			RateLimit:   120,
		},
		Watch:   []WatchEntry{},
		HomeDir: home,
	}
}

// Load reads the configuration. home overrides the home directory (empty =
// DefaultHome()); path overrides the config file location (empty =
// <home>/config.toml). A missing config file is not an error; defaults apply.
func Load(home, path string) (*Config, error) {
	cfg := Default(home)

	if path == "" {
		path = filepath.Join(cfg.HomeDir, "config.toml")
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Storage.DataDir = expandPath(cfg.Storage.DataDir)
	for i := range cfg.Watch {
		cfg.Watch[i].Dir = expandPath(cfg.Watch[i].Dir)
	}

	return cfg, nil
}

// Save writes the configuration to <home>/config.toml. The file is
// created 0600 because it may carry the API key.
func (c *Config) Save() error {
	if err := c.EnsureHomeDir(); err != nil {
		return err
	}
	path := filepath.Join(c.HomeDir, "config.toml")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return f.Close()
}

// EnsureHomeDir creates the home and data directories if missing.
func (c *Config) EnsureHomeDir() error {
	if err := os.MkdirAll(c.HomeDir, 0o700); err != nil {
		return err
	}
	if c.Storage.DataDir != "" && c.Storage.DataDir != c.HomeDir {
		return os.MkdirAll(c.Storage.DataDir, 0o700)
	}
	return nil
}

// DatabasePath returns the path to the vault SQLite database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Storage.DataDir, "vault.db")
}

// AttachmentsDir returns the content-addressed media storage root.
func (c *Config) AttachmentsDir() string {
	return filepath.Join(c.Storage.DataDir, "attachments")
}

// EnabledWatches returns the watch entries that are active and scheduled.
func (c *Config) EnabledWatches() []WatchEntry {
	var active []WatchEntry
	for _, w := range c.Watch {
		if w.Enabled && w.Dir != "" && w.Schedule != "" {
			active = append(active, w)
		}
	}
	return active
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
