// Package config provides configuration loading for granolad.
//
// Configuration is loaded from a YAML file with environment variable
// overrides and hardcoded defaults, in that precedence order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/KarlRaf/granola-linear-integration/internal/logging"
)

// Config holds the complete granolad configuration.
type Config struct {
	Cache      CacheConfig      `koanf:"cache"`
	Store      StoreConfig      `koanf:"store"`
	Server     ServerConfig     `koanf:"server"`
	Extraction ExtractionConfig `koanf:"extraction"`
	Linear     LinearConfig     `koanf:"linear"`
	Logging    logging.Config   `koanf:"logging"`
}

// CacheConfig holds Granola cache ingestion configuration.
type CacheConfig struct {
	// Path is the resolved location of the Granola cache file.
	Path string `koanf:"path"`

	// PollInterval is the fallback poll period for missed file events.
	PollInterval Duration `koanf:"poll_interval"`

	// Debounce coalesces bursts of file-change events into one run.
	Debounce Duration `koanf:"debounce"`
}

// StoreConfig holds persisted state configuration.
type StoreConfig struct {
	Path string `koanf:"path"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Enabled         bool     `koanf:"enabled"`
	Host            string   `koanf:"host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// ExtractionConfig holds action item extraction configuration.
type ExtractionConfig struct {
	// Provider selects the completion backend: "anthropic" or "openai".
	Provider  string                    `koanf:"provider"`
	Providers map[string]ProviderConfig `koanf:"providers"`
}

// ProviderConfig holds per-provider completion API settings.
type ProviderConfig struct {
	APIKey  Secret   `koanf:"api_key"`
	Model   string   `koanf:"model"`
	BaseURL string   `koanf:"base_url"`
	Timeout Duration `koanf:"timeout"`
}

// LinearConfig holds Linear issue creation settings.
type LinearConfig struct {
	APIKey  Secret   `koanf:"api_key"`
	TeamID  string   `koanf:"team_id"`
	BaseURL string   `koanf:"base_url"`
	Timeout Duration `koanf:"timeout"`
}

// DefaultCachePath returns the platform default location of the Granola
// cache file. Overridable via cache.path / CACHE_PATH.
func DefaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "Granola", "cache-v3.json")
	}
	return filepath.Join(home, ".local", "share", "granola", "cache-v3.json")
}

// DefaultStorePath returns the default location of the persisted state file.
func DefaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", "granolad", "state.json")
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Cache.Path == "" {
		cfg.Cache.Path = DefaultCachePath()
	}
	if cfg.Cache.PollInterval == 0 {
		cfg.Cache.PollInterval = Duration(5 * time.Minute)
	}
	if cfg.Cache.Debounce == 0 {
		cfg.Cache.Debounce = Duration(2 * time.Second)
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8787
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Extraction.Provider == "" {
		cfg.Extraction.Provider = "anthropic"
	}

	if cfg.Linear.BaseURL == "" {
		cfg.Linear.BaseURL = "https://api.linear.app/graphql"
	}
	if cfg.Linear.Timeout == 0 {
		cfg.Linear.Timeout = Duration(30 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging = *logging.NewDefaultConfig()
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Cache.Path == "" {
		return errors.New("cache path is required")
	}
	if c.Cache.PollInterval.Duration() <= 0 {
		return errors.New("cache poll interval must be positive")
	}

	if c.Store.Path == "" {
		return errors.New("store path is required")
	}

	if c.Server.Enabled {
		if c.Server.Port < 1 || c.Server.Port > 65535 {
			return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
		}
		if c.Server.ShutdownTimeout.Duration() <= 0 {
			return errors.New("shutdown timeout must be positive")
		}
	}

	switch c.Extraction.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("unknown extraction provider: %q", c.Extraction.Provider)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}
