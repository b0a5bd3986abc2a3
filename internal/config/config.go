// Package config loads and validates the confgate service configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Repo     RepoConfig     `yaml:"repo"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
	Jobs     JobsConfig     `yaml:"jobs"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	APIPort   int `yaml:"api_port"`
	AdminPort int `yaml:"admin_port"`
}

// RepoConfig locates the configuration repository on disk.
type RepoConfig struct {
	Path string `yaml:"path"`
}

// DatabaseConfig locates the metadata database.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds token issuance settings. TokenSecret must be set in
// production; an empty secret is rejected by Validate.
type AuthConfig struct {
	TokenSecret string        `yaml:"token_secret"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// JobsConfig controls background jobs.
type JobsConfig struct {
	Enabled            bool          `yaml:"enabled"`
	DriftScanInterval  time.Duration `yaml:"drift_scan_interval"`
	ConsumerStaleAfter time.Duration `yaml:"consumer_stale_after"`
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			APIPort:   8080,
			AdminPort: 9090,
		},
		Repo:     RepoConfig{Path: "config-repo"},
		Database: DatabaseConfig{Path: filepath.Join("data", "confgate.db")},
		Auth: AuthConfig{
			TokenTTL: 12 * time.Hour,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Jobs: JobsConfig{
			Enabled:            true,
			DriftScanInterval:  10 * time.Minute,
			ConsumerStaleAfter: 24 * time.Hour,
		},
	}
}

// Load reads the configuration file, applies defaults for unset fields, then
// applies CONFGATE_* environment overrides. A missing file is not an error;
// defaults plus environment are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks for settings the service cannot run without.
func (c *Config) Validate() error {
	if c.Server.APIPort <= 0 || c.Server.APIPort > 65535 {
		return fmt.Errorf("invalid api_port %d", c.Server.APIPort)
	}
	if c.Server.AdminPort <= 0 || c.Server.AdminPort > 65535 {
		return fmt.Errorf("invalid admin_port %d", c.Server.AdminPort)
	}
	if c.Server.APIPort == c.Server.AdminPort {
		return fmt.Errorf("api_port and admin_port must differ")
	}
	if c.Repo.Path == "" {
		return fmt.Errorf("repo.path must not be empty")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Auth.TokenSecret == "" {
		return fmt.Errorf("auth.token_secret must be set (CONFGATE_TOKEN_SECRET)")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q", c.Logging.Level)
	}
	return nil
}

// Init writes a default configuration file. Refuses to overwrite unless force
// is set.
func Init(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file %s already exists (use --force to overwrite)", path)
		}
	}

	cfg := Default()
	cfg.Auth.TokenSecret = "change-me"

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file %s: %w", path, err)
	}
	return nil
}
