package config

import (
	"os"
	"strconv"
	"time"
)

// applyEnvOverrides lets deployment environments override file settings
// without editing the file. Only a small operational subset is exposed.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CONFGATE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.APIPort = port
		}
	}
	if v := os.Getenv("CONFGATE_ADMIN_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.AdminPort = port
		}
	}
	if v := os.Getenv("CONFGATE_REPO_PATH"); v != "" {
		cfg.Repo.Path = v
	}
	if v := os.Getenv("CONFGATE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("CONFGATE_TOKEN_SECRET"); v != "" {
		cfg.Auth.TokenSecret = v
	}
	if v := os.Getenv("CONFGATE_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Auth.TokenTTL = d
		}
	}
	if v := os.Getenv("CONFGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CONFGATE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
