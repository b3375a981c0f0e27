// Package config loads memgate settings from an optional JSON file overlaid
// with MEMGATE_* environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"
)

// Config holds every tunable of the memory service.
type Config struct {
	// DBPath locates the SQLite fragment database.
	DBPath string `json:"db_path" env:"MEMGATE_DB_PATH"`

	// TotalBudget is the default assembly token budget.
	TotalBudget int `json:"total_budget" env:"MEMGATE_TOTAL_BUDGET"`

	// CategoryQuota is the per-category token quota.
	CategoryQuota int `json:"category_quota" env:"MEMGATE_CATEGORY_QUOTA"`

	// TokenMode selects the estimator: "simple" or "refined".
	TokenMode string `json:"token_mode" env:"MEMGATE_TOKEN_MODE"`

	// RouteCacheSize bounds the routing result cache.
	RouteCacheSize int `json:"route_cache_size" env:"MEMGATE_ROUTE_CACHE_SIZE"`

	// FallbackThreshold is the routing confidence below which queries go
	// to the pinned fallback category.
	FallbackThreshold float64 `json:"fallback_threshold" env:"MEMGATE_FALLBACK_THRESHOLD"`

	// RequestTimeout bounds one recall pipeline run. Zero disables it.
	RequestTimeout time.Duration `json:"request_timeout" env:"MEMGATE_REQUEST_TIMEOUT"`

	// SweepSchedule is a cron expression for the maintenance sweep.
	SweepSchedule string `json:"sweep_schedule" env:"MEMGATE_SWEEP_SCHEDULE"`
}

// Load reads path (optional; "" skips the file), applies env overrides and
// defaults, and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := json.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "memgate.db"
	}
	if c.TotalBudget <= 0 {
		c.TotalBudget = 8000
	}
	if c.CategoryQuota <= 0 {
		c.CategoryQuota = 50000
	}
	if c.TokenMode == "" {
		c.TokenMode = "simple"
	}
	if c.RouteCacheSize <= 0 {
		c.RouteCacheSize = 256
	}
	if c.FallbackThreshold <= 0 {
		c.FallbackThreshold = 0.4
	}
	if c.SweepSchedule == "" {
		c.SweepSchedule = "0 * * * *"
	}
}

func (c *Config) validate() error {
	if c.TokenMode != "simple" && c.TokenMode != "refined" {
		return fmt.Errorf("invalid token mode %q", c.TokenMode)
	}
	if c.FallbackThreshold < 0.2 || c.FallbackThreshold > 1.0 {
		return fmt.Errorf("fallback threshold %v outside [0.2, 1.0]", c.FallbackThreshold)
	}
	if !gronx.New().IsValid(c.SweepSchedule) {
		return fmt.Errorf("invalid sweep schedule %q", c.SweepSchedule)
	}
	return nil
}
