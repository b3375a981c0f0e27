package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	assert.NoError(t, err)
	assert.Equal(t, "memgate.db", cfg.DBPath)
	assert.Equal(t, 8000, cfg.TotalBudget)
	assert.Equal(t, 50000, cfg.CategoryQuota)
	assert.Equal(t, "simple", cfg.TokenMode)
	assert.Equal(t, 256, cfg.RouteCacheSize)
	assert.Equal(t, 0.4, cfg.FallbackThreshold)
	assert.Equal(t, "0 * * * *", cfg.SweepSchedule)
	assert.Equal(t, time.Duration(0), cfg.RequestTimeout)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	assert.NoError(t, err)
	assert.Equal(t, 8000, cfg.TotalBudget)
}

func TestLoad_JSONOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	err := os.WriteFile(path, []byte(`{
		"db_path": "/tmp/test-memgate.db",
		"total_budget": 2400,
		"token_mode": "refined",
		"fallback_threshold": 0.5,
		"sweep_schedule": "*/5 * * * *"
	}`), 0o644)
	assert.NoError(t, err)

	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, "/tmp/test-memgate.db", cfg.DBPath)
	assert.Equal(t, 2400, cfg.TotalBudget)
	assert.Equal(t, "refined", cfg.TokenMode)
	assert.Equal(t, 0.5, cfg.FallbackThreshold)
	assert.Equal(t, "*/5 * * * *", cfg.SweepSchedule)
	// Untouched fields still default.
	assert.Equal(t, 50000, cfg.CategoryQuota)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	err := os.WriteFile(path, []byte(`{"total_budget": 2400}`), 0o644)
	assert.NoError(t, err)

	t.Setenv("MEMGATE_TOTAL_BUDGET", "1200")
	t.Setenv("MEMGATE_TOKEN_MODE", "refined")

	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, 1200, cfg.TotalBudget)
	assert.Equal(t, "refined", cfg.TokenMode)
}

func TestLoad_MalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	err := os.WriteFile(path, []byte(`{not json`), 0o644)
	assert.NoError(t, err)

	_, err = Load(path)
	assert.Error(t, err)
}

func TestLoad_Validation(t *testing.T) {
	testcases := []struct {
		name    string
		json    string
		wantErr string
	}{
		{
			name:    "bad-token-mode",
			json:    `{"token_mode": "exact"}`,
			wantErr: "invalid token mode",
		},
		{
			name:    "threshold-too-low",
			json:    `{"fallback_threshold": 0.1}`,
			wantErr: "fallback threshold",
		},
		{
			name:    "threshold-too-high",
			json:    `{"fallback_threshold": 1.5}`,
			wantErr: "fallback threshold",
		},
		{
			name:    "bad-cron",
			json:    `{"sweep_schedule": "whenever"}`,
			wantErr: "invalid sweep schedule",
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			assert.NoError(t, os.WriteFile(path, []byte(tc.json), 0o644))

			_, err := Load(path)
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
