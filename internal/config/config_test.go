package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL:   "https://grid.example.com",
			ProjectID: "proj-1",
		},
		Recompute: RecomputeConfig{QuietPeriod: 1500 * time.Millisecond, SolverTimeout: 30 * time.Second},
		WhatIf:    WhatIfConfig{EditDebounce: 300 * time.Millisecond, EvalTimeout: 15 * time.Second},
		Layout:    LayoutConfig{CanvasWidth: 1200, HorizontalPitch: 160, VerticalPitch: 120},
	}
}

func TestDefaults(t *testing.T) {
	t.Parallel()
	v := viper.New()
	SetDefaults(v)
	v.Set("api.base_url", "https://grid.example.com")
	v.Set("api.project_id", "proj-1")

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "console", cfg.Logger.Format)
	assert.Equal(t, 1500*time.Millisecond, cfg.Recompute.QuietPeriod)
	assert.Equal(t, 30*time.Second, cfg.Recompute.SolverTimeout)
	assert.Equal(t, 300*time.Millisecond, cfg.WhatIf.EditDebounce)
	assert.Equal(t, float64(1200), cfg.Layout.CanvasWidth)
	assert.Empty(t, cfg.Postgres.URL, "archiving is opt-in")
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:    "missing base url",
			mutate:  func(c *Config) { c.API.BaseURL = "" },
			wantErr: "api.base_url is required",
		},
		{
			name:    "base url without scheme",
			mutate:  func(c *Config) { c.API.BaseURL = "grid.example.com" },
			wantErr: "http(s)",
		},
		{
			name:    "missing project id",
			mutate:  func(c *Config) { c.API.ProjectID = "" },
			wantErr: "api.project_id is required",
		},
		{
			name:    "zero quiet period",
			mutate:  func(c *Config) { c.Recompute.QuietPeriod = 0 },
			wantErr: "quiet_period",
		},
		{
			name:    "negative solver timeout",
			mutate:  func(c *Config) { c.Recompute.SolverTimeout = -time.Second },
			wantErr: "solver_timeout",
		},
		{
			name:    "zero edit debounce",
			mutate:  func(c *Config) { c.WhatIf.EditDebounce = 0 },
			wantErr: "edit_debounce",
		},
		{
			name:    "zero layout pitch",
			mutate:  func(c *Config) { c.Layout.VerticalPitch = 0 },
			wantErr: "layout geometry",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tc.mutate(&cfg)

			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	// No base_url or project_id set.
	err := Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestLoadStoresGlobalInstance(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("api.base_url", "http://localhost:8000")
	v.Set("api.project_id", "proj-42")

	require.NoError(t, Load(v))
	got := Get()
	assert.Equal(t, "proj-42", got.API.ProjectID)
}
