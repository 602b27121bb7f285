// The application's root configuration for the topology watcher.
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	instance *Config
	mu       sync.RWMutex
)

// Config is the root configuration structure for the entire application.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	API       APIConfig       `mapstructure:"api"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Recompute RecomputeConfig `mapstructure:"recompute"`
	WhatIf    WhatIfConfig    `mapstructure:"whatif"`
	Layout    LayoutConfig    `mapstructure:"layout"`
}

// ColorConfig defines the color settings for different log levels.
// These are used for console output to make logs more readable.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" json:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" json:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" json:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" json:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" json:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" json:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" json:"fatal" yaml:"fatal"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" json:"level" yaml:"level"`
	Format      string      `mapstructure:"format" json:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" json:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" json:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" json:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" json:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" json:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" json:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" json:"colors" yaml:"colors"`
}

// APIConfig holds settings for the remote grid platform collaborators.
type APIConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	ProjectID       string        `mapstructure:"project_id"`
	APIKey          string        `mapstructure:"api_key"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	IgnoreTLSErrors bool          `mapstructure:"ignore_tls_errors"`
}

// PostgresConfig holds settings for the result archive database. An empty URL
// disables archiving entirely.
type PostgresConfig struct {
	URL string `mapstructure:"url"`
}

// RecomputeConfig tunes the debounced power-flow scheduler.
type RecomputeConfig struct {
	QuietPeriod   time.Duration `mapstructure:"quiet_period"`
	SolverTimeout time.Duration `mapstructure:"solver_timeout"`
}

// WhatIfConfig tunes the hypothetical-evaluation debounce.
type WhatIfConfig struct {
	EditDebounce time.Duration `mapstructure:"edit_debounce"`
	EvalTimeout  time.Duration `mapstructure:"eval_timeout"`
}

// LayoutConfig holds the diagram geometry used by the auto-layout engine.
type LayoutConfig struct {
	CanvasWidth     float64 `mapstructure:"canvas_width"`
	HorizontalPitch float64 `mapstructure:"horizontal_pitch"`
	VerticalPitch   float64 `mapstructure:"vertical_pitch"`
}

// SetDefaults registers default values so the app can run with a minimal
// config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "gridflow")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)

	v.SetDefault("api.request_timeout", 30*time.Second)

	v.SetDefault("recompute.quiet_period", 1500*time.Millisecond)
	v.SetDefault("recompute.solver_timeout", 30*time.Second)

	v.SetDefault("whatif.edit_debounce", 300*time.Millisecond)
	v.SetDefault("whatif.eval_timeout", 15*time.Second)

	v.SetDefault("layout.canvas_width", 1200)
	v.SetDefault("layout.horizontal_pitch", 160)
	v.SetDefault("layout.vertical_pitch", 120)
}

// Validate checks the configuration for values that would break the wiring at
// runtime. It is called once after unmarshaling, before anything is built.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		return fmt.Errorf("api.base_url must be an http(s) URL, got %q", c.API.BaseURL)
	}
	if c.API.ProjectID == "" {
		return fmt.Errorf("api.project_id is required")
	}
	if c.Recompute.QuietPeriod <= 0 {
		return fmt.Errorf("recompute.quiet_period must be positive, got %s", c.Recompute.QuietPeriod)
	}
	if c.Recompute.SolverTimeout <= 0 {
		return fmt.Errorf("recompute.solver_timeout must be positive, got %s", c.Recompute.SolverTimeout)
	}
	if c.WhatIf.EditDebounce <= 0 {
		return fmt.Errorf("whatif.edit_debounce must be positive, got %s", c.WhatIf.EditDebounce)
	}
	if c.Layout.CanvasWidth <= 0 || c.Layout.HorizontalPitch <= 0 || c.Layout.VerticalPitch <= 0 {
		return fmt.Errorf("layout geometry must be positive")
	}
	return nil
}

// Load unmarshals the configuration from Viper, validates it, and stores it
// globally.
func Load(v *viper.Viper) error {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	Set(&cfg)
	return nil
}

// Set replaces the global configuration instance. Exposed for tests and for
// the root command.
func Set(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = cfg
}

// Get returns the loaded configuration instance.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if instance == nil {
		panic("configuration not initialized; call config.Load() in the root command")
	}
	return instance
}
