// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// DistroAuto is the target distro with multi-instance support (same appId
// running at once on different displays).
const DistroAuto = "webos-auto"

// Config holds all service configuration.
type Config struct {
	Server    ServerConfig
	Lifecycle LifecycleConfig
	Catalog   CatalogConfig
	Launcher  LauncherConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"9000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// LifecycleConfig holds lifecycle policy configuration.
type LifecycleConfig struct {
	// AppRelaunchSupported enables the relaunch fast-path for registered apps.
	AppRelaunchSupported bool `envconfig:"APP_RELAUNCH_SUPPORTED" default:"true"`
	// TransitionTimeout bounds every transition state; apps still in
	// transition when it expires are killed and the timer rearms.
	TransitionTimeout time.Duration `envconfig:"TRANSITION_TIMEOUT" default:"15s"`
	// TargetDistro controls multi-instance behavior. Anything other than
	// "webos-auto" coerces per-appId queries to "any display".
	TargetDistro string `envconfig:"TARGET_DISTRO" default:"webos"`
}

// CatalogConfig holds launch point catalog configuration.
type CatalogConfig struct {
	Dir string `envconfig:"CATALOG_DIR" default:"/etc/sam/launchpoints"`
}

// LauncherConfig holds launcher backend endpoints.
type LauncherConfig struct {
	WebManagerURL  string        `envconfig:"WAM_URL" default:"http://localhost:9010"`
	QMLBoosterURL  string        `envconfig:"BOOSTER_URL" default:"http://localhost:9020"`
	RequestTimeout time.Duration `envconfig:"LAUNCHER_TIMEOUT" default:"10s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// MultiInstance reports whether the platform runs one instance per display.
func (c LifecycleConfig) MultiInstance() bool {
	return c.TargetDistro == DistroAuto
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	// Each section is processed on its own so variables carry the flat SAM_
	// prefix (SAM_PORT, SAM_TRANSITION_TIMEOUT) rather than a section prefix.
	sections := []any{&cfg.Server, &cfg.Lifecycle, &cfg.Catalog, &cfg.Launcher, &cfg.Logging, &cfg.RateLimit}
	for _, section := range sections {
		if err := envconfig.Process("SAM", section); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "9000",
			Host: "0.0.0.0",
		},
		Lifecycle: LifecycleConfig{
			AppRelaunchSupported: true,
			TransitionTimeout:    15 * time.Second,
			TargetDistro:         "webos",
		},
		Catalog: CatalogConfig{
			Dir: "/etc/sam/launchpoints",
		},
		Launcher: LauncherConfig{
			WebManagerURL:  "http://localhost:9010",
			QMLBoosterURL:  "http://localhost:9020",
			RequestTimeout: 10 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
