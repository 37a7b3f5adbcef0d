// Package assistant holds the Sagebot configuration: structs, the YAML
// loader with environment expansion, and keyring-backed secret resolution.
package assistant

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jholhewres/sagebot/pkg/sagebot/ai"
	"github.com/jholhewres/sagebot/pkg/sagebot/channels/discord"
	"github.com/jholhewres/sagebot/pkg/sagebot/dashboard"
)

// Config is the full Sagebot configuration tree.
type Config struct {
	// Database is the SQLite file path.
	Database string `yaml:"database"`

	Discord   discord.Config   `yaml:"discord"`
	AI        ai.Config        `yaml:"ai"`
	Dashboard dashboard.Config `yaml:"dashboard"`
	RateLimit RateLimitConfig  `yaml:"rate_limit"`
	Scheduler SchedulerConfig  `yaml:"scheduler"`
	Logging   LoggingConfig    `yaml:"logging"`
}

// RateLimitConfig tunes the per-user AI request window.
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled"`

	// MaxPerMinute is the sliding-window cap per user.
	MaxPerMinute int `yaml:"max_per_minute"`
}

// SchedulerConfig tunes the announcement dispatcher.
type SchedulerConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is "json" or "text".
	Format string `yaml:"format"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Database: "sagebot.db",
		AI: ai.Config{
			Model:          "gpt-4o-mini",
			TimeoutSeconds: 30,
		},
		Dashboard: dashboard.Config{
			Enabled: false,
			Address: ":8080",
		},
		RateLimit: RateLimitConfig{
			Enabled:      true,
			MaxPerMinute: 20,
		},
		Scheduler: SchedulerConfig{Enabled: true},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// RateWindow is the fixed width of the rate-limit window.
const RateWindow = time.Minute

// NewLogger builds the process logger from the logging config.
func NewLogger(cfg LoggingConfig, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
