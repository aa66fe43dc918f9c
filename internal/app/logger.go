package app

import (
	"log/slog"
	"os"
)

// NewLogger returns the configured slog.Logger. Development runs at debug so
// distribution and sweep decisions are visible; production stays at info.
// Every record carries the service attribute for log aggregation.
func NewLogger(cfg *Config) *slog.Logger {
	level := slog.LevelDebug
	if cfg.IsProduction() {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{AddSource: true, Level: level}

	var handler slog.Handler
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler).With(slog.String("service", "mirador"))
}
