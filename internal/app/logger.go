package app

import (
	"io"
	"log/slog"
	"os"
)

const serviceName = "odyssey-fulfillment"

// NewLogger returns the process logger. LOG_FORMAT=json selects the JSON
// handler; anything else writes text.
func NewLogger(cfg *Config) *slog.Logger {
	return newLogger(os.Stdout, cfg)
}

func newLogger(w io.Writer, cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true, Level: logLevel(cfg)}
	var handler slog.Handler = slog.NewTextHandler(w, opts)
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	}
	logger := slog.New(handler).With(slog.String("service", serviceName))
	if cfg != nil && cfg.AppEnv != "" {
		logger = logger.With(slog.String("env", cfg.AppEnv))
	}
	return logger
}

// logLevel parses LOG_LEVEL, falling back to info on unknown values.
func logLevel(cfg *Config) slog.Level {
	level := slog.LevelInfo
	if cfg == nil || cfg.LogLevel == "" {
		return level
	}
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
