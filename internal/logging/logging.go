// Package logging builds the daemon's slog.Logger from configuration:
// level, text or JSON output, and optional rotating file output.
package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/large-farva/skylock/internal/config"
)

// New constructs a *slog.Logger per the logging config. When a file is
// configured, output goes to both stdout and a size-rotated log file.
func New(cfg config.LoggingConfig) *slog.Logger {
	return slog.New(baseHandler(cfg))
}

// NewCaptured builds the daemon logger: output per the config, with
// every record also stored in ring and passed to emit when non-nil.
func NewCaptured(cfg config.LoggingConfig, ring *Ring, emit func(level, message string)) *slog.Logger {
	return slog.New(NewRingHandler(baseHandler(cfg), ring, emit))
}

func baseHandler(cfg config.LoggingConfig) slog.Handler {
	var w io.Writer = os.Stdout
	if cfg.File != "" {
		w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		})
	}

	opts := &slog.HandlerOptions{Level: Level(cfg.Level)}

	if cfg.Format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Level maps a config level string to a slog.Level. Unknown strings fall
// back to info.
func Level(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
