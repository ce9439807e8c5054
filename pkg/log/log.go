// Package log configures the process-wide slog default used by the API
// server and the attribution batch runner.
package log

import (
	"log/slog"
	"os"
)

// Setup installs a text handler at the given level. An unknown level falls
// back to info.
func Setup(logLevel string) {
	var level slog.Level

	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// WithModule returns a logger tagged with the component name, e.g. "api"
// or "attributor".
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
