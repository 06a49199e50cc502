package app

import (
	"log/slog"
	"os"
	"strings"
)

// Logger is the app-wide logger type (slog).
type Logger = *slog.Logger

// NewLogger creates a structured logger with an explicit log level.
// Pretty mode writes human-readable key=value lines to stderr for the CLI;
// otherwise output is JSON.
func NewLogger(level string, pretty bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}

	var h slog.Handler
	if pretty {
		h = newPrettyHandler(os.Stderr, opts, isTerminal(os.Stderr))
	} else {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}

	log := slog.New(h)
	slog.SetDefault(log)
	return log
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
