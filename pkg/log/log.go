// Package log configures the process-wide slog logger and hands out
// module-scoped child loggers.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a textual level to slog. Unknown values fall back to info.
func ParseLevel(logLevel string) slog.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func Setup(logLevel string) {
	SetupWithWriter(os.Stderr, logLevel, "text")
}

// SetupWithWriter installs the default logger writing to w. format is
// either "text" or "json".
func SetupWithWriter(w io.Writer, logLevel, format string) {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(logLevel),
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
}

func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}

// Discard returns a logger that drops every record. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
