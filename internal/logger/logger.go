package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

func levelFromString(s string) (l slog.Level, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "dbg":
		return slog.LevelDebug, true
	case "info", "inf", "":
		return slog.LevelInfo, true
	case "warn", "wrn", "warning":
		return slog.LevelWarn, true
	case "error", "err":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// New returns a text logger writing to w at the given level. Unknown levels
// fall back to info.
func New(w io.Writer, level string) *slog.Logger {
	loglevel, _ := levelFromString(level)
	// stdout carries MCP frames and CSV rows, so callers pass stderr.
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: loglevel}))
}

// InitLogger installs a stderr logger as the slog default and returns it.
// ok is false when level was not recognized.
func InitLogger(level string) (logger *slog.Logger, ok bool) {
	_, ok = levelFromString(level)
	logger = New(os.Stderr, level)
	slog.SetDefault(logger)
	return logger, ok
}
