package env

import (
	"log/slog"
	"strings"
)

// ParseLogLevel maps LOG_LEVEL ("debug", "info", "warn", "error") to a
// slog.Level, returning fallback when it is empty or unrecognised.
func ParseLogLevel(fallback slog.Level) slog.Level {
	switch strings.ToLower(Get("LOG_LEVEL", "")) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}
