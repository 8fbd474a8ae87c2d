package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init installs a text logger on stderr as the slog default. LOG_LEVEL
// overrides fallback.
func Init(fallback slog.Level) {
	logger := slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: Level(os.Getenv("LOG_LEVEL"), fallback),
		}),
	)
	slog.SetDefault(logger)
}

// Level parses a LOG_LEVEL value, returning fallback for anything it
// does not recognise.
func Level(name string, fallback slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "production", "prod":
		return slog.LevelError
	default:
		return fallback
	}
}
