package config

import (
	"fmt"
	"log/slog"
)

var validFormats = map[string]bool{
	"text": true,
	"json": true,
}

func parseLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level '%s': supported levels are debug, info, warn, error", level)
	}
}

// Level returns the configured slog level, defaulting to info.
func (c *Config) Level() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}
