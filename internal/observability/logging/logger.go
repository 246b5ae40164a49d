// Package logging builds the JSON logger every component logs through.
// Event names are snake_case strings so log pipelines can key on them.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// NewJSONLogger returns a JSON logger tagged with the service name. The level
// string comes from config; anything unrecognized falls back to info.
func NewJSONLogger(service, level string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	return slog.New(handler).With(slog.String("service", service))
}

// ParseLevel maps a config level string onto a slog level, defaulting to
// info. "warning" is accepted as an alias for warn.
func ParseLevel(raw string) slog.Level {
	normalized := strings.TrimSpace(raw)
	if strings.EqualFold(normalized, "warning") {
		return slog.LevelWarn
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(normalized)); err != nil {
		return slog.LevelInfo
	}
	return level
}
