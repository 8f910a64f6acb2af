package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"charswitch/internal/sessionlog"
)

// parseLogLevel accepts debug, info, warn or error (case-insensitive).
func parseLogLevel(value string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", value)
	}
	return level, nil
}

// installLogger makes a text logger on w the default and tees warnings and
// errors into ring.
func installLogger(w io.Writer, level slog.Level, ring *sessionlog.Ring) {
	base := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	var sink func(sessionlog.Entry)
	if ring != nil {
		sink = ring.Add
	}
	slog.SetDefault(slog.New(sessionlog.NewTeeHandler(base, slog.LevelWarn, sink)))
}
