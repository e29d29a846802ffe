// Package logging provides the structured logger used across the service,
// backed by log/slog.
package logging

import (
	"log/slog"
	"os"
)

// New returns a JSON slog logger writing to stderr with the given component
// attribute attached.
func New(component string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(handler).With("component", component)
}

// Discard returns a logger that drops everything, for tests.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
