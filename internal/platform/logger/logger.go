package logger

import (
	"io"
	"log/slog"
	"os"
)

// New returns the process-wide structured logger. Services and handlers take
// *slog.Logger so tests can pass a discard logger.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// Discard returns a logger that drops everything; for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
