package testutil

import (
	"io"
	"log/slog"
)

// Logger returns a slog.Logger that discards everything, for tests.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
