// Package testutil supplies shared test helpers.
package testutil

import (
	"log/slog"
	"strings"
	"testing"
)

// NewTestLogger builds a debug-level slog.Logger whose records land in
// t.Log, so log lines surface with the failing test instead of stderr.
func NewTestLogger(t testing.TB) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}
