// Package enginelog wraps log/slog behind a small interface: the simulation
// core never imports slog directly, so an embedder can swap in their own
// sink without a dependency on the standard library's global logger state.
package enginelog

import (
	"log/slog"
	"os"
)

// Logger is the diagnostic sink the world logs non-error anomalies to. The
// world logs EPA fallback engagement; the solver's NaN clamps are not logged.
// None of these are errors; Step always runs to completion.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// noop discards everything; used when a World is constructed without a Logger
// so the hot path never pays for formatting disabled output.
type noop struct{}

func (noop) Debug(string, ...any) {}
func (noop) Info(string, ...any)  {}
func (noop) Warn(string, ...any)  {}
func (noop) Error(string, ...any) {}

// Noop returns a Logger that discards all output.
func Noop() Logger { return noop{} }

// slogAdapter is the default Logger, backed by log/slog.
type slogAdapter struct {
	logger *slog.Logger
}

// NewSlog wraps an *slog.Logger as a Logger. A nil logger falls back to
// slog.NewTextHandler over os.Stderr at Info level.
func NewSlog(logger *slog.Logger) Logger {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slogAdapter{logger: logger}
}

func (a slogAdapter) Debug(msg string, kv ...any) { a.logger.Debug(msg, kv...) }
func (a slogAdapter) Info(msg string, kv ...any)  { a.logger.Info(msg, kv...) }
func (a slogAdapter) Warn(msg string, kv ...any)  { a.logger.Warn(msg, kv...) }
func (a slogAdapter) Error(msg string, kv ...any) { a.logger.Error(msg, kv...) }
