// Package commands implements the sqlsense CLI subcommands.
package commands

import (
	"context"
	"log/slog"

	"github.com/leapstack-labs/sqlsense/internal/cli/config"
)

type configKey struct{}
type loggerKey struct{}

// WithConfig stores the loaded config in the context.
func WithConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// ConfigFrom retrieves the config stored by the root command. Returns an
// empty config with defaults applied when none is stored (direct command
// construction in tests).
func ConfigFrom(ctx context.Context) *config.Config {
	if cfg, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return cfg
	}
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	return cfg
}

// WithLogger stores the CLI logger in the context.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, log)
}

// LoggerFrom retrieves the CLI logger, falling back to a discard logger.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if log, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return log
	}
	return slog.New(slog.DiscardHandler)
}
