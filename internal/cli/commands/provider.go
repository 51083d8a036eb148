package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/sqlsense/internal/cli/config"
	"github.com/leapstack-labs/sqlsense/internal/metadata"
	"github.com/leapstack-labs/sqlsense/pkg/catalog"
	"github.com/leapstack-labs/sqlsense/pkg/parser"
)

// newProvider builds the catalog provider from config: a live database
// connection when metadata.driver is set, otherwise a static schema file.
// The returned close func releases the connection (nil-safe to call).
func newProvider(ctx context.Context, cfg *config.Config, log *slog.Logger) (catalog.Provider, func() error, error) {
	if cfg.Metadata.Driver != "" {
		connCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
		provider, err := metadata.Open(connCtx, cfg.Metadata, log)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to %s metadata: %w", cfg.Metadata.Driver, err)
		}
		return provider, provider.Close, nil
	}
	if cfg.SchemaFile != "" {
		provider, err := metadata.LoadStatic(cfg.SchemaFile)
		if err != nil {
			return nil, nil, fmt.Errorf("loading schema file: %w", err)
		}
		return provider, func() error { return nil }, nil
	}
	return nil, nil, errors.New("no metadata source configured: set schema_file or metadata.driver")
}

// readInput reads SQL text from the first positional arg, or stdin when the
// arg is absent or "-".
func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", args[0], err)
	}
	return data, nil
}

func parseOptions(cfg *config.Config) parser.Options {
	return parser.Options{
		Lex: parser.LexOptions{BatchSeparator: cfg.BatchSeparator},
	}
}
