// Package cli provides the command-line interface for sqlsense.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/sqlsense/internal/cli/commands"
	"github.com/leapstack-labs/sqlsense/internal/cli/config"
)

var cfgFile string

// Version information (set at build time).
var Version = "0.1.0"

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sqlsense",
		Short: "Context-sensitive T-SQL analysis and autocomplete",
		Long: `sqlsense parses T-SQL scripts into per-statement structure and answers
cursor-position completion requests: tables, columns, schemas and
foreign-key join suggestions, backed by a schema file or a live
database connection.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			level := slog.LevelWarn
			if cfg.Verbose {
				level = slog.LevelDebug
			}
			log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			ctx := commands.WithConfig(cmd.Context(), cfg)
			ctx = commands.WithLogger(ctx, log)
			cmd.SetContext(ctx)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
Context-sensitive T-SQL analysis and autocomplete
`)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./sqlsense.yaml)")
	rootCmd.PersistentFlags().String("schema-file", "", "Path to a YAML schema file")
	rootCmd.PersistentFlags().String("batch-separator", "", "Batch separator keyword (default: GO)")
	rootCmd.PersistentFlags().Int("max-join-depth", 0, "Maximum FK hops for join suggestions")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewAnalyzeCommand())
	rootCmd.AddCommand(commands.NewCompleteCommand())
	rootCmd.AddCommand(commands.NewJoinsCommand())
	rootCmd.AddCommand(commands.NewReplCommand())
	rootCmd.AddCommand(commands.NewServeCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
