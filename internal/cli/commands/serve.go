package commands

import (
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/sqlsense/internal/server"
	"github.com/leapstack-labs/sqlsense/pkg/completion"
)

// NewServeCommand starts the HTTP analysis server.
func NewServeCommand() *cobra.Command {
	var addr string
	var noWatch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve parse, completion and join requests over HTTP",
		Long: `Start an HTTP server exposing the analysis engine for editor
integrations: POST /v1/parse, /v1/complete and /v1/joins. When the
metadata source is a schema file it is watched and reloaded on change.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := ConfigFrom(ctx)
			log := LoggerFrom(ctx)

			provider, closeFn, err := newProvider(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			engine := completion.NewEngine(provider, log)
			engine.SetMaxJoinDepth(cfg.MaxJoinDepth)

			listen := cfg.Serve.Addr
			if addr != "" {
				listen = addr
			}

			srv := server.New(server.Config{
				Addr:         listen,
				Provider:     provider,
				Engine:       engine,
				ParseOptions: parseOptions(cfg),
				MaxJoinDepth: cfg.MaxJoinDepth,
				Watch:        cfg.Serve.Watch && !noWatch,
				SchemaFile:   cfg.SchemaFile,
				Logger:       log,
			})
			return srv.Serve(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "disable schema file watching")
	return cmd
}
