package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/sqlsense/pkg/catalog"
	"github.com/leapstack-labs/sqlsense/pkg/fkgraph"
)

// NewJoinsCommand prints foreign-key join suggestions for the given tables.
func NewJoinsCommand() *cobra.Command {
	var maxDepth int

	cmd := &cobra.Command{
		Use:   "joins TABLE...",
		Short: "Suggest joinable tables via foreign-key relationships",
		Long: `Walk the foreign-key graph outward from the given tables and print the
reachable tables grouped by hop count. Table names may be qualified as
schema.table.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := ConfigFrom(ctx)
			log := LoggerFrom(ctx)

			provider, closeFn, err := newProvider(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			sources := make([]*catalog.Table, 0, len(args))
			for _, arg := range args {
				schema, name := splitTableArg(arg)
				resolved, err := provider.ResolveTable(ctx, "", schema, name)
				if err != nil {
					return fmt.Errorf("resolving %s: %w", arg, err)
				}
				sources = append(sources, resolved)
			}

			depth := maxDepth
			if depth <= 0 {
				depth = cfg.MaxJoinDepth
			}
			byHop, err := fkgraph.Find(ctx, sources, provider, fkgraph.Options{MaxDepth: depth})
			if err != nil {
				return fmt.Errorf("searching foreign keys: %w", err)
			}
			if len(byHop) == 0 {
				cmd.Println("no join candidates")
				return nil
			}
			renderJoins(cmd, byHop)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "maximum hop count (default from config)")
	return cmd
}

func splitTableArg(arg string) (schema, name string) {
	if i := strings.LastIndexByte(arg, '.'); i >= 0 {
		return arg[:i], arg[i+1:]
	}
	return "", arg
}

func renderJoins(cmd *cobra.Command, byHop map[int][]fkgraph.Result) {
	hops := make([]int, 0, len(byHop))
	for hop := range byHop {
		hops = append(hops, hop)
	}
	sort.Ints(hops)

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Hops", "Table", "Join condition"})
	for _, hop := range hops {
		for _, r := range byHop[hop] {
			t.AppendRow(table.Row{hop, r.Label(), r.Detail()})
		}
	}
	t.Render()
}
