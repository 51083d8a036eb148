package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/sqlsense/pkg/completion"
	"github.com/leapstack-labs/sqlsense/pkg/parser"
	"github.com/leapstack-labs/sqlsense/pkg/token"
)

// NewCompleteCommand runs one completion request at a cursor position.
func NewCompleteCommand() *cobra.Command {
	var line, col int

	cmd := &cobra.Command{
		Use:   "complete [file]",
		Short: "Complete at a cursor position in a T-SQL script",
		Long: `Classify the cursor position and print the completion candidates the
configured metadata source produces there. Positions are one-based;
--col counts bytes from the start of the line. Reads from stdin when no
file is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := ConfigFrom(ctx)
			log := LoggerFrom(ctx)

			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			provider, closeFn, err := newProvider(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			engine := completion.NewEngine(provider, log)
			engine.SetMaxJoinDepth(cfg.MaxJoinDepth)

			res := parser.ParseWithOptions(string(data), parseOptions(cfg))
			comp, err := engine.CompleteParsed(ctx, res, token.Position{Line: line, Col: col})
			if err != nil {
				return fmt.Errorf("completing at %d:%d: %w", line, col, err)
			}

			printContext(cmd, comp.Context)
			if len(comp.Candidates) == 0 {
				cmd.Println("no candidates")
				return nil
			}
			renderCandidates(cmd, comp.Candidates)
			return nil
		},
	}

	cmd.Flags().IntVar(&line, "line", 1, "cursor line (one-based)")
	cmd.Flags().IntVar(&col, "col", 1, "cursor column in bytes (one-based)")
	return cmd
}

func printContext(cmd *cobra.Command, c completion.Context) {
	cmd.Printf("mode: %s\n", c.Mode)
	if c.FilterDatabase != "" {
		cmd.Printf("database: %s\n", c.FilterDatabase)
	}
	if c.FilterSchema != "" {
		cmd.Printf("schema: %s\n", c.FilterSchema)
	}
	if c.Alias != "" {
		cmd.Printf("alias: %s\n", c.Alias)
	}
	if c.Word != "" {
		cmd.Printf("word: %s\n", c.Word)
	}
}

func renderCandidates(cmd *cobra.Command, candidates []completion.Candidate) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Label", "Kind", "Detail"})
	for _, cand := range candidates {
		t.AppendRow(table.Row{cand.Label, cand.Kind, cand.Detail})
	}
	t.Render()
}
