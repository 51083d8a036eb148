package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/sqlsense/pkg/parser"
)

// NewAnalyzeCommand parses a script and prints its structural summary.
func NewAnalyzeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [file]",
		Short: "Parse a T-SQL script and print statement structure",
		Long: `Parse a T-SQL script and print one row per statement: statement type,
batch index, referenced tables, selected columns and parameters. Reads
from stdin when no file is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ConfigFrom(cmd.Context())
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			res := parser.ParseWithOptions(string(data), parseOptions(cfg))
			renderStatements(cmd, res)
			if len(res.TempTables) > 0 {
				cmd.Println()
				renderTempTables(cmd, res)
			}
			return nil
		},
	}
	return cmd
}

func renderStatements(cmd *cobra.Command, res *parser.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Type", "Batch", "Tables", "Columns", "Params"})
	for i, stmt := range res.Statements {
		t.AppendRow(table.Row{
			i + 1,
			stmt.Type,
			stmt.BatchIndex,
			formatTables(stmt.Tables),
			formatColumns(stmt.Columns),
			formatParameters(stmt.Parameters),
		})
	}
	t.Render()
}

func renderTempTables(cmd *cobra.Command, res *parser.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Temp table", "Columns", "Batch", "Dropped at line"})

	names := make([]string, 0, len(res.TempTables))
	for name := range res.TempTables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		info := res.TempTables[name]
		dropped := "-"
		if info.DroppedAtLine > 0 {
			dropped = fmt.Sprintf("%d", info.DroppedAtLine)
		}
		t.AppendRow(table.Row{info.Name, formatColumns(info.Columns), info.CreatedInBatch, dropped})
	}
	t.Render()
}

func formatTables(tables []parser.TableRef) string {
	parts := make([]string, 0, len(tables))
	for i := range tables {
		ref := &tables[i]
		s := ref.QualifiedName()
		if ref.Alias != "" {
			s += " " + ref.Alias
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n")
}

func formatColumns(cols []parser.ColumnInfo) string {
	parts := make([]string, 0, len(cols))
	for _, col := range cols {
		switch {
		case col.IsStar && col.SourceTable != "":
			parts = append(parts, col.SourceTable+".*")
		case col.IsStar:
			parts = append(parts, "*")
		case col.SourceTable != "":
			parts = append(parts, col.SourceTable+"."+col.Name)
		default:
			parts = append(parts, col.Name)
		}
	}
	return strings.Join(parts, "\n")
}

func formatParameters(params []parser.ParameterInfo) string {
	seen := make(map[string]bool, len(params))
	parts := make([]string, 0, len(params))
	for _, p := range params {
		if seen[p.FullName] {
			continue
		}
		seen[p.FullName] = true
		parts = append(parts, p.FullName)
	}
	return strings.Join(parts, "\n")
}
