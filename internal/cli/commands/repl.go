package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/sqlsense/internal/history"
	"github.com/leapstack-labs/sqlsense/pkg/completion"
	"github.com/leapstack-labs/sqlsense/pkg/parser"
	"github.com/leapstack-labs/sqlsense/pkg/token"
)

const completeTimeout = 2 * time.Second

const historySearchLimit = 10

// NewReplCommand starts an interactive session with schema-aware tab
// completion. Statements are analyzed, not executed.
func NewReplCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive T-SQL session with schema-aware completion",
		Long: `Start an interactive session. Tab completes tables, columns, schemas and
join suggestions from the configured metadata source; a statement ended
with a semicolon is parsed and its structure printed.`,
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

			completer := &engineCompleter{ctx: ctx, engine: engine, opts: parseOptions(cfg)}

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "sqlsense> ",
				HistoryFile:     cfg.HistoryFile,
				AutoComplete:    completer,
				InterruptPrompt: "^C",
				EOFPrompt:       ".quit",
			})
			if err != nil {
				return fmt.Errorf("initializing readline: %w", err)
			}
			defer func() { _ = rl.Close() }()

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "sqlsense interactive session")
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Type .help for commands, .quit to exit")
			_, _ = fmt.Fprintln(cmd.OutOrStdout())

			var buffer strings.Builder
			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					buffer.Reset()
					completer.setPrefix("")
					rl.SetPrompt("sqlsense> ")
					continue
				}
				if errors.Is(err, io.EOF) {
					break
				}

				trimmed := strings.TrimSpace(line)
				if trimmed == "" {
					continue
				}

				if strings.HasPrefix(trimmed, ".") && buffer.Len() == 0 {
					if trimmed == ".quit" || trimmed == ".exit" {
						break
					}
					handleReplCommand(ctx, cmd, trimmed, cfg.HistoryFile)
					continue
				}

				buffer.WriteString(line)
				if !strings.HasSuffix(trimmed, ";") {
					buffer.WriteString("\n")
					completer.setPrefix(buffer.String())
					rl.SetPrompt("     ...> ")
					continue
				}
				rl.SetPrompt("sqlsense> ")
				completer.setPrefix("")

				sql := buffer.String()
				buffer.Reset()
				res := parser.ParseWithOptions(sql, parseOptions(cfg))
				renderStatements(cmd, res)
				_, _ = fmt.Fprintln(cmd.OutOrStdout())
			}
			return nil
		},
	}
	return cmd
}

func handleReplCommand(ctx context.Context, cmd *cobra.Command, line, historyFile string) {
	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case ".help":
		printReplHelp(cmd.OutOrStdout())
	case ".clear":
		fmt.Print("\033[H\033[2J")
	case ".search":
		if len(fields) < 2 {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Usage: .search <pattern>")
			return
		}
		searchHistory(ctx, cmd, historyFile, strings.Join(fields[1:], " "))
	default:
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Unknown command: %s (type .help for commands)\n", line)
	}
}

// searchHistory fuzzy-matches the pattern against the saved history file
// and prints the best matches, highest score first.
func searchHistory(ctx context.Context, cmd *cobra.Command, path, pattern string) {
	entries, err := loadHistory(path)
	if err != nil {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Reading history: %v\n", err)
		return
	}
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "History is empty")
		return
	}

	progress, result := history.Search(ctx, history.Request{
		Items:   entries,
		Pattern: pattern,
		Options: history.Options{Limit: historySearchLimit},
	})
	for range progress {
	}
	res := <-result
	if res.Err != nil {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Searching history: %v\n", res.Err)
		return
	}
	if len(res.Matches) == 0 {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "No history entries match %q\n", pattern)
		return
	}
	for _, m := range res.Matches {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), m.Entry.SQL)
	}
}

// loadHistory reads the readline history file, one statement per line.
// A missing or unconfigured file is an empty history, not an error.
func loadHistory(path string) ([]history.Entry, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []history.Entry
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		entries = append(entries, history.Entry{SQL: line})
	}
	return entries, nil
}

func printReplHelp(w io.Writer) {
	help := `
Commands:
  .help              Show this help message
  .clear             Clear the screen
  .search <pattern>  Fuzzy-search saved query history
  .quit / .exit      Exit the session

Tips:
  - End a statement with a semicolon (;) to see its parsed structure
  - Tab completes tables, columns, schemas and FK join suggestions
  - Multi-line statements keep completing against the full buffer
`
	_, _ = fmt.Fprintln(w, help)
}

// engineCompleter adapts the completion engine to readline's AutoCompleter.
// prefix holds the already-entered lines of a multi-line statement so the
// cursor position covers the whole buffer, not just the current line.
type engineCompleter struct {
	ctx    context.Context
	engine *completion.Engine
	opts   parser.Options
	prefix string
}

func (c *engineCompleter) setPrefix(prefix string) {
	c.prefix = prefix
}

func (c *engineCompleter) Do(line []rune, pos int) ([][]rune, int) {
	current := string(line[:pos])
	text := c.prefix + current

	cursor := token.Position{
		Line: strings.Count(c.prefix, "\n") + 1,
		Col:  len(current) + 1,
	}

	ctx, cancel := context.WithTimeout(c.ctx, completeTimeout)
	defer cancel()

	res := parser.ParseWithOptions(text, c.opts)
	comp, err := c.engine.CompleteParsed(ctx, res, cursor)
	if err != nil || comp == nil {
		return nil, 0
	}

	word := comp.Context.Word
	wordLen := utf8.RuneCountInString(word)
	var out [][]rune
	for _, cand := range comp.Candidates {
		if len(cand.Label) < len(word) || !strings.EqualFold(cand.Label[:len(word)], word) {
			continue
		}
		out = append(out, []rune(cand.Label[len(word):]))
	}
	return out, wordLen
}
