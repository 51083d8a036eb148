package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/sqlsense/internal/cli/config"
	"github.com/leapstack-labs/sqlsense/internal/testutil"
)

const testSchema = `
default_schema: dbo
databases:
  - name: Northwind
    schemas:
      - name: dbo
        tables:
          - name: Employees
            columns:
              - name: Id
                type: int
              - name: Name
                type: varchar(100)
          - name: Orders
            columns:
              - name: Id
                type: int
              - name: EmployeeId
                type: int
            foreign_keys:
              - name: fk_orders_emp
                columns: [EmployeeId]
                ref_table: Employees
                ref_columns: [Id]
`

func writeTestSchema(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testSchema), 0o644))
	return path
}

// runCommand executes a subcommand the way the root command would: config
// and logger injected through the context, stdin and stdout captured.
func runCommand(t *testing.T, cmd *cobra.Command, cfg *config.Config, stdin string, args ...string) (string, error) {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
		cfg.ApplyDefaults()
	}
	ctx := WithConfig(context.Background(), cfg)
	ctx = WithLogger(ctx, testutil.NewTestLogger(t))

	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	if args == nil {
		// nil would make cobra fall back to os.Args
		args = []string{}
	}
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestAnalyzeCommand_Stdin(t *testing.T) {
	out, err := runCommand(t, NewAnalyzeCommand(), nil,
		"SELECT e.Name FROM dbo.Employees e WHERE e.Id = @id")
	require.NoError(t, err)

	assert.Contains(t, out, "select")
	assert.Contains(t, out, "dbo.Employees e")
	assert.Contains(t, out, "@id")
}

func TestAnalyzeCommand_TempTables(t *testing.T) {
	out, err := runCommand(t, NewAnalyzeCommand(), nil,
		"CREATE TABLE #tmp (Id INT);\nDROP TABLE #tmp")
	require.NoError(t, err)

	assert.Contains(t, out, "#tmp")
	assert.Contains(t, out, "Temp table")
}

func TestAnalyzeCommand_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "query.sql")
	require.NoError(t, os.WriteFile(path, []byte("UPDATE Employees SET Name = 'x'"), 0o644))

	out, err := runCommand(t, NewAnalyzeCommand(), nil, "", path)
	require.NoError(t, err)
	assert.Contains(t, out, "update")
}

func TestCompleteCommand(t *testing.T) {
	cfg := &config.Config{SchemaFile: writeTestSchema(t)}
	cfg.ApplyDefaults()

	out, err := runCommand(t, NewCompleteCommand(), cfg,
		"SELECT * FROM ", "--line", "1", "--col", "15")
	require.NoError(t, err)

	assert.Contains(t, out, "mode: from")
	assert.Contains(t, out, "Employees")
	assert.Contains(t, out, "Orders")
}

func TestCompleteCommand_NoCandidates(t *testing.T) {
	cfg := &config.Config{SchemaFile: writeTestSchema(t)}
	cfg.ApplyDefaults()

	out, err := runCommand(t, NewCompleteCommand(), cfg,
		"SELECT x. FROM Missing x", "--line", "1", "--col", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "no candidates")
}

func TestCompleteCommand_NoMetadataSource(t *testing.T) {
	_, err := runCommand(t, NewCompleteCommand(), nil, "SELECT 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no metadata source configured")
}

func TestJoinsCommand(t *testing.T) {
	cfg := &config.Config{SchemaFile: writeTestSchema(t)}
	cfg.ApplyDefaults()

	out, err := runCommand(t, NewJoinsCommand(), cfg, "", "Orders")
	require.NoError(t, err)

	assert.Contains(t, out, "Employees")
	assert.Contains(t, out, "Orders.EmployeeId = Employees.Id")
}

func TestJoinsCommand_QualifiedName(t *testing.T) {
	cfg := &config.Config{SchemaFile: writeTestSchema(t)}
	cfg.ApplyDefaults()

	out, err := runCommand(t, NewJoinsCommand(), cfg, "", "dbo.Employees")
	require.NoError(t, err)
	assert.Contains(t, out, "no join candidates")
}

func TestJoinsCommand_UnknownTable(t *testing.T) {
	cfg := &config.Config{SchemaFile: writeTestSchema(t)}
	cfg.ApplyDefaults()

	_, err := runCommand(t, NewJoinsCommand(), cfg, "", "Missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolving Missing")
}

func TestSplitTableArg(t *testing.T) {
	schema, name := splitTableArg("dbo.Employees")
	assert.Equal(t, "dbo", schema)
	assert.Equal(t, "Employees", name)

	schema, name = splitTableArg("Employees")
	assert.Empty(t, schema)
	assert.Equal(t, "Employees", name)
}

func TestSearchHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history")
	lines := strings.Join([]string{
		"SELECT * FROM Employees",
		"SELECT * FROM Orders o JOIN Customers c ON o.CustomerId = c.Id",
		"UPDATE Employees SET Name = 'x' WHERE Id = 1",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(lines+"\n"), 0o600))

	cmd := &cobra.Command{}
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)

	searchHistory(context.Background(), cmd, path, "customers")
	assert.Contains(t, out.String(), "JOIN Customers")
	assert.NotContains(t, out.String(), "UPDATE")
	assert.Empty(t, errOut.String())
}

func TestSearchHistory_NoMatches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history")
	require.NoError(t, os.WriteFile(path, []byte("SELECT 1\n"), 0o600))

	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	searchHistory(context.Background(), cmd, path, "zzzz")
	assert.Contains(t, out.String(), "No history entries match")
}

func TestSearchHistory_MissingFile(t *testing.T) {
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	searchHistory(context.Background(), cmd, filepath.Join(t.TempDir(), "absent"), "x")
	assert.Contains(t, out.String(), "History is empty")
}

func TestHandleReplCommand_SearchUsage(t *testing.T) {
	cmd := &cobra.Command{}
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)

	handleReplCommand(context.Background(), cmd, ".search", "")
	assert.Contains(t, errOut.String(), "Usage: .search")
}

func TestLoadHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history")
	require.NoError(t, os.WriteFile(path, []byte("SELECT 1\n\n  SELECT 2  \n"), 0o600))

	entries, err := loadHistory(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "SELECT 1", entries[0].SQL)
	assert.Equal(t, "SELECT 2", entries[1].SQL)

	entries, err = loadHistory("")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
