package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/sqlsense/pkg/catalog"
)

// Dialect carries the per-engine pieces of the SQL provider: the
// information_schema queries that differ between engines. An empty query
// disables the corresponding listing.
type Dialect struct {
	Name string

	ColumnsQuery     string
	TablesQuery      string // takes one schema filter argument ('' = all)
	SchemasQuery     string
	DatabasesQuery   string
	ProceduresQuery  string
	ForeignKeysQuery string
}

// PostgresDialect returns the dialect for PostgreSQL connections opened
// through the pgx stdlib driver.
func PostgresDialect() Dialect {
	return Dialect{
		Name: "postgres",
		ColumnsQuery: `
			SELECT column_name, data_type, is_nullable
			FROM information_schema.columns
			WHERE lower(table_schema) = lower($1) AND lower(table_name) = lower($2)
			ORDER BY ordinal_position`,
		TablesQuery: `
			SELECT table_schema, table_name
			FROM information_schema.tables
			WHERE table_type = 'BASE TABLE'
			  AND table_schema NOT IN ('pg_catalog', 'information_schema')
			  AND ($1 = '' OR lower(table_schema) = lower($1))
			ORDER BY table_schema, table_name`,
		SchemasQuery: `
			SELECT schema_name FROM information_schema.schemata
			WHERE schema_name NOT IN ('pg_catalog', 'information_schema')
			ORDER BY schema_name`,
		DatabasesQuery: `
			SELECT datname FROM pg_database
			WHERE NOT datistemplate ORDER BY datname`,
		ProceduresQuery: `
			SELECT routine_schema, routine_name
			FROM information_schema.routines
			WHERE routine_type = 'PROCEDURE'
			ORDER BY routine_schema, routine_name`,
		ForeignKeysQuery: `
			SELECT tc.constraint_name, kcu.column_name,
			       ccu.table_schema, ccu.table_name, ccu.column_name
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
			  ON tc.constraint_name = kcu.constraint_name
			 AND tc.table_schema = kcu.table_schema
			JOIN information_schema.constraint_column_usage ccu
			  ON ccu.constraint_name = tc.constraint_name
			 AND ccu.table_schema = tc.table_schema
			WHERE tc.constraint_type = 'FOREIGN KEY'
			  AND lower(tc.table_schema) = lower($1)
			  AND lower(tc.table_name) = lower($2)
			ORDER BY tc.constraint_name, kcu.ordinal_position`,
	}
}

// DuckDBDialect returns the dialect for DuckDB connections. DuckDB exposes
// a Postgres-compatible information_schema; databases come from
// duckdb_databases() and FK constraints from duckdb_constraints().
func DuckDBDialect() Dialect {
	d := PostgresDialect()
	d.Name = "duckdb"
	d.DatabasesQuery = `
		SELECT database_name FROM duckdb_databases()
		WHERE NOT internal ORDER BY database_name`
	d.ProceduresQuery = ""
	d.ForeignKeysQuery = `
		SELECT constraint_text, constraint_column_names[1],
		       schema_name, referenced_table, referenced_column_names[1]
		FROM duckdb_constraints()
		WHERE constraint_type = 'FOREIGN KEY'
		  AND lower(schema_name) = lower($1)
		  AND lower(table_name) = lower($2)`
	return d
}

// SQLProvider implements catalog.Provider over a database/sql connection
// using information_schema queries.
type SQLProvider struct {
	db            *sql.DB
	dialect       Dialect
	defaultSchema string
	log           *slog.Logger
}

// NewSQLProvider wraps an open connection. A nil logger discards.
func NewSQLProvider(db *sql.DB, dialect Dialect, defaultSchema string, log *slog.Logger) *SQLProvider {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &SQLProvider{db: db, dialect: dialect, defaultSchema: defaultSchema, log: log}
}

// Close closes the underlying connection.
func (p *SQLProvider) Close() error {
	return p.db.Close()
}

// ResolveTable implements catalog.Provider. Live lookups treat the
// connected database as the only one; a database qualifier is ignored.
func (p *SQLProvider) ResolveTable(ctx context.Context, _, schema, name string) (*catalog.Table, error) {
	if schema == "" {
		schema = p.defaultSchema
	}

	p.log.Debug("resolving table", slog.String("schema", schema), slog.String("table", name))

	rows, err := p.db.QueryContext(ctx, p.dialect.ColumnsQuery, schema, name)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	table := &catalog.Table{Schema: schema, Name: name}
	for rows.Next() {
		var col catalog.Column
		var nullable string
		if err := rows.Scan(&col.Name, &col.Type, &nullable); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		col.Nullable = strings.EqualFold(nullable, "YES")
		table.Columns = append(table.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	if len(table.Columns) == 0 {
		return nil, catalog.ErrNotFound
	}

	fks, err := p.foreignKeys(ctx, schema, name)
	if err != nil {
		// FK metadata is optional; resolution still succeeds
		p.log.Debug("foreign key lookup failed", slog.String("table", name), slog.Any("error", err))
	}
	table.ForeignKeys = fks
	return table, nil
}

// foreignKeys loads FK constraints, merging multi-column constraints by
// constraint name.
func (p *SQLProvider) foreignKeys(ctx context.Context, schema, name string) ([]catalog.ForeignKey, error) {
	if p.dialect.ForeignKeysQuery == "" {
		return nil, nil
	}
	rows, err := p.db.QueryContext(ctx, p.dialect.ForeignKeysQuery, schema, name)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var fks []catalog.ForeignKey
	index := map[string]int{}
	for rows.Next() {
		var constraint, column, refSchema, refTable, refColumn string
		if err := rows.Scan(&constraint, &column, &refSchema, &refTable, &refColumn); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		if i, ok := index[constraint]; ok {
			fks[i].Columns = append(fks[i].Columns, column)
			fks[i].RefColumns = append(fks[i].RefColumns, refColumn)
			continue
		}
		index[constraint] = len(fks)
		fks = append(fks, catalog.ForeignKey{
			Name:       constraint,
			Columns:    []string{column},
			RefSchema:  refSchema,
			RefTable:   refTable,
			RefColumns: []string{refColumn},
		})
	}
	return fks, rows.Err()
}

// Constraints implements catalog.Provider.
func (p *SQLProvider) Constraints(ctx context.Context, table *catalog.Table) ([]catalog.ForeignKey, error) {
	if table == nil {
		return nil, catalog.ErrNotFound
	}
	if table.ForeignKeys != nil {
		return table.ForeignKeys, nil
	}
	return p.foreignKeys(ctx, table.Schema, table.Name)
}

// ListTables implements catalog.Provider.
func (p *SQLProvider) ListTables(ctx context.Context, _, schema string) ([]catalog.Table, error) {
	rows, err := p.db.QueryContext(ctx, p.dialect.TablesQuery, schema)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []catalog.Table
	for rows.Next() {
		var t catalog.Table
		if err := rows.Scan(&t.Schema, &t.Name); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListSchemas implements catalog.Provider.
func (p *SQLProvider) ListSchemas(ctx context.Context, _ string) ([]string, error) {
	return p.stringList(ctx, p.dialect.SchemasQuery, "query schemas")
}

// ListDatabases implements catalog.Provider.
func (p *SQLProvider) ListDatabases(ctx context.Context) ([]string, error) {
	return p.stringList(ctx, p.dialect.DatabasesQuery, "query databases")
}

// ListProcedures implements catalog.Provider.
func (p *SQLProvider) ListProcedures(ctx context.Context, _ string) ([]catalog.Procedure, error) {
	if p.dialect.ProceduresQuery == "" {
		return nil, nil
	}
	rows, err := p.db.QueryContext(ctx, p.dialect.ProceduresQuery)
	if err != nil {
		return nil, fmt.Errorf("query procedures: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []catalog.Procedure
	for rows.Next() {
		var proc catalog.Procedure
		if err := rows.Scan(&proc.Schema, &proc.Name); err != nil {
			return nil, fmt.Errorf("scan procedure: %w", err)
		}
		out = append(out, proc)
	}
	return out, rows.Err()
}

func (p *SQLProvider) stringList(ctx context.Context, query, op string) ([]string, error) {
	if query == "" {
		return nil, nil
	}
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}
