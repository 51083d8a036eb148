// Package catalog defines the schema-metadata contract consumed by the
// completion engine and the join-suggestion search.
//
// This package contains the public contract that all metadata providers must
// implement. Concrete provider implementations (static schema files, live
// databases) live in internal/metadata.
package catalog

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by providers when a requested object does not
// exist. Callers treat it as "no candidates", never as a failure.
var ErrNotFound = errors.New("catalog: object not found")

// Column is one column of a table.
type Column struct {
	Name         string
	Type         string
	Nullable     bool
	IsPrimaryKey bool
}

// ForeignKey is one FK constraint: local columns referencing columns of
// another table.
type ForeignKey struct {
	Name       string
	Columns    []string
	RefSchema  string
	RefTable   string
	RefColumns []string
}

// Table is a resolved schema object.
type Table struct {
	Database    string
	Schema      string
	Name        string
	Columns     []Column
	ForeignKeys []ForeignKey
}

// Key returns the case-insensitive schema-qualified identity used for
// visited-set and path checks during join search.
func (t *Table) Key() string {
	if t.Schema == "" {
		return strings.ToLower(t.Name)
	}
	return strings.ToLower(t.Schema + "." + t.Name)
}

// QualifiedName returns the dotted display name.
func (t *Table) QualifiedName() string {
	parts := make([]string, 0, 3)
	if t.Database != "" {
		parts = append(parts, t.Database)
	}
	if t.Schema != "" {
		parts = append(parts, t.Schema)
	}
	parts = append(parts, t.Name)
	return strings.Join(parts, ".")
}

// Column returns the column with the given name, matched
// case-insensitively, or nil.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if strings.EqualFold(t.Columns[i].Name, name) {
			return &t.Columns[i]
		}
	}
	return nil
}

// Procedure is a stored procedure known to the provider.
type Procedure struct {
	Schema string
	Name   string
}

// Provider supplies schema metadata. All methods match names
// case-insensitively and apply the connection's default schema when the
// caller passes an empty schema. Implementations may block; callers pass a
// cancellable context.
type Provider interface {
	// ResolveTable maps a (possibly partially qualified) table name to a
	// table object with its columns and foreign keys, or ErrNotFound.
	ResolveTable(ctx context.Context, database, schema, name string) (*Table, error)

	// Constraints returns the FK constraints of a table. Providers that
	// load foreign keys eagerly may return table.ForeignKeys unchanged.
	Constraints(ctx context.Context, table *Table) ([]ForeignKey, error)

	// ListTables returns the tables of a schema, or of every schema when
	// schema is empty. Column lists may be left unloaded.
	ListTables(ctx context.Context, database, schema string) ([]Table, error)

	// ListSchemas returns the schema names of a database.
	ListSchemas(ctx context.Context, database string) ([]string, error)

	// ListDatabases returns the database names visible to the connection.
	ListDatabases(ctx context.Context) ([]string, error)

	// ListProcedures returns the stored procedures of a database.
	ListProcedures(ctx context.Context, database string) ([]Procedure, error)
}
