// Package metadata provides catalog.Provider implementations: a static
// YAML-backed provider for offline use and a database/sql provider for
// live connections, plus the request session that serializes blocking
// lookups per completion request.
package metadata

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/sqlsense/pkg/catalog"
)

// schemaFile is the YAML shape of a static schema file.
type schemaFile struct {
	DefaultSchema string           `yaml:"default_schema"`
	Databases     []schemaDatabase `yaml:"databases"`
}

type schemaDatabase struct {
	Name       string            `yaml:"name"`
	Schemas    []schemaSchema    `yaml:"schemas"`
	Procedures []schemaProcedure `yaml:"procedures"`
}

type schemaSchema struct {
	Name   string        `yaml:"name"`
	Tables []schemaTable `yaml:"tables"`
}

type schemaTable struct {
	Name        string         `yaml:"name"`
	Columns     []schemaColumn `yaml:"columns"`
	ForeignKeys []schemaFK     `yaml:"foreign_keys"`
}

type schemaColumn struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Nullable   bool   `yaml:"nullable"`
	PrimaryKey bool   `yaml:"primary_key"`
}

type schemaFK struct {
	Name       string   `yaml:"name"`
	Columns    []string `yaml:"columns"`
	RefSchema  string   `yaml:"ref_schema"`
	RefTable   string   `yaml:"ref_table"`
	RefColumns []string `yaml:"ref_columns"`
}

type schemaProcedure struct {
	Schema string `yaml:"schema"`
	Name   string `yaml:"name"`
}

// StaticProvider serves schema metadata from an in-memory snapshot loaded
// from a YAML file. Safe for concurrent readers; Reload swaps the snapshot
// atomically.
type StaticProvider struct {
	mu            sync.RWMutex
	defaultSchema string
	databases     []string
	// tables keyed by lowercase database -> schema -> table
	tables     map[string]map[string]map[string]*catalog.Table
	procedures map[string][]catalog.Procedure
}

// LoadStatic reads a static schema file.
func LoadStatic(path string) (*StaticProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	return ParseStatic(data)
}

// ParseStatic builds a provider from YAML schema bytes.
func ParseStatic(data []byte) (*StaticProvider, error) {
	p := &StaticProvider{}
	if err := p.load(data); err != nil {
		return nil, err
	}
	return p, nil
}

// NewStaticFromTables builds a provider from already-constructed tables,
// all placed in one unnamed database. Intended for tests.
func NewStaticFromTables(defaultSchema string, tables ...catalog.Table) *StaticProvider {
	p := &StaticProvider{
		defaultSchema: defaultSchema,
		databases:     []string{""},
		tables:        map[string]map[string]map[string]*catalog.Table{"": {}},
		procedures:    map[string][]catalog.Procedure{},
	}
	db := p.tables[""]
	for i := range tables {
		t := tables[i]
		schema := strings.ToLower(t.Schema)
		if db[schema] == nil {
			db[schema] = map[string]*catalog.Table{}
		}
		db[schema][strings.ToLower(t.Name)] = &t
	}
	return p
}

// Reload replaces the snapshot with the contents of the schema file.
func (p *StaticProvider) Reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read schema file: %w", err)
	}
	return p.load(data)
}

func (p *StaticProvider) load(data []byte) error {
	var f schemaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse schema file: %w", err)
	}

	tables := make(map[string]map[string]map[string]*catalog.Table)
	procedures := make(map[string][]catalog.Procedure)
	var databases []string

	for _, db := range f.Databases {
		dbKey := strings.ToLower(db.Name)
		databases = append(databases, db.Name)
		if tables[dbKey] == nil {
			tables[dbKey] = map[string]map[string]*catalog.Table{}
		}
		for _, sch := range db.Schemas {
			schemaKey := strings.ToLower(sch.Name)
			if tables[dbKey][schemaKey] == nil {
				tables[dbKey][schemaKey] = map[string]*catalog.Table{}
			}
			for _, t := range sch.Tables {
				tables[dbKey][schemaKey][strings.ToLower(t.Name)] = buildTable(db.Name, sch.Name, t)
			}
		}
		for _, proc := range db.Procedures {
			procedures[dbKey] = append(procedures[dbKey], catalog.Procedure{
				Schema: proc.Schema,
				Name:   proc.Name,
			})
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.defaultSchema = f.DefaultSchema
	p.databases = databases
	p.tables = tables
	p.procedures = procedures
	return nil
}

func buildTable(database, schema string, t schemaTable) *catalog.Table {
	out := &catalog.Table{Database: database, Schema: schema, Name: t.Name}
	for _, col := range t.Columns {
		out.Columns = append(out.Columns, catalog.Column{
			Name:         col.Name,
			Type:         col.Type,
			Nullable:     col.Nullable,
			IsPrimaryKey: col.PrimaryKey,
		})
	}
	for _, fk := range t.ForeignKeys {
		refSchema := fk.RefSchema
		if refSchema == "" {
			refSchema = schema
		}
		out.ForeignKeys = append(out.ForeignKeys, catalog.ForeignKey{
			Name:       fk.Name,
			Columns:    fk.Columns,
			RefSchema:  refSchema,
			RefTable:   fk.RefTable,
			RefColumns: fk.RefColumns,
		})
	}
	return out
}

// ResolveTable implements catalog.Provider.
func (p *StaticProvider) ResolveTable(_ context.Context, database, schema, name string) (*catalog.Table, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, db := range p.candidateDatabases(database) {
		schemas := p.tables[db]
		for _, sch := range candidateSchemas(schemas, schema, p.defaultSchema) {
			if t, ok := schemas[sch][strings.ToLower(name)]; ok {
				return t, nil
			}
		}
	}
	return nil, catalog.ErrNotFound
}

// candidateDatabases returns lowercase database keys to search: the named
// one, or all of them when unqualified.
func (p *StaticProvider) candidateDatabases(database string) []string {
	if database != "" {
		return []string{strings.ToLower(database)}
	}
	keys := make([]string, 0, len(p.tables))
	for k := range p.tables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// candidateSchemas returns lowercase schema keys to search: the named one,
// or the default schema followed by the rest when unqualified.
func candidateSchemas(schemas map[string]map[string]*catalog.Table, schema, defaultSchema string) []string {
	if schema != "" {
		return []string{strings.ToLower(schema)}
	}
	var keys []string
	def := strings.ToLower(defaultSchema)
	if def != "" {
		keys = append(keys, def)
	}
	rest := make([]string, 0, len(schemas))
	for k := range schemas {
		if k != def {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// Constraints implements catalog.Provider; the static provider loads FKs
// eagerly, so the table's own constraints are returned.
func (p *StaticProvider) Constraints(_ context.Context, table *catalog.Table) ([]catalog.ForeignKey, error) {
	if table == nil {
		return nil, catalog.ErrNotFound
	}
	return table.ForeignKeys, nil
}

// ListTables implements catalog.Provider.
func (p *StaticProvider) ListTables(_ context.Context, database, schema string) ([]catalog.Table, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []catalog.Table
	for _, db := range p.candidateDatabases(database) {
		schemas := p.tables[db]
		schemaKeys := candidateSchemas(schemas, schema, "")
		if schema == "" {
			schemaKeys = sortedKeys(schemas)
		}
		for _, sch := range schemaKeys {
			for _, name := range sortedKeys(schemas[sch]) {
				out = append(out, *schemas[sch][name])
			}
		}
	}
	return out, nil
}

// ListSchemas implements catalog.Provider.
func (p *StaticProvider) ListSchemas(_ context.Context, database string) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	seen := map[string]bool{}
	var out []string
	for _, db := range p.candidateDatabases(database) {
		for sch, tables := range p.tables[db] {
			if seen[sch] {
				continue
			}
			seen[sch] = true
			// recover the display name from any table in the schema
			for _, t := range tables {
				out = append(out, t.Schema)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// ListDatabases implements catalog.Provider.
func (p *StaticProvider) ListDatabases(_ context.Context) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]string, 0, len(p.databases))
	for _, name := range p.databases {
		if name != "" {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// ListProcedures implements catalog.Provider.
func (p *StaticProvider) ListProcedures(_ context.Context, database string) ([]catalog.Procedure, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []catalog.Procedure
	for _, db := range p.candidateDatabases(database) {
		out = append(out, p.procedures[db]...)
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
