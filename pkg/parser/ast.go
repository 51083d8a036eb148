package parser

import (
	"strings"

	"github.com/leapstack-labs/sqlsense/pkg/token"
)

// StatementType identifies the top-level kind of a parsed statement.
type StatementType string

// Statement type constants.
const (
	StmtSelect  StatementType = "select"
	StmtInsert  StatementType = "insert"
	StmtUpdate  StatementType = "update"
	StmtDelete  StatementType = "delete"
	StmtMerge   StatementType = "merge"
	StmtCreate  StatementType = "create"
	StmtExec    StatementType = "exec"
	StmtDeclare StatementType = "declare"
	StmtSet     StatementType = "set"
	StmtUse     StatementType = "use"
	StmtDrop    StatementType = "drop"
	StmtOther   StatementType = "other"
)

// TableRef is one table referenced by a statement or subquery.
type TableRef struct {
	Server   string
	Database string
	Schema   string
	Name     string
	Alias    string

	IsTemp          bool // #name
	IsGlobalTemp    bool // ##name
	IsTableVariable bool // @name
	IsCTE           bool
}

// EffectiveName returns the name the table is referenced by: the alias when
// present, otherwise the table name.
func (t *TableRef) EffectiveName() string {
	if t.Alias != "" {
		return t.Alias
	}
	return t.Name
}

// QualifiedName returns the dotted name including any database and schema.
func (t *TableRef) QualifiedName() string {
	parts := make([]string, 0, 4)
	if t.Server != "" {
		parts = append(parts, t.Server)
	}
	if t.Database != "" {
		parts = append(parts, t.Database)
	}
	if t.Schema != "" {
		parts = append(parts, t.Schema)
	}
	parts = append(parts, t.Name)
	return strings.Join(parts, ".")
}

// ColumnInfo is one entry of a SELECT list.
type ColumnInfo struct {
	// Name is the result column name: the alias when one was given,
	// otherwise the source column name.
	Name string
	// SourceTable is the qualifier as typed (alias or table name), empty
	// for unqualified columns.
	SourceTable string
	// ParentTable and ParentSchema are resolved from SourceTable through
	// the enclosing alias map at finalization. An unqualified column in a
	// single-table context inherits that table.
	ParentTable  string
	ParentSchema string
	// IsStar marks a * or alias.* entry.
	IsStar bool
	// ExpressionColumns lists the qualified column references found inside
	// one expression when there was more than one (e.g. a + b AS total).
	ExpressionColumns []ColumnInfo
}

// ParameterInfo is a @name or @@name reference found inside a statement.
type ParameterInfo struct {
	Name     string // without the @ prefix
	FullName string // as typed, including @ or @@
	Line     int
	Col      int
	IsSystem bool
}

// SubqueryInfo is the structural record of one (SELECT ...) subquery or a
// VALUES-as-table constructor. It mirrors a statement record.
type SubqueryInfo struct {
	Alias      string
	Columns    []ColumnInfo
	Tables     []TableRef
	Subqueries []*SubqueryInfo
	Parameters []ParameterInfo
	Start      token.Position
	End        token.Position
	Clauses    map[string]token.Span
	IsValues   bool
}

// CTEInfo is one WITH-clause common table expression. It is registered in
// its defining scope before its body is parsed so a recursive CTE can see
// its own name.
type CTEInfo struct {
	Name       string
	Columns    []ColumnInfo
	Tables     []TableRef
	Subqueries []*SubqueryInfo
	Parameters []ParameterInfo
	Span       token.Span
}

// StatementChunk is the per-statement structural record produced by the
// document parser.
type StatementChunk struct {
	Type          StatementType
	Tables        []TableRef
	Aliases       map[string]*TableRef // lowercase alias/name -> table
	Columns       []ColumnInfo
	Subqueries    []*SubqueryInfo
	CTEs          []*CTEInfo
	Parameters    []ParameterInfo
	TempTableName string   // SELECT ... INTO #x / CREATE TABLE #x target
	InsertColumns []string // INSERT INTO t (a, b, ...) column list
	Span          token.Span
	BatchIndex    int
	// Clauses maps clause keys to source ranges: "select", "from",
	// "where", "group_by", "having", "order_by", "set", "values",
	// "insert_columns", "using", "output", and numbered "join_N"/"on_N"
	// entries in discovery order.
	Clauses map[string]token.Span
}

// Table returns the table registered under the given alias or name,
// matched case-insensitively, or nil.
func (c *StatementChunk) Table(name string) *TableRef {
	if c.Aliases == nil {
		return nil
	}
	return c.Aliases[strings.ToLower(name)]
}

// CTE returns the CTE with the given name, matched case-insensitively,
// or nil.
func (c *StatementChunk) CTE(name string) *CTEInfo {
	for _, cte := range c.CTEs {
		if strings.EqualFold(cte.Name, name) {
			return cte
		}
	}
	return nil
}

// Subquery returns the subquery aliased to the given name, or nil.
func (c *StatementChunk) Subquery(alias string) *SubqueryInfo {
	for _, sq := range c.Subqueries {
		if sq.Alias != "" && strings.EqualFold(sq.Alias, alias) {
			return sq
		}
	}
	return nil
}

// TempTableInfo tracks a temp table through its lifecycle: created by
// SELECT ... INTO #x or CREATE TABLE #x, visible until the end of its
// batch (or across batches for ##global names), optionally dropped.
type TempTableInfo struct {
	Name           string
	Columns        []ColumnInfo
	CreatedInBatch int
	IsGlobal       bool
	DroppedAtLine  int // 0 when never dropped
}

// Result is the output of the document parser.
type Result struct {
	Tokens     []token.Token
	Statements []*StatementChunk
	TempTables map[string]*TempTableInfo // keyed by lowercase name
	CharCount  int
}

// StatementAt returns the statement whose span contains the position, or
// the last statement starting before it. Returns nil when the position
// precedes every statement.
func (r *Result) StatementAt(pos token.Position) *StatementChunk {
	var found *StatementChunk
	for _, stmt := range r.Statements {
		if stmt.Span.Contains(pos) {
			return stmt
		}
		if stmt.Span.Start.AtOrBefore(pos) {
			found = stmt
		}
	}
	return found
}

// rebuildAliases rebuilds the alias map from the statement's tables.
// Downstream readers never mutate the map incrementally.
func (c *StatementChunk) rebuildAliases() {
	c.Aliases = buildAliasMap(c.Tables)
}

func buildAliasMap(tables []TableRef) map[string]*TableRef {
	m := make(map[string]*TableRef, len(tables)*2)
	for i := range tables {
		t := &tables[i]
		if t.Alias != "" {
			m[strings.ToLower(t.Alias)] = t
		}
		if t.Name != "" {
			if _, taken := m[strings.ToLower(t.Name)]; !taken {
				m[strings.ToLower(t.Name)] = t
			}
		}
	}
	return m
}
