package completion

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/leapstack-labs/sqlsense/pkg/catalog"
	"github.com/leapstack-labs/sqlsense/pkg/fkgraph"
	"github.com/leapstack-labs/sqlsense/pkg/parser"
	"github.com/leapstack-labs/sqlsense/pkg/token"
)

// CandidateKind tags what a candidate completes to.
type CandidateKind string

// Candidate kinds.
const (
	KindTable     CandidateKind = "table"
	KindColumn    CandidateKind = "column"
	KindSchema    CandidateKind = "schema"
	KindDatabase  CandidateKind = "database"
	KindProcedure CandidateKind = "procedure"
	KindJoin      CandidateKind = "join"
)

// Candidate is one completion suggestion.
type Candidate struct {
	Label  string
	Detail string
	Kind   CandidateKind
}

// Completion is the result of one completion request.
type Completion struct {
	Context    Context
	Candidates []Candidate
}

// Engine joins the classifier's output with schema metadata to produce
// candidate lists. Metadata failures degrade to fewer (or no) candidates,
// never to an error surfaced per keystroke.
type Engine struct {
	provider     catalog.Provider
	log          *slog.Logger
	maxJoinDepth int
}

// NewEngine creates an engine over the given metadata provider. A nil
// logger falls back to slog.Default.
func NewEngine(provider catalog.Provider, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		provider:     provider,
		log:          log,
		maxJoinDepth: fkgraph.DefaultMaxDepth,
	}
}

// SetMaxJoinDepth overrides the FK search hop limit.
func (e *Engine) SetMaxJoinDepth(depth int) {
	if depth > 0 {
		e.maxJoinDepth = depth
	}
}

// Complete parses the text and completes at the cursor.
func (e *Engine) Complete(ctx context.Context, text string, cursor token.Position) (*Completion, error) {
	return e.CompleteParsed(ctx, parser.Parse(text), cursor)
}

// CompleteParsed completes at the cursor over an existing parse result.
func (e *Engine) CompleteParsed(ctx context.Context, res *parser.Result, cursor token.Position) (*Completion, error) {
	c := Classify(res, cursor)
	comp := &Completion{Context: c}

	switch {
	case c.Mode.IsTableMode():
		comp.Candidates = e.tableCandidates(ctx, res, c)
	case c.Mode.IsColumnMode():
		comp.Candidates = e.columnCandidates(ctx, res, c, cursor)
	case c.Mode == ModeProcedure:
		comp.Candidates = e.procedureCandidates(ctx, c)
	case c.Mode == ModeDatabase:
		comp.Candidates = e.databaseCandidates(ctx)
	case c.Mode == ModeSchema:
		comp.Candidates = e.schemaCandidates(ctx, c)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	comp.Candidates = filterByWord(comp.Candidates, c.Word)
	return comp, nil
}

func (e *Engine) tableCandidates(ctx context.Context, res *parser.Result, c Context) []Candidate {
	var out []Candidate
	join := c.Mode == ModeJoin || c.Mode == ModeJoinQualified || c.Mode == ModeJoinCrossDB

	if join && c.Statement != nil {
		out = append(out, e.joinSuggestions(ctx, c.Statement)...)
	}

	// CTEs and visible temp tables complete alongside real tables, but only
	// while no schema/database qualifier restricts the search
	if c.FilterSchema == "" && c.FilterDatabase == "" && c.Statement != nil {
		for _, cte := range c.Statement.CTEs {
			out = append(out, Candidate{Label: cte.Name, Detail: "common table expression", Kind: KindTable})
		}
		out = append(out, tempTableCandidates(res, c.Statement.BatchIndex)...)
	}

	tables, err := e.provider.ListTables(ctx, c.FilterDatabase, c.FilterSchema)
	if err != nil {
		e.warn(ctx, "list tables", err)
		return out
	}

	present := map[string]bool{}
	if join && c.Statement != nil {
		for i := range c.Statement.Tables {
			present[strings.ToLower(c.Statement.Tables[i].Name)] = true
		}
	}
	for i := range tables {
		t := &tables[i]
		if present[strings.ToLower(t.Name)] {
			continue
		}
		out = append(out, Candidate{Label: t.Name, Detail: t.QualifiedName(), Kind: KindTable})
	}
	return out
}

func tempTableCandidates(res *parser.Result, batch int) []Candidate {
	names := make([]string, 0, len(res.TempTables))
	for name := range res.TempTables {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Candidate
	for _, name := range names {
		info := res.TempTables[name]
		if res.TempTableAt(info.Name, batch) == nil || info.DroppedAtLine != 0 {
			continue
		}
		detail := "temp table"
		if info.IsGlobal {
			detail = "global temp table"
		}
		out = append(out, Candidate{Label: info.Name, Detail: detail, Kind: KindTable})
	}
	return out
}

// joinSuggestions resolves the statement's tables against the provider and
// runs the FK search over them.
func (e *Engine) joinSuggestions(ctx context.Context, stmt *parser.StatementChunk) []Candidate {
	var sources []*catalog.Table
	for i := range stmt.Tables {
		t := &stmt.Tables[i]
		if t.IsCTE || t.IsTemp || t.IsTableVariable || t.Name == "" {
			continue
		}
		resolved, err := e.provider.ResolveTable(ctx, t.Database, t.Schema, t.Name)
		if err != nil {
			if !errors.Is(err, catalog.ErrNotFound) {
				e.warn(ctx, "resolve table", err, "table", t.Name)
			}
			continue
		}
		sources = append(sources, resolved)
	}
	if len(sources) == 0 {
		return nil
	}

	grouped, err := fkgraph.Find(ctx, sources, e.provider, fkgraph.Options{MaxDepth: e.maxJoinDepth})
	if err != nil {
		e.warn(ctx, "join search", err)
		return nil
	}

	var out []Candidate
	for _, r := range fkgraph.Flatten(grouped) {
		out = append(out, Candidate{Label: r.Label(), Detail: r.Detail(), Kind: KindJoin})
	}
	return out
}

func (e *Engine) columnCandidates(ctx context.Context, res *parser.Result, c Context, cursor token.Position) []Candidate {
	stmt := c.Statement
	if stmt == nil {
		return nil
	}

	if c.PseudoTable != "" {
		if target := dmlTarget(stmt); target != nil {
			return e.columnsForRef(ctx, res, stmt, target)
		}
		return nil
	}

	if c.Mode == ModeInsertColumns || c.Mode == ModeMergeInsertColumns {
		if target := dmlTarget(stmt); target != nil {
			return e.columnsForRef(ctx, res, stmt, target)
		}
		return nil
	}

	if c.Alias != "" {
		return e.columnsForAlias(ctx, res, stmt, cursor, c.Alias)
	}

	// unqualified: gather from every table visible at the cursor
	var out []Candidate
	seen := map[string]bool{}
	for _, ref := range visibleTablesAt(stmt, cursor) {
		for _, cand := range e.columnsForRef(ctx, res, stmt, ref) {
			key := strings.ToLower(cand.Label)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, cand)
		}
	}
	return out
}

// dmlTarget returns the statement's DML target: the first table reference
// that is not a CTE. Dispatchers register the target before any FROM
// source.
func dmlTarget(stmt *parser.StatementChunk) *parser.TableRef {
	for i := range stmt.Tables {
		if !stmt.Tables[i].IsCTE {
			return &stmt.Tables[i]
		}
	}
	return nil
}

// visibleTablesAt returns the tables visible at a cursor position: the
// innermost containing subquery's tables first, then the enclosing
// statement's (correlated visibility).
func visibleTablesAt(stmt *parser.StatementChunk, cursor token.Position) []*parser.TableRef {
	var out []*parser.TableRef
	seen := map[string]bool{}
	add := func(tables []parser.TableRef) {
		for i := range tables {
			t := &tables[i]
			key := strings.ToLower(t.EffectiveName())
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, t)
		}
	}
	if sq := containingSubquery(stmt.Subqueries, cursor); sq != nil {
		add(sq.Tables)
	}
	add(stmt.Tables)
	return out
}

// columnsForAlias resolves a typed qualifier against, in order, the
// innermost subquery containing the cursor, the enclosing statement's
// aliases (correlated visibility), its derived-table aliases, and its CTE
// names.
func (e *Engine) columnsForAlias(ctx context.Context, res *parser.Result, stmt *parser.StatementChunk, cursor token.Position, alias string) []Candidate {
	if sq := containingSubquery(stmt.Subqueries, cursor); sq != nil {
		if ref := refByName(sq.Tables, alias); ref != nil {
			return e.columnsForRef(ctx, res, stmt, ref)
		}
		if inner := subqueryByAlias(sq.Subqueries, alias); inner != nil {
			return columnsFromInfos(inner.Columns, alias)
		}
	}

	if ref := stmt.Table(alias); ref != nil {
		return e.columnsForRef(ctx, res, stmt, ref)
	}
	if sq := stmt.Subquery(alias); sq != nil {
		return columnsFromInfos(sq.Columns, alias)
	}
	if cte := stmt.CTE(alias); cte != nil {
		return columnsFromInfos(cte.Columns, cte.Name)
	}
	return nil
}

func refByName(tables []parser.TableRef, name string) *parser.TableRef {
	for i := range tables {
		t := &tables[i]
		if strings.EqualFold(t.Alias, name) || strings.EqualFold(t.Name, name) {
			return t
		}
	}
	return nil
}

func subqueryByAlias(sqs []*parser.SubqueryInfo, alias string) *parser.SubqueryInfo {
	for _, sq := range sqs {
		if sq.Alias != "" && strings.EqualFold(sq.Alias, alias) {
			return sq
		}
	}
	return nil
}

// columnsForRef returns the column candidates of one table reference,
// resolving CTEs, temp tables, table variables, and provider-backed tables.
func (e *Engine) columnsForRef(ctx context.Context, res *parser.Result, stmt *parser.StatementChunk, ref *parser.TableRef) []Candidate {
	switch {
	case ref.IsCTE:
		if cte := stmt.CTE(ref.Name); cte != nil {
			return columnsFromInfos(cte.Columns, cte.Name)
		}
		return nil

	case ref.IsTemp:
		if info, ok := res.TempTables[strings.ToLower(ref.Name)]; ok {
			return columnsFromInfos(info.Columns, info.Name)
		}
		return nil

	case ref.IsTableVariable:
		return tableVariableColumns(res, ref.Name)
	}

	resolved, err := e.provider.ResolveTable(ctx, ref.Database, ref.Schema, ref.Name)
	if err != nil {
		if !errors.Is(err, catalog.ErrNotFound) {
			e.warn(ctx, "resolve table", err, "table", ref.Name)
		}
		return nil
	}
	out := make([]Candidate, 0, len(resolved.Columns))
	for _, col := range resolved.Columns {
		detail := col.Type
		if detail == "" {
			detail = resolved.Name
		}
		out = append(out, Candidate{Label: col.Name, Detail: detail, Kind: KindColumn})
	}
	return out
}

// tableVariableColumns finds the DECLARE @t TABLE statement that defined
// the variable and returns its column definitions.
func tableVariableColumns(res *parser.Result, name string) []Candidate {
	for _, stmt := range res.Statements {
		if stmt.Type != parser.StmtDeclare {
			continue
		}
		if ref := stmt.Table(name); ref != nil && ref.IsTableVariable {
			return columnsFromInfos(stmt.Columns, name)
		}
	}
	return nil
}

func columnsFromInfos(cols []parser.ColumnInfo, source string) []Candidate {
	var out []Candidate
	for _, col := range cols {
		if col.IsStar || col.Name == "" {
			continue
		}
		detail := source
		if col.ParentTable != "" {
			detail = col.ParentTable
		}
		out = append(out, Candidate{Label: col.Name, Detail: detail, Kind: KindColumn})
	}
	return out
}

func (e *Engine) procedureCandidates(ctx context.Context, c Context) []Candidate {
	procs, err := e.provider.ListProcedures(ctx, c.FilterDatabase)
	if err != nil {
		e.warn(ctx, "list procedures", err)
		return nil
	}
	out := make([]Candidate, 0, len(procs))
	for _, p := range procs {
		detail := p.Schema
		if detail == "" {
			detail = "procedure"
		}
		out = append(out, Candidate{Label: p.Name, Detail: detail, Kind: KindProcedure})
	}
	return out
}

func (e *Engine) databaseCandidates(ctx context.Context) []Candidate {
	names, err := e.provider.ListDatabases(ctx)
	if err != nil {
		e.warn(ctx, "list databases", err)
		return nil
	}
	out := make([]Candidate, 0, len(names))
	for _, name := range names {
		out = append(out, Candidate{Label: name, Kind: KindDatabase})
	}
	return out
}

func (e *Engine) schemaCandidates(ctx context.Context, c Context) []Candidate {
	names, err := e.provider.ListSchemas(ctx, c.FilterDatabase)
	if err != nil {
		e.warn(ctx, "list schemas", err)
		return nil
	}
	out := make([]Candidate, 0, len(names))
	for _, name := range names {
		out = append(out, Candidate{Label: name, Kind: KindSchema})
	}
	return out
}

// filterByWord keeps candidates whose label starts with the partial word
// under the cursor, compared case-insensitively.
func filterByWord(cands []Candidate, word string) []Candidate {
	if word == "" {
		return cands
	}
	out := cands[:0]
	for _, cand := range cands {
		if len(cand.Label) >= len(word) && strings.EqualFold(cand.Label[:len(word)], word) {
			out = append(out, cand)
		}
	}
	return out
}

func (e *Engine) warn(ctx context.Context, op string, err error, args ...any) {
	if errors.Is(err, context.Canceled) {
		return
	}
	e.log.WarnContext(ctx, "metadata lookup failed", append([]any{"op", op, "error", err}, args...)...)
}
