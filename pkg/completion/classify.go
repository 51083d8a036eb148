// Package completion classifies cursor positions inside T-SQL text and
// produces completion candidates by joining the classification with schema
// metadata.
package completion

import (
	"strconv"
	"strings"

	"github.com/leapstack-labs/sqlsense/pkg/parser"
	"github.com/leapstack-labs/sqlsense/pkg/token"
)

// Mode is the kind of completion a cursor position calls for.
type Mode string

// Completion modes.
const (
	ModeNone Mode = "none"

	// table-target modes
	ModeFrom                Mode = "from"
	ModeFromQualified       Mode = "from_qualified"
	ModeFromCrossDB         Mode = "from_cross_db_qualified"
	ModeJoin                Mode = "join"
	ModeJoinQualified       Mode = "join_qualified"
	ModeJoinCrossDB         Mode = "join_cross_db_qualified"
	ModeUpdate              Mode = "update"
	ModeDelete              Mode = "delete"
	ModeTruncate            Mode = "truncate"
	ModeAlter               Mode = "alter"
	ModeInsert              Mode = "insert"
	ModeMerge               Mode = "merge"
	ModeMergeUsing          Mode = "merge_using"
	ModeMergeUsingQualified Mode = "merge_using_qualified"
	ModeMergeUsingCrossDB   Mode = "merge_using_cross_db_qualified"

	// column modes
	ModeSelect             Mode = "select"
	ModeWhere              Mode = "where"
	ModeOn                 Mode = "on"
	ModeHaving             Mode = "having"
	ModeGroupBy            Mode = "group_by"
	ModeOrderBy            Mode = "order_by"
	ModeSet                Mode = "set"
	ModeValues             Mode = "values"
	ModeInsertColumns      Mode = "insert_columns"
	ModeMergeInsertColumns Mode = "merge_insert_columns"
	ModeOutput             Mode = "output"

	// name-list modes
	ModeProcedure Mode = "procedure"
	ModeDatabase  Mode = "database"
	ModeSchema    Mode = "schema"
)

// IsTableMode reports whether the mode completes table names.
func (m Mode) IsTableMode() bool {
	switch m {
	case ModeFrom, ModeFromQualified, ModeFromCrossDB,
		ModeJoin, ModeJoinQualified, ModeJoinCrossDB,
		ModeUpdate, ModeDelete, ModeTruncate, ModeAlter,
		ModeInsert, ModeMerge,
		ModeMergeUsing, ModeMergeUsingQualified, ModeMergeUsingCrossDB:
		return true
	}
	return false
}

// IsColumnMode reports whether the mode completes column names.
func (m Mode) IsColumnMode() bool {
	switch m {
	case ModeSelect, ModeWhere, ModeOn, ModeHaving, ModeGroupBy,
		ModeOrderBy, ModeSet, ModeValues, ModeInsertColumns,
		ModeMergeInsertColumns, ModeOutput:
		return true
	}
	return false
}

// Context is the classification of one cursor position.
type Context struct {
	Mode Mode

	// FilterDatabase and FilterSchema hold qualifiers the user already
	// typed before the cursor (database.schema. / schema.).
	FilterDatabase string
	FilterSchema   string

	// Alias is the table qualifier typed before the cursor in a column
	// mode (the e of e.col).
	Alias string

	// PseudoTable is "inserted" or "deleted" when the cursor follows one
	// of the OUTPUT pseudo-tables.
	PseudoTable string

	// Word is the partial identifier under the cursor, used as a prefix
	// filter.
	Word string

	// Statement is the statement record containing the cursor, nil when
	// the cursor precedes every statement.
	Statement *parser.StatementChunk
}

// windowSize bounds the backward keyword scan.
const windowSize = 15

// Classify determines the completion mode for a cursor position given the
// parse result of the surrounding text. It is pure and never consults
// metadata.
func Classify(res *parser.Result, cursor token.Position) Context {
	ctx := Context{Mode: ModeNone}
	if res == nil {
		return ctx
	}
	ctx.Statement = res.StatementAt(cursor)

	toks := res.Tokens
	idx := tokenIndexAt(toks, cursor)
	if idx < 0 {
		return ctx
	}
	if tok := toks[idx]; tok.IsComment() {
		inside := cursor.AtOrBefore(tok.End())
		if tok.Kind == token.LineComment {
			// a line comment owns the rest of its line
			inside = cursor.Line == tok.End().Line
		}
		if inside {
			return ctx
		}
	}

	scan := idx
	if w, ok := partialWord(toks[idx], cursor); ok {
		ctx.Word = w
		scan = prevIndex(toks, idx)
	}

	parts, scan := qualifierChain(toks, scan)

	// Paren-delimited column lists mislead the keyword window; their
	// recorded ranges decide first.
	if ctx.Statement != nil {
		if span, ok := ctx.Statement.Clauses["insert_columns"]; ok && span.Contains(cursor) {
			ctx.Mode = ModeInsertColumns
			return ctx
		}
		if span, ok := ctx.Statement.Clauses["merge_insert_columns"]; ok && span.Contains(cursor) {
			ctx.Mode = ModeMergeInsertColumns
			return ctx
		}
	}

	kw1, kw2 := governingKeywords(toks, scan)
	ctx.classifyKeywords(kw1, kw2, parts, toks, scan)
	if ctx.Mode == ModeNone {
		ctx.classifySpans(cursor, parts)
	}
	if ctx.Mode.IsColumnMode() {
		ctx.applyColumnQualifier(parts)
	}
	return ctx
}

// classifyKeywords maps the nearest one or two governing keywords to a
// mode. Leaves ModeNone when the keywords do not decide (connectives like
// AND, or no keyword in the window), so the clause ranges can.
func (c *Context) classifyKeywords(kw1, kw2 string, parts []string, toks []token.Token, scan int) {
	switch kw1 {
	case "FROM":
		if kw2 == "DELETE" {
			c.setTableMode(ModeDelete, ModeDelete, ModeDelete, parts)
			return
		}
		c.setTableMode(ModeFrom, ModeFromQualified, ModeFromCrossDB, parts)
	case "JOIN", "APPLY":
		c.setTableMode(ModeJoin, ModeJoinQualified, ModeJoinCrossDB, parts)
	case "INNER", "LEFT", "RIGHT", "FULL", "CROSS", "OUTER", "NATURAL":
		// a modifier counts as a join only when a JOIN/APPLY follows it
		// (LEFT is also a function name)
		if joinAhead(toks, scan) {
			c.setTableMode(ModeJoin, ModeJoinQualified, ModeJoinCrossDB, parts)
		}
	case "UPDATE":
		c.setTableMode(ModeUpdate, ModeUpdate, ModeUpdate, parts)
	case "DELETE":
		c.setTableMode(ModeDelete, ModeDelete, ModeDelete, parts)
	case "TRUNCATE":
		c.setTableMode(ModeTruncate, ModeTruncate, ModeTruncate, parts)
	case "TABLE":
		switch kw2 {
		case "TRUNCATE":
			c.setTableMode(ModeTruncate, ModeTruncate, ModeTruncate, parts)
		case "ALTER":
			c.setTableMode(ModeAlter, ModeAlter, ModeAlter, parts)
		case "DROP":
			c.setTableMode(ModeFrom, ModeFromQualified, ModeFromCrossDB, parts)
		}
	case "ALTER":
		c.setTableMode(ModeAlter, ModeAlter, ModeAlter, parts)
	case "INSERT":
		c.setTableMode(ModeInsert, ModeInsert, ModeInsert, parts)
	case "INTO":
		if kw2 == "MERGE" {
			c.setTableMode(ModeMerge, ModeMerge, ModeMerge, parts)
			return
		}
		c.setTableMode(ModeInsert, ModeInsert, ModeInsert, parts)
	case "MERGE":
		c.setTableMode(ModeMerge, ModeMerge, ModeMerge, parts)
	case "USING":
		c.setTableMode(ModeMergeUsing, ModeMergeUsingQualified, ModeMergeUsingCrossDB, parts)
	case "SELECT", "DISTINCT":
		c.Mode = ModeSelect
	case "WHERE":
		c.Mode = ModeWhere
	case "ON":
		c.Mode = ModeOn
	case "HAVING":
		c.Mode = ModeHaving
	case "BY":
		switch kw2 {
		case "GROUP":
			c.Mode = ModeGroupBy
		case "ORDER":
			c.Mode = ModeOrderBy
		}
	case "SET":
		c.Mode = ModeSet
	case "VALUES":
		c.Mode = ModeValues
	case "OUTPUT":
		c.Mode = ModeOutput
	case "EXEC", "EXECUTE":
		c.Mode = ModeProcedure
	case "USE":
		if len(parts) > 0 {
			c.Mode = ModeSchema
			c.FilterDatabase = parts[0]
			return
		}
		c.Mode = ModeDatabase
	}
}

// tableModeFor picks the plain/qualified/cross-database variant of a table
// mode from the typed qualifier chain.
func tableModeFor(plain, qualified, crossDB Mode, parts []string) (mode Mode, database, schema string) {
	switch len(parts) {
	case 0:
		return plain, "", ""
	case 1:
		return qualified, "", parts[0]
	default:
		return crossDB, parts[0], parts[1]
	}
}

func (c *Context) setTableMode(plain, qualified, crossDB Mode, parts []string) {
	c.Mode, c.FilterDatabase, c.FilterSchema = tableModeFor(plain, qualified, crossDB, parts)
}

// applyColumnQualifier records the typed table qualifier of a column-mode
// cursor, and recognizes the OUTPUT pseudo-tables.
func (c *Context) applyColumnQualifier(parts []string) {
	if len(parts) == 0 {
		return
	}
	last := parts[len(parts)-1]
	if c.Mode == ModeOutput {
		lower := strings.ToLower(last)
		if lower == "inserted" || lower == "deleted" {
			c.PseudoTable = lower
			return
		}
	}
	c.Alias = last
	if len(parts) > 1 {
		c.FilterSchema = parts[len(parts)-2]
	}
}

// clauseModeOrder lists the statement clause keys checked during the range
// fallback, most specific first. Numbered join_N/on_N entries are checked
// before any of these.
var clauseModeOrder = []struct {
	key  string
	mode Mode
}{
	{"using", ModeMergeUsing},
	{"values", ModeValues},
	{"output", ModeOutput},
	{"set", ModeSet},
	{"where", ModeWhere},
	{"having", ModeHaving},
	{"group_by", ModeGroupBy},
	{"order_by", ModeOrderBy},
	{"select", ModeSelect},
	{"from", ModeFrom},
}

// classifySpans is the fallback when no governing keyword was near the
// cursor: the recorded clause ranges of the containing statement (and its
// subqueries, innermost first) decide.
func (c *Context) classifySpans(cursor token.Position, parts []string) {
	if c.Statement == nil {
		return
	}
	if sq := containingSubquery(c.Statement.Subqueries, cursor); sq != nil {
		if mode := modeFromClauses(sq.Clauses, cursor, parts, c); mode != ModeNone {
			c.Mode = mode
			return
		}
	}
	c.Mode = modeFromClauses(c.Statement.Clauses, cursor, parts, c)
}

func containingSubquery(sqs []*parser.SubqueryInfo, cursor token.Position) *parser.SubqueryInfo {
	for _, sq := range sqs {
		span := token.Span{Start: sq.Start, End: sq.End}
		if !span.Contains(cursor) {
			continue
		}
		if inner := containingSubquery(sq.Subqueries, cursor); inner != nil {
			return inner
		}
		return sq
	}
	return nil
}

func modeFromClauses(clauses map[string]token.Span, cursor token.Position, parts []string, c *Context) Mode {
	if clauses == nil {
		return ModeNone
	}
	// numbered entries first: the cursor inside a specific ON or JOIN
	// range beats the clause-wide FROM range
	for n := len(clauses); n >= 1; n-- {
		if span, ok := clauses["on_"+strconv.Itoa(n)]; ok && span.Contains(cursor) {
			return ModeOn
		}
		if span, ok := clauses["join_"+strconv.Itoa(n)]; ok && span.Contains(cursor) {
			mode, db, schema := tableModeFor(ModeJoin, ModeJoinQualified, ModeJoinCrossDB, parts)
			c.FilterDatabase, c.FilterSchema = db, schema
			return mode
		}
	}
	for _, entry := range clauseModeOrder {
		span, ok := clauses[entry.key]
		if !ok || !span.Contains(cursor) {
			continue
		}
		if entry.mode == ModeFrom {
			mode, db, schema := tableModeFor(ModeFrom, ModeFromQualified, ModeFromCrossDB, parts)
			c.FilterDatabase, c.FilterSchema = db, schema
			return mode
		}
		return entry.mode
	}
	return ModeNone
}

// tokenIndexAt returns the index of the last token starting at or before
// the cursor, or -1.
func tokenIndexAt(toks []token.Token, cursor token.Position) int {
	found := -1
	for i := range toks {
		if toks[i].Pos().AtOrBefore(cursor) {
			found = i
			continue
		}
		break
	}
	return found
}

// partialWord returns the prefix of an identifier-like token the cursor
// sits inside or immediately after, on the same line.
func partialWord(tok token.Token, cursor token.Position) (string, bool) {
	switch tok.Kind {
	case token.Ident, token.BracketIdent, token.Keyword,
		token.Parameter, token.SysParameter, token.TempTable:
	default:
		return "", false
	}
	if cursor.Line != tok.Line {
		return "", false
	}
	if cursor.Col <= tok.Col || cursor.Col > tok.EndCol()+1 {
		return "", false
	}
	return tok.Text[:cursor.Col-tok.Col], true
}

// prevIndex returns the previous non-comment token index, or -1.
func prevIndex(toks []token.Token, i int) int {
	for j := i - 1; j >= 0; j-- {
		if !toks[j].IsComment() {
			return j
		}
	}
	return -1
}

// qualifierChain walks a dot chain ending at toks[scan] backward and
// returns the typed qualifier parts in source order plus the index just
// before the chain. A chain ends at the cursor with a trailing dot
// (schema.) or with the partial word already stripped by the caller.
func qualifierChain(toks []token.Token, scan int) ([]string, int) {
	var rev []string
	for scan >= 0 && toks[scan].Kind == token.Dot {
		prev := prevIndex(toks, scan)
		if prev < 0 || !toks[prev].IsIdentLike() {
			break
		}
		rev = append(rev, toks[prev].NameText())
		scan = prevIndex(toks, prev)
	}
	if len(rev) == 0 {
		return nil, scan
	}
	parts := make([]string, len(rev))
	for i, p := range rev {
		parts[len(rev)-1-i] = p
	}
	return parts, scan
}

// governingKeywords walks backward from toks[scan] through a bounded
// window and returns the nearest two keywords, uppercased. Keywords used
// as names after a dot are skipped; the scan stops at a statement
// boundary.
func governingKeywords(toks []token.Token, scan int) (string, string) {
	var kws []string
	seen := 0
window:
	for i := scan; i >= 0 && seen < windowSize && len(kws) < 2; i-- {
		tok := toks[i]
		if tok.IsComment() {
			continue
		}
		seen++
		switch tok.Kind {
		case token.Semicolon, token.BatchSep:
			break window
		case token.Keyword:
			if prev := prevIndex(toks, i); prev >= 0 && toks[prev].Kind == token.Dot {
				continue // o.Date: a column name, not a keyword
			}
			kws = append(kws, tok.Upper())
		}
	}
	switch len(kws) {
	case 0:
		return "", ""
	case 1:
		return kws[0], ""
	default:
		return kws[0], kws[1]
	}
}

// joinAhead reports whether a JOIN or APPLY keyword follows within the
// next few tokens, resolving dangling join modifiers.
func joinAhead(toks []token.Token, scan int) bool {
	seen := 0
	for i := scan + 1; i < len(toks) && seen < 4; i++ {
		tok := toks[i]
		if tok.IsComment() {
			continue
		}
		seen++
		if tok.Kind != token.Keyword {
			return false
		}
		switch tok.Upper() {
		case "JOIN", "APPLY":
			return true
		case "INNER", "LEFT", "RIGHT", "FULL", "CROSS", "OUTER", "NATURAL":
			continue
		default:
			return false
		}
	}
	return false
}
