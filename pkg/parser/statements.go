package parser

import (
	"strings"

	"github.com/leapstack-labs/sqlsense/pkg/token"
)

// parseStatement parses one top-level statement at the cursor and returns
// its structural record. It never fails: unknown statements are scanned to
// their boundary and recorded as StmtOther.
func (p *Parser) parseStatement(batch int) *StatementChunk {
	startTok := p.cur()
	startIdx := p.pos

	f := newFrame(NewScope(nil))
	chunk := &StatementChunk{Type: StmtOther, BatchIndex: batch}

	switch startTok.Upper() {
	case "SELECT":
		chunk.Type = StmtSelect
		p.parseSelectBody(f)
	case "WITH":
		p.parseWithStatement(f, chunk)
	case "INSERT":
		chunk.Type = StmtInsert
		p.parseInsertCore(f)
	case "UPDATE":
		chunk.Type = StmtUpdate
		p.parseUpdateCore(f)
	case "DELETE":
		chunk.Type = StmtDelete
		p.parseDeleteCore(f)
	case "MERGE":
		chunk.Type = StmtMerge
		p.parseMergeCore(f)
	case "CREATE":
		chunk.Type = StmtCreate
		p.parseCreateCore(f)
	case "DROP":
		chunk.Type = StmtDrop
		p.parseDropCore(f)
	case "EXEC", "EXECUTE":
		chunk.Type = StmtExec
		p.advance()
		p.scanToStatementEnd()
	case "DECLARE":
		chunk.Type = StmtDeclare
		p.parseDeclareCore(f)
	case "SET":
		chunk.Type = StmtSet
		p.advance()
		p.scanToStatementEnd()
	case "USE":
		chunk.Type = StmtUse
		p.advance()
		p.scanToStatementEnd()
	default:
		p.advance()
		p.scanToStatementEnd()
	}

	chunk.Tables = f.scope.Tables
	chunk.rebuildAliases()
	chunk.Columns = f.columns
	chunk.Subqueries = f.scope.Subqueries
	chunk.CTEs = f.ctes
	chunk.Clauses = f.clauses
	chunk.TempTableName = f.tempTarget
	chunk.InsertColumns = f.insertColumns
	resolveColumnParents(chunk.Columns, chunk.Tables)
	chunk.Parameters = p.sweepParameters(startIdx, p.pos, nil)
	chunk.Span = token.Span{Start: startTok.Pos(), End: p.prevEnd(), Open: p.eof()}
	return chunk
}

// parseWithStatement parses the CTE list, then dispatches the statement
// that follows it inside the same scope.
func (p *Parser) parseWithStatement(f *frame, chunk *StatementChunk) {
	f.ctes = append(f.ctes, p.parseCTEList(f)...)

	switch p.cur().Upper() {
	case "SELECT":
		chunk.Type = StmtSelect
		p.parseSelectBody(f)
	case "INSERT":
		chunk.Type = StmtInsert
		p.parseInsertCore(f)
	case "UPDATE":
		chunk.Type = StmtUpdate
		p.parseUpdateCore(f)
	case "DELETE":
		chunk.Type = StmtDelete
		p.parseDeleteCore(f)
	case "MERGE":
		chunk.Type = StmtMerge
		p.parseMergeCore(f)
	default:
		chunk.Type = StmtSelect
	}
}

// parseTargetTable reads the DML target table at the cursor without
// registering it, so UPDATE/DELETE can defer fold-in until a later FROM
// clause had a chance to define the name as an alias.
func (p *Parser) parseTargetTable() (TableRef, bool) {
	tok := p.cur()
	switch tok.Kind {
	case token.TempTable:
		p.advance()
		ref := TableRef{
			Name:         tok.Text,
			IsTemp:       true,
			IsGlobalTemp: strings.HasPrefix(tok.Text, "##"),
		}
		ref.Alias = p.parseAlias()
		return ref, true
	case token.Parameter:
		p.advance()
		return TableRef{Name: tok.Text, IsTableVariable: true}, true
	case token.Ident, token.BracketIdent:
		qn, _ := p.parseQualifiedName()
		ref := TableRef{
			Server:   qn.Server,
			Database: qn.Database,
			Schema:   qn.Schema,
			Name:     qn.Name,
		}
		ref.Alias = p.parseAlias()
		if p.isKeyword("WITH") && p.peek().Kind == token.LParen {
			p.advance()
			p.skipParens()
		}
		return ref, true
	}
	return TableRef{}, false
}

// foldInTarget registers the tentatively-parsed DML target unless a FROM
// clause already defined its name as an alias or table.
func foldInTarget(f *frame, target TableRef, ok bool) {
	if !ok || target.Name == "" {
		return
	}
	if _, defined := f.scope.ResolveAlias(target.Name); defined {
		return
	}
	f.scope.AddTable(target)
}

var setTerminators = map[string]bool{
	"FROM": true, "WHERE": true, "OUTPUT": true, "OPTION": true,
	"WHEN": true,
}

var outputTerminators = map[string]bool{
	"FROM": true, "WHERE": true, "VALUES": true, "OPTION": true,
	"INTO": true, "WHEN": true,
}

// parseUpdateCore parses UPDATE [TOP (n)] target SET ... [OUTPUT ...]
// [FROM ...] [WHERE ...]. The extended form UPDATE alias SET ... FROM
// table alias records the initial target tentatively and folds it into
// the table list only when no FROM clause overrode it.
func (p *Parser) parseUpdateCore(f *frame) {
	p.advance() // UPDATE
	p.parseSelectModifiers()

	target, hasTarget := p.parseTargetTable()

	if p.isKeyword("SET") {
		start := p.cur().Pos()
		p.advance()
		end, open := p.scanClauseBody(f, setTerminators)
		f.setClause("set", token.Span{Start: start, End: end, Open: open})
	}
	p.parseOutputClause(f)

	if p.isKeyword("FROM") {
		fromStart := p.cur().Pos()
		p.advance()
		p.parseFromClause(f)
		f.setClause("from", token.Span{Start: fromStart, End: p.prevEnd(), Open: p.eof()})
	}
	foldInTarget(f, target, hasTarget)

	if p.isKeyword("WHERE") {
		p.parseWhereClause(f)
	}
	p.parseTrailingClauses(f)
}

// parseDeleteCore parses DELETE [TOP (n)] [FROM] target [OUTPUT ...]
// [FROM ...] [WHERE ...], with the same deferred target fold-in as
// UPDATE for the DELETE alias FROM table alias form.
func (p *Parser) parseDeleteCore(f *frame) {
	p.advance() // DELETE
	p.parseSelectModifiers()
	p.consumeKeyword("FROM")

	target, hasTarget := p.parseTargetTable()
	p.parseOutputClause(f)

	if p.isKeyword("FROM") {
		fromStart := p.cur().Pos()
		p.advance()
		p.parseFromClause(f)
		f.setClause("from", token.Span{Start: fromStart, End: p.prevEnd(), Open: p.eof()})
	}
	foldInTarget(f, target, hasTarget)

	if p.isKeyword("WHERE") {
		p.parseWhereClause(f)
	}
	p.parseTrailingClauses(f)
}

// parseMergeCore parses MERGE [INTO] target USING source ON ... WHEN
// clauses, recording using/on/set/merge_insert_columns/values/output
// spans for the classifier.
func (p *Parser) parseMergeCore(f *frame) {
	p.advance() // MERGE
	p.parseSelectModifiers()
	p.consumeKeyword("INTO")

	if target, ok := p.parseTargetTable(); ok && target.Name != "" {
		f.scope.AddTable(target)
	}

	if p.isKeyword("USING") {
		start := p.cur().Pos()
		p.advance()
		p.parseTableSource(f)
		f.setClause("using", token.Span{Start: start, End: p.prevEnd(), Open: p.eof()})
	}

	if p.isKeyword("ON") {
		start := p.cur().Pos()
		p.advance()
		end, open := p.scanCondition(f)
		f.setClause(f.nextIndexed("on"), token.Span{Start: start, End: end, Open: open})
	}

	for p.isKeyword("WHEN") {
		p.advance()
		p.consumeKeyword("NOT")
		p.consumeKeyword("MATCHED")
		if p.consumeKeyword("BY") {
			p.advance() // TARGET or SOURCE
		}
		// optional AND condition up to THEN
		for !p.eof() && !p.isKeyword("THEN") && !p.atStatementBoundary() {
			if p.is(token.LParen) {
				p.skipParens()
				continue
			}
			p.advance()
		}
		if !p.consumeKeyword("THEN") {
			break
		}

		switch {
		case p.consumeKeyword("UPDATE"):
			if p.isKeyword("SET") {
				start := p.cur().Pos()
				p.advance()
				end, open := p.scanClauseBody(f, setTerminators)
				f.setClause("set", token.Span{Start: start, End: end, Open: open})
			}
		case p.consumeKeyword("INSERT"):
			if p.is(token.LParen) {
				start := p.cur().Pos()
				cols, _ := p.parseColumnNameList(true)
				f.insertColumns = cols
				f.setClause("merge_insert_columns",
					token.Span{Start: start, End: p.prevEnd(), Open: p.eof()})
			}
			if p.isKeyword("VALUES") {
				p.parseInsertValues(f)
			} else if p.consumeKeyword("DEFAULT") {
				p.consumeKeyword("VALUES")
			}
		case p.consumeKeyword("DELETE"):
		}
	}

	p.parseOutputClause(f)
	p.scanToStatementEnd()
}

// parseInsertCore parses INSERT [TOP (n)] [INTO] target [(cols)]
// [OUTPUT ...] followed by VALUES, a select body, or EXEC.
func (p *Parser) parseInsertCore(f *frame) {
	p.advance() // INSERT
	p.parseSelectModifiers()
	p.consumeKeyword("INTO")

	if target, ok := p.parseTargetTable(); ok && target.Name != "" {
		f.scope.AddTable(target)
	}

	if p.is(token.LParen) && !p.subqueryAhead() {
		start := p.cur().Pos()
		cols, _ := p.parseColumnNameList(true)
		f.insertColumns = cols
		f.setClause("insert_columns",
			token.Span{Start: start, End: p.prevEnd(), Open: p.eof()})
	}

	p.parseOutputClause(f)

	switch {
	case p.isKeyword("VALUES"):
		p.parseInsertValues(f)
	case p.isKeyword("SELECT"), p.isKeyword("WITH"):
		p.parseSelectBody(f)
	case p.isAnyKeyword("EXEC", "EXECUTE"):
		p.advance()
		p.scanToStatementEnd()
	case p.consumeKeyword("DEFAULT"):
		p.consumeKeyword("VALUES")
	}
}

// parseOutputClause records an OUTPUT clause span when present.
func (p *Parser) parseOutputClause(f *frame) {
	if !p.isKeyword("OUTPUT") {
		return
	}
	start := p.cur().Pos()
	p.advance()
	end, open := p.scanClauseBody(f, outputTerminators)
	f.setClause("output", token.Span{Start: start, End: end, Open: open})
}

// parseCreateCore gives CREATE TABLE structural treatment (target plus
// column definitions, feeding the temp-table registry for #names); every
// other CREATE form is scanned to its boundary.
func (p *Parser) parseCreateCore(f *frame) {
	p.advance() // CREATE
	if !p.consumeKeyword("TABLE") {
		p.scanToStatementEnd()
		return
	}

	tok := p.cur()
	if tok.Kind == token.TempTable {
		f.tempTarget = tok.Text
		f.tempIsGlobal = strings.HasPrefix(tok.Text, "##")
		p.advance()
	} else if qn, ok := p.parseQualifiedName(); ok && qn.Name != "" {
		f.scope.AddTable(TableRef{
			Server:   qn.Server,
			Database: qn.Database,
			Schema:   qn.Schema,
			Name:     qn.Name,
		})
	}

	if p.is(token.LParen) {
		f.columns = append(f.columns, p.parseColumnDefs()...)
	}
	p.scanToStatementEnd()
}

// parseDropCore records the dropped table names so the document parser
// can close temp-table lifecycles.
func (p *Parser) parseDropCore(f *frame) {
	p.advance() // DROP
	if !p.consumeKeyword("TABLE") {
		p.scanToStatementEnd()
		return
	}
	// DROP TABLE IF EXISTS a, b
	if p.isKeyword("IF") {
		p.advance()
		p.consumeKeyword("EXISTS")
	}
	for !p.eof() {
		tok := p.cur()
		if tok.Kind == token.TempTable {
			f.scope.AddTable(TableRef{
				Name:         tok.Text,
				IsTemp:       true,
				IsGlobalTemp: strings.HasPrefix(tok.Text, "##"),
			})
			p.advance()
		} else if qn, ok := p.parseQualifiedName(); ok && qn.Name != "" {
			f.scope.AddTable(TableRef{
				Database: qn.Database,
				Schema:   qn.Schema,
				Name:     qn.Name,
			})
		} else {
			break
		}
		if !p.consume(token.Comma) {
			break
		}
	}
	p.scanToStatementEnd()
}

// parseDeclareCore handles DECLARE @t TABLE (...) so table-variable
// columns are known; scalar declarations are scanned to the boundary.
func (p *Parser) parseDeclareCore(f *frame) {
	p.advance() // DECLARE
	if p.is(token.Parameter) {
		varTok := p.cur()
		if p.peek().IsKeyword("TABLE") {
			p.advance() // @name
			p.advance() // TABLE
			if p.is(token.LParen) {
				f.columns = append(f.columns, p.parseColumnDefs()...)
				f.scope.AddTable(TableRef{Name: varTok.Text, IsTableVariable: true})
			}
		}
	}
	p.scanToStatementEnd()
}
