package parser

import "github.com/leapstack-labs/sqlsense/pkg/token"

// parseSubquery parses a (SELECT ...) appearing in a FROM clause, select
// list, or condition, including a trailing alias and derived column list.
// The cursor must be on the open paren. The subquery is attached to the
// parent scope.
func (p *Parser) parseSubquery(parent *Scope) *SubqueryInfo {
	sq := p.parseSubqueryAt(parent, true)
	parent.AddSubquery(sq)
	return sq
}

// parseSubqueryBody parses a parenthesized select body without a trailing
// alias. Used for CTE bodies, which own their record directly.
func (p *Parser) parseSubqueryBody(parent *Scope) *SubqueryInfo {
	return p.parseSubqueryAt(parent, false)
}

func (p *Parser) parseSubqueryAt(parent *Scope, withAlias bool) *SubqueryInfo {
	start := p.cur().Pos()
	startIdx := p.pos
	p.advance() // (

	scope := NewScope(parent)
	f := newFrame(scope)
	p.parseSelectBody(f)

	if p.is(token.RParen) {
		p.advance()
	}

	sq := &SubqueryInfo{
		Columns: f.columns,
		Clauses: f.clauses,
		Start:   start,
		End:     p.prevEnd(),
	}
	if withAlias {
		sq.Alias = p.parseAlias()
		if names, ok := p.parseColumnNameList(false); ok {
			overlayColumnNames(&sq.Columns, names)
		}
		if sq.Alias != "" {
			sq.End = p.prevEnd()
		}
	}

	sq.Tables = scope.Tables
	sq.Subqueries = scope.Subqueries
	resolveColumnParents(sq.Columns, sq.Tables)
	sq.Parameters = p.sweepParameters(startIdx, p.pos, nil)
	return sq
}

// overlayColumnNames renames columns by position from a derived-table
// column list, keeping resolved parent info where positions align.
func overlayColumnNames(columns *[]ColumnInfo, names []string) {
	if len(names) == 0 {
		return
	}
	out := make([]ColumnInfo, len(names))
	for i, name := range names {
		if i < len(*columns) {
			col := (*columns)[i]
			col.Name = name
			out[i] = col
			continue
		}
		out[i] = ColumnInfo{Name: name}
	}
	*columns = out
}

// parseSelectBody parses a select core followed by any chain of set
// operations. Per standard SQL the first member's select list is
// authoritative for column identity, so later members are skimmed
// structurally in disposable scopes and only their tables are merged into
// the first member's scope.
func (p *Parser) parseSelectBody(f *frame) {
	p.parseSelectCore(f)

	for p.isAnyKeyword("UNION", "INTERSECT", "EXCEPT") {
		p.advance()
		if !p.consumeKeyword("ALL") {
			p.consumeKeyword("DISTINCT")
		}

		member := newFrame(NewScope(f.scope))
		p.parseSelectCore(member)
		for _, t := range member.scope.Tables {
			f.scope.AddTable(t)
		}
	}
}

// parseSelectCore parses one SELECT: optional WITH clause, modifiers,
// select list, INTO target, FROM, WHERE, and trailing clauses.
func (p *Parser) parseSelectCore(f *frame) {
	if p.isKeyword("WITH") && p.peek().Kind != token.LParen {
		f.ctes = append(f.ctes, p.parseCTEList(f)...)
	}

	selTok := p.cur()
	if !p.consumeKeyword("SELECT") {
		return
	}
	p.parseSelectModifiers()

	open := p.parseSelectList(f)
	f.setClause("select", token.Span{Start: selTok.Pos(), End: p.prevEnd(), Open: open})

	if p.isKeyword("INTO") {
		p.advance()
		p.parseIntoTarget(f)
	}

	if p.isKeyword("FROM") {
		fromStart := p.cur().Pos()
		p.advance()
		p.parseFromClause(f)
		f.setClause("from", token.Span{Start: fromStart, End: p.prevEnd(), Open: p.eof()})
	}

	if p.isKeyword("WHERE") {
		p.parseWhereClause(f)
	}

	p.parseTrailingClauses(f)
}

// parseSelectModifiers consumes DISTINCT/ALL/TOP n [PERCENT] [WITH TIES].
func (p *Parser) parseSelectModifiers() {
	for {
		switch {
		case p.consumeKeyword("DISTINCT"), p.consumeKeyword("ALL"):
		case p.isKeyword("TOP"):
			p.advance()
			if p.is(token.Number) {
				p.advance()
			} else if p.is(token.LParen) {
				p.skipParens()
			}
			p.consumeKeyword("PERCENT")
			if p.isKeyword("WITH") && p.peek().IsKeyword("TIES") {
				p.advance()
				p.advance()
			}
		default:
			return
		}
	}
}

// parseIntoTarget records a SELECT ... INTO target. Temp-table targets
// feed the temp-table registry; permanent targets are noted as tables.
func (p *Parser) parseIntoTarget(f *frame) {
	tok := p.cur()
	if tok.Kind == token.TempTable {
		f.tempTarget = tok.Text
		f.tempIsGlobal = len(tok.Text) > 1 && tok.Text[1] == '#'
		p.advance()
		return
	}
	if qn, ok := p.parseQualifiedName(); ok && qn.Name != "" {
		f.scope.AddTable(TableRef{
			Server:   qn.Server,
			Database: qn.Database,
			Schema:   qn.Schema,
			Name:     qn.Name,
		})
	}
}

// sweepParameters collects @x / @@x tokens from the raw token range
// [from, to), excluding parameters immediately preceded by FROM, JOIN, or
// INTO (those are table variables, not scalar parameters). Results are
// appended to seed with lowercase-name deduplication.
func (p *Parser) sweepParameters(from, to int, seed []ParameterInfo) []ParameterInfo {
	if to > len(p.toks) {
		to = len(p.toks)
	}
	params := seed
	for i := from; i < to; i++ {
		tok := p.toks[i]
		if tok.Kind != token.Parameter && tok.Kind != token.SysParameter {
			continue
		}
		if prev, ok := prevNonComment(p.toks, i); ok &&
			(prev.IsKeyword("FROM") || prev.IsKeyword("JOIN") || prev.IsKeyword("INTO")) {
			continue
		}
		params = appendParameter(params, tok)
	}
	return params
}

func prevNonComment(toks []token.Token, i int) (token.Token, bool) {
	for j := i - 1; j >= 0; j-- {
		if !toks[j].IsComment() {
			return toks[j], true
		}
	}
	return token.Token{}, false
}
