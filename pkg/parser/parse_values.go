package parser

import "github.com/leapstack-labs/sqlsense/pkg/token"

// parseInsertValues skims one or more parenthesized row tuples separated
// by commas. The cursor must be on the VALUES keyword. The recorded span
// runs from VALUES to the final closing paren, or stays open when the last
// tuple is unterminated.
func (p *Parser) parseInsertValues(f *frame) {
	start := p.cur().Pos()
	p.advance() // VALUES

	for p.is(token.LParen) {
		p.skipParens()
		if !p.consume(token.Comma) {
			break
		}
	}
	end := p.prevEnd()

	// unterminated final tuple leaves the clause open while typing
	open := p.eof() && !p.lastTokenWas(token.RParen)
	f.setClause("values", token.Span{Start: start, End: end, Open: open})
}

// lastTokenWas reports whether the last non-comment token before the
// cursor has the given kind.
func (p *Parser) lastTokenWas(kind token.Kind) bool {
	for i := p.pos - 1; i >= 0; i-- {
		if p.toks[i].IsComment() {
			continue
		}
		return p.toks[i].Kind == kind
	}
	return false
}

// parseValuesTable parses a (VALUES (...), (...)) AS alias (cols) table
// constructor, materializing it as a synthetic SubqueryInfo with IsValues
// set. The cursor must be on the opening paren.
func (p *Parser) parseValuesTable(scope *Scope) *SubqueryInfo {
	start := p.cur().Pos()
	sq := &SubqueryInfo{
		Start:    start,
		Clauses:  make(map[string]token.Span),
		IsValues: true,
	}

	p.advance() // (
	if p.isKeyword("VALUES") {
		valStart := p.cur().Pos()
		p.advance()
		for p.is(token.LParen) {
			p.skipParens()
			if !p.consume(token.Comma) {
				break
			}
		}
		sq.Clauses["values"] = token.Span{Start: valStart, End: p.prevEnd()}
	}
	if p.is(token.RParen) {
		p.advance()
	}
	sq.End = p.prevEnd()

	sq.Alias = p.parseAlias()
	if names, ok := p.parseColumnNameList(true); ok {
		for _, name := range names {
			sq.Columns = append(sq.Columns, ColumnInfo{Name: name})
		}
		sq.End = p.prevEnd()
	}

	scope.AddSubquery(sq)
	return sq
}
