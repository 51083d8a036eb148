package parser

import "github.com/leapstack-labs/sqlsense/pkg/token"

// parseCTEList consumes WITH name [(cols)] AS ( body ) definitions
// separated by commas, optionally preceded by RECURSIVE. The cursor must
// be on the WITH keyword. Each CTE is registered into the frame's scope
// before its body is parsed, so a recursive CTE sees its own name and its
// self-reference is flagged instead of expanded. Returns the parsed CTEs.
func (p *Parser) parseCTEList(f *frame) []*CTEInfo {
	p.advance() // WITH
	p.consumeKeyword("RECURSIVE")

	var ctes []*CTEInfo
	for !p.eof() {
		tok := p.cur()
		if !tok.IsIdentLike() {
			break
		}
		start := tok.Pos()
		cte := &CTEInfo{Name: tok.NameText()}
		p.advance()

		explicitCols, _ := p.parseColumnNameList(false)

		// visible to its own body from this point on
		f.scope.RegisterCTE(cte)

		if p.consumeKeyword("AS") && p.is(token.LParen) {
			sq := p.parseSubqueryBody(f.scope)
			cte.Columns = sq.Columns
			cte.Tables = sq.Tables
			cte.Subqueries = sq.Subqueries
			cte.Parameters = sq.Parameters
			cte.Span = token.Span{Start: start, End: sq.End}
		} else {
			cte.Span = token.Span{Start: start, Open: true}
		}

		overlayCTEColumns(cte, explicitCols)
		ctes = append(ctes, cte)

		if !p.consume(token.Comma) {
			break
		}
	}
	return ctes
}

// overlayCTEColumns applies an explicit CTE column list onto the columns
// resolved from the body's SELECT. Positions that align inherit the inner
// column's parent table/schema under the new name; extra names become
// plain columns.
func overlayCTEColumns(cte *CTEInfo, explicit []string) {
	if len(explicit) == 0 {
		return
	}
	out := make([]ColumnInfo, len(explicit))
	for i, name := range explicit {
		if i < len(cte.Columns) {
			col := cte.Columns[i]
			col.Name = name
			out[i] = col
			continue
		}
		out[i] = ColumnInfo{Name: name}
	}
	cte.Columns = out
}
