package parser

import (
	"strconv"
	"strings"

	"github.com/leapstack-labs/sqlsense/pkg/token"
)

// joinModifiers may precede JOIN or APPLY.
var joinModifiers = map[string]bool{
	"INNER": true, "LEFT": true, "RIGHT": true, "FULL": true,
	"CROSS": true, "OUTER": true, "NATURAL": true,
}

// fromTerminators end the FROM clause at paren depth 0.
var fromTerminators = map[string]bool{
	"WHERE": true, "GROUP": true, "HAVING": true, "ORDER": true,
	"UNION": true, "INTERSECT": true, "EXCEPT": true, "OPTION": true,
	"FOR": true, "ON": true, "PIVOT": true, "UNPIVOT": true,
	"OUTPUT": true, "WHEN": true,
}

// tableHintKeywords are recognized inside WITH (...) table hints and the
// legacy bare-paren hint form.
var tableHintKeywords = map[string]bool{
	"NOLOCK": true, "HOLDLOCK": true, "UPDLOCK": true, "ROWLOCK": true,
	"TABLOCK": true, "READPAST": true, "FORCESEEK": true, "READONLY": true,
	"INDEX": true,
}

// parseFromClause consumes the table sources of a FROM clause: the first
// source, comma-separated additional sources, and JOIN/APPLY chains. The
// cursor must be just past the FROM keyword.
func (p *Parser) parseFromClause(f *frame) {
	p.parseTableSource(f)

	for !p.eof() {
		tok := p.cur()
		switch {
		case tok.Kind == token.Comma:
			p.advance()
			p.parseTableSource(f)
		case p.atJoinStart():
			if !p.parseJoin(f) {
				return
			}
		default:
			return
		}
	}
}

// atJoinStart reports whether the cursor is on JOIN, APPLY, or a join
// modifier that leads (possibly through further modifiers) to JOIN/APPLY.
func (p *Parser) atJoinStart() bool {
	tok := p.cur()
	if tok.Kind != token.Keyword {
		return false
	}
	upper := tok.Upper()
	if upper == "JOIN" || upper == "APPLY" {
		return true
	}
	return joinModifiers[upper]
}

// parseJoin consumes one JOIN or APPLY including its target and optional
// ON condition, recording join_N/on_N clause spans. Returns false when the
// modifiers did not lead to a join (leaves the caller to stop).
func (p *Parser) parseJoin(f *frame) bool {
	start := p.cur().Pos()

	for p.cur().Kind == token.Keyword && joinModifiers[p.cur().Upper()] {
		p.advance()
	}

	isApply := false
	switch {
	case p.consumeKeyword("JOIN"):
	case p.consumeKeyword("APPLY"):
		isApply = true
	default:
		// modifiers without JOIN/APPLY: the user is still typing, or the
		// keyword belonged to something else. Record the join range so the
		// classifier can tell the cursor sits after a join modifier; it is
		// open only when input ran out, else it closes where recovery
		// resumed so later clauses stay outside it.
		f.joins++
		span := token.Span{Start: start, Open: p.eof()}
		if !span.Open {
			span.End = p.prevEnd()
		}
		f.setClause(joinIndexKey("join", f.joins), span)
		return false
	}

	f.joins++
	n := f.joins
	joinKey := joinIndexKey("join", n)

	hadTarget := p.parseApplyOrTableSource(f, isApply)
	end := p.prevEnd()
	if !hadTarget {
		span := token.Span{Start: start, Open: p.eof()}
		if !span.Open {
			span.End = end
		}
		f.setClause(joinKey, span)
		return false
	}
	f.setClause(joinKey, token.Span{Start: start, End: end})

	if p.isKeyword("ON") {
		onStart := p.cur().Pos()
		p.advance()
		onEnd, open := p.scanCondition(f)
		f.setClause(joinIndexKey("on", n), token.Span{Start: onStart, End: onEnd, Open: open})
	}
	return true
}

func joinIndexKey(prefix string, n int) string {
	return prefix + "_" + strconv.Itoa(n)
}

// parseApplyOrTableSource parses a join/apply target. APPLY accepts a
// subquery, a bare table-valued-function call, or a parenthesized VALUES
// expression; JOIN accepts any table source.
func (p *Parser) parseApplyOrTableSource(f *frame, isApply bool) bool {
	if isApply && p.is(token.LParen) && !p.subqueryAhead() && !p.valuesAhead() {
		// plain parenthesized value expression
		p.skipParens()
		_ = p.parseAlias()
		return true
	}
	return p.parseTableSource(f)
}

// valuesAhead reports whether the cursor is on '(' opening a VALUES
// table constructor.
func (p *Parser) valuesAhead() bool {
	return p.is(token.LParen) && p.peek().IsKeyword("VALUES")
}

// parseTableSource parses one table source: a subquery, a VALUES table, a
// temp table, a table variable, or a qualified table name (optionally a
// table-valued function call), each with an optional alias and table
// hints. Returns whether a source was actually present.
func (p *Parser) parseTableSource(f *frame) bool {
	tok := p.cur()
	switch {
	case p.subqueryAhead():
		p.parseSubquery(f.scope)
		return true

	case p.valuesAhead():
		p.parseValuesTable(f.scope)
		return true

	case tok.Kind == token.LParen:
		// parenthesized table source or expression; skip it whole
		p.skipParens()
		_ = p.parseAlias()
		return true

	case tok.Kind == token.TempTable:
		p.advance()
		ref := TableRef{
			Name:         tok.Text,
			IsTemp:       true,
			IsGlobalTemp: strings.HasPrefix(tok.Text, "##"),
		}
		p.finishTableSource(f, &ref)
		return true

	case tok.Kind == token.Parameter:
		p.advance()
		ref := TableRef{Name: tok.Text, IsTableVariable: true}
		p.finishTableSource(f, &ref)
		return true

	case tok.Kind == token.Ident || tok.Kind == token.BracketIdent:
		qn, _ := p.parseQualifiedName()
		if p.is(token.LParen) && !p.hintParens() {
			// table-valued function call
			p.skipParens()
		}
		ref := TableRef{
			Server:   qn.Server,
			Database: qn.Database,
			Schema:   qn.Schema,
			Name:     qn.Name,
		}
		if qn.Schema == "" && qn.Database == "" {
			if _, ok := f.scope.LookupCTE(qn.Name); ok {
				ref.IsCTE = true
			}
		}
		p.finishTableSource(f, &ref)
		return true
	}
	return false
}

// finishTableSource parses the trailing alias and table hints, then
// registers the table when it has a name.
func (p *Parser) finishTableSource(f *frame, ref *TableRef) {
	ref.Alias = p.parseAlias()

	if p.isKeyword("WITH") && p.peek().Kind == token.LParen {
		p.advance()
		p.skipParens()
	} else if p.hintParens() {
		p.skipParens()
	}

	if ref.Name != "" {
		f.scope.AddTable(*ref)
	}
}

// hintParens reports whether the cursor is on '(' opening a legacy table
// hint list such as (NOLOCK).
func (p *Parser) hintParens() bool {
	if !p.is(token.LParen) {
		return false
	}
	next := p.peek()
	return next.Kind == token.Keyword && tableHintKeywords[next.Upper()]
}

// scanCondition consumes a boolean condition (an ON clause) until a
// join/clause/statement terminator at paren depth 0, descending into
// subqueries. Returns the end position and whether input ran out.
func (p *Parser) scanCondition(f *frame) (token.Position, bool) {
	end := p.prevEnd()
	depth := 0
	for !p.eof() {
		tok := p.cur()
		switch tok.Kind {
		case token.LParen:
			if p.subqueryAhead() {
				p.parseSubquery(f.scope)
				end = p.prevEnd()
				continue
			}
			depth++
		case token.RParen:
			if depth == 0 {
				return end, false
			}
			depth--
		case token.Comma:
			if depth == 0 {
				return end, false
			}
		case token.Semicolon, token.BatchSep:
			return end, false
		case token.Keyword:
			if depth == 0 {
				upper := tok.Upper()
				if fromTerminators[upper] && upper != "ON" || joinModifiers[upper] ||
					upper == "JOIN" || upper == "APPLY" || statementStarters[upper] {
					return end, false
				}
			}
		}
		end = tok.End()
		p.advance()
	}
	return end, true
}
