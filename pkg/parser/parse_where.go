package parser

import "github.com/leapstack-labs/sqlsense/pkg/token"

// whereTerminators end a WHERE clause at paren depth 0. Statement-starting
// keywords (other than WITH, which can open a subquery hint) are handled
// by the boundary check.
var whereTerminators = map[string]bool{
	"GROUP": true, "HAVING": true, "ORDER": true, "OPTION": true,
	"FOR": true, "UNION": true, "INTERSECT": true, "EXCEPT": true,
	"OUTPUT": true, "WHEN": true,
}

// parseWhereClause consumes a WHERE clause. The cursor must be on the
// WHERE keyword; the recorded span runs from it to the last condition
// token, or stays open when input runs out mid-clause.
func (p *Parser) parseWhereClause(f *frame) {
	start := p.cur().Pos()
	p.advance()
	end, open := p.scanClauseBody(f, whereTerminators)
	f.setClause("where", token.Span{Start: start, End: end, Open: open})
}

// scanClauseBody consumes tokens until a terminator keyword at paren depth
// 0, a statement boundary, or the enclosing subquery's close paren. It
// descends into (SELECT ...) subqueries inline, attaching them to the
// current scope. Returns the end position and whether input ran out.
func (p *Parser) scanClauseBody(f *frame, terminators map[string]bool) (token.Position, bool) {
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
		case token.Semicolon, token.BatchSep:
			return end, false
		case token.Keyword:
			if depth == 0 {
				upper := tok.Upper()
				if terminators[upper] {
					return end, false
				}
				if statementStarters[upper] && upper != "WITH" {
					return end, false
				}
			}
		}
		end = tok.End()
		p.advance()
	}
	return end, true
}

// trailingClauseKeys maps the clause-opening keyword to its span key and
// terminator set. Used for the structural skim of GROUP BY, HAVING,
// ORDER BY, and OPTION after the WHERE clause.
type trailingClause struct {
	key         string
	terminators map[string]bool
}

var trailingClauses = map[string]trailingClause{
	"GROUP": {"group_by", map[string]bool{
		"HAVING": true, "ORDER": true, "OPTION": true, "FOR": true,
		"UNION": true, "INTERSECT": true, "EXCEPT": true,
	}},
	"HAVING": {"having", map[string]bool{
		"ORDER": true, "OPTION": true, "FOR": true,
		"UNION": true, "INTERSECT": true, "EXCEPT": true,
	}},
	"ORDER": {"order_by", map[string]bool{
		"OPTION": true, "FOR": true, "OFFSET": true,
		"UNION": true, "INTERSECT": true, "EXCEPT": true,
	}},
	"OPTION": {"option", map[string]bool{}},
}

// parseTrailingClauses skims GROUP BY / HAVING / ORDER BY / OPTION in any
// order, recording one span per clause.
func (p *Parser) parseTrailingClauses(f *frame) {
	for !p.eof() {
		tok := p.cur()
		if tok.Kind != token.Keyword {
			return
		}
		tc, ok := trailingClauses[tok.Upper()]
		if !ok {
			return
		}
		start := tok.Pos()
		p.advance()
		p.consumeKeyword("BY")
		end, open := p.scanClauseBody(f, tc.terminators)
		f.setClause(tc.key, token.Span{Start: start, End: end, Open: open})
	}
}
