package parser

import "github.com/leapstack-labs/sqlsense/pkg/token"

// constraintStarters begin a table-level constraint inside a column
// definition list. Constraint definitions contribute no columns and are
// skipped to the next comma.
var constraintStarters = map[string]bool{
	"PRIMARY": true, "FOREIGN": true, "UNIQUE": true, "CHECK": true,
	"CONSTRAINT": true, "INDEX": true, "CLUSTERED": true,
	"NONCLUSTERED": true,
}

// parseColumnDefs consumes a (col TYPE [params] [modifiers], ...) column
// definition list from CREATE TABLE or a table-variable declaration. The
// cursor must be on the open paren. Type parameters and DEFAULT
// expressions are skipped by balanced-paren skip.
func (p *Parser) parseColumnDefs() []ColumnInfo {
	if !p.is(token.LParen) {
		return nil
	}
	p.advance()

	var cols []ColumnInfo
	for !p.eof() {
		tok := p.cur()
		switch {
		case tok.Kind == token.RParen:
			p.advance()
			return cols

		case tok.Kind == token.Comma:
			p.advance()

		case tok.Kind == token.Keyword && constraintStarters[tok.Upper()]:
			p.skipColumnDef()

		case tok.Kind == token.Ident || tok.Kind == token.BracketIdent:
			cols = append(cols, ColumnInfo{Name: tok.NameText()})
			p.advance()
			p.skipColumnDef()

		default:
			p.advance()
		}
	}
	return cols
}

// skipColumnDef skips the rest of one definition entry: type name, type
// parameters, and modifiers, up to the next comma or the closing paren at
// depth 0.
func (p *Parser) skipColumnDef() {
	for !p.eof() {
		switch p.cur().Kind {
		case token.Comma, token.RParen:
			return
		case token.LParen:
			p.skipParens()
		default:
			p.advance()
		}
	}
}
