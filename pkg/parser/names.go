package parser

import (
	"strings"

	"github.com/leapstack-labs/sqlsense/pkg/token"
)

// qualifiedName is a dotted name of up to four parts. Parts map
// right-to-left onto name, schema, database, server; anything beyond four
// parts is dropped from the left.
type qualifiedName struct {
	Server   string
	Database string
	Schema   string
	Name     string
}

// parseQualifiedName consumes a dot-separated name at the cursor. Temp
// table and parameter tokens short-circuit as single-part names. Returns
// false when the cursor is not on a name start.
func (p *Parser) parseQualifiedName() (qualifiedName, bool) {
	tok := p.cur()
	switch tok.Kind {
	case token.TempTable, token.Parameter:
		p.advance()
		return qualifiedName{Name: tok.Text}, true
	case token.Ident, token.BracketIdent:
		// fall through to the dotted chain below
	default:
		return qualifiedName{}, false
	}

	parts := []string{tok.NameText()}
	p.advance()
	for p.is(token.Dot) {
		next := p.peek()
		if next.Kind != token.Ident && next.Kind != token.BracketIdent {
			// dangling dot while the user is still typing
			p.advance()
			break
		}
		p.advance() // dot
		parts = append(parts, p.cur().NameText())
		p.advance()
	}

	if len(parts) > 4 {
		parts = parts[len(parts)-4:]
	}

	var qn qualifiedName
	switch len(parts) {
	case 1:
		qn.Name = parts[0]
	case 2:
		qn.Schema, qn.Name = parts[0], parts[1]
	case 3:
		qn.Database, qn.Schema, qn.Name = parts[0], parts[1], parts[2]
	case 4:
		qn.Server, qn.Database, qn.Schema, qn.Name = parts[0], parts[1], parts[2], parts[3]
	}
	return qn, true
}

// parseAlias consumes an optional alias at the cursor. After an explicit
// AS any identifier, bracketed identifier, or keyword is accepted (SQL
// keywords are legal alias names). A bare alias is accepted only for plain
// and bracketed identifiers, so clause keywords are never swallowed.
func (p *Parser) parseAlias() string {
	if p.consumeKeyword("AS") {
		tok := p.cur()
		if tok.IsIdentLike() {
			p.advance()
			return tok.NameText()
		}
		return ""
	}
	tok := p.cur()
	if tok.Kind == token.Ident || tok.Kind == token.BracketIdent {
		p.advance()
		return tok.NameText()
	}
	return ""
}

// parseColumnNameList consumes a parenthesized (col1, col2, ...) list.
// When allowKeywords is set, keyword tokens are accepted as column names
// (required for VALUES-table column lists). Unexpected tokens are skipped.
// Returns nil, false when the cursor is not on an open paren.
func (p *Parser) parseColumnNameList(allowKeywords bool) ([]string, bool) {
	if !p.is(token.LParen) {
		return nil, false
	}
	p.advance()

	var cols []string
	for !p.eof() {
		tok := p.cur()
		switch {
		case tok.Kind == token.RParen:
			p.advance()
			return cols, true
		case tok.Kind == token.Comma:
			p.advance()
		case tok.Kind == token.Ident || tok.Kind == token.BracketIdent:
			cols = append(cols, tok.NameText())
			p.advance()
		case tok.Kind == token.Keyword && allowKeywords:
			cols = append(cols, tok.Text)
			p.advance()
		case tok.Kind == token.LParen:
			p.skipParens()
		default:
			p.advance()
		}
	}
	return cols, true
}

// parameterFromToken builds a ParameterInfo for a @x or @@x token.
func parameterFromToken(tok token.Token) ParameterInfo {
	name := strings.TrimLeft(tok.Text, "@")
	return ParameterInfo{
		Name:     name,
		FullName: tok.Text,
		Line:     tok.Line,
		Col:      tok.Col,
		IsSystem: tok.Kind == token.SysParameter,
	}
}

// appendParameter adds a parameter, deduplicating by lowercase full name.
func appendParameter(params []ParameterInfo, tok token.Token) []ParameterInfo {
	key := strings.ToLower(tok.Text)
	for _, existing := range params {
		if strings.ToLower(existing.FullName) == key {
			return params
		}
	}
	return append(params, parameterFromToken(tok))
}
