package parser

import (
	"strings"

	"github.com/leapstack-labs/sqlsense/pkg/token"
)

// statementStarters are the keywords that begin a new top-level statement.
// The boundary scanner stops in front of them at paren depth 0.
var statementStarters = map[string]bool{
	"SELECT": true, "INSERT": true, "UPDATE": true, "DELETE": true,
	"MERGE": true, "WITH": true, "CREATE": true, "ALTER": true,
	"DROP": true, "TRUNCATE": true, "EXEC": true, "EXECUTE": true,
	"DECLARE": true, "SET": true, "USE": true, "IF": true, "WHILE": true,
	"BEGIN": true, "COMMIT": true, "ROLLBACK": true, "PRINT": true,
	"RETURN": true, "GRANT": true, "REVOKE": true, "DENY": true,
	"WAITFOR": true, "THROW": true, "RAISERROR": true,
}

// Parser walks a token slice. Comment tokens are skipped transparently by
// the navigation methods so clause parsers never see them. All state is
// owned by the Parser; nothing is shared across calls.
type Parser struct {
	toks []token.Token
	pos  int
}

func newParser(toks []token.Token) *Parser {
	p := &Parser{toks: toks}
	p.skipComments()
	return p
}

func (p *Parser) skipComments() {
	for p.pos < len(p.toks) && p.toks[p.pos].IsComment() {
		p.pos++
	}
}

// eof reports whether the cursor has run out of tokens.
func (p *Parser) eof() bool {
	return p.pos >= len(p.toks)
}

// cur returns the current token, or an EOF token past the end.
func (p *Parser) cur() token.Token {
	if p.eof() {
		return token.Token{Kind: token.EOF}
	}
	return p.toks[p.pos]
}

// peek returns the next non-comment token after the current one.
func (p *Parser) peek() token.Token {
	for i := p.pos + 1; i < len(p.toks); i++ {
		if !p.toks[i].IsComment() {
			return p.toks[i]
		}
	}
	return token.Token{Kind: token.EOF}
}

// advance moves to the next non-comment token.
func (p *Parser) advance() {
	if p.pos < len(p.toks) {
		p.pos++
	}
	p.skipComments()
}

// is reports whether the current token has the given kind.
func (p *Parser) is(kind token.Kind) bool {
	return p.cur().Kind == kind
}

// isKeyword reports whether the current token is the given keyword,
// case-insensitively.
func (p *Parser) isKeyword(word string) bool {
	return p.cur().IsKeyword(word)
}

// isAnyKeyword reports whether the current token matches any given keyword.
func (p *Parser) isAnyKeyword(words ...string) bool {
	tok := p.cur()
	if tok.Kind != token.Keyword {
		return false
	}
	for _, w := range words {
		if strings.EqualFold(tok.Text, w) {
			return true
		}
	}
	return false
}

// consume advances past the current token if it has the given kind.
func (p *Parser) consume(kind token.Kind) bool {
	if p.is(kind) {
		p.advance()
		return true
	}
	return false
}

// consumeKeyword advances past the current token iff it is the keyword.
func (p *Parser) consumeKeyword(word string) bool {
	if p.isKeyword(word) {
		p.advance()
		return true
	}
	return false
}

// prevEnd returns the end position of the token just before the cursor,
// ignoring comments. Used to close clause ranges.
func (p *Parser) prevEnd() token.Position {
	for i := p.pos - 1; i >= 0; i-- {
		if !p.toks[i].IsComment() {
			return p.toks[i].End()
		}
	}
	return token.Position{}
}

// skipParens skips a balanced parenthesized group. The cursor must be on
// the opening paren; on return it is after the matching close paren, or at
// EOF if the input ran out first.
func (p *Parser) skipParens() {
	if !p.is(token.LParen) {
		return
	}
	depth := 0
	for !p.eof() {
		switch p.cur().Kind {
		case token.LParen:
			depth++
		case token.RParen:
			depth--
			if depth == 0 {
				p.advance()
				return
			}
		}
		p.advance()
	}
}

// atStatementBoundary reports whether the current token ends the current
// statement at paren depth 0: a batch separator, a semicolon, or a keyword
// that starts a new statement.
func (p *Parser) atStatementBoundary() bool {
	tok := p.cur()
	switch tok.Kind {
	case token.EOF, token.BatchSep, token.Semicolon:
		return true
	case token.Keyword:
		return statementStarters[tok.Upper()]
	}
	return false
}

// scanToStatementEnd advances to the next statement boundary, honoring
// paren nesting so boundary keywords inside parens are ignored. Used by
// statements that need no structural parsing (DECLARE, SET, EXEC, other).
// Returns the end position of the last token consumed.
func (p *Parser) scanToStatementEnd() token.Position {
	end := p.prevEnd()
	depth := 0
	for !p.eof() {
		tok := p.cur()
		switch tok.Kind {
		case token.LParen:
			depth++
		case token.RParen:
			if depth > 0 {
				depth--
			}
		default:
			if depth == 0 && p.atStatementBoundary() {
				return end
			}
		}
		end = tok.End()
		p.advance()
	}
	return end
}
