// Package parser provides tolerant structural analysis of T-SQL text.
//
// The tokenizer and parser never fail: the input is typically incomplete
// because the user is still typing, so unrecognized or truncated constructs
// are skipped or recorded partially instead of raising errors.
package parser

import (
	"strings"

	"github.com/leapstack-labs/sqlsense/pkg/token"
)

// DefaultBatchSeparator is the batch separator keyword recognized between
// statements unless overridden in LexOptions.
const DefaultBatchSeparator = "GO"

// LexOptions configures tokenization.
type LexOptions struct {
	// BatchSeparator overrides the batch separator keyword (default GO).
	BatchSeparator string
	// ProgressEvery, when > 0, makes the lexer call Progress after roughly
	// that many input bytes have been consumed.
	ProgressEvery int
	// Progress receives the number of bytes consumed so far.
	Progress func(done int)
}

// Lexer tokenizes T-SQL input. It is a single-pass byte state machine.
type Lexer struct {
	input   string
	pos     int  // offset of current char
	readPos int  // offset after current char
	ch      byte // current char, 0 at EOF
	line    int  // 1-based line of current char
	col     int  // 1-based byte column of current char

	sep string // upper-cased batch separator keyword

	prev    token.Token // last emitted non-comment token
	hasPrev bool

	progressEvery int
	progress      func(int)
	lastReport    int
}

// NewLexer creates a Lexer with default options.
func NewLexer(input string) *Lexer {
	return NewLexerWithOptions(input, LexOptions{})
}

// NewLexerWithOptions creates a Lexer with the given options.
func NewLexerWithOptions(input string, opts LexOptions) *Lexer {
	sep := opts.BatchSeparator
	if sep == "" {
		sep = DefaultBatchSeparator
	}
	l := &Lexer{
		input:         input,
		sep:           strings.ToUpper(sep),
		line:          1,
		col:           1,
		progressEvery: opts.ProgressEvery,
		progress:      opts.Progress,
	}
	if len(input) > 0 {
		l.ch = input[0]
	}
	l.readPos = 1
	return l
}

// Tokenize returns all tokens for the input, excluding the final EOF token.
func Tokenize(input string) []token.Token {
	toks, _ := TokenizeWithOptions(input, LexOptions{})
	return toks
}

// TokenizeWithOptions returns all tokens plus the total byte count consumed.
func TokenizeWithOptions(input string, opts LexOptions) ([]token.Token, int) {
	l := NewLexerWithOptions(input, opts)
	var toks []token.Token
	for {
		tok := l.Next()
		if tok.Kind == token.EOF {
			break
		}
		toks = append(toks, tok)
	}
	return toks, len(input)
}

// readChar advances to the next character, updating line/col bookkeeping.
// A \r\n pair counts as a single line break.
func (l *Lexer) readChar() {
	switch l.ch {
	case '\n':
		l.line++
		l.col = 1
	case '\r':
		if l.peekChar() != '\n' {
			l.line++
			l.col = 1
		}
	case 0:
		// at EOF, stay put
	default:
		l.col++
	}

	if l.readPos >= len(l.input) {
		l.ch = 0
		l.pos = len(l.input)
	} else {
		l.ch = l.input[l.readPos]
		l.pos = l.readPos
	}
	l.readPos = l.pos + 1

	if l.progressEvery > 0 && l.progress != nil && l.pos-l.lastReport >= l.progressEvery {
		l.lastReport = l.pos
		l.progress(l.pos)
	}
}

// peekChar returns the next character without advancing.
func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

// Next returns the next token. At end of input it returns an EOF token;
// partial strings and comments at EOF are still emitted, never dropped.
func (l *Lexer) Next() token.Token {
	l.skipWhitespace()

	line, col := l.line, l.col
	start := l.pos

	emit := func(kind token.Kind) token.Token {
		tok := token.Token{
			Kind: kind,
			Text: l.input[start:l.pos],
			Line: line,
			Col:  col,
		}
		if !tok.IsComment() {
			l.prev = tok
			l.hasPrev = true
		}
		return tok
	}

	switch {
	case l.ch == 0:
		return token.Token{Kind: token.EOF, Line: line, Col: col}

	case l.ch == '-' && l.peekChar() == '-':
		l.readLineComment()
		return emit(token.LineComment)

	case l.ch == '/' && l.peekChar() == '*':
		l.readBlockComment()
		return emit(token.BlockComment)

	case l.ch == '\'':
		l.readString()
		return emit(token.String)

	case (l.ch == 'N' || l.ch == 'n') && l.peekChar() == '\'':
		// Unicode string literal: the N marker is absorbed into the token.
		l.readChar()
		l.readString()
		return emit(token.String)

	case l.ch == '[':
		l.readBracketIdent()
		return emit(token.BracketIdent)

	case l.ch == '@':
		if l.peekChar() == '@' {
			l.readChar()
			l.readChar()
			if isIdentChar(l.ch) {
				l.readIdentChars()
				tok := emit(token.SysParameter)
				tok.Category = token.CatGlobalVar
				l.prev = tok
				return tok
			}
			return emit(token.Operator)
		}
		l.readChar()
		if isIdentChar(l.ch) {
			l.readIdentChars()
			return emit(token.Parameter)
		}
		return emit(token.Operator)

	case l.ch == '#':
		if l.peekChar() == '#' {
			l.readChar()
		}
		l.readChar()
		if isIdentChar(l.ch) {
			l.readIdentChars()
			return emit(token.TempTable)
		}
		if l.pos-start > 1 {
			// "##" with nothing after it
			return emit(token.TempTable)
		}
		return emit(token.Hash)

	case l.ch == '-' && isDigit(l.peekChar()) && l.minusStartsNumber():
		l.readChar()
		l.readNumber()
		return emit(token.Number)

	case isDigit(l.ch):
		l.readNumber()
		return emit(token.Number)

	case l.ch == '.' && isDigit(l.peekChar()) && !l.afterNamePart():
		l.readChar()
		l.readDigits()
		return emit(token.Number)

	case isIdentStart(l.ch):
		l.readIdentChars()
		word := l.input[start:l.pos]
		if strings.EqualFold(word, l.sep) {
			return emit(token.BatchSep)
		}
		if cat, ok := token.Lookup(word); ok {
			tok := emit(token.Keyword)
			tok.Category = cat
			l.prev = tok
			return tok
		}
		if token.IsSystemProcedure(word) {
			tok := emit(token.Ident)
			tok.Category = token.CatSysProc
			l.prev = tok
			return tok
		}
		return emit(token.Ident)

	default:
		return l.symbol(emit)
	}
}

// symbol handles operators and punctuation, with one-character lookahead
// for the multi-character operators.
func (l *Lexer) symbol(emit func(token.Kind) token.Token) token.Token {
	ch := l.ch
	switch ch {
	case ',':
		l.readChar()
		return emit(token.Comma)
	case ';':
		l.readChar()
		return emit(token.Semicolon)
	case '(':
		l.readChar()
		return emit(token.LParen)
	case ')':
		l.readChar()
		return emit(token.RParen)
	case '.':
		l.readChar()
		return emit(token.Dot)
	case '<':
		l.readChar()
		if l.ch == '>' || l.ch == '=' {
			l.readChar()
		}
		return emit(token.Operator)
	case '>':
		l.readChar()
		if l.ch == '=' {
			l.readChar()
		}
		return emit(token.Operator)
	case '!':
		l.readChar()
		if l.ch == '=' || l.ch == '<' || l.ch == '>' {
			l.readChar()
		}
		return emit(token.Operator)
	case ':':
		l.readChar()
		if l.ch == ':' {
			l.readChar()
		}
		return emit(token.Operator)
	case '+', '-', '*', '/', '%', '=', '|', '&', '^', '~', ']':
		l.readChar()
		return emit(token.Operator)
	default:
		l.readChar()
		return emit(token.Illegal)
	}
}

// minusStartsNumber decides whether '-' before a digit begins a negative
// number literal rather than a binary minus. It does when there is no
// preceding token, or the preceding token is an operator, comma, open
// paren, keyword, batch separator, or semicolon.
func (l *Lexer) minusStartsNumber() bool {
	if !l.hasPrev {
		return true
	}
	switch l.prev.Kind {
	case token.Operator, token.Comma, token.LParen, token.Keyword,
		token.BatchSep, token.Semicolon:
		return true
	}
	return false
}

// afterNamePart reports whether the previous token could be a qualified
// name part, in which case a following '.' is a name separator rather than
// a decimal point.
func (l *Lexer) afterNamePart() bool {
	if !l.hasPrev {
		return false
	}
	switch l.prev.Kind {
	case token.Ident, token.BracketIdent, token.TempTable,
		token.Parameter, token.RParen:
		return true
	}
	return false
}

func (l *Lexer) readIdentChars() {
	for isIdentChar(l.ch) {
		l.readChar()
	}
}

func (l *Lexer) readDigits() {
	for isDigit(l.ch) {
		l.readChar()
	}
}

// readNumber consumes an integer, decimal, or hex literal.
func (l *Lexer) readNumber() {
	if l.ch == '0' && (l.peekChar() == 'x' || l.peekChar() == 'X') {
		l.readChar()
		l.readChar()
		for isHexDigit(l.ch) {
			l.readChar()
		}
		return
	}
	l.readDigits()
	if l.ch == '.' {
		l.readChar()
		l.readDigits()
	}
}

// readString consumes a single-quoted string, treating '' as an escaped
// quote. Strings may span lines. An unterminated string runs to EOF.
func (l *Lexer) readString() {
	l.readChar() // opening quote
	for l.ch != 0 {
		if l.ch == '\'' {
			if l.peekChar() == '\'' {
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar() // closing quote
			return
		}
		l.readChar()
	}
}

// readBracketIdent consumes a [bracketed identifier]. There is no nested
// bracket support: the first ] closes the identifier.
func (l *Lexer) readBracketIdent() {
	l.readChar() // '['
	for l.ch != 0 && l.ch != ']' {
		l.readChar()
	}
	if l.ch == ']' {
		l.readChar()
	}
}

// readLineComment consumes -- to end of line, excluding the line break.
func (l *Lexer) readLineComment() {
	for l.ch != 0 && l.ch != '\n' && l.ch != '\r' {
		l.readChar()
	}
}

// readBlockComment consumes a block comment, honoring nesting via a depth
// counter. An unterminated comment runs to EOF and is still emitted.
func (l *Lexer) readBlockComment() {
	l.readChar() // '/'
	l.readChar() // '*'
	depth := 1
	for l.ch != 0 && depth > 0 {
		switch {
		case l.ch == '/' && l.peekChar() == '*':
			depth++
			l.readChar()
			l.readChar()
		case l.ch == '*' && l.peekChar() == '/':
			depth--
			l.readChar()
			l.readChar()
		default:
			l.readChar()
		}
	}
}

func isIdentStart(ch byte) bool {
	return ch == '_' || ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z'
}

func isIdentChar(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || ch >= 'a' && ch <= 'f' || ch >= 'A' && ch <= 'F'
}
