// Package token defines the lexical tokens produced by the T-SQL tokenizer.
//
// Tokens carry their raw source text and 1-based line/column positions so
// that higher layers can map a cursor position back onto the token stream.
// Comments and batch separators are emitted as ordinary tokens; parsers that
// do not care about them skip them explicitly.
package token

import "strings"

// Kind classifies a token.
type Kind int

const (
	// Illegal is a character sequence the tokenizer could not classify.
	Illegal Kind = iota
	// EOF marks the end of input.
	EOF

	// Ident is an unquoted identifier.
	Ident
	// BracketIdent is a [bracketed] identifier.
	BracketIdent
	// Keyword is a recognized SQL keyword (see Category).
	Keyword
	// Number is a numeric literal, including hex literals.
	Number
	// String is a quoted string literal, including the quotes and any
	// leading N unicode marker.
	String

	// Operator covers arithmetic and comparison operators.
	Operator

	// Punctuation variants.
	Comma
	Semicolon
	Dot
	LParen
	RParen
	Hash // bare '#', not followed by identifier characters

	// Parameter is a @name user parameter or variable reference.
	Parameter
	// SysParameter is a @@name system variable reference.
	SysParameter
	// TempTable is a #name (session) or ##name (global) temp table name.
	TempTable

	// LineComment is a -- comment up to end of line.
	LineComment
	// BlockComment is a /* ... */ comment, possibly nested and multi-line.
	BlockComment

	// BatchSep is a batch separator token (conventionally GO).
	BatchSep
)

var kindNames = map[Kind]string{
	Illegal:      "ILLEGAL",
	EOF:          "EOF",
	Ident:        "IDENT",
	BracketIdent: "BRACKET_IDENT",
	Keyword:      "KEYWORD",
	Number:       "NUMBER",
	String:       "STRING",
	Operator:     "OPERATOR",
	Comma:        "COMMA",
	Semicolon:    "SEMICOLON",
	Dot:          "DOT",
	LParen:       "LPAREN",
	RParen:       "RPAREN",
	Hash:         "HASH",
	Parameter:    "PARAMETER",
	SysParameter: "SYS_PARAMETER",
	TempTable:    "TEMP_TABLE",
	LineComment:  "LINE_COMMENT",
	BlockComment: "BLOCK_COMMENT",
	BatchSep:     "BATCH_SEP",
}

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "UNKNOWN"
}

// Token is a single lexical token. Immutable once produced.
type Token struct {
	Kind     Kind
	Text     string // raw source text, quotes and brackets included
	Line     int    // 1-based
	Col      int    // 1-based byte column
	Category Category
}

// EndCol returns the 1-based column of the token's last byte.
func (t Token) EndCol() int {
	return t.Col + len(t.Text) - 1
}

// IsComment reports whether the token is a line or block comment.
func (t Token) IsComment() bool {
	return t.Kind == LineComment || t.Kind == BlockComment
}

// IsKeyword reports whether the token is the given keyword,
// compared case-insensitively.
func (t Token) IsKeyword(word string) bool {
	return t.Kind == Keyword && strings.EqualFold(t.Text, word)
}

// Upper returns the token text upper-cased. Useful for keyword switches.
func (t Token) Upper() string {
	return strings.ToUpper(t.Text)
}

// Pos returns the token's start position.
func (t Token) Pos() Position {
	return Position{Line: t.Line, Col: t.Col}
}

// End returns the position of the token's last byte. Strings and block
// comments may span lines; the end position accounts for the line breaks
// inside the token text.
func (t Token) End() Position {
	i := strings.LastIndexByte(t.Text, '\n')
	if i < 0 {
		return Position{Line: t.Line, Col: t.EndCol()}
	}
	return Position{
		Line: t.Line + strings.Count(t.Text, "\n"),
		Col:  len(t.Text) - i - 1,
	}
}

// NameText returns the identifier text with surrounding brackets stripped
// for bracketed identifiers, and the raw text otherwise.
func (t Token) NameText() string {
	if t.Kind == BracketIdent {
		return strings.TrimSuffix(strings.TrimPrefix(t.Text, "["), "]")
	}
	return t.Text
}

// IsIdentLike reports whether the token can serve as a name part:
// identifiers, bracketed identifiers, and keywords (SQL permits keywords
// as column and alias names).
func (t Token) IsIdentLike() bool {
	return t.Kind == Ident || t.Kind == BracketIdent || t.Kind == Keyword
}
