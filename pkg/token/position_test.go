package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPosition_Ordering(t *testing.T) {
	tests := []struct {
		name   string
		a, b   Position
		before bool
	}{
		{"earlier line", Position{Line: 1, Col: 9}, Position{Line: 2, Col: 1}, true},
		{"same line earlier col", Position{Line: 3, Col: 4}, Position{Line: 3, Col: 5}, true},
		{"equal", Position{Line: 3, Col: 4}, Position{Line: 3, Col: 4}, false},
		{"later", Position{Line: 4, Col: 1}, Position{Line: 3, Col: 9}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.before, tt.a.Before(tt.b))
			assert.Equal(t, tt.before || tt.a == tt.b, tt.a.AtOrBefore(tt.b))
		})
	}

	assert.False(t, Position{}.IsValid())
	assert.True(t, Position{Line: 1, Col: 1}.IsValid())
}

func TestSpan_Contains(t *testing.T) {
	closed := Span{Start: Position{Line: 1, Col: 8}, End: Position{Line: 1, Col: 20}}
	assert.False(t, closed.Contains(Position{Line: 1, Col: 7}))
	assert.True(t, closed.Contains(Position{Line: 1, Col: 8}))
	assert.True(t, closed.Contains(Position{Line: 1, Col: 20}))
	assert.False(t, closed.Contains(Position{Line: 1, Col: 21}))

	open := Span{Start: Position{Line: 2, Col: 1}, Open: true}
	assert.False(t, open.Contains(Position{Line: 1, Col: 99}))
	assert.True(t, open.Contains(Position{Line: 2, Col: 1}))
	assert.True(t, open.Contains(Position{Line: 50, Col: 1}))

	assert.False(t, Span{}.Contains(Position{Line: 1, Col: 1}))
}

func TestSpan_String(t *testing.T) {
	closed := Span{Start: Position{Line: 1, Col: 8}, End: Position{Line: 2, Col: 3}}
	assert.Equal(t, "1:8..2:3", closed.String())

	open := Span{Start: Position{Line: 1, Col: 8}, Open: true}
	assert.Equal(t, "1:8..", open.String())
}

func TestToken_End(t *testing.T) {
	single := Token{Kind: Ident, Text: "Employees", Line: 2, Col: 5}
	assert.Equal(t, Position{Line: 2, Col: 13}, single.End())

	multi := Token{Kind: String, Text: "'one\ntwo'", Line: 1, Col: 10}
	assert.Equal(t, Position{Line: 2, Col: 4}, multi.End())
}

func TestToken_NameText(t *testing.T) {
	assert.Equal(t, "Order Details", Token{Kind: BracketIdent, Text: "[Order Details]"}.NameText())
	assert.Equal(t, "Employees", Token{Kind: Ident, Text: "Employees"}.NameText())
}
