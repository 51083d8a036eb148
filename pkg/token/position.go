package token

import "fmt"

// Position is a location in source text. Both fields are 1-based to match
// editor conventions. Columns count bytes, not codepoints.
type Position struct {
	Line int
	Col  int
}

// IsValid reports whether the position has been set.
func (p Position) IsValid() bool {
	return p.Line > 0
}

// Before reports whether p is strictly before other.
func (p Position) Before(other Position) bool {
	if p.Line != other.Line {
		return p.Line < other.Line
	}
	return p.Col < other.Col
}

// AtOrBefore reports whether p is at or before other.
func (p Position) AtOrBefore(other Position) bool {
	return p == other || p.Before(other)
}

// Span is an inclusive source range covering one clause or statement.
// An Open span has no upper bound yet: the clause was still being typed
// when parsing stopped, so any position at or after Start is inside it.
type Span struct {
	Start Position
	End   Position
	Open  bool
}

// Contains reports whether the position falls inside the span.
func (s Span) Contains(p Position) bool {
	if !s.Start.IsValid() || p.Before(s.Start) {
		return false
	}
	if s.Open {
		return true
	}
	return p.AtOrBefore(s.End)
}

// IsValid reports whether the span has a valid start.
func (s Span) IsValid() bool {
	return s.Start.IsValid()
}

func (s Span) String() string {
	if s.Open {
		return fmt.Sprintf("%d:%d..", s.Start.Line, s.Start.Col)
	}
	return fmt.Sprintf("%d:%d..%d:%d", s.Start.Line, s.Start.Col, s.End.Line, s.End.Col)
}
