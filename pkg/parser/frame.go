package parser

import (
	"fmt"

	"github.com/leapstack-labs/sqlsense/pkg/token"
)

// frame accumulates the structural output of one statement or subquery
// while its clauses are parsed. Statement dispatchers and the subquery
// parser both drive clause parsers through a frame, then copy the results
// into a StatementChunk or SubqueryInfo.
type frame struct {
	scope   *Scope
	clauses map[string]token.Span
	columns []ColumnInfo

	tempTarget    string // SELECT ... INTO #x target, lowercase as typed
	tempIsGlobal  bool
	insertColumns []string

	joins int // joins discovered so far; join_N/on_N share the number

	ctes []*CTEInfo
}

func newFrame(scope *Scope) *frame {
	return &frame{
		scope:   scope,
		clauses: make(map[string]token.Span),
	}
}

// setClause records a clause span under key, first write wins.
func (f *frame) setClause(key string, span token.Span) {
	if _, ok := f.clauses[key]; ok {
		return
	}
	f.clauses[key] = span
}

// nextIndexed returns the next free numbered key for a prefix, counting
// from 1: join_1, join_2, ...
func (f *frame) nextIndexed(prefix string) string {
	for i := 1; ; i++ {
		key := fmt.Sprintf("%s_%d", prefix, i)
		if _, ok := f.clauses[key]; !ok {
			return key
		}
	}
}
