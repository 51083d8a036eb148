package parser

import (
	"strings"

	"github.com/leapstack-labs/sqlsense/pkg/token"
)

// Options configures document parsing.
type Options struct {
	// Lex configures tokenization (batch separator, progress reporting).
	Lex LexOptions
}

// Parse tokenizes and parses a T-SQL script with default options. It never
// returns an error: malformed input degrades to partial structural records,
// not failures.
func Parse(sql string) *Result {
	return ParseWithOptions(sql, Options{})
}

// ParseWithOptions parses the script statement by statement, tracking batch
// boundaries and temp-table lifecycles across statements.
func ParseWithOptions(sql string, opts Options) *Result {
	toks, charCount := TokenizeWithOptions(sql, opts.Lex)
	res := &Result{
		Tokens:     toks,
		TempTables: make(map[string]*TempTableInfo),
		CharCount:  charCount,
	}

	p := newParser(toks)
	batch := 0
	for !p.eof() {
		switch p.cur().Kind {
		case token.BatchSep:
			batch++
			p.advance()
			continue
		case token.Semicolon:
			p.advance()
			continue
		}

		start := p.pos
		chunk := p.parseStatement(batch)
		if p.pos == start {
			// a statement parser that consumed nothing would loop forever
			p.advance()
		}
		res.Statements = append(res.Statements, chunk)
		res.recordTempTables(chunk)
	}
	return res
}

// recordTempTables updates the temp-table registry from one statement:
// SELECT INTO and CREATE TABLE targets open a lifecycle, DROP TABLE closes
// one.
func (r *Result) recordTempTables(chunk *StatementChunk) {
	if chunk.TempTableName != "" {
		name := chunk.TempTableName
		r.TempTables[strings.ToLower(name)] = &TempTableInfo{
			Name:           name,
			Columns:        chunk.Columns,
			CreatedInBatch: chunk.BatchIndex,
			IsGlobal:       strings.HasPrefix(name, "##"),
		}
	}

	if chunk.Type == StmtDrop {
		for i := range chunk.Tables {
			t := &chunk.Tables[i]
			if !t.IsTemp {
				continue
			}
			if info, ok := r.TempTables[strings.ToLower(t.Name)]; ok && info.DroppedAtLine == 0 {
				info.DroppedAtLine = chunk.Span.Start.Line
			}
		}
	}
}

// TempTableAt returns the temp table with the given #name that is visible
// at the given batch: global temp tables are visible from their creating
// batch onward, local ones only inside their creating batch, and a dropped
// table stays visible for structural lookups (callers can check
// DroppedAtLine).
func (r *Result) TempTableAt(name string, batch int) *TempTableInfo {
	info, ok := r.TempTables[strings.ToLower(name)]
	if !ok {
		return nil
	}
	if info.IsGlobal {
		if batch < info.CreatedInBatch {
			return nil
		}
		return info
	}
	if batch != info.CreatedInBatch {
		return nil
	}
	return info
}
