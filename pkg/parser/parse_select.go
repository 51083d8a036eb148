package parser

import "github.com/leapstack-labs/sqlsense/pkg/token"

// selectItem tracks one comma-separated select-list expression while it is
// being scanned.
type selectItem struct {
	refs       []ColumnInfo // qualified/bare column references seen so far
	alias      string
	star       bool
	starSource string // qualifier of alias.*
	hasContent bool   // literals, functions, parameters count as content
	lastWasRef bool   // previous token chain produced a column reference
}

func (it *selectItem) reset() {
	*it = selectItem{}
}

// finalize turns the scanned item into a ColumnInfo, or returns false for
// items that produce no named column (bare literals without an alias).
func (it *selectItem) finalize() (ColumnInfo, bool) {
	switch {
	case it.star:
		return ColumnInfo{Name: "*", SourceTable: it.starSource, IsStar: true}, true
	case len(it.refs) == 1:
		col := it.refs[0]
		if it.alias != "" {
			col.Name = it.alias
		}
		return col, true
	case len(it.refs) > 1:
		name := it.alias
		if name == "" {
			name = it.refs[0].Name
		}
		return ColumnInfo{Name: name, ExpressionColumns: it.refs}, true
	case it.alias != "":
		return ColumnInfo{Name: it.alias}, true
	}
	return ColumnInfo{}, false
}

// selectListTerminators end the select list at paren depth 0.
var selectListTerminators = map[string]bool{
	"FROM": true, "INTO": true,
	"UNION": true, "INTERSECT": true, "EXCEPT": true,
}

// parseSelectList consumes the comma-separated column expressions of a
// SELECT statement. The cursor must be just past the SELECT keyword and
// any DISTINCT/TOP modifiers. It stops in front of FROM/INTO (or a set
// operation, statement boundary, or the enclosing subquery's close paren)
// without consuming the terminator. Returns whether the list ran out of
// input, which leaves the select clause open-ended.
func (p *Parser) parseSelectList(f *frame) (openEnded bool) {
	var item selectItem
	depth := 0

	finish := func() {
		if col, ok := item.finalize(); ok {
			f.columns = append(f.columns, col)
		}
		item.reset()
	}

	for !p.eof() {
		tok := p.cur()
		switch tok.Kind {
		case token.LParen:
			if p.subqueryAhead() {
				sq := p.parseSubquery(f.scope)
				if sq.Alias != "" && item.alias == "" {
					item.alias = sq.Alias
				}
				item.hasContent = true
				item.lastWasRef = false
				continue
			}
			depth++
			item.lastWasRef = false
			p.advance()

		case token.RParen:
			if depth == 0 {
				finish()
				return false
			}
			depth--
			p.advance()

		case token.Comma:
			if depth == 0 {
				finish()
			}
			p.advance()

		case token.Keyword:
			upper := tok.Upper()
			if depth == 0 && (selectListTerminators[upper] || statementStarters[upper] && upper != "CASE") {
				finish()
				return false
			}
			if upper == "AS" {
				if alias := p.parseAlias(); alias != "" {
					item.alias = alias
				}
				item.lastWasRef = false
				continue
			}
			item.hasContent = true
			item.lastWasRef = false
			p.advance()

		case token.Ident, token.BracketIdent:
			p.scanColumnRef(&item)

		case token.Operator:
			if tok.Text == "*" {
				// bare star vs multiplication: a star with no pending
				// expression content is a column wildcard
				if !item.hasContent && len(item.refs) == 0 {
					item.star = true
				}
			}
			item.hasContent = true
			item.lastWasRef = false
			p.advance()

		case token.Semicolon, token.BatchSep:
			finish()
			return false

		default:
			item.hasContent = true
			item.lastWasRef = false
			p.advance()
		}
	}
	finish()
	return true
}

// subqueryAhead reports whether the cursor is on '(' opening a subquery.
func (p *Parser) subqueryAhead() bool {
	if !p.is(token.LParen) {
		return false
	}
	next := p.peek()
	return next.IsKeyword("SELECT") || next.IsKeyword("WITH")
}

// scanColumnRef consumes an identifier chain at the cursor: bare column,
// table.column, schema.table.column, alias.*, or a function call (which
// records no reference). A single identifier immediately following a
// completed reference is treated as a bare alias.
func (p *Parser) scanColumnRef(item *selectItem) {
	parts := []string{p.cur().NameText()}
	p.advance()

	for p.is(token.Dot) {
		next := p.peek()
		switch {
		case next.Kind == token.Operator && next.Text == "*":
			// alias.* wildcard
			p.advance()
			p.advance()
			item.star = true
			item.starSource = parts[len(parts)-1]
			item.lastWasRef = false
			return
		case next.IsIdentLike():
			// keywords after a dot are column names (SELECT o.Date)
			p.advance()
			parts = append(parts, p.cur().NameText())
			p.advance()
		default:
			// dangling dot: the user is mid-identifier
			p.advance()
			item.lastWasRef = false
			return
		}
	}

	if p.is(token.LParen) {
		// function call: the name chain is not a column reference; the
		// arguments are scanned by the main loop for nested references
		item.hasContent = true
		item.lastWasRef = false
		return
	}

	if item.lastWasRef && len(parts) == 1 {
		item.alias = parts[0]
		item.lastWasRef = false
		return
	}

	ref := ColumnInfo{Name: parts[len(parts)-1]}
	if len(parts) > 1 {
		ref.SourceTable = parts[len(parts)-2]
	}
	item.refs = append(item.refs, ref)
	item.hasContent = true
	item.lastWasRef = true
}
