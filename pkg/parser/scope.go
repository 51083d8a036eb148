package parser

import "strings"

// Scope is one lexical visibility level: the document parser creates one
// per statement and one per subquery nesting level.
//
// CTE visibility is copy-on-create: a child scope inherits a snapshot of
// its parent's CTE map and may add or override entries without mutating the
// parent. Tables and aliases do not propagate downward automatically;
// correlated-subquery lookups walk the parent chain explicitly instead.
type Scope struct {
	parent *Scope
	depth  int

	Tables     []TableRef
	Subqueries []*SubqueryInfo

	aliases map[string]*TableRef
	ctes    map[string]*CTEInfo
}

// NewScope creates a scope linked to parent (which may be nil). The
// parent's CTE map is copied by value.
func NewScope(parent *Scope) *Scope {
	s := &Scope{
		parent:  parent,
		aliases: make(map[string]*TableRef),
		ctes:    make(map[string]*CTEInfo),
	}
	if parent != nil {
		s.depth = parent.depth + 1
		for name, cte := range parent.ctes {
			s.ctes[name] = cte
		}
	}
	return s
}

// Depth returns the nesting depth, 0 for a statement's root scope.
func (s *Scope) Depth() int {
	return s.depth
}

// AddTable registers a table in this scope and indexes it by alias and name.
func (s *Scope) AddTable(t TableRef) {
	s.Tables = append(s.Tables, t)
	ref := &s.Tables[len(s.Tables)-1]
	if ref.Alias != "" {
		s.aliases[strings.ToLower(ref.Alias)] = ref
	}
	if ref.Name != "" {
		key := strings.ToLower(ref.Name)
		if _, taken := s.aliases[key]; !taken {
			s.aliases[key] = ref
		}
	}
}

// AddSubquery attaches a discovered subquery to this scope.
func (s *Scope) AddSubquery(sq *SubqueryInfo) {
	s.Subqueries = append(s.Subqueries, sq)
}

// RegisterCTE makes a CTE visible in this scope, overriding any inherited
// entry with the same name.
func (s *Scope) RegisterCTE(cte *CTEInfo) {
	s.ctes[strings.ToLower(cte.Name)] = cte
}

// LookupCTE finds a CTE by name in this scope's snapshot.
func (s *Scope) LookupCTE(name string) (*CTEInfo, bool) {
	cte, ok := s.ctes[strings.ToLower(name)]
	return cte, ok
}

// CTEs returns the CTEs visible in this scope.
func (s *Scope) CTEs() []*CTEInfo {
	out := make([]*CTEInfo, 0, len(s.ctes))
	for _, cte := range s.ctes {
		out = append(out, cte)
	}
	return out
}

// ResolveAlias finds the table registered under the given alias or name.
// The local scope is checked first, then the parent chain: this is what
// lets a correlated subquery reference an enclosing statement's alias.
func (s *Scope) ResolveAlias(name string) (*TableRef, bool) {
	key := strings.ToLower(name)
	for cur := s; cur != nil; cur = cur.parent {
		if ref, ok := cur.aliases[key]; ok {
			return ref, true
		}
	}
	return nil, false
}

// VisibleTables returns the tables visible from this scope: its own tables
// first, then each ancestor's.
func (s *Scope) VisibleTables() []TableRef {
	var out []TableRef
	for cur := s; cur != nil; cur = cur.parent {
		out = append(out, cur.Tables...)
	}
	return out
}

// resolveColumnParents fills ParentTable/ParentSchema for each column from
// the alias map built over the given tables. Unqualified columns in a
// single-table context inherit that table.
func resolveColumnParents(columns []ColumnInfo, tables []TableRef) {
	aliases := buildAliasMap(tables)
	var single *TableRef
	if len(tables) == 1 {
		single = &tables[0]
	}
	for i := range columns {
		col := &columns[i]
		if col.SourceTable != "" {
			if ref, ok := aliases[strings.ToLower(col.SourceTable)]; ok {
				col.ParentTable = ref.Name
				col.ParentSchema = ref.Schema
			}
			continue
		}
		if single != nil {
			col.ParentTable = single.Name
			col.ParentSchema = single.Schema
		}
	}
}
