// Package fkgraph suggests JOIN targets by breadth-first search over
// foreign-key metadata, starting from the tables already present in a
// query.
package fkgraph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/leapstack-labs/sqlsense/pkg/catalog"
)

// DefaultMaxDepth bounds the search when Options.MaxDepth is zero.
const DefaultMaxDepth = 2

// Options configures the search.
type Options struct {
	// MaxDepth is the hop limit; 0 means DefaultMaxDepth.
	MaxDepth int
}

// Result is one candidate join target found at a given hop count.
type Result struct {
	// Table is the suggested join target.
	Table *catalog.Table
	// HopCount is the number of FK edges from the source table (1-based).
	HopCount int
	// Path holds the table keys traversed from the source to this table,
	// source first, this table last.
	Path []string
	// Via is the immediate predecessor the FK edge leaves from. Equal to
	// Source for hop 1.
	Via *catalog.Table
	// Constraint is the FK edge that reached this table.
	Constraint catalog.ForeignKey
	// Source is the query table the search started from.
	Source *catalog.Table
}

// Label returns the display name: the plain table name at hop 1, the name
// annotated with its predecessor beyond that.
func (r *Result) Label() string {
	if r.HopCount <= 1 || r.Via == nil {
		return r.Table.Name
	}
	return fmt.Sprintf("%s (via %s)", r.Table.Name, r.Via.Name)
}

// Detail returns the FK column pairs of the reaching edge, such as
// "Orders.CustomerId = Customers.Id", or the qualified name when the
// constraint carries no columns.
func (r *Result) Detail() string {
	if len(r.Constraint.Columns) == 0 || r.Via == nil {
		return r.Table.QualifiedName()
	}
	pairs := make([]string, 0, len(r.Constraint.Columns))
	for i, col := range r.Constraint.Columns {
		ref := ""
		if i < len(r.Constraint.RefColumns) {
			ref = r.Constraint.RefColumns[i]
		}
		pairs = append(pairs, fmt.Sprintf("%s.%s = %s.%s",
			r.Via.Name, col, r.Table.Name, ref))
	}
	return strings.Join(pairs, ", ")
}

type queueItem struct {
	table  *catalog.Table
	depth  int
	path   []string
	source *catalog.Table
}

// Find runs a breadth-first search over FK constraints starting from the
// given source tables and returns reachable tables grouped by hop count.
// Source tables are pre-marked visited and never suggested; a table already
// on the current traversal path is never revisited, so FK cycles terminate.
func Find(ctx context.Context, sources []*catalog.Table, provider catalog.Provider, opts Options) (map[int][]Result, error) {
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	visited := make(map[string]bool, len(sources))
	queue := make([]queueItem, 0, len(sources))
	for _, src := range sources {
		if src == nil {
			continue
		}
		key := src.Key()
		if visited[key] {
			continue
		}
		visited[key] = true
		queue = append(queue, queueItem{
			table:  src,
			path:   []string{key},
			source: src,
		})
	}

	results := make(map[int][]Result)
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item := queue[0]
		queue = queue[1:]
		if item.depth >= maxDepth {
			continue
		}

		fks, err := provider.Constraints(ctx, item.table)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				continue
			}
			return nil, err
		}

		for _, fk := range fks {
			target, err := provider.ResolveTable(ctx, item.table.Database, fk.RefSchema, fk.RefTable)
			if err != nil {
				if errors.Is(err, catalog.ErrNotFound) {
					continue
				}
				return nil, err
			}
			key := target.Key()
			if visited[key] || onPath(item.path, key) {
				continue
			}
			visited[key] = true

			path := make([]string, len(item.path), len(item.path)+1)
			copy(path, item.path)
			path = append(path, key)

			hop := item.depth + 1
			results[hop] = append(results[hop], Result{
				Table:      target,
				HopCount:   hop,
				Path:       path,
				Via:        item.table,
				Constraint: fk,
				Source:     item.source,
			})
			queue = append(queue, queueItem{
				table:  target,
				depth:  hop,
				path:   path,
				source: item.source,
			})
		}
	}
	return results, nil
}

func onPath(path []string, key string) bool {
	for _, k := range path {
		if k == key {
			return true
		}
	}
	return false
}

// Flatten returns all results ordered by ascending hop count, preserving
// discovery order within each hop group.
func Flatten(grouped map[int][]Result) []Result {
	hops := make([]int, 0, len(grouped))
	for hop := range grouped {
		hops = append(hops, hop)
	}
	sort.Ints(hops)

	var out []Result
	for _, hop := range hops {
		out = append(out, grouped[hop]...)
	}
	return out
}
