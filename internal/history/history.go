// Package history provides background fuzzy search over saved query
// history entries. A search accepts the full item set and a pattern, emits
// batched progress messages while scanning, and finishes with exactly one
// completion message.
package history

import (
	"context"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Entry is one saved query.
type Entry struct {
	Label   string
	SQL     string
	SavedAt time.Time
}

// Options tunes a search.
type Options struct {
	// Limit caps the number of returned matches; 0 means no cap.
	Limit int
	// BatchSize sets how many items each worker scans between progress
	// messages. Defaults to 256.
	BatchSize int
	// Workers sets the scan parallelism. Defaults to 4.
	Workers int
}

// Match is one entry that matched the pattern.
type Match struct {
	Entry Entry
	Score int
}

// Progress reports one scanned batch.
type Progress struct {
	Scanned int
	Matches []Match
}

// Result is the single completion message of a search.
type Result struct {
	Matches []Match
	Err     error
}

// Request is one search: the items to scan, the pattern, and options.
type Request struct {
	Items   []Entry
	Pattern string
	Options Options
}

// Search scans the items on background workers. The progress channel
// carries zero or more batch messages and is closed when scanning ends;
// the result channel then carries exactly one completion message.
func Search(ctx context.Context, req Request) (<-chan Progress, <-chan Result) {
	progress := make(chan Progress, 8)
	result := make(chan Result, 1)
	go run(ctx, req, progress, result)
	return progress, result
}

func run(ctx context.Context, req Request, progress chan<- Progress, result chan<- Result) {
	defer close(result)

	opts := req.Options
	if opts.BatchSize <= 0 {
		opts.BatchSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}

	g, ctx := errgroup.WithContext(ctx)
	matchesCh := make(chan []Match, opts.Workers)

	for _, shard := range shards(req.Items, opts.Workers) {
		g.Go(func() error {
			var batch []Match
			scanned := 0
			for _, entry := range shard {
				if err := ctx.Err(); err != nil {
					return err
				}
				scanned++
				if score, ok := fuzzyScore(req.Pattern, entry.SQL); ok {
					batch = append(batch, Match{Entry: entry, Score: score})
				}
				if scanned%opts.BatchSize == 0 {
					emit(ctx, progress, Progress{Scanned: scanned, Matches: batch})
					matchesCh <- batch
					batch = nil
				}
			}
			if scanned%opts.BatchSize != 0 {
				emit(ctx, progress, Progress{Scanned: scanned, Matches: batch})
				if len(batch) > 0 {
					matchesCh <- batch
				}
			}
			return nil
		})
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- g.Wait()
		close(matchesCh)
	}()

	var all []Match
	for batch := range matchesCh {
		all = append(all, batch...)
	}
	err := <-waitErr
	close(progress)

	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })
	if opts.Limit > 0 && len(all) > opts.Limit {
		all = all[:opts.Limit]
	}
	result <- Result{Matches: all, Err: err}
}

func emit(ctx context.Context, progress chan<- Progress, p Progress) {
	select {
	case progress <- p:
	case <-ctx.Done():
	}
}

func shards(items []Entry, n int) [][]Entry {
	if len(items) == 0 {
		return nil
	}
	if n > len(items) {
		n = len(items)
	}
	size := (len(items) + n - 1) / n
	var out [][]Entry
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}

// fuzzyScore matches pattern as a case-insensitive subsequence of text and
// scores it: consecutive matched characters and matches at word starts
// score higher, large gaps score lower.
func fuzzyScore(pattern, text string) (int, bool) {
	if pattern == "" {
		return 0, true
	}
	p := strings.ToLower(pattern)
	t := strings.ToLower(text)

	score := 0
	prev := -2
	ti := 0
	for pi := 0; pi < len(p); pi++ {
		idx := strings.IndexByte(t[ti:], p[pi])
		if idx < 0 {
			return 0, false
		}
		pos := ti + idx
		switch {
		case pos == prev+1:
			score += 3 // consecutive run
		case pos == 0 || isWordBreak(t[pos-1]):
			score += 2
		default:
			score++
		}
		if gap := pos - prev; gap > 8 {
			score--
		}
		prev = pos
		ti = pos + 1
	}
	return score, true
}

func isWordBreak(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '.', '_', '(', ',', '[':
		return true
	}
	return false
}
