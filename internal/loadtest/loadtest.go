// Package loadtest drives concurrent clients through fragment feeds.
//
// Each client walks a feed from the beginning, following continuations to
// the last page, the way an SDShare consumer catches up. Page latencies are
// collected and every walk is checked against the first one so that paging
// under concurrency neither skips nor repeats fragments.
package loadtest

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"slices"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sdshare/sdshare/internal/feed"
)

// Pager is the part of a feed the load test exercises.
type Pager interface {
	FetchPage(ctx context.Context, req feed.PageRequest) (*feed.Page, error)
}

// LatencyStats captures page fetch latencies.
type LatencyStats struct {
	Min          time.Duration
	Max          time.Duration
	Mean         time.Duration
	P50          time.Duration // Median
	P95          time.Duration
	P99          time.Duration
	TotalQueries int
	Walks        int
	Fragments    int
	Errors       int
	Durations    []time.Duration
}

// Options controls a run.
type Options struct {
	// Clients walking concurrently (default: 10).
	Clients int
	// Walks per client (default: 1).
	Walks int
	// Since starts every walk at this time instead of the beginning.
	Since string
}

// Walk follows continuations from since to the last page and returns the
// fragment ids in the order served. It also returns each page's latency.
func Walk(ctx context.Context, p Pager, since string) ([]string, []time.Duration, error) {
	var ids []string
	var durations []time.Duration

	req := feed.PageRequest{Since: since}
	for {
		start := time.Now()
		page, err := p.FetchPage(ctx, req)
		durations = append(durations, time.Since(start))
		if err != nil {
			return ids, durations, err
		}
		ids = append(ids, page.IDs()...)
		if !page.HasNext {
			return ids, durations, nil
		}
		next := feed.PageRequest{Since: page.Next.Get("since"), After: page.Next.Get("after")}
		if next == req {
			return ids, durations, fmt.Errorf("continuation did not advance past since=%s after=%s", req.Since, req.After)
		}
		req = next
	}
}

// Run walks p from every client and reports latency statistics. It fails
// when any walk errors or serves a different sequence than the others.
func Run(ctx context.Context, p Pager, opts Options) (*LatencyStats, error) {
	if opts.Clients <= 0 {
		opts.Clients = 10
	}
	if opts.Walks <= 0 {
		opts.Walks = 1
	}

	var mu sync.Mutex
	var all []time.Duration
	var reference []string
	walks := 0

	g, ctx := errgroup.WithContext(ctx)
	for client := 0; client < opts.Clients; client++ {
		g.Go(func() error {
			for w := 0; w < opts.Walks; w++ {
				ids, durations, err := Walk(ctx, p, opts.Since)

				mu.Lock()
				all = append(all, durations...)
				if err != nil {
					mu.Unlock()
					return fmt.Errorf("client %d walk %d failed: %w", client, w, err)
				}
				if reference == nil {
					reference = ids
				} else if !slices.Equal(reference, ids) {
					mu.Unlock()
					return fmt.Errorf("client %d walk %d served %d fragments, expected the %d of the first walk",
						client, w, len(ids), len(reference))
				}
				walks++
				mu.Unlock()
			}
			return nil
		})
	}
	err := g.Wait()

	stats := computeLatencyStats(all)
	stats.Walks = walks
	stats.Fragments = len(reference)
	if err != nil {
		stats.Errors = 1
		return stats, err
	}
	return stats, nil
}

// Seed creates table in db with n rows (id, updated, title). Timestamps
// repeat in runs of tie rows so that pages end inside a run.
func Seed(ctx context.Context, db *sql.DB, table string, n, tie int) error {
	if tie <= 0 {
		tie = 1
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE %q (id INTEGER PRIMARY KEY, updated TEXT NOT NULL, title TEXT)`, table)); err != nil {
		return fmt.Errorf("failed to create %s: %w", table, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %q (id, updated, title) VALUES (?, ?, ?)`, table))
	if err != nil {
		return err
	}
	defer stmt.Close()

	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= n; i++ {
		updated := feed.FormatTime(base.Add(time.Duration((i-1)/tie) * time.Minute))
		if _, err := stmt.ExecContext(ctx, i, updated, fmt.Sprintf("Item %d", i)); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:          sorted[0],
		Max:          sorted[len(sorted)-1],
		Mean:         sum / time.Duration(len(durations)),
		P50:          sorted[len(sorted)*50/100],
		P95:          sorted[len(sorted)*95/100],
		P99:          sorted[len(sorted)*99/100],
		TotalQueries: len(durations),
		Durations:    sorted,
	}
}

// Print writes a human-readable summary.
func (s *LatencyStats) Print(w io.Writer) {
	fmt.Fprintf(w, "Latency Statistics:\n")
	fmt.Fprintf(w, "  Walks:         %d\n", s.Walks)
	fmt.Fprintf(w, "  Fragments:     %d per walk\n", s.Fragments)
	fmt.Fprintf(w, "  Total Pages:   %d\n", s.TotalQueries)
	fmt.Fprintf(w, "  Errors:        %d\n", s.Errors)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}
