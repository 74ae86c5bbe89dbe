package tagsearch

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/maypok86/otter"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/solatis/boorukeeper/internal/types"
)

/*
 * Search memoization.
 *
 * Memo collapses concurrent scans for the same (site, name, options)
 * into one:
 *   - the first caller starts the scan in its own goroutine; later callers
 *     join it and all receive the same result
 *   - a caller whose context ends leaves immediately with its context
 *     error; the scan is cancelled once the last waiter has left
 *   - Found and Exhausted results are kept for the cache TTL, Failed
 *     results are not
 *
 * Waiter accounting happens inside xsync.Map.Compute on the flight's key,
 * so joining, leaving and completion are serialized per key.
 */

// memoKey holds every option that changes what a scan fetches.
type memoKey struct {
	website  types.Website
	name     string
	exact    bool
	maxPages int
	limit    int
}

type flight struct {
	done    chan struct{}
	cancel  context.CancelFunc
	waiters int // guarded by the map entry
	res     Result
	err     error
}

// Memo deduplicates and caches tag scans.
type Memo struct {
	inflight *xsync.Map[memoKey, *flight]
	results  otter.Cache[memoKey, Result]
}

// NewMemo builds a memo caching up to maxEntries results for ttl.
func NewMemo(maxEntries int, ttl time.Duration) (*Memo, error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("tagsearch: memo size must be positive, got %d", maxEntries)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("tagsearch: memo ttl must be positive, got %s", ttl)
	}
	results, err := otter.MustBuilder[memoKey, Result](maxEntries).
		Cost(func(_ memoKey, _ Result) uint32 { return 1 }).
		WithTTL(ttl).
		Build()
	if err != nil {
		return nil, fmt.Errorf("tagsearch: building memo cache: %w", err)
	}
	return &Memo{
		inflight: xsync.NewMap[memoKey, *flight](),
		results:  results,
	}, nil
}

// FindTag is FindTag with deduplication by website, name and the scan
// options. Scans with different options never share a result.
func (m *Memo) FindTag(ctx context.Context, website types.Website, name string, s Searcher, opts Options) (Result, error) {
	key := memoKey{
		website:  website,
		name:     NormalizeName(name),
		exact:    opts.Exact,
		maxPages: opts.MaxPages,
		limit:    opts.Limit,
	}
	if r, ok := m.results.Get(key); ok {
		return cloneResult(r), nil
	}

	var (
		started *flight
		sctx    context.Context
	)
	f, _ := m.inflight.Compute(key, func(cur *flight, loaded bool) (*flight, xsync.ComputeOp) {
		if loaded {
			cur.waiters++
			return cur, xsync.UpdateOp
		}
		// The scan outlives any single waiter; it keeps ctx values only.
		var cancel context.CancelFunc
		sctx, cancel = context.WithCancel(context.WithoutCancel(ctx))
		started = &flight{done: make(chan struct{}), cancel: cancel, waiters: 1}
		return started, xsync.UpdateOp
	})
	if started != nil {
		go m.run(sctx, key, started, s, opts)
	}

	select {
	case <-f.done:
		return cloneResult(f.res), f.err
	case <-ctx.Done():
		m.leave(key, f)
		return Result{Name: key.name, State: Scanning, Tags: map[string]types.Tag{}}, context.Cause(ctx)
	}
}

func (m *Memo) run(ctx context.Context, key memoKey, f *flight, s Searcher, opts Options) {
	defer f.cancel()
	f.res, f.err = FindTag(ctx, key.name, s, opts)
	if f.err == nil && f.res.State != Failed {
		m.results.Set(key, f.res)
	}
	m.inflight.Compute(key, func(cur *flight, loaded bool) (*flight, xsync.ComputeOp) {
		if loaded && cur == f {
			return cur, xsync.DeleteOp
		}
		return cur, xsync.CancelOp
	})
	close(f.done)
}

// leave drops one waiter; the last one out cancels the scan and unpublishes
// it so the next caller starts fresh.
func (m *Memo) leave(key memoKey, f *flight) {
	m.inflight.Compute(key, func(cur *flight, loaded bool) (*flight, xsync.ComputeOp) {
		if !loaded || cur != f {
			return cur, xsync.CancelOp
		}
		cur.waiters--
		if cur.waiters > 0 {
			return cur, xsync.UpdateOp
		}
		cur.cancel()
		return cur, xsync.DeleteOp
	})
}

// Len is the number of cached results.
func (m *Memo) Len() int {
	return m.results.Size()
}

// Close stops the cache's background expiry.
func (m *Memo) Close() {
	m.results.Close()
}

func cloneResult(r Result) Result {
	r.Tags = maps.Clone(r.Tags)
	return r
}
