package tagsearch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/solatis/boorukeeper/internal/site"
	"github.com/solatis/boorukeeper/internal/types"
)

// gatedSearcher blocks every call until release is closed.
type gatedSearcher struct {
	pagedSearcher
	release chan struct{}
	entered chan struct{}
	once    sync.Once
}

func newGatedSearcher(pages ...[]string) *gatedSearcher {
	return &gatedSearcher{
		pagedSearcher: pagedSearcher{pages: pages},
		release:       make(chan struct{}),
		entered:       make(chan struct{}),
	}
}

func (g *gatedSearcher) SearchTags(ctx context.Context, q site.TagQuery) (types.Page[types.Tag], error) {
	g.once.Do(func() { close(g.entered) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return types.Page[types.Tag]{}, ctx.Err()
	}
	return g.pagedSearcher.SearchTags(ctx, q)
}

func newTestMemo(t *testing.T) *Memo {
	t.Helper()
	m, err := NewMemo(64, time.Minute)
	if err != nil {
		t.Fatalf("NewMemo() error = %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

func TestMemo_DeduplicatesConcurrentScans(t *testing.T) {
	m := newTestMemo(t)
	s := newGatedSearcher([]string{"blue", "blue_sky"})

	const callers = 8
	results := make([]Result, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.FindTag(context.Background(), "danbooru", "blue_sky", s, Options{})
		}(i)
	}

	<-s.entered
	// Give the remaining callers time to join the in-flight scan.
	time.Sleep(50 * time.Millisecond)
	close(s.release)
	wg.Wait()

	if s.calls != 1 {
		t.Errorf("searcher calls = %d, want 1", s.calls)
	}
	for i := range results {
		if errs[i] != nil || results[i].State != Found {
			t.Errorf("caller %d: %+v, %v", i, results[i], errs[i])
		}
	}

	// Completed scans are served from the cache.
	res, err := m.FindTag(context.Background(), "danbooru", "Blue Sky", s, Options{})
	if err != nil || res.State != Found || s.calls != 1 {
		t.Errorf("cached lookup = %+v, %v, calls = %d", res, err, s.calls)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}

	// Callers get their own copy of the accumulator.
	delete(res.Tags, "blue")
	again, _ := m.FindTag(context.Background(), "danbooru", "blue_sky", s, Options{})
	if len(again.Tags) != 2 {
		t.Errorf("cached accumulator mutated: %v", again.Tags)
	}
}

func TestMemo_KeysBySite(t *testing.T) {
	m := newTestMemo(t)
	s := &pagedSearcher{pages: [][]string{{"fox"}}}
	for _, website := range []types.Website{"e621.net", "danbooru.donmai.us"} {
		if _, err := m.FindTag(context.Background(), website, "fox", s, Options{}); err != nil {
			t.Fatalf("FindTag(%s) error = %v", website, err)
		}
	}
	if s.calls != 2 {
		t.Errorf("calls = %d, want one per site", s.calls)
	}
}

func TestMemo_KeysByOptions(t *testing.T) {
	m := newTestMemo(t)
	s := &pagedSearcher{pages: [][]string{{"blue", "blue_sky"}}}
	ctx := context.Background()

	opts := []Options{
		{},
		{Exact: true},
		{Exact: true, MaxPages: 3},
		{Exact: true, MaxPages: 3, Limit: 50},
	}
	for _, o := range opts {
		if _, err := m.FindTag(ctx, "danbooru", "blue_sky", s, o); err != nil {
			t.Fatalf("FindTag(%+v) error = %v", o, err)
		}
	}
	if s.calls != len(opts) {
		t.Fatalf("calls = %d, want one scan per option set", s.calls)
	}
	if !s.queries[0].Prefix || s.queries[1].Prefix {
		t.Errorf("queries = %+v, want a prefix scan then an exact one", s.queries)
	}
	if s.queries[3].Limit != 50 {
		t.Errorf("limit = %d, want 50", s.queries[3].Limit)
	}

	// Repeating an option set is served from the cache.
	if _, err := m.FindTag(ctx, "danbooru", "blue_sky", s, Options{Exact: true}); err != nil {
		t.Fatal(err)
	}
	if s.calls != len(opts) {
		t.Errorf("calls = %d after cached lookup", s.calls)
	}
}

func TestMemo_FailedNotCached(t *testing.T) {
	m := newTestMemo(t)
	s := &pagedSearcher{fail: func(int, string) error { return errTransient }}

	for i := 0; i < 2; i++ {
		res, err := m.FindTag(context.Background(), "danbooru", "x", s, Options{})
		if err != nil || res.State != Failed {
			t.Fatalf("FindTag() = %+v, %v", res, err)
		}
	}
	if s.calls != 2*MaxAttempts {
		t.Errorf("calls = %d, want %d (failures are not cached)", s.calls, 2*MaxAttempts)
	}
}

func TestMemo_WaiterCancellation(t *testing.T) {
	m := newTestMemo(t)
	s := newGatedSearcher([]string{"target"})

	patient := make(chan Result, 1)
	go func() {
		res, _ := m.FindTag(context.Background(), "danbooru", "target", s, Options{})
		patient <- res
	}()
	<-s.entered

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := m.FindTag(ctx, "danbooru", "target", s, Options{})
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("cancelled waiter error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled waiter did not return")
	}

	close(s.release)
	if res := <-patient; res.State != Found {
		t.Errorf("remaining waiter result = %+v, want Found", res)
	}
}

func TestMemo_LastWaiterCancelsScan(t *testing.T) {
	m := newTestMemo(t)
	s := newGatedSearcher([]string{"target"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := m.FindTag(ctx, "danbooru", "target", s, Options{})
		done <- err
	}()
	<-s.entered
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v", err)
	}

	// The abandoned scan is unpublished; a new caller starts fresh.
	close(s.release)
	res, err := m.FindTag(context.Background(), "danbooru", "target", s, Options{})
	if err != nil || res.State != Found {
		t.Errorf("fresh scan = %+v, %v", res, err)
	}
}

func TestNewMemo_Validation(t *testing.T) {
	if _, err := NewMemo(0, time.Minute); err == nil {
		t.Error("accepted zero size")
	}
	if _, err := NewMemo(1, 0); err == nil {
		t.Error("accepted zero ttl")
	}
}
