package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter"
	"github.com/zeebo/xxh3"
)

// CachingFetcher memoizes decoded documents by URL for a fixed TTL.
// Cached documents are shared between callers; extraction only reads them.
// Failures are never cached.
type CachingFetcher struct {
	next  Fetcher
	cache otter.Cache[xxh3.Uint128, any]
}

// NewCachingFetcher wraps next with a cache bounded to maxEntries documents.
func NewCachingFetcher(next Fetcher, maxEntries int, ttl time.Duration) (*CachingFetcher, error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("fetch: cache size must be positive, got %d", maxEntries)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("fetch: cache ttl must be positive, got %s", ttl)
	}
	cache, err := otter.MustBuilder[xxh3.Uint128, any](maxEntries).
		Cost(func(_ xxh3.Uint128, _ any) uint32 { return 1 }).
		WithTTL(ttl).
		Build()
	if err != nil {
		return nil, fmt.Errorf("fetch: building cache: %w", err)
	}
	return &CachingFetcher{next: next, cache: cache}, nil
}

// FetchJSON returns the cached document for url or fetches it.
func (c *CachingFetcher) FetchJSON(ctx context.Context, url string) (any, error) {
	key := xxh3.HashString128(url)
	if doc, ok := c.cache.Get(key); ok {
		return doc, nil
	}
	doc, err := c.next.FetchJSON(ctx, url)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, doc)
	return doc, nil
}

// Len is the number of cached documents.
func (c *CachingFetcher) Len() int {
	return c.cache.Size()
}

// Close stops the cache's background expiry.
func (c *CachingFetcher) Close() {
	c.cache.Close()
}
