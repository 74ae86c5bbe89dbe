// Package fetch provides the "fetch JSON at URL" collaborator the site
// adapters consume. Every failure, whatever its cause, surfaces as
// types.ErrFetchFailed; context cancellation is passed through unchanged
// so callers can tell it apart.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/solatis/boorukeeper/internal/rules"
	"github.com/solatis/boorukeeper/internal/types"
	"golang.org/x/net/publicsuffix"
)

// Fetcher fetches and decodes one JSON document.
type Fetcher interface {
	FetchJSON(ctx context.Context, url string) (any, error)
}

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch: unexpected status %d from %s", e.StatusCode, e.URL)
}

// Unwrap lets errors.Is match ErrFetchFailed.
func (e *StatusError) Unwrap() error {
	return types.ErrFetchFailed
}

// HTTPFetcher fetches over HTTP with a shared cookie jar.
type HTTPFetcher struct {
	Client    *http.Client
	UserAgent string
	Timeout   time.Duration // applied when ctx has no deadline
	Logger    *slog.Logger
}

// NewHTTPFetcher builds a fetcher whose cookie jar scopes cookies by
// registrable domain, so sites on shared hosting suffixes stay isolated.
func NewHTTPFetcher(userAgent string, timeout time.Duration, logger *slog.Logger) (*HTTPFetcher, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("fetch: cookie jar: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HTTPFetcher{
		Client:    &http.Client{Jar: jar},
		UserAgent: userAgent,
		Timeout:   timeout,
		Logger:    logger,
	}, nil
}

// FetchJSON fetches url and decodes the body. Bodies larger than
// types.MaxResponseSize are rejected.
func (f *HTTPFetcher) FetchJSON(ctx context.Context, url string) (any, error) {
	parent := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrFetchFailed, err)
	}
	req.Header.Set("Accept", "application/json")
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		// Caller cancellation passes through; our own timeout is a fetch failure.
		if parent.Err() != nil {
			return nil, context.Cause(parent)
		}
		return nil, fmt.Errorf("%w: %v", types.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	f.logger().Debug("fetched", "url", url, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, types.MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", types.ErrFetchFailed, err)
	}
	if len(body) > types.MaxResponseSize {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", types.ErrFetchFailed, types.MaxResponseSize)
	}

	doc, err := rules.DecodeJSON(body)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding body: %v", types.ErrFetchFailed, err)
	}
	return doc, nil
}

func (f *HTTPFetcher) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return f.Logger
}
