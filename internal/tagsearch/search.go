// Package tagsearch locates a tag by exact name by scanning a site's tag
// search page by page.
//
// The scan favors availability over completeness: page fetch failures are
// retried and, once the retry budget is spent, swallowed so the caller
// still receives whatever was accumulated. Cancellation is the one error
// that always reaches the caller.
package tagsearch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/solatis/boorukeeper/internal/site"
	"github.com/solatis/boorukeeper/internal/types"
)

// State is the terminal (or current) state of a scan.
type State int

const (
	Scanning State = iota
	Found
	Exhausted
	Failed
)

var stateNames = map[State]string{
	Scanning:  "scanning",
	Found:     "found",
	Exhausted: "exhausted",
	Failed:    "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MaxAttempts is the number of tries per page before the scan fails.
const MaxAttempts = 3

// DefaultMaxPages bounds a scan when Options.MaxPages is zero.
const DefaultMaxPages = 10

// Searcher serves tag search pages. *site.Adapter implements it.
type Searcher interface {
	SearchTags(ctx context.Context, q site.TagQuery) (types.Page[types.Tag], error)
}

// Options tunes a scan.
type Options struct {
	MaxPages int  // pages fetched before giving up as Exhausted
	Limit    int  // page size; zero uses the site default
	Exact    bool // query the name itself instead of name-prefix matches
	Logger   *slog.Logger
}

// Result is the outcome of a scan. Tags holds every tag seen, keyed by
// name, including the target when State is Found.
type Result struct {
	Name  string
	State State
	Tags  map[string]types.Tag
	Pages int   // pages fetched successfully
	Err   error // why the scan failed; only set in state Failed
}

// Tag returns the target tag when it was found.
func (r Result) Tag() (types.Tag, bool) {
	t, ok := r.Tags[r.Name]
	return t, ok && r.State == Found
}

// NormalizeName converts user input to tag form: trimmed, lower case,
// spaces as underscores.
func NormalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// FindTag scans s for a tag named name.
//
// States: Scanning(page) -> Found | Exhausted | Failed. Each page gets up
// to MaxAttempts tries; the count resets when the scan advances. A page
// without next token, or reaching MaxPages, ends in Exhausted.
//
// The returned error is non-nil only for cancellation, together with the
// partial result.
func FindTag(ctx context.Context, name string, s Searcher, opts Options) (Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	res := Result{
		Name:  NormalizeName(name),
		State: Scanning,
		Tags:  make(map[string]types.Tag),
	}
	if res.Name == "" {
		res.State = Failed
		res.Err = fmt.Errorf("%w: empty tag name", types.ErrInvalidQuery)
		return res, nil
	}

	query := site.TagQuery{Name: res.Name, Prefix: !opts.Exact, Limit: opts.Limit}
	for page := 1; ; page++ {
		if page > maxPages {
			res.State = Exhausted
			return res, nil
		}

		var (
			p   types.Page[types.Tag]
			err error
		)
		for attempt := 1; ; attempt++ {
			if cerr := ctx.Err(); cerr != nil {
				return res, context.Cause(ctx)
			}
			p, err = s.SearchTags(ctx, query)
			if err == nil {
				break
			}
			if isCancellation(ctx, err) {
				return res, err
			}
			logger.Warn("tag search page failed",
				"tag", res.Name, "page", page, "attempt", attempt, "error", err)
			if permanent(err) {
				res.State = Failed
				res.Err = err
				return res, nil
			}
			if attempt >= MaxAttempts {
				res.State = Failed
				res.Err = fmt.Errorf("%w: page %d: %w", types.ErrRetryExhausted, page, err)
				return res, nil
			}
		}

		res.Pages++
		types.MergeByKey(res.Tags, p.Items, func(t types.Tag) string { return t.Key.Name })
		for _, t := range p.Items {
			if t.Key.Name == res.Name {
				res.State = Found
				return res, nil
			}
		}
		if p.Meta.NoMore() {
			res.State = Exhausted
			return res, nil
		}
		query.Page = p.Meta.Next
	}
}

func isCancellation(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// permanent errors fail identically on every retry.
func permanent(err error) bool {
	return errors.Is(err, types.ErrUnsupportedOperation) ||
		errors.Is(err, types.ErrInvalidQuery) ||
		errors.Is(err, types.ErrInvalidToken)
}
