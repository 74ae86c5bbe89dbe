// internal/site/adapter.go
package site

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/solatis/boorukeeper/internal/fetch"
	"github.com/solatis/boorukeeper/internal/request"
	"github.com/solatis/boorukeeper/internal/rules"
	"github.com/solatis/boorukeeper/internal/types"
)

/*
 * Site adapter.
 *
 * One Adapter serves one compiled Site. Every operation runs the same
 * pipeline:
 *   1. Look up the operation's template (ErrUnsupportedOperation if the
 *      document does not define it).
 *   2. On an only-one-page operation, a token past the first page returns
 *      an empty page with Exhausted meta without fetching.
 *   3. Build the URL: page token, page size, rating tag, operation values.
 *   4. Fetch. Fetch errors and cancellation propagate unchanged.
 *   5. Rebase onto the template root, then extract with the site rules.
 *   6. Compute continuation tokens from the extracted page.
 *   7. Posts only: drop entries outside the rating selection when the
 *      operation is flagged client_rating_filter or the selection has no
 *      server-side tag.
 *
 * Tokens are computed before step 7, so a page emptied by the client
 * filter still continues.
 */

// PostQuery selects a page of posts.
type PostQuery struct {
	Operation request.Operation // posts (default), popular_*, pool_posts
	Tags      []string
	Page      string
	Limit     int
	Ratings   types.RatingSet // nil: the adapter's selection
	PoolID    int64           // pool_posts
	Date      time.Time       // popular_*; zero lets the site pick today
}

// PoolQuery selects a page of pools.
type PoolQuery struct {
	Name  string
	Page  string
	Limit int
}

// TagQuery selects a page of tags. Prefix appends the site wildcard.
type TagQuery struct {
	Name   string
	Prefix bool
	Page   string
	Limit  int
}

// UserQuery looks a user up by name or id.
type UserQuery struct {
	Name string
	ID   int64
}

// Adapter runs operations against one site.
type Adapter struct {
	site      *Site
	fetcher   fetch.Fetcher
	ratings   types.RatingSet
	logger    *slog.Logger
	extractor *rules.Extractor
	observer  FetchObserver
}

// FetchEvent describes one completed backend request. Items counts the
// entities extracted before client-side rating filtering.
type FetchEvent struct {
	Site      types.Website
	Operation request.Operation
	URL       string
	Items     int
	Err       error
}

// FetchObserver is told about every backend request an adapter makes.
// Requests short-circuited without a fetch are not reported.
type FetchObserver interface {
	ObserveFetch(ctx context.Context, ev FetchEvent)
}

// NewAdapter builds an adapter. ratings is the default selection applied
// to post queries that carry none; nil or empty means unfiltered.
func NewAdapter(s *Site, f fetch.Fetcher, ratings types.RatingSet, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("site", s.Name)
	return &Adapter{
		site:    s,
		fetcher: f,
		ratings: ratings,
		logger:  logger,
		extractor: &rules.Extractor{
			Website: s.Name,
			BaseURL: s.BaseURL,
			Logger:  logger,
		},
	}
}

// Observe registers o to receive fetch events. Not safe to call while
// operations are running.
func (a *Adapter) Observe(o FetchObserver) {
	a.observer = o
}

func (a *Adapter) notify(ctx context.Context, op request.Operation, url string, items int, err error) {
	if a.observer == nil {
		return
	}
	a.observer.ObserveFetch(ctx, FetchEvent{Site: a.site.Name, Operation: op, URL: url, Items: items, Err: err})
}

// Site returns the site the adapter serves.
func (a *Adapter) Site() *Site {
	return a.site
}

// call is one operation invocation before URL building.
type call struct {
	op      request.Operation
	entity  rules.EntityKind
	token   string
	limit   int
	tags    []string
	values  map[string]string
	ratings types.RatingSet // posts only
}

// plan is a call resolved against the site.
type plan struct {
	tmpl      *request.Template
	paginator request.Paginator
	url       string
	filter    types.RatingSet // nil: no client-side filtering
	exhausted bool
}

func (a *Adapter) plan(c call) (plan, error) {
	tmpl, ok := a.site.Templates.Get(c.op)
	if !ok || tmpl.Entity != c.entity {
		return plan{}, fmt.Errorf("%w: %s %s", types.ErrUnsupportedOperation, a.site.Name, c.op)
	}
	p := plan{tmpl: tmpl, paginator: a.site.Paginator}
	if tmpl.Paginator != nil {
		p.paginator = *tmpl.Paginator
	}

	if tmpl.OnlyOnePage && p.paginator.Beyond(c.token) {
		p.exhausted = true
		return p, nil
	}

	page, err := p.paginator.Param(c.token)
	if err != nil {
		return plan{}, fmt.Errorf("%s %s: %w", a.site.Name, c.op, err)
	}
	params := map[string]string{
		"page":  page,
		"limit": strconv.Itoa(a.site.PageSize(c.limit)),
	}
	for k, v := range c.values {
		params[k] = v
	}

	if c.entity == rules.EntityPost {
		sel := c.ratings
		if sel == nil {
			sel = a.ratings
		}
		tag, supported := a.site.Ratings.Lookup(sel)
		params["rating"] = tag
		filtered := len(sel) > 0 && !sel.Equal(types.NewRatingSet(types.AllRatings...))
		if !supported {
			a.logger.Warn("rating selection has no server-side tag, filtering client-side",
				"op", c.op, "ratings", sel.Sorted())
		}
		if filtered && (!supported || tmpl.ClientRatingFilter) {
			p.filter = sel
		}
	}

	p.url, err = request.Build(a.site.BaseURL, a.site.Templates.Illegal, tmpl, params, c.tags)
	if err != nil {
		return plan{}, fmt.Errorf("%s %s: %w", a.site.Name, c.op, err)
	}
	return p, nil
}

// fetchDoc fetches the plan URL and rebases it onto the template root.
// An unresolved root yields a nil document; the length rule decides
// whether that is an empty page or a malformed response.
func (a *Adapter) fetchDoc(ctx context.Context, op request.Operation, p plan) (any, error) {
	a.logger.Debug("request", "op", op, "url", p.url)
	doc, err := a.fetcher.FetchJSON(ctx, p.url)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", a.site.Name, op, err)
	}
	if p.tmpl.Root == nil {
		return doc, nil
	}
	res, err := rules.Resolve(*p.tmpl.Root, doc)
	if err != nil || !res.Found {
		a.logger.Debug("response root absent", "op", op, "root", p.tmpl.Root.Expr)
		return nil, nil
	}
	return res.Value, nil
}

// run executes c and extracts entities of type T. idOf feeds cursor
// tokens; ratingOf enables the client-side rating filter and is nil for
// entities without a rating.
func run[T any](
	ctx context.Context,
	a *Adapter,
	c call,
	extract func(doc any, g *rules.EntityRuleGroup) ([]T, error),
	idOf func(T) int64,
	ratingOf func(T) types.Rating,
) (types.Page[T], error) {
	p, err := a.plan(c)
	if err != nil {
		return types.Page[T]{}, err
	}
	if p.exhausted {
		return types.Page[T]{Items: []T{}, Meta: p.paginator.Exhausted()}, nil
	}

	doc, err := a.fetchDoc(ctx, c.op, p)
	if err != nil {
		a.notify(ctx, c.op, p.url, 0, err)
		return types.Page[T]{}, err
	}
	items, err := extract(doc, a.site.Rules.Group(p.tmpl.Entity))
	if err != nil {
		err = fmt.Errorf("%s %s: %w", a.site.Name, c.op, err)
		a.notify(ctx, c.op, p.url, 0, err)
		return types.Page[T]{}, err
	}
	a.notify(ctx, c.op, p.url, len(items), nil)

	info := request.PageInfo{Count: len(items)}
	for i, item := range items {
		id := idOf(item)
		if i == 0 || id < info.MinID {
			info.MinID = id
		}
		if i == 0 || id > info.MaxID {
			info.MaxID = id
		}
	}
	meta := p.paginator.Next(c.token, info, p.tmpl.OnlyOnePage)

	if p.filter != nil && ratingOf != nil {
		kept := items[:0]
		for _, item := range items {
			if p.filter.Has(ratingOf(item)) {
				kept = append(kept, item)
			}
		}
		if dropped := len(items) - len(kept); dropped > 0 {
			a.logger.Debug("client rating filter", "op", c.op, "dropped", dropped)
		}
		items = kept
	}

	a.logger.Debug("page", "op", c.op, "items", len(items), "next", meta.Next)
	return types.Page[T]{Items: items, Meta: meta}, nil
}

// GetPosts returns one page of posts.
func (a *Adapter) GetPosts(ctx context.Context, q PostQuery) (types.Page[types.Post], error) {
	op := q.Operation
	if op == "" {
		op = request.OpPosts
	}
	values := map[string]string{}
	if op == request.OpPoolPosts {
		if q.PoolID <= 0 {
			return types.Page[types.Post]{}, fmt.Errorf("%w: pool_posts needs a pool id", types.ErrInvalidQuery)
		}
		values["pool_id"] = strconv.FormatInt(q.PoolID, 10)
	}
	if !q.Date.IsZero() {
		d := q.Date.UTC()
		values["date"] = d.Format(time.DateOnly)
		values["day"] = strconv.Itoa(d.Day())
		values["month"] = strconv.Itoa(int(d.Month()))
		values["year"] = strconv.Itoa(d.Year())
	}
	return run(ctx, a, call{
		op:      op,
		entity:  rules.EntityPost,
		token:   q.Page,
		limit:   q.Limit,
		tags:    q.Tags,
		values:  values,
		ratings: q.Ratings,
	}, a.extractor.Posts,
		func(p types.Post) int64 { return p.Key.ID },
		func(p types.Post) types.Rating { return p.Rating })
}

// GetPools returns one page of pools, optionally filtered by name.
func (a *Adapter) GetPools(ctx context.Context, q PoolQuery) (types.Page[types.Pool], error) {
	return run(ctx, a, call{
		op:     request.OpPools,
		entity: rules.EntityPool,
		token:  q.Page,
		limit:  q.Limit,
		values: map[string]string{"name": q.Name},
	}, a.extractor.Pools,
		func(p types.Pool) int64 { return p.Key.ID }, nil)
}

// SearchTags returns one page of tags matching q.
func (a *Adapter) SearchTags(ctx context.Context, q TagQuery) (types.Page[types.Tag], error) {
	name := q.Name
	if q.Prefix {
		name += a.site.TagWildcard
	}
	return run(ctx, a, call{
		op:     request.OpTags,
		entity: rules.EntityTag,
		token:  q.Page,
		limit:  q.Limit,
		values: map[string]string{"name": name},
	}, a.extractor.Tags,
		func(t types.Tag) int64 { return t.ExternalID }, nil)
}

// GetUser looks a user up. The page holds at most the backend's matches
// for the query; an unknown user is an empty page, not an error.
func (a *Adapter) GetUser(ctx context.Context, q UserQuery) (types.Page[types.User], error) {
	if q.Name == "" && q.ID <= 0 {
		return types.Page[types.User]{}, fmt.Errorf("%w: user query needs a name or id", types.ErrInvalidQuery)
	}
	values := map[string]string{"name": q.Name}
	if q.ID > 0 {
		values["id"] = strconv.FormatInt(q.ID, 10)
	}
	return run(ctx, a, call{
		op:     request.OpUser,
		entity: rules.EntityUser,
		values: values,
	}, a.extractor.Users,
		func(u types.User) int64 { return u.Key.ID }, nil)
}
