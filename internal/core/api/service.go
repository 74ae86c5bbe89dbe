// Package api provides the gRPC board service: one adapter call per RPC,
// with requests and responses carried as google.protobuf.Struct.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/solatis/boorukeeper/internal/core/config"
	"github.com/solatis/boorukeeper/internal/fetch"
	"github.com/solatis/boorukeeper/internal/request"
	"github.com/solatis/boorukeeper/internal/site"
	"github.com/solatis/boorukeeper/internal/tagsearch"
	"github.com/solatis/boorukeeper/internal/types"
	"google.golang.org/protobuf/types/known/structpb"
)

// Archive persists what the service fetches. *store.Store implements it.
type Archive interface {
	site.FetchObserver
	SavePosts(ctx context.Context, posts []types.Post) error
	SavePools(ctx context.Context, pools []types.Pool) error
	SaveTags(ctx context.Context, tags []types.Tag) error
	SaveUsers(ctx context.Context, users []types.User) error
}

// BoardService implements BoardServer.
// Thin orchestration layer delegating to site adapters, the tag search
// memo and the optional archive.
type BoardService struct {
	registry *site.Registry
	adapters map[types.Website]*site.Adapter
	memo     *tagsearch.Memo
	archive  Archive
	cfg      *config.Config
	logger   *slog.Logger
}

// NewBoardService creates service instance with dependencies. archive may
// be nil to disable persistence.
func NewBoardService(reg *site.Registry, fetcher fetch.Fetcher, memo *tagsearch.Memo, archive Archive, cfg *config.Config, logger *slog.Logger) (*BoardService, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher cannot be nil")
	}
	if memo == nil {
		return nil, fmt.Errorf("memo cannot be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	adapters := make(map[types.Website]*site.Adapter)
	for _, s := range reg.Sites() {
		a := site.NewAdapter(s, fetcher, cfg.Selection.Ratings, logger)
		if archive != nil {
			a.Observe(archive)
		}
		adapters[s.Name] = a
	}

	return &BoardService{
		registry: reg,
		adapters: adapters,
		memo:     memo,
		archive:  archive,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Adapter returns the adapter for a site name or backend alias.
func (s *BoardService) Adapter(name string) (*site.Adapter, error) {
	if name == "" {
		return nil, invalidArgument("field %q is required", "site")
	}
	st, err := s.registry.Site(name)
	if err != nil {
		return nil, toStatus(err)
	}
	return s.adapters[st.Name], nil
}

// postView is a post plus the URL picked for the requested quality.
type postView struct {
	types.Post
	URL string `json:"url"`
}

// GetPosts returns one page of posts.
// Request: site, operation, tags, page, limit, ratings, quality, pool_id, date.
func (s *BoardService) GetPosts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	a := newArgs(req)
	name := a.str("site")
	q := site.PostQuery{
		Operation: request.Operation(a.str("operation")),
		Tags:      a.list("tags"),
		Page:      a.str("page"),
		Limit:     int(a.integer("limit")),
		PoolID:    a.integer("pool_id"),
		Date:      a.date("date"),
	}
	ratingNames := a.list("ratings")
	qualityName := a.str("quality")
	if a.err != nil {
		return nil, a.err
	}

	if ratingNames != nil {
		ratings, err := config.ParseRatings(ratingNames)
		if err != nil {
			return nil, invalidArgument("ratings: %v", err)
		}
		q.Ratings = ratings
	}
	quality := s.cfg.Selection.Quality
	if qualityName != "" {
		var ok bool
		if quality, ok = types.ParseQuality(qualityName); !ok {
			return nil, invalidArgument("unknown quality %q", qualityName)
		}
	}

	adapter, err := s.Adapter(name)
	if err != nil {
		return nil, err
	}
	page, err := adapter.GetPosts(ctx, q)
	if err != nil {
		return nil, toStatus(err)
	}
	s.persist(ctx, "posts", func(ctx context.Context) error { return s.archive.SavePosts(ctx, page.Items) })

	views := make([]postView, len(page.Items))
	for i, p := range page.Items {
		views[i] = postView{Post: p, URL: p.URLFor(quality)}
	}
	return toStruct(types.Page[postView]{Items: views, Meta: page.Meta})
}

// GetPools returns one page of pools. Request: site, name, page, limit.
func (s *BoardService) GetPools(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	a := newArgs(req)
	name := a.str("site")
	q := site.PoolQuery{Name: a.str("name"), Page: a.str("page"), Limit: int(a.integer("limit"))}
	if a.err != nil {
		return nil, a.err
	}

	adapter, err := s.Adapter(name)
	if err != nil {
		return nil, err
	}
	page, err := adapter.GetPools(ctx, q)
	if err != nil {
		return nil, toStatus(err)
	}
	s.persist(ctx, "pools", func(ctx context.Context) error { return s.archive.SavePools(ctx, page.Items) })
	return toStruct(page)
}

// SearchTags returns one page of tags. Request: site, name, prefix, page, limit.
func (s *BoardService) SearchTags(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	a := newArgs(req)
	name := a.str("site")
	q := site.TagQuery{
		Name:   a.str("name"),
		Prefix: a.boolean("prefix"),
		Page:   a.str("page"),
		Limit:  int(a.integer("limit")),
	}
	if a.err != nil {
		return nil, a.err
	}

	adapter, err := s.Adapter(name)
	if err != nil {
		return nil, err
	}
	page, err := adapter.SearchTags(ctx, q)
	if err != nil {
		return nil, toStatus(err)
	}
	s.persist(ctx, "tags", func(ctx context.Context) error { return s.archive.SaveTags(ctx, page.Items) })
	return toStruct(page)
}

// GetUser looks a user up. Request: site, name, id.
func (s *BoardService) GetUser(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	a := newArgs(req)
	name := a.str("site")
	q := site.UserQuery{Name: a.str("name"), ID: a.integer("id")}
	if a.err != nil {
		return nil, a.err
	}

	adapter, err := s.Adapter(name)
	if err != nil {
		return nil, err
	}
	page, err := adapter.GetUser(ctx, q)
	if err != nil {
		return nil, toStatus(err)
	}
	s.persist(ctx, "users", func(ctx context.Context) error { return s.archive.SaveUsers(ctx, page.Items) })
	return toStruct(page)
}

type findTagView struct {
	Name  string      `json:"name"`
	State string      `json:"state"`
	Pages int         `json:"pages"`
	Tag   *types.Tag  `json:"tag,omitempty"`
	Tags  []types.Tag `json:"tags"`
	Error string      `json:"error,omitempty"`
}

// FindTag scans a site's tag search for an exact name.
// Request: site, name, exact, max_pages.
func (s *BoardService) FindTag(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	a := newArgs(req)
	name := a.str("site")
	tagName := a.str("name")
	opts := tagsearch.Options{
		MaxPages: int(a.integer("max_pages")),
		Exact:    a.boolean("exact"),
		Logger:   s.logger,
	}
	if a.err != nil {
		return nil, a.err
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = s.cfg.TagSearch.MaxPages
	}

	adapter, err := s.Adapter(name)
	if err != nil {
		return nil, err
	}
	res, err := s.memo.FindTag(ctx, adapter.Site().Name, tagName, adapter, opts)
	if err != nil {
		return nil, toStatus(err)
	}

	view := findTagView{Name: res.Name, State: res.State.String(), Pages: res.Pages, Tags: make([]types.Tag, 0, len(res.Tags))}
	for _, t := range res.Tags {
		view.Tags = append(view.Tags, t)
	}
	sort.Slice(view.Tags, func(i, j int) bool { return view.Tags[i].Key.Name < view.Tags[j].Key.Name })
	if t, ok := res.Tag(); ok {
		view.Tag = &t
	}
	if res.Err != nil {
		view.Error = res.Err.Error()
	}
	s.persist(ctx, "tags", func(ctx context.Context) error { return s.archive.SaveTags(ctx, view.Tags) })
	return toStruct(view)
}

// persist runs save when an archive is configured. Failures are logged;
// the caller still gets the fetched data.
func (s *BoardService) persist(ctx context.Context, what string, save func(context.Context) error) {
	if s.archive == nil {
		return
	}
	if err := save(ctx); err != nil {
		s.logger.Warn("archive write failed", "entities", what, "error", err)
	}
}

var _ BoardServer = (*BoardService)(nil)
