package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/solatis/boorukeeper/internal/core/config"
	"github.com/solatis/boorukeeper/internal/rules"
	"github.com/solatis/boorukeeper/internal/site"
	"github.com/solatis/boorukeeper/internal/tagsearch"
	"github.com/solatis/boorukeeper/internal/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const danbooruPostsBody = `[
	{
		"id": 7, "rating": "g", "file_ext": "jpg", "md5": "abc", "score": 5,
		"tag_string": "1girl hatsune_miku vocaloid",
		"tag_string_character": "hatsune_miku",
		"tag_string_copyright": "vocaloid",
		"preview_file_url": "https://cdn.donmai.us/180x180/a.jpg",
		"large_file_url": "https://cdn.donmai.us/sample/a.jpg",
		"file_url": "https://cdn.donmai.us/original/a.jpg"
	}
]`

const danbooruTagsBody = `[
	{"id": 1, "name": "blue_eyes", "post_count": 900, "category": 0},
	{"id": 2, "name": "blue_sky", "post_count": 500, "category": 0}
]`

// routeFetcher answers by the first registered path fragment found in the URL.
type routeFetcher struct {
	mu     sync.Mutex
	routes map[string]string
	err    error
	urls   []string
}

func (f *routeFetcher) FetchJSON(ctx context.Context, url string) (any, error) {
	f.mu.Lock()
	f.urls = append(f.urls, url)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for frag, body := range f.routes {
		if strings.Contains(url, frag) {
			return rules.DecodeJSON([]byte(body))
		}
	}
	return rules.DecodeJSON([]byte(`[]`))
}

type recordingArchive struct {
	mu     sync.Mutex
	posts  []types.Post
	tags   []types.Tag
	events []site.FetchEvent
	err    error
}

func (r *recordingArchive) ObserveFetch(_ context.Context, ev site.FetchEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingArchive) SavePosts(_ context.Context, posts []types.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts = append(r.posts, posts...)
	return r.err
}

func (r *recordingArchive) SavePools(context.Context, []types.Pool) error { return r.err }

func (r *recordingArchive) SaveTags(_ context.Context, tags []types.Tag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags = append(r.tags, tags...)
	return r.err
}

func (r *recordingArchive) SaveUsers(context.Context, []types.User) error { return r.err }

func newTestService(t *testing.T, f *routeFetcher, archive Archive) *BoardService {
	t.Helper()
	reg, err := site.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	memo, err := tagsearch.NewMemo(16, time.Minute)
	if err != nil {
		t.Fatalf("NewMemo failed: %v", err)
	}
	t.Cleanup(memo.Close)
	cfg := config.DefaultConfig()
	cfg.Selection.Ratings = types.NewRatingSet()
	svc, err := NewBoardService(reg, f, memo, archive, cfg, nil)
	if err != nil {
		t.Fatalf("NewBoardService failed: %v", err)
	}
	return svc
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestBoardService_GetPosts(t *testing.T) {
	f := &routeFetcher{routes: map[string]string{"/posts.json": danbooruPostsBody}}
	archive := &recordingArchive{}
	svc := newTestService(t, f, archive)

	resp, err := svc.GetPosts(context.Background(), mustStruct(t, map[string]any{
		"site":    "danbooru",
		"tags":    []any{"hatsune_miku"},
		"ratings": []any{"general"},
		"quality": "original",
		"limit":   5,
	}))
	if err != nil {
		t.Fatalf("GetPosts failed: %v", err)
	}

	wantURL := "https://danbooru.donmai.us/posts.json?page=1&limit=5&tags=hatsune_miku+rating%3Ag"
	if len(f.urls) != 1 || f.urls[0] != wantURL {
		t.Errorf("urls = %v, want [%s]", f.urls, wantURL)
	}

	items := resp.GetFields()["items"].GetListValue().GetValues()
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	post := items[0].GetStructValue().GetFields()
	if got := post["url"].GetStringValue(); got != "https://cdn.donmai.us/original/a.jpg" {
		t.Errorf("url = %q", got)
	}
	if got := post["key"].GetStructValue().GetFields()["id"].GetNumberValue(); got != 7 {
		t.Errorf("key.id = %v", got)
	}
	if got := resp.GetFields()["meta"].GetStructValue().GetFields()["next"].GetStringValue(); got != "2" {
		t.Errorf("meta.next = %q", got)
	}

	if len(archive.posts) != 1 || len(archive.events) != 1 || archive.events[0].URL != wantURL {
		t.Errorf("archive saw posts %d, events %+v", len(archive.posts), archive.events)
	}
}

func TestBoardService_ArchiveFailureIgnored(t *testing.T) {
	f := &routeFetcher{routes: map[string]string{"/posts.json": danbooruPostsBody}}
	svc := newTestService(t, f, &recordingArchive{err: errors.New("disk full")})

	if _, err := svc.GetPosts(context.Background(), mustStruct(t, map[string]any{"site": "danbooru"})); err != nil {
		t.Fatalf("GetPosts failed on archive error: %v", err)
	}
}

func TestBoardService_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		method func(*BoardService) func(context.Context, *structpb.Struct) (*structpb.Struct, error)
		req    map[string]any
		want   codes.Code
	}{
		{
			name:   "missing site",
			method: func(s *BoardService) func(context.Context, *structpb.Struct) (*structpb.Struct, error) { return s.GetPosts },
			req:    map[string]any{},
			want:   codes.InvalidArgument,
		},
		{
			name:   "unknown site",
			method: func(s *BoardService) func(context.Context, *structpb.Struct) (*structpb.Struct, error) { return s.GetPosts },
			req:    map[string]any{"site": "nope.example"},
			want:   codes.NotFound,
		},
		{
			name:   "wrong field type",
			method: func(s *BoardService) func(context.Context, *structpb.Struct) (*structpb.Struct, error) { return s.GetPosts },
			req:    map[string]any{"site": "danbooru", "limit": "ten"},
			want:   codes.InvalidArgument,
		},
		{
			name:   "unknown rating",
			method: func(s *BoardService) func(context.Context, *structpb.Struct) (*structpb.Struct, error) { return s.GetPosts },
			req:    map[string]any{"site": "danbooru", "ratings": []any{"lewd"}},
			want:   codes.InvalidArgument,
		},
		{
			name:   "bad date",
			method: func(s *BoardService) func(context.Context, *structpb.Struct) (*structpb.Struct, error) { return s.GetPosts },
			req:    map[string]any{"site": "danbooru", "operation": "popular_day", "date": "yesterday"},
			want:   codes.InvalidArgument,
		},
		{
			name:   "unsupported operation",
			method: func(s *BoardService) func(context.Context, *structpb.Struct) (*structpb.Struct, error) { return s.GetPools },
			req:    map[string]any{"site": "gelbooru"},
			want:   codes.Unimplemented,
		},
		{
			name:   "missing user query",
			method: func(s *BoardService) func(context.Context, *structpb.Struct) (*structpb.Struct, error) { return s.GetUser },
			req:    map[string]any{"site": "danbooru"},
			want:   codes.InvalidArgument,
		},
		{
			name:   "fetch failure",
			err:    fmt.Errorf("%w: status 503", types.ErrFetchFailed),
			method: func(s *BoardService) func(context.Context, *structpb.Struct) (*structpb.Struct, error) { return s.SearchTags },
			req:    map[string]any{"site": "e621", "name": "fox"},
			want:   codes.Unavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, &routeFetcher{err: tt.err}, nil)
			_, err := tt.method(svc)(context.Background(), mustStruct(t, tt.req))
			if got := status.Code(err); got != tt.want {
				t.Errorf("code = %s, want %s (err %v)", got, tt.want, err)
			}
		})
	}
}

func TestBoardService_FindTag(t *testing.T) {
	f := &routeFetcher{routes: map[string]string{"/tags.json": danbooruTagsBody}}
	archive := &recordingArchive{}
	svc := newTestService(t, f, archive)

	resp, err := svc.FindTag(context.Background(), mustStruct(t, map[string]any{
		"site": "danbooru.donmai.us",
		"name": "Blue Sky",
	}))
	if err != nil {
		t.Fatalf("FindTag failed: %v", err)
	}
	fields := resp.GetFields()
	if fields["state"].GetStringValue() != "found" || fields["name"].GetStringValue() != "blue_sky" {
		t.Errorf("response = %v", resp)
	}
	tag := fields["tag"].GetStructValue().GetFields()
	if tag["count"].GetNumberValue() != 500 {
		t.Errorf("tag = %v", tag)
	}
	if n := len(fields["tags"].GetListValue().GetValues()); n != 2 {
		t.Errorf("tags = %d, want 2", n)
	}
	if !strings.Contains(f.urls[0], "search%5Bname_matches%5D=blue_sky%2A") {
		t.Errorf("first url = %s, want prefix search", f.urls[0])
	}
	if len(archive.tags) != 2 {
		t.Errorf("archived %d tags, want 2", len(archive.tags))
	}

	// Served from the memo.
	if _, err := svc.FindTag(context.Background(), mustStruct(t, map[string]any{"site": "danbooru", "name": "blue_sky"})); err != nil {
		t.Fatalf("FindTag failed: %v", err)
	}
	if len(f.urls) != 1 {
		t.Errorf("fetches = %d, want 1", len(f.urls))
	}

	// An exact search is a different scan and is not served the prefix result.
	if _, err := svc.FindTag(context.Background(), mustStruct(t, map[string]any{"site": "danbooru", "name": "blue_sky", "exact": true})); err != nil {
		t.Fatalf("FindTag(exact) failed: %v", err)
	}
	if len(f.urls) != 2 || !strings.Contains(f.urls[1], "search%5Bname_matches%5D=blue_sky&") {
		t.Errorf("urls = %v, want a second, exact search", f.urls)
	}
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{fmt.Errorf("x: %w", types.ErrMalformedResponse), codes.DataLoss},
		{fmt.Errorf("x: %w", types.ErrInvalidToken), codes.InvalidArgument},
		{fmt.Errorf("x: %w", context.DeadlineExceeded), codes.DeadlineExceeded},
		{context.Canceled, codes.Canceled},
		{status.Error(codes.PermissionDenied, "no"), codes.PermissionDenied},
		{errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		if got := status.Code(toStatus(tt.err)); got != tt.want {
			t.Errorf("toStatus(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
	if toStatus(nil) != nil {
		t.Error("toStatus(nil) != nil")
	}
}
