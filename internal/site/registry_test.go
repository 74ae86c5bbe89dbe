package site

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/solatis/boorukeeper/internal/request"
	"github.com/solatis/boorukeeper/internal/types"
)

func TestNewRegistry_Builtins(t *testing.T) {
	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	var names []types.Website
	for _, s := range reg.Sites() {
		names = append(names, s.Name)
	}
	want := []types.Website{"danbooru.donmai.us", "e621.net", "gelbooru.com", "yande.re"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("Sites() = %v, want %v", names, want)
	}

	tests := []struct {
		lookup  string
		backend Backend
		ops     []request.Operation
	}{
		{lookup: "danbooru", backend: BackendDanbooru, ops: []request.Operation{
			request.OpPoolPosts, request.OpPools, request.OpPopularDay, request.OpPopularMonth,
			request.OpPopularWeek, request.OpPosts, request.OpTags, request.OpUser,
		}},
		{lookup: "Yande.re", backend: BackendMoebooru, ops: []request.Operation{
			request.OpPoolPosts, request.OpPools, request.OpPopularDay, request.OpPopularMonth,
			request.OpPopularWeek, request.OpPosts, request.OpTags, request.OpUser,
		}},
		{lookup: "gelbooru.com", backend: BackendGelbooru, ops: []request.Operation{
			request.OpPosts, request.OpTags,
		}},
		{lookup: "e621", backend: BackendE621, ops: []request.Operation{
			request.OpPoolPosts, request.OpPools, request.OpPopularDay, request.OpPopularMonth,
			request.OpPopularWeek, request.OpPosts, request.OpTags, request.OpUser,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.lookup, func(t *testing.T) {
			s, err := reg.Site(tt.lookup)
			if err != nil {
				t.Fatalf("Site() error = %v", err)
			}
			if s.Backend != tt.backend {
				t.Errorf("Backend = %s, want %s", s.Backend, tt.backend)
			}
			if got := s.Templates.Operations(); !reflect.DeepEqual(got, tt.ops) {
				t.Errorf("Operations() = %v, want %v", got, tt.ops)
			}
		})
	}

	if _, err := reg.Site("nope.example"); !errors.Is(err, types.ErrUnknownSite) {
		t.Errorf("Site(unknown) error = %v, want ErrUnknownSite", err)
	}
}

func TestRegistry_LoadDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	write("safebooru.yaml", "name: safebooru.donmai.us\nbackend: danbooru\nbase_url: https://safebooru.donmai.us/\nlimit: 50\n")
	write("notes.txt", "ignored")

	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	if err := reg.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}

	s, err := reg.Site("safebooru.donmai.us")
	if err != nil {
		t.Fatalf("Site() error = %v", err)
	}
	if s.BaseURL != "https://safebooru.donmai.us" || s.Limit != 50 || s.MaxLimit != 200 {
		t.Errorf("site = %+v", s)
	}
	if !s.Supports(request.OpPopularWeek) || s.Ratings.Len() == 0 {
		t.Error("inherited rules missing")
	}
	if len(reg.Sites()) != 5 {
		t.Errorf("Sites() = %d, want 5", len(reg.Sites()))
	}
}

func TestRegistry_LoadDir_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{name: "unknown key", body: "name: x\nbackend: danbooru\nbase_url: https://x\nlimt: 5\n", wantErr: types.ErrInvalidDocument},
		{name: "unknown backend", body: "name: x\nbackend: shimmie\nbase_url: https://x\n", wantErr: types.ErrUnknownBackend},
		{name: "relative base", body: "name: x\nbackend: danbooru\nbase_url: x.example\n", wantErr: types.ErrInvalidDocument},
		{name: "missing name", body: "backend: danbooru\nbase_url: https://x\n", wantErr: types.ErrInvalidDocument},
		{name: "limit above max", body: "name: x\nbackend: danbooru\nbase_url: https://x\nlimit: 500\n", wantErr: types.ErrInvalidDocument},
		{name: "empty", body: "", wantErr: types.ErrInvalidDocument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, "site.yml"), []byte(tt.body), 0o600); err != nil {
				t.Fatal(err)
			}
			reg, err := NewRegistry()
			if err != nil {
				t.Fatalf("NewRegistry() error = %v", err)
			}
			err = reg.LoadDir(dir)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("LoadDir() error = %v, want %v", err, tt.wantErr)
			}
			if !strings.Contains(err.Error(), "site.yml") {
				t.Errorf("error %q does not name the file", err)
			}
		})
	}
}

func TestCompile_StandaloneDocument(t *testing.T) {
	src := `
name: booru.example
backend: danbooru
base_url: https://booru.example
fields:
  post:
    length: $.length()
    fields:
      id: $[%d].id
      original_url: $[%d].file_url
requests:
  operations:
    posts:
      path: /posts.json
      params: {page: "{{page}}", tags: "{{tags}}"}
`
	doc, err := LoadDocument(strings.NewReader(src))
	if err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}
	s, err := Compile(doc)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if s.Limit != defaultLimit || s.TagWildcard != "*" || s.Paginator != (request.Paginator{Mode: request.ModePage, First: 1}) {
		t.Errorf("defaults = limit %d, wildcard %q, paginator %+v", s.Limit, s.TagWildcard, s.Paginator)
	}
	if s.PageSize(0) != defaultLimit || s.PageSize(7) != 7 {
		t.Errorf("PageSize() mismatch")
	}
	if s.Supports(request.OpPools) {
		t.Error("Supports(pools) = true for a posts-only document")
	}
}

func TestParseBackend(t *testing.T) {
	for _, b := range AllBackends {
		if got, ok := ParseBackend(" " + strings.ToUpper(string(b)) + " "); !ok || got != b {
			t.Errorf("ParseBackend(%q) = %q, %v", b, got, ok)
		}
	}
	if _, ok := ParseBackend("philomena"); ok {
		t.Error("ParseBackend(philomena) accepted")
	}
}
