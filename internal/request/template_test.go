package request

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/solatis/boorukeeper/internal/rules"
	"github.com/solatis/boorukeeper/internal/types"
	"gopkg.in/yaml.v3"
)

const testFields = `
post:
  length: $.length()
  fields:
    id: $[%d].id
    original_url: $[%d].file_url
tag:
  length: $.length()
  fields:
    name: $[%d].name
`

const testRequests = `
illegal_tags:
  prefix: ["rating:", "-rating:"]
operations:
  posts:
    path: /posts.json
    params:
      page: "{{page}}"
      limit: "{{limit}}"
      tags: "{{tags}}"
    default_tags: ["{{rating}}"]
    illegal_tags:
      equal: ['order:random']
  pool_posts:
    path: /pool/show.json
    params:
      id: "{{pool_id}}"
    only_one_page: true
    root: $.posts
    client_rating_filter: true
  tags:
    path: /tags.json
    params:
      "search[name_matches]": "{{name}}*"
      "search[order]": count
      page: "{{page}}"
    pagination: {mode: page, first: 1}
`

func compileTestTemplates(t *testing.T, fields, requests string) (*Templates, error) {
	t.Helper()
	var fd rules.FieldsDoc
	if err := yaml.Unmarshal([]byte(fields), &fd); err != nil {
		t.Fatalf("yaml.Unmarshal(fields) error = %v", err)
	}
	rs, err := rules.CompileRuleSet(fd)
	if err != nil {
		t.Fatalf("CompileRuleSet() error = %v", err)
	}
	var rd RequestsDoc
	if err := yaml.Unmarshal([]byte(requests), &rd); err != nil {
		return nil, err
	}
	return CompileTemplates(rd, rs)
}

func mustTemplates(t *testing.T) *Templates {
	t.Helper()
	ts, err := compileTestTemplates(t, testFields, testRequests)
	if err != nil {
		t.Fatalf("CompileTemplates() error = %v", err)
	}
	return ts
}

func TestCompileTemplates(t *testing.T) {
	ts := mustTemplates(t)

	if got, want := ts.Operations(), []Operation{OpPoolPosts, OpPosts, OpTags}; !reflect.DeepEqual(got, want) {
		t.Errorf("Operations() = %v, want %v", got, want)
	}
	if _, ok := ts.Get(OpPools); ok {
		t.Error("Get(pools) found an undeclared operation")
	}

	posts, _ := ts.Get(OpPosts)
	var keys []string
	for _, p := range posts.Params {
		keys = append(keys, p.Key)
	}
	if want := []string{"page", "limit", "tags"}; !reflect.DeepEqual(keys, want) {
		t.Errorf("param order = %v, want %v", keys, want)
	}
	if posts.Entity != rules.EntityPost || posts.Root != nil || posts.Paginator != nil {
		t.Errorf("posts template = %+v", posts)
	}
	if !ts.Illegal.Matches("Rating:explicit") {
		t.Error("global prefix pattern not case-insensitive")
	}
	if got := posts.Placeholders(); !reflect.DeepEqual(got, []string{"page", "limit", "tags", "rating"}) {
		t.Errorf("Placeholders() = %v", got)
	}

	pool, _ := ts.Get(OpPoolPosts)
	if !pool.OnlyOnePage || !pool.ClientRatingFilter || pool.Root == nil || pool.Root.Expr != "$.posts" {
		t.Errorf("pool_posts template = %+v", pool)
	}

	tags, _ := ts.Get(OpTags)
	if tags.Entity != rules.EntityTag || tags.Paginator == nil || tags.Paginator.First != 1 {
		t.Errorf("tags template = %+v", tags)
	}
}

func TestCompileTemplates_Errors(t *testing.T) {
	tests := []struct {
		name     string
		requests string
		wantMsg  string
	}{
		{
			name:     "unknown operation",
			requests: "operations:\n  favorites:\n    path: /favorites.json\n",
			wantMsg:  "requests.operations.favorites: unknown operation",
		},
		{
			name:     "missing field group",
			requests: "operations:\n  pools:\n    path: /pools.json\n",
			wantMsg:  "no fields.pool group",
		},
		{
			name:     "relative path",
			requests: "operations:\n  posts:\n    path: posts.json\n",
			wantMsg:  "path must start with /",
		},
		{
			name:     "illegal default tag",
			requests: "illegal_tags: {prefix: ['order:']}\noperations:\n  posts:\n    path: /p\n    default_tags: ['order:score']\n",
			wantMsg:  `default tag "order:score" matches an illegal pattern`,
		},
		{
			name:     "positional root",
			requests: "operations:\n  posts:\n    path: /p\n    root: '$[%d]'\n",
			wantMsg:  "root must not contain",
		},
		{
			name:     "bad pagination mode",
			requests: "operations:\n  posts:\n    path: /p\n    pagination: {mode: offset}\n",
			wantMsg:  `unknown pagination mode "offset"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileTestTemplates(t, testFields, tt.requests)
			if err == nil {
				t.Fatal("CompileTemplates() error = nil, want error")
			}
			if !errors.Is(err, types.ErrInvalidDocument) {
				t.Errorf("error %v does not wrap ErrInvalidDocument", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want substring %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestParams_UnmarshalYAML(t *testing.T) {
	var p Params
	if err := yaml.Unmarshal([]byte("z: 1\na: 2\nm: '{{x}}'\n"), &p); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	want := Params{{Key: "z", Value: "1"}, {Key: "a", Value: "2"}, {Key: "m", Value: "{{x}}"}}
	if !reflect.DeepEqual(p, want) {
		t.Errorf("Params = %+v, want %+v", p, want)
	}

	if err := yaml.Unmarshal([]byte("- a\n- b\n"), &p); err == nil {
		t.Error("sequence accepted as params")
	}
	if err := yaml.Unmarshal([]byte("a: 1\na: 2\n"), &p); err == nil {
		t.Error("duplicate param accepted")
	}
}

func TestTagPattern_Matches(t *testing.T) {
	f := IllegalTagsDoc{
		Equal:    []string{"order:random"},
		Prefix:   []string{"Rating:"},
		Suffix:   []string{"_(cosplay)"},
		Contains: []string{"pool:", ""},
	}.Compile()

	if len(f) != 4 {
		t.Fatalf("len(filter) = %d, want 4 (empty pattern dropped)", len(f))
	}

	tests := map[string]bool{
		"order:random":        true,
		"order:random_x":      false,
		"rating:safe":         true,
		"RATING:s":            true,
		"x_rating:s":          false,
		"alice_(cosplay)":     true,
		"ordpool:12":          true,
		"pool:12":             true,
		"solo":                false,
		"alice_(cosplay)_fan": false,
	}
	for tag, want := range tests {
		if got := f.Matches(tag); got != want {
			t.Errorf("Matches(%q) = %v, want %v", tag, got, want)
		}
	}
}
