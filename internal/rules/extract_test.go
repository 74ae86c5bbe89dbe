package rules

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/solatis/boorukeeper/internal/types"
)

// danbooru-shaped rule set: top-level array of posts.
const arrayRules = `
post:
  length: $.length()
  fields:
    id: $[%d].id
    rating: $[%d].rating
    file_ext: $[%d].file_ext
    md5: $[%d].md5
    tags: $[%d].tag_string
    score: $[%d].score
    source:
      paths: ['$[%d].source']
      invalid: [""]
    created_at: $[%d].created_at
    preview_url: $[%d].preview_file_url
    original_url: $[%d].file_url
    original_width: $[%d].image_width
    original_height: $[%d].image_height
    original_size: $[%d].file_size
  rating_map: {g: general, s: sensitive, q: questionable, e: explicit}
  tag_categories:
    - category: artist
      paths: ['$[%d].tag_string_artist']
    - category: character
      paths: ['$[%d].tag_string_character']
    - category: copyright
      paths: ['$[%d].tag_string_copyright']
pool:
  length: $.length()
  fields:
    id: $[%d].id
    name: $[%d].name
    description: $[%d].description
    post_ids: $[%d].post_ids
    post_count: $[%d].post_count
tag:
  length: $.length()
  fields:
    id: $[%d].id
    name: $[%d].name
    count: $[%d].post_count
    category: $[%d].category
  category_map: {"0": general, "1": artist, "3": copyright, "4": character, "5": meta}
user:
  length: $.length()
  fields:
    id: $[%d].id
    name: $[%d].name
`

func newTestExtractor(t *testing.T, src string) (*Extractor, *RuleSet) {
	t.Helper()
	rs, err := CompileRuleSet(decodeFields(t, src))
	if err != nil {
		t.Fatalf("CompileRuleSet() error = %v", err)
	}
	return &Extractor{Website: "test", BaseURL: "https://booru.example"}, rs
}

func TestExtractor_Posts(t *testing.T) {
	e, rs := newTestExtractor(t, arrayRules)
	doc := mustDecode(t, `[
		{
			"id": 7, "rating": "q", "md5": "abc", "score": "12", "source": "",
			"created_at": "2024-03-02T16:32:10.000-06:00",
			"preview_file_url": "//cdn.example/p/7.jpg",
			"file_url": "/data/7.PNG?download=1",
			"image_width": 800, "image_height": 600, "file_size": 1024,
			"tag_string": "solo smile alice wonderland artist_x",
			"tag_string_artist": "artist_x",
			"tag_string_character": "alice",
			"tag_string_copyright": "wonderland alice"
		}
	]`)

	posts, err := e.Posts(doc, rs.Post)
	if err != nil {
		t.Fatalf("Posts() error = %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("len(posts) = %d, want 1", len(posts))
	}
	p := posts[0]

	if p.Key != (types.EntityKey{Website: "test", ID: 7}) {
		t.Errorf("Key = %+v", p.Key)
	}
	if p.Rating != types.RatingQuestionable {
		t.Errorf("Rating = %q, want questionable", p.Rating)
	}
	if p.FileExt != "png" || p.FileKind != types.FileKindImage {
		t.Errorf("FileExt/FileKind = %q/%q, want png/image", p.FileExt, p.FileKind)
	}
	if p.Score == nil || *p.Score != 12 {
		t.Errorf("Score = %v, want 12", p.Score)
	}
	if p.Source != "" {
		t.Errorf("Source = %q, want empty", p.Source)
	}
	if want := time.Date(2024, 3, 2, 22, 32, 10, 0, time.UTC); !p.CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", p.CreatedAt, want)
	}

	wantOriginal := types.MediaVariant{URL: "https://booru.example/data/7.PNG?download=1", Width: 800, Height: 600, Size: 1024}
	if got := p.Variants[types.QualityOriginal]; got != wantOriginal {
		t.Errorf("original = %+v, want %+v", got, wantOriginal)
	}
	if got := p.URLFor(types.QualityPreview); got != "https://cdn.example/p/7.jpg" {
		t.Errorf("preview URL = %q", got)
	}

	// alice is claimed by both character and copyright: first category wins.
	wantTags := []types.PostTag{
		{Name: "artist_x", Category: types.CategoryArtist},
		{Name: "wonderland", Category: types.CategoryCopyright},
		{Name: "alice", Category: types.CategoryCharacter},
		{Name: "smile", Category: types.CategoryGeneral},
		{Name: "solo", Category: types.CategoryGeneral},
	}
	if !reflect.DeepEqual(p.Tags, wantTags) {
		t.Errorf("Tags = %+v, want %+v", p.Tags, wantTags)
	}
}

func TestExtractor_PostsSkipsIncomplete(t *testing.T) {
	e, rs := newTestExtractor(t, arrayRules)
	doc := mustDecode(t, `[
		{"id": 1, "file_url": "https://x/1.jpg", "tag_string": "a"},
		{"id": 2, "file_url": null, "tag_string": "b"},
		{"file_url": "https://x/3.jpg"},
		{"id": 4, "preview_file_url": "https://x/4.webm", "tag_string": "c"}
	]`)

	posts, err := e.Posts(doc, rs.Post)
	if err != nil {
		t.Fatalf("Posts() error = %v", err)
	}
	var ids []int64
	for _, p := range posts {
		ids = append(ids, p.Key.ID)
	}
	if !reflect.DeepEqual(ids, []int64{1, 4}) {
		t.Fatalf("ids = %v, want [1 4]", ids)
	}
	if posts[1].FileKind != types.FileKindVideo {
		t.Errorf("FileKind = %q, want video", posts[1].FileKind)
	}
	if posts[0].Score != nil {
		t.Errorf("Score = %v, want nil", *posts[0].Score)
	}
}

func TestExtractor_CategoryOutsideFlatListIgnored(t *testing.T) {
	e, rs := newTestExtractor(t, arrayRules)
	doc := mustDecode(t, `[{"id": 1, "file_url": "https://x/1.jpg", "tag_string": "a", "tag_string_artist": "ghost"}]`)

	posts, err := e.Posts(doc, rs.Post)
	if err != nil {
		t.Fatalf("Posts() error = %v", err)
	}
	want := []types.PostTag{{Name: "a", Category: types.CategoryGeneral}}
	if !reflect.DeepEqual(posts[0].Tags, want) {
		t.Errorf("Tags = %+v, want %+v", posts[0].Tags, want)
	}
}

func TestExtractor_MalformedResponse(t *testing.T) {
	src := `
post:
  length: $.posts.length()
  fields:
    id: $.posts[%d].id
    original_url: $.posts[%d].file.url
`
	e, rs := newTestExtractor(t, src)

	_, err := e.Posts(mustDecode(t, `{"success": false, "message": "rate limited"}`), rs.Post)
	if !errors.Is(err, types.ErrMalformedResponse) {
		t.Fatalf("Posts() error = %v, want ErrMalformedResponse", err)
	}
}

func TestExtractor_EmptyWithDefaultLength(t *testing.T) {
	src := `
post:
  length:
    paths: [$.post.length()]
    default: 0
  fields:
    id: $.post[%d].id
    original_url: $.post[%d].file_url
`
	e, rs := newTestExtractor(t, src)
	posts, err := e.Posts(mustDecode(t, `{"@attributes": {"limit": 100, "offset": 0, "count": 0}}`), rs.Post)
	if err != nil {
		t.Fatalf("Posts() error = %v", err)
	}
	if posts == nil || len(posts) != 0 {
		t.Errorf("posts = %#v, want empty non-nil slice", posts)
	}
}

func TestExtractor_UnsupportedGroup(t *testing.T) {
	e, rs := newTestExtractor(t, minimalPostGroup)
	if _, err := e.Pools(mustDecode(t, `[]`), rs.Pool); !errors.Is(err, types.ErrUnsupportedOperation) {
		t.Fatalf("Pools() error = %v, want ErrUnsupportedOperation", err)
	}
}

func TestExtractor_Pools(t *testing.T) {
	e, rs := newTestExtractor(t, arrayRules)
	doc := mustDecode(t, `[
		{"id": 3, "name": "Cool_Pool", "description": "<b>Best</b> &amp; brightest", "post_ids": [10, 11, 12]},
		{"id": 4, "name": "", "post_ids": []},
		{"id": 5, "name": "Counted", "post_ids": "20 21", "post_count": 9}
	]`)

	pools, err := e.Pools(doc, rs.Pool)
	if err != nil {
		t.Fatalf("Pools() error = %v", err)
	}
	if len(pools) != 2 {
		t.Fatalf("len(pools) = %d, want 2", len(pools))
	}
	if pools[0].Description != "Best & brightest" {
		t.Errorf("Description = %q", pools[0].Description)
	}
	if !reflect.DeepEqual(pools[0].PostIDs, []int64{10, 11, 12}) || pools[0].PostCount != 3 {
		t.Errorf("pool 3 ids/count = %v/%d", pools[0].PostIDs, pools[0].PostCount)
	}
	if !reflect.DeepEqual(pools[1].PostIDs, []int64{20, 21}) || pools[1].PostCount != 9 {
		t.Errorf("pool 5 ids/count = %v/%d", pools[1].PostIDs, pools[1].PostCount)
	}
}

func TestExtractor_Tags(t *testing.T) {
	e, rs := newTestExtractor(t, arrayRules)
	doc := mustDecode(t, `[
		{"id": 1, "name": "artist_x", "post_count": 40, "category": 1},
		{"id": 2, "name": "solo", "post_count": "1000", "category": 0},
		{"id": 3, "name": "odd", "category": 42},
		{"id": 4}
	]`)

	tags, err := e.Tags(doc, rs.Tag)
	if err != nil {
		t.Fatalf("Tags() error = %v", err)
	}
	want := []types.Tag{
		{Key: types.TagKey{Website: "test", Name: "artist_x"}, ExternalID: 1, Count: 40, Category: types.CategoryArtist},
		{Key: types.TagKey{Website: "test", Name: "solo"}, ExternalID: 2, Count: 1000, Category: types.CategoryGeneral},
		{Key: types.TagKey{Website: "test", Name: "odd"}, ExternalID: 3, Category: types.CategoryGeneral},
	}
	if !reflect.DeepEqual(tags, want) {
		t.Errorf("Tags() = %+v, want %+v", tags, want)
	}
}

func TestExtractor_Users(t *testing.T) {
	e, rs := newTestExtractor(t, arrayRules)
	users, err := e.Users(mustDecode(t, `[{"id": "9", "name": "mod"}, {"name": "ghost"}]`), rs.User)
	if err != nil {
		t.Fatalf("Users() error = %v", err)
	}
	want := []types.User{{Key: types.EntityKey{Website: "test", ID: 9}, Name: "mod"}}
	if !reflect.DeepEqual(users, want) {
		t.Errorf("Users() = %+v, want %+v", users, want)
	}
}
