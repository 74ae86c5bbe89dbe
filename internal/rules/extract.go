// internal/rules/extract.go
package rules

import (
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/solatis/boorukeeper/internal/types"
)

/*
 * Response extraction.
 *
 * Turns one decoded JSON response into normalized entities using a compiled
 * EntityRuleGroup. Extraction flow per call:
 *   1. Resolve the group's length rule against the document. Failure means
 *      the response shape is entirely unexpected: ErrMalformedResponse.
 *   2. For each index 0..n-1, resolve every field with the index as the
 *      positional argument.
 *   3. Skip the entity when a required field is absent. Skips are logged at
 *      debug level and never abort the batch.
 *
 * Required fields: post id and at least one media URL; pool id and name;
 * tag name; user id.
 *
 * Output order matches input array order.
 */

// maxEntities bounds the iteration count a length rule may produce.
const maxEntities = 10000

// descriptionPolicy strips all markup; backends mix HTML and DText.
var descriptionPolicy = bluemonday.StrictPolicy()

// Extractor builds entities for one backend.
type Extractor struct {
	Website types.Website
	BaseURL string // resolves relative media URLs
	Logger  *slog.Logger
}

func (e *Extractor) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.Logger
}

// count resolves the number of entities in doc.
func (e *Extractor) count(doc any, g *EntityRuleGroup) (int, error) {
	if g == nil {
		return 0, types.ErrUnsupportedOperation
	}
	n, ok := g.Length.Int(doc)
	if !ok || n < 0 {
		e.logger().Error("response length unresolved",
			"website", e.Website, "entity", g.Entity, "paths", pathExprs(g.Length))
		return 0, fmt.Errorf("%w: %s %s length unresolved", types.ErrMalformedResponse, e.Website, g.Entity)
	}
	if n > maxEntities {
		e.logger().Warn("response length clamped", "website", e.Website, "entity", g.Entity, "length", n)
		n = maxEntities
	}
	return int(n), nil
}

func (e *Extractor) skip(g *EntityRuleGroup, index int, missing string) {
	e.logger().Debug("skipping entity",
		"website", e.Website, "entity", g.Entity, "index", index, "missing", missing)
}

// Posts extracts posts from doc.
func (e *Extractor) Posts(doc any, g *EntityRuleGroup) ([]types.Post, error) {
	n, err := e.count(doc, g)
	if err != nil {
		return nil, err
	}
	posts := make([]types.Post, 0, n)
	for i := 0; i < n; i++ {
		if p, ok := e.post(doc, g, i); ok {
			posts = append(posts, p)
		}
	}
	return posts, nil
}

func (e *Extractor) post(doc any, g *EntityRuleGroup, i int) (types.Post, bool) {
	id, ok := g.Field("id").Int(doc, i)
	if !ok {
		e.skip(g, i, "id")
		return types.Post{}, false
	}

	variants := make(map[types.Quality]types.MediaVariant, len(types.AllQualities))
	for _, q := range types.AllQualities {
		prefix := string(q)
		u, ok := g.Field(prefix+"_url").String(doc, i)
		if !ok || u == "" {
			continue
		}
		v := types.MediaVariant{URL: e.absURL(u)}
		v.Width, _ = g.Field(prefix+"_width").Int(doc, i)
		v.Height, _ = g.Field(prefix+"_height").Int(doc, i)
		v.Size, _ = g.Field(prefix+"_size").Int(doc, i)
		variants[q] = v
	}
	if len(variants) == 0 {
		e.skip(g, i, "url")
		return types.Post{}, false
	}

	p := types.Post{
		Key:      types.EntityKey{Website: e.Website, ID: id},
		Variants: variants,
	}

	if raw, ok := g.Field("rating").String(doc, i); ok {
		p.Rating = g.MapRating(raw)
	}

	ext, _ := g.Field("file_ext").String(doc, i)
	if ext == "" {
		ext = types.ExtFromURL(mediaURL(variants))
	}
	p.FileExt = strings.ToLower(strings.TrimPrefix(ext, "."))
	p.FileKind = types.FileKindFromExt(p.FileExt)

	p.Tags = e.postTags(doc, g, i)
	p.MD5, _ = g.Field("md5").String(doc, i)
	p.Uploader, _ = g.Field("uploader").String(doc, i)
	p.Source, _ = g.Field("source").String(doc, i)
	p.CreatedAt, _ = g.Field("created_at").Time(doc, i)
	if score, ok := g.Field("score").Int(doc, i); ok {
		p.Score = &score
	}
	if d, ok := g.Field("duration").Float(doc, i); ok {
		p.Duration = &d
	}
	return p, true
}

// postTags resolves the flat tag list and assigns categories. Category
// lists are intersected with the flat list so a category can never add a
// tag the canonical list lacks. The first category claiming a tag wins.
func (e *Extractor) postTags(doc any, g *EntityRuleGroup, i int) []types.PostTag {
	flat, _ := g.Field("tags").Strings(doc, i)

	order := make([]string, 0, len(flat))
	category := make(map[string]types.TagCategory, len(flat))
	for _, name := range flat {
		if _, dup := category[name]; dup {
			continue
		}
		category[name] = types.CategoryGeneral
		order = append(order, name)
	}

	claimed := make(map[string]bool, len(order))
	for _, cr := range g.TagCategories {
		names, _ := cr.Rule.Strings(doc, i)
		for _, name := range names {
			if _, ok := category[name]; !ok || claimed[name] {
				continue
			}
			category[name] = cr.Category
			claimed[name] = true
		}
	}

	tags := make([]types.PostTag, len(order))
	for j, name := range order {
		tags[j] = types.PostTag{Name: name, Category: category[name]}
	}
	types.SortPostTags(tags)
	return tags
}

// mediaURL picks the URL used for extension inference, largest first.
func mediaURL(variants map[types.Quality]types.MediaVariant) string {
	for i := len(types.AllQualities) - 1; i >= 0; i-- {
		if v, ok := variants[types.AllQualities[i]]; ok {
			return v.URL
		}
	}
	return ""
}

// absURL makes protocol-relative and root-relative URLs absolute.
func (e *Extractor) absURL(u string) string {
	switch {
	case strings.HasPrefix(u, "//"):
		return "https:" + u
	case strings.HasPrefix(u, "/") && e.BaseURL != "":
		return strings.TrimSuffix(e.BaseURL, "/") + u
	default:
		return u
	}
}

// Pools extracts pools from doc.
func (e *Extractor) Pools(doc any, g *EntityRuleGroup) ([]types.Pool, error) {
	n, err := e.count(doc, g)
	if err != nil {
		return nil, err
	}
	pools := make([]types.Pool, 0, n)
	for i := 0; i < n; i++ {
		id, ok := g.Field("id").Int(doc, i)
		if !ok {
			e.skip(g, i, "id")
			continue
		}
		name, ok := g.Field("name").String(doc, i)
		if !ok || name == "" {
			e.skip(g, i, "name")
			continue
		}

		p := types.Pool{
			Key:  types.EntityKey{Website: e.Website, ID: id},
			Name: name,
		}
		if desc, ok := g.Field("description").String(doc, i); ok {
			p.Description = sanitizeDescription(desc)
		}
		if ids, ok := g.Field("post_ids").Strings(doc, i); ok {
			p.PostIDs = parseIDs(ids)
		}
		if count, ok := g.Field("post_count").Int(doc, i); ok {
			p.PostCount = count
		} else {
			p.PostCount = int64(len(p.PostIDs))
		}
		p.Creator, _ = g.Field("creator").String(doc, i)
		p.CreatedAt, _ = g.Field("created_at").Time(doc, i)
		p.UpdatedAt, _ = g.Field("updated_at").Time(doc, i)
		pools = append(pools, p)
	}
	return pools, nil
}

func sanitizeDescription(s string) string {
	return strings.TrimSpace(html.UnescapeString(descriptionPolicy.Sanitize(s)))
}

func parseIDs(raw []string) []int64 {
	ids := make([]int64, 0, len(raw))
	for _, s := range raw {
		if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			ids = append(ids, n)
		}
	}
	return ids
}

// Tags extracts tags from doc.
func (e *Extractor) Tags(doc any, g *EntityRuleGroup) ([]types.Tag, error) {
	n, err := e.count(doc, g)
	if err != nil {
		return nil, err
	}
	tags := make([]types.Tag, 0, n)
	for i := 0; i < n; i++ {
		name, ok := g.Field("name").String(doc, i)
		if !ok || name == "" {
			e.skip(g, i, "name")
			continue
		}
		t := types.Tag{
			Key:      types.TagKey{Website: e.Website, Name: name},
			Category: types.CategoryGeneral,
		}
		if raw, ok := g.Field("category").String(doc, i); ok {
			t.Category = g.MapCategory(raw)
		}
		t.ExternalID, _ = g.Field("id").Int(doc, i)
		t.Count, _ = g.Field("count").Int(doc, i)
		t.CreatedAt, _ = g.Field("created_at").Time(doc, i)
		t.UpdatedAt, _ = g.Field("updated_at").Time(doc, i)
		tags = append(tags, t)
	}
	return tags, nil
}

// Users extracts users from doc.
func (e *Extractor) Users(doc any, g *EntityRuleGroup) ([]types.User, error) {
	n, err := e.count(doc, g)
	if err != nil {
		return nil, err
	}
	users := make([]types.User, 0, n)
	for i := 0; i < n; i++ {
		id, ok := g.Field("id").Int(doc, i)
		if !ok {
			e.skip(g, i, "id")
			continue
		}
		u := types.User{Key: types.EntityKey{Website: e.Website, ID: id}}
		u.Name, _ = g.Field("name").String(doc, i)
		u.CreatedAt, _ = g.Field("created_at").Time(doc, i)
		u.UpdatedAt, _ = g.Field("updated_at").Time(doc, i)
		users = append(users, u)
	}
	return users, nil
}

func pathExprs(r *FallbackRule) []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.Paths))
	for i, p := range r.Paths {
		out[i] = p.Expr
	}
	return out
}
