package rules

import (
	"strings"

	"github.com/solatis/boorukeeper/internal/types"
)

// EntityKind names the normalized entity a rule group extracts.
type EntityKind string

const (
	EntityPost EntityKind = "post"
	EntityPool EntityKind = "pool"
	EntityTag  EntityKind = "tag"
	EntityUser EntityKind = "user"
)

// Field names understood by the extractor, with their semantic kinds.
// Documents may only name these fields.
var fieldSchema = map[EntityKind]map[string]Kind{
	EntityPost: {
		"id":              KindInt,
		"rating":          KindString,
		"file_ext":        KindString,
		"md5":             KindString,
		"tags":            KindStrings,
		"uploader":        KindString,
		"score":           KindInt,
		"source":          KindString,
		"duration":        KindFloat,
		"created_at":      KindTimestamp,
		"preview_url":     KindString,
		"preview_width":   KindInt,
		"preview_height":  KindInt,
		"preview_size":    KindInt,
		"sample_url":      KindString,
		"sample_width":    KindInt,
		"sample_height":   KindInt,
		"sample_size":     KindInt,
		"large_url":       KindString,
		"large_width":     KindInt,
		"large_height":    KindInt,
		"large_size":      KindInt,
		"original_url":    KindString,
		"original_width":  KindInt,
		"original_height": KindInt,
		"original_size":   KindInt,
	},
	EntityPool: {
		"id":          KindInt,
		"name":        KindString,
		"description": KindString,
		"post_count":  KindInt,
		"post_ids":    KindStrings,
		"creator":     KindString,
		"created_at":  KindTimestamp,
		"updated_at":  KindTimestamp,
	},
	EntityTag: {
		"id":         KindInt,
		"name":       KindString,
		"count":      KindInt,
		"category":   KindString,
		"created_at": KindTimestamp,
		"updated_at": KindTimestamp,
	},
	EntityUser: {
		"id":         KindInt,
		"name":       KindString,
		"created_at": KindTimestamp,
		"updated_at": KindTimestamp,
	},
}

// requiredFields must be declared by every group of the entity kind.
var requiredFields = map[EntityKind][]string{
	EntityPost: {"id"},
	EntityPool: {"id", "name"},
	EntityTag:  {"name"},
	EntityUser: {"id"},
}

// CategoryRule assigns Category to the tag names its rule resolves.
type CategoryRule struct {
	Category types.TagCategory
	Rule     *FallbackRule
}

// EntityRuleGroup holds the extraction rules for one entity kind of one
// backend. Rules are read-only after compilation.
type EntityRuleGroup struct {
	Entity        EntityKind
	Length        *FallbackRule
	Fields        map[string]*FallbackRule
	TagCategories []CategoryRule               // post only, document order
	RatingMap     map[string]types.Rating      // post only, raw -> rating
	CategoryMap   map[string]types.TagCategory // tag only, raw -> category
}

// Field returns the named rule, or nil when the document omits it.
// A nil rule resolves to absent.
func (g *EntityRuleGroup) Field(name string) *FallbackRule {
	if g == nil {
		return nil
	}
	return g.Fields[name]
}

// MapRating translates a raw backend rating. Unmapped values that already
// name a normalized rating pass through; anything else is RatingUnknown.
func (g *EntityRuleGroup) MapRating(raw string) types.Rating {
	if r, ok := g.RatingMap[strings.ToLower(raw)]; ok {
		return r
	}
	if r, ok := types.ParseRating(raw); ok {
		return r
	}
	return types.RatingUnknown
}

// MapCategory translates a raw backend tag category.
func (g *EntityRuleGroup) MapCategory(raw string) types.TagCategory {
	if c, ok := g.CategoryMap[strings.ToLower(raw)]; ok {
		return c
	}
	if c, ok := types.ParseTagCategory(raw); ok {
		return c
	}
	return types.CategoryGeneral
}

// RuleSet is the compiled `fields` section of one backend document.
// A nil group means the backend cannot produce that entity.
type RuleSet struct {
	Post *EntityRuleGroup
	Pool *EntityRuleGroup
	Tag  *EntityRuleGroup
	User *EntityRuleGroup
}

// Group returns the rule group for an entity kind.
func (rs *RuleSet) Group(kind EntityKind) *EntityRuleGroup {
	if rs == nil {
		return nil
	}
	switch kind {
	case EntityPost:
		return rs.Post
	case EntityPool:
		return rs.Pool
	case EntityTag:
		return rs.Tag
	case EntityUser:
		return rs.User
	default:
		return nil
	}
}
