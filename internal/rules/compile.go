// internal/rules/compile.go
package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/solatis/boorukeeper/internal/types"
	"gopkg.in/yaml.v3"
)

/*
 * Rule document compilation and validation.
 *
 * Compiles the `fields` section of a backend document (FieldsDoc, decoded
 * from YAML) into a RuleSet with pre-parsed paths and pre-coerced invalid
 * and default values.
 *
 * Compilation workflow:
 *   1. Reject field names the extractor does not understand (typo guard)
 *   2. Resolve each field's kind from the schema; an explicit kind must agree
 *   3. Compile path expressions (enforces depth and wildcard limits)
 *   4. Coerce invalid/default literals to the field kind
 *   5. Validate required fields and rating/category maps
 *
 * Compile-time validation moves every document error to process start,
 * so a malformed backend document never fails halfway through a response.
 *
 * Short forms: a field may be written as a single path string or a list of
 * paths instead of the full {kind, paths, invalid, default} mapping.
 */

// FieldDoc is one field rule as written in a backend document.
type FieldDoc struct {
	Kind    string   `yaml:"kind"`
	Paths   []string `yaml:"paths"`
	Invalid []any    `yaml:"invalid"`
	Default any      `yaml:"default"`
}

// UnmarshalYAML accepts a path string, a path list, or the full mapping.
func (f *FieldDoc) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		f.Paths = []string{node.Value}
		return nil
	case yaml.SequenceNode:
		return node.Decode(&f.Paths)
	}
	type plain FieldDoc
	return node.Decode((*plain)(f))
}

// CategoryDoc assigns a tag category to the names resolved by Paths.
type CategoryDoc struct {
	Category string   `yaml:"category"`
	Paths    []string `yaml:"paths"`
}

// GroupDoc is the rule group for one entity kind.
type GroupDoc struct {
	Length        FieldDoc            `yaml:"length"`
	Fields        map[string]FieldDoc `yaml:"fields"`
	TagCategories []CategoryDoc       `yaml:"tag_categories"`
	RatingMap     map[string]string   `yaml:"rating_map"`
	CategoryMap   map[string]string   `yaml:"category_map"`
}

// FieldsDoc is the `fields` section of a backend document.
type FieldsDoc struct {
	Post *GroupDoc `yaml:"post"`
	Pool *GroupDoc `yaml:"pool"`
	Tag  *GroupDoc `yaml:"tag"`
	User *GroupDoc `yaml:"user"`
}

// CompileRuleSet validates and compiles every group present in doc.
func CompileRuleSet(doc FieldsDoc) (*RuleSet, error) {
	rs := &RuleSet{}
	var err error
	if rs.Post, err = compileGroup(EntityPost, doc.Post); err != nil {
		return nil, err
	}
	if rs.Pool, err = compileGroup(EntityPool, doc.Pool); err != nil {
		return nil, err
	}
	if rs.Tag, err = compileGroup(EntityTag, doc.Tag); err != nil {
		return nil, err
	}
	if rs.User, err = compileGroup(EntityUser, doc.User); err != nil {
		return nil, err
	}
	return rs, nil
}

func compileGroup(kind EntityKind, doc *GroupDoc) (*EntityRuleGroup, error) {
	if doc == nil {
		return nil, nil
	}
	schema := fieldSchema[kind]

	g := &EntityRuleGroup{
		Entity: kind,
		Fields: make(map[string]*FallbackRule, len(doc.Fields)),
	}

	if len(doc.Length.Paths) == 0 {
		return nil, invalidf(kind, "length", "no paths")
	}
	length, err := compileField(kind, "length", KindInt, doc.Length)
	if err != nil {
		return nil, err
	}
	g.Length = length

	// Sorted for deterministic error reporting.
	names := make([]string, 0, len(doc.Fields))
	for name := range doc.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		want, ok := schema[name]
		if !ok {
			return nil, invalidf(kind, name, "unknown field")
		}
		rule, err := compileField(kind, name, want, doc.Fields[name])
		if err != nil {
			return nil, err
		}
		g.Fields[name] = rule
	}

	for _, name := range requiredFields[kind] {
		if _, ok := g.Fields[name]; !ok {
			return nil, invalidf(kind, name, "required field missing")
		}
	}

	switch kind {
	case EntityPost:
		if err := compilePostExtras(g, doc); err != nil {
			return nil, err
		}
	case EntityTag:
		g.CategoryMap = make(map[string]types.TagCategory, len(doc.CategoryMap))
		for raw, name := range doc.CategoryMap {
			c, ok := types.ParseTagCategory(name)
			if !ok {
				return nil, invalidf(kind, "category_map", fmt.Sprintf("unknown category %q", name))
			}
			g.CategoryMap[strings.ToLower(raw)] = c
		}
	}

	return g, nil
}

func compilePostExtras(g *EntityRuleGroup, doc *GroupDoc) error {
	hasURL := false
	for _, q := range types.AllQualities {
		if _, ok := g.Fields[string(q)+"_url"]; ok {
			hasURL = true
		}
	}
	if !hasURL {
		return invalidf(EntityPost, "*_url", "at least one media URL field required")
	}

	for i, cd := range doc.TagCategories {
		c, ok := types.ParseTagCategory(cd.Category)
		if !ok {
			return invalidf(EntityPost, "tag_categories", fmt.Sprintf("entry %d: unknown category %q", i, cd.Category))
		}
		rule, err := compileField(EntityPost, "tag_categories."+cd.Category, KindStrings, FieldDoc{Paths: cd.Paths})
		if err != nil {
			return err
		}
		g.TagCategories = append(g.TagCategories, CategoryRule{Category: c, Rule: rule})
	}

	g.RatingMap = make(map[string]types.Rating, len(doc.RatingMap))
	for raw, name := range doc.RatingMap {
		r, ok := types.ParseRating(name)
		if !ok {
			return invalidf(EntityPost, "rating_map", fmt.Sprintf("unknown rating %q", name))
		}
		g.RatingMap[strings.ToLower(raw)] = r
	}
	return nil
}

func compileField(entity EntityKind, name string, want Kind, fd FieldDoc) (*FallbackRule, error) {
	if fd.Kind != "" {
		k, err := ParseKind(fd.Kind)
		if err != nil {
			return nil, invalidf(entity, name, err.Error())
		}
		if k != want {
			return nil, invalidf(entity, name, fmt.Sprintf("kind %s, want %s", k, want))
		}
	}
	if len(fd.Paths) == 0 && fd.Default == nil {
		return nil, invalidf(entity, name, "needs paths or a default")
	}
	rule, err := NewFallbackRule(name, want, fd.Paths, fd.Invalid, fd.Default)
	if err != nil {
		return nil, invalidf(entity, name, err.Error())
	}
	return rule, nil
}

func invalidf(entity EntityKind, field, msg string) error {
	return fmt.Errorf("%w: fields.%s.%s: %s", types.ErrInvalidDocument, entity, field, msg)
}
