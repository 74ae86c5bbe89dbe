// internal/request/match.go
package request

import (
	"strings"
)

/*
 * Illegal-tag matching.
 *
 * A backend strips caller tags that collide with concepts it encodes some
 * other way (rating, ordering, pool membership). Patterns are plain strings
 * with a match operator; no regular expressions, so documents stay easy to
 * audit and matching stays linear.
 *
 * Operators:
 *   - equal: whole tag equals the pattern
 *   - prefix/suffix: tag starts/ends with the pattern
 *   - contains: pattern occurs anywhere in the tag
 *
 * Matching is case-insensitive; every backend treats tags that way.
 */

// MatchOp is the comparison a TagPattern applies.
type MatchOp int

const (
	MatchEqual MatchOp = iota
	MatchPrefix
	MatchSuffix
	MatchContains
)

func (op MatchOp) String() string {
	switch op {
	case MatchEqual:
		return "equal"
	case MatchPrefix:
		return "prefix"
	case MatchSuffix:
		return "suffix"
	case MatchContains:
		return "contains"
	default:
		return "unknown"
	}
}

// TagPattern matches tags by one operator. Value is stored lowercased.
type TagPattern struct {
	Op    MatchOp
	Value string
}

// Matches reports whether tag matches the pattern.
func (p TagPattern) Matches(tag string) bool {
	tag = strings.ToLower(tag)
	switch p.Op {
	case MatchEqual:
		return tag == p.Value
	case MatchPrefix:
		return strings.HasPrefix(tag, p.Value)
	case MatchSuffix:
		return strings.HasSuffix(tag, p.Value)
	case MatchContains:
		return strings.Contains(tag, p.Value)
	default:
		return false
	}
}

// TagFilter is a set of patterns; a tag is illegal if any pattern matches.
type TagFilter []TagPattern

// Matches reports whether any pattern matches tag.
func (f TagFilter) Matches(tag string) bool {
	for _, p := range f {
		if p.Matches(tag) {
			return true
		}
	}
	return false
}

// Strip returns the tags no pattern matches, preserving order.
func (f TagFilter) Strip(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if !f.Matches(t) {
			out = append(out, t)
		}
	}
	return out
}

// IllegalTagsDoc is the `illegal_tags` block of a backend document.
type IllegalTagsDoc struct {
	Equal    []string `yaml:"equal"`
	Prefix   []string `yaml:"prefix"`
	Suffix   []string `yaml:"suffix"`
	Contains []string `yaml:"contains"`
}

// Compile converts the document block into a TagFilter. Empty pattern
// strings are dropped: an empty prefix would match every tag.
func (d IllegalTagsDoc) Compile() TagFilter {
	var f TagFilter
	add := func(op MatchOp, values []string) {
		for _, v := range values {
			v = strings.ToLower(strings.TrimSpace(v))
			if v != "" {
				f = append(f, TagPattern{Op: op, Value: v})
			}
		}
	}
	add(MatchEqual, d.Equal)
	add(MatchPrefix, d.Prefix)
	add(MatchSuffix, d.Suffix)
	add(MatchContains, d.Contains)
	return f
}
