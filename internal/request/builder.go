// internal/request/builder.go
package request

import (
	"fmt"
	"net/url"
	"strings"
)

/*
 * URL building.
 *
 * Build turns a compiled Template plus a parameter map and caller tags
 * into a URL string:
 *   1. Assemble tags: trim and dedupe caller tags, strip document-level
 *      illegal patterns, then operation-level patterns, then append each
 *      default tag (placeholder-filled, split on whitespace) unless an
 *      equal tag is already present.
 *   2. Escape each tag individually and join with "+" as the {{tags}} value.
 *   3. Fill the path and every param value. Values substituted into the
 *      query are escaped; literal template text is kept as written.
 *   4. Emit params in declared order, omitting any whose value is empty.
 *
 * Output is a pure function of its inputs: same template, params and tags
 * yield byte-identical URLs.
 */

// FillMode controls unresolved placeholders.
type FillMode int

const (
	// Retain leaves unresolved {{key}} tokens in place.
	Retain FillMode = iota
	// Drop replaces unresolved tokens with the empty string.
	Drop
)

// TagSeparator joins tags in the tags parameter.
const TagSeparator = "+"

// Fill substitutes {{key}} tokens from params.
func Fill(s string, params map[string]string, mode FillMode) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	return placeholderRe.ReplaceAllStringFunc(s, func(tok string) string {
		name := placeholderRe.FindStringSubmatch(tok)[1]
		if v, ok := params[name]; ok {
			return v
		}
		if mode == Retain {
			return tok
		}
		return ""
	})
}

// AssembleTags applies illegal-tag stripping and default-tag injection.
// Default tags are backend-authored and are not subject to the filters.
func AssembleTags(global TagFilter, tmpl *Template, params map[string]string, tags []string) []string {
	out := make([]string, 0, len(tags)+len(tmpl.DefaultTags))
	present := make(map[string]bool, cap(out))

	add := func(tag string) {
		key := strings.ToLower(tag)
		if present[key] {
			return
		}
		present[key] = true
		out = append(out, tag)
	}

	// A space inside a caller tag escapes to the separator, so each word is
	// filtered as its own tag.
	for _, raw := range tags {
		for _, t := range strings.Fields(raw) {
			if global.Matches(t) || tmpl.Illegal.Matches(t) {
				continue
			}
			add(t)
		}
	}
	for _, d := range tmpl.DefaultTags {
		for _, t := range strings.Fields(Fill(d, params, Drop)) {
			add(t)
		}
	}
	return out
}

// Build returns the request URL for tmpl against baseURL.
// params must not contain "tags"; tags are passed separately.
func Build(baseURL string, global TagFilter, tmpl *Template, params map[string]string, tags []string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("invalid base URL %q", baseURL)
	}

	assembled := AssembleTags(global, tmpl, params, tags)
	escaped := make([]string, len(assembled))
	for i, t := range assembled {
		escaped[i] = url.QueryEscape(t)
	}

	queryParams := make(map[string]string, len(params)+1)
	pathParams := make(map[string]string, len(params))
	for k, v := range params {
		queryParams[k] = url.QueryEscape(v)
		pathParams[k] = url.PathEscape(v)
	}
	queryParams["tags"] = strings.Join(escaped, TagSeparator)

	var b strings.Builder
	b.WriteString(strings.TrimSuffix(base.Scheme+"://"+base.Host+base.Path, "/"))
	b.WriteString(Fill(tmpl.Path, pathParams, Drop))

	sep := byte('?')
	for _, p := range tmpl.Params {
		v := Fill(p.Value, queryParams, Drop)
		if v == "" {
			continue
		}
		b.WriteByte(sep)
		sep = '&'
		b.WriteString(url.QueryEscape(p.Key))
		b.WriteByte('=')
		b.WriteString(v)
	}
	return b.String(), nil
}
