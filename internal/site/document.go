// internal/site/document.go
package site

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/solatis/boorukeeper/internal/request"
	"github.com/solatis/boorukeeper/internal/rules"
	"github.com/solatis/boorukeeper/internal/types"
	"gopkg.in/yaml.v3"
)

/*
 * Backend documents.
 *
 * One YAML document describes one site completely:
 *
 *	name: danbooru.donmai.us      # website identity of extracted entities
 *	backend: danbooru             # family: danbooru | moebooru | gelbooru | e621
 *	base_url: https://danbooru.donmai.us
 *	limit: 20                     # default page size
 *	max_limit: 200                # caller limits are clamped to this
 *	tag_wildcard: "*"             # appended for prefix tag searches
 *	pagination: {mode: page, first: 1}
 *	rating_tags: [...]            # rating selection -> query tag
 *	fields: {...}                 # rules.FieldsDoc
 *	requests: {...}               # request.RequestsDoc
 *
 * A document that names a backend but declares no fields and no requests
 * inherits everything except name and base_url from that backend's
 * built-in document. Adding a mirror of a known engine is therefore a
 * three-line file.
 */

// Backend is a site engine family.
type Backend string

const (
	BackendDanbooru Backend = "danbooru"
	BackendMoebooru Backend = "moebooru"
	BackendGelbooru Backend = "gelbooru"
	BackendE621     Backend = "e621"
)

// AllBackends lists the known families.
var AllBackends = []Backend{BackendDanbooru, BackendMoebooru, BackendGelbooru, BackendE621}

// ParseBackend validates a backend name.
func ParseBackend(s string) (Backend, bool) {
	b := Backend(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllBackends {
		if b == known {
			return b, true
		}
	}
	return "", false
}

// Document is a backend document as written in YAML.
type Document struct {
	Name        string                 `yaml:"name"`
	Backend     string                 `yaml:"backend"`
	BaseURL     string                 `yaml:"base_url"`
	Limit       int                    `yaml:"limit"`
	MaxLimit    int                    `yaml:"max_limit"`
	TagWildcard string                 `yaml:"tag_wildcard"`
	Pagination  *request.PaginationDoc `yaml:"pagination"`
	RatingTags  []request.RatingTagDoc `yaml:"rating_tags"`
	Fields      rules.FieldsDoc        `yaml:"fields"`
	Requests    request.RequestsDoc    `yaml:"requests"`
}

// defaultLimit applies when a document sets no limit.
const defaultLimit = 20

// LoadDocument decodes one document. Unknown keys are rejected so typos
// fail at load instead of silently dropping a rule.
func LoadDocument(r io.Reader) (Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return Document{}, fmt.Errorf("%w: empty document", types.ErrInvalidDocument)
		}
		return Document{}, fmt.Errorf("%w: %v", types.ErrInvalidDocument, err)
	}
	return doc, nil
}

// inherits reports whether the document relies on its backend's built-in
// rules.
func (d Document) inherits() bool {
	f := d.Fields
	return f.Post == nil && f.Pool == nil && f.Tag == nil && f.User == nil &&
		len(d.Requests.Operations) == 0
}

// withBase fills every rule section from base, keeping d's identity.
func (d Document) withBase(base Document) Document {
	out := base
	out.Name = d.Name
	out.Backend = d.Backend
	if d.BaseURL != "" {
		out.BaseURL = d.BaseURL
	}
	if d.Limit > 0 {
		out.Limit = d.Limit
	}
	if d.MaxLimit > 0 {
		out.MaxLimit = d.MaxLimit
	}
	if d.TagWildcard != "" {
		out.TagWildcard = d.TagWildcard
	}
	if len(d.RatingTags) > 0 {
		out.RatingTags = d.RatingTags
	}
	return out
}

// Site is a compiled, read-only backend document.
type Site struct {
	Name        types.Website
	Backend     Backend
	BaseURL     string
	Limit       int
	MaxLimit    int
	TagWildcard string
	Rules       *rules.RuleSet
	Templates   *request.Templates
	Paginator   request.Paginator
	Ratings     request.RatingTable
}

// Compile validates doc and compiles its rule sections.
func Compile(doc Document) (*Site, error) {
	name := strings.TrimSpace(doc.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", types.ErrInvalidDocument)
	}
	wrap := func(err error) error {
		return fmt.Errorf("site %s: %w", name, err)
	}

	backend, ok := ParseBackend(doc.Backend)
	if !ok {
		return nil, wrap(fmt.Errorf("%w: %q", types.ErrUnknownBackend, doc.Backend))
	}

	base, err := url.Parse(doc.BaseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, wrap(fmt.Errorf("%w: base_url %q must be an absolute http(s) URL", types.ErrInvalidDocument, doc.BaseURL))
	}

	if doc.Limit < 0 || doc.MaxLimit < 0 {
		return nil, wrap(fmt.Errorf("%w: limit and max_limit must not be negative", types.ErrInvalidDocument))
	}
	if doc.MaxLimit > 0 && doc.Limit > doc.MaxLimit {
		return nil, wrap(fmt.Errorf("%w: limit %d exceeds max_limit %d", types.ErrInvalidDocument, doc.Limit, doc.MaxLimit))
	}

	rs, err := rules.CompileRuleSet(doc.Fields)
	if err != nil {
		return nil, wrap(err)
	}
	tmpls, err := request.CompileTemplates(doc.Requests, rs)
	if err != nil {
		return nil, wrap(err)
	}
	if len(tmpls.Operations()) == 0 {
		return nil, wrap(fmt.Errorf("%w: no operations", types.ErrInvalidDocument))
	}

	var pdoc request.PaginationDoc
	if doc.Pagination != nil {
		pdoc = *doc.Pagination
	}
	pag, err := request.CompilePaginator(pdoc)
	if err != nil {
		return nil, wrap(fmt.Errorf("%w: %v", types.ErrInvalidDocument, err))
	}

	ratings, err := request.CompileRatingTable(doc.RatingTags)
	if err != nil {
		return nil, wrap(err)
	}

	s := &Site{
		Name:        types.Website(name),
		Backend:     backend,
		BaseURL:     strings.TrimSuffix(doc.BaseURL, "/"),
		Limit:       doc.Limit,
		MaxLimit:    doc.MaxLimit,
		TagWildcard: doc.TagWildcard,
		Rules:       rs,
		Templates:   tmpls,
		Paginator:   pag,
		Ratings:     ratings,
	}
	if s.Limit == 0 {
		s.Limit = defaultLimit
		if s.MaxLimit > 0 && s.Limit > s.MaxLimit {
			s.Limit = s.MaxLimit
		}
	}
	if s.TagWildcard == "" {
		s.TagWildcard = "*"
	}
	return s, nil
}

// PageSize resolves a caller limit: zero selects the site default and
// values above max_limit are clamped.
func (s *Site) PageSize(n int) int {
	if n <= 0 {
		n = s.Limit
	}
	if s.MaxLimit > 0 && n > s.MaxLimit {
		n = s.MaxLimit
	}
	return n
}

// Supports reports whether the site defines op.
func (s *Site) Supports(op request.Operation) bool {
	_, ok := s.Templates.Get(op)
	return ok
}
