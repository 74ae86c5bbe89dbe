// internal/request/template.go
package request

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/solatis/boorukeeper/internal/rules"
	"github.com/solatis/boorukeeper/internal/types"
	"gopkg.in/yaml.v3"
)

/*
 * Request templates.
 *
 * The `requests` section of a backend document declares, per operation,
 * how to build the outgoing URL and how to read the response:
 *
 *	requests:
 *	  illegal_tags: {prefix: ["rating:"]}     # applies to every operation
 *	  operations:
 *	    posts:
 *	      path: /posts.json
 *	      params:                             # order is preserved
 *	        page: "{{page}}"
 *	        limit: "{{limit}}"
 *	        tags: "{{tags}}"
 *	      default_tags: ["{{rating}}"]
 *	      illegal_tags: {equal: [order:random]}
 *	      only_one_page: false
 *	      root: $.posts                       # rebase before extraction
 *	      client_rating_filter: false
 *
 * Templates are compiled once at document load and are read-only after.
 */

// Operation names a request the adapter can issue.
type Operation string

const (
	OpPosts        Operation = "posts"
	OpPopularDay   Operation = "popular_day"
	OpPopularWeek  Operation = "popular_week"
	OpPopularMonth Operation = "popular_month"
	OpPoolPosts    Operation = "pool_posts"
	OpPools        Operation = "pools"
	OpTags         Operation = "tags"
	OpUser         Operation = "user"
)

// operationEntity is the field group each operation extracts with by default.
var operationEntity = map[Operation]rules.EntityKind{
	OpPosts:        rules.EntityPost,
	OpPopularDay:   rules.EntityPost,
	OpPopularWeek:  rules.EntityPost,
	OpPopularMonth: rules.EntityPost,
	OpPoolPosts:    rules.EntityPost,
	OpPools:        rules.EntityPool,
	OpTags:         rules.EntityTag,
	OpUser:         rules.EntityUser,
}

// Param is one query parameter with a templated value.
type Param struct {
	Key   string
	Value string
}

// Params is an ordered parameter list. In YAML it is written as a mapping;
// declaration order is kept so built URLs are reproducible.
type Params []Param

// UnmarshalYAML reads a mapping node pair by pair to keep key order.
func (p *Params) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: params must be a mapping", node.Line)
	}
	out := make(Params, 0, len(node.Content)/2)
	seen := make(map[string]bool, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: param %q must be a scalar", val.Line, key.Value)
		}
		if seen[key.Value] {
			return fmt.Errorf("line %d: duplicate param %q", key.Line, key.Value)
		}
		seen[key.Value] = true
		out = append(out, Param{Key: key.Value, Value: val.Value})
	}
	*p = out
	return nil
}

// PaginationDoc selects how an operation pages.
type PaginationDoc struct {
	Mode   string `yaml:"mode"`   // page | cursor
	First  int    `yaml:"first"`  // page mode: number of the first page
	Before string `yaml:"before"` // cursor mode: prefix for "older than"
	After  string `yaml:"after"`  // cursor mode: prefix for "newer than"
}

// TemplateDoc is one operation as written in a backend document.
type TemplateDoc struct {
	Path               string         `yaml:"path"`
	Params             Params         `yaml:"params"`
	DefaultTags        []string       `yaml:"default_tags"`
	IllegalTags        IllegalTagsDoc `yaml:"illegal_tags"`
	OnlyOnePage        bool           `yaml:"only_one_page"`
	Root               string         `yaml:"root"`
	ClientRatingFilter bool           `yaml:"client_rating_filter"`
	Entity             string         `yaml:"entity"`
	Pagination         *PaginationDoc `yaml:"pagination"`
}

// RequestsDoc is the `requests` section of a backend document.
type RequestsDoc struct {
	IllegalTags IllegalTagsDoc            `yaml:"illegal_tags"`
	Operations  map[Operation]TemplateDoc `yaml:"operations"`
}

// Template is a compiled request template.
type Template struct {
	Op                 Operation
	Path               string
	Params             Params
	DefaultTags        []string
	Illegal            TagFilter // operation-specific patterns
	OnlyOnePage        bool
	Root               *rules.Path // nil: extract from the document root
	ClientRatingFilter bool
	Entity             rules.EntityKind
	Paginator          *Paginator // nil: use the document paginator
}

// Templates holds every compiled operation of one backend.
type Templates struct {
	Illegal TagFilter // applies to every operation, before Template.Illegal
	ops     map[Operation]*Template
}

// Get returns the template for op.
func (t *Templates) Get(op Operation) (*Template, bool) {
	if t == nil {
		return nil, false
	}
	tmpl, ok := t.ops[op]
	return tmpl, ok
}

// Operations lists the supported operations in sorted order.
func (t *Templates) Operations() []Operation {
	if t == nil {
		return nil
	}
	ops := make([]Operation, 0, len(t.ops))
	for op := range t.ops {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// CompileTemplates validates and compiles the requests section. The
// RuleSet must define the field group every operation extracts with.
func CompileTemplates(doc RequestsDoc, rs *rules.RuleSet) (*Templates, error) {
	t := &Templates{
		Illegal: doc.IllegalTags.Compile(),
		ops:     make(map[Operation]*Template, len(doc.Operations)),
	}
	for op, td := range doc.Operations {
		tmpl, err := compileTemplate(op, td, t.Illegal, rs)
		if err != nil {
			return nil, err
		}
		t.ops[op] = tmpl
	}
	return t, nil
}

func compileTemplate(op Operation, td TemplateDoc, global TagFilter, rs *rules.RuleSet) (*Template, error) {
	entity, known := operationEntity[op]
	if !known {
		return nil, templatef(op, "unknown operation")
	}
	if td.Entity != "" {
		entity = rules.EntityKind(td.Entity)
	}
	if rs.Group(entity) == nil {
		return nil, templatef(op, fmt.Sprintf("no fields.%s group to extract with", entity))
	}
	if !strings.HasPrefix(td.Path, "/") {
		return nil, templatef(op, "path must start with /")
	}

	tmpl := &Template{
		Op:                 op,
		Path:               td.Path,
		Params:             td.Params,
		Illegal:            td.IllegalTags.Compile(),
		OnlyOnePage:        td.OnlyOnePage,
		ClientRatingFilter: td.ClientRatingFilter,
		Entity:             entity,
	}

	for _, raw := range td.DefaultTags {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		// A default matching a document-wide pattern would contradict it on
		// every request. Operation patterns exist to stop callers overriding
		// what the operation injects, so defaults may match those. Only the
		// literal part can be checked before parameters are known.
		literal := placeholderRe.ReplaceAllString(raw, "")
		if literal != "" && global.Matches(literal) {
			return nil, templatef(op, fmt.Sprintf("default tag %q matches an illegal pattern", raw))
		}
		tmpl.DefaultTags = append(tmpl.DefaultTags, raw)
	}

	if td.Root != "" {
		root, err := rules.CompilePath(td.Root)
		if err != nil {
			return nil, templatef(op, err.Error())
		}
		if root.Positionals > 0 {
			return nil, templatef(op, "root must not contain %d slots")
		}
		tmpl.Root = &root
	}

	if td.Pagination != nil {
		p, err := CompilePaginator(*td.Pagination)
		if err != nil {
			return nil, templatef(op, err.Error())
		}
		tmpl.Paginator = &p
	}
	return tmpl, nil
}

// Placeholders lists the distinct placeholder names the template uses,
// in first-use order. Used by callers to report missing parameters.
func (t *Template) Placeholders() []string {
	var names []string
	seen := make(map[string]bool)
	collect := func(s string) {
		for _, m := range placeholderRe.FindAllStringSubmatch(s, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				names = append(names, m[1])
			}
		}
	}
	collect(t.Path)
	for _, p := range t.Params {
		collect(p.Value)
	}
	for _, d := range t.DefaultTags {
		collect(d)
	}
	return names
}

func templatef(op Operation, msg string) error {
	return fmt.Errorf("%w: requests.operations.%s: %s", types.ErrInvalidDocument, op, msg)
}
