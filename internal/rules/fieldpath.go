// internal/rules/fieldpath.go
package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/solatis/boorukeeper/internal/types"
)

/*
 * Field path compilation and resolution for JSON documents.
 *
 * Path expressions are compiled once when a backend document is loaded and
 * resolved many times per response (once per field per entity). Grammar:
 *
 *	$                   root
 *	.key  ['key']       object member
 *	[3]  [-1]           array index (negative counts from the end)
 *	[%d]                positional slot, filled from Resolve's args
 *	[*]                 every array element / every object value
 *	[?(@.k=='v')]       array elements whose member k equals v (== or !=)
 *	.length()           terminal: element count of the current value
 *
 * Fan-out semantics: wildcards and filters collect ALL matches (unlike a
 * first-match lookup) because tag lists are assembled from them. A fanned
 * result is returned as []any; scalar coercion later takes the first
 * element. length() after a fan-out counts the matches.
 *
 * Object wildcards iterate keys in sorted order so results are stable
 * across runs (map iteration order is random).
 *
 * Limits: MaxPathDepth segments and MaxNestedWildcards fan-out segments,
 * enforced at compile time.
 */

// Path is a compiled path expression.
type Path struct {
	Expr        string
	Segments    []types.PathSegment
	Positionals int // number of %d slots
}

// String returns the source expression.
func (p Path) String() string {
	return p.Expr
}

// ResolveResult contains the resolved value.
type ResolveResult struct {
	Value any  // resolved value (nil if not found or JSON null)
	Found bool // true if path resolved to a value
	Multi bool // true if Value is a fan-out []any
}

// CompilePath parses a path expression.
// Returns ErrInvalidPath, ErrPathTooDeep or ErrTooManyWildcards.
func CompilePath(expr string) (Path, error) {
	p := &pathParser{src: expr}
	segs, err := p.parse()
	if err != nil {
		return Path{}, fmt.Errorf("%w: %q: %v", types.ErrInvalidPath, expr, err)
	}

	if len(segs) > types.MaxPathDepth {
		return Path{}, types.ErrPathTooDeep
	}
	fanouts := 0
	for i, seg := range segs {
		if seg.FansOut() {
			fanouts++
		}
		if seg.Length && i != len(segs)-1 {
			return Path{}, fmt.Errorf("%w: %q: length() must be last", types.ErrInvalidPath, expr)
		}
	}
	if fanouts > types.MaxNestedWildcards {
		return Path{}, types.ErrTooManyWildcards
	}

	return Path{Expr: expr, Segments: segs, Positionals: p.slots}, nil
}

// MustCompilePath is CompilePath for expressions known at build time.
func MustCompilePath(expr string) Path {
	p, err := CompilePath(expr)
	if err != nil {
		panic(err)
	}
	return p
}

type pathParser struct {
	src   string
	pos   int
	slots int
}

func (p *pathParser) parse() ([]types.PathSegment, error) {
	if !strings.HasPrefix(p.src, "$") {
		return nil, fmt.Errorf("must start with $")
	}
	p.pos = 1

	var segs []types.PathSegment
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case '.':
			p.pos++
			if strings.HasPrefix(p.src[p.pos:], "length()") {
				p.pos += len("length()")
				segs = append(segs, types.PathSegment{Length: true})
				continue
			}
			key := p.readKey()
			if key == "" {
				return nil, fmt.Errorf("empty key at offset %d", p.pos)
			}
			segs = append(segs, types.PathSegment{Key: key})
		case '[':
			seg, err := p.parseBracket()
			if err != nil {
				return nil, err
			}
			segs = append(segs, seg)
		default:
			return nil, fmt.Errorf("unexpected %q at offset %d", p.src[p.pos], p.pos)
		}
	}
	return segs, nil
}

func (p *pathParser) readKey() string {
	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] != '.' && p.src[p.pos] != '[' {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *pathParser) parseBracket() (types.PathSegment, error) {
	end := strings.IndexByte(p.src[p.pos:], ']')
	if end < 0 {
		return types.PathSegment{}, fmt.Errorf("unclosed [ at offset %d", p.pos)
	}
	// Filters may contain ']' inside quoted values; find the ")]" closer instead.
	if strings.HasPrefix(p.src[p.pos:], "[?(") {
		closer := strings.Index(p.src[p.pos:], ")]")
		if closer < 0 {
			return types.PathSegment{}, fmt.Errorf("unclosed filter at offset %d", p.pos)
		}
		body := p.src[p.pos+3 : p.pos+closer]
		p.pos += closer + 2
		f, err := parseFilter(body)
		if err != nil {
			return types.PathSegment{}, err
		}
		return types.PathSegment{Filter: f}, nil
	}

	body := p.src[p.pos+1 : p.pos+end]
	p.pos += end + 1

	switch {
	case body == "*":
		return types.PathSegment{Wildcard: true}, nil
	case body == "%d":
		seg := types.PathSegment{Positional: p.slots, IsPositional: true}
		p.slots++
		return seg, nil
	case len(body) >= 2 && (body[0] == '\'' || body[0] == '"') && body[len(body)-1] == body[0]:
		return types.PathSegment{Key: body[1 : len(body)-1]}, nil
	default:
		n, err := strconv.Atoi(strings.TrimSpace(body))
		if err != nil {
			return types.PathSegment{}, fmt.Errorf("bad index %q", body)
		}
		return types.PathSegment{Index: n, IsIndex: true}, nil
	}
}

// parseFilter parses "@.key==value" or "@.key!=value".
func parseFilter(body string) (*types.Filter, error) {
	body = strings.TrimSpace(body)
	if !strings.HasPrefix(body, "@.") {
		return nil, fmt.Errorf("filter must start with @.: %q", body)
	}
	body = body[2:]

	op := types.FilterEq
	idx := strings.Index(body, "==")
	if neq := strings.Index(body, "!="); neq >= 0 && (idx < 0 || neq < idx) {
		op = types.FilterNeq
		idx = neq
	}
	if idx < 0 {
		return nil, fmt.Errorf("filter needs == or !=: %q", body)
	}

	key := strings.TrimSpace(body[:idx])
	raw := strings.TrimSpace(body[idx+2:])
	if key == "" || raw == "" {
		return nil, fmt.Errorf("incomplete filter: %q", body)
	}

	var value any
	if len(raw) >= 2 && (raw[0] == '\'' || raw[0] == '"') && raw[len(raw)-1] == raw[0] {
		value = raw[1 : len(raw)-1]
	} else {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("filter value must be quoted string or number: %q", raw)
		}
		value = f
	}
	return &types.Filter{Key: key, Op: op, Value: value}, nil
}

// DecodeJSON decodes a response body into the generic document form the
// resolver walks. Numbers stay json.Number so large ids keep precision.
func DecodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Resolve walks doc following the compiled path. args fill positional
// slots in order. Returns ErrFieldNotFound when the path does not exist
// and ErrMissingPositional when args are short.
func Resolve(path Path, doc any, args ...int) (ResolveResult, error) {
	if len(args) < path.Positionals {
		return ResolveResult{}, types.ErrMissingPositional
	}

	current := []any{doc}
	fanned := false

	for _, seg := range path.Segments {
		if seg.Length {
			if fanned {
				return ResolveResult{Value: int64(len(current)), Found: true}, nil
			}
			n, ok := lengthOf(current[0])
			if !ok {
				return ResolveResult{}, types.ErrFieldNotFound
			}
			return ResolveResult{Value: n, Found: true}, nil
		}

		next := make([]any, 0, len(current))
		for _, v := range current {
			next = step(seg, v, args, next)
		}
		if seg.FansOut() {
			fanned = true
		}
		if len(next) == 0 {
			return ResolveResult{}, types.ErrFieldNotFound
		}
		current = next
	}

	if fanned {
		return ResolveResult{Value: current, Found: true, Multi: true}, nil
	}
	return ResolveResult{Value: current[0], Found: true}, nil
}

// step applies one segment to one value and appends the matches to out.
func step(seg types.PathSegment, current any, args []int, out []any) []any {
	switch v := current.(type) {
	case map[string]any:
		switch {
		case seg.Wildcard:
			// Sort keys for deterministic iteration order
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				out = append(out, v[k])
			}
		case seg.Key != "":
			if val, ok := v[seg.Key]; ok {
				out = append(out, val)
			}
		}
		// Index, positional and filter segments never match objects.
		return out

	case []any:
		switch {
		case seg.Wildcard:
			return append(out, v...)
		case seg.Filter != nil:
			for _, elem := range v {
				if matchesFilter(seg.Filter, elem) {
					out = append(out, elem)
				}
			}
			return out
		case seg.IsIndex || seg.IsPositional:
			i := seg.Index
			if seg.IsPositional {
				i = args[seg.Positional]
			}
			if i < 0 {
				i += len(v)
			}
			if i >= 0 && i < len(v) {
				out = append(out, v[i])
			}
		}
		return out

	default:
		// Null or scalar value but path continues
		return out
	}
}

func matchesFilter(f *types.Filter, elem any) bool {
	obj, ok := elem.(map[string]any)
	if !ok {
		return false
	}
	raw, ok := obj[f.Key]
	if !ok {
		return false
	}

	var equal bool
	switch want := f.Value.(type) {
	case string:
		got, err := coerceText(raw)
		equal = err == nil && got.Value.(string) == want
	case float64:
		got, err := coerceFloat(raw)
		equal = err == nil && got.Value.(float64) == want
	}

	if f.Op == types.FilterNeq {
		return !equal
	}
	return equal
}

// lengthOf counts array elements only. An object where an array was
// expected is an error payload, not a collection.
func lengthOf(v any) (int64, bool) {
	if t, ok := v.([]any); ok {
		return int64(len(t)), true
	}
	return 0, false
}
