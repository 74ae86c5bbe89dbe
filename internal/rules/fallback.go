package rules

import (
	"errors"
	"slices"
	"time"
)

// FallbackRule is an ordered chain of path expressions for one field.
// The first path that resolves, coerces, and is not an invalid value wins;
// otherwise Default applies. HasDefault=false leaves the field absent.
type FallbackRule struct {
	Name       string
	Kind       Kind
	Paths      []Path
	Invalid    []any // already coerced to Kind
	Default    any   // already coerced to Kind
	HasDefault bool
}

// Resolve evaluates the chain against doc. args fill %d slots in every
// path. Path order is the only tie-break.
func (r *FallbackRule) Resolve(doc any, args ...int) (any, bool) {
	if r == nil {
		return nil, false
	}
	for _, p := range r.Paths {
		res, err := Resolve(p, doc, args...)
		if err != nil || !res.Found {
			continue
		}
		c, err := Coerce(res.Value, r.Kind)
		if err != nil || c.IsNull {
			continue
		}
		if r.isInvalid(c.Value) {
			continue
		}
		return c.Value, true
	}
	if r.HasDefault {
		return r.Default, true
	}
	return nil, false
}

func (r *FallbackRule) isInvalid(v any) bool {
	for _, inv := range r.Invalid {
		if valuesEqual(v, inv) {
			return true
		}
	}
	return false
}

// valuesEqual compares two values of the same Kind.
func valuesEqual(a, b any) bool {
	switch av := a.(type) {
	case []string:
		bv, ok := b.([]string)
		return ok && slices.Equal(av, bv)
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	default:
		return a == b
	}
}

// Int resolves a KindInt rule.
func (r *FallbackRule) Int(doc any, args ...int) (int64, bool) {
	v, ok := r.Resolve(doc, args...)
	if !ok {
		return 0, false
	}
	n, ok := v.(int64)
	return n, ok
}

// Float resolves a KindFloat rule.
func (r *FallbackRule) Float(doc any, args ...int) (float64, bool) {
	v, ok := r.Resolve(doc, args...)
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// String resolves a KindString rule.
func (r *FallbackRule) String(doc any, args ...int) (string, bool) {
	v, ok := r.Resolve(doc, args...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Bool resolves a KindBool rule.
func (r *FallbackRule) Bool(doc any, args ...int) (bool, bool) {
	v, ok := r.Resolve(doc, args...)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Time resolves a KindTimestamp rule.
func (r *FallbackRule) Time(doc any, args ...int) (time.Time, bool) {
	v, ok := r.Resolve(doc, args...)
	if !ok {
		return time.Time{}, false
	}
	t, ok := v.(time.Time)
	return t, ok
}

// Strings resolves a KindStrings rule.
func (r *FallbackRule) Strings(doc any, args ...int) ([]string, bool) {
	v, ok := r.Resolve(doc, args...)
	if !ok {
		return nil, false
	}
	s, ok := v.([]string)
	return s, ok
}

// errKindMismatch is returned by NewFallbackRule when a default or invalid
// value cannot be coerced to the rule's kind.
var errKindMismatch = errors.New("value does not coerce to field kind")

// NewFallbackRule compiles path expressions and coerces the invalid and
// default values to kind. A nil def means "no default".
func NewFallbackRule(name string, kind Kind, paths []string, invalid []any, def any) (*FallbackRule, error) {
	r := &FallbackRule{Name: name, Kind: kind}
	for _, expr := range paths {
		p, err := CompilePath(expr)
		if err != nil {
			return nil, err
		}
		r.Paths = append(r.Paths, p)
	}
	for _, raw := range invalid {
		c, err := Coerce(raw, kind)
		if err != nil {
			return nil, errKindMismatch
		}
		if c.IsNull {
			continue
		}
		r.Invalid = append(r.Invalid, c.Value)
	}
	if def != nil {
		c, err := Coerce(def, kind)
		if err != nil || c.IsNull {
			return nil, errKindMismatch
		}
		r.Default = c.Value
		r.HasDefault = true
	}
	return r, nil
}
