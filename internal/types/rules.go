// internal/types/rules.go
package types

/*
 * Path types for declarative field extraction.
 *
 * Provides PathSegment and Filter used by internal/rules for compilation
 * and resolution of path expressions such as
 *
 *	$[%d].media_asset.variants[?(@.type=='720x720')].url
 *	$.posts[%d].tags[*][*]
 *	$.post.length()
 *
 * Key types:
 *   - PathSegment: one component of a path (key, index, positional slot,
 *     wildcard, filter, or the terminal length() function)
 *   - Filter: equality predicate applied to each element of a collection
 *
 * Dependencies: None.
 */

// FilterOp is the comparison used by a filter segment.
type FilterOp int

const (
	FilterEq FilterOp = iota
	FilterNeq
)

// Filter keeps collection elements whose Key field compares to Value.
// Value is the literal from the expression (string or float64).
type Filter struct {
	Key   string
	Op    FilterOp
	Value any
}

// PathSegment represents one component of a field path.
// Exactly one of the selector fields is meaningful per segment.
type PathSegment struct {
	Key          string  // object key
	Index        int     // array index (when IsIndex)
	IsIndex      bool    // disambiguates Index=0 from unset
	Positional   int     // positional argument slot (when IsPositional)
	IsPositional bool    // index taken from the caller's positional args
	Wildcard     bool    // every element / every object value
	Filter       *Filter // elements matching the predicate
	Length       bool    // terminal length() of the current value
}

// FansOut reports whether the segment can produce multiple results.
func (s PathSegment) FansOut() bool {
	return s.Wildcard || s.Filter != nil
}
