package request

import (
	"fmt"

	"github.com/solatis/boorukeeper/internal/types"
)

// RatingTagDoc maps one exact rating selection to the tag text that asks
// the backend for it. Tag may hold several whitespace-separated tags.
type RatingTagDoc struct {
	Ratings []string `yaml:"ratings"`
	Tag     string   `yaml:"tag"`
}

type ratingEntry struct {
	set types.RatingSet
	tag string
}

// RatingTable is the compiled `rating_tags` section. Selections absent
// from the table are unsupported: the caller gets no server-side filter
// and must filter client-side instead.
type RatingTable struct {
	entries []ratingEntry
}

// CompileRatingTable validates rating names and rejects duplicate sets.
func CompileRatingTable(docs []RatingTagDoc) (RatingTable, error) {
	var t RatingTable
	for i, d := range docs {
		set := types.NewRatingSet()
		for _, name := range d.Ratings {
			r, ok := types.ParseRating(name)
			if !ok {
				return RatingTable{}, fmt.Errorf("%w: rating_tags[%d]: unknown rating %q", types.ErrInvalidDocument, i, name)
			}
			set[r] = struct{}{}
		}
		if len(set) == 0 {
			return RatingTable{}, fmt.Errorf("%w: rating_tags[%d]: empty rating set", types.ErrInvalidDocument, i)
		}
		for _, e := range t.entries {
			if e.set.Equal(set) {
				return RatingTable{}, fmt.Errorf("%w: rating_tags[%d]: duplicate rating set %v", types.ErrInvalidDocument, i, set.Sorted())
			}
		}
		t.entries = append(t.entries, ratingEntry{set: set, tag: d.Tag})
	}
	return t, nil
}

// Lookup returns the tag text for an exact selection. An empty selection
// or one covering every rating needs no filter and reports ("", true).
func (t RatingTable) Lookup(sel types.RatingSet) (string, bool) {
	if len(sel) == 0 || sel.Equal(types.NewRatingSet(types.AllRatings...)) {
		return "", true
	}
	for _, e := range t.entries {
		if e.set.Equal(sel) {
			return e.tag, true
		}
	}
	return "", false
}

// Len is the number of supported selections.
func (t RatingTable) Len() int {
	return len(t.entries)
}
