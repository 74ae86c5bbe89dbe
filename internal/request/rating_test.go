package request

import (
	"errors"
	"testing"

	"github.com/solatis/boorukeeper/internal/types"
)

func TestRatingTable(t *testing.T) {
	table, err := CompileRatingTable([]RatingTagDoc{
		{Ratings: []string{"general"}, Tag: "rating:g"},
		{Ratings: []string{"general", "sensitive"}, Tag: "rating:g,s"},
		{Ratings: []string{"Explicit"}, Tag: "rating:e"},
	})
	if err != nil {
		t.Fatalf("CompileRatingTable() error = %v", err)
	}
	if table.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", table.Len())
	}

	tests := []struct {
		name    string
		sel     types.RatingSet
		wantTag string
		wantOK  bool
	}{
		{name: "empty selection needs no filter", sel: types.NewRatingSet(), wantOK: true},
		{name: "all ratings need no filter", sel: types.NewRatingSet(types.AllRatings...), wantOK: true},
		{name: "single", sel: types.NewRatingSet(types.RatingGeneral), wantTag: "rating:g", wantOK: true},
		{name: "order independent", sel: types.NewRatingSet(types.RatingSensitive, types.RatingGeneral), wantTag: "rating:g,s", wantOK: true},
		{name: "case normalized", sel: types.NewRatingSet(types.RatingExplicit), wantTag: "rating:e", wantOK: true},
		{name: "unsupported combination", sel: types.NewRatingSet(types.RatingGeneral, types.RatingExplicit), wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tag, ok := table.Lookup(tt.sel)
			if tag != tt.wantTag || ok != tt.wantOK {
				t.Errorf("Lookup() = %q, %v; want %q, %v", tag, ok, tt.wantTag, tt.wantOK)
			}
		})
	}
}

func TestCompileRatingTable_Errors(t *testing.T) {
	tests := []struct {
		name string
		docs []RatingTagDoc
	}{
		{name: "unknown rating", docs: []RatingTagDoc{{Ratings: []string{"safe"}, Tag: "rating:s"}}},
		{name: "empty set", docs: []RatingTagDoc{{Tag: "rating:s"}}},
		{name: "duplicate set", docs: []RatingTagDoc{
			{Ratings: []string{"general", "sensitive"}, Tag: "a"},
			{Ratings: []string{"sensitive", "general"}, Tag: "b"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CompileRatingTable(tt.docs); !errors.Is(err, types.ErrInvalidDocument) {
				t.Errorf("CompileRatingTable() error = %v, want ErrInvalidDocument", err)
			}
		})
	}
}
