// Package types provides the normalized domain model shared across
// boorukeeper components.
//
// Entities are immutable value records created fresh per extraction. They
// carry no reference to the rule documents that produced them. Identity is
// always (website, external id); callers merge by key with MergeByKey.
package types

import (
	"path"
	"sort"
	"strings"
	"time"
)

// Website names the backend document an entity was extracted with
// (e.g. "danbooru"). String alias keeps JSON and SQL representation plain.
type Website string

// EntityKey is the stable identity of a post, pool or user.
type EntityKey struct {
	Website Website `json:"website"`
	ID      int64   `json:"id"`
}

// TagKey is the stable identity of a tag. Tags are identified by name;
// the numeric external id is informational only.
type TagKey struct {
	Website Website `json:"website"`
	Name    string  `json:"name"`
}

// Rating is the normalized content rating of a post.
type Rating string

const (
	RatingUnknown      Rating = ""
	RatingGeneral      Rating = "general"
	RatingSensitive    Rating = "sensitive"
	RatingQuestionable Rating = "questionable"
	RatingExplicit     Rating = "explicit"
)

// AllRatings lists known ratings in ascending explicitness.
var AllRatings = []Rating{RatingGeneral, RatingSensitive, RatingQuestionable, RatingExplicit}

// ParseRating validates a rating name.
func ParseRating(s string) (Rating, bool) {
	r := Rating(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllRatings {
		if r == known {
			return r, true
		}
	}
	return RatingUnknown, false
}

// RatingSet is the set of ratings the caller selected.
type RatingSet map[Rating]struct{}

// NewRatingSet builds a set from the given ratings.
func NewRatingSet(ratings ...Rating) RatingSet {
	s := make(RatingSet, len(ratings))
	for _, r := range ratings {
		s[r] = struct{}{}
	}
	return s
}

// Has reports whether r is selected.
func (s RatingSet) Has(r Rating) bool {
	_, ok := s[r]
	return ok
}

// Equal reports whether both sets hold exactly the same ratings.
func (s RatingSet) Equal(other RatingSet) bool {
	if len(s) != len(other) {
		return false
	}
	for r := range s {
		if !other.Has(r) {
			return false
		}
	}
	return true
}

// Sorted returns the ratings in AllRatings order.
func (s RatingSet) Sorted() []Rating {
	out := make([]Rating, 0, len(s))
	for _, r := range AllRatings {
		if s.Has(r) {
			out = append(out, r)
		}
	}
	return out
}

// Quality selects one of the media variants of a post.
type Quality string

const (
	QualityPreview  Quality = "preview"
	QualitySample   Quality = "sample"
	QualityLarge    Quality = "large"
	QualityOriginal Quality = "original"
)

// AllQualities lists variants from smallest to largest.
var AllQualities = []Quality{QualityPreview, QualitySample, QualityLarge, QualityOriginal}

// ParseQuality validates a quality name.
func ParseQuality(s string) (Quality, bool) {
	q := Quality(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllQualities {
		if q == known {
			return q, true
		}
	}
	return "", false
}

// FileKind classifies the media behind a post.
type FileKind string

const (
	FileKindUnknown  FileKind = "unknown"
	FileKindImage    FileKind = "image"
	FileKindAnimated FileKind = "animated"
	FileKindVideo    FileKind = "video"
	FileKindFlash    FileKind = "flash"
)

// FileKindFromExt maps a file extension (with or without the dot) to a kind.
func FileKindFromExt(ext string) FileKind {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "jpg", "jpeg", "png", "webp", "bmp", "avif", "jxl":
		return FileKindImage
	case "gif", "apng":
		return FileKindAnimated
	case "mp4", "webm", "mkv", "zip":
		return FileKindVideo
	case "swf":
		return FileKindFlash
	default:
		return FileKindUnknown
	}
}

// ExtFromURL returns the lowercase extension of a media URL, ignoring
// query string and fragment. Empty if the URL has none.
func ExtFromURL(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return strings.ToLower(strings.TrimPrefix(path.Ext(u), "."))
}

// TagCategory is the normalized tag category.
type TagCategory string

const (
	CategoryArtist    TagCategory = "artist"
	CategoryCopyright TagCategory = "copyright"
	CategoryCharacter TagCategory = "character"
	CategorySpecies   TagCategory = "species"
	CategoryGeneral   TagCategory = "general"
	CategoryMeta      TagCategory = "meta"
	CategoryLore      TagCategory = "lore"
	CategoryInvalid   TagCategory = "invalid"
)

var categoryPriority = map[TagCategory]int{
	CategoryArtist:    0,
	CategoryCopyright: 1,
	CategoryCharacter: 2,
	CategorySpecies:   3,
	CategoryGeneral:   4,
	CategoryMeta:      5,
	CategoryLore:      6,
	CategoryInvalid:   7,
}

// ParseTagCategory validates a category name.
func ParseTagCategory(s string) (TagCategory, bool) {
	c := TagCategory(strings.ToLower(strings.TrimSpace(s)))
	_, ok := categoryPriority[c]
	return c, ok
}

// Priority orders categories for display; lower sorts first.
// Unknown categories sort last.
func (c TagCategory) Priority() int {
	if p, ok := categoryPriority[c]; ok {
		return p
	}
	return len(categoryPriority)
}

// MediaVariant is one rendition of a post's media.
type MediaVariant struct {
	URL    string `json:"url"`
	Width  int64  `json:"width,omitempty"`
	Height int64  `json:"height,omitempty"`
	Size   int64  `json:"size,omitempty"`
}

// PostTag is a tag attached to a post with its resolved category.
type PostTag struct {
	Name     string      `json:"name"`
	Category TagCategory `json:"category"`
}

// SortPostTags orders tags by category priority, then name.
func SortPostTags(tags []PostTag) {
	sort.SliceStable(tags, func(i, j int) bool {
		pi, pj := tags[i].Category.Priority(), tags[j].Category.Priority()
		if pi != pj {
			return pi < pj
		}
		return tags[i].Name < tags[j].Name
	})
}

// Post is a normalized post.
type Post struct {
	Key       EntityKey                `json:"key"`
	Rating    Rating                   `json:"rating"`
	FileKind  FileKind                 `json:"file_kind"`
	FileExt   string                   `json:"file_ext,omitempty"`
	MD5       string                   `json:"md5,omitempty"`
	Variants  map[Quality]MediaVariant `json:"variants"`
	Tags      []PostTag                `json:"tags"`
	Uploader  string                   `json:"uploader,omitempty"`
	Score     *int64                   `json:"score,omitempty"`
	Source    string                   `json:"source,omitempty"`
	Duration  *float64                 `json:"duration,omitempty"`
	CreatedAt time.Time                `json:"created_at,omitzero"`
}

// URLFor returns the URL of the requested quality, falling back to the
// closest available variant (larger first, then smaller). Empty if the
// post has no media at all.
func (p Post) URLFor(q Quality) string {
	idx := 0
	for i, known := range AllQualities {
		if known == q {
			idx = i
		}
	}
	for i := idx; i < len(AllQualities); i++ {
		if v, ok := p.Variants[AllQualities[i]]; ok && v.URL != "" {
			return v.URL
		}
	}
	for i := idx - 1; i >= 0; i-- {
		if v, ok := p.Variants[AllQualities[i]]; ok && v.URL != "" {
			return v.URL
		}
	}
	return ""
}

// TagNames returns the post's tag names in their sorted order.
func (p Post) TagNames() []string {
	names := make([]string, len(p.Tags))
	for i, t := range p.Tags {
		names[i] = t.Name
	}
	return names
}

// Pool is a normalized pool (ordered post collection).
type Pool struct {
	Key         EntityKey `json:"key"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	PostCount   int64     `json:"post_count"`
	PostIDs     []int64   `json:"post_ids,omitempty"`
	Creator     string    `json:"creator,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
}

// Tag is a normalized tag.
type Tag struct {
	Key        TagKey      `json:"key"`
	ExternalID int64       `json:"external_id,omitempty"`
	Count      int64       `json:"count"`
	Category   TagCategory `json:"category"`
	CreatedAt  time.Time   `json:"created_at,omitzero"`
	UpdatedAt  time.Time   `json:"updated_at,omitzero"`
}

// User is a normalized user.
type User struct {
	Key       EntityKey `json:"key"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// RequestMeta carries pagination tokens. An empty token means absent:
// Next == "" signals that no more results exist.
type RequestMeta struct {
	Prev string `json:"prev,omitempty"`
	Next string `json:"next,omitempty"`
}

// NoMore reports whether the listing is exhausted.
func (m RequestMeta) NoMore() bool {
	return m.Next == ""
}

// Page is one page of entities plus the continuation tokens.
// Items is never nil for a successful call.
type Page[T any] struct {
	Items []T         `json:"items"`
	Meta  RequestMeta `json:"meta"`
}

// MergeByKey folds items into dst keyed by key(item). Later items replace
// earlier ones wholesale, so newer data overwrites every field and lists
// are replaced rather than concatenated.
func MergeByKey[K comparable, T any](dst map[K]T, items []T, key func(T) K) map[K]T {
	if dst == nil {
		dst = make(map[K]T, len(items))
	}
	for _, item := range items {
		dst[key(item)] = item
	}
	return dst
}

// Resource limits enforced on path expressions at compile time.
const (
	// MaxPathDepth prevents stack overflow during recursive path resolution.
	MaxPathDepth = 16

	// MaxNestedWildcards limits fan-out segments (wildcards and filters)
	// per path to keep evaluation linear in document size.
	MaxNestedWildcards = 2

	// MaxResponseSize caps a fetched response body.
	MaxResponseSize = 16 * 1024 * 1024
)
