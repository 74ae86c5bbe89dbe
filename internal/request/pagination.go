// internal/request/pagination.go
package request

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/solatis/boorukeeper/internal/types"
)

/*
 * Pagination.
 *
 * Tokens are opaque strings to callers. Two modes:
 *
 *	page    tokens are page numbers; First is 1 on most backends, 0 on
 *	        gelbooru. The empty token means the first page.
 *	cursor  tokens are Before+id / After+id (e621: "b123", "a456"). The
 *	        empty token means "newest first"; CursorFirst names that
 *	        page explicitly and is what prev carries back to it.
 *
 * Rules shared by both modes:
 *   - an empty page never has a next token
 *   - an only-one-page operation never has a next token
 *   - prev is absent exactly when the current token is the first page
 */

// PaginationMode selects how tokens are interpreted.
type PaginationMode string

const (
	ModePage   PaginationMode = "page"
	ModeCursor PaginationMode = "cursor"
)

// Paginator computes continuation tokens for one backend or operation.
type Paginator struct {
	Mode   PaginationMode
	First  int
	Before string
	After  string
}

// PageInfo summarizes a fetched page for token computation.
// MinID and MaxID are only consulted in cursor mode.
type PageInfo struct {
	Count int
	MinID int64
	MaxID int64
}

// CompilePaginator validates a pagination block. A nil-equivalent zero
// block yields page mode starting at 1.
func CompilePaginator(doc PaginationDoc) (Paginator, error) {
	switch PaginationMode(doc.Mode) {
	case "", ModePage:
		if doc.First < 0 {
			return Paginator{}, fmt.Errorf("pagination.first must not be negative")
		}
		first := doc.First
		if doc.Mode == "" && first == 0 {
			first = 1
		}
		return Paginator{Mode: ModePage, First: first}, nil
	case ModeCursor:
		p := Paginator{Mode: ModeCursor, Before: doc.Before, After: doc.After}
		if p.Before == "" {
			p.Before = "b"
		}
		if p.After == "" {
			p.After = "a"
		}
		if p.Before == p.After {
			return Paginator{}, fmt.Errorf("pagination.before and pagination.after must differ")
		}
		return p, nil
	default:
		return Paginator{}, fmt.Errorf("unknown pagination mode %q", doc.Mode)
	}
}

// CursorFirst is the explicit first-page token in cursor mode.
const CursorFirst = "1"

// FirstToken is the token of the first page.
func (p Paginator) FirstToken() string {
	if p.Mode == ModeCursor {
		return CursorFirst
	}
	return strconv.Itoa(p.First)
}

// isFirst reports whether token addresses the first page.
func (p Paginator) isFirst(token string) bool {
	return token == "" || token == p.FirstToken()
}

// Param converts a caller token into the value of the {{page}} parameter.
// The empty token selects the first page; in cursor mode the first page
// sends no page parameter.
func (p Paginator) Param(token string) (string, error) {
	if p.isFirst(token) {
		if p.Mode == ModeCursor {
			return "", nil
		}
		return p.FirstToken(), nil
	}
	switch p.Mode {
	case ModeCursor:
		if _, _, ok := p.parseCursor(token); !ok {
			return "", fmt.Errorf("%w: %q", types.ErrInvalidToken, token)
		}
		return token, nil
	default:
		n, err := strconv.Atoi(token)
		if err != nil || n < p.First {
			return "", fmt.Errorf("%w: %q", types.ErrInvalidToken, token)
		}
		return token, nil
	}
}

// Beyond reports whether token addresses a page after the first.
func (p Paginator) Beyond(token string) bool {
	if p.isFirst(token) {
		return false
	}
	if p.Mode == ModeCursor {
		return true
	}
	n, err := strconv.Atoi(token)
	return err == nil && n > p.First
}

// Next computes the continuation tokens after fetching the page addressed
// by current.
func (p Paginator) Next(current string, page PageInfo, onlyOnePage bool) types.RequestMeta {
	var meta types.RequestMeta
	switch p.Mode {
	case ModeCursor:
		if !p.isFirst(current) {
			if page.Count > 0 {
				meta.Prev = p.After + strconv.FormatInt(page.MaxID, 10)
			} else {
				// No ids to anchor on; the current token still marks
				// that a previous page exists.
				meta.Prev = current
			}
		}
		if page.Count > 0 && !onlyOnePage {
			meta.Next = p.Before + strconv.FormatInt(page.MinID, 10)
		}
	default:
		n := p.First
		if current != "" {
			if v, err := strconv.Atoi(current); err == nil {
				n = v
			}
		}
		if n > p.First {
			meta.Prev = strconv.Itoa(n - 1)
		}
		if page.Count > 0 && !onlyOnePage {
			meta.Next = strconv.Itoa(n + 1)
		}
	}
	return meta
}

// Exhausted is the meta returned, without fetching, for a page beyond the
// first on an only-one-page operation.
func (p Paginator) Exhausted() types.RequestMeta {
	return types.RequestMeta{Prev: p.FirstToken()}
}

func (p Paginator) parseCursor(token string) (prefix string, id int64, ok bool) {
	for _, pre := range []string{p.Before, p.After} {
		if rest, found := strings.CutPrefix(token, pre); found {
			n, err := strconv.ParseInt(rest, 10, 64)
			if err == nil && n >= 0 {
				return pre, n, true
			}
		}
	}
	return "", 0, false
}
