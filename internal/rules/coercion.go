// internal/rules/coercion.go
package rules

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/solatis/boorukeeper/internal/types"
)

/*
 * Type coercion for field extraction.
 *
 * Maps JSON's weak typing onto a closed set of strict target kinds. Backends
 * disagree on representation (ids as strings, counts as numbers, booleans as
 * "false", singleton lists), so every kind tolerates cross-representation
 * mismatches instead of rejecting them.
 *
 * Key distinction: Null values vs coercion failures. Null/nil returns
 * IsNull so the fallback chain treats the path as absent. Coercion failure
 * returns ErrCoercionFailed, which the fallback chain also treats as "no
 * value" and moves on to the next path. Neither is surfaced to callers.
 *
 * Kinds:
 *   - INT: int64; numeric strings parse, floats truncate, bool rejected
 *   - FLOAT: float64; numeric strings parse, ints widen, bool rejected
 *   - STRING: any scalar stringified
 *   - BOOL: bool, "true"/"false"/"1"/"0", numbers 0 and 1
 *   - TIMESTAMP: time.Time from RFC3339, Ruby dates, unix seconds/millis
 *   - STRINGS: []string; strings split on whitespace, lists stringified
 *
 * Lists: a non-empty list coerced to a scalar kind takes its first element
 * and retries. An empty list is null.
 *
 * Invariant: Coerce(Coerce(x, k).Value, k) == Coerce(x, k) for every kind.
 */

// Kind is the strict target type of a field.
type Kind int

const (
	KindUnspecified Kind = iota
	KindInt
	KindFloat
	KindString
	KindBool
	KindTimestamp
	KindStrings
)

var kindNames = map[Kind]string{
	KindInt:       "int",
	KindFloat:     "float",
	KindString:    "string",
	KindBool:      "bool",
	KindTimestamp: "timestamp",
	KindStrings:   "strings",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unspecified"
}

// ParseKind maps a document kind name to a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return KindUnspecified, fmt.Errorf("unknown field kind %q", s)
}

// CoercionResult holds the coerced value or indicates null.
type CoercionResult struct {
	Value  any  // coerced value (valid only if !IsNull)
	IsNull bool // true if input was nil/null or an empty list
}

// Coerce attempts to convert value to the expected kind.
// Returns CoercionResult with IsNull=true for nil input.
// Returns ErrCoercionFailed for impossible coercions.
func Coerce(value any, kind Kind) (CoercionResult, error) {
	if value == nil {
		return CoercionResult{IsNull: true}, nil
	}

	if kind == KindStrings {
		return coerceStrings(value)
	}

	// Singleton (or longer) list to scalar: first element wins.
	if list, ok := value.([]any); ok {
		if len(list) == 0 {
			return CoercionResult{IsNull: true}, nil
		}
		return Coerce(list[0], kind)
	}
	if list, ok := value.([]string); ok {
		if len(list) == 0 {
			return CoercionResult{IsNull: true}, nil
		}
		return Coerce(list[0], kind)
	}

	switch kind {
	case KindInt:
		return coerceInt(value)
	case KindFloat:
		return coerceFloat(value)
	case KindString:
		return coerceText(value)
	case KindBool:
		return coerceBoolean(value)
	case KindTimestamp:
		return coerceTimestamp(value)
	default:
		return CoercionResult{}, types.ErrCoercionFailed
	}
}

// coerceInt converts value to int64. Floats truncate toward zero.
// Whitespace-only strings return ErrCoercionFailed.
func coerceInt(value any) (CoercionResult, error) {
	switch v := value.(type) {
	case int64:
		return CoercionResult{Value: v}, nil
	case int:
		return CoercionResult{Value: int64(v)}, nil
	case float64:
		return truncate(v)
	case json.Number:
		return parseInt(string(v))
	case string:
		return parseInt(v)
	default:
		return CoercionResult{}, types.ErrCoercionFailed
	}
}

func parseInt(s string) (CoercionResult, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CoercionResult{}, types.ErrCoercionFailed
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return CoercionResult{Value: n}, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return CoercionResult{}, types.ErrCoercionFailed
	}
	return truncate(f)
}

// truncate converts f toward zero. Values outside the int64 range fail;
// a plain conversion would wrap them to math.MinInt64.
func truncate(f float64) (CoercionResult, error) {
	if math.IsNaN(f) || f < math.MinInt64 || f >= -math.MinInt64 {
		return CoercionResult{}, types.ErrCoercionFailed
	}
	return CoercionResult{Value: int64(f)}, nil
}

// coerceFloat converts value to float64. Rejects booleans.
func coerceFloat(value any) (CoercionResult, error) {
	switch v := value.(type) {
	case float64:
		return CoercionResult{Value: v}, nil
	case int64:
		return CoercionResult{Value: float64(v)}, nil
	case int:
		return CoercionResult{Value: float64(v)}, nil
	case json.Number:
		return parseFloat(string(v))
	case string:
		return parseFloat(v)
	default:
		return CoercionResult{}, types.ErrCoercionFailed
	}
}

func parseFloat(s string) (CoercionResult, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CoercionResult{}, types.ErrCoercionFailed
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return CoercionResult{}, types.ErrCoercionFailed
	}
	return CoercionResult{Value: f}, nil
}

// coerceText converts any scalar to its string representation.
// Objects are not scalars and fail.
func coerceText(value any) (CoercionResult, error) {
	switch v := value.(type) {
	case string:
		return CoercionResult{Value: v}, nil
	case json.Number:
		return CoercionResult{Value: v.String()}, nil
	case float64:
		return CoercionResult{Value: strconv.FormatFloat(v, 'f', -1, 64)}, nil
	case int:
		return CoercionResult{Value: strconv.Itoa(v)}, nil
	case int64:
		return CoercionResult{Value: strconv.FormatInt(v, 10)}, nil
	case bool:
		return CoercionResult{Value: strconv.FormatBool(v)}, nil
	case time.Time:
		return CoercionResult{Value: v.UTC().Format(time.RFC3339)}, nil
	default:
		return CoercionResult{}, types.ErrCoercionFailed
	}
}

// coerceBoolean accepts booleans and their common string/number spellings.
func coerceBoolean(value any) (CoercionResult, error) {
	switch v := value.(type) {
	case bool:
		return CoercionResult{Value: v}, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return CoercionResult{}, types.ErrCoercionFailed
		}
		return CoercionResult{Value: b}, nil
	default:
		n, err := coerceInt(value)
		if err != nil {
			return CoercionResult{}, err
		}
		switch n.Value.(int64) {
		case 0:
			return CoercionResult{Value: false}, nil
		case 1:
			return CoercionResult{Value: true}, nil
		}
		return CoercionResult{}, types.ErrCoercionFailed
	}
}

// timestampLayouts are tried in order for string timestamps.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RubyDate, // gelbooru: "Sat Mar 02 16:32:10 -0600 2024"
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// unixMillisThreshold separates unix seconds from unix milliseconds.
// Seconds stay below it until the year 33658.
const unixMillisThreshold = 1e12

// coerceTimestamp converts value to UTC time.Time.
func coerceTimestamp(value any) (CoercionResult, error) {
	switch v := value.(type) {
	case time.Time:
		return CoercionResult{Value: v.UTC()}, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return CoercionResult{}, types.ErrCoercionFailed
		}
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return CoercionResult{Value: t.UTC()}, nil
			}
		}
		return unixTimestamp(s)
	default:
		n, err := coerceFloat(value)
		if err != nil {
			return CoercionResult{}, err
		}
		return fromUnix(n.Value.(float64))
	}
}

func unixTimestamp(s string) (CoercionResult, error) {
	n, err := parseFloat(s)
	if err != nil {
		return CoercionResult{}, err
	}
	return fromUnix(n.Value.(float64))
}

func fromUnix(f float64) (CoercionResult, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return CoercionResult{}, types.ErrCoercionFailed
	}
	if f >= unixMillisThreshold {
		return CoercionResult{Value: time.UnixMilli(int64(f)).UTC()}, nil
	}
	sec, frac := math.Modf(f)
	return CoercionResult{Value: time.Unix(int64(sec), int64(frac*1e9)).UTC()}, nil
}

// coerceStrings converts value to a string list.
// Strings split on whitespace (space-separated tag strings); list elements
// are stringified individually, nested lists flattened, nulls dropped.
func coerceStrings(value any) (CoercionResult, error) {
	switch v := value.(type) {
	case []string:
		return CoercionResult{Value: v}, nil
	case string:
		return CoercionResult{Value: strings.Fields(v)}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, elem := range v {
			if elem == nil {
				continue
			}
			r, err := coerceStrings(elem)
			if err != nil {
				return CoercionResult{}, err
			}
			out = append(out, r.Value.([]string)...)
		}
		return CoercionResult{Value: out}, nil
	default:
		r, err := coerceText(value)
		if err != nil {
			return CoercionResult{}, err
		}
		return CoercionResult{Value: []string{r.Value.(string)}}, nil
	}
}
