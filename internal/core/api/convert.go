package api

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// args reads typed request fields from a Struct. Absent or null fields
// read as the zero value; a present field of the wrong type is an error.
type args struct {
	fields map[string]*structpb.Value
	err    error
}

func newArgs(req *structpb.Struct) *args {
	return &args{fields: req.GetFields()}
}

func (a *args) fail(key, want string) {
	if a.err == nil {
		a.err = invalidArgument("field %q must be %s", key, want)
	}
}

func (a *args) value(key string) (*structpb.Value, bool) {
	v, ok := a.fields[key]
	if !ok || v == nil {
		return nil, false
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return nil, false
	}
	return v, true
}

func (a *args) str(key string) string {
	v, ok := a.value(key)
	if !ok {
		return ""
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		a.fail(key, "a string")
		return ""
	}
	return s.StringValue
}

func (a *args) integer(key string) int64 {
	v, ok := a.value(key)
	if !ok {
		return 0
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || n.NumberValue != math.Trunc(n.NumberValue) || math.Abs(n.NumberValue) > 1<<53 {
		a.fail(key, "an integer")
		return 0
	}
	return int64(n.NumberValue)
}

func (a *args) boolean(key string) bool {
	v, ok := a.value(key)
	if !ok {
		return false
	}
	b, ok := v.GetKind().(*structpb.Value_BoolValue)
	if !ok {
		a.fail(key, "a boolean")
		return false
	}
	return b.BoolValue
}

// list accepts a list of strings or a single space separated string.
func (a *args) list(key string) []string {
	v, ok := a.value(key)
	if !ok {
		return nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return strings.Fields(k.StringValue)
	case *structpb.Value_ListValue:
		out := make([]string, 0, len(k.ListValue.GetValues()))
		for _, item := range k.ListValue.GetValues() {
			s, ok := item.GetKind().(*structpb.Value_StringValue)
			if !ok {
				a.fail(key, "a list of strings")
				return nil
			}
			out = append(out, s.StringValue)
		}
		return out
	}
	a.fail(key, "a list of strings")
	return nil
}

func (a *args) date(key string) time.Time {
	s := a.str(key)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		a.fail(key, "a YYYY-MM-DD date")
		return time.Time{}
	}
	return t
}

// toStruct converts v to a Struct through its JSON form, so field names
// follow the json tags of the domain types.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding response: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("encoding response: %w", err)
	}
	return structpb.NewStruct(m)
}
