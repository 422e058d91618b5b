package record

import (
	"reflect"
	"sort"
)

// Bookkeeping field keys. They are owned by the sync engine and never
// appear in outbound payloads.
const (
	FieldExternalID         = "external_id"
	FieldLastSynced         = "last_synced"
	FieldPrimaryImageSource = "primary_image_source"
	FieldGallery            = "gallery"
	FieldAssignedAgentID    = "assigned_agent_id"
)

var bookkeepingFields = map[string]bool{
	FieldExternalID:         true,
	FieldLastSynced:         true,
	FieldPrimaryImageSource: true,
	FieldGallery:            true,
	FieldAssignedAgentID:    true,
}

// IsBookkeeping reports whether key is a local-only field.
func IsBookkeeping(key string) bool {
	return bookkeepingFields[key]
}

// Fields is the flat key/value state of a local record. Values are string,
// int64, float64, bool, []any or map[string]any.
type Fields map[string]any

// Clone returns a deep copy of the fields.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = cloneValue(v)
	}
	return out
}

// String returns the value at key when it is a string.
func (f Fields) String(key string) (string, bool) {
	s, ok := f[key].(string)
	return s, ok
}

// Keys returns the field keys in sorted order.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Diff returns the subset of next whose values differ from f, and the sorted
// changed keys. Keys listed in skip are ignored.
func (f Fields) Diff(next Fields, skip ...string) (Fields, []string) {
	ignored := make(map[string]bool, len(skip))
	for _, k := range skip {
		ignored[k] = true
	}
	changed := Fields{}
	var keys []string
	for _, k := range next.Keys() {
		if ignored[k] {
			continue
		}
		if old, ok := f[k]; ok && ValuesEqual(old, next[k]) {
			continue
		}
		changed[k] = next[k]
		keys = append(keys, k)
	}
	return changed, keys
}

// ValuesEqual compares two field values, treating numerically equal int64
// and float64 values as equal.
func ValuesEqual(a, b any) bool {
	switch av := a.(type) {
	case int64:
		switch bv := b.(type) {
		case int64:
			return av == bv
		case float64:
			return float64(av) == bv
		}
	case float64:
		switch bv := b.(type) {
		case float64:
			return av == bv
		case int64:
			return av == float64(bv)
		}
	}
	return reflect.DeepEqual(a, b)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
