// Package codec encodes local field values for storage as tagged text.
package codec

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jbctechsolutions/listingsync/internal/domain/record"
)

// Tag identifies the Go type of a stored value.
type Tag string

const (
	TagString Tag = "s"
	TagInt    Tag = "i"
	TagFloat  Tag = "f"
	TagBool   Tag = "b"
	TagJSON   Tag = "j" // []any or map[string]any as canonical JSON
)

// Encode renders a field value as a tag and text payload.
func Encode(v any) (Tag, string, error) {
	switch t := v.(type) {
	case string:
		return TagString, t, nil
	case int:
		return TagInt, strconv.Itoa(t), nil
	case int64:
		return TagInt, strconv.FormatInt(t, 10), nil
	case float64:
		return TagFloat, strconv.FormatFloat(t, 'g', -1, 64), nil
	case bool:
		return TagBool, strconv.FormatBool(t), nil
	case json.Number:
		if _, err := t.Int64(); err == nil {
			return TagInt, t.String(), nil
		}
		return TagFloat, t.String(), nil
	case []any, map[string]any:
		b, err := record.MarshalCanonical(t)
		if err != nil {
			return "", "", fmt.Errorf("encoding composite: %w", err)
		}
		return TagJSON, string(b), nil
	case nil:
		return "", "", fmt.Errorf("cannot store a nil value")
	}
	return "", "", fmt.Errorf("unsupported field type %T", v)
}

// Decode reverses Encode. Numbers inside composites decode as float64.
func Decode(tag Tag, raw string) (any, error) {
	switch tag {
	case TagString:
		return raw, nil
	case TagInt:
		return strconv.ParseInt(raw, 10, 64)
	case TagFloat:
		return strconv.ParseFloat(raw, 64)
	case TagBool:
		return strconv.ParseBool(raw)
	case TagJSON:
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decoding composite: %w", err)
		}
		return v, nil
	}
	return nil, fmt.Errorf("unknown value tag %q", tag)
}

// EncodeFields encodes every value of f.
func EncodeFields(f record.Fields) (map[string]Value, error) {
	out := make(map[string]Value, len(f))
	for _, k := range f.Keys() {
		tag, raw, err := Encode(f[k])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		out[k] = Value{Tag: tag, Raw: raw}
	}
	return out, nil
}

// Value is one encoded field.
type Value struct {
	Tag Tag
	Raw string
}

// Decode decodes the value.
func (v Value) Decode() (any, error) {
	return Decode(v.Tag, v.Raw)
}
