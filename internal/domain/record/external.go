package record

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// External is the raw JSON of one record as returned by the external API.
// It is never mutated after construction.
type External []byte

// NewExternal marshals v into an External.
func NewExternal(v any) (External, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return External(b), nil
}

// Valid reports whether the record holds a JSON object.
func (e External) Valid() bool {
	return len(e) > 0 && gjson.ValidBytes(e) && gjson.ParseBytes(e).IsObject()
}

// Lookup resolves a dotted path. The result does not exist when any
// segment is missing or crosses a non-container value.
func (e External) Lookup(path string) gjson.Result {
	if len(e) == 0 || path == "" {
		return gjson.Result{}
	}
	return gjson.GetBytes(e, path)
}

// Get resolves a dotted path into a plain Go value. Numbers are returned as
// json.Number so integer identifiers and amounts stay exact.
func (e External) Get(path string) (any, bool) {
	res := e.Lookup(path)
	if !res.Exists() {
		return nil, false
	}
	return ResultValue(res), true
}

// ID returns the external identifier stored under "id".
func (e External) ID() string {
	return e.Lookup("id").String()
}

// String returns the raw JSON.
func (e External) String() string {
	return string(e)
}

// ResultValue converts a gjson result to a Go value, keeping top-level numbers as json.Number.
func ResultValue(res gjson.Result) any {
	switch res.Type {
	case gjson.Null:
		return nil
	case gjson.Number:
		return json.Number(res.Raw)
	default:
		return res.Value()
	}
}
