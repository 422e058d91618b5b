package mapping

import (
	"fmt"

	"github.com/tidwall/sjson"

	"github.com/jbctechsolutions/listingsync/internal/domain/record"
)

// ApplyHook adjusts freshly mapped fields. Hooks run in order after every rule.
type ApplyHook func(entity record.EntityType, ext record.External, fields record.Fields)

// BuildHook adjusts an outbound payload after the rules are written.
type BuildHook func(entity record.EntityType, fields record.Fields, payload []byte) ([]byte, error)

// Anomaly describes a source value that was present but rejected by sanitization.
type Anomaly struct {
	Target string
	Source string
	Kind   Kind
}

// Mapper translates between external records and local fields using a Table.
type Mapper struct {
	applyHooks []ApplyHook
	buildHooks []BuildHook
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithApplyHooks appends hooks run at the end of Apply.
func WithApplyHooks(hooks ...ApplyHook) Option {
	return func(m *Mapper) {
		m.applyHooks = append(m.applyHooks, hooks...)
	}
}

// WithBuildHooks appends hooks run at the end of Build.
func WithBuildHooks(hooks ...BuildHook) Option {
	return func(m *Mapper) {
		m.buildHooks = append(m.buildHooks, hooks...)
	}
}

// NewMapper creates a mapper. The hook lists are fixed after construction.
func NewMapper(opts ...Option) *Mapper {
	m := &Mapper{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Extract resolves the rule's source path, then its alternate paths.
// Missing data is reported as absent, never as an error.
func Extract(ext record.External, rule Rule) (any, bool) {
	paths := append([]string{rule.Source}, rule.Alt...)
	for _, p := range paths {
		if p == "" {
			continue
		}
		if v, ok := ext.Get(p); ok {
			return v, true
		}
	}
	return nil, false
}

// Apply maps an external record into local fields. Values that are absent,
// null, empty or invalid are left out entirely.
func (m *Mapper) Apply(t *Table, ext record.External) record.Fields {
	fields, _ := m.ApplyWithAnomalies(t, ext)
	return fields
}

// ApplyWithAnomalies is Apply that also reports present values rejected by sanitization.
func (m *Mapper) ApplyWithAnomalies(t *Table, ext record.External) (record.Fields, []Anomaly) {
	fields := record.Fields{}
	var anomalies []Anomaly

	for _, r := range t.rules {
		if r.IsComputed() {
			continue
		}

		var raw any
		var ok bool
		if r.IsDerived() {
			raw, ok = r.Derive(ext, fields)
		} else {
			raw, ok = Extract(ext, r)
		}
		if !ok || raw == nil {
			continue
		}

		v, ok := r.Sanitize(raw)
		if !ok {
			anomalies = append(anomalies, Anomaly{Target: r.Target, Source: r.Source, Kind: r.Kind})
			continue
		}
		if r.Kind == KindArray && !r.Serialize {
			v = textList(v.([]any))
		}
		if isEmpty(v) {
			continue
		}
		fields[r.Target] = v
	}

	for _, h := range m.applyHooks {
		h(t.entity, ext, fields)
	}
	return fields, anomalies
}

// Build writes local fields back into the external shape. Rules sharing a
// parent path are nested into one object. Derived, pull-only and
// bookkeeping fields are not written.
func (m *Mapper) Build(t *Table, fields record.Fields) (record.External, error) {
	payload := []byte(`{}`)
	var err error

	for _, r := range t.rules {
		if r.IsComputed() || r.IsDerived() || r.PullOnly || r.Source == "" || record.IsBookkeeping(r.Target) {
			continue
		}
		v, ok := fields[r.Target]
		if !ok || isEmpty(v) {
			continue
		}
		payload, err = sjson.SetBytes(payload, r.Source, outboundValue(r, v))
		if err != nil {
			return nil, fmt.Errorf("writing %s: %w", r.Source, err)
		}
	}

	for _, h := range m.buildHooks {
		payload, err = h(t.entity, fields, payload)
		if err != nil {
			return nil, fmt.Errorf("build hook: %w", err)
		}
	}
	return record.External(payload), nil
}

func outboundValue(r Rule, v any) any {
	switch {
	case r.Kind == KindBoolean:
		switch t := v.(type) {
		case string:
			return t == BoolTrue
		case bool:
			return t
		}
	case r.Kind == KindArray && !r.Serialize:
		if s, ok := v.(string); ok {
			return []any{s}
		}
	}
	return v
}

// textList keeps the scalar items of a flat list as sanitized text, in
// order. Empty and composite items are dropped.
func textList(items []any) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		s, ok := stringOf(item)
		if !ok {
			continue
		}
		if s = SanitizeText(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
