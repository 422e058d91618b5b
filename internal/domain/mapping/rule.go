// Package mapping provides the declarative path-to-field mapping model and
// the sanitization applied while mapping.
package mapping

import (
	"fmt"
	"strings"

	"github.com/jbctechsolutions/listingsync/internal/domain/record"
)

// Kind selects the sanitization applied to a mapped value.
type Kind string

const (
	KindScalar   Kind = "scalar"
	KindText     Kind = "text"
	KindRichText Kind = "rich_text"
	KindEmail    Kind = "email"
	KindURL      Kind = "url"
	KindBoolean  Kind = "boolean"
	KindNumber   Kind = "number"
	KindDate     Kind = "date"
	KindArray    Kind = "array"
	KindNested   Kind = "nested"
)

var validKinds = map[Kind]bool{
	KindScalar: true, KindText: true, KindRichText: true, KindEmail: true, KindURL: true,
	KindBoolean: true, KindNumber: true, KindDate: true, KindArray: true, KindNested: true,
}

// ParseKind parses a kind name as written in configuration.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if k == "richtext" {
		k = KindRichText
	}
	if !validKinds[k] {
		return "", fmt.Errorf("unknown field kind %q", s)
	}
	return k, nil
}

// Numeric is the sub-kind of a number rule.
type Numeric string

const (
	NumericAuto  Numeric = ""      // int64 when integral, float64 otherwise
	NumericInt   Numeric = "int"   // always int64, fractions truncated
	NumericFloat Numeric = "float" // always float64
)

// Computed marks a rule whose target is produced outside the mapper. Such
// rules document a handled source path and are skipped by Apply and Build.
const Computed = "@computed"

// DeriveFunc computes a raw value from the external record and the fields
// mapped by earlier rules. The result is sanitized like any extracted value.
type DeriveFunc func(ext record.External, mapped record.Fields) (any, bool)

// Rule maps one external path to one local field.
type Rule struct {
	Source    string   // Dotted path into the external record
	Alt       []string // Older paths consulted in order when Source is absent
	Target    string   // Local field key, or Computed
	Kind      Kind
	Numeric   Numeric
	Serialize bool // Store an array or object as one composite field
	PullOnly  bool // Never written back by Build
	Derive    DeriveFunc
}

// IsComputed reports whether the rule's target is produced elsewhere.
func (r Rule) IsComputed() bool {
	return r.Target == Computed
}

// IsDerived reports whether the rule computes its value rather than extracting it.
func (r Rule) IsDerived() bool {
	return r.Derive != nil
}

// Sanitize applies the rule's kind to a raw value.
func (r Rule) Sanitize(raw any) (any, bool) {
	if r.Kind == KindNumber {
		return SanitizeNumber(raw, r.Numeric)
	}
	return Sanitize(r.Kind, raw)
}

func (r Rule) validate() error {
	if r.Target == "" {
		return fmt.Errorf("rule for %q has no target", r.Source)
	}
	if r.IsComputed() {
		return nil
	}
	if r.Source == "" && r.Derive == nil {
		return fmt.Errorf("rule %q has neither a source path nor a derivation", r.Target)
	}
	if !validKinds[r.Kind] {
		return fmt.Errorf("rule %q has unknown kind %q", r.Target, r.Kind)
	}
	if r.Serialize && r.Kind != KindArray && r.Kind != KindNested {
		return fmt.Errorf("rule %q: only array and nested kinds can be serialized", r.Target)
	}
	if !r.PullOnly && !r.IsDerived() && strings.ContainsAny(r.Source, "#*?|@") {
		return fmt.Errorf("rule %q: query path %q must be pull-only", r.Target, r.Source)
	}
	return nil
}
