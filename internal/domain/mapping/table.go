package mapping

import (
	"fmt"

	domainerrors "github.com/jbctechsolutions/listingsync/internal/domain/errors"
	"github.com/jbctechsolutions/listingsync/internal/domain/record"
)

// Override rewrites a rule list while a table is constructed.
type Override func(rules []Rule) []Rule

// Table is the ordered, immutable rule set for one entity type. Rules are
// evaluated in declaration order, so a derived rule may read fields mapped
// by the rules before it.
type Table struct {
	entity   record.EntityType
	rules    []Rule
	byTarget map[string]int
}

// NewTable applies overrides to a copy of base in order and validates the result.
func NewTable(entity record.EntityType, base []Rule, overrides ...Override) (*Table, error) {
	rules := append([]Rule(nil), base...)
	for _, o := range overrides {
		if o != nil {
			rules = o(rules)
		}
	}

	t := &Table{
		entity:   entity,
		rules:    rules,
		byTarget: make(map[string]int, len(rules)),
	}

	type projection struct {
		source string
		kind   Kind
	}
	extracted := make(map[projection]string)

	for i, r := range rules {
		if err := r.validate(); err != nil {
			return nil, domainerrors.NewError(domainerrors.CodeValidation, fmt.Sprintf("%s mapping", entity), err)
		}
		if r.IsComputed() {
			continue
		}
		if prev, ok := t.byTarget[r.Target]; ok {
			return nil, domainerrors.NewError(domainerrors.CodeValidation, fmt.Sprintf("%s mapping", entity),
				fmt.Errorf("target %q declared by rules %d and %d", r.Target, prev, i))
		}
		t.byTarget[r.Target] = i

		if r.IsDerived() || r.Source == "" {
			continue
		}
		key := projection{r.Source, r.Kind}
		if other, ok := extracted[key]; ok {
			return nil, domainerrors.NewError(domainerrors.CodeValidation, fmt.Sprintf("%s mapping", entity),
				fmt.Errorf("targets %q and %q extract the same %s projection of %q", other, r.Target, r.Kind, r.Source))
		}
		extracted[key] = r.Target
	}

	return t, nil
}

// MustTable is NewTable for static tables; it panics on an invalid rule set.
func MustTable(entity record.EntityType, base []Rule, overrides ...Override) *Table {
	t, err := NewTable(entity, base, overrides...)
	if err != nil {
		panic(err)
	}
	return t
}

// Entity returns the entity type the table maps.
func (t *Table) Entity() record.EntityType {
	return t.entity
}

// Rules returns a copy of the rules in evaluation order.
func (t *Table) Rules() []Rule {
	return append([]Rule(nil), t.rules...)
}

// Rule returns the rule writing target.
func (t *Table) Rule(target string) (Rule, bool) {
	i, ok := t.byTarget[target]
	if !ok {
		return Rule{}, false
	}
	return t.rules[i], true
}

// Len returns the number of rules.
func (t *Table) Len() int {
	return len(t.rules)
}

// Replace returns an override that swaps the rule with the same target, or
// appends the rule when no such target exists.
func Replace(rule Rule) Override {
	return func(rules []Rule) []Rule {
		for i, r := range rules {
			if r.Target == rule.Target {
				rules[i] = rule
				return rules
			}
		}
		return append(rules, rule)
	}
}

// Remove returns an override that drops every rule writing target.
func Remove(target string) Override {
	return func(rules []Rule) []Rule {
		out := rules[:0]
		for _, r := range rules {
			if r.Target != target {
				out = append(out, r)
			}
		}
		return out
	}
}

// Append returns an override that adds rules at the end of the table.
func Append(extra ...Rule) Override {
	return func(rules []Rule) []Rule {
		return append(rules, extra...)
	}
}

// InsertAfter returns an override that places rule directly after the rule
// writing target, or at the end when target is unknown.
func InsertAfter(target string, rule Rule) Override {
	return func(rules []Rule) []Rule {
		for i, r := range rules {
			if r.Target == target {
				out := make([]Rule, 0, len(rules)+1)
				out = append(out, rules[:i+1]...)
				out = append(out, rule)
				return append(out, rules[i+1:]...)
			}
		}
		return append(rules, rule)
	}
}
