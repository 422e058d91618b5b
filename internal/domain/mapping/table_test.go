package mapping

import (
	"errors"
	"testing"

	domainerrors "github.com/jbctechsolutions/listingsync/internal/domain/errors"
	"github.com/jbctechsolutions/listingsync/internal/domain/record"
)

func TestNewTable_DefaultsAreValid(t *testing.T) {
	if _, err := DefaultRegistry(nil); err != nil {
		t.Fatalf("DefaultRegistry() error: %v", err)
	}
}

func TestNewTable_Validation(t *testing.T) {
	tests := []struct {
		name  string
		rules []Rule
	}{
		{"duplicate target", []Rule{
			{Source: "a", Target: "x", Kind: KindText},
			{Source: "b", Target: "x", Kind: KindText},
		}},
		{"same projection twice", []Rule{
			{Source: "a", Target: "x", Kind: KindText},
			{Source: "a", Target: "y", Kind: KindText},
		}},
		{"missing target", []Rule{{Source: "a", Kind: KindText}}},
		{"unknown kind", []Rule{{Source: "a", Target: "x", Kind: "blob"}}},
		{"serialized scalar", []Rule{{Source: "a", Target: "x", Kind: KindText, Serialize: true}}},
		{"writable query path", []Rule{{Source: "a.#.b", Target: "x", Kind: KindArray}}},
		{"no source or derivation", []Rule{{Target: "x", Kind: KindText}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(record.EntityListing, tt.rules)
			if !errors.Is(err, domainerrors.ErrValidation) {
				t.Errorf("NewTable() error = %v, want validation error", err)
			}
		})
	}
}

func TestNewTable_SameSourceDifferentKinds(t *testing.T) {
	_, err := NewTable(record.EntityListing, []Rule{
		{Source: "location", Target: "location", Kind: KindNested, Serialize: true},
		{Source: "location", Target: "location_label", Kind: KindText},
	})
	if err != nil {
		t.Errorf("distinct projections of one path should be allowed: %v", err)
	}
}

func TestNewTable_Overrides(t *testing.T) {
	base := []Rule{
		{Source: "a", Target: "a", Kind: KindText},
		{Source: "b", Target: "b", Kind: KindText},
	}

	tbl, err := NewTable(record.EntityListing, base,
		Replace(Rule{Source: "a2", Target: "a", Kind: KindText}),
		Remove("b"),
		Append(Rule{Source: "c", Target: "c", Kind: KindNumber}),
		InsertAfter("a", Rule{Source: "d", Target: "d", Kind: KindURL}),
	)
	if err != nil {
		t.Fatalf("NewTable() error: %v", err)
	}

	var targets []string
	for _, r := range tbl.Rules() {
		targets = append(targets, r.Target)
	}
	if got, want := targets, []string{"a", "d", "c"}; len(got) != len(want) || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Errorf("targets = %v, want %v", got, want)
	}
	if r, _ := tbl.Rule("a"); r.Source != "a2" {
		t.Errorf("Rule(a).Source = %q, want a2", r.Source)
	}
	if base[1].Target != "b" {
		t.Error("overrides mutated the base rule list")
	}
}

func TestNewTable_RulesIsACopy(t *testing.T) {
	tbl := MustTable(record.EntityAgent, AgentRules())
	rules := tbl.Rules()
	rules[0].Target = "changed"

	if r, ok := tbl.Rule(record.FieldExternalID); !ok || r.Target != record.FieldExternalID {
		t.Error("mutating Rules() result changed the table")
	}
}

func TestRegistry_Table(t *testing.T) {
	reg, err := DefaultRegistry(map[record.EntityType][]Override{
		record.EntityAgent: {Remove("bio")},
	})
	if err != nil {
		t.Fatalf("DefaultRegistry() error: %v", err)
	}

	agent, err := reg.Table(record.EntityAgent)
	if err != nil {
		t.Fatalf("Table(agent) error: %v", err)
	}
	if _, ok := agent.Rule("bio"); ok {
		t.Error("override should have removed bio")
	}
	if _, err := reg.Table("project"); !errors.Is(err, domainerrors.ErrUnknownEntity) {
		t.Errorf("Table(project) error = %v", err)
	}
}

func TestParseKind(t *testing.T) {
	if k, err := ParseKind("RichText"); err != nil || k != KindRichText {
		t.Errorf("ParseKind(RichText) = %q, %v", k, err)
	}
	if _, err := ParseKind("blob"); err == nil {
		t.Error("ParseKind(blob) should fail")
	}
}
