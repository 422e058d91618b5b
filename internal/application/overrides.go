package application

import (
	"fmt"

	"github.com/jbctechsolutions/listingsync/internal/domain/mapping"
	"github.com/jbctechsolutions/listingsync/internal/domain/record"
	"github.com/jbctechsolutions/listingsync/internal/infrastructure/config"
)

// CompileOverrides turns the mapping overrides from configuration into
// ordered table overrides per entity.
func CompileOverrides(cfg config.MappingConfig) (map[record.EntityType][]mapping.Override, error) {
	out := make(map[record.EntityType][]mapping.Override, len(cfg.Overrides))
	for name, list := range cfg.Overrides {
		entity, err := record.ParseEntityType(name)
		if err != nil {
			return nil, fmt.Errorf("mapping overrides: %w", err)
		}
		for i, o := range list {
			ov, err := compileOverride(o)
			if err != nil {
				return nil, fmt.Errorf("mapping overrides for %s[%d]: %w", entity, i, err)
			}
			out[entity] = append(out[entity], ov)
		}
	}
	return out, nil
}

func compileOverride(o config.RuleOverride) (mapping.Override, error) {
	if o.Action == "remove" {
		return mapping.Remove(o.Target), nil
	}

	kind, err := mapping.ParseKind(o.Kind)
	if err != nil {
		return nil, err
	}
	rule := mapping.Rule{
		Source:    o.Source,
		Alt:       o.Alt,
		Target:    o.Target,
		Kind:      kind,
		Numeric:   mapping.Numeric(o.Numeric),
		Serialize: o.Serialize,
		PullOnly:  o.PullOnly,
	}

	switch o.Action {
	case "add":
		return mapping.Append(rule), nil
	case "replace":
		return mapping.Replace(rule), nil
	default:
		return nil, fmt.Errorf("unknown override action %q", o.Action)
	}
}

// PreserveLocal converts the merge policy from configuration.
func PreserveLocal(cfg config.MergeConfig) (map[record.EntityType][]string, error) {
	out := make(map[record.EntityType][]string, len(cfg.PreserveLocal))
	for name, keys := range cfg.PreserveLocal {
		entity, err := record.ParseEntityType(name)
		if err != nil {
			return nil, fmt.Errorf("merge.preserve_local: %w", err)
		}
		out[entity] = append(out[entity], keys...)
	}
	return out, nil
}
