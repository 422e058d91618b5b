package mapping

import (
	"fmt"

	domainerrors "github.com/jbctechsolutions/listingsync/internal/domain/errors"
	"github.com/jbctechsolutions/listingsync/internal/domain/record"
)

// Registry holds one immutable table per entity type.
type Registry struct {
	tables map[record.EntityType]*Table
}

// NewRegistry creates a registry from tables. Each entity may appear once.
func NewRegistry(tables ...*Table) (*Registry, error) {
	r := &Registry{tables: make(map[record.EntityType]*Table, len(tables))}
	for _, t := range tables {
		if _, exists := r.tables[t.entity]; exists {
			return nil, fmt.Errorf("duplicate mapping table for %s", t.entity)
		}
		r.tables[t.entity] = t
	}
	return r, nil
}

// DefaultRegistry builds the listing and agent tables with the given per-entity overrides.
func DefaultRegistry(overrides map[record.EntityType][]Override) (*Registry, error) {
	listing, err := NewTable(record.EntityListing, ListingRules(), overrides[record.EntityListing]...)
	if err != nil {
		return nil, err
	}
	agent, err := NewTable(record.EntityAgent, AgentRules(), overrides[record.EntityAgent]...)
	if err != nil {
		return nil, err
	}
	return NewRegistry(listing, agent)
}

// Table returns the table for entity.
func (r *Registry) Table(entity record.EntityType) (*Table, error) {
	t, ok := r.tables[entity]
	if !ok {
		return nil, fmt.Errorf("%w: no mapping for %q", domainerrors.ErrUnknownEntity, entity)
	}
	return t, nil
}
