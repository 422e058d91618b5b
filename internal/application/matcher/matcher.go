// Package matcher resolves external records to local records.
package matcher

import (
	"context"
	"fmt"

	"github.com/jbctechsolutions/listingsync/internal/application/ports"
	domainerrors "github.com/jbctechsolutions/listingsync/internal/domain/errors"
	"github.com/jbctechsolutions/listingsync/internal/domain/record"
)

// Match is the result of resolving an external id.
type Match struct {
	ID        record.RecordID   // Chosen local record, empty when Create is set
	Create    bool              // No local record exists yet
	Ambiguous []record.RecordID // Every candidate, set only when more than one matched
}

// Matcher finds local records by identifying fields.
type Matcher struct {
	store ports.RecordStore
}

// New creates a matcher over store.
func New(store ports.RecordStore) *Matcher {
	return &Matcher{store: store}
}

// Resolve finds the local record holding externalID. With several candidates
// the oldest wins and all of them are reported in Ambiguous.
func (m *Matcher) Resolve(ctx context.Context, entity record.EntityType, externalID string) (Match, error) {
	if externalID == "" {
		return Match{}, domainerrors.ErrNoExternalID
	}
	ids, err := m.store.FindByField(ctx, entity, record.FieldExternalID, externalID)
	if err != nil {
		return Match{}, fmt.Errorf("matching %s %s: %w", entity, externalID, err)
	}
	switch len(ids) {
	case 0:
		return Match{Create: true}, nil
	case 1:
		return Match{ID: ids[0]}, nil
	default:
		return Match{ID: ids[0], Ambiguous: ids}, nil
	}
}

// ResolveReference walks the candidate fields in order and returns the first
// record of entity whose field equals value.
func (m *Matcher) ResolveReference(ctx context.Context, entity record.EntityType, value string, candidates []string) (record.RecordID, bool, error) {
	if value == "" {
		return "", false, nil
	}
	for _, field := range candidates {
		ids, err := m.store.FindByField(ctx, entity, field, value)
		if err != nil {
			return "", false, fmt.Errorf("resolving %s reference %q by %s: %w", entity, value, field, err)
		}
		if len(ids) > 0 {
			return ids[0], true, nil
		}
	}
	return "", false, nil
}

// AdoptPending sets targetField to id on every record of entity whose
// refField holds one of values. It returns the adopted record ids.
func (m *Matcher) AdoptPending(ctx context.Context, entity record.EntityType, refField, targetField string, values []string, id record.RecordID) ([]record.RecordID, error) {
	var adopted []record.RecordID
	seen := make(map[record.RecordID]bool)
	for _, v := range values {
		if v == "" {
			continue
		}
		ids, err := m.store.FindByField(ctx, entity, refField, v)
		if err != nil {
			return adopted, fmt.Errorf("finding pending %s references to %q: %w", entity, v, err)
		}
		for _, rid := range ids {
			if seen[rid] {
				continue
			}
			seen[rid] = true
			_, fields, err := m.store.Get(ctx, rid)
			if err != nil {
				return adopted, err
			}
			if cur, ok := fields.String(targetField); ok && cur == string(id) {
				continue
			}
			if err := m.store.Update(ctx, rid, record.Fields{targetField: string(id)}); err != nil {
				return adopted, fmt.Errorf("adopting %s: %w", rid, err)
			}
			adopted = append(adopted, rid)
		}
	}
	return adopted, nil
}
