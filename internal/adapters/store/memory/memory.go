// Package memory provides an in-memory record store. Values pass through the
// shared codec so they read back exactly as a database store would return them.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jbctechsolutions/listingsync/internal/adapters/store"
	"github.com/jbctechsolutions/listingsync/internal/adapters/store/codec"
	domainerrors "github.com/jbctechsolutions/listingsync/internal/domain/errors"
	"github.com/jbctechsolutions/listingsync/internal/domain/outcome"
	"github.com/jbctechsolutions/listingsync/internal/domain/record"
	"github.com/jbctechsolutions/listingsync/internal/infrastructure/config"
)

func init() {
	store.Register("memory", func(ctx context.Context, cfg config.StoreConfig) (store.Backend, error) {
		return New(), nil
	})
}

type entry struct {
	entity  record.EntityType
	seq     int64
	fields  map[string]codec.Value
	media   map[record.MediaID]Media
	primary record.MediaID
}

// Media is one stored asset.
type Media struct {
	Data    []byte
	AltText string
}

// Store implements ports.RecordStore and ports.StatusStore in memory.
type Store struct {
	mu       sync.RWMutex
	records  map[record.RecordID]*entry
	outcomes map[string]outcome.Outcome
	seq      int64
	mediaSeq int64
}

// New creates an empty store.
func New() *Store {
	return &Store{
		records:  make(map[record.RecordID]*entry),
		outcomes: make(map[string]outcome.Outcome),
	}
}

// FindByField returns matching records in creation order.
func (s *Store) FindByField(ctx context.Context, entity record.EntityType, key string, value any) ([]record.RecordID, error) {
	tag, raw, err := codec.Encode(value)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type hit struct {
		id  record.RecordID
		seq int64
	}
	var hits []hit
	for id, e := range s.records {
		if e.entity != entity {
			continue
		}
		if v, ok := e.fields[key]; ok && v.Tag == tag && v.Raw == raw {
			hits = append(hits, hit{id, e.seq})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].seq < hits[j].seq })

	ids := make([]record.RecordID, len(hits))
	for i, h := range hits {
		ids[i] = h.id
	}
	return ids, nil
}

// Get returns a decoded copy of a record's fields.
func (s *Store) Get(ctx context.Context, id record.RecordID) (record.EntityType, record.Fields, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.records[id]
	if !ok {
		return "", nil, notFound(id)
	}
	fields := make(record.Fields, len(e.fields))
	for k, v := range e.fields {
		decoded, err := v.Decode()
		if err != nil {
			return "", nil, fmt.Errorf("field %s: %w", k, err)
		}
		fields[k] = decoded
	}
	return e.entity, fields, nil
}

// Create stores a new record.
func (s *Store) Create(ctx context.Context, entity record.EntityType, fields record.Fields) (record.RecordID, error) {
	encoded, err := codec.EncodeFields(fields)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	id := record.RecordID(fmt.Sprintf("mem-%d", s.seq))
	s.records[id] = &entry{
		entity: entity,
		seq:    s.seq,
		fields: encoded,
		media:  make(map[record.MediaID]Media),
	}
	return id, nil
}

// Update merges fields into the record.
func (s *Store) Update(ctx context.Context, id record.RecordID, fields record.Fields) error {
	encoded, err := codec.EncodeFields(fields)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[id]
	if !ok {
		return notFound(id)
	}
	for k, v := range encoded {
		e.fields[k] = v
	}
	return nil
}

// DeleteFields removes the given keys.
func (s *Store) DeleteFields(ctx context.Context, id record.RecordID, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[id]
	if !ok {
		return notFound(id)
	}
	for _, k := range keys {
		delete(e.fields, k)
	}
	return nil
}

// Delete removes a record and its media.
func (s *Store) Delete(ctx context.Context, id record.RecordID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return notFound(id)
	}
	delete(s.records, id)
	return nil
}

// AttachMedia stores an asset owned by the record.
func (s *Store) AttachMedia(ctx context.Context, id record.RecordID, data []byte, altText string) (record.MediaID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[id]
	if !ok {
		return "", notFound(id)
	}
	s.mediaSeq++
	mid := record.MediaID(fmt.Sprintf("media-%d", s.mediaSeq))
	e.media[mid] = Media{Data: append([]byte(nil), data...), AltText: altText}
	return mid, nil
}

// SetPrimaryMedia marks an attached asset as primary.
func (s *Store) SetPrimaryMedia(ctx context.Context, id record.RecordID, mediaID record.MediaID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[id]
	if !ok {
		return notFound(id)
	}
	if _, ok := e.media[mediaID]; !ok {
		return domainerrors.NewError(domainerrors.CodeNotFound, fmt.Sprintf("media %s on record %s", mediaID, id), nil)
	}
	e.primary = mediaID
	return nil
}

// DetachMedia deletes an asset and clears the primary mark when it pointed at it.
func (s *Store) DetachMedia(ctx context.Context, id record.RecordID, mediaID record.MediaID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[id]
	if !ok {
		return notFound(id)
	}
	delete(e.media, mediaID)
	if e.primary == mediaID {
		e.primary = ""
	}
	return nil
}

// Media returns the stored assets of a record and its primary media id.
func (s *Store) Media(id record.RecordID) (map[record.MediaID]Media, record.MediaID) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.records[id]
	if !ok {
		return nil, ""
	}
	out := make(map[record.MediaID]Media, len(e.media))
	for k, v := range e.media {
		out[k] = v
	}
	return out, e.primary
}

// Count returns the number of records of entity.
func (s *Store) Count(entity record.EntityType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.records {
		if e.entity == entity {
			n++
		}
	}
	return n
}

// Save stores an outcome under key.
func (s *Store) Save(ctx context.Context, key string, o outcome.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[key] = o
	return nil
}

// Load returns the outcome under key, or nil.
func (s *Store) Load(ctx context.Context, key string) (*outcome.Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.outcomes[key]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

func notFound(id record.RecordID) error {
	return domainerrors.NewError(domainerrors.CodeNotFound, fmt.Sprintf("record %s", id), nil)
}
