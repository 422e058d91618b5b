// Package postgres provides the PostgreSQL record store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jbctechsolutions/listingsync/internal/adapters/store"
	"github.com/jbctechsolutions/listingsync/internal/adapters/store/codec"
	domainerrors "github.com/jbctechsolutions/listingsync/internal/domain/errors"
	"github.com/jbctechsolutions/listingsync/internal/domain/outcome"
	"github.com/jbctechsolutions/listingsync/internal/domain/record"
	"github.com/jbctechsolutions/listingsync/internal/infrastructure/config"
)

func init() {
	store.Register("postgres", func(ctx context.Context, cfg config.StoreConfig) (store.Backend, error) {
		return Open(ctx, cfg.DSN, cfg.MaxConns)
	})
}

// Store implements ports.RecordStore and ports.StatusStore on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and creates the schema when missing.
func Open(ctx context.Context, dsn string, maxConns int) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("could not parse dsn: %w", err)
	}
	if maxConns > 0 {
		pcfg.MaxConns = int32(maxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("could not connect: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("could not create schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS records (
	seq BIGSERIAL UNIQUE,
	id TEXT PRIMARY KEY,
	entity TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS record_fields (
	record_id TEXT NOT NULL REFERENCES records(id) ON DELETE CASCADE,
	key TEXT NOT NULL,
	tag TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (record_id, key)
);
CREATE TABLE IF NOT EXISTS media (
	id TEXT PRIMARY KEY,
	record_id TEXT NOT NULL REFERENCES records(id) ON DELETE CASCADE,
	data BYTEA NOT NULL,
	alt_text TEXT,
	is_primary BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS sync_outcomes (
	key TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	payload JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_entity ON records(entity);
CREATE INDEX IF NOT EXISTS idx_record_fields_lookup ON record_fields(key, tag, value);
CREATE INDEX IF NOT EXISTS idx_media_record ON media(record_id);
`

// FindByField returns matching records in creation order.
func (s *Store) FindByField(ctx context.Context, entity record.EntityType, key string, value any) ([]record.RecordID, error) {
	tag, raw, err := codec.Encode(value)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT r.id FROM records r
		JOIN record_fields f ON f.record_id = r.id
		WHERE r.entity = $1 AND f.key = $2 AND f.tag = $3 AND f.value = $4
		ORDER BY r.seq`, string(entity), key, string(tag), raw)
	if err != nil {
		return nil, fmt.Errorf("could not query records: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("could not scan record ids: %w", err)
	}
	out := make([]record.RecordID, len(ids))
	for i, id := range ids {
		out[i] = record.RecordID(id)
	}
	return out, nil
}

// Get returns a record's fields.
func (s *Store) Get(ctx context.Context, id record.RecordID) (record.EntityType, record.Fields, error) {
	var entity string
	err := s.pool.QueryRow(ctx, "SELECT entity FROM records WHERE id = $1", string(id)).Scan(&entity)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil, notFound(id)
	}
	if err != nil {
		return "", nil, fmt.Errorf("could not get record: %w", err)
	}

	rows, err := s.pool.Query(ctx, "SELECT key, tag, value FROM record_fields WHERE record_id = $1", string(id))
	if err != nil {
		return "", nil, fmt.Errorf("could not get fields: %w", err)
	}
	defer rows.Close()

	fields := record.Fields{}
	for rows.Next() {
		var key, tag, raw string
		if err := rows.Scan(&key, &tag, &raw); err != nil {
			return "", nil, fmt.Errorf("could not scan field: %w", err)
		}
		v, err := codec.Decode(codec.Tag(tag), raw)
		if err != nil {
			return "", nil, fmt.Errorf("field %s: %w", key, err)
		}
		fields[key] = v
	}
	if err := rows.Err(); err != nil {
		return "", nil, err
	}
	return record.EntityType(entity), fields, nil
}

// Create stores a new record in one transaction.
func (s *Store) Create(ctx context.Context, entity record.EntityType, fields record.Fields) (record.RecordID, error) {
	encoded, err := codec.EncodeFields(fields)
	if err != nil {
		return "", err
	}
	id := record.RecordID(uuid.New().String())

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "INSERT INTO records (id, entity) VALUES ($1, $2)", string(id), string(entity)); err != nil {
			return fmt.Errorf("could not insert record: %w", err)
		}
		return upsertFields(ctx, tx, id, encoded)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Update merges fields into an existing record.
func (s *Store) Update(ctx context.Context, id record.RecordID, fields record.Fields) error {
	encoded, err := codec.EncodeFields(fields)
	if err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockRecord(ctx, tx, id); err != nil {
			return err
		}
		return upsertFields(ctx, tx, id, encoded)
	})
}

// DeleteFields removes fields from a record.
func (s *Store) DeleteFields(ctx context.Context, id record.RecordID, keys ...string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockRecord(ctx, tx, id); err != nil {
			return err
		}
		if len(keys) == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, "DELETE FROM record_fields WHERE record_id = $1 AND key = ANY($2)", string(id), keys); err != nil {
			return fmt.Errorf("could not delete fields: %w", err)
		}
		return nil
	})
}

// Delete removes a record. Fields and media cascade.
func (s *Store) Delete(ctx context.Context, id record.RecordID) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM records WHERE id = $1", string(id))
	if err != nil {
		return fmt.Errorf("could not delete record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(id)
	}
	return nil
}

// AttachMedia stores an asset owned by the record.
func (s *Store) AttachMedia(ctx context.Context, id record.RecordID, data []byte, altText string) (record.MediaID, error) {
	mid := record.MediaID(uuid.New().String())
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockRecord(ctx, tx, id); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, "INSERT INTO media (id, record_id, data, alt_text) VALUES ($1, $2, $3, $4)",
			string(mid), string(id), data, altText)
		return err
	})
	if err != nil {
		return "", err
	}
	return mid, nil
}

// SetPrimaryMedia marks one asset primary and clears the mark on the others.
func (s *Store) SetPrimaryMedia(ctx context.Context, id record.RecordID, mediaID record.MediaID) error {
	tag, err := s.pool.Exec(ctx, "UPDATE media SET is_primary = (id = $1) WHERE record_id = $2", string(mediaID), string(id))
	if err != nil {
		return fmt.Errorf("could not set primary media: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainerrors.NewError(domainerrors.CodeNotFound, fmt.Sprintf("media %s on record %s", mediaID, id), nil)
	}
	return nil
}

// DetachMedia deletes an asset.
func (s *Store) DetachMedia(ctx context.Context, id record.RecordID, mediaID record.MediaID) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM media WHERE id = $1 AND record_id = $2", string(mediaID), string(id)); err != nil {
		return fmt.Errorf("could not delete media: %w", err)
	}
	return nil
}

// Save stores the latest outcome under key.
func (s *Store) Save(ctx context.Context, key string, o outcome.Outcome) error {
	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("could not marshal outcome: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO sync_outcomes (key, status, payload, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE SET status = EXCLUDED.status, payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`,
		key, string(o.Status), payload, o.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("could not save outcome: %w", err)
	}
	return nil
}

// Load returns the outcome stored under key, or nil.
func (s *Store) Load(ctx context.Context, key string) (*outcome.Outcome, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, "SELECT payload FROM sync_outcomes WHERE key = $1", key).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not load outcome: %w", err)
	}
	var o outcome.Outcome
	if err := json.Unmarshal(payload, &o); err != nil {
		return nil, fmt.Errorf("could not unmarshal outcome: %w", err)
	}
	return &o, nil
}

func lockRecord(ctx context.Context, tx pgx.Tx, id record.RecordID) error {
	var found string
	err := tx.QueryRow(ctx, "SELECT id FROM records WHERE id = $1 FOR UPDATE", string(id)).Scan(&found)
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound(id)
	}
	if err != nil {
		return fmt.Errorf("could not lock record: %w", err)
	}
	return nil
}

func upsertFields(ctx context.Context, tx pgx.Tx, id record.RecordID, fields map[string]codec.Value) error {
	if len(fields) == 0 {
		return nil
	}
	sql, args := buildUpsertFieldsSQL(id, fields)
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("could not write fields: %w", err)
	}
	return nil
}

// buildUpsertFieldsSQL builds one multi-row upsert for a record's fields.
// Keys are written in sorted order so the statement is deterministic.
func buildUpsertFieldsSQL(id record.RecordID, fields map[string]codec.Value) (string, []any) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("INSERT INTO record_fields (record_id, key, tag, value) VALUES ")
	args := make([]any, 0, len(keys)*3+1)
	args = append(args, string(id))
	p := 2
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "($1, $%d, $%d, $%d)", p, p+1, p+2)
		v := fields[k]
		args = append(args, k, string(v.Tag), v.Raw)
		p += 3
	}
	b.WriteString(" ON CONFLICT (record_id, key) DO UPDATE SET tag = EXCLUDED.tag, value = EXCLUDED.value")
	return b.String(), args
}

func notFound(id record.RecordID) error {
	return domainerrors.NewError(domainerrors.CodeNotFound, fmt.Sprintf("record %s", id), nil)
}
