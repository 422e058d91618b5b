package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jbctechsolutions/listingsync/internal/adapters/store"
	"github.com/jbctechsolutions/listingsync/internal/adapters/store/codec"
	domainerrors "github.com/jbctechsolutions/listingsync/internal/domain/errors"
	"github.com/jbctechsolutions/listingsync/internal/domain/outcome"
	"github.com/jbctechsolutions/listingsync/internal/domain/record"
	"github.com/jbctechsolutions/listingsync/internal/infrastructure/config"
)

func init() {
	store.Register("sqlite", func(ctx context.Context, cfg config.StoreConfig) (store.Backend, error) {
		return Open(cfg.DSN)
	})
}

// Store implements ports.RecordStore and ports.StatusStore on SQLite.
type Store struct {
	conn *Connection
}

// Open opens (creating if needed) the database at dbPath.
func Open(dbPath string) (*Store, error) {
	conn, err := NewConnection(dbPath)
	if err != nil {
		return nil, err
	}
	if err := conn.Open(); err != nil {
		return nil, err
	}
	return &Store{conn: conn}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// FindByField returns matching records in creation order.
func (s *Store) FindByField(ctx context.Context, entity record.EntityType, key string, value any) ([]record.RecordID, error) {
	db, err := s.conn.DB()
	if err != nil {
		return nil, err
	}
	tag, raw, err := codec.Encode(value)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT r.id FROM records r
		JOIN record_fields f ON f.record_id = r.id
		WHERE r.entity = ? AND f.key = ? AND f.tag = ? AND f.value = ?
		ORDER BY r.seq`, string(entity), key, string(tag), raw)
	if err != nil {
		return nil, fmt.Errorf("could not query records: %w", err)
	}
	defer rows.Close()

	var ids []record.RecordID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("could not scan record id: %w", err)
		}
		ids = append(ids, record.RecordID(id))
	}
	return ids, rows.Err()
}

// Get returns a record's fields.
func (s *Store) Get(ctx context.Context, id record.RecordID) (record.EntityType, record.Fields, error) {
	db, err := s.conn.DB()
	if err != nil {
		return "", nil, err
	}

	var entity string
	err = db.QueryRowContext(ctx, "SELECT entity FROM records WHERE id = ?", string(id)).Scan(&entity)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, notFound(id)
	}
	if err != nil {
		return "", nil, fmt.Errorf("could not get record: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT key, tag, value FROM record_fields WHERE record_id = ?", string(id))
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

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO records (id, entity) VALUES (?, ?)", string(id), string(entity)); err != nil {
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
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireRecord(ctx, tx, id); err != nil {
			return err
		}
		return upsertFields(ctx, tx, id, encoded)
	})
}

// DeleteFields removes fields from a record.
func (s *Store) DeleteFields(ctx context.Context, id record.RecordID, keys ...string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireRecord(ctx, tx, id); err != nil {
			return err
		}
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx, "DELETE FROM record_fields WHERE record_id = ? AND key = ?", string(id), k); err != nil {
				return fmt.Errorf("could not delete field %s: %w", k, err)
			}
		}
		return nil
	})
}

// Delete removes a record. Fields and media cascade.
func (s *Store) Delete(ctx context.Context, id record.RecordID) error {
	db, err := s.conn.DB()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, "DELETE FROM records WHERE id = ?", string(id))
	if err != nil {
		return fmt.Errorf("could not delete record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(id)
	}
	return nil
}

// AttachMedia stores an asset owned by the record.
func (s *Store) AttachMedia(ctx context.Context, id record.RecordID, data []byte, altText string) (record.MediaID, error) {
	mid := record.MediaID(uuid.New().String())
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireRecord(ctx, tx, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "INSERT INTO media (id, record_id, data, alt_text) VALUES (?, ?, ?, ?)",
			string(mid), string(id), data, altText)
		if err != nil {
			return fmt.Errorf("could not insert media: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return mid, nil
}

// SetPrimaryMedia marks one asset primary and clears the mark on the others.
func (s *Store) SetPrimaryMedia(ctx context.Context, id record.RecordID, mediaID record.MediaID) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var count int
		err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM media WHERE id = ? AND record_id = ?", string(mediaID), string(id)).Scan(&count)
		if err != nil {
			return fmt.Errorf("could not check media: %w", err)
		}
		if count == 0 {
			return domainerrors.NewError(domainerrors.CodeNotFound, fmt.Sprintf("media %s on record %s", mediaID, id), nil)
		}
		if _, err := tx.ExecContext(ctx, "UPDATE media SET is_primary = (id = ?) WHERE record_id = ?", string(mediaID), string(id)); err != nil {
			return fmt.Errorf("could not set primary media: %w", err)
		}
		return nil
	})
}

// DetachMedia deletes an asset.
func (s *Store) DetachMedia(ctx context.Context, id record.RecordID, mediaID record.MediaID) error {
	db, err := s.conn.DB()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM media WHERE id = ? AND record_id = ?", string(mediaID), string(id)); err != nil {
		return fmt.Errorf("could not delete media: %w", err)
	}
	return nil
}

// PrimaryMedia returns the primary media id of a record, or "".
func (s *Store) PrimaryMedia(ctx context.Context, id record.RecordID) (record.MediaID, error) {
	db, err := s.conn.DB()
	if err != nil {
		return "", err
	}
	var mid string
	err = db.QueryRowContext(ctx, "SELECT id FROM media WHERE record_id = ? AND is_primary = 1", string(id)).Scan(&mid)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("could not get primary media: %w", err)
	}
	return record.MediaID(mid), nil
}

// Save stores the latest outcome under key.
func (s *Store) Save(ctx context.Context, key string, o outcome.Outcome) error {
	db, err := s.conn.DB()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("could not marshal outcome: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO sync_outcomes (key, status, payload, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET status = excluded.status, payload = excluded.payload, updated_at = excluded.updated_at`,
		key, string(o.Status), string(payload), o.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("could not save outcome: %w", err)
	}
	return nil
}

// Load returns the outcome stored under key, or nil.
func (s *Store) Load(ctx context.Context, key string) (*outcome.Outcome, error) {
	db, err := s.conn.DB()
	if err != nil {
		return nil, err
	}
	var payload string
	err = db.QueryRowContext(ctx, "SELECT payload FROM sync_outcomes WHERE key = ?", key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not load outcome: %w", err)
	}
	var o outcome.Outcome
	if err := json.Unmarshal([]byte(payload), &o); err != nil {
		return nil, fmt.Errorf("could not unmarshal outcome: %w", err)
	}
	return &o, nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	db, err := s.conn.DB()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func requireRecord(ctx context.Context, tx *sql.Tx, id record.RecordID) error {
	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM records WHERE id = ?", string(id)).Scan(&count); err != nil {
		return fmt.Errorf("could not check record: %w", err)
	}
	if count == 0 {
		return notFound(id)
	}
	return nil
}

func upsertFields(ctx context.Context, tx *sql.Tx, id record.RecordID, fields map[string]codec.Value) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO record_fields (record_id, key, tag, value) VALUES (?, ?, ?, ?)
		ON CONFLICT(record_id, key) DO UPDATE SET tag = excluded.tag, value = excluded.value`)
	if err != nil {
		return fmt.Errorf("could not prepare field upsert: %w", err)
	}
	defer stmt.Close()

	for k, v := range fields {
		if _, err := stmt.ExecContext(ctx, string(id), k, string(v.Tag), v.Raw); err != nil {
			return fmt.Errorf("could not write field %s: %w", k, err)
		}
	}
	return nil
}

func notFound(id record.RecordID) error {
	return domainerrors.NewError(domainerrors.CodeNotFound, fmt.Sprintf("record %s", id), nil)
}
