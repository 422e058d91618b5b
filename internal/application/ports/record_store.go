package ports

import (
	"context"

	"github.com/jbctechsolutions/listingsync/internal/domain/record"
)

// RecordStore persists local records. The engine reads and writes records
// only through this port and keeps no copy between calls.
//
// Composite field values ([]any, map[string]any) are encoded by the store and
// must decode to values deeply equal to what was written.
type RecordStore interface {
	// FindByField returns the records of entity whose field key equals value,
	// oldest first.
	FindByField(ctx context.Context, entity record.EntityType, key string, value any) ([]record.RecordID, error)

	// Get returns a record's fields. It returns an error wrapping
	// errors.ErrNotFound when the record does not exist.
	Get(ctx context.Context, id record.RecordID) (record.EntityType, record.Fields, error)

	// Create stores a new record and returns its id.
	Create(ctx context.Context, entity record.EntityType, fields record.Fields) (record.RecordID, error)

	// Update writes the given fields, leaving other fields untouched.
	Update(ctx context.Context, id record.RecordID, fields record.Fields) error

	// DeleteFields removes fields from a record. Missing keys are ignored.
	DeleteFields(ctx context.Context, id record.RecordID, keys ...string) error

	// Delete removes a record with its fields and media.
	Delete(ctx context.Context, id record.RecordID) error

	// AttachMedia stores a binary asset owned by the record.
	AttachMedia(ctx context.Context, id record.RecordID, data []byte, altText string) (record.MediaID, error)

	// SetPrimaryMedia marks an attached asset as the record's primary image.
	SetPrimaryMedia(ctx context.Context, id record.RecordID, mediaID record.MediaID) error

	// DetachMedia deletes an attached asset. Clearing the primary image is
	// the store's responsibility when that asset was primary.
	DetachMedia(ctx context.Context, id record.RecordID, mediaID record.MediaID) error

	// Close releases the store's resources.
	Close() error
}
