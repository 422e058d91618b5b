// Package engine is the entry point of the sync engine. It pulls records
// through the importer, pushes local records back to the external API and
// answers status queries.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jbctechsolutions/listingsync/internal/application/importer"
	"github.com/jbctechsolutions/listingsync/internal/application/observability"
	"github.com/jbctechsolutions/listingsync/internal/application/payload"
	"github.com/jbctechsolutions/listingsync/internal/application/ports"
	"github.com/jbctechsolutions/listingsync/internal/application/status"
	domainerrors "github.com/jbctechsolutions/listingsync/internal/domain/errors"
	"github.com/jbctechsolutions/listingsync/internal/domain/mapping"
	"github.com/jbctechsolutions/listingsync/internal/domain/outcome"
	"github.com/jbctechsolutions/listingsync/internal/domain/record"
)

const (
	defaultLocationResults = 20
	maxLocationResults     = 100
)

// Config holds the engine's collaborators. The embedded importer
// configuration is shared by both sync directions.
type Config struct {
	importer.Config

	// Builder assembles push payloads. Defaults to a builder over the
	// importer's registry with the listing price hook installed.
	Builder *payload.Builder
}

// Engine is the produced surface of the sync engine. Calls are synchronous.
type Engine struct {
	importer *importer.Importer
	api      ports.ExternalAPI
	store    ports.RecordStore
	registry *mapping.Registry
	builder  *payload.Builder
	tracker  *status.Tracker
	observer *observability.Service
	now      func() time.Time
}

// New creates an engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Mapper == nil {
		cfg.Mapper = payload.DefaultMapper()
	}
	if cfg.Observer == nil {
		cfg.Observer = observability.NewService(observability.ServiceConfig{})
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	imp, err := importer.New(cfg.Config)
	if err != nil {
		return nil, err
	}

	builder := cfg.Builder
	if builder == nil {
		builder = payload.NewBuilder(cfg.Registry, cfg.Mapper)
	}

	return &Engine{
		importer: imp,
		api:      cfg.API,
		store:    cfg.Store,
		registry: cfg.Registry,
		builder:  builder,
		tracker:  cfg.Tracker,
		observer: cfg.Observer,
		now:      cfg.Clock,
	}, nil
}

// ImportOne imports one external record by id.
func (e *Engine) ImportOne(ctx context.Context, entity record.EntityType, externalID string) outcome.Outcome {
	return e.importer.ImportOne(ctx, entity, externalID)
}

// ImportPage imports one index page.
func (e *Engine) ImportPage(ctx context.Context, entity record.EntityType, filter ports.Filter, page int) []outcome.Outcome {
	return e.importer.ImportPage(ctx, entity, filter, page)
}

// ImportAll imports every index page.
func (e *Engine) ImportAll(ctx context.Context, entity record.EntityType, filter ports.Filter) importer.BatchResult {
	return e.importer.ImportAll(ctx, entity, filter)
}

// PushToAPI sends a local record to the external API. The bool reports
// whether the API accepted the payload and the error explains a refusal.
// An outcome is recorded either way.
func (e *Engine) PushToAPI(ctx context.Context, entity record.EntityType, id record.RecordID) (bool, error) {
	ctx, obs := e.observer.StartPush(ctx, entity, id)

	o := outcome.Outcome{
		RecordID:   id,
		EntityType: entity,
		Direction:  outcome.DirectionPush,
	}

	fail := func(stage string, err error) (bool, error) {
		obs.Fail(ctx, stage, err)
		o.Status = outcome.StatusError
		o.Message = err.Error()
		if _, rerr := e.tracker.Record(ctx, o); rerr != nil {
			e.observer.Logger().ErrorContext(ctx, "recording failed push", "error", rerr)
		}
		return false, err
	}

	stored, fields, err := e.store.Get(ctx, id)
	if err != nil {
		return fail("read", fmt.Errorf("%w: %w", domainerrors.ErrPersistence, err))
	}
	if stored != entity {
		return fail("read", domainerrors.New("push", fmt.Sprintf("record %s is a %s, not a %s", id, stored, entity)))
	}
	externalID, _ := fields.String(record.FieldExternalID)
	o.ExternalID = externalID
	if externalID == "" {
		return fail("read", domainerrors.ErrNoExternalID)
	}

	body, err := e.builder.Build(entity, fields)
	if err != nil {
		return fail("build", err)
	}
	hash, err := payload.Hash(body)
	if err != nil {
		return fail("build", err)
	}
	o.RawPayload = []byte(body)

	accepted, err := e.api.UpdateRecord(ctx, entity, externalID, body)
	if !accepted && err == nil {
		err = fmt.Errorf("%s %s: update not accepted", entity, externalID)
	}
	if accepted {
		o.Status = outcome.StatusUpdated
		o.Message = "pushed payload " + hash
		synced := e.now().UTC().Format(time.RFC3339)
		if uerr := e.store.Update(ctx, id, record.Fields{record.FieldLastSynced: synced}); uerr != nil {
			o.Warnings = append(o.Warnings, fmt.Sprintf("recording sync time: %v", uerr))
		}
		err = nil
	} else {
		o.Status = outcome.StatusError
		o.Message = fmt.Sprintf("push rejected: %v (payload %s)", err, hash)
	}

	recorded, rerr := e.tracker.Record(ctx, o)
	if rerr != nil {
		e.observer.Logger().ErrorContext(ctx, "recording push outcome", "error", rerr)
		recorded = o
	}
	obs.CompletePush(ctx, recorded, accepted, hash, err)
	return accepted, err
}

// GetLastOutcome returns the latest outcome for a local record, or nil.
func (e *Engine) GetLastOutcome(ctx context.Context, id record.RecordID) (*outcome.Outcome, error) {
	return e.tracker.LastOutcome(ctx, id)
}

// GetLastOutcomeByExternal returns the latest outcome for an external record, or nil.
func (e *Engine) GetLastOutcomeByExternal(ctx context.Context, entity record.EntityType, externalID string) (*outcome.Outcome, error) {
	return e.tracker.LastOutcomeByExternal(ctx, entity, externalID)
}

// SearchLocations looks up external locations by free text.
func (e *Engine) SearchLocations(ctx context.Context, query string, perPage int) ([]ports.LocationSummary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domainerrors.New("locations", "query is empty")
	}
	if perPage < 1 {
		perPage = defaultLocationResults
	}
	if perPage > maxLocationResults {
		perPage = maxLocationResults
	}

	ctx, span := e.observer.StartFetch(ctx, "search_locations", query)
	locs, err := e.api.SearchLocations(ctx, query, perPage)
	if err != nil {
		err = fmt.Errorf("%w: %w", domainerrors.ErrFetch, err)
		span.EndWithError(err)
		return nil, err
	}
	span.End()
	return locs, nil
}

// UnsetFields deletes fields from a local record. Engine-owned bookkeeping
// fields cannot be unset this way.
func (e *Engine) UnsetFields(ctx context.Context, id record.RecordID, keys ...string) error {
	for _, k := range keys {
		if record.IsBookkeeping(k) {
			return domainerrors.New("unset", fmt.Sprintf("%s is managed by the sync engine", k))
		}
	}
	if len(keys) == 0 {
		return nil
	}
	if _, _, err := e.store.Get(ctx, id); err != nil {
		return err
	}
	if err := e.store.DeleteFields(ctx, id, keys...); err != nil {
		return fmt.Errorf("%w: %w", domainerrors.ErrPersistence, err)
	}
	return nil
}

// RemoveGalleryItem detaches one gallery asset from a record.
func (e *Engine) RemoveGalleryItem(ctx context.Context, id record.RecordID, mediaID record.MediaID) error {
	_, fields, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}
	gallery, ok := record.GalleryFromField(fields[record.FieldGallery]).Remove(mediaID)
	if !ok {
		return domainerrors.NewError(domainerrors.CodeNotFound, fmt.Sprintf("media %s in gallery of %s", mediaID, id), nil)
	}
	if err := e.store.DetachMedia(ctx, id, mediaID); err != nil {
		return fmt.Errorf("%w: %w", domainerrors.ErrPersistence, err)
	}
	if len(gallery) == 0 {
		err = e.store.DeleteFields(ctx, id, record.FieldGallery)
	} else {
		err = e.store.Update(ctx, id, record.Fields{record.FieldGallery: gallery.Field()})
	}
	if err != nil {
		return fmt.Errorf("%w: %w", domainerrors.ErrPersistence, err)
	}
	return nil
}

// Table returns the active mapping table of entity.
func (e *Engine) Table(entity record.EntityType) (*mapping.Table, error) {
	return e.registry.Table(entity)
}
