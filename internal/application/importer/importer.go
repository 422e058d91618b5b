// Package importer pulls external records into the local store.
//
// Each record goes through one attempt: fetched, mapped, matched, persisted
// and recorded. Any stage may fail, which ends the attempt with an error
// outcome. Errors never escape the importer; they are reported as outcomes.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jbctechsolutions/listingsync/internal/application/matcher"
	"github.com/jbctechsolutions/listingsync/internal/application/observability"
	"github.com/jbctechsolutions/listingsync/internal/application/ports"
	"github.com/jbctechsolutions/listingsync/internal/application/status"
	domainerrors "github.com/jbctechsolutions/listingsync/internal/domain/errors"
	"github.com/jbctechsolutions/listingsync/internal/domain/mapping"
	"github.com/jbctechsolutions/listingsync/internal/domain/outcome"
	"github.com/jbctechsolutions/listingsync/internal/domain/record"
	"github.com/jbctechsolutions/listingsync/internal/infrastructure/logging"
)

// DefaultPerPage is the index page size used when Config.PerPage is unset.
const DefaultPerPage = 50

// Config holds the importer's collaborators.
type Config struct {
	API      ports.ExternalAPI
	Store    ports.RecordStore
	Registry *mapping.Registry
	Mapper   *mapping.Mapper
	Tracker  *status.Tracker
	Observer *observability.Service

	// Media downloads images. Nil disables media sync.
	Media ports.MediaFetcher

	// PreserveLocal lists, per entity, the fields a local edit owns.
	PreserveLocal map[record.EntityType][]string

	PerPage int
	Clock   func() time.Time
}

// BatchResult is the result of a bulk import.
type BatchResult struct {
	Outcomes []outcome.Outcome `json:"outcomes"`
	Summary  outcome.Summary   `json:"summary"`
}

// Importer runs import attempts. It is not safe to import the same external
// id from two goroutines at once.
type Importer struct {
	api           ports.ExternalAPI
	store         ports.RecordStore
	registry      *mapping.Registry
	mapper        *mapping.Mapper
	matcher       *matcher.Matcher
	tracker       *status.Tracker
	observer      *observability.Service
	media         ports.MediaFetcher
	preserveLocal map[record.EntityType]map[string]bool
	perPage       int
	now           func() time.Time
}

// New creates an importer.
func New(cfg Config) (*Importer, error) {
	switch {
	case cfg.API == nil:
		return nil, domainerrors.New("importer", "external API is required")
	case cfg.Store == nil:
		return nil, domainerrors.New("importer", "record store is required")
	case cfg.Registry == nil:
		return nil, domainerrors.New("importer", "mapping registry is required")
	case cfg.Tracker == nil:
		return nil, domainerrors.New("importer", "status tracker is required")
	}

	mapper := cfg.Mapper
	if mapper == nil {
		mapper = mapping.NewMapper()
	}
	observer := cfg.Observer
	if observer == nil {
		observer = observability.NewService(observability.ServiceConfig{})
	}
	perPage := cfg.PerPage
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	preserve := make(map[record.EntityType]map[string]bool, len(cfg.PreserveLocal))
	for entity, keys := range cfg.PreserveLocal {
		set := make(map[string]bool, len(keys))
		for _, k := range keys {
			set[k] = true
		}
		preserve[entity] = set
	}

	return &Importer{
		api:           cfg.API,
		store:         cfg.Store,
		registry:      cfg.Registry,
		mapper:        mapper,
		matcher:       matcher.New(cfg.Store),
		tracker:       cfg.Tracker,
		observer:      observer,
		media:         cfg.Media,
		preserveLocal: preserve,
		perPage:       perPage,
		now:           now,
	}, nil
}

// ImportOne fetches one external record by id and imports it.
func (im *Importer) ImportOne(ctx context.Context, entity record.EntityType, externalID string) outcome.Outcome {
	ctx, obs := im.observer.StartImport(ctx, entity, externalID)
	a := &attempt{entity: entity, externalID: externalID, obs: obs}

	ext, err := im.fetch(ctx, entity, externalID)
	if err != nil {
		return im.fail(ctx, a, err)
	}
	a.ext = ext
	a.advance(stageFetched)

	return im.run(ctx, a)
}

// ImportPage imports every record of one index page, in order. A failed
// index fetch yields a single error outcome.
func (im *Importer) ImportPage(ctx context.Context, entity record.EntityType, filter ports.Filter, page int) []outcome.Outcome {
	outcomes, _, err := im.importPage(ctx, entity, filter, page)
	if err != nil {
		return append(outcomes, im.fatal(entity, page, err))
	}
	return outcomes
}

// ImportAll walks the index from the first page until the API reports no
// next page. The walk stops at the first failed index fetch; outcomes
// gathered so far are kept and a fatal outcome is appended.
func (im *Importer) ImportAll(ctx context.Context, entity record.EntityType, filter ports.Filter) BatchResult {
	if logging.CorrelationID(ctx) == "" {
		ctx = logging.WithCorrelationID(ctx, "")
	}

	var result BatchResult
	page := 1
	for {
		outcomes, pg, err := im.importPage(ctx, entity, filter, page)
		for _, o := range outcomes {
			result.Summary.Add(o)
		}
		result.Outcomes = append(result.Outcomes, outcomes...)
		if err != nil {
			f := im.fatal(entity, page, err)
			result.Outcomes = append(result.Outcomes, f)
			result.Summary.Fatal = f.Message
			return result
		}
		result.Summary.Pages++

		if pg.NextPage == 0 || pg.NextPage <= page {
			return result
		}
		page = pg.NextPage
	}
}

func (im *Importer) importPage(ctx context.Context, entity record.EntityType, filter ports.Filter, page int) ([]outcome.Outcome, ports.Pagination, error) {
	if page < 1 {
		page = 1
	}
	ctx, po := im.observer.StartPage(ctx, entity, page)

	res, err := im.api.GetRecords(ctx, entity, filter, page, im.perPage)
	if err != nil {
		po.Fail(ctx, err)
		return nil, ports.Pagination{}, err
	}
	po.Fetched(ctx, len(res.Results), res.Pagination.TotalPages)
	defer po.End()

	outcomes := make([]outcome.Outcome, 0, len(res.Results))
	for i, ext := range res.Results {
		rctx, obs := im.observer.StartImport(ctx, entity, ext.ID())
		a := &attempt{
			entity:     entity,
			externalID: ext.ID(),
			position:   fmt.Sprintf("page %d item %d", page, i+1),
			ext:        ext,
			obs:        obs,
		}
		a.advance(stageFetched)
		outcomes = append(outcomes, im.run(rctx, a))
	}
	return outcomes, res.Pagination, nil
}

// fatal builds the outcome that stands for a failed index page. It is not
// stored, since it belongs to no record.
func (im *Importer) fatal(entity record.EntityType, page int, err error) outcome.Outcome {
	return outcome.Outcome{
		EntityType: entity,
		Direction:  outcome.DirectionPull,
		Status:     outcome.StatusError,
		Message:    fmt.Errorf("%w: page %d: %w", domainerrors.ErrFetch, page, err).Error(),
		Timestamp:  im.now().UTC(),
	}
}

func (im *Importer) fetch(ctx context.Context, entity record.EntityType, externalID string) (record.External, error) {
	if externalID == "" {
		return nil, fmt.Errorf("%w: %w", domainerrors.ErrFetch, domainerrors.ErrNoExternalID)
	}
	res, err := im.api.GetRecords(ctx, entity, ports.Filter{ports.FilterIDs: externalID}, 1, 1)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domainerrors.ErrFetch, err)
	}
	for _, ext := range res.Results {
		if ext.ID() == externalID {
			return ext, nil
		}
	}
	return nil, fmt.Errorf("%w: %s %s not returned by the API", domainerrors.ErrFetch, entity, externalID)
}

// run carries a fetched attempt through to a recorded outcome.
func (im *Importer) run(ctx context.Context, a *attempt) outcome.Outcome {
	table, err := im.registry.Table(a.entity)
	if err != nil {
		return im.fail(ctx, a, err)
	}

	fields, anomalies := im.mapper.ApplyWithAnomalies(table, a.ext)
	for _, an := range anomalies {
		logging.LogFieldDropped(ctx, im.observer.Logger(), an.Target, an.Source, string(an.Kind))
	}
	if a.externalID == "" {
		a.externalID, _ = fields.String(record.FieldExternalID)
	}
	a.fields = fields
	a.advance(stageMapped)

	match, err := im.matcher.Resolve(ctx, a.entity, a.externalID)
	if err != nil {
		return im.fail(ctx, a, err)
	}
	if len(match.Ambiguous) > 0 {
		im.warnAmbiguous(ctx, a, match)
	}
	a.match = match
	a.advance(stageMatched)

	if err := im.persist(ctx, a); err != nil {
		return im.fail(ctx, a, fmt.Errorf("%w: %w", domainerrors.ErrPersistence, err))
	}
	ctx = a.obs.Resolved(ctx, a.id)
	a.advance(stagePersisted)

	im.syncReferences(ctx, a)
	im.syncMedia(ctx, a)

	o, err := im.tracker.Record(ctx, a.outcome(im.now()))
	if err != nil {
		return im.fail(ctx, a, err)
	}
	a.advance(stageRecorded)
	a.obs.Complete(ctx, o)
	return o
}

func (im *Importer) warnAmbiguous(ctx context.Context, a *attempt, match matcher.Match) {
	ids := make([]string, len(match.Ambiguous))
	for i, id := range match.Ambiguous {
		ids[i] = string(id)
	}
	logging.LogMatchAmbiguity(ctx, im.observer.Logger(), string(match.ID), ids)
	a.warn(fmt.Sprintf("%s: using %s of %s", domainerrors.ErrMatchAmbiguity, match.ID, strings.Join(ids, ", ")))
}

// persist creates the record or writes the fields that changed. Nothing is
// written when nothing changed.
func (im *Importer) persist(ctx context.Context, a *attempt) error {
	synced := im.now().UTC().Format(time.RFC3339)

	if a.match.Create {
		fields := a.fields.Clone()
		fields[record.FieldLastSynced] = synced
		id, err := im.store.Create(ctx, a.entity, fields)
		if err != nil {
			return err
		}
		a.id = id
		a.current = fields
		a.status = outcome.StatusCreated
		a.changed = a.fields.Keys()
		return nil
	}

	a.id = a.match.ID
	_, existing, err := im.store.Get(ctx, a.id)
	if err != nil {
		return err
	}
	incoming := im.applyMergePolicy(a, existing)

	diff, changed := existing.Diff(incoming, record.FieldLastSynced)
	a.current = existing.Clone()
	if len(changed) == 0 {
		a.status = outcome.StatusUnchanged
		return nil
	}

	diff[record.FieldLastSynced] = synced
	if err := im.store.Update(ctx, a.id, diff); err != nil {
		return err
	}
	for k, v := range diff {
		a.current[k] = v
	}
	a.status = outcome.StatusUpdated
	a.changed = changed
	return nil
}

// applyMergePolicy drops incoming values for locally owned fields that
// already hold a value. Every other mapped field is remote-wins.
func (im *Importer) applyMergePolicy(a *attempt, existing record.Fields) record.Fields {
	owned := im.preserveLocal[a.entity]
	if len(owned) == 0 {
		return a.fields
	}
	incoming := a.fields.Clone()
	for _, k := range a.fields.Keys() {
		if !owned[k] {
			continue
		}
		local, ok := existing[k]
		if !ok || local == "" || record.ValuesEqual(local, incoming[k]) {
			continue
		}
		delete(incoming, k)
		a.warn(fmt.Sprintf("kept local value of %s", k))
	}
	return incoming
}

// fail ends the attempt with an error outcome and records it.
func (im *Importer) fail(ctx context.Context, a *attempt, err error) outcome.Outcome {
	failedAt := a.stage.next()
	a.obs.Fail(ctx, string(failedAt), err)

	if a.id == "" {
		a.id = im.resolveForFailure(ctx, a)
	}

	o := a.outcome(im.now())
	o.Status = outcome.StatusError
	o.Message = err.Error()
	if a.externalID == "" && a.position != "" {
		o.Message = a.position + ": " + o.Message
	}
	o.Changed = nil

	recorded, rerr := im.tracker.Record(ctx, o)
	if rerr != nil {
		im.observer.Logger().ErrorContext(ctx, "recording failed outcome", "error", rerr)
		return o
	}
	return recorded
}

// resolveForFailure finds the local record a failed attempt belongs to, so
// its error outcome supersedes the record's previous one. Lookup errors are
// logged and leave the outcome keyed by external id only.
func (im *Importer) resolveForFailure(ctx context.Context, a *attempt) record.RecordID {
	if a.match.ID != "" {
		return a.match.ID
	}
	if a.externalID == "" {
		return ""
	}
	match, err := im.matcher.Resolve(ctx, a.entity, a.externalID)
	if err != nil {
		im.observer.Logger().WarnContext(ctx, "resolving record of failed import",
			"entity", a.entity, "external_id", a.externalID, "error", err)
		return ""
	}
	return match.ID
}

func (im *Importer) markUpdated(a *attempt, keys ...string) {
	a.changed = mergeKeys(a.changed, keys)
	if a.status == outcome.StatusUnchanged {
		a.status = outcome.StatusUpdated
	}
}

func mergeKeys(into []string, keys []string) []string {
	seen := make(map[string]bool, len(into))
	for _, k := range into {
		seen[k] = true
	}
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			into = append(into, k)
		}
	}
	return into
}

func rawPayload(ext record.External) json.RawMessage {
	if !ext.Valid() {
		return nil
	}
	return json.RawMessage(ext)
}
