// Package status records and retrieves the latest sync outcome per record.
package status

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jbctechsolutions/listingsync/internal/application/ports"
	"github.com/jbctechsolutions/listingsync/internal/domain/outcome"
	"github.com/jbctechsolutions/listingsync/internal/domain/record"
	"github.com/jbctechsolutions/listingsync/internal/infrastructure/logging"
)

// Tracker stores outcomes and fans them out to the publisher and metrics.
type Tracker struct {
	store     ports.StatusStore
	publisher ports.OutcomePublisher
	metrics   ports.MetricsRecorder
	logger    *logging.Logger
	now       func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithPublisher announces every recorded outcome through p.
func WithPublisher(p ports.OutcomePublisher) Option {
	return func(t *Tracker) { t.publisher = p }
}

// WithMetrics counts every recorded outcome through m.
func WithMetrics(m ports.MetricsRecorder) Option {
	return func(t *Tracker) { t.metrics = m }
}

// WithLogger sets the logger used for publish failures.
func WithLogger(l *logging.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithClock sets the clock stamped on outcomes that carry no timestamp.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New creates a tracker over store.
func New(store ports.StatusStore, opts ...Option) *Tracker {
	t := &Tracker{
		store:  store,
		logger: logging.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record stores o as the latest outcome for its record, overwriting any
// earlier one. When both a record id and an external id are known the
// outcome is also stored under the external key. An outcome with neither id
// is not stored. Publishing is best effort.
func (t *Tracker) Record(ctx context.Context, o outcome.Outcome) (outcome.Outcome, error) {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = t.now()
	}
	o.Timestamp = o.Timestamp.UTC()

	// An outcome with neither id has no key anyone can look up, so it is
	// counted and published but not stored.
	var keys []string
	if o.RecordID != "" || o.ExternalID != "" {
		keys = append(keys, o.Key())
	}
	if o.RecordID != "" && o.ExternalID != "" {
		keys = append(keys, outcome.ExternalKey(o.EntityType, o.ExternalID))
	}
	for _, k := range keys {
		if err := t.store.Save(ctx, k, o); err != nil {
			return o, fmt.Errorf("saving outcome %s: %w", k, err)
		}
	}

	if t.metrics != nil {
		labels := map[string]string{
			"entity":    string(o.EntityType),
			"direction": string(o.Direction),
			"status":    string(o.Status),
		}
		t.metrics.IncCounter(ports.MetricOutcomes, labels)
		if len(o.Warnings) > 0 {
			t.metrics.IncCounter(ports.MetricWarnings, map[string]string{
				"entity":    string(o.EntityType),
				"direction": string(o.Direction),
			})
		}
	}

	if t.publisher != nil {
		if err := t.publisher.Publish(ctx, o); err != nil {
			t.logger.WarnContext(ctx, "outcome publish failed", "outcome_id", o.ID, "error", err)
		}
	}
	return o, nil
}

// LastOutcome returns the latest outcome for a local record, or nil.
func (t *Tracker) LastOutcome(ctx context.Context, id record.RecordID) (*outcome.Outcome, error) {
	return t.store.Load(ctx, outcome.RecordKey(id))
}

// LastOutcomeByExternal returns the latest outcome for an external record, or nil.
func (t *Tracker) LastOutcomeByExternal(ctx context.Context, entity record.EntityType, externalID string) (*outcome.Outcome, error) {
	return t.store.Load(ctx, outcome.ExternalKey(entity, externalID))
}
