package ports

import (
	"context"

	"github.com/jbctechsolutions/listingsync/internal/domain/outcome"
)

// StatusStore keeps the latest sync outcome per key. Save overwrites.
type StatusStore interface {
	Save(ctx context.Context, key string, o outcome.Outcome) error

	// Load returns nil and no error when nothing is stored under key.
	Load(ctx context.Context, key string) (*outcome.Outcome, error)
}

// OutcomePublisher announces recorded outcomes to other systems.
type OutcomePublisher interface {
	Publish(ctx context.Context, o outcome.Outcome) error
	Close() error
}

// MetricsRecorder receives sync counters and timings.
type MetricsRecorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveHistogram(name string, value float64, labels map[string]string)
}

// Metric names emitted by the engine.
const (
	MetricOutcomes        = "listingsync_outcomes_total"           // labels: entity, direction, status
	MetricAttemptDuration = "listingsync_attempt_duration_seconds" // labels: entity, direction, status
	MetricPages           = "listingsync_pages_total"              // labels: entity, status
	MetricMediaDownloads  = "listingsync_media_downloads_total"    // labels: entity, status
	MetricWarnings        = "listingsync_warnings_total"           // labels: entity, direction
)
