// Package observability ties logging, tracing and metrics to the sync
// lifecycle. Every import, push and index page gets a log line, a span and
// a duration sample.
package observability

import (
	"context"
	"time"

	"github.com/jbctechsolutions/listingsync/internal/application/ports"
	"github.com/jbctechsolutions/listingsync/internal/domain/outcome"
	"github.com/jbctechsolutions/listingsync/internal/domain/record"
	"github.com/jbctechsolutions/listingsync/internal/infrastructure/logging"
	"github.com/jbctechsolutions/listingsync/internal/infrastructure/tracing"
)

// Service provides observability for sync attempts.
type Service struct {
	logger  *logging.Logger
	tracer  *tracing.Tracer
	metrics ports.MetricsRecorder
	now     func() time.Time
}

// ServiceConfig holds configuration for the observability service.
type ServiceConfig struct {
	Logger  *logging.Logger
	Tracer  *tracing.Tracer
	Metrics ports.MetricsRecorder
	Clock   func() time.Time
}

// NewService creates a new observability service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = tracing.Default()
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	return &Service{
		logger:  logger,
		tracer:  tracer,
		metrics: cfg.Metrics,
		now:     now,
	}
}

// Logger returns the service logger.
func (s *Service) Logger() *logging.Logger {
	return s.logger
}

// AttemptObserver follows one import or push.
type AttemptObserver struct {
	service   *Service
	entity    record.EntityType
	direction outcome.Direction
	startTime time.Time
	span      *tracing.SyncSpan
}

// StartImport begins observing an import of one external record.
func (s *Service) StartImport(ctx context.Context, entity record.EntityType, externalID string) (context.Context, *AttemptObserver) {
	ctx = ensureCorrelation(ctx)
	ctx = logging.WithRecordScope(ctx, string(entity), externalID)

	logging.LogImportStart(ctx, s.logger)

	ctx, span := s.tracer.StartImportSpan(ctx, string(entity), externalID)
	return ctx, &AttemptObserver{
		service:   s,
		entity:    entity,
		direction: outcome.DirectionPull,
		startTime: s.now(),
		span:      span,
	}
}

// StartPush begins observing a push of one local record.
func (s *Service) StartPush(ctx context.Context, entity record.EntityType, id record.RecordID) (context.Context, *AttemptObserver) {
	ctx = ensureCorrelation(ctx)
	ctx = logging.WithRecordScope(ctx, string(entity), "")
	ctx = logging.WithRecordID(ctx, string(id))

	s.logger.DebugContext(ctx, "push started")

	ctx, span := s.tracer.StartPushSpan(ctx, string(entity), string(id))
	return ctx, &AttemptObserver{
		service:   s,
		entity:    entity,
		direction: outcome.DirectionPush,
		startTime: s.now(),
		span:      span,
	}
}

// Resolved records the local record the attempt is working on.
func (ao *AttemptObserver) Resolved(ctx context.Context, id record.RecordID) context.Context {
	ao.span.SetRecordID(string(id))
	return logging.WithRecordID(ctx, string(id))
}

// Warn records a non-fatal anomaly on the span.
func (ao *AttemptObserver) Warn(msg string) {
	ao.span.AddWarning(msg)
}

// Complete ends an attempt that produced an outcome without error.
func (ao *AttemptObserver) Complete(ctx context.Context, o outcome.Outcome) {
	duration := ao.service.now().Sub(ao.startTime)

	if ao.direction == outcome.DirectionPull {
		logging.LogImportComplete(ctx, ao.service.logger, string(o.Status), len(o.Changed), duration)
	}

	ao.span.SetOutcome(string(o.Status), len(o.Changed))
	ao.span.End()
	ao.observe(o.Status, duration)
}

// CompletePush ends a push attempt, accepted or not.
func (ao *AttemptObserver) CompletePush(ctx context.Context, o outcome.Outcome, accepted bool, payloadHash string, err error) {
	duration := ao.service.now().Sub(ao.startTime)

	logging.LogPushComplete(ctx, ao.service.logger, accepted, payloadHash, duration)

	ao.span.SetOutcome(string(o.Status), len(o.Changed))
	if err != nil {
		ao.span.EndWithError(err)
	} else {
		ao.span.End()
	}
	ao.observe(o.Status, duration)
}

// Fail ends an attempt that stopped at stage.
func (ao *AttemptObserver) Fail(ctx context.Context, stage string, err error) {
	duration := ao.service.now().Sub(ao.startTime)

	if ao.direction == outcome.DirectionPull {
		logging.LogImportFailed(ctx, ao.service.logger, stage, err, duration)
	} else {
		ao.service.logger.ErrorContext(ctx, "push failed", "stage", stage, "error", err.Error())
	}

	ao.span.SetOutcome(string(outcome.StatusError), 0)
	ao.span.EndWithError(err)
	ao.observe(outcome.StatusError, duration)
}

func (ao *AttemptObserver) observe(status outcome.Status, duration time.Duration) {
	if ao.service.metrics == nil {
		return
	}
	ao.service.metrics.ObserveHistogram(ports.MetricAttemptDuration, duration.Seconds(), map[string]string{
		"entity":    string(ao.entity),
		"direction": string(ao.direction),
		"status":    string(status),
	})
}

// PageObserver follows one index page of a bulk import.
type PageObserver struct {
	service *Service
	entity  record.EntityType
	page    int
	span    *tracing.SyncSpan
}

// StartPage begins observing an index page.
func (s *Service) StartPage(ctx context.Context, entity record.EntityType, page int) (context.Context, *PageObserver) {
	ctx = ensureCorrelation(ctx)
	ctx, span := s.tracer.StartPageSpan(ctx, string(entity), page)
	return ctx, &PageObserver{service: s, entity: entity, page: page, span: span}
}

// Fetched logs a successfully fetched page.
func (po *PageObserver) Fetched(ctx context.Context, results, totalPages int) {
	logging.LogPageFetched(ctx, po.service.logger, po.page, results, totalPages)
	po.count("ok")
}

// End ends the page span.
func (po *PageObserver) End() {
	po.span.End()
}

// Fail ends a page whose index fetch failed.
func (po *PageObserver) Fail(ctx context.Context, err error) {
	po.service.logger.ErrorContext(ctx, "page fetch failed", "page", po.page, "error", err.Error())
	po.span.EndWithError(err)
	po.count("error")
}

func (po *PageObserver) count(status string) {
	if po.service.metrics == nil {
		return
	}
	po.service.metrics.IncCounter(ports.MetricPages, map[string]string{
		"entity": string(po.entity),
		"status": status,
	})
}

// StartFetch starts a span for a standalone call to the external API.
func (s *Service) StartFetch(ctx context.Context, operation, target string) (context.Context, *tracing.SyncSpan) {
	return s.tracer.StartFetchSpan(ensureCorrelation(ctx), operation, target)
}

// MediaFailed logs a media failure and counts it.
func (s *Service) MediaFailed(ctx context.Context, entity record.EntityType, url string, err error) {
	logging.LogMediaFailure(ctx, s.logger, url, err)
	s.countMedia(entity, "error")
}

// MediaStored counts a downloaded and attached asset.
func (s *Service) MediaStored(entity record.EntityType) {
	s.countMedia(entity, "ok")
}

func (s *Service) countMedia(entity record.EntityType, status string) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncCounter(ports.MetricMediaDownloads, map[string]string{
		"entity": string(entity),
		"status": status,
	})
}

func ensureCorrelation(ctx context.Context) context.Context {
	if logging.CorrelationID(ctx) != "" {
		return ctx
	}
	return logging.WithCorrelationID(ctx, "")
}
