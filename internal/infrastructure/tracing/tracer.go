// Package tracing provides OpenTelemetry tracing for sync operations. It
// supports stdout and OTLP exporters and falls back to a no-op tracer when
// disabled.
package tracing

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// TracerName is the instrumentation name of the sync tracer.
	TracerName = "github.com/jbctechsolutions/listingsync"

	// Version is the instrumentation version.
	Version = "0.4.0"
)

// ExporterType defines the type of trace exporter.
type ExporterType string

const (
	ExporterNone   ExporterType = "none"
	ExporterStdout ExporterType = "stdout"
	ExporterOTLP   ExporterType = "otlp"
)

// Config holds tracing configuration.
type Config struct {
	Enabled      bool         // Whether tracing is enabled
	ExporterType ExporterType // Type of exporter to use
	OTLPEndpoint string       // OTLP collector endpoint (for OTLP exporter)
	ServiceName  string       // Service name for traces
	Environment  string       // Deployment environment (development, production)
	SampleRate   float64      // Sampling rate (0.0 to 1.0)
	Output       io.Writer    // Output for stdout exporter (defaults to os.Stdout)
}

// DefaultConfig returns sensible default tracing configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		ExporterType: ExporterNone,
		ServiceName:  "listingsync",
		Environment:  "development",
		SampleRate:   1.0,
	}
}

// Tracer wraps an OpenTelemetry tracer with domain-specific functionality.
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	config   Config
}

// global is the package-level default tracer.
var (
	global     *Tracer
	globalOnce sync.Once
)

// Init initializes the global tracer with the provided configuration.
func Init(ctx context.Context, cfg Config) (*Tracer, error) {
	var err error
	globalOnce.Do(func() {
		global, err = New(ctx, cfg)
	})
	return global, err
}

// Default returns the global tracer, or a no-op tracer if not initialized.
func Default() *Tracer {
	if global == nil {
		return &Tracer{
			tracer: otel.Tracer(TracerName),
			config: DefaultConfig(),
		}
	}
	return global
}

// New creates a new Tracer with the provided configuration.
func New(ctx context.Context, cfg Config) (*Tracer, error) {
	if !cfg.Enabled || cfg.ExporterType == ExporterNone {
		return &Tracer{
			tracer: noop.NewTracerProvider().Tracer(TracerName),
			config: cfg,
		}, nil
	}

	exporter, err := createExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	// Not merged with resource.Default(): its schema URL differs from semconv v1.26.0.
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(Version),
			attribute.String("deployment.environment", cfg.Environment),
		),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	if cfg.SampleRate >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	} else if cfg.SampleRate <= 0.0 {
		sampler = sdktrace.NeverSample()
	} else {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	otel.SetTracerProvider(provider)

	return &Tracer{
		tracer:   provider.Tracer(TracerName, trace.WithInstrumentationVersion(Version)),
		provider: provider,
		config:   cfg,
	}, nil
}

// createExporter creates the appropriate exporter based on configuration.
func createExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		opts := []stdouttrace.Option{
			stdouttrace.WithPrettyPrint(),
		}
		if cfg.Output != nil {
			opts = append(opts, stdouttrace.WithWriter(cfg.Output))
		}
		return stdouttrace.New(opts...)

	case ExporterOTLP:
		opts := []otlptracehttp.Option{
			otlptracehttp.WithInsecure(),
		}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		return otlptracehttp.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.ExporterType)
	}
}

// Shutdown gracefully shuts down the tracer provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider != nil {
		return t.provider.Shutdown(ctx)
	}
	return nil
}

// --- Sync span helpers ---

// SyncSpan covers one import, push or fetch.
type SyncSpan struct {
	span trace.Span
}

// StartImportSpan starts a span for a single-record import.
func (t *Tracer) StartImportSpan(ctx context.Context, entity, externalID string) (context.Context, *SyncSpan) {
	return t.startSyncSpan(ctx, "sync.import", trace.SpanKindInternal,
		attribute.String("sync.entity", entity),
		attribute.String("sync.external_id", externalID),
	)
}

// StartPageSpan starts a span for one index page of a bulk import.
func (t *Tracer) StartPageSpan(ctx context.Context, entity string, page int) (context.Context, *SyncSpan) {
	return t.startSyncSpan(ctx, "sync.import_page", trace.SpanKindInternal,
		attribute.String("sync.entity", entity),
		attribute.Int("sync.page", page),
	)
}

// StartPushSpan starts a span for pushing a local record.
func (t *Tracer) StartPushSpan(ctx context.Context, entity, recordID string) (context.Context, *SyncSpan) {
	return t.startSyncSpan(ctx, "sync.push", trace.SpanKindInternal,
		attribute.String("sync.entity", entity),
		attribute.String("sync.record_id", recordID),
	)
}

// StartFetchSpan starts a client span for a call to the external API or a media host.
func (t *Tracer) StartFetchSpan(ctx context.Context, operation, target string) (context.Context, *SyncSpan) {
	return t.startSyncSpan(ctx, "external."+operation, trace.SpanKindClient,
		attribute.String("external.target", target),
	)
}

func (t *Tracer) startSyncSpan(ctx context.Context, name string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, *SyncSpan) {
	ctx, span := t.tracer.Start(ctx, name,
		trace.WithSpanKind(kind),
		trace.WithAttributes(attrs...),
	)
	return ctx, &SyncSpan{span: span}
}

// SetRecordID records the local record the span resolved to.
func (s *SyncSpan) SetRecordID(id string) {
	s.span.SetAttributes(attribute.String("sync.record_id", id))
}

// SetOutcome records the outcome status and how many fields changed.
func (s *SyncSpan) SetOutcome(status string, changed int) {
	s.span.SetAttributes(
		attribute.String("sync.status", status),
		attribute.Int("sync.changed_fields", changed),
	)
}

// AddWarning attaches a non-fatal anomaly as a span event.
func (s *SyncSpan) AddWarning(msg string) {
	s.span.AddEvent("sync.warning", trace.WithAttributes(attribute.String("message", msg)))
}

// End ends the span with success status.
func (s *SyncSpan) End() {
	s.span.SetStatus(codes.Ok, "")
	s.span.End()
}

// EndWithError ends the span with error status.
func (s *SyncSpan) EndWithError(err error) {
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
	s.span.End()
}
