// Package application provides application-level services and dependency injection.
package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jbctechsolutions/listingsync/internal/adapters/crmapi"
	"github.com/jbctechsolutions/listingsync/internal/adapters/events/kafka"
	"github.com/jbctechsolutions/listingsync/internal/adapters/media"
	statusredis "github.com/jbctechsolutions/listingsync/internal/adapters/status/redis"
	"github.com/jbctechsolutions/listingsync/internal/adapters/store"
	_ "github.com/jbctechsolutions/listingsync/internal/adapters/store/memory"
	_ "github.com/jbctechsolutions/listingsync/internal/adapters/store/postgres"
	_ "github.com/jbctechsolutions/listingsync/internal/adapters/store/sqlite"
	"github.com/jbctechsolutions/listingsync/internal/application/engine"
	"github.com/jbctechsolutions/listingsync/internal/application/importer"
	"github.com/jbctechsolutions/listingsync/internal/application/observability"
	"github.com/jbctechsolutions/listingsync/internal/application/ports"
	"github.com/jbctechsolutions/listingsync/internal/application/status"
	"github.com/jbctechsolutions/listingsync/internal/application/trigger"
	domainerrors "github.com/jbctechsolutions/listingsync/internal/domain/errors"
	"github.com/jbctechsolutions/listingsync/internal/domain/mapping"
	"github.com/jbctechsolutions/listingsync/internal/domain/record"
	"github.com/jbctechsolutions/listingsync/internal/infrastructure/config"
	"github.com/jbctechsolutions/listingsync/internal/infrastructure/logging"
	"github.com/jbctechsolutions/listingsync/internal/infrastructure/metrics"
	"github.com/jbctechsolutions/listingsync/internal/infrastructure/tracing"
)

// Container holds all application dependencies and provides a central
// point for dependency injection. It manages the lifecycle of services
// and ensures proper initialization order.
type Container struct {
	config  *config.Config
	verbose bool // Lower the log level to debug when true

	logOutput io.Writer

	// Observability
	logger   *logging.Logger
	tracer   *tracing.Tracer
	metrics  metrics.Recorder
	observer *observability.Service

	// Storage
	store       store.Backend
	statusStore ports.StatusStore
	statusClose func() error
	publisher   ports.OutcomePublisher

	// External systems
	api   ports.ExternalAPI
	media ports.MediaFetcher

	// Application services
	registry *mapping.Registry
	tracker  *status.Tracker
	engine   *engine.Engine
}

// Option customizes a Container before initialization.
type Option func(*Container)

// WithExternalAPI replaces the HTTP client built from configuration.
func WithExternalAPI(api ports.ExternalAPI) Option {
	return func(c *Container) {
		c.api = api
	}
}

// WithMediaFetcher replaces the HTTP media fetcher built from configuration.
func WithMediaFetcher(f ports.MediaFetcher) Option {
	return func(c *Container) {
		c.media = f
	}
}

// WithLogOutput sends logs to w instead of stderr.
func WithLogOutput(w io.Writer) Option {
	return func(c *Container) {
		c.logOutput = w
	}
}

// NewContainer creates a new dependency injection container with all services
// initialized based on the provided configuration.
func NewContainer(cfg *config.Config, verbose bool, opts ...Option) (*Container, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, domainerrors.NewError(domainerrors.CodeConfiguration, "invalid configuration", err)
	}

	c := &Container{
		config:  cfg,
		verbose: verbose,
	}
	for _, opt := range opts {
		opt(c)
	}

	ctx := context.Background()

	if err := c.initObservability(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}

	if err := c.initStorage(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := c.initExternal(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize external clients: %w", err)
	}

	if err := c.initServices(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return c, nil
}

// initObservability initializes logging, tracing and metrics.
func (c *Container) initObservability(ctx context.Context) error {
	logLevel := logging.Level(c.config.Logging.Level)
	if c.verbose {
		logLevel = logging.LevelDebug
	}

	logFormat := logging.FormatText
	if c.config.Logging.Format == "json" {
		logFormat = logging.FormatJSON
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logLevel
	logCfg.Format = logFormat
	if c.logOutput != nil {
		logCfg.Output = c.logOutput
	}
	c.logger = logging.New(logCfg)

	tracingCfg := c.config.Observability.Tracing
	if tracingCfg.Enabled {
		tracer, err := tracing.New(ctx, tracing.Config{
			Enabled:      true,
			ExporterType: tracing.ExporterType(tracingCfg.ExporterType),
			OTLPEndpoint: tracingCfg.OTLPEndpoint,
			ServiceName:  tracingCfg.ServiceName,
			Environment:  environment(),
			SampleRate:   tracingCfg.SampleRate,
		})
		if err != nil {
			return fmt.Errorf("failed to create tracer: %w", err)
		}
		c.tracer = tracer
	} else {
		c.tracer = tracing.Default()
	}

	recorder, err := metrics.New(ctx, c.config.Observability.Metrics)
	if err != nil {
		return fmt.Errorf("failed to create metrics backend: %w", err)
	}
	c.metrics = recorder

	c.observer = observability.NewService(observability.ServiceConfig{
		Logger:  c.logger,
		Tracer:  c.tracer,
		Metrics: c.metrics,
	})
	return nil
}

// initStorage opens the record store, the status store and the event publisher.
func (c *Container) initStorage(ctx context.Context) error {
	backend, err := store.Open(ctx, c.config.Store)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", c.config.Store.Kind, err)
	}
	c.store = backend

	switch c.config.Status.Kind {
	case "redis":
		rs, err := statusredis.Dial(ctx, c.config.Status)
		if err != nil {
			return fmt.Errorf("failed to connect status store: %w", err)
		}
		c.statusStore = rs
		c.statusClose = rs.Close
	default:
		c.statusStore = backend
	}

	if c.config.Events.Enabled {
		pub, err := kafka.Dial(c.config.Events)
		if err != nil {
			return fmt.Errorf("failed to connect event publisher: %w", err)
		}
		c.publisher = pub
	}
	return nil
}

// initExternal builds the CRM API client and media fetcher unless injected.
// A missing API token does not fail startup; commands that reach the API
// report it instead.
func (c *Container) initExternal() error {
	if c.api == nil {
		client, err := crmapi.NewClientFromConfig(c.config.API)
		if err != nil {
			c.logger.Debug("external API unavailable", "error", err)
			c.api = unavailableAPI{err: err}
		} else {
			c.api = client
		}
	}

	if c.media == nil && c.config.Media.Enabled {
		c.media = media.NewFetcherFromConfig(c.config.Media)
	}
	return nil
}

// initServices builds the mapping registry, the tracker and the engine.
func (c *Container) initServices() error {
	overrides, err := CompileOverrides(c.config.Mapping)
	if err != nil {
		return err
	}
	c.registry, err = mapping.DefaultRegistry(overrides)
	if err != nil {
		return fmt.Errorf("failed to build mapping tables: %w", err)
	}

	preserve, err := PreserveLocal(c.config.Merge)
	if err != nil {
		return err
	}

	trackerOpts := []status.Option{
		status.WithLogger(c.logger),
		status.WithMetrics(c.metrics),
	}
	if c.publisher != nil {
		trackerOpts = append(trackerOpts, status.WithPublisher(c.publisher))
	}
	c.tracker = status.New(c.statusStore, trackerOpts...)

	c.engine, err = engine.New(engine.Config{
		Config: importer.Config{
			API:           c.api,
			Store:         c.store,
			Registry:      c.registry,
			Tracker:       c.tracker,
			Observer:      c.observer,
			Media:         c.media,
			PreserveLocal: preserve,
			PerPage:       c.config.API.PerPage,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	return nil
}

// NewTriggerService creates the inbox watch service on top of the engine.
// An empty inboxDir uses the configured one.
func (c *Container) NewTriggerService(inboxDir string, onResult func(trigger.Result)) (*trigger.Service, error) {
	if inboxDir == "" {
		inboxDir = c.config.Watch.InboxDir
	}
	return trigger.NewService(trigger.Config{
		InboxDir: inboxDir,
		Debounce: c.config.Watch.Debounce,
		OnResult: onResult,
	}, c.engine, c.logger)
}

// Close releases all resources held by the container. Metrics are flushed
// last so the shutdown of other components is still counted.
func (c *Container) Close() error {
	ctx := context.Background()
	var errs []error

	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("event publisher: %w", err))
		}
	}
	if c.statusClose != nil {
		if err := c.statusClose(); err != nil {
			errs = append(errs, fmt.Errorf("status store: %w", err))
		}
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("record store: %w", err))
		}
	}
	if c.tracer != nil {
		if err := c.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer: %w", err))
		}
	}
	if c.metrics != nil {
		if err := c.metrics.Close(); err != nil {
			errs = append(errs, fmt.Errorf("metrics: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the application logger.
func (c *Container) Logger() *logging.Logger {
	return c.logger
}

// Engine returns the sync engine.
func (c *Container) Engine() *engine.Engine {
	return c.engine
}

// Registry returns the active mapping tables.
func (c *Container) Registry() *mapping.Registry {
	return c.registry
}

// Store returns the record store.
func (c *Container) Store() store.Backend {
	return c.store
}

// Metrics returns the metrics recorder.
func (c *Container) Metrics() metrics.Recorder {
	return c.metrics
}

// environment names the deployment for trace resources.
func environment() string {
	if v := os.Getenv("LISTINGSYNC_ENV"); v != "" {
		return v
	}
	return "production"
}

// unavailableAPI stands in for the CRM client when it cannot be configured.
type unavailableAPI struct {
	err error
}

func (u unavailableAPI) GetRecords(context.Context, record.EntityType, ports.Filter, int, int) (ports.Page, error) {
	return ports.Page{}, u.err
}

func (u unavailableAPI) UpdateRecord(context.Context, record.EntityType, string, record.External) (bool, error) {
	return false, u.err
}

func (u unavailableAPI) SearchLocations(context.Context, string, int) ([]ports.LocationSummary, error) {
	return nil, u.err
}
