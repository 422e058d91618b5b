// Package config provides configuration structs and loading for listingsync.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config represents the root configuration.
type Config struct {
	API           APIConfig           `yaml:"api"`
	Store         StoreConfig         `yaml:"store"`
	Status        StatusConfig        `yaml:"status"`
	Events        EventsConfig        `yaml:"events"`
	Media         MediaConfig         `yaml:"media"`
	Merge         MergeConfig         `yaml:"merge"`
	Mapping       MappingConfig       `yaml:"mapping"`
	Watch         WatchConfig         `yaml:"watch"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// APIConfig holds the external CRM API connection settings.
type APIConfig struct {
	BaseURL   string        `yaml:"base_url"`
	TokenEnv  string        `yaml:"token_env"` // Environment variable holding the bearer token
	Timeout   time.Duration `yaml:"timeout"`
	PerPage   int           `yaml:"per_page"`
	UserAgent string        `yaml:"user_agent,omitempty"`
}

// StoreConfig selects the record store backend.
type StoreConfig struct {
	Kind     string `yaml:"kind"` // sqlite, postgres, memory
	DSN      string `yaml:"dsn"`  // File path for sqlite, connection string for postgres
	MaxConns int    `yaml:"max_conns,omitempty"`
}

// StatusConfig selects where the latest sync outcomes are kept.
type StatusConfig struct {
	Kind          string        `yaml:"kind"` // store, redis
	RedisAddr     string        `yaml:"redis_addr,omitempty"`
	RedisDB       int           `yaml:"redis_db,omitempty"`
	RedisPassword string        `yaml:"redis_password_env,omitempty"` // Environment variable holding the password
	KeyPrefix     string        `yaml:"key_prefix,omitempty"`
	TTL           time.Duration `yaml:"ttl,omitempty"` // 0 keeps outcomes forever
}

// EventsConfig configures publishing recorded outcomes to Kafka.
type EventsConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Brokers  []string `yaml:"brokers,omitempty"`
	Topic    string   `yaml:"topic,omitempty"`
	ClientID string   `yaml:"client_id,omitempty"`
}

// MediaConfig configures image downloads during import.
type MediaConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Timeout  time.Duration `yaml:"timeout"`
	MaxBytes int64         `yaml:"max_bytes"`
}

// MergeConfig lists, per entity, the fields owned by local edits.
type MergeConfig struct {
	PreserveLocal map[string][]string `yaml:"preserve_local,omitempty"`
}

// MappingConfig holds per-entity overrides applied to the built-in mapping tables.
type MappingConfig struct {
	Overrides map[string][]RuleOverride `yaml:"overrides,omitempty"`
}

// RuleOverride adds, replaces or removes one mapping rule.
type RuleOverride struct {
	Action    string   `yaml:"action"` // add, replace, remove
	Target    string   `yaml:"target"`
	Source    string   `yaml:"source,omitempty"`
	Alt       []string `yaml:"alt,omitempty"`
	Kind      string   `yaml:"kind,omitempty"`
	Numeric   string   `yaml:"numeric,omitempty"` // int, float
	Serialize bool     `yaml:"serialize,omitempty"`
	PullOnly  bool     `yaml:"pull_only,omitempty"`
}

// WatchConfig configures the trigger-file inbox.
type WatchConfig struct {
	InboxDir string        `yaml:"inbox_dir"`
	Debounce time.Duration `yaml:"debounce"`
}

// LoggingConfig holds configuration for application logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ObservabilityConfig groups metrics and tracing.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig selects a metrics backend.
type MetricsConfig struct {
	Backend        string        `yaml:"backend"`         // none, datadog, prometheus
	Tags           string        `yaml:"tags,omitempty"`  // Comma-separated key:value pairs added to every metric
	FlushInterval  time.Duration `yaml:"flush_interval"`  // Datadog flush period
	PushgatewayURL string        `yaml:"pushgateway_url"` // Prometheus Pushgateway, pushed on shutdown
	Job            string        `yaml:"job,omitempty"`   // Pushgateway job name
}

// TracingConfig holds configuration for distributed tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ExporterType string  `yaml:"exporter_type"` // none, stdout, otlp
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
	ServiceName  string  `yaml:"service_name"`
}

// Default configuration values.
const (
	DefaultAPIBaseURL  = "https://atlas.propertyfinder.com/v1"
	DefaultAPITokenEnv = "LISTINGSYNC_API_TOKEN"
	DefaultAPITimeout  = 30 * time.Second
	DefaultPerPage     = 50
	MaxPerPage         = 100

	DefaultStoreKind  = "sqlite"
	DefaultStatusKind = "store"
	DefaultKeyPrefix  = "listingsync:"
	DefaultEventTopic = "listingsync.outcomes"

	DefaultMediaEnabled  = true
	DefaultMediaTimeout  = 60 * time.Second
	DefaultMediaMaxBytes = 20 * 1024 * 1024

	DefaultWatchDebounce = 500 * time.Millisecond

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	DefaultMetricsBackend       = "none"
	DefaultMetricsFlushInterval = 10 * time.Second
	DefaultMetricsJob           = "listingsync"
	DefaultTracingEnabled       = false
	DefaultTracingExporterType  = "none"
	DefaultTracingSampleRate    = 1.0
	DefaultTracingServiceName   = "listingsync"
)

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

var validLogFormats = map[string]bool{"json": true, "text": true}

var validStoreKinds = map[string]bool{"sqlite": true, "postgres": true, "memory": true}

var validStatusKinds = map[string]bool{"store": true, "redis": true}

var validMetricsBackends = map[string]bool{"none": true, "datadog": true, "prometheus": true}

var validTracingExporterTypes = map[string]bool{"none": true, "stdout": true, "otlp": true}

var validOverrideActions = map[string]bool{"add": true, "replace": true, "remove": true}

var validEntities = map[string]bool{"listing": true, "agent": true}

// NewDefaultConfig creates a Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:  DefaultAPIBaseURL,
			TokenEnv: DefaultAPITokenEnv,
			Timeout:  DefaultAPITimeout,
			PerPage:  DefaultPerPage,
		},
		Store: StoreConfig{
			Kind: DefaultStoreKind,
		},
		Status: StatusConfig{
			Kind:      DefaultStatusKind,
			KeyPrefix: DefaultKeyPrefix,
		},
		Events: EventsConfig{
			Topic: DefaultEventTopic,
		},
		Media: MediaConfig{
			Enabled:  DefaultMediaEnabled,
			Timeout:  DefaultMediaTimeout,
			MaxBytes: DefaultMediaMaxBytes,
		},
		Watch: WatchConfig{
			Debounce: DefaultWatchDebounce,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Backend:       DefaultMetricsBackend,
				FlushInterval: DefaultMetricsFlushInterval,
				Job:           DefaultMetricsJob,
			},
			Tracing: TracingConfig{
				Enabled:      DefaultTracingEnabled,
				ExporterType: DefaultTracingExporterType,
				SampleRate:   DefaultTracingSampleRate,
				ServiceName:  DefaultTracingServiceName,
			},
		},
	}
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs []error

	sections := []struct {
		name string
		err  error
	}{
		{"api", c.API.Validate()},
		{"store", c.Store.Validate()},
		{"status", c.Status.Validate()},
		{"events", c.Events.Validate()},
		{"media", c.Media.Validate()},
		{"merge", c.Merge.Validate()},
		{"mapping", c.Mapping.Validate()},
		{"watch", c.Watch.Validate()},
		{"logging", c.Logging.Validate()},
		{"observability", c.Observability.Validate()},
	}
	for _, s := range sections {
		if s.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, s.err))
		}
	}

	return errors.Join(errs...)
}

// Validate checks the API settings.
func (a *APIConfig) Validate() error {
	var errs []error

	if a.BaseURL == "" {
		errs = append(errs, errors.New("base_url is required"))
	} else if u, err := url.Parse(a.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("base_url %q is not an absolute URL", a.BaseURL))
	}
	if a.Timeout < 0 {
		errs = append(errs, errors.New("timeout must be non-negative"))
	}
	if a.PerPage < 1 || a.PerPage > MaxPerPage {
		errs = append(errs, fmt.Errorf("per_page must be between 1 and %d", MaxPerPage))
	}

	return errors.Join(errs...)
}

// Validate checks the store settings.
func (s *StoreConfig) Validate() error {
	if !validStoreKinds[s.Kind] {
		return fmt.Errorf("invalid kind %q: must be one of sqlite, postgres, memory", s.Kind)
	}
	if s.Kind == "postgres" && s.DSN == "" {
		return errors.New("dsn is required for postgres")
	}
	return nil
}

// Validate checks the status settings.
func (s *StatusConfig) Validate() error {
	var errs []error
	if !validStatusKinds[s.Kind] {
		errs = append(errs, fmt.Errorf("invalid kind %q: must be one of store, redis", s.Kind))
	}
	if s.Kind == "redis" && s.RedisAddr == "" {
		errs = append(errs, errors.New("redis_addr is required for redis"))
	}
	if s.TTL < 0 {
		errs = append(errs, errors.New("ttl must be non-negative"))
	}
	return errors.Join(errs...)
}

// Validate checks the events settings.
func (e *EventsConfig) Validate() error {
	if !e.Enabled {
		return nil
	}
	var errs []error
	if len(e.Brokers) == 0 {
		errs = append(errs, errors.New("at least one broker is required when enabled"))
	}
	if e.Topic == "" {
		errs = append(errs, errors.New("topic is required when enabled"))
	}
	return errors.Join(errs...)
}

// Validate checks the media settings.
func (m *MediaConfig) Validate() error {
	var errs []error
	if m.Timeout < 0 {
		errs = append(errs, errors.New("timeout must be non-negative"))
	}
	if m.MaxBytes < 0 {
		errs = append(errs, errors.New("max_bytes must be non-negative"))
	}
	return errors.Join(errs...)
}

// Validate checks that merge settings name known entities.
func (m *MergeConfig) Validate() error {
	var errs []error
	for entity := range m.PreserveLocal {
		if !validEntities[entity] {
			errs = append(errs, fmt.Errorf("unknown entity %q", entity))
		}
	}
	return errors.Join(errs...)
}

// Validate checks every rule override.
func (m *MappingConfig) Validate() error {
	var errs []error
	for entity, overrides := range m.Overrides {
		if !validEntities[entity] {
			errs = append(errs, fmt.Errorf("unknown entity %q", entity))
			continue
		}
		for i, o := range overrides {
			if err := o.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("%s[%d]: %w", entity, i, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Validate checks a single rule override.
func (o *RuleOverride) Validate() error {
	var errs []error
	if !validOverrideActions[o.Action] {
		errs = append(errs, fmt.Errorf("invalid action %q: must be one of add, replace, remove", o.Action))
	}
	if o.Target == "" {
		errs = append(errs, errors.New("target is required"))
	}
	if o.Action != "remove" {
		if o.Source == "" {
			errs = append(errs, errors.New("source is required"))
		}
		if o.Kind == "" {
			errs = append(errs, errors.New("kind is required"))
		}
	}
	return errors.Join(errs...)
}

// Validate checks the watch settings.
func (w *WatchConfig) Validate() error {
	if w.Debounce < 0 {
		return errors.New("debounce must be non-negative")
	}
	return nil
}

// Validate checks if the LoggingConfig is valid.
func (l *LoggingConfig) Validate() error {
	var errs []error

	if l.Level != "" && !validLogLevels[l.Level] {
		errs = append(errs, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", l.Level))
	}
	if l.Format != "" && !validLogFormats[l.Format] {
		errs = append(errs, fmt.Errorf("invalid log format %q: must be one of json, text", l.Format))
	}

	return errors.Join(errs...)
}

// Validate checks metrics and tracing.
func (o *ObservabilityConfig) Validate() error {
	var errs []error
	if err := o.Metrics.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("metrics: %w", err))
	}
	if err := o.Tracing.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tracing: %w", err))
	}
	return errors.Join(errs...)
}

// Validate checks the metrics settings.
func (m *MetricsConfig) Validate() error {
	var errs []error
	if !validMetricsBackends[m.Backend] {
		errs = append(errs, fmt.Errorf("invalid backend %q: must be one of none, datadog, prometheus", m.Backend))
	}
	if m.Backend == "datadog" && m.FlushInterval <= 0 {
		errs = append(errs, errors.New("flush_interval must be positive for datadog"))
	}
	return errors.Join(errs...)
}

// Validate checks the tracing settings.
func (t *TracingConfig) Validate() error {
	var errs []error
	if t.ExporterType != "" && !validTracingExporterTypes[t.ExporterType] {
		errs = append(errs, fmt.Errorf("invalid exporter type %q: must be one of none, stdout, otlp", t.ExporterType))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		errs = append(errs, errors.New("sample_rate must be between 0.0 and 1.0"))
	}
	if t.Enabled && t.ExporterType == "otlp" && t.OTLPEndpoint == "" {
		errs = append(errs, errors.New("otlp_endpoint is required for otlp exporter"))
	}
	return errors.Join(errs...)
}
