// Package prometheus records sync metrics in Prometheus counter and
// histogram vectors. Vectors are created on first use; a metric's label
// names are fixed by the first observation.
package prometheus

import (
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/jbctechsolutions/listingsync/internal/application/ports"
)

// Options configures a Backend.
type Options struct {
	// PushgatewayURL, when set, receives every collected metric on Close.
	PushgatewayURL string
	// Job is the Pushgateway job name. Defaults to "listingsync".
	Job string
	// Buckets for histograms. Defaults to prometheus.DefBuckets.
	Buckets []float64
}

// Backend implements ports.MetricsRecorder on a private registry.
type Backend struct {
	registry *prometheus.Registry
	opts     Options

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	labelNames map[string][]string
}

var _ ports.MetricsRecorder = (*Backend)(nil)

var help = map[string]string{
	ports.MetricOutcomes:        "Sync attempts by entity, direction and outcome status.",
	ports.MetricAttemptDuration: "Duration of one import or push attempt in seconds.",
	ports.MetricPages:           "Index pages fetched from the CRM API.",
	ports.MetricMediaDownloads:  "Media downloads by result.",
	ports.MetricWarnings:        "Non-fatal warnings raised during sync attempts.",
}

// New creates a Backend with its own registry.
func New(opts Options) *Backend {
	if opts.Job == "" {
		opts.Job = "listingsync"
	}
	if len(opts.Buckets) == 0 {
		opts.Buckets = prometheus.DefBuckets
	}
	return &Backend{
		registry:   prometheus.NewRegistry(),
		opts:       opts,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		labelNames: make(map[string][]string),
	}
}

// Registry exposes the underlying registry for scraping or tests.
func (b *Backend) Registry() *prometheus.Registry {
	return b.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (b *Backend) Handler() http.Handler {
	return promhttp.HandlerFor(b.registry, promhttp.HandlerOpts{})
}

// IncCounter adds one to the counter identified by name and labels.
func (b *Backend) IncCounter(name string, labels map[string]string) {
	b.mu.Lock()
	vec, ok := b.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: name,
			Help: helpFor(name),
		}, b.namesFor(name, labels))
		if err := b.registry.Register(vec); err != nil {
			b.mu.Unlock()
			return
		}
		b.counters[name] = vec
	}
	values := b.valuesFor(name, labels)
	b.mu.Unlock()

	vec.With(values).Inc()
}

// ObserveHistogram records one sample for the histogram identified by name and labels.
func (b *Backend) ObserveHistogram(name string, value float64, labels map[string]string) {
	b.mu.Lock()
	vec, ok := b.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name,
			Help:    helpFor(name),
			Buckets: b.opts.Buckets,
		}, b.namesFor(name, labels))
		if err := b.registry.Register(vec); err != nil {
			b.mu.Unlock()
			return
		}
		b.histograms[name] = vec
	}
	values := b.valuesFor(name, labels)
	b.mu.Unlock()

	vec.With(values).Observe(value)
}

// namesFor must be called with mu held.
func (b *Backend) namesFor(name string, labels map[string]string) []string {
	if names, ok := b.labelNames[name]; ok {
		return names
	}
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	b.labelNames[name] = names
	return names
}

// valuesFor maps labels onto the metric's fixed label names. Missing labels
// become empty strings and unknown ones are dropped. Must be called with mu held.
func (b *Backend) valuesFor(name string, labels map[string]string) prometheus.Labels {
	names := b.labelNames[name]
	out := make(prometheus.Labels, len(names))
	for _, n := range names {
		out[n] = labels[n]
	}
	return out
}

// Close pushes the registry to the Pushgateway when one is configured.
func (b *Backend) Close() error {
	if b.opts.PushgatewayURL == "" {
		return nil
	}
	if err := push.New(b.opts.PushgatewayURL, b.opts.Job).Gatherer(b.registry).Push(); err != nil {
		return fmt.Errorf("push to gateway: %w", err)
	}
	return nil
}

func helpFor(name string) string {
	if h, ok := help[name]; ok {
		return h
	}
	return name
}
