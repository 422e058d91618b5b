// Package datadog buffers sync metrics in memory and submits them to Datadog.
//
// Counters and histogram samples are keyed by metric name and label set.
// A background loop flushes the buffers on a ticker and Close performs one
// final flush, so short CLI runs and the long-running watch command both
// produce points.
package datadog

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"github.com/jbctechsolutions/listingsync/internal/application/ports"
)

// DefaultFlushEvery is used when Options.FlushEvery is not positive.
const DefaultFlushEvery = 60 * time.Second

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric. Defaults to "listingsync".
	JobName string

	// Tags are extra Datadog tags such as "service:sync".
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	FlushEvery time.Duration

	// Unexported seams for tests.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the part of *datadogV2.MetricsApi the backend uses.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// series identifies one metric name with one label set.
type series struct {
	name string
	tags []string
}

// Backend implements ports.MetricsRecorder for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}
	closeOnce  sync.Once

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu      sync.Mutex
	known   map[string]series
	counts  map[string]float64
	samples map[string][]float64
}

var _ ports.MetricsRecorder = (*Backend)(nil)

// NewBackend constructs a Datadog backend using the official client and
// starts its flush loop. Credentials come from DD_API_KEY and DD_SITE as
// read by the client's default context.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	if parent == nil {
		return nil, wrapInitErr(fmt.Errorf("nil context"))
	}
	job := opts.JobName
	if job == "" {
		job = "listingsync"
	}
	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = DefaultFlushEvery
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}
	submitter := opts.submitter
	if submitter == nil {
		submitter = datadogV2.NewMetricsApi(dd.NewAPIClient(dd.NewConfiguration()))
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		baseTags:   baseTags,
		now:        nowFn,
		newTicker:  newTicker,
		known:      make(map[string]series),
		counts:     make(map[string]float64),
		samples:    make(map[string][]float64),
	}
	go b.loop()
	return b, nil
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the flush loop and submits whatever is still buffered.
// Calling Close more than once is a no-op after the first call.
func (b *Backend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.stopCh)
		<-b.doneCh
		err = b.Flush()
	})
	return err
}

// IncCounter adds one to the counter identified by name and labels.
func (b *Backend) IncCounter(name string, labels map[string]string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counts[b.register(name, labels)]++
}

// ObserveHistogram records one sample for the histogram identified by name and labels.
func (b *Backend) ObserveHistogram(name string, value float64, labels map[string]string) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	k := b.register(name, labels)
	b.samples[k] = append(b.samples[k], value)
}

// register must be called with mu held.
func (b *Backend) register(name string, labels map[string]string) string {
	tags := labelTags(labels)
	k := seriesKey(name, tags)
	if _, ok := b.known[k]; !ok {
		b.known[k] = series{name: name, tags: tags}
	}
	return k
}

type snapshot struct {
	series  map[string]series
	counts  map[string]float64
	samples map[string][]float64
}

func (s snapshot) isEmpty() bool {
	return len(s.counts) == 0 && len(s.samples) == 0
}

func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{series: b.known, counts: b.counts, samples: b.samples}
	b.known = make(map[string]series)
	b.counts = make(map[string]float64)
	b.samples = make(map[string][]float64)
	return s
}

// Flush submits buffered metrics and resets the buffers. Buffers are reset
// even when the submission fails.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	payload := datadogV2.MetricPayload{Series: b.buildSeries(snap, b.now().Unix())}
	if _, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters()); err != nil {
		return fmt.Errorf("datadog submit: %w", err)
	}
	return nil
}

// buildSeries turns a snapshot into Datadog series. Output is sorted by
// series key so payloads are stable.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	var out []datadogV2.MetricSeries

	for _, k := range sortedKeys(s.counts) {
		meta := s.series[k]
		out = append(out, datadogV2.MetricSeries{
			Metric: MetricName(meta.name),
			Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
			Points: []datadogV2.MetricPoint{
				{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(s.counts[k])},
			},
			Tags: withTags(b.baseTags, meta.tags...),
		})
	}

	for _, k := range sortedKeys(s.samples) {
		meta := s.series[k]
		addPercentiles(&out, withTags(b.baseTags, meta.tags...), MetricName(meta.name), s.samples[k], nowUnix)
	}
	return out
}

// addPercentiles appends p50/p90/p95/p99/max/samples gauges for one histogram.
func addPercentiles(out *[]datadogV2.MetricSeries, tags []string, metric string, samples []float64, nowUnix int64) {
	if len(samples) == 0 {
		return
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	*out = append(*out,
		gaugeSeries(metric+".p50", percentileNearestRank(sorted, 0.50), tags, nowUnix),
		gaugeSeries(metric+".p90", percentileNearestRank(sorted, 0.90), tags, nowUnix),
		gaugeSeries(metric+".p95", percentileNearestRank(sorted, 0.95), tags, nowUnix),
		gaugeSeries(metric+".p99", percentileNearestRank(sorted, 0.99), tags, nowUnix),
		gaugeSeries(metric+".max", sorted[len(sorted)-1], tags, nowUnix),
		gaugeSeries(metric+".samples", float64(len(sorted)), tags, nowUnix),
	)
}

func gaugeSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

// MetricName converts a Prometheus-style name to Datadog's dotted form:
// listingsync_outcomes_total becomes listingsync.outcomes.total.
func MetricName(name string) string {
	return strings.ReplaceAll(name, "_", ".")
}

// labelTags renders labels as sorted key:value tags.
func labelTags(labels map[string]string) []string {
	if len(labels) == 0 {
		return nil
	}
	tags := make([]string, 0, len(labels))
	for k, v := range labels {
		tags = append(tags, k+":"+v)
	}
	sort.Strings(tags)
	return tags
}

func seriesKey(name string, tags []string) string {
	return name + "\x00" + strings.Join(tags, "\x00")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	out = append(out, extras...)
	return out
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// ParseTagsCSV parses comma-separated tags like "env:prod,service:sync".
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func wrapInitErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("datadog metrics init: %w", err)
}
