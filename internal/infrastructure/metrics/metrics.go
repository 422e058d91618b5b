// Package metrics selects and constructs the metrics backend named in config.
package metrics

import (
	"context"
	"fmt"

	"github.com/jbctechsolutions/listingsync/internal/application/ports"
	"github.com/jbctechsolutions/listingsync/internal/infrastructure/config"
	"github.com/jbctechsolutions/listingsync/internal/infrastructure/metrics/datadog"
	"github.com/jbctechsolutions/listingsync/internal/infrastructure/metrics/prometheus"
)

// Recorder is a MetricsRecorder that must be closed to flush buffered data.
type Recorder interface {
	ports.MetricsRecorder
	Close() error
}

// Nop discards every metric.
type Nop struct{}

func (Nop) IncCounter(string, map[string]string)                { /* discard */ }
func (Nop) ObserveHistogram(string, float64, map[string]string) { /* discard */ }
func (Nop) Close() error                                        { return nil }

var (
	_ Recorder = Nop{}
	_ Recorder = (*datadog.Backend)(nil)
	_ Recorder = (*prometheus.Backend)(nil)
)

// New builds the backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.MetricsConfig) (Recorder, error) {
	switch cfg.Backend {
	case "", "none":
		return Nop{}, nil
	case "datadog":
		b, err := datadog.NewBackend(ctx, datadog.Options{
			JobName:    cfg.Job,
			Tags:       datadog.ParseTagsCSV(cfg.Tags),
			FlushEvery: cfg.FlushInterval,
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	case "prometheus":
		return prometheus.New(prometheus.Options{
			PushgatewayURL: cfg.PushgatewayURL,
			Job:            cfg.Job,
		}), nil
	default:
		return nil, fmt.Errorf("unknown metrics backend %q", cfg.Backend)
	}
}
