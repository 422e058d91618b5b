package tracing

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func newStdoutTracer(t *testing.T, sampleRate float64) (*Tracer, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	tracer, err := New(context.Background(), Config{
		Enabled:      true,
		ExporterType: ExporterStdout,
		ServiceName:  "listingsync-test",
		Environment:  "test",
		SampleRate:   sampleRate,
		Output:       buf,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return tracer, buf
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Enabled {
		t.Error("expected tracing to be disabled by default")
	}
	if cfg.ExporterType != ExporterNone {
		t.Errorf("ExporterType = %s, want none", cfg.ExporterType)
	}
	if cfg.ServiceName != "listingsync" {
		t.Errorf("ServiceName = %s, want listingsync", cfg.ServiceName)
	}
}

func TestNew_Disabled(t *testing.T) {
	tracer, err := New(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tracer.provider != nil {
		t.Error("disabled tracer should not own a provider")
	}

	_, span := tracer.StartImportSpan(context.Background(), "listing", "42")
	span.SetOutcome("created", 3)
	span.End()
}

func TestNew_UnsupportedExporter(t *testing.T) {
	_, err := New(context.Background(), Config{Enabled: true, ExporterType: "jaeger"})
	if err == nil {
		t.Fatal("expected error for unsupported exporter")
	}
}

func TestImportSpan_WritesAttributes(t *testing.T) {
	tracer, buf := newStdoutTracer(t, 1.0)
	ctx := context.Background()

	ctx, span := tracer.StartImportSpan(ctx, "listing", "42")
	span.SetRecordID("12")
	span.AddWarning("multiple local records share one external id")
	span.SetOutcome("updated", 2)
	span.End()

	_ = tracer.Shutdown(ctx)

	out := buf.String()
	for _, want := range []string{"sync.import", "sync.external_id", "sync.warning", "updated"} {
		if !strings.Contains(out, want) {
			t.Errorf("trace output missing %q", want)
		}
	}
}

func TestSyncSpans_EndWithError(t *testing.T) {
	tracer, buf := newStdoutTracer(t, 1.0)
	ctx := context.Background()

	_, push := tracer.StartPushSpan(ctx, "agent", "7")
	push.EndWithError(errors.New("api rejected payload"))

	_, fetch := tracer.StartFetchSpan(ctx, "get_records", "listing")
	fetch.End()

	_, page := tracer.StartPageSpan(ctx, "listing", 2)
	page.End()

	_ = tracer.Shutdown(ctx)

	out := buf.String()
	for _, want := range []string{"sync.push", "api rejected payload", "external.get_records", "sync.import_page"} {
		if !strings.Contains(out, want) {
			t.Errorf("trace output missing %q", want)
		}
	}
}

func TestDefault(t *testing.T) {
	global = nil

	ctx, span := Default().StartImportSpan(context.Background(), "listing", "L-1")
	span.AddWarning("no primary image")
	span.EndWithError(errors.New("fetch failed"))
	if ctx == nil {
		t.Error("expected a context from the no-op tracer")
	}
}

func TestSamplers(t *testing.T) {
	for _, rate := range []float64{1.0, 0.0, 0.5, 1.5, -0.5} {
		tracer, _ := newStdoutTracer(t, rate)
		_ = tracer.Shutdown(context.Background())
	}
}
