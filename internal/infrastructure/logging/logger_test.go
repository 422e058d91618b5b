package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		check  func(t *testing.T, buf *bytes.Buffer)
	}{
		{
			name:   "text format",
			config: Config{Level: LevelInfo, Format: FormatText},
			check: func(t *testing.T, buf *bytes.Buffer) {
				if !strings.Contains(buf.String(), "level=INFO") {
					t.Errorf("expected text format with level=INFO, got %q", buf.String())
				}
			},
		},
		{
			name:   "json format",
			config: Config{Level: LevelInfo, Format: FormatJSON},
			check: func(t *testing.T, buf *bytes.Buffer) {
				var m map[string]interface{}
				if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
					t.Fatalf("expected valid JSON output: %v", err)
				}
				if m["level"] != "INFO" {
					t.Errorf("expected level INFO, got %v", m["level"])
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.config.Output = buf

			New(tt.config).Info("test message")

			tt.check(t, buf)
		})
	}
}

func TestLogLevels(t *testing.T) {
	tests := []struct {
		name      string
		level     Level
		logMethod func(l *Logger)
		expected  bool
	}{
		{"debug at debug level", LevelDebug, func(l *Logger) { l.Debug("test") }, true},
		{"debug at info level", LevelInfo, func(l *Logger) { l.Debug("test") }, false},
		{"warn at error level", LevelError, func(l *Logger) { l.Warn("test") }, false},
		{"error at warn level", LevelWarn, func(l *Logger) { l.Error("test") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := New(Config{Level: tt.level, Output: buf})

			tt.logMethod(logger)

			if got := buf.Len() > 0; got != tt.expected {
				t.Errorf("logged = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestSetLevel_AppliesToDerivedLoggers(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(Config{Level: LevelInfo, Output: buf})
	child := logger.With("component", "importer")

	logger.SetLevel(LevelDebug)
	child.Debug("visible")

	if !strings.Contains(buf.String(), "visible") {
		t.Error("expected debug message after SetLevel(debug)")
	}
}

func TestContextEnrichment(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(Config{Level: LevelDebug, Format: FormatJSON, Output: buf})

	ctx := WithCorrelationID(context.Background(), "corr-1")
	ctx = WithRecordScope(ctx, "listing", "42")
	ctx = WithRecordID(ctx, "12")

	logger.InfoContext(ctx, "hello", "extra", 1)

	var m map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	want := map[string]interface{}{
		"correlation_id": "corr-1",
		"entity_type":    "listing",
		"external_id":    "42",
		"record_id":      "12",
		"extra":          float64(1),
	}
	for k, v := range want {
		if m[k] != v {
			t.Errorf("%s = %v, want %v", k, m[k], v)
		}
	}
}

func TestWithCorrelationID_GeneratesWhenEmpty(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "")
	if id := CorrelationID(ctx); len(id) != 36 {
		t.Errorf("CorrelationID() = %q, want a generated UUID", id)
	}
	if CorrelationID(context.Background()) != "" {
		t.Error("CorrelationID() on empty context should be empty")
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG").String() != "DEBUG" {
		t.Error("ParseLevel should be case-insensitive")
	}
	if ParseLevel("verbose").String() != "INFO" {
		t.Error("unknown levels should map to info")
	}
}

func TestLifecycleHelpers(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(Config{Level: LevelDebug, Output: buf})
	ctx := context.Background()

	LogImportStart(ctx, logger)
	LogImportComplete(ctx, logger, "created", 5, 20*time.Millisecond)
	LogImportFailed(ctx, logger, "fetch", errors.New("timeout"), time.Second)
	LogPageFetched(ctx, logger, 1, 50, 3)
	LogPushComplete(ctx, logger, true, "abc", time.Millisecond)
	LogMediaFailure(ctx, logger, "https://cdn.example.com/a.jpg", errors.New("404"))
	LogMatchAmbiguity(ctx, logger, "1", []string{"1", "2"})
	LogFieldDropped(ctx, logger, "email", "email", "email")

	out := buf.String()
	for _, want := range []string{
		"import started", "import completed", "changed_fields=5", "stage=fetch",
		"page fetched", "push completed", "media download failed",
		"multiple local records share one external id", "field dropped",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestDiscard(t *testing.T) {
	Discard().Error("nothing")
}
