// Package logging provides structured logging for listingsync. It wraps
// log/slog with context-carried sync identifiers and helpers for the
// import and push lifecycle.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const (
	// CorrelationIDKey is the context key for correlation IDs.
	CorrelationIDKey contextKey = "correlation_id"
	// EntityTypeKey is the context key for the entity type being synced.
	EntityTypeKey contextKey = "entity_type"
	// ExternalIDKey is the context key for the external record id.
	ExternalIDKey contextKey = "external_id"
	// RecordIDKey is the context key for the local record id.
	RecordIDKey contextKey = "record_id"
)

var contextKeys = []contextKey{CorrelationIDKey, EntityTypeKey, ExternalIDKey, RecordIDKey}

// Level represents log levels.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format represents log output formats.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config holds logging configuration.
type Config struct {
	Level      Level
	Format     Format
	Output     io.Writer
	AddSource  bool
	TimeFormat string
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      LevelInfo,
		Format:     FormatText,
		Output:     os.Stderr,
		TimeFormat: time.RFC3339,
	}
}

// Logger wraps slog.Logger.
type Logger struct {
	slogger *slog.Logger
	level   *slog.LevelVar
}

var (
	global     *Logger
	globalOnce sync.Once
)

// Init initializes the global logger. Later calls return the first logger.
func Init(cfg Config) *Logger {
	globalOnce.Do(func() {
		global = New(cfg)
	})
	return global
}

// Default returns the global logger, initializing it with defaults if necessary.
func Default() *Logger {
	return Init(DefaultConfig())
}

// Discard returns a logger that drops everything. Tests use it.
func Discard() *Logger {
	return New(Config{Output: io.Discard, Level: LevelError})
}

// New creates a Logger.
func New(cfg Config) *Logger {
	level := new(slog.LevelVar)
	level.Set(ParseLevel(cfg.Level))

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && cfg.TimeFormat != "" {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(slog.TimeKey, t.Format(cfg.TimeFormat))
				}
			}
			return a
		},
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return &Logger{
		slogger: slog.New(handler),
		level:   level,
	}
}

// ParseLevel converts a Level to slog.Level. Unknown levels map to info.
func ParseLevel(l Level) slog.Level {
	switch Level(strings.ToLower(string(l))) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel changes the log level of this logger and every logger derived from it.
func (l *Logger) SetLevel(level Level) {
	l.level.Set(ParseLevel(level))
}

// With returns a new Logger with the given attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slogger: l.slogger.With(args...), level: l.level}
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, args ...any) {
	l.slogger.Debug(msg, args...)
}

// Info logs at info level.
func (l *Logger) Info(msg string, args ...any) {
	l.slogger.Info(msg, args...)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, args ...any) {
	l.slogger.Warn(msg, args...)
}

// Error logs at error level.
func (l *Logger) Error(msg string, args ...any) {
	l.slogger.Error(msg, args...)
}

// DebugContext logs at debug level with context values attached.
func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.slogger.DebugContext(ctx, msg, enrichArgs(ctx, args)...)
}

// InfoContext logs at info level with context values attached.
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.slogger.InfoContext(ctx, msg, enrichArgs(ctx, args)...)
}

// WarnContext logs at warn level with context values attached.
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.slogger.WarnContext(ctx, msg, enrichArgs(ctx, args)...)
}

// ErrorContext logs at error level with context values attached.
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.slogger.ErrorContext(ctx, msg, enrichArgs(ctx, args)...)
}

func enrichArgs(ctx context.Context, args []any) []any {
	enriched := make([]any, 0, len(args)+2*len(contextKeys))
	for _, key := range contextKeys {
		if v := ctx.Value(key); v != nil {
			enriched = append(enriched, string(key), v)
		}
	}
	return append(enriched, args...)
}

// --- Context helpers ---

// WithCorrelationID adds a correlation ID to the context. An empty id is
// replaced by a new random one.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.NewString()
	}
	return context.WithValue(ctx, CorrelationIDKey, id)
}

// WithRecordScope attaches the entity type and external id being synced.
func WithRecordScope(ctx context.Context, entity, externalID string) context.Context {
	ctx = context.WithValue(ctx, EntityTypeKey, entity)
	if externalID != "" {
		ctx = context.WithValue(ctx, ExternalIDKey, externalID)
	}
	return ctx
}

// WithRecordID attaches the local record id.
func WithRecordID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RecordIDKey, id)
}

// CorrelationID extracts the correlation ID from context.
func CorrelationID(ctx context.Context) string {
	if s, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return s
	}
	return ""
}

// --- Sync lifecycle helpers ---

// LogImportStart logs the start of a single-record import.
func LogImportStart(ctx context.Context, logger *Logger) {
	logger.DebugContext(ctx, "import started")
}

// LogImportComplete logs a finished import.
func LogImportComplete(ctx context.Context, logger *Logger, status string, changed int, duration time.Duration) {
	logger.InfoContext(ctx, "import completed",
		"status", status,
		"changed_fields", changed,
		"duration_ms", duration.Milliseconds(),
	)
}

// LogImportFailed logs an import that ended in error.
func LogImportFailed(ctx context.Context, logger *Logger, stage string, err error, duration time.Duration) {
	logger.ErrorContext(ctx, "import failed",
		"stage", stage,
		"error", err.Error(),
		"duration_ms", duration.Milliseconds(),
	)
}

// LogPageFetched logs one index page of a bulk import.
func LogPageFetched(ctx context.Context, logger *Logger, page, results, totalPages int) {
	logger.InfoContext(ctx, "page fetched",
		"page", page,
		"results", results,
		"total_pages", totalPages,
	)
}

// LogPushComplete logs a push attempt.
func LogPushComplete(ctx context.Context, logger *Logger, accepted bool, payloadHash string, duration time.Duration) {
	logger.InfoContext(ctx, "push completed",
		"accepted", accepted,
		"payload_hash", payloadHash,
		"duration_ms", duration.Milliseconds(),
	)
}

// LogMediaFailure logs a media download or attach failure.
func LogMediaFailure(ctx context.Context, logger *Logger, url string, err error) {
	logger.WarnContext(ctx, "media download failed",
		"url", url,
		"error", err.Error(),
	)
}

// LogMatchAmbiguity logs duplicate local records for one external id.
func LogMatchAmbiguity(ctx context.Context, logger *Logger, chosen string, candidates []string) {
	logger.WarnContext(ctx, "multiple local records share one external id",
		"chosen", chosen,
		"candidates", candidates,
	)
}

// LogFieldDropped logs a present source value rejected by sanitization.
func LogFieldDropped(ctx context.Context, logger *Logger, target, source, kind string) {
	logger.DebugContext(ctx, "field dropped",
		"target", target,
		"source", source,
		"kind", kind,
	)
}
