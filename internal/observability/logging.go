// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Logger wraps slog.Logger to provide specialized logging methods.
type Logger struct {
	*slog.Logger
}

// GlobalLogger is the default logger instance for the application.
var GlobalLogger *Logger

func init() {
	GlobalLogger = NewLogger(os.Stdout, "development", "info")
}

// LogContextKey is a type for context keys used by the logging package.
type LogContextKey string

// Context keys for logging
const (
	CorrelationID LogContextKey = "correlation_id"
	RequestID     LogContextKey = "request_id"
)

// ctxHandler adds request-scoped values from the context to every record.
type ctxHandler struct {
	slog.Handler
}

func (h *ctxHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := ExtractCorrelationID(ctx); id != "" {
		r.AddAttrs(slog.String("correlation_id", id))
	}
	if rid, ok := ctx.Value(RequestID).(string); ok && rid != "" {
		r.AddAttrs(slog.String("request_id", rid))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ctxHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ctxHandler{h.Handler.WithAttrs(attrs)}
}

func (h *ctxHandler) WithGroup(name string) slog.Handler {
	return &ctxHandler{h.Handler.WithGroup(name)}
}

// NewLogger builds a Logger writing JSON in production and text otherwise.
func NewLogger(w io.Writer, env, level string) *Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var handler slog.Handler
	if env == "production" || env == "prod" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return &Logger{Logger: slog.New(&ctxHandler{handler})}
}

// InitLogging replaces GlobalLogger according to the environment and level.
func InitLogging(env, level string) {
	GlobalLogger = NewLogger(os.Stdout, env, level)
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// GenerateCorrelationID creates a new unique correlation ID.
func GenerateCorrelationID() string {
	return uuid.NewString()
}

// WithCorrelationID returns a new context with the given correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationID, id)
}

// EnsureCorrelationID returns ctx unchanged if it already carries a correlation
// ID, or a derived context with a fresh one.
func EnsureCorrelationID(ctx context.Context) context.Context {
	if ExtractCorrelationID(ctx) != "" {
		return ctx
	}
	return WithCorrelationID(ctx, GenerateCorrelationID())
}

// ExtractCorrelationID retrieves the correlation ID from the context.
func ExtractCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationID).(string); ok {
		return id
	}
	return ""
}

// APILogger provides structured logging for backend REST calls.
type APILogger struct {
	client string
	logger *Logger
}

// NewAPILogger creates a new APILogger for the named client.
func NewAPILogger(client string) *APILogger {
	return &APILogger{
		client: client,
		logger: GlobalLogger,
	}
}

// LogRequest logs a completed REST call.
func (l *APILogger) LogRequest(ctx context.Context, method, path string, status int, latency time.Duration) {
	l.logger.DebugContext(ctx, "api request",
		slog.String("client", l.client),
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Duration("latency", latency),
	)
}

// LogError logs a failed REST call.
func (l *APILogger) LogError(ctx context.Context, method, path string, err error) {
	l.logger.ErrorContext(ctx, "api error",
		slog.String("client", l.client),
		slog.String("method", method),
		slog.String("path", path),
		slog.String("error", err.Error()),
	)
}

// PollLogger provides structured logging for background synchronization.
type PollLogger struct {
	component string
	logger    *Logger
}

// NewPollLogger creates a new PollLogger for the given component.
func NewPollLogger(component string) *PollLogger {
	return &PollLogger{
		component: component,
		logger:    GlobalLogger,
	}
}

// LogTick logs an applied poll.
func (l *PollLogger) LogTick(ctx context.Context, phase string, fields map[string]interface{}) {
	attrs := []any{
		slog.String("component", l.component),
		slog.String("phase", phase),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.logger.DebugContext(ctx, "poll applied", attrs...)
}

// LogTransition logs a view state change.
func (l *PollLogger) LogTransition(ctx context.Context, from, to string) {
	l.logger.InfoContext(ctx, "view transition",
		slog.String("component", l.component),
		slog.String("from", from),
		slog.String("to", to),
	)
}

// LogError logs a swallowed background failure.
func (l *PollLogger) LogError(ctx context.Context, operation string, err error) {
	l.logger.WarnContext(ctx, "background sync failed",
		slog.String("component", l.component),
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// LogAsyncOperationStart logs the start of an asynchronous operation.
func LogAsyncOperationStart(ctx context.Context, operation string, fields map[string]interface{}) {
	attrs := []any{
		slog.String("operation", operation),
		slog.String("type", "async_start"),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	GlobalLogger.InfoContext(ctx, "async operation started", attrs...)
}

// LogAsyncOperationEnd logs the completion of an asynchronous operation.
func LogAsyncOperationEnd(ctx context.Context, operation string, fields map[string]interface{}) {
	attrs := []any{
		slog.String("operation", operation),
		slog.String("type", "async_end"),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	GlobalLogger.InfoContext(ctx, "async operation completed", attrs...)
}
