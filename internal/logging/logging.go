// Package logging provides structured logging for ArticlePulse on top of logrus.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type contextKey string

const (
	// TraceIDKey carries the request trace id.
	TraceIDKey contextKey = "trace_id"
	// UserIDKey carries the authenticated subject (admin token subject or buyer address).
	UserIDKey contextKey = "user_id"
	// RoleKey carries the authenticated role.
	RoleKey contextKey = "role"
)

// Logger wraps a logrus logger bound to a service name.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a logger for service. level is a logrus level name, format is "json" or "text".
func New(service, level, format string) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)

	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if strings.EqualFold(format, "text") {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}

	return &Logger{Logger: l, service: service}
}

// NewFromEnv builds a logger from LOG_LEVEL and LOG_FORMAT.
func NewFromEnv(service string) *Logger {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	format := os.Getenv("LOG_FORMAT")
	if format == "" {
		format = "json"
	}
	return New(service, level, format)
}

// NewDiscard returns a logger that drops everything. Used by tests.
func NewDiscard() *Logger {
	l := New("test", "panic", "json")
	l.SetOutput(io.Discard)
	return l
}

var (
	defaultOnce   sync.Once
	defaultLogger *Logger
)

// Default returns the process-wide logger.
func Default() *Logger {
	defaultOnce.Do(func() {
		defaultLogger = NewFromEnv("articlepulse")
	})
	return defaultLogger
}

// Service returns the service name this logger was created for.
func (l *Logger) Service() string {
	return l.service
}

// WithContext returns an entry annotated with the trace, user and role found in ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)
	if ctx == nil {
		return entry
	}
	if traceID := GetTraceID(ctx); traceID != "" {
		entry = entry.WithField("trace_id", traceID)
	}
	if userID := GetUserID(ctx); userID != "" {
		entry = entry.WithField("user_id", userID)
	}
	if role := GetRole(ctx); role != "" {
		entry = entry.WithField("role", role)
	}
	return entry
}

// WithFields returns an entry with the service name and the given fields.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return l.Logger.WithField("service", l.service).WithFields(logrus.Fields(fields))
}

// WithError returns an entry carrying err.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithField("service", l.service).WithError(err)
}

// LogRequest records one served HTTP request.
func (l *Logger) LogRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	})
	switch {
	case status >= 500:
		entry.Error("HTTP request")
	case status >= 400:
		entry.Warn("HTTP request")
	default:
		entry.Info("HTTP request")
	}
}

// LogSecurityEvent records an event relevant to access control.
func (l *Logger) LogSecurityEvent(ctx context.Context, event string, details map[string]interface{}) {
	l.WithContext(ctx).WithFields(logrus.Fields(details)).WithField("security_event", event).Warn("Security event")
}

// NewTraceID generates a fresh trace id.
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID stores traceID in ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID returns the trace id stored in ctx, or "".
func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(TraceIDKey).(string)
	return v
}

// WithUserID stores the authenticated subject in ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserID returns the subject stored in ctx, or "".
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

// GetRole returns the role stored in ctx, or "".
func GetRole(ctx context.Context) string {
	v, _ := ctx.Value(RoleKey).(string)
	return v
}
