// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// TrialIDKey is the context key for the trial being processed
	TrialIDKey contextKey = "trial_id"
	// BatchKey is the context key for the (trial, domain, source) batch key
	BatchKey contextKey = "batch_key"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContext returns a logger with context values extracted.
// Supports request_id, trial_id, and batch_key from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("request_id", requestID))}
	}

	if trialID, ok := ctx.Value(TrialIDKey).(string); ok && trialID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("trial_id", trialID))}
	}

	if batchKey, ok := ctx.Value(BatchKey).(string); ok && batchKey != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("batch_key", batchKey))}
	}

	return newLogger
}

// WithBatch returns a logger scoped to one (trial, domain, source) batch.
func (l *Logger) WithBatch(trialID, domain, source string) *Logger {
	return &Logger{
		Logger: l.With(
			slog.String("trial_id", trialID),
			slog.String("domain", domain),
			slog.String("source", source),
		),
	}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// EvaluationRun logs the outcome of one batch evaluation run.
func (l *Logger) EvaluationRun(trialID, domain, source string, records, findings, created, resolved, updated int) {
	l.Info("evaluation_run",
		slog.String("trial_id", trialID),
		slog.String("domain", domain),
		slog.String("source", source),
		slog.Int("records", records),
		slog.Int("findings", findings),
		slog.Int("signals_created", created),
		slog.Int("signals_resolved", resolved),
		slog.Int("signals_updated", updated),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// DispatchFailure logs a best-effort notification delivery failure.
// Delivery is retried independently of workflow state.
func (l *Logger) DispatchFailure(channel, target string, err error) {
	l.Warn("dispatch_failure",
		slog.String("channel", channel),
		slog.String("target", target),
		slog.String("error", err.Error()),
	)
}

// RateLimitExceeded logs rate limit events
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}
