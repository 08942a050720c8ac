package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type contextKey string

// RequestIDKey is the context key under which a request ID is attached to log lines
const RequestIDKey contextKey = "request_id"

// Logger is an interface for logging
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, fields map[string]interface{})
	Debug(ctx context.Context, msg string, fields map[string]interface{})
}

// ZeroLogger implements Logger using zerolog
type ZeroLogger struct {
	logger zerolog.Logger
}

// Option configures a ZeroLogger
type Option func(*ZeroLogger)

// New creates a new ZeroLogger writing human readable output to stdout
func New(options ...Option) *ZeroLogger {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	l := &ZeroLogger{logger: zerolog.New(output).With().Timestamp().Logger()}
	for _, option := range options {
		option(l)
	}
	return l
}

// NewNop returns a logger that discards everything
func NewNop() *ZeroLogger {
	return &ZeroLogger{logger: zerolog.Nop()}
}

// WithOutput writes JSON lines to w instead of the console
func WithOutput(w io.Writer) Option {
	return func(l *ZeroLogger) {
		l.logger = zerolog.New(w).With().Timestamp().Logger().Level(l.logger.GetLevel())
	}
}

// WithLevel sets the minimum level; unknown values fall back to info
func WithLevel(level string) Option {
	return func(l *ZeroLogger) {
		parsed, err := zerolog.ParseLevel(level)
		if err != nil || level == "" {
			parsed = zerolog.InfoLevel
		}
		l.logger = l.logger.Level(parsed)
	}
}

// WithContext returns a context carrying a request ID for log correlation
func WithContext(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// Info logs an info message
func (l *ZeroLogger) Info(ctx context.Context, msg string, fields map[string]interface{}) {
	emit(ctx, l.logger.Info(), msg, fields)
}

// Warn logs a warning message
func (l *ZeroLogger) Warn(ctx context.Context, msg string, fields map[string]interface{}) {
	emit(ctx, l.logger.Warn(), msg, fields)
}

// Error logs an error message
func (l *ZeroLogger) Error(ctx context.Context, msg string, fields map[string]interface{}) {
	emit(ctx, l.logger.Error(), msg, fields)
}

// Debug logs a debug message
func (l *ZeroLogger) Debug(ctx context.Context, msg string, fields map[string]interface{}) {
	emit(ctx, l.logger.Debug(), msg, fields)
}

func emit(ctx context.Context, event *zerolog.Event, msg string, fields map[string]interface{}) {
	// Disabled levels return a nil event
	if event == nil {
		return
	}

	if ctx != nil {
		if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
			event = event.Str("request_id", requestID)
		}
	}

	for k, v := range fields {
		event = event.Interface(k, v)
	}

	event.Msg(msg)
}
