// Package logging carries the engine's slog logger through request and
// operation contexts.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

const service = "escrowledger"

type ctxKey struct{}

// scope is what a context carries: the logger in use and the id of the
// request that started the work.
type scope struct {
	logger    *slog.Logger
	requestID string
}

func current(ctx context.Context) scope {
	s, _ := ctx.Value(ctxKey{}).(scope)
	return s
}

// ParseLevel accepts slog level names in any case, with an optional offset
// ("warn", "INFO", "debug-2"). An empty string is info.
func ParseLevel(level string) (slog.Level, error) {
	if level == "" {
		return slog.LevelInfo, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", level, err)
	}
	return lvl, nil
}

// ValidFormat reports whether format names a handler New can build.
func ValidFormat(format string) bool {
	return format == "" || format == "text" || format == "json"
}

// New builds the process logger on stdout.
func New(level, format string) *slog.Logger {
	return NewWithWriter(os.Stdout, level, format)
}

// NewWithWriter falls back to info for a level ParseLevel rejects; config
// validation reports those before the logger is built.
func NewWithWriter(w io.Writer, level, format string) *slog.Logger {
	lvl, _ := ParseLevel(level)
	opts := &slog.HandlerOptions{Level: lvl, AddSource: lvl <= slog.LevelDebug}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With("service", service)
}

func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	s := current(ctx)
	s.logger = logger
	return context.WithValue(ctx, ctxKey{}, s)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	s := current(ctx)
	s.requestID = requestID
	return context.WithValue(ctx, ctxKey{}, s)
}

func RequestID(ctx context.Context) string {
	return current(ctx).requestID
}

// With scopes the context logger to args, e.g. the engine operation a
// request is running.
func With(ctx context.Context, args ...any) context.Context {
	return WithLogger(ctx, FromContext(ctx).With(args...))
}

// FromContext returns the logger stored in ctx, or slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	if logger := current(ctx).logger; logger != nil {
		return logger
	}
	return slog.Default()
}

// L returns the context logger annotated with the request id, if any.
func L(ctx context.Context) *slog.Logger {
	s := current(ctx)
	logger := FromContext(ctx)
	if s.requestID != "" {
		return logger.With("request_id", s.requestID)
	}
	return logger
}
