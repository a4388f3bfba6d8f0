// Package logger centralizes zerolog setup and context propagation. Engines
// never hold a logger field; they pull the request-scoped logger out of the
// context so batch jobs and HTTP calls log with the same correlation fields.
package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type contextKey struct{}

// New creates the service logger. In debug mode output is a human-readable
// console stream; otherwise JSON for log shipping.
func New(service, mode string) zerolog.Logger {
	var out io.Writer = os.Stdout
	if mode == "debug" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().
		Timestamp().
		Str("service", service).
		Logger()
}

// NewWithWriter creates a logger against a custom writer (tests).
func NewWithWriter(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}

// WithContext attaches the logger to the context.
func WithContext(ctx context.Context, log zerolog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, log)
}

// FromContext retrieves the logger from the context, falling back to a
// plain stdout logger when none was attached.
func FromContext(ctx context.Context) zerolog.Logger {
	if log, ok := ctx.Value(contextKey{}).(zerolog.Logger); ok {
		return log
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
