package logger

import (
	"context"
	"log/slog"
)

type jobIDKey struct{}

// WithJobID returns a new context carrying the job ID.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey{}, jobID)
}

// JobIDFromContext extracts the job ID from the context.
func JobIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(jobIDKey{}).(string); ok {
		return v
	}
	return ""
}

// FromContext returns slog.Default() with the job ID attached, if any.
func FromContext(ctx context.Context) *slog.Logger {
	if id := JobIDFromContext(ctx); id != "" {
		return slog.Default().With("job_id", id)
	}
	return slog.Default()
}
