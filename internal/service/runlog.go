package service

import (
	"context"

	"github.com/rs/zerolog"
)

type runIDKey struct{}

func withRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// runLogger tags log with the scheduler run id carried by ctx, if any.
func runLogger(ctx context.Context, log zerolog.Logger) zerolog.Logger {
	if id, ok := ctx.Value(runIDKey{}).(string); ok {
		return log.With().Str("run_id", id).Logger()
	}
	return log
}
