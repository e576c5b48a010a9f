// Package requestctx carries per-request values through handler contexts.
package requestctx

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type contextKey string

const (
	requestIDKey    contextKey = "request_id"
	requestStartKey contextKey = "request_start"
)

// Start stamps ctx with a request id and start time, and attaches a logger
// that tags every event with the id.
func Start(ctx context.Context, id string, now time.Time) context.Context {
	ctx = context.WithValue(ctx, requestIDKey, id)
	ctx = context.WithValue(ctx, requestStartKey, now)

	logger := log.Logger.With().Str("request_id", id).Logger()
	return logger.WithContext(ctx)
}

func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// Elapsed returns the time since Start, or zero outside a request.
func Elapsed(ctx context.Context) time.Duration {
	if t, ok := ctx.Value(requestStartKey).(time.Time); ok {
		return time.Since(t)
	}
	return 0
}

// Logger returns the request logger, falling back to the global logger.
func Logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
