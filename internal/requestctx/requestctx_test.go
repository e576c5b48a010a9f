package requestctx

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestStart(t *testing.T) {
	ctx := Start(context.Background(), "req-1", time.Now().Add(-time.Second))

	require.Equal(t, "req-1", RequestID(ctx))
	require.GreaterOrEqual(t, Elapsed(ctx), time.Second)
}

func TestOutsideRequest(t *testing.T) {
	ctx := context.Background()

	require.Empty(t, RequestID(ctx))
	require.Zero(t, Elapsed(ctx))
	require.Equal(t, &log.Logger, Logger(ctx))
}

func TestLoggerTagsRequestID(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	ctx := Start(context.Background(), "req-42", time.Now())
	Logger(ctx).Info().Msg("hello")

	require.Contains(t, buf.String(), `"request_id":"req-42"`)
}
