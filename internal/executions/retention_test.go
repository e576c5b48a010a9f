package executions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSweeper_Sweep(t *testing.T) {
	store := NewStore(testDBExec(t))
	ctx := context.Background()

	now := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Append(ctx, entry("ancient", "t1", now.Add(-40*24*time.Hour), true)))
	require.NoError(t, store.Append(ctx, entry("recent", "t1", now.Add(-2*24*time.Hour), true)))

	sweeper := NewSweeper(store, 0, "")
	sweeper.now = func() time.Time { return now }

	removed, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	entries, err := store.Entries(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "recent", entries[0].ID)
}

func TestSweeper_StartStop(t *testing.T) {
	store := NewStore(testDBExec(t))

	sweeper := NewSweeper(store, time.Hour, "@every 1h")
	require.NoError(t, sweeper.Start(context.Background()))
	require.NoError(t, sweeper.Start(context.Background()), "second start is a no-op")
	sweeper.Stop()
	sweeper.Stop()
}

func TestSweeper_InvalidSchedule(t *testing.T) {
	sweeper := NewSweeper(NewStore(testDBExec(t)), time.Hour, "every tuesday")
	require.Error(t, sweeper.Start(context.Background()))
}
