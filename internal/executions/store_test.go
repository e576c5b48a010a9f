package executions

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/watzon/tenantcore/internal/config"
	"github.com/watzon/tenantcore/internal/database"
	"github.com/watzon/tenantcore/internal/triggers"
)

func testDBExec(t *testing.T) *database.DB {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	cfg := &config.DatabaseConfig{
		Path:        dbPath,
		WALMode:     true,
		BusyTimeout: 5 * time.Second,
	}

	db, err := database.Open(cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func entry(id, triggerID string, at time.Time, success bool) triggers.LogEntry {
	e := triggers.LogEntry{
		ID:          id,
		TriggerID:   triggerID,
		EntityClass: "Invoice",
		Phase:       triggers.PhaseAfterSave,
		Timestamp:   at,
		DurationMs:  1.5,
		Success:     success,
		EntityID:    "inv-1",
		UserID:      "u1",
	}
	if !success {
		e.Error = "boom"
	}
	return e
}

func TestStore_AppendAndEntries(t *testing.T) {
	store := NewStore(testDBExec(t))
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, store.Append(ctx, entry("e2", "t1", now, false)))
	require.NoError(t, store.Append(ctx, entry("e1", "t1", now.Add(-time.Minute), true)))
	require.NoError(t, store.Append(ctx, entry("e3", "t2", now, true)))

	entries, err := store.Entries(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "e1", entries[0].ID)
	require.Equal(t, "e2", entries[1].ID)

	failed := entries[1]
	require.False(t, failed.Success)
	require.Equal(t, "boom", failed.Error)
	require.Equal(t, triggers.PhaseAfterSave, failed.Phase)
	require.Equal(t, 1.5, failed.DurationMs)
	require.Equal(t, "inv-1", failed.EntityID)
	require.Equal(t, "u1", failed.UserID)
	require.True(t, failed.Timestamp.Equal(now))

	empty, err := store.Entries(ctx, "missing")
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestStore_List(t *testing.T) {
	store := NewStore(testDBExec(t))
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, entry(fmt.Sprintf("e%d", i), "t1", base.Add(time.Duration(i)*time.Minute), i%2 == 0)))
	}

	all, err := store.List(ctx, Filter{TriggerID: "t1"})
	require.NoError(t, err)
	require.Len(t, all, 5)
	require.Equal(t, "e4", all[0].ID)

	ok := true
	successes, err := store.List(ctx, Filter{Success: &ok})
	require.NoError(t, err)
	require.Len(t, successes, 3)

	page, err := store.List(ctx, Filter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "e3", page[0].ID)

	recent, err := store.List(ctx, Filter{Since: base.Add(3 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, recent, 2)

	n, err := store.Count(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, 5, n)
}

func TestStore_ConcurrentAppends(t *testing.T) {
	store := NewStore(testDBExec(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- store.Append(ctx, entry(fmt.Sprintf("c%d", i), "t1", time.Now(), true))
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	n, err := store.Count(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, 40, n)
}

func TestStore_BacksEngineStats(t *testing.T) {
	store := NewStore(testDBExec(t))
	ctx := context.Background()

	bodies := triggers.NewBodyRegistry()
	require.NoError(t, bodies.Register("ok", func(context.Context, *triggers.Event) error { return nil }))

	engine := triggers.NewEngine(triggers.WithLog(store), triggers.WithBodies(bodies))
	def, err := engine.Create(ctx, &triggers.Definition{EntityClass: "Doc", Phase: triggers.PhaseAfterSave, Body: "ok"})
	require.NoError(t, err)
	_, err = engine.Activate(ctx, def.ID)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		engine.Fire(ctx, &triggers.Event{EntityClass: "Doc", Phase: triggers.PhaseAfterSave, Entity: map[string]any{}})
	}

	stats, err := engine.Stats(ctx, def.ID)
	require.NoError(t, err)
	require.Equal(t, 3, stats.TotalExecutions)
	require.Equal(t, 1.0, stats.SuccessRate)
	require.Equal(t, 3, stats.PeakExecutionsPerHour)
}

func TestStore_DeleteOlderThan(t *testing.T) {
	store := NewStore(testDBExec(t))
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, store.Append(ctx, entry("old", "t1", now.Add(-48*time.Hour), true)))
	require.NoError(t, store.Append(ctx, entry("new", "t1", now, true)))

	removed, err := store.DeleteOlderThan(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	entries, err := store.Entries(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "new", entries[0].ID)
}
