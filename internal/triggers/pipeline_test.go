package triggers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPipeline_Ordering(t *testing.T) {
	e, bodies, _ := newTestEngine(t)
	rec := &recorder{}
	require.NoError(t, bodies.Register("before", rec.body("before", nil)))
	require.NoError(t, bodies.Register("after", rec.body("after", nil)))

	createActive(t, e, &Definition{EntityClass: "Doc", Phase: PhaseBeforeSave, Body: "before"})
	createActive(t, e, &Definition{EntityClass: "Doc", Phase: PhaseAfterSave, Body: "after"})

	p := NewPipeline(e)
	result, err := p.Run(context.Background(), OpSave, Event{EntityClass: "Doc", Entity: map[string]any{}}, func(context.Context) error {
		rec.body("commit", nil)(context.Background(), nil)
		return nil
	})
	require.NoError(t, err)
	require.True(t, result.Committed)
	require.Len(t, result.Before.Entries, 1)
	require.Len(t, result.After.Entries, 1)
	require.Equal(t, []string{"before", "commit", "after"}, rec.names())
}

func TestPipeline_NonBlockingFailureCommits(t *testing.T) {
	e, bodies, _ := newTestEngine(t)
	require.NoError(t, bodies.Register("fails", func(context.Context, *Event) error { return errors.New("nope") }))
	createActive(t, e, &Definition{EntityClass: "Doc", Phase: PhaseBeforeDelete, Body: "fails"})

	committed := false
	result, err := NewPipeline(e).Run(context.Background(), OpDelete, Event{EntityClass: "Doc"}, func(context.Context) error {
		committed = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, committed)
	require.True(t, result.Committed)
	require.False(t, result.Before.Entries[0].Success)
}

func TestPipeline_BlockingFailureAborts(t *testing.T) {
	e, bodies, _ := newTestEngine(t)
	rec := &recorder{}
	require.NoError(t, bodies.Register("veto", rec.body("veto", errors.New("quota exceeded"))))
	require.NoError(t, bodies.Register("after", rec.body("after", nil)))
	createActive(t, e, &Definition{EntityClass: "Doc", Phase: PhaseBeforeSave, Body: "veto", Blocking: true})
	createActive(t, e, &Definition{EntityClass: "Doc", Phase: PhaseAfterSave, Body: "after"})

	committed := false
	result, err := NewPipeline(e).Run(context.Background(), OpSave, Event{EntityClass: "Doc"}, func(context.Context) error {
		committed = true
		return nil
	})
	require.ErrorIs(t, err, ErrMutationBlocked)
	require.False(t, committed)
	require.False(t, result.Committed)
	require.Equal(t, []string{"veto"}, rec.names())
}

func TestPipeline_BlockingAfterTriggerNeverBlocks(t *testing.T) {
	e, bodies, _ := newTestEngine(t)
	require.NoError(t, bodies.Register("fails", func(context.Context, *Event) error { return errors.New("late") }))
	createActive(t, e, &Definition{EntityClass: "Doc", Phase: PhaseAfterSave, Body: "fails", Blocking: true})

	result, err := NewPipeline(e).Run(context.Background(), OpSave, Event{EntityClass: "Doc"}, nil)
	require.NoError(t, err)
	require.True(t, result.Committed)
	require.Nil(t, result.After.Blocked)
}

func TestPipeline_CommitFailureSkipsAfter(t *testing.T) {
	e, bodies, _ := newTestEngine(t)
	rec := &recorder{}
	require.NoError(t, bodies.Register("after", rec.body("after", nil)))
	createActive(t, e, &Definition{EntityClass: "Doc", Phase: PhaseAfterFind, Body: "after"})

	commitErr := errors.New("constraint failed")
	result, err := NewPipeline(e).Run(context.Background(), OpFind, Event{EntityClass: "Doc"}, func(context.Context) error {
		return commitErr
	})
	require.ErrorIs(t, err, commitErr)
	require.False(t, result.Committed)
	require.Empty(t, rec.names())
}

func TestPipeline_UnknownOperation(t *testing.T) {
	e, _, _ := newTestEngine(t)
	_, err := NewPipeline(e).Run(context.Background(), "upsert", Event{}, nil)
	require.Error(t, err)
}
