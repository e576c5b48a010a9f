package triggers

import (
	"context"
	"fmt"
)

// Operation is an entity mutation or query kind.
type Operation string

const (
	OpSave   Operation = "save"
	OpDelete Operation = "delete"
	OpFind   Operation = "find"
)

// Phases returns the before and after phases of op.
func (op Operation) Phases() (before, after Phase, ok bool) {
	switch op {
	case OpSave:
		return PhaseBeforeSave, PhaseAfterSave, true
	case OpDelete:
		return PhaseBeforeDelete, PhaseAfterDelete, true
	case OpFind:
		return PhaseBeforeFind, PhaseAfterFind, true
	}
	return "", "", false
}

// PipelineResult holds the before and after trigger runs of one operation.
type PipelineResult struct {
	Before    FireResult `json:"before"`
	After     FireResult `json:"after"`
	Committed bool       `json:"committed"`
}

// Pipeline sequences triggers around an entity operation.
type Pipeline struct {
	engine *Engine
}

func NewPipeline(engine *Engine) *Pipeline {
	return &Pipeline{engine: engine}
}

// Run fires the before-phase triggers, calls commit, and fires the
// after-phase triggers only when commit succeeds. A failing blocking
// before-phase trigger prevents the commit and returns an error wrapping
// ErrMutationBlocked. Other trigger failures never reach the caller.
func (p *Pipeline) Run(ctx context.Context, op Operation, event Event, commit func(ctx context.Context) error) (*PipelineResult, error) {
	before, after, ok := op.Phases()
	if !ok {
		return nil, fmt.Errorf("unknown operation %q", op)
	}

	result := &PipelineResult{}

	event.Phase = before
	result.Before = p.engine.Fire(ctx, &event)
	if result.Before.Blocked != nil {
		return result, result.Before.Blocked
	}

	if commit != nil {
		if err := commit(ctx); err != nil {
			return result, err
		}
	}
	result.Committed = true

	event.Phase = after
	result.After = p.engine.Fire(ctx, &event)

	return result, nil
}
