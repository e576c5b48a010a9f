package triggers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/watzon/tenantcore/internal/metrics"
	"github.com/watzon/tenantcore/internal/rules"
)

// DefaultTimeout bounds a single trigger body.
const DefaultTimeout = 5 * time.Second

// Engine holds trigger definitions and executes them.
//
// Active triggers for an (entity class, phase) pair run in priority order,
// highest first, and in registration order among equal priorities.
type Engine struct {
	mu      sync.RWMutex
	defs    map[string]*Definition
	nextSeq int64

	store   DefinitionStore
	log     ExecutionLog
	bodies  BodyResolver
	guards  *rules.Engine
	timeout time.Duration
	now     func() time.Time
}

type EngineOption func(*Engine)

// WithStore persists definitions. Without it definitions live in memory only.
func WithStore(store DefinitionStore) EngineOption {
	return func(e *Engine) { e.store = store }
}

// WithLog sets the execution log. The default is a MemoryLog.
func WithLog(l ExecutionLog) EngineOption {
	return func(e *Engine) { e.log = l }
}

func WithBodies(bodies BodyResolver) EngineOption {
	return func(e *Engine) { e.bodies = bodies }
}

// WithGuards enables CEL guard expressions.
func WithGuards(guards *rules.Engine) EngineOption {
	return func(e *Engine) { e.guards = guards }
}

func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.timeout = d }
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		defs:    make(map[string]*Definition),
		log:     NewMemoryLog(),
		bodies:  NewBodyRegistry(),
		timeout: DefaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load reads persisted definitions into the engine.
func (e *Engine) Load(ctx context.Context) error {
	if e.store == nil {
		return nil
	}

	defs, err := e.store.List(ctx)
	if err != nil {
		return fmt.Errorf("loading triggers: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, def := range defs {
		if def.Guard != "" {
			if err := e.compileGuard(def); err != nil {
				log.Warn().Err(err).Str("trigger_id", def.ID).Msg("Trigger guard failed to compile")
				if def.Status != StatusError {
					def.Status = StatusError
					def.UpdatedAt = e.now().UTC()
					if err := e.persist(ctx, def); err != nil {
						log.Error().Err(err).Str("trigger_id", def.ID).Msg("Failed to persist trigger error status")
					}
				}
			}
		}
		e.defs[def.ID] = def
		if def.seq >= e.nextSeq {
			e.nextSeq = def.seq + 1
		}
	}

	log.Info().Int("count", len(e.defs)).Msg("Triggers loaded")
	return nil
}

// Create validates def and stores it as a draft at version 1.
func (e *Engine) Create(ctx context.Context, def *Definition) (*Definition, error) {
	if err := validate(def, e.guardChecker()); err != nil {
		return nil, err
	}

	created := def.clone()
	created.ID = uuid.New().String()
	created.Status = StatusDraft
	created.Version = 1
	created.CreatedAt = e.now().UTC()
	created.UpdatedAt = created.CreatedAt
	if created.Name == "" {
		created.Name = created.EntityClass + "." + string(created.Phase)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	created.seq = e.nextSeq
	if err := e.compileGuard(created); err != nil {
		return nil, err
	}
	if err := e.persist(ctx, created); err != nil {
		if e.guards != nil {
			e.guards.Remove(guardKey(created.ID))
		}
		return nil, err
	}

	e.nextSeq++
	e.defs[created.ID] = created

	log.Debug().
		Str("trigger_id", created.ID).
		Str("name", created.Name).
		Str("entity_class", created.EntityClass).
		Str("phase", string(created.Phase)).
		Msg("Trigger created")

	return created.clone(), nil
}

// Update replaces the editable fields of the trigger with def.ID and
// increments its version. Status is unchanged.
func (e *Engine) Update(ctx context.Context, def *Definition) (*Definition, error) {
	if err := validate(def, e.guardChecker()); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	current, ok := e.defs[def.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTriggerNotFound, def.ID)
	}

	updated := current.clone()
	updated.Name = def.Name
	if updated.Name == "" {
		updated.Name = current.Name
	}
	updated.EntityClass = def.EntityClass
	updated.Phase = def.Phase
	updated.Conditions = append([]Condition(nil), def.Conditions...)
	updated.Body = def.Body
	updated.Guard = def.Guard
	updated.Blocking = def.Blocking
	updated.Priority = def.Priority
	updated.Version = current.Version + 1
	updated.UpdatedAt = e.now().UTC()

	if err := e.compileGuard(updated); err != nil {
		return nil, err
	}
	if err := e.persist(ctx, updated); err != nil {
		_ = e.compileGuard(current)
		return nil, err
	}
	e.defs[updated.ID] = updated

	return updated.clone(), nil
}

// Activate moves a draft, disabled or errored trigger to active.
func (e *Engine) Activate(ctx context.Context, id string) (*Definition, error) {
	return e.transition(ctx, id, StatusActive, StatusDraft, StatusDisabled, StatusError)
}

// Disable moves an active trigger to disabled.
func (e *Engine) Disable(ctx context.Context, id string) (*Definition, error) {
	return e.transition(ctx, id, StatusDisabled, StatusActive)
}

func (e *Engine) transition(ctx context.Context, id string, to Status, from ...Status) (*Definition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	current, ok := e.defs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTriggerNotFound, id)
	}

	allowed := false
	for _, s := range from {
		if current.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, to)
	}

	updated := current.clone()
	updated.Status = to
	updated.UpdatedAt = e.now().UTC()
	if err := e.persist(ctx, updated); err != nil {
		return nil, err
	}
	e.defs[id] = updated

	log.Info().
		Str("trigger_id", id).
		Str("from", string(current.Status)).
		Str("to", string(to)).
		Msg("Trigger status changed")

	return updated.clone(), nil
}

// Delete removes a trigger. Its log entries are kept.
func (e *Engine) Delete(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.defs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrTriggerNotFound, id)
	}
	if e.store != nil {
		if err := e.store.Delete(ctx, id); err != nil {
			return err
		}
	}
	delete(e.defs, id)
	if e.guards != nil {
		e.guards.Remove(guardKey(id))
	}
	return nil
}

func (e *Engine) Get(id string) (*Definition, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	def, ok := e.defs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTriggerNotFound, id)
	}
	return def.clone(), nil
}

// FindByName returns the first definition, in registration order, named name.
func (e *Engine) FindByName(name string) (*Definition, bool) {
	for _, def := range e.List() {
		if def.Name == name {
			return def, true
		}
	}
	return nil, false
}

// List returns every definition in registration order.
func (e *Engine) List() []*Definition {
	e.mu.RLock()
	out := make([]*Definition, 0, len(e.defs))
	for _, def := range e.defs {
		out = append(out, def.clone())
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Matching returns the active triggers for an entity class and phase in
// execution order.
func (e *Engine) Matching(entityClass string, phase Phase) []*Definition {
	e.mu.RLock()
	var out []*Definition
	for _, def := range e.defs {
		if def.Status == StatusActive && def.EntityClass == entityClass && def.Phase == phase {
			out = append(out, def.clone())
		}
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// Fire runs every matching active trigger whose conditions and guard hold.
// Trigger failures are recorded, not returned. A failing blocking trigger in
// a before phase stops the run and sets FireResult.Blocked.
func (e *Engine) Fire(ctx context.Context, event *Event) FireResult {
	var result FireResult

	for _, def := range e.Matching(event.EntityClass, event.Phase) {
		// A concurrent run may have moved the trigger out of active since
		// the snapshot was taken.
		if !e.isActive(def.ID) || !Evaluate(def, event.Entity) || !e.guardAllows(def, event) {
			result.Skipped++
			continue
		}

		entry := e.run(ctx, def, event)
		result.Entries = append(result.Entries, entry)

		if !entry.Success && def.Blocking && event.Phase.Before() {
			result.Blocked = fmt.Errorf("%w: %s: %s", ErrMutationBlocked, def.Name, entry.Error)
			break
		}
	}

	return result
}

func (e *Engine) isActive(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	def, ok := e.defs[id]
	return ok && def.Status == StatusActive
}

// Execute runs one trigger regardless of its conditions and appends a log
// entry. Body failures are reported in the entry; only an unknown id errors.
// A nil event runs the body with an empty event for the trigger's class.
func (e *Engine) Execute(ctx context.Context, id string, event *Event) (LogEntry, error) {
	def, err := e.Get(id)
	if err != nil {
		return LogEntry{}, err
	}
	if event == nil {
		event = &Event{EntityClass: def.EntityClass, Phase: def.Phase}
	}
	return e.run(ctx, def, event), nil
}

// Stats folds the execution log of a trigger.
func (e *Engine) Stats(ctx context.Context, id string) (Stats, error) {
	if _, err := e.Get(id); err != nil {
		return Stats{}, err
	}

	entries, err := e.log.Entries(ctx, id)
	if err != nil {
		return Stats{}, fmt.Errorf("reading execution log: %w", err)
	}
	return ComputeStats(entries), nil
}

// Entries returns the execution log of a trigger.
func (e *Engine) Entries(ctx context.Context, id string) ([]LogEntry, error) {
	return e.log.Entries(ctx, id)
}

func (e *Engine) run(ctx context.Context, def *Definition, event *Event) LogEntry {
	start := e.now()
	err := e.runBody(ctx, def, event)
	duration := e.now().Sub(start)

	entry := LogEntry{
		ID:          uuid.New().String(),
		TriggerID:   def.ID,
		EntityClass: def.EntityClass,
		Phase:       def.Phase,
		Timestamp:   start.UTC(),
		DurationMs:  float64(duration) / float64(time.Millisecond),
		Success:     err == nil,
		EntityID:    event.ID(),
		UserID:      event.UserID,
	}
	if err != nil {
		entry.Error = err.Error()
	}

	if appendErr := e.log.Append(ctx, entry); appendErr != nil {
		log.Error().Err(appendErr).Str("trigger_id", def.ID).Msg("Failed to append trigger execution")
	}

	metrics.RecordTriggerExecution(def.EntityClass, string(def.Phase), entry.Success, duration)

	if err != nil {
		log.Error().
			Err(err).
			Str("trigger_id", def.ID).
			Str("name", def.Name).
			Str("entity_class", def.EntityClass).
			Str("phase", string(def.Phase)).
			Msg("Trigger failed")
		e.markError(ctx, def.ID)
	}

	return entry
}

func (e *Engine) runBody(ctx context.Context, def *Definition, event *Event) error {
	body, err := e.bodies.Resolve(def.Body)
	if err != nil {
		return err
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("panic: %v", p)
			}
		}()
		done <- body(ctx, event)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("trigger timed out after %s", e.timeout)
		}
		return ctx.Err()
	}
}

// markError moves an active trigger to error after a failed run.
func (e *Engine) markError(ctx context.Context, id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	current, ok := e.defs[id]
	if !ok || current.Status != StatusActive {
		return
	}

	updated := current.clone()
	updated.Status = StatusError
	updated.UpdatedAt = e.now().UTC()
	if err := e.persist(ctx, updated); err != nil {
		log.Error().Err(err).Str("trigger_id", id).Msg("Failed to persist trigger error status")
	}
	e.defs[id] = updated
}

func (e *Engine) persist(ctx context.Context, def *Definition) error {
	if e.store == nil {
		return nil
	}
	return e.store.Save(ctx, def)
}

func guardKey(id string) string {
	return "trigger:" + id
}

func (e *Engine) guardChecker() func(string) error {
	if e.guards == nil {
		return nil
	}
	return e.guards.Validate
}

func (e *Engine) compileGuard(def *Definition) error {
	if e.guards == nil {
		return nil
	}
	if def.Guard == "" {
		e.guards.Remove(guardKey(def.ID))
		return nil
	}
	if err := e.guards.Compile(guardKey(def.ID), def.Guard); err != nil {
		return definitionError("guard", "%v", err)
	}
	return nil
}

// guardAllows evaluates the trigger's guard. Evaluation errors deny.
func (e *Engine) guardAllows(def *Definition, event *Event) bool {
	if def.Guard == "" || e.guards == nil {
		return def.Guard == ""
	}

	ok, err := e.guards.Evaluate(guardKey(def.ID), &rules.EvalContext{
		Entity:   event.Entity,
		Previous: event.Previous,
		User:     rules.BuildUserContext(event.UserID, event.OrganizationID),
	})
	if err != nil {
		log.Warn().Err(err).Str("trigger_id", def.ID).Msg("Trigger guard evaluation failed")
		return false
	}
	return ok
}
