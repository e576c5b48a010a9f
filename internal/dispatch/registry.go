package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog/log"

	"github.com/watzon/tenantcore/internal/metrics"
)

// ErrFrozen is the cause recorded when registering after bootstrap.
var ErrFrozen = errors.New("registry is frozen")

type entry struct {
	name         string
	handler      Handler
	registeredAt time.Time
}

// Registry maps procedure names to handlers.
//
// It is populated during bootstrap and frozen afterwards. The first
// registration of a name wins; later ones fail with RegistrationConflict.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
	frozen  bool
	timeout time.Duration
}

// Option configures a Registry.
type Option func(*Registry)

// WithTimeout bounds every invocation. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.timeout = d
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a procedure under name.
func (r *Registry) Register(name string, handler Handler) error {
	if name == "" {
		return conflictError(name, "procedure name cannot be empty")
	}
	if handler == nil {
		return conflictError(name, fmt.Sprintf("procedure %s has no handler", name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		err := conflictError(name, fmt.Sprintf("cannot register %s: registry is frozen", name))
		err.Cause = ErrFrozen
		return err
	}

	if _, exists := r.entries[name]; exists {
		return conflictError(name, fmt.Sprintf("procedure already registered: %s", name))
	}

	r.entries[name] = &entry{
		name:         name,
		handler:      handler,
		registeredAt: time.Now().UTC(),
	}
	r.order = append(r.order, name)

	log.Debug().Str("procedure", name).Msg("Procedure registered")

	return nil
}

// Freeze ends the bootstrap phase. Subsequent registrations fail.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	count := len(r.entries)
	r.mu.Unlock()

	log.Info().Int("count", count).Msg("Procedure registry frozen")
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Names returns procedure names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// List returns registered procedures in registration order.
func (r *Registry) List() []Procedure {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Procedure, 0, len(r.order))
	for _, name := range r.order {
		e := r.entries[name]
		out = append(out, Procedure{Name: e.name, RegisteredAt: e.registeredAt})
	}
	return out
}

// Match returns procedures whose names match a glob pattern, in registration order.
func (r *Registry) Match(pattern string) ([]Procedure, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling pattern %q: %w", pattern, err)
	}

	var out []Procedure
	for _, p := range r.List() {
		if g.Match(p.Name) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Invoke runs the procedure registered under name.
//
// Handler faults never escape raw: errors, panics and deadline overruns are
// logged and returned as an InternalExecutionError naming the procedure.
// Organization access errors raised by gateway-wrapped handlers are already
// caller-facing and pass through unchanged.
func (r *Registry) Invoke(ctx context.Context, name string, call *CallerContext) (any, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()

	if !ok {
		metrics.RecordProcedureInvocation(name, "not_found", 0)
		return nil, notFoundError(name)
	}

	if call == nil {
		call = &CallerContext{}
	}

	start := time.Now()
	result, err := r.run(ctx, e, call)
	duration := time.Since(start)

	if err == nil {
		metrics.RecordProcedureInvocation(name, "success", duration)
		return result, nil
	}

	var de *Error
	if errors.As(err, &de) && de.Kind == KindOrganizationAccess {
		metrics.RecordProcedureInvocation(name, "denied", duration)
		return nil, de
	}

	wrapped := NewInternalError(name, err)
	wrapped.Timeout = errors.Is(err, context.DeadlineExceeded)

	log.Error().
		Err(err).
		Str("procedure", name).
		Str("user_id", call.UserID).
		Bool("timeout", wrapped.Timeout).
		Dur("duration", duration).
		Msg("Procedure failed")

	metrics.RecordProcedureInvocation(name, "error", duration)
	return nil, wrapped
}

type outcome struct {
	value any
	err   error
}

// run executes the handler on its own goroutine so an uncooperative body
// cannot hold the caller past the deadline.
func (r *Registry) run(ctx context.Context, e *entry, call *CallerContext) (any, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", p)}
			}
		}()
		v, err := e.handler(ctx, call)
		done <- outcome{value: v, err: err}
	}()

	select {
	case o := <-done:
		return o.value, o.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("execution timed out: %w", ctx.Err())
		}
		return nil, ctx.Err()
	}
}
