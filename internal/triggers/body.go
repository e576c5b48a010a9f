package triggers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/watzon/tenantcore/internal/dispatch"
)

// Body is the code a trigger runs.
type Body func(ctx context.Context, event *Event) error

// BodyResolver turns a Definition.Body reference into a Body. Resolvers
// return ErrBodyNotFound for references they do not serve.
type BodyResolver interface {
	Resolve(ref string) (Body, error)
}

// BodyRegistry holds named in-process bodies.
type BodyRegistry struct {
	mu     sync.RWMutex
	bodies map[string]Body
}

func NewBodyRegistry() *BodyRegistry {
	return &BodyRegistry{bodies: make(map[string]Body)}
}

// Register adds body under name. The first registration of a name wins.
func (r *BodyRegistry) Register(name string, body Body) error {
	if name == "" || body == nil {
		return fmt.Errorf("body name and function are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bodies[name]; exists {
		return fmt.Errorf("body already registered: %s", name)
	}
	r.bodies[name] = body
	return nil
}

func (r *BodyRegistry) Resolve(ref string) (Body, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	body, ok := r.bodies[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBodyNotFound, ref)
	}
	return body, nil
}

// ProcedurePrefix marks body references that name a dispatch procedure.
const ProcedurePrefix = "proc:"

// ProcedureBodies resolves "proc:<name>" to a call of the named procedure.
// The entity's fields become the call parameters.
type ProcedureBodies struct {
	Registry *dispatch.Registry
}

func (p ProcedureBodies) Resolve(ref string) (Body, error) {
	name, ok := strings.CutPrefix(ref, ProcedurePrefix)
	if !ok || name == "" {
		return nil, fmt.Errorf("%w: %s", ErrBodyNotFound, ref)
	}

	return func(ctx context.Context, event *Event) error {
		params := make(map[string]any, len(event.Entity)+1)
		for k, v := range event.Entity {
			params[k] = v
		}
		if _, ok := params["orgId"]; !ok && event.OrganizationID != "" {
			params["orgId"] = event.OrganizationID
		}

		_, err := p.Registry.Invoke(ctx, name, &dispatch.CallerContext{
			UserID:         event.UserID,
			OrganizationID: event.OrganizationID,
			Params:         params,
		})
		return err
	}, nil
}

// ChainBodies tries each resolver in order.
type ChainBodies []BodyResolver

func (c ChainBodies) Resolve(ref string) (Body, error) {
	for _, r := range c {
		body, err := r.Resolve(ref)
		if err == nil {
			return body, nil
		}
		if !errors.Is(err, ErrBodyNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrBodyNotFound, ref)
}
