// Package dispatch registers named procedures and invokes them with uniform
// failure semantics: unknown names yield NotFound, and any fault raised by a
// procedure body is logged and normalized into an InternalExecutionError that
// names the procedure.
package dispatch

import (
	"context"
	"fmt"
	"time"
)

// CallerContext is supplied per invocation and never persisted. Empty strings
// mean the value is absent.
type CallerContext struct {
	UserID         string         `json:"userId,omitempty"`
	OrganizationID string         `json:"organizationId,omitempty"`
	Params         map[string]any `json:"params,omitempty"`
}

// Param returns the named parameter or nil.
func (c *CallerContext) Param(key string) any {
	if c == nil || c.Params == nil {
		return nil
	}
	return c.Params[key]
}

// StringParam returns the named parameter when it is a non-empty string, and
// formats scalar values otherwise. Missing or nil parameters yield "".
func (c *CallerContext) StringParam(key string) string {
	switch v := c.Param(key).(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case int, int64, float64, bool:
		return fmt.Sprint(v)
	default:
		return ""
	}
}

// Handler is a procedure body.
type Handler func(ctx context.Context, call *CallerContext) (any, error)

// Procedure describes a registered procedure.
type Procedure struct {
	Name         string    `json:"name"`
	RegisteredAt time.Time `json:"registeredAt"`
}
