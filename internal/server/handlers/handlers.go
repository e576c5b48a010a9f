// Package handlers implements the HTTP endpoints of the host.
package handlers

import (
	"context"
	"net/http"

	"github.com/watzon/tenantcore/internal/auth"
	"github.com/watzon/tenantcore/internal/dispatch"
	"github.com/watzon/tenantcore/internal/executions"
	"github.com/watzon/tenantcore/internal/orgauth"
	"github.com/watzon/tenantcore/internal/platform"
	"github.com/watzon/tenantcore/internal/requestctx"
	"github.com/watzon/tenantcore/internal/triggers"
)

type HandlerFunc func(http.ResponseWriter, *http.Request)

type Handlers struct {
	registry *dispatch.Registry
	gateway  *orgauth.Gateway
	triggers *triggers.Engine
	platform platform.Reader
	history  ExecutionHistory
}

// ExecutionHistory is the queryable execution log behind the executions
// endpoint. Without one the engine's log is returned unfiltered.
type ExecutionHistory interface {
	List(ctx context.Context, f executions.Filter) ([]triggers.LogEntry, error)
	Count(ctx context.Context, triggerID string) (int, error)
}

func New(registry *dispatch.Registry, gateway *orgauth.Gateway, engine *triggers.Engine, reader platform.Reader) *Handlers {
	return &Handlers{
		registry: registry,
		gateway:  gateway,
		triggers: engine,
		platform: reader,
	}
}

// WithHistory sets the execution history used for paginated queries.
func (h *Handlers) WithHistory(history ExecutionHistory) *Handlers {
	h.history = history
	return h
}

type invokeRequest struct {
	Params map[string]any `json:"params"`
}

type invokeResponse struct {
	Result any `json:"result"`
}

func caller(r *http.Request, params map[string]any) *dispatch.CallerContext {
	call := &dispatch.CallerContext{Params: params}
	if claims := auth.ClaimsFromContext(r.Context()); claims != nil {
		call.UserID = claims.UserID
		call.OrganizationID = claims.OrganizationID
	}
	return call
}

// Invoke calls a registered procedure by name.
func (h *Handlers) Invoke(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req invokeRequest
	if err := decodeBody(r, &req); err != nil {
		BadRequest(w, "Invalid JSON body")
		return
	}

	result, err := h.registry.Invoke(r.Context(), name, caller(r, req.Params))
	if err != nil {
		DispatchError(w, r, err)
		return
	}

	JSON(w, http.StatusOK, invokeResponse{Result: result})
}

// ListProcedures returns every registered procedure, optionally filtered by
// a glob in ?match=.
func (h *Handlers) ListProcedures(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("match")
	if pattern == "" {
		JSON(w, http.StatusOK, map[string]any{"procedures": h.registry.List()})
		return
	}

	procs, err := h.registry.Match(pattern)
	if err != nil {
		BadRequest(w, "Invalid match pattern")
		return
	}
	JSON(w, http.StatusOK, map[string]any{"procedures": procs})
}

func (h *Handlers) ListOrgFunctions(w http.ResponseWriter, r *http.Request) {
	orgID := r.PathValue("orgId")
	if err := h.gateway.CheckMembership(r.Context(), caller(r, nil).UserID, orgID); err != nil {
		DispatchError(w, r, err)
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"functions": h.gateway.ListOrgFunctions(orgID),
	})
}

// InvokeOrgFunction calls org_{orgId}_{name}. The path organization always
// overrides any orgId in the body.
func (h *Handlers) InvokeOrgFunction(w http.ResponseWriter, r *http.Request) {
	orgID := r.PathValue("orgId")
	name := r.PathValue("name")

	var req invokeRequest
	if err := decodeBody(r, &req); err != nil {
		BadRequest(w, "Invalid JSON body")
		return
	}
	if req.Params == nil {
		req.Params = make(map[string]any)
	}
	req.Params[orgauth.OrgIDParam] = orgID

	call := caller(r, req.Params)
	call.OrganizationID = orgID

	result, err := h.registry.Invoke(r.Context(), orgauth.BindingName(orgID, name), call)
	if err != nil {
		DispatchError(w, r, err)
		return
	}

	JSON(w, http.StatusOK, invokeResponse{Result: result})
}

func (h *Handlers) PlatformStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.platform.Read(r.Context())
	if err != nil {
		requestctx.Logger(r.Context()).Error().Err(err).Msg("Failed to read platform status")
		InternalError(w, "Failed to read platform status")
		return
	}
	JSON(w, http.StatusOK, status)
}
