package server

import (
	"net/http"

	"github.com/watzon/tenantcore/internal/auth"
	"github.com/watzon/tenantcore/internal/metrics"
	"github.com/watzon/tenantcore/internal/server/handlers"
)

type Router struct {
	server      *Server
	mux         *http.ServeMux
	middlewares []Middleware
}

type Middleware func(http.Handler) http.Handler

func NewRouter(srv *Server) *Router {
	r := &Router{
		server: srv,
		mux:    http.NewServeMux(),
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

func (r *Router) setupMiddleware() {
	r.Use(RecoveryMiddleware)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(MetricsMiddleware)

	if r.server.cfg.Server.MaxBodySize > 0 {
		r.Use(MaxBodySizeMiddleware(r.server.cfg.Server.MaxBodySize))
	}
}

func (r *Router) Use(mw Middleware) {
	r.middlewares = append(r.middlewares, mw)
}

func (r *Router) setupRoutes() {
	deps := r.server.deps
	h := handlers.New(deps.Registry, deps.Gateway, deps.Triggers, deps.Platform)
	if deps.Executions != nil {
		h.WithHistory(deps.Executions)
	}
	health := handlers.NewHealthHandlers(deps.DB, deps.Registry, deps.Platform, r.server.version)

	r.mux.HandleFunc("GET /health", health.Health)
	r.mux.HandleFunc("GET /health/live", health.Liveness)
	r.mux.HandleFunc("GET /health/stats", health.Stats)
	r.mux.Handle("GET /metrics", metrics.Handler())

	r.mux.HandleFunc("GET /api/rpc", r.optional(h.ListProcedures))
	r.mux.HandleFunc("POST /api/rpc/{name}", r.optional(h.Invoke))

	r.mux.HandleFunc("GET /api/orgs/{orgId}/functions", r.required(h.ListOrgFunctions))
	r.mux.HandleFunc("POST /api/orgs/{orgId}/functions/{name}", r.optional(h.InvokeOrgFunction))

	r.mux.HandleFunc("GET /api/triggers", r.optional(h.ListTriggers))
	r.mux.HandleFunc("POST /api/triggers", r.required(h.CreateTrigger))
	r.mux.HandleFunc("POST /api/triggers/fire", r.required(h.FireTriggers))
	r.mux.HandleFunc("GET /api/triggers/{id}", r.optional(h.GetTrigger))
	r.mux.HandleFunc("PUT /api/triggers/{id}", r.required(h.UpdateTrigger))
	r.mux.HandleFunc("DELETE /api/triggers/{id}", r.required(h.DeleteTrigger))
	r.mux.HandleFunc("GET /api/triggers/{id}/stats", r.optional(h.TriggerStats))
	r.mux.HandleFunc("GET /api/triggers/{id}/executions", r.optional(h.TriggerExecutions))
	r.mux.HandleFunc("POST /api/triggers/{id}/activate", r.required(h.ActivateTrigger))
	r.mux.HandleFunc("POST /api/triggers/{id}/disable", r.required(h.DisableTrigger))

	r.mux.HandleFunc("GET /api/platform/status", r.optional(h.PlatformStatus))
}

// optional attaches caller claims when a bearer token is present.
func (r *Router) optional(fn handlers.HandlerFunc) http.HandlerFunc {
	return r.withAuth(fn, false)
}

func (r *Router) required(fn handlers.HandlerFunc) http.HandlerFunc {
	return r.withAuth(fn, true)
}

func (r *Router) withAuth(fn handlers.HandlerFunc, require bool) http.HandlerFunc {
	tokens := r.server.deps.Tokens
	if tokens == nil {
		if require {
			return func(w http.ResponseWriter, _ *http.Request) {
				handlers.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication is not configured")
			}
		}
		return http.HandlerFunc(fn)
	}

	handler := auth.Middleware(auth.MiddlewareConfig{Tokens: tokens, RequireAuth: require})(http.HandlerFunc(fn))
	return handler.ServeHTTP
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	handler := http.Handler(r.mux)

	for i := len(r.middlewares) - 1; i >= 0; i-- {
		handler = r.middlewares[i](handler)
	}

	handler.ServeHTTP(w, req)
}
