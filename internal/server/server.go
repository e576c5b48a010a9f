// Package server is the HTTP host for the procedure registry, org-scoped
// functions, triggers and platform status.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/watzon/tenantcore/internal/auth"
	"github.com/watzon/tenantcore/internal/config"
	"github.com/watzon/tenantcore/internal/database"
	"github.com/watzon/tenantcore/internal/dispatch"
	"github.com/watzon/tenantcore/internal/executions"
	"github.com/watzon/tenantcore/internal/orgauth"
	"github.com/watzon/tenantcore/internal/platform"
	"github.com/watzon/tenantcore/internal/triggers"
)

// Deps are the services the server exposes.
type Deps struct {
	DB       *database.DB
	Registry *dispatch.Registry
	Gateway  *orgauth.Gateway
	Triggers *triggers.Engine

	// Executions enables filtered execution history queries. Optional.
	Executions *executions.Store
	Platform   platform.Reader
	Tokens     *auth.TokenService
}

type Server struct {
	cfg        *config.Config
	deps       Deps
	version    string
	httpServer *http.Server
	router     *Router
}

type Option func(*Server)

func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

func New(cfg *config.Config, deps Deps, opts ...Option) *Server {
	srv := &Server{
		cfg:     cfg,
		deps:    deps,
		version: "dev",
	}

	for _, opt := range opts {
		opt(srv)
	}

	srv.router = NewRouter(srv)
	srv.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      srv.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return srv
}

// Start serves until Shutdown is called.
func (s *Server) Start(_ context.Context) error {
	log.Info().
		Str("addr", s.cfg.Server.Address()).
		Int("procedures", len(s.deps.Registry.Names())).
		Msg("Starting server")

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Config() *config.Config {
	return s.cfg
}
