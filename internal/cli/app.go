package cli

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/watzon/tenantcore/internal/builtin"
	"github.com/watzon/tenantcore/internal/config"
	"github.com/watzon/tenantcore/internal/database"
	"github.com/watzon/tenantcore/internal/dispatch"
	"github.com/watzon/tenantcore/internal/executions"
	"github.com/watzon/tenantcore/internal/modules"
	"github.com/watzon/tenantcore/internal/orgauth"
	"github.com/watzon/tenantcore/internal/platform"
	"github.com/watzon/tenantcore/internal/roles"
	"github.com/watzon/tenantcore/internal/rules"
	"github.com/watzon/tenantcore/internal/triggers"
)

// app holds the wired services shared by serve and the inspection commands.
type app struct {
	cfg         *config.Config
	db          *database.DB
	roles       *roles.Table
	rules       *rules.Engine
	registry    *dispatch.Registry
	gateway     *orgauth.Gateway
	memberships *orgauth.MembershipStore
	platform    *platform.Store
	executions  *executions.Store
	bodies      *triggers.BodyRegistry
	engine      *triggers.Engine
}

func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := database.Open(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	table, err := roles.Load(cfg.Resolve(cfg.Roles.Path))
	if err != nil {
		db.Close()
		return nil, err
	}

	rulesEngine, err := rules.NewEngine()
	if err != nil {
		db.Close()
		return nil, err
	}

	registry := dispatch.NewRegistry(dispatch.WithTimeout(cfg.Dispatch.Timeout))
	execStore := executions.NewStore(db)
	bodies := triggers.NewBodyRegistry()

	a := &app{
		cfg:         cfg,
		db:          db,
		roles:       table,
		rules:       rulesEngine,
		registry:    registry,
		gateway:     orgauth.NewGateway(registry, orgauth.NewRegistryLookup(registry), orgauth.WithRoleTable(table)),
		memberships: orgauth.NewMembershipStore(db),
		platform:    platform.NewStore(db),
		executions:  execStore,
		bodies:      bodies,
		engine: triggers.NewEngine(
			triggers.WithStore(triggers.NewStore(db)),
			triggers.WithLog(execStore),
			triggers.WithBodies(triggers.ChainBodies{bodies, triggers.ProcedureBodies{Registry: registry}}),
			triggers.WithGuards(rulesEngine),
			triggers.WithTimeout(cfg.Triggers.Timeout),
		),
	}

	if err := a.engine.Load(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("loading triggers: %w", err)
	}

	return a, nil
}

func (a *app) host() *modules.Host {
	return &modules.Host{
		Registry: a.registry,
		Gateway:  a.gateway,
		Triggers: a.engine,
		Rules:    a.rules,
		Bodies:   a.bodies,
	}
}

func (a *app) resolver() modules.Resolver {
	dir := a.cfg.Dir
	if dir == "" {
		dir = "."
	}

	return modules.ChainResolver{
		builtin.Catalog(builtin.Deps{
			Roles:       a.roles,
			Memberships: a.memberships,
			Platform:    a.platform,
		}),
		modules.ManifestResolver{Dir: dir},
	}
}

// loadModules loads the configured modules and closes registration.
func (a *app) loadModules(ctx context.Context) *modules.Report {
	report := modules.Load(ctx, a.cfg.Dispatch.Modules, a.resolver(), a.host())
	a.registry.Freeze()

	log.Info().
		Int("loaded", len(report.Loaded)).
		Int("failed", len(report.Failed)).
		Int("procedures", len(a.registry.Names())).
		Msg("Modules loaded")

	return report
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		log.Warn().Err(err).Msg("Error closing database")
	}
}
