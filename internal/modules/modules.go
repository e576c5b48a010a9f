// Package modules loads procedure modules into a shared registration host.
//
// A module is resolved from a path (an in-process catalog name or a manifest
// file) and registers its procedures, org-scoped functions and triggers
// through the Host. Loading is best-effort: a module that fails to resolve,
// fails to register or panics is recorded and the remaining modules still
// load.
package modules

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/watzon/tenantcore/internal/dispatch"
	"github.com/watzon/tenantcore/internal/metrics"
	"github.com/watzon/tenantcore/internal/orgauth"
	"github.com/watzon/tenantcore/internal/rules"
	"github.com/watzon/tenantcore/internal/triggers"
)

// ErrUnknownModule is returned by a Resolver that does not recognize a path.
var ErrUnknownModule = errors.New("unknown module")

// Host is the registration facility handed to every module.
type Host struct {
	Registry *dispatch.Registry
	Gateway  *orgauth.Gateway
	Triggers *triggers.Engine

	// Rules compiles expression-backed procedures. Optional.
	Rules *rules.Engine
	// Bodies receives named in-process trigger bodies. Optional.
	Bodies *triggers.BodyRegistry
}

// Module registers its procedures into a Host.
type Module interface {
	Register(ctx context.Context, host *Host) error
}

// ModuleFunc adapts a function to Module.
type ModuleFunc func(ctx context.Context, host *Host) error

func (f ModuleFunc) Register(ctx context.Context, host *Host) error {
	return f(ctx, host)
}

// Resolver turns a module path into a Module.
type Resolver interface {
	Resolve(path string) (Module, error)
}

// Catalog resolves in-process modules by name.
type Catalog struct {
	modules map[string]Module
}

func NewCatalog() *Catalog {
	return &Catalog{modules: make(map[string]Module)}
}

// Add registers m under name, replacing any previous entry.
func (c *Catalog) Add(name string, m Module) *Catalog {
	c.modules[name] = m
	return c
}

func (c *Catalog) Resolve(path string) (Module, error) {
	m, ok := c.modules[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, path)
	}
	return m, nil
}

// ChainResolver tries each resolver in turn. The first one that does not
// return ErrUnknownModule wins.
type ChainResolver []Resolver

func (c ChainResolver) Resolve(path string) (Module, error) {
	for _, r := range c {
		m, err := r.Resolve(path)
		if errors.Is(err, ErrUnknownModule) {
			continue
		}
		return m, err
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownModule, path)
}

// Failure records one module that did not load.
type Failure struct {
	Path string
	Err  error
}

// Report summarizes a Load call.
type Report struct {
	Loaded []string
	Failed []Failure
}

// OK reports whether every module loaded.
func (r *Report) OK() bool {
	return len(r.Failed) == 0
}

// Load resolves and registers each path in order. Procedures registered by a
// module before it fails stay registered.
func Load(ctx context.Context, paths []string, resolver Resolver, host *Host) *Report {
	report := &Report{}

	for _, path := range paths {
		if err := loadOne(ctx, path, resolver, host); err != nil {
			log.Error().Err(err).Str("module", path).Msg("Failed to load module")
			metrics.RecordModuleLoad(false)
			report.Failed = append(report.Failed, Failure{Path: path, Err: err})
			continue
		}

		log.Debug().Str("module", path).Msg("Loaded module")
		metrics.RecordModuleLoad(true)
		report.Loaded = append(report.Loaded, path)
	}

	return report
}

func loadOne(ctx context.Context, path string, resolver Resolver, host *Host) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("module panicked: %v", p)
		}
	}()

	m, err := resolver.Resolve(path)
	if err != nil {
		return fmt.Errorf("resolving module: %w", err)
	}

	if err := m.Register(ctx, host); err != nil {
		return fmt.Errorf("registering module: %w", err)
	}

	return nil
}
