package modules

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/watzon/tenantcore/internal/dispatch"
	"github.com/watzon/tenantcore/internal/orgauth"
	"github.com/watzon/tenantcore/internal/rules"
	"github.com/watzon/tenantcore/internal/triggers"
)

// Manifest is a declarative module: expression-backed procedures and trigger
// definitions.
type Manifest struct {
	Module       string          `yaml:"module"`
	Organization string          `yaml:"organization"`
	Procedures   []ProcedureSpec `yaml:"procedures"`
	Triggers     []TriggerSpec   `yaml:"triggers"`
}

// ProcedureSpec declares a procedure whose result is a CEL expression over
// params, caller and user.
type ProcedureSpec struct {
	Name       string `yaml:"name"`
	Expression string `yaml:"expression"`
	// Permission is only honored for org-scoped manifests.
	Permission string `yaml:"permission"`
}

// TriggerSpec declares a trigger definition.
type TriggerSpec struct {
	Name        string               `yaml:"name"`
	EntityClass string               `yaml:"entity_class"`
	Phase       string               `yaml:"phase"`
	Body        string               `yaml:"body"`
	Guard       string               `yaml:"guard"`
	Blocking    bool                 `yaml:"blocking"`
	Priority    int                  `yaml:"priority"`
	Activate    bool                 `yaml:"activate"`
	Conditions  []triggers.Condition `yaml:"conditions"`
}

// ParseManifest decodes and validates a YAML manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the manifest structure. Expressions and trigger fields are
// checked again when registered.
func (m *Manifest) Validate() error {
	if strings.TrimSpace(m.Module) == "" {
		return errors.New("manifest: module is required")
	}

	seen := make(map[string]bool, len(m.Procedures))
	for i, p := range m.Procedures {
		if p.Name == "" {
			return fmt.Errorf("manifest: procedures[%d]: name is required", i)
		}
		if p.Expression == "" {
			return fmt.Errorf("manifest: procedures[%d]: expression is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("manifest: procedures[%d]: duplicate name %q", i, p.Name)
		}
		seen[p.Name] = true
	}

	names := make(map[string]bool, len(m.Triggers))
	for i, t := range m.Triggers {
		if t.Name == "" {
			return fmt.Errorf("manifest: triggers[%d]: name is required", i)
		}
		if names[t.Name] {
			return fmt.Errorf("manifest: triggers[%d]: duplicate name %q", i, t.Name)
		}
		names[t.Name] = true
	}

	return nil
}

func (t *TriggerSpec) definition() *triggers.Definition {
	return &triggers.Definition{
		Name:        t.Name,
		EntityClass: t.EntityClass,
		Phase:       triggers.Phase(t.Phase),
		Conditions:  t.Conditions,
		Body:        t.Body,
		Guard:       t.Guard,
		Blocking:    t.Blocking,
		Priority:    t.Priority,
	}
}

// Register compiles and registers the manifest's procedures, then creates or
// updates its triggers.
func (m *Manifest) Register(ctx context.Context, host *Host) error {
	for _, p := range m.Procedures {
		if err := m.registerProcedure(host, p); err != nil {
			return fmt.Errorf("procedure %q: %w", p.Name, err)
		}
	}

	for i := range m.Triggers {
		if err := m.syncTrigger(ctx, host, &m.Triggers[i]); err != nil {
			return fmt.Errorf("trigger %q: %w", m.Triggers[i].Name, err)
		}
	}

	return nil
}

func (m *Manifest) registerProcedure(host *Host, p ProcedureSpec) error {
	if host.Rules == nil {
		return errors.New("expression procedures are not enabled")
	}

	name := p.Name
	if m.Organization != "" {
		name = orgauth.BindingName(m.Organization, p.Name)
	}

	key := "proc:" + name
	if host.Rules.HasRule(key) {
		return fmt.Errorf("procedure %s already compiled", name)
	}
	if err := host.Rules.Compile(key, p.Expression); err != nil {
		return err
	}

	handler := func(_ context.Context, call *dispatch.CallerContext) (any, error) {
		return host.Rules.EvaluateValue(key, &rules.EvalContext{
			Params: call.Params,
			Caller: map[string]any{
				"user_id":         call.UserID,
				"organization_id": call.OrganizationID,
			},
			User: rules.BuildUserContext(call.UserID, call.OrganizationID),
		})
	}

	var err error
	if m.Organization != "" {
		if host.Gateway == nil {
			err = errors.New("org-scoped procedures need a gateway")
		} else {
			var opts []orgauth.BindingOption
			if p.Permission != "" {
				opts = append(opts, orgauth.RequirePermission(p.Permission))
			}
			err = host.Gateway.RegisterOrgFunction(m.Organization, p.Name, handler, opts...)
		}
	} else {
		err = host.Registry.Register(name, handler)
	}
	if err != nil {
		host.Rules.Remove(key)
		return err
	}

	return nil
}

// syncTrigger makes the engine hold the declared trigger. An existing trigger
// with the same name is updated in place when its fields changed. Only newly
// created triggers are activated, so an operator's disable survives restarts.
func (m *Manifest) syncTrigger(ctx context.Context, host *Host, spec *TriggerSpec) error {
	if host.Triggers == nil {
		return errors.New("triggers are not enabled")
	}

	def := spec.definition()

	if existing, ok := host.Triggers.FindByName(spec.Name); ok {
		if existing.SameSpec(def) {
			return nil
		}
		def.ID = existing.ID
		if _, err := host.Triggers.Update(ctx, def); err != nil {
			return err
		}
		log.Info().Str("module", m.Module).Str("trigger", spec.Name).Msg("Trigger updated from manifest")
		return nil
	}

	created, err := host.Triggers.Create(ctx, def)
	if err != nil {
		return err
	}
	if spec.Activate {
		if _, err := host.Triggers.Activate(ctx, created.ID); err != nil {
			return err
		}
	}

	return nil
}

// ManifestResolver resolves paths ending in .yaml or .yml to manifests.
// Relative paths are read from Dir.
type ManifestResolver struct {
	Dir string
}

func (r ManifestResolver) Resolve(path string) (Module, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, path)
	}

	full := path
	if !filepath.IsAbs(full) && r.Dir != "" {
		full = filepath.Join(r.Dir, path)
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	return ParseManifest(data)
}
