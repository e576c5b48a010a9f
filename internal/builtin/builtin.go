// Package builtin provides the in-process modules every host ships with.
package builtin

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/watzon/tenantcore/internal/dispatch"
	"github.com/watzon/tenantcore/internal/modules"
	"github.com/watzon/tenantcore/internal/orgauth"
	"github.com/watzon/tenantcore/internal/platform"
	"github.com/watzon/tenantcore/internal/roles"
	"github.com/watzon/tenantcore/internal/triggers"
)

// Module names accepted by the catalog.
const (
	RolesModule    = "builtin/roles"
	PlatformModule = "builtin/platform"
	TriggersModule = "builtin/triggers"
)

// Procedure names registered by the builtin modules.
const (
	ResolveRoleProcedure    = "resolveRole"
	ListRolesProcedure      = "listRoles"
	PlatformStatusProcedure = "platformStatus"
	ListTriggersProcedure   = "listTriggers"
	TriggerStatsProcedure   = "triggerStats"
	ExecuteTriggerProcedure = "executeTrigger"
)

// LogBody is the trigger body that records the event in the server log.
const LogBody = "log"

// Deps are the services builtin modules are backed by.
type Deps struct {
	Roles       *roles.Table
	Memberships orgauth.RoleLookup
	Platform    platform.Reader
}

// Catalog returns a catalog holding every builtin module.
func Catalog(deps Deps) *modules.Catalog {
	return modules.NewCatalog().
		Add(RolesModule, rolesModule(deps)).
		Add(PlatformModule, platformModule(deps)).
		Add(TriggersModule, modules.ModuleFunc(registerTriggers))
}

func rolesModule(deps Deps) modules.Module {
	return modules.ModuleFunc(func(_ context.Context, host *modules.Host) error {
		if deps.Memberships == nil {
			return errors.New("membership lookup is required")
		}
		table := deps.Roles
		if table == nil {
			table = roles.DefaultTable()
		}

		if err := orgauth.RegisterRoleCheck(host.Registry, deps.Memberships); err != nil {
			return err
		}

		if err := host.Registry.Register(ResolveRoleProcedure, func(_ context.Context, call *dispatch.CallerContext) (any, error) {
			role := call.StringParam("role")
			if role == "" {
				return nil, errors.New("role is required")
			}
			return map[string]any{
				"role":        role,
				"permissions": table.Resolve(role).Slice(),
			}, nil
		}); err != nil {
			return err
		}

		return host.Registry.Register(ListRolesProcedure, func(context.Context, *dispatch.CallerContext) (any, error) {
			return table.Roles(), nil
		})
	})
}

func platformModule(deps Deps) modules.Module {
	return modules.ModuleFunc(func(_ context.Context, host *modules.Host) error {
		if deps.Platform == nil {
			return errors.New("platform reader is required")
		}
		return host.Registry.Register(PlatformStatusProcedure, func(ctx context.Context, _ *dispatch.CallerContext) (any, error) {
			return deps.Platform.Read(ctx)
		})
	})
}

func registerTriggers(_ context.Context, host *modules.Host) error {
	engine := host.Triggers
	if engine == nil {
		return errors.New("trigger engine is required")
	}

	if host.Bodies != nil {
		if err := host.Bodies.Register(LogBody, logEvent); err != nil {
			return err
		}
	}

	if err := host.Registry.Register(ListTriggersProcedure, func(_ context.Context, call *dispatch.CallerContext) (any, error) {
		class := call.StringParam("entityClass")
		phase := call.StringParam("phase")
		if class != "" && phase != "" {
			return engine.Matching(class, triggers.Phase(phase)), nil
		}
		return engine.List(), nil
	}); err != nil {
		return err
	}

	if err := host.Registry.Register(TriggerStatsProcedure, func(ctx context.Context, call *dispatch.CallerContext) (any, error) {
		id := call.StringParam("triggerId")
		if id == "" {
			return nil, errors.New("triggerId is required")
		}
		return engine.Stats(ctx, id)
	}); err != nil {
		return err
	}

	return host.Registry.Register(ExecuteTriggerProcedure, func(ctx context.Context, call *dispatch.CallerContext) (any, error) {
		// Runs can move a trigger to error, so anonymous callers are refused.
		if call.UserID == "" {
			return nil, dispatch.NewOrganizationAccessError(ExecuteTriggerProcedure, dispatch.ReasonAuthenticationRequired)
		}
		id := call.StringParam("triggerId")
		if id == "" {
			return nil, errors.New("triggerId is required")
		}
		def, err := engine.Get(id)
		if err != nil {
			return nil, err
		}

		entity, _ := call.Param("entity").(map[string]any)
		previous, _ := call.Param("previous").(map[string]any)
		return engine.Execute(ctx, id, &triggers.Event{
			EntityClass:    def.EntityClass,
			Phase:          def.Phase,
			Entity:         entity,
			Previous:       previous,
			UserID:         call.UserID,
			OrganizationID: call.OrganizationID,
		})
	})
}

func logEvent(_ context.Context, event *triggers.Event) error {
	if event == nil {
		return fmt.Errorf("nil event")
	}
	log.Info().
		Str("entity_class", event.EntityClass).
		Str("phase", string(event.Phase)).
		Str("entity_id", event.ID()).
		Str("user_id", event.UserID).
		Msg("Entity event")
	return nil
}
