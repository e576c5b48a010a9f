// Package orgauth registers organization-scoped procedures that verify the
// caller's organization membership before running.
package orgauth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/watzon/tenantcore/internal/dispatch"
	"github.com/watzon/tenantcore/internal/metrics"
	"github.com/watzon/tenantcore/internal/roles"
)

// OrgIDParam is the call parameter carrying the target organization.
const OrgIDParam = "orgId"

// BindingName returns the registry name of an organization function.
func BindingName(orgID, name string) string {
	return "org_" + orgID + "_" + name
}

// FunctionDescriptor describes one organization binding.
type FunctionDescriptor struct {
	OrganizationID string    `json:"organizationId"`
	Name           string    `json:"name"`
	Binding        string    `json:"binding"`
	Permission     string    `json:"permission,omitempty"`
	RegisteredAt   time.Time `json:"registeredAt"`
}

// Gateway wraps handlers with the organization access check and registers
// them through a dispatch registry.
type Gateway struct {
	registry *dispatch.Registry
	lookup   RoleLookup
	table    *roles.Table

	mu       sync.RWMutex
	bindings map[string][]FunctionDescriptor
}

type GatewayOption func(*Gateway)

// WithRoleTable sets the table used by RequirePermission checks.
func WithRoleTable(table *roles.Table) GatewayOption {
	return func(g *Gateway) {
		g.table = table
	}
}

func NewGateway(registry *dispatch.Registry, lookup RoleLookup, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		registry: registry,
		lookup:   lookup,
		table:    roles.DefaultTable(),
		bindings: make(map[string][]FunctionDescriptor),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type bindingOptions struct {
	permission string
}

type BindingOption func(*bindingOptions)

// RequirePermission additionally requires that one of the caller's roles in
// the organization grants perm.
func RequirePermission(perm string) BindingOption {
	return func(o *bindingOptions) {
		o.permission = perm
	}
}

// RegisterOrgFunction registers handler as org_{orgID}_{name}.
func (g *Gateway) RegisterOrgFunction(orgID, name string, handler dispatch.Handler, opts ...BindingOption) error {
	if orgID == "" || name == "" {
		return fmt.Errorf("organization id and function name are required")
	}

	var bo bindingOptions
	for _, opt := range opts {
		opt(&bo)
	}

	binding := BindingName(orgID, name)
	if err := g.registry.Register(binding, g.wrap(binding, orgID, handler, bo.permission)); err != nil {
		return err
	}

	g.mu.Lock()
	g.bindings[orgID] = append(g.bindings[orgID], FunctionDescriptor{
		OrganizationID: orgID,
		Name:           name,
		Binding:        binding,
		Permission:     bo.permission,
		RegisteredAt:   time.Now().UTC(),
	})
	g.mu.Unlock()

	return nil
}

// ListOrgFunctions returns the bindings of orgID in registration order.
func (g *Gateway) ListOrgFunctions(orgID string) []FunctionDescriptor {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]FunctionDescriptor, len(g.bindings[orgID]))
	copy(out, g.bindings[orgID])
	return out
}

// CheckMembership returns the shared organization access error unless
// userID holds a role in orgID.
func (g *Gateway) CheckMembership(ctx context.Context, userID, orgID string) error {
	resource := "org_" + orgID
	call := &dispatch.CallerContext{UserID: userID, Params: map[string]any{OrgIDParam: orgID}}
	if userID == "" || orgID == "" {
		return g.deny(resource, call, dispatch.ReasonContextRequired)
	}

	memberships, err := g.lookup.CheckUserRole(ctx, userID, orgID)
	if err != nil {
		return fmt.Errorf("checking user role: %w", err)
	}
	for _, m := range memberships {
		if m.OrganizationID == orgID {
			return nil
		}
	}
	return g.deny(resource, call, dispatch.ReasonInsufficientAccess)
}

func (g *Gateway) wrap(binding, boundOrg string, handler dispatch.Handler, permission string) dispatch.Handler {
	return func(ctx context.Context, call *dispatch.CallerContext) (any, error) {
		orgID := call.StringParam(OrgIDParam)
		if call.UserID == "" || orgID == "" {
			return nil, g.deny(binding, call, dispatch.ReasonContextRequired)
		}

		memberships, err := g.lookup.CheckUserRole(ctx, call.UserID, orgID)
		if err != nil {
			return nil, fmt.Errorf("checking user role: %w", err)
		}

		// The binding only serves its own organization.
		if orgID != boundOrg {
			return nil, g.deny(binding, call, dispatch.ReasonInsufficientAccess)
		}

		var matched []Membership
		for _, m := range memberships {
			if m.OrganizationID == orgID {
				matched = append(matched, m)
			}
		}
		if len(matched) == 0 {
			return nil, g.deny(binding, call, dispatch.ReasonInsufficientAccess)
		}

		if permission != "" && !g.anyGrants(matched, permission) {
			return nil, g.deny(binding, call, dispatch.ReasonInsufficientAccess)
		}

		return handler(ctx, call)
	}
}

func (g *Gateway) anyGrants(memberships []Membership, permission string) bool {
	for _, m := range memberships {
		if g.table.HasPermission(m.RoleID, permission) {
			return true
		}
	}
	return false
}

func (g *Gateway) deny(binding string, call *dispatch.CallerContext, reason string) error {
	log.Debug().
		Str("procedure", binding).
		Str("user_id", call.UserID).
		Str("org_id", call.StringParam(OrgIDParam)).
		Str("reason", reason).
		Msg("Organization access denied")

	metrics.RecordOrgAccessDenied(reason)
	return dispatch.NewOrganizationAccessError(binding, reason)
}
