package orgauth

import (
	"context"
	"fmt"
	"sync"

	"github.com/watzon/tenantcore/internal/dispatch"
)

// CheckUserRoleProcedure is the registry name of the role-check capability.
const CheckUserRoleProcedure = "checkUserRole"

// Membership is one organization role held by a user.
type Membership struct {
	OrganizationID string `json:"organizationId"`
	RoleID         string `json:"roleId"`
}

// RoleCheckResult is the payload returned by the checkUserRole procedure.
type RoleCheckResult struct {
	OrganizationRoles []Membership `json:"organizationRoles"`
}

// RoleLookup returns the organization memberships of a user. orgID is the
// organization being accessed; implementations may return memberships in
// other organizations as well.
type RoleLookup interface {
	CheckUserRole(ctx context.Context, userID, orgID string) ([]Membership, error)
}

// RoleLookupFunc adapts a function to RoleLookup.
type RoleLookupFunc func(ctx context.Context, userID, orgID string) ([]Membership, error)

func (f RoleLookupFunc) CheckUserRole(ctx context.Context, userID, orgID string) ([]Membership, error) {
	return f(ctx, userID, orgID)
}

// StaticLookup serves memberships from memory.
type StaticLookup struct {
	mu    sync.RWMutex
	users map[string][]Membership
}

func NewStaticLookup() *StaticLookup {
	return &StaticLookup{users: make(map[string][]Membership)}
}

func (s *StaticLookup) Grant(userID, orgID, roleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = append(s.users[userID], Membership{OrganizationID: orgID, RoleID: roleID})
}

func (s *StaticLookup) CheckUserRole(_ context.Context, userID, _ string) ([]Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Membership, len(s.users[userID]))
	copy(out, s.users[userID])
	return out, nil
}

// RegistryLookup resolves memberships by invoking the checkUserRole procedure
// through the registry. A missing procedure fails every lookup.
type RegistryLookup struct {
	Registry  *dispatch.Registry
	Procedure string
}

func NewRegistryLookup(registry *dispatch.Registry) *RegistryLookup {
	return &RegistryLookup{Registry: registry, Procedure: CheckUserRoleProcedure}
}

func (l *RegistryLookup) CheckUserRole(ctx context.Context, userID, orgID string) ([]Membership, error) {
	name := l.Procedure
	if name == "" {
		name = CheckUserRoleProcedure
	}

	result, err := l.Registry.Invoke(ctx, name, &dispatch.CallerContext{
		UserID:         userID,
		OrganizationID: orgID,
		Params: map[string]any{
			"userId": userID,
			"orgId":  orgID,
		},
	})
	if err != nil {
		return nil, err
	}

	return decodeRoleCheck(result)
}

func decodeRoleCheck(result any) ([]Membership, error) {
	switch v := result.(type) {
	case RoleCheckResult:
		return v.OrganizationRoles, nil
	case *RoleCheckResult:
		if v == nil {
			return nil, nil
		}
		return v.OrganizationRoles, nil
	case map[string]any:
		return decodeMemberships(v["organizationRoles"])
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected role check result %T", result)
	}
}

func decodeMemberships(raw any) ([]Membership, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []Membership:
		return v, nil
	case []any:
		out := make([]Membership, 0, len(v))
		for i, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("organizationRoles[%d]: unexpected type %T", i, item)
			}
			orgID, _ := m["organizationId"].(string)
			roleID, _ := m["roleId"].(string)
			out = append(out, Membership{OrganizationID: orgID, RoleID: roleID})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("organizationRoles: unexpected type %T", raw)
	}
}

// RegisterRoleCheck registers the checkUserRole procedure backed by lookup.
// Callers only ever see their own memberships: an anonymous caller, or a
// userId param naming someone else, yields an empty result.
func RegisterRoleCheck(registry *dispatch.Registry, lookup RoleLookup) error {
	return registry.Register(CheckUserRoleProcedure, func(ctx context.Context, call *dispatch.CallerContext) (any, error) {
		userID := call.UserID
		if requested := call.StringParam("userId"); userID == "" || (requested != "" && requested != userID) {
			return RoleCheckResult{OrganizationRoles: []Membership{}}, nil
		}

		memberships, err := lookup.CheckUserRole(ctx, userID, call.StringParam("orgId"))
		if err != nil {
			return nil, err
		}
		if memberships == nil {
			memberships = []Membership{}
		}
		return RoleCheckResult{OrganizationRoles: memberships}, nil
	})
}
