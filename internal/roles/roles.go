// Package roles resolves organization role identifiers to permission sets.
//
// The table is loaded once at process start and never mutated afterwards, so
// lookups take no locks. Changing a role's permissions requires a redeploy.
package roles

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Wildcard grants every permission to the role that holds it.
const Wildcard = "*"

// Console permissions referenced by the built-in table.
const (
	PermOrgManage       = "org.manage"
	PermMembersManage   = "members.manage"
	PermFunctionsInvoke = "functions.invoke"
	PermFunctionsManage = "functions.manage"
	PermTriggersManage  = "triggers.manage"
	PermTriggersView    = "triggers.view"
	PermDashboardsView  = "dashboards.view"
	PermPagesEdit       = "pages.edit"
	PermThemesEdit      = "themes.edit"
)

var (
	ErrDuplicateRole = errors.New("duplicate role")
	ErrEmptyRoleID   = errors.New("role id cannot be empty")
)

// Definition is a role and the permissions it grants.
type Definition struct {
	ID          string   `yaml:"id"`
	Permissions []string `yaml:"permissions"`
}

// PermissionSet is the resolved permissions of a role.
type PermissionSet map[string]struct{}

// Has reports whether the set grants perm, either directly or through the wildcard.
func (s PermissionSet) Has(perm string) bool {
	if _, ok := s[Wildcard]; ok {
		return true
	}
	_, ok := s[perm]
	return ok
}

// Slice returns the permissions in sorted order.
func (s PermissionSet) Slice() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Table maps role ids to permission sets.
type Table struct {
	roles map[string]PermissionSet
}

// NewTable builds a table from role definitions.
func NewTable(defs []Definition) (*Table, error) {
	t := &Table{roles: make(map[string]PermissionSet, len(defs))}

	for _, def := range defs {
		if def.ID == "" {
			return nil, ErrEmptyRoleID
		}
		if _, exists := t.roles[def.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRole, def.ID)
		}

		set := make(PermissionSet, len(def.Permissions))
		for _, p := range def.Permissions {
			set[p] = struct{}{}
		}
		t.roles[def.ID] = set
	}

	return t, nil
}

// Resolve returns the permissions granted to role. Unknown roles resolve to an
// empty set. The returned set is a copy; mutating it does not affect the table.
func (t *Table) Resolve(role string) PermissionSet {
	src, ok := t.roles[role]
	if !ok {
		return PermissionSet{}
	}

	out := make(PermissionSet, len(src))
	for p := range src {
		out[p] = struct{}{}
	}
	return out
}

// HasPermission reports whether role grants perm.
func (t *Table) HasPermission(role, perm string) bool {
	src, ok := t.roles[role]
	if !ok {
		return false
	}
	return src.Has(perm)
}

// Roles returns the known role ids in sorted order.
func (t *Table) Roles() []string {
	out := make([]string, 0, len(t.roles))
	for id := range t.roles {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

type tableFile struct {
	Roles []Definition `yaml:"roles"`
}

// Parse reads a YAML role table:
//
//	roles:
//	  - id: owner
//	    permissions: ["*"]
func Parse(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing role table: %w", err)
	}
	return NewTable(f.Roles)
}

// LoadFile reads a YAML role table from disk.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading role table: %w", err)
	}
	return Parse(data)
}

// Load returns the table at path, or the built-in table when path is empty.
func Load(path string) (*Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}
	return LoadFile(path)
}

// DefaultTable returns the built-in console roles.
func DefaultTable() *Table {
	t, err := NewTable([]Definition{
		{ID: "owner", Permissions: []string{Wildcard}},
		{ID: "admin", Permissions: []string{
			PermOrgManage, PermMembersManage,
			PermFunctionsInvoke, PermFunctionsManage,
			PermTriggersManage, PermTriggersView,
			PermDashboardsView, PermPagesEdit, PermThemesEdit,
		}},
		{ID: "editor", Permissions: []string{
			PermFunctionsInvoke, PermTriggersView,
			PermDashboardsView, PermPagesEdit, PermThemesEdit,
		}},
		{ID: "viewer", Permissions: []string{PermDashboardsView, PermTriggersView}},
	})
	if err != nil {
		panic(err)
	}
	return t
}
