package orgauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/watzon/tenantcore/internal/database"
)

var (
	ErrMembershipExists   = errors.New("membership already exists")
	ErrMembershipNotFound = errors.New("membership not found")
)

// Member is a persisted membership row.
type Member struct {
	UserID         string    `json:"userId"`
	OrganizationID string    `json:"organizationId"`
	RoleID         string    `json:"roleId"`
	GrantedAt      time.Time `json:"grantedAt"`
}

// MembershipStore persists organization memberships and serves them as a RoleLookup.
type MembershipStore struct {
	db *database.DB
}

func NewMembershipStore(db *database.DB) *MembershipStore {
	return &MembershipStore{db: db}
}

// Grant gives userID the role roleID in orgID.
func (s *MembershipStore) Grant(ctx context.Context, userID, orgID, roleID string) error {
	if userID == "" || orgID == "" || roleID == "" {
		return fmt.Errorf("user, organization and role are required")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO org_memberships (user_id, organization_id, role_id, granted_at) VALUES (?, ?, ?, ?)`,
		userID, orgID, roleID, database.Now(),
	)
	if err != nil {
		if database.IsUniqueError(database.ClassifyError(err)) {
			return fmt.Errorf("%w: %s is already %s in %s", ErrMembershipExists, userID, roleID, orgID)
		}
		return fmt.Errorf("inserting membership: %w", err)
	}
	return nil
}

// Revoke removes a single membership.
func (s *MembershipStore) Revoke(ctx context.Context, userID, orgID, roleID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM org_memberships WHERE user_id = ? AND organization_id = ? AND role_id = ?`,
		userID, orgID, roleID,
	)
	if err != nil {
		return fmt.Errorf("deleting membership: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking deleted rows: %w", err)
	}
	if n == 0 {
		return ErrMembershipNotFound
	}
	return nil
}

// SetRole replaces every role userID holds in orgID with roleID.
func (s *MembershipStore) SetRole(ctx context.Context, userID, orgID, roleID string) error {
	if userID == "" || orgID == "" || roleID == "" {
		return fmt.Errorf("user, organization and role are required")
	}

	return s.db.Transaction(ctx, func(tx *database.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM org_memberships WHERE user_id = ? AND organization_id = ?`,
			userID, orgID,
		); err != nil {
			return fmt.Errorf("clearing memberships: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO org_memberships (user_id, organization_id, role_id, granted_at) VALUES (?, ?, ?, ?)`,
			userID, orgID, roleID, database.Now(),
		); err != nil {
			return fmt.Errorf("inserting membership: %w", err)
		}
		return nil
	})
}

// ListByOrganization returns the members of orgID ordered by user then role.
func (s *MembershipStore) ListByOrganization(ctx context.Context, orgID string) ([]Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, organization_id, role_id, granted_at
		FROM org_memberships
		WHERE organization_id = ?
		ORDER BY user_id, role_id
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("querying memberships: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		var grantedAt string
		if err := rows.Scan(&m.UserID, &m.OrganizationID, &m.RoleID, &grantedAt); err != nil {
			return nil, fmt.Errorf("scanning membership: %w", err)
		}
		if m.GrantedAt, err = database.ParseTime(grantedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating memberships: %w", err)
	}

	return members, nil
}

// CheckUserRole returns every membership held by userID.
func (s *MembershipStore) CheckUserRole(ctx context.Context, userID, _ string) ([]Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT organization_id, role_id
		FROM org_memberships
		WHERE user_id = ?
		ORDER BY organization_id, role_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying user roles: %w", err)
	}
	defer rows.Close()

	var out []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.OrganizationID, &m.RoleID); err != nil {
			return nil, fmt.Errorf("scanning user role: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user roles: %w", err)
	}

	return out, nil
}
