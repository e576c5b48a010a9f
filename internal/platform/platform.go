// Package platform reads the persisted bootstrap status record.
package platform

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/watzon/tenantcore/internal/database"
)

// State is a step of the platform bootstrap sequence.
type State string

const (
	StatePristine              State = "pristine"
	StateCoreArtifactsImported State = "core_artifacts_imported"
	StateParentOrgCreating     State = "parent_org_creating"
	StateOperational           State = "operational"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StatePristine, StateCoreArtifactsImported, StateParentOrgCreating, StateOperational:
		return true
	}
	return false
}

// Status is the single platform configuration record.
type Status struct {
	CurrentState                    State  `json:"currentState" yaml:"currentState"`
	ParentOrgID                     string `json:"parentOrgId" yaml:"parentOrgId"`
	CoreContractsImportedForNetwork string `json:"coreContractsImportedForNetwork" yaml:"coreContractsImportedForNetwork"`
}

func (s Status) Operational() bool {
	return s.CurrentState == StateOperational
}

// Reader provides the current platform status.
type Reader interface {
	Read(ctx context.Context) (Status, error)
}

// Store reads the platform_config row.
type Store struct {
	db *database.DB
}

func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Read returns the stored status. A missing record reads as pristine.
func (s *Store) Read(ctx context.Context) (Status, error) {
	var st Status
	var state string

	err := s.db.QueryRowContext(ctx, `
		SELECT current_state, parent_org_id, core_contracts_imported_for_network
		FROM platform_config
		WHERE id = 1
	`).Scan(&state, &st.ParentOrgID, &st.CoreContractsImportedForNetwork)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Status{CurrentState: StatePristine}, nil
		}
		return Status{}, fmt.Errorf("reading platform config: %w", err)
	}

	st.CurrentState = State(state)
	if !st.CurrentState.Valid() {
		return Status{}, fmt.Errorf("unknown platform state %q", state)
	}

	return st, nil
}

// Static is a fixed Reader.
type Static Status

func (s Static) Read(context.Context) (Status, error) {
	return Status(s), nil
}
