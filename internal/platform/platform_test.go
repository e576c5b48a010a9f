package platform

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/watzon/tenantcore/internal/config"
	"github.com/watzon/tenantcore/internal/database"
)

func testDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(&config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStore_MissingRowIsPristine(t *testing.T) {
	st, err := NewStore(testDB(t)).Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatePristine, st.CurrentState)
	require.False(t, st.Operational())
}

func TestStore_Read(t *testing.T) {
	db := testDB(t)
	_, err := db.Exec(`INSERT INTO platform_config (id, current_state, parent_org_id, core_contracts_imported_for_network) VALUES (1, 'operational', 'root-org', 'mainnet')`)
	require.NoError(t, err)

	st, err := NewStore(db).Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, Status{
		CurrentState:                    StateOperational,
		ParentOrgID:                     "root-org",
		CoreContractsImportedForNetwork: "mainnet",
	}, st)
	require.True(t, st.Operational())
}

func TestStore_UnknownState(t *testing.T) {
	db := testDB(t)
	_, err := db.Exec(`INSERT INTO platform_config (id, current_state) VALUES (1, 'exploded')`)
	require.NoError(t, err)

	_, err = NewStore(db).Read(context.Background())
	require.Error(t, err)
}

func TestStatic(t *testing.T) {
	st, err := Static{CurrentState: StateParentOrgCreating}.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateParentOrgCreating, st.CurrentState)
}
