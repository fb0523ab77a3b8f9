package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/alexanderramin/treeflow/internal/domain"
	"github.com/alexanderramin/treeflow/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// seedFlow stores a project, its leader and a one-child-tree flow.
func seedFlow(t *testing.T, database *sql.DB) (*domain.Flow, *domain.User) {
	t.Helper()
	ctx := context.Background()

	proj := testutil.NewTestProject("Referral Drive")
	require.NoError(t, NewSQLiteProjectRepo(database).Create(ctx, proj))
	leader := testutil.NewTestUser("leader", false)
	require.NoError(t, NewSQLiteUserRepo(database).Create(ctx, leader))

	cfg := testutil.NewTestFlowConfig(leader.ID)
	flow := domain.NewFlow(uuid.New().String(), proj.ID, cfg, testutil.T0)
	require.NoError(t, NewSQLiteFlowRepo(database).Create(ctx, flow))
	return flow, leader
}

func seedUser(t *testing.T, database *sql.DB, name string) *domain.User {
	t.Helper()
	u := testutil.NewTestUser(name, false)
	require.NoError(t, NewSQLiteUserRepo(database).Create(context.Background(), u))
	return u
}
