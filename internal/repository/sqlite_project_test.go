package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alexanderramin/treeflow/internal/domain"
	"github.com/alexanderramin/treeflow/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectRepo_CreateAndGetByID(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewSQLiteProjectRepo(db)
	ctx := context.Background()

	proj := testutil.NewTestProject("Referral Drive", testutil.WithShortID("DRIVE01"))
	require.NoError(t, repo.Create(ctx, proj))

	got, err := repo.GetByID(ctx, proj.ID)
	require.NoError(t, err)
	assert.Equal(t, "Referral Drive", got.Name)
	assert.Equal(t, "DRIVE01", got.ShortID)
	assert.Equal(t, domain.ProjectAccepted, got.Status)
	assert.True(t, got.CreatedAt.Equal(proj.CreatedAt))
}

func TestProjectRepo_GetByShortID_CaseInsensitive(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewSQLiteProjectRepo(db)
	ctx := context.Background()

	proj := testutil.NewTestProject("Drive", testutil.WithShortID("LEAD0234"))
	require.NoError(t, repo.Create(ctx, proj))

	got, err := repo.GetByShortID(ctx, "lead0234")
	require.NoError(t, err)
	assert.Equal(t, proj.ID, got.ID)
}

func TestProjectRepo_GetByID_NotFound(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewSQLiteProjectRepo(db)

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProjectRepo_UpdateStatus(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewSQLiteProjectRepo(db)
	ctx := context.Background()

	proj := testutil.NewTestProject("Drive")
	require.NoError(t, repo.Create(ctx, proj))

	proj.Status = domain.ProjectFlowRegistration
	proj.UpdatedAt = testutil.T0.Add(time.Hour)
	require.NoError(t, repo.Update(ctx, proj))

	got, err := repo.GetByID(ctx, proj.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectFlowRegistration, got.Status)
	assert.True(t, got.UpdatedAt.Equal(proj.UpdatedAt))
}

func TestProjectRepo_UpdateMissing(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewSQLiteProjectRepo(db)

	err := repo.Update(context.Background(), testutil.NewTestProject("Ghost"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProjectRepo_List(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewSQLiteProjectRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testutil.NewTestProject("One")))
	require.NoError(t, repo.Create(ctx, testutil.NewTestProject("Two")))

	projects, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, projects, 2)
}

func TestCandidateRepo_AssignsPositionsInOrder(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	proj := testutil.NewTestProject("Drive")
	require.NoError(t, NewSQLiteProjectRepo(db).Create(ctx, proj))
	repo := NewSQLiteCandidateRepo(db)

	var ids []string
	for _, name := range []string{"ann", "bob", "cid"} {
		u := seedUser(t, db, name)
		ids = append(ids, u.ID)
		require.NoError(t, repo.Add(ctx, &domain.Candidate{ProjectID: proj.ID, UserID: u.ID, CreatedAt: testutil.T0}))
	}

	got, err := repo.ListByProject(ctx, proj.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, c := range got {
		assert.Equal(t, i+1, c.Position)
		assert.Equal(t, ids[i], c.UserID)
	}

	require.NoError(t, repo.Remove(ctx, proj.ID, ids[1]))
	got, err = repo.ListByProject(ctx, proj.ID)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	assert.ErrorIs(t, repo.Remove(ctx, proj.ID, ids[1]), ErrNotFound)
}

func TestUserRepo_RoundTripAdminFlag(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewSQLiteUserRepo(db)
	ctx := context.Background()

	admin := testutil.NewTestUser("root", true)
	require.NoError(t, repo.Create(ctx, admin))

	got, err := repo.GetByID(ctx, admin.ID)
	require.NoError(t, err)
	assert.True(t, got.IsAdmin)
	assert.Equal(t, "root@example.test", got.Email)

	_, err = repo.GetByID(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}
