package service

import (
	"context"
	"testing"

	"github.com/alexanderramin/treeflow/internal/domain"
	"github.com/alexanderramin/treeflow/internal/repository"
	"github.com/alexanderramin/treeflow/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProjectService(t *testing.T) ProjectService {
	t.Helper()
	database := testutil.NewTestDB(t)
	return NewProjectService(
		repository.NewSQLiteProjectRepo(database),
		repository.NewSQLiteUserRepo(database),
		repository.NewSQLiteCandidateRepo(database),
		testutil.NewTestClock(),
	)
}

func TestProjectService_CreateProject_ValidShortID(t *testing.T) {
	svc := newProjectService(t)
	ctx := context.Background()

	proj := &domain.Project{Name: "Referral Drive", ShortID: "REF01"}
	require.NoError(t, svc.CreateProject(ctx, proj))
	assert.NotEmpty(t, proj.ID, "UUID should be generated")
	assert.Equal(t, domain.ProjectAccepted, proj.Status, "status should default to accepted")
	assert.True(t, proj.CreatedAt.Equal(testutil.T0))

	byShort, err := svc.GetProject(ctx, "ref01")
	require.NoError(t, err)
	assert.Equal(t, proj.ID, byShort.ID)

	byID, err := svc.GetProject(ctx, proj.ID)
	require.NoError(t, err)
	assert.Equal(t, "REF01", byID.ShortID)
}

func TestProjectService_CreateProject_InvalidShortID(t *testing.T) {
	svc := newProjectService(t)

	err := svc.CreateProject(context.Background(), &domain.Project{Name: "Bad", ShortID: "r1"})
	require.ErrorIs(t, err, domain.ErrValidation)

	var fieldErr *domain.FieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, "short_id", fieldErr.Field)
}

func TestProjectService_GetProject_NotFound(t *testing.T) {
	svc := newProjectService(t)
	_, err := svc.GetProject(context.Background(), "NOPE99")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestProjectService_CandidatesKeepOrder(t *testing.T) {
	svc := newProjectService(t)
	ctx := context.Background()

	proj := &domain.Project{Name: "Referral Drive", ShortID: "REF02"}
	require.NoError(t, svc.CreateProject(ctx, proj))

	var ids []string
	for _, name := range []string{"ana", "ben", "cai"} {
		u := &domain.User{Name: name}
		require.NoError(t, svc.CreateUser(ctx, u))
		require.NoError(t, svc.AddCandidate(ctx, proj.ID, u.ID))
		ids = append(ids, u.ID)
	}

	pool, err := svc.ListCandidates(ctx, proj.ID)
	require.NoError(t, err)
	require.Len(t, pool, 3)
	for i, u := range pool {
		assert.Equal(t, ids[i], u.ID)
	}

	err = svc.AddCandidate(ctx, proj.ID, "ghost")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	err = svc.AddCandidate(ctx, proj.ID, ids[0])
	assert.Error(t, err, "a user joins a pool once")
}

func TestProjectService_CreateUserRequiresName(t *testing.T) {
	svc := newProjectService(t)
	err := svc.CreateUser(context.Background(), &domain.User{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
