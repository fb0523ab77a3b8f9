package cascade

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alexanderramin/treeflow/internal/db"
	"github.com/alexanderramin/treeflow/internal/domain"
	"github.com/alexanderramin/treeflow/internal/repository"
	"github.com/alexanderramin/treeflow/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// interleavingUoW runs a write of another process before the wrapped unit of
// work opens a transaction. With every set it does so before each one,
// otherwise only before the first.
type interleavingUoW struct {
	db.UnitOfWork
	every  bool
	before func(n int32)
	calls  atomic.Int32
}

func (u *interleavingUoW) WithinTx(ctx context.Context, fn func(ctx context.Context, tx db.DBTX) error) error {
	n := u.calls.Add(1)
	if u.every || n == 1 {
		u.before(n)
	}
	return u.UnitOfWork.WithinTx(ctx, fn)
}

func TestRunner_ConcurrentRemovalIsNotOverwritten(t *testing.T) {
	database := testutil.NewTestDB(t)
	ctx := context.Background()
	flow, line := seedChain(t, database)
	extendRootAccept(t, database, line[0], 2*time.Hour)
	participants := repository.NewSQLiteParticipantRepo(database)

	// Another process removes the tail after the runner loaded the flow.
	var removed domain.Participant
	uow := &interleavingUoW{UnitOfWork: testutil.NewTestUoW(database), before: func(int32) {
		tail, err := participants.GetByID(ctx, line[3].ID)
		require.NoError(t, err)
		tail.MarkDeleted("left the group", testutil.T0)
		require.NoError(t, participants.Update(ctx, tail))
		removed = *tail
	}}

	res, err := NewRunner(database, uow, testutil.NewTestClock(), 30*time.Minute, nil).Run(ctx, flow.ID)
	require.NoError(t, err)
	assert.False(t, res.Noop)

	stored, err := participants.ListByFlow(ctx, flow.ID)
	require.NoError(t, err)
	require.Len(t, stored, 4)

	tail := stored[3]
	assert.True(t, tail.Deleted)
	assert.True(t, tail.MustBeRegisteredFrom.Equal(removed.MustBeRegisteredFrom), "removed slot keeps the timings its remover left")
	assert.True(t, tail.AcceptStageStartsAt.Equal(removed.AcceptStageStartsAt))

	for i := 1; i < 3; i++ {
		sponsorEnd := stored[i-1].WhenAcceptationEnds(flow.TimeForAccept)
		assert.True(t, stored[i].MustBeRegisteredFrom.Equal(sponsorEnd),
			"level %d opens when its sponsor's accept stage ends", i)
	}
}

func TestRunner_ConcurrentRetimeIsRecomputedFromFreshRows(t *testing.T) {
	database := testutil.NewTestDB(t)
	ctx := context.Background()
	flow, line := seedChain(t, database)
	extendRootAccept(t, database, line[0], 2*time.Hour)
	participants := repository.NewSQLiteParticipantRepo(database)

	// Another process re-times the root's accept stage once more.
	uow := &interleavingUoW{UnitOfWork: testutil.NewTestUoW(database), before: func(int32) {
		root, err := participants.GetByID(ctx, line[0].ID)
		require.NoError(t, err)
		longer := 3 * time.Hour
		root.AcceptTimeOverride = &longer
		require.NoError(t, participants.Update(ctx, root))
	}}

	_, err := NewRunner(database, uow, testutil.NewTestClock(), 30*time.Minute, nil).Run(ctx, flow.ID)
	require.NoError(t, err)

	stored, err := participants.ListByFlow(ctx, flow.ID)
	require.NoError(t, err)
	for i := 1; i < len(stored); i++ {
		assert.True(t, stored[i].MustBeRegisteredFrom.Equal(line[i].MustBeRegisteredFrom.Add(2*time.Hour)),
			"level %d follows the three-hour accept stage, got %s", i, stored[i].MustBeRegisteredFrom)
	}
}

func TestRunner_GivesUpAfterRepeatedConflicts(t *testing.T) {
	database := testutil.NewTestDB(t)
	ctx := context.Background()
	flow, line := seedChain(t, database)
	extendRootAccept(t, database, line[0], 2*time.Hour)
	participants := repository.NewSQLiteParticipantRepo(database)

	uow := &interleavingUoW{UnitOfWork: testutil.NewTestUoW(database), every: true, before: func(n int32) {
		child, err := participants.GetByID(ctx, line[1].ID)
		require.NoError(t, err)
		child.MustBeRegisteredFrom = child.MustBeRegisteredFrom.Add(time.Duration(n) * time.Minute)
		require.NoError(t, participants.Update(ctx, child))
	}}

	res, err := NewRunner(database, uow, testutil.NewTestClock(), 30*time.Minute, nil).Run(ctx, flow.ID)
	require.ErrorIs(t, err, ErrStaleSnapshot)
	assert.Zero(t, res.Updated)
	assert.Equal(t, int32(maxPasses), uow.calls.Load())

	child, err := participants.GetByID(ctx, line[1].ID)
	require.NoError(t, err)
	assert.True(t, child.MustBeRegisteredFrom.Equal(line[1].MustBeRegisteredFrom.Add(6*time.Minute)),
		"only the other writer's changes are stored")
}
