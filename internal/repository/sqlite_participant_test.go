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

func TestParticipantRepo_RoundTripAllFields(t *testing.T) {
	db := testutil.NewTestDB(t)
	flow, leader := seedFlow(t, db)
	repo := NewSQLiteParticipantRepo(db)
	ctx := context.Background()

	root := testutil.NewTestParticipant(flow.ID, leader.ID, testutil.WithSeq(1), testutil.Registered())
	root.Accept("admin-id", testutil.T0.Add(time.Hour))
	override := 90 * time.Minute
	root.AcceptTimeOverride = &override
	childFrom := testutil.T0.Add(3 * time.Hour)
	root.MustAcceptChildrenFrom = &childFrom
	sent := testutil.T0.Add(5 * time.Minute)
	root.NotificationSent = &sent
	require.NoError(t, repo.Create(ctx, root))

	got, err := repo.GetByID(ctx, root.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ParentID)
	assert.True(t, got.Registered)
	assert.Equal(t, root.Referral, got.Referral)
	require.NotNil(t, got.AcceptedAt)
	assert.True(t, got.AcceptedAt.Equal(*root.AcceptedAt))
	assert.Equal(t, "admin-id", *got.AcceptedBy)
	require.NotNil(t, got.AcceptTimeOverride)
	assert.Equal(t, 90*time.Minute, *got.AcceptTimeOverride)
	assert.True(t, got.MustAcceptChildrenFrom.Equal(childFrom))
	assert.True(t, got.NotificationSent.Equal(sent))
	assert.Nil(t, got.NotifyAboutAcceptSent)
	assert.True(t, got.AcceptStageStartsAt.Equal(testutil.T0.Add(2*time.Hour)))
	assert.False(t, got.Deleted)
}

func TestParticipantRepo_ListByParentHandlesRootSentinel(t *testing.T) {
	db := testutil.NewTestDB(t)
	flow, leader := seedFlow(t, db)
	repo := NewSQLiteParticipantRepo(db)
	ctx := context.Background()

	root := testutil.NewTestParticipant(flow.ID, leader.ID, testutil.WithSeq(1))
	require.NoError(t, repo.Create(ctx, root))
	var kids []*domain.Participant
	for i, name := range []string{"ann", "bob"} {
		u := seedUser(t, db, name)
		c := testutil.NewTestParticipant(flow.ID, u.ID, testutil.WithParent(root), testutil.WithSeq(i+2))
		require.NoError(t, repo.Create(ctx, c))
		kids = append(kids, c)
	}

	roots, err := repo.ListByParent(ctx, flow.ID, nil)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, root.ID, roots[0].ID)

	children, err := repo.ListByParent(ctx, flow.ID, &root.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, kids[0].ID, children[0].ID)
	assert.Equal(t, kids[1].ID, children[1].ID)
	assert.Equal(t, 1, children[0].Level)

	all, err := repo.ListByFlow(ctx, flow.ID)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestParticipantRepo_GetByUserSkipsDeleted(t *testing.T) {
	db := testutil.NewTestDB(t)
	flow, leader := seedFlow(t, db)
	repo := NewSQLiteParticipantRepo(db)
	ctx := context.Background()

	removed := testutil.NewTestParticipant(flow.ID, leader.ID, testutil.WithSeq(1), testutil.Deleted("left"))
	require.NoError(t, repo.Create(ctx, removed))

	_, err := repo.GetByUser(ctx, flow.ID, leader.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	active := testutil.NewTestParticipant(flow.ID, leader.ID, testutil.WithSeq(2))
	require.NoError(t, repo.Create(ctx, active))

	got, err := repo.GetByUser(ctx, flow.ID, leader.ID)
	require.NoError(t, err)
	assert.Equal(t, active.ID, got.ID)
}

func TestParticipantRepo_UpdateSoftDeleteAndReplacement(t *testing.T) {
	db := testutil.NewTestDB(t)
	flow, leader := seedFlow(t, db)
	repo := NewSQLiteParticipantRepo(db)
	ctx := context.Background()

	p := testutil.NewTestParticipant(flow.ID, leader.ID, testutil.WithSeq(1))
	require.NoError(t, repo.Create(ctx, p))

	u := seedUser(t, db, "heir")
	heir := testutil.NewTestParticipant(flow.ID, u.ID, testutil.WithSeq(2))
	heir.InheritorOf = &p.ID
	require.NoError(t, repo.Create(ctx, heir))

	p.MarkDeleted("no response", testutil.T0.Add(time.Hour))
	p.ReplacedBy = &heir.ID
	require.NoError(t, repo.Update(ctx, p))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted)
	assert.Equal(t, "no response", got.DeletedReason)
	assert.Equal(t, heir.ID, *got.ReplacedBy)
	assert.True(t, got.Resolved())

	gotHeir, err := repo.GetByID(ctx, heir.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, *gotHeir.InheritorOf)
}

func TestParticipantRepo_DuplicateSeqRejected(t *testing.T) {
	db := testutil.NewTestDB(t)
	flow, leader := seedFlow(t, db)
	repo := NewSQLiteParticipantRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testutil.NewTestParticipant(flow.ID, leader.ID, testutil.WithSeq(1))))
	err := repo.Create(ctx, testutil.NewTestParticipant(flow.ID, leader.ID, testutil.WithSeq(1)))
	assert.Error(t, err)
}

func TestNotificationRepo_CreateAndList(t *testing.T) {
	db := testutil.NewTestDB(t)
	flow, leader := seedFlow(t, db)
	ctx := context.Background()

	p := testutil.NewTestParticipant(flow.ID, leader.ID, testutil.WithSeq(1))
	require.NoError(t, NewSQLiteParticipantRepo(db).Create(ctx, p))

	repo := NewSQLiteNotificationRepo(db)
	for i, kind := range []domain.NotificationKind{domain.NotifyRegistrationOpen, domain.NotifyAcceptTimeUpdated} {
		require.NoError(t, repo.Create(ctx, &domain.Notification{
			ID:            p.ID + string(kind),
			FlowID:        flow.ID,
			ParticipantID: p.ID,
			UserID:        leader.ID,
			Kind:          kind,
			CreatedAt:     testutil.T0.Add(time.Duration(i) * time.Minute),
		}))
	}

	byParticipant, err := repo.ListByParticipant(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, byParticipant, 2)
	assert.Equal(t, domain.NotifyRegistrationOpen, byParticipant[0].Kind)

	byFlow, err := repo.ListByFlow(ctx, flow.ID)
	require.NoError(t, err)
	assert.Len(t, byFlow, 2)
}

func TestParticipantRepo_UpdateTimingsKeepsRegistration(t *testing.T) {
	db := testutil.NewTestDB(t)
	flow, leader := seedFlow(t, db)
	repo := NewSQLiteParticipantRepo(db)
	ctx := context.Background()

	p := testutil.NewTestParticipant(flow.ID, leader.ID, testutil.WithSeq(1))
	require.NoError(t, repo.Create(ctx, p))

	// A registration lands while a stale copy is being re-timed.
	stale := *p
	require.NoError(t, p.Register(domain.Referral{URL: "https://x.test/r", Name: "n", Login: "l"}, testutil.T0))
	require.NoError(t, repo.Update(ctx, p))

	stale.MustBeRegisteredFrom = testutil.T0.Add(time.Hour)
	stale.AcceptStageStartsAt = testutil.T0.Add(3 * time.Hour)
	require.NoError(t, repo.UpdateTimings(ctx, &stale))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Registered, "registration must survive a timing update")
	assert.True(t, got.MustBeRegisteredFrom.Equal(testutil.T0.Add(time.Hour)))
	assert.True(t, got.AcceptStageStartsAt.Equal(testutil.T0.Add(3*time.Hour)))
}
