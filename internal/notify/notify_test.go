package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/alexanderramin/treeflow/internal/domain"
	"github.com/alexanderramin/treeflow/internal/repository"
	"github.com/alexanderramin/treeflow/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogGateway_WritesStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	g := LogGateway{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	p := testutil.NewTestParticipant("flow-1", "user-1")

	require.NoError(t, g.Notify(context.Background(), p, domain.NotifyRegistrationOpen))

	out := buf.String()
	assert.Contains(t, out, "kind=registration-open")
	assert.Contains(t, out, "flow_id=flow-1")
	assert.Contains(t, out, "participant_id="+p.ID)
}

func TestOutboxGateway_StoresNotification(t *testing.T) {
	database := testutil.NewTestDB(t)
	ctx := context.Background()

	proj := testutil.NewTestProject("Drive")
	require.NoError(t, repository.NewSQLiteProjectRepo(database).Create(ctx, proj))
	leader := testutil.NewTestUser("leader", false)
	require.NoError(t, repository.NewSQLiteUserRepo(database).Create(ctx, leader))
	flow := domain.NewFlow(uuid.New().String(), proj.ID, testutil.NewTestFlowConfig(leader.ID), testutil.T0)
	require.NoError(t, repository.NewSQLiteFlowRepo(database).Create(ctx, flow))
	p := testutil.NewTestParticipant(flow.ID, leader.ID, testutil.WithSeq(1))
	require.NoError(t, repository.NewSQLiteParticipantRepo(database).Create(ctx, p))

	g := OutboxGateway{DB: database, Clock: testutil.NewTestClock()}
	require.NoError(t, g.Notify(ctx, p, domain.NotifyAcceptTimeUpdated))

	rows, err := repository.NewSQLiteNotificationRepo(database).ListByParticipant(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.NotifyAcceptTimeUpdated, rows[0].Kind)
	assert.Equal(t, leader.ID, rows[0].UserID)
	assert.True(t, rows[0].CreatedAt.Equal(testutil.T0))
}

func TestMulti_DeliversToAllAndJoinsErrors(t *testing.T) {
	ok := &Recorder{}
	failing := &Recorder{Err: errors.New("smtp down")}
	m := Multi{ok, failing}
	p := testutil.NewTestParticipant("flow-1", "user-1")

	err := m.Notify(context.Background(), p, domain.NotifyRegistrationOpen)
	assert.ErrorContains(t, err, "smtp down")
	assert.Equal(t, []string{p.ID}, ok.Recipients(domain.NotifyRegistrationOpen))
}

func TestRecorder_FiltersByKind(t *testing.T) {
	r := &Recorder{}
	a := testutil.NewTestParticipant("f", "a")
	b := testutil.NewTestParticipant("f", "b")
	ctx := context.Background()

	require.NoError(t, r.Notify(ctx, a, domain.NotifyRegistrationOpen))
	require.NoError(t, r.Notify(ctx, b, domain.NotifyAcceptTimeUpdated))

	assert.Equal(t, []string{b.ID}, r.Recipients(domain.NotifyAcceptTimeUpdated))
	r.Reset()
	assert.Empty(t, r.Sent())
}
