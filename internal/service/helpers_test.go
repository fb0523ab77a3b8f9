package service

import (
	"context"
	"database/sql"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alexanderramin/treeflow/internal/db"
	"github.com/alexanderramin/treeflow/internal/domain"
	"github.com/alexanderramin/treeflow/internal/notify"
	"github.com/alexanderramin/treeflow/internal/repository"
	"github.com/alexanderramin/treeflow/internal/testutil"
	"github.com/alexanderramin/treeflow/internal/tree"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

type countingKicker struct{ n atomic.Int32 }

func (k *countingKicker) Kick() { k.n.Add(1) }

// flowEnv is a flow service over an in-memory database with an admin, a
// leader and an ordered candidate pool already stored.
type flowEnv struct {
	db       *sql.DB
	clock    *clocktesting.FakeClock
	notifier *notify.Recorder
	kicker   *countingKicker
	svc      FlowService
	projects ProjectService

	admin   domain.Actor
	leader  *domain.User
	project *domain.Project
	pool    []*domain.User
}

func setupFlowEnv(t *testing.T, poolSize int) *flowEnv {
	t.Helper()
	database := testutil.NewTestDB(t)
	ctx := context.Background()
	env := &flowEnv{
		db:       database,
		clock:    testutil.NewTestClock(),
		notifier: &notify.Recorder{},
		kicker:   &countingKicker{},
	}
	env.svc = env.service(testutil.NewTestUoW(database))
	env.projects = NewProjectService(
		repository.NewSQLiteProjectRepo(database),
		repository.NewSQLiteUserRepo(database),
		repository.NewSQLiteCandidateRepo(database),
		env.clock,
	)

	users := repository.NewSQLiteUserRepo(database)
	admin := testutil.NewTestUser("admin", true)
	require.NoError(t, users.Create(ctx, admin))
	env.admin = domain.ActorFor(admin)

	env.leader = testutil.NewTestUser("leader", false)
	require.NoError(t, users.Create(ctx, env.leader))

	env.project = testutil.NewTestProject("Referral Drive")
	require.NoError(t, repository.NewSQLiteProjectRepo(database).Create(ctx, env.project))

	for i := 0; i < poolSize; i++ {
		u := testutil.NewTestUser("candidate", false)
		require.NoError(t, users.Create(ctx, u))
		require.NoError(t, env.projects.AddCandidate(ctx, env.project.ID, u.ID))
		env.pool = append(env.pool, u)
	}
	return env
}

// service builds another flow service on the same database and clock.
func (e *flowEnv) service(uow db.UnitOfWork) FlowService {
	return NewFlowService(FlowServiceDeps{
		Flows:        repository.NewSQLiteFlowRepo(e.db),
		Participants: repository.NewSQLiteParticipantRepo(e.db),
		Projects:     repository.NewSQLiteProjectRepo(e.db),
		Users:        repository.NewSQLiteUserRepo(e.db),
		Candidates:   repository.NewSQLiteCandidateRepo(e.db),
		UoW:          uow,
		Gateway:      e.notifier,
		Clock:        e.clock,
		Kicker:       e.kicker,
	})
}

func (e *flowEnv) start(t *testing.T, opts ...testutil.FlowConfigOption) *domain.Flow {
	t.Helper()
	cfg := testutil.NewTestFlowConfig(e.leader.ID, opts...)
	flow, err := e.svc.CreateAndStart(context.Background(), e.admin, e.project.ID, cfg)
	require.NoError(t, err)
	return flow
}

func (e *flowEnv) view(t *testing.T, flowID string) (*domain.Flow, *tree.Arena) {
	t.Helper()
	v, err := e.svc.Show(context.Background(), flowID)
	require.NoError(t, err)
	return v.Flow, v.Tree
}

// line returns the live one-child chain from the root down.
func (e *flowEnv) line(t *testing.T, flowID string) []*domain.Participant {
	t.Helper()
	_, arena := e.view(t, flowID)
	root := arena.Root()
	require.NotNil(t, root)
	line, err := arena.Walk(root.ID)
	require.NoError(t, err)
	return line
}

func (e *flowEnv) register(t *testing.T, flowID string, p *domain.Participant) {
	t.Helper()
	require.NoError(t, e.svc.RegisterParticipant(context.Background(), domain.Member(p.UserID), flowID, p.ID, referral()))
}

func referral() domain.Referral {
	return domain.Referral{URL: "https://ref.example.test/join", Name: "Ref Name", Login: "ref_login"}
}

func at(h time.Duration) time.Time { return testutil.T0.Add(h) }
