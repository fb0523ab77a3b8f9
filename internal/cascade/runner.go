package cascade

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/alexanderramin/treeflow/internal/db"
	"github.com/alexanderramin/treeflow/internal/domain"
	"github.com/alexanderramin/treeflow/internal/flowlock"
	"github.com/alexanderramin/treeflow/internal/repository"
	"github.com/alexanderramin/treeflow/internal/tree"
	"k8s.io/utils/clock"
)

// ErrStaleSnapshot means another writer changed the flow between the load a
// run computed from and one of its writes. Nothing stale is written.
var ErrStaleSnapshot = errors.New("flow changed while re-timing")

// maxPasses bounds how often one run reloads after a stale snapshot before
// handing the job back to the queue.
const maxPasses = 3

// Result summarises one cascade run.
type Result struct {
	Updated int  // participants whose timings were written
	Noop    bool // nothing to re-time
}

// Runner loads a flow, recomputes its downstream timings and writes them back
// one (sponsor, participant) pair per transaction. Each pair's transaction
// first checks the rows still match what the run computed from.
type Runner struct {
	db    db.DBTX
	uow   db.UnitOfWork
	clock clock.PassiveClock
	grace time.Duration
	locks *flowlock.Keyed
}

// NewRunner builds a runner. grace is how long a participant re-opened by an
// admin acceptance gets before its window starts. locks may be nil.
func NewRunner(conn db.DBTX, uow db.UnitOfWork, clk clock.PassiveClock, grace time.Duration, locks *flowlock.Keyed) *Runner {
	return &Runner{db: conn, uow: uow, clock: clk, grace: grace, locks: locks}
}

func (r *Runner) Run(ctx context.Context, flowID string) (Result, error) {
	if r.locks != nil {
		defer r.locks.Lock(flowID)()
	}

	var res Result
	for pass := 1; ; pass++ {
		updated, noop, err := r.pass(ctx, flowID)
		res.Updated += updated
		if errors.Is(err, ErrStaleSnapshot) && pass < maxPasses {
			continue
		}
		res.Noop = noop && res.Updated == 0
		return res, err
	}
}

// pass loads the flow once, recomputes and writes the changes. It stops at
// the first pair whose rows moved since the load.
func (r *Runner) pass(ctx context.Context, flowID string) (int, bool, error) {
	flow, err := repository.NewSQLiteFlowRepo(r.db).GetByID(ctx, flowID)
	if err != nil {
		return 0, false, fmt.Errorf("loading flow %s: %w", flowID, err)
	}
	all, err := repository.NewSQLiteParticipantRepo(r.db).ListByFlow(ctx, flowID)
	if err != nil {
		return 0, false, fmt.Errorf("loading participants of flow %s: %w", flowID, err)
	}

	seen := flowVersionOf(flow)
	rows := make(map[string]rowVersion, len(all))
	for _, p := range all {
		rows[p.ID] = versionOf(p)
	}

	arena := tree.Load(flow.BranchingFactor(), all)
	changes, err := Recompute(arena, flow, r.clock.Now(), r.grace)
	if err != nil {
		return 0, false, err
	}
	if len(changes) == 0 {
		return 0, true, nil
	}

	updated := 0
	for _, c := range changes {
		pair := []*domain.Participant{c.Participant}
		if c.Sponsor != nil {
			pair = append([]*domain.Participant{c.Sponsor}, pair...)
		}
		err := r.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
			fresh, err := repository.NewSQLiteFlowRepo(tx).GetByID(ctx, flowID)
			if err != nil {
				return err
			}
			if !flowVersionOf(fresh).equal(seen) {
				return fmt.Errorf("flow %s: %w", flowID, ErrStaleSnapshot)
			}
			participants := repository.NewSQLiteParticipantRepo(tx)
			for _, p := range pair {
				current, err := participants.GetByID(ctx, p.ID)
				if err != nil {
					return err
				}
				if !versionOf(current).equal(rows[p.ID]) {
					return fmt.Errorf("participant %s: %w", p.ID, ErrStaleSnapshot)
				}
			}
			for _, p := range pair {
				if err := participants.UpdateTimings(ctx, p); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return updated, false, fmt.Errorf("re-timing participant %s: %w", c.Participant.ID, err)
		}
		for _, p := range pair {
			rows[p.ID] = versionOf(p)
		}
		updated++
	}
	return updated, false, nil
}

// rowVersion is the part of a participant row a re-timing depends on.
type rowVersion struct {
	parent         string
	level          int
	deleted        bool
	replacedBy     string
	registered     bool
	accepted       bool
	registeredFrom time.Time
	acceptStart    time.Time
	acceptChildren time.Time
	acceptOverride time.Duration
	hasOverride    bool
	notified       bool
	notifiedAccept bool
}

func versionOf(p *domain.Participant) rowVersion {
	v := rowVersion{
		level:          p.Level,
		deleted:        p.Deleted,
		registered:     p.Registered,
		accepted:       p.IsAccepted(),
		registeredFrom: stored(p.MustBeRegisteredFrom),
		acceptStart:    stored(p.AcceptStageStartsAt),
		notified:       p.NotificationSent != nil,
		notifiedAccept: p.NotifyAboutAcceptSent != nil,
	}
	if p.ParentID != nil {
		v.parent = *p.ParentID
	}
	if p.ReplacedBy != nil {
		v.replacedBy = *p.ReplacedBy
	}
	if p.MustAcceptChildrenFrom != nil {
		v.acceptChildren = stored(*p.MustAcceptChildrenFrom)
	}
	if p.AcceptTimeOverride != nil {
		v.acceptOverride = *p.AcceptTimeOverride
		v.hasOverride = true
	}
	return v
}

func (v rowVersion) equal(o rowVersion) bool {
	return v.parent == o.parent &&
		v.level == o.level &&
		v.deleted == o.deleted &&
		v.replacedBy == o.replacedBy &&
		v.registered == o.registered &&
		v.accepted == o.accepted &&
		v.registeredFrom.Equal(o.registeredFrom) &&
		v.acceptStart.Equal(o.acceptStart) &&
		v.acceptChildren.Equal(o.acceptChildren) &&
		v.acceptOverride == o.acceptOverride &&
		v.hasOverride == o.hasOverride &&
		v.notified == o.notified &&
		v.notifiedAccept == o.notifiedAccept
}

// flowVersion is the part of a flow row a re-timing depends on.
type flowVersion struct {
	state          domain.FlowState
	level          int
	onPause        bool
	registeredFrom time.Time
	registration   time.Duration
	accept         time.Duration
	offsets        []time.Duration
}

func flowVersionOf(f *domain.Flow) flowVersion {
	return flowVersion{
		state:          f.State,
		level:          f.CurrentLevel,
		onPause:        f.OnPause,
		registeredFrom: stored(f.MustBeRegisteredFrom),
		registration:   f.TimeForRegistration,
		accept:         f.TimeForAccept,
		offsets:        f.LevelOffsets,
	}
}

func (v flowVersion) equal(o flowVersion) bool {
	return v.state == o.state &&
		v.level == o.level &&
		v.onPause == o.onPause &&
		v.registeredFrom.Equal(o.registeredFrom) &&
		v.registration == o.registration &&
		v.accept == o.accept &&
		slices.Equal(v.offsets, o.offsets)
}

// stored is t as the database keeps it: UTC, millisecond precision.
func stored(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
