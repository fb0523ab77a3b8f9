package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alexanderramin/treeflow/internal/db"
	"github.com/alexanderramin/treeflow/internal/domain"
	"github.com/alexanderramin/treeflow/internal/flowlock"
	"github.com/alexanderramin/treeflow/internal/metrics"
	"github.com/alexanderramin/treeflow/internal/notify"
	"github.com/alexanderramin/treeflow/internal/repository"
	"github.com/alexanderramin/treeflow/internal/timing"
	"github.com/google/uuid"
	"k8s.io/utils/clock"
)

// Kicker wakes the cascade worker after a job was committed.
type Kicker interface {
	Kick()
}

type FlowServiceDeps struct {
	Flows        repository.FlowRepo
	Participants repository.ParticipantRepo
	Projects     repository.ProjectRepo
	Users        repository.UserRepo
	Candidates   repository.CandidateRepo
	UoW          db.UnitOfWork
	Gateway      notify.Gateway
	Clock        clock.PassiveClock
	Kicker       Kicker         // optional
	Locks        *flowlock.Keyed // optional; shared with the cascade runner
	Logger       *slog.Logger
}

type flowService struct {
	flows        repository.FlowRepo
	participants repository.ParticipantRepo
	projects     repository.ProjectRepo
	users        repository.UserRepo
	candidates   repository.CandidateRepo
	uow          db.UnitOfWork
	gateway      notify.Gateway
	clock        clock.PassiveClock
	kicker       Kicker
	locks        *flowlock.Keyed
	logger       *slog.Logger
	observer     FlowActionObserver
}

func NewFlowService(deps FlowServiceDeps, observers ...FlowActionObserver) FlowService {
	s := &flowService{
		flows:        deps.Flows,
		participants: deps.Participants,
		projects:     deps.Projects,
		users:        deps.Users,
		candidates:   deps.Candidates,
		uow:          deps.UoW,
		gateway:      deps.Gateway,
		clock:        deps.Clock,
		kicker:       deps.Kicker,
		locks:        deps.Locks,
		logger:       deps.Logger,
		observer:     observerOrNoop(observers),
	}
	if s.clock == nil {
		s.clock = clock.RealClock{}
	}
	if s.locks == nil {
		s.locks = &flowlock.Keyed{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.gateway == nil {
		s.gateway = notify.LogGateway{Logger: s.logger}
	}
	return s
}

func (s *flowService) now() time.Time { return s.clock.Now().UTC() }

// finish reports a finished action to the observer and the metrics.
func (s *flowService) finish(ctx context.Context, action string, startedAt time.Time, fields map[string]any, err error) {
	event := FlowActionEvent{
		Action:    action,
		StartedAt: startedAt,
		Duration:  time.Since(startedAt),
		Err:       err,
		Fields:    fields,
	}
	s.observer.ObserveFlowAction(ctx, event)
	metrics.RecordFlowAction(action, event.Outcome())
}

// mutate runs fn against the flow inside one transaction while holding the
// flow's lock. Errors the caller can act on come back unchanged; anything
// else is logged with context and surfaced as ErrTransactionFailure. A queued
// cascade wakes the worker once the transaction has committed.
func (s *flowService) mutate(ctx context.Context, action, flowID, participantID string, fn func(ctx context.Context, st *flowState) error) error {
	unlock := s.locks.Lock(flowID)
	defer unlock()

	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		st, err := loadFlowState(ctx, tx, flowID)
		if err != nil {
			return err
		}
		if err := fn(ctx, st); err != nil {
			return err
		}
		if err := st.flush(ctx); err != nil {
			return err
		}
		if st.enqueued && s.kicker != nil {
			db.AfterCommit(ctx, s.kicker.Kick)
		}
		return nil
	})
	if err != nil {
		return s.classify(ctx, err, action, flowID, participantID)
	}
	return nil
}

func (s *flowService) classify(ctx context.Context, err error, action, flowID, participantID string) error {
	for _, known := range []error{
		domain.ErrValidation,
		domain.ErrNotEligible,
		domain.ErrAlreadyRegistered,
		domain.ErrForbidden,
		domain.ErrCapacityExceeded,
		domain.ErrInvalidLevel,
		domain.ErrCycleDetected,
		repository.ErrNotFound,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	s.logger.ErrorContext(ctx, "flow action rolled back",
		"action", action,
		"flow_id", flowID,
		"participant_id", participantID,
		"error", err,
	)
	if participantID != "" {
		return fmt.Errorf("%w: %s participant %s: %w", domain.ErrTransactionFailure, action, participantID, err)
	}
	return fmt.Errorf("%w: %s flow %s: %w", domain.ErrTransactionFailure, action, flowID, err)
}

// announce sends registration-open notices after a commit. Delivery failures
// never undo the action.
func (s *flowService) announce(ctx context.Context, flowID string) {
	if _, err := s.NotifyOpenRegistrations(ctx, flowID); err != nil {
		s.logger.WarnContext(ctx, "registration-open notification failed", "flow_id", flowID, "error", err)
	}
}

func requireAdmin(actor domain.Actor) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("user %s: %w", actor.UserID, domain.ErrForbidden)
	}
	return nil
}

func (s *flowService) CreateAndStart(ctx context.Context, actor domain.Actor, projectID string, cfg domain.FlowConfig) (flow *domain.Flow, err error) {
	startedAt := time.Now()
	fields := map[string]any{"project_id": projectID}
	defer func() { s.finish(ctx, "create-and-start", startedAt, fields, err) }()

	if err = requireAdmin(actor); err != nil {
		return nil, err
	}
	if err = cfg.ValidateForCreate(); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock("project:" + projectID)
	defer unlock()

	now := s.now()
	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		st := newFlowState(tx)
		project, err := st.projects.GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		if project.Status != domain.ProjectAccepted {
			return fmt.Errorf("project %s is %s: %w", project.DisplayID(), project.Status, domain.ErrNotEligible)
		}
		if _, err := st.users.GetByID(ctx, cfg.LeaderID); err != nil {
			return fmt.Errorf("leader: %w", err)
		}

		st.project = project
		st.flow = domain.NewFlow(uuid.New().String(), projectID, cfg, now)
		st.flow.Start(now)
		st.arena = treeFor(st.flow)
		if err := st.flows.Create(ctx, st.flow); err != nil {
			return err
		}

		size := 1
		var pool []string
		if st.flow.IsOneChildTree() {
			if pool, err = st.pool(ctx); err != nil {
				return err
			}
			size = min(st.flow.HowMuchUsersInOneGroup, len(pool)+1)
		}
		users := append([]string{cfg.LeaderID}, pool...)
		var parent *domain.Participant
		for i, w := range timing.Chain(cfg.MustBeRegisteredFrom, st.flow.TimingConfig(), 0, size) {
			p, err := st.addSlot(users[i], parent, w.RegistrationStart, w.AcceptStart, now)
			if err != nil {
				return err
			}
			if parent != nil {
				from := w.AcceptStart
				parent.MustAcceptChildrenFrom = &from
			}
			parent = p
		}

		project.Status = domain.ProjectFlowRegistration
		project.UpdatedAt = now
		st.projectDirty = true
		flow = st.flow
		return st.flush(ctx)
	})
	if err != nil {
		return nil, s.classify(ctx, err, "create-and-start", "", "")
	}
	fields["flow_id"] = flow.ID
	s.announce(ctx, flow.ID)
	return flow, nil
}

func (s *flowService) RegisterParticipant(ctx context.Context, actor domain.Actor, flowID, participantID string, ref domain.Referral) (err error) {
	startedAt := time.Now()
	fields := map[string]any{"flow_id": flowID, "participant_id": participantID}
	defer func() { s.finish(ctx, "register", startedAt, fields, err) }()

	if err = ref.Validate(); err != nil {
		return err
	}
	now := s.now()
	err = s.mutate(ctx, "register", flowID, participantID, func(ctx context.Context, st *flowState) error {
		p, err := st.participant(participantID)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && actor.UserID != p.UserID {
			return fmt.Errorf("participant %s belongs to another user: %w", p.ID, domain.ErrForbidden)
		}
		if p.Registered {
			return domain.ErrAlreadyRegistered
		}
		f := st.flow
		switch {
		case !f.Active() || f.OnPause:
			return fmt.Errorf("flow is %s: %w", f.State, domain.ErrNotEligible)
		case p.Deleted:
			return fmt.Errorf("participant %s was removed: %w", p.ID, domain.ErrNotEligible)
		case p.Level != f.CurrentLevel:
			return fmt.Errorf("participant level %d, flow at level %d: %w", p.Level, f.CurrentLevel, domain.ErrNotEligible)
		case !p.RegistrationOpen(now):
			return fmt.Errorf("registration window %s to %s is closed: %w",
				p.MustBeRegisteredFrom.Format(time.RFC3339), p.AcceptStageStartsAt.Format(time.RFC3339), domain.ErrNotEligible)
		}
		if err := p.Register(ref, now); err != nil {
			return err
		}
		st.touch(p)

		for _, other := range st.arena.AtLevel(f.CurrentLevel) {
			if !other.Registered {
				return nil
			}
		}
		f.State = domain.FlowAcceptPending
		f.UpdatedAt = now
		return nil
	})
	return err
}

func (s *flowService) AcceptRegistration(ctx context.Context, actor domain.Actor, flowID, participantID string) (err error) {
	startedAt := time.Now()
	fields := map[string]any{"flow_id": flowID, "participant_id": participantID}
	defer func() { s.finish(ctx, "accept", startedAt, fields, err) }()

	now := s.now()
	var moved bool
	err = s.mutate(ctx, "accept", flowID, participantID, func(ctx context.Context, st *flowState) error {
		p, err := st.participant(participantID)
		if err != nil {
			return err
		}
		f := st.flow
		switch {
		case !f.Active():
			return fmt.Errorf("flow is %s: %w", f.State, domain.ErrNotEligible)
		case p.Deleted:
			return fmt.Errorf("participant %s was removed: %w", p.ID, domain.ErrNotEligible)
		case p.Level != f.CurrentLevel:
			return fmt.Errorf("participant level %d, flow at level %d: %w", p.Level, f.CurrentLevel, domain.ErrNotEligible)
		case p.IsAccepted():
			return fmt.Errorf("participant %s already accepted: %w", p.ID, domain.ErrNotEligible)
		}
		if !actor.IsAdmin() {
			sponsor := st.arena.Parent(p)
			if sponsor == nil || sponsor.UserID != actor.UserID {
				return fmt.Errorf("only the sponsor may accept participant %s: %w", p.ID, domain.ErrForbidden)
			}
			if !p.Registered {
				return fmt.Errorf("participant %s has not registered: %w", p.ID, domain.ErrNotEligible)
			}
		}

		p.Accept(actor.UserID, now)
		st.touch(p)
		if moved, err = st.moveToNextLevel(ctx, now); err != nil {
			return err
		}
		if actor.IsAdmin() {
			return st.enqueueCascade(ctx, now)
		}
		return nil
	})
	if err != nil {
		return err
	}
	fields["moved"] = moved
	if moved {
		s.announce(ctx, flowID)
	}
	return nil
}

func (s *flowService) MoveToNextLevelIfPossible(ctx context.Context, actor domain.Actor, flowID string) (moved bool, err error) {
	startedAt := time.Now()
	fields := map[string]any{"flow_id": flowID}
	defer func() { s.finish(ctx, "move-to-next-level", startedAt, fields, err) }()

	if err = requireAdmin(actor); err != nil {
		return false, err
	}
	now := s.now()
	err = s.mutate(ctx, "move-to-next-level", flowID, "", func(ctx context.Context, st *flowState) error {
		var err error
		moved, err = st.moveToNextLevel(ctx, now)
		return err
	})
	if err != nil {
		return false, err
	}
	fields["moved"] = moved
	if moved {
		s.announce(ctx, flowID)
	}
	return moved, nil
}

func (s *flowService) ContinueRegistration(ctx context.Context, actor domain.Actor, flowID string, cfg domain.FlowConfig) (err error) {
	startedAt := time.Now()
	fields := map[string]any{"flow_id": flowID}
	defer func() { s.finish(ctx, "continue", startedAt, fields, err) }()

	if err = requireAdmin(actor); err != nil {
		return err
	}
	now := s.now()
	err = s.mutate(ctx, "continue", flowID, "", func(ctx context.Context, st *flowState) error {
		f := st.flow
		if f.State != domain.FlowPaused {
			return fmt.Errorf("flow is %s, not paused: %w", f.State, domain.ErrNotEligible)
		}
		if err := cfg.ValidateForContinue(f.RegistrationType); err != nil {
			return err
		}
		f.ApplyConfig(cfg, now)

		if f.IsOneChildTree() {
			return st.continueChain(ctx, now)
		}
		if !st.levelResolved(f.CurrentLevel) {
			f.Resume(now)
			return nil
		}
		pool, err := st.pool(ctx)
		if err != nil {
			return err
		}
		if len(pool) == 0 {
			return st.complete(ctx, now)
		}
		if err := st.openNextLevel(pool, now); err != nil {
			return err
		}
		f.AdvanceLevel(now)
		return nil
	})
	if err != nil {
		return err
	}
	s.announce(ctx, flowID)
	return nil
}

func (s *flowService) UpdateAcceptTime(ctx context.Context, actor domain.Actor, flowID string, d time.Duration) (err error) {
	startedAt := time.Now()
	fields := map[string]any{"flow_id": flowID, "accept_minutes": int(d.Minutes())}
	defer func() { s.finish(ctx, "update-accept-time", startedAt, fields, err) }()

	if err = requireAdmin(actor); err != nil {
		return err
	}
	if d <= 0 {
		return &domain.FieldError{Field: "time_for_accept", Msg: "must be greater than 0:00"}
	}
	// Overrides are stored in whole minutes.
	if d < time.Minute || d%time.Minute != 0 {
		return &domain.FieldError{Field: "time_for_accept", Msg: "must be a whole number of minutes"}
	}

	now := s.now()
	var cohort []string
	err = s.mutate(ctx, "update-accept-time", flowID, "", func(ctx context.Context, st *flowState) error {
		if !st.flow.Active() {
			return fmt.Errorf("flow is %s: %w", st.flow.State, domain.ErrNotEligible)
		}
		seen := map[string]bool{}
		for _, p := range st.arena.AtLevel(st.flow.CurrentLevel) {
			override := d
			p.AcceptTimeOverride = &override
			p.UpdatedAt = now
			st.touch(p)
			for _, target := range []string{p.ID, parentID(p)} {
				if target != "" && !seen[target] {
					seen[target] = true
					cohort = append(cohort, target)
				}
			}
		}
		return st.enqueueCascade(ctx, now)
	})
	if err != nil {
		return err
	}
	fields["notified"] = s.notifyAcceptTimeUpdated(ctx, flowID, cohort)
	return nil
}

func parentID(p *domain.Participant) string {
	if p.ParentID == nil {
		return ""
	}
	return *p.ParentID
}

// notifyAcceptTimeUpdated tells each participant in ids and stamps
// notify_about_accept_sent.
func (s *flowService) notifyAcceptTimeUpdated(ctx context.Context, flowID string, ids []string) int {
	sent := 0
	for _, id := range ids {
		ok, err := s.notifyAndStamp(ctx, flowID, id, domain.NotifyAcceptTimeUpdated)
		if err != nil {
			s.logger.WarnContext(ctx, "accept-time notification failed", "flow_id", flowID, "participant_id", id, "error", err)
			continue
		}
		if ok {
			sent++
		}
	}
	return sent
}

// notifyAndStamp delivers one notification and records it on the participant.
// It holds the flow lock throughout, so a registration-open notice already
// stamped by a concurrent caller is skipped and reported as not sent.
func (s *flowService) notifyAndStamp(ctx context.Context, flowID, participantID string, kind domain.NotificationKind) (bool, error) {
	unlock := s.locks.Lock(flowID)
	defer unlock()

	p, err := s.participants.GetByID(ctx, participantID)
	if err != nil {
		return false, err
	}
	if kind == domain.NotifyRegistrationOpen && p.NotificationSent != nil {
		return false, nil
	}
	if err := s.gateway.Notify(ctx, p, kind); err != nil {
		return false, err
	}

	at := s.now()
	switch kind {
	case domain.NotifyRegistrationOpen:
		p.NotificationSent = &at
	case domain.NotifyAcceptTimeUpdated:
		p.NotifyAboutAcceptSent = &at
	}
	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		return repository.NewSQLiteParticipantRepo(tx).UpdateTimings(ctx, p)
	})
	return err == nil, err
}
