package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alexanderramin/treeflow/internal/cascade"
	"github.com/alexanderramin/treeflow/internal/domain"
)

const maxReasonLen = 255

func validateReason(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return &domain.FieldError{Field: "reason", Msg: "is required"}
	}
	if len(reason) > maxReasonLen {
		return &domain.FieldError{Field: "reason", Msg: fmt.Sprintf("must be at most %d characters", maxReasonLen)}
	}
	return nil
}

func (r RemoveRequest) validate() error {
	if strings.TrimSpace(r.ParticipantID) == "" {
		return &domain.FieldError{Field: "participant_id", Msg: "is required"}
	}
	if err := validateReason(r.Reason); err != nil {
		return err
	}
	if strings.TrimSpace(r.ReplacementUserID) == "" {
		return &domain.FieldError{Field: "replacement_user_id", Msg: "is required"}
	}
	if r.RegisteredFrom.IsZero() {
		return &domain.FieldError{Field: "must_be_registered_from", Msg: "is required"}
	}
	if r.TimeForRegistration <= 0 {
		return &domain.FieldError{Field: "time_for_registration", Msg: "must be greater than 0:00"}
	}
	if r.TimeForAccept <= 0 {
		return &domain.FieldError{Field: "time_for_accept", Msg: "must be greater than 0:00"}
	}
	return nil
}

// RemoveParticipant replaces a participant with an inheritor in one
// transaction: soft delete and pause, new flow timings, the inheritor in the
// same slot with the removed participant's children, a re-timed chain below
// it, and un-pause. Nothing is kept if any step fails.
func (s *flowService) RemoveParticipant(ctx context.Context, actor domain.Actor, flowID string, req RemoveRequest) (err error) {
	startedAt := time.Now()
	fields := map[string]any{"flow_id": flowID, "participant_id": req.ParticipantID}
	defer func() { s.finish(ctx, "remove-participant", startedAt, fields, err) }()

	if err = requireAdmin(actor); err != nil {
		return err
	}
	if err = req.validate(); err != nil {
		return err
	}

	now := s.now()
	var heirID string
	err = s.mutate(ctx, "remove-participant", flowID, req.ParticipantID, func(ctx context.Context, st *flowState) error {
		f := st.flow
		if !f.Active() {
			return fmt.Errorf("flow is %s: %w", f.State, domain.ErrNotEligible)
		}
		p, err := st.participant(req.ParticipantID)
		if err != nil {
			return err
		}
		if p.Deleted {
			return fmt.Errorf("participant %s already removed: %w", p.ID, domain.ErrNotEligible)
		}
		if _, err := st.users.GetByID(ctx, req.ReplacementUserID); err != nil {
			return fmt.Errorf("replacement user: %w", err)
		}
		if holder := st.activeSlotOf(req.ReplacementUserID); holder != nil {
			return fmt.Errorf("user %s already holds participant %s: %w", req.ReplacementUserID, holder.ID, domain.ErrNotEligible)
		}

		wasPaused, prevState := f.OnPause, f.State
		p.MarkDeleted(req.Reason, now)
		st.touch(p)
		f.Pause(now)

		f.MustBeRegisteredFrom = req.RegisteredFrom
		f.TimeForRegistration = req.TimeForRegistration
		f.TimeForAccept = req.TimeForAccept
		if c := strings.TrimSpace(req.Comments); c != "" {
			f.Comments = c
		}

		heir, err := st.createInheritor(p, req.ReplacementUserID, req.RegisteredFrom, now)
		if err != nil {
			return err
		}
		heirID = heir.ID

		// A flow already waiting for continueRegistration stays paused.
		if wasPaused {
			return nil
		}
		f.Resume(now)
		if heir.Level != f.CurrentLevel {
			f.State = prevState
		}
		return nil
	})
	if err != nil {
		return err
	}
	fields["inheritor_id"] = heirID
	s.announce(ctx, flowID)
	return nil
}

// createInheritor puts userID into old's slot, hands it old's live children
// and re-times the chain below it on one-child flows.
func (st *flowState) createInheritor(old *domain.Participant, userID string, registeredFrom, now time.Time) (*domain.Participant, error) {
	f := st.flow
	parent := st.arena.Parent(old)
	heir, err := st.addSlot(userID, parent, registeredFrom, registeredFrom, now)
	if err != nil {
		return nil, err
	}
	was := old.ID
	heir.InheritorOf = &was
	heir.Retime(registeredFrom, f.TimingConfig())
	heirID := heir.ID
	old.ReplacedBy = &heirID

	for _, child := range st.arena.ActiveChildrenOf(&old.ID) {
		if err := st.arena.Reparent(child.ID, heir.ID); err != nil {
			return nil, err
		}
		child.UpdatedAt = now
		st.touch(child)
	}

	if !f.IsOneChildTree() {
		return heir, nil
	}
	if parent != nil {
		from := heir.AcceptStageStartsAt
		parent.MustAcceptChildrenFrom = &from
		parent.UpdatedAt = now
		st.touch(parent)
	}
	if child := st.arena.FirstChild(heir); child != nil {
		changes, err := cascade.Propagate(st.arena, f, heir, child, heir.WhenAcceptationEnds(f.TimeForAccept), now)
		if err != nil {
			return nil, err
		}
		for _, c := range changes {
			st.touch(c.Sponsor, c.Participant)
		}
	}
	return heir, nil
}

// RemoveRestOfTheGroup removes a participant of a one-child flow together
// with everyone below it and pauses the flow until an admin continues it.
func (s *flowService) RemoveRestOfTheGroup(ctx context.Context, actor domain.Actor, flowID, participantID, reason string) (err error) {
	startedAt := time.Now()
	fields := map[string]any{"flow_id": flowID, "participant_id": participantID}
	defer func() { s.finish(ctx, "remove-rest", startedAt, fields, err) }()

	if err = requireAdmin(actor); err != nil {
		return err
	}
	if err = validateReason(reason); err != nil {
		return err
	}

	now := s.now()
	err = s.mutate(ctx, "remove-rest", flowID, participantID, func(ctx context.Context, st *flowState) error {
		f := st.flow
		if !f.IsOneChildTree() {
			return fmt.Errorf("%s flows keep their groups: %w", f.RegistrationType, domain.ErrNotEligible)
		}
		if !f.Active() {
			return fmt.Errorf("flow is %s: %w", f.State, domain.ErrNotEligible)
		}
		p, err := st.participant(participantID)
		if err != nil {
			return err
		}
		if p.Deleted || p.IsRoot() {
			return fmt.Errorf("participant %s cannot start a removal: %w", p.ID, domain.ErrNotEligible)
		}
		below, err := st.arena.Descendants(p.ID)
		if err != nil {
			return err
		}
		for _, q := range append([]*domain.Participant{p}, below...) {
			q.MarkDeleted(reason, now)
			st.touch(q)
		}
		fields["removed"] = len(below) + 1
		f.Pause(now)
		return nil
	})
	return err
}
