package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/alexanderramin/treeflow/internal/domain"
	"github.com/alexanderramin/treeflow/internal/repository"
	"github.com/alexanderramin/treeflow/internal/tree"
)

func (s *flowService) loadTree(ctx context.Context, flowID string) (*domain.Flow, *tree.Arena, error) {
	flow, err := s.flows.GetByID(ctx, flowID)
	if err != nil {
		return nil, nil, err
	}
	all, err := s.participants.ListByFlow(ctx, flowID)
	if err != nil {
		return nil, nil, err
	}
	return flow, tree.Load(flow.BranchingFactor(), all), nil
}

func (s *flowService) Show(ctx context.Context, flowID string) (*FlowView, error) {
	flow, arena, err := s.loadTree(ctx, flowID)
	if err != nil {
		return nil, err
	}
	project, err := s.projects.GetByID(ctx, flow.ProjectID)
	if err != nil {
		return nil, err
	}
	return &FlowView{Flow: flow, Project: project, Tree: arena}, nil
}

func (s *flowService) FlowForProject(ctx context.Context, projectID string) (*domain.Flow, error) {
	return s.flows.GetByProject(ctx, projectID)
}

func (s *flowService) ParticipantsByParent(ctx context.Context, flowID string, parentID *string) ([]*domain.Participant, error) {
	return s.participants.ListByParent(ctx, flowID, parentID)
}

func (s *flowService) HasNonAcceptedParticipants(ctx context.Context, flowID string) (bool, error) {
	flow, arena, err := s.loadTree(ctx, flowID)
	if err != nil {
		return false, err
	}
	for _, p := range arena.AtLevel(flow.CurrentLevel) {
		if p.Registered && !p.IsAccepted() {
			return true, nil
		}
	}
	return false, nil
}

func (s *flowService) ParticipantForUser(ctx context.Context, flowID, userID string) (*domain.Participant, error) {
	return s.participants.GetByUser(ctx, flowID, userID)
}

// NotRegisteredCandidates lists project candidates who hold no live slot in
// the flow, in pool order.
func (s *flowService) NotRegisteredCandidates(ctx context.Context, flowID string) ([]*domain.User, error) {
	flow, arena, err := s.loadTree(ctx, flowID)
	if err != nil {
		return nil, err
	}
	cands, err := s.candidates.ListByProject(ctx, flow.ProjectID)
	if err != nil {
		return nil, err
	}
	active := map[string]bool{}
	for _, p := range arena.All() {
		if !p.Deleted {
			active[p.UserID] = true
		}
	}
	var out []*domain.User
	for _, c := range cands {
		if active[c.UserID] {
			continue
		}
		u, err := s.users.GetByID(ctx, c.UserID)
		if err != nil {
			return nil, fmt.Errorf("candidate %s: %w", c.UserID, err)
		}
		out = append(out, u)
	}
	return out, nil
}

// NeedToAcceptChildrenInFuture reports whether the participant has, or may
// still get, children to accept.
func (s *flowService) NeedToAcceptChildrenInFuture(ctx context.Context, flowID, participantID string) (bool, error) {
	flow, arena, err := s.loadTree(ctx, flowID)
	if err != nil {
		return false, err
	}
	p, ok := arena.Get(participantID)
	if !ok {
		return false, fmt.Errorf("participant %s: %w", participantID, repository.ErrNotFound)
	}
	if p.Deleted {
		return false, nil
	}
	if len(arena.ActiveChildrenOf(&p.ID)) > 0 {
		return true, nil
	}
	if flow.State == domain.FlowCompleted {
		return false, nil
	}
	if flow.IsOneChildTree() {
		return p.Level < flow.MaxLevel(), nil
	}
	return true, nil
}

func (s *flowService) NotifyOpenRegistrations(ctx context.Context, flowID string) (int, error) {
	flow, arena, err := s.loadTree(ctx, flowID)
	if err != nil {
		return 0, err
	}
	if flow.OnPause || !flow.Active() {
		return 0, nil
	}
	now := s.now()
	sent := 0
	var errs []error
	for _, p := range arena.AtLevel(flow.CurrentLevel) {
		if p.NotificationSent != nil || !p.RegistrationOpen(now) {
			continue
		}
		ok, err := s.notifyAndStamp(ctx, flowID, p.ID, domain.NotifyRegistrationOpen)
		if err != nil {
			errs = append(errs, fmt.Errorf("participant %s: %w", p.ID, err))
			continue
		}
		if ok {
			sent++
		}
	}
	return sent, errors.Join(errs...)
}
