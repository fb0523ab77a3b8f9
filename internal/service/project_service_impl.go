package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alexanderramin/treeflow/internal/domain"
	"github.com/alexanderramin/treeflow/internal/repository"
	"github.com/google/uuid"
	"k8s.io/utils/clock"
)

type projectService struct {
	projects   repository.ProjectRepo
	users      repository.UserRepo
	candidates repository.CandidateRepo
	clock      clock.PassiveClock
}

func NewProjectService(projects repository.ProjectRepo, users repository.UserRepo, candidates repository.CandidateRepo, clk clock.PassiveClock) ProjectService {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &projectService{projects: projects, users: users, candidates: candidates, clock: clk}
}

func (s *projectService) CreateProject(ctx context.Context, p *domain.Project) error {
	if strings.TrimSpace(p.Name) == "" {
		return &domain.FieldError{Field: "name", Msg: "is required"}
	}
	if err := p.ValidateShortID(); err != nil {
		return &domain.FieldError{Field: "short_id", Msg: err.Error()}
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := s.clock.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = domain.ProjectAccepted
	}
	return s.projects.Create(ctx, p)
}

func (s *projectService) GetProject(ctx context.Context, ref string) (*domain.Project, error) {
	p, err := s.projects.GetByShortID(ctx, strings.ToUpper(ref))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	return s.projects.GetByID(ctx, ref)
}

func (s *projectService) ListProjects(ctx context.Context) ([]*domain.Project, error) {
	return s.projects.List(ctx)
}

func (s *projectService) CreateUser(ctx context.Context, u *domain.User) error {
	if strings.TrimSpace(u.Name) == "" {
		return &domain.FieldError{Field: "name", Msg: "is required"}
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	u.CreatedAt = s.clock.Now().UTC()
	return s.users.Create(ctx, u)
}

func (s *projectService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *projectService) ListUsers(ctx context.Context) ([]*domain.User, error) {
	return s.users.List(ctx)
}

func (s *projectService) AddCandidate(ctx context.Context, projectID, userID string) error {
	if _, err := s.projects.GetByID(ctx, projectID); err != nil {
		return err
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return fmt.Errorf("candidate: %w", err)
	}
	return s.candidates.Add(ctx, &domain.Candidate{
		ProjectID: projectID,
		UserID:    userID,
		CreatedAt: s.clock.Now().UTC(),
	})
}

// ListCandidates returns the project's pool in order.
func (s *projectService) ListCandidates(ctx context.Context, projectID string) ([]*domain.User, error) {
	cands, err := s.candidates.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.User, 0, len(cands))
	for _, c := range cands {
		u, err := s.users.GetByID(ctx, c.UserID)
		if err != nil {
			return nil, fmt.Errorf("candidate %s: %w", c.UserID, err)
		}
		out = append(out, u)
	}
	return out, nil
}
