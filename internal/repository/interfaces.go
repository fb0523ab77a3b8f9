package repository

import (
	"context"
	"time"

	"github.com/alexanderramin/treeflow/internal/domain"
)

type ProjectRepo interface {
	Create(ctx context.Context, p *domain.Project) error
	GetByID(ctx context.Context, id string) (*domain.Project, error)
	GetByShortID(ctx context.Context, shortID string) (*domain.Project, error)
	List(ctx context.Context) ([]*domain.Project, error)
	Update(ctx context.Context, p *domain.Project) error
}

type UserRepo interface {
	Create(ctx context.Context, u *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	List(ctx context.Context) ([]*domain.User, error)
}

// CandidateRepo stores a project's ordered candidate pool.
type CandidateRepo interface {
	Add(ctx context.Context, c *domain.Candidate) error
	ListByProject(ctx context.Context, projectID string) ([]*domain.Candidate, error)
	Remove(ctx context.Context, projectID, userID string) error
}

type FlowRepo interface {
	Create(ctx context.Context, f *domain.Flow) error
	GetByID(ctx context.Context, id string) (*domain.Flow, error)
	GetByProject(ctx context.Context, projectID string) (*domain.Flow, error)
	List(ctx context.Context) ([]*domain.Flow, error)
	Update(ctx context.Context, f *domain.Flow) error
}

type ParticipantRepo interface {
	Create(ctx context.Context, p *domain.Participant) error
	GetByID(ctx context.Context, id string) (*domain.Participant, error)
	GetByUser(ctx context.Context, flowID, userID string) (*domain.Participant, error)
	ListByFlow(ctx context.Context, flowID string) ([]*domain.Participant, error)
	ListByParent(ctx context.Context, flowID string, parentID *string) ([]*domain.Participant, error)
	Update(ctx context.Context, p *domain.Participant) error
	UpdateTimings(ctx context.Context, p *domain.Participant) error
}

// JobRepo is the persistent work queue consumed by the cascade worker.
type JobRepo interface {
	Enqueue(ctx context.Context, j *domain.Job) error
	Claim(ctx context.Context, now time.Time) (*domain.Job, error)
	Complete(ctx context.Context, id string, now time.Time) error
	Retry(ctx context.Context, id, lastErr string, availableAt, now time.Time) error
	Fail(ctx context.Context, id, lastErr string, now time.Time) error
	GetByID(ctx context.Context, id string) (*domain.Job, error)
	ListByFlow(ctx context.Context, flowID string) ([]*domain.Job, error)
}

type NotificationRepo interface {
	Create(ctx context.Context, n *domain.Notification) error
	ListByFlow(ctx context.Context, flowID string) ([]*domain.Notification, error)
	ListByParticipant(ctx context.Context, participantID string) ([]*domain.Notification, error)
}
