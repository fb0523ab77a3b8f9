package service

import (
	"context"
	"time"

	"github.com/alexanderramin/treeflow/internal/domain"
	"github.com/alexanderramin/treeflow/internal/tree"
)

// ProjectService is the project and candidate store the flow engine draws on.
type ProjectService interface {
	CreateProject(ctx context.Context, p *domain.Project) error
	// GetProject resolves a project by id or short id.
	GetProject(ctx context.Context, ref string) (*domain.Project, error)
	ListProjects(ctx context.Context) ([]*domain.Project, error)
	CreateUser(ctx context.Context, u *domain.User) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]*domain.User, error)
	AddCandidate(ctx context.Context, projectID, userID string) error
	ListCandidates(ctx context.Context, projectID string) ([]*domain.User, error)
}

// RemoveRequest is the admin form for replacing a participant.
type RemoveRequest struct {
	ParticipantID       string
	Reason              string
	ReplacementUserID   string
	RegisteredFrom      time.Time
	TimeForRegistration time.Duration
	TimeForAccept       time.Duration
	Comments            string
}

// FlowView is a flow with its project and full participant tree.
type FlowView struct {
	Flow    *domain.Flow
	Project *domain.Project
	Tree    *tree.Arena
}

// FlowService is the flow state machine. Mutating operations serialise per
// flow and run inside one transaction each.
type FlowService interface {
	CreateAndStart(ctx context.Context, actor domain.Actor, projectID string, cfg domain.FlowConfig) (*domain.Flow, error)
	RegisterParticipant(ctx context.Context, actor domain.Actor, flowID, participantID string, ref domain.Referral) error
	AcceptRegistration(ctx context.Context, actor domain.Actor, flowID, participantID string) error
	// MoveToNextLevelIfPossible reports whether the flow advanced or completed.
	MoveToNextLevelIfPossible(ctx context.Context, actor domain.Actor, flowID string) (bool, error)
	ContinueRegistration(ctx context.Context, actor domain.Actor, flowID string, cfg domain.FlowConfig) error
	UpdateAcceptTime(ctx context.Context, actor domain.Actor, flowID string, d time.Duration) error
	RemoveParticipant(ctx context.Context, actor domain.Actor, flowID string, req RemoveRequest) error
	RemoveRestOfTheGroup(ctx context.Context, actor domain.Actor, flowID, participantID, reason string) error

	Show(ctx context.Context, flowID string) (*FlowView, error)
	FlowForProject(ctx context.Context, projectID string) (*domain.Flow, error)
	// ParticipantsByParent lists children of parentID, removed ones included.
	// A nil parentID lists the root level.
	ParticipantsByParent(ctx context.Context, flowID string, parentID *string) ([]*domain.Participant, error)
	HasNonAcceptedParticipants(ctx context.Context, flowID string) (bool, error)
	ParticipantForUser(ctx context.Context, flowID, userID string) (*domain.Participant, error)
	NotRegisteredCandidates(ctx context.Context, flowID string) ([]*domain.User, error)
	NeedToAcceptChildrenInFuture(ctx context.Context, flowID, participantID string) (bool, error)
	// NotifyOpenRegistrations tells current-level participants whose window
	// is open and who were not told yet. It returns how many were notified.
	NotifyOpenRegistrations(ctx context.Context, flowID string) (int, error)
}
