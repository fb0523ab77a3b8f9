package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alexanderramin/treeflow/internal/domain"
	"github.com/google/uuid"
)

var testShortIDCounter atomic.Int64

// Project options
type ProjectOption func(*domain.Project)

func WithProjectStatus(s domain.ProjectStatus) ProjectOption {
	return func(p *domain.Project) {
		p.Status = s
	}
}

func WithShortID(id string) ProjectOption {
	return func(p *domain.Project) {
		p.ShortID = id
	}
}

func NewTestProject(name string, opts ...ProjectOption) *domain.Project {
	p := &domain.Project{
		ID:        uuid.New().String(),
		ShortID:   fmt.Sprintf("REF%02d", testShortIDCounter.Add(1)),
		Name:      name,
		Status:    domain.ProjectAccepted,
		CreatedAt: T0,
		UpdatedAt: T0,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func NewTestUser(name string, admin bool) *domain.User {
	return &domain.User{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     name + "@example.test",
		IsAdmin:   admin,
		CreatedAt: T0,
	}
}

// Flow config options
type FlowConfigOption func(*domain.FlowConfig)

func WithRegistrationType(t domain.RegistrationType) FlowConfigOption {
	return func(c *domain.FlowConfig) {
		c.RegistrationType = t
		if t != domain.OneChildTree {
			c.HowMuchUsersInOneGroup = 0
		}
	}
}

func WithGroupSize(n int) FlowConfigOption {
	return func(c *domain.FlowConfig) {
		c.HowMuchUsersInOneGroup = n
	}
}

func WithTimings(registration, accept time.Duration) FlowConfigOption {
	return func(c *domain.FlowConfig) {
		c.TimeForRegistration = registration
		c.TimeForAccept = accept
	}
}

func WithRegisteredFrom(t time.Time) FlowConfigOption {
	return func(c *domain.FlowConfig) {
		c.MustBeRegisteredFrom = t
	}
}

func WithAutoContinue(v bool) FlowConfigOption {
	return func(c *domain.FlowConfig) {
		c.AutoContinue = v
	}
}

func WithLevelOffsets(offsets ...time.Duration) FlowConfigOption {
	return func(c *domain.FlowConfig) {
		c.LevelOffsets = offsets
	}
}

// NewTestFlowConfig returns a valid one-child-tree config: group of 4,
// registration 2:00, accept 1:00, opening at T0, auto-continue on.
func NewTestFlowConfig(leaderID string, opts ...FlowConfigOption) domain.FlowConfig {
	c := domain.FlowConfig{
		RegistrationType:       domain.OneChildTree,
		LeaderID:               leaderID,
		HowMuchUsersInOneGroup: 4,
		MustBeRegisteredFrom:   T0,
		TimeForRegistration:    2 * time.Hour,
		TimeForAccept:          time.Hour,
		AutoContinue:           true,
		Comments:               "test flow",
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Participant options
type ParticipantOption func(*domain.Participant)

func WithParent(p *domain.Participant) ParticipantOption {
	return func(c *domain.Participant) {
		id := p.ID
		c.ParentID = &id
		c.Level = p.Level + 1
	}
}

func WithSeq(seq int) ParticipantOption {
	return func(c *domain.Participant) {
		c.Seq = seq
	}
}

func WithWindow(from, acceptStart time.Time) ParticipantOption {
	return func(c *domain.Participant) {
		c.MustBeRegisteredFrom = from
		c.AcceptStageStartsAt = acceptStart
	}
}

func Registered() ParticipantOption {
	return func(c *domain.Participant) {
		c.Registered = true
		c.Referral = domain.Referral{URL: "https://ref.example.test/u", Name: "Ref", Login: "ref"}
		at := c.MustBeRegisteredFrom
		c.RegisteredAt = &at
	}
}

func Deleted(reason string) ParticipantOption {
	return func(c *domain.Participant) {
		c.MarkDeleted(reason, c.CreatedAt)
	}
}

// NewTestParticipant builds an unregistered root slot open from T0 for two
// hours. Options can place it under a parent.
func NewTestParticipant(flowID, userID string, opts ...ParticipantOption) *domain.Participant {
	p := &domain.Participant{
		ID:                   uuid.New().String(),
		FlowID:               flowID,
		UserID:               userID,
		MustBeRegisteredFrom: T0,
		AcceptStageStartsAt:  T0.Add(2 * time.Hour),
		CreatedAt:            T0,
		UpdatedAt:            T0,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}
