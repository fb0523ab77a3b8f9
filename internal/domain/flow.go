package domain

import (
	"strings"
	"time"

	"github.com/alexanderramin/treeflow/internal/timing"
)

const maxCommentsLen = 255

// Flow is one referral-registration process attached to a project.
type Flow struct {
	ID                     string
	ProjectID              string
	LeaderID               string // user occupying the root slot
	RegistrationType       RegistrationType
	HowMuchUsersInOneGroup int // one-child-tree only
	MustBeRegisteredFrom   time.Time
	TimeForRegistration    time.Duration
	TimeForAccept          time.Duration
	LevelOffsets           []time.Duration
	AutoContinue           bool
	OnPause                bool
	Comments               string
	State                  FlowState
	CurrentLevel           int
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// FlowConfig is the admin-supplied configuration used to start or continue
// a flow.
type FlowConfig struct {
	RegistrationType       RegistrationType
	LeaderID               string
	HowMuchUsersInOneGroup int
	MustBeRegisteredFrom   time.Time
	TimeForRegistration    time.Duration
	TimeForAccept          time.Duration
	LevelOffsets           []time.Duration
	AutoContinue           bool
	Comments               string
}

// ValidateForCreate checks every field required to start a new flow.
func (c FlowConfig) ValidateForCreate() error {
	if !ValidRegistrationTypes[c.RegistrationType] {
		return fieldErr("registration_type", "must be one of %s, %s, %s",
			OneChildTree, TwoChildrenTree, ThreeChildTree)
	}
	if strings.TrimSpace(c.LeaderID) == "" {
		return fieldErr("leader_id", "is required")
	}
	return c.validateTimings(c.RegistrationType)
}

// ValidateForContinue checks the fields an admin must resubmit to continue a
// flow of the given type. Registration type and leader are fixed by then.
func (c FlowConfig) ValidateForContinue(t RegistrationType) error {
	return c.validateTimings(t)
}

func (c FlowConfig) validateTimings(t RegistrationType) error {
	if t == OneChildTree && c.HowMuchUsersInOneGroup < 1 {
		return fieldErr("how_much_users_in_one_group", "is required for %s", OneChildTree)
	}
	if c.HowMuchUsersInOneGroup < 0 {
		return fieldErr("how_much_users_in_one_group", "must not be negative")
	}
	if c.MustBeRegisteredFrom.IsZero() {
		return fieldErr("must_be_registered_from", "is required")
	}
	if c.TimeForRegistration <= 0 {
		return fieldErr("time_for_registration", "must be greater than 0:00")
	}
	if c.TimeForAccept <= 0 {
		return fieldErr("time_for_accept", "must be greater than 0:00")
	}
	for i, off := range c.LevelOffsets {
		if off < 0 {
			return fieldErr("level_offsets", "offset for level %d is negative", i)
		}
	}
	if strings.TrimSpace(c.Comments) == "" {
		return fieldErr("comments", "is required")
	}
	if len(c.Comments) > maxCommentsLen {
		return fieldErr("comments", "must be at most %d characters", maxCommentsLen)
	}
	return nil
}

// NewFlow builds a flow in the awaiting-registration state from a validated config.
func NewFlow(id, projectID string, cfg FlowConfig, now time.Time) *Flow {
	f := &Flow{
		ID:               id,
		ProjectID:        projectID,
		LeaderID:         cfg.LeaderID,
		RegistrationType: cfg.RegistrationType,
		State:            FlowAwaitingRegistration,
		CreatedAt:        now,
	}
	f.ApplyConfig(cfg, now)
	return f
}

// ApplyConfig copies the timing and continuation settings onto the flow.
func (f *Flow) ApplyConfig(cfg FlowConfig, now time.Time) {
	if f.RegistrationType == OneChildTree {
		f.HowMuchUsersInOneGroup = cfg.HowMuchUsersInOneGroup
	}
	f.MustBeRegisteredFrom = cfg.MustBeRegisteredFrom
	f.TimeForRegistration = cfg.TimeForRegistration
	f.TimeForAccept = cfg.TimeForAccept
	f.LevelOffsets = append([]time.Duration(nil), cfg.LevelOffsets...)
	f.AutoContinue = cfg.AutoContinue
	f.Comments = cfg.Comments
	f.UpdatedAt = now
}

// TimingConfig returns the calculator inputs for this flow.
func (f *Flow) TimingConfig() timing.Config {
	return timing.Config{
		Registration: f.TimeForRegistration,
		Accept:       f.TimeForAccept,
		LevelOffsets: f.LevelOffsets,
	}
}

func (f *Flow) IsOneChildTree() bool { return f.RegistrationType == OneChildTree }

func (f *Flow) BranchingFactor() int { return f.RegistrationType.BranchingFactor() }

// FirstLine reports whether the root cohort is still active. Only an admin
// can accept the root since it has no sponsor.
func (f *Flow) FirstLine() bool { return f.CurrentLevel == 0 }

// MaxLevel returns the deepest level a flow may reach, or -1 when only the
// candidate pool bounds it.
func (f *Flow) MaxLevel() int {
	if f.IsOneChildTree() {
		return f.HowMuchUsersInOneGroup - 1
	}
	return -1
}

// Active reports whether participants can still act on the flow.
func (f *Flow) Active() bool {
	return f.State != FlowCompleted && f.State != FlowAwaitingRegistration
}

// Start opens registration for the root level.
func (f *Flow) Start(now time.Time) {
	f.CurrentLevel = 0
	f.Resume(now)
}

func (f *Flow) Pause(now time.Time) {
	f.OnPause = true
	f.State = FlowPaused
	f.UpdatedAt = now
}

// Resume un-pauses the flow and reopens registration for the current level.
func (f *Flow) Resume(now time.Time) {
	f.OnPause = false
	f.State = FlowRegistrationOpen
	f.UpdatedAt = now
}

// AdvanceLevel moves the active cohort one level down and reopens registration.
func (f *Flow) AdvanceLevel(now time.Time) {
	f.CurrentLevel++
	f.Resume(now)
}

func (f *Flow) Complete(now time.Time) {
	f.OnPause = false
	f.State = FlowCompleted
	f.UpdatedAt = now
}
