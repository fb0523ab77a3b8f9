package domain

type RegistrationType string

const (
	OneChildTree    RegistrationType = "one_child_tree"
	TwoChildrenTree RegistrationType = "two_children_tree"
	ThreeChildTree  RegistrationType = "three_children_tree"
)

// ValidRegistrationTypes is the canonical set of accepted registration types.
var ValidRegistrationTypes = map[RegistrationType]bool{
	OneChildTree: true, TwoChildrenTree: true, ThreeChildTree: true,
}

// BranchingFactor returns the maximum number of children a sponsor may have.
// Unknown types return 0 so every insert fails the capacity check.
func (t RegistrationType) BranchingFactor() int {
	switch t {
	case OneChildTree:
		return 1
	case TwoChildrenTree:
		return 2
	case ThreeChildTree:
		return 3
	default:
		return 0
	}
}

type FlowState string

const (
	FlowAwaitingRegistration FlowState = "awaiting_registration"
	FlowRegistrationOpen     FlowState = "registration_open"
	FlowAcceptPending        FlowState = "accept_pending"
	FlowPaused               FlowState = "paused"
	FlowCompleted            FlowState = "completed"
)

type ProjectStatus string

const (
	ProjectAccepted              ProjectStatus = "accepted"
	ProjectFlowRegistration      ProjectStatus = "flow_registration"
	ProjectRegistrationCompleted ProjectStatus = "registration_completed"
)

type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

type NotificationKind string

const (
	NotifyRegistrationOpen  NotificationKind = "registration-open"
	NotifyAcceptTimeUpdated NotificationKind = "accept-time-updated"
)

type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

type JobKind string

const (
	JobCascade JobKind = "cascade"
)
