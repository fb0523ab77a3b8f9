package domain

import "time"

// Job is a unit of deferred work on the persistent queue.
type Job struct {
	ID          string
	Kind        JobKind
	FlowID      string
	Status      JobStatus
	Attempts    int
	LastError   string
	AvailableAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Notification is one outbound message recorded for external delivery.
type Notification struct {
	ID            string
	FlowID        string
	ParticipantID string
	UserID        string
	Kind          NotificationKind
	CreatedAt     time.Time
}
