// Package notify delivers participant notifications. The flow engine decides
// when and to whom; implementations here decide how.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alexanderramin/treeflow/internal/db"
	"github.com/alexanderramin/treeflow/internal/domain"
	"github.com/alexanderramin/treeflow/internal/metrics"
	"github.com/alexanderramin/treeflow/internal/repository"
	"github.com/google/uuid"
	"k8s.io/utils/clock"
)

type Gateway interface {
	Notify(ctx context.Context, p *domain.Participant, kind domain.NotificationKind) error
}

// LogGateway writes each notification as a structured log record.
type LogGateway struct {
	Logger *slog.Logger
}

func (g LogGateway) Notify(ctx context.Context, p *domain.Participant, kind domain.NotificationKind) error {
	g.Logger.InfoContext(ctx, "notification",
		"kind", string(kind),
		"flow_id", p.FlowID,
		"participant_id", p.ID,
		"user_id", p.UserID,
	)
	metrics.RecordNotification(string(kind))
	return nil
}

// OutboxGateway records notifications in the notifications table, where an
// external transport picks them up.
type OutboxGateway struct {
	DB    db.DBTX
	Clock clock.PassiveClock
}

func (g OutboxGateway) Notify(ctx context.Context, p *domain.Participant, kind domain.NotificationKind) error {
	n := &domain.Notification{
		ID:            uuid.New().String(),
		FlowID:        p.FlowID,
		ParticipantID: p.ID,
		UserID:        p.UserID,
		Kind:          kind,
		CreatedAt:     g.Clock.Now(),
	}
	return repository.NewSQLiteNotificationRepo(g.DB).Create(ctx, n)
}

// Multi fans a notification out to every gateway, returning all failures.
type Multi []Gateway

func (m Multi) Notify(ctx context.Context, p *domain.Participant, kind domain.NotificationKind) error {
	var errs []error
	for _, g := range m {
		if err := g.Notify(ctx, p, kind); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Sent is one notification captured by a Recorder.
type Sent struct {
	ParticipantID string
	UserID        string
	Kind          domain.NotificationKind
	At            time.Time
}

// Recorder keeps notifications in memory. Used by tests.
type Recorder struct {
	mu   sync.Mutex
	sent []Sent
	Err  error
}

func (r *Recorder) Notify(_ context.Context, p *domain.Participant, kind domain.NotificationKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, Sent{ParticipantID: p.ID, UserID: p.UserID, Kind: kind, At: time.Now()})
	return nil
}

func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// Recipients returns the participant ids notified with kind, in order.
func (r *Recorder) Recipients(kind domain.NotificationKind) []string {
	var ids []string
	for _, s := range r.Sent() {
		if s.Kind == kind {
			ids = append(ids, s.ParticipantID)
		}
	}
	return ids
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}
