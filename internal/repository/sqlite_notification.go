package repository

import (
	"context"
	"fmt"

	"github.com/alexanderramin/treeflow/internal/db"
	"github.com/alexanderramin/treeflow/internal/domain"
)

// SQLiteNotificationRepo is the outbox read by the external delivery transport.
type SQLiteNotificationRepo struct {
	db db.DBTX
}

func NewSQLiteNotificationRepo(conn db.DBTX) *SQLiteNotificationRepo {
	return &SQLiteNotificationRepo{db: conn}
}

func (r *SQLiteNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	query := `INSERT INTO notifications (id, flow_id, participant_id, user_id, kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		n.ID, n.FlowID, n.ParticipantID, n.UserID, string(n.Kind), formatTime(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}
	return nil
}

func (r *SQLiteNotificationRepo) ListByFlow(ctx context.Context, flowID string) ([]*domain.Notification, error) {
	return r.list(ctx, `SELECT id, flow_id, participant_id, user_id, kind, created_at
		FROM notifications WHERE flow_id = ? ORDER BY created_at, id`, flowID)
}

func (r *SQLiteNotificationRepo) ListByParticipant(ctx context.Context, participantID string) ([]*domain.Notification, error) {
	return r.list(ctx, `SELECT id, flow_id, participant_id, user_id, kind, created_at
		FROM notifications WHERE participant_id = ? ORDER BY created_at, id`, participantID)
}

func (r *SQLiteNotificationRepo) list(ctx context.Context, query string, args ...any) ([]*domain.Notification, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	var out []*domain.Notification
	for rows.Next() {
		var n domain.Notification
		var kind, createdAt string
		if err := rows.Scan(&n.ID, &n.FlowID, &n.ParticipantID, &n.UserID, &kind, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		n.Kind = domain.NotificationKind(kind)
		if n.CreatedAt, err = parseTime(createdAt, "created_at"); err != nil {
			return nil, err
		}
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating notifications: %w", err)
	}
	return out, nil
}
