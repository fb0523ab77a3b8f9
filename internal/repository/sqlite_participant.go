package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alexanderramin/treeflow/internal/db"
	"github.com/alexanderramin/treeflow/internal/domain"
)

// SQLiteParticipantRepo implements ParticipantRepo using a SQLite database.
type SQLiteParticipantRepo struct {
	db db.DBTX
}

func NewSQLiteParticipantRepo(conn db.DBTX) *SQLiteParticipantRepo {
	return &SQLiteParticipantRepo{db: conn}
}

const participantColumns = `id, flow_id, user_id, parent_id, level, seq,
	registered, referral_url, referral_name, referral_login, registered_at, accepted_at, accepted_by,
	must_be_registered_from, accept_stage_starts_at, must_accept_children_from, accept_time_override_min,
	notification_sent, notify_about_accept_sent,
	deleted, deleted_reason, deleted_at, inheritor_of, replaced_by,
	created_at, updated_at`

func (r *SQLiteParticipantRepo) Create(ctx context.Context, p *domain.Participant) error {
	query := `INSERT INTO flow_participants (` + participantColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.FlowID,
		p.UserID,
		nullableString(p.ParentID),
		p.Level,
		p.Seq,
		boolToInt(p.Registered),
		p.Referral.URL,
		p.Referral.Name,
		p.Referral.Login,
		nullableTimeToString(p.RegisteredAt),
		nullableTimeToString(p.AcceptedAt),
		nullableString(p.AcceptedBy),
		formatTime(p.MustBeRegisteredFrom),
		formatTime(p.AcceptStageStartsAt),
		nullableTimeToString(p.MustAcceptChildrenFrom),
		nullableMinutes(p.AcceptTimeOverride),
		nullableTimeToString(p.NotificationSent),
		nullableTimeToString(p.NotifyAboutAcceptSent),
		boolToInt(p.Deleted),
		p.DeletedReason,
		nullableTimeToString(p.DeletedAt),
		nullableString(p.InheritorOf),
		nullableString(p.ReplacedBy),
		formatTime(p.CreatedAt),
		formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting participant: %w", err)
	}
	return nil
}

func (r *SQLiteParticipantRepo) GetByID(ctx context.Context, id string) (*domain.Participant, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+participantColumns+` FROM flow_participants WHERE id = ?`, id)
	return scanParticipant(row)
}

// GetByUser returns the user's active slot in the flow.
func (r *SQLiteParticipantRepo) GetByUser(ctx context.Context, flowID, userID string) (*domain.Participant, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+participantColumns+` FROM flow_participants
		WHERE flow_id = ? AND user_id = ? AND deleted = 0 ORDER BY seq LIMIT 1`,
		flowID, userID)
	return scanParticipant(row)
}

// ListByFlow returns every participant of the flow in creation order,
// removed ones included.
func (r *SQLiteParticipantRepo) ListByFlow(ctx context.Context, flowID string) ([]*domain.Participant, error) {
	return r.list(ctx,
		`SELECT `+participantColumns+` FROM flow_participants WHERE flow_id = ? ORDER BY seq`,
		flowID)
}

// ListByParent returns the immediate children of parentID in creation order.
// A nil parentID selects the root level.
func (r *SQLiteParticipantRepo) ListByParent(ctx context.Context, flowID string, parentID *string) ([]*domain.Participant, error) {
	if parentID == nil {
		return r.list(ctx,
			`SELECT `+participantColumns+` FROM flow_participants
			WHERE flow_id = ? AND parent_id IS NULL ORDER BY seq`,
			flowID)
	}
	return r.list(ctx,
		`SELECT `+participantColumns+` FROM flow_participants
		WHERE flow_id = ? AND parent_id = ? ORDER BY seq`,
		flowID, *parentID)
}

func (r *SQLiteParticipantRepo) Update(ctx context.Context, p *domain.Participant) error {
	query := `UPDATE flow_participants SET user_id = ?, parent_id = ?, level = ?,
		registered = ?, referral_url = ?, referral_name = ?, referral_login = ?,
		registered_at = ?, accepted_at = ?, accepted_by = ?,
		must_be_registered_from = ?, accept_stage_starts_at = ?, must_accept_children_from = ?,
		accept_time_override_min = ?, notification_sent = ?, notify_about_accept_sent = ?,
		deleted = ?, deleted_reason = ?, deleted_at = ?, inheritor_of = ?, replaced_by = ?,
		updated_at = ?
		WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query,
		p.UserID,
		nullableString(p.ParentID),
		p.Level,
		boolToInt(p.Registered),
		p.Referral.URL,
		p.Referral.Name,
		p.Referral.Login,
		nullableTimeToString(p.RegisteredAt),
		nullableTimeToString(p.AcceptedAt),
		nullableString(p.AcceptedBy),
		formatTime(p.MustBeRegisteredFrom),
		formatTime(p.AcceptStageStartsAt),
		nullableTimeToString(p.MustAcceptChildrenFrom),
		nullableMinutes(p.AcceptTimeOverride),
		nullableTimeToString(p.NotificationSent),
		nullableTimeToString(p.NotifyAboutAcceptSent),
		boolToInt(p.Deleted),
		p.DeletedReason,
		nullableTimeToString(p.DeletedAt),
		nullableString(p.InheritorOf),
		nullableString(p.ReplacedBy),
		formatTime(p.UpdatedAt),
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("updating participant: %w", err)
	}
	return expectOneRow(res, "participant")
}

// UpdateTimings writes only the window and notification columns, leaving
// registration and acceptance data untouched. The cascade job uses it so a
// concurrent registration is never overwritten.
func (r *SQLiteParticipantRepo) UpdateTimings(ctx context.Context, p *domain.Participant) error {
	query := `UPDATE flow_participants SET must_be_registered_from = ?, accept_stage_starts_at = ?,
		must_accept_children_from = ?, notification_sent = ?, notify_about_accept_sent = ?, updated_at = ?
		WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query,
		formatTime(p.MustBeRegisteredFrom),
		formatTime(p.AcceptStageStartsAt),
		nullableTimeToString(p.MustAcceptChildrenFrom),
		nullableTimeToString(p.NotificationSent),
		nullableTimeToString(p.NotifyAboutAcceptSent),
		formatTime(p.UpdatedAt),
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("updating participant timings: %w", err)
	}
	return expectOneRow(res, "participant")
}

func (r *SQLiteParticipantRepo) list(ctx context.Context, query string, args ...any) ([]*domain.Participant, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing participants: %w", err)
	}
	defer rows.Close()

	var out []*domain.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating participants: %w", err)
	}
	return out, nil
}

func scanParticipant(s scanner) (*domain.Participant, error) {
	var p domain.Participant
	var registered, deleted int
	var parentID, acceptedBy, inheritorOf, replacedBy sql.NullString
	var registeredAt, acceptedAt, mustAcceptFrom, notifSent, notifAcceptSent, deletedAt sql.NullString
	var override sql.NullInt64
	var mustFrom, acceptStart, createdAt, updatedAt string

	err := s.Scan(
		&p.ID, &p.FlowID, &p.UserID, &parentID, &p.Level, &p.Seq,
		&registered, &p.Referral.URL, &p.Referral.Name, &p.Referral.Login,
		&registeredAt, &acceptedAt, &acceptedBy,
		&mustFrom, &acceptStart, &mustAcceptFrom, &override,
		&notifSent, &notifAcceptSent,
		&deleted, &p.DeletedReason, &deletedAt, &inheritorOf, &replacedBy,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("participant: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("scanning participant: %w", err)
	}

	p.ParentID = parseNullableString(parentID)
	p.Registered = intToBool(registered)
	p.RegisteredAt = parseNullableTime(registeredAt)
	p.AcceptedAt = parseNullableTime(acceptedAt)
	p.AcceptedBy = parseNullableString(acceptedBy)
	p.MustAcceptChildrenFrom = parseNullableTime(mustAcceptFrom)
	p.AcceptTimeOverride = parseNullableMinutes(override)
	p.NotificationSent = parseNullableTime(notifSent)
	p.NotifyAboutAcceptSent = parseNullableTime(notifAcceptSent)
	p.Deleted = intToBool(deleted)
	p.DeletedAt = parseNullableTime(deletedAt)
	p.InheritorOf = parseNullableString(inheritorOf)
	p.ReplacedBy = parseNullableString(replacedBy)

	if p.MustBeRegisteredFrom, err = parseTime(mustFrom, "must_be_registered_from"); err != nil {
		return nil, err
	}
	if p.AcceptStageStartsAt, err = parseTime(acceptStart, "accept_stage_starts_at"); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseTime(createdAt, "created_at"); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt, "updated_at"); err != nil {
		return nil, err
	}
	return &p, nil
}
