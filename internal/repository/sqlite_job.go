package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alexanderramin/treeflow/internal/db"
	"github.com/alexanderramin/treeflow/internal/domain"
)

// SQLiteJobRepo implements JobRepo on the jobs table. Claim is only safe
// when called inside a write transaction.
type SQLiteJobRepo struct {
	db db.DBTX
}

func NewSQLiteJobRepo(conn db.DBTX) *SQLiteJobRepo {
	return &SQLiteJobRepo{db: conn}
}

const jobColumns = `id, kind, flow_id, status, attempts, last_error, available_at, created_at, updated_at`

// Enqueue inserts j unless a pending job of the same kind already exists for
// the flow. A pending job reads flow state when it runs, so it already covers
// the new request; j then takes the existing job's id.
func (r *SQLiteJobRepo) Enqueue(ctx context.Context, j *domain.Job) error {
	var existing string
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM jobs WHERE kind = ? AND flow_id = ? AND status = 'pending' LIMIT 1`,
		string(j.Kind), j.FlowID,
	).Scan(&existing)
	switch {
	case err == nil:
		j.ID = existing
		return nil
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("checking pending jobs: %w", err)
	}

	if j.Status == "" {
		j.Status = domain.JobPending
	}
	query := `INSERT INTO jobs (` + jobColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		j.ID,
		string(j.Kind),
		j.FlowID,
		string(j.Status),
		j.Attempts,
		j.LastError,
		formatTime(j.AvailableAt),
		formatTime(j.CreatedAt),
		formatTime(j.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting job: %w", err)
	}
	return nil
}

// Claim marks the oldest due pending job as running and returns it.
// ErrNotFound means the queue has nothing due.
func (r *SQLiteJobRepo) Claim(ctx context.Context, now time.Time) (*domain.Job, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs
		WHERE status = 'pending' AND available_at <= ?
		ORDER BY available_at, created_at, id LIMIT 1`,
		formatTime(now))
	j, err := scanJob(row)
	if err != nil {
		return nil, err
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'running', attempts = attempts + 1, updated_at = ? WHERE id = ?`,
		formatTime(now), j.ID)
	if err != nil {
		return nil, fmt.Errorf("claiming job: %w", err)
	}
	j.Status = domain.JobRunning
	j.Attempts++
	j.UpdatedAt = now
	return j, nil
}

func (r *SQLiteJobRepo) Complete(ctx context.Context, id string, now time.Time) error {
	return r.setStatus(ctx, id, domain.JobDone, "", nil, now)
}

// Retry puts a failed attempt back on the queue, due at availableAt.
func (r *SQLiteJobRepo) Retry(ctx context.Context, id, lastErr string, availableAt, now time.Time) error {
	return r.setStatus(ctx, id, domain.JobPending, lastErr, &availableAt, now)
}

func (r *SQLiteJobRepo) Fail(ctx context.Context, id, lastErr string, now time.Time) error {
	return r.setStatus(ctx, id, domain.JobFailed, lastErr, nil, now)
}

func (r *SQLiteJobRepo) setStatus(ctx context.Context, id string, status domain.JobStatus, lastErr string, availableAt *time.Time, now time.Time) error {
	var res sql.Result
	var err error
	if availableAt != nil {
		res, err = r.db.ExecContext(ctx,
			`UPDATE jobs SET status = ?, last_error = ?, available_at = ?, updated_at = ? WHERE id = ?`,
			string(status), lastErr, formatTime(*availableAt), formatTime(now), id)
	} else {
		res, err = r.db.ExecContext(ctx,
			`UPDATE jobs SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`,
			string(status), lastErr, formatTime(now), id)
	}
	if err != nil {
		return fmt.Errorf("updating job %s: %w", id, err)
	}
	return expectOneRow(res, "job")
}

func (r *SQLiteJobRepo) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

func (r *SQLiteJobRepo) ListByFlow(ctx context.Context, flowID string) ([]*domain.Job, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE flow_id = ? ORDER BY created_at, id`, flowID)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var out []*domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating jobs: %w", err)
	}
	return out, nil
}

func scanJob(s scanner) (*domain.Job, error) {
	var j domain.Job
	var kind, status, availableAt, createdAt, updatedAt string
	err := s.Scan(&j.ID, &kind, &j.FlowID, &status, &j.Attempts, &j.LastError, &availableAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("job: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("scanning job: %w", err)
	}
	j.Kind = domain.JobKind(kind)
	j.Status = domain.JobStatus(status)
	if j.AvailableAt, err = parseTime(availableAt, "available_at"); err != nil {
		return nil, err
	}
	if j.CreatedAt, err = parseTime(createdAt, "created_at"); err != nil {
		return nil, err
	}
	if j.UpdatedAt, err = parseTime(updatedAt, "updated_at"); err != nil {
		return nil, err
	}
	return &j, nil
}
