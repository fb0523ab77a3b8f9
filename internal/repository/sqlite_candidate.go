package repository

import (
	"context"
	"fmt"

	"github.com/alexanderramin/treeflow/internal/db"
	"github.com/alexanderramin/treeflow/internal/domain"
)

// SQLiteCandidateRepo implements CandidateRepo using a SQLite database.
type SQLiteCandidateRepo struct {
	db db.DBTX
}

func NewSQLiteCandidateRepo(conn db.DBTX) *SQLiteCandidateRepo {
	return &SQLiteCandidateRepo{db: conn}
}

// Add appends a user to the project's pool. A zero Position is assigned the
// next free position.
func (r *SQLiteCandidateRepo) Add(ctx context.Context, c *domain.Candidate) error {
	if c.Position == 0 {
		var next int
		err := r.db.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position), 0) + 1 FROM project_candidates WHERE project_id = ?`,
			c.ProjectID,
		).Scan(&next)
		if err != nil {
			return fmt.Errorf("reading next candidate position: %w", err)
		}
		c.Position = next
	}
	query := `INSERT INTO project_candidates (project_id, user_id, position, created_at) VALUES (?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, c.ProjectID, c.UserID, c.Position, formatTime(c.CreatedAt)); err != nil {
		return fmt.Errorf("inserting candidate: %w", err)
	}
	return nil
}

func (r *SQLiteCandidateRepo) ListByProject(ctx context.Context, projectID string) ([]*domain.Candidate, error) {
	query := `SELECT project_id, user_id, position, created_at FROM project_candidates
		WHERE project_id = ? ORDER BY position, created_at`
	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing candidates: %w", err)
	}
	defer rows.Close()

	var out []*domain.Candidate
	for rows.Next() {
		var c domain.Candidate
		var createdAt string
		if err := rows.Scan(&c.ProjectID, &c.UserID, &c.Position, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning candidate: %w", err)
		}
		if c.CreatedAt, err = parseTime(createdAt, "created_at"); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating candidates: %w", err)
	}
	return out, nil
}

func (r *SQLiteCandidateRepo) Remove(ctx context.Context, projectID, userID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM project_candidates WHERE project_id = ? AND user_id = ?`, projectID, userID)
	if err != nil {
		return fmt.Errorf("deleting candidate: %w", err)
	}
	return expectOneRow(res, "candidate")
}
