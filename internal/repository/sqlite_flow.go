package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alexanderramin/treeflow/internal/db"
	"github.com/alexanderramin/treeflow/internal/domain"
)

// SQLiteFlowRepo implements FlowRepo using a SQLite database.
type SQLiteFlowRepo struct {
	db db.DBTX
}

func NewSQLiteFlowRepo(conn db.DBTX) *SQLiteFlowRepo {
	return &SQLiteFlowRepo{db: conn}
}

const flowColumns = `id, project_id, leader_id, registration_type, how_much_users_in_one_group,
	must_be_registered_from, time_for_registration_min, time_for_accept_min, level_offsets,
	auto_continue, on_pause, comments, state, current_level, created_at, updated_at`

func (r *SQLiteFlowRepo) Create(ctx context.Context, f *domain.Flow) error {
	query := `INSERT INTO flows (` + flowColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		f.ID,
		f.ProjectID,
		f.LeaderID,
		string(f.RegistrationType),
		f.HowMuchUsersInOneGroup,
		formatTime(f.MustBeRegisteredFrom),
		minutes(f.TimeForRegistration),
		minutes(f.TimeForAccept),
		encodeOffsets(f.LevelOffsets),
		boolToInt(f.AutoContinue),
		boolToInt(f.OnPause),
		f.Comments,
		string(f.State),
		f.CurrentLevel,
		formatTime(f.CreatedAt),
		formatTime(f.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting flow: %w", err)
	}
	return nil
}

func (r *SQLiteFlowRepo) GetByID(ctx context.Context, id string) (*domain.Flow, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+flowColumns+` FROM flows WHERE id = ?`, id)
	return scanFlow(row)
}

// GetByProject returns the most recent flow of a project.
func (r *SQLiteFlowRepo) GetByProject(ctx context.Context, projectID string) (*domain.Flow, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+flowColumns+` FROM flows WHERE project_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		projectID)
	return scanFlow(row)
}

func (r *SQLiteFlowRepo) List(ctx context.Context) ([]*domain.Flow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+flowColumns+` FROM flows ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing flows: %w", err)
	}
	defer rows.Close()

	var flows []*domain.Flow
	for rows.Next() {
		f, err := scanFlow(rows)
		if err != nil {
			return nil, err
		}
		flows = append(flows, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating flows: %w", err)
	}
	return flows, nil
}

func (r *SQLiteFlowRepo) Update(ctx context.Context, f *domain.Flow) error {
	query := `UPDATE flows SET how_much_users_in_one_group = ?, must_be_registered_from = ?,
		time_for_registration_min = ?, time_for_accept_min = ?, level_offsets = ?,
		auto_continue = ?, on_pause = ?, comments = ?, state = ?, current_level = ?, updated_at = ?
		WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query,
		f.HowMuchUsersInOneGroup,
		formatTime(f.MustBeRegisteredFrom),
		minutes(f.TimeForRegistration),
		minutes(f.TimeForAccept),
		encodeOffsets(f.LevelOffsets),
		boolToInt(f.AutoContinue),
		boolToInt(f.OnPause),
		f.Comments,
		string(f.State),
		f.CurrentLevel,
		formatTime(f.UpdatedAt),
		f.ID,
	)
	if err != nil {
		return fmt.Errorf("updating flow: %w", err)
	}
	return expectOneRow(res, "flow")
}

func scanFlow(s scanner) (*domain.Flow, error) {
	var f domain.Flow
	var regType, mustFrom, offsets, state, createdAt, updatedAt string
	var regMin, acceptMin int64
	var autoContinue, onPause int
	err := s.Scan(
		&f.ID, &f.ProjectID, &f.LeaderID, &regType, &f.HowMuchUsersInOneGroup,
		&mustFrom, &regMin, &acceptMin, &offsets,
		&autoContinue, &onPause, &f.Comments, &state, &f.CurrentLevel,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("flow: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("scanning flow: %w", err)
	}

	f.RegistrationType = domain.RegistrationType(regType)
	f.State = domain.FlowState(state)
	f.TimeForRegistration = fromMinutes(regMin)
	f.TimeForAccept = fromMinutes(acceptMin)
	f.AutoContinue = intToBool(autoContinue)
	f.OnPause = intToBool(onPause)

	if f.LevelOffsets, err = decodeOffsets(offsets); err != nil {
		return nil, err
	}
	if f.MustBeRegisteredFrom, err = parseTime(mustFrom, "must_be_registered_from"); err != nil {
		return nil, err
	}
	if f.CreatedAt, err = parseTime(createdAt, "created_at"); err != nil {
		return nil, err
	}
	if f.UpdatedAt, err = parseTime(updatedAt, "updated_at"); err != nil {
		return nil, err
	}
	return &f, nil
}
