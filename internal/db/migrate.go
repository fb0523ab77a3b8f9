package db

import (
	"database/sql"
	"fmt"
	"strings"
)

// Migrate runs all schema migrations. Statements are idempotent so the
// whole list is replayed on every open.
func Migrate(db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			// Tolerate "duplicate column name" errors from ALTER TABLE
			// since the migration system re-runs all statements.
			if strings.Contains(err.Error(), "duplicate column name") {
				continue
			}
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS projects (
		id         TEXT PRIMARY KEY,
		short_id   TEXT NOT NULL DEFAULT '',
		name       TEXT NOT NULL,
		status     TEXT NOT NULL DEFAULT 'accepted'
		           CHECK(status IN ('accepted','flow_registration','registration_completed')),
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_projects_short_id ON projects(short_id) WHERE short_id != ''`,

	`CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		email      TEXT NOT NULL DEFAULT '',
		is_admin   INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS project_candidates (
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		position   INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (project_id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS flows (
		id                          TEXT PRIMARY KEY,
		project_id                  TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		leader_id                   TEXT NOT NULL REFERENCES users(id),
		registration_type           TEXT NOT NULL
		                            CHECK(registration_type IN ('one_child_tree','two_children_tree','three_children_tree')),
		how_much_users_in_one_group INTEGER NOT NULL DEFAULT 0,
		must_be_registered_from     TEXT NOT NULL,
		time_for_registration_min   INTEGER NOT NULL CHECK(time_for_registration_min > 0),
		time_for_accept_min         INTEGER NOT NULL CHECK(time_for_accept_min > 0),
		auto_continue               INTEGER NOT NULL DEFAULT 0,
		on_pause                    INTEGER NOT NULL DEFAULT 0,
		comments                    TEXT NOT NULL DEFAULT '',
		state                       TEXT NOT NULL DEFAULT 'awaiting_registration'
		                            CHECK(state IN ('awaiting_registration','registration_open','accept_pending','paused','completed')),
		current_level               INTEGER NOT NULL DEFAULT 0,
		created_at                  TEXT NOT NULL,
		updated_at                  TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_flows_project ON flows(project_id)`,

	`CREATE TABLE IF NOT EXISTS flow_participants (
		id                        TEXT PRIMARY KEY,
		flow_id                   TEXT NOT NULL REFERENCES flows(id) ON DELETE CASCADE,
		user_id                   TEXT NOT NULL REFERENCES users(id),
		parent_id                 TEXT REFERENCES flow_participants(id),
		level                     INTEGER NOT NULL CHECK(level >= 0),
		seq                       INTEGER NOT NULL,
		registered                INTEGER NOT NULL DEFAULT 0,
		referral_url              TEXT NOT NULL DEFAULT '',
		referral_name             TEXT NOT NULL DEFAULT '',
		referral_login            TEXT NOT NULL DEFAULT '',
		registered_at             TEXT,
		accepted_at               TEXT,
		accepted_by               TEXT,
		must_be_registered_from   TEXT NOT NULL,
		accept_stage_starts_at    TEXT NOT NULL,
		must_accept_children_from TEXT,
		accept_time_override_min  INTEGER,
		notification_sent         TEXT,
		notify_about_accept_sent  TEXT,
		deleted                   INTEGER NOT NULL DEFAULT 0,
		deleted_reason            TEXT NOT NULL DEFAULT '',
		deleted_at                TEXT,
		inheritor_of              TEXT,
		replaced_by               TEXT,
		created_at                TEXT NOT NULL,
		updated_at                TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_participants_flow ON flow_participants(flow_id)`,
	`CREATE INDEX IF NOT EXISTS idx_participants_parent ON flow_participants(parent_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_participants_flow_seq ON flow_participants(flow_id, seq)`,

	`CREATE TABLE IF NOT EXISTS jobs (
		id           TEXT PRIMARY KEY,
		kind         TEXT NOT NULL CHECK(kind IN ('cascade')),
		flow_id      TEXT NOT NULL REFERENCES flows(id) ON DELETE CASCADE,
		status       TEXT NOT NULL DEFAULT 'pending'
		             CHECK(status IN ('pending','running','done','failed')),
		attempts     INTEGER NOT NULL DEFAULT 0,
		last_error   TEXT NOT NULL DEFAULT '',
		available_at TEXT NOT NULL,
		created_at   TEXT NOT NULL,
		updated_at   TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_status_available ON jobs(status, available_at)`,

	`CREATE TABLE IF NOT EXISTS notifications (
		id             TEXT PRIMARY KEY,
		flow_id        TEXT NOT NULL REFERENCES flows(id) ON DELETE CASCADE,
		participant_id TEXT NOT NULL REFERENCES flow_participants(id) ON DELETE CASCADE,
		user_id        TEXT NOT NULL,
		kind           TEXT NOT NULL CHECK(kind IN ('registration-open','accept-time-updated')),
		created_at     TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_participant ON notifications(participant_id)`,

	// Per-level registration offsets, stored as comma-separated minutes.
	`ALTER TABLE flows ADD COLUMN level_offsets TEXT NOT NULL DEFAULT ''`,
}
