package db

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)

	// OpenDB already migrated once; replaying must be a no-op.
	require.NoError(t, Migrate(db))
	require.NoError(t, Migrate(db))
}

func TestMigrate_CreatesAllTables(t *testing.T) {
	db := openTestDB(t)

	expected := []string{"projects", "users", "project_candidates", "flows", "flow_participants", "jobs", "notifications"}
	for _, table := range expected {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_CreatesIndexes(t *testing.T) {
	db := openTestDB(t)

	expected := []string{
		"idx_projects_short_id",
		"idx_flows_project",
		"idx_participants_flow",
		"idx_participants_parent",
		"idx_participants_flow_seq",
		"idx_jobs_status_available",
		"idx_notifications_participant",
	}
	for _, idx := range expected {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='index' AND name=?`, idx).Scan(&name)
		require.NoError(t, err, "index %s should exist", idx)
	}
}

func TestMigrate_ForeignKeysEnabled(t *testing.T) {
	db := openTestDB(t)

	var fk int
	require.NoError(t, db.QueryRow(`PRAGMA foreign_keys`).Scan(&fk))
	assert.Equal(t, 1, fk, "foreign keys should be enabled")
}

func TestMigrate_FlowsLevelOffsetsColumn(t *testing.T) {
	db := openTestDB(t)

	rows, err := db.Query(`PRAGMA table_info(flows)`)
	require.NoError(t, err)
	defer rows.Close()

	found := false
	for rows.Next() {
		var cid int
		var name, typ string
		var notNull, pk int
		var dflt sql.NullString
		require.NoError(t, rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk))
		if name == "level_offsets" {
			found = true
		}
	}
	assert.True(t, found, "flows table should have level_offsets column")
}

func TestMigrate_FlowCheckConstraints(t *testing.T) {
	db := openTestDB(t)

	_, err := db.Exec(`INSERT INTO projects (id, name, created_at, updated_at)
		VALUES ('p1', 'Test', '2026-01-01T00:00:00.000Z', '2026-01-01T00:00:00.000Z')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO users (id, name, created_at) VALUES ('u1', 'Lead', '2026-01-01T00:00:00.000Z')`)
	require.NoError(t, err)

	insert := `INSERT INTO flows (id, project_id, leader_id, registration_type, must_be_registered_from,
		time_for_registration_min, time_for_accept_min, created_at, updated_at)
		VALUES (?, 'p1', 'u1', ?, '2026-01-01T00:00:00.000Z', ?, 60, '2026-01-01T00:00:00.000Z', '2026-01-01T00:00:00.000Z')`

	_, err = db.Exec(insert, "f1", "four_children_tree", 60)
	assert.Error(t, err, "unknown registration type should be rejected")

	_, err = db.Exec(insert, "f2", "one_child_tree", 0)
	assert.Error(t, err, "zero registration time should be rejected")

	_, err = db.Exec(insert, "f3", "two_children_tree", 120)
	assert.NoError(t, err)
}
