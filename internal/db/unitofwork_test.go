package db_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/alexanderramin/treeflow/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) (*sql.DB, *db.SQLiteUnitOfWork) {
	t.Helper()
	database, err := db.OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	_, err = database.Exec(`INSERT INTO users (id, name, created_at) VALUES ('seed', 'Seed', '2026-01-01T00:00:00.000Z')`)
	require.NoError(t, err)

	return database, db.NewSQLiteUnitOfWork(database)
}

func userExists(t *testing.T, database *sql.DB, id string) bool {
	t.Helper()
	var n int
	require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM users WHERE id = ?`, id).Scan(&n))
	return n > 0
}

func insertUser(ctx context.Context, tx db.DBTX, id string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO users (id, name, created_at) VALUES (?, ?, '2026-01-01T00:00:00.000Z')`, id, id)
	return err
}

func TestWithinTx_CommitOnSuccess(t *testing.T) {
	database, uow := openTestDB(t)

	err := uow.WithinTx(context.Background(), func(ctx context.Context, tx db.DBTX) error {
		return insertUser(ctx, tx, "u1")
	})
	require.NoError(t, err)

	assert.True(t, userExists(t, database, "u1"), "row should exist after commit")
}

func TestWithinTx_RollbackOnError(t *testing.T) {
	database, uow := openTestDB(t)

	err := uow.WithinTx(context.Background(), func(ctx context.Context, tx db.DBTX) error {
		if err := insertUser(ctx, tx, "u2"); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = 'seed'`); err != nil {
			return err
		}
		return fmt.Errorf("deliberate failure")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deliberate failure")

	assert.False(t, userExists(t, database, "u2"), "insert should be rolled back")
	assert.True(t, userExists(t, database, "seed"), "delete should be rolled back")
}

func TestWithinTx_RollbackOnPanic(t *testing.T) {
	database, uow := openTestDB(t)

	assert.Panics(t, func() {
		_ = uow.WithinTx(context.Background(), func(ctx context.Context, tx db.DBTX) error {
			_ = insertUser(ctx, tx, "u3")
			panic("boom")
		})
	})

	assert.False(t, userExists(t, database, "u3"), "row should not exist after panic rollback")
}

func TestAfterCommit_RunsOnlyAfterCommit(t *testing.T) {
	database, uow := openTestDB(t)

	var seen []bool
	err := uow.WithinTx(context.Background(), func(ctx context.Context, tx db.DBTX) error {
		db.AfterCommit(ctx, func() { seen = append(seen, userExists(t, database, "u4")) })
		assert.Empty(t, seen, "hook must wait for commit")
		return insertUser(ctx, tx, "u4")
	})
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, seen)
}

func TestAfterCommit_DroppedOnRollback(t *testing.T) {
	_, uow := openTestDB(t)

	ran := false
	err := uow.WithinTx(context.Background(), func(ctx context.Context, tx db.DBTX) error {
		db.AfterCommit(ctx, func() { ran = true })
		return fmt.Errorf("deliberate failure")
	})
	require.Error(t, err)
	assert.False(t, ran)
}

func TestAfterCommit_OutsideTxRunsAtOnce(t *testing.T) {
	ran := false
	db.AfterCommit(context.Background(), func() { ran = true })
	assert.True(t, ran)
}
