package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/alexanderramin/treeflow/internal/db"
	clocktesting "k8s.io/utils/clock/testing"
)

// T0 is the reference instant used by fixtures and fake clocks.
var T0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// NewTestDB creates an in-memory SQLite database with all migrations applied.
// The database is closed when the test completes.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.OpenDB(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	return database
}

// NewFileTestDB creates a migrated database file in a temp directory. Unlike
// :memory:, every pooled connection sees the same data, so concurrent writers
// really contend for the SQLite lock.
func NewFileTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.OpenDB(filepath.Join(t.TempDir(), "treeflow.db"))
	if err != nil {
		t.Fatalf("failed to create file test database: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	return database
}

// NewTestUoW creates a UnitOfWork backed by the given test database.
func NewTestUoW(database *sql.DB) db.UnitOfWork {
	return db.NewSQLiteUnitOfWork(database)
}

// NewTestClock returns a fake clock frozen at T0.
func NewTestClock() *clocktesting.FakeClock {
	return clocktesting.NewFakeClock(T0)
}
