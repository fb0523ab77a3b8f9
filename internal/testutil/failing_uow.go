package testutil

import (
	"context"
	"database/sql"
	"sync/atomic"

	"github.com/alexanderramin/treeflow/internal/db"
)

// FailOnNthExecUoW is a test UoW that injects an error on the Nth ExecContext
// call within a transaction. Rollback tests use it to break a multi-write
// action (remove + inheritor + re-time) at a precise step.
//
// ExecContext calls are counted starting at 1 across every transaction the
// UoW opens. Reads pass through uncounted. Calls records how many writes
// were attempted, so a test can first measure an action and then fail each
// of its steps in turn.
type FailOnNthExecUoW struct {
	DB     *sql.DB
	FailOn int32
	Err    error

	Calls atomic.Int32
}

func (u *FailOnNthExecUoW) WithinTx(ctx context.Context, fn func(ctx context.Context, tx db.DBTX) error) error {
	return db.NewSQLiteUnitOfWork(u.DB).WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		return fn(ctx, &failOnNthExec{DBTX: tx, uow: u})
	})
}

type failOnNthExec struct {
	db.DBTX
	uow *FailOnNthExecUoW
}

func (f *failOnNthExec) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	n := f.uow.Calls.Add(1)
	if n == f.uow.FailOn {
		return nil, f.uow.Err
	}
	return f.DBTX.ExecContext(ctx, query, args...)
}
