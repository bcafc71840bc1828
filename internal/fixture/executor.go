package fixture

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/koba/db-fixture/internal/operation"
)

// PerformOperation writes the working data set to the database. The whole
// operation, hooks included, runs on one connection in one transaction that
// commits only if every step succeeds. On failure the transaction is rolled
// back and the failure is returned as produced.
func (f *Fixture) PerformOperation(ctx context.Context, kind operation.Kind) error {
	if err := f.checkInitialized("PerformOperation"); err != nil {
		return err
	}
	if kind == operation.None {
		return nil
	}
	if err := f.builder.Build(); err != nil {
		return err
	}

	conn, err := f.db.Connx(ctx)
	if err != nil {
		return &operation.OperationError{Op: kind, Err: err}
	}
	defer conn.Close()

	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return &operation.OperationError{Op: kind, Err: err}
	}

	if err := f.run(ctx, kind, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			f.logger.WarnContext(ctx, "rollback failed", "operation", kind.String(), "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return &operation.OperationError{Op: kind, Err: err}
	}

	f.logger.DebugContext(ctx, "operation committed", "operation", kind.String(), "rows", f.data.Len())
	return nil
}

func (f *Fixture) run(ctx context.Context, kind operation.Kind, tx *sqlx.Tx) error {
	e := Event{Kind: kind, Tx: tx}

	if err := notify(ctx, f.preHooks, e); err != nil {
		return err
	}
	if err := operation.Execute(ctx, f.op, kind, f.data, f.builder, tx); err != nil {
		return err
	}
	return notify(ctx, f.postHooks, e)
}
