package operation

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/koba/db-fixture/internal/command"
	"github.com/koba/db-fixture/internal/schema"
)

// Execer runs a parameterized statement. *sql.Tx, *sqlx.Tx and *sql.DB all
// satisfy it.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Operation applies the rows of a data set to a database using a builder's
// templates. Implementations run every statement on tx and never commit.
type Operation interface {
	Insert(ctx context.Context, ds *schema.DataSet, b *command.Builder, tx Execer) error
	InsertIdentity(ctx context.Context, ds *schema.DataSet, b *command.Builder, tx Execer) error
	Delete(ctx context.Context, ds *schema.DataSet, b *command.Builder, tx Execer) error
	DeleteAll(ctx context.Context, b *command.Builder, tx Execer) error
	Update(ctx context.Context, ds *schema.DataSet, b *command.Builder, tx Execer) error
	Refresh(ctx context.Context, ds *schema.DataSet, b *command.Builder, tx Execer) error
}

// New returns the operation set for a dialect name as reported by
// database.Dialect.
func New(dialect string, logger *slog.Logger) Operation {
	generic := NewGeneric(logger)
	if dialect == "postgres" {
		return &Postgres{Generic: generic}
	}
	return generic
}

// Execute dispatches kind to op. Clean kinds run DeleteAll and then the
// insert on the same tx.
func Execute(ctx context.Context, op Operation, kind Kind, ds *schema.DataSet, b *command.Builder, tx Execer) error {
	switch kind {
	case None:
		return nil
	case Insert:
		return op.Insert(ctx, ds, b, tx)
	case InsertIdentity:
		return op.InsertIdentity(ctx, ds, b, tx)
	case Delete:
		return op.Delete(ctx, ds, b, tx)
	case DeleteAll:
		return op.DeleteAll(ctx, b, tx)
	case Update:
		return op.Update(ctx, ds, b, tx)
	case Refresh:
		return op.Refresh(ctx, ds, b, tx)
	case CleanInsert:
		if err := op.DeleteAll(ctx, b, tx); err != nil {
			return err
		}
		return op.Insert(ctx, ds, b, tx)
	case CleanInsertIdentity:
		if err := op.DeleteAll(ctx, b, tx); err != nil {
			return err
		}
		return op.InsertIdentity(ctx, ds, b, tx)
	default:
		return fmt.Errorf("unknown operation: %s", kind)
	}
}

// Generic implements Operation with plain per-row statements, which every
// supported database accepts.
type Generic struct {
	logger *slog.Logger
}

// NewGeneric creates the generic operation set. A nil logger means
// slog.Default().
func NewGeneric(logger *slog.Logger) *Generic {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generic{logger: logger}
}

// Insert adds every row, parents first, leaving identity columns to the
// database.
func (g *Generic) Insert(ctx context.Context, ds *schema.DataSet, b *command.Builder, tx Execer) error {
	return g.eachRow(ctx, Insert, command.Insert, ds, b, tx, false)
}

// InsertIdentity adds every row, parents first, with identity values taken
// from the data set.
func (g *Generic) InsertIdentity(ctx context.Context, ds *schema.DataSet, b *command.Builder, tx Execer) error {
	return g.eachRow(ctx, InsertIdentity, command.InsertIdentity, ds, b, tx, false)
}

// Delete removes every row by primary key, children first.
func (g *Generic) Delete(ctx context.Context, ds *schema.DataSet, b *command.Builder, tx Execer) error {
	return g.eachRow(ctx, Delete, command.Delete, ds, b, tx, true)
}

// Update rewrites the non-key columns of every row by primary key.
func (g *Generic) Update(ctx context.Context, ds *schema.DataSet, b *command.Builder, tx Execer) error {
	return g.eachRow(ctx, Update, command.Update, ds, b, tx, false)
}

// DeleteAll empties every table of the schema, children first.
func (g *Generic) DeleteAll(ctx context.Context, b *command.Builder, tx Execer) error {
	order, err := b.Order()
	if err != nil {
		return err
	}

	for _, table := range schema.Reverse(order) {
		tmpl, err := b.Template(table, command.DeleteAll)
		if err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx, tmpl.SQL)
		if err != nil {
			return &OperationError{Op: DeleteAll, Table: table, Statement: tmpl.SQL, Err: err}
		}
		if n, err := result.RowsAffected(); err == nil {
			g.logger.DebugContext(ctx, "table emptied", "table", table, "rows", n)
		}
	}
	return nil
}

// Refresh updates each row by key and inserts it, identity included, when
// the update matched nothing.
func (g *Generic) Refresh(ctx context.Context, ds *schema.DataSet, b *command.Builder, tx Execer) error {
	order, err := b.Order()
	if err != nil {
		return err
	}

	for _, table := range order {
		rows := ds.Rows(table)
		if len(rows) == 0 {
			continue
		}
		update, err := b.Template(table, command.Update)
		if err != nil {
			return err
		}
		insert, err := b.Template(table, command.InsertIdentity)
		if err != nil {
			return err
		}

		var updated, inserted int
		for _, row := range rows {
			result, err := tx.ExecContext(ctx, update.SQL, update.Args(row)...)
			if err != nil {
				return &OperationError{Op: Refresh, Table: table, Statement: update.SQL, Err: err}
			}
			n, err := result.RowsAffected()
			if err != nil {
				return &OperationError{Op: Refresh, Table: table, Statement: update.SQL, Err: err}
			}
			if n > 0 {
				updated++
				continue
			}

			if _, err := tx.ExecContext(ctx, insert.SQL, insert.Args(row)...); err != nil {
				return &OperationError{Op: Refresh, Table: table, Statement: insert.SQL, Err: err}
			}
			inserted++
		}
		g.logger.DebugContext(ctx, "table refreshed", "table", table, "updated", updated, "inserted", inserted)
	}
	return nil
}

// eachRow runs the template of kind once per row of every table holding
// rows, in dependency order or reversed.
func (g *Generic) eachRow(ctx context.Context, op Kind, kind command.Kind, ds *schema.DataSet, b *command.Builder, tx Execer, reverse bool) error {
	order, err := b.Order()
	if err != nil {
		return err
	}
	if reverse {
		order = schema.Reverse(order)
	}

	for _, table := range order {
		rows := ds.Rows(table)
		if len(rows) == 0 {
			continue
		}
		tmpl, err := b.Template(table, kind)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if _, err := tx.ExecContext(ctx, tmpl.SQL, tmpl.Args(row)...); err != nil {
				return &OperationError{Op: op, Table: table, Statement: tmpl.SQL, Err: err}
			}
		}
		g.logger.DebugContext(ctx, "statements executed", "operation", op.String(), "table", table, "rows", len(rows))
	}
	return nil
}
