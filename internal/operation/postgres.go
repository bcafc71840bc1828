package operation

import (
	"context"
	"fmt"
	"strings"

	"github.com/koba/db-fixture/internal/command"
	"github.com/koba/db-fixture/internal/schema"
)

// Postgres is the generic operation set plus sequence maintenance. Writing
// explicit identity values does not advance a serial column's sequence, so
// after every identity-preserving insert the sequence is moved to the
// column's maximum.
type Postgres struct {
	*Generic
}

// InsertIdentity inserts with identity values and then resets sequences.
func (p *Postgres) InsertIdentity(ctx context.Context, ds *schema.DataSet, b *command.Builder, tx Execer) error {
	if err := p.Generic.InsertIdentity(ctx, ds, b, tx); err != nil {
		return err
	}
	return p.resetSequences(ctx, InsertIdentity, ds, tx)
}

// Refresh may fall back to identity-preserving inserts, so it resets
// sequences too.
func (p *Postgres) Refresh(ctx context.Context, ds *schema.DataSet, b *command.Builder, tx Execer) error {
	if err := p.Generic.Refresh(ctx, ds, b, tx); err != nil {
		return err
	}
	return p.resetSequences(ctx, Refresh, ds, tx)
}

func (p *Postgres) resetSequences(ctx context.Context, op Kind, ds *schema.DataSet, tx Execer) error {
	for _, t := range ds.Schema().Tables() {
		if len(ds.Rows(t.Name)) == 0 {
			continue
		}
		for _, col := range t.IdentityColumns() {
			query := SequenceResetSQL(t.Name, col.Name)
			if _, err := tx.ExecContext(ctx, query); err != nil {
				return &OperationError{Op: op, Table: t.Name, Statement: query, Err: err}
			}
			p.logger.DebugContext(ctx, "sequence reset", "table", t.Name, "column", col.Name)
		}
	}
	return nil
}

// SequenceResetSQL moves the sequence owned by column to the column's
// current maximum. Columns without a sequence make setval a no-op.
func SequenceResetSQL(table, column string) string {
	quotedTable := pgIdentifier(table)
	return fmt.Sprintf(
		"SELECT setval(pg_get_serial_sequence(%s, %s), COALESCE(MAX(%s), 1)) FROM %s",
		pgLiteral(quotedTable),
		pgLiteral(column),
		pgIdentifier(column),
		quotedTable,
	)
}

func pgIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func pgLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
