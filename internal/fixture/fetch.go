package fixture

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/koba/db-fixture/internal/command"
	"github.com/koba/db-fixture/internal/schema"
)

// FetchFromDatabase reads the named tables, or every table of the schema,
// into a new data set shaped by the schema. All names are checked before
// the database is queried.
func (f *Fixture) FetchFromDatabase(ctx context.Context, tables ...string) (*schema.DataSet, error) {
	if err := f.checkInitialized("FetchFromDatabase"); err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		tables = f.schema.TableNames()
	}

	var selected []*schema.Table
	seen := make(map[string]bool, len(tables))
	for _, name := range tables {
		t, err := f.schema.MustTable(name)
		if err != nil {
			return nil, err
		}
		if !seen[name] {
			seen[name] = true
			selected = append(selected, t)
		}
	}

	conn, err := f.db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	ds := f.data.Clone()
	for _, t := range selected {
		if err := f.fetchTable(ctx, conn, t, ds); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

func (f *Fixture) fetchTable(ctx context.Context, conn *sqlx.Conn, t *schema.Table, ds *schema.DataSet) error {
	tmpl, err := f.builder.Template(t.Name, command.Select)
	if err != nil {
		return err
	}

	rows, err := conn.QueryxContext(ctx, tmpl.SQL)
	if err != nil {
		return fmt.Errorf("failed to query table %s: %w", t.Name, err)
	}
	defer rows.Close()

	// The select lists the columns in declared order, so values are matched
	// by position and not by the names the driver reports.
	var fetched []schema.Row
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return fmt.Errorf("failed to scan row of %s: %w", t.Name, err)
		}

		row := make(schema.Row, len(t.Columns))
		for i, col := range t.Columns {
			if b, ok := values[i].([]byte); ok {
				row[col.Name] = string(b)
			} else {
				row[col.Name] = values[i]
			}
		}
		fetched = append(fetched, row)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read table %s: %w", t.Name, err)
	}

	f.logger.DebugContext(ctx, "table fetched", "table", t.Name, "rows", len(fetched))
	return ds.Append(t.Name, fetched...)
}
