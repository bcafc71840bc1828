package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/koba/db-fixture/internal/schema"
)

// sqliteIntrospector reads table descriptions through PRAGMA statements
type sqliteIntrospector struct {
	db *sqlx.DB
}

func (s *sqliteIntrospector) tableNames(ctx context.Context) ([]string, error) {
	query := `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`
	var tables []string
	if err := s.db.SelectContext(ctx, &tables, query); err != nil {
		return nil, err
	}
	return tables, nil
}

func quoteSQLite(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (s *sqliteIntrospector) table(ctx context.Context, name string) (*schema.Table, error) {
	columns, primaryKey, err := s.columns(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, &schema.UnknownTableError{Table: name}
	}

	t := &schema.Table{Name: name, Columns: columns, PrimaryKey: primaryKey}

	// A lone INTEGER PRIMARY KEY aliases the rowid and is assigned on insert.
	if len(t.PrimaryKey) == 1 {
		for i := range t.Columns {
			if t.Columns[i].Name == t.PrimaryKey[0] && strings.EqualFold(t.Columns[i].Type, "INTEGER") {
				t.Columns[i].Identity = true
			}
		}
	}

	if t.ForeignKeys, err = s.getForeignKeys(ctx, name, t.PrimaryKey); err != nil {
		return nil, err
	}

	return t, nil
}

// columns reads PRAGMA table_info and returns the columns in ordinal order
// and the primary key in key order.
func (s *sqliteIntrospector) columns(ctx context.Context, name string) ([]schema.Column, []string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteSQLite(name)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get columns: %w", err)
	}
	defer rows.Close()

	var columns []schema.Column
	var primaryKey []string
	keyPosition := make(map[string]int)
	for rows.Next() {
		var cid, notNull, pk int
		var col schema.Column
		var defaultValue sql.NullString

		if err := rows.Scan(&cid, &col.Name, &col.Type, &notNull, &defaultValue, &pk); err != nil {
			return nil, nil, fmt.Errorf("failed to scan column: %w", err)
		}

		col.Nullable = notNull == 0 && pk == 0
		if pk > 0 {
			keyPosition[col.Name] = pk
			primaryKey = append(primaryKey, col.Name)
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	// pk holds the 1-based position of the column within the key.
	sort.SliceStable(primaryKey, func(i, j int) bool {
		return keyPosition[primaryKey[i]] < keyPosition[primaryKey[j]]
	})
	return columns, primaryKey, nil
}

// primaryKey returns the key columns of name without reading its foreign keys.
func (s *sqliteIntrospector) primaryKey(ctx context.Context, name string) ([]string, error) {
	columns, primaryKey, err := s.columns(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, &schema.UnknownTableError{Table: name}
	}
	return primaryKey, nil
}

func (s *sqliteIntrospector) getForeignKeys(ctx context.Context, name string, primaryKey []string) ([]schema.ForeignKey, error) {
	type reference struct {
		id, seq            int
		refTable, from     string
		to                 sql.NullString
		onUpdate, onDelete string
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%s)", quoteSQLite(name)))
	if err != nil {
		return nil, fmt.Errorf("failed to get foreign keys: %w", err)
	}

	var refs []reference
	for rows.Next() {
		var ref reference
		var match string

		if err := rows.Scan(&ref.id, &ref.seq, &ref.refTable, &ref.from, &ref.to, &ref.onUpdate, &ref.onDelete, &match); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan foreign key: %w", err)
		}
		refs = append(refs, ref)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	parentKeys := map[string][]string{name: primaryKey}
	var foreignKeys []schema.ForeignKey
	for _, ref := range refs {
		// REFERENCES without a column list targets the parent's primary key.
		to := ref.to.String
		if !ref.to.Valid {
			key, ok := parentKeys[ref.refTable]
			if !ok {
				if key, err = s.primaryKey(ctx, ref.refTable); err != nil {
					return nil, err
				}
				parentKeys[ref.refTable] = key
			}
			if ref.seq >= len(key) {
				return nil, fmt.Errorf("foreign key on %s does not match the primary key of %s", ref.from, ref.refTable)
			}
			to = key[ref.seq]
		}

		foreignKeys = appendForeignKeyColumn(foreignKeys, fmt.Sprintf("fk_%d", ref.id), ref.from, ref.refTable, to, ref.onDelete, ref.onUpdate)
	}

	return foreignKeys, nil
}
