package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/koba/db-fixture/internal/schema"
)

// mysqlIntrospector reads table descriptions from information_schema
type mysqlIntrospector struct {
	db *sqlx.DB
}

func (m *mysqlIntrospector) tableNames(ctx context.Context) ([]string, error) {
	query := `
		SELECT TABLE_NAME
		FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME
	`
	var tables []string
	if err := m.db.SelectContext(ctx, &tables, query); err != nil {
		return nil, err
	}
	return tables, nil
}

func (m *mysqlIntrospector) table(ctx context.Context, name string) (*schema.Table, error) {
	t := &schema.Table{Name: name}

	columns, err := m.getColumns(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, &schema.UnknownTableError{Table: name}
	}
	t.Columns = columns

	query := `
		SELECT COLUMN_NAME
		FROM information_schema.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND CONSTRAINT_NAME = 'PRIMARY'
		ORDER BY ORDINAL_POSITION
	`
	if err := m.db.SelectContext(ctx, &t.PrimaryKey, query, name); err != nil {
		return nil, fmt.Errorf("failed to get primary key: %w", err)
	}

	if t.ForeignKeys, err = m.getForeignKeys(ctx, name); err != nil {
		return nil, err
	}

	return t, nil
}

func (m *mysqlIntrospector) getColumns(ctx context.Context, tableName string) ([]schema.Column, error) {
	query := `
		SELECT
			COLUMN_NAME,
			COLUMN_TYPE,
			IS_NULLABLE,
			EXTRA
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`
	rows, err := m.db.QueryContext(ctx, query, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	defer rows.Close()

	var columns []schema.Column
	for rows.Next() {
		var col schema.Column
		var nullable, extra string

		if err := rows.Scan(&col.Name, &col.Type, &nullable, &extra); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}

		col.Nullable = (nullable == "YES")
		col.Identity = strings.Contains(strings.ToLower(extra), "auto_increment")

		columns = append(columns, col)
	}

	return columns, rows.Err()
}

func (m *mysqlIntrospector) getForeignKeys(ctx context.Context, tableName string) ([]schema.ForeignKey, error) {
	query := `
		SELECT
			k.CONSTRAINT_NAME,
			k.COLUMN_NAME,
			k.REFERENCED_TABLE_NAME,
			k.REFERENCED_COLUMN_NAME,
			r.DELETE_RULE,
			r.UPDATE_RULE
		FROM information_schema.KEY_COLUMN_USAGE k
		JOIN information_schema.REFERENTIAL_CONSTRAINTS r
			ON r.CONSTRAINT_SCHEMA = k.TABLE_SCHEMA
			AND r.CONSTRAINT_NAME = k.CONSTRAINT_NAME
		WHERE k.TABLE_SCHEMA = DATABASE() AND k.TABLE_NAME = ? AND k.REFERENCED_TABLE_NAME IS NOT NULL
		ORDER BY k.CONSTRAINT_NAME, k.ORDINAL_POSITION
	`
	rows, err := m.db.QueryContext(ctx, query, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to get foreign keys: %w", err)
	}
	defer rows.Close()

	var foreignKeys []schema.ForeignKey
	for rows.Next() {
		var name, column, refTable, refColumn, onDelete, onUpdate string

		if err := rows.Scan(&name, &column, &refTable, &refColumn, &onDelete, &onUpdate); err != nil {
			return nil, fmt.Errorf("failed to scan foreign key: %w", err)
		}

		foreignKeys = appendForeignKeyColumn(foreignKeys, name, column, refTable, refColumn, onDelete, onUpdate)
	}

	return foreignKeys, rows.Err()
}
