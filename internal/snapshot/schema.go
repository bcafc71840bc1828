package snapshot

import (
	"database/sql"
	"fmt"
)

// formatVersion is stored in the user_version pragma of every snapshot file.
const formatVersion = 1

// layout holds string metadata, one schema document per table in
// declaration order, and every row as a JSON object in data order.
var layout = []string{
	`CREATE TABLE metadata (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
	`CREATE TABLE table_schemas (
		table_name  TEXT PRIMARY KEY,
		position    INTEGER NOT NULL UNIQUE,
		schema_json TEXT NOT NULL
	)`,
	`CREATE TABLE table_data (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		table_name TEXT NOT NULL,
		row_json   TEXT NOT NULL
	)`,
	`CREATE INDEX table_data_by_table ON table_data(table_name, id)`,
	fmt.Sprintf("PRAGMA user_version = %d", formatVersion),
}

func initializeSchema(db *sql.DB) error {
	for _, stmt := range layout {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// checkFormat rejects files that were not written by Save.
func checkFormat(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read snapshot format: %w", err)
	}
	if version != formatVersion {
		return fmt.Errorf("not a snapshot file (format %d, want %d)", version, formatVersion)
	}
	return nil
}
