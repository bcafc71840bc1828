package snapshot

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/koba/db-fixture/internal/schema"
)

// Metadata keys written by Save.
const (
	MetaID        = "id"
	MetaCreatedAt = "created_at"
)

// Snapshot is a data set restored from a snapshot file
type Snapshot struct {
	ID       string
	Metadata map[string]string
	Data     *schema.DataSet
}

// Save writes the data set, with its schema, to a new SQLite file at path.
// An existing file is replaced. The extra metadata is stored alongside the
// generated id and creation time.
func Save(ds *schema.DataSet, outputPath string, metadata map[string]string) (*Snapshot, error) {
	// Ensure output directory exists
	if dir := filepath.Dir(outputPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Remove existing snapshot file if it exists
	if _, err := os.Stat(outputPath); err == nil {
		if err := os.Remove(outputPath); err != nil {
			return nil, fmt.Errorf("failed to remove existing snapshot: %w", err)
		}
	}

	snapshotDB, err := sql.Open("sqlite", outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot database: %w", err)
	}
	defer snapshotDB.Close()

	if err := initializeSchema(snapshotDB); err != nil {
		return nil, fmt.Errorf("failed to initialize snapshot schema: %w", err)
	}

	snap := &Snapshot{
		ID:       uuid.NewString(),
		Metadata: make(map[string]string, len(metadata)+2),
		Data:     ds,
	}
	for key, value := range metadata {
		snap.Metadata[key] = value
	}
	snap.Metadata[MetaID] = snap.ID
	snap.Metadata[MetaCreatedAt] = time.Now().UTC().Format(time.RFC3339)

	tx, err := snapshotDB.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for key, value := range snap.Metadata {
		if _, err := tx.Exec("INSERT INTO metadata (key, value) VALUES (?, ?)", key, value); err != nil {
			return nil, fmt.Errorf("failed to insert metadata: %w", err)
		}
	}

	for position, table := range ds.Schema().Tables() {
		if err := saveTable(tx, position, table, ds.Rows(table.Name)); err != nil {
			return nil, fmt.Errorf("failed to snapshot table %s: %w", table.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return snap, nil
}

func saveTable(tx *sql.Tx, position int, table *schema.Table, rows []schema.Row) error {
	schemaJSON, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	_, err = tx.Exec(
		"INSERT INTO table_schemas (table_name, position, schema_json) VALUES (?, ?, ?)",
		table.Name,
		position,
		string(schemaJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert schema: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO table_data (table_name, row_json) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		rowJSON, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("failed to marshal row: %w", err)
		}

		if _, err := stmt.Exec(table.Name, string(rowJSON)); err != nil {
			return fmt.Errorf("failed to insert row: %w", err)
		}
	}

	return nil
}

// Load restores a snapshot written by Save. Whole numbers come back as
// int64 and other numbers as float64.
func Load(snapshotPath string) (*Snapshot, error) {
	if _, err := os.Stat(snapshotPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("snapshot file does not exist: %s", snapshotPath)
	}

	db, err := sql.Open("sqlite", snapshotPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}
	defer db.Close()

	if err := checkFormat(db); err != nil {
		return nil, err
	}

	snap := &Snapshot{Metadata: make(map[string]string)}

	if err := loadMetadata(db, snap.Metadata); err != nil {
		return nil, err
	}
	snap.ID = snap.Metadata[MetaID]

	s, err := loadSchema(db)
	if err != nil {
		return nil, err
	}

	snap.Data = schema.NewDataSet(s)
	for _, name := range s.TableNames() {
		rows, err := loadRows(db, name)
		if err != nil {
			return nil, err
		}
		if err := snap.Data.Append(name, rows...); err != nil {
			return nil, err
		}
	}

	return snap, nil
}

func loadMetadata(db *sql.DB, metadata map[string]string) error {
	rows, err := db.Query("SELECT key, value FROM metadata")
	if err != nil {
		return fmt.Errorf("failed to query metadata: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("failed to scan metadata: %w", err)
		}
		metadata[key] = value
	}
	return rows.Err()
}

func loadSchema(db *sql.DB) (*schema.Schema, error) {
	rows, err := db.Query("SELECT schema_json FROM table_schemas ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("failed to query table schemas: %w", err)
	}
	defer rows.Close()

	var tables []*schema.Table
	for rows.Next() {
		var schemaJSON string
		if err := rows.Scan(&schemaJSON); err != nil {
			return nil, fmt.Errorf("failed to scan table schema: %w", err)
		}

		var table schema.Table
		if err := json.Unmarshal([]byte(schemaJSON), &table); err != nil {
			return nil, fmt.Errorf("failed to unmarshal schema: %w", err)
		}
		tables = append(tables, &table)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return schema.New(tables...)
}

func loadRows(db *sql.DB, tableName string) ([]schema.Row, error) {
	dataRows, err := db.Query("SELECT row_json FROM table_data WHERE table_name = ? ORDER BY id", tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query table data: %w", err)
	}
	defer dataRows.Close()

	var rows []schema.Row
	for dataRows.Next() {
		var rowJSON string
		if err := dataRows.Scan(&rowJSON); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		dec := json.NewDecoder(bytes.NewReader([]byte(rowJSON)))
		dec.UseNumber()

		var row schema.Row
		if err := dec.Decode(&row); err != nil {
			return nil, fmt.Errorf("failed to unmarshal row: %w", err)
		}
		for col, value := range row {
			if n, ok := value.(json.Number); ok {
				row[col] = number(n)
			}
		}
		rows = append(rows, row)
	}

	return rows, dataRows.Err()
}

func number(n json.Number) interface{} {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
