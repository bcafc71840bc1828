package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/koba/db-fixture/internal/command"
	"github.com/koba/db-fixture/internal/schema"
)

// Config holds database connection configuration
type Config struct {
	Type        string // "mysql", "postgres", "pgx", "sqlite" or "sqlite3"
	URL         string // complete DSN, takes precedence over the parts below
	Host        string
	Port        string
	Database    string
	User        string
	Password    string
	Placeholder string // "?", "$", "@p" or ":"; defaults to the dialect's
}

// Dialect describes how to reach one database product
type Dialect struct {
	Name        string // "mysql", "postgres" or "sqlite"
	Driver      string // database/sql driver name
	DefaultPort string
	Placeholder squirrel.PlaceholderFormat
	EmptyInsert string // row constructor for an insert without columns
}

var dialects = map[string]Dialect{
	"mysql":    {Name: "mysql", Driver: "mysql", DefaultPort: "3306", Placeholder: squirrel.Question, EmptyInsert: command.EmptyValues},
	"postgres": {Name: "postgres", Driver: "postgres", DefaultPort: "5432", Placeholder: squirrel.Dollar, EmptyInsert: command.DefaultValues},
	"pgx":      {Name: "postgres", Driver: "pgx", DefaultPort: "5432", Placeholder: squirrel.Dollar, EmptyInsert: command.DefaultValues},
	"sqlite":   {Name: "sqlite", Driver: "sqlite", Placeholder: squirrel.Question, EmptyInsert: command.DefaultValues},
	"sqlite3":  {Name: "sqlite", Driver: "sqlite3", Placeholder: squirrel.Question, EmptyInsert: command.DefaultValues},
}

var aliases = map[string]string{
	"mysql":      "mysql",
	"mariadb":    "mysql",
	"postgres":   "postgres",
	"postgresql": "postgres",
	"pgx":        "pgx",
	"sqlite":     "sqlite",
	"sqlite3":    "sqlite3",
}

// SupportedTypes lists the accepted Config.Type values.
func SupportedTypes() []string {
	return []string{"mysql", "mariadb", "postgres", "postgresql", "pgx", "sqlite", "sqlite3"}
}

// LookupDialect resolves a database type, case-insensitively.
func LookupDialect(dbType string) (Dialect, error) {
	name, ok := aliases[strings.ToLower(dbType)]
	if !ok {
		return Dialect{}, fmt.Errorf("unsupported database type: %s", dbType)
	}
	return dialects[name], nil
}

// ParsePlaceholder maps a placeholder notation to its format.
func ParsePlaceholder(notation string) (squirrel.PlaceholderFormat, error) {
	switch notation {
	case "?":
		return squirrel.Question, nil
	case "$":
		return squirrel.Dollar, nil
	case "@p":
		return squirrel.AtP, nil
	case ":":
		return squirrel.Colon, nil
	default:
		return nil, fmt.Errorf("unsupported placeholder notation: %q", notation)
	}
}

// DSN builds the driver data source name for the configuration.
func (c Config) DSN() (string, error) {
	d, err := LookupDialect(c.Type)
	if err != nil {
		return "", err
	}

	port := c.Port
	if port == "" {
		port = d.DefaultPort
	}

	switch d.Name {
	case "mysql":
		var cfg *mysql.Config
		if c.URL != "" {
			if cfg, err = mysql.ParseDSN(c.URL); err != nil {
				return "", fmt.Errorf("failed to parse MySQL DSN: %w", err)
			}
		} else {
			cfg = mysql.NewConfig()
			cfg.User = c.User
			cfg.Passwd = c.Password
			cfg.Net = "tcp"
			cfg.Addr = net.JoinHostPort(c.Host, port)
			cfg.DBName = c.Database
			cfg.ParseTime = true
		}
		// Refresh relies on matched rather than changed row counts.
		cfg.ClientFoundRows = true
		return cfg.FormatDSN(), nil

	case "postgres":
		if c.URL != "" {
			return c.URL, nil
		}
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			c.Host,
			port,
			c.User,
			c.Password,
			c.Database,
		), nil

	default:
		if c.URL != "" {
			return c.URL, nil
		}
		if c.Database == "" {
			return "", fmt.Errorf("sqlite requires a database path")
		}
		return c.Database, nil
	}
}

// DB is an open database handle together with its dialect
type DB struct {
	*sqlx.DB
	dialect     Dialect
	placeholder squirrel.PlaceholderFormat
}

// Open opens and pings the database described by config.
func Open(config Config) (*DB, error) {
	d, err := LookupDialect(config.Type)
	if err != nil {
		return nil, err
	}

	placeholder := d.Placeholder
	if config.Placeholder != "" {
		if placeholder, err = ParsePlaceholder(config.Placeholder); err != nil {
			return nil, err
		}
	}

	dsn, err := config.DSN()
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", d.Name, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", d.Name, err)
	}

	return &DB{DB: db, dialect: d, placeholder: placeholder}, nil
}

// OpenDB wraps an already opened *sql.DB.
func OpenDB(d Dialect, db *sql.DB) *DB {
	return &DB{DB: sqlx.NewDb(db, d.Driver), dialect: d, placeholder: d.Placeholder}
}

// Dialect returns the dialect the handle was opened with.
func (d *DB) Dialect() Dialect { return d.dialect }

// Placeholder returns the parameter format statements must use.
func (d *DB) Placeholder() squirrel.PlaceholderFormat { return d.placeholder }

// introspector reads table descriptions from a live database
type introspector interface {
	tableNames(ctx context.Context) ([]string, error)
	table(ctx context.Context, name string) (*schema.Table, error)
}

func (d *DB) introspector() introspector {
	switch d.dialect.Name {
	case "mysql":
		return &mysqlIntrospector{db: d.DB}
	case "postgres":
		return &postgresIntrospector{db: d.DB}
	default:
		return &sqliteIntrospector{db: d.DB}
	}
}

// Introspect builds a schema from the live database. With no table names
// every base table is read. Foreign keys to tables outside the selection are
// dropped so the result stays self-contained.
func (d *DB) Introspect(ctx context.Context, tables ...string) (*schema.Schema, error) {
	in := d.introspector()

	if len(tables) == 0 {
		names, err := in.tableNames(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get tables: %w", err)
		}
		tables = names
	}

	selected := make(map[string]bool, len(tables))
	for _, name := range tables {
		selected[name] = true
	}

	var described []*schema.Table
	for _, name := range tables {
		t, err := in.table(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to describe table %s: %w", name, err)
		}

		kept := t.ForeignKeys[:0]
		for _, fk := range t.ForeignKeys {
			if selected[fk.ReferencedTable] {
				kept = append(kept, fk)
			}
		}
		t.ForeignKeys = kept
		described = append(described, t)
	}

	return schema.New(described...)
}

// appendForeignKeyColumn adds one column pair to the named constraint, which
// is created on first sight. Rows must arrive grouped by constraint.
func appendForeignKeyColumn(fks []schema.ForeignKey, name, column, refTable, refColumn, onDelete, onUpdate string) []schema.ForeignKey {
	if n := len(fks); n > 0 && fks[n-1].Name == name {
		fks[n-1].Columns = append(fks[n-1].Columns, column)
		fks[n-1].ReferencedColumns = append(fks[n-1].ReferencedColumns, refColumn)
		return fks
	}
	return append(fks, schema.ForeignKey{
		Name:              name,
		Columns:           []string{column},
		ReferencedTable:   refTable,
		ReferencedColumns: []string{refColumn},
		OnDelete:          onDelete,
		OnUpdate:          onUpdate,
	})
}
