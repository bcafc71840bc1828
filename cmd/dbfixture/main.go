package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/koba/db-fixture/internal/config"
	"github.com/koba/db-fixture/internal/database"
	"github.com/koba/db-fixture/internal/fixture"
	"github.com/koba/db-fixture/internal/schema"
	"github.com/koba/db-fixture/internal/snapshot"
)

var (
	cfgFile string
	verbose bool
	v       = viper.New()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dbfixture",
	Short: "Database fixture seeding tool",
	Long: `A tool to seed a database from schema and data descriptions, read it back,
and verify its contents.

Database Support:
- MySQL / MariaDB
- PostgreSQL (lib/pq or pgx)
- SQLite (modernc or mattn)`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./dbfixture.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log every step")
	rootCmd.PersistentFlags().String("schema", "", "Schema description file (default: introspect the database)")
	rootCmd.PersistentFlags().String("data", "", "Data file, YAML or a .db snapshot")

	v.BindPFlag("schema", rootCmd.PersistentFlags().Lookup("schema"))
	v.BindPFlag("data", rootCmd.PersistentFlags().Lookup("data"))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(introspectCmd)
	rootCmd.AddCommand(planCmd)
}

func initConfig() {
	if err := godotenv.Load(); err != nil {
		godotenv.Load(".env.local")
	}
}

func loadConfig() (*config.Config, error) {
	if err := config.ReadIn(v, cfgFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// session is an open database with a fixture whose schema is read
type session struct {
	cfg     *config.Config
	db      *database.DB
	fixture *fixture.Fixture
}

func (s *session) Close() error {
	return s.db.Close()
}

// openSession connects, reads the schema (or introspects it) and, when
// withData is set, the configured data.
func openSession(ctx context.Context, withData bool) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	db, err := database.Open(cfg.DatabaseConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &session{
		cfg:     cfg,
		db:      db,
		fixture: fixture.New(db, fixture.WithLogger(slog.Default()), fixture.WithQuote(cfg.Quote.Prefix, cfg.Quote.Suffix)),
	}

	if err := s.readSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if withData {
		if err := s.readData(); err != nil {
			db.Close()
			return nil, err
		}
	}

	return s, nil
}

func (s *session) readSchema(ctx context.Context) error {
	if s.cfg.Schema == "" {
		introspected, err := s.db.Introspect(ctx)
		if err != nil {
			return fmt.Errorf("failed to introspect schema: %w", err)
		}
		s.fixture.SetSchema(introspected)
		return nil
	}

	if err := s.fixture.ReadSchema(schema.FileSource(s.cfg.Schema)); err != nil {
		return fmt.Errorf("failed to read schema %s: %w", s.cfg.Schema, err)
	}
	return nil
}

func (s *session) readData() error {
	path := s.cfg.Data
	if path == "" {
		return fmt.Errorf("no data file given: set data in the config or pass --data")
	}

	if isSnapshot(path) {
		snap, err := snapshot.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load snapshot: %w", err)
		}
		return s.fixture.LoadDataSet(snap.Data)
	}

	if err := s.fixture.ReadData(schema.FileSource(path)); err != nil {
		return fmt.Errorf("failed to read data %s: %w", path, err)
	}
	return nil
}

func isSnapshot(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".db")
}
