package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/koba/db-fixture/internal/command"
	"github.com/koba/db-fixture/internal/database"
	"github.com/koba/db-fixture/internal/diff"
	"github.com/koba/db-fixture/internal/operation"
	"github.com/koba/db-fixture/internal/schema"
	"github.com/koba/db-fixture/internal/snapshot"
)

var (
	outputPath     string
	ignoreIdentity bool
)

var runCmd = &cobra.Command{
	Use:   "run <operation>",
	Short: "Apply the data to the database",
	Long: fmt.Sprintf(`Apply the data file to the database in one transaction.

Operations: %s`, strings.Join(operation.Names(), ", ")),
	Args: cobra.ExactArgs(1),
	RunE: runOperation,
}

var exportCmd = &cobra.Command{
	Use:   "export [tables...]",
	Short: "Export database rows",
	Long:  `Fetch tables from the database and write them as a YAML data file, or as a snapshot when the output ends in .db.`,
	RunE:  runExport,
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Compare the database with the data file",
	Long:  `Fetch every table of the schema and report rows that are missing, unexpected, or modified.`,
	Args:  cobra.NoArgs,
	RunE:  runVerify,
}

var introspectCmd = &cobra.Command{
	Use:   "introspect [tables...]",
	Short: "Write the database schema as a schema file",
	RunE:  runIntrospect,
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the dependency order and generated statements",
	Args:  cobra.NoArgs,
	RunE:  runPlan,
}

func init() {
	exportCmd.Flags().StringVarP(&outputPath, "out", "o", "", "Output file (default: stdout as YAML)")
	introspectCmd.Flags().StringVarP(&outputPath, "out", "o", "", "Output file (default: stdout)")
	verifyCmd.Flags().BoolVar(&ignoreIdentity, "ignore-identity", false, "Ignore identity columns, for data inserted without them")
}

func runOperation(cmd *cobra.Command, args []string) error {
	kind, err := operation.ParseKind(args[0])
	if err != nil {
		return fmt.Errorf("%w (operations: %s)", err, strings.Join(operation.Names(), ", "))
	}

	ctx := cmd.Context()
	s, err := openSession(ctx, kind != operation.DeleteAll && kind != operation.None)
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Printf("Running %s on %s\n", color.CyanString(kind.String()), s.db.Dialect().Name)
	start := time.Now()
	if err := s.fixture.PerformOperation(ctx, kind); err != nil {
		return err
	}

	color.Green("Operation %s completed in %s", kind, time.Since(start).Round(time.Millisecond))
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()

	ds, err := s.fixture.FetchFromDatabase(ctx, args...)
	if err != nil {
		return fmt.Errorf("failed to fetch data: %w", err)
	}

	if outputPath != "" && isSnapshot(outputPath) {
		snap, err := snapshot.Save(ds, outputPath, map[string]string{"db_type": s.db.Dialect().Name})
		if err != nil {
			return fmt.Errorf("failed to create snapshot: %w", err)
		}
		color.Green("Snapshot %s created: %s (%d rows)", snap.ID, outputPath, ds.Len())
		return nil
	}

	return writeOutput(func(w io.Writer) error { return schema.WriteData(w, ds) })
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, true)
	if err != nil {
		return err
	}
	defer s.Close()

	var opts []diff.Option
	if ignoreIdentity {
		opts = append(opts, diff.IgnoreIdentity())
	}

	result, err := s.fixture.Verify(ctx, opts...)
	if err != nil {
		return err
	}

	diff.Display(os.Stdout, result)
	if !result.Empty() {
		return fmt.Errorf("%d table(s) differ from the data file", len(result.TableNames()))
	}
	color.Green("Database matches the data file")
	return nil
}

func runIntrospect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.DatabaseConfig())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	s, err := db.Introspect(cmd.Context(), args...)
	if err != nil {
		return fmt.Errorf("failed to introspect schema: %w", err)
	}

	return writeOutput(func(w io.Writer) error { return schema.WriteSchema(w, s) })
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Schema == "" {
		return fmt.Errorf("plan needs a schema file: set schema in the config or pass --schema")
	}

	s, err := schema.ReadSchema(schema.FileSource(cfg.Schema))
	if err != nil {
		return err
	}

	d, err := database.LookupDialect(cfg.Database.Type)
	if err != nil {
		return err
	}
	placeholder := d.Placeholder
	if cfg.Placeholder != "" {
		if placeholder, err = database.ParsePlaceholder(cfg.Placeholder); err != nil {
			return err
		}
	}

	b := command.NewBuilder(placeholder)
	b.SetEmptyInsert(d.EmptyInsert)
	b.SetQuotePrefix(cfg.Quote.Prefix)
	b.SetQuoteSuffix(cfg.Quote.Suffix)
	b.SetSchema(s)

	order, err := b.Order()
	if err != nil {
		return err
	}
	templates, err := b.Templates()
	if err != nil {
		return err
	}

	bold := color.New(color.Bold)
	bold.Println("Insert order:")
	fmt.Printf("  %s\n", strings.Join(order, " -> "))
	bold.Println("Delete order:")
	fmt.Printf("  %s\n", strings.Join(schema.Reverse(order), " -> "))

	table := ""
	for _, tmpl := range templates {
		if tmpl.Table != table {
			table = tmpl.Table
			fmt.Println()
			bold.Printf("Table: %s\n", table)
		}
		fmt.Printf("  %-16s %s\n", color.CyanString(tmpl.Kind.String()), tmpl.SQL)
	}
	return nil
}

// writeOutput writes to --out, or stdout when it is empty.
func writeOutput(write func(io.Writer) error) error {
	if outputPath == "" {
		return write(os.Stdout)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", outputPath, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	color.Green("Written: %s", outputPath)
	return nil
}
