// Package fixture seeds a database from schema and data descriptions and
// reads it back. A Fixture owns one working data set; operations write that
// data set to the database inside a single transaction.
//
// A Fixture is not safe for concurrent use.
package fixture

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/koba/db-fixture/internal/command"
	"github.com/koba/db-fixture/internal/database"
	"github.com/koba/db-fixture/internal/diff"
	"github.com/koba/db-fixture/internal/operation"
	"github.com/koba/db-fixture/internal/schema"
)

// Fixture is a seeding session bound to one database
type Fixture struct {
	db      *database.DB
	builder *command.Builder
	op      operation.Operation
	logger  *slog.Logger

	schema *schema.Schema
	data   *schema.DataSet

	// descriptors of the last sources read successfully
	schemaSource string
	dataSource   string

	preHooks  []Hook
	postHooks []Hook
}

// Option configures a Fixture
type Option func(*Fixture)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fixture) { f.logger = logger }
}

// WithOperation replaces the operation set chosen from the database dialect.
func WithOperation(op operation.Operation) Option {
	return func(f *Fixture) { f.op = op }
}

// WithQuote sets the identifier quote prefix and suffix.
func WithQuote(prefix, suffix string) Option {
	return func(f *Fixture) {
		f.builder.SetQuotePrefix(prefix)
		f.builder.SetQuoteSuffix(suffix)
	}
}

// New creates a fixture for db. No schema is read yet.
func New(db *database.DB, opts ...Option) *Fixture {
	f := &Fixture{
		db:      db,
		builder: command.NewBuilder(db.Placeholder()),
		logger:  slog.Default(),
	}
	f.builder.SetEmptyInsert(db.Dialect().EmptyInsert)
	for _, opt := range opts {
		opt(f)
	}
	if f.op == nil {
		f.op = operation.New(db.Dialect().Name, f.logger)
	}
	return f
}

// ReadSchema reads and validates a schema description and resets the working
// data set. Reading the source that was read last does nothing.
func (f *Fixture) ReadSchema(src schema.Source) error {
	if f.schema != nil && src.Descriptor() == f.schemaSource {
		f.logger.Debug("schema source unchanged", "source", src.Descriptor())
		return nil
	}

	s, err := schema.ReadSchema(src)
	if err != nil {
		return err
	}

	f.SetSchema(s)
	f.schemaSource = src.Descriptor()
	f.logger.Debug("schema read", "source", f.schemaSource, "tables", len(s.Tables()))
	return nil
}

// SetSchema installs a schema built elsewhere, such as one introspected from
// the database, and resets the working data set.
func (f *Fixture) SetSchema(s *schema.Schema) {
	f.schema = s
	f.data = schema.NewDataSet(s)
	f.builder.SetSchema(s)
	f.schemaSource = ""
	f.dataSource = ""
}

// Schema returns the schema read last, or nil.
func (f *Fixture) Schema() *schema.Schema {
	return f.schema
}

// Builder returns the command builder the fixture's operations use.
func (f *Fixture) Builder() *command.Builder {
	return f.builder
}

// ReadData replaces the working data set with the rows of a data
// description. Tables and columns the schema does not declare are ignored.
// Reading the source that was read last does nothing.
func (f *Fixture) ReadData(src schema.Source) error {
	if err := f.checkInitialized("ReadData"); err != nil {
		return err
	}
	if src.Descriptor() == f.dataSource {
		f.logger.Debug("data source unchanged", "source", src.Descriptor())
		return nil
	}

	ds, err := schema.ReadData(src, f.schema)
	if err != nil {
		return err
	}

	f.data.Clear()
	f.data.Merge(ds)
	f.dataSource = src.Descriptor()
	f.logger.Debug("data read", "source", f.dataSource, "rows", f.data.Len())
	return nil
}

// LoadDataSet replaces the working data set with the rows of ds, for
// example a restored snapshot. Tables the schema does not declare are
// ignored.
func (f *Fixture) LoadDataSet(ds *schema.DataSet) error {
	if err := f.checkInitialized("LoadDataSet"); err != nil {
		return err
	}
	f.data.Clear()
	f.data.Merge(ds)
	f.dataSource = ""
	return nil
}

// CopyData returns a deep copy of the working data set.
func (f *Fixture) CopyData() (*schema.DataSet, error) {
	if err := f.checkInitialized("CopyData"); err != nil {
		return nil, err
	}
	return f.data.Copy(), nil
}

// CopySchemaOnly returns an empty data set shaped by the schema.
func (f *Fixture) CopySchemaOnly() (*schema.DataSet, error) {
	if err := f.checkInitialized("CopySchemaOnly"); err != nil {
		return nil, err
	}
	return f.data.Clone(), nil
}

// QuotePrefix returns the string written before every identifier.
func (f *Fixture) QuotePrefix() string { return f.builder.QuotePrefix() }

// QuoteSuffix returns the string written after every identifier.
func (f *Fixture) QuoteSuffix() string { return f.builder.QuoteSuffix() }

// SetQuotePrefix takes effect when templates are next built.
func (f *Fixture) SetQuotePrefix(prefix string) { f.builder.SetQuotePrefix(prefix) }

// SetQuoteSuffix takes effect when templates are next built.
func (f *Fixture) SetQuoteSuffix(suffix string) { f.builder.SetQuoteSuffix(suffix) }

// Verify fetches the database and compares it with the working data set.
func (f *Fixture) Verify(ctx context.Context, opts ...diff.Option) (*diff.DiffResult, error) {
	actual, err := f.FetchFromDatabase(ctx)
	if err != nil {
		return nil, err
	}
	result, err := diff.Compare(f.data, actual, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to compare data: %w", err)
	}
	return result, nil
}

func (f *Fixture) checkInitialized(call string) error {
	if f.schema == nil {
		return &NotInitializedError{Call: call}
	}
	return nil
}
