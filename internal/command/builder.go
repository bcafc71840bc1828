package command

import (
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"

	"github.com/koba/db-fixture/internal/schema"
)

// Kind identifies the statement a template performs
type Kind int

const (
	Select Kind = iota
	Insert
	InsertIdentity
	Delete
	DeleteAll
	Update
)

// Kinds lists every template kind in generation order.
var Kinds = []Kind{Select, Insert, InsertIdentity, Delete, DeleteAll, Update}

func (k Kind) String() string {
	switch k {
	case Select:
		return "select"
	case Insert:
		return "insert"
	case InsertIdentity:
		return "insert-identity"
	case Delete:
		return "delete"
	case DeleteAll:
		return "delete-all"
	case Update:
		return "update"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Template is a parameterized statement for one table. Params lists the
// column bound to each positional parameter, in parameter order.
type Template struct {
	Table  string
	Kind   Kind
	SQL    string
	Params []string
}

// Args returns the row's values in parameter order. Columns missing from the
// row bind as NULL.
func (t *Template) Args(row schema.Row) []interface{} {
	args := make([]interface{}, len(t.Params))
	for i, col := range t.Params {
		args[i] = row[col]
	}
	return args
}

type templateKey struct {
	table string
	kind  Kind
}

// Builder generates the statement templates of a schema. Templates are built
// together on first use and rebuilt after the schema or the quote characters
// change. A Builder is not safe for concurrent rebuilds.
type Builder struct {
	placeholder squirrel.PlaceholderFormat
	quotePrefix string
	quoteSuffix string
	emptyInsert string

	schema    *schema.Schema
	templates map[templateKey]*Template
	built     bool
	order     []string
}

// NewBuilder creates a builder emitting parameters in the given format.
// A nil format emits '?' placeholders.
func NewBuilder(placeholder squirrel.PlaceholderFormat) *Builder {
	if placeholder == nil {
		placeholder = squirrel.Question
	}
	return &Builder{placeholder: placeholder, emptyInsert: DefaultValues}
}

// Row constructors for an insert that names no columns.
const (
	DefaultValues = "DEFAULT VALUES" // PostgreSQL, SQLite
	EmptyValues   = "() VALUES ()"   // MySQL
)

// SetEmptyInsert changes what follows the table name in an insert that names
// no columns. Built templates are discarded.
func (b *Builder) SetEmptyInsert(clause string) {
	if clause != "" && clause != b.emptyInsert {
		b.emptyInsert = clause
		b.built = false
	}
}

// QuotePrefix returns the string written before every identifier.
func (b *Builder) QuotePrefix() string { return b.quotePrefix }

// QuoteSuffix returns the string written after every identifier.
func (b *Builder) QuoteSuffix() string { return b.quoteSuffix }

// SetQuotePrefix changes the identifier prefix. Built templates are discarded.
func (b *Builder) SetQuotePrefix(prefix string) {
	if prefix != b.quotePrefix {
		b.quotePrefix = prefix
		b.built = false
	}
}

// SetQuoteSuffix changes the identifier suffix. Built templates are discarded.
func (b *Builder) SetQuoteSuffix(suffix string) {
	if suffix != b.quoteSuffix {
		b.quoteSuffix = suffix
		b.built = false
	}
}

// SetSchema replaces the schema templates are generated from.
func (b *Builder) SetSchema(s *schema.Schema) {
	b.schema = s
	b.built = false
	b.order = nil
}

// Schema returns the current schema, or nil.
func (b *Builder) Schema() *schema.Schema { return b.schema }

// Quote wraps an identifier in the configured prefix and suffix.
func (b *Builder) Quote(name string) string {
	return b.quotePrefix + name + b.quoteSuffix
}

// Build generates every template of the schema in one pass. It does nothing
// if the templates are current.
func (b *Builder) Build() error {
	if b.schema == nil {
		return &schema.SchemaError{Reason: "no schema has been read"}
	}
	if b.built {
		return nil
	}

	templates := make(map[templateKey]*Template)
	for _, t := range b.schema.Tables() {
		for _, tmpl := range b.tableTemplates(t) {
			sql, err := b.placeholder.ReplacePlaceholders(tmpl.SQL)
			if err != nil {
				return fmt.Errorf("failed to format %s template of table %s: %w", tmpl.Kind, t.Name, err)
			}
			tmpl.SQL = sql
			templates[templateKey{t.Name, tmpl.Kind}] = tmpl
		}
	}

	b.templates = templates
	b.built = true
	return nil
}

// Template returns the template of a kind for a table. Keyed kinds on a table
// without a primary key fail with a SchemaError.
func (b *Builder) Template(table string, kind Kind) (*Template, error) {
	if err := b.Build(); err != nil {
		return nil, err
	}
	if _, err := b.schema.MustTable(table); err != nil {
		return nil, err
	}
	tmpl, ok := b.templates[templateKey{table, kind}]
	if !ok {
		return nil, &schema.SchemaError{Table: table, Reason: fmt.Sprintf("%s requires a primary key", kind)}
	}
	return tmpl, nil
}

// Templates returns every built template, by table in schema order and by
// kind in generation order.
func (b *Builder) Templates() ([]*Template, error) {
	if err := b.Build(); err != nil {
		return nil, err
	}
	var all []*Template
	for _, name := range b.schema.TableNames() {
		for _, kind := range Kinds {
			if tmpl, ok := b.templates[templateKey{name, kind}]; ok {
				all = append(all, tmpl)
			}
		}
	}
	return all, nil
}

// Order returns the parent-first table order of the schema.
func (b *Builder) Order() ([]string, error) {
	if b.schema == nil {
		return nil, &schema.SchemaError{Reason: "no schema has been read"}
	}
	if b.order != nil {
		return b.order, nil
	}
	order, err := b.schema.DependencyOrder()
	if err != nil {
		return nil, err
	}
	b.order = order
	return order, nil
}

func (b *Builder) tableTemplates(t *schema.Table) []*Template {
	var all, insertable []string
	for _, col := range t.Columns {
		all = append(all, col.Name)
		if !col.Identity {
			insertable = append(insertable, col.Name)
		}
	}

	templates := []*Template{
		{Table: t.Name, Kind: Select, SQL: b.selectSQL(t.Name, all)},
		b.insert(t.Name, Insert, insertable),
		b.insert(t.Name, InsertIdentity, all),
		{Table: t.Name, Kind: DeleteAll, SQL: "DELETE FROM " + b.Quote(t.Name)},
	}

	if !t.HasPrimaryKey() {
		return templates
	}

	templates = append(templates, &Template{
		Table:  t.Name,
		Kind:   Delete,
		SQL:    fmt.Sprintf("DELETE FROM %s WHERE %s", b.Quote(t.Name), b.keyCondition(t.PrimaryKey)),
		Params: append([]string(nil), t.PrimaryKey...),
	})

	var set []string
	for _, col := range t.Columns {
		if !t.IsKey(col.Name) {
			set = append(set, col.Name)
		}
	}
	if len(set) == 0 {
		set = append(set, t.PrimaryKey...)
	}
	assignments := make([]string, len(set))
	for i, col := range set {
		assignments[i] = b.Quote(col) + "=?"
	}
	templates = append(templates, &Template{
		Table:  t.Name,
		Kind:   Update,
		SQL:    fmt.Sprintf("UPDATE %s SET %s WHERE %s", b.Quote(t.Name), strings.Join(assignments, ", "), b.keyCondition(t.PrimaryKey)),
		Params: append(set, t.PrimaryKey...),
	})

	return templates
}

func (b *Builder) selectSQL(table string, columns []string) string {
	return fmt.Sprintf("SELECT %s FROM %s", b.quoteList(columns), b.Quote(table))
}

func (b *Builder) insert(table string, kind Kind, columns []string) *Template {
	if len(columns) == 0 {
		return &Template{Table: table, Kind: kind, SQL: fmt.Sprintf("INSERT INTO %s %s", b.Quote(table), b.emptyInsert)}
	}
	params := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	return &Template{
		Table:  table,
		Kind:   kind,
		SQL:    fmt.Sprintf("INSERT INTO %s(%s) VALUES(%s)", b.Quote(table), b.quoteList(columns), params),
		Params: columns,
	}
}

func (b *Builder) keyCondition(keys []string) string {
	conditions := make([]string, len(keys))
	for i, key := range keys {
		conditions[i] = b.Quote(key) + "=?"
	}
	return strings.Join(conditions, " AND ")
}

func (b *Builder) quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = b.Quote(name)
	}
	return strings.Join(quoted, ", ")
}
