package diff

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/koba/db-fixture/internal/schema"
)

type options struct {
	ignoreIdentity bool
	tables         []string
}

// Option configures Compare
type Option func(*options)

// IgnoreIdentity leaves identity columns out of the comparison. Use it after
// a non-identity insert, where the database assigned the values.
func IgnoreIdentity() Option {
	return func(o *options) { o.ignoreIdentity = true }
}

// Tables restricts the comparison to the named tables.
func Tables(names ...string) Option {
	return func(o *options) { o.tables = names }
}

// DiffResult holds the complete comparison result
type DiffResult struct {
	Tables map[string]*TableDiff
	order  []string
}

// Empty reports whether no table differs.
func (r *DiffResult) Empty() bool {
	return len(r.Tables) == 0
}

// TableNames returns the differing tables in schema order.
func (r *DiffResult) TableNames() []string {
	return r.order
}

// Compare compares the expected data set with the actual one, table by table
// in the expected schema's order. Tables the actual data set's schema does
// not declare are compared against no rows.
func Compare(expected, actual *schema.DataSet, opts ...Option) (*DiffResult, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	s := expected.Schema()
	names := o.tables
	if len(names) == 0 {
		names = s.TableNames()
	}

	result := &DiffResult{Tables: make(map[string]*TableDiff)}
	for _, name := range names {
		t, err := s.MustTable(name)
		if err != nil {
			return nil, err
		}

		if diff := compareTable(t, expected.Rows(name), actual.Rows(name), o); diff != nil {
			result.Tables[name] = diff
			result.order = append(result.order, name)
		}
	}

	return result, nil
}

var (
	headerColor  = color.New(color.Bold)
	missingColor = color.New(color.FgRed)
	extraColor   = color.New(color.FgGreen)
	changedColor = color.New(color.FgYellow)
)

// Display prints the diff result in a human-readable format
func Display(w io.Writer, result *DiffResult) {
	if result.Empty() {
		fmt.Fprintln(w, "No differences found.")
		return
	}

	for _, tableName := range result.TableNames() {
		displayTableDiff(w, result.Tables[tableName])
	}
}

func displayTableDiff(w io.Writer, diff *TableDiff) {
	headerColor.Fprintf(w, "Table: %s\n", diff.TableName)
	fmt.Fprintf(w, "  Rows missing: %d\n", len(diff.Missing))
	fmt.Fprintf(w, "  Rows unexpected: %d\n", len(diff.Unexpected))
	fmt.Fprintf(w, "  Rows modified: %d\n", len(diff.Modified))

	for _, row := range diff.Missing {
		missingColor.Fprintf(w, "  - %s\n", formatRow(row))
	}
	for _, row := range diff.Unexpected {
		extraColor.Fprintf(w, "  + %s\n", formatRow(row))
	}
	for _, mod := range diff.Modified {
		changedColor.Fprintf(w, "  ~ %s\n", formatRow(mod.Expected))
		for _, col := range mod.Columns {
			fmt.Fprintf(w, "      %s: %s -> %s\n", col, formatValue(mod.Expected[col]), formatValue(mod.Actual[col]))
		}
	}
	fmt.Fprintln(w)
}

func formatRow(row schema.Row) string {
	columns := make([]string, 0, len(row))
	for col := range row {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = col + "=" + formatValue(row[col])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func formatValue(v interface{}) string {
	if s := canonical(v); s != nil {
		return *s
	}
	return "NULL"
}
