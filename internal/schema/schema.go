package schema

import (
	"fmt"
)

// Column represents a table column
type Column struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type,omitempty" yaml:"type,omitempty"`
	Nullable bool   `json:"nullable,omitempty" yaml:"nullable,omitempty"`
	Identity bool   `json:"identity,omitempty" yaml:"identity,omitempty"` // value assigned by the database on insert
}

// ForeignKey represents a foreign key constraint from a table to a parent table
type ForeignKey struct {
	Name              string   `json:"name,omitempty" yaml:"name,omitempty"`
	Columns           []string `json:"columns" yaml:"columns"`
	ReferencedTable   string   `json:"references" yaml:"references"`
	ReferencedColumns []string `json:"referenced_columns" yaml:"referenced_columns"`
	OnDelete          string   `json:"on_delete,omitempty" yaml:"on_delete,omitempty"` // CASCADE, SET NULL, etc.
	OnUpdate          string   `json:"on_update,omitempty" yaml:"on_update,omitempty"`
}

// Table represents a complete table description
type Table struct {
	Name        string       `json:"name" yaml:"name"`
	Columns     []Column     `json:"columns" yaml:"columns"`
	PrimaryKey  []string     `json:"primary_key,omitempty" yaml:"primary_key,omitempty"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty" yaml:"foreign_keys,omitempty"`
}

// Column returns the named column.
func (t *Table) Column(name string) (Column, bool) {
	for _, col := range t.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// HasPrimaryKey reports whether rows of the table can be identified by key.
func (t *Table) HasPrimaryKey() bool {
	return len(t.PrimaryKey) > 0
}

// IsKey reports whether the column is part of the primary key.
func (t *Table) IsKey(column string) bool {
	for _, pk := range t.PrimaryKey {
		if pk == column {
			return true
		}
	}
	return false
}

// IdentityColumns returns the identity columns in declared order.
func (t *Table) IdentityColumns() []Column {
	var cols []Column
	for _, col := range t.Columns {
		if col.Identity {
			cols = append(cols, col)
		}
	}
	return cols
}

// Parents returns the distinct tables this table references, excluding itself,
// in foreign key declaration order.
func (t *Table) Parents() []string {
	seen := make(map[string]bool)
	var parents []string
	for _, fk := range t.ForeignKeys {
		if fk.ReferencedTable == t.Name || seen[fk.ReferencedTable] {
			continue
		}
		seen[fk.ReferencedTable] = true
		parents = append(parents, fk.ReferencedTable)
	}
	return parents
}

// Schema is an immutable set of tables in declaration order.
type Schema struct {
	tables []*Table
	index  map[string]*Table
}

// New validates the tables and builds a Schema from them.
func New(tables ...*Table) (*Schema, error) {
	s := &Schema{
		tables: make([]*Table, 0, len(tables)),
		index:  make(map[string]*Table, len(tables)),
	}

	for _, t := range tables {
		if t == nil {
			continue
		}
		if t.Name == "" {
			return nil, &SchemaError{Reason: "table without a name"}
		}
		if _, exists := s.index[t.Name]; exists {
			return nil, &SchemaError{Table: t.Name, Reason: "table declared more than once"}
		}
		cp := copyTable(t)
		s.tables = append(s.tables, cp)
		s.index[cp.Name] = cp
	}

	for _, t := range s.tables {
		if err := s.validateTable(t); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Schema) validateTable(t *Table) error {
	if len(t.Columns) == 0 {
		return &SchemaError{Table: t.Name, Reason: "table has no columns"}
	}

	names := make(map[string]bool, len(t.Columns))
	for _, col := range t.Columns {
		if col.Name == "" {
			return &SchemaError{Table: t.Name, Reason: "column without a name"}
		}
		if names[col.Name] {
			return &SchemaError{Table: t.Name, Reason: fmt.Sprintf("column %s declared more than once", col.Name)}
		}
		names[col.Name] = true
	}

	for _, pk := range t.PrimaryKey {
		if !names[pk] {
			return &SchemaError{Table: t.Name, Reason: fmt.Sprintf("primary key column %s is not a column of the table", pk)}
		}
	}

	for _, fk := range t.ForeignKeys {
		if len(fk.Columns) == 0 || len(fk.Columns) != len(fk.ReferencedColumns) {
			return &SchemaError{Table: t.Name, Reason: fmt.Sprintf("foreign key %s must map the same number of columns on both sides", fk.Name)}
		}
		for _, col := range fk.Columns {
			if !names[col] {
				return &SchemaError{Table: t.Name, Reason: fmt.Sprintf("foreign key column %s is not a column of the table", col)}
			}
		}
		parent, ok := s.index[fk.ReferencedTable]
		if !ok {
			return &SchemaError{Table: t.Name, Reason: fmt.Sprintf("foreign key references unknown table %s", fk.ReferencedTable)}
		}
		for _, col := range fk.ReferencedColumns {
			if _, ok := parent.Column(col); !ok {
				return &SchemaError{Table: t.Name, Reason: fmt.Sprintf("foreign key references unknown column %s.%s", parent.Name, col)}
			}
		}
	}

	return nil
}

// Tables returns the tables in declaration order.
func (s *Schema) Tables() []*Table {
	return s.tables
}

// Table returns the named table.
func (s *Schema) Table(name string) (*Table, bool) {
	t, ok := s.index[name]
	return t, ok
}

// MustTable returns the named table or an UnknownTableError.
func (s *Schema) MustTable(name string) (*Table, error) {
	t, ok := s.index[name]
	if !ok {
		return nil, &UnknownTableError{Table: name}
	}
	return t, nil
}

// TableNames returns the table names in declaration order.
func (s *Schema) TableNames() []string {
	names := make([]string, len(s.tables))
	for i, t := range s.tables {
		names[i] = t.Name
	}
	return names
}

func copyTable(t *Table) *Table {
	cp := &Table{
		Name:       t.Name,
		Columns:    append([]Column(nil), t.Columns...),
		PrimaryKey: append([]string(nil), t.PrimaryKey...),
	}
	for _, fk := range t.ForeignKeys {
		fk.Columns = append([]string(nil), fk.Columns...)
		fk.ReferencedColumns = append([]string(nil), fk.ReferencedColumns...)
		cp.ForeignKeys = append(cp.ForeignKeys, fk)
	}
	return cp
}
