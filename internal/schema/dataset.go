package schema

// Row represents a single row of data keyed by column name
type Row map[string]interface{}

// Copy returns a shallow copy of the row.
func (r Row) Copy() Row {
	cp := make(Row, len(r))
	for k, v := range r {
		cp[k] = v
	}
	return cp
}

// DataSet holds rows per table, shaped by a Schema. The schema is shared
// between copies since it never changes after construction.
type DataSet struct {
	schema *Schema
	rows   map[string][]Row
}

// NewDataSet returns an empty data set for the schema.
func NewDataSet(s *Schema) *DataSet {
	return &DataSet{
		schema: s,
		rows:   make(map[string][]Row),
	}
}

// Schema returns the schema the data set is shaped by.
func (d *DataSet) Schema() *Schema {
	return d.schema
}

// Rows returns the rows held for a table, in insertion order.
func (d *DataSet) Rows(table string) []Row {
	return d.rows[table]
}

// Tables returns the names of tables holding at least one row, in schema
// declaration order.
func (d *DataSet) Tables() []string {
	var names []string
	for _, name := range d.schema.TableNames() {
		if len(d.rows[name]) > 0 {
			names = append(names, name)
		}
	}
	return names
}

// Len returns the total number of rows across all tables.
func (d *DataSet) Len() int {
	n := 0
	for _, rows := range d.rows {
		n += len(rows)
	}
	return n
}

// Append adds rows to a table. Columns the table does not declare are
// dropped; rows for a table outside the schema fail with UnknownTableError.
func (d *DataSet) Append(table string, rows ...Row) error {
	t, err := d.schema.MustTable(table)
	if err != nil {
		return err
	}
	for _, row := range rows {
		filtered := make(Row, len(t.Columns))
		for _, col := range t.Columns {
			if v, ok := row[col.Name]; ok {
				filtered[col.Name] = v
			}
		}
		d.rows[table] = append(d.rows[table], filtered)
	}
	return nil
}

// Merge appends every row of other whose table the schema declares. Rows of
// unknown tables are ignored.
func (d *DataSet) Merge(other *DataSet) {
	for _, name := range other.schema.TableNames() {
		if _, ok := d.schema.Table(name); !ok {
			continue
		}
		_ = d.Append(name, other.rows[name]...)
	}
}

// Clear removes all rows, keeping the schema.
func (d *DataSet) Clear() {
	d.rows = make(map[string][]Row)
}

// Clone returns an empty data set with the same schema.
func (d *DataSet) Clone() *DataSet {
	return NewDataSet(d.schema)
}

// Copy returns a deep copy of the data set's rows.
func (d *DataSet) Copy() *DataSet {
	cp := NewDataSet(d.schema)
	for name, rows := range d.rows {
		copied := make([]Row, len(rows))
		for i, row := range rows {
			copied[i] = row.Copy()
		}
		cp.rows[name] = copied
	}
	return cp
}
