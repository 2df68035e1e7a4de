package types

// Table is a materialized source dataset: named columns over row-oriented
// values, the shape produced by the source loader.
type Table struct {
	// Name identifies the table in error messages (e.g. "pageview_df")
	Name string `json:"name"`

	// Columns lists the column names in row order
	Columns []string `json:"columns"`

	// Rows holds one value slice per row, aligned with Columns
	Rows [][]interface{} `json:"rows"`
}

// NewTable creates an empty table with the given columns.
func NewTable(name string, columns ...string) *Table {
	return &Table{Name: name, Columns: columns}
}

// Append adds a row. Values must be aligned with Columns.
func (t *Table) Append(values ...interface{}) *Table {
	t.Rows = append(t.Rows, values)
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ColumnIndex returns the position of a column, or -1 and false.
func (t *Table) ColumnIndex(name string) (int, bool) {
	for i, c := range t.Columns {
		if c == name {
			return i, true
		}
	}
	return -1, false
}

// Value returns the value at (row, col), nil when the row is short.
func (t *Table) Value(row, col int) interface{} {
	r := t.Rows[row]
	if col < 0 || col >= len(r) {
		return nil
	}
	return r[col]
}
