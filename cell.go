package messytables

import "strings"

// Cell is a single value at one column position of a row. Value starts out
// as whatever the source produced (usually a string) and is replaced with a
// typed value by the casting pass, which also fills in Type. Column is the
// header name, when one has been assigned.
type Cell struct {
	Value  any
	Type   CellType
	Column string
}

// NewCell returns an untyped cell holding value.
func NewCell(value any) Cell {
	return Cell{Value: value}
}

// Empty reports whether the cell carries no usable value: nil, or a string
// that is blank after trimming.
func (c Cell) Empty() bool {
	if c.Value == nil {
		return true
	}
	if s, ok := c.Value.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// Row is an ordered sequence of cells; the cell index is the column index.
type Row []Cell

// RowFromStrings builds an untyped row from raw string fields, the shape
// delimited-file readers produce.
func RowFromStrings(fields []string) Row {
	row := make(Row, len(fields))
	for i, f := range fields {
		row[i] = Cell{Value: f}
	}
	return row
}
