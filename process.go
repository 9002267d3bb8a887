package messytables

// Processor transforms one row while a RowSet iterates. Returning nil drops
// the row from the stream.
type Processor func(rs *RowSet, row Row) Row

// TypesProcessor returns a processor that casts each cell to the type at the
// same position in types, writing the converted value and the type back into
// the cell. Conversion is fail-soft: a cell whose value will not cast keeps
// its original value and type, silently. Positions past the end of either
// the row or the type list are left alone, and nil entries in types mean
// "leave this column unconverted".
func TypesProcessor(types []CellType) Processor {
	return func(_ *RowSet, row Row) Row {
		castRow(row, types, nil)
		return row
	}
}

// StrictTypesProcessor casts exactly like TypesProcessor but reports every
// failed conversion to onErr with the column index and the untouched cell.
// The written output is identical to TypesProcessor's.
func StrictTypesProcessor(types []CellType, onErr func(col int, cell Cell, err error)) Processor {
	return func(_ *RowSet, row Row) Row {
		castRow(row, types, onErr)
		return row
	}
}

func castRow(row Row, types []CellType, onErr func(int, Cell, error)) {
	n := min(len(row), len(types))
	for i := 0; i < n; i++ {
		t := types[i]
		if t == nil {
			continue
		}
		v, err := t.Cast(row[i].Value)
		if err != nil {
			if onErr != nil {
				onErr(i, row[i], err)
			}
			continue
		}
		row[i].Value = v
		row[i].Type = t
	}
}
