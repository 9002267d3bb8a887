package messytables

import "iter"

// DefaultWindow is the number of leading rows a RowSet exposes for sampling.
const DefaultWindow = 1000

// RowSet streams the rows of one table. It wraps a lazy row sequence: rows
// are pulled on demand, and sampling never pulls more than the window from
// the source. Whether iteration can be repeated depends on the sequence the
// adapter supplied; file-backed adapters document their restartability.
type RowSet struct {
	name       string
	rows       iter.Seq2[Row, error]
	window     int
	typed      bool
	processors []Processor
}

// RowSetOption configures a RowSet at construction.
type RowSetOption func(*RowSet)

// WithWindow overrides the sample window.
func WithWindow(n int) RowSetOption {
	return func(rs *RowSet) {
		if n > 0 {
			rs.window = n
		}
	}
}

// AsTyped marks the rows as already carrying typed values, letting consumers
// skip the guessing pass.
func AsTyped() RowSetOption {
	return func(rs *RowSet) { rs.typed = true }
}

// NewRowSet wraps a row sequence as a RowSet named name.
func NewRowSet(name string, rows iter.Seq2[Row, error], opts ...RowSetOption) *RowSet {
	rs := &RowSet{name: name, rows: rows, window: DefaultWindow}
	for _, opt := range opts {
		opt(rs)
	}
	return rs
}

// Name returns the table or sheet name.
func (rs *RowSet) Name() string { return rs.name }

// Typed reports whether rows already carry typed values.
func (rs *RowSet) Typed() bool { return rs.typed }

// Window returns the sample window size.
func (rs *RowSet) Window() int { return rs.window }

// Register appends a processor to the pipeline that All and Sample apply, in
// registration order. Stateful processors such as OffsetProcessor should be
// built fresh for each pass.
func (rs *RowSet) Register(p Processor) {
	rs.processors = append(rs.processors, p)
}

// Raw iterates the source rows with no processors applied.
func (rs *RowSet) Raw() iter.Seq2[Row, error] {
	return rs.rows
}

// All iterates every row through the processor pipeline.
func (rs *RowSet) All() iter.Seq2[Row, error] {
	return rs.processed(-1)
}

// Sample iterates the leading rows through the processor pipeline, pulling
// at most Window rows from the source. Rows a processor drops still count
// against the window; it bounds work, not output.
func (rs *RowSet) Sample() iter.Seq2[Row, error] {
	return rs.processed(rs.window)
}

func (rs *RowSet) processed(limit int) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		pulled := 0
		for row, err := range rs.rows {
			if err != nil {
				yield(nil, err)
				return
			}
			pulled++
			for _, p := range rs.processors {
				row = p(rs, row)
				if row == nil {
					break
				}
			}
			if row != nil && !yield(row, nil) {
				return
			}
			if limit >= 0 && pulled >= limit {
				return
			}
		}
	}
}

// Rows builds an in-memory row sequence, mainly for tests and small tables.
// It can be iterated any number of times.
func Rows(rows ...Row) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for _, r := range rows {
			if !yield(r, nil) {
				return
			}
		}
	}
}

// TableSet is a named collection of row sets produced by one source, such as
// the sheets of a workbook.
type TableSet interface {
	// Tables returns the row sets in a stable order documented by the
	// adapter.
	Tables() []*RowSet
	// Close releases the underlying source. Row sets must not be iterated
	// after Close.
	Close() error
}
