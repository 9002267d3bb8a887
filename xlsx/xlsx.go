// Package xlsx adapts XLSX workbooks into table sets, one table per sheet.
//
// Cells arrive as the display strings excelize renders for them, so the
// tables are untyped and feed the guesser like any text source. Sheets are
// streamed with the row iterator and can be read any number of times.
package xlsx

import (
	"fmt"
	"io"
	"iter"
	"slices"

	"github.com/xuri/excelize/v2"

	"github.com/timClicks/messytables"
)

type options struct {
	window int
}

// Option configures the adapter.
type Option func(*options)

// Window sets the sample window of every sheet's row set.
func Window(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.window = n
		}
	}
}

// New opens an XLSX workbook and exposes its sheets as tables, ordered by
// sheet name. Close releases the workbook.
func New(r io.Reader, opts ...Option) (messytables.TableSet, error) {
	o := options{window: messytables.DefaultWindow}
	for _, opt := range opts {
		opt(&o)
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}

	names := f.GetSheetList()
	slices.Sort(names)

	ts := &tableSet{f: f}
	for _, name := range names {
		rs := messytables.NewRowSet(name, sheetRows(f, name), messytables.WithWindow(o.window))
		ts.tables = append(ts.tables, rs)
	}
	return ts, nil
}

type tableSet struct {
	f      *excelize.File
	tables []*messytables.RowSet
}

// Tables returns one row set per sheet, ordered by sheet name.
func (t *tableSet) Tables() []*messytables.RowSet {
	return t.tables
}

// Close releases the workbook.
func (t *tableSet) Close() error {
	return t.f.Close()
}

// sheetRows streams one sheet. Every pass opens a fresh iterator.
func sheetRows(f *excelize.File, sheet string) iter.Seq2[messytables.Row, error] {
	return func(yield func(messytables.Row, error) bool) {
		ri, err := f.Rows(sheet)
		if err != nil {
			yield(nil, fmt.Errorf("open sheet %s: %w", sheet, err))
			return
		}
		defer ri.Close()

		for ri.Next() {
			cols, err := ri.Columns()
			if err != nil {
				yield(nil, fmt.Errorf("read row in sheet %s: %w", sheet, err))
				return
			}
			if !yield(messytables.RowFromStrings(cols), nil) {
				return
			}
		}
		if err := ri.Error(); err != nil {
			yield(nil, fmt.Errorf("read sheet %s: %w", sheet, err))
		}
	}
}
