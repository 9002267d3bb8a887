// Package parquet adapts Parquet files into typed table sets.
//
// Parquet carries an authoritative schema, so the rows come out typed: cells
// hold native Go values with their column's type already bound, and consumers
// can skip the guessing pass entirely. The file is decoded into an Arrow
// table once at open; row iteration over the decoded table is lazy and
// repeatable.
package parquet

import (
	"context"
	"fmt"
	"iter"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/shopspring/decimal"

	"github.com/timClicks/messytables"
)

// readBatch is the record batch size used when iterating the decoded table.
const readBatch = 1024

type options struct {
	name   string
	window int
}

// Option configures the adapter.
type Option func(*options)

// Name sets the table name. The default is "table".
func Name(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// Window sets the sample window of the table's row set.
func Window(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.window = n
		}
	}
}

// New decodes a Parquet file into a single typed table. The reader must
// support random access; the footer lives at the end of the file. Close
// releases the decoded table.
func New(r parquet.ReaderAtSeeker, opts ...Option) (messytables.TableSet, error) {
	o := options{name: "table", window: messytables.DefaultWindow}
	for _, opt := range opts {
		opt(&o)
	}

	pf, err := file.NewParquetReader(r)
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}

	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, memory.NewGoAllocator())
	if err != nil {
		pf.Close()
		return nil, fmt.Errorf("open arrow reader: %w", err)
	}

	tbl, err := fr.ReadTable(context.Background())
	if err != nil {
		pf.Close()
		return nil, fmt.Errorf("decode parquet: %w", err)
	}

	schema := tbl.Schema()
	names := make([]string, schema.NumFields())
	types := make([]messytables.CellType, schema.NumFields())
	for i, f := range schema.Fields() {
		names[i] = f.Name
		types[i] = columnType(f.Type)
	}

	rs := messytables.NewRowSet(o.name, tableRows(tbl, names, types),
		messytables.WithWindow(o.window), messytables.AsTyped())
	return &tableSet{pf: pf, tbl: tbl, rs: rs}, nil
}

type tableSet struct {
	pf  *file.Reader
	tbl arrow.Table
	rs  *messytables.RowSet
}

// Tables returns the single decoded table.
func (t *tableSet) Tables() []*messytables.RowSet {
	return []*messytables.RowSet{t.rs}
}

// Close releases the decoded table and the underlying reader.
func (t *tableSet) Close() error {
	t.tbl.Release()
	return t.pf.Close()
}

// tableRows iterates the decoded table in record batches. Every pass opens a
// fresh reader over the materialized table.
func tableRows(tbl arrow.Table, names []string, types []messytables.CellType) iter.Seq2[messytables.Row, error] {
	return func(yield func(messytables.Row, error) bool) {
		tr := array.NewTableReader(tbl, readBatch)
		defer tr.Release()

		for tr.Next() {
			rec := tr.Record()
			for i := int64(0); i < rec.NumRows(); i++ {
				row := make(messytables.Row, rec.NumCols())
				for c, col := range rec.Columns() {
					row[c] = messytables.Cell{
						Value:  value(col, int(i)),
						Type:   types[c],
						Column: names[c],
					}
				}
				if !yield(row, nil) {
					return
				}
			}
		}
		if err := tr.Err(); err != nil {
			yield(nil, fmt.Errorf("read table: %w", err))
		}
	}
}

// columnType maps an Arrow field type onto the cell type its values bind to.
func columnType(dt arrow.DataType) messytables.CellType {
	switch dt.ID() {
	case arrow.BOOL:
		return messytables.BoolType{}
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64:
		return messytables.IntegerType{}
	case arrow.FLOAT16, arrow.FLOAT32, arrow.FLOAT64:
		return messytables.FloatType{}
	case arrow.DECIMAL128, arrow.DECIMAL256:
		return messytables.DecimalType{}
	case arrow.DATE32, arrow.DATE64, arrow.TIMESTAMP:
		return messytables.DateType{}
	default:
		return messytables.StringType{}
	}
}

// value extracts the native Go value at position i, or nil for null cells.
// Integer families widen to int64 and float families to float64 to match the
// cell type cast results; anything unhandled falls back to its string form.
func value(col arrow.Array, i int) any {
	if col.IsNull(i) {
		return nil
	}

	switch a := col.(type) {
	case *array.Boolean:
		return a.Value(i)
	case *array.Int8:
		return int64(a.Value(i))
	case *array.Int16:
		return int64(a.Value(i))
	case *array.Int32:
		return int64(a.Value(i))
	case *array.Int64:
		return a.Value(i)
	case *array.Uint8:
		return int64(a.Value(i))
	case *array.Uint16:
		return int64(a.Value(i))
	case *array.Uint32:
		return int64(a.Value(i))
	case *array.Uint64:
		return int64(a.Value(i))
	case *array.Float16:
		return float64(a.Value(i).Float32())
	case *array.Float32:
		return float64(a.Value(i))
	case *array.Float64:
		return a.Value(i)
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	case *array.Binary:
		return string(a.Value(i))
	case *array.Date32:
		return a.Value(i).ToTime()
	case *array.Date64:
		return a.Value(i).ToTime()
	case *array.Timestamp:
		return a.Value(i).ToTime(a.DataType().(*arrow.TimestampType).Unit)
	case *array.Decimal128:
		typ := a.DataType().(*arrow.Decimal128Type)
		return decimal.NewFromBigInt(a.Value(i).BigInt(), -typ.Scale)
	case *array.Decimal256:
		typ := a.DataType().(*arrow.Decimal256Type)
		return decimal.NewFromBigInt(a.Value(i).BigInt(), -typ.Scale)
	default:
		return col.ValueStr(i)
	}
}
