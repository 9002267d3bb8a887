package datastore

// convert.go maps guessed cell types and cast values onto PostgreSQL.
//
// Cast cells arrive as Go values (int64, float64, decimal.Decimal, bool,
// time.Time) and pass through to the driver directly. Cells whose cast
// failed still hold their original string; those are handed to the database
// as-is so a mismatch surfaces as a per-row failure rather than silently
// dropping the value.

import (
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/timClicks/messytables"
)

// ColumnsFor pairs header names with guessed column types, deduplicating
// names the way table headers are deduplicated elsewhere. Missing names and
// missing types fall back to a positional name and text.
func ColumnsFor(headers []string, types []messytables.CellType) []Column {
	n := len(headers)
	if len(types) > n {
		n = len(types)
	}

	names := make([]string, n)
	copy(names, headers)
	names = messytables.HeadersMakeUnique(names)

	cols := make([]Column, n)
	for i := range cols {
		cols[i] = Column{Name: names[i], Type: messytables.StringType{}}
		if i < len(types) && types[i] != nil {
			cols[i].Type = types[i]
		}
	}
	return cols
}

// SQLType maps a guessed cell type to a PostgreSQL column type. Columns
// whose type could not be determined stay text.
func SQLType(t messytables.CellType) string {
	switch t.(type) {
	case messytables.IntegerType:
		return "bigint"
	case messytables.FloatType:
		return "double precision"
	case messytables.DecimalType:
		return "numeric"
	case messytables.BoolType:
		return "boolean"
	case messytables.DateType:
		return "timestamp"
	default:
		return "text"
	}
}

// quoteIdentifier quotes a SQL identifier to prevent injection.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func insertSQL(table string, cols []Column) string {
	names := make([]string, len(cols))
	params := make([]string, len(cols))
	for i, c := range cols {
		names[i] = quoteIdentifier(c.Name)
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		quoteIdentifier(table),
		strings.Join(names, ", "),
		strings.Join(params, ", "),
	)
}

// pgValue converts one cell into a driver argument. Empty strings become
// NULL, matching how blank cells read from delimited text should land in
// typed columns.
func pgValue(c messytables.Cell) any {
	switch v := c.Value.(type) {
	case nil:
		return nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil
		}
		return s
	case int64, float64, bool:
		return v
	case time.Time:
		return pgtype.Timestamp{Time: v, Valid: true}
	case decimal.Decimal:
		var n pgtype.Numeric
		if err := n.Scan(v.String()); err != nil {
			return v.String()
		}
		return n
	default:
		return fmt.Sprint(v)
	}
}

func buildArgs(row messytables.Row, n int) []any {
	args := make([]any, n)
	for i := range args {
		if i < len(row) {
			args[i] = pgValue(row[i])
		}
	}
	return args
}

func rowValues(row messytables.Row) []string {
	vals := make([]string, len(row))
	for i, c := range row {
		if c.Value == nil {
			continue
		}
		vals[i] = fmt.Sprint(c.Value)
	}
	return vals
}

func rowEmpty(row messytables.Row) bool {
	for _, c := range row {
		if !c.Empty() {
			return false
		}
	}
	return true
}

// copySource adapts a row stream to the pgx CopyFromSource interface,
// skipping empty rows and padding short ones.
type copySource struct {
	next  func() (messytables.Row, error, bool)
	stop  func()
	width int
	row   messytables.Row
	err   error
}

func newCopySource(rows iter.Seq2[messytables.Row, error], width int) *copySource {
	next, stop := iter.Pull2(rows)
	return &copySource{next: next, stop: stop, width: width}
}

func (s *copySource) Next() bool {
	for {
		row, err, ok := s.next()
		if !ok {
			return false
		}
		if err != nil {
			s.err = err
			return false
		}
		if rowEmpty(row) {
			continue
		}
		s.row = row
		return true
	}
}

func (s *copySource) Values() ([]any, error) {
	return buildArgs(s.row, s.width), nil
}

func (s *copySource) Err() error {
	return s.err
}
