// Package datastore loads inferred tables into PostgreSQL.
//
// A Loader creates the target table from guessed column types and inserts
// rows inside a single transaction. Each row gets its own savepoint, so a
// value the database rejects costs that row alone and is reported in the
// result instead of aborting the load. Copy offers a faster path through
// the COPY protocol for data that is known to be clean.
package datastore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/timClicks/messytables"
)

// contextCheckInterval is how often the row loop checks for cancellation.
const contextCheckInterval = 100

// Loader writes row sets to a PostgreSQL database.
type Loader struct {
	pool *pgxpool.Pool
}

// New returns a Loader backed by the given pool.
func New(pool *pgxpool.Pool) *Loader {
	return &Loader{pool: pool}
}

// Column describes one target table column.
type Column struct {
	Name string
	Type messytables.CellType
}

// FailedRow records a row the database rejected.
type FailedRow struct {
	Line   int      `json:"line"`
	Reason string   `json:"reason"`
	Values []string `json:"values,omitempty"`
}

// Result summarizes a completed load.
type Result struct {
	LoadID     uuid.UUID     `json:"load_id"`
	Table      string        `json:"table"`
	TotalRows  int           `json:"total_rows"`
	Inserted   int           `json:"inserted"`
	Skipped    int           `json:"skipped"`
	FailedRows []FailedRow   `json:"failed_rows,omitempty"`
	Duration   time.Duration `json:"duration"`
}

type loadOptions struct {
	create bool
}

// LoadOption configures a load.
type LoadOption func(*loadOptions)

// CreateMissing controls whether Load issues CREATE TABLE IF NOT EXISTS
// before inserting. It defaults to true.
func CreateMissing(create bool) LoadOption {
	return func(o *loadOptions) { o.create = create }
}

// CreateTable creates the target table if it does not exist, one column per
// guessed type.
func (l *Loader) CreateTable(ctx context.Context, table string, cols []Column) error {
	if len(cols) == 0 {
		return errors.New("datastore: no columns")
	}

	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = quoteIdentifier(c.Name) + " " + SQLType(c.Type)
	}
	sql := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s)",
		quoteIdentifier(table),
		strings.Join(defs, ", "),
	)

	if _, err := l.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

// Load inserts every row of rs into table within one transaction. Rows the
// database rejects are rolled back to a savepoint and reported in the
// result; Line is the 1-based position within the loaded rows.
func (l *Loader) Load(ctx context.Context, table string, cols []Column, rs *messytables.RowSet, opts ...LoadOption) (*Result, error) {
	if len(cols) == 0 {
		return nil, errors.New("datastore: no columns")
	}

	o := loadOptions{create: true}
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	result := &Result{
		LoadID: uuid.New(),
		Table:  table,
	}

	if o.create {
		if err := l.CreateTable(ctx, table, cols); err != nil {
			return nil, err
		}
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := insertSQL(table, cols)

	i := 0
	var iterErr error
	for row, rowErr := range rs.All() {
		if rowErr != nil {
			iterErr = rowErr
			break
		}

		if i%contextCheckInterval == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		i++
		result.TotalRows++

		if rowEmpty(row) {
			continue
		}

		savepoint := fmt.Sprintf("sp_%d", i)
		if _, err := tx.Exec(ctx, "SAVEPOINT "+savepoint); err != nil {
			return nil, fmt.Errorf("create savepoint: %w", err)
		}

		if _, err := tx.Exec(ctx, stmt, buildArgs(row, len(cols))...); err != nil {
			_, _ = tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+savepoint)
			result.FailedRows = append(result.FailedRows, FailedRow{
				Line:   i,
				Reason: fmt.Sprintf("insert: %v", err),
				Values: rowValues(row),
			})
			continue
		}

		_, _ = tx.Exec(ctx, "RELEASE SAVEPOINT "+savepoint)
		result.Inserted++
	}

	if iterErr != nil {
		return nil, fmt.Errorf("read rows: %w", iterErr)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	result.Skipped = len(result.FailedRows)
	result.Duration = time.Since(start)
	return result, nil
}

// Copy bulk-loads rs through the COPY protocol. It is faster than Load but
// has no per-row recovery: one rejected value fails the whole operation.
func (l *Loader) Copy(ctx context.Context, table string, cols []Column, rs *messytables.RowSet, opts ...LoadOption) (*Result, error) {
	if len(cols) == 0 {
		return nil, errors.New("datastore: no columns")
	}

	o := loadOptions{create: true}
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	result := &Result{
		LoadID: uuid.New(),
		Table:  table,
	}

	if o.create {
		if err := l.CreateTable(ctx, table, cols); err != nil {
			return nil, err
		}
	}

	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}

	src := newCopySource(rs.All(), len(cols))
	defer src.stop()

	n, err := l.pool.CopyFrom(ctx, pgx.Identifier{table}, names, src)
	if err != nil {
		return nil, fmt.Errorf("copy into %s: %w", table, err)
	}

	result.TotalRows = int(n)
	result.Inserted = int(n)
	result.Duration = time.Since(start)
	return result, nil
}
