package messytables

import (
	"testing"
	"time"
)

// ----------------------------------------------------------------------------
// TypesProcessor Tests
// ----------------------------------------------------------------------------

func TestTypesProcessorCastsRow(t *testing.T) {
	types := []CellType{IntegerType{}, FloatType{}, DateType{Format: "2006-01-02"}}
	row := RowFromStrings([]string{"3", "4.2", "2020-03-03"})

	got := TypesProcessor(types)(nil, row)

	if got[0].Value != int64(3) || got[0].Type != (IntegerType{}) {
		t.Errorf("column 0 = %#v (%v), want 3 (Integer)", got[0].Value, got[0].Type)
	}
	if got[1].Value != 4.2 || got[1].Type != (FloatType{}) {
		t.Errorf("column 1 = %#v (%v), want 4.2 (Float)", got[1].Value, got[1].Type)
	}
	wantDate := time.Date(2020, 3, 3, 0, 0, 0, 0, time.UTC)
	if d, ok := got[2].Value.(time.Time); !ok || !d.Equal(wantDate) {
		t.Errorf("column 2 = %#v, want %v", got[2].Value, wantDate)
	}
}

func TestTypesProcessorMutatesInPlace(t *testing.T) {
	row := RowFromStrings([]string{"7"})
	TypesProcessor([]CellType{IntegerType{}})(nil, row)

	if row[0].Value != int64(7) {
		t.Errorf("row not mutated in place: %#v", row[0].Value)
	}
}

func TestTypesProcessorFailSoft(t *testing.T) {
	row := RowFromStrings([]string{"banana"})
	got := TypesProcessor([]CellType{IntegerType{}})(nil, row)

	if got[0].Value != "banana" {
		t.Errorf("failed cast changed value to %#v", got[0].Value)
	}
	if got[0].Type != nil {
		t.Errorf("failed cast assigned type %v", got[0].Type)
	}
}

func TestTypesProcessorPartialFailure(t *testing.T) {
	row := RowFromStrings([]string{"banana", "12"})
	got := TypesProcessor([]CellType{IntegerType{}, IntegerType{}})(nil, row)

	if got[0].Value != "banana" || got[0].Type != nil {
		t.Errorf("column 0 = %#v (%v), want untouched", got[0].Value, got[0].Type)
	}
	if got[1].Value != int64(12) || got[1].Type != (IntegerType{}) {
		t.Errorf("column 1 = %#v (%v), want 12 (Integer)", got[1].Value, got[1].Type)
	}
}

func TestTypesProcessorLengthMismatch(t *testing.T) {
	t.Run("more cells than types", func(t *testing.T) {
		row := RowFromStrings([]string{"1", "2", "3"})
		got := TypesProcessor([]CellType{IntegerType{}})(nil, row)

		if got[0].Value != int64(1) {
			t.Errorf("column 0 = %#v, want 1", got[0].Value)
		}
		for i := 1; i < 3; i++ {
			if got[i].Type != nil || got[i].Value != RowFromStrings([]string{"1", "2", "3"})[i].Value {
				t.Errorf("column %d touched: %#v (%v)", i, got[i].Value, got[i].Type)
			}
		}
	})

	t.Run("more types than cells", func(t *testing.T) {
		row := RowFromStrings([]string{"1"})
		got := TypesProcessor([]CellType{IntegerType{}, FloatType{}, DateType{}})(nil, row)

		if len(got) != 1 {
			t.Fatalf("row grew to %d cells", len(got))
		}
		if got[0].Value != int64(1) {
			t.Errorf("column 0 = %#v, want 1", got[0].Value)
		}
	})
}

func TestTypesProcessorNilTypeSkipsColumn(t *testing.T) {
	row := RowFromStrings([]string{"1", "2"})
	got := TypesProcessor([]CellType{nil, IntegerType{}})(nil, row)

	if got[0].Value != "1" || got[0].Type != nil {
		t.Errorf("column 0 touched: %#v (%v)", got[0].Value, got[0].Type)
	}
	if got[1].Value != int64(2) {
		t.Errorf("column 1 = %#v, want 2", got[1].Value)
	}
}

func TestTypesProcessorIdempotent(t *testing.T) {
	types := []CellType{IntegerType{}, FloatType{}, DateType{Format: "2006-01-02"}}
	row := RowFromStrings([]string{"3", "4.2", "2020-03-03"})

	p := TypesProcessor(types)
	p(nil, row)
	first := make(Row, len(row))
	copy(first, row)

	p(nil, row)
	for i := range row {
		if row[i] != first[i] {
			t.Errorf("column %d changed on second pass: %#v -> %#v", i, first[i], row[i])
		}
	}
}

// ----------------------------------------------------------------------------
// StrictTypesProcessor Tests
// ----------------------------------------------------------------------------

func TestStrictTypesProcessorReportsFailures(t *testing.T) {
	type failure struct {
		col int
		val any
	}
	var failures []failure
	p := StrictTypesProcessor(
		[]CellType{IntegerType{}, IntegerType{}},
		func(col int, cell Cell, err error) {
			if err == nil {
				t.Error("callback invoked without error")
			}
			failures = append(failures, failure{col: col, val: cell.Value})
		},
	)

	row := RowFromStrings([]string{"oops", "5"})
	got := p(nil, row)

	if len(failures) != 1 || failures[0].col != 0 || failures[0].val != "oops" {
		t.Errorf("failures = %#v, want one failure at column 0", failures)
	}
	// Output matches the fail-soft processor exactly.
	if got[0].Value != "oops" || got[0].Type != nil {
		t.Errorf("column 0 = %#v (%v), want untouched", got[0].Value, got[0].Type)
	}
	if got[1].Value != int64(5) {
		t.Errorf("column 1 = %#v, want 5", got[1].Value)
	}
}
