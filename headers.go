package messytables

import (
	"fmt"
	"iter"
	"strings"
)

// HeadersGuess locates the header row in a sample: the first row whose
// non-empty cell count comes within tolerance of the sample's modal column
// count. It returns the row's offset and its values as trimmed strings, or
// (0, nil) when the sample has no such row. Feed it a bounded sample, not a
// full table; the rows are materialized.
func HeadersGuess(rows iter.Seq2[Row, error], tolerance int) (int, []string, error) {
	var sample []Row
	for row, err := range rows {
		if err != nil {
			return 0, nil, err
		}
		sample = append(sample, row)
	}

	modal := modalWidth(sample)
	for i, row := range sample {
		filled := 0
		for _, cell := range row {
			if !cell.Empty() {
				filled++
			}
		}
		if filled >= modal-tolerance {
			headers := make([]string, len(row))
			for j, cell := range row {
				headers[j] = headerString(cell.Value)
			}
			return i, headers, nil
		}
	}
	return 0, nil, nil
}

// modalWidth returns the most common row length; length ties resolve to the
// wider row.
func modalWidth(rows []Row) int {
	freq := make(map[int]int)
	for _, row := range rows {
		freq[len(row)]++
	}
	width, n := 0, 0
	for w, c := range freq {
		if c > n || (c == n && w > width) {
			width, n = w, c
		}
	}
	return width
}

func headerString(v any) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// HeadersProcessor returns a processor that stamps column names onto cells
// positionally. Rows shorter than the header list are padded with empty
// cells so every named column is present; cells past the last header get an
// empty column name.
func HeadersProcessor(headers []string) Processor {
	return func(_ *RowSet, row Row) Row {
		for len(row) < len(headers) {
			row = append(row, Cell{})
		}
		for i := range row {
			if i < len(headers) {
				row[i].Column = headers[i]
			} else {
				row[i].Column = ""
			}
		}
		return row
	}
}

// OffsetProcessor returns a processor that drops the first offset rows of a
// pass, typically everything up to and including a header row. It is
// stateful; build a fresh one per iteration.
func OffsetProcessor(offset int) Processor {
	seen := 0
	return func(_ *RowSet, row Row) Row {
		if seen >= offset {
			return row
		}
		seen++
		return nil
	}
}

// HeadersMakeUnique normalizes headers for use as identifiers: names are
// trimmed, blanks become column_N, and case-insensitive repeats get a
// numeric suffix ("id", "ID" -> "id", "ID_2").
func HeadersMakeUnique(headers []string) []string {
	out := make([]string, len(headers))
	used := make(map[string]bool, len(headers))
	for i, h := range headers {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		base := h
		for n := 2; used[strings.ToLower(h)]; n++ {
			h = fmt.Sprintf("%s_%d", base, n)
		}
		used[strings.ToLower(h)] = true
		out[i] = h
	}
	return out
}
