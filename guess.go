package messytables

import (
	"iter"

	"github.com/timClicks/messytables/dateparser"
)

// TypeGuess infers one CellType per column from a sample of rows using the
// DefaultTypes candidates. The slice is as long as the widest sampled row.
func TypeGuess(rows iter.Seq2[Row, error]) ([]CellType, error) {
	return TypeGuessWith(rows, DefaultTypes)
}

// TypeGuessWith aggregates, for every column, how many sampled values each
// candidate accepts, keyed by the instance Test returns so that differently
// parameterized detections (date layouts) are counted apart. Counts are then
// scaled by each type's weight and the maximum wins; ties break toward the
// candidate declared later in the list, and between two date layouts toward
// the earlier catalog entry. Columns where nothing matched come back as
// NullType.
//
// The sample is read once; it stops at the first source error.
func TypeGuessWith(rows iter.Seq2[Row, error], candidates []CellType) ([]CellType, error) {
	type tally struct {
		counts map[CellType]float64
		rank   map[CellType]int
	}
	var cols []tally

	for row, err := range rows {
		if err != nil {
			return nil, err
		}
		for len(cols) < len(row) {
			cols = append(cols, tally{
				counts: make(map[CellType]float64),
				rank:   make(map[CellType]int),
			})
		}
		for i, cell := range row {
			for ci, cand := range candidates {
				inst, ok := cand.Test(cell.Value)
				if !ok {
					continue
				}
				cols[i].counts[inst]++
				cols[i].rank[inst] = ci
			}
		}
	}

	out := make([]CellType, len(cols))
	for i, col := range cols {
		out[i] = pickType(col.counts, col.rank)
	}
	return out, nil
}

// pickType selects the column winner: highest weighted count, then the later
// candidate, then the earlier date layout. The ordering is total, so the
// result does not depend on map iteration order.
func pickType(counts map[CellType]float64, rank map[CellType]int) CellType {
	var best CellType
	var bestScore float64

	for t, n := range counts {
		score := n * t.Weight()
		switch {
		case best == nil || score > bestScore:
			best, bestScore = t, score
		case score == bestScore && beats(t, best, rank):
			best = t
		}
	}
	if best == nil {
		return NullType{}
	}
	return best
}

// beats reports whether a outranks b on an exact score tie.
func beats(a, b CellType, rank map[CellType]int) bool {
	if rank[a] != rank[b] {
		return rank[a] > rank[b]
	}
	da, aok := a.(DateType)
	db, bok := b.(DateType)
	if aok && bok {
		ia, ib := dateparser.Index(da.Format), dateparser.Index(db.Format)
		if ia != ib {
			// Layouts outside the catalog rank after every catalog entry.
			if ia < 0 {
				return false
			}
			if ib < 0 {
				return true
			}
			return ia < ib
		}
		return da.Format < db.Format
	}
	return a.String() < b.String()
}
