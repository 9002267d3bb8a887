// Package dateparser holds the ordered catalog of date and time layouts used
// for date detection.
//
// The catalog is an ordered list, not a set: detection tries layouts front to
// back and binds the first one that parses, so more specific and less
// ambiguous layouts come first (timestamps before dates, four-digit years
// before two-digit years). Programs can extend detection with [Register]
// without touching the type system that consults the catalog.
package dateparser

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would land more than this many years in the future are assumed
// to be in the previous century.
// Example with pivot=20 in year 2025: "46" -> 1946 (not 2046), "24" -> 2024.
var TwoDigitYearPivot = 20

// Format pairs a descriptive name with a Go reference-time layout.
type Format struct {
	Name   string
	Layout string
}

var (
	catalogMu sync.RWMutex
	catalog   = []Format{
		{"rfc3339", time.RFC3339},
		{"iso_datetime", "2006-01-02T15:04:05"},
		{"iso_date_seconds", "2006-01-02 15:04:05"},
		{"iso_date_minutes", "2006-01-02 15:04"},
		{"iso_date", "2006-01-02"},
		{"slash_ymd", "2006/01/02"},
		{"dot_ymd", "2006.01.02"},
		{"slash_mdy_seconds", "1/2/2006 15:04:05"},
		{"slash_mdy_minutes", "1/2/2006 15:04"},
		{"slash_mdy", "1/2/2006"},
		{"dash_mdy", "1-2-2006"},
		{"dot_mdy", "1.2.2006"},
		{"month_day_year", "Jan 2, 2006"},
		{"day_month_year", "2 Jan 2006"},
		{"full_month_day_year", "January 2, 2006"},
		{"day_full_month_year", "2 January 2006"},
		{"compact_ymd", "20060102"},
		{"slash_mdy_short", "1/2/06"},
		{"dash_mdy_short", "1-2-06"},
		{"dot_mdy_short", "1.2.06"},
	}
)

// Formats returns a copy of the catalog in priority order.
func Formats() []Format {
	catalogMu.RLock()
	defer catalogMu.RUnlock()

	out := make([]Format, len(catalog))
	copy(out, catalog)
	return out
}

// Register appends a layout to the end of the catalog.
// Panics if the layout is already present, which almost always indicates two
// packages registering the same pattern.
func Register(name, layout string) {
	catalogMu.Lock()
	defer catalogMu.Unlock()

	for _, f := range catalog {
		if f.Layout == layout {
			panic(fmt.Sprintf("date layout already registered: %s", layout))
		}
	}
	catalog = append(catalog, Format{Name: name, Layout: layout})
}

// Index returns the catalog position of a layout, or -1 when the layout is
// not in the catalog. Positions order competing detections: a lower index
// means higher priority.
func Index(layout string) int {
	catalogMu.RLock()
	defer catalogMu.RUnlock()

	for i, f := range catalog {
		if f.Layout == layout {
			return i
		}
	}
	return -1
}

// Parse parses value using the given layout, applying the two-digit-year
// pivot for layouts that carry only a short year.
func Parse(layout, value string) (time.Time, error) {
	t, err := time.Parse(layout, value)
	if err != nil {
		return time.Time{}, err
	}

	if shortYear(layout) {
		// Go maps 2-digit years to 1969-2068; re-anchor on the pivot so
		// "46" stays in the past century until it is close enough.
		pivot := time.Now().Year() + TwoDigitYearPivot
		if t.Year() > pivot {
			t = t.AddDate(-100, 0, 0)
		}
	}
	return t, nil
}

// shortYear reports whether the layout uses a 2-digit year.
func shortYear(layout string) bool {
	return strings.Contains(layout, "06") && !strings.Contains(layout, "2006")
}
