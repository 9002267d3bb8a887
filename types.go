package messytables

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/timClicks/messytables/dateparser"
)

// CellType classifies raw cell values and converts them to a native Go
// representation.
//
// Implementations must be comparable values: the guesser keys per-column
// counters by the instances Test returns, and equality is structural, so two
// DateType values are the same type exactly when their layouts match.
// Test must not fail; it reports a negative result instead. Cast returns an
// error when the input is not representable, accepts values it has already
// produced (casting its own output is a no-op), and must not panic.
type CellType interface {
	// Test reports whether raw belongs to this type. The returned CellType
	// is the concrete instance to count: parameterized types return a bound
	// instance, everything else returns itself.
	Test(raw any) (CellType, bool)
	// Cast converts raw to the type's native representation.
	Cast(raw any) (any, error)
	// Weight is the guessing prior; more structured types weigh more.
	Weight() float64
	String() string
}

// DefaultTypes is the ordered candidate list consulted by TypeGuess. The
// order fixes tie-breaking: later entries are more specific and win exact
// ties. Null is not guessed from content; it is the fallback for columns
// where nothing matches.
var DefaultTypes = []CellType{
	StringType{},
	IntegerType{},
	FloatType{},
	DecimalType{},
	DateType{},
}

// StringType accepts textual values unchanged.
type StringType struct{}

func (t StringType) Test(raw any) (CellType, bool) {
	_, err := t.Cast(raw)
	return t, err == nil
}

func (t StringType) Cast(raw any) (any, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	return nil, fmt.Errorf("not a textual value: %T", raw)
}

func (StringType) Weight() float64 { return 1 }
func (StringType) String() string  { return "String" }

// NullType matches explicit null markers: nil values, the literal "null" in
// any case, and blank strings. Its Cast discards the input entirely.
type NullType struct{}

func (t NullType) Test(raw any) (CellType, bool) {
	if raw == nil {
		return t, true
	}
	if s, ok := raw.(string); ok {
		s = strings.ToLower(strings.TrimSpace(s))
		return t, s == "" || s == "null"
	}
	return t, false
}

func (NullType) Cast(raw any) (any, error) { return nil, nil }

func (NullType) Weight() float64 { return 1.5 }
func (NullType) String() string  { return "Null" }

// IntegerType matches base-10 integers that fit in an int64.
type IntegerType struct{}

func (t IntegerType) Test(raw any) (CellType, bool) {
	_, err := t.Cast(raw)
	return t, err == nil
}

func (t IntegerType) Cast(raw any) (any, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		// Spreadsheet backends hand over whole numbers as floats.
		if v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
			return nil, fmt.Errorf("not an integer: %v", v)
		}
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("not an integer: %q", v)
		}
		return n, nil
	}
	return nil, fmt.Errorf("not an integer: %T", raw)
}

func (IntegerType) Weight() float64 { return 1.5 }
func (IntegerType) String() string  { return "Integer" }

// FloatType matches real numbers. Strings that are plain integers test
// negative so the numeric types stay disjoint over string input, but Cast
// still accepts them.
type FloatType struct{}

func (t FloatType) Test(raw any) (CellType, bool) {
	switch v := raw.(type) {
	case float64, float32:
		return t, true
	case string:
		s := strings.TrimSpace(v)
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return t, false
		}
		_, err := strconv.ParseInt(s, 10, 64)
		return t, err != nil
	}
	return t, false
}

func (t FloatType) Cast(raw any) (any, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("not a float: %q", v)
		}
		return f, nil
	}
	return nil, fmt.Errorf("not a float: %T", raw)
}

func (FloatType) Weight() float64 { return 2 }
func (FloatType) String() string  { return "Float" }

// DecimalType matches numbers that need arbitrary precision: values that
// parse as a decimal but do not round-trip through float64, including
// magnitudes beyond its range. Everyday decimals like "2.5" stay floats.
type DecimalType struct{}

func (t DecimalType) Test(raw any) (CellType, bool) {
	switch v := raw.(type) {
	case decimal.Decimal:
		return t, true
	case string:
		s := strings.TrimSpace(v)
		d, err := decimal.NewFromString(s)
		if err != nil {
			return t, false
		}
		if _, err := strconv.ParseInt(s, 10, 64); err == nil {
			return t, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return t, true
		}
		return t, !decimal.NewFromFloat(f).Equal(d)
	}
	return t, false
}

func (t DecimalType) Cast(raw any) (any, error) {
	switch v := raw.(type) {
	case decimal.Decimal:
		return v, nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("not a decimal: %v", v)
		}
		return decimal.NewFromFloat(v), nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("not a decimal: %q", v)
		}
		return d, nil
	}
	return nil, fmt.Errorf("not a decimal: %T", raw)
}

func (DecimalType) Weight() float64 { return 2.5 }
func (DecimalType) String() string  { return "Decimal" }

// DateType carries the layout its values parse with; date types with
// different layouts are distinct. The zero value is the raw date type: it
// has no layout and casts by passing values through untouched, for sources
// that already deliver real dates.
type DateType struct {
	Format string
}

// Test searches the dateparser catalog in order and binds the first layout
// that parses the value.
func (t DateType) Test(raw any) (CellType, bool) {
	switch v := raw.(type) {
	case time.Time:
		return t, true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return t, false
		}
		for _, f := range dateparser.Formats() {
			if _, err := dateparser.Parse(f.Layout, s); err == nil {
				return DateType{Format: f.Layout}, true
			}
		}
	}
	return t, false
}

func (t DateType) Cast(raw any) (any, error) {
	if t.Format == "" {
		return raw, nil
	}
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		parsed, err := dateparser.Parse(t.Format, strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("not a date in layout %s: %q", t.Format, v)
		}
		return parsed, nil
	}
	return nil, fmt.Errorf("not a date: %T", raw)
}

func (DateType) Weight() float64 { return 3 }

func (t DateType) String() string {
	if t.Format == "" {
		return "Date"
	}
	return "Date(" + t.Format + ")"
}

// BoolType matches boolean words. It is not in DefaultTypes; add it to the
// candidate list to detect boolean columns. "1" and "0" are deliberately not
// recognized so integer columns are never mistaken for booleans.
type BoolType struct{}

var (
	boolTrue  = map[string]bool{"true": true, "t": true, "yes": true, "y": true}
	boolFalse = map[string]bool{"false": true, "f": true, "no": true, "n": true}
)

func (t BoolType) Test(raw any) (CellType, bool) {
	_, err := t.Cast(raw)
	return t, err == nil
}

func (t BoolType) Cast(raw any) (any, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		if boolTrue[s] {
			return true, nil
		}
		if boolFalse[s] {
			return false, nil
		}
		return nil, fmt.Errorf("not a boolean: %q", v)
	}
	return nil, fmt.Errorf("not a boolean: %T", raw)
}

func (BoolType) Weight() float64 { return 1.7 }
func (BoolType) String() string  { return "Bool" }
